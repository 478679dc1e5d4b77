package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIssueAndValidate(t *testing.T) {
	sm := NewSessionManager()

	s, err := sm.Issue(" alice ", "", time.Hour)
	require.NoError(t, err)
	assert.Len(t, s.Token, 64)
	assert.Equal(t, "alice", s.User)
	assert.Equal(t, RoleEditor, s.Role)

	got, err := sm.Validate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User)

	_, err = sm.Validate("nope")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionIssueRejects(t *testing.T) {
	sm := NewSessionManager()

	_, err := sm.Issue("", RoleEditor, time.Hour)
	assert.Error(t, err)

	_, err = sm.Issue("bob", "superuser", time.Hour)
	assert.Error(t, err)
}

func TestSessionExpiry(t *testing.T) {
	sm := NewSessionManager()
	clock := t0
	sm.now = func() time.Time { return clock }

	short, err := sm.Issue("alice", RoleEditor, time.Minute)
	require.NoError(t, err)
	long, err := sm.Issue("bob", RoleAdmin, 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(DefaultSessionTTL), long.ExpiresAt)

	clock = t0.Add(2 * time.Minute)
	_, err = sm.Validate(short.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Equal(t, 1, sm.CleanupExpired())
	sessions := sm.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", sessions[0].User)
}

func TestSessionRevoke(t *testing.T) {
	sm := NewSessionManager()

	a1, err := sm.Issue("alice", RoleEditor, time.Hour)
	require.NoError(t, err)
	_, err = sm.Issue("alice", RoleEditor, time.Hour)
	require.NoError(t, err)
	b, err := sm.Issue("bob", RoleEditor, time.Hour)
	require.NoError(t, err)

	assert.True(t, sm.Revoke(a1.Token))
	assert.False(t, sm.Revoke(a1.Token))

	assert.Equal(t, 1, sm.RevokeUser("alice"))
	_, err = sm.Validate(b.Token)
	assert.NoError(t, err)
	assert.Len(t, sm.List(), 1)
}

func TestSessionValidateReturnsCopy(t *testing.T) {
	sm := NewSessionManager()
	s, err := sm.Issue("alice", RoleEditor, time.Hour)
	require.NoError(t, err)

	got, err := sm.Validate(s.Token)
	require.NoError(t, err)
	got.Role = RoleAdmin

	again, err := sm.Validate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, again.Role)
}
