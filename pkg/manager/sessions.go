package manager

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

// Session roles
const (
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// DefaultSessionTTL is used when a session is issued without a lifetime
const DefaultSessionTTL = 12 * time.Hour

// SessionManager manages editing sessions. The session user owns the drafts
// created through it.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// Session binds a bearer token to an editor
type Session struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// ValidRole reports whether role is known
func ValidRole(role string) bool {
	return role == RoleEditor || role == RoleAdmin
}

// Issue creates a session for user
func (sm *SessionManager) Issue(user, role string, ttl time.Duration) (*Session, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}
	if role == "" {
		role = RoleEditor
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}

	now := sm.now()
	s := &Session{
		Token:     hex.EncodeToString(bytes),
		User:      user,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	sm.mu.Lock()
	sm.sessions[s.Token] = s
	sm.mu.Unlock()

	return s, nil
}

// Validate returns the session behind token
func (sm *SessionManager) Validate(token string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.sessions[token]
	if !exists {
		return nil, ErrInvalidSession
	}

	if sm.now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	copied := *s
	return &copied, nil
}

// Revoke ends a session. It reports whether the token existed.
func (sm *SessionManager) Revoke(token string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	_, ok := sm.sessions[token]
	delete(sm.sessions, token)
	return ok
}

// RevokeUser ends every session of user and returns how many were removed
func (sm *SessionManager) RevokeUser(user string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	n := 0
	for token, s := range sm.sessions {
		if s.User == user {
			delete(sm.sessions, token)
			n++
		}
	}
	return n
}

// CleanupExpired removes expired sessions
func (sm *SessionManager) CleanupExpired() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	n := 0
	for token, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, token)
			n++
		}
	}
	return n
}

// List returns all sessions ordered by creation time
func (sm *SessionManager) List() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		copied := *s
		sessions = append(sessions, &copied)
	}

	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sessions
}
