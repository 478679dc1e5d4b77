package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/types"
)

func ref(uid string) types.Ref {
	return types.Ref{Type: TypeText, UID: uid}
}

func newSet(t *testing.T, uids ...string) (*Entity, *Set) {
	t.Helper()
	r := NewRegistry()
	c, err := r.NewContent(TypeContentSet, "set-1", now)
	require.NoError(t, err)
	for _, uid := range uids {
		c.Payload.Items = append(c.Payload.Items, ref(uid))
	}
	e, err := r.Wrap(c)
	require.NoError(t, err)
	s, err := e.Set()
	require.NoError(t, err)
	return e, s
}

func uids(s *Set) []string {
	var out []string
	for _, r := range s.All() {
		out = append(out, r.UID)
	}
	return out
}

func TestSetNotASet(t *testing.T) {
	r := NewRegistry()
	c := newText(t, r, "text-1", "v")
	e, err := r.Wrap(c)
	require.NoError(t, err)

	_, err = e.Set()
	assert.ErrorIs(t, err, ErrNotASet)

	_, err = Wrap(c, nil).Set()
	assert.ErrorIs(t, err, ErrNotASet)
}

func TestSetAccessors(t *testing.T) {
	_, s := newSet(t, "a", "b", "c")

	assert.Equal(t, 3, s.Count())
	first, ok := s.First()
	assert.True(t, ok)
	assert.Equal(t, "a", first.UID)
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, "c", last.UID)

	item, ok := s.Item(1)
	assert.True(t, ok)
	assert.Equal(t, "b", item.UID)

	_, ok = s.Item(3)
	assert.False(t, ok)
	_, ok = s.Item(-1)
	assert.False(t, ok)

	assert.Equal(t, 2, s.IndexOf("c"))
	assert.Equal(t, -1, s.IndexOf("z"))
}

func TestSetEmpty(t *testing.T) {
	_, s := newSet(t)

	_, ok := s.First()
	assert.False(t, ok)
	_, ok = s.Last()
	assert.False(t, ok)
	_, ok = s.Pop()
	assert.False(t, ok)
	_, ok = s.Shift()
	assert.False(t, ok)
	assert.Empty(t, uids(s))
}

func TestSetMutations(t *testing.T) {
	_, s := newSet(t, "b")

	require.NoError(t, s.Push(ref("c")))
	require.NoError(t, s.Unshift(ref("a")))
	require.NoError(t, s.Insert(2, ref("b2")))
	assert.Equal(t, []string{"a", "b", "b2", "c"}, uids(s))

	assert.Error(t, s.Insert(9, ref("x")))

	popped, ok := s.Pop()
	assert.True(t, ok)
	assert.Equal(t, "c", popped.UID)

	shifted, ok := s.Shift()
	assert.True(t, ok)
	assert.Equal(t, "a", shifted.UID)
	assert.Equal(t, []string{"b", "b2"}, uids(s))

	found, err := s.Replace("b2", ref("z"))
	require.NoError(t, err)
	assert.True(t, found)
	found, err = s.Replace("missing", ref("y"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"b", "z"}, uids(s))

	s.Clear()
	assert.Equal(t, 0, s.Count())
}

func TestSetConstraints(t *testing.T) {
	tests := []struct {
		name     string
		accept   []string
		maxEntry int
		items    []string
		add      types.Ref
		wantErr  error
	}{
		{
			name:    "accepted type",
			accept:  []string{TypeText},
			add:     ref("a"),
			wantErr: nil,
		},
		{
			name:    "refused type",
			accept:  []string{TypeImage},
			add:     ref("a"),
			wantErr: ErrNotAccepted,
		},
		{
			name:     "room left",
			maxEntry: 2,
			items:    []string{"a"},
			add:      ref("b"),
		},
		{
			name:     "full",
			maxEntry: 1,
			items:    []string{"a"},
			add:      ref("b"),
			wantErr:  ErrSetFull,
		},
	}

	for _, tt := range tests {
		for _, op := range []string{"push", "unshift"} {
			t.Run(tt.name+"/"+op, func(t *testing.T) {
				e, s := newSet(t, tt.items...)
				e.SetAccept(tt.accept)
				e.SetMaxEntry(tt.maxEntry)

				var err error
				if op == "push" {
					err = s.Push(tt.add)
				} else {
					err = s.Unshift(tt.add)
				}
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Equal(t, len(tt.items), s.Count())
					return
				}
				assert.NoError(t, err)
				assert.Equal(t, len(tt.items)+1, s.Count())
			})
		}
	}
}

func TestSetReplaceChecksAccept(t *testing.T) {
	e, s := newSet(t, "a")
	e.SetAccept([]string{TypeText})

	_, err := s.Replace("a", types.Ref{Type: TypeImage, UID: "img"})
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestSetFollowsDraft(t *testing.T) {
	e, s := newSet(t, "a", "b")
	c := e.Content()
	c.Revision = 1

	draft := Checkout(c, "alice", now)
	require.NoError(t, e.SetDraft(draft))
	require.NoError(t, s.Push(ref("c")))

	assert.Equal(t, []string{"a", "b", "c"}, uids(s))
	assert.Len(t, c.Payload.Items, 2, "committed items must not change")

	e.ReleaseDraft()
	assert.Equal(t, []string{"a", "b"}, uids(s))
}

func TestSetAllSnapshot(t *testing.T) {
	_, s := newSet(t, "a", "b")

	var seen []string
	for _, r := range s.All() {
		seen = append(seen, r.UID)
		if r.UID == "a" {
			require.NoError(t, s.Push(ref("late")))
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)

	count := 0
	for range s.All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestCursor(t *testing.T) {
	_, s := newSet(t, "a", "b", "c")
	cur := s.Cursor()

	assert.True(t, cur.Valid())
	assert.Equal(t, 0, cur.Key())
	current, ok := cur.Current()
	assert.True(t, ok)
	assert.Equal(t, "a", current.UID)

	var walked []string
	for cur.Valid() {
		r, ok := cur.Next()
		require.True(t, ok)
		walked = append(walked, r.UID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, walked)
	assert.Equal(t, 3, cur.Key())

	_, ok = cur.Next()
	assert.False(t, ok)

	cur.Rewind()
	assert.Equal(t, 0, cur.Key())
}

func TestCursorRewindsOnRemoval(t *testing.T) {
	tests := []struct {
		name   string
		remove func(s *Set)
		first  string
	}{
		{name: "pop", remove: func(s *Set) { s.Pop() }, first: "a"},
		{name: "shift", remove: func(s *Set) { s.Shift() }, first: "b"},
		{name: "clear", remove: func(s *Set) { s.Clear() }, first: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := newSet(t, "a", "b", "c")
			cur := s.Cursor()
			cur.Next()
			cur.Next()
			assert.Equal(t, 2, cur.Key())

			tt.remove(s)

			assert.Equal(t, 0, cur.Key())
			r, ok := cur.Current()
			if tt.first == "" {
				assert.False(t, ok)
				assert.False(t, cur.Valid())
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.first, r.UID)
		})
	}
}

func TestCursorPushDoesNotRewind(t *testing.T) {
	_, s := newSet(t, "a", "b")
	cur := s.Cursor()
	cur.Next()

	require.NoError(t, s.Push(ref("c")))
	assert.Equal(t, 1, cur.Key())
}
