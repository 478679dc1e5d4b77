package content

import (
	"fmt"
	"iter"
	"slices"

	"github.com/cuemby/strata/pkg/types"
)

// Set is the ordered collection view of a content set entity. It holds no
// state of its own: every call reads the entity's active payload, so the same
// view follows a draft attached or released after it was obtained.
type Set struct {
	e *Entity
}

func (s *Set) items() []types.Ref {
	return s.e.active().Items
}

// Count returns the number of items
func (s *Set) Count() int {
	return len(s.items())
}

// Item returns the item at index, or false when index is out of bounds
func (s *Set) Item(index int) (types.Ref, bool) {
	items := s.items()
	if index < 0 || index >= len(items) {
		return types.Ref{}, false
	}
	return items[index], true
}

// First returns the first item
func (s *Set) First() (types.Ref, bool) {
	return s.Item(0)
}

// Last returns the last item
func (s *Set) Last() (types.Ref, bool) {
	return s.Item(s.Count() - 1)
}

// IndexOf returns the position of the first item with uid, or -1
func (s *Set) IndexOf(uid string) int {
	return slices.IndexFunc(s.items(), func(r types.Ref) bool { return r.UID == uid })
}

func (s *Set) check(ref types.Ref) error {
	p := s.e.active()
	if !Accepts(p.Accept, ref.Type) {
		return fmt.Errorf("%w: %s refuses %s", ErrNotAccepted, s.e.UID(), ref.Type)
	}
	if p.MaxEntry > 0 && len(p.Items) >= p.MaxEntry {
		return fmt.Errorf("%w: %s holds %d of %d", ErrSetFull, s.e.UID(), len(p.Items), p.MaxEntry)
	}
	return nil
}

// Push appends ref to the end of the set
func (s *Set) Push(ref types.Ref) error {
	if err := s.check(ref); err != nil {
		return err
	}
	p := s.e.active()
	p.Items = append(p.Items, ref)
	s.e.touch()
	return nil
}

// Unshift prepends ref to the beginning of the set
func (s *Set) Unshift(ref types.Ref) error {
	if err := s.check(ref); err != nil {
		return err
	}
	p := s.e.active()
	p.Items = slices.Insert(p.Items, 0, ref)
	s.e.touch()
	return nil
}

// Insert places ref at index, shifting later items
func (s *Set) Insert(index int, ref types.Ref) error {
	if index < 0 || index > s.Count() {
		return fmt.Errorf("index %d out of range [0,%d]", index, s.Count())
	}
	if err := s.check(ref); err != nil {
		return err
	}
	p := s.e.active()
	p.Items = slices.Insert(p.Items, index, ref)
	s.e.touch()
	return nil
}

// Pop removes and returns the last item. Live cursors are rewound.
func (s *Set) Pop() (types.Ref, bool) {
	last, ok := s.Last()
	if !ok {
		return types.Ref{}, false
	}
	p := s.e.active()
	p.Items = p.Items[:len(p.Items)-1]
	s.e.touch()
	s.e.gen++
	return last, true
}

// Shift removes and returns the first item. Live cursors are rewound.
func (s *Set) Shift() (types.Ref, bool) {
	first, ok := s.First()
	if !ok {
		return types.Ref{}, false
	}
	p := s.e.active()
	p.Items = slices.Delete(p.Items, 0, 1)
	s.e.touch()
	s.e.gen++
	return first, true
}

// Clear empties the set. Live cursors are rewound.
func (s *Set) Clear() {
	s.e.active().Items = nil
	s.e.touch()
	s.e.gen++
}

// Replace swaps the first item with oldUID for ref and reports whether it was found.
// The accept list is checked but maxentry is not, since the count does not change.
func (s *Set) Replace(oldUID string, ref types.Ref) (bool, error) {
	i := s.IndexOf(oldUID)
	if i < 0 {
		return false, nil
	}
	if !Accepts(s.e.active().Accept, ref.Type) {
		return false, fmt.Errorf("%w: %s refuses %s", ErrNotAccepted, s.e.UID(), ref.Type)
	}
	s.e.active().Items[i] = ref
	s.e.touch()
	return true, nil
}

// Refs returns a copy of all items
func (s *Set) Refs() []types.Ref {
	return slices.Clone(s.items())
}

// All iterates over a snapshot of the items taken when iteration starts
func (s *Set) All() iter.Seq2[int, types.Ref] {
	return func(yield func(int, types.Ref) bool) {
		for i, ref := range slices.Clone(s.items()) {
			if !yield(i, ref) {
				return
			}
		}
	}
}

// Cursor returns a new cursor positioned on the first item
func (s *Set) Cursor() *Cursor {
	return &Cursor{e: s.e, gen: s.e.gen}
}

// Cursor walks a content set one item at a time. It reads through the
// entity on every step and rewinds itself after Pop, Shift, Clear or a draft
// change on the entity.
type Cursor struct {
	e     *Entity
	index int
	gen   uint64
}

func (c *Cursor) sync() {
	if c.gen != c.e.gen {
		c.index = 0
		c.gen = c.e.gen
	}
}

// Rewind moves the cursor back to the first item
func (c *Cursor) Rewind() {
	c.index = 0
	c.gen = c.e.gen
}

// Key returns the current position
func (c *Cursor) Key() int {
	c.sync()
	return c.index
}

// Valid reports whether the current position holds an item
func (c *Cursor) Valid() bool {
	c.sync()
	return c.index < len(c.e.active().Items)
}

// Current returns the item at the current position
func (c *Cursor) Current() (types.Ref, bool) {
	c.sync()
	return (&Set{e: c.e}).Item(c.index)
}

// Next returns the item at the current position and advances past it
func (c *Cursor) Next() (types.Ref, bool) {
	c.sync()
	ref, ok := (&Set{e: c.e}).Item(c.index)
	c.index++
	return ref, ok
}
