package content

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cuemby/strata/pkg/types"
)

// Entity wraps a content and optionally one draft of it. While a draft in
// state added or modified is attached, every accessor except UID and Type reads
// and writes the draft payload instead of the committed one.
type Entity struct {
	content *types.Content
	def     *types.ContentType
	draft   *types.Revision
	dirty   bool
	gen     uint64
}

// Wrap creates an entity for the content. def may be nil for untyped contents,
// in which case the entity is never a set and elements are not checked.
func Wrap(c *types.Content, def *types.ContentType) *Entity {
	return &Entity{content: c, def: def}
}

// UID returns the content identifier. It is never overlaid.
func (e *Entity) UID() string {
	return e.content.UID
}

// Type returns the content type name
func (e *Entity) Type() string {
	return e.content.Type
}

// Ref returns a reference to the wrapped content
func (e *Entity) Ref() types.Ref {
	return e.content.Ref()
}

// Content returns the wrapped content
func (e *Entity) Content() *types.Content {
	return e.content
}

// Definition returns the content type definition, if any
func (e *Entity) Definition() *types.ContentType {
	return e.def
}

// IsSet reports whether the content is an ordered content set
func (e *Entity) IsSet() bool {
	return e.def != nil && e.def.Set
}

// SetDraft attaches a draft to the entity. Attaching nil releases the current draft.
func (e *Entity) SetDraft(r *types.Revision) error {
	if r == nil {
		e.ReleaseDraft()
		return nil
	}
	if r.ContentUID != e.content.UID {
		return fmt.Errorf("%w: revision %s targets %s, not %s", ErrForeignDraft, r.UID, r.ContentUID, e.content.UID)
	}
	if !r.State.IsDraft() {
		return fmt.Errorf("%w: revision %s is %s", ErrNotADraft, r.UID, r.State)
	}
	e.draft = r
	e.gen++
	return nil
}

// Draft returns the attached draft, or nil
func (e *Entity) Draft() *types.Revision {
	return e.draft
}

// ReleaseDraft detaches the draft so accessors see the committed payload again
func (e *Entity) ReleaseDraft() {
	if e.draft != nil {
		e.draft = nil
		e.gen++
	}
}

// Overlaid reports whether accessors currently go through the draft
func (e *Entity) Overlaid() bool {
	if e.draft == nil {
		return false
	}
	return e.draft.State == types.RevisionAdded || e.draft.State == types.RevisionModified
}

// Dirty reports whether a setter changed the active payload since wrapping
func (e *Entity) Dirty() bool {
	return e.dirty
}

func (e *Entity) active() *types.Payload {
	if e.Overlaid() {
		return &e.draft.Payload
	}
	return &e.content.Payload
}

func (e *Entity) touch() {
	e.dirty = true
}

// Payload returns a copy of the active payload
func (e *Entity) Payload() types.Payload {
	return e.active().Clone()
}

// Revision returns the committed revision number of the content
func (e *Entity) Revision() int {
	return e.content.Revision
}

func (e *Entity) Label() string {
	return e.active().Label
}

func (e *Entity) SetLabel(label string) {
	e.active().Label = label
	e.touch()
}

func (e *Entity) Value() string {
	return e.active().Value
}

func (e *Entity) SetValue(v string) {
	e.active().Value = v
	e.touch()
}

func (e *Entity) Accept() []string {
	return slices.Clone(e.active().Accept)
}

func (e *Entity) SetAccept(accept []string) {
	e.active().Accept = slices.Clone(accept)
	e.touch()
}

func (e *Entity) MaxEntry() int {
	return e.active().MaxEntry
}

func (e *Entity) SetMaxEntry(n int) {
	e.active().MaxEntry = n
	e.touch()
}

// Element returns the sub-content referenced by the named element
func (e *Entity) Element(name string) (types.Ref, bool) {
	ref, ok := e.active().Elements[name]
	return ref, ok
}

// Elements returns a copy of all element references
func (e *Entity) Elements() map[string]types.Ref {
	return maps.Clone(e.active().Elements)
}

// SetElement points the named element to ref. When the content type declares
// its elements, the name must be declared and ref must match its type.
func (e *Entity) SetElement(name string, ref types.Ref) error {
	if e.def != nil && len(e.def.Elements) > 0 {
		want, ok := e.def.Elements[name]
		if !ok {
			return fmt.Errorf("%w: %s has no element %q", ErrUnknownElement, e.content.Type, name)
		}
		if want != "" && !Accepts([]string{want}, ref.Type) {
			return fmt.Errorf("%w: element %q of %s expects %s, got %s", ErrNotAccepted, name, e.content.Type, want, ref.Type)
		}
	}
	p := e.active()
	if p.Elements == nil {
		p.Elements = make(map[string]types.Ref)
	}
	p.Elements[name] = ref
	e.touch()
	return nil
}

// UnsetElement removes the named element reference
func (e *Entity) UnsetElement(name string) {
	delete(e.active().Elements, name)
	e.touch()
}

// Param returns a single parameter value
func (e *Entity) Param(name string) (any, bool) {
	v, ok := e.active().Params[name]
	return v, ok
}

// Params returns a copy of the parameters
func (e *Entity) Params() map[string]any {
	p := e.active().Clone()
	return p.Params
}

func (e *Entity) SetParam(name string, value any) {
	p := e.active()
	if p.Params == nil {
		p.Params = make(map[string]any)
	}
	p.Params[name] = value
	e.touch()
}

// Set returns the ordered-set view of the entity
func (e *Entity) Set() (*Set, error) {
	if !e.IsSet() {
		return nil, fmt.Errorf("%w: %s", ErrNotASet, e.content.Type)
	}
	return &Set{e: e}, nil
}

// Accepts reports whether typ is allowed by the accept list. An empty list or
// a "*" entry accepts everything; entries ending in "/*" accept a type family.
func Accepts(accept []string, typ string) bool {
	if len(accept) == 0 {
		return true
	}
	for _, a := range accept {
		switch {
		case a == "*" || a == typ:
			return true
		case len(a) > 2 && a[len(a)-2:] == "/*" && len(typ) > len(a)-1 && typ[:len(a)-1] == a[:len(a)-1]:
			return true
		}
	}
	return false
}
