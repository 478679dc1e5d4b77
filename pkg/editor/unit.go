package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// tracked is an entity loaded by a unit of work
type tracked struct {
	e *content.Entity
	// created is set for contents that do not exist in the store yet
	created bool
	// checkedOut is set for drafts created by this unit
	checkedOut bool
}

// unit is one editor request. It loads contents with the user's drafts
// attached, remembers what it processed and writes everything in one batch.
type unit struct {
	s    *Service
	ctx  context.Context
	user string

	input     map[string]*types.SerializedContent
	processed *xsync.MapOf[string, *content.Entity]
	loaded    map[string]*tracked
	order     []string
	extra     storage.Batch
}

func (s *Service) newUnit(ctx context.Context, user string) *unit {
	return &unit{
		s:         s,
		ctx:       ctx,
		user:      user,
		input:     make(map[string]*types.SerializedContent),
		processed: xsync.NewMapOf[string, *content.Entity](),
		loaded:    make(map[string]*tracked),
	}
}

func (u *unit) track(t *tracked) *tracked {
	u.loaded[t.e.UID()] = t
	u.order = append(u.order, t.e.UID())
	return t
}

// get loads a stored content with the user's draft attached. Deleted contents
// are reported as not found.
func (u *unit) get(uid string) (*tracked, error) {
	if t, ok := u.loaded[uid]; ok {
		return t, nil
	}

	c, err := u.s.store.GetContent(uid)
	if err != nil {
		return nil, err
	}
	if c.State == types.ContentStateDeleted {
		return nil, fmt.Errorf("content %s is deleted: %w", uid, storage.ErrNotFound)
	}
	e, err := u.s.registry.Wrap(c)
	if err != nil {
		return nil, err
	}

	draft, err := u.s.store.GetDraft(uid, u.user)
	switch {
	case err == nil:
		if err := e.SetDraft(draft); err != nil {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load draft of %s: %w", uid, err)
	}
	return u.track(&tracked{e: e}), nil
}

// getOrCreate loads a content or creates a fresh one of typ
func (u *unit) getOrCreate(typ, uid string) (*tracked, error) {
	t, err := u.get(uid)
	if err == nil {
		if typ != "" && t.e.Type() != typ {
			return nil, invalid("content %s is a %s, not a %s", uid, t.e.Type(), typ)
		}
		return t, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if c, getErr := u.s.store.GetContent(uid); getErr == nil && c.State == types.ContentStateDeleted {
		return nil, invalid("content %s is deleted", uid)
	}

	c, err := u.s.registry.NewContent(typ, uid, u.s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	c.Owner = u.user
	e, err := u.s.registry.Wrap(c)
	if err != nil {
		return nil, err
	}
	return u.track(&tracked{e: e, created: true}), nil
}

// checkout makes sure the entity is overlaid by a writable draft of the user
func (u *unit) checkout(t *tracked) error {
	if d := t.e.Draft(); d != nil {
		if d.State == types.RevisionConflicted {
			return fmt.Errorf("%w: %s needs to be resolved before editing", content.ErrConflicted, t.e.UID())
		}
		return nil
	}
	if err := t.e.SetDraft(content.Checkout(t.e.Content(), u.user, u.s.now())); err != nil {
		return err
	}
	t.checkedOut = true
	return nil
}

// edit loads or creates a content ready to be modified
func (u *unit) edit(typ, uid string) (*tracked, error) {
	t, err := u.getOrCreate(typ, uid)
	if err != nil {
		return nil, err
	}
	if err := u.checkout(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Load implements render.Loader, so previews see the user's drafts
func (u *unit) Load(_ context.Context, ref types.Ref) (*content.Entity, error) {
	t, err := u.get(ref.UID)
	if err != nil {
		return nil, err
	}
	return t.e, nil
}

// process applies a serialized content and, recursively, the contents of the
// same request it references. Each uid is processed once.
func (u *unit) process(sc *types.SerializedContent) (*content.Entity, error) {
	if e, ok := u.processed.Load(sc.UID); ok {
		return e, nil
	}
	if err := u.s.validate.Struct(sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	t, err := u.edit(sc.Type, sc.UID)
	if err != nil {
		return nil, err
	}
	u.processed.Store(sc.UID, t.e)

	if t.e.IsSet() {
		if sc.Items != nil {
			if err := u.prepareItems(t.e, sc.Items); err != nil {
				return nil, err
			}
		}
	} else if sc.Data != nil {
		if err := u.prepareElements(t.e, sc); err != nil {
			return nil, err
		}
	}

	unserialize(t.e, sc)
	return t.e, nil
}

// resolve finds the content a serialized reference points to: a content of
// the same request is processed, a stored one is linked. ok is false when
// neither exists.
func (u *unit) resolve(typ, uid string) (ref types.Ref, ok bool, err error) {
	if sc, found := u.input[uid]; found {
		if typ != "" && !content.Accepts([]string{typ}, sc.Type) {
			return types.Ref{}, false, nil
		}
		child, err := u.process(sc)
		if err != nil {
			return types.Ref{}, false, err
		}
		return child.Ref(), true, nil
	}

	if t, found := u.loaded[uid]; found {
		return t.e.Ref(), typ == "" || content.Accepts([]string{typ}, t.e.Type()), nil
	}
	c, err := u.s.store.GetContent(uid)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Ref{}, false, nil
	}
	if err != nil {
		return types.Ref{}, false, err
	}
	if c.State == types.ContentStateDeleted || (typ != "" && !content.Accepts([]string{typ}, c.Type)) {
		return types.Ref{}, false, nil
	}
	return c.Ref(), true, nil
}

func (u *unit) prepareElements(e *content.Entity, sc *types.SerializedContent) error {
	var declared map[string]string
	if def := e.Definition(); def != nil {
		declared = def.Elements
	}

	keys := make([]string, 0, len(sc.Data))
	for key := range sc.Data {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if len(sc.Accept) > 0 {
			if _, ok := sc.Accept[key]; !ok {
				continue
			}
		}
		typ := sc.Accept[key]
		if typ == "" {
			typ = declared[key]
		}

		ref, ok, err := u.resolve(typ, sc.Data[key])
		if err != nil {
			return err
		}
		if !ok {
			// unknown uid: the existing element stays
			continue
		}
		if current, found := e.Element(key); found && current == ref {
			continue
		}
		if err := e.SetElement(key, ref); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return nil
}

func (u *unit) prepareItems(e *content.Entity, items []types.ItemRef) error {
	set, err := e.Set()
	if err != nil {
		return err
	}
	existing := set.Refs()
	accept := e.Accept()

	next := make([]types.Ref, 0, len(items))
	for i, item := range items {
		if !content.Accepts(accept, item.NodeType) {
			continue
		}
		ref, ok, err := u.resolve(item.NodeType, item.UID)
		if err != nil {
			return err
		}
		if !ok {
			if i < len(existing) {
				next = append(next, existing[i])
			}
			continue
		}
		next = append(next, ref)
	}

	if max := e.MaxEntry(); max > 0 && len(next) > max {
		return fmt.Errorf("%w: %w: %s accepts %d items, got %d", ErrInvalidPayload, content.ErrSetFull, e.UID(), max, len(next))
	}
	if slices.Equal(next, existing) {
		return nil
	}

	set.Clear()
	for _, ref := range next {
		if err := set.Push(ref); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return nil
}

// batch collects the new contents and changed drafts of the unit
func (u *unit) batch() *storage.Batch {
	b := &storage.Batch{
		Contents:        slices.Clone(u.extra.Contents),
		Revisions:       slices.Clone(u.extra.Revisions),
		Pages:           slices.Clone(u.extra.Pages),
		DeleteRevisions: slices.Clone(u.extra.DeleteRevisions),
	}
	for _, uid := range u.order {
		t := u.loaded[uid]
		if t.created {
			b.PutContent(t.e.Content())
		}
		if d := t.e.Draft(); d != nil && (t.checkedOut || t.e.Dirty()) {
			d.ModifiedAt = u.s.now()
			b.PutRevision(d)
		}
	}
	return b
}

// flush writes the unit in one batch and announces the updated drafts
func (u *unit) flush() error {
	b := u.batch()
	if err := u.s.apply(b); err != nil {
		return err
	}

	for _, r := range b.Revisions {
		if !r.State.IsDraft() {
			continue
		}
		u.s.publish(events.EventDraftUpdated, fmt.Sprintf("draft of %s updated", r.ContentUID), map[string]string{
			"content_uid":  r.ContentUID,
			"content_type": r.ContentType,
			"revision_uid": r.UID,
			"owner":        r.Owner,
			"state":        r.State.String(),
		})
	}
	return nil
}
