package content

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/strata/pkg/types"
)

var transitions = map[types.RevisionState][]types.RevisionState{
	types.RevisionAdded:      {types.RevisionCommitted, types.RevisionModified, types.RevisionConflicted, types.RevisionToDelete},
	types.RevisionModified:   {types.RevisionCommitted, types.RevisionModified, types.RevisionConflicted, types.RevisionToDelete},
	types.RevisionConflicted: {types.RevisionModified, types.RevisionConflicted, types.RevisionToDelete},
	types.RevisionCommitted:  {types.RevisionDeleted},
}

// CanTransition reports whether a revision may move from one state to another
func CanTransition(from, to types.RevisionState) bool {
	return slices.Contains(transitions[from], to)
}

func transition(r *types.Revision, to types.RevisionState) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	return nil
}

// Checkout creates a new draft of c for owner. The draft carries a copy of the
// committed payload and remembers the revision it was based on.
func Checkout(c *types.Content, owner string, now time.Time) *types.Revision {
	state := types.RevisionModified
	if c.Revision == 0 {
		state = types.RevisionAdded
	}
	return &types.Revision{
		UID:         uuid.New().String(),
		ContentUID:  c.UID,
		ContentType: c.Type,
		Owner:       owner,
		State:       state,
		Revision:    c.Revision,
		Payload:     c.Payload.Clone(),
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// Commit publishes the draft into the content. The draft becomes the committed
// history record of the new revision.
func Commit(c *types.Content, r *types.Revision, comment string, now time.Time) error {
	if r.ContentUID != c.UID {
		return fmt.Errorf("%w: revision %s targets %s", ErrForeignDraft, r.UID, r.ContentUID)
	}
	switch r.State {
	case types.RevisionConflicted:
		return fmt.Errorf("%w: %s has %d unresolved keys", ErrConflicted, r.UID, len(r.Conflicts))
	case types.RevisionAdded, types.RevisionModified:
	default:
		return fmt.Errorf("%w: revision %s is %s", ErrNotADraft, r.UID, r.State)
	}
	if r.Revision != c.Revision {
		return fmt.Errorf("%w: draft based on %d, content at %d", ErrStaleDraft, r.Revision, c.Revision)
	}
	if err := transition(r, types.RevisionCommitted); err != nil {
		return err
	}

	c.Payload = r.Payload.Clone()
	c.Revision++
	c.State = types.ContentStateCommitted
	c.ModifiedAt = now

	r.Revision = c.Revision
	r.Comment = comment
	r.Conflicts = nil
	r.ModifiedAt = now
	return nil
}

// Rebase moves the draft onto the current committed revision of c. base is the
// payload the draft was checked out from. Keys changed on one side only are
// merged; keys changed differently on both sides keep the draft value and are
// reported as conflicts, leaving the draft conflicted.
func Rebase(c *types.Content, base types.Payload, r *types.Revision, now time.Time) ([]string, error) {
	if r.ContentUID != c.UID {
		return nil, fmt.Errorf("%w: revision %s targets %s", ErrForeignDraft, r.UID, r.ContentUID)
	}
	if !r.State.IsDraft() {
		return nil, fmt.Errorf("%w: revision %s is %s", ErrNotADraft, r.UID, r.State)
	}
	if r.Revision == c.Revision {
		return slices.Clone(r.Conflicts), nil
	}

	merged, conflicts := merge(base, c.Payload, r.Payload)
	next := types.RevisionModified
	if len(conflicts) > 0 {
		next = types.RevisionConflicted
	}
	if err := transition(r, next); err != nil {
		return nil, err
	}
	r.Payload = merged
	r.Revision = c.Revision
	r.Conflicts = conflicts
	r.ModifiedAt = now
	return slices.Clone(conflicts), nil
}

// Choice picks a side when resolving a conflict
type Choice string

const (
	ChoiceMine   Choice = "mine"
	ChoiceTheirs Choice = "theirs"
)

// Resolve settles conflicted keys. Keys resolved with ChoiceTheirs take the
// committed value. Once no conflict remains the draft is modified again.
func Resolve(c *types.Content, r *types.Revision, choices map[string]Choice, now time.Time) error {
	if r.State != types.RevisionConflicted {
		return fmt.Errorf("%w: revision %s is %s", ErrInvalidTransition, r.UID, r.State)
	}
	if r.Revision != c.Revision {
		return fmt.Errorf("%w: rebase before resolving", ErrStaleDraft)
	}
	for key, choice := range choices {
		if !slices.Contains(r.Conflicts, key) {
			return fmt.Errorf("%w: %s", ErrUnknownConflict, key)
		}
		if choice != ChoiceMine && choice != ChoiceTheirs {
			return fmt.Errorf("invalid choice %q for %s", choice, key)
		}
	}

	theirs := flatten(c.Payload)
	remaining := r.Conflicts[:0:0]
	for _, key := range r.Conflicts {
		choice, ok := choices[key]
		if !ok {
			remaining = append(remaining, key)
			continue
		}
		if choice == ChoiceTheirs {
			assign(&r.Payload, key, theirs[key])
		}
	}
	r.Conflicts = remaining
	r.ModifiedAt = now
	if len(remaining) == 0 {
		r.Conflicts = nil
		return transition(r, types.RevisionModified)
	}
	return nil
}

// Revert abandons a draft, marking it for purge
func Revert(r *types.Revision, now time.Time) error {
	if !r.State.IsDraft() {
		return fmt.Errorf("%w: revision %s is %s", ErrNotADraft, r.UID, r.State)
	}
	if err := transition(r, types.RevisionToDelete); err != nil {
		return err
	}
	r.ModifiedAt = now
	return nil
}

// Tombstone marks the content deleted. Committed history is kept as deleted
// records and pending drafts are marked for purge.
func Tombstone(c *types.Content, revisions []*types.Revision, now time.Time) {
	c.State = types.ContentStateDeleted
	c.ModifiedAt = now
	for _, r := range revisions {
		switch {
		case r.State == types.RevisionCommitted:
			r.State = types.RevisionDeleted
		case r.State.IsDraft():
			r.State = types.RevisionToDelete
		default:
			continue
		}
		r.ModifiedAt = now
	}
}
