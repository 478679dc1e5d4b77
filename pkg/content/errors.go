package content

import "errors"

var (
	// ErrNotASet is returned by set operations on contents that are not sets
	ErrNotASet = errors.New("content is not a content set")

	// ErrNotAccepted is returned when a child type is refused by the accept list
	ErrNotAccepted = errors.New("content type not accepted")

	// ErrSetFull is returned when a set already holds maxentry items
	ErrSetFull = errors.New("content set is full")

	// ErrUnknownElement is returned when setting an element the type does not declare
	ErrUnknownElement = errors.New("unknown element")

	// ErrUnknownType is returned for content types missing from the registry
	ErrUnknownType = errors.New("unknown content type")

	// ErrForeignDraft is returned when attaching a revision of another content
	ErrForeignDraft = errors.New("revision does not belong to content")

	// ErrNotADraft is returned when attaching or editing a revision that is not a draft
	ErrNotADraft = errors.New("revision is not a draft")

	// ErrConflicted is returned when committing a draft with unresolved conflicts
	ErrConflicted = errors.New("draft is conflicted")

	// ErrStaleDraft is returned when a draft is not based on the current committed revision
	ErrStaleDraft = errors.New("draft is based on an outdated revision")

	// ErrInvalidTransition is returned when a revision cannot move to the requested state
	ErrInvalidTransition = errors.New("invalid revision state transition")

	// ErrUnknownConflict is returned when resolving a key that is not in conflict
	ErrUnknownConflict = errors.New("key is not in conflict")
)
