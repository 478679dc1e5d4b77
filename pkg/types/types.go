package types

import (
	"maps"
	"slices"
	"time"
)

// Ref points to a content by type and UID
type Ref struct {
	Type string `json:"type" yaml:"type"`
	UID  string `json:"uid" yaml:"uid"`
}

// IsZero reports whether the reference points nowhere
func (r Ref) IsZero() bool {
	return r.UID == ""
}

// Payload is the overlayable part of a content. A draft carries its own copy
// which shadows the committed one while the draft is attached.
type Payload struct {
	Label    string         `json:"label,omitempty"`
	Accept   []string       `json:"accept,omitempty"`
	MaxEntry int            `json:"maxentry,omitempty"`
	Value    string         `json:"value,omitempty"`
	Elements map[string]Ref `json:"elements,omitempty"`
	Items    []Ref          `json:"items,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Clone returns a deep copy of the payload
func (p Payload) Clone() Payload {
	out := Payload{
		Label:    p.Label,
		Accept:   slices.Clone(p.Accept),
		MaxEntry: p.MaxEntry,
		Value:    p.Value,
		Items:    slices.Clone(p.Items),
	}
	if p.Elements != nil {
		out.Elements = maps.Clone(p.Elements)
	}
	if p.Params != nil {
		out.Params = cloneParams(p.Params)
	}
	return out
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneParams(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// ContentState is the lifecycle state of a content entity
type ContentState string

const (
	ContentStateNew       ContentState = "new"
	ContentStateCommitted ContentState = "committed"
	ContentStateDeleted   ContentState = "deleted"
)

// Content is a typed, versioned block. Revision is the number of commits the
// content went through; zero means it was never committed.
type Content struct {
	UID        string       `json:"uid"`
	Type       string       `json:"type"`
	Revision   int          `json:"revision"`
	State      ContentState `json:"state"`
	Owner      string       `json:"owner,omitempty"`
	Payload    Payload      `json:"payload"`
	CreatedAt  time.Time    `json:"created_at"`
	ModifiedAt time.Time    `json:"modified_at"`
}

// Ref returns a reference to the content
func (c *Content) Ref() Ref {
	return Ref{Type: c.Type, UID: c.UID}
}

// RevisionState describes where a revision stands in the draft workflow
type RevisionState int

const (
	RevisionCommitted  RevisionState = 1000 // one of the committed revisions of a content
	RevisionAdded      RevisionState = 1001 // draft of a never committed content
	RevisionModified   RevisionState = 1002 // draft of an already committed content
	RevisionConflicted RevisionState = 1003 // draft diverging from the current committed version
	RevisionDeleted    RevisionState = 1004 // revision of a deleted content
	RevisionToDelete   RevisionState = 1005 // revision waiting for purge
)

func (s RevisionState) String() string {
	switch s {
	case RevisionCommitted:
		return "committed"
	case RevisionAdded:
		return "added"
	case RevisionModified:
		return "modified"
	case RevisionConflicted:
		return "conflicted"
	case RevisionDeleted:
		return "deleted"
	case RevisionToDelete:
		return "to_delete"
	default:
		return "unknown"
	}
}

// IsDraft reports whether the state belongs to a pending working copy
func (s RevisionState) IsDraft() bool {
	return s == RevisionAdded || s == RevisionModified || s == RevisionConflicted
}

// Revision is either a user's draft of a content or a committed history record.
// For drafts, Revision holds the committed revision the draft was based on; for
// committed records it holds the revision number the commit produced.
type Revision struct {
	UID         string        `json:"uid"`
	ContentUID  string        `json:"content_uid"`
	ContentType string        `json:"content_type"`
	Owner       string        `json:"owner"`
	Comment     string        `json:"comment,omitempty"`
	State       RevisionState `json:"state"`
	Revision    int           `json:"revision"`
	Payload     Payload       `json:"payload"`
	Conflicts   []string      `json:"conflicts,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ModifiedAt  time.Time     `json:"modified_at"`
}

// PageState is a bitmask of page flags
type PageState int

const (
	PageOffline PageState = 0
	PageOnline  PageState = 1
	PageHidden  PageState = 2
	PageDeleted PageState = 4
)

// Has reports whether all bits of flag are set
func (s PageState) Has(flag PageState) bool {
	return s&flag == flag && flag != 0
}

// With returns the state with flag set or cleared
func (s PageState) With(flag PageState, on bool) PageState {
	if on {
		return s | flag
	}
	return s &^ flag
}

// Zone is a column of a layout. Each zone is backed by a content set stored in
// the page's root content set at the same position.
type Zone struct {
	Name      string   `json:"name" yaml:"name"`
	Main      bool     `json:"main,omitempty" yaml:"main"`
	Inherited bool     `json:"inherited,omitempty" yaml:"inherited"`
	Accept    []string `json:"accept,omitempty" yaml:"accept"`
	MaxEntry  int      `json:"maxentry,omitempty" yaml:"maxentry"`
}

// Layout describes the zones of a page
type Layout struct {
	Name  string `json:"name" yaml:"name"`
	Zones []Zone `json:"zones" yaml:"zones"`
}

// Page is a node of the site tree
type Page struct {
	UID           string     `json:"uid"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	State         PageState  `json:"state"`
	ParentUID     string     `json:"parent_uid,omitempty"`
	RootUID       string     `json:"root_uid"`
	Layout        Layout     `json:"layout"`
	ContentSetUID string     `json:"contentset_uid"`
	MainContent   *Ref       `json:"main_content,omitempty"`
	Publishing    *time.Time `json:"publishing,omitempty"`
	Archiving     *time.Time `json:"archiving,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ModifiedAt    time.Time  `json:"modified_at"`
}

// IsRoot reports whether the page has no parent
func (p *Page) IsRoot() bool {
	return p.ParentUID == ""
}

// IsOnline reports whether the page is published
func (p *Page) IsOnline() bool {
	return p.State.Has(PageOnline)
}

// IsDeleted reports whether the page is in the trash
func (p *Page) IsDeleted() bool {
	return p.State.Has(PageDeleted)
}

// ApplySchedule clears a publishing or archiving date that passed by now and
// switches the Online bit accordingly. Deleted pages are left alone.
func (p *Page) ApplySchedule(now time.Time) (changed, published, archived bool) {
	if p.IsDeleted() {
		return false, false, false
	}
	if p.Publishing != nil && !now.Before(*p.Publishing) {
		p.Publishing = nil
		changed = true
		if !p.IsOnline() {
			p.State = p.State.With(PageOnline, true)
			published = true
		}
	}
	if p.Archiving != nil && !now.Before(*p.Archiving) {
		p.Archiving = nil
		changed = true
		if p.IsOnline() {
			p.State = p.State.With(PageOnline, false)
			archived = true
		}
	}
	if changed {
		p.ModifiedAt = now
	}
	return changed, published, archived
}

// ContentType declares a kind of content block
type ContentType struct {
	Name        string            `json:"name" yaml:"name"`
	Category    string            `json:"category,omitempty" yaml:"category"`
	Label       string            `json:"label,omitempty" yaml:"label"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Set         bool              `json:"set,omitempty" yaml:"set"`
	Accept      []string          `json:"accept,omitempty" yaml:"accept"`
	MaxEntry    int               `json:"maxentry,omitempty" yaml:"maxentry"`
	Elements    map[string]string `json:"elements,omitempty" yaml:"elements"`
	Params      map[string]any    `json:"params,omitempty" yaml:"params"`
}

// ItemRef is an entry of a serialized content set
type ItemRef struct {
	NodeType string `json:"nodeType" validate:"required"`
	UID      string `json:"uid" validate:"required"`
}

// SerializedContent is the wire form of a content exchanged with editors.
// Data maps element names to UIDs for composite contents; for sets Items
// lists the children in order.
type SerializedContent struct {
	UID          string            `json:"uid" validate:"required"`
	Type         string            `json:"type" validate:"required"`
	Label        *string           `json:"label,omitempty"`
	Value        *string           `json:"value,omitempty"`
	IsContentSet bool              `json:"isAContentSet,omitempty"`
	Accept       map[string]string `json:"accept,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Items        []ItemRef         `json:"items,omitempty" validate:"omitempty,dive"`
	Params       map[string]any    `json:"param,omitempty"`
	Revision     int               `json:"revision,omitempty"`
	State        string            `json:"state,omitempty"`
	Draft        *DraftInfo        `json:"draft,omitempty"`
}

// DraftInfo summarizes the draft attached to a serialized content
type DraftInfo struct {
	UID       string   `json:"uid"`
	State     string   `json:"state"`
	Base      int      `json:"base"`
	Conflicts []string `json:"conflicts,omitempty"`
}
