package editor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// CreatePageRequest describes a new page
type CreatePageRequest struct {
	// UID is generated when empty
	UID        string          `json:"uid,omitempty"`
	Title      string          `json:"title" validate:"required"`
	ParentUID  string          `json:"parent_uid,omitempty"`
	Layout     types.Layout    `json:"layout" validate:"required"`
	State      types.PageState `json:"state" validate:"min=0,max=7"`
	Publishing *time.Time      `json:"publishing,omitempty"`
	Archiving  *time.Time      `json:"archiving,omitempty"`
}

// UpdatePageRequest changes a page. Nil fields are left alone; a zero
// Publishing or Archiving time clears the schedule.
type UpdatePageRequest struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,min=1"`
	State       *types.PageState `json:"state,omitempty" validate:"omitempty,min=0,max=7"`
	Publishing  *time.Time       `json:"publishing,omitempty"`
	Archiving   *time.Time       `json:"archiving,omitempty"`
	MainContent *types.Ref       `json:"main_content,omitempty"`
}

// ZoneResult is the answer of zone link and unlink
type ZoneResult struct {
	UID    string `json:"newContentUid"`
	Render string `json:"render"`
}

// LinkedZones tells which zones of a page are main zones and which still
// share the content set of the parent page
type LinkedZones struct {
	MainZones   []int `json:"mainZones"`
	LinkedZones []int `json:"linkedZones"`
}

// newCommitted creates a content committed at revision 1 and adds it and its
// history record to b
func (s *Service) newCommitted(b *storage.Batch, user string, edit func(p *types.Payload)) (*types.Content, error) {
	now := s.now()
	c, err := s.registry.NewContent(content.TypeContentSet, uuid.New().String(), now)
	if err != nil {
		return nil, err
	}
	c.Owner = user
	d := content.Checkout(c, user, now)
	if edit != nil {
		edit(&d.Payload)
	}
	if err := content.Commit(c, d, "page structure", now); err != nil {
		return nil, err
	}
	b.PutContent(c)
	b.PutRevision(d)
	return c, nil
}

// CreatePage creates a page with its root content set and one content set
// per layout zone. Inherited zones share the content set of the parent page
// at the same position.
func (s *Service) CreatePage(ctx context.Context, user string, req CreatePageRequest) (_ *types.Page, err error) {
	_, end := s.start(ctx, "create_page", user)
	defer func() { end(err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(req.Layout.Zones) == 0 {
		return nil, invalid("layout %s has no zone", req.Layout.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	page := &types.Page{
		UID:        req.UID,
		Title:      req.Title,
		State:      req.State.With(types.PageDeleted, false),
		ParentUID:  req.ParentUID,
		Layout:     req.Layout,
		Publishing: req.Publishing,
		Archiving:  req.Archiving,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if page.UID == "" {
		page.UID = uuid.New().String()
	} else if _, err := s.store.GetPage(page.UID); err == nil {
		return nil, invalid("page %s already exists", page.UID)
	}
	page.RootUID = page.UID

	var parentZones []types.Ref
	if req.ParentUID != "" {
		parent, err := s.store.GetPage(req.ParentUID)
		if err != nil {
			return nil, fmt.Errorf("unable to find parent page %s: %w", req.ParentUID, err)
		}
		if parent.IsDeleted() {
			return nil, invalid("parent page %s is deleted", parent.UID)
		}
		page.RootUID = parent.RootUID
		if parentZones, err = s.zonesOf(parent); err != nil {
			return nil, err
		}
	}

	b := &storage.Batch{}
	zones := make([]types.Ref, 0, len(req.Layout.Zones))
	for i, zone := range req.Layout.Zones {
		if zone.Inherited && i < len(parentZones) {
			zones = append(zones, parentZones[i])
			continue
		}
		c, err := s.newCommitted(b, user, func(p *types.Payload) {
			p.Label = zone.Name
			p.Accept = slices.Clone(zone.Accept)
			p.MaxEntry = zone.MaxEntry
		})
		if err != nil {
			return nil, err
		}
		zones = append(zones, c.Ref())
	}
	root, err := s.newCommitted(b, user, func(p *types.Payload) {
		p.Label = page.Title
		p.Items = zones
	})
	if err != nil {
		return nil, err
	}
	page.ContentSetUID = root.UID

	if page.URL, err = s.generator.Generate(page, nil, false); err != nil {
		return nil, err
	}
	b.PutPage(page)
	if err := s.apply(b); err != nil {
		return nil, err
	}

	lg := log.WithUser(log.WithPageUID(s.logger, page.UID), user)
	lg.Info().Str("url", page.URL).Msg("Page created")
	s.publish(events.EventPageCreated, fmt.Sprintf("page %s created", page.URL), pageMetadata(page))
	return page, nil
}

func pageMetadata(p *types.Page) map[string]string {
	return map[string]string{
		"page_uid": p.UID,
		"root_uid": p.RootUID,
		"url":      p.URL,
	}
}

// zonesOf returns the committed zone sets of a page
func (s *Service) zonesOf(p *types.Page) ([]types.Ref, error) {
	c, err := s.store.GetContent(p.ContentSetUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load content set of page %s: %w", p.UID, err)
	}
	return c.Payload.Items, nil
}

// GetPage returns a page
func (s *Service) GetPage(ctx context.Context, uid string) (*types.Page, error) {
	p, err := s.store.GetPage(uid)
	if err != nil {
		return nil, fmt.Errorf("unable to find page %s: %w", uid, err)
	}
	return p, nil
}

// ListPages lists the children of a page, or every page when parentUID is
// empty, ordered by URL
func (s *Service) ListPages(ctx context.Context, parentUID string) ([]*types.Page, error) {
	var (
		pages []*types.Page
		err   error
	)
	if parentUID == "" {
		pages, err = s.store.ListPages()
	} else {
		pages, err = s.store.ListChildPages(parentUID)
	}
	if err != nil {
		return nil, err
	}
	slices.SortFunc(pages, func(a, b *types.Page) int {
		if n := cmp.Compare(a.URL, b.URL); n != 0 {
			return n
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return pages, nil
}

// UpdatePage changes the title, state, schedule or main content of a page and
// regenerates its URL
func (s *Service) UpdatePage(ctx context.Context, user, uid string, req UpdatePageRequest) (_ *types.Page, err error) {
	ctx, end := s.start(ctx, "update_page", user)
	defer func() { end(err) }()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPage(uid)
	if err != nil {
		return nil, fmt.Errorf("unable to find page %s: %w", uid, err)
	}
	if p.IsDeleted() {
		return nil, invalid("page %s is deleted", uid)
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.State != nil {
		p.State = req.State.With(types.PageDeleted, false)
	}
	if req.Publishing != nil {
		p.Publishing = schedule(*req.Publishing)
	}
	if req.Archiving != nil {
		p.Archiving = schedule(*req.Archiving)
	}

	var main *mainContent
	if req.MainContent != nil {
		if req.MainContent.IsZero() {
			p.MainContent = nil
		} else {
			ref := *req.MainContent
			p.MainContent = &ref
		}
	}
	if p.MainContent != nil {
		u := s.newUnit(ctx, user)
		t, err := u.get(p.MainContent.UID)
		if err != nil {
			return nil, fmt.Errorf("unable to find main content of page %s: %w", uid, err)
		}
		p.MainContent.Type = t.e.Type()
		main = &mainContent{e: t.e, load: func(ref types.Ref) (*content.Entity, error) { return u.Load(ctx, ref) }}
	}

	if main != nil {
		p.URL, err = s.generator.Generate(p, main, false)
	} else {
		p.URL, err = s.generator.Generate(p, nil, false)
	}
	if err != nil {
		return nil, err
	}
	p.ModifiedAt = s.now()

	if err := s.apply(&storage.Batch{Pages: []*types.Page{p}}); err != nil {
		return nil, err
	}
	s.publish(events.EventPageUpdated, fmt.Sprintf("page %s updated", p.URL), pageMetadata(p))
	return p, nil
}

func schedule(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// DeletePage moves a page and its descendants to the trash
func (s *Service) DeletePage(ctx context.Context, user, uid string) (err error) {
	_, end := s.start(ctx, "delete_page", user)
	defer func() { end(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPage(uid)
	if err != nil {
		return fmt.Errorf("unable to find page %s: %w", uid, err)
	}

	now := s.now()
	b := &storage.Batch{}
	queue := []*types.Page{p}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if !next.IsDeleted() {
			next.State = next.State.With(types.PageDeleted, true).With(types.PageOnline, false)
			next.ModifiedAt = now
			b.PutPage(next)
		}
		children, err := s.store.ListChildPages(next.UID)
		if err != nil {
			return err
		}
		queue = append(queue, children...)
	}
	if err := s.apply(b); err != nil {
		return err
	}

	for _, deleted := range b.Pages {
		s.publish(events.EventPageDeleted, fmt.Sprintf("page %s deleted", deleted.URL), pageMetadata(deleted))
	}
	lg := log.WithPageUID(s.logger, uid)
	lg.Info().Int("pages", len(b.Pages)).Msg("Page deleted")
	return nil
}

// rootSet checks out the user's draft of the page content set and finds the
// position of a zone in it
func (u *unit) rootSet(p *types.Page, zoneUID string) (*content.Set, int, error) {
	t, err := u.edit(content.TypeContentSet, p.ContentSetUID)
	if err != nil {
		return nil, 0, err
	}
	set, err := t.e.Set()
	if err != nil {
		return nil, 0, err
	}
	i := set.IndexOf(zoneUID)
	if i < 0 {
		return nil, 0, invalid("content set %s is not a zone of page %s", zoneUID, p.UID)
	}
	return set, i, nil
}

// relinkDescendants replaces a zone in the root sets of the descendants of p
// that inherit it. A page holding another zone at that position stops the walk
// down its branch.
func (u *unit) relinkDescendants(p *types.Page, zoneUID string, ref types.Ref) (int, error) {
	relinked := 0
	queue := []*types.Page{p}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		children, err := u.s.store.ListChildPages(next.UID)
		if err != nil {
			return 0, fmt.Errorf("failed to list child pages of %s: %w", next.UID, err)
		}
		for _, child := range children {
			if child.IsDeleted() {
				continue
			}
			t, err := u.get(child.ContentSetUID)
			if err != nil {
				return 0, fmt.Errorf("failed to load content set of page %s: %w", child.UID, err)
			}
			view, err := t.e.Set()
			if err != nil {
				return 0, err
			}
			if view.IndexOf(zoneUID) < 0 {
				continue
			}
			set, _, err := u.rootSet(child, zoneUID)
			if err != nil {
				return 0, err
			}
			if _, err := set.Replace(zoneUID, ref); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
			relinked++
			queue = append(queue, child)
		}
	}
	return relinked, nil
}

// UnlinkZone gives a page its own empty copy of a zone it shares with its
// parent. Descendants inheriting the zone switch to the copy too. The content
// sets are changed in the user's drafts.
func (s *Service) UnlinkZone(ctx context.Context, user, pageUID, zoneUID string) (_ *ZoneResult, err error) {
	ctx, end := s.start(ctx, "unlink_zone", user)
	defer func() { end(err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}
	if pageUID == "" || zoneUID == "" {
		return nil, invalid("a content set and a page must be provided")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPage(pageUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find page %s: %w", pageUID, err)
	}

	u := s.newUnit(ctx, user)
	set, _, err := u.rootSet(p, zoneUID)
	if err != nil {
		return nil, err
	}
	zone, err := u.get(zoneUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find zone %s: %w", zoneUID, err)
	}

	clone, err := u.edit(content.TypeContentSet, uuid.New().String())
	if err != nil {
		return nil, err
	}
	clone.e.SetLabel(zone.e.Label())
	clone.e.SetAccept(zone.e.Accept())
	clone.e.SetMaxEntry(zone.e.MaxEntry())
	for key, value := range zone.e.Params() {
		clone.e.SetParam(key, value)
	}

	if _, err := set.Replace(zoneUID, clone.e.Ref()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	relinked, err := u.relinkDescendants(p, zoneUID, clone.e.Ref())
	if err != nil {
		return nil, err
	}
	if err := u.flush(); err != nil {
		return nil, err
	}
	lg := log.WithPageUID(s.logger, p.UID)
	lg.Debug().Str("zone", zoneUID).Int("descendants", relinked).Msg("Zone unlinked")

	out, err := s.renderer.Render(ctx, u, clone.e, "", p)
	if err != nil {
		return nil, err
	}
	return &ZoneResult{UID: clone.e.UID(), Render: out}, nil
}

// LinkZone makes a zone of a page share the content set of the parent page at
// the same position again
func (s *Service) LinkZone(ctx context.Context, user, pageUID, zoneUID string) (_ *ZoneResult, err error) {
	ctx, end := s.start(ctx, "link_zone", user)
	defer func() { end(err) }()

	if err := requireUser(user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPage(pageUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find page %s: %w", pageUID, err)
	}
	if p.IsRoot() {
		return nil, invalid("page %s has no parent to link to", pageUID)
	}
	parent, err := s.store.GetPage(p.ParentUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find parent page %s: %w", p.ParentUID, err)
	}

	u := s.newUnit(ctx, user)
	set, i, err := u.rootSet(p, zoneUID)
	if err != nil {
		return nil, err
	}
	parentSet, err := u.get(parent.ContentSetUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load content set of page %s: %w", parent.UID, err)
	}
	view, err := parentSet.e.Set()
	if err != nil {
		return nil, err
	}
	ref, ok := view.Item(i)
	if !ok {
		return nil, invalid("parent page %s has no zone at position %d", parent.UID, i)
	}

	if ref.UID != zoneUID {
		if _, err := set.Replace(zoneUID, ref); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if err := u.flush(); err != nil {
			return nil, err
		}
	}

	zone, err := u.get(ref.UID)
	if err != nil {
		return nil, err
	}
	out, err := s.renderer.Render(ctx, u, zone.e, "", p)
	if err != nil {
		return nil, err
	}
	return &ZoneResult{UID: ref.UID, Render: out}, nil
}

// LinkedZones reports the main zones of a page and the zones it shares with
// its parent, as the user sees them
func (s *Service) LinkedZones(ctx context.Context, user, pageUID string) (*LinkedZones, error) {
	result := &LinkedZones{MainZones: []int{}, LinkedZones: []int{}}
	if pageUID == "" {
		return result, nil
	}
	p, err := s.store.GetPage(pageUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find page %s: %w", pageUID, err)
	}
	for i, zone := range p.Layout.Zones {
		if zone.Main {
			result.MainZones = append(result.MainZones, i)
		}
	}
	if p.IsRoot() {
		return result, nil
	}

	parent, err := s.store.GetPage(p.ParentUID)
	if err != nil {
		return nil, fmt.Errorf("unable to find parent page %s: %w", p.ParentUID, err)
	}
	u := s.newUnit(ctx, user)
	mine, err := u.get(p.ContentSetUID)
	if err != nil {
		return nil, err
	}
	theirs, err := u.get(parent.ContentSetUID)
	if err != nil {
		return nil, err
	}
	a, err := mine.e.Set()
	if err != nil {
		return nil, err
	}
	b, err := theirs.e.Set()
	if err != nil {
		return nil, err
	}
	for i, ref := range a.All() {
		if other, ok := b.Item(i); ok && other.UID == ref.UID {
			result.LinkedZones = append(result.LinkedZones, i)
		}
	}
	return result, nil
}
