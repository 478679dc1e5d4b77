package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// ContentRequest asks for the render and serialized form of one content.
// Serialized, when set, is applied on top of the user's draft before
// rendering and is not saved.
type ContentRequest struct {
	Type       string                   `json:"type" validate:"required"`
	UID        string                   `json:"uid" validate:"required"`
	Serialized *types.SerializedContent `json:"serializedContent,omitempty"`
}

// ContentData is the answer to a ContentRequest
type ContentData struct {
	Type       string                   `json:"type"`
	UID        string                   `json:"uid"`
	Label      string                   `json:"label"`
	Category   string                   `json:"category,omitempty"`
	Render     string                   `json:"render"`
	Serialized *types.SerializedContent `json:"serialized"`
}

// Find returns the committed serialized form of a content
func (s *Service) Find(ctx context.Context, typ, uid string) (*types.SerializedContent, error) {
	_, end := s.start(ctx, "find", "")
	c, err := s.store.GetContent(uid)
	if err == nil && (c.State == types.ContentStateDeleted || (typ != "" && c.Type != typ)) {
		err = fmt.Errorf("content %s of type %s: %w", uid, typ, storage.ErrNotFound)
	}
	if err != nil {
		end(err)
		return nil, fmt.Errorf("unable to find content %s: %w", uid, err)
	}

	e, err := s.registry.Wrap(c)
	end(err)
	if err != nil {
		return nil, err
	}
	return Serialize(e), nil
}

// Update applies a batch of serialized contents for user. Contents
// referencing each other inside the batch are linked, new ones are created
// and every touched content gets a draft. Everything is written at once.
func (s *Service) Update(ctx context.Context, user string, batch []*types.SerializedContent) (err error) {
	ctx, end := s.start(ctx, "update", user)
	defer func() { end(err) }()

	if err := requireUser(user); err != nil {
		return err
	}
	if len(batch) == 0 {
		return invalid("update data can't be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.newUnit(ctx, user)
	for _, sc := range batch {
		if sc == nil || sc.UID == "" {
			return invalid("an uid has to be provided")
		}
		u.input[sc.UID] = sc
	}
	for _, sc := range batch {
		if _, err := u.process(sc); err != nil {
			return err
		}
	}

	if err := u.flush(); err != nil {
		return err
	}
	lg := log.WithUser(s.logger, user)
	lg.Debug().Int("contents", u.processed.Size()).Msg("Contents updated")
	return nil
}

// overlay applies the scalar fields of sc to a content as the user sees it,
// without creating a draft. Nothing is saved.
func (u *unit) overlay(typ, uid string, sc *types.SerializedContent) (*content.Entity, error) {
	t, err := u.getOrCreate(typ, uid)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		unserialize(t.e, sc)
	}
	return t.e, nil
}

func (s *Service) page(uid string) (*types.Page, error) {
	if uid == "" {
		return nil, nil
	}
	p, err := s.store.GetPage(uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// RenderContent renders a variant of a content over the user's draft. The
// variant is discarded afterwards.
func (s *Service) RenderContent(ctx context.Context, user, mode string, sc *types.SerializedContent, pageUID string) (_ string, err error) {
	ctx, end := s.start(ctx, "render", user)
	defer func() { end(err) }()

	if sc == nil {
		return "", invalid("content can't be null")
	}
	if sc.UID == "" || sc.Type == "" {
		return "", invalid("an uid and a type must be provided")
	}

	u := s.newUnit(ctx, user)
	e, err := u.overlay(sc.Type, sc.UID, sc)
	if err != nil {
		return "", err
	}
	page, err := s.page(pageUID)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(ctx, u, e, mode, page)
}

// ContentsData renders and serializes each requested content
func (s *Service) ContentsData(ctx context.Context, user, mode string, requests []ContentRequest, pageUID string) (_ []ContentData, err error) {
	ctx, end := s.start(ctx, "contents_data", user)
	defer func() { end(err) }()

	page, err := s.page(pageUID)
	if err != nil {
		return nil, err
	}

	u := s.newUnit(ctx, user)
	result := make([]ContentData, 0, len(requests))
	for _, req := range requests {
		if err := s.validate.Struct(req); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		def, ok := s.registry.Get(req.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidPayload, content.ErrUnknownType, req.Type)
		}

		e, err := u.overlay(req.Type, req.UID, req.Serialized)
		if err != nil {
			return nil, err
		}
		out, err := s.renderer.Render(ctx, u, e, mode, page)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", req.UID, err)
		}
		result = append(result, ContentData{
			Type:       req.Type,
			UID:        req.UID,
			Label:      def.Label,
			Category:   def.Category,
			Render:     out,
			Serialized: Serialize(e),
		})
	}
	return result, nil
}

// Parameters returns the parameters of a content as the user sees them,
// completed with the defaults of its type. Pages selected by a
// selector.parentnode parameter get their titles listed in
// selector.parentnodeTitle.
func (s *Service) Parameters(ctx context.Context, user, typ, uid string) (_ map[string]any, err error) {
	ctx, end := s.start(ctx, "parameters", user)
	defer func() { end(err) }()

	if typ == "" || uid == "" {
		return nil, invalid("content type and uid can't be empty")
	}

	u := s.newUnit(ctx, user)
	e, err := u.overlay(typ, uid, nil)
	if err != nil {
		return nil, err
	}

	params := s.registry.DefaultParams(typ)
	for key, value := range e.Params() {
		params[key] = value
	}

	if selector, ok := params["selector"].(map[string]any); ok {
		if nodes, ok := selector["parentnode"].([]any); ok && len(nodes) > 0 {
			titles := make([]any, len(nodes))
			for i, node := range nodes {
				titles[i] = ""
				uid, _ := node.(string)
				if p, err := s.store.GetPage(uid); err == nil {
					titles[i] = p.Title
				}
			}
			selector["parentnodeTitle"] = titles
		}
	}

	delete(params, "indexation")
	return params, nil
}

// ContentsByCategory lists the content types of a category. An empty name
// or "all" lists every category.
func (s *Service) ContentsByCategory(name string) []types.ContentType {
	if name == "" {
		name = content.CategoryAll
	}
	return s.registry.ByCategory(name)
}

// Categories lists the content type categories
func (s *Service) Categories() []string {
	return s.registry.Categories()
}
