package editor

import (
	"context"
	"fmt"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/render"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// committedLoader loads published data only: contents never committed and
// deleted ones do not exist for it
type committedLoader struct {
	s *Service
}

func (l committedLoader) Load(_ context.Context, ref types.Ref) (*content.Entity, error) {
	c, err := l.s.store.GetContent(ref.UID)
	if err != nil {
		return nil, err
	}
	if c.State != types.ContentStateCommitted {
		return nil, fmt.Errorf("content %s is %s: %w", ref.UID, c.State, storage.ErrNotFound)
	}
	return l.s.registry.Wrap(c)
}

// CommittedLoader returns the loader the public site renders with
func (s *Service) CommittedLoader() render.Loader {
	return committedLoader{s: s}
}

// RenderPage renders a page as user sees it. With no user the committed
// contents are rendered, as visitors see them.
func (s *Service) RenderPage(ctx context.Context, user string, page *types.Page, mode string) (_ string, err error) {
	ctx, end := s.start(ctx, "render_page", user)
	defer func() { end(err) }()

	if page == nil {
		return "", invalid("page can't be null")
	}
	if user == "" {
		return s.renderer.RenderPage(ctx, s.CommittedLoader(), page, mode)
	}
	return s.renderer.RenderPage(ctx, s.newUnit(ctx, user), page, mode)
}
