package render

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/textutil"
	"github.com/cuemby/strata/pkg/types"
	"github.com/rs/zerolog"
)

// Template names
const (
	DefaultTemplate = "default"
	PageTemplate    = "page"
)

// MaxDepth bounds nested rendering so reference cycles terminate
const MaxDepth = 32

// ErrNoTemplate is returned when neither a type template nor the default exists
var ErrNoTemplate = errors.New("no template")

//go:embed templates/*.tmpl
var builtin embed.FS

// Loader resolves content references. Editors load through their drafts,
// the public site loads committed data only.
type Loader interface {
	Load(ctx context.Context, ref types.Ref) (*content.Entity, error)
}

// PageSource lists pages for navigation templates
type PageSource interface {
	ListChildPages(parentUID string) ([]*types.Page, error)
}

// Renderer renders contents and pages through html/template
type Renderer struct {
	mu     sync.RWMutex
	tmpl   *template.Template
	base   *template.Template
	pages  PageSource
	logger zerolog.Logger
}

// New creates a renderer with the built-in templates
func New(pages PageSource) (*Renderer, error) {
	base, err := template.New("strata").Funcs(funcs).ParseFS(builtin, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in templates: %w", err)
	}
	// html/template refuses to clone a set that has executed, so base is
	// only ever cloned.
	tmpl, err := base.Clone()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		tmpl:   tmpl,
		base:   base,
		pages:  pages,
		logger: log.WithComponent("render"),
	}, nil
}

// LoadDir layers the *.tmpl files of dir over the built-in templates. A
// missing directory or an empty one resets to the built-ins.
func (r *Renderer) LoadDir(dir string) error {
	next, err := r.base.Clone()
	if err != nil {
		return err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		if _, err := next.ParseFiles(matches...); err != nil {
			return fmt.Errorf("failed to parse templates in %s: %w", dir, err)
		}
	} else if _, statErr := os.Stat(dir); statErr != nil && !os.IsNotExist(statErr) {
		return statErr
	}

	r.mu.Lock()
	r.tmpl = next
	r.mu.Unlock()

	r.logger.Debug().Str("dir", dir).Int("files", len(matches)).Msg("Templates loaded")
	return nil
}

func (r *Renderer) current() *template.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tmpl
}

// lookup picks <Type>.<mode>, then <Type>, then the default template
func lookup(t *template.Template, typ, mode string) (*template.Template, error) {
	names := []string{typ, DefaultTemplate}
	if mode != "" {
		names = slices.Insert(names, 0, typ+"."+mode)
	}
	for _, name := range names {
		if found := t.Lookup(name); found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoTemplate, typ)
}

// renderCtx is shared by every view of one render call
type renderCtx struct {
	ctx    context.Context
	r      *Renderer
	tmpl   *template.Template
	loader Loader
	mode   string
	page   *types.Page
}

// scope is implemented by the values templates receive
type scope interface {
	scope() (*renderCtx, int)
}

// View is the data a content template receives
type View struct {
	UID      string
	Type     string
	Label    string
	Value    string
	Revision int
	IsSet    bool
	Draft    bool
	Mode     string
	Params   map[string]any
	Elements map[string]types.Ref
	Items    []types.Ref
	Page     *types.Page

	rc    *renderCtx
	depth int
}

func (v View) scope() (*renderCtx, int) { return v.rc, v.depth }

// Zone is a rendered column of a page
type Zone struct {
	types.Zone
	Ref types.Ref
}

// PageView is the data the page template receives
type PageView struct {
	Page  *types.Page
	Mode  string
	Zones []Zone

	rc *renderCtx
}

func (v PageView) scope() (*renderCtx, int) { return v.rc, 0 }

func newView(rc *renderCtx, e *content.Entity, depth int) View {
	v := View{
		UID:      e.UID(),
		Type:     e.Type(),
		Label:    e.Label(),
		Value:    e.Value(),
		Revision: e.Revision(),
		IsSet:    e.IsSet(),
		Draft:    e.Overlaid(),
		Mode:     rc.mode,
		Params:   e.Params(),
		Elements: e.Elements(),
		Page:     rc.page,
		rc:       rc,
		depth:    depth,
	}
	if set, err := e.Set(); err == nil {
		v.Items = set.Refs()
	}
	return v
}

func (rc *renderCtx) execute(e *content.Entity, depth int) (template.HTML, error) {
	if depth > MaxDepth {
		return "", fmt.Errorf("render depth exceeded at %s", e.UID())
	}
	if e.Content().State == types.ContentStateDeleted {
		return "", nil
	}

	t, err := lookup(rc.tmpl, e.Type(), rc.mode)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, newView(rc, e, depth)); err != nil {
		return "", fmt.Errorf("failed to render %s %s: %w", e.Type(), e.UID(), err)
	}
	return template.HTML(buf.String()), nil
}

func (rc *renderCtx) renderRef(ref types.Ref, depth int) (template.HTML, error) {
	if ref.IsZero() {
		return "", nil
	}
	if err := rc.ctx.Err(); err != nil {
		return "", err
	}
	e, err := rc.loader.Load(rc.ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		lg := log.WithContentUID(rc.r.logger, ref.UID)
		lg.Debug().Msg("Skipping missing content")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rc.execute(e, depth)
}

// Render renders one content in mode. page gives templates their page
// context and may be nil.
func (r *Renderer) Render(ctx context.Context, loader Loader, e *content.Entity, mode string, page *types.Page) (string, error) {
	rc := &renderCtx{ctx: ctx, r: r, tmpl: r.current(), loader: loader, mode: mode, page: page}
	out, err := rc.execute(e, 0)
	return string(out), err
}

// RenderPage renders a page. The page content set holds one content set per
// layout zone, in layout order.
func (r *Renderer) RenderPage(ctx context.Context, loader Loader, page *types.Page, mode string) (string, error) {
	rc := &renderCtx{ctx: ctx, r: r, tmpl: r.current(), loader: loader, mode: mode, page: page}

	view := PageView{Page: page, Mode: mode, rc: rc}
	if page.ContentSetUID != "" {
		root, err := loader.Load(ctx, types.Ref{Type: content.TypeContentSet, UID: page.ContentSetUID})
		if err != nil {
			return "", fmt.Errorf("failed to load content set of page %s: %w", page.UID, err)
		}
		set, err := root.Set()
		if err != nil {
			return "", err
		}
		for i, zone := range page.Layout.Zones {
			ref, _ := set.Item(i)
			view.Zones = append(view.Zones, Zone{Zone: zone, Ref: ref})
		}
	}

	t, err := lookup(rc.tmpl, PageTemplate, mode)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render page %s: %w", page.UID, err)
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"render": func(s scope, ref types.Ref) (template.HTML, error) {
		rc, depth := s.scope()
		if rc == nil {
			return "", nil
		}
		return rc.renderRef(ref, depth+1)
	},
	"children": func(s scope, params map[string]any) []*types.Page {
		rc, _ := s.scope()
		if rc == nil {
			return nil
		}
		return rc.children(params)
	},
	"urlize": func(s string) string {
		return textutil.Urlize(s)
	},
	"truncate": func(n int, s string) string {
		return textutil.Truncate(s, n, "...", true)
	},
	"xml": func(s string) string {
		return textutil.ToXMLCompliant(s, true)
	},
}

// children lists the visible child pages of the selector parent nodes,
// defaulting to the current page.
func (rc *renderCtx) children(params map[string]any) []*types.Page {
	if rc.r.pages == nil {
		return nil
	}

	var parents []string
	if selector, ok := params["selector"].(map[string]any); ok {
		if nodes, ok := selector["parentnode"].([]any); ok {
			for _, n := range nodes {
				if uid, ok := n.(string); ok && uid != "" {
					parents = append(parents, uid)
				}
			}
		}
	}
	if len(parents) == 0 && rc.page != nil {
		parents = []string{rc.page.UID}
	}

	limit := 0
	switch l := params["limit"].(type) {
	case int:
		limit = l
	case float64:
		limit = int(l)
	}

	var out []*types.Page
	for _, parent := range parents {
		pages, err := rc.r.pages.ListChildPages(parent)
		if err != nil {
			lg := log.WithPageUID(rc.r.logger, parent)
			lg.Warn().Err(err).Msg("Failed to list child pages")
			continue
		}
		for _, p := range pages {
			if !p.IsOnline() || p.IsDeleted() || p.State.Has(types.PageHidden) {
				continue
			}
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
