package rewriting

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/textutil"
	"github.com/cuemby/strata/pkg/types"
)

// ErrMissingScheme is returned by a strict Generate when no scheme applies
var ErrMissingScheme = errors.New("no rewriting scheme found")

// Scheme keys
const (
	SchemeRoot    = "_root_"
	SchemeDefault = "_default_"
	SchemeContent = "_content_"
)

// Schemes holds the URL patterns. Content maps a content type name to the
// pattern used for pages whose main content has that type.
type Schemes struct {
	Root    string            `mapstructure:"root" yaml:"root"`
	Default string            `mapstructure:"default" yaml:"default"`
	Content map[string]string `mapstructure:"content" yaml:"content"`
}

// Config configures URL generation
type Config struct {
	// PreserveOnline keeps the URL of online pages
	PreserveOnline bool
	// PreserveUnicity suffixes -1, -2... to URLs already used in the same tree
	PreserveUnicity bool
	Schemes         Schemes
}

// DefaultConfig returns the schemes used when nothing is configured
func DefaultConfig() Config {
	return Config{
		PreserveOnline:  true,
		PreserveUnicity: true,
		Schemes: Schemes{
			Root:    "/",
			Default: "$parent/$title",
		},
	}
}

// Content exposes the main content of a page to schemes. Field returns the
// textual value of an element or parameter, empty when unknown.
type Content interface {
	Type() string
	Field(name string) string
}

// PageLookup is the read side of the store used by the generator
type PageLookup interface {
	GetPage(uid string) (*types.Page, error)
	GetPageByURL(rootUID, url string) (*types.Page, error)
}

// Generator computes page URLs from schemes
type Generator struct {
	cfg   Config
	pages PageLookup
}

// NewGenerator creates a generator. Content scheme keys are matched without
// regard to case, as configuration files lowercase them.
func NewGenerator(cfg Config, pages PageLookup) *Generator {
	if len(cfg.Schemes.Content) > 0 {
		content := make(map[string]string, len(cfg.Schemes.Content))
		for typ, scheme := range cfg.Schemes.Content {
			content[strings.ToLower(typ)] = scheme
		}
		cfg.Schemes.Content = content
	}
	return &Generator{cfg: cfg, pages: pages}
}

// Config returns the generator configuration
func (g *Generator) Config() Config {
	return g.cfg
}

// HasContentScheme reports whether pages led by a content of typ get a
// dedicated scheme, meaning a change of that content may move the page.
func (g *Generator) HasContentScheme(typ string) bool {
	_, ok := g.cfg.Schemes.Content[strings.ToLower(typ)]
	return ok
}

// Generate returns the URL of page. main is the main content of the page and
// may be nil. When no scheme applies, strict returns ErrMissingScheme and
// non-strict falls back to "/<uid>".
func (g *Generator) Generate(page *types.Page, main Content, strict bool) (string, error) {
	if g.cfg.PreserveOnline && page.IsOnline() && page.URL != "" {
		return page.URL, nil
	}

	s := g.cfg.Schemes
	if page.IsRoot() && s.Root != "" {
		return g.generate(s.Root, page, main)
	}
	if main != nil {
		if scheme, ok := s.Content[strings.ToLower(main.Type())]; ok && scheme != "" {
			return g.generate(scheme, page, main)
		}
	}
	if s.Default != "" {
		return g.generate(s.Default, page, main)
	}

	if strict {
		return "", fmt.Errorf("%w for page %s", ErrMissingScheme, page.UID)
	}
	return "/" + page.UID, nil
}

var (
	contentParam = regexp.MustCompile(`\$content->([a-zA-Z]+)`)
	slashes      = regexp.MustCompile(`/+`)
)

func (g *Generator) generate(scheme string, page *types.Page, main Content) (string, error) {
	parent := ""
	if !page.IsRoot() {
		p, err := g.pages.GetPage(page.ParentUID)
		if err != nil {
			return "", fmt.Errorf("failed to load parent of %s: %w", page.UID, err)
		}
		parent = p.URL
	}

	url := contentParam.ReplaceAllStringFunc(scheme, func(m string) string {
		if main == nil {
			return ""
		}
		return textutil.Urlize(main.Field(contentParam.FindStringSubmatch(m)[1]))
	})

	// $datetime before $date so the shorter key does not eat the longer one
	url = strings.NewReplacer(
		"$parent", parent,
		"$uid", page.UID,
		"$title", textutil.Urlize(page.Title),
		"$datetime", page.CreatedAt.Format("0601021504"),
		"$date", page.CreatedAt.Format("060102"),
		"$time", page.CreatedAt.Format("150405"),
	).Replace(url)

	url = slashes.ReplaceAllString(url, "/")
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}

	if g.cfg.PreserveUnicity {
		return g.unique(page, url)
	}
	return url, nil
}

func (g *Generator) unique(page *types.Page, base string) (string, error) {
	url := base
	for n := 1; ; n++ {
		existing, err := g.pages.GetPageByURL(page.RootUID, url)
		if errors.Is(err, storage.ErrNotFound) {
			return url, nil
		}
		if err != nil {
			return "", err
		}
		if existing.UID == page.UID || existing.IsDeleted() {
			return url, nil
		}
		url = fmt.Sprintf("%s-%d", base, n)
	}
}
