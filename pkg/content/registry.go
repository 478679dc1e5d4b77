package content

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/strata/pkg/types"
)

// Built-in content type names
const (
	TypeContentSet = "ContentSet"
	TypeText       = "Element/Text"
	TypeImage      = "Element/Image"
	TypeLink       = "Element/Link"
	TypeParagraph  = "Paragraph"
	TypeArticle    = "Article"
	TypePageList   = "PageList"
)

// CategoryAll lists every category in ByCategory
const CategoryAll = "all"

func builtins() []types.ContentType {
	return []types.ContentType{
		{Name: TypeContentSet, Label: "Content set", Set: true},
		{Name: TypeText, Label: "Text", Category: "Elements"},
		{Name: TypeImage, Label: "Image", Category: "Elements", Params: map[string]any{"width": 0, "height": 0, "alt": ""}},
		{Name: TypeLink, Label: "Link", Category: "Elements", Params: map[string]any{"target": "_self"}},
		{
			Name:     TypeParagraph,
			Label:    "Paragraph",
			Category: "Text",
			Elements: map[string]string{"body": TypeText},
		},
		{
			Name:     TypeArticle,
			Label:    "Article",
			Category: "Article",
			Elements: map[string]string{"title": TypeText, "body": TypeText, "image": TypeImage},
			Params:   map[string]any{"indexation": true},
		},
		{
			Name:        TypePageList,
			Label:       "Page list",
			Category:    "Navigation",
			Description: "Lists the children of the selected pages",
			Params:      map[string]any{"selector": map[string]any{"parentnode": []any{}}, "limit": 10},
		},
	}
}

// Registry holds the known content types
type Registry struct {
	mu    sync.RWMutex
	types map[string]types.ContentType
}

// NewRegistry returns a registry preloaded with the built-in types
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]types.ContentType)}
	for _, ct := range builtins() {
		r.types[ct.Name] = ct
	}
	return r
}

// Register adds or replaces a content type
func (r *Registry) Register(ct types.ContentType) error {
	if ct.Name == "" {
		return fmt.Errorf("content type name is required")
	}
	if ct.Set && len(ct.Elements) > 0 {
		return fmt.Errorf("content type %s cannot be a set and declare elements", ct.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, typ := range ct.Elements {
		if typ == "" {
			continue
		}
		if _, ok := r.types[typ]; !ok && typ != ct.Name {
			return fmt.Errorf("%w: element %q of %s uses %s", ErrUnknownType, name, ct.Name, typ)
		}
	}
	r.types[ct.Name] = ct
	return nil
}

type registryFile struct {
	ContentTypes []types.ContentType `yaml:"contentTypes"`
}

// Load registers the content types of a YAML document
func (r *Registry) Load(in io.Reader) error {
	var f registryFile
	if err := yaml.NewDecoder(in).Decode(&f); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode content types: %w", err)
	}
	for _, ct := range f.ContentTypes {
		if err := r.Register(ct); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile registers the content types of a YAML file
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open content types: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

// Get returns the named content type
func (r *Registry) Get(name string) (*types.ContentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.types[name]
	if !ok {
		return nil, false
	}
	return &ct, true
}

// Categories returns the sorted list of non-empty categories
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, ct := range r.types {
		if ct.Category != "" {
			seen[ct.Category] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// ByCategory returns the content types of a category sorted by name.
// CategoryAll returns every categorized type.
func (r *Registry) ByCategory(category string) []types.ContentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.ContentType
	for _, ct := range r.types {
		if ct.Category == "" {
			continue
		}
		if category == CategoryAll || ct.Category == category {
			out = append(out, ct)
		}
	}
	slices.SortFunc(out, func(a, b types.ContentType) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// DefaultPayload returns the payload a fresh content of the type starts with
func (r *Registry) DefaultPayload(typ string) (types.Payload, error) {
	ct, ok := r.Get(typ)
	if !ok {
		return types.Payload{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	p := types.Payload{
		Label:    ct.Label,
		Accept:   slices.Clone(ct.Accept),
		MaxEntry: ct.MaxEntry,
	}
	if len(ct.Params) > 0 {
		p.Params = normalizeParams(ct.Params)
	}
	return p, nil
}

// DefaultParams returns a copy of the default parameters of a type, numbers
// decoded as float64 like every stored payload
func (r *Registry) DefaultParams(typ string) map[string]any {
	ct, ok := r.Get(typ)
	if !ok || len(ct.Params) == 0 {
		return map[string]any{}
	}
	return normalizeParams(ct.Params)
}

// NewContent creates a never committed content of the type
func (r *Registry) NewContent(typ, uid string, now time.Time) (*types.Content, error) {
	p, err := r.DefaultPayload(typ)
	if err != nil {
		return nil, err
	}
	return &types.Content{
		UID:        uid,
		Type:       typ,
		State:      types.ContentStateNew,
		Payload:    p,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// Wrap wraps a content with its registered definition
func (r *Registry) Wrap(c *types.Content) (*Entity, error) {
	ct, ok := r.Get(c.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, c.Type)
	}
	return Wrap(c, ct), nil
}
