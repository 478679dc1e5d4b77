package rewriting

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 4, 7, 9, 5, 3, 0, time.UTC)

type fakePages map[string]*types.Page

func (f fakePages) GetPage(uid string) (*types.Page, error) {
	if p, ok := f[uid]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("page %s: %w", uid, storage.ErrNotFound)
}

func (f fakePages) GetPageByURL(rootUID, url string) (*types.Page, error) {
	for _, p := range f {
		if p.RootUID == rootUID && p.URL == url {
			return p, nil
		}
	}
	return nil, fmt.Errorf("url %s: %w", url, storage.ErrNotFound)
}

func (f fakePages) ListPages() ([]*types.Page, error) {
	out := make([]*types.Page, 0, len(f))
	for _, p := range f {
		out = append(out, p)
	}
	return out, nil
}

type fakeContent struct {
	typ    string
	fields map[string]string
}

func (c fakeContent) Type() string             { return c.typ }
func (c fakeContent) Field(name string) string { return c.fields[name] }

func tree() fakePages {
	return fakePages{
		"root": {UID: "root", Title: "Home", URL: "/", RootUID: "root", CreatedAt: created},
		"news": {UID: "news", Title: "News", URL: "/news", ParentUID: "root", RootUID: "root", CreatedAt: created},
	}
}

func TestGenerateSchemes(t *testing.T) {
	cfg := Config{
		Schemes: Schemes{
			Root:    "/",
			Default: "$parent/$title",
			Content: map[string]string{"Article": "$parent/$date/$content->title"},
		},
	}

	tests := []struct {
		name string
		page *types.Page
		main Content
		want string
	}{
		{
			name: "root",
			page: &types.Page{UID: "r2", Title: "Other", RootUID: "r2", CreatedAt: created},
			want: "/",
		},
		{
			name: "default under root",
			page: &types.Page{UID: "p1", Title: "About Us", ParentUID: "root", RootUID: "root", CreatedAt: created},
			want: "/about-us",
		},
		{
			name: "default nested",
			page: &types.Page{UID: "p2", Title: "Élection 2026", ParentUID: "news", RootUID: "root", CreatedAt: created},
			want: "/news/election-2026",
		},
		{
			name: "content scheme",
			page: &types.Page{UID: "p3", Title: "ignored", ParentUID: "news", RootUID: "root", CreatedAt: created},
			main: fakeContent{typ: "Article", fields: map[string]string{"title": "Big Story"}},
			want: "/news/260407/big-story",
		},
		{
			name: "content without scheme falls back",
			page: &types.Page{UID: "p4", Title: "Plain", ParentUID: "root", RootUID: "root", CreatedAt: created},
			main: fakeContent{typ: "Paragraph"},
			want: "/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(cfg, tree())
			url, err := g.Generate(tt.page, tt.main, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, url)
		})
	}
}

func TestGenerateParams(t *testing.T) {
	cfg := Config{Schemes: Schemes{Default: "/$uid/$datetime/$time/$date"}}
	page := &types.Page{UID: "p1", ParentUID: "root", RootUID: "root", CreatedAt: created}

	url, err := NewGenerator(cfg, tree()).Generate(page, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/p1/2604070905/090503/260407", url)
}

func TestGenerateMissingScheme(t *testing.T) {
	page := &types.Page{UID: "p1", ParentUID: "root", RootUID: "root"}
	g := NewGenerator(Config{}, tree())

	_, err := g.Generate(page, nil, true)
	assert.ErrorIs(t, err, ErrMissingScheme)

	url, err := g.Generate(page, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "/p1", url)
}

func TestGeneratePreserveOnline(t *testing.T) {
	page := &types.Page{UID: "p1", Title: "New title", URL: "/old", State: types.PageOnline, ParentUID: "root", RootUID: "root"}

	url, err := NewGenerator(Config{PreserveOnline: true, Schemes: Schemes{Default: "$parent/$title"}}, tree()).Generate(page, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/old", url)

	url, err = NewGenerator(Config{Schemes: Schemes{Default: "$parent/$title"}}, tree()).Generate(page, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/new-title", url)
}

func TestGeneratePreserveUnicity(t *testing.T) {
	pages := tree()
	pages["a"] = &types.Page{UID: "a", URL: "/news/dup", ParentUID: "news", RootUID: "root"}
	pages["b"] = &types.Page{UID: "b", URL: "/news/dup-1", ParentUID: "news", RootUID: "root"}
	pages["gone"] = &types.Page{UID: "gone", URL: "/news/trash", State: types.PageDeleted, ParentUID: "news", RootUID: "root"}

	cfg := Config{PreserveUnicity: true, Schemes: Schemes{Default: "$parent/$title"}}
	g := NewGenerator(cfg, pages)

	url, err := g.Generate(&types.Page{UID: "c", Title: "Dup", ParentUID: "news", RootUID: "root"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/news/dup-2", url)

	pages["a"].Title = "Dup"
	url, err = g.Generate(pages["a"], nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/news/dup", url, "a page does not collide with itself")

	url, err = g.Generate(&types.Page{UID: "d", Title: "Trash", ParentUID: "news", RootUID: "root"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/news/trash", url, "deleted pages release their URL")

	cfg.PreserveUnicity = false
	url, err = NewGenerator(cfg, pages).Generate(&types.Page{UID: "c", Title: "Dup", ParentUID: "news", RootUID: "root"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "/news/dup", url)
}

func TestHasContentScheme(t *testing.T) {
	g := NewGenerator(Config{Schemes: Schemes{Content: map[string]string{"Article": "/$title"}}}, tree())
	assert.True(t, g.HasContentScheme("Article"))
	assert.False(t, g.HasContentScheme("Paragraph"))
}

func TestContentSchemeKeysIgnoreCase(t *testing.T) {
	g := NewGenerator(Config{Schemes: Schemes{Content: map[string]string{"article": "/$title"}}}, tree())
	assert.True(t, g.HasContentScheme("Article"))
}
