package rewriting

import (
	"testing"
	"time"

	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRouterHostMatching tests host pattern matching
func TestRouterHostMatching(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		host     string
		expected bool
	}{
		{name: "exact match", pattern: "example.com", host: "example.com", expected: true},
		{name: "exact match with port", pattern: "example.com", host: "example.com:8080", expected: true},
		{name: "exact mismatch", pattern: "example.com", host: "other.com", expected: false},
		{name: "wildcard match subdomain", pattern: "*.example.com", host: "api.example.com", expected: true},
		{name: "wildcard match nested subdomain", pattern: "*.example.com", host: "api.v1.example.com", expected: true},
		{name: "wildcard no match root", pattern: "*.example.com", host: "example.com", expected: false},
		{name: "empty pattern matches all", pattern: "", host: "anything.org", expected: true},
		{name: "case is ignored", pattern: "blog.example.com", host: "Blog.Example.COM", expected: true},
		{name: "ipv6 host with port", pattern: "::1", host: "[::1]:8080", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchHost(tt.pattern, tt.host))
		})
	}
}

func TestRouterRoute(t *testing.T) {
	pages := tree()
	pages["blog"] = &types.Page{UID: "blog", URL: "/", RootUID: "blog", CreatedAt: created.Add(time.Hour)}
	pages["post"] = &types.Page{UID: "post", URL: "/first/", ParentUID: "blog", RootUID: "blog"}
	pages["gone"] = &types.Page{UID: "gone", URL: "/gone", State: types.PageDeleted, ParentUID: "root", RootUID: "root"}

	r := NewRouter([]Site{{Host: "blog.example.com", RootUID: "blog"}}, pages)

	tests := []struct {
		name string
		host string
		path string
		want string
	}{
		{name: "default tree home", host: "example.com", path: "/", want: "root"},
		{name: "empty path", host: "example.com", path: "", want: "root"},
		{name: "exact", host: "example.com", path: "/news", want: "news"},
		{name: "trailing slash tolerated", host: "example.com", path: "/news/", want: "news"},
		{name: "bound host", host: "blog.example.com:443", path: "/", want: "blog"},
		{name: "missing slash tolerated", host: "blog.example.com", path: "/first", want: "post"},
		{name: "deleted page", host: "example.com", path: "/gone"},
		{name: "unknown", host: "example.com", path: "/nowhere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := r.Route(tt.host, tt.path)
			if tt.want == "" {
				assert.ErrorIs(t, err, storage.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.UID)
		})
	}
}

func TestRouterNoRoot(t *testing.T) {
	r := NewRouter(nil, fakePages{})
	_, err := r.Route("example.com", "/")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	r.UpdateSites([]Site{{RootUID: "x"}})
	_, err = r.Route("example.com", "/")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
