package rewriting

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// Site binds a host pattern to the root page of a tree. Patterns are exact
// host names or wildcards such as "*.example.com"; an empty pattern matches
// every host.
type Site struct {
	Host    string `mapstructure:"host" yaml:"host"`
	RootUID string `mapstructure:"root" yaml:"root"`
}

// TreeLookup is the read side of the store used by the router
type TreeLookup interface {
	GetPageByURL(rootUID, url string) (*types.Page, error)
	ListPages() ([]*types.Page, error)
}

// Router resolves request host and path to a page
type Router struct {
	mu    sync.RWMutex
	sites []Site
	pages TreeLookup
}

// NewRouter creates a router. Without sites, requests resolve against the
// oldest root page.
func NewRouter(sites []Site, pages TreeLookup) *Router {
	return &Router{
		sites: sites,
		pages: pages,
	}
}

// Route finds the page for host and path. Deleted pages are never returned.
func (r *Router) Route(host, path string) (*types.Page, error) {
	root, err := r.rootFor(host)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates(path) {
		page, err := r.pages.GetPageByURL(root, candidate)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if page.IsDeleted() {
			break
		}
		return page, nil
	}
	return nil, fmt.Errorf("page %s%s: %w", host, path, storage.ErrNotFound)
}

// candidates lists the URLs tried for a path: as given, then with the
// trailing slash toggled.
func candidates(path string) []string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "/" {
		return []string{path}
	}
	if strings.HasSuffix(path, "/") {
		return []string{path, strings.TrimRight(path, "/")}
	}
	return []string{path, path + "/"}
}

func (r *Router) rootFor(host string) (string, error) {
	r.mu.RLock()
	sites := r.sites
	r.mu.RUnlock()

	for _, site := range sites {
		if matchHost(site.Host, host) {
			return site.RootUID, nil
		}
	}

	pages, err := r.pages.ListPages()
	if err != nil {
		return "", err
	}
	roots := slices.DeleteFunc(pages, func(p *types.Page) bool {
		return !p.IsRoot() || p.IsDeleted()
	})
	if len(roots) == 0 {
		return "", fmt.Errorf("root page for %s: %w", host, storage.ErrNotFound)
	}
	slices.SortFunc(roots, func(a, b *types.Page) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return roots[0].UID, nil
}

// matchHost reports whether host, port included or not, falls under pattern.
// Configured hosts come lowercased from the config file, so case is ignored.
func matchHost(pattern, host string) bool {
	if pattern == "" {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)

	if wildcard, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasPrefix(wildcard, ".") && strings.HasSuffix(host, wildcard)
	}
	return pattern == host
}

// UpdateSites replaces the host bindings
func (r *Router) UpdateSites(sites []Site) {
	r.mu.Lock()
	r.sites = sites
	r.mu.Unlock()
}
