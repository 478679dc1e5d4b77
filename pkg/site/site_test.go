package site

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRouter map[string]*types.Page

func (r fakeRouter) Route(host, path string) (*types.Page, error) {
	if p, ok := r[path]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("page %s: %w", path, storage.ErrNotFound)
}

type fakeRenderer struct {
	calls atomic.Int32
	body  atomic.Value
}

func (r *fakeRenderer) RenderPage(ctx context.Context, user string, page *types.Page, mode string) (string, error) {
	r.calls.Add(1)
	body, _ := r.body.Load().(string)
	if user != "" {
		return fmt.Sprintf("%s draft of %s", page.Title, user), nil
	}
	return page.Title + body, nil
}

type fakeSessions map[string]string

func (s fakeSessions) Validate(token string) (*manager.Session, error) {
	user, ok := s[token]
	if !ok {
		return nil, manager.ErrInvalidSession
	}
	return &manager.Session{Token: token, User: user, Role: manager.RoleEditor}, nil
}

func newTestSite(cfg Config) (*Server, *fakeRenderer) {
	router := fakeRouter{
		"/":        {UID: "p1", Title: "Home", State: types.PageOnline},
		"/drafted": {UID: "p2", Title: "Drafted"},
	}
	r := &fakeRenderer{}
	return NewServer(cfg, router, r, fakeSessions{"tok": "alice"}), r
}

func get(t *testing.T, s *Server, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServePage(t *testing.T) {
	s, _ := newTestSite(Config{})

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Home", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	assert.Equal(t, http.StatusNotFound, get(t, s, "/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/drafted").Code, "offline pages are hidden from visitors")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPreview(t *testing.T) {
	s, _ := newTestSite(Config{Cache: true})

	rec := get(t, s, "/drafted?preview=1", "Authorization", "Bearer tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Drafted draft of alice", rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	req := httptest.NewRequest(http.MethodGet, "/?preview=1", nil)
	req.AddCookie(&http.Cookie{Name: PreviewCookie, Value: "tok"})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "Home draft of alice", rec.Body.String())
	assert.Zero(t, s.CachedPages(), "previews are never cached")

	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/?preview=1", "Authorization", "Bearer bad").Code)

	// without the preview flag the token is ignored
	assert.Equal(t, "Home", get(t, s, "/", "Authorization", "Bearer tok").Body.String())
}

func TestCacheAndInvalidate(t *testing.T) {
	s, r := newTestSite(Config{Cache: true})

	assert.Equal(t, "Home", get(t, s, "/").Body.String())
	r.body.Store(" v2")
	assert.Equal(t, "Home", get(t, s, "/").Body.String())
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1, s.CachedPages())

	s.Invalidate()
	assert.Zero(t, s.CachedPages())
	assert.Equal(t, "Home v2", get(t, s, "/").Body.String())
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestConcurrentMissesRenderOnce(t *testing.T) {
	s, r := newTestSite(Config{Cache: true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, get(t, s, "/").Code)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, r.calls.Load(), int32(20))
	assert.Equal(t, 1, s.CachedPages())
}

func TestWatchEventsInvalidates(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	s, _ := newTestSite(Config{Cache: true})
	s.WatchEvents(broker)

	get(t, s, "/")
	require.Equal(t, 1, s.CachedPages())

	broker.Publish(&events.Event{Type: events.EventDraftUpdated})
	broker.Publish(&events.Event{Type: events.EventContentCommitted})
	require.Eventually(t, func() bool { return s.CachedPages() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestSite(Config{RateLimit: 1, Burst: 2})

	headers := []string{"X-Forwarded-For", "10.0.0.1, 10.0.0.2"}
	assert.Equal(t, http.StatusOK, get(t, s, "/", headers...).Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/", headers...).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, s, "/", headers...).Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/", "X-Forwarded-For", "10.0.0.3").Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(limiterIdle / 2)
	assert.True(t, rl.Allow("b"))

	now = now.Add(limiterIdle/2 + time.Second)
	assert.Equal(t, 1, rl.Cleanup())
	assert.True(t, rl.Allow("a"), "a fresh limiter is created after cleanup")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "3.3.3.3:80", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "4.4.4.4"}, "3.3.3.3:80", "4.4.4.4"},
		{"remote addr", nil, "3.3.3.3:80", "3.3.3.3"},
		{"bare remote", nil, "3.3.3.3", "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
