package site

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/singleflight"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

// PreviewCookie carries a session token for draft previews
const PreviewCookie = "strata_token"

// Router resolves a request to a page
type Router interface {
	Route(host, path string) (*types.Page, error)
}

// Renderer renders a page as a user sees it, as visitors when user is empty
type Renderer interface {
	RenderPage(ctx context.Context, user string, page *types.Page, mode string) (string, error)
}

// Sessions validates preview tokens
type Sessions interface {
	Validate(token string) (*manager.Session, error)
}

// Config configures the site server
type Config struct {
	// RateLimit is requests per second per client, zero disables it
	RateLimit float64
	Burst     int
	// Cache keeps rendered pages until contents change
	Cache bool
	// ServiceName names the spans of the site
	ServiceName string
}

// Server serves the published pages
type Server struct {
	cfg      Config
	router   Router
	renderer Renderer
	sessions Sessions
	limiter  *RateLimiter

	engine *gin.Engine
	cache  *xsync.MapOf[string, string]
	group  singleflight.Group
	// generation is bumped on invalidation, so renders started before it
	// do not repopulate the cache
	generation uint64
	genMu      sync.RWMutex

	acme      *autocert.Manager
	servers   []*http.Server
	serversMu sync.Mutex
	stopped   bool
	watching  bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	logger    zerolog.Logger
}

// NewServer creates a site server. sessions may be nil to disable previews.
func NewServer(cfg Config, router Router, renderer Renderer, sessions Sessions) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "strata-site"
	}
	s := &Server{
		cfg:      cfg,
		router:   router,
		renderer: renderer,
		sessions: sessions,
		cache:    xsync.NewMapOf[string, string](),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.WithComponent("site"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), s.metricsMiddleware())
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst)
		engine.Use(s.limiter.Middleware())
	}
	engine.NoRoute(s.servePage)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler of the site
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.SiteRequestsTotal.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// previewUser returns the editor asking for a preview, empty for visitors
func (s *Server) previewUser(c *gin.Context) (string, error) {
	if s.sessions == nil {
		return "", nil
	}
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token, _ = c.Cookie(PreviewCookie)
	}
	if token == "" || c.Query("preview") == "" {
		return "", nil
	}
	session, err := s.sessions.Validate(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	return session.User, nil
}

func (s *Server) servePage(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	user, err := s.previewUser(c)
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid preview session")
		return
	}

	host := hostOnly(c.Request.Host)
	page, err := s.router.Route(host, c.Request.URL.Path)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && user == "" && !page.IsOnline()) {
		c.String(http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Failed to route request")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	var body string
	if user != "" {
		c.Header("Cache-Control", "no-store")
		body, err = s.render(c.Request.Context(), user, page, "preview")
	} else {
		body, err = s.cached(c.Request.Context(), page)
	}
	if err != nil {
		lg := log.WithPageUID(s.logger, page.UID)
		lg.Error().Err(err).Msg("Failed to render page")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (s *Server) render(ctx context.Context, user string, page *types.Page, source string) (string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RenderDuration, source)
	return s.renderer.RenderPage(ctx, user, page, "")
}

// cached renders a page for visitors. Concurrent misses on the same page
// share one render.
func (s *Server) cached(ctx context.Context, page *types.Page) (string, error) {
	if !s.cfg.Cache {
		return s.render(ctx, "", page, "site")
	}
	if body, ok := s.cache.Load(page.UID); ok {
		metrics.SiteCacheTotal.WithLabelValues("hit").Inc()
		return body, nil
	}
	metrics.SiteCacheTotal.WithLabelValues("miss").Inc()

	gen := s.currentGeneration()
	v, err, _ := s.group.Do(fmt.Sprintf("%s@%d", page.UID, gen), func() (any, error) {
		body, err := s.render(context.WithoutCancel(ctx), "", page, "site")
		if err != nil {
			return "", err
		}
		s.genMu.RLock()
		if s.generation == gen {
			s.cache.Store(page.UID, body)
		}
		s.genMu.RUnlock()
		return body, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Server) currentGeneration() uint64 {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return s.generation
}

// Invalidate drops every rendered page. Pages embed shared zones and
// navigation, so a single commit may change any of them.
func (s *Server) Invalidate() {
	s.genMu.Lock()
	s.generation++
	s.cache.Clear()
	s.genMu.Unlock()
}

// CachedPages returns the number of pages in the cache
func (s *Server) CachedPages() int {
	return s.cache.Size()
}

// invalidatingEvents change what visitors see
var invalidatingEvents = []events.EventType{
	events.EventContentCommitted,
	events.EventContentDeleted,
	events.EventPageCreated,
	events.EventPageUpdated,
	events.EventPageDeleted,
	events.EventPagePublished,
	events.EventPageArchived,
	events.EventThemeChanged,
}

// WatchEvents invalidates the cache on events of broker until Stop
func (s *Server) WatchEvents(broker *events.Broker) {
	sub := broker.Subscribe(invalidatingEvents...)
	s.watching = true
	go func() {
		defer close(s.doneCh)
		defer broker.Unsubscribe(sub)
		for {
			select {
			case e, ok := <-sub:
				if !ok {
					return
				}
				s.logger.Debug().Str("event", string(e.Type)).Msg("Invalidating page cache")
				s.Invalidate()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Start serves the site on addr until Shutdown
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}

	srv := &http.Server{
		Handler:           s.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !s.track(srv) {
		lis.Close()
		return nil
	}
	if s.limiter != nil {
		go s.cleanupLimiters()
	}

	s.logger.Info().Str("addr", addr).Msg("Site listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// track registers srv for Shutdown, false once the server is shut down
func (s *Server) track(srv *http.Server) bool {
	s.serversMu.Lock()
	defer s.serversMu.Unlock()
	if s.stopped {
		return false
	}
	s.servers = append(s.servers, srv)
	return true
}

func (s *Server) cleanupLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.limiter.Cleanup(); n > 0 {
				s.logger.Debug().Int("count", n).Msg("Dropped idle rate limiters")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Shutdown stops the event watcher and the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.watching {
		<-s.doneCh
	}

	s.serversMu.Lock()
	s.stopped = true
	servers := s.servers
	s.serversMu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
