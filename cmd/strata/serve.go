package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/strata/pkg/api"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/editor"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/manager"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/reconciler"
	"github.com/cuemby/strata/pkg/render"
	"github.com/cuemby/strata/pkg/rewriting"
	"github.com/cuemby/strata/pkg/site"
	"github.com/cuemby/strata/pkg/theme"
	"github.com/cuemby/strata/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a strata node",
	Long: `Run a strata node: the raft replicated store, the editing API on
--api-addr and the local socket, the public site on --site-addr and the
health endpoints on --health-addr.

The first run bootstraps a single node cluster in --data-dir; later runs
resume it.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("node-id", "strata-1", "Unique node ID")
	flags.String("bind-addr", "127.0.0.1:7946", "Address for Raft communication")
	flags.String("site-addr", "0.0.0.0:8080", "Address of the public site")
	flags.String("health-addr", "127.0.0.1:9090", "Address of the health and metrics endpoints")
	flags.Bool("in-memory", false, "Keep the raft log in memory")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON")
	flags.String("tracing", tracing.ExporterNone, "Trace exporter (none, stdout)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"log.level":        "log-level",
		"log.json":         "log-json",
		"tracing.exporter": "tracing",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log.Init(cfg.Log)
	logger := log.WithNodeID(cfg.Node.ID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Tracing.ServiceVersion = Version
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Create manager
	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   cfg.Node.ID,
		BindAddr: cfg.Node.BindAddr,
		DataDir:  cfg.Node.DataDir,
		InMemory: cfg.Node.InMemory,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %v", err)
	}
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down manager")
		}
	}()

	if err := mgr.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = mgr.WaitForLeader(waitCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("no raft leader: %v", err)
	}
	logger.Info().Str("data_dir", cfg.Node.DataDir).Msg("Raft ready")

	registry := content.NewRegistry()
	if cfg.ContentTypes != "" {
		if err := registry.LoadFile(cfg.ContentTypes); err != nil {
			return fmt.Errorf("failed to load content types: %v", err)
		}
	}

	themes := theme.NewService(cfg.Theme, mgr, mgr)
	renderer, err := render.New(mgr.Store())
	if err != nil {
		return err
	}
	if err := renderer.LoadDir(themes.TemplateDir(themes.Current())); err != nil {
		logger.Warn().Err(err).Msg("Failed to load theme templates, using built-ins")
	}

	ed, err := editor.NewService(editor.Options{
		Store:     mgr.Store(),
		Applier:   mgr,
		Registry:  registry,
		Renderer:  renderer,
		Generator: rewriting.NewGenerator(cfg.Rewriting, mgr.Store()),
		Publisher: mgr,
	})
	if err != nil {
		return err
	}

	watcher, err := theme.NewWatcher(themes, func(name string) {
		mgr.PublishEvent(&events.Event{
			Type:     events.EventThemeChanged,
			Message:  fmt.Sprintf("theme %s files changed", name),
			Metadata: map[string]string{"theme": name, "reason": "files"},
		})
	})
	if err != nil {
		return err
	}
	if err := watcher.Watch(themes.Current()); err != nil {
		logger.Warn().Err(err).Msg("Theme directory not watched")
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	collector := manager.NewMetricsCollector(mgr)
	collector.Start()
	defer collector.Stop()

	recon := reconciler.NewReconciler(mgr.Store(), mgr, mgr, cfg.Reconciler)
	recon.Start()
	defer recon.Stop()

	apiOpts, err := apiServerOptions(cfg, mgr)
	if err != nil {
		return err
	}
	apiServer := api.NewServer(mgr, ed, themes, apiOpts...)
	defer apiServer.Stop()

	siteServer := site.NewServer(site.Config{
		RateLimit:   cfg.Site.RateLimit,
		Burst:       cfg.Site.Burst,
		Cache:       cfg.Site.Cache,
		ServiceName: "strata-site",
	}, rewriting.NewRouter(siteHosts(cfg.Site.Hosts), mgr.Store()), ed, mgr.Sessions())
	siteServer.WatchEvents(mgr.GetEventBroker())
	if cfg.Site.ACME.Enabled {
		certs, err := site.NewACMEManager(site.ACMEConfig{
			Email:        cfg.Site.ACME.Email,
			DirectoryURL: cfg.Site.ACME.Directory,
			Hosts:        cfg.Site.ACMEHosts(),
		}, site.NewCertCache(mgr))
		if err != nil {
			return err
		}
		siteServer.EnableACME(certs)
	}

	metrics.RegisterComponent("storage", true, "")
	metrics.RegisterComponent("raft", true, "leader elected")
	metrics.RegisterComponent("api", true, "")
	metrics.RegisterComponent("site", true, "")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			metrics.UpdateComponent("api", false, err.Error())
			return fmt.Errorf("API server error: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := apiServer.StartUnixSocket(cfg.Node.SocketPath()); err != nil {
			return fmt.Errorf("local socket error: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := siteServer.Start(cfg.Node.SiteAddr); err != nil {
			metrics.UpdateComponent("site", false, err.Error())
			return fmt.Errorf("site server error: %v", err)
		}
		return nil
	})
	if cfg.Site.ACME.Enabled {
		g.Go(func() error {
			if err := siteServer.StartTLS(cfg.Site.TLSAddr); err != nil {
				metrics.UpdateComponent("site", false, err.Error())
				return fmt.Errorf("site TLS server error: %v", err)
			}
			return nil
		})
	}
	if cfg.Node.HealthAddr != "" {
		go func() {
			if err := api.NewHealthServer(mgr).Start(cfg.Node.HealthAddr); err != nil {
				logger.Error().Err(err).Msg("Health server stopped")
			}
		}()
	}
	g.Go(func() error {
		themeEvents(gctx, mgr.GetEventBroker(), themes, renderer, watcher)
		return nil
	})
	g.Go(func() error {
		expireSessions(gctx, mgr.Sessions())
		return nil
	})

	fmt.Println("Strata is running. Press Ctrl+C to stop.")
	fmt.Printf("  API:  %s (socket %s)\n", cfg.Node.APIAddr, cfg.Node.SocketPath())
	fmt.Printf("  Site: %s\n", cfg.Node.SiteAddr)
	if cfg.Site.ACME.Enabled {
		fmt.Printf("  Site TLS: %s (%v)\n", cfg.Site.TLSAddr, cfg.Site.ACMEHosts())
	}

	// Wait for a signal or the first server error
	<-gctx.Done()
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := siteServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Site shutdown incomplete")
	}
	apiServer.Stop()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("✓ Shutdown complete")
	return nil
}

// siteHosts orders host patterns so exact names win over wildcards and the
// catch-all pattern comes last
func siteHosts(hosts map[string]string) []rewriting.Site {
	sites := make([]rewriting.Site, 0, len(hosts))
	for host, root := range hosts {
		if host == "*" {
			host = ""
		}
		sites = append(sites, rewriting.Site{Host: host, RootUID: root})
	}
	slices.SortFunc(sites, func(a, b rewriting.Site) int {
		return len(b.Host) - len(a.Host)
	})
	return sites
}

// themeEvents reloads templates and moves the watcher when the theme or its
// files change
func themeEvents(ctx context.Context, broker *events.Broker, themes *theme.Service, renderer *render.Renderer, watcher *theme.Watcher) {
	logger := log.WithComponent("theme")
	sub := broker.Subscribe(events.EventThemeChanged)
	defer broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			current := themes.Current()
			if err := renderer.LoadDir(themes.TemplateDir(current)); err != nil {
				logger.Error().Err(err).Str("theme", current).Msg("Failed to reload templates")
				continue
			}
			if err := watcher.Watch(current); err != nil {
				logger.Warn().Err(err).Str("theme", current).Msg("Failed to watch theme")
			}
		}
	}
}

func expireSessions(ctx context.Context, sessions *manager.SessionManager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.CleanupExpired(); n > 0 {
				log.Debug(fmt.Sprintf("Removed %d expired sessions", n))
			}
		}
	}
}
