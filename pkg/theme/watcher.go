package theme

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a theme when its templates or LESS files change on disk.
// Bursts of events are debounced into one reload.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	service     *Service
	onChange    func(theme string)
	theme       string
	dirs        []string
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	logger      zerolog.Logger
}

// NewWatcher creates a watcher calling onChange with the theme name after
// files of the watched theme settle.
func NewWatcher(service *Service, onChange func(theme string)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     watcher,
		service:     service,
		onChange:    onChange,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      log.WithComponent("theme-watcher"),
	}, nil
}

// Watch switches the watched theme
func (w *Watcher) Watch(theme string) error {
	if err := w.service.exists(theme); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, dir := range w.dirs {
		_ = w.watcher.Remove(dir)
	}
	w.dirs = nil
	w.theme = theme

	root := w.service.Dir(theme)
	for _, dir := range []string{root, w.service.TemplateDir(theme), filepath.Join(root, w.service.cfg.LessDir)} {
		if err := w.watcher.Add(dir); err != nil {
			// theme may not carry this directory
			w.logger.Debug().Err(err).Str("dir", dir).Msg("Directory not watched")
			continue
		}
		w.dirs = append(w.dirs, dir)
	}

	w.logger.Info().Str("theme", theme).Int("dirs", len(w.dirs)).Msg("Watching theme")
	return nil
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop stops the watcher and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close watcher")
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounceDur / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	// temporary files of atomic saves
	if base := filepath.Base(event.Name); len(base) > 0 && base[0] == '.' {
		return
	}

	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	theme := w.theme
	w.mu.Unlock()

	w.logger.Info().Str("theme", theme).Msg("Theme files changed")
	metrics.ThemeReloadsTotal.WithLabelValues(theme).Inc()
	if w.onChange != nil {
		w.onChange(theme)
	}
}
