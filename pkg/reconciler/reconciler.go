package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/storage"
	"github.com/cuemby/strata/pkg/types"
)

const (
	DefaultInterval   = 10 * time.Second
	DefaultPurgeGrace = 24 * time.Hour
)

// Store is the read side the reconciler scans
type Store interface {
	ListPages() ([]*types.Page, error)
	ListRevisions() ([]*types.Revision, error)
}

// Applier writes the changes of a cycle
type Applier interface {
	ApplyBatch(b *storage.Batch) error
}

// Publisher receives the events of a cycle
type Publisher interface {
	PublishEvent(e *events.Event)
}

// Config holds reconciler settings
type Config struct {
	Interval time.Duration
	// PurgeGrace is how long reverted and replaced drafts are kept
	PurgeGrace time.Duration
	Now        func() time.Time
}

// Reconciler brings pages in line with their publishing window and purges
// revisions left to delete
type Reconciler struct {
	store     Store
	applier   Applier
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler. publisher may be nil.
func NewReconciler(store Store, applier Applier, publisher Publisher, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PurgeGrace <= 0 {
		cfg.PurgeGrace = DefaultPurgeGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		store:     store,
		applier:   applier,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler and waits for the loop to exit
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("Reconciliation failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Result summarizes one cycle
type Result struct {
	Published []string
	Archived  []string
	Purged    int
}

// Reconcile performs one reconciliation cycle and writes its changes in a
// single batch
func (r *Reconciler) Reconcile() (*Result, error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Now()
	b := &storage.Batch{}
	res := &Result{}

	if err := r.reconcilePages(b, res, now); err != nil {
		return nil, err
	}
	if err := r.reconcileRevisions(b, res, now); err != nil {
		return nil, err
	}
	if b.Empty() {
		return res, nil
	}

	if err := r.applier.ApplyBatch(b); err != nil {
		return nil, fmt.Errorf("failed to apply reconciliation: %w", err)
	}

	metrics.PagesScheduledTotal.WithLabelValues("publish").Add(float64(len(res.Published)))
	metrics.PagesScheduledTotal.WithLabelValues("archive").Add(float64(len(res.Archived)))
	metrics.RevisionsPurgedTotal.Add(float64(res.Purged))

	for _, uid := range res.Published {
		r.publish(events.EventPagePublished, "page published", map[string]string{"page_uid": uid})
	}
	for _, uid := range res.Archived {
		r.publish(events.EventPageArchived, "page archived", map[string]string{"page_uid": uid})
	}
	if res.Purged > 0 {
		r.publish(events.EventRevisionsPurged, fmt.Sprintf("%d revisions purged", res.Purged), nil)
	}

	r.logger.Info().
		Int("published", len(res.Published)).
		Int("archived", len(res.Archived)).
		Int("purged", res.Purged).
		Msg("Reconciliation applied")
	return res, nil
}

// reconcilePages switches pages whose publishing or archiving date passed.
// A passed date is cleared once applied. The switch is queued as a schedule
// so the write lands on the page as stored at apply time.
func (r *Reconciler) reconcilePages(b *storage.Batch, res *Result, now time.Time) error {
	pages, err := r.store.ListPages()
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}

	for _, page := range pages {
		changed, published, archived := page.ApplySchedule(now)
		if !changed {
			continue
		}
		b.SchedulePage(page.UID, now)
		if published {
			res.Published = append(res.Published, page.UID)
		}
		if archived {
			res.Archived = append(res.Archived, page.UID)
		}
		lg := log.WithPageUID(r.logger, page.UID)
		lg.Debug().Bool("published", published).Bool("archived", archived).Msg("Page window due")
	}
	return nil
}

// reconcileRevisions purges revisions marked to delete once the grace period
// is over
func (r *Reconciler) reconcileRevisions(b *storage.Batch, res *Result, now time.Time) error {
	revisions, err := r.store.ListRevisions()
	if err != nil {
		return fmt.Errorf("failed to list revisions: %w", err)
	}

	for _, rev := range revisions {
		if rev.State != types.RevisionToDelete {
			continue
		}
		if now.Sub(rev.ModifiedAt) < r.cfg.PurgeGrace {
			continue
		}
		b.DeleteRevision(rev.UID)
		res.Purged++
	}
	return nil
}

func (r *Reconciler) publish(typ events.EventType, msg string, metadata map[string]string) {
	if r.publisher == nil {
		return
	}
	r.publisher.PublishEvent(&events.Event{Type: typ, Message: msg, Metadata: metadata})
}
