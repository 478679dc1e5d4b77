package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuemby/strata/pkg/content"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/render"
	"github.com/cuemby/strata/pkg/rewriting"
	"github.com/cuemby/strata/pkg/storage"
)

var (
	// ErrInvalidPayload is returned when a request cannot be applied as sent
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNoUser is returned when an operation is called without an editor identity
	ErrNoUser = errors.New("editor identity required")
)

// DraftRevision designates the caller's draft in Diff
const DraftRevision = -1

// Applier replicates a batch of records
type Applier interface {
	ApplyBatch(b *storage.Batch) error
}

// Publisher receives editor events
type Publisher interface {
	PublishEvent(event *events.Event)
}

// Options wires a Service to its collaborators
type Options struct {
	// Store serves reads. It must reflect batches once Applier returns.
	Store storage.Store
	// Applier writes batches, usually through raft
	Applier   Applier
	Registry  *content.Registry
	Renderer  *render.Renderer
	Generator *rewriting.Generator
	// Publisher may be nil
	Publisher Publisher
	// Now defaults to time.Now
	Now func() time.Time
}

// Service is the content-update service used by editors. Every operation runs
// on behalf of one user, whose drafts overlay committed contents.
type Service struct {
	store     storage.Store
	applier   Applier
	registry  *content.Registry
	renderer  *render.Renderer
	generator *rewriting.Generator
	publisher Publisher
	validate  *validator.Validate
	tracer    trace.Tracer
	now       func() time.Time

	// writes are serialized: a commit rebases the drafts of other users
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewService creates an editor service
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Applier == nil || opts.Registry == nil {
		return nil, fmt.Errorf("editor requires a store, an applier and a registry")
	}
	if opts.Renderer == nil {
		r, err := render.New(opts.Store)
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}
	if opts.Generator == nil {
		opts.Generator = rewriting.NewGenerator(rewriting.DefaultConfig(), opts.Store)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:     opts.Store,
		applier:   opts.Applier,
		registry:  opts.Registry,
		renderer:  opts.Renderer,
		generator: opts.Generator,
		publisher: opts.Publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    otel.Tracer("github.com/cuemby/strata/pkg/editor"),
		now:       opts.Now,
		logger:    log.WithComponent("editor"),
	}, nil
}

// Registry returns the content type registry
func (s *Service) Registry() *content.Registry {
	return s.registry
}

// Renderer returns the renderer used for editor previews
func (s *Service) Renderer() *render.Renderer {
	return s.renderer
}

// start opens a span and a timer for an operation. The returned function
// ends both and must be called with the operation error.
func (s *Service) start(ctx context.Context, op, user string) (context.Context, func(error)) {
	timer := metrics.NewTimer()
	ctx, span := s.tracer.Start(ctx, "editor."+op, trace.WithAttributes(attribute.String("strata.user", user)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		timer.ObserveDurationVec(metrics.EditorOperationDuration, op)
	}
}

func (s *Service) publish(typ events.EventType, message string, metadata map[string]string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishEvent(&events.Event{
		Type:      typ,
		Timestamp: s.now(),
		Message:   message,
		Metadata:  metadata,
	})
}

func (s *Service) apply(b *storage.Batch) error {
	if b.Empty() {
		return nil
	}
	if err := s.applier.ApplyBatch(b); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

func requireUser(user string) error {
	if user == "" {
		return ErrNoUser
	}
	return nil
}
