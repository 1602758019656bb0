package memory

import (
	"context"
	"sync"
	"time"

	"memorybank/domain"
	"memorybank/domain/services"
	"memorybank/observability"
	appErrors "memorybank/pkg/errors"
	"memorybank/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const tracerName = "memorybank"

// core is the state shared by every backend: store wiring, lazy
// hydration, per-instance serialization, metrics and tracing. Backends
// embed it and register their load routine.
type core struct {
	mu sync.Mutex

	owner   string
	name    string
	backend Backend

	store     repository.Store
	logger    *zap.Logger
	tracer    trace.Tracer
	collector *observability.Collector
	analyzer  services.TextAnalyzer

	cfg     Config
	metrics domain.Metrics

	systemID string
	flight   singleflight.Group
	hydrated bool
	// loadFn pulls backend-specific state from the store; runs once,
	// under the singleflight guard.
	loadFn func(ctx context.Context) error
}

func newCore(backend Backend, cfg Config, opts Options) core {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return core{
		owner:     opts.Owner,
		name:      opts.Name,
		backend:   backend,
		store:     opts.Store,
		logger:    logger.With(zap.String("backend", string(backend)), zap.String("memory", opts.Name)),
		tracer:    otel.Tracer(tracerName),
		collector: opts.Collector,
		analyzer:  services.NewDefaultTextAnalyzer(),
		cfg:       cfg,
	}
}

// ensureHydrated resolves the system record and loads cached state from
// the store exactly once. Concurrent first calls collapse into a single
// store round-trip.
func (c *core) ensureHydrated(ctx context.Context) error {
	c.mu.Lock()
	done := c.hydrated
	c.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := c.flight.Do(c.owner+"/"+c.name, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hydrated {
			return nil, nil
		}
		if err := c.resolveSystem(ctx); err != nil {
			return nil, err
		}
		if c.loadFn != nil {
			if err := c.loadFn(ctx); err != nil {
				return nil, appErrors.Wrap(err, "hydrate memory instance")
			}
		}
		c.hydrated = true
		return nil, nil
	})
	return err
}

// resolveSystem finds or creates the durable record identifying this
// instance. Called with c.mu held.
func (c *core) resolveSystem(ctx context.Context) error {
	rec, err := c.store.FindSystem(ctx, c.owner, c.name)
	if err == nil {
		c.systemID = rec.ID
		return nil
	}
	if !appErrors.IsNotFound(err) {
		return appErrors.Wrap(err, "look up memory system")
	}

	now := time.Now()
	rec = &repository.SystemRecord{
		ID:        uuid.NewString(),
		Owner:     c.owner,
		Name:      c.name,
		Backend:   string(c.backend),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.SaveSystem(ctx, rec); err != nil {
		return appErrors.Wrap(err, "register memory system")
	}
	c.systemID = rec.ID
	c.logger.Info("registered memory system", zap.String("system_id", rec.ID))
	return nil
}

func (c *core) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "memory."+op,
		trace.WithAttributes(
			attribute.String("memory.backend", string(c.backend)),
			attribute.String("memory.name", c.name),
		))
}

// finish closes the span and feeds the process-wide collector, when one
// is attached.
func (c *core) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if c.collector != nil {
		c.collector.RecordOperation(string(c.backend), op, time.Since(start), err)
	}
}

func (c *core) recordLookup(hit bool) {
	c.metrics.RecordLookup(hit)
	if c.collector != nil {
		c.collector.RecordLookup(string(c.backend), hit)
	}
}

// snapshotConfig returns the current config under the lock, for read
// paths that run scoring outside mutating sections.
func (c *core) snapshotConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// applyPatch validates and installs a partial configuration change.
func (c *core) applyPatch(patch ConfigPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := patch.apply(c.cfg)
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	c.logger.Info("memory config updated")
	return nil
}

// recencyScore decays linearly from 1 to 0 over one week, measured from
// the last access (falling back to creation time).
func recencyScore(e *domain.MemoryEntry, now time.Time) float64 {
	ref := e.Timestamp
	if e.LastAccessed != nil {
		ref = *e.LastAccessed
	}
	score := 1.0 - now.Sub(ref).Hours()/(24*7)
	if score < 0 {
		return 0
	}
	return score
}
