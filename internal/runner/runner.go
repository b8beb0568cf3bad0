// Package runner executes registered migrations exactly once, drives the
// persisted record through its state machine and writes one log file per
// invocation. Execution is strictly sequential and follows registration order.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
)

// DefaultLogDir is used when no log directory is configured.
const DefaultLogDir = "logs/migrations"

// Metrics receives outcome observations. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveRun(name, outcome string, duration time.Duration)
	ObserveRollback(name, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, string, time.Duration) {}
func (nopMetrics) ObserveRollback(string, string)           {}

// Runner orchestrates migration execution against a record store.
type Runner struct {
	registry   *migration.Registry
	store      record.Store
	logs       *logsink.Dir
	logger     zerolog.Logger
	now        func() time.Time
	onProgress func(ProgressEvent)
	metrics    Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured process logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLogDir sets where per-execution log files are written.
func WithLogDir(d *logsink.Dir) Option {
	return func(r *Runner) { r.logs = d }
}

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithProgressCallback sets a function called as each migration starts and finishes.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(r *Runner) { r.onProgress = fn }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner over the given registry and store.
func New(registry *migration.Registry, store record.Store, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		store:    store,
		logger:   zerolog.Nop(),
		now:      time.Now,
		metrics:  nopMetrics{},
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logs == nil {
		r.logs = logsink.NewDir(DefaultLogDir, logsink.WithLogger(r.logger), logsink.WithClock(r.now))
	}

	r.logger = r.logger.With().Str("component", "runner").Logger()

	return r
}

// Registry returns the registry the runner executes from.
func (r *Runner) Registry() *migration.Registry {
	return r.registry
}

// Logs returns the per-execution log directory.
func (r *Runner) Logs() *logsink.Dir {
	return r.logs
}

// Pending returns the registered names that have no COMPLETED or SKIPPED
// record in the given environment, in registration order.
func (r *Runner) Pending(ctx context.Context, environment string) ([]string, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing migration records: %w", err)
	}

	done := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec.Environment == environment && rec.Status.Done() {
			done[rec.Name] = true
		}
	}

	var pending []string

	for _, name := range r.registry.Names() {
		if !done[name] {
			pending = append(pending, name)
		}
	}

	return pending, nil
}

// Records returns every persisted record.
func (r *Runner) Records(ctx context.Context) ([]*record.Record, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing migration records: %w", err)
	}

	return records, nil
}

// List returns one entry per registered migration, in registration order,
// followed by records whose migration is no longer registered. Registered
// migrations without a record are reported as PENDING.
func (r *Runner) List(ctx context.Context) ([]ListEntry, error) {
	records, err := r.Records(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*record.Record, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	entries := make([]ListEntry, 0, r.registry.Len()+len(records))

	for _, def := range r.registry.All() {
		meta := def.Meta()

		rec, ok := byName[meta.Name]
		if !ok {
			entries = append(entries, ListEntry{
				Name:         meta.Name,
				Version:      meta.Version,
				Description:  meta.Description,
				Status:       record.StatusPending,
				Rollbackable: migration.Rollbackable(def),
				Registered:   true,
			})

			continue
		}

		entries = append(entries, entryFromRecord(rec, true))
		delete(byName, meta.Name)
	}

	for _, rec := range records {
		if _, orphan := byName[rec.Name]; orphan {
			entries = append(entries, entryFromRecord(rec, false))
		}
	}

	return entries, nil
}

func entryFromRecord(rec *record.Record, registered bool) ListEntry {
	return ListEntry{
		Name:         rec.Name,
		Version:      rec.Version,
		Description:  rec.Description,
		Status:       rec.Status,
		Rollbackable: rec.Rollbackable,
		Registered:   registered,
		Environment:  rec.Environment,
		ExecutedAt:   rec.ExecutedAt,
		ExecutedBy:   rec.ExecutedBy,
		ErrorMessage: rec.ErrorMessage,
	}
}

func (r *Runner) lookup(name string) (migration.Definition, error) {
	def, ok := r.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("migration %s: %w", name, ErrNotFound)
	}

	return def, nil
}

func (r *Runner) fireProgress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}
