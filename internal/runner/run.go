package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/aqasim81/data-migration-runner/internal/logging"
	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
)

// Outcome labels passed to Metrics.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
	outcomeDryRun    = "dry_run"
)

// failure describes why a run or rollback did not succeed.
type failure struct {
	msg   string // stored as the record's error message
	err   error  // wraps a package sentinel
	stack string
}

// Run executes one migration by name. A migration whose record is already
// COMPLETED (or SKIPPED) is not executed again. Failures of the migration
// itself are reported in the result; the returned error is reserved for
// unknown names and store failures.
func (r *Runner) Run(ctx context.Context, name string, mc migration.Context) (*RunResult, error) {
	def, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	return r.run(ctx, def, mc)
}

// RunAll executes every pending migration in registration order and stops
// at the first failure. The context is checked between migrations only;
// a migration that has started always runs to completion.
func (r *Runner) RunAll(ctx context.Context, mc migration.Context) (*BatchResult, error) {
	pending, err := r.Pending(ctx, mc.Environment)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{Success: true, DryRun: mc.DryRun, Results: []*RunResult{}}

	r.logger.Info().
		Int("pending", len(pending)).
		Str("environment", mc.Environment).
		Bool("dry_run", mc.DryRun).
		Msg("running pending migrations")

	for i, name := range pending {
		if err := ctx.Err(); err != nil {
			batch.Success = false
			batch.NotAttempted = pending[i:]

			return batch, fmt.Errorf("batch interrupted before %s: %w", name, err)
		}

		def, err := r.lookup(name)
		if err != nil {
			batch.Success = false
			batch.NotAttempted = pending[i:]

			return batch, err
		}

		res, err := r.run(ctx, def, mc)
		if err != nil {
			batch.Success = false
			batch.NotAttempted = pending[i+1:]

			return batch, err
		}

		batch.Results = append(batch.Results, res)

		if !res.Success {
			batch.Success = false
			batch.NotAttempted = pending[i+1:]

			r.logger.Error().
				Str("migration", name).
				Strs("not_attempted", batch.NotAttempted).
				Msg("stopping batch at first failure")

			break
		}
	}

	return batch, nil
}

func (r *Runner) run(ctx context.Context, def migration.Definition, mc migration.Context) (*RunResult, error) {
	meta := def.Meta()

	sink := r.logs.Open(meta.Name, mc.Environment, mc.Verbose)
	defer sink.Close()

	result := &RunResult{Name: meta.Name, DryRun: mc.DryRun, LogFile: sink.FileName()}

	rec, err := r.loadRecord(ctx, def, mc)
	if err != nil {
		sink.Errorf("%v", err)
		return nil, err
	}

	if rec.Status.Done() {
		sink.Infof("migration is already %s; nothing to do", rec.Status)

		result.Success = true
		result.AlreadyCompleted = true
		result.Status = rec.Status
		result.Record = rec

		r.metrics.ObserveRun(meta.Name, outcomeSkipped, 0)
		r.fireProgress(ProgressEvent{Name: meta.Name, Status: StatusSkipped, DryRun: mc.DryRun})

		return result, nil
	}

	start := r.now()

	if err := r.markRunning(ctx, rec, def, mc, start, sink); err != nil {
		sink.Errorf("%v", err)
		return nil, err
	}

	r.fireProgress(ProgressEvent{Name: meta.Name, Status: StatusStarting, DryRun: mc.DryRun})

	out, fail := r.execute(ctx, def, mc, sink)
	finished := r.now()
	duration := finished.Sub(start)

	md := runMetadata(out, duration, sink)
	to := record.StatusCompleted
	rec.ErrorMessage = ""

	if fail != nil {
		to = record.StatusFailed
		rec.ErrorMessage = fail.msg

		if fail.stack != "" {
			md["stack"] = fail.stack
		}
	}

	if err := rec.Transition(to, finished); err != nil {
		return nil, err
	}

	rec.MergeMetadata(md)

	if !mc.DryRun {
		if err := r.store.Update(ctx, rec); err != nil {
			sink.Errorf("persisting final status %s: %v", to, err)
			return nil, fmt.Errorf("persisting status of %s: %w", meta.Name, err)
		}
	}

	result.Status = rec.Status
	result.Success = fail == nil
	result.RecordsProcessed = out.RecordsProcessed
	result.DurationMS = duration.Milliseconds()
	result.Metadata = rec.Metadata
	result.Record = rec

	event := ProgressEvent{Name: meta.Name, DryRun: mc.DryRun, Duration: duration}

	if fail != nil {
		result.Error = fail.msg
		result.Err = fail.err
		event.Status = StatusFailed
		event.Error = fail.err

		sink.Errorf("migration finished with status %s after %s", to, duration)
		r.metrics.ObserveRun(meta.Name, outcomeFailed, duration)
	} else {
		event.Status = StatusCompleted

		sink.Infof("migration finished with status %s after %s", to, duration)
		r.metrics.ObserveRun(meta.Name, runOutcome(mc), duration)
	}

	r.fireProgress(event)

	return result, nil
}

// loadRecord fetches the record for def, creating it on first execution.
// In dry-run mode the record is an ephemeral copy and nothing is written.
func (r *Runner) loadRecord(ctx context.Context, def migration.Definition, mc migration.Context) (*record.Record, error) {
	meta := def.Meta()

	rec, err := r.store.Get(ctx, meta.Name)

	switch {
	case err == nil:
		if mc.DryRun {
			return rec.Clone(), nil
		}

		return rec, nil
	case !errors.Is(err, record.ErrRecordNotFound):
		return nil, fmt.Errorf("loading record of %s: %w", meta.Name, err)
	}

	rec = record.New(record.NewParams{
		Name:         meta.Name,
		Version:      meta.Version,
		Description:  meta.Description,
		Rollbackable: migration.Rollbackable(def),
		Environment:  mc.Environment,
	}, r.now())

	if mc.DryRun {
		return rec, nil
	}

	if err := r.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating record of %s: %w", meta.Name, err)
	}

	return rec, nil
}

// markRunning moves rec to RUNNING and stamps who ran it, where and when.
func (r *Runner) markRunning(
	ctx context.Context, rec *record.Record, def migration.Definition,
	mc migration.Context, start time.Time, log migration.Logger,
) error {
	if rec.Status == record.StatusRunning {
		log.Warnf("record was left RUNNING by an earlier invocation; reclaiming it")
	}

	if err := rec.Transition(record.StatusRunning, start); err != nil {
		return err
	}

	meta := def.Meta()
	rec.Version = meta.Version
	rec.Description = meta.Description
	rec.Rollbackable = migration.Rollbackable(def)
	rec.ExecutedAt = &start
	rec.ExecutedBy = mc.ExecutedBy
	rec.Environment = mc.Environment
	rec.ErrorMessage = ""

	if mc.DryRun {
		return nil
	}

	if err := r.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("marking %s as running: %w", rec.Name, err)
	}

	return nil
}

// execute invokes Up and, when it succeeds, the verifier.
func (r *Runner) execute(
	ctx context.Context, def migration.Definition, mc migration.Context, log migration.Logger,
) (migration.Result, *failure) {
	meta := def.Meta()

	if mc.DryRun {
		log.Infof("running %s (version %s) in dry-run mode", meta.Name, meta.Version)
	} else {
		log.Infof("running %s (version %s)", meta.Name, meta.Version)
	}

	log.Debugf("batch size %d, executed by %q", mc.BatchSize, mc.ExecutedBy)

	out, err := callUp(ctx, def, mc, log)
	if err != nil {
		log.Errorf("migration failed: %v", err)

		return out, &failure{
			msg:   err.Error(),
			err:   fmt.Errorf("%w: %w", ErrExecutionFailed, err),
			stack: stackOf(err),
		}
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "migration reported failure"
		}

		log.Errorf("migration reported failure: %s", msg)

		return out, &failure{msg: msg, err: fmt.Errorf("%w: %s", ErrExecutionFailed, msg)}
	}

	if out.RecordsProcessed != nil {
		log.Infof("%d record(s) processed", *out.RecordsProcessed)
	}

	v, ok := def.(migration.Verifier)
	if !ok {
		return out, nil
	}

	if mc.DryRun {
		log.Infof("dry run: verification skipped")
		return out, nil
	}

	verified, err := callVerify(ctx, v, log)
	if err != nil {
		log.Errorf("verifier error: %v", err)
	}

	if err != nil || !verified {
		log.Errorf("verification failed")

		return out, &failure{msg: "Verification failed", err: ErrVerificationFailed, stack: stackOf(err)}
	}

	log.Infof("verification passed")

	return out, nil
}

func runMetadata(out migration.Result, duration time.Duration, sink *logsink.Sink) map[string]any {
	md := make(map[string]any, len(out.Metadata)+3)

	for k, v := range out.Metadata {
		md[k] = v
	}

	md["duration_ms"] = duration.Milliseconds()

	if out.RecordsProcessed != nil {
		md["records_processed"] = *out.RecordsProcessed
	}

	if sink.FileName() != "" {
		md["log_file"] = sink.FileName()
	}

	return md
}

func runOutcome(mc migration.Context) string {
	if mc.DryRun {
		return outcomeDryRun
	}

	return outcomeCompleted
}

// stackOf returns the stack carried by err, capturing one here if err has none.
func stackOf(err error) string {
	if err == nil {
		return ""
	}

	if s := logging.Stack(err); s != "" {
		return s
	}

	return logging.Stack(pkgerrors.WithStack(err))
}

func callUp(ctx context.Context, def migration.Definition, mc migration.Context, log migration.Logger) (out migration.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrPanicked, p))
		}
	}()

	return def.Up(ctx, mc, log)
}

func callDown(
	ctx context.Context, rb migration.Rollbacker, mc migration.Context, log migration.Logger,
) (out migration.RollbackResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrPanicked, p))
		}
	}()

	return rb.Down(ctx, mc, log)
}

func callVerify(ctx context.Context, v migration.Verifier, log migration.Logger) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			err = pkgerrors.WithStack(fmt.Errorf("%w: %v", ErrPanicked, p))
		}
	}()

	return v.Verify(ctx, log)
}
