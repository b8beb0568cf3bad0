package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
)

// Rollback reverses a COMPLETED, rollbackable migration. Preconditions are
// checked before Down is invoked; a failed Down leaves the record COMPLETED.
// Rollback details are merged into the record's existing metadata.
func (r *Runner) Rollback(ctx context.Context, name string, mc migration.Context) (*RollbackResult, error) {
	def, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	sink := r.logs.Open(name, mc.Environment, mc.Verbose)
	defer sink.Close()

	result := &RollbackResult{Name: name, DryRun: mc.DryRun, LogFile: sink.FileName()}

	reject := func(sentinel error, msg string) (*RollbackResult, error) {
		sink.Errorf("rollback rejected: %s", msg)

		result.Error = msg
		result.Err = fmt.Errorf("%s: %w", name, sentinel)
		r.metrics.ObserveRollback(name, "rejected")

		return result, nil
	}

	rec, err := r.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return reject(ErrNoRecord, "migration has never been executed")
		}

		return nil, fmt.Errorf("loading record of %s: %w", name, err)
	}

	if mc.DryRun {
		rec = rec.Clone()
	}

	result.Status = rec.Status

	if rec.Status != record.StatusCompleted {
		return reject(ErrRollbackNotCompleted, fmt.Sprintf("status is %s, expected %s", rec.Status, record.StatusCompleted))
	}

	rb, ok := def.(migration.Rollbacker)
	if !ok || !rec.Rollbackable {
		return reject(ErrNotRollbackable, "migration is not rollbackable")
	}

	sink.Infof("rolling back %s (version %s)", name, def.Meta().Version)

	start := r.now()
	out, err := callDown(ctx, rb, mc, sink)
	finished := r.now()

	if err != nil || !out.Success {
		msg := out.Error
		if err != nil {
			msg = err.Error()
		}

		if msg == "" {
			msg = "rollback reported failure"
		}

		sink.Errorf("rollback failed, record stays %s: %s", rec.Status, msg)

		result.Error = msg
		result.Err = fmt.Errorf("%s: %w: %s", name, ErrRollbackFailed, msg)
		result.Metadata = out.Metadata
		r.metrics.ObserveRollback(name, outcomeFailed)

		return result, nil
	}

	if err := rec.Transition(record.StatusRolledBack, finished); err != nil {
		return nil, err
	}

	details := map[string]any{
		"rolled_back_at": finished.UTC().Format(time.RFC3339Nano),
		"rolled_back_by": mc.ExecutedBy,
		"duration_ms":    finished.Sub(start).Milliseconds(),
	}

	if len(out.Metadata) > 0 {
		details["result"] = out.Metadata
	}

	if sink.FileName() != "" {
		details["log_file"] = sink.FileName()
	}

	rec.RolledBackAt = &finished
	rec.MergeMetadata(map[string]any{"rollback": details})

	if !mc.DryRun {
		if err := r.store.Update(ctx, rec); err != nil {
			sink.Errorf("persisting rollback: %v", err)
			return nil, fmt.Errorf("persisting rollback of %s: %w", name, err)
		}
	}

	sink.Infof("rollback finished with status %s", rec.Status)

	result.Success = true
	result.Status = rec.Status
	result.Metadata = rec.Metadata

	r.metrics.ObserveRollback(name, runOutcome(mc))
	r.fireProgress(ProgressEvent{Name: name, Status: StatusRolledBack, DryRun: mc.DryRun, Duration: finished.Sub(start)})

	return result, nil
}
