package runner

import (
	"time"

	"github.com/aqasim81/data-migration-runner/internal/record"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting   = "starting"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
	StatusRolledBack = "rolled_back"
)

// ProgressEvent is emitted by the runner for each migration processed.
type ProgressEvent struct {
	Name     string
	Status   string
	DryRun   bool
	Duration time.Duration
	Error    error
}

// RunResult is the outcome of one Run. In dry-run mode Record is an
// ephemeral copy that was never persisted.
type RunResult struct {
	Name             string         `json:"name"`
	Success          bool           `json:"success"`
	Status           record.Status  `json:"status"`
	DryRun           bool           `json:"dry_run"`
	AlreadyCompleted bool           `json:"already_completed,omitempty"`
	RecordsProcessed *int           `json:"records_processed,omitempty"`
	DurationMS       int64          `json:"duration_ms"`
	LogFile          string         `json:"log_file,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Record           *record.Record `json:"record,omitempty"`

	// Err wraps ErrExecutionFailed or ErrVerificationFailed when Success is false.
	Err error `json:"-"`
}

// BatchResult is the outcome of RunAll. Execution stops at the first
// failure; the names after it are listed in NotAttempted.
type BatchResult struct {
	Success      bool         `json:"success"`
	DryRun       bool         `json:"dry_run"`
	Results      []*RunResult `json:"results"`
	NotAttempted []string     `json:"not_attempted,omitempty"`
}

// Succeeded returns the names that ran successfully.
func (b *BatchResult) Succeeded() []string {
	var names []string

	for _, r := range b.Results {
		if r.Success {
			names = append(names, r.Name)
		}
	}

	return names
}

// Failed returns the result that stopped the batch, or nil.
func (b *BatchResult) Failed() *RunResult {
	for _, r := range b.Results {
		if !r.Success {
			return r
		}
	}

	return nil
}

// RollbackResult is the outcome of one Rollback.
type RollbackResult struct {
	Name     string         `json:"name"`
	Success  bool           `json:"success"`
	Status   record.Status  `json:"status,omitempty"`
	DryRun   bool           `json:"dry_run"`
	LogFile  string         `json:"log_file,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Err wraps one of the rollback sentinels when Success is false.
	Err error `json:"-"`
}

// VerifyResult is the outcome of verifying one completed migration.
type VerifyResult struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Note     string `json:"note,omitempty"`
}

// ListEntry is one row of List: a persisted record, or a registered
// migration that has never run (shown as PENDING).
type ListEntry struct {
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Description  string        `json:"description"`
	Status       record.Status `json:"status"`
	Rollbackable bool          `json:"rollbackable"`
	Registered   bool          `json:"registered"`
	Environment  string        `json:"environment,omitempty"`
	ExecutedAt   *time.Time    `json:"executed_at,omitempty"`
	ExecutedBy   string        `json:"executed_by,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}
