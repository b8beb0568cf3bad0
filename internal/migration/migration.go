package migration

import "context"

// Meta identifies a migration. Name is the persistence key and must be
// unique within a Registry.
type Meta struct {
	Name        string
	Version     string
	Description string
}

// Context carries per-invocation settings into every migration call.
type Context struct {
	DryRun      bool   // suppresses persistence writes in the runner
	BatchSize   int    // forwarded to the definition; the runner never chunks work
	Environment string // scopes which records count as already executed
	ExecutedBy  string
	Verbose     bool // enables debug lines in the log sink
}

// Result is what Up reports on return. A non-nil error from Up is treated
// as a thrown failure; Success=false with an Error message is a reported one.
type Result struct {
	Success          bool
	RecordsProcessed *int
	Error            string
	Metadata         map[string]any
}

// RollbackResult is what Down reports on return.
type RollbackResult struct {
	Success  bool
	Error    string
	Metadata map[string]any
}

// Definition is a single one-shot data transformation unit.
type Definition interface {
	Meta() Meta
	Up(ctx context.Context, mc Context, log Logger) (Result, error)
}

// Rollbacker is implemented by definitions that can be reversed.
// Only definitions implementing it are rollbackable.
type Rollbacker interface {
	Down(ctx context.Context, mc Context, log Logger) (RollbackResult, error)
}

// Verifier is implemented by definitions that provide a post-execution
// health check.
type Verifier interface {
	Verify(ctx context.Context, log Logger) (bool, error)
}

// Rollbackable reports whether def implements Rollbacker.
func Rollbackable(def Definition) bool {
	_, ok := def.(Rollbacker)
	return ok
}

// Processed is a convenience for filling Result.RecordsProcessed.
func Processed(n int) *int {
	return &n
}
