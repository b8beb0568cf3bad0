package runner

import "errors"

// ErrNotFound indicates the requested migration name is not registered.
var ErrNotFound = errors.New("migration not registered")

// ErrExecutionFailed indicates Up returned an error, panicked or reported failure.
var ErrExecutionFailed = errors.New("migration execution failed")

// ErrVerificationFailed indicates Up succeeded but the verifier did not pass.
var ErrVerificationFailed = errors.New("verification failed")

// ErrPanicked indicates a migration function panicked.
var ErrPanicked = errors.New("migration panicked")

// ErrNoRecord indicates a rollback was requested for a migration that never ran.
var ErrNoRecord = errors.New("migration has no execution record")

// ErrRollbackNotCompleted indicates a rollback was requested for a record that is not COMPLETED.
var ErrRollbackNotCompleted = errors.New("only completed migrations can be rolled back")

// ErrNotRollbackable indicates a rollback was requested for a migration without a Down step.
var ErrNotRollbackable = errors.New("migration is not rollbackable")

// ErrRollbackFailed indicates Down returned an error, panicked or reported failure.
var ErrRollbackFailed = errors.New("rollback failed")
