package record

import "errors"

// ErrRecordNotFound indicates no record exists for the given migration name.
var ErrRecordNotFound = errors.New("migration record not found")

// ErrRecordExists indicates a record with the same name is already stored.
var ErrRecordExists = errors.New("migration record already exists")

// ErrInvalidTransition indicates a status change the state machine does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownStatus indicates a stored status string that is not recognized.
var ErrUnknownStatus = errors.New("unknown migration status")
