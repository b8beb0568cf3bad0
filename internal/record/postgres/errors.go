package postgres

import "errors"

// ErrTableCreation indicates the data_migrations table could not be created.
var ErrTableCreation = errors.New("creating data_migrations table")
