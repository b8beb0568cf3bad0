package sqlmigration

import "errors"

// ErrNoDatabase indicates a SQL migration was executed without a database connection.
var ErrNoDatabase = errors.New("no database connection configured")
