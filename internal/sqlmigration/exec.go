package sqlmigration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used to run migration scripts.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Timeouts bound how long a script may wait for locks and run per statement.
// Zero means no limit.
type Timeouts struct {
	Lock      time.Duration
	Statement time.Duration
}

// execInTransaction runs sql inside a transaction with the given timeouts
// applied. On success the transaction is committed; on error it is rolled back.
func execInTransaction(ctx context.Context, db DB, sql string, timeouts Timeouts) (pgconn.CommandTag, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("beginning transaction: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // rollback on committed tx returns ErrTxClosed

	if err := setLocalTimeouts(ctx, tx, timeouts); err != nil {
		return pgconn.CommandTag{}, err
	}

	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("executing in transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("committing transaction: %w", err)
	}

	return tag, nil
}

// execWithoutTransaction executes sql directly, outside any transaction.
// Required for CREATE INDEX CONCURRENTLY and DROP INDEX CONCURRENTLY.
func execWithoutTransaction(ctx context.Context, db DB, sql string) (pgconn.CommandTag, error) {
	tag, err := db.Exec(ctx, sql)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("executing outside transaction: %w", err)
	}

	return tag, nil
}

// setLocalTimeouts scopes lock_timeout and statement_timeout to the
// transaction so they never leak back into the pool.
func setLocalTimeouts(ctx context.Context, tx pgx.Tx, timeouts Timeouts) error {
	if timeouts.Lock > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeouts.Lock.Milliseconds())); err != nil {
			return fmt.Errorf("setting lock_timeout: %w", err)
		}
	}

	if timeouts.Statement > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeouts.Statement.Milliseconds())); err != nil {
			return fmt.Errorf("setting statement_timeout: %w", err)
		}
	}

	return nil
}
