// Package sqlite stores migration records in a local SQLite database. It is
// the default backend for single-node deployments and for running the CLI
// without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/aqasim81/data-migration-runner/internal/record"
)

const (
	tableName     = "data_migrations"
	busyTimeoutMS = 5000
)

var columns = []string{ //nolint:gochecknoglobals // column order shared by insert and scan
	"id", "name", "version", "description", "rollbackable", "status",
	"executed_at", "executed_by", "environment", "error_message", "metadata",
	"rolled_back_at", "created_at", "updated_at",
}

// Store keeps migration records in a SQLite file.
type Store struct {
	db *sql.DB
}

var _ record.Store = (*Store)(nil)

// Open connects to the SQLite database at path and ensures the schema exists.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMS)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// EnsureTable creates the data_migrations table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS data_migrations (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL UNIQUE,
		version        TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		rollbackable   INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'PENDING',
		executed_at    TEXT,
		executed_by    TEXT NOT NULL DEFAULT '',
		environment    TEXT NOT NULL DEFAULT '',
		error_message  TEXT NOT NULL DEFAULT '',
		metadata       TEXT NOT NULL DEFAULT '{}',
		rolled_back_at TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating data_migrations table: %w", err)
	}

	return nil
}

// Get returns the record for name.
func (s *Store) Get(ctx context.Context, name string) (*record.Record, error) {
	query, args, err := sq.Select(columns...).From(tableName).Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("migration %s: %w", name, record.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("getting migration %s: %w", name, err)
	}

	return r, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, r *record.Record) error {
	md, err := record.EncodeMetadata(r.Metadata)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert(tableName).Columns(columns...).Values(
		r.ID, r.Name, r.Version, r.Description, boolToInt(r.Rollbackable), string(r.Status),
		formatTimePtr(r.ExecutedAt), r.ExecutedBy, r.Environment, r.ErrorMessage, string(md),
		formatTimePtr(r.RolledBackAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	).ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("migration %s: %w", r.Name, record.ErrRecordExists)
		}

		return fmt.Errorf("creating migration record %s: %w", r.Name, err)
	}

	return nil
}

// Update overwrites the mutable columns of the record with the same name.
func (s *Store) Update(ctx context.Context, r *record.Record) error {
	md, err := record.EncodeMetadata(r.Metadata)
	if err != nil {
		return err
	}

	query, args, err := sq.Update(tableName).SetMap(map[string]any{
		"version":        r.Version,
		"description":    r.Description,
		"rollbackable":   boolToInt(r.Rollbackable),
		"status":         string(r.Status),
		"executed_at":    formatTimePtr(r.ExecutedAt),
		"executed_by":    r.ExecutedBy,
		"environment":    r.Environment,
		"error_message":  r.ErrorMessage,
		"metadata":       string(md),
		"rolled_back_at": formatTimePtr(r.RolledBackAt),
		"updated_at":     formatTime(r.UpdatedAt),
	}).Where(sq.Eq{"name": r.Name}).ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating migration record %s: %w", r.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating migration record %s: %w", r.Name, err)
	}

	if n == 0 {
		return fmt.Errorf("migration %s: %w", r.Name, record.ErrRecordNotFound)
	}

	return nil
}

// List returns all records ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*record.Record, error) {
	query, args, err := sq.Select(columns...).From(tableName).OrderBy("created_at", "name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying migration records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*record.Record

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning migration record: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migration records: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*record.Record, error) {
	var (
		r                      record.Record
		rollbackable           int
		status, md             string
		executedAt, rolledBack sql.NullString
		createdAt, updatedAt   string
	)

	err := row.Scan(
		&r.ID, &r.Name, &r.Version, &r.Description, &rollbackable, &status,
		&executedAt, &r.ExecutedBy, &r.Environment, &r.ErrorMessage, &md,
		&rolledBack, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Rollbackable = rollbackable != 0

	if r.Status, err = record.ParseStatus(status); err != nil {
		return nil, err
	}

	if r.Metadata, err = record.DecodeMetadata([]byte(md)); err != nil {
		return nil, err
	}

	if r.ExecutedAt, err = parseTimePtr(executedAt); err != nil {
		return nil, err
	}

	if r.RolledBackAt, err = parseTimePtr(rolledBack); err != nil {
		return nil, err
	}

	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return formatTime(*t)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // NULL column
	}

	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", ns.String, err)
	}

	return &t, nil
}
