package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aqasim81/data-migration-runner/internal/record"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps migration records in the data_migrations table.
type Store struct {
	db DB
}

var _ record.Store = (*Store)(nil)

// New creates a Store backed by the given pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// EnsureTable creates the data_migrations table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createSchemaSQL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// Get returns the record for name.
func (s *Store) Get(ctx context.Context, name string) (*record.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM data_migrations WHERE name = $1`,
		name,
	)

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

	_, err = s.db.Exec(ctx,
		`INSERT INTO data_migrations (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.Name, r.Version, r.Description, r.Rollbackable, string(r.Status),
		r.ExecutedAt, r.ExecutedBy, r.Environment, r.ErrorMessage, md,
		r.RolledBackAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
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

	tag, err := s.db.Exec(ctx,
		`UPDATE data_migrations SET
		     version = $2,
		     description = $3,
		     rollbackable = $4,
		     status = $5,
		     executed_at = $6,
		     executed_by = $7,
		     environment = $8,
		     error_message = $9,
		     metadata = $10,
		     rolled_back_at = $11,
		     updated_at = $12
		 WHERE name = $1`,
		r.Name, r.Version, r.Description, r.Rollbackable, string(r.Status),
		r.ExecutedAt, r.ExecutedBy, r.Environment, r.ErrorMessage, md,
		r.RolledBackAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating migration record %s: %w", r.Name, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("migration %s: %w", r.Name, record.ErrRecordNotFound)
	}

	return nil
}

// List returns all records ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*record.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM data_migrations ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying migration records: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*record.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning migration records: %w", err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*record.Record, error) {
	var (
		r      record.Record
		status string
		md     []byte
	)

	err := row.Scan(
		&r.ID, &r.Name, &r.Version, &r.Description, &r.Rollbackable, &status,
		&r.ExecutedAt, &r.ExecutedBy, &r.Environment, &r.ErrorMessage, &md,
		&r.RolledBackAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Status, err = record.ParseStatus(status); err != nil {
		return nil, err
	}

	if r.Metadata, err = record.DecodeMetadata(md); err != nil {
		return nil, err
	}

	return &r, nil
}
