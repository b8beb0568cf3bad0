package sqlmigration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aqasim81/data-migration-runner/internal/migration"
)

// Option configures the definitions built from SQL files.
type Option func(*Definition)

// WithTimeouts sets the lock and statement timeouts applied to transactional scripts.
func WithTimeouts(t Timeouts) Option {
	return func(d *Definition) { d.timeouts = t }
}

// Definition runs the up script of a File. Use New to get a value that also
// implements migration.Rollbacker and migration.Verifier when the file has
// the matching scripts.
type Definition struct {
	file     File
	db       DB
	timeouts Timeouts
}

type reversible struct{ *Definition }

func (r reversible) Down(ctx context.Context, mc migration.Context, log migration.Logger) (migration.RollbackResult, error) {
	return r.down(ctx, mc, log)
}

type verified struct{ *Definition }

func (v verified) Verify(ctx context.Context, log migration.Logger) (bool, error) {
	return v.verify(ctx, log)
}

type reversibleVerified struct{ *Definition }

func (r reversibleVerified) Down(ctx context.Context, mc migration.Context, log migration.Logger) (migration.RollbackResult, error) {
	return r.down(ctx, mc, log)
}

func (r reversibleVerified) Verify(ctx context.Context, log migration.Logger) (bool, error) {
	return r.verify(ctx, log)
}

// New builds the definition for f. The result is rollbackable only when f
// has a down script.
func New(f File, db DB, opts ...Option) migration.Definition {
	d := &Definition{file: f, db: db}
	for _, opt := range opts {
		opt(d)
	}

	switch {
	case f.Reversible() && f.Verifiable():
		return reversibleVerified{d}
	case f.Reversible():
		return reversible{d}
	case f.Verifiable():
		return verified{d}
	default:
		return d
	}
}

// Load reads dir and builds one definition per migration, in version order.
func Load(dir string, db DB, opts ...Option) ([]migration.Definition, error) {
	files, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}

	defs := make([]migration.Definition, 0, len(files))
	for _, f := range files {
		defs = append(defs, New(f, db, opts...))
	}

	return defs, nil
}

// File returns the underlying SQL file.
func (d *Definition) File() File {
	return d.file
}

// Meta implements migration.Definition.
func (d *Definition) Meta() migration.Meta {
	return migration.Meta{
		Name:        d.file.Name,
		Version:     d.file.Version,
		Description: fmt.Sprintf("SQL migration %s", filepath.Base(d.file.Path)),
	}
}

// Up implements migration.Definition.
func (d *Definition) Up(ctx context.Context, mc migration.Context, log migration.Logger) (migration.Result, error) {
	rows, md, err := d.apply(ctx, "up", d.file.UpSQL, mc, log)
	if err != nil {
		return migration.Result{}, err
	}

	return migration.Result{
		Success:          true,
		RecordsProcessed: migration.Processed(int(rows)),
		Metadata:         md,
	}, nil
}

func (d *Definition) down(ctx context.Context, mc migration.Context, log migration.Logger) (migration.RollbackResult, error) {
	_, md, err := d.apply(ctx, "down", d.file.DownSQL, mc, log)
	if err != nil {
		return migration.RollbackResult{}, err
	}

	return migration.RollbackResult{Success: true, Metadata: md}, nil
}

func (d *Definition) verify(ctx context.Context, log migration.Logger) (bool, error) {
	if d.db == nil {
		return false, fmt.Errorf("verify script of %s: %w", d.file.Name, ErrNoDatabase)
	}

	var ok bool

	if err := d.db.QueryRow(ctx, d.file.VerifySQL).Scan(&ok); err != nil {
		return false, fmt.Errorf("running verify script for %s: %w", d.file.Name, err)
	}

	log.Infof("verify script returned %t", ok)

	return ok, nil
}

func (d *Definition) apply(
	ctx context.Context, direction, sql string, mc migration.Context, log migration.Logger,
) (int64, map[string]any, error) {
	parsed, err := parseScript(sql)
	if err != nil {
		return 0, nil, fmt.Errorf("%s script of %s: %w", direction, d.file.Name, err)
	}

	noTx := parsed.needsNoTransaction()
	md := map[string]any{
		"checksum":      d.file.Checksum,
		"statements":    parsed.statementCount(),
		"transactional": !noTx,
	}

	log.Debugf("%s script has %d statement(s), checksum %s", direction, parsed.statementCount(), d.file.Checksum)

	if mc.DryRun {
		log.Infof("dry run: %s script parsed, not executed", direction)
		return 0, md, nil
	}

	if d.db == nil {
		return 0, nil, fmt.Errorf("%s script of %s: %w", direction, d.file.Name, ErrNoDatabase)
	}

	var rows int64

	if noTx {
		log.Warnf("%s script uses a concurrent index operation; running outside a transaction", direction)

		tag, err := execWithoutTransaction(ctx, d.db, sql)
		if err != nil {
			return 0, nil, err
		}

		rows = tag.RowsAffected()
	} else {
		tag, err := execInTransaction(ctx, d.db, sql, d.timeouts)
		if err != nil {
			return 0, nil, err
		}

		rows = tag.RowsAffected()
	}

	log.Infof("%s script applied, %d row(s) affected", direction, rows)

	return rows, md, nil
}
