package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/config"
	"github.com/aqasim81/data-migration-runner/internal/database"
	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/metrics"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
	"github.com/aqasim81/data-migration-runner/internal/record/postgres"
	"github.com/aqasim81/data-migration-runner/internal/record/sqlite"
	"github.com/aqasim81/data-migration-runner/internal/runner"
	"github.com/aqasim81/data-migration-runner/internal/sqlmigration"
)

var (
	registeredMu sync.Mutex             //nolint:gochecknoglobals // guards registered
	registered   []migration.Definition //nolint:gochecknoglobals // filled by Register before Execute
)

// Register adds Go-defined migrations to every command's registry. They run
// before the SQL migrations found in the migrations directory. Call it from
// main before Execute.
func Register(defs ...migration.Definition) {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	registered = append(registered, defs...)
}

func registeredDefinitions() []migration.Definition {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	return append([]migration.Definition(nil), registered...)
}

// app is the wired runner for one command invocation.
type app struct {
	runner  *runner.Runner
	metrics *metrics.Collector
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp connects the record store, builds the registry and returns a
// runner reporting progress to out.
func openApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	logger := log.Logger
	a := &app{metrics: metrics.New()}

	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	store, err := openStore(ctx, cfg, pool)
	if err != nil {
		a.Close()
		return nil, err
	}

	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	reg, err := buildRegistry(cfg, pool, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner = runner.New(reg, store,
		runner.WithLogger(logger),
		runner.WithLogDir(logsink.NewDir(cfg.LogDir, logsink.WithLogger(logger))),
		runner.WithMetrics(a.metrics),
		runner.WithProgressCallback(progressPrinter(out)),
	)

	return a, nil
}

// openPool connects to PostgreSQL when a URL is configured. SQL migrations
// need it even when records are kept elsewhere.
func openPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil //nolint:nilnil // no URL means no pool
	}

	logger.Info().Str("database", config.RedactURL(cfg.DatabaseURL)).Msg("connecting")

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return pool, nil
}

func openStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (record.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		if pool == nil {
			return nil, errDatabaseURLRequired
		}

		store := postgres.New(pool)
		if err := store.EnsureTable(ctx); err != nil {
			return nil, err
		}

		return store, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening record store: %w", err)
		}

		return store, nil
	case config.StoreMemory:
		return record.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// buildRegistry registers Go-defined migrations first, then the SQL files
// in cfg.MigrationsDir. A missing directory is not an error.
func buildRegistry(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*migration.Registry, error) {
	reg := migration.NewRegistry()

	for _, def := range registeredDefinitions() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	var db sqlmigration.DB
	if pool != nil {
		db = pool
	}

	defs, err := sqlmigration.Load(cfg.MigrationsDir, db, sqlmigration.WithTimeouts(sqlmigration.Timeouts{
		Lock:      cfg.LockTimeout,
		Statement: cfg.StatementTimeout,
	}))

	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug().Str("dir", cfg.MigrationsDir).Msg("no SQL migrations directory")
	case err != nil:
		return nil, fmt.Errorf("loading SQL migrations: %w", err)
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// migrationContext builds the per-invocation context from config and the
// command's flags.
func migrationContext(cmd *cobra.Command, cfg *config.Config) migration.Context {
	mc := migration.Context{
		BatchSize:   cfg.BatchSize,
		Environment: cfg.Environment,
		ExecutedBy:  executedBy(cfg),
	}

	mc.Verbose, _ = cmd.Flags().GetBool("verbose")

	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		mc.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	if cmd.Flags().Changed("batch-size") {
		mc.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}

	return mc
}

func executedBy(cfg *config.Config) string {
	if cfg.ExecutedBy != "" {
		return cfg.ExecutedBy
	}

	if u := os.Getenv("USER"); u != "" {
		return u
	}

	return "cli"
}

// progressPrinter renders runner progress events as one line per migration.
func progressPrinter(out io.Writer) func(runner.ProgressEvent) {
	return func(event runner.ProgressEvent) {
		switch event.Status {
		case runner.StatusStarting:
			fmt.Fprintf(out, "  Running %s ... ", event.Name)
		case runner.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
		case runner.StatusSkipped:
			fmt.Fprintf(out, "  %s already completed, skipping\n", event.Name)
		case runner.StatusFailed:
			fmt.Fprintf(out, "FAILED\n")
			fmt.Fprintf(out, "    Error: %v\n", event.Error)
		case runner.StatusRolledBack:
			fmt.Fprintf(out, "  Rolled back %s (%s)\n", event.Name, event.Duration.Truncate(time.Millisecond))
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
