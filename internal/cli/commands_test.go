package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/data-migration-runner/internal/config"
	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
	"github.com/aqasim81/data-migration-runner/internal/runner"
)

type testDef struct {
	name   string
	fail   bool
	verify *bool
}

func (d testDef) Meta() migration.Meta {
	return migration.Meta{Name: d.name, Version: "1.0.0", Description: "cli test " + d.name}
}

func (d testDef) Up(_ context.Context, _ migration.Context, log migration.Logger) (migration.Result, error) {
	if d.fail {
		return migration.Result{}, errors.New("constraint violation")
	}

	log.Infof("touched rows")

	return migration.Result{Success: true, RecordsProcessed: migration.Processed(4)}, nil
}

type reversibleDef struct{ testDef }

func (reversibleDef) Down(context.Context, migration.Context, migration.Logger) (migration.RollbackResult, error) {
	return migration.RollbackResult{Success: true}, nil
}

type verifiedDef struct{ testDef }

func (d verifiedDef) Verify(context.Context, migration.Logger) (bool, error) {
	return *d.verify, nil
}

// useConfig installs a sqlite-backed config and the given Go migrations.
// Tests using it mutate package globals and must not run in parallel.
func useConfig(t *testing.T, defs ...migration.Definition) *config.Config {
	t.Helper()

	oldCfg := AppConfig

	registeredMu.Lock()
	oldDefs := registered
	registered = nil
	registeredMu.Unlock()

	t.Cleanup(func() {
		AppConfig = oldCfg

		registeredMu.Lock()
		registered = oldDefs
		registeredMu.Unlock()
	})

	dir := t.TempDir()

	cfg := config.New()
	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(dir, "records.db")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.MigrationsDir = filepath.Join(dir, "no-sql-migrations")
	cfg.Environment = "test"
	cfg.ExecutedBy = "tester"

	AppConfig = cfg
	Register(defs...)

	return cfg
}

func newCmd(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().Int("batch-size", 0, "")
	cmd.Flags().String("format", formatText, "")
	cmd.Flags().Bool("all", false, "")

	return cmd
}

func TestRunAll_runsPendingAndRecordsThem(t *testing.T) {
	useConfig(t, testDef{name: "a"}, testDef{name: "b"})

	buf := new(bytes.Buffer)
	require.NoError(t, runAll(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "Running a ... done")
	assert.Contains(t, buf.String(), "2 succeeded, 0 failed, 0 not attempted")

	buf.Reset()
	require.NoError(t, runAll(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "No pending migrations.")

	buf.Reset()
	require.NoError(t, runStatus(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "COMPLETED")
	assert.Contains(t, buf.String(), "tester")
}

func TestRunAll_failureStopsAndErrors(t *testing.T) {
	useConfig(t, testDef{name: "a", fail: true}, testDef{name: "b"})

	buf := new(bytes.Buffer)
	err := runAll(newCmd(buf), nil)

	require.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.Contains(t, buf.String(), "FAILED")
	assert.Contains(t, buf.String(), "not attempted: b")
}

func TestRunDryRun_writesNoRecords(t *testing.T) {
	useConfig(t, testDef{name: "a"})

	buf := new(bytes.Buffer)
	require.NoError(t, runDryRun(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "DRY RUN")
	assert.Contains(t, buf.String(), "Dry run complete: 1 succeeded")

	buf.Reset()
	require.NoError(t, runStatus(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "No migrations have been executed.")
}

func TestRunDryRun_sqlMigrationsParseWithoutDatabase(t *testing.T) {
	cfg := useConfig(t)
	cfg.MigrationsDir = filepath.Join("..", "..", "testdata", "migrations")

	buf := new(bytes.Buffer)
	require.NoError(t, runDryRun(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "Dry run complete: 3 succeeded")
}

func TestRunOne(t *testing.T) {
	useConfig(t, testDef{name: "a"}, testDef{name: "bad", fail: true})

	buf := new(bytes.Buffer)
	require.NoError(t, runOne(newCmd(buf), []string{"a"}))
	assert.Contains(t, buf.String(), "a: COMPLETED")
	assert.Contains(t, buf.String(), "4 records processed")

	buf.Reset()
	require.NoError(t, runOne(newCmd(buf), []string{"a"}))
	assert.Contains(t, buf.String(), "a already completed, skipping")

	err := runOne(newCmd(new(bytes.Buffer)), []string{"bad"})
	require.ErrorIs(t, err, errRunFailed)

	err = runOne(newCmd(new(bytes.Buffer)), []string{"missing"})
	require.ErrorIs(t, err, runner.ErrNotFound)
}

func TestRollback(t *testing.T) {
	useConfig(t, testDef{name: "plain"}, reversibleDef{testDef{name: "rev"}})

	require.NoError(t, runAll(newCmd(new(bytes.Buffer)), nil))

	buf := new(bytes.Buffer)
	require.NoError(t, runRollback(newCmd(buf), []string{"rev"}))
	assert.Contains(t, buf.String(), "rev is now ROLLED_BACK")

	err := runRollback(newCmd(new(bytes.Buffer)), []string{"plain"})
	require.ErrorIs(t, err, errRollbackFailed)
	require.ErrorIs(t, err, runner.ErrNotRollbackable)

	buf.Reset()
	require.NoError(t, runList(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "ROLLED_BACK")
}

func TestVerify(t *testing.T) {
	// "bad" passes while it runs and starts failing afterwards, the way data
	// drifts after a completed migration.
	good, bad := true, true
	useConfig(t,
		verifiedDef{testDef{name: "good", verify: &good}},
		verifiedDef{testDef{name: "bad", verify: &bad}},
		testDef{name: "plain"},
	)

	buf := new(bytes.Buffer)
	require.NoError(t, runVerify(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "No completed migrations to verify.")

	require.NoError(t, runAll(newCmd(new(bytes.Buffer)), nil))

	buf.Reset()
	require.NoError(t, runVerify(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "bad: ok")

	bad = false

	buf.Reset()
	require.NoError(t, runVerify(newCmd(buf), []string{"good"}))
	assert.Contains(t, buf.String(), "good: ok")

	buf.Reset()
	err := runVerify(newCmd(buf), []string{"bad"})
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, buf.String(), "bad: FAILED")

	buf.Reset()
	err = runVerify(newCmd(buf), nil)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, buf.String(), "good: ok")
	assert.Contains(t, buf.String(), "bad: FAILED")
	assert.Contains(t, buf.String(), "plain: skipped (no verifier)")

	buf.Reset()
	require.NoError(t, runAll(newCmd(buf), nil))
	assert.Contains(t, buf.String(), "No pending migrations.", "verify never changes records")
}

func TestList_jsonFormat(t *testing.T) {
	useConfig(t, testDef{name: "a"}, reversibleDef{testDef{name: "b"}})

	buf := new(bytes.Buffer)
	cmd := newCmd(buf)
	require.NoError(t, cmd.Flags().Set("format", formatJSON))

	require.NoError(t, runList(cmd, nil))
	assert.Contains(t, buf.String(), `"name": "a"`)
	assert.Contains(t, buf.String(), `"status": "PENDING"`)
	assert.Contains(t, buf.String(), `"rollbackable": true`)
}

func TestLogs(t *testing.T) {
	useConfig(t, testDef{name: "a"})

	err := runLogs(newCmd(new(bytes.Buffer)), []string{"a"})
	require.ErrorIs(t, err, logsink.ErrNoLogs)

	require.NoError(t, runAll(newCmd(new(bytes.Buffer)), nil))

	buf := new(bytes.Buffer)
	require.NoError(t, runLogs(newCmd(buf), []string{"a"}))
	assert.Contains(t, buf.String(), "Migration: a")
	assert.Contains(t, buf.String(), "touched rows")

	buf.Reset()
	cmd := newCmd(buf)
	require.NoError(t, cmd.Flags().Set("all", "true"))
	require.NoError(t, runLogs(cmd, []string{"a"}))
	assert.Contains(t, buf.String(), "FILE")
	assert.Contains(t, buf.String(), ".log")
}

func TestBuildRegistry_goMigrationsComeFirst(t *testing.T) {
	cfg := useConfig(t, testDef{name: "go_first"})
	cfg.MigrationsDir = filepath.Join("..", "..", "testdata", "migrations")

	reg, err := buildRegistry(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"go_first", "backfill_user_slugs", "normalize_emails", "index_user_slugs"}, reg.Names())

	def, ok := reg.Get("normalize_emails")
	require.True(t, ok)
	assert.True(t, migration.Rollbackable(def))
}

func TestMigrationContext_flagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.Environment = "production"
	cfg.ExecutedBy = "ops"

	cmd := newCmd(new(bytes.Buffer))
	require.NoError(t, cmd.Flags().Set("dry-run", "true"))
	require.NoError(t, cmd.Flags().Set("batch-size", "25"))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))

	mc := migrationContext(cmd, cfg)
	assert.Equal(t, migration.Context{
		DryRun:      true,
		BatchSize:   25,
		Environment: "production",
		ExecutedBy:  "ops",
		Verbose:     true,
	}, mc)
}

func TestPrintRecords(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	executed := now.Add(-2 * time.Hour)

	buf := new(bytes.Buffer)
	printRecords(buf, []*record.Record{{
		Name:         "backfill",
		Status:       record.StatusFailed,
		Environment:  "production",
		ExecutedAt:   &executed,
		ExecutedBy:   "ops",
		ErrorMessage: "boom",
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "boom")
}
