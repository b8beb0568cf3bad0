package runner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aqasim81/data-migration-runner/internal/logsink"
	"github.com/aqasim81/data-migration-runner/internal/migration"
	"github.com/aqasim81/data-migration-runner/internal/record"
	"github.com/aqasim81/data-migration-runner/internal/runner"
)

// fakeDef is an up-only definition with a configurable Up.
type fakeDef struct {
	name    string
	up      func(mc migration.Context, log migration.Logger) (migration.Result, error)
	upCalls int
	lastMC  migration.Context
	order   *[]string
}

func newDef(name string) *fakeDef {
	return &fakeDef{name: name}
}

func (d *fakeDef) Meta() migration.Meta {
	return migration.Meta{Name: d.name, Version: "1.0.0", Description: "test migration " + d.name}
}

func (d *fakeDef) Up(_ context.Context, mc migration.Context, log migration.Logger) (migration.Result, error) {
	d.upCalls++
	d.lastMC = mc

	if d.order != nil {
		*d.order = append(*d.order, d.name)
	}

	if d.up != nil {
		return d.up(mc, log)
	}

	log.Infof("updating rows of %s", d.name)

	return migration.Result{Success: true, RecordsProcessed: migration.Processed(3)}, nil
}

// reversibleDef adds Down.
type reversibleDef struct {
	*fakeDef
	down      func(mc migration.Context) (migration.RollbackResult, error)
	downCalls int
	downMC    migration.Context
}

func newReversible(name string) *reversibleDef {
	return &reversibleDef{fakeDef: newDef(name)}
}

func (d *reversibleDef) Down(_ context.Context, mc migration.Context, _ migration.Logger) (migration.RollbackResult, error) {
	d.downCalls++
	d.downMC = mc

	if d.down != nil {
		return d.down(mc)
	}

	return migration.RollbackResult{Success: true, Metadata: map[string]any{"restored": 3}}, nil
}

// verifiedDef adds Verify.
type verifiedDef struct {
	*fakeDef
	verify      func() (bool, error)
	verifyCalls int
}

func newVerified(name string, verify func() (bool, error)) *verifiedDef {
	return &verifiedDef{fakeDef: newDef(name), verify: verify}
}

func (d *verifiedDef) Verify(context.Context, migration.Logger) (bool, error) {
	d.verifyCalls++
	return d.verify()
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex

	t := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		t = t.Add(time.Second)

		return t
	}
}

type fixture struct {
	runner *runner.Runner
	store  *record.MemoryStore
	logDir string
	events []runner.ProgressEvent
}

func newFixture(t *testing.T, defs ...migration.Definition) *fixture {
	t.Helper()

	reg := migration.NewRegistry()
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}

	f := &fixture{store: record.NewMemoryStore(), logDir: t.TempDir()}
	clock := stepClock()

	f.runner = runner.New(reg, f.store,
		runner.WithClock(clock),
		runner.WithLogDir(logsink.NewDir(f.logDir, logsink.WithClock(clock))),
		runner.WithProgressCallback(func(e runner.ProgressEvent) { f.events = append(f.events, e) }),
	)

	return f
}

func (f *fixture) snapshot(t *testing.T) []*record.Record {
	t.Helper()

	records, err := f.store.List(context.Background())
	require.NoError(t, err)

	return records
}

func (f *fixture) get(t *testing.T, name string) *record.Record {
	t.Helper()

	rec, err := f.store.Get(context.Background(), name)
	require.NoError(t, err)

	return rec
}

// seed stores a record in the given status and environment.
func (f *fixture) seed(t *testing.T, name string, status record.Status, env string, rollbackable bool) {
	t.Helper()

	rec := record.New(record.NewParams{
		Name:         name,
		Version:      "1.0.0",
		Rollbackable: rollbackable,
		Environment:  env,
	}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec.Status = status

	require.NoError(t, f.store.Create(context.Background(), rec))
}

func prod() migration.Context {
	return migration.Context{Environment: "production", ExecutedBy: "deploy-bot", BatchSize: 500}
}

func dryRun() migration.Context {
	mc := prod()
	mc.DryRun = true

	return mc
}
