package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/runner"
)

// errDatabaseURLRequired is returned when the postgres store has no URL.
var errDatabaseURLRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"database URL is required (set --database-url, MIGRATE_DATABASE_URL, or database_url in config)",
)

// errRunFailed is returned when a migration run did not succeed.
var errRunFailed = errors.New("migration run failed")

var runCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "run",
	Short: "Run all pending migrations",
	Long: `Run every registered migration that has not completed in the current
environment, in registration order. Execution stops at the first failure.`,
	Args: cobra.NoArgs,
	RunE: runAll,
}

var runOneCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "run:one <name>",
	Aliases: []string{"run-one"},
	Short:   "Run a single migration",
	Long: `Run one migration by name. A migration that already completed in
the current environment is reported and not executed again.`,
	Args: cobra.ExactArgs(1),
	RunE: runOne,
}

var dryRunCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "dry-run",
	Short: "Run all pending migrations without persisting anything",
	Args:  cobra.NoArgs,
	RunE:  runDryRun,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	for _, cmd := range []*cobra.Command{runCmd, runOneCmd} {
		cmd.Flags().Bool("dry-run", false, "execute without writing migration records")
		cmd.Flags().Int("batch-size", 0, "batch size passed to migrations")
		rootCmd.AddCommand(cmd)
	}

	dryRunCmd.Flags().Int("batch-size", 0, "batch size passed to migrations")
	rootCmd.AddCommand(dryRunCmd)
}

func runAll(cmd *cobra.Command, _ []string) error {
	return runBatch(cmd, false)
}

func runDryRun(cmd *cobra.Command, _ []string) error {
	return runBatch(cmd, true)
}

func runBatch(cmd *cobra.Command, forceDryRun bool) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	a, err := openApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	mc := migrationContext(cmd, cfg)
	mc.DryRun = mc.DryRun || forceDryRun

	if mc.DryRun {
		fmt.Fprintln(out, "--- DRY RUN (no records will be written) ---")
	}

	batch, err := a.runner.RunAll(ctx, mc)
	if batch != nil {
		printBatchSummary(out, batch)
	}

	if err != nil {
		return err
	}

	if !batch.Success {
		failed := batch.Failed()
		if failed == nil {
			return errRunFailed
		}

		return fmt.Errorf("%w: %s: %s", errRunFailed, failed.Name, failed.Error)
	}

	return nil
}

func printBatchSummary(out io.Writer, batch *runner.BatchResult) {
	verb := "Run"
	if batch.DryRun {
		verb = "Dry run"
	}

	if len(batch.Results) == 0 && len(batch.NotAttempted) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return
	}

	fmt.Fprintf(out, "\n%s complete: %d succeeded, %d failed, %d not attempted.\n",
		verb, len(batch.Succeeded()), len(batch.Results)-len(batch.Succeeded()), len(batch.NotAttempted))

	for _, name := range batch.NotAttempted {
		fmt.Fprintf(out, "  not attempted: %s\n", name)
	}
}

func runOne(cmd *cobra.Command, args []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	a, err := openApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.Run(ctx, args[0], migrationContext(cmd, cfg))
	if err != nil {
		return err
	}

	printRunResult(out, res)

	if !res.Success {
		return fmt.Errorf("%w: %s: %s", errRunFailed, res.Name, res.Error)
	}

	return nil
}

func printRunResult(out io.Writer, res *runner.RunResult) {
	if res.AlreadyCompleted {
		return
	}

	fmt.Fprintf(out, "%s: %s in %dms", res.Name, res.Status, res.DurationMS)

	if res.RecordsProcessed != nil {
		fmt.Fprintf(out, ", %d records processed", *res.RecordsProcessed)
	}

	fmt.Fprintln(out)

	if res.LogFile != "" {
		fmt.Fprintf(out, "Log file: %s\n", res.LogFile)
	}
}
