package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errRollbackFailed is returned when a rollback was rejected or Down failed.
var errRollbackFailed = errors.New("rollback failed")

var rollbackCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "rollback <name>",
	Short: "Roll back a completed migration",
	Long: `Roll back one completed migration by running its down step. Only
migrations that define a down step can be rolled back. A rolled back
migration is pending again and the next run executes it anew.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rollbackCmd.Flags().Bool("dry-run", false, "run the down step without writing the record")
	rollbackCmd.Flags().Int("batch-size", 0, "batch size passed to the down step")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.Rollback(ctx, args[0], migrationContext(cmd, AppConfig))
	if err != nil {
		return err
	}

	if !res.Success {
		fmt.Fprintf(out, "Rollback of %s failed: %s\n", res.Name, res.Error)

		return fmt.Errorf("%w: %w", errRollbackFailed, res.Err)
	}

	fmt.Fprintf(out, "%s is now %s\n", res.Name, res.Status)

	if res.LogFile != "" {
		fmt.Fprintf(out, "Log file: %s\n", res.LogFile)
	}

	return nil
}
