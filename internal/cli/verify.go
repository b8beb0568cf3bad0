package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errVerificationFailed is returned when at least one verifier reported false.
var errVerificationFailed = errors.New("verification failed")

var verifyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "verify [name]",
	Short: "Run post-execution verifiers",
	Long: `Run the verifier of one migration, or of every completed migration
when no name is given. Verification never changes migration records.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		ok, err := a.runner.Verify(ctx, args[0])
		if err != nil {
			return err
		}

		if !ok {
			fmt.Fprintf(out, "%s: FAILED\n", args[0])
			return fmt.Errorf("%w: %s", errVerificationFailed, args[0])
		}

		fmt.Fprintf(out, "%s: ok\n", args[0])

		return nil
	}

	results, err := a.runner.VerifyCompleted(ctx)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No completed migrations to verify.")
		return nil
	}

	failed := 0

	for _, r := range results {
		switch {
		case r.Note != "":
			fmt.Fprintf(out, "%s: skipped (%s)\n", r.Name, r.Note)
		case r.Verified:
			fmt.Fprintf(out, "%s: ok\n", r.Name)
		default:
			fmt.Fprintf(out, "%s: FAILED\n", r.Name)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d migration(s)", errVerificationFailed, failed)
	}

	return nil
}
