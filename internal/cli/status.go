package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/record"
	"github.com/aqasim81/data-migration-runner/internal/runner"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration execution records",
	Long: `Display every persisted migration record with its status,
environment and when it last ran.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var listCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "list",
	Short: "List registered migrations and their status",
	Long: `List every registered migration in execution order. Migrations that
never ran are shown as PENDING; records of migrations that are no longer
registered are listed last.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	for _, cmd := range []*cobra.Command{statusCmd, listCmd} {
		cmd.Flags().String("format", formatText, "output format (text, json)")
		rootCmd.AddCommand(cmd)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.runner.Records(ctx)
	if err != nil {
		return err
	}

	if format, _ := cmd.Flags().GetString("format"); format == formatJSON {
		return writeJSON(out, records)
	}

	printRecords(out, records, time.Now())

	return nil
}

func printRecords(out io.Writer, records []*record.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No migrations have been executed.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tENVIRONMENT\tEXECUTED\tBY\tERROR")

	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Status, r.Environment, relative(r.ExecutedAt, now), r.ExecutedBy, r.ErrorMessage)
	}

	_ = tw.Flush()
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := openApp(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.runner.List(ctx)
	if err != nil {
		return err
	}

	if format, _ := cmd.Flags().GetString("format"); format == formatJSON {
		return writeJSON(out, entries)
	}

	printEntries(out, entries, time.Now())

	return nil
}

func printEntries(out io.Writer, entries []runner.ListEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No migrations registered.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tSTATUS\tROLLBACK\tEXECUTED\tDESCRIPTION")

	for _, e := range entries {
		name := e.Name
		if !e.Registered {
			name += " (unregistered)"
		}

		rollback := "no"
		if e.Rollbackable {
			rollback = "yes"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, e.Version, e.Status, rollback, relative(e.ExecutedAt, now), e.Description)
	}

	_ = tw.Flush()
}

func relative(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}

	return humanize.RelTime(*t, now, "ago", "from now")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return nil
}
