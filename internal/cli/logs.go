package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/logsink"
)

var logsCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "logs <name>",
	Short: "Show the log files of a migration",
	Long: `Print the most recent log file of a migration, or list all of its
log files newest first with --all.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	logsCmd.Flags().Bool("all", false, "list every log file instead of printing the latest")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsink.NewDir(AppConfig.LogDir)
	out := cmd.OutOrStdout()
	name := args[0]

	if all, _ := cmd.Flags().GetBool("all"); all {
		files, err := dir.List(name)
		if err != nil {
			return err
		}

		printLogFiles(out, files, time.Now())

		return nil
	}

	latest, err := dir.Latest(name)
	if err != nil {
		return err
	}

	content, err := dir.Read(latest.Name)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "# %s\n", filepath.Join(dir.Path(), latest.Name))
	_, err = out.Write(content)

	return err
}

func printLogFiles(out io.Writer, files []logsink.LogFile, now time.Time) {
	if len(files) == 0 {
		fmt.Fprintln(out, "No log files found.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")

	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, humanize.Bytes(uint64(f.Size)), humanize.RelTime(f.ModTime, now, "ago", "from now"))
	}

	_ = tw.Flush()
}
