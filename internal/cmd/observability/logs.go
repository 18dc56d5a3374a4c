package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/config"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View and export labelflow logs",
	Long: `View, filter and export the structured logs written by labelflow.

Logs are read from labelflow.log and its uncompressed backups in the
configured log directory.

Examples:
  # Show the last 50 entries
  labelflow logs

  # Warnings and errors of the last hour
  labelflow logs --level warn --since 1h

  # Everything about one job, as CSV
  labelflow logs --job 64b7e0 -n 0 --format csv --output job.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     string
	logsFolder    string
	logsJob       string
	logsPhase     string
	logsComponent string
	logsGrep      string
	logsFormat    string
	logsOutput    string
)

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsFolder, "folder-id", "", "Only entries of this training folder")
	logsCmd.Flags().StringVar(&logsJob, "job", "", "Only entries of this job")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Only entries of this phase")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only entries of this component (session, poller, savequeue, ...)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: "+strings.Join(logging.ExportFormats, ", "))
	logsCmd.Flags().StringVarP(&logsOutput, "output", "o", "", "Write to this file instead of stdout")
}

// RegisterLogsCmd registers the logs command with the given parent command.
func RegisterLogsCmd(parent *cobra.Command) {
	parent.AddCommand(logsCmd)
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
}

// buildFilter turns the command flags into a log filter.
func buildFilter(now time.Time) (logging.Filter, error) {
	f := logging.Filter{
		FolderID:  logsFolder,
		JobID:     logsJob,
		Phase:     logsPhase,
		Component: logsComponent,
		Contains:  logsGrep,
	}
	if logsLevel != "" {
		f.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return logging.Filter{}, fmt.Errorf("invalid duration format: %w", err)
		}
		f.Since = now.Add(-d)
	}
	return f, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	filter, err := buildFilter(time.Now())
	if err != nil {
		return err
	}

	dir := config.Get().Logging.ResolveDir()
	entries, err := logging.ReadLogs(dir)
	if err != nil {
		return err
	}
	entries = logging.FilterEntries(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsOutput != "" {
		f, err := os.Create(logsOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := logging.Export(f, entries, logsFormat); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), logsOutput)
		return nil
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	if strings.EqualFold(logsFormat, "text") {
		printEntries(out, entries)
		return nil
	}
	return logging.Export(out, entries, logsFormat)
}

// printEntries writes entries as text lines with the level colored.
func printEntries(w io.Writer, entries []logging.Entry) {
	for _, e := range entries {
		line := logging.FormatText(e)
		if style, ok := levelStyles[e.Level]; ok {
			line = strings.Replace(line, e.Level, style.Render(e.Level), 1)
		}
		fmt.Fprintln(w, line)
	}
}
