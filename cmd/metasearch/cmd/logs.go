package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/searxng/searxng-sub003/internal/logging"
	"github.com/searxng/searxng-sub003/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	queryID string
	engine  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server logs",
		Long: `View and tail the metasearch log file.

Logs are written to ~/.metasearch/logs/metasearch.log when serving over
stdio or when --debug is set. By default the last 50 lines are shown; use
-f to follow new entries (like 'tail -f').`,
		Example: `  metasearch logs -n 100
  metasearch logs -f --level warn
  metasearch logs --engine duckduckgo
  metasearch logs --query-id 6f1c2a0e --filter timeout`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this pattern (regex)")
	cmd.Flags().StringVar(&opts.queryID, "query-id", "", "Only entries of this query")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "Only entries of this engine")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	stdout := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		QueryID: opts.queryID,
		Engine:  opts.engine,
		NoColor: opts.noColor || !output.UseColor(stdout),
	}, stdout)

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Log file: %s\n", path)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(stdout, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
