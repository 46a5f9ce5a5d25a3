// Package cmd provides the CLI commands for metasearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/logging"
	"github.com/searxng/searxng-sub003/internal/profiling"
	"github.com/searxng/searxng-sub003/pkg/version"
)

// Persistent flags
var (
	configPath     string
	debugMode      bool
	profileDir     string
	loggingCleanup func()
	profile        *profiling.Session
)

// NewRootCmd creates the root command for the metasearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metasearch",
		Short: "Query many search engines at once and merge the results",
		Long: `metasearch sends one query to every configured search engine in
parallel, waits up to a deadline, and merges what came back into a single
ranked, deduplicated result list with answers, suggestions and a report of
the engines that did not respond.

It can be used from the command line, served as a JSON API over HTTP,
or served to AI assistants over MCP (stdio).`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("metasearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: user settings)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.metasearch/logs/")

	cmd.PersistentFlags().StringVar(&profileDir, "profile-dir", "", "Write CPU, heap and trace profiles into this directory")
	_ = cmd.PersistentFlags().MarkHidden("profile-dir")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := startLogging(c, args); err != nil {
			return err
		}
		return startProfiling()
	}
	cmd.PersistentPostRunE = func(c *cobra.Command, args []string) error {
		profErr := stopProfiling()
		if err := stopLogging(c, args); err != nil {
			return err
		}
		return profErr
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEnginesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs debug file logging when --debug is set. Commands
// that need a different setup (serve over stdio) replace it themselves.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		logging.SetupConsole("warn", os.Stderr)
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func startProfiling() error {
	if profileDir == "" {
		return nil
	}
	s, err := profiling.Start(profileDir)
	if err != nil {
		return err
	}
	profile = s
	slog.Debug("profiling_started", slog.String("dir", profileDir))
	return nil
}

func stopProfiling() error {
	if profile == nil {
		return nil
	}
	err := profile.Stop()
	mem := profiling.MemStats()
	slog.Info("profiling_stopped",
		slog.String("dir", profile.Dir()),
		slog.String("heap_alloc", profiling.FormatBytes(mem.HeapAlloc)))
	profile = nil
	return err
}

// Execute runs the root command and prints errors in CLI form.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, serrors.FormatForCLI(err))
	}
	return err
}
