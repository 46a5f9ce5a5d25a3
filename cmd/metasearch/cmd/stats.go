package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/searxng/searxng-sub003/internal/output"
	"github.com/searxng/searxng-sub003/internal/telemetry"
)

// statsTopTerms bounds the terms and zero-result queries shown.
const statsTopTerms = 10

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine and query statistics",
		Long: `Display statistics recorded in the telemetry store by 'search' and 'serve'.
Telemetry is kept locally and can be disabled with telemetry.enabled: false.`,
	}
	cmd.AddCommand(newStatsEnginesCmd())
	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

type statsOptions struct {
	days       int
	jsonOutput bool
}

func (o *statsOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.days, "days", 7, "Number of days to include")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Output as JSON")
}

func newStatsEnginesCmd() *cobra.Command {
	var opts statsOptions
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Show per-engine outcomes, error rates and latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := loadStats(opts.days)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(snap.Engines)
			}
			output.NewAuto(cmd.OutOrStdout()).EngineStats(snap)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var opts statsOptions
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query volume, latency, top terms and zero-result queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := loadStats(opts.days)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(snap)
			}
			output.NewAuto(cmd.OutOrStdout()).QueryStats(snap)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func loadStats(days int) (*telemetry.Snapshot, error) {
	if days <= 0 {
		return nil, fmt.Errorf("--days must be positive, got %d", days)
	}
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Telemetry.Path); err != nil {
		return nil, fmt.Errorf("no telemetry recorded at %s\nRun 'metasearch search' or 'metasearch serve' first", cfg.Telemetry.Path)
	}

	store, err := telemetry.OpenSQLiteStore(cfg.Telemetry.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	to := time.Now()
	from := to.AddDate(0, 0, -(days - 1))
	return telemetry.LoadSnapshot(store, from, to, statsTopTerms)
}
