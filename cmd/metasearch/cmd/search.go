package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/searxng/searxng-sub003/internal/output"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	categories []string
	engines    []string
	page       int
	language   string
	timeRange  string
	safeSearch int
	timeout    string
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search all configured engines",
		Long: `Send a query to the configured engines and print the merged results.

Leading modifiers in the query select engines and language:
  !ddg      use the engine with shortcut or name "ddg"
  !news     use every engine in the "news" category
  :de       search in German

Examples:
  metasearch search "golang generics"
  metasearch search "!ddg :fr tour eiffel"
  metasearch search "release notes" --categories news,it --page 2
  metasearch search "sqlite wal" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("safesearch") {
				opts.safeSearch = -1
			}
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.categories, "categories", nil, "Categories to search (comma separated)")
	cmd.Flags().StringSliceVarP(&opts.engines, "engines", "e", nil, "Engines to search (comma separated)")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Result page")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Search language, e.g. en or de-DE")
	cmd.Flags().StringVar(&opts.timeRange, "time-range", "", "Time range: day, week, month, year")
	cmd.Flags().IntVar(&opts.safeSearch, "safesearch", 0, "Safe search: 0, 1 or 2 (default from settings)")
	cmd.Flags().StringVar(&opts.timeout, "timeout", "", "Query deadline, e.g. 2s or 1.5")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, text string, opts searchOptions) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	metrics, closeMetrics := openTelemetry(cfg, 0)
	defer closeMetrics()

	var recorders []search.Recorder
	if metrics != nil {
		recorders = append(recorders, metrics)
	}
	agg, err := newAggregator(cfg, reg, recorders...)
	if err != nil {
		return err
	}

	req := search.Request{
		Text:       text,
		Categories: opts.categories,
		Engines:    opts.engines,
		PageNo:     opts.page,
		Language:   opts.language,
		TimeRange:  opts.timeRange,
		Timeout:    opts.timeout,
	}
	if opts.safeSearch >= 0 {
		level := opts.safeSearch
		req.SafeSearch = &level
	}

	q, err := search.BuildQuery(req, parseDefaults(cfg), reg)
	if err != nil {
		return err
	}

	slog.Info("search_started", slog.String("query", q.Text), slog.Int("page", q.PageNo))
	c, err := agg.Search(ctx, q)
	if err != nil {
		return err
	}
	resp := results.NewResponse(q.Text, q.PageNo, c)

	if opts.jsonOutput {
		return output.New(cmd.OutOrStdout()).JSON(resp)
	}
	output.NewAuto(cmd.OutOrStdout()).Response(resp)
	return nil
}
