package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/searxng/searxng-sub003/internal/engines"
	"github.com/searxng/searxng-sub003/internal/output"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// checkConcurrency bounds parallel checks in `engines check`.
const checkConcurrency = 8

func newEnginesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List and check configured engines",
	}
	cmd.AddCommand(newEnginesListCmd())
	cmd.AddCommand(newEnginesCheckCmd())
	return cmd
}

func newEnginesListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured engines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(reg.Status())
			}
			out := output.NewAuto(cmd.OutOrStdout())
			out.Engines(reg.Status())
			out.Newline()
			out.Statusf("", "Engine types: %v", engines.Types())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// CheckResult is the outcome of probing one engine.
type CheckResult struct {
	Engine  string         `json:"engine"`
	Status  results.Status `json:"status"`
	Results int            `json:"results"`
	Elapsed string         `json:"elapsed"`
	Message string         `json:"message,omitempty"`
}

func newEnginesCheckCmd() *cobra.Command {
	var (
		jsonOutput bool
		query      string
	)

	cmd := &cobra.Command{
		Use:   "check [engine...]",
		Short: "Send a test query to each engine",
		Long: `Send one test query to every enabled engine, or to the named engines,
and report how each answered. Checks run in parallel.

Exits with an error when any checked engine failed or timed out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnginesCheck(cmd.Context(), cmd, query, args, jsonOutput)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "test", "Query to send")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runEnginesCheck(ctx context.Context, cmd *cobra.Command, text string, names []string, jsonOutput bool) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	agg, err := newAggregator(cfg, reg)
	if err != nil {
		return err
	}

	targets, err := checkTargets(reg, names)
	if err != nil {
		return err
	}

	checks := make([]CheckResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for i, name := range targets {
		g.Go(func() error {
			checks[i] = checkEngine(gctx, agg, reg, name, text)
			return nil
		})
	}
	_ = g.Wait()

	if jsonOutput {
		if err := output.New(cmd.OutOrStdout()).JSON(checks); err != nil {
			return err
		}
	} else {
		printChecks(output.NewAuto(cmd.OutOrStdout()), checks)
	}

	var failed int
	for _, c := range checks {
		if c.Status == results.StatusFailed || c.Status == results.StatusTimedOut {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d engines failed", failed, len(checks))
	}
	return nil
}

// checkTargets resolves the engines to check: the named ones, or every enabled engine.
func checkTargets(reg *search.Registry, names []string) ([]string, error) {
	if len(names) == 0 {
		var all []string
		for _, d := range reg.Engines() {
			if !d.Disabled {
				all = append(all, d.Name)
			}
		}
		return all, nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		d, ok := reg.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown engine %q", n)
		}
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out, nil
}

func checkEngine(ctx context.Context, agg *search.Aggregator, reg *search.Registry, name, text string) CheckResult {
	res := CheckResult{Engine: name}
	q, err := search.BuildQuery(search.Request{Text: text, Engines: []string{name}}, search.ParseDefaults{}, reg)
	if err != nil {
		res.Status = results.StatusFailed
		res.Message = err.Error()
		return res
	}

	start := time.Now()
	c, err := agg.Search(ctx, q)
	res.Elapsed = time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		res.Status = results.StatusFailed
		res.Message = err.Error()
		return res
	}
	c.Finalize()
	for _, r := range c.Reports() {
		if r.Engine == name {
			res.Status = r.Status
			res.Results = r.Results
			res.Message = r.Message
			res.Elapsed = r.Elapsed.Round(time.Millisecond).String()
		}
	}
	if res.Status == "" {
		res.Status = results.StatusSkipped
	}
	return res
}

func printChecks(out *output.Writer, checks []CheckResult) {
	for _, c := range checks {
		line := fmt.Sprintf("%-20s %-10s %4d results  %8s", c.Engine, c.Status, c.Results, c.Elapsed)
		if c.Message != "" {
			line += "  " + c.Message
		}
		switch c.Status {
		case results.StatusSuccess:
			out.Success(line)
		case results.StatusEmpty, results.StatusSkipped:
			out.Warning(line)
		default:
			out.Error(line)
		}
	}
}
