package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/searxng/searxng-sub003/internal/engines"
	"github.com/searxng/searxng-sub003/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "index <documents.jsonl>",
		Short: "Build a local full-text index for the bleve engine",
		Long: `Build a bleve index from JSON Lines documents, one object per line:

  {"url": "https://example.org/a", "title": "A", "content": "...", "category": "general"}

Lines without a url are skipped. Use "-" to read from stdin. Point a
'bleve' engine's path option at the output directory to search it.`,
		Example: `  metasearch index bookmarks.jsonl --out ~/.metasearch/bookmarks.bleve
  cat export.jsonl | metasearch index - --out ./docs.bleve --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], outPath, force)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Index directory to create (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing index")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, src, outPath string, force bool) error {
	var r io.Reader
	if src == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("failed to open documents: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	slog.Info("index_started", slog.String("source", src), slog.String("out", outPath))
	stats, err := engines.BuildIndex(ctx, outPath, r, force)
	if err != nil {
		return err
	}
	slog.Info("index_complete", slog.Int("indexed", stats.Indexed), slog.Int("skipped", stats.Skipped))

	out := output.NewAuto(cmd.OutOrStdout())
	out.Successf("Indexed %d documents into %s", stats.Indexed, outPath)
	if stats.Skipped > 0 {
		out.Warningf("Skipped %d lines without a url or with invalid JSON", stats.Skipped)
	}
	return nil
}
