package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/searxng/searxng-sub003/internal/config"
	"github.com/searxng/searxng-sub003/internal/logging"
	"github.com/searxng/searxng-sub003/internal/mcp"
	"github.com/searxng/searxng-sub003/internal/output"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/internal/server"
	"github.com/searxng/searxng-sub003/internal/telemetry"
	"github.com/searxng/searxng-sub003/internal/watcher"
)

// telemetryFlushInterval is how often serve persists telemetry.
const telemetryFlushInterval = time.Minute

type serveOptions struct {
	transport string
	addr      string
	watch     bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over HTTP or MCP",
		Long: `Start a long-running search server.

Transports:
  http   JSON API: GET /search, /engines, /healthz and Prometheus /metrics
  stdio  MCP server for AI assistants (tools web_search and engines_status)

Only one server may run per settings directory. With --watch the settings
file is reloaded when it changes; an invalid edit is logged and the engines
already running stay active.`,
		Example: `  metasearch serve
  metasearch serve --addr 0.0.0.0:8080 --watch
  metasearch serve --transport stdio`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: http or stdio (default from settings)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from settings)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload engines when the settings file changes")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	transport := strings.ToLower(cfg.Server.Transport)
	if opts.transport != "" {
		transport = strings.ToLower(opts.transport)
	}
	if transport != "http" && transport != "stdio" {
		return fmt.Errorf("unknown transport %q (supported: http, stdio)", transport)
	}

	// stdout carries JSON-RPC in stdio mode, so logs go only to the file.
	if transport == "stdio" {
		cleanup, err := logging.SetupServerMode(cfg.Server.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	// One server per settings directory.
	settingsPath := watchedSettingsPath()
	lock := server.NewInstanceLock(filepath.Dir(settingsPath))
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	metrics, closeMetrics := openTelemetry(cfg, telemetryFlushInterval)
	defer closeMetrics()

	prom := telemetry.NewPrometheusCollector()
	recorders := []search.Recorder{prom}
	if metrics != nil {
		recorders = append(recorders, metrics)
	}

	agg, err := newAggregator(cfg, reg, recorders...)
	if err != nil {
		_ = reg.Close()
		return err
	}
	// A reload may have swapped the registry by the time we stop.
	defer func() { _ = agg.Registry().Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		if err := startWatcher(ctx, settingsPath, agg); err != nil {
			return err
		}
	}

	slog.Info("serve_starting",
		slog.String("transport", transport),
		slog.Int("engines", len(reg.Engines())),
		slog.String("lock", lock.Path()))

	if transport == "stdio" {
		ms, err := mcp.NewServer(agg, parseDefaults(cfg))
		if err != nil {
			return err
		}
		if metrics != nil {
			ms.SetMetrics(metrics)
		}
		err = ms.Serve(ctx, "stdio")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	addr := cfg.Server.Addr()
	if opts.addr != "" {
		addr = opts.addr
	}
	srv, err := server.New(agg, server.Config{
		Addr:     addr,
		Defaults: parseDefaults(cfg),
		Metrics:  prom.Handler(),
	})
	if err != nil {
		return err
	}
	output.NewAuto(cmd.ErrOrStderr()).Successf("Listening on http://%s (%d engines)", addr, len(reg.Engines()))
	return srv.ListenAndServe(ctx)
}

// watchedSettingsPath is the explicit --config file, or the user settings.
func watchedSettingsPath() string {
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			return abs
		}
		return configPath
	}
	return config.GetUserConfigPath()
}

func startWatcher(ctx context.Context, path string, target watcher.RegistrySwapper) error {
	w, err := watcher.NewFileWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	go func() {
		if err := w.Start(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("settings_watch_stopped", slog.String("error", err.Error()))
		}
	}()

	r := watcher.NewReloader(path, registryBuilder, target)
	go r.Run(ctx, w)

	slog.Info("settings_watch_started",
		slog.String("path", path),
		slog.String("mode", w.WatcherType()))
	return nil
}
