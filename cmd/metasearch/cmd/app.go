package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/searxng/searxng-sub003/internal/config"
	"github.com/searxng/searxng-sub003/internal/engines"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/internal/telemetry"
	"github.com/searxng/searxng-sub003/internal/transport"
)

// loadSettings loads the effective settings for this invocation.
func loadSettings() (*config.Config, error) {
	return config.Load(configPath)
}

// buildRegistry creates every configured engine. Any broken engine fails
// the whole build so mistakes surface before the first query.
func buildRegistry(cfg *config.Config) (*search.Registry, error) {
	descs, buildErr := engines.Build(cfg.Engines)
	reg, regErr := search.NewRegistry(descs,
		search.WithSuspension(cfg.Search.SuspendAfterFailures, cfg.Search.SuspendFor))
	if buildErr != nil || regErr != nil {
		_ = reg.Close()
		err := errors.Join(buildErr, regErr)
		return nil, serrors.ConfigError(fmt.Sprintf("invalid engine settings:\n%s", err), err)
	}
	if len(reg.Engines()) == 0 {
		_ = reg.Close()
		return nil, serrors.ConfigError("no engines configured", nil).
			WithSuggestion("Run 'metasearch config init' or add engines to the settings file")
	}
	return reg, nil
}

// newTransport creates the HTTP transport for network engines.
func newTransport(cfg *config.Config) *transport.HTTPTransport {
	return transport.New(transport.Config{
		UserAgent:    cfg.Outgoing.UserAgent,
		MaxBodyBytes: cfg.Outgoing.MaxBodyBytes,
		Retries:      cfg.Outgoing.Retries,
	})
}

// newAggregator wires the search service from settings.
func newAggregator(cfg *config.Config, reg *search.Registry, recorders ...search.Recorder) (*search.Aggregator, error) {
	opts := []search.AggregatorOption{
		search.WithSearchTimeout(cfg.Search.Timeout),
		search.WithMaxTimeout(cfg.Outgoing.MaxRequestTimeout),
		search.WithEngineTimeout(cfg.Outgoing.RequestTimeout),
		search.WithRanking(float64(cfg.Search.RankConstant), cfg.Search.CategoriesOrder),
	}
	for _, r := range recorders {
		opts = append(opts, search.WithRecorder(r))
	}
	agg, err := search.NewAggregator(reg, newTransport(cfg), opts...)
	if err != nil {
		return nil, err
	}
	slog.Debug("aggregator_ready",
		slog.Int("engines", len(reg.Engines())),
		slog.Duration("timeout", cfg.Search.Timeout))
	return agg, nil
}

// parseDefaults returns the query defaults from settings.
func parseDefaults(cfg *config.Config) search.ParseDefaults {
	return search.ParseDefaults{
		Language:   cfg.Search.DefaultLanguage,
		Categories: cfg.Search.DefaultCategories,
		SafeSearch: cfg.Search.SafeSearch,
	}
}

// registryBuilder rebuilds the registry from a settings file, for hot reload.
func registryBuilder(path string) (*search.Registry, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return buildRegistry(cfg)
}

// openTelemetry returns a metrics collector persisting to the telemetry
// store, or nil when telemetry is disabled or the store cannot be opened.
// The returned func flushes and releases the store.
func openTelemetry(cfg *config.Config, flushInterval time.Duration) (*telemetry.EngineMetrics, func()) {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Path == "" {
		return nil, func() {}
	}
	store, err := telemetry.OpenSQLiteStore(cfg.Telemetry.Path)
	if err != nil {
		slog.Warn("telemetry_unavailable",
			slog.String("path", cfg.Telemetry.Path),
			slog.String("error", err.Error()))
		return nil, func() {}
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.FlushInterval = flushInterval
	metrics := telemetry.NewEngineMetrics(store, tcfg)
	return metrics, func() {
		if err := metrics.Close(); err != nil {
			slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
		}
		_ = store.Close()
	}
}
