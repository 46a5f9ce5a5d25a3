// Package engines builds search adapters from engine settings.
//
// Each engine type registers a Factory under its configuration name. New
// turns one config.EngineConfig into a search.Descriptor; Build does the
// same for a whole settings file and reports every broken entry at once.
package engines

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
)

// Factory creates the adapter for one configured engine. Missing or invalid
// options are reported here, once, rather than on every query.
type Factory func(cfg config.EngineConfig) (search.Adapter, error)

type registration struct {
	kind       search.Kind
	categories []string
	factory    Factory
}

var (
	mu        sync.RWMutex
	factories = map[string]registration{}
)

// Register makes an engine type available to New. categories are the
// defaults used when the settings list none.
func Register(engineType string, kind search.Kind, categories []string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(engineType)] = registration{kind: kind, categories: categories, factory: f}
}

// Types lists the registered engine types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the descriptor for one engine.
func New(cfg config.EngineConfig) (*search.Descriptor, error) {
	mu.RLock()
	reg, ok := factories[strings.ToLower(cfg.Engine)]
	mu.RUnlock()
	if !ok {
		return nil, serrors.New(serrors.ErrCodeEngineUnknown,
			fmt.Sprintf("engine %q has unknown type %q", cfg.Name, cfg.Engine), nil).
			WithDetail("engine", cfg.Name).
			WithSuggestion(fmt.Sprintf("Known types: %s", strings.Join(Types(), ", ")))
	}

	adapter, err := reg.factory(cfg)
	if err != nil {
		if serrors.KindOf(err) == serrors.KindConfiguration {
			return nil, err
		}
		return nil, serrors.EngineConfigError(cfg.Name, fmt.Sprintf("engine %q: %s", cfg.Name, err), err)
	}

	categories := cfg.Categories
	if len(categories) == 0 {
		categories = reg.categories
	}

	return &search.Descriptor{
		Name:       cfg.Name,
		Shortcut:   cfg.Shortcut,
		Categories: append([]string(nil), categories...),
		Paging:     cfg.Paging,
		Kind:       reg.kind,
		Timeout:    cfg.Timeout,
		Weight:     cfg.Weight,
		Disabled:   cfg.Disabled,
		Adapter:    adapter,
		State:      search.NewEngineState(),
	}, nil
}

// Build creates descriptors for every configured engine. Engines that fail
// to build are left out and their errors joined; the rest are returned.
func Build(cfgs []config.EngineConfig) ([]*search.Descriptor, error) {
	var (
		descs []*search.Descriptor
		errs  []error
	)
	for _, cfg := range cfgs {
		d, err := New(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descs = append(descs, d)
	}
	return descs, errors.Join(errs...)
}

func optionInt(cfg config.EngineConfig, key string, fallback int) (int, error) {
	raw := cfg.Option(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("option %s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func requireOption(cfg config.EngineConfig, key string) (string, error) {
	v := strings.TrimSpace(cfg.Option(key, ""))
	if v == "" {
		return "", serrors.EngineConfigError(cfg.Name,
			fmt.Sprintf("engine %q: option %s is required", cfg.Name, key), nil)
	}
	return v, nil
}
