package search

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

// Registry holds the configured engines and their suspension state.
// It is read-only during a query except for the circuit breakers.
type Registry struct {
	mu         sync.RWMutex
	engines    []*Descriptor
	byName     map[string]*Descriptor
	byShortcut map[string]*Descriptor
	categories map[string]bool
	breakers   map[string]*serrors.CircuitBreaker

	suspendAfter int
	suspendFor   time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSuspension suspends an engine for d after n consecutive failures.
// n <= 0 disables suspension.
func WithSuspension(n int, d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.suspendAfter = n
		r.suspendFor = d
	}
}

// NewRegistry validates descs and builds a registry of the valid ones.
//
// Invalid engines are left out and reported in the returned error, which
// joins one configuration error per engine. The registry is usable even
// when the error is non-nil; callers decide whether that is fatal.
func NewRegistry(descs []*Descriptor, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		byName:       make(map[string]*Descriptor),
		byShortcut:   make(map[string]*Descriptor),
		categories:   make(map[string]bool),
		breakers:     make(map[string]*serrors.CircuitBreaker),
		suspendAfter: 3,
		suspendFor:   time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}

	var errs []error
	for _, d := range descs {
		if d == nil {
			continue
		}
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			slog.Warn("engine_disabled",
				slog.String("engine", d.Name),
				slog.String("error", err.Error()))
			continue
		}
		name := strings.ToLower(d.Name)
		if _, dup := r.byName[name]; dup {
			errs = append(errs, serrors.EngineConfigError(d.Name, fmt.Sprintf("duplicate engine name %q", d.Name), nil))
			continue
		}
		if d.Shortcut != "" {
			if other, dup := r.byShortcut[strings.ToLower(d.Shortcut)]; dup {
				errs = append(errs, serrors.EngineConfigError(d.Name,
					fmt.Sprintf("shortcut %q of engine %q is already used by %q", d.Shortcut, d.Name, other.Name), nil))
				continue
			}
			r.byShortcut[strings.ToLower(d.Shortcut)] = d
		}
		if d.State == nil {
			d.State = NewEngineState()
		}
		if len(d.Categories) == 0 {
			d.Categories = []string{results.DefaultCategory}
		}

		r.byName[name] = d
		r.engines = append(r.engines, d)
		for _, c := range d.Categories {
			r.categories[c] = true
		}
		if r.suspendAfter > 0 {
			r.breakers[d.Name] = serrors.NewCircuitBreaker(d.Name,
				serrors.WithMaxFailures(r.suspendAfter),
				serrors.WithResetTimeout(r.suspendFor))
		}
	}

	sort.Slice(r.engines, func(i, j int) bool { return r.engines[i].Name < r.engines[j].Name })
	return r, errors.Join(errs...)
}

// Engines returns every registered engine ordered by name.
func (r *Registry) Engines() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Descriptor(nil), r.engines...)
}

// Lookup returns the engine with the given name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// EngineForBang resolves a shortcut or engine name.
func (r *Registry) EngineForBang(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token = strings.ToLower(token)
	if d, ok := r.byShortcut[token]; ok {
		return d.Name, true
	}
	if d, ok := r.byName[token]; ok {
		return d.Name, true
	}
	return "", false
}

// IsCategory reports whether any engine serves category c.
func (r *Registry) IsCategory(c string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories[c]
}

// Categories returns the served categories in lexical order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.categories))
	for c := range r.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Select returns the engines that should run for q, and skipped outcomes
// for engines that match but are currently suspended.
//
// Explicitly named engines win over categories. Disabled engines never
// run, and engines without paging support only run for the first page.
func (r *Registry) Select(q *Query) ([]*Descriptor, []results.Outcome) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.engines
	if len(q.Engines) > 0 {
		candidates = nil
		seen := make(map[*Descriptor]bool, len(q.Engines))
		for _, name := range q.Engines {
			if d, ok := r.byName[strings.ToLower(name)]; ok && !seen[d] {
				seen[d] = true
				candidates = append(candidates, d)
			}
		}
	}

	var selected []*Descriptor
	var skipped []results.Outcome
	for _, d := range candidates {
		if !selectable(d, q) {
			continue
		}
		if cb, ok := r.breakers[d.Name]; ok && !cb.Allow() {
			reason := serrors.New(serrors.ErrCodeNetworkUnavailable,
				fmt.Sprintf("engine suspended until %s", cb.SuspendedUntil().Format(time.RFC3339)), serrors.ErrCircuitOpen)
			skipped = append(skipped, results.Skipped(d.Name, reason))
			continue
		}
		selected = append(selected, d)
	}
	return selected, skipped
}

// Record feeds an outcome into the engine's circuit breaker.
func (r *Registry) Record(o results.Outcome) {
	r.mu.RLock()
	cb, ok := r.breakers[o.Engine]
	r.mu.RUnlock()
	if !ok {
		return
	}

	switch o.Status {
	case results.StatusSuccess, results.StatusEmpty:
		cb.RecordSuccess()
	case results.StatusFailed, results.StatusTimedOut:
		cb.RecordFailure()
		if cb.State() == serrors.StateOpen {
			slog.Warn("engine_suspended",
				slog.String("engine", o.Engine),
				slog.Int("failures", cb.Failures()),
				slog.Time("until", cb.SuspendedUntil()))
		}
	}
}

// EngineStatus is the health of one engine.
type EngineStatus struct {
	Name           string    `json:"name"`
	Shortcut       string    `json:"shortcut,omitempty"`
	Categories     []string  `json:"categories"`
	Kind           string    `json:"kind"`
	Weight         float64   `json:"weight"`
	Paging         bool      `json:"paging"`
	Disabled       bool      `json:"disabled"`
	State          string    `json:"state"`
	Failures       int       `json:"failures"`
	SuspendedUntil time.Time `json:"suspended_until,omitzero"`
}

// Status reports the health of every engine ordered by name.
func (r *Registry) Status() []EngineStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EngineStatus, 0, len(r.engines))
	for _, d := range r.engines {
		st := EngineStatus{
			Name:       d.Name,
			Shortcut:   d.Shortcut,
			Categories: d.Categories,
			Kind:       d.Kind.String(),
			Weight:     d.EffectiveWeight(),
			Paging:     d.Paging,
			Disabled:   d.Disabled,
			State:      serrors.StateClosed.String(),
		}
		if cb, ok := r.breakers[d.Name]; ok {
			st.State = cb.State().String()
			st.Failures = cb.Failures()
			st.SuspendedUntil = cb.SuspendedUntil()
		}
		out = append(out, st)
	}
	return out
}

// Close releases adapter resources.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, d := range r.engines {
		if c, ok := d.Adapter.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close engine %s: %w", d.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// selectable reports whether d may run for q, leaving suspension aside.
// Explicitly named engines are matched by name regardless of category;
// otherwise d must serve one of the query's categories. An engine without
// categories serves the default one.
func selectable(d *Descriptor, q *Query) bool {
	if d.Disabled {
		return false
	}
	if q.PageNo > 1 && !d.Paging {
		return false
	}
	if len(q.Engines) > 0 {
		for _, name := range q.Engines {
			if strings.EqualFold(name, d.Name) {
				return true
			}
		}
		return false
	}

	wanted := q.Categories
	if len(wanted) == 0 {
		wanted = []string{results.DefaultCategory}
	}
	served := d.Categories
	if len(served) == 0 {
		served = []string{results.DefaultCategory}
	}
	return intersects(served, wanted)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
