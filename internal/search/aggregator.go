package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/searxng/searxng-sub003/internal/results"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Default query deadlines.
const (
	DefaultSearchTimeout = 4 * time.Second
	DefaultMaxTimeout    = 10 * time.Second
)

// OptionTimeoutLimit lets a query ask for a shorter or longer deadline,
// bounded by the aggregator's maximum.
const OptionTimeoutLimit = "timeout_limit"

// Recorder observes engine outcomes and finished queries, e.g. for metrics.
type Recorder interface {
	RecordOutcome(o results.Outcome)
	RecordQuery(q *Query, c *results.Container, elapsed time.Duration)
}

// Aggregator is the search service: it selects engines from the registry,
// fans the query out and reports outcomes to recorders.
type Aggregator struct {
	mu        sync.RWMutex
	registry  *Registry
	transport Transport

	timeout       time.Duration
	maxTimeout    time.Duration
	engineTimeout time.Duration
	containerOpts []results.Option
	recorders     []Recorder
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithSearchTimeout sets the default global deadline of a query.
func WithSearchTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxTimeout caps the deadline a query may ask for.
func WithMaxTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.maxTimeout = d
		}
	}
}

// WithEngineTimeout sets the timeout of engines that configure none.
func WithEngineTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.engineTimeout = d
		}
	}
}

// WithRanking sets the rank-fusion constant and category order of results.
func WithRanking(k float64, categoryOrder []string) AggregatorOption {
	return func(a *Aggregator) {
		a.containerOpts = append(a.containerOpts,
			results.WithRankConstant(k),
			results.WithCategoryOrder(categoryOrder))
	}
}

// WithRecorder adds a recorder. Nil recorders are ignored.
func WithRecorder(r Recorder) AggregatorOption {
	return func(a *Aggregator) {
		if r != nil {
			a.recorders = append(a.recorders, r)
		}
	}
}

// NewAggregator creates the search service.
// The transport may be nil when every engine is local.
func NewAggregator(reg *Registry, t Transport, opts ...AggregatorOption) (*Aggregator, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrNilDependency)
	}
	a := &Aggregator{
		registry:      reg,
		transport:     t,
		timeout:       DefaultSearchTimeout,
		maxTimeout:    DefaultMaxTimeout,
		engineTimeout: DefaultEngineTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.timeout > a.maxTimeout {
		a.timeout = a.maxTimeout
	}
	return a, nil
}

// Registry returns the active registry.
func (a *Aggregator) Registry() *Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// SetRegistry swaps the active registry and returns the previous one.
// Queries already running keep the registry they started with, so the
// caller closes the old registry once they are done.
func (a *Aggregator) SetRegistry(reg *Registry) *Registry {
	if reg == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.registry
	a.registry = reg
	return old
}

// Timeout returns the deadline q gets: the default, or the query's
// timeout_limit option, capped at the maximum.
func (a *Aggregator) Timeout(q *Query) time.Duration {
	timeout := a.timeout
	if v := q.Option(OptionTimeoutLimit); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		} else if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}
	if timeout > a.maxTimeout {
		timeout = a.maxTimeout
	}
	return timeout
}

// Search runs q and returns the finalized container.
// Only an invalid query or a cancelled ctx produce an error.
func (a *Aggregator) Search(ctx context.Context, q *Query) (*results.Container, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query is required", ErrNilDependency)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	reg := a.Registry()
	start := time.Now()
	global := start.Add(a.Timeout(q))

	selected, skipped := reg.Select(q)

	sched := NewScheduler(
		NewDispatcher(a.transport, WithDefaultTimeout(a.engineTimeout)),
		WithContainerOptions(a.containerOpts...),
		WithObserver(func(o results.Outcome) {
			reg.Record(o)
			for _, r := range a.recorders {
				r.RecordOutcome(o)
			}
		}),
	)

	c, err := sched.run(ctx, q, selected, global, skipped)
	elapsed := time.Since(start)

	for _, r := range a.recorders {
		r.RecordQuery(q, c, elapsed)
	}

	slog.Info("search_complete",
		slog.String("query_id", c.ID()),
		slog.Int("engines", len(selected)),
		slog.Int("skipped", len(skipped)),
		slog.Int("results", len(c.Results())),
		slog.Int("unresponsive", len(c.Unresponsive())),
		slog.Duration("duration", elapsed))

	return c, err
}
