package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searxng/searxng-sub003/internal/results"
)

// Scheduler fans a query out to engines and collects their outcomes into a
// result container.
type Scheduler struct {
	dispatcher    *Dispatcher
	containerOpts []results.Option
	observers     []func(results.Outcome)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithContainerOptions sets the options of every container the scheduler creates.
func WithContainerOptions(opts ...results.Option) SchedulerOption {
	return func(s *Scheduler) {
		s.containerOpts = append(s.containerOpts, opts...)
	}
}

// WithObserver registers fn to see every outcome, including engines that
// were abandoned at the global deadline. Observers run on the collecting
// goroutine and must not block.
func WithObserver(fn func(results.Outcome)) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// NewScheduler creates a scheduler that runs engines through d.
func NewScheduler(d *Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{dispatcher: d}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run dispatches q concurrently to every descriptor that is enabled and
// matches the query's engines or categories, and returns the finalized
// container. A descriptor whose name repeats an earlier one is dropped.
//
// Each engine gets min(its timeout, global deadline). Run returns when all
// engines reported or the global deadline passed, whichever is first;
// engines still running are reported as timed out and whatever they produce
// later is dropped. Engine failures never fail the query. The error is
// non-nil only when ctx itself was cancelled, in which case the container
// still holds what arrived before.
func (s *Scheduler) Run(ctx context.Context, q *Query, descs []*Descriptor, global time.Time) (*results.Container, error) {
	return s.run(ctx, q, descs, global, nil)
}

// run is Run with outcomes decided before dispatch, such as suspended
// engines, ingested first.
func (s *Scheduler) run(ctx context.Context, q *Query, descs []*Descriptor, global time.Time, prior []results.Outcome) (*results.Container, error) {
	c := results.NewContainer(s.containerOpts...)
	for _, o := range prior {
		s.ingest(c, o)
	}
	descs = eligible(q, descs)
	if len(descs) == 0 {
		c.Finalize()
		return c, nil
	}

	start := time.Now()
	runCtx, cancel := context.WithDeadline(ctx, global)
	defer cancel()

	// Buffered so units finishing after the scheduler returned never block.
	out := make(chan results.Outcome, len(descs))
	pending := make(map[string]bool, len(descs))

	var g errgroup.Group
	for _, d := range descs {
		pending[d.Name] = true
		deadline := s.dispatcher.Deadline(d, global)
		g.Go(func() error {
			out <- s.dispatcher.Run(runCtx, d, q, deadline)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		slog.Debug("fanout_units_exited",
			slog.Int("engines", len(descs)),
			slog.Duration("duration", time.Since(start)))
	}()

collect:
	for len(pending) > 0 {
		select {
		case o := <-out:
			delete(pending, o.Engine)
			s.ingest(c, o)
		case <-runCtx.Done():
			break collect
		}
	}

	// Outcomes already queued were produced before their unit deadline.
drain:
	for len(pending) > 0 {
		select {
		case o := <-out:
			delete(pending, o.Engine)
			s.ingest(c, o)
		default:
			break drain
		}
	}

	if len(pending) > 0 {
		abandoned := make([]string, 0, len(pending))
		for name := range pending {
			abandoned = append(abandoned, name)
		}
		sort.Strings(abandoned)
		for _, name := range abandoned {
			s.ingest(c, results.TimedOut(name, time.Since(start)))
		}
		slog.Debug("fanout_abandoned",
			slog.String("query_id", c.ID()),
			slog.Any("engines", abandoned))
	}

	c.Finalize()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return c, err
	}
	return c, nil
}

// eligible keeps the descriptors that may run for q, one per engine name.
func eligible(q *Query, descs []*Descriptor) []*Descriptor {
	out := make([]*Descriptor, 0, len(descs))
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if d == nil || !selectable(d, q) {
			continue
		}
		key := strings.ToLower(d.Name)
		if seen[key] {
			slog.Warn("engine_duplicate_dropped", slog.String("engine", d.Name))
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func (s *Scheduler) ingest(c *results.Container, o results.Outcome) {
	if err := c.Ingest(o); err != nil {
		slog.Warn("outcome_rejected",
			slog.String("engine", o.Engine),
			slog.String("error", err.Error()))
		return
	}
	for _, fn := range s.observers {
		fn(o)
	}
}

// Aggregate runs one query against descs with a fresh dispatcher and the
// given transport, returning the finalized container. It is the plain
// entry point for callers that manage engines themselves.
func Aggregate(ctx context.Context, q *Query, descs []*Descriptor, global time.Time, t Transport, opts ...SchedulerOption) (*results.Container, error) {
	return NewScheduler(NewDispatcher(t), opts...).Run(ctx, q, descs, global)
}
