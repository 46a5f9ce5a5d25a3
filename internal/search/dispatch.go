package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

// DefaultEngineTimeout applies to engines that configure no timeout.
const DefaultEngineTimeout = 3 * time.Second

// Dispatcher runs a single engine for a single query under a deadline.
// It never touches a result container; it only produces an Outcome.
type Dispatcher struct {
	transport      Transport
	defaultTimeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDefaultTimeout sets the timeout for engines without their own.
func WithDefaultTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.defaultTimeout = d
		}
	}
}

// NewDispatcher creates a dispatcher that performs network requests via t.
// A nil transport is allowed when only local engines are dispatched.
func NewDispatcher(t Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport:      t,
		defaultTimeout: DefaultEngineTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deadline returns the deadline of desc's unit: its own timeout from now,
// capped by the global deadline.
func (d *Dispatcher) Deadline(desc *Descriptor, global time.Time) time.Time {
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	own := time.Now().Add(timeout)
	if !global.IsZero() && global.Before(own) {
		return global
	}
	return own
}

type unitResult struct {
	batch *results.Batch
	err   error
}

// Run executes desc for q and classifies the result.
//
// The engine runs on its own goroutine; Run returns at the deadline even if
// the engine does not, and anything the engine produces afterwards is
// discarded. Panics are recovered and reported as unexpected errors.
func (d *Dispatcher) Run(ctx context.Context, desc *Descriptor, q *Query, deadline time.Time) results.Outcome {
	start := time.Now()
	unitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	done := make(chan unitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("engine_panic",
					slog.String("engine", desc.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				done <- unitResult{err: serrors.New(serrors.ErrCodeEnginePanic, fmt.Sprintf("engine panicked: %v", r), nil)}
			}
		}()
		batch, err := d.execute(unitCtx, desc, q, deadline)
		done <- unitResult{batch: batch, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if !time.Now().Before(deadline) {
			// Late answers are discarded even when they succeeded.
			return results.TimedOut(desc.Name, elapsed)
		}
		if res.err != nil {
			if unitCtx.Err() != nil && serrors.KindOf(res.err) != serrors.KindTimeout {
				res.err = serrors.TimeoutError(fmt.Sprintf("engine %q cancelled", desc.Name), res.err)
			}
			return results.Failure(desc.Name, res.err, elapsed)
		}
		return results.Success(desc.Name, desc.EffectiveWeight(), stamp(desc, res.batch), elapsed)

	case <-unitCtx.Done():
		return results.TimedOut(desc.Name, time.Since(start))
	}
}

// execute performs build, perform and parse. Errors are classified by the
// step that produced them unless they already carry a kind.
func (d *Dispatcher) execute(ctx context.Context, desc *Descriptor, q *Query, deadline time.Time) (*results.Batch, error) {
	req, err := desc.Adapter.BuildRequest(q, desc.State)
	if err != nil {
		if serrors.KindOf(err) == serrors.KindUnexpected {
			err = serrors.EngineConfigError(desc.Name, err.Error(), err)
		}
		return nil, err
	}
	if req == nil {
		return nil, nil
	}

	var raw *RawResponse
	switch desc.Kind {
	case KindLocal:
		exec, ok := desc.Adapter.(Executor)
		if !ok {
			return nil, serrors.EngineConfigError(desc.Name, "local engine cannot execute requests", nil)
		}
		raw, err = exec.Execute(ctx, req)
	default:
		if d.transport == nil {
			return nil, serrors.EngineConfigError(desc.Name, "no transport configured for network engine", nil)
		}
		raw, err = d.transport.Perform(ctx, req, time.Until(deadline))
		if err != nil && serrors.KindOf(err) == serrors.KindUnexpected {
			err = serrors.NetworkError(err.Error(), err)
		}
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	batch, err := desc.Adapter.ParseResponse(q, raw)
	if err != nil {
		if serrors.KindOf(err) == serrors.KindUnexpected {
			err = serrors.ParseError(err.Error(), err)
		}
		return nil, err
	}
	return batch, nil
}

// stamp fills provenance, category and position on a copy of the records.
func stamp(desc *Descriptor, b *results.Batch) *results.Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Records = make([]results.Record, len(b.Records))
	for i, r := range b.Records {
		if r.Engine == "" {
			r.Engine = desc.Name
		}
		if r.Category == "" {
			r.Category = desc.PrimaryCategory()
		}
		if r.Position <= 0 {
			r.Position = i + 1
		}
		out.Records[i] = r
	}
	return &out
}
