package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/searxng/searxng-sub003/internal/results"
)

// fakeEngine is a local adapter whose behaviour is scripted per test.
type fakeEngine struct {
	delay       time.Duration
	ignoreCtx   bool
	records     []results.Record
	batch       *results.Batch
	buildErr    error
	skip        bool
	execErr     error
	parseErr    error
	panicOn     string
	validateErr error

	calls atomic.Int32
}

func (f *fakeEngine) BuildRequest(q *Query, _ *EngineState) (*RequestDescriptor, error) {
	if f.panicOn == "build" {
		panic("build exploded")
	}
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if f.skip {
		return nil, nil
	}
	return &RequestDescriptor{Handle: q.Text}, nil
}

func (f *fakeEngine) Execute(ctx context.Context, _ *RequestDescriptor) (*RawResponse, error) {
	f.calls.Add(1)
	if f.panicOn == "execute" {
		panic("execute exploded")
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &RawResponse{StatusCode: 200, Rows: f.records}, nil
}

func (f *fakeEngine) ParseResponse(_ *Query, raw *RawResponse) (*results.Batch, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.batch != nil {
		return f.batch, nil
	}
	recs, _ := raw.Rows.([]results.Record)
	return &results.Batch{Records: recs}, nil
}

func (f *fakeEngine) Validate() error {
	return f.validateErr
}

func localDesc(name string, f *fakeEngine, timeout time.Duration) *Descriptor {
	return &Descriptor{
		Name:       name,
		Categories: []string{"general"},
		Kind:       KindLocal,
		Timeout:    timeout,
		Weight:     1,
		Adapter:    f,
		State:      NewEngineState(),
	}
}

// fakeNetworkEngine builds a request for the fake transport.
type fakeNetworkEngine struct {
	parse func(raw *RawResponse) (*results.Batch, error)
}

func (f *fakeNetworkEngine) BuildRequest(q *Query, _ *EngineState) (*RequestDescriptor, error) {
	return &RequestDescriptor{Method: "GET", URL: "https://upstream.example/search?q=" + q.Text}, nil
}

func (f *fakeNetworkEngine) ParseResponse(_ *Query, raw *RawResponse) (*results.Batch, error) {
	return f.parse(raw)
}

// fakeTransport answers every request with resp or err.
type fakeTransport struct {
	resp     *RawResponse
	err      error
	timeouts []time.Duration
}

func (t *fakeTransport) Perform(_ context.Context, _ *RequestDescriptor, timeout time.Duration) (*RawResponse, error) {
	t.timeouts = append(t.timeouts, timeout)
	return t.resp, t.err
}

func mustQuery(text string, opts ...QueryOption) *Query {
	q, err := NewQuery(text, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

func recs(prefix string, n int) []results.Record {
	out := make([]results.Record, n)
	for i := range out {
		out[i] = results.Record{
			URL:   "https://" + prefix + ".example/" + string(rune('a'+i)),
			Title: prefix + " " + string(rune('a'+i)),
		}
	}
	return out
}
