package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

func runUnit(t *testing.T, d *Dispatcher, desc *Descriptor) results.Outcome {
	t.Helper()
	deadline := d.Deadline(desc, time.Now().Add(time.Second))
	return d.Run(context.Background(), desc, mustQuery("golang"), deadline)
}

func TestDispatcher_SuccessStampsRecords(t *testing.T) {
	f := &fakeEngine{records: recs("d", 3)}
	desc := localDesc("D", f, 100*time.Millisecond)
	desc.Categories = []string{"it"}
	desc.Weight = 2

	o := runUnit(t, NewDispatcher(nil), desc)

	require.Equal(t, results.StatusSuccess, o.Status)
	require.Len(t, o.Batch.Records, 3)
	assert.Equal(t, 2.0, o.Weight)
	for i, r := range o.Batch.Records {
		assert.Equal(t, "D", r.Engine)
		assert.Equal(t, "it", r.Category)
		assert.Equal(t, i+1, r.Position)
	}
	// The adapter's records are left untouched.
	assert.Empty(t, f.records[0].Engine)
}

func TestDispatcher_EmptyAndSkippedRequests(t *testing.T) {
	o := runUnit(t, NewDispatcher(nil), localDesc("empty", &fakeEngine{}, 0))
	assert.Equal(t, results.StatusEmpty, o.Status)

	skip := &fakeEngine{skip: true, records: recs("x", 1)}
	o = runUnit(t, NewDispatcher(nil), localDesc("skip", skip, 0))
	assert.Equal(t, results.StatusEmpty, o.Status)
	assert.Zero(t, skip.calls.Load())
}

func TestDispatcher_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		engine     *fakeEngine
		wantStatus results.Status
		wantKind   serrors.Kind
	}{
		{"build error is configuration", &fakeEngine{buildErr: errors.New("no api key")}, results.StatusFailed, serrors.KindConfiguration},
		{"parse error", &fakeEngine{parseErr: errors.New("unexpected <html>")}, results.StatusFailed, serrors.KindParse},
		{"typed network error kept", &fakeEngine{execErr: serrors.NetworkError("refused", nil)}, results.StatusFailed, serrors.KindNetwork},
		{"unknown local error", &fakeEngine{execErr: errors.New("disk gone")}, results.StatusFailed, serrors.KindUnexpected},
		{"panic in build", &fakeEngine{panicOn: "build"}, results.StatusFailed, serrors.KindUnexpected},
		{"panic in execute", &fakeEngine{panicOn: "execute"}, results.StatusFailed, serrors.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := runUnit(t, NewDispatcher(nil), localDesc("e", tt.engine, 200*time.Millisecond))
			assert.Equal(t, tt.wantStatus, o.Status)
			assert.Equal(t, tt.wantKind, o.Kind)
			assert.Nil(t, o.Batch)
			assert.NotEmpty(t, o.Message())
		})
	}
}

func TestDispatcher_TimeoutReturnsAtDeadline(t *testing.T) {
	// Given: an engine that ignores cancellation and answers late
	f := &fakeEngine{delay: 300 * time.Millisecond, ignoreCtx: true, records: recs("c", 2)}
	desc := localDesc("C", f, 50*time.Millisecond)

	start := time.Now()
	o := runUnit(t, NewDispatcher(nil), desc)

	// Then: the unit returns at its deadline with no records
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, results.StatusTimedOut, o.Status)
	assert.Equal(t, serrors.KindTimeout, o.Kind)
	assert.Nil(t, o.Batch)
}

func TestDispatcher_CooperativeTimeout(t *testing.T) {
	f := &fakeEngine{delay: time.Second, records: recs("c", 1)}
	o := runUnit(t, NewDispatcher(nil), localDesc("C", f, 30*time.Millisecond))

	assert.Equal(t, results.StatusTimedOut, o.Status)
}

func TestDispatcher_NetworkEngine(t *testing.T) {
	parse := func(raw *RawResponse) (*results.Batch, error) {
		return &results.Batch{Records: []results.Record{{URL: raw.URL, Title: "t"}}}, nil
	}
	desc := &Descriptor{Name: "net", Kind: KindNetwork, Timeout: time.Second, Adapter: &fakeNetworkEngine{parse: parse}}

	t.Run("success", func(t *testing.T) {
		tr := &fakeTransport{resp: &RawResponse{StatusCode: 200, URL: "https://upstream.example/r"}}
		o := runUnit(t, NewDispatcher(tr), desc)

		require.Equal(t, results.StatusSuccess, o.Status)
		assert.Equal(t, "https://upstream.example/r", o.Batch.Records[0].URL)
		require.Len(t, tr.timeouts, 1)
		assert.LessOrEqual(t, tr.timeouts[0], time.Second)
		assert.Greater(t, tr.timeouts[0], time.Duration(0))
	})

	t.Run("plain transport error is network", func(t *testing.T) {
		tr := &fakeTransport{err: errors.New("connection reset")}
		o := runUnit(t, NewDispatcher(tr), desc)

		assert.Equal(t, results.StatusFailed, o.Status)
		assert.Equal(t, serrors.KindNetwork, o.Kind)
	})

	t.Run("missing transport is configuration", func(t *testing.T) {
		o := runUnit(t, NewDispatcher(nil), desc)

		assert.Equal(t, serrors.KindConfiguration, o.Kind)
	})
}

func TestDispatcher_Deadline(t *testing.T) {
	d := NewDispatcher(nil, WithDefaultTimeout(2*time.Second))
	now := time.Now()

	own := d.Deadline(&Descriptor{Timeout: 100 * time.Millisecond}, now.Add(time.Hour))
	assert.WithinDuration(t, now.Add(100*time.Millisecond), own, 50*time.Millisecond)

	def := d.Deadline(&Descriptor{}, now.Add(time.Hour))
	assert.WithinDuration(t, now.Add(2*time.Second), def, 50*time.Millisecond)

	capped := d.Deadline(&Descriptor{Timeout: time.Hour}, now.Add(time.Second))
	assert.Equal(t, now.Add(time.Second), capped)
}
