package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

func testQuery(t *testing.T, text string) *search.Query {
	t.Helper()
	q, err := search.NewQuery(text)
	require.NoError(t, err)
	return q
}

func containerWith(t *testing.T, n int) *results.Container {
	t.Helper()
	c := results.NewContainer()
	batch := &results.Batch{}
	for i := 0; i < n; i++ {
		batch.Records = append(batch.Records, results.Record{
			URL:   "https://example.com/" + string(rune('a'+i)),
			Title: "result",
		})
	}
	require.NoError(t, c.Ingest(results.Success("ddg", 1, batch, time.Millisecond)))
	return c
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP250},
		{300 * time.Millisecond, BucketP500},
		{999 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP2500},
		{10 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"golang", "and", "channels"}, ExtractTerms("  Golang  and go CHANNELS"))
	assert.Nil(t, ExtractTerms("a b"))
}

func TestEngineMetrics_RecordOutcome(t *testing.T) {
	// Given: a collector without a store
	m := NewEngineMetrics(nil, DefaultConfig())
	defer func() { _ = m.Close() }()

	// When: recording one outcome of every kind for one engine
	m.RecordOutcome(results.Success("ddg", 1, &results.Batch{Records: []results.Record{{URL: "https://a", Title: "a"}}}, 120*time.Millisecond))
	m.RecordOutcome(results.Failure("ddg", serrors.NetworkError("refused", nil), 80*time.Millisecond))
	m.RecordOutcome(results.TimedOut("ddg", 3*time.Second))
	m.RecordOutcome(results.Skipped("ddg", errors.New("suspended")))

	// Then: the snapshot reflects each status, kind and latency
	snap := m.Snapshot()
	ddg := snap.Engines["ddg"]
	assert.Equal(t, int64(4), ddg.Total())
	assert.Equal(t, int64(1), ddg.Outcomes[results.StatusSuccess])
	assert.Equal(t, int64(1), ddg.Outcomes[results.StatusSkipped])
	assert.Equal(t, int64(1), ddg.Errors[serrors.KindNetwork])
	assert.Equal(t, int64(1), ddg.Errors[serrors.KindTimeout])
	assert.Equal(t, int64(1), ddg.Results)
	assert.Equal(t, int64(1), ddg.Latencies[BucketSlow])
	assert.InDelta(t, 0.5, ddg.ErrorRate(), 1e-9)
	assert.Equal(t, (120*time.Millisecond+80*time.Millisecond+3*time.Second)/3, ddg.MeanLatency())
	assert.Equal(t, []string{"ddg"}, snap.EngineNames())
}

func TestEngineMetrics_RecordQuery(t *testing.T) {
	m := NewEngineMetrics(nil, DefaultConfig())
	defer func() { _ = m.Close() }()

	m.RecordQuery(testQuery(t, "golang generics"), containerWith(t, 2), 200*time.Millisecond)
	m.RecordQuery(testQuery(t, "Golang   GENERICS"), containerWith(t, 1), 50*time.Millisecond)
	m.RecordQuery(testQuery(t, "obscure thing"), results.NewContainer(), 3*time.Second)
	m.RecordQuery(nil, nil, 0)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"obscure thing"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.RepeatCount, "case and spacing are ignored")
	assert.Equal(t, TermCount{Term: "generics", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, TermCount{Term: "golang", Count: 2}, snap.TopTerms[1])
	assert.InDelta(t, 33.33, snap.ZeroResultPercentage(), 0.01)
	assert.Equal(t, int64(1), snap.QueryLatencies[BucketSlow])
}

func TestEngineMetrics_FlushWritesDeltas(t *testing.T) {
	// Given: a collector backed by a SQLite store
	store := openTestStore(t)
	m := NewEngineMetrics(store, Config{FlushInterval: 0})

	// When: flushing twice with new data in between
	m.RecordOutcome(results.Failure("wiki", serrors.ParseError("bad", nil), time.Millisecond))
	require.NoError(t, m.Flush())
	m.RecordOutcome(results.Failure("wiki", serrors.ParseError("bad", nil), time.Millisecond))
	m.RecordQuery(testQuery(t, "nothing here"), results.NewContainer(), time.Millisecond)
	require.NoError(t, m.Close())

	// Then: the store holds each outcome exactly once
	today := time.Now().Format("2006-01-02")
	got, err := store.GetEngineCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got["wiki"].Outcomes[results.StatusFailed])
	assert.Equal(t, int64(2), got["wiki"].Errors[serrors.KindParse])

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	assert.Contains(t, terms, TermCount{Term: "nothing", Count: 1})

	zero, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"nothing here"}, zero)
}

func TestEngineMetrics_ClosedIgnoresRecords(t *testing.T) {
	m := NewEngineMetrics(nil, DefaultConfig())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.RecordOutcome(results.TimedOut("ddg", time.Second))

	assert.Empty(t, m.Snapshot().Engines)
}

func TestEngineMetrics_Concurrent(t *testing.T) {
	m := NewEngineMetrics(nil, DefaultConfig())
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordOutcome(results.TimedOut("ddg", time.Millisecond))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Snapshot().Engines["ddg"].Outcomes[results.StatusTimedOut])
}
