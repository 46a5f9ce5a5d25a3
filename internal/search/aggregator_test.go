package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []results.Outcome
	queries  int
}

func (r *recordingRecorder) RecordOutcome(o results.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingRecorder) RecordQuery(_ *Query, _ *results.Container, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
}

func TestNewAggregator_RequiresRegistry(t *testing.T) {
	_, err := NewAggregator(nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestAggregator_Search(t *testing.T) {
	reg, err := NewRegistry([]*Descriptor{
		localDesc("one", &fakeEngine{records: recs("one", 2)}, time.Second),
		localDesc("two", &fakeEngine{execErr: serrors.NetworkError("refused", nil)}, time.Second),
	})
	require.NoError(t, err)

	rec := &recordingRecorder{}
	agg, err := NewAggregator(reg, nil, WithRecorder(rec), WithRanking(60, []string{"general"}))
	require.NoError(t, err)

	c, err := agg.Search(context.Background(), mustQuery("x"))

	require.NoError(t, err)
	assert.Len(t, c.Results(), 2)
	require.Len(t, c.Unresponsive(), 1)
	assert.Equal(t, "two", c.Unresponsive()[0].Engine)
	assert.Len(t, rec.outcomes, 2)
	assert.Equal(t, 1, rec.queries)
}

func TestAggregator_SuspendedEngineIsSkipped(t *testing.T) {
	failing := &fakeEngine{execErr: serrors.NetworkError("refused", nil)}
	reg, err := NewRegistry([]*Descriptor{localDesc("flaky", failing, time.Second)}, WithSuspension(1, time.Hour))
	require.NoError(t, err)
	agg, err := NewAggregator(reg, nil)
	require.NoError(t, err)

	_, err = agg.Search(context.Background(), mustQuery("x"))
	require.NoError(t, err)
	require.EqualValues(t, 1, failing.calls.Load())

	c, err := agg.Search(context.Background(), mustQuery("x"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, failing.calls.Load())
	reports := c.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, results.StatusSkipped, reports[0].Status)
}

func TestAggregator_RejectsInvalidQuery(t *testing.T) {
	reg, _ := NewRegistry(nil)
	agg, err := NewAggregator(reg, nil)
	require.NoError(t, err)

	_, err = agg.Search(context.Background(), &Query{Text: "", PageNo: 1})
	assert.Equal(t, serrors.ErrCodeQueryEmpty, serrors.GetCode(err))

	_, err = agg.Search(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestAggregator_Timeout(t *testing.T) {
	reg, _ := NewRegistry(nil)
	agg, err := NewAggregator(reg, nil, WithSearchTimeout(2*time.Second), WithMaxTimeout(5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, agg.Timeout(mustQuery("x")))
	assert.Equal(t, 1500*time.Millisecond, agg.Timeout(mustQuery("x", WithOption(OptionTimeoutLimit, "1.5"))))
	assert.Equal(t, 3*time.Second, agg.Timeout(mustQuery("x", WithOption(OptionTimeoutLimit, "3s"))))
	assert.Equal(t, 5*time.Second, agg.Timeout(mustQuery("x", WithOption(OptionTimeoutLimit, "60"))))
	assert.Equal(t, 2*time.Second, agg.Timeout(mustQuery("x", WithOption(OptionTimeoutLimit, "soon"))))
}

func TestAggregator_SetRegistry(t *testing.T) {
	first, _ := NewRegistry([]*Descriptor{localDesc("a", &fakeEngine{records: recs("a", 1)}, time.Second)})
	second, _ := NewRegistry([]*Descriptor{localDesc("b", &fakeEngine{records: recs("b", 1)}, time.Second)})
	agg, err := NewAggregator(first, nil)
	require.NoError(t, err)

	old := agg.SetRegistry(second)
	assert.Same(t, first, old)
	assert.Nil(t, agg.SetRegistry(nil))

	c, err := agg.Search(context.Background(), mustQuery("x"))
	require.NoError(t, err)
	require.Len(t, c.Results(), 1)
	assert.Equal(t, []string{"b"}, c.Results()[0].Engines)
}

func TestAggregator_EngineNamedTwiceRunsOnce(t *testing.T) {
	// Given: a request naming the same engine in two spellings
	engine := &fakeEngine{records: recs("ddg", 1)}
	reg, err := NewRegistry([]*Descriptor{localDesc("ddg", engine, time.Second)})
	require.NoError(t, err)
	rec := &recordingRecorder{}
	agg, err := NewAggregator(reg, nil, WithRecorder(rec))
	require.NoError(t, err)

	q, err := BuildQuery(Request{Text: "x", Engines: []string{"ddg", "DDG"}}, ParseDefaults{}, reg)
	require.NoError(t, err)

	// When: searching
	c, err := agg.Search(context.Background(), q)

	// Then: the upstream is asked once and one outcome is recorded
	require.NoError(t, err)
	assert.Equal(t, int32(1), engine.calls.Load())
	assert.Len(t, c.Reports(), 1)
	assert.Len(t, rec.outcomes, 1)
}
