package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

func reportFor(t *testing.T, c *results.Container, engine string) results.EngineReport {
	t.Helper()
	for _, r := range c.Reports() {
		if r.Engine == engine {
			return r
		}
	}
	t.Fatalf("no report for engine %q", engine)
	return results.EngineReport{}
}

func TestScheduler_ZeroEngines(t *testing.T) {
	s := NewScheduler(NewDispatcher(nil))

	c, err := s.Run(context.Background(), mustQuery("anything"), nil, time.Now().Add(time.Second))

	require.NoError(t, err)
	assert.True(t, c.Finalized())
	assert.Empty(t, c.Results())
	assert.Empty(t, c.Reports())
}

func TestScheduler_TimedOutEngineDoesNotContribute(t *testing.T) {
	// Given: C is slower than its 100ms timeout, D answers with 3 records
	engC := &fakeEngine{delay: 500 * time.Millisecond, ignoreCtx: true, records: recs("c", 2)}
	engD := &fakeEngine{records: recs("d", 3)}
	descs := []*Descriptor{
		localDesc("C", engC, 100*time.Millisecond),
		localDesc("D", engD, time.Second),
	}

	// When: running with a 1s global deadline
	start := time.Now()
	c, err := NewScheduler(NewDispatcher(nil)).Run(context.Background(), mustQuery("x"), descs, start.Add(time.Second))

	// Then: D's three records are returned and C is timed out
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 450*time.Millisecond)
	res := c.Results()
	require.Len(t, res, 3)
	for _, r := range res {
		assert.Equal(t, []string{"D"}, r.Engines)
	}
	assert.Equal(t, results.StatusTimedOut, reportFor(t, c, "C").Status)
	assert.Equal(t, results.StatusSuccess, reportFor(t, c, "D").Status)
}

func TestScheduler_ParseErrorIsReported(t *testing.T) {
	engE := &fakeEngine{parseErr: errors.New("malformed payload")}
	engF := &fakeEngine{records: recs("f", 1)}
	descs := []*Descriptor{localDesc("E", engE, time.Second), localDesc("F", engF, time.Second)}

	c, err := NewScheduler(NewDispatcher(nil)).Run(context.Background(), mustQuery("x"), descs, time.Now().Add(time.Second))

	require.NoError(t, err)
	assert.Len(t, c.Results(), 1)
	rep := reportFor(t, c, "E")
	assert.Equal(t, results.StatusFailed, rep.Status)
	assert.Equal(t, serrors.KindParse, rep.Kind)
	require.Len(t, c.Unresponsive(), 1)
}

func TestScheduler_GlobalDeadlineAbandonsStragglers(t *testing.T) {
	// Given: an engine with a generous own timeout that never answers
	stuck := &fakeEngine{delay: 2 * time.Second, ignoreCtx: true}
	quick := &fakeEngine{records: recs("q", 2)}
	descs := []*Descriptor{localDesc("stuck", stuck, 10*time.Second), localDesc("quick", quick, 10*time.Second)}

	start := time.Now()
	c, err := NewScheduler(NewDispatcher(nil)).Run(context.Background(), mustQuery("x"), descs, start.Add(150*time.Millisecond))

	// Then: the scheduler returns near the global deadline
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, c.Results(), 2)
	rep := reportFor(t, c, "stuck")
	assert.Equal(t, results.StatusTimedOut, rep.Status)
	assert.Equal(t, serrors.KindTimeout, rep.Kind)
}

func TestScheduler_MergesAcrossEngines(t *testing.T) {
	a := localDesc("A", &fakeEngine{records: []results.Record{{URL: "https://x.com/1", Title: "Foo"}}}, time.Second)
	a.Weight = 2
	b := localDesc("B", &fakeEngine{records: []results.Record{{URL: "http://x.com/1/", Title: "Bar", Thumbnail: "t.png"}}}, time.Second)

	c, err := Aggregate(context.Background(), mustQuery("foo"), []*Descriptor{b, a}, time.Now().Add(time.Second), nil)

	require.NoError(t, err)
	res := c.Results()
	require.Len(t, res, 1)
	assert.Equal(t, "Foo", res[0].Title)
	assert.Equal(t, "t.png", res[0].Thumbnail)
	assert.Equal(t, []string{"A", "B"}, res[0].Engines)
}

func TestAggregate_RunsOnlyMatchingEnabledEngines(t *testing.T) {
	// Given: engines that are disabled, off-category, non-paging or repeated
	web := &fakeEngine{records: recs("web", 1)}
	off := &fakeEngine{records: recs("off", 1)}
	pics := &fakeEngine{records: recs("pics", 1)}
	twin := &fakeEngine{records: recs("twin", 1)}

	offDesc := localDesc("off", off, time.Second)
	offDesc.Disabled = true
	picsDesc := localDesc("pics", pics, time.Second)
	picsDesc.Categories = []string{"images"}
	descs := []*Descriptor{
		localDesc("web", web, time.Second),
		offDesc,
		picsDesc,
		localDesc("WEB", twin, time.Second),
	}

	// When: aggregating a general query
	c, err := Aggregate(context.Background(), mustQuery("x"), descs, time.Now().Add(time.Second), nil)

	// Then: only the first enabled general engine ran
	require.NoError(t, err)
	assert.Equal(t, int32(1), web.calls.Load())
	assert.Zero(t, off.calls.Load())
	assert.Zero(t, pics.calls.Load())
	assert.Zero(t, twin.calls.Load())
	require.Len(t, c.Reports(), 1)
	assert.Equal(t, "web", c.Reports()[0].Engine)
	assert.Len(t, c.Results(), 1)
}

func TestAggregate_PagingAndExplicitEngines(t *testing.T) {
	paged := &fakeEngine{records: recs("paged", 1)}
	single := &fakeEngine{records: recs("single", 1)}
	pagedDesc := localDesc("paged", paged, time.Second)
	pagedDesc.Paging = true
	pagedDesc.Categories = []string{"images"}
	descs := []*Descriptor{pagedDesc, localDesc("single", single, time.Second)}

	// Page two of an explicit selection skips engines without paging
	c, err := Aggregate(context.Background(), mustQuery("x", WithPage(2), WithEngines("PAGED", "single")), descs, time.Now().Add(time.Second), nil)

	require.NoError(t, err)
	assert.Equal(t, int32(1), paged.calls.Load())
	assert.Zero(t, single.calls.Load())
	assert.Len(t, c.Results(), 1)
}

func TestScheduler_SuggestionsFromSeveralEngines(t *testing.T) {
	f := localDesc("F", &fakeEngine{batch: &results.Batch{Suggestions: []string{"cats"}}}, time.Second)
	g := localDesc("G", &fakeEngine{batch: &results.Batch{Suggestions: []string{"Cats"}}}, time.Second)

	c, err := Aggregate(context.Background(), mustQuery("cat"), []*Descriptor{f, g}, time.Now().Add(time.Second), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"cats"}, c.Suggestions())
}

func TestScheduler_ObserverSeesEveryOutcome(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]results.Status{}
	obs := func(o results.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[o.Engine] = o.Status
	}

	descs := []*Descriptor{
		localDesc("ok", &fakeEngine{records: recs("ok", 1)}, time.Second),
		localDesc("slow", &fakeEngine{delay: time.Second, ignoreCtx: true}, 5*time.Second),
	}
	_, err := NewScheduler(NewDispatcher(nil), WithObserver(obs)).
		Run(context.Background(), mustQuery("x"), descs, time.Now().Add(100*time.Millisecond))

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]results.Status{"ok": results.StatusSuccess, "slow": results.StatusTimedOut}, seen)
}

func TestScheduler_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	descs := []*Descriptor{localDesc("slow", &fakeEngine{delay: time.Second}, 5*time.Second)}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	c, err := NewScheduler(NewDispatcher(nil)).Run(ctx, mustQuery("x"), descs, time.Now().Add(5*time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, c)
	assert.True(t, c.Finalized())
}

func TestScheduler_ManyEnginesRunConcurrently(t *testing.T) {
	var descs []*Descriptor
	for _, name := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7", "e8"} {
		descs = append(descs, localDesc(name, &fakeEngine{delay: 100 * time.Millisecond, records: recs(name, 1)}, time.Second))
	}

	start := time.Now()
	c, err := NewScheduler(NewDispatcher(nil)).Run(context.Background(), mustQuery("x"), descs, start.Add(time.Second))

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Len(t, c.Results(), 8)
}
