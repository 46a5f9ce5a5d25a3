// Package telemetry records how engines and queries behave.
// All data is kept locally; nothing is reported to third parties.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP100  LatencyBucket = "p100"  // <100ms
	BucketP250  LatencyBucket = "p250"  // 100-250ms
	BucketP500  LatencyBucket = "p500"  // 250-500ms
	BucketP1000 LatencyBucket = "p1000" // 500ms-1s
	BucketP2500 LatencyBucket = "p2500" // 1-2.5s
	BucketSlow  LatencyBucket = "slow"  // >=2.5s
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketP100, BucketP250, BucketP500, BucketP1000, BucketP2500, BucketSlow}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketP100
	case ms < 250:
		return BucketP250
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 2500:
		return BucketP2500
	default:
		return BucketSlow
	}
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // next write position
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	copy(out, b.items[b.head:])
	copy(out[b.capacity-b.head:], b.items[:b.head])
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and returns its words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// EngineCounts aggregates the outcomes of one engine.
type EngineCounts struct {
	Outcomes  map[results.Status]int64 `json:"outcomes"`
	Errors    map[serrors.Kind]int64   `json:"errors,omitempty"`
	Latencies map[LatencyBucket]int64  `json:"latencies"`
	Results   int64                    `json:"results"`
	TotalTime time.Duration            `json:"total_time_ns"`
}

func newEngineCounts() *EngineCounts {
	return &EngineCounts{
		Outcomes:  make(map[results.Status]int64),
		Errors:    make(map[serrors.Kind]int64),
		Latencies: make(map[LatencyBucket]int64),
	}
}

// Total returns the number of recorded outcomes.
func (c *EngineCounts) Total() int64 {
	var n int64
	for _, v := range c.Outcomes {
		n += v
	}
	return n
}

// ErrorRate returns the share of failed and timed-out outcomes.
func (c *EngineCounts) ErrorRate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Outcomes[results.StatusFailed]+c.Outcomes[results.StatusTimedOut]) / float64(total)
}

// MeanLatency returns the mean time of contacted outcomes.
func (c *EngineCounts) MeanLatency() time.Duration {
	n := c.Total() - c.Outcomes[results.StatusSkipped]
	if n <= 0 {
		return 0
	}
	return c.TotalTime / time.Duration(n)
}

func (c *EngineCounts) add(o EngineCounts) {
	for k, v := range o.Outcomes {
		c.Outcomes[k] += v
	}
	for k, v := range o.Errors {
		c.Errors[k] += v
	}
	for k, v := range o.Latencies {
		c.Latencies[k] += v
	}
	c.Results += o.Results
	c.TotalTime += o.TotalTime
}

func (c *EngineCounts) clone() EngineCounts {
	out := newEngineCounts()
	out.add(*c)
	return *out
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Engines           map[string]EngineCounts `json:"engines"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	QueryLatencies    map[LatencyBucket]int64 `json:"query_latencies"`
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	RepeatCount       int64                   `json:"repeat_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of queries without results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// EngineNames returns the engines in the snapshot ordered by name.
func (s *Snapshot) EngineNames() []string {
	names := make([]string, 0, len(s.Engines))
	for n := range s.Engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config configures the metrics collector.
type Config struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables the background flush
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// EngineMetrics collects engine outcomes and query statistics in memory
// and periodically adds them to a Store. Safe for concurrent use.
type EngineMetrics struct {
	mu sync.Mutex

	engines        map[string]*EngineCounts
	topTerms       *lru.Cache[string, int64]
	recentQueries  *lru.Cache[string, struct{}]
	zeroResults    *CircularBuffer[string]
	queryLatencies map[LatencyBucket]int64
	totalQueries   int64
	zeroCount      int64
	repeatCount    int64
	since          time.Time

	// not yet flushed
	pendingEngines map[string]*EngineCounts
	pendingTerms   map[string]int64
	pendingQueries map[LatencyBucket]int64

	store  Store
	stopCh chan struct{}
	done   chan struct{}
	closed bool
}

var _ search.Recorder = (*EngineMetrics)(nil)

// NewEngineMetrics creates a collector. A nil store keeps metrics in memory only.
func NewEngineMetrics(store Store, cfg Config) *EngineMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &EngineMetrics{
		engines:        make(map[string]*EngineCounts),
		topTerms:       topTerms,
		recentQueries:  recent,
		zeroResults:    NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		queryLatencies: make(map[LatencyBucket]int64),
		since:          time.Now(),
		pendingEngines: make(map[string]*EngineCounts),
		pendingTerms:   make(map[string]int64),
		pendingQueries: make(map[LatencyBucket]int64),
		store:          store,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *EngineMetrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// RecordOutcome implements search.Recorder.
func (m *EngineMetrics) RecordOutcome(o results.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, c := range []*EngineCounts{countsFor(m.engines, o.Engine), countsFor(m.pendingEngines, o.Engine)} {
		c.Outcomes[o.Status]++
		if o.Kind != serrors.KindNone {
			c.Errors[o.Kind]++
		}
		if o.Status != results.StatusSkipped {
			c.Latencies[LatencyToBucket(o.Elapsed)]++
			c.TotalTime += o.Elapsed
		}
		if o.Batch != nil {
			c.Results += int64(len(o.Batch.Records))
		}
	}
}

func countsFor(m map[string]*EngineCounts, engine string) *EngineCounts {
	c, ok := m[engine]
	if !ok {
		c = newEngineCounts()
		m[engine] = c
	}
	return c
}

// RecordQuery implements search.Recorder.
func (m *EngineMetrics) RecordQuery(q *search.Query, c *results.Container, elapsed time.Duration) {
	if q == nil {
		return
	}
	resultCount := 0
	if c != nil {
		resultCount = c.Len()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.totalQueries++
	bucket := LatencyToBucket(elapsed)
	m.queryLatencies[bucket]++
	m.pendingQueries[bucket]++

	for _, term := range ExtractTerms(q.Text) {
		n, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, n+1)
		m.pendingTerms[term]++
	}

	zero := resultCount == 0
	if zero {
		m.zeroCount++
		m.zeroResults.Add(q.Text)
	}

	key := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
	if _, seen := m.recentQueries.Get(key); seen {
		m.repeatCount++
	}
	m.recentQueries.Add(key, struct{}{})
	m.mu.Unlock()

	if zero && m.store != nil {
		_ = m.store.AddZeroResultQuery(q.Text, time.Now())
	}
}

// Snapshot returns a copy of the current metrics.
func (m *EngineMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	engines := make(map[string]EngineCounts, len(m.engines))
	for name, c := range m.engines {
		engines[name] = c.clone()
	}

	var terms []TermCount
	for _, key := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: n})
		}
	}
	sortTerms(terms)

	latencies := make(map[LatencyBucket]int64, len(m.queryLatencies))
	for k, v := range m.queryLatencies {
		latencies[k] = v
	}

	return &Snapshot{
		Engines:           engines,
		TopTerms:          terms,
		ZeroResultQueries: m.zeroResults.Items(),
		QueryLatencies:    latencies,
		TotalQueries:      m.totalQueries,
		ZeroResultCount:   m.zeroCount,
		RepeatCount:       m.repeatCount,
		Since:             m.since,
	}
}

func sortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Flush adds everything recorded since the previous flush to the store.
// Safe to call without a store.
func (m *EngineMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	engines := m.pendingEngines
	terms := m.pendingTerms
	queries := m.pendingQueries
	m.pendingEngines = make(map[string]*EngineCounts)
	m.pendingTerms = make(map[string]int64)
	m.pendingQueries = make(map[LatencyBucket]int64)
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	flat := make(map[string]EngineCounts, len(engines))
	for name, c := range engines {
		flat[name] = *c
	}
	if err := m.store.SaveEngineCounts(today, flat); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	return m.store.SaveQueryLatencies(today, queries)
}

// Close stops the background flush and flushes a last time.
func (m *EngineMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.done
	return m.Flush()
}
