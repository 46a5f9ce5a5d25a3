package results

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

// Option configures a Container.
type Option func(*Container)

// WithRankConstant sets the rank-fusion smoothing constant.
func WithRankConstant(k float64) Option {
	return func(c *Container) {
		if k > 0 {
			c.rankConstant = k
		}
	}
}

// WithCategoryOrder sets the order in which category partitions are emitted.
func WithCategoryOrder(categories []string) Option {
	return func(c *Container) {
		c.categoryOrder = append([]string(nil), categories...)
	}
}

// WithID sets the query ID instead of generating one.
func WithID(id string) Option {
	return func(c *Container) {
		if id != "" {
			c.id = id
		}
	}
}

// Container aggregates the outcomes of every engine for one query.
//
// Outcomes are ingested in completion order. Equivalent records are merged
// under their dedup key; Finalize freezes the container and returns the
// ranked list. A Container is never reused across queries.
type Container struct {
	mu sync.Mutex

	id            string
	created       time.Time
	rankConstant  float64
	categoryOrder []string

	entries  map[string]*entry
	arrivals int

	suggestions *foldedSet
	corrections *foldedSet
	answers     *answerSet
	infoboxes   map[string]*infoboxEntry
	infoOrder   []string

	reports   map[string]*EngineReport
	estimates map[string]int64
	dropped   int

	finalized bool
	final     []*Result
}

// NewContainer creates an empty container.
func NewContainer(opts ...Option) *Container {
	c := &Container{
		id:           uuid.NewString(),
		created:      time.Now(),
		rankConstant: DefaultRankConstant,
		entries:      make(map[string]*entry),
		suggestions:  newFoldedSet(),
		corrections:  newFoldedSet(),
		answers:      newAnswerSet(),
		infoboxes:    make(map[string]*infoboxEntry),
		reports:      make(map[string]*EngineReport),
		estimates:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the query ID.
func (c *Container) ID() string {
	return c.id
}

// Created returns when the container was created.
func (c *Container) Created() time.Time {
	return c.created
}

// Ingest folds one engine outcome into the container.
// It returns a state error once the container is finalized and an internal
// error when the same engine reports twice.
func (c *Container) Ingest(o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return serrors.StateError("result container is finalized").WithDetail("engine", o.Engine)
	}
	if _, dup := c.reports[o.Engine]; dup {
		return serrors.InternalError(fmt.Sprintf("engine %q reported twice", o.Engine), nil)
	}

	report := &EngineReport{
		Engine:  o.Engine,
		Status:  o.Status,
		Kind:    o.Kind,
		Message: o.Message(),
		Elapsed: o.Elapsed,
	}
	c.reports[o.Engine] = report

	if o.Status != StatusSuccess || o.Batch == nil {
		return nil
	}

	weight := o.Weight
	if weight <= 0 {
		weight = 1
	}
	b := o.Batch

	for _, rec := range b.Records {
		rec = rec.Normalized()
		if rec.Engine == "" {
			rec.Engine = o.Engine
		}
		if rec.Category == "" {
			rec.Category = DefaultCategory
		}
		if err := rec.Validate(); err != nil {
			report.Dropped++
			c.dropped++
			continue
		}
		report.Results++

		key := DedupKey(rec)
		e, ok := c.entries[key]
		if !ok {
			e = newEntry(key, c.arrivals)
			c.arrivals++
			c.entries[key] = e
		}
		e.add(rec, weight)
	}

	for _, s := range b.Suggestions {
		c.suggestions.add(s)
	}
	for _, s := range b.Corrections {
		c.corrections.add(s)
	}
	for _, a := range b.Answers {
		if a.Engine == "" {
			a.Engine = o.Engine
		}
		c.answers.add(a)
	}
	for _, box := range b.Infoboxes {
		if box.Engine == "" {
			box.Engine = o.Engine
		}
		key := infoboxKey(box)
		ie, ok := c.infoboxes[key]
		if !ok {
			ie = &infoboxEntry{id: key}
			c.infoboxes[key] = ie
			c.infoOrder = append(c.infoOrder, key)
		}
		ie.boxes = append(ie.boxes, weightedInfobox{box: box, weight: weight})
	}
	if b.EstimatedTotal > 0 {
		c.estimates[o.Engine] = b.EstimatedTotal
	}
	return nil
}

// Reported reports whether an outcome for engine has been ingested.
func (c *Container) Reported(engine string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.reports[engine]
	return ok
}

// Finalize ranks the merged results and freezes the container.
// Results are partitioned by category, each partition sorted by engine
// count, rank-fusion score and arrival, then concatenated in category order.
// Calling Finalize again returns the same slice.
func (c *Container) Finalize() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return c.final
	}
	c.finalized = true

	partitions := make(map[string][]ranked)
	present := make(map[string]bool)
	for _, e := range c.entries {
		res := e.result(c.rankConstant)
		partitions[res.Category] = append(partitions[res.Category], ranked{res: res, arrival: e.arrival})
		present[res.Category] = true
	}

	final := make([]*Result, 0, len(c.entries))
	for _, cat := range orderCategories(present, c.categoryOrder) {
		part := partitions[cat]
		sort.Slice(part, func(i, j int) bool { return compare(part[i], part[j]) })
		for _, r := range part {
			final = append(final, r.res)
		}
	}
	c.final = final
	return c.final
}

// Finalized reports whether Finalize has been called.
func (c *Container) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}

// Results returns the finalized results, or nil before Finalize.
func (c *Container) Results() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final
}

// Len returns the number of distinct merged results.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns the merged results keyed by dedup key, in no particular
// order. It does not finalize the container.
func (c *Container) Snapshot() map[string]*Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*Result, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.result(c.rankConstant)
	}
	return out
}

// CategoryCounts returns how many merged results fall into each category.
func (c *Container) CategoryCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range c.entries {
		counts[e.result(c.rankConstant).Category]++
	}
	return counts
}

// Suggestions returns the case-folded suggestion set in lexical order.
func (c *Container) Suggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestions.sorted()
}

// Corrections returns the case-folded correction set in lexical order.
func (c *Container) Corrections() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.corrections.sorted()
}

// Answers returns one answer per answer type, ordered by type.
func (c *Container) Answers() []Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.sorted()
}

// Infoboxes returns merged infoboxes in first-seen order.
func (c *Container) Infoboxes() []Infobox {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Infobox, 0, len(c.infoOrder))
	for _, key := range c.infoOrder {
		out = append(out, c.infoboxes[key].merged())
	}
	return out
}

// EstimatedTotal returns the mean of the non-zero totals engines estimated.
func (c *Container) EstimatedTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.estimates) == 0 {
		return 0
	}
	var sum int64
	for _, n := range c.estimates {
		sum += n
	}
	return sum / int64(len(c.estimates))
}

// Dropped returns how many records failed template validation.
func (c *Container) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Reports returns the per-engine diagnostics ordered by engine name.
func (c *Container) Reports() []EngineReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EngineReport, 0, len(c.reports))
	for _, r := range c.reports {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Engine < out[j].Engine })
	return out
}

// Unresponsive returns the reports of engines that failed, timed out or
// were skipped.
func (c *Container) Unresponsive() []EngineReport {
	var out []EngineReport
	for _, r := range c.Reports() {
		if !r.Responsive() {
			out = append(out, r)
		}
	}
	return out
}
