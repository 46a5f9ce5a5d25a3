package results

import (
	"sort"
	"strings"
)

// Result is the merged view of every record that shares a dedup key.
type Result struct {
	Record

	// Key is the dedup key shared by all contributing records.
	Key string `json:"-"`

	// Engines lists the contributing engines, sorted by name.
	Engines []string `json:"engines"`

	// Positions holds the best position each engine gave this result.
	Positions map[string]int `json:"positions"`

	// Score is the weighted rank-fusion score; higher ranks first.
	Score float64 `json:"score"`
}

// contribution is one engine record folded into an entry.
type contribution struct {
	rec    Record
	weight float64
}

// entry collects the contributions for one dedup key.
type entry struct {
	key           string
	arrival       int
	contributions []contribution
	view          *Result
}

func newEntry(key string, arrival int) *entry {
	return &entry{key: key, arrival: arrival}
}

func (e *entry) add(rec Record, weight float64) {
	e.contributions = append(e.contributions, contribution{rec: rec, weight: weight})
	e.view = nil
}

// result returns the merged view, rebuilding it after new contributions.
func (e *entry) result(k float64) *Result {
	if e.view == nil {
		e.view = mergeContributions(e.key, e.contributions, k)
	}
	return e.view
}

// byPrecedence orders contributions so that the first one wins a field
// conflict: higher weight first, then engine name, then engine position.
// The order does not depend on arrival, so a merged view is the same for
// any ingestion order.
func byPrecedence(cs []contribution) []contribution {
	sorted := append([]contribution(nil), cs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		if a.rec.Engine != b.rec.Engine {
			return a.rec.Engine < b.rec.Engine
		}
		if a.rec.Position != b.rec.Position {
			return a.rec.Position < b.rec.Position
		}
		if a.rec.Title != b.rec.Title {
			return a.rec.Title < b.rec.Title
		}
		return a.rec.Content < b.rec.Content
	})
	return sorted
}

func firstString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// mergeContributions folds contributions into one Result.
// Scalar fields take the first non-empty value in precedence order, tags are
// unioned, counters take the maximum, and provenance is the set of engines.
func mergeContributions(key string, cs []contribution, k float64) *Result {
	ordered := byPrecedence(cs)

	out := &Result{Key: key, Positions: make(map[string]int)}
	m := &out.Record
	weights := make(map[string]float64)
	seenTags := make(map[string]bool)

	for _, c := range ordered {
		r := c.rec

		firstString(&m.URL, r.URL)
		firstString(&m.Title, r.Title)
		firstString(&m.Content, r.Content)
		firstString((*string)(&m.Template), string(r.Template))
		firstString(&m.Engine, r.Engine)
		firstString(&m.Category, r.Category)
		firstString(&m.Thumbnail, r.Thumbnail)
		firstString(&m.ImgSrc, r.ImgSrc)
		firstString(&m.Author, r.Author)
		firstString(&m.MagnetLink, r.MagnetLink)
		firstString(&m.PackageName, r.PackageName)
		firstString(&m.Version, r.Version)

		if m.PublishedDate == nil && r.PublishedDate != nil {
			t := *r.PublishedDate
			m.PublishedDate = &t
		}
		if m.Latitude == nil && m.Longitude == nil && r.Latitude != nil && r.Longitude != nil {
			lat, lon := *r.Latitude, *r.Longitude
			m.Latitude, m.Longitude = &lat, &lon
		}

		for _, tag := range r.Tags {
			norm := strings.ToLower(strings.TrimSpace(tag))
			if norm == "" || seenTags[norm] {
				continue
			}
			seenTags[norm] = true
			m.Tags = append(m.Tags, tag)
		}

		for key, v := range r.Extra {
			if v == "" {
				continue
			}
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			if _, ok := m.Extra[key]; !ok {
				m.Extra[key] = v
			}
		}

		m.Seed = max(m.Seed, r.Seed)
		m.Leech = max(m.Leech, r.Leech)
		m.FileSize = max(m.FileSize, r.FileSize)
		m.Popularity = max(m.Popularity, r.Popularity)

		// A missing position (0) gives way to any real one from the same engine.
		if pos, ok := out.Positions[r.Engine]; !ok || (r.Position > 0 && (pos <= 0 || r.Position < pos)) {
			out.Positions[r.Engine] = r.Position
		}
		if _, ok := weights[r.Engine]; !ok {
			weights[r.Engine] = c.weight
		}
	}

	out.Engines = make([]string, 0, len(out.Positions))
	for name := range out.Positions {
		out.Engines = append(out.Engines, name)
	}
	sort.Strings(out.Engines)

	m.Position = 0
	out.Score = fusionScore(out.Engines, out.Positions, weights, k)
	return out
}
