package results

import "sort"

// DefaultRankConstant is the smoothing constant of the rank-fusion score.
const DefaultRankConstant = 60

// fusionScore computes Σ weight_e / (k + position_e) over contributing engines.
// Missing positions count as the last rank the constant allows for, so an
// engine that gave no position still adds a small share.
// Engines are summed in the given order so equal inputs give equal floats.
func fusionScore(engines []string, positions map[string]int, weights map[string]float64, k float64) float64 {
	if k <= 0 {
		k = DefaultRankConstant
	}
	var score float64
	for _, engine := range engines {
		pos := positions[engine]
		w := weights[engine]
		if w <= 0 {
			w = 1
		}
		if pos <= 0 {
			pos = int(k)
		}
		score += w / (k + float64(pos))
	}
	return score
}

// ranked pairs a merged view with its arrival index for sorting.
type ranked struct {
	res     *Result
	arrival int
}

// compare reports whether a ranks before b.
//
// Priority:
//  1. More contributing engines
//  2. Higher rank-fusion score
//  3. Earlier arrival
func compare(a, b ranked) bool {
	if len(a.res.Engines) != len(b.res.Engines) {
		return len(a.res.Engines) > len(b.res.Engines)
	}
	if a.res.Score != b.res.Score {
		return a.res.Score > b.res.Score
	}
	return a.arrival < b.arrival
}

// orderCategories returns the partition order: configured categories first,
// then the remaining ones by name.
func orderCategories(present map[string]bool, configured []string) []string {
	order := make([]string, 0, len(present))
	seen := make(map[string]bool, len(present))
	for _, c := range configured {
		if present[c] && !seen[c] {
			order = append(order, c)
			seen[c] = true
		}
	}
	var rest []string
	for c := range present {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}
