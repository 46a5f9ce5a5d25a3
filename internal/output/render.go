package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/internal/telemetry"
	"github.com/searxng/searxng-sub003/pkg/json"
)

// snippetWidth bounds result content in terminal output.
const snippetWidth = 200

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Response renders a search response grouped by category.
func (w *Writer) Response(resp *results.Response) {
	st := w.styles

	for _, a := range resp.Answers {
		_, _ = fmt.Fprintf(w.out, "%s %s %s\n", st.Header.Render("Answer:"), a.Text, st.Label.Render("("+a.Engine+")"))
	}
	for _, box := range resp.Infoboxes {
		w.infobox(box)
	}
	if len(resp.Answers) > 0 || len(resp.Infoboxes) > 0 {
		w.Newline()
	}

	if len(resp.Results) == 0 {
		_, _ = fmt.Fprintf(w.out, "No results for %q\n", resp.Query)
	}

	num := 0
	for _, group := range groupByCategory(resp.Results) {
		_, _ = fmt.Fprintf(w.out, "%s %s\n\n",
			st.Category.Render(strings.ToUpper(group.category)),
			st.Dim.Render(fmt.Sprintf("(%d)", len(group.results))))
		for _, r := range group.results {
			num++
			w.result(num, r)
		}
	}

	if len(resp.Corrections) > 0 {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", st.Label.Render("Did you mean:"), strings.Join(resp.Corrections, ", "))
	}
	if len(resp.Suggestions) > 0 {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", st.Label.Render("Suggestions:"), strings.Join(resp.Suggestions, ", "))
	}
	for _, r := range resp.Unresponsive {
		msg := fmt.Sprintf("%s %s", r.Engine, r.Status)
		if r.Message != "" {
			msg += ": " + r.Message
		}
		w.Warning(msg)
	}
	_, _ = fmt.Fprintln(w.out, st.Dim.Render(fmt.Sprintf("%d results, about %d total, page %d, query %s",
		len(resp.Results), resp.NumberOfResults, resp.PageNo, resp.QueryID)))
}

type categoryGroup struct {
	category string
	results  []*results.Result
}

// groupByCategory keeps the order in which categories first appear.
func groupByCategory(res []*results.Result) []categoryGroup {
	var groups []categoryGroup
	index := make(map[string]int)
	for _, r := range res {
		i, ok := index[r.Category]
		if !ok {
			i = len(groups)
			index[r.Category] = i
			groups = append(groups, categoryGroup{category: r.Category})
		}
		groups[i].results = append(groups[i].results, r)
	}
	return groups
}

func (w *Writer) result(num int, r *results.Result) {
	st := w.styles
	title := r.Title
	if title == "" {
		title = r.URL
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", st.Label.Render(fmt.Sprintf("%2d.", num)), st.Title.Render(title))
	_, _ = fmt.Fprintf(w.out, "    %s\n", st.URL.Render(r.URL))
	if content := snippet(r.Content, snippetWidth); content != "" {
		_, _ = fmt.Fprintf(w.out, "    %s\n", content)
	}
	meta := st.Engine.Render(strings.Join(r.Engines, ", "))
	if r.PublishedDate != nil {
		meta += st.Dim.Render(" | " + r.PublishedDate.Format("2006-01-02"))
	}
	_, _ = fmt.Fprintf(w.out, "    %s\n\n", meta)
}

func (w *Writer) infobox(box results.Infobox) {
	var sb strings.Builder
	sb.WriteString(w.styles.Title.Render(box.Title))
	if box.Content != "" {
		sb.WriteString("\n")
		sb.WriteString(snippet(box.Content, snippetWidth*2))
	}
	for _, a := range box.Attributes {
		fmt.Fprintf(&sb, "\n%s %s", w.styles.Label.Render(a.Label+":"), a.Value)
	}
	for _, l := range box.URLs {
		fmt.Fprintf(&sb, "\n%s %s", w.styles.Label.Render(l.Title+":"), w.styles.URL.Render(l.URL))
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Panel.Render(sb.String()))
}

// snippet collapses whitespace and cuts s to n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// Engines renders engine status as a table.
func (w *Writer) Engines(engines []search.EngineStatus) {
	st := w.styles
	_, _ = fmt.Fprintf(w.out, "%s\n", st.Header.Render(fmt.Sprintf("%-20s %-8s %-8s %-24s %-10s %s", "ENGINE", "BANG", "KIND", "CATEGORIES", "STATE", "WEIGHT")))
	for _, e := range engines {
		state := e.State
		stateStyle := st.Success
		switch {
		case e.Disabled:
			state = "disabled"
			stateStyle = st.Dim
		case state != "closed":
			stateStyle = st.Warning
		}
		bang := ""
		if e.Shortcut != "" {
			bang = "!" + e.Shortcut
		}
		_, _ = fmt.Fprintf(w.out, "%-20s %-8s %-8s %-24s %s %.2f\n",
			e.Name, bang, e.Kind, strings.Join(e.Categories, ","),
			stateStyle.Render(fmt.Sprintf("%-10s", state)), e.Weight)
		if !e.SuspendedUntil.IsZero() {
			_, _ = fmt.Fprintf(w.out, "%s\n", st.Dim.Render(fmt.Sprintf("%20s suspended until %s after %d failures",
				"", e.SuspendedUntil.Format(time.RFC3339), e.Failures)))
		}
	}
}

// EngineStats renders per-engine telemetry.
func (w *Writer) EngineStats(snap *telemetry.Snapshot) {
	st := w.styles
	names := snap.EngineNames()
	if len(names) == 0 {
		_, _ = fmt.Fprintln(w.out, "No engine telemetry recorded yet.")
		return
	}
	_, _ = fmt.Fprintln(w.out, st.Header.Render(fmt.Sprintf("%-20s %8s %8s %8s %10s  %s", "ENGINE", "CALLS", "ERRORS", "RESULTS", "MEAN", "LATENCY")))
	for _, name := range names {
		c := snap.Engines[name]
		values := make([]float64, len(telemetry.Buckets))
		for i, b := range telemetry.Buckets {
			values[i] = float64(c.Latencies[b])
		}
		errStyle := st.Success
		if c.ErrorRate() > 0.25 {
			errStyle = st.Error
		} else if c.ErrorRate() > 0 {
			errStyle = st.Warning
		}
		_, _ = fmt.Fprintf(w.out, "%-20s %8d %s %8d %10s  %s\n",
			name, c.Total(),
			errStyle.Render(fmt.Sprintf("%7.1f%%", c.ErrorRate()*100)),
			c.Results, c.MeanLatency().Round(time.Millisecond), st.Engine.Render(Bars(values)))
	}
	_, _ = fmt.Fprintln(w.out, st.Dim.Render("latency buckets: "+bucketLegend()))
}

// QueryStats renders query telemetry.
func (w *Writer) QueryStats(snap *telemetry.Snapshot) {
	st := w.styles
	_, _ = fmt.Fprintf(w.out, "%s %d  %s %.1f%%  %s %d\n",
		st.Label.Render("Queries:"), snap.TotalQueries,
		st.Label.Render("Zero results:"), snap.ZeroResultPercentage(),
		st.Label.Render("Repeats:"), snap.RepeatCount)

	values := make([]float64, len(telemetry.Buckets))
	for i, b := range telemetry.Buckets {
		values[i] = float64(snap.QueryLatencies[b])
	}
	_, _ = fmt.Fprintf(w.out, "%s %s  %s\n", st.Label.Render("Latency:"), st.Engine.Render(Bars(values)), st.Dim.Render(bucketLegend()))

	if len(snap.TopTerms) > 0 {
		w.Newline()
		_, _ = fmt.Fprintln(w.out, st.Header.Render("Top terms"))
		terms := append([]telemetry.TermCount(nil), snap.TopTerms...)
		sort.SliceStable(terms, func(i, j int) bool { return terms[i].Count > terms[j].Count })
		for _, tc := range terms {
			_, _ = fmt.Fprintf(w.out, "  %-30s %d\n", tc.Term, tc.Count)
		}
	}
	if len(snap.ZeroResultQueries) > 0 {
		w.Newline()
		_, _ = fmt.Fprintln(w.out, st.Header.Render("Recent zero-result queries"))
		for _, q := range snap.ZeroResultQueries {
			_, _ = fmt.Fprintf(w.out, "  %s\n", q)
		}
	}
}

func bucketLegend() string {
	names := make([]string, len(telemetry.Buckets))
	for i, b := range telemetry.Buckets {
		names[i] = string(b)
	}
	return strings.Join(names, " ")
}

// BarChars are the block characters used by Bars, lowest first.
var BarChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Bars renders values as one block character each, scaled to the maximum.
// Zero values render as a space.
func Bars(values []float64) string {
	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}

	var sb strings.Builder
	sb.Grow(len(values) * 3)
	for _, v := range values {
		if v <= 0 || maxVal <= 0 {
			sb.WriteRune(' ')
			continue
		}
		idx := int(v / maxVal * float64(len(BarChars)-1))
		idx = min(max(idx, 0), len(BarChars)-1)
		sb.WriteRune(BarChars[idx])
	}
	return sb.String()
}
