package engines

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/searxng/searxng-sub003/internal/config"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// urlTemplate expands placeholders in a configured search URL:
//
//	{query}       url-escaped search text
//	{pageno}      1-based page number
//	{offset}      0-based result offset (page size from the page_size option)
//	{lang}        two-letter language, empty for "all"
//	{safesearch}  0, 1 or 2
//	{time_range}  day, week, month, year or empty
type urlTemplate struct {
	raw      string
	pageSize int
}

func newURLTemplate(raw string, pageSize int) (urlTemplate, error) {
	sample := strings.NewReplacer(
		"{query}", "q", "{pageno}", "1", "{offset}", "0",
		"{lang}", "", "{safesearch}", "0", "{time_range}", "",
	).Replace(raw)
	u, err := url.Parse(sample)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return urlTemplate{}, fmt.Errorf("search_url %q is not an absolute URL", raw)
	}
	if !strings.Contains(raw, "{query}") {
		return urlTemplate{}, fmt.Errorf("search_url %q has no {query} placeholder", raw)
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return urlTemplate{raw: raw, pageSize: pageSize}, nil
}

func (t urlTemplate) expand(q *search.Query) string {
	page := q.PageNo
	if page < 1 {
		page = 1
	}
	return strings.NewReplacer(
		"{query}", url.QueryEscape(q.Text),
		"{pageno}", strconv.Itoa(page),
		"{offset}", strconv.Itoa((page-1)*t.pageSize),
		"{lang}", url.QueryEscape(q.LanguageCode()),
		"{safesearch}", strconv.Itoa(q.SafeSearch),
		"{time_range}", q.TimeRange,
	).Replace(t.raw)
}

// headerOptions collects "header.<Name>" options into request headers.
func headerOptions(cfg config.EngineConfig) http.Header {
	h := http.Header{}
	for k, v := range cfg.Options {
		if name, ok := strings.CutPrefix(k, "header."); ok && name != "" {
			h.Set(name, v)
		}
	}
	if lang := cfg.Option("accept_language", ""); lang != "" {
		h.Set("Accept-Language", lang)
	}
	return h
}

// requestHeaders copies the configured headers and adds Accept-Language
// from the query when none is configured.
func requestHeaders(base http.Header, q *search.Query) http.Header {
	h := base.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Accept-Language") == "" {
		if lang := q.LanguageCode(); lang != "" {
			h.Set("Accept-Language", lang)
		}
	}
	return h
}

func templateOption(cfg config.EngineConfig) results.Template {
	return results.Template(cfg.Option("template", string(results.TemplateDefault)))
}

// resolveURL makes ref absolute against base. Unparseable references are
// returned unchanged and left to record validation.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// splitPath turns "a.b.0.c" into JSON path elements; numeric segments index arrays.
func splitPath(path string) []any {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, p)
	}
	return out
}
