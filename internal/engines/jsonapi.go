package engines

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/pkg/json"
)

func init() {
	Register("json", search.KindNetwork, []string{results.DefaultCategory}, newJSONEngine)
}

// jsonEngine queries a JSON API and maps fields by dotted path.
//
// Options:
//
//	search_url       URL template (see urlTemplate), required
//	results          path to the result array; empty means the document root
//	url, title       per-result paths, url required
//	content, thumbnail, img_src, author, published
//	suggestions      path to an array of suggestion strings
//	total            path to the estimated number of results
//	template         result template, default "default"
//	page_size        results per page for {offset}
//	header.<Name>    extra request header
type jsonEngine struct {
	name     string
	search   urlTemplate
	headers  http.Header
	results  []any
	fields   map[string][]any
	suggest  []any
	total    []any
	template results.Template
}

var jsonFieldOptions = []string{"url", "title", "content", "thumbnail", "img_src", "author", "published"}

func newJSONEngine(cfg config.EngineConfig) (search.Adapter, error) {
	raw, err := requireOption(cfg, "search_url")
	if err != nil {
		return nil, err
	}
	pageSize, err := optionInt(cfg, "page_size", 10)
	if err != nil {
		return nil, err
	}
	tmpl, err := newURLTemplate(raw, pageSize)
	if err != nil {
		return nil, err
	}
	if _, err := requireOption(cfg, "url"); err != nil {
		return nil, err
	}

	e := &jsonEngine{
		name:     cfg.Name,
		search:   tmpl,
		headers:  headerOptions(cfg),
		results:  splitPath(cfg.Option("results", "")),
		fields:   make(map[string][]any),
		suggest:  splitPath(cfg.Option("suggestions", "")),
		total:    splitPath(cfg.Option("total", "")),
		template: templateOption(cfg),
	}
	for _, f := range jsonFieldOptions {
		if p := cfg.Option(f, ""); p != "" {
			e.fields[f] = splitPath(p)
		}
	}
	return e, nil
}

// BuildRequest implements search.Adapter.
func (e *jsonEngine) BuildRequest(q *search.Query, _ *search.EngineState) (*search.RequestDescriptor, error) {
	h := requestHeaders(e.headers, q)
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	return &search.RequestDescriptor{
		Method:  http.MethodGet,
		URL:     e.search.expand(q),
		Headers: h,
	}, nil
}

// ParseResponse implements search.Adapter.
func (e *jsonEngine) ParseResponse(_ *search.Query, raw *search.RawResponse) (*results.Batch, error) {
	if !json.Valid(raw.Body) {
		return nil, serrors.ParseError(fmt.Sprintf("engine %q returned invalid JSON", e.name), nil)
	}

	list := json.Get(raw.Body, e.results...)
	switch list.ValueType() {
	case json.ArrayValue:
	case json.InvalidValue, json.NilValue:
		// absent result list means no results
		return &results.Batch{}, nil
	default:
		return nil, serrors.New(serrors.ErrCodeUnexpectedFormat,
			fmt.Sprintf("engine %q: results path is not an array", e.name), nil)
	}

	batch := &results.Batch{}
	for i := 0; i < list.Size(); i++ {
		item := list.Get(i)
		rec := results.Record{
			Template:  e.template,
			URL:       resolveURL(raw.URL, e.field(item, "url")),
			Title:     cleanText(e.field(item, "title")),
			Content:   cleanText(e.field(item, "content")),
			Thumbnail: resolveURL(raw.URL, e.field(item, "thumbnail")),
			ImgSrc:    resolveURL(raw.URL, e.field(item, "img_src")),
			Author:    e.field(item, "author"),
		}
		if published := e.field(item, "published"); published != "" {
			if t, ok := parseTime(published); ok {
				rec.PublishedDate = &t
			}
		}
		batch.Records = append(batch.Records, rec)
	}

	if e.suggest != nil {
		s := json.Get(raw.Body, e.suggest...)
		if s.ValueType() == json.ArrayValue {
			for i := 0; i < s.Size(); i++ {
				if v := strings.TrimSpace(s.Get(i).ToString()); v != "" {
					batch.Suggestions = append(batch.Suggestions, v)
				}
			}
		}
	}
	if e.total != nil {
		if t := json.Get(raw.Body, e.total...); t.ValueType() == json.NumberValue {
			batch.EstimatedTotal = t.ToInt64()
		}
	}
	return batch, nil
}

func (e *jsonEngine) field(item json.Any, name string) string {
	path, ok := e.fields[name]
	if !ok {
		return ""
	}
	v := item.Get(path...)
	switch v.ValueType() {
	case json.StringValue, json.NumberValue, json.BoolValue:
		return strings.TrimSpace(v.ToString())
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTime accepts common date layouts and unix seconds.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	var secs int64
	if _, err := fmt.Sscan(s, &secs); err == nil && secs > 0 && fmt.Sprint(secs) == s {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// cleanText collapses whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
