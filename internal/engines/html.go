package engines

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

func init() {
	Register("html", search.KindNetwork, []string{results.DefaultCategory}, newHTMLEngine)
}

// htmlEngine scrapes a result page with CSS selectors.
//
// Options:
//
//	search_url       URL template, required
//	results          selector matching one element per result, required
//	url              field selector, required
//	title, content, thumbnail, img_src
//	suggestions      selector over the whole page
//	template, page_size, header.<Name>
//
// Field selectors are "css" for the element text, "css@attr" for an
// attribute, or "@attr" for an attribute of the result element itself.
type htmlEngine struct {
	name     string
	search   urlTemplate
	headers  http.Header
	results  string
	fields   map[string]fieldSelector
	suggest  string
	template results.Template
}

type fieldSelector struct {
	css  string
	attr string
}

func parseFieldSelector(s string) fieldSelector {
	css, attr, _ := strings.Cut(strings.TrimSpace(s), "@")
	return fieldSelector{css: strings.TrimSpace(css), attr: strings.TrimSpace(attr)}
}

func (f fieldSelector) extract(sel *goquery.Selection) string {
	target := sel
	if f.css != "" {
		target = sel.Find(f.css).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if f.attr != "" {
		v, _ := target.Attr(f.attr)
		return strings.TrimSpace(v)
	}
	return cleanText(target.Text())
}

var htmlFieldOptions = []string{"url", "title", "content", "thumbnail", "img_src"}

func newHTMLEngine(cfg config.EngineConfig) (search.Adapter, error) {
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
	resultSel, err := requireOption(cfg, "results")
	if err != nil {
		return nil, err
	}
	if _, err := requireOption(cfg, "url"); err != nil {
		return nil, err
	}

	e := &htmlEngine{
		name:     cfg.Name,
		search:   tmpl,
		headers:  headerOptions(cfg),
		results:  resultSel,
		fields:   make(map[string]fieldSelector),
		suggest:  cfg.Option("suggestions", ""),
		template: templateOption(cfg),
	}
	for _, f := range htmlFieldOptions {
		if s := cfg.Option(f, ""); s != "" {
			e.fields[f] = parseFieldSelector(s)
		}
	}
	return e, nil
}

// BuildRequest implements search.Adapter.
func (e *htmlEngine) BuildRequest(q *search.Query, _ *search.EngineState) (*search.RequestDescriptor, error) {
	h := requestHeaders(e.headers, q)
	if h.Get("Accept") == "" {
		h.Set("Accept", "text/html,application/xhtml+xml")
	}
	return &search.RequestDescriptor{
		Method:  http.MethodGet,
		URL:     e.search.expand(q),
		Headers: h,
	}, nil
}

// ParseResponse implements search.Adapter.
func (e *htmlEngine) ParseResponse(_ *search.Query, raw *search.RawResponse) (*results.Batch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, serrors.ParseError(fmt.Sprintf("engine %q returned unreadable HTML", e.name), err)
	}

	batch := &results.Batch{}
	doc.Find(e.results).Each(func(_ int, s *goquery.Selection) {
		rec := results.Record{
			Template:  e.template,
			URL:       resolveURL(raw.URL, e.extract(s, "url")),
			Title:     e.extract(s, "title"),
			Content:   e.extract(s, "content"),
			Thumbnail: resolveURL(raw.URL, e.extract(s, "thumbnail")),
			ImgSrc:    resolveURL(raw.URL, e.extract(s, "img_src")),
		}
		if rec.URL == "" {
			return
		}
		batch.Records = append(batch.Records, rec)
	})

	if e.suggest != "" {
		doc.Find(e.suggest).Each(func(_ int, s *goquery.Selection) {
			if v := cleanText(s.Text()); v != "" {
				batch.Suggestions = append(batch.Suggestions, v)
			}
		})
	}
	return batch, nil
}

func (e *htmlEngine) extract(s *goquery.Selection, field string) string {
	f, ok := e.fields[field]
	if !ok {
		return ""
	}
	return f.extract(s)
}
