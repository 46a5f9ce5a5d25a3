package engines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/pkg/json"
)

func init() {
	Register("bleve", search.KindLocal, []string{"general"}, newBleveEngine)
}

// bleveEngine runs full-text queries against a local bleve index, typically
// one built by `metasearch index`.
//
// Options:
//
//	path        index directory, required
//	page_size   hits per page, default 10
//	template    result template, default "default"
type bleveEngine struct {
	name     string
	path     string
	pageSize int
	template results.Template
	index    bleve.Index
}

func newBleveEngine(cfg config.EngineConfig) (search.Adapter, error) {
	path, err := requireOption(cfg, "path")
	if err != nil {
		return nil, err
	}
	pageSize, err := optionInt(cfg, "page_size", 10)
	if err != nil {
		return nil, err
	}
	if pageSize == 0 {
		pageSize = 10
	}

	idx, err := bleve.Open(path)
	if err != nil {
		return nil, serrors.EngineConfigError(cfg.Name,
			fmt.Sprintf("engine %q: cannot open index %s", cfg.Name, path), err).
			WithSuggestion("Build it with 'metasearch index'")
	}

	return &bleveEngine{
		name:     cfg.Name,
		path:     path,
		pageSize: pageSize,
		template: templateOption(cfg),
		index:    idx,
	}, nil
}

// BuildRequest implements search.Adapter.
func (e *bleveEngine) BuildRequest(q *search.Query, _ *search.EngineState) (*search.RequestDescriptor, error) {
	match := bleve.NewMatchQuery(q.Text)
	req := bleve.NewSearchRequestOptions(match, e.pageSize, (q.PageNo-1)*e.pageSize, false)
	req.Fields = []string{"*"}
	return &search.RequestDescriptor{Handle: req}, nil
}

// Execute implements search.Executor.
func (e *bleveEngine) Execute(ctx context.Context, req *search.RequestDescriptor) (*search.RawResponse, error) {
	sr, ok := req.Handle.(*bleve.SearchRequest)
	if !ok {
		return nil, serrors.InternalError(fmt.Sprintf("engine %q got a foreign request", e.name), nil)
	}
	res, err := e.index.SearchInContext(ctx, sr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serrors.InternalError(fmt.Sprintf("engine %q search failed", e.name), err)
	}
	return &search.RawResponse{Rows: res}, nil
}

// ParseResponse implements search.Adapter.
func (e *bleveEngine) ParseResponse(_ *search.Query, raw *search.RawResponse) (*results.Batch, error) {
	res, ok := raw.Rows.(*bleve.SearchResult)
	if !ok {
		return nil, serrors.ParseError(fmt.Sprintf("engine %q got rows of type %T", e.name, raw.Rows), nil)
	}

	batch := &results.Batch{EstimatedTotal: int64(res.Total)}
	for _, hit := range res.Hits {
		rec := results.Record{
			Template: e.template,
			URL:      stringField(hit.Fields, "url"),
			Title:    stringField(hit.Fields, "title"),
			Content:  stringField(hit.Fields, "content"),
			Author:   stringField(hit.Fields, "author"),
			Category: stringField(hit.Fields, "category"),
		}
		if rec.URL == "" {
			rec.URL = hit.ID
		}
		if published := stringField(hit.Fields, "published"); published != "" {
			if t, ok := parseTime(published); ok {
				rec.PublishedDate = &t
			}
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// Close implements search.Closer.
func (e *bleveEngine) Close() error {
	return e.index.Close()
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// Document is one JSONL line accepted by BuildIndex.
type Document struct {
	ID        string `json:"id,omitempty"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"`
	Author    string `json:"author,omitempty"`
	Category  string `json:"category,omitempty"`
	Published string `json:"published,omitempty"`
}

// ErrIndexExists is returned by BuildIndex when path is taken and overwrite is false.
var ErrIndexExists = errors.New("index already exists")

// IndexStats summarizes a BuildIndex run.
type IndexStats struct {
	Indexed int
	Skipped int
}

const indexBatchSize = 500

// BuildIndex creates a bleve index at path from JSONL documents. Lines
// without a URL, or that fail to decode, are counted as skipped.
func BuildIndex(ctx context.Context, path string, r io.Reader, overwrite bool) (IndexStats, error) {
	var stats IndexStats

	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return stats, fmt.Errorf("%w at %s", ErrIndexExists, path)
		}
		if err := os.RemoveAll(path); err != nil {
			return stats, fmt.Errorf("failed to remove existing index: %w", err)
		}
	}

	idx, err := bleve.New(path, documentMapping())
	if err != nil {
		return stats, fmt.Errorf("failed to create index: %w", err)
	}
	defer func() { _ = idx.Close() }()

	batch := idx.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil || doc.URL == "" {
			stats.Skipped++
			continue
		}
		id := doc.ID
		if id == "" {
			id = doc.URL
		}
		if err := batch.Index(id, doc); err != nil {
			return stats, fmt.Errorf("failed to index document %s: %w", id, err)
		}
		stats.Indexed++
		if batch.Size() >= indexBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read documents: %w", err)
	}
	return stats, flush()
}

// documentMapping indexes title and content as text and stores every field
// so hits can be turned back into records.
func documentMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Store = true

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = true

	stored := bleve.NewTextFieldMapping()
	stored.Store = true
	stored.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("author", text)
	doc.AddFieldMappingsAt("url", keyword)
	doc.AddFieldMappingsAt("category", keyword)
	doc.AddFieldMappingsAt("published", stored)
	doc.AddFieldMappingsAt("id", stored)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}
