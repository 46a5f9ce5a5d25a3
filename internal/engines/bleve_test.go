package engines

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
)

const corpus = `{"url": "https://go.dev/doc/effective_go", "title": "Effective Go", "content": "Tips for writing clear, idiomatic Go code.", "category": "it"}
{"url": "https://go.dev/blog/generics", "title": "Generics in Go", "content": "Type parameters arrive in Go 1.18.", "published": "2022-03-15"}
not json at all
{"title": "missing url"}

{"id": "py", "url": "https://docs.python.org/", "title": "Python", "content": "The Python language reference."}
`

func buildTestIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.bleve")
	stats, err := BuildIndex(context.Background(), path, strings.NewReader(corpus), false)
	require.NoError(t, err)
	assert.Equal(t, IndexStats{Indexed: 3, Skipped: 2}, stats)
	return path
}

func TestBuildIndex_RefusesExisting(t *testing.T) {
	path := buildTestIndex(t)

	_, err := BuildIndex(context.Background(), path, strings.NewReader(corpus), false)
	assert.True(t, errors.Is(err, ErrIndexExists))

	stats, err := BuildIndex(context.Background(), path, strings.NewReader(corpus), true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Indexed)
}

func TestBleveEngine_Search(t *testing.T) {
	// Given: an index of three documents
	path := buildTestIndex(t)
	a, err := newBleveEngine(config.EngineConfig{Name: "docs", Engine: "bleve", Options: map[string]string{"path": path}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.(search.Closer).Close() })

	// When: searching for "generics"
	batch := runLocal(t, a, mustQuery(t, "generics"))

	// Then: the matching document comes back with its stored fields
	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]
	assert.Equal(t, "https://go.dev/blog/generics", rec.URL)
	assert.Equal(t, "Generics in Go", rec.Title)
	require.NotNil(t, rec.PublishedDate)
	assert.Equal(t, 2022, rec.PublishedDate.Year())
	assert.Equal(t, int64(1), batch.EstimatedTotal)
}

func TestBleveEngine_Paging(t *testing.T) {
	path := buildTestIndex(t)
	a, err := newBleveEngine(config.EngineConfig{Name: "docs", Options: map[string]string{"path": path, "page_size": "1"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.(search.Closer).Close() })

	first := runLocal(t, a, mustQuery(t, "go"))
	second := runLocal(t, a, mustQuery(t, "go", search.WithPage(2)))

	require.Len(t, first.Records, 1)
	require.Len(t, second.Records, 1)
	assert.NotEqual(t, first.Records[0].URL, second.Records[0].URL)
	assert.Equal(t, int64(2), first.EstimatedTotal)
}

func TestBleveEngine_MissingIndex(t *testing.T) {
	_, err := newBleveEngine(config.EngineConfig{Name: "docs", Options: map[string]string{
		"path": filepath.Join(t.TempDir(), "nope.bleve"),
	}})

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeEngineMisconfigured, serrors.GetCode(err))
}
