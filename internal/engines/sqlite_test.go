package engines

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

func createTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`CREATE TABLE docs (url TEXT, title TEXT, body TEXT, lang TEXT)`)
	require.NoError(t, err)
	for _, row := range [][]any{
		{"https://go.dev/doc/", "Go documentation", "Guides and references", "en"},
		{"https://go.dev/blog/", "The Go Blog", nil, "en"},
		{"https://example.com/python", "Python docs", "Not Go", "en"},
	} {
		_, err = db.Exec(`INSERT INTO docs (url, title, body, lang) VALUES (?, ?, ?, ?)`, row...)
		require.NoError(t, err)
	}
	return path
}

func newTestSQLite(t *testing.T, path string, opts map[string]string) *sqliteEngine {
	t.Helper()
	base := map[string]string{
		"path":           path,
		"query":          `SELECT url, title, body FROM docs WHERE title LIKE '%' || :query || '%' ORDER BY url LIMIT :limit OFFSET :offset`,
		"url_column":     "url",
		"title_column":   "title",
		"content_column": "body",
		"page_size":      "1",
	}
	for k, v := range opts {
		base[k] = v
	}
	a, err := newSQLiteEngine(config.EngineConfig{Name: "local-docs", Engine: "sqlite", Options: base})
	require.NoError(t, err)
	e := a.(*sqliteEngine)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func runLocal(t *testing.T, a search.Adapter, q *search.Query) *results.Batch {
	t.Helper()
	req, err := a.BuildRequest(q, search.NewEngineState())
	require.NoError(t, err)
	raw, err := a.(search.Executor).Execute(context.Background(), req)
	require.NoError(t, err)
	batch, err := a.ParseResponse(q, raw)
	require.NoError(t, err)
	return batch
}

func TestSQLiteEngine_Pages(t *testing.T) {
	// Given: a database with two rows matching "Go"
	e := newTestSQLite(t, createTestDB(t), nil)
	require.NoError(t, e.Validate())

	// When: asking for the first and second page of one row each
	first := runLocal(t, e, mustQuery(t, "Go"))
	second := runLocal(t, e, mustQuery(t, "Go", search.WithPage(2)))

	// Then: each page holds the next row in order
	require.Len(t, first.Records, 1)
	assert.Equal(t, "https://go.dev/blog/", first.Records[0].URL)
	assert.Equal(t, "The Go Blog", first.Records[0].Title)
	assert.Empty(t, first.Records[0].Content, "NULL columns are left out")
	assert.Equal(t, results.TemplateKeyValue, first.Records[0].Template)

	require.Len(t, second.Records, 1)
	assert.Equal(t, "https://go.dev/doc/", second.Records[0].URL)
	assert.Equal(t, "Guides and references", second.Records[0].Extra["body"])
}

func TestSQLiteEngine_NoMatch(t *testing.T) {
	e := newTestSQLite(t, createTestDB(t), nil)

	batch := runLocal(t, e, mustQuery(t, "haskell"))

	assert.True(t, batch.IsEmpty())
}

func TestSQLiteEngine_QueryWithoutPaging(t *testing.T) {
	e := newTestSQLite(t, createTestDB(t), map[string]string{
		"query": `SELECT url, title FROM docs WHERE body = :query`,
	})

	req, err := e.BuildRequest(mustQuery(t, "Not Go"), nil)
	require.NoError(t, err)
	assert.Len(t, req.Handle.(sqliteRequest).args, 1, "only referenced parameters are bound")

	batch := runLocal(t, e, mustQuery(t, "Not Go"))
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "Python docs", batch.Records[0].Title)
}

func TestSQLiteEngine_MissingDatabase(t *testing.T) {
	e := newTestSQLite(t, filepath.Join(t.TempDir(), "absent.db"), nil)

	err := e.Validate()

	require.Error(t, err)
	assert.Equal(t, serrors.KindConfiguration, serrors.KindOf(err))
}

func TestSQLiteEngine_BadSQLIsUnexpected(t *testing.T) {
	e := newTestSQLite(t, createTestDB(t), map[string]string{
		"query": `SELECT nope FROM missing WHERE x = :query`,
	})
	req, err := e.BuildRequest(mustQuery(t, "x"), nil)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), req)

	require.Error(t, err)
	assert.Equal(t, serrors.KindUnexpected, serrors.KindOf(err))
}

func TestSQLiteEngine_RequiresQueryParameter(t *testing.T) {
	_, err := newSQLiteEngine(config.EngineConfig{Name: "db", Options: map[string]string{
		"path":  "/tmp/x.db",
		"query": "SELECT 1",
	}})

	assert.Error(t, err)
}

func TestSQLiteEngine_ForeignRows(t *testing.T) {
	e := newTestSQLite(t, createTestDB(t), nil)

	_, err := e.ParseResponse(mustQuery(t, "x"), &search.RawResponse{Rows: 42})

	require.Error(t, err)
	assert.Equal(t, serrors.KindParse, serrors.KindOf(err))
}
