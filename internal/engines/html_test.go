package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searxng/searxng-sub003/internal/config"
	"github.com/searxng/searxng-sub003/internal/search"
)

const htmlPage = `<html><body>
<div class="result">
  <a class="title" href="/wiki/Go">Go (programming   language)</a>
  <p class="snippet">Go is a statically typed language.</p>
  <img src="//cdn.example.com/go.png">
</div>
<div class="result">
  <a class="title" href="https://go.dev/">The Go Programming Language</a>
</div>
<div class="result">
  <span>advert without a link</span>
</div>
<ul class="suggest"><li>golang tutorial</li><li> </li><li>go modules</li></ul>
</body></html>`

func newTestHTMLEngine(t *testing.T) search.Adapter {
	t.Helper()
	a, err := newHTMLEngine(config.EngineConfig{Name: "scrape", Engine: "html", Options: map[string]string{
		"search_url":  "https://en.example.org/search?q={query}&offset={offset}",
		"results":     "div.result",
		"url":         "a.title@href",
		"title":       "a.title",
		"content":     "p.snippet",
		"thumbnail":   "img@src",
		"suggestions": "ul.suggest li",
		"page_size":   "20",
	}})
	require.NoError(t, err)
	return a
}

func TestHTMLEngine_BuildRequest(t *testing.T) {
	e := newTestHTMLEngine(t)

	req, err := e.BuildRequest(mustQuery(t, "go", search.WithPage(2)), nil)

	require.NoError(t, err)
	assert.Equal(t, "https://en.example.org/search?q=go&offset=20", req.URL)
	assert.Contains(t, req.Headers.Get("Accept"), "text/html")
}

func TestHTMLEngine_ParseResponse(t *testing.T) {
	// Given: a result page with two linked results and one advert
	e := newTestHTMLEngine(t)

	// When: parsing it
	batch, err := e.ParseResponse(mustQuery(t, "go"), &search.RawResponse{
		StatusCode: 200,
		URL:        "https://en.example.org/search?q=go",
		Body:       []byte(htmlPage),
	})

	// Then: linked results are extracted with absolute URLs
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	first := batch.Records[0]
	assert.Equal(t, "https://en.example.org/wiki/Go", first.URL)
	assert.Equal(t, "Go (programming language)", first.Title)
	assert.Equal(t, "Go is a statically typed language.", first.Content)
	assert.Equal(t, "https://cdn.example.com/go.png", first.Thumbnail)

	assert.Equal(t, "https://go.dev/", batch.Records[1].URL)
	assert.Empty(t, batch.Records[1].Content)

	assert.Equal(t, []string{"golang tutorial", "go modules"}, batch.Suggestions)
}

func TestHTMLEngine_RequiresSelectors(t *testing.T) {
	_, err := newHTMLEngine(config.EngineConfig{Name: "scrape", Options: map[string]string{
		"search_url": "https://example.org/?q={query}",
		"url":        "a@href",
	}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "results")
}

func TestFieldSelector(t *testing.T) {
	assert.Equal(t, fieldSelector{css: "a.title", attr: "href"}, parseFieldSelector(" a.title @ href "))
	assert.Equal(t, fieldSelector{attr: "data-url"}, parseFieldSelector("@data-url"))
	assert.Equal(t, fieldSelector{css: "h3"}, parseFieldSelector("h3"))
}
