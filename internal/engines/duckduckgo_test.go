package engines

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

const ddgBody = `{
	"Heading": "Go (programming language)",
	"AbstractText": "Go is a statically typed, compiled language designed at Google.",
	"AbstractURL": "https://en.wikipedia.org/wiki/Go_(programming_language)",
	"AbstractSource": "Wikipedia",
	"Image": "/i/go.png",
	"Answer": "",
	"Definition": "",
	"Redirect": "",
	"Infobox": {"content": [
		{"label": "Designed by", "value": "Robert Griesemer"},
		{"label": "First appeared", "value": 2009},
		{"label": "Typing", "value": {"nested": true}}
	]},
	"Results": [{"FirstURL": "https://go.dev/", "Text": "Official site"}],
	"RelatedTopics": [
		{"FirstURL": "https://duckduckgo.com/Gopher", "Text": "Gopher - The Go mascot.", "Icon": {"URL": "/i/gopher.png"}},
		{"Name": "Tools", "Topics": [
			{"FirstURL": "https://duckduckgo.com/Gofmt", "Text": "gofmt - Formatter for Go."}
		]},
		{"FirstURL": "", "Text": "no link"}
	]
}`

func newTestDDG(t *testing.T) search.Adapter {
	t.Helper()
	a, err := newDuckDuckGo(config.EngineConfig{Name: "ddg"})
	require.NoError(t, err)
	return a
}

func TestDuckDuckGo_BuildRequest(t *testing.T) {
	e := newTestDDG(t)

	req, err := e.BuildRequest(mustQuery(t, "golang"), nil)

	require.NoError(t, err)
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "api.duckduckgo.com", u.Host)
	assert.Equal(t, "golang", u.Query().Get("q"))
	assert.Equal(t, "json", u.Query().Get("format"))
}

func TestDuckDuckGo_SkipsLaterPages(t *testing.T) {
	e := newTestDDG(t)

	req, err := e.BuildRequest(mustQuery(t, "golang", search.WithPage(2)), nil)

	assert.NoError(t, err)
	assert.Nil(t, req)
}

func TestDuckDuckGo_ParseResponse(t *testing.T) {
	// Given: an instant answer with an abstract and nested topics
	e := newTestDDG(t)

	// When: parsing it
	batch, err := e.ParseResponse(mustQuery(t, "golang"), &search.RawResponse{Body: []byte(ddgBody)})

	// Then: an infobox and flattened topic records come out
	require.NoError(t, err)
	require.Len(t, batch.Infoboxes, 1)
	box := batch.Infoboxes[0]
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go_(programming_language)", box.ID)
	assert.Equal(t, "https://duckduckgo.com/i/go.png", box.ImgSrc)
	assert.Equal(t, []results.Link{
		{Title: "Wikipedia", URL: "https://en.wikipedia.org/wiki/Go_(programming_language)"},
		{Title: "Official site", URL: "https://go.dev/"},
	}, box.URLs)
	assert.Equal(t, []results.Attribute{
		{Label: "Designed by", Value: "Robert Griesemer"},
		{Label: "First appeared", Value: "2009"},
	}, box.Attributes)

	require.Len(t, batch.Records, 2)
	assert.Equal(t, "Gopher", batch.Records[0].Title)
	assert.Equal(t, "https://duckduckgo.com/i/gopher.png", batch.Records[0].Thumbnail)
	assert.Equal(t, "gofmt", batch.Records[1].Title)
	assert.Empty(t, batch.Answers)
}

func TestDuckDuckGo_AnswerAndDefinition(t *testing.T) {
	e := newTestDDG(t)
	body := `{"Answer": "42", "AnswerType": "calc", "Definition": "a number", "DefinitionURL": "https://dict.example/42", "Infobox": ""}`

	batch, err := e.ParseResponse(mustQuery(t, "6*7"), &search.RawResponse{Body: []byte(body)})

	require.NoError(t, err)
	assert.Equal(t, []results.Answer{
		{Type: "calc", Text: "42"},
		{Type: "definition", Text: "a number", URL: "https://dict.example/42"},
	}, batch.Answers)
	assert.Empty(t, batch.Infoboxes)
}

func TestDuckDuckGo_InvalidJSON(t *testing.T) {
	e := newTestDDG(t)

	_, err := e.ParseResponse(mustQuery(t, "x"), &search.RawResponse{Body: []byte("<html>")})

	require.Error(t, err)
	assert.Equal(t, serrors.KindParse, serrors.KindOf(err))
}

func TestDuckDuckGo_RejectsBadBaseURL(t *testing.T) {
	_, err := newDuckDuckGo(config.EngineConfig{Name: "ddg", Options: map[string]string{"base_url": "not a url"}})
	assert.Error(t, err)
}
