package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
)

func mustQuery(t *testing.T, text string, opts ...search.QueryOption) *search.Query {
	t.Helper()
	q, err := search.NewQuery(text, opts...)
	require.NoError(t, err)
	return q
}

func TestTypes_ListsBuiltins(t *testing.T) {
	types := Types()

	for _, want := range []string{"bleve", "duckduckgo", "html", "json", "sqlite"} {
		assert.Contains(t, types, want)
	}
	assert.IsIncreasing(t, types)
}

func TestNew_UnknownType(t *testing.T) {
	// Given: an engine with a type nobody registered
	cfg := config.EngineConfig{Name: "mystery", Engine: "gopher"}

	// When: building it
	_, err := New(cfg)

	// Then: the error names the problem with a dedicated code
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeEngineUnknown, serrors.GetCode(err))
	assert.Equal(t, serrors.KindConfiguration, serrors.KindOf(err))
}

func TestNew_MissingOptionIsConfigError(t *testing.T) {
	cfg := config.EngineConfig{Name: "api", Engine: "json", Options: map[string]string{"url": "link"}}

	_, err := New(cfg)

	require.Error(t, err)
	assert.Equal(t, serrors.KindConfiguration, serrors.KindOf(err))
	assert.Contains(t, err.Error(), "search_url")
}

func TestNew_FactoryErrorIsWrapped(t *testing.T) {
	// Given: a json engine whose page_size is not a number
	cfg := config.EngineConfig{Name: "api", Engine: "json", Options: map[string]string{
		"search_url": "https://example.com/?q={query}",
		"url":        "link",
		"page_size":  "ten",
	}}

	// When: building it
	_, err := New(cfg)

	// Then: the plain factory error becomes a misconfiguration of that engine
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeEngineMisconfigured, serrors.GetCode(err))
}

func TestNew_DescriptorFromConfig(t *testing.T) {
	cfg := config.EngineConfig{
		Name:     "ddg",
		Engine:   "DuckDuckGo",
		Shortcut: "d",
		Weight:   2,
		Paging:   true,
	}

	d, err := New(cfg)

	require.NoError(t, err)
	assert.Equal(t, "ddg", d.Name)
	assert.Equal(t, "d", d.Shortcut)
	assert.Equal(t, []string{"general"}, d.Categories, "categories default to the registration")
	assert.Equal(t, search.KindNetwork, d.Kind)
	assert.Equal(t, 2.0, d.Weight)
	assert.NotNil(t, d.State)
	assert.NoError(t, d.Validate())
}

func TestBuild_KeepsValidEngines(t *testing.T) {
	// Given: one good engine and two broken ones
	cfgs := []config.EngineConfig{
		{Name: "ddg", Engine: "duckduckgo"},
		{Name: "broken", Engine: "json"},
		{Name: "unknown", Engine: "gopher"},
	}

	// When: building the set
	descs, err := Build(cfgs)

	// Then: the good engine survives and both failures are reported
	require.Error(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "ddg", descs[0].Name)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "unknown")
}

func TestURLTemplate_Expand(t *testing.T) {
	tmpl, err := newURLTemplate("https://example.com/s?q={query}&p={pageno}&o={offset}&l={lang}&s={safesearch}&t={time_range}", 20)
	require.NoError(t, err)

	q := mustQuery(t, "go generics",
		search.WithPage(3),
		search.WithLanguage("de-CH"),
		search.WithSafeSearch(2),
		search.WithTimeRange(search.TimeRangeWeek))

	assert.Equal(t, "https://example.com/s?q=go+generics&p=3&o=40&l=de&s=2&t=week", tmpl.expand(q))
}

func TestURLTemplate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"relative", "/search?q={query}"},
		{"no placeholder", "https://example.com/search"},
		{"no host", "https:///?q={query}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newURLTemplate(tt.raw, 10)
			assert.Error(t, err)
		})
	}
}

func TestRequestHeaders_AcceptLanguage(t *testing.T) {
	cfg := config.EngineConfig{Options: map[string]string{"header.X-Key": "secret"}}
	base := headerOptions(cfg)

	h := requestHeaders(base, mustQuery(t, "x", search.WithLanguage("fr")))
	assert.Equal(t, "secret", h.Get("X-Key"))
	assert.Equal(t, "fr", h.Get("Accept-Language"))

	// configured language wins over the query
	cfg.Options["accept_language"] = "en-US"
	h = requestHeaders(headerOptions(cfg), mustQuery(t, "x", search.WithLanguage("fr")))
	assert.Equal(t, "en-US", h.Get("Accept-Language"))

	assert.Empty(t, base.Get("Accept-Language"), "base headers are not mutated")
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a/b", resolveURL("https://example.com/a/", "b"))
	assert.Equal(t, "https://other.org/x", resolveURL("https://example.com/", "https://other.org/x"))
	assert.Equal(t, "https://example.com/x", resolveURL("https://example.com/a/b", "/x"))
	assert.Equal(t, "rel", resolveURL("", "rel"))
	assert.Equal(t, "", resolveURL("https://example.com", "  "))
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Equal(t, []any{"data", "items", 0, "url"}, splitPath("data.items.0.url"))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		year int
	}{
		{"2024-03-01T10:00:00Z", true, 2024},
		{"2023-12-31", true, 2023},
		{"1700000000", true, 2023},
		{"yesterday", false, 0},
		{"17e8", false, 0},
	}
	for _, tt := range tests {
		got, ok := parseTime(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.year, got.Year(), tt.in)
		}
	}
}
