package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

type staticResolver struct {
	engines    map[string]string
	categories map[string]bool
}

func (r staticResolver) EngineForBang(token string) (string, bool) {
	name, ok := r.engines[token]
	return name, ok
}

func (r staticResolver) IsCategory(token string) bool {
	return r.categories[token]
}

var testResolver = staticResolver{
	engines:    map[string]string{"ddg": "duckduckgo", "wp": "wikipedia", "wikipedia": "wikipedia"},
	categories: map[string]bool{"images": true, "general": true, "social media": true},
}

func TestParseQuery(t *testing.T) {
	defaults := ParseDefaults{Language: "all", Categories: []string{"general"}}

	tests := []struct {
		name           string
		raw            string
		wantText       string
		wantEngines    []string
		wantCategories []string
		wantLanguage   string
	}{
		{"plain", "golang generics", "golang generics", nil, []string{"general"}, "all"},
		{"engine bang", "!ddg golang", "golang", []string{"duckduckgo"}, nil, "all"},
		{"engine by name", "!Wikipedia go", "go", []string{"wikipedia"}, nil, "all"},
		{"category bang", "!images cats", "cats", nil, []string{"images"}, "all"},
		{"category with underscore", "!social_media cats", "cats", nil, []string{"social media"}, "all"},
		{"language", ":de katzen", "katzen", nil, []string{"general"}, "de"},
		{"region language", ":en-US cats", "cats", nil, []string{"general"}, "en-us"},
		{"combined", "!wp :fr !images chat", "chat", []string{"wikipedia"}, []string{"images"}, "fr"},
		{"unknown bang stays text", "!nope cats", "!nope cats", nil, []string{"general"}, "all"},
		{"modifiers only before text", "cats !ddg", "cats !ddg", nil, []string{"general"}, "all"},
		{"duplicate bangs", "!ddg !ddg go", "go", []string{"duckduckgo"}, nil, "all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuery(tt.raw, defaults, testResolver)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, q.Text)
			assert.Equal(t, tt.wantEngines, q.Engines)
			assert.Equal(t, tt.wantCategories, q.Categories)
			assert.Equal(t, tt.wantLanguage, q.Language)
		})
	}
}

func TestParseQuery_OnlyModifiersIsEmpty(t *testing.T) {
	_, err := ParseQuery("!ddg :en", ParseDefaults{}, testResolver)

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeQueryEmpty, serrors.GetCode(err))
}

func TestParseQuery_ExtraOptions(t *testing.T) {
	q, err := ParseQuery("go", ParseDefaults{SafeSearch: 1}, nil, WithPage(3), WithTimeRange(TimeRangeWeek))

	require.NoError(t, err)
	assert.Equal(t, 3, q.PageNo)
	assert.Equal(t, TimeRangeWeek, q.TimeRange)
	assert.Equal(t, SafeSearchModerate, q.SafeSearch)
}

func TestNewQuery_Validation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		opts     []QueryOption
		wantCode string
	}{
		{"empty", "   ", nil, serrors.ErrCodeQueryEmpty},
		{"page zero", "x", []QueryOption{WithPage(0)}, serrors.ErrCodeInvalidQuery},
		{"bad time range", "x", []QueryOption{WithTimeRange("decade")}, serrors.ErrCodeInvalidQuery},
		{"bad safe search", "x", []QueryOption{WithSafeSearch(3)}, serrors.ErrCodeInvalidQuery},
		{"too long", string(make([]byte, MaxQueryLength+1)) + "x", nil, serrors.ErrCodeQueryTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQuery(tt.text, tt.opts...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, serrors.GetCode(err))
		})
	}
}

func TestQuery_Accessors(t *testing.T) {
	q := mustQuery("x", WithLanguage("en-GB"), WithOption("region", "uk"), WithCategories("news", "news"))

	assert.Equal(t, "en", q.LanguageCode())
	assert.Equal(t, "uk", q.Option("region"))
	assert.Empty(t, q.Option("missing"))
	assert.Equal(t, []string{"news"}, q.Categories)
	assert.True(t, q.WantsCategory("news"))
	assert.False(t, q.WantsEngine("ddg"))
	assert.Empty(t, mustQuery("x").LanguageCode())
}

func TestBuildQuery_ExplicitParameters(t *testing.T) {
	// Given: a request whose explicit language overrides a ":de" modifier
	safe := SafeSearchStrict
	req := Request{
		Text:       ":de !wp golang",
		PageNo:     3,
		Language:   "fr",
		TimeRange:  TimeRangeMonth,
		SafeSearch: &safe,
		Categories: []string{"it"},
		Timeout:    "2s",
	}

	// When: building the query
	q, err := BuildQuery(req, ParseDefaults{Language: "en", Categories: []string{"general"}}, testResolver)

	// Then: explicit values win and bang selections are kept
	require.NoError(t, err)
	assert.Equal(t, "golang", q.Text)
	assert.Equal(t, 3, q.PageNo)
	assert.Equal(t, "fr", q.Language)
	assert.Equal(t, TimeRangeMonth, q.TimeRange)
	assert.Equal(t, SafeSearchStrict, q.SafeSearch)
	assert.Equal(t, []string{"wikipedia"}, q.Engines)
	assert.Equal(t, []string{"it"}, q.Categories)
	assert.Equal(t, "2s", q.Option(OptionTimeoutLimit))
}

func TestBuildQuery_EngineNamesFoldCase(t *testing.T) {
	q, err := BuildQuery(Request{Text: "golang", Engines: []string{"ddg", "DDG", " ddg ", "wikipedia"}}, ParseDefaults{}, testResolver)

	require.NoError(t, err)
	assert.Equal(t, []string{"ddg", "wikipedia"}, q.Engines)
}

func TestBuildQuery_InvalidPage(t *testing.T) {
	_, err := BuildQuery(Request{Text: "x", PageNo: -1}, ParseDefaults{}, nil)
	assert.Error(t, err)
}
