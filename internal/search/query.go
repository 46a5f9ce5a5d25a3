package search

import (
	"fmt"
	"slices"
	"strings"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

// MaxQueryLength bounds the search text accepted from callers.
const MaxQueryLength = 1024

// Time ranges accepted by Query.TimeRange.
const (
	TimeRangeAny   = ""
	TimeRangeDay   = "day"
	TimeRangeWeek  = "week"
	TimeRangeMonth = "month"
	TimeRangeYear  = "year"
)

// Safe search levels.
const (
	SafeSearchOff      = 0
	SafeSearchModerate = 1
	SafeSearchStrict   = 2
)

// Query is a parsed user query. It is not modified after construction;
// engines receive it read-only.
type Query struct {
	Text       string
	PageNo     int
	Language   string
	TimeRange  string
	SafeSearch int
	Categories []string
	Engines    []string // explicit engine selection; overrides categories
	Options    map[string]string
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithPage sets the 1-based page number.
func WithPage(n int) QueryOption {
	return func(q *Query) { q.PageNo = n }
}

// WithLanguage sets the query language, e.g. "en" or "all".
func WithLanguage(lang string) QueryOption {
	return func(q *Query) { q.Language = lang }
}

// WithTimeRange sets the time range filter.
func WithTimeRange(r string) QueryOption {
	return func(q *Query) { q.TimeRange = r }
}

// WithSafeSearch sets the safe search level.
func WithSafeSearch(level int) QueryOption {
	return func(q *Query) { q.SafeSearch = level }
}

// WithCategories restricts the query to the given categories.
func WithCategories(categories ...string) QueryOption {
	return func(q *Query) { q.Categories = appendUnique(q.Categories, categories...) }
}

// WithEngines restricts the query to the given engines.
func WithEngines(engines ...string) QueryOption {
	return func(q *Query) { q.Engines = appendUniqueFold(q.Engines, engines...) }
}

// WithOption sets an engine-specific option.
func WithOption(key, value string) QueryOption {
	return func(q *Query) {
		if q.Options == nil {
			q.Options = make(map[string]string)
		}
		q.Options[key] = value
	}
}

// NewQuery builds and validates a query.
func NewQuery(text string, opts ...QueryOption) (*Query, error) {
	q := &Query{
		Text:     strings.TrimSpace(text),
		PageNo:   1,
		Language: "all",
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the query fields.
func (q *Query) Validate() error {
	if q.Text == "" {
		return serrors.New(serrors.ErrCodeQueryEmpty, "query text is empty", nil).
			WithSuggestion("Provide at least one search term")
	}
	if len(q.Text) > MaxQueryLength {
		return serrors.New(serrors.ErrCodeQueryTooLong,
			fmt.Sprintf("query is %d bytes, limit is %d", len(q.Text), MaxQueryLength), nil)
	}
	if q.PageNo < 1 {
		return serrors.New(serrors.ErrCodeInvalidQuery, fmt.Sprintf("page number must be >= 1, got %d", q.PageNo), nil)
	}
	switch q.TimeRange {
	case TimeRangeAny, TimeRangeDay, TimeRangeWeek, TimeRangeMonth, TimeRangeYear:
	default:
		return serrors.New(serrors.ErrCodeInvalidQuery, fmt.Sprintf("unknown time range %q", q.TimeRange), nil)
	}
	if q.SafeSearch < SafeSearchOff || q.SafeSearch > SafeSearchStrict {
		return serrors.New(serrors.ErrCodeInvalidQuery, fmt.Sprintf("safe search must be 0, 1 or 2, got %d", q.SafeSearch), nil)
	}
	return nil
}

// Option returns the engine-specific option value for key.
func (q *Query) Option(key string) string {
	return q.Options[key]
}

// WantsCategory reports whether the query selects category c.
func (q *Query) WantsCategory(c string) bool {
	return slices.Contains(q.Categories, c)
}

// WantsEngine reports whether the query explicitly selects engine name.
func (q *Query) WantsEngine(name string) bool {
	return slices.Contains(q.Engines, name)
}

// LanguageCode returns the two-letter language, or "" for "all".
func (q *Query) LanguageCode() string {
	if q.Language == "" || q.Language == "all" {
		return ""
	}
	lang, _, _ := strings.Cut(q.Language, "-")
	return strings.ToLower(lang)
}

// appendUniqueFold is appendUnique with case-insensitive comparison; engine
// names are matched that way.
func appendUniqueFold(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.ContainsFunc(dst, func(e string) bool { return strings.EqualFold(e, v) }) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
