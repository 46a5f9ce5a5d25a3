package search

import (
	"strings"
)

// ParseDefaults supplies the values a raw query string does not set.
type ParseDefaults struct {
	Language   string
	Categories []string
	SafeSearch int
}

// Resolver tells the parser which bang tokens name engines or categories.
type Resolver interface {
	// EngineForBang returns the engine name for a shortcut or name.
	EngineForBang(token string) (string, bool)
	// IsCategory reports whether token is a known category.
	IsCategory(token string) bool
}

// ParseQuery parses raw user input.
//
// Leading modifier tokens are recognised until the first plain word:
//   - "!name" selects an engine by shortcut or name, or a category
//   - ":xx" sets the language
//
// Unrecognised "!" tokens stay part of the search text.
func ParseQuery(raw string, defaults ParseDefaults, resolver Resolver, opts ...QueryOption) (*Query, error) {
	var (
		engines    []string
		categories []string
		language   string
		text       []string
	)

	fields := strings.Fields(raw)
	modifiers := true
	for _, tok := range fields {
		if !modifiers {
			text = append(text, tok)
			continue
		}
		switch {
		case len(tok) > 1 && tok[0] == '!' && resolver != nil:
			name := strings.ToLower(tok[1:])
			if engine, ok := resolver.EngineForBang(name); ok {
				engines = append(engines, engine)
				continue
			}
			if cat := strings.ReplaceAll(name, "_", " "); resolver.IsCategory(cat) {
				categories = append(categories, cat)
				continue
			}
			modifiers = false
			text = append(text, tok)
		case len(tok) > 1 && tok[0] == ':' && isLanguageTag(tok[1:]):
			language = strings.ToLower(tok[1:])
		default:
			modifiers = false
			text = append(text, tok)
		}
	}

	all := []QueryOption{WithSafeSearch(defaults.SafeSearch)}
	if language != "" {
		all = append(all, WithLanguage(language))
	} else if defaults.Language != "" {
		all = append(all, WithLanguage(defaults.Language))
	}
	all = append(all, opts...)
	if len(engines) > 0 {
		all = append(all, WithEngines(engines...))
	}
	if len(categories) > 0 {
		all = append(all, WithCategories(categories...))
	}

	q, err := NewQuery(strings.Join(text, " "), all...)
	if err != nil {
		return nil, err
	}
	if len(q.Categories) == 0 && len(q.Engines) == 0 {
		q.Categories = appendUnique(nil, defaults.Categories...)
	}
	return q, nil
}

// isLanguageTag accepts "all", "en" and "en-us" style tags.
func isLanguageTag(s string) bool {
	if s == "all" {
		return true
	}
	lang, region, hasRegion := strings.Cut(s, "-")
	if len(lang) != 2 || !isLetters(lang) {
		return false
	}
	if hasRegion {
		return len(region) == 2 && isLetters(region)
	}
	return true
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Request holds the query parameters callers pass next to the raw text,
// e.g. HTTP form values or MCP tool arguments. Zero values mean "not set".
type Request struct {
	Text       string
	Categories []string
	Engines    []string
	PageNo     int
	Language   string
	TimeRange  string
	SafeSearch *int
	Timeout    string
}

// BuildQuery parses req.Text and applies the explicit parameters on top of
// the modifiers found in the text.
func BuildQuery(req Request, defaults ParseDefaults, resolver Resolver) (*Query, error) {
	var opts []QueryOption
	if req.PageNo != 0 {
		opts = append(opts, WithPage(req.PageNo))
	}
	if req.Language != "" {
		opts = append(opts, WithLanguage(req.Language))
	}
	if req.TimeRange != "" {
		opts = append(opts, WithTimeRange(req.TimeRange))
	}
	if req.SafeSearch != nil {
		opts = append(opts, WithSafeSearch(*req.SafeSearch))
	}
	if len(req.Categories) > 0 {
		opts = append(opts, WithCategories(req.Categories...))
	}
	if len(req.Engines) > 0 {
		opts = append(opts, WithEngines(req.Engines...))
	}
	if req.Timeout != "" {
		opts = append(opts, WithOption(OptionTimeoutLimit, req.Timeout))
	}
	return ParseQuery(req.Text, defaults, resolver, opts...)
}
