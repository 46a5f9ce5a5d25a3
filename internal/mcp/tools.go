package mcp

// WebSearchInput defines the input schema for the web_search tool.
type WebSearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query; may start with !engine or !category bangs and a :lang modifier"`
	Categories []string `json:"categories,omitempty" jsonschema:"categories to search, e.g. general, news, it"`
	Engines    []string `json:"engines,omitempty" jsonschema:"explicit engine names; overrides categories"`
	Page       int      `json:"page,omitempty" jsonschema:"result page, starting at 1"`
	Language   string   `json:"language,omitempty" jsonschema:"language code such as en or de-CH"`
	TimeRange  string   `json:"time_range,omitempty" jsonschema:"one of day, week, month, year"`
	SafeSearch *int     `json:"safesearch,omitempty" jsonschema:"0 off, 1 moderate, 2 strict"`
}

// WebSearchOutput defines the output schema for the web_search tool.
type WebSearchOutput struct {
	QueryID         string               `json:"query_id"`
	Query           string               `json:"query"`
	Page            int                  `json:"page"`
	NumberOfResults int64                `json:"number_of_results" jsonschema:"estimated total across engines"`
	Results         []ResultOutput       `json:"results"`
	Answers         []AnswerOutput       `json:"answers,omitempty"`
	Suggestions     []string             `json:"suggestions,omitempty"`
	Corrections     []string             `json:"corrections,omitempty"`
	Unresponsive    []UnresponsiveOutput `json:"unresponsive_engines,omitempty" jsonschema:"engines that failed, timed out or were skipped"`
}

// ResultOutput is one merged result.
type ResultOutput struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Content       string   `json:"content,omitempty"`
	Category      string   `json:"category"`
	Engines       []string `json:"engines" jsonschema:"engines that returned this result"`
	Score         float64  `json:"score"`
	PublishedDate string   `json:"published_date,omitempty" jsonschema:"RFC 3339 timestamp"`
}

// AnswerOutput is a direct answer.
type AnswerOutput struct {
	Type   string `json:"type"`
	Answer string `json:"answer"`
	URL    string `json:"url,omitempty"`
	Engine string `json:"engine"`
}

// UnresponsiveOutput explains why an engine contributed nothing.
type UnresponsiveOutput struct {
	Engine string `json:"engine"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// EnginesStatusInput defines the input schema for the engines_status tool (no parameters).
type EnginesStatusInput struct{}

// EnginesStatusOutput defines the output schema for the engines_status tool.
type EnginesStatusOutput struct {
	Engines []EngineStatusOutput `json:"engines"`
}

// EngineStatusOutput is the health of one engine.
type EngineStatusOutput struct {
	Name           string   `json:"name"`
	Shortcut       string   `json:"shortcut,omitempty"`
	Categories     []string `json:"categories"`
	Kind           string   `json:"kind" jsonschema:"network or local"`
	Disabled       bool     `json:"disabled"`
	State          string   `json:"state" jsonschema:"circuit state: closed, open or half-open"`
	Failures       int      `json:"failures"`
	SuspendedUntil string   `json:"suspended_until,omitempty" jsonschema:"RFC 3339 timestamp while suspended"`
}
