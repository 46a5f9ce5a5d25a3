package results

// Response is the caller-facing view of a finalized query. The HTTP API,
// the MCP tools and the CLI JSON mode all emit it.
type Response struct {
	QueryID         string         `json:"query_id"`
	Query           string         `json:"query"`
	PageNo          int            `json:"pageno"`
	NumberOfResults int64          `json:"number_of_results"`
	Results         []*Result      `json:"results"`
	Answers         []Answer       `json:"answers"`
	Suggestions     []string       `json:"suggestions"`
	Corrections     []string       `json:"corrections"`
	Infoboxes       []Infobox      `json:"infoboxes"`
	Unresponsive    []EngineReport `json:"unresponsive_engines"`
}

// NewResponse finalizes c and builds its response. Collections are never
// nil so they encode as empty JSON arrays.
func NewResponse(query string, pageNo int, c *Container) *Response {
	res := c.Finalize()
	r := &Response{
		QueryID:         c.ID(),
		Query:           query,
		PageNo:          pageNo,
		NumberOfResults: c.EstimatedTotal(),
		Results:         nonNil(res),
		Answers:         nonNil(c.Answers()),
		Suggestions:     nonNil(c.Suggestions()),
		Corrections:     nonNil(c.Corrections()),
		Infoboxes:       nonNil(c.Infoboxes()),
		Unresponsive:    nonNil(c.Unresponsive()),
	}
	if n := int64(len(res)); r.NumberOfResults < n {
		r.NumberOfResults = n
	}
	return r
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
