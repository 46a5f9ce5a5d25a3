package engines

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/searxng/searxng-sub003/internal/config"
	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/pkg/json"
)

func init() {
	Register("duckduckgo", search.KindNetwork, []string{results.DefaultCategory}, newDuckDuckGo)
}

const (
	ddgDefaultBaseURL = "https://api.duckduckgo.com/"
	ddgSiteURL        = "https://duckduckgo.com"
)

// duckDuckGo reads the DuckDuckGo instant answer API. It yields answers, an
// infobox for the abstract and records for related topics.
type duckDuckGo struct {
	name    string
	baseURL string
}

func newDuckDuckGo(cfg config.EngineConfig) (search.Adapter, error) {
	base := cfg.Option("base_url", ddgDefaultBaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base_url %q is not an absolute URL", base)
	}
	return &duckDuckGo{name: cfg.Name, baseURL: base}, nil
}

// BuildRequest implements search.Adapter. The instant answer API has no
// pages, so page 2 and later are skipped.
func (d *duckDuckGo) BuildRequest(q *search.Query, _ *search.EngineState) (*search.RequestDescriptor, error) {
	if q.PageNo > 1 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("no_redirect", "1")
	params.Set("skip_disambig", "1")

	h := requestHeaders(nil, q)
	h.Set("Accept", "application/json")
	return &search.RequestDescriptor{
		Method:  http.MethodGet,
		URL:     d.baseURL + "?" + params.Encode(),
		Headers: h,
	}, nil
}

type ddgTopic struct {
	FirstURL string     `json:"FirstURL"`
	Text     string     `json:"Text"`
	Icon     ddgIcon    `json:"Icon"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgIcon struct {
	URL string `json:"URL"`
}

type ddgResponse struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractURL    string     `json:"AbstractURL"`
	AbstractSource string     `json:"AbstractSource"`
	Image          string     `json:"Image"`
	Answer         any        `json:"Answer"`
	AnswerType     string     `json:"AnswerType"`
	Definition     string     `json:"Definition"`
	DefinitionURL  string     `json:"DefinitionURL"`
	Redirect       string     `json:"Redirect"`
	Results        []ddgTopic `json:"Results"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

// ParseResponse implements search.Adapter.
func (d *duckDuckGo) ParseResponse(q *search.Query, raw *search.RawResponse) (*results.Batch, error) {
	var resp ddgResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return nil, serrors.ParseError(fmt.Sprintf("engine %q returned invalid JSON", d.name), err)
	}

	batch := &results.Batch{}

	if text, ok := resp.Answer.(string); ok && strings.TrimSpace(text) != "" {
		answerType := resp.AnswerType
		if answerType == "" {
			answerType = "instant_answer"
		}
		batch.Answers = append(batch.Answers, results.Answer{Type: answerType, Text: strings.TrimSpace(text)})
	}
	if resp.Definition != "" {
		batch.Answers = append(batch.Answers, results.Answer{
			Type: "definition",
			Text: resp.Definition,
			URL:  resp.DefinitionURL,
		})
	}
	if resp.Redirect != "" {
		batch.Records = append(batch.Records, results.Record{
			Template: results.TemplateDefault,
			URL:      resp.Redirect,
			Title:    q.Text,
		})
	}

	if resp.Heading != "" && (resp.AbstractText != "" || resp.Image != "") {
		box := results.Infobox{
			ID:         resp.AbstractURL,
			Title:      resp.Heading,
			Content:    resp.AbstractText,
			ImgSrc:     resolveURL(ddgSiteURL, resp.Image),
			Attributes: ddgAttributes(raw.Body),
		}
		if box.ID == "" {
			box.ID = resp.Heading
		}
		if resp.AbstractURL != "" {
			box.URLs = append(box.URLs, results.Link{Title: resp.AbstractSource, URL: resp.AbstractURL})
		}
		for _, r := range resp.Results {
			if r.FirstURL != "" {
				box.URLs = append(box.URLs, results.Link{Title: topicTitle(r.Text), URL: r.FirstURL})
			}
		}
		batch.Infoboxes = append(batch.Infoboxes, box)
	}

	for _, t := range flattenTopics(resp.RelatedTopics) {
		title := topicTitle(t.Text)
		if t.FirstURL == "" || title == "" {
			continue
		}
		batch.Records = append(batch.Records, results.Record{
			Template:  results.TemplateDefault,
			URL:       t.FirstURL,
			Title:     title,
			Content:   t.Text,
			Thumbnail: resolveURL(ddgSiteURL, t.Icon.URL),
		})
	}
	return batch, nil
}

// ddgAttributes reads Infobox.content[] label/value rows. The Infobox field
// is an object when present and an empty string otherwise.
func ddgAttributes(body []byte) []results.Attribute {
	rows := json.Get(body, "Infobox", "content")
	if rows.ValueType() != json.ArrayValue {
		return nil
	}
	var out []results.Attribute
	for i := 0; i < rows.Size(); i++ {
		row := rows.Get(i)
		label := strings.TrimSpace(row.Get("label").ToString())
		value := row.Get("value")
		if label == "" || (value.ValueType() != json.StringValue && value.ValueType() != json.NumberValue) {
			continue
		}
		out = append(out, results.Attribute{Label: label, Value: strings.TrimSpace(value.ToString())})
	}
	return out
}

func flattenTopics(topics []ddgTopic) []ddgTopic {
	var out []ddgTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flattenTopics(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// topicTitle takes the part of a topic text before " - ".
func topicTitle(text string) string {
	title, _, _ := strings.Cut(text, " - ")
	return strings.TrimSpace(title)
}
