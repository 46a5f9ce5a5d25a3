package mcp

import (
	"fmt"
	"strings"

	"github.com/searxng/searxng-sub003/internal/results"
)

// maxSnippet bounds result content in the markdown rendering.
const maxSnippet = 300

// FormatResponse formats a search response as markdown.
func FormatResponse(resp *results.Response) string {
	var sb strings.Builder

	if len(resp.Results) == 0 && len(resp.Answers) == 0 && len(resp.Infoboxes) == 0 {
		fmt.Fprintf(&sb, "No results found for \"%s\"\n", resp.Query)
		formatSuggestions(&sb, resp)
		formatUnresponsive(&sb, resp.Unresponsive)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", resp.Query)
	fmt.Fprintf(&sb, "Found %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	if resp.PageNo > 1 {
		fmt.Fprintf(&sb, " (page %d)", resp.PageNo)
	}
	sb.WriteString("\n\n")

	for _, a := range resp.Answers {
		fmt.Fprintf(&sb, "> **Answer** (%s): %s\n", a.Engine, a.Text)
		if a.URL != "" {
			fmt.Fprintf(&sb, "> %s\n", a.URL)
		}
		sb.WriteString("\n")
	}

	for _, box := range resp.Infoboxes {
		formatInfobox(&sb, box)
	}

	category := ""
	for i, r := range resp.Results {
		if r.Category != category && hasMultipleCategories(resp.Results) {
			category = r.Category
			fmt.Fprintf(&sb, "#### %s\n\n", category)
		}
		formatResult(&sb, i+1, r)
	}

	formatSuggestions(&sb, resp)
	formatUnresponsive(&sb, resp.Unresponsive)

	return sb.String()
}

func hasMultipleCategories(res []*results.Result) bool {
	for _, r := range res {
		if r.Category != res[0].Category {
			return true
		}
	}
	return false
}

// formatResult formats a single merged result.
func formatResult(sb *strings.Builder, num int, r *results.Result) {
	title := r.Title
	if title == "" {
		title = r.URL
	}
	fmt.Fprintf(sb, "### %d. [%s](%s)\n", num, title, r.URL)
	fmt.Fprintf(sb, "**Engines:** %s (score: %.3f)", strings.Join(r.Engines, ", "), r.Score)
	if r.PublishedDate != nil {
		fmt.Fprintf(sb, " | **Published:** %s", r.PublishedDate.Format("2006-01-02"))
	}
	sb.WriteString("\n\n")
	if content := truncate(r.Content, maxSnippet); content != "" {
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
}

func formatInfobox(sb *strings.Builder, box results.Infobox) {
	fmt.Fprintf(sb, "### %s\n\n", box.Title)
	if box.Content != "" {
		sb.WriteString(truncate(box.Content, maxSnippet*2))
		sb.WriteString("\n\n")
	}
	for _, a := range box.Attributes {
		fmt.Fprintf(sb, "- **%s:** %s\n", a.Label, a.Value)
	}
	for _, l := range box.URLs {
		fmt.Fprintf(sb, "- [%s](%s)\n", l.Title, l.URL)
	}
	if len(box.Attributes) > 0 || len(box.URLs) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString("---\n\n")
}

func formatSuggestions(sb *strings.Builder, resp *results.Response) {
	if len(resp.Corrections) > 0 {
		fmt.Fprintf(sb, "**Did you mean:** %s\n\n", strings.Join(resp.Corrections, ", "))
	}
	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(sb, "**Related searches:** %s\n\n", strings.Join(resp.Suggestions, ", "))
	}
}

func formatUnresponsive(sb *strings.Builder, reports []results.EngineReport) {
	if len(reports) == 0 {
		return
	}
	sb.WriteString("**Unresponsive engines:**\n")
	for _, r := range reports {
		if msg := r.Message; msg != "" {
			fmt.Fprintf(sb, "- %s: %s (%s)\n", r.Engine, r.Status, msg)
		} else {
			fmt.Fprintf(sb, "- %s: %s\n", r.Engine, r.Status)
		}
	}
}

// truncate shortens s to at most n runes, cutting at a word boundary.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
