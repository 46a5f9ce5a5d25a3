package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/searxng/searxng-sub003/pkg/json"
)

// asSearchError returns err as a SearchError, wrapping plain errors as internal.
func asSearchError(err error) *SearchError {
	var se *SearchError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForUser returns a user-friendly error message.
// If debug is true, the details map and cause are appended.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var se *SearchError
	if !errors.As(err, &se) {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(se.Message)
	sb.WriteString("\n")

	if se.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(se.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		for k, v := range se.Details {
			fmt.Fprintf(&sb, "  %s: %s\n", k, v)
		}
		if se.Cause != nil {
			fmt.Fprintf(&sb, "  cause: %s\n", se.Cause)
		}
	}

	fmt.Fprintf(&sb, "\n[%s]", se.Code)
	return sb.String()
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se := asSearchError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", se.Message)
	if se.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", se.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", se.Code)

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Kind       string            `json:"kind"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Used by the HTTP API error responses.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	se := asSearchError(err)
	je := jsonError{
		Code:       se.Code,
		Message:    se.Message,
		Category:   string(se.Category),
		Kind:       string(KindOf(se)),
		Severity:   string(se.Severity),
		Details:    se.Details,
		Suggestion: se.Suggestion,
		Retryable:  se.Retryable,
	}
	if se.Cause != nil {
		je.Cause = se.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs returns key-value pairs suitable for slog.Any / slog.Group.
func LogAttrs(err error) map[string]any {
	if err == nil {
		return nil
	}

	var se *SearchError
	if !errors.As(err, &se) {
		return map[string]any{
			"error": err.Error(),
			"kind":  string(KindOf(err)),
		}
	}

	result := map[string]any{
		"error_code": se.Code,
		"message":    se.Message,
		"category":   string(se.Category),
		"kind":       string(KindOf(se)),
		"retryable":  se.Retryable,
	}
	if se.Cause != nil {
		result["cause"] = se.Cause.Error()
	}
	for k, v := range se.Details {
		result["detail_"+k] = v
	}
	return result
}
