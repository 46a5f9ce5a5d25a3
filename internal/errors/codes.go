// Package errors provides structured error handling for metasearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (settings, engine setup)
//   - 2XX: Parse errors (upstream payloads)
//   - 3XX: Network errors
//   - 4XX: Validation errors (user input)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryParse indicates a response that could not be interpreted.
	CategoryParse Category = "PARSE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound      = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid       = "ERR_102_CONFIG_INVALID"
	ErrCodeEngineMisconfigured = "ERR_103_ENGINE_MISCONFIGURED"
	ErrCodeEngineUnknown       = "ERR_104_ENGINE_UNKNOWN"

	// Parse errors (200-299)
	ErrCodeParseFailed      = "ERR_201_PARSE_FAILED"
	ErrCodeUnexpectedFormat = "ERR_202_UNEXPECTED_FORMAT"
	ErrCodeResponseTooLarge = "ERR_203_RESPONSE_TOO_LARGE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeHTTPStatus         = "ERR_303_HTTP_STATUS"
	ErrCodeAccessDenied       = "ERR_304_ACCESS_DENIED"
	ErrCodeTooManyRequests    = "ERR_305_TOO_MANY_REQUESTS"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong = "ERR_405_QUERY_TOO_LONG"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeContainerClosed  = "ERR_502_CONTAINER_CLOSED"
	ErrCodeEnginePanic      = "ERR_503_ENGINE_PANIC"
	ErrCodeDeadlineExceeded = "ERR_504_DEADLINE_EXCEEDED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryParse
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Access denied and rate limiting are not retried within the same query.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeHTTPStatus:
		return true
	default:
		return false
	}
}
