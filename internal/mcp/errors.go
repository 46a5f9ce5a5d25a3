// Package mcp exposes the metasearch aggregator as a Model Context Protocol server.
package mcp

import (
	"context"
	"errors"
	"fmt"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeNoEngines indicates no engine is configured or selected.
	ErrCodeNoEngines = -32001

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeUpstream indicates an upstream failure that reached the caller.
	ErrCodeUpstream = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrNoEngines indicates the registry has no usable engines.
	ErrNoEngines = errors.New("no engines available")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var se *serrors.SearchError
	if errors.As(err, &se) {
		return mapSearchError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrNoEngines):
		return &MCPError{Code: ErrCodeNoEngines, Message: "No engines available. Check the engines section of the settings."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapSearchError(se *serrors.SearchError) *MCPError {
	message := se.Message
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", se.Message, se.Suggestion)
	}

	switch serrors.KindOf(se) {
	case serrors.KindTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}
	switch se.Category {
	case serrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case serrors.CategoryNetwork, serrors.CategoryParse:
		return &MCPError{Code: ErrCodeUpstream, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
