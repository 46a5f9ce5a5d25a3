package errors

import (
	"context"
	"errors"
	"net"
)

// Kind classifies why an engine produced no results.
type Kind string

const (
	// KindNone means no error.
	KindNone Kind = ""
	// KindConfiguration means the engine settings are invalid.
	KindConfiguration Kind = "configuration"
	// KindNetwork means the upstream could not be reached or refused the request.
	KindNetwork Kind = "network"
	// KindParse means the upstream answered with a payload that could not be read.
	KindParse Kind = "parse"
	// KindTimeout means the engine did not finish before its deadline.
	KindTimeout Kind = "timeout"
	// KindUnexpected covers panics and errors that match no other kind.
	KindUnexpected Kind = "unexpected"
	// KindState means an operation was attempted in the wrong lifecycle state.
	KindState Kind = "state"
)

// KindOf maps err onto the engine outcome taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var se *SearchError
	if errors.As(err, &se) {
		switch se.Code {
		case ErrCodeNetworkTimeout, ErrCodeDeadlineExceeded:
			return KindTimeout
		case ErrCodeContainerClosed:
			return KindState
		case ErrCodeEnginePanic:
			return KindUnexpected
		}
		switch se.Category {
		case CategoryConfig:
			return KindConfiguration
		case CategoryParse:
			return KindParse
		case CategoryNetwork:
			return KindNetwork
		}
		return KindUnexpected
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnexpected
}
