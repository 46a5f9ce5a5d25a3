package results

import (
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
)

// Status is the terminal state of one engine for one query.
type Status string

const (
	// StatusSuccess means the engine returned content.
	StatusSuccess Status = "success"
	// StatusEmpty means the engine answered without any content.
	StatusEmpty Status = "empty"
	// StatusTimedOut means the engine missed its deadline.
	StatusTimedOut Status = "timed_out"
	// StatusFailed means the engine returned an error.
	StatusFailed Status = "failed"
	// StatusSkipped means the engine was suspended and not contacted.
	StatusSkipped Status = "skipped"
)

// Outcome is the single result of running one engine for one query.
type Outcome struct {
	Engine  string
	Weight  float64 // configured weight; values <= 0 count as 1
	Status  Status
	Batch   *Batch
	Kind    serrors.Kind
	Err     error
	Elapsed time.Duration
}

// Success builds a success outcome, or an empty one when batch has no content.
func Success(engine string, weight float64, batch *Batch, elapsed time.Duration) Outcome {
	status := StatusSuccess
	if batch.IsEmpty() {
		status = StatusEmpty
		batch = nil
	}
	return Outcome{Engine: engine, Weight: weight, Status: status, Batch: batch, Elapsed: elapsed}
}

// Failure builds a failed outcome classified by the error kind.
// Deadline errors become timed-out outcomes.
func Failure(engine string, err error, elapsed time.Duration) Outcome {
	kind := serrors.KindOf(err)
	if kind == serrors.KindNone {
		kind = serrors.KindUnexpected
	}
	status := StatusFailed
	if kind == serrors.KindTimeout {
		status = StatusTimedOut
	}
	return Outcome{Engine: engine, Status: status, Kind: kind, Err: err, Elapsed: elapsed}
}

// TimedOut builds a timed-out outcome.
func TimedOut(engine string, elapsed time.Duration) Outcome {
	return Outcome{
		Engine:  engine,
		Status:  StatusTimedOut,
		Kind:    serrors.KindTimeout,
		Err:     serrors.New(serrors.ErrCodeDeadlineExceeded, "engine did not answer before its deadline", nil),
		Elapsed: elapsed,
	}
}

// Skipped builds an outcome for an engine that was not contacted.
func Skipped(engine string, reason error) Outcome {
	return Outcome{Engine: engine, Status: StatusSkipped, Kind: serrors.KindOf(reason), Err: reason}
}

// Message returns the error text of the outcome, if any.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// EngineReport is the per-engine diagnostic entry of a query.
type EngineReport struct {
	Engine  string        `json:"engine"`
	Status  Status        `json:"status"`
	Kind    serrors.Kind  `json:"error_kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Results int           `json:"results"`
	Dropped int           `json:"dropped,omitempty"`
}

// Responsive reports whether the engine answered, with or without content.
func (r EngineReport) Responsive() bool {
	return r.Status == StatusSuccess || r.Status == StatusEmpty
}
