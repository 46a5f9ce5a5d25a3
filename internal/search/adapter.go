package search

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

// Kind tells the dispatcher how to perform an engine's request.
type Kind int

const (
	// KindNetwork engines are performed through the shared Transport.
	KindNetwork Kind = iota
	// KindLocal engines perform their own request through Executor.
	KindLocal
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if k == KindLocal {
		return "local"
	}
	return "network"
}

// DefaultWeight is the weight of engines that configure none.
const DefaultWeight = 1.0

// RequestDescriptor describes the request an engine wants performed.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers http.Header
	Cookies map[string]string
	Body    []byte

	// Handle carries an opaque request for local engines.
	Handle any
}

// RawResponse is the unparsed answer to a RequestDescriptor.
type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	URL        string

	// Rows carries the native result of a local engine.
	Rows any
}

// Adapter is the contract every engine implements.
//
// Both methods are pure: BuildRequest must not perform I/O and ParseResponse
// only reads the response it is given. Missing mandatory settings are
// reported once, when the engine is constructed, not per query.
type Adapter interface {
	// BuildRequest turns a query into a request. Returning nil, nil skips the
	// engine for this query (e.g. unsupported language).
	BuildRequest(q *Query, state *EngineState) (*RequestDescriptor, error)

	// ParseResponse turns a raw response into a batch of records and side
	// channel data. Malformed payloads return a parse error.
	ParseResponse(q *Query, raw *RawResponse) (*results.Batch, error)
}

// Executor is implemented by local engines, which query an in-process or
// on-disk source instead of the network.
type Executor interface {
	Execute(ctx context.Context, req *RequestDescriptor) (*RawResponse, error)
}

// Validator is implemented by adapters that can check their settings.
type Validator interface {
	Validate() error
}

// Closer is implemented by adapters that hold resources such as open files.
type Closer interface {
	Close() error
}

// EngineState is mutable per-engine state owned by the adapter, e.g. a
// session token learned from a previous response. It outlives single
// queries and is safe for concurrent use.
type EngineState struct {
	mu     sync.RWMutex
	values map[string]string
	stamp  time.Time
}

// NewEngineState creates empty engine state.
func NewEngineState() *EngineState {
	return &EngineState{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *EngineState) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *EngineState) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.stamp = time.Now()
}

// UpdatedAt returns when the state was last written.
func (s *EngineState) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stamp
}

// Descriptor is the static description of a configured engine.
type Descriptor struct {
	Name       string
	Shortcut   string
	Categories []string
	Paging     bool
	Kind       Kind
	Timeout    time.Duration // zero uses the dispatcher default
	Weight     float64
	Disabled   bool
	Adapter    Adapter
	State      *EngineState
}

// PrimaryCategory returns the first configured category.
func (d *Descriptor) PrimaryCategory() string {
	if len(d.Categories) == 0 {
		return results.DefaultCategory
	}
	return d.Categories[0]
}

// EffectiveWeight returns the weight, defaulting non-positive values to 1.
func (d *Descriptor) EffectiveWeight() float64 {
	if d.Weight <= 0 {
		return DefaultWeight
	}
	return d.Weight
}

// Validate checks the descriptor and its adapter's settings.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return serrors.EngineConfigError("", "engine name is empty", nil)
	}
	if d.Adapter == nil {
		return serrors.EngineConfigError(d.Name, fmt.Sprintf("engine %q has no adapter", d.Name), nil)
	}
	if d.Weight < 0 {
		return serrors.EngineConfigError(d.Name, fmt.Sprintf("engine %q has negative weight %v", d.Name, d.Weight), nil)
	}
	if d.Timeout < 0 {
		return serrors.EngineConfigError(d.Name, fmt.Sprintf("engine %q has negative timeout", d.Name), nil)
	}
	if d.Kind == KindLocal {
		if _, ok := d.Adapter.(Executor); !ok {
			return serrors.EngineConfigError(d.Name, fmt.Sprintf("local engine %q cannot execute requests", d.Name), nil)
		}
	}
	if v, ok := d.Adapter.(Validator); ok {
		if err := v.Validate(); err != nil {
			if serrors.KindOf(err) == serrors.KindConfiguration {
				return err
			}
			return serrors.EngineConfigError(d.Name, err.Error(), err)
		}
	}
	return nil
}

// Transport performs network requests for network engines.
type Transport interface {
	Perform(ctx context.Context, req *RequestDescriptor, timeout time.Duration) (*RawResponse, error)
}
