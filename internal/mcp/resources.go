package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/searxng/searxng-sub003/internal/telemetry"
	"github.com/searxng/searxng-sub003/pkg/json"
)

// Resource URIs.
const (
	EnginesURI   = "metasearch://engines"
	TelemetryURI = "metasearch://telemetry"
)

// TelemetryOutput is the JSON structure for the telemetry resource.
type TelemetryOutput struct {
	Summary        TelemetrySummary      `json:"summary"`
	Engines        []EngineTelemetry     `json:"engines"`
	TopTerms       []telemetry.TermCount `json:"top_terms"`
	ZeroResults    []string              `json:"zero_result_queries"`
	QueryLatencies map[string]int64      `json:"query_latencies"`
}

// TelemetrySummary provides overview statistics.
type TelemetrySummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	RepeatQueries int64   `json:"repeat_queries"`
}

// EngineTelemetry summarizes one engine.
type EngineTelemetry struct {
	Name          string           `json:"name"`
	Requests      int64            `json:"requests"`
	ErrorRate     float64          `json:"error_rate"`
	MeanLatencyMS int64            `json:"mean_latency_ms"`
	Results       int64            `json:"results"`
	Outcomes      map[string]int64 `json:"outcomes"`
}

// registerEnginesResource registers the engine list resource.
func (s *Server) registerEnginesResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "engines",
			URI:         EnginesURI,
			Description: "Configured search engines and their health",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return jsonResource(EnginesURI, s.enginesStatus())
		},
	)
}

// registerTelemetryResource registers the telemetry resource.
func (s *Server) registerTelemetryResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "telemetry",
			URI:         TelemetryURI,
			Description: "Engine outcome and query telemetry",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			out, err := s.telemetry()
			if err != nil {
				return nil, err
			}
			return jsonResource(TelemetryURI, out)
		},
	)
}

// telemetry converts the current metrics snapshot to its output form.
func (s *Server) telemetry() (*TelemetryOutput, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewResourceNotFoundError(TelemetryURI)
	}

	snap := metrics.Snapshot()
	out := &TelemetryOutput{
		Summary: TelemetrySummary{
			TotalQueries:  snap.TotalQueries,
			Since:         snap.Since.Format(time.RFC3339),
			ZeroResultPct: snap.ZeroResultPercentage(),
			RepeatQueries: snap.RepeatCount,
		},
		Engines:        make([]EngineTelemetry, 0, len(snap.Engines)),
		TopTerms:       snap.TopTerms,
		ZeroResults:    snap.ZeroResultQueries,
		QueryLatencies: make(map[string]int64, len(snap.QueryLatencies)),
	}
	for _, name := range snap.EngineNames() {
		c := snap.Engines[name]
		et := EngineTelemetry{
			Name:          name,
			Requests:      c.Total(),
			ErrorRate:     c.ErrorRate(),
			MeanLatencyMS: c.MeanLatency().Milliseconds(),
			Results:       c.Results,
			Outcomes:      make(map[string]int64, len(c.Outcomes)),
		}
		for st, n := range c.Outcomes {
			et.Outcomes[string(st)] = n
		}
		out.Engines = append(out.Engines, et)
	}
	for b, n := range snap.QueryLatencies {
		out.QueryLatencies[string(b)] = n
	}
	return out, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
