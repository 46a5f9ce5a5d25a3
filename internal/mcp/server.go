package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/internal/telemetry"
	"github.com/searxng/searxng-sub003/pkg/json"
	"github.com/searxng/searxng-sub003/pkg/version"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "metasearch"

// Searcher runs queries against the engine registry.
// *search.Aggregator satisfies it.
type Searcher interface {
	Search(ctx context.Context, q *search.Query) (*results.Container, error)
	Registry() *search.Registry
}

// Server is the MCP server for metasearch.
// It exposes the aggregator to AI clients as tools.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	defaults search.ParseDefaults
	logger   *slog.Logger

	// Engine telemetry (optional, set via SetMetrics)
	metrics *telemetry.EngineMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

const (
	webSearchDescription = "Search the web through every configured engine at once. " +
		"Results are deduplicated and ranked by how many engines agree on them. " +
		"Prefix the query with !name to pick an engine or category, or :lang to set the language."
	enginesStatusDescription = "List configured search engines with their categories and health. " +
		"Engines that keep failing are suspended for a while and report state open."
)

// NewServer creates a new MCP server backed by searcher.
// defaults fill in language, categories and safe search when a call omits them.
func NewServer(searcher Searcher, defaults search.ParseDefaults) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	s := &Server{
		searcher: searcher,
		defaults: defaults,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerEnginesResource()

	return s, nil
}

// SetMetrics sets the engine metrics collector.
// When set, the telemetry resource is registered.
func (s *Server) SetMetrics(m *telemetry.EngineMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerTelemetryResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "web_search", Description: webSearchDescription},
		{Name: "engines_status", Description: enginesStatusDescription},
	}
}

// CallTool invokes a tool by name with decoded JSON arguments.
// web_search returns markdown; engines_status returns *EnginesStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "web_search":
		var input WebSearchInput
		if err := decodeArgs(args, &input); err != nil {
			return nil, err
		}
		resp, err := s.webSearch(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatResponse(resp), nil
	case "engines_status":
		out := s.enginesStatus()
		return &out, nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// webSearch validates input, runs the query and builds the response.
func (s *Server) webSearch(ctx context.Context, input WebSearchInput) (*results.Response, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Page < 0 {
		return nil, NewInvalidParamsError("page must be 1 or greater")
	}

	start := time.Now()
	requestID := generateRequestID()

	reg := s.searcher.Registry()
	if reg == nil || len(reg.Engines()) == 0 {
		return nil, MapError(ErrNoEngines)
	}

	q, err := search.BuildQuery(search.Request{
		Text:       input.Query,
		Categories: input.Categories,
		Engines:    input.Engines,
		PageNo:     input.Page,
		Language:   input.Language,
		TimeRange:  input.TimeRange,
		SafeSearch: input.SafeSearch,
	}, s.defaults, reg)
	if err != nil {
		return nil, MapError(err)
	}

	s.logger.Info("web_search started",
		slog.String("request_id", requestID),
		slog.String("query", q.Text),
		slog.Int("page", q.PageNo))

	c, err := s.searcher.Search(ctx, q)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("web_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	resp := results.NewResponse(q.Text, q.PageNo, c)

	s.logger.Info("web_search completed",
		slog.String("request_id", requestID),
		slog.String("query_id", resp.QueryID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.Int("unresponsive", len(resp.Unresponsive)))

	return resp, nil
}

func (s *Server) enginesStatus() EnginesStatusOutput {
	out := EnginesStatusOutput{Engines: []EngineStatusOutput{}}
	reg := s.searcher.Registry()
	if reg == nil {
		return out
	}
	for _, st := range reg.Status() {
		e := EngineStatusOutput{
			Name:       st.Name,
			Shortcut:   st.Shortcut,
			Categories: st.Categories,
			Kind:       st.Kind,
			Disabled:   st.Disabled,
			State:      st.State,
			Failures:   st.Failures,
		}
		if !st.SuspendedUntil.IsZero() {
			e.SuspendedUntil = st.SuspendedUntil.Format(time.RFC3339)
		}
		out.Engines = append(out.Engines, e)
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "web_search",
		Description: webSearchDescription,
	}, s.mcpWebSearchHandler)
	s.logger.Debug("Registered tool", slog.String("name", "web_search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "engines_status",
		Description: enginesStatusDescription,
	}, s.mcpEnginesStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "engines_status"))

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

// mcpWebSearchHandler is the MCP SDK handler for the web_search tool.
// The markdown rendering goes to the text content, the structured output
// carries the same data for clients that read it.
func (s *Server) mcpWebSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input WebSearchInput) (
	*mcp.CallToolResult,
	WebSearchOutput,
	error,
) {
	resp, err := s.webSearch(ctx, input)
	if err != nil {
		return nil, WebSearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatResponse(resp)}},
	}, ToWebSearchOutput(resp), nil
}

// mcpEnginesStatusHandler is the MCP SDK handler for the engines_status tool.
func (s *Server) mcpEnginesStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ EnginesStatusInput) (
	*mcp.CallToolResult,
	EnginesStatusOutput,
	error,
) {
	return nil, s.enginesStatus(), nil
}

// ToWebSearchOutput flattens a response into the tool output schema.
func ToWebSearchOutput(resp *results.Response) WebSearchOutput {
	out := WebSearchOutput{
		QueryID:         resp.QueryID,
		Query:           resp.Query,
		Page:            resp.PageNo,
		NumberOfResults: resp.NumberOfResults,
		Results:         make([]ResultOutput, 0, len(resp.Results)),
		Suggestions:     resp.Suggestions,
		Corrections:     resp.Corrections,
	}
	for _, r := range resp.Results {
		ro := ResultOutput{
			URL:      r.URL,
			Title:    r.Title,
			Content:  r.Content,
			Category: r.Category,
			Engines:  r.Engines,
			Score:    r.Score,
		}
		if r.PublishedDate != nil {
			ro.PublishedDate = r.PublishedDate.Format(time.RFC3339)
		}
		out.Results = append(out.Results, ro)
	}
	for _, a := range resp.Answers {
		out.Answers = append(out.Answers, AnswerOutput{Type: a.Type, Answer: a.Text, URL: a.URL, Engine: a.Engine})
	}
	for _, r := range resp.Unresponsive {
		out.Unresponsive = append(out.Unresponsive, UnresponsiveOutput{
			Engine: r.Engine,
			Status: string(r.Status),
			Reason: r.Message,
		})
	}
	return out
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
