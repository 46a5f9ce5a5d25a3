package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
	"github.com/searxng/searxng-sub003/pkg/json"
	"github.com/searxng/searxng-sub003/pkg/version"
)

// httpError is an error with a fixed status and code.
type httpError struct {
	Status int
	Code   string
	Detail string
}

func (h httpError) Error() string {
	if h.Detail != "" {
		return fmt.Sprintf("%s: %s", h.Code, h.Detail)
	}
	return h.Code
}

// EnginesResponse is the body of GET /engines.
type EnginesResponse struct {
	Engines []search.EngineStatus `json:"engines"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Engines int    `json:"engines"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) error {
	req, err := parseSearchRequest(r)
	if err != nil {
		return err
	}

	q, err := search.BuildQuery(req, s.cfg.Defaults, s.searcher.Registry())
	if err != nil {
		return err
	}

	c, err := s.searcher.Search(r.Context(), q)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, results.NewResponse(q.Text, q.PageNo, c))
	return nil
}

// parseSearchRequest reads the search parameters from the URL query.
func parseSearchRequest(r *http.Request) (search.Request, error) {
	v := r.URL.Query()
	req := search.Request{
		Text:       v.Get("q"),
		Categories: splitList(v.Get("categories")),
		Engines:    splitList(v.Get("engines")),
		Language:   v.Get("language"),
		TimeRange:  v.Get("time_range"),
		Timeout:    v.Get("timeout_limit"),
	}
	if raw := v.Get("pageno"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, httpError{Status: http.StatusBadRequest, Code: "invalid_pageno", Detail: fmt.Sprintf("pageno %q is not a number", raw)}
		}
		req.PageNo = n
	}
	if raw := v.Get("safesearch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, httpError{Status: http.StatusBadRequest, Code: "invalid_safesearch", Detail: fmt.Sprintf("safesearch %q is not a number", raw)}
		}
		req.SafeSearch = &n
	}
	if raw := req.Timeout; raw != "" {
		_, durErr := time.ParseDuration(raw)
		if _, err := strconv.ParseFloat(raw, 64); err != nil && durErr != nil {
			return req, httpError{Status: http.StatusBadRequest, Code: "invalid_timeout_limit", Detail: fmt.Sprintf("timeout_limit %q is not a number of seconds", raw)}
		}
	}
	return req, nil
}

// splitList splits a comma separated parameter, dropping blanks.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, EnginesResponse{Engines: s.searcher.Registry().Status()})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	n := len(s.searcher.Registry().Engines())
	resp := HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Engines: n,
	}
	status := http.StatusOK
	if n == 0 {
		resp.Status = "no_engines"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the JSON envelope of every error response.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

// writeError renders err with the status its category implies.
func writeError(w http.ResponseWriter, err error) {
	var he httpError
	if errors.As(err, &he) {
		detail, _ := json.Marshal(map[string]string{"code": he.Code, "message": he.Detail})
		writeJSON(w, he.Status, errorBody{Error: detail})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case serrors.GetCode(err) == serrors.ErrCodeDeadlineExceeded:
		status = http.StatusGatewayTimeout
	case serrors.GetCategory(err) == serrors.CategoryValidation:
		status = http.StatusBadRequest
	}

	detail, mErr := serrors.FormatJSON(err)
	if mErr != nil {
		detail, _ = json.Marshal(map[string]string{"code": serrors.ErrCodeInternal, "message": err.Error()})
	}
	writeJSON(w, status, errorBody{Error: detail})
}
