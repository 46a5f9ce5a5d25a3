// Package transport performs the HTTP requests of network engines.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
)

// DefaultUserAgent is sent when neither the engine nor the config sets one.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// DefaultMaxBodyBytes caps response bodies read from upstreams.
const DefaultMaxBodyBytes = 5 << 20

// Config configures the HTTP transport.
type Config struct {
	UserAgent    string
	MaxBodyBytes int64

	// Retries is the number of extra attempts for retryable failures.
	Retries int

	// MaxIdleConnsPerHost bounds the keep-alive pool per upstream.
	MaxIdleConnsPerHost int
}

// HTTPTransport implements search.Transport over a shared http.Client.
type HTTPTransport struct {
	client *http.Client
	cfg    Config
	retry  serrors.RetryConfig
}

var _ search.Transport = (*HTTPTransport)(nil)

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithClient replaces the HTTP client. Used by tests.
func WithClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithRetryConfig replaces the backoff settings.
func WithRetryConfig(rc serrors.RetryConfig) Option {
	return func(t *HTTPTransport) {
		t.retry = rc
	}
}

// New creates an HTTP transport.
func New(cfg Config, opts ...Option) *HTTPTransport {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	base.ForceAttemptHTTP2 = true

	retry := serrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Retries

	t := &HTTPTransport{
		client: &http.Client{Transport: base},
		cfg:    cfg,
		retry:  retry,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Perform sends req and returns the raw response. The whole call, retries
// included, is bounded by timeout.
func (t *HTTPTransport) Perform(ctx context.Context, req *search.RequestDescriptor, timeout time.Duration) (*search.RawResponse, error) {
	if req == nil {
		return nil, serrors.InternalError("nil request", nil)
	}
	if timeout <= 0 {
		return nil, serrors.TimeoutError("no time left for request to "+req.URL, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return serrors.RetryWithResult(ctx, t.retry, func() (*search.RawResponse, error) {
		return t.do(ctx, req)
	})
}

func (t *HTTPTransport) do(ctx context.Context, req *search.RequestDescriptor) (*search.RawResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, serrors.EngineConfigError("", fmt.Sprintf("invalid request url %q", req.URL), err)
	}

	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, classifyError(req.URL, err)
	}
	if int64(len(data)) > t.cfg.MaxBodyBytes {
		return nil, serrors.New(serrors.ErrCodeResponseTooLarge,
			fmt.Sprintf("response from %s exceeds %d bytes", req.URL, t.cfg.MaxBodyBytes), nil)
	}

	if err := checkStatus(req.URL, resp.StatusCode); err != nil {
		return nil, err
	}

	return &search.RawResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}

// checkStatus maps upstream HTTP statuses onto network error codes.
func checkStatus(url string, status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests:
		return serrors.New(serrors.ErrCodeTooManyRequests, fmt.Sprintf("%s: too many requests", url), nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return serrors.New(serrors.ErrCodeAccessDenied, fmt.Sprintf("%s: access denied (%d)", url, status), nil)
	default:
		se := serrors.New(serrors.ErrCodeHTTPStatus, fmt.Sprintf("%s: HTTP %d", url, status), nil).
			WithDetail("status", fmt.Sprint(status))
		// Client errors will not change on retry.
		se.Retryable = status >= 500
		return se
	}
}

func classifyError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return serrors.TimeoutError(fmt.Sprintf("%s: request timed out", url), err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return serrors.TimeoutError(fmt.Sprintf("%s: request timed out", url), err)
	}
	return serrors.NetworkError(fmt.Sprintf("%s: %v", url, err), err)
}
