package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/search"
)

func fastRetries(n int) Option {
	return WithRetryConfig(serrors.RetryConfig{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		ShouldRetry:  serrors.IsRetryable,
	})
}

func TestPerform_SendsHeadersAndCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metasearch-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "de", r.Header.Get("Accept-Language"))
		c, err := r.Cookie("session")
		require.NoError(t, err)
		assert.Equal(t, "abc", c.Value)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := New(Config{UserAgent: "metasearch-test"})
	raw, err := tr.Perform(context.Background(), &search.RequestDescriptor{
		URL:     srv.URL + "/search?q=go",
		Headers: http.Header{"Accept-Language": []string{"de"}},
		Cookies: map[string]string{"session": "abc"},
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 200, raw.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(raw.Body))
	assert.Equal(t, "application/json", raw.Headers.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(raw.URL, srv.URL))
}

func TestPerform_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "golang", r.PostForm.Get("q"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := New(Config{})
	_, err := tr.Perform(context.Background(), &search.RequestDescriptor{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:    []byte("q=golang"),
	}, time.Second)

	require.NoError(t, err)
}

func TestPerform_StatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		wantCode string
		wantKind serrors.Kind
	}{
		{http.StatusTooManyRequests, serrors.ErrCodeTooManyRequests, serrors.KindNetwork},
		{http.StatusForbidden, serrors.ErrCodeAccessDenied, serrors.KindNetwork},
		{http.StatusUnauthorized, serrors.ErrCodeAccessDenied, serrors.KindNetwork},
		{http.StatusNotFound, serrors.ErrCodeHTTPStatus, serrors.KindNetwork},
		{http.StatusBadGateway, serrors.ErrCodeHTTPStatus, serrors.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := New(Config{}, fastRetries(0)).Perform(context.Background(), &search.RequestDescriptor{URL: srv.URL}, time.Second)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, serrors.GetCode(err))
			assert.Equal(t, tt.wantKind, serrors.KindOf(err))
		})
	}
}

func TestPerform_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("second time lucky"))
	}))
	defer srv.Close()

	raw, err := New(Config{}, fastRetries(2)).Perform(context.Background(), &search.RequestDescriptor{URL: srv.URL}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "second time lucky", string(raw.Body))
	assert.EqualValues(t, 2, hits.Load())
}

func TestPerform_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Config{}, fastRetries(3)).Perform(context.Background(), &search.RequestDescriptor{URL: srv.URL}, time.Second)

	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestPerform_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := New(Config{}, fastRetries(0)).Perform(context.Background(), &search.RequestDescriptor{URL: srv.URL}, 50*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, serrors.KindTimeout, serrors.KindOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPerform_NoTimeLeft(t *testing.T) {
	_, err := New(Config{}).Perform(context.Background(), &search.RequestDescriptor{URL: "http://127.0.0.1:1"}, 0)

	assert.Equal(t, serrors.KindTimeout, serrors.KindOf(err))
}

func TestPerform_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := New(Config{MaxBodyBytes: 10}).Perform(context.Background(), &search.RequestDescriptor{URL: srv.URL}, time.Second)

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeResponseTooLarge, serrors.GetCode(err))
	assert.Equal(t, serrors.KindParse, serrors.KindOf(err))
}

func TestPerform_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{}, fastRetries(0)).Perform(context.Background(), &search.RequestDescriptor{URL: url}, time.Second)

	require.Error(t, err)
	assert.Equal(t, serrors.KindNetwork, serrors.KindOf(err))
}

func TestPerform_InvalidURL(t *testing.T) {
	_, err := New(Config{}).Perform(context.Background(), &search.RequestDescriptor{URL: "://bad"}, time.Second)

	assert.Equal(t, serrors.KindConfiguration, serrors.KindOf(err))
}
