package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemobank/bo-dashboard/internal/fetch"
	"github.com/hemobank/bo-dashboard/internal/versions"
)

// newTestServer creates a new test server with keep-alives disabled.
// Closing a server with keep-alives enabled can affect other parallel tests
// sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "custom timeout", timeout: 5 * time.Second},
		{name: "zero timeout uses default", timeout: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.NotNil(t, fetch.NewDefaultClient(tt.timeout))
		})
	}
}

func TestDefaultClient_Get_SuccessfulRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		statusCode   int
		responseBody string
	}{
		{name: "200 with JSON", statusCode: http.StatusOK, responseBody: `{"status":"ok"}`},
		{name: "203 non-authoritative", statusCode: http.StatusNonAuthoritativeInfo, responseBody: `[1,2,3]`},
		{name: "200 with empty body", statusCode: http.StatusOK, responseBody: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var receivedUserAgent, receivedAccept string
			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedUserAgent = r.Header.Get("User-Agent")
				receivedAccept = r.Header.Get("Accept")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			data, err := fetch.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)

			require.NoError(t, err)
			assert.Equal(t, tt.responseBody, string(data))
			assert.Equal(t, versions.UserAgent(), receivedUserAgent)
			assert.Equal(t, "application/json", receivedAccept)
		})
	}
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{name: "404 Not Found", statusCode: http.StatusNotFound},
		{name: "500 Internal Server Error", statusCode: http.StatusInternalServerError},
		{name: "401 Unauthorized", statusCode: http.StatusUnauthorized},
		{name: "503 Service Unavailable", statusCode: http.StatusServiceUnavailable},
		{name: "304 Not Modified", statusCode: http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := fetch.NewDefaultClient(5*time.Second).Get(context.Background(), server.URL)

			require.Error(t, err)
			var httpErr *fetch.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", tt.statusCode))
		})
	}
}

func TestDefaultClient_Get_NetworkErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		errorContains string
	}{
		{name: "invalid URL scheme", url: "://invalid-url", errorContains: "failed to create request"},
		{name: "unreachable host", url: "http://invalid-host-does-not-exist.local:9999", errorContains: "failed to execute request"},
		{name: "empty URL", url: "", errorContains: "failed to execute request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := fetch.NewDefaultClient(5*time.Second).Get(context.Background(), tt.url)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDefaultClient_Get_ContextTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := fetch.NewDefaultClient(30*time.Second).Get(ctx, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultClient_Get_SizeLimitExceeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		handler       http.HandlerFunc
		errorContains []string
	}{
		{
			name: "Content-Length above limit",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Length", fmt.Sprintf("%d", fetch.MaxResponseSize+1))
				w.WriteHeader(http.StatusOK)
			},
			errorContains: []string{"exceeds maximum allowed size", "10.00 MB"},
		},
		{
			name: "streamed body above limit",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				chunk := []byte(strings.Repeat("a", 1024*1024))
				for range 11 {
					_, _ = w.Write(chunk)
				}
			},
			errorContains: []string{"exceeds maximum allowed size"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(tt.handler)
			defer server.Close()

			_, err := fetch.NewDefaultClient(30*time.Second).Get(context.Background(), server.URL)

			require.Error(t, err)
			for _, s := range tt.errorContains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := fetch.NewHTTPError(502, "http://backend/api/orders", "Bad Gateway")

	assert.Equal(t, "HTTP 502 for URL http://backend/api/orders: Bad Gateway", err.Error())
	var httpErr *fetch.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 502, httpErr.StatusCode)
	assert.Equal(t, "http://backend/api/orders", httpErr.URL)
}
