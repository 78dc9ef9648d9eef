package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemobank/bo-dashboard/internal/config"
	"github.com/hemobank/bo-dashboard/internal/dashboard"
	"github.com/hemobank/bo-dashboard/internal/telemetry"
	"github.com/hemobank/bo-dashboard/internal/versions"
	"github.com/hemobank/bo-dashboard/internal/viewstate"
)

func boolPtr(b bool) *bool { return &b }

func TestReadWritePreference(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("default when nothing stored", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "preferences.json")

		enabled, err := readPreference(ctx, path)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "nested", "preferences.json")

		enabled, err := writePreference(ctx, path, "false")
		require.NoError(t, err)
		assert.False(t, enabled)

		enabled, err = readPreference(ctx, path)
		require.NoError(t, err)
		assert.False(t, enabled)

		_, err = writePreference(ctx, path, "true")
		require.NoError(t, err)

		enabled, err = readPreference(ctx, path)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "preferences.json")

		_, err := writePreference(ctx, path, "sometimes")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid preference value "sometimes"`)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "nothing should be written")
	})

	t.Run("malformed file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "preferences.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"bo.autoRefreshEnabled": "yes"}`), 0600))

		_, err := readPreference(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read preference")
	})
}

func TestFormatParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{name: "nil", params: nil, want: "-"},
		{name: "single", params: map[string]string{"range": "24h"}, want: "range=24h"},
		{name: "sorted", params: map[string]string{"site": "paris", "range": "24h"}, want: "range=24h,site=paris"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatParams(tt.params))
		})
	}
}

func TestRenderViews(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Defaults: config.DefaultsConfig{FetchTimeout: "0"},
		Views: []config.ViewConfig{
			{Name: "system-health", Endpoint: "http://backend/api/health"},
			{
				Name:     "order-queue",
				Endpoint: "http://backend/api/orders/queue",
				Cadence:  "30s",
				Params:   map[string]string{"range": "24h"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderViews(&buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "system-health")
	assert.Contains(t, out, "http://backend/api/orders/queue")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "15s")
	assert.Contains(t, out, "range=24h")
	assert.Contains(t, out, "none")
}

// Not parallel: versionCmd and its flags are package state
func TestVersionCmd_JSON(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	require.NoError(t, versionCmd.Flags().Set("format", "json"))
	t.Cleanup(func() {
		versionCmd.SetOut(nil)
		_ = versionCmd.Flags().Set("format", "")
	})

	versionCmd.Run(versionCmd, nil)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

// backend serves an order queue and counts requests
type backend struct {
	*httptest.Server
	requests atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"pending":3,"range":%q}}`, r.URL.Query().Get("range"))
	}))
	t.Cleanup(b.Close)
	return b
}

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	return &config.Config{
		Preference: config.PreferenceConfig{
			Path:  filepath.Join(t.TempDir(), "preferences.json"),
			Watch: boolPtr(false),
		},
		Defaults: config.DefaultsConfig{
			Debounce:    "10ms",
			MinInterval: "0",
		},
		Views: []config.ViewConfig{
			{
				Name:     "order-queue",
				Endpoint: endpoint,
				DataPath: "data",
				Params:   map[string]string{"range": "24h"},
			},
		},
		Telemetry: &telemetry.Config{
			Enabled: true,
			Metrics: &telemetry.MetricsConfig{Enabled: true, Prometheus: true},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBuildComponents_ServesViews(t *testing.T) {
	t.Parallel()

	be := newBackend(t)
	cfg := testConfig(t, be.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, err := buildComponents(ctx, cfg)
	require.NoError(t, err)
	defer func() {
		_ = comps.telemetry.Shutdown(context.Background())
	}()

	assert.Equal(t, cfg.Preference.Path, comps.prefPath)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, comps.handler, "/readiness").Code)

	done := make(chan error, 1)
	go func() {
		done <- comps.board.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return comps.board.CheckReadiness(ctx) == nil
	}, 5*time.Second, 10*time.Millisecond)

	// The debounced mount fetch lands in the view
	var status dashboard.ViewStatus
	require.Eventually(t, func() bool {
		rec := get(t, comps.handler, "/api/v1/views/order-queue")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == viewstate.StatusIdle && len(status.Data) > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.JSONEq(t, `{"pending":3,"range":"24h"}`, string(status.Data))
	assert.True(t, status.AutoRefresh)
	assert.Equal(t, map[string]string{"range": "24h"}, status.Params)
	assert.GreaterOrEqual(t, be.requests.Load(), int32(1))

	rec := get(t, comps.handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bo_dashboard_attempts")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("board did not stop")
	}
}

func TestBuildComponents_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing schema file", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, "http://backend/api/orders")
		cfg.Views[0].Schema = filepath.Join(t.TempDir(), "missing.json")

		_, err := buildComponents(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to build views")
	})

	t.Run("invalid telemetry", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t, "http://backend/api/orders")
		cfg.Telemetry.Tracing = &telemetry.TracingConfig{Enabled: true, Sampling: 2}

		_, err := buildComponents(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize telemetry")
	})
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	be := newBackend(t)
	cfg := testConfig(t, be.URL)
	cfg.Preference.Watch = boolPtr(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, err := buildComponents(ctx, cfg)
	require.NoError(t, err)
	defer func() {
		_ = comps.telemetry.Shutdown(context.Background())
	}()

	server := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           comps.handler,
		ReadHeaderTimeout: time.Second,
	}

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, comps, server, cfg.WatchPreference())
	}()

	require.Eventually(t, func() bool {
		return comps.board.CheckReadiness(ctx) == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	assert.ErrorIs(t, comps.board.CheckReadiness(context.Background()), dashboard.ErrNotReady)
}
