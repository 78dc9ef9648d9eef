package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RefreshMetricsMeterName is the name used for the refresh metrics meter
	RefreshMetricsMeterName = "github.com/hemobank/bo-dashboard/refresh"
)

// RefreshMetrics holds the instruments for fetch attempts and preference changes
type RefreshMetrics struct {
	fetchDuration     metric.Float64Histogram
	attemptsTotal     metric.Int64Counter
	preferenceChanges metric.Int64Counter
}

// NewRefreshMetrics creates a new RefreshMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"bo_dashboard_fetch_duration_seconds",
		metric.WithDescription("Duration of backend fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	attemptsTotal, err := meter.Int64Counter(
		"bo_dashboard_attempts_total",
		metric.WithDescription("Refresh attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	preferenceChanges, err := meter.Int64Counter(
		"bo_dashboard_preference_changes_total",
		metric.WithDescription("Auto-refresh preference changes by origin"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		fetchDuration:     fetchDuration,
		attemptsTotal:     attemptsTotal,
		preferenceChanges: preferenceChanges,
	}, nil
}

// RecordFetchDuration records how long a real backend fetch took
func (m *RefreshMetrics) RecordFetchDuration(ctx context.Context, view string, duration time.Duration, success bool) {
	if m == nil || m.fetchDuration == nil {
		return
	}

	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("view", view),
		attribute.Bool("success", success),
	))
}

// RecordAttempt counts a gate decision. reason is empty unless the attempt was skipped.
func (m *RefreshMetrics) RecordAttempt(ctx context.Context, view, outcome, reason string) {
	if m == nil || m.attemptsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("view", view),
		attribute.String("outcome", outcome),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}

	m.attemptsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPreferenceChange counts a preference change seen on the broadcast channel
func (m *RefreshMetrics) RecordPreferenceChange(ctx context.Context, enabled bool, origin string) {
	if m == nil || m.preferenceChanges == nil {
		return
	}

	m.preferenceChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("enabled", enabled),
		attribute.String("origin", origin),
	))
}
