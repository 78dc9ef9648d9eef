// Package gate decides whether a refresh attempt may reach the backend.
// It serialises fetches per view, enforces a minimum interval between
// non-forced fetches and answers from the staleness cache while it is fresh.
package gate

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=gate.go Fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/hemobank/bo-dashboard/internal/cache"
	"github.com/hemobank/bo-dashboard/internal/otel"
	"github.com/hemobank/bo-dashboard/internal/telemetry"
)

const (
	// DefaultMinInterval is the minimum spacing of non-forced fetches
	DefaultMinInterval = 5 * time.Second

	// DefaultFetchTimeout bounds a single fetch
	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher retrieves the payload of a view for the given query parameters
type Fetcher interface {
	Fetch(ctx context.Context, params map[string]string) (json.RawMessage, error)
}

// OutcomeKind is the result class of an attempt
type OutcomeKind string

// Outcome kinds
const (
	OutcomeFetched  OutcomeKind = "fetched"
	OutcomeCacheHit OutcomeKind = "cacheHit"
	OutcomeSkipped  OutcomeKind = "skipped"
	OutcomeError    OutcomeKind = "error"
)

// SkipReason explains a silent skip
type SkipReason string

// Skip reasons
const (
	ReasonTooSoon  SkipReason = "tooSoon"
	ReasonInFlight SkipReason = "inFlight"
)

// Outcome is the result of one Attempt
type Outcome struct {
	Kind OutcomeKind

	// Reason is set for OutcomeSkipped
	Reason SkipReason

	// Entry is set for OutcomeFetched and OutcomeCacheHit
	Entry *cache.Entry

	// Changed reports whether a fetched payload differs from the previous one
	Changed bool

	// Err is set for OutcomeError
	Err *FetchError
}

// AttemptOptions tunes a single attempt
type AttemptOptions struct {
	// Force bypasses the interval and cache checks, never the in-flight check
	Force bool

	// OnFetching runs once the gate has committed to a network call,
	// before the fetcher is invoked
	OnFetching func()
}

// State is a snapshot of the gate bookkeeping
type State struct {
	LastFetchAt time.Time
	InFlight    bool
}

// Gate guards the fetcher of one mounted view
type Gate struct {
	view    string
	fetcher Fetcher
	cache   *cache.Cache

	clock        clock.PassiveClock
	minInterval  time.Duration
	fetchTimeout time.Duration
	metrics      *telemetry.RefreshMetrics
	tracer       trace.Tracer

	mu          sync.Mutex
	lastFetchAt time.Time
	inFlight    bool
}

// Option configures a Gate
type Option func(*Gate)

// WithMinInterval sets the minimum spacing of non-forced fetches
func WithMinInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.minInterval = d
		}
	}
}

// WithClock sets the clock used for interval checks
func WithClock(clk clock.PassiveClock) Option {
	return func(g *Gate) {
		g.clock = clk
	}
}

// WithFetchTimeout bounds each fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.fetchTimeout = d
		}
	}
}

// WithMetrics sets the refresh metrics
func WithMetrics(metrics *telemetry.RefreshMetrics) Option {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithTracer sets the tracer for attempt spans
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gate) {
		g.tracer = tracer
	}
}

// New creates a gate for view. c is shared between gates; fetcher is not.
func New(view string, fetcher Fetcher, c *cache.Cache, opts ...Option) *Gate {
	g := &Gate{
		view:         view,
		fetcher:      fetcher,
		cache:        c,
		clock:        clock.RealClock{},
		minInterval:  DefaultMinInterval,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// View returns the name of the guarded view
func (g *Gate) View() string {
	return g.view
}

// State returns the current bookkeeping
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{LastFetchAt: g.lastFetchAt, InFlight: g.inFlight}
}

// Attempt runs the guard chain and, if it passes, fetches. It never panics
// and never returns an error; failures are reported in the outcome.
func (g *Gate) Attempt(ctx context.Context, params map[string]string, opts AttemptOptions) Outcome {
	key := cache.Key(g.view, params)

	ctx, span := otel.StartSpan(ctx, g.tracer, "gate.attempt",
		trace.WithAttributes(
			otel.AttrViewName.String(g.view),
			otel.AttrCacheKey.String(key),
			otel.AttrForced.Bool(opts.Force),
		),
	)
	defer span.End()

	o := g.attempt(ctx, key, params, opts)

	span.SetAttributes(otel.AttrOutcome.String(string(o.Kind)))
	switch o.Kind {
	case OutcomeSkipped:
		span.SetAttributes(otel.AttrSkipReason.String(string(o.Reason)))
	case OutcomeFetched:
		span.SetAttributes(otel.AttrPayloadChanged.Bool(o.Changed))
	case OutcomeError:
		span.SetAttributes(otel.AttrErrorKind.String(string(o.Err.Kind)))
		otel.RecordError(span, o.Err)
	}

	g.metrics.RecordAttempt(ctx, g.view, string(o.Kind), string(o.Reason))
	return o
}

func (g *Gate) attempt(ctx context.Context, key string, params map[string]string, opts AttemptOptions) Outcome {
	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		slog.Debug("Skipping refresh, fetch already in flight", "view", g.view)
		return Outcome{Kind: OutcomeSkipped, Reason: ReasonInFlight}
	}

	now := g.clock.Now()
	if !opts.Force {
		if !g.lastFetchAt.IsZero() && now.Sub(g.lastFetchAt) < g.minInterval {
			g.mu.Unlock()
			slog.Debug("Skipping refresh, too soon since last fetch",
				"view", g.view,
				"since_last", now.Sub(g.lastFetchAt),
				"min_interval", g.minInterval)
			return Outcome{Kind: OutcomeSkipped, Reason: ReasonTooSoon}
		}
		if entry, ok := g.cache.Get(key); ok {
			g.mu.Unlock()
			slog.Debug("Serving refresh from cache", "view", g.view, "age", entry.Age(now))
			return Outcome{Kind: OutcomeCacheHit, Entry: entry}
		}
	}

	g.inFlight = true
	g.lastFetchAt = now
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
	}()

	if opts.OnFetching != nil {
		opts.OnFetching()
	}

	start := g.clock.Now()
	payload, fetchErr := g.fetch(ctx, params)
	g.metrics.RecordFetchDuration(ctx, g.view, g.clock.Since(start), fetchErr == nil)

	if fetchErr != nil {
		slog.Warn("Refresh failed",
			"view", g.view,
			"kind", fetchErr.Kind,
			"error", fetchErr)
		return Outcome{Kind: OutcomeError, Err: fetchErr}
	}

	changed := !g.cache.WasIdentical(key, payload)
	entry := g.cache.Put(key, payload)

	slog.Debug("Refresh fetched", "view", g.view, "changed", changed, "bytes", len(payload))
	return Outcome{Kind: OutcomeFetched, Entry: entry, Changed: changed}
}

type fetchResult struct {
	payload json.RawMessage
	err     error
}

// fetch runs the fetcher bounded by the fetch timeout. The fetcher runs on its
// own goroutine so that one ignoring ctx still settles on time.
func (g *Gate) fetch(ctx context.Context, params map[string]string) (json.RawMessage, *FetchError) {
	if g.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.fetchTimeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: NewNetworkError("fetcher panicked", fmt.Errorf("%v", r))}
			}
		}()
		payload, err := g.fetcher.Fetch(ctx, params)
		done <- fetchResult{payload: payload, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = fetchResult{err: ctx.Err()}
	}

	if res.err != nil {
		return nil, classify(res.err)
	}
	if !gjson.ValidBytes(res.payload) {
		return nil, NewParseError("response is not valid JSON", nil)
	}
	return res.payload, nil
}
