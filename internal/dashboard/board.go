package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/hemobank/bo-dashboard/internal/broadcast"
	"github.com/hemobank/bo-dashboard/internal/cache"
	"github.com/hemobank/bo-dashboard/internal/gate"
	"github.com/hemobank/bo-dashboard/internal/preference"
	"github.com/hemobank/bo-dashboard/internal/refresh"
	"github.com/hemobank/bo-dashboard/internal/telemetry"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("board already started")

	// ErrNoViews is returned by New without views
	ErrNoViews = errors.New("at least one view is required")
)

// Board owns the views of the dashboard and what they share
type Board struct {
	store   preference.Store
	cache   *cache.Cache
	clock   clock.WithTicker
	metrics *telemetry.RefreshMetrics
	tracer  trace.Tracer

	names []string
	specs map[string]ViewSpec
	views map[string]*refresh.Coordinator

	// Lifecycle management
	mu          sync.Mutex
	started     bool
	ready       bool
	cancelFunc  context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// Option configures a Board
type Option func(*Board)

// WithClock sets the clock of every gate and coordinator
func WithClock(clk clock.WithTicker) Option {
	return func(b *Board) {
		b.clock = clk
	}
}

// WithMetrics sets the refresh metrics
func WithMetrics(metrics *telemetry.RefreshMetrics) Option {
	return func(b *Board) {
		b.metrics = metrics
	}
}

// WithTracer sets the tracer for attempt spans
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Board) {
		b.tracer = tracer
	}
}

// New creates a board with one unmounted coordinator per view
func New(store preference.Store, c *cache.Cache, views []ViewSpec, opts ...Option) (*Board, error) {
	if len(views) == 0 {
		return nil, ErrNoViews
	}

	b := &Board{
		store: store,
		cache: c,
		clock: clock.RealClock{},
		specs: make(map[string]ViewSpec, len(views)),
		views: make(map[string]*refresh.Coordinator, len(views)),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, spec := range views {
		if spec.Name == "" {
			return nil, errors.New("view name is required")
		}
		if _, ok := b.specs[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate view name '%s'", spec.Name)
		}
		if spec.Fetcher == nil {
			return nil, fmt.Errorf("view %s: fetcher is required", spec.Name)
		}
		b.names = append(b.names, spec.Name)
		b.specs[spec.Name] = spec
		b.views[spec.Name] = b.newCoordinator(spec)
	}

	return b, nil
}

func (b *Board) newCoordinator(spec ViewSpec) *refresh.Coordinator {
	t := spec.Timings

	g := gate.New(spec.Name, spec.Fetcher, b.cache,
		gate.WithClock(b.clock),
		gate.WithMinInterval(t.MinInterval),
		gate.WithFetchTimeout(t.FetchTimeout),
		gate.WithMetrics(b.metrics),
		gate.WithTracer(b.tracer),
	)

	opts := []refresh.Option{
		refresh.WithClock(b.clock),
		refresh.WithCadence(t.Cadence),
		refresh.WithDebounce(t.Debounce),
	}
	if t.BackoffMaxInterval > 0 {
		opts = append(opts, refresh.WithBackoff(t.BackoffMaxInterval))
	}
	return refresh.NewCoordinator(spec.Name, g, b.store, opts...)
}

// Start mounts every view and blocks until ctx is cancelled or Stop is
// called, then unmounts them
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	boardCtx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel
	b.mu.Unlock()

	defer func() {
		close(b.done)
		slog.Info("Dashboard board shut down")
	}()

	b.unsubscribe = b.store.Subscribe(func(e broadcast.Event) {
		slog.Info("Auto-refresh preference changed",
			"enabled", e.Enabled,
			"origin", e.Origin)
		b.metrics.RecordPreferenceChange(boardCtx, e.Enabled, string(e.Origin))
	})
	defer b.unsubscribe()

	for _, name := range b.names {
		if err := b.views[name].Mount(boardCtx, b.specs[name].Params); err != nil {
			b.unmountAll()
			cancel()
			return fmt.Errorf("failed to mount view %s: %w", name, err)
		}
	}

	b.setReady(true)
	slog.Info("Dashboard board started",
		"view_count", len(b.names),
		"auto_refresh", b.store.Read())

	<-boardCtx.Done()
	slog.Info("Dashboard board stopping")
	b.setReady(false)
	b.unmountAll()
	return nil
}

// Stop unmounts every view and waits for Start to return
func (b *Board) Stop() error {
	b.mu.Lock()
	cancel := b.cancelFunc
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-b.done
	}
	return nil
}

func (b *Board) setReady(ready bool) {
	b.mu.Lock()
	b.ready = ready
	b.mu.Unlock()
}

func (b *Board) unmountAll() {
	for _, name := range b.names {
		b.views[name].Unmount()
	}
}

// Views returns the coordinators in configuration order
func (b *Board) Views() []*refresh.Coordinator {
	views := make([]*refresh.Coordinator, 0, len(b.names))
	for _, name := range b.names {
		views = append(views, b.views[name])
	}
	return views
}

// View returns the coordinator of the named view
func (b *Board) View(name string) (*refresh.Coordinator, bool) {
	v, ok := b.views[name]
	return v, ok
}

// AutoRefresh implements Service
func (b *Board) AutoRefresh(_ context.Context) bool {
	return b.store.Read()
}

// SetAutoRefresh implements Service. Every mounted view has applied the
// change when the call returns.
func (b *Board) SetAutoRefresh(_ context.Context, enabled bool) {
	b.store.Write(enabled)
}
