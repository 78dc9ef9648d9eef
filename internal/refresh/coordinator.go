// Package refresh runs the refresh loop of a mounted dashboard view: a
// debounced forced fetch on mount and parameter changes, a polling ticker
// while auto-refresh is enabled, and on-demand forced refreshes.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/hemobank/bo-dashboard/internal/broadcast"
	"github.com/hemobank/bo-dashboard/internal/gate"
	"github.com/hemobank/bo-dashboard/internal/preference"
	"github.com/hemobank/bo-dashboard/internal/viewstate"
)

const (
	// DefaultCadence is the polling interval while auto-refresh is on
	DefaultCadence = 15 * time.Second

	// DefaultDebounce delays the forced fetch after mount or a parameter change
	DefaultDebounce = 400 * time.Millisecond
)

var (
	// ErrAlreadyMounted is returned when Mount is called twice
	ErrAlreadyMounted = errors.New("view is already mounted")

	// ErrUnmounted is returned when Mount is called after Unmount
	ErrUnmounted = errors.New("view was unmounted")
)

type commandKind int

const (
	cmdSetParams commandKind = iota
	cmdForce
	cmdPreference
)

// result is an outcome together with the attempt that produced it
type result struct {
	gate.Outcome
	params map[string]string
	force  bool
	seq    uint64
}

// command is applied by the loop, which closes ack once done
type command struct {
	kind    commandKind
	params  map[string]string
	enabled bool
	ack     chan struct{}
}

// Coordinator owns the timers of one mounted view. It is single-use:
// mount it once, unmount it once.
type Coordinator struct {
	name       string
	id         uuid.UUID
	gate       *gate.Gate
	store      preference.Store
	projection *viewstate.Projection

	clock    clock.WithTicker
	cadence  time.Duration
	debounce time.Duration
	backoff  *backoff.ExponentialBackOff

	// lifecycle
	mu          sync.Mutex
	mounted     bool
	unmounted   bool
	cancel      context.CancelFunc
	done        chan struct{}
	cmds        chan command
	unsubscribe func()

	// paramsMu guards params for readers outside the loop
	paramsMu sync.RWMutex
	params   map[string]string

	autoRefresh atomic.Bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithCadence sets the polling interval
func WithCadence(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cadence = d
		}
	}
}

// WithDebounce sets the debounce delay of forced fetches
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithClock sets the clock owning the debounce timer and ticker
func WithClock(clk clock.WithTicker) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithBackoff stretches polling after consecutive failures, doubling from
// the cadence up to maxInterval. The first success restores the cadence.
func WithBackoff(maxInterval time.Duration) Option {
	return func(c *Coordinator) {
		c.backoff = backoff.NewExponentialBackOff()
		c.backoff.MaxInterval = maxInterval
		c.backoff.Multiplier = 2
		c.backoff.RandomizationFactor = 0
	}
}

// WithProjection sets the projection the loop writes to
func WithProjection(p *viewstate.Projection) Option {
	return func(c *Coordinator) {
		c.projection = p
	}
}

// NewCoordinator creates an unmounted coordinator for view name
func NewCoordinator(name string, g *gate.Gate, store preference.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:     name,
		id:       uuid.New(),
		gate:     g,
		store:    store,
		clock:    clock.RealClock{},
		cadence:  DefaultCadence,
		debounce: DefaultDebounce,
		params:   map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.projection == nil {
		c.projection = viewstate.NewProjection(c.clock)
	}
	if c.backoff != nil {
		c.backoff.InitialInterval = c.cadence
		if c.backoff.MaxInterval < c.cadence {
			c.backoff.MaxInterval = c.cadence
		}
		c.backoff.Reset()
	}
	return c
}

// Name returns the view name
func (c *Coordinator) Name() string {
	return c.name
}

// Mount starts the loop: it arms the debounce timer for the initial forced
// fetch, starts polling if auto-refresh is enabled and subscribes to
// preference changes.
func (c *Coordinator) Mount(ctx context.Context, params map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		return ErrUnmounted
	}
	if c.mounted {
		return ErrAlreadyMounted
	}

	c.setParams(params)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.cmds = make(chan command)

	// Timers are armed before the loop starts so the first deadline is
	// relative to the mount time. A write landing before Subscribe below is
	// picked up by the loop, which reads the store again once running.
	debounce := c.clock.NewTimer(c.debounce)
	var ticker clock.Ticker
	enabled := c.store.Read()
	if enabled {
		ticker = c.clock.NewTicker(c.cadence)
	}
	c.autoRefresh.Store(enabled)

	done := c.done
	cmds := c.cmds
	c.unsubscribe = c.store.Subscribe(func(e broadcast.Event) {
		ack := make(chan struct{})
		select {
		case cmds <- command{kind: cmdPreference, enabled: e.Enabled, ack: ack}:
		case <-done:
			return
		}
		select {
		case <-ack:
		case <-done:
		}
	})

	c.mounted = true
	go c.run(loopCtx, debounce, ticker)

	slog.Info("View mounted",
		"view", c.name,
		"instance", c.id,
		"auto_refresh", enabled,
		"cadence", c.cadence)
	return nil
}

// Unmount stops the loop, its timers and the preference subscription.
// A fetch still in flight is cancelled and its result discarded.
// Unmount is idempotent and safe before Mount.
func (c *Coordinator) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unmounted {
		return
	}
	c.unmounted = true
	c.projection.Freeze()

	if !c.mounted {
		return
	}

	c.unsubscribe()
	c.cancel()
	<-c.done

	slog.Info("View unmounted", "view", c.name, "instance", c.id)
}

// SetParams replaces the query parameters and re-arms the debounce timer
func (c *Coordinator) SetParams(params map[string]string) {
	c.send(command{kind: cmdSetParams, params: maps.Clone(params)})
}

// ForceRefresh runs a forced attempt right away
func (c *Coordinator) ForceRefresh() {
	c.send(command{kind: cmdForce})
}

// ToggleAutoRefresh writes the shared preference. Every mounted view,
// including this one, has applied it when the call returns.
func (c *Coordinator) ToggleAutoRefresh(enabled bool) {
	c.store.Write(enabled)
}

// AutoRefresh reports whether this view is polling
func (c *Coordinator) AutoRefresh() bool {
	return c.autoRefresh.Load()
}

// Snapshot returns the current view state
func (c *Coordinator) Snapshot() viewstate.State {
	return c.projection.Snapshot()
}

// Subscribe delivers view state changes until the returned function is
// called or the view is unmounted
func (c *Coordinator) Subscribe(buffer int) (<-chan viewstate.Change, func()) {
	return c.projection.Subscribe(buffer)
}

// Params returns a copy of the current query parameters
func (c *Coordinator) Params() map[string]string {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return maps.Clone(c.params)
}

// GateState exposes the bookkeeping of the view's gate
func (c *Coordinator) GateState() gate.State {
	return c.gate.State()
}

func (c *Coordinator) setParams(params map[string]string) {
	if params == nil {
		params = map[string]string{}
	}
	c.paramsMu.Lock()
	c.params = params
	c.paramsMu.Unlock()
}

// send hands cmd to the loop and waits until it is applied.
// It is a no-op when the view is not mounted.
func (c *Coordinator) send(cmd command) {
	c.mu.Lock()
	if !c.mounted || c.unmounted {
		c.mu.Unlock()
		return
	}
	cmds, done := c.cmds, c.done
	c.mu.Unlock()

	cmd.ack = make(chan struct{})
	select {
	case cmds <- cmd:
	case <-done:
		return
	}
	select {
	case <-cmd.ack:
	case <-done:
	}
}

// run is the loop. It owns the debounce timer and the ticker; fetches run on
// their own goroutines and report back on results.
func (c *Coordinator) run(ctx context.Context, debounce clock.Timer, ticker clock.Ticker) {
	defer close(c.done)

	results := make(chan result)
	debounceC := debounce.C()

	var tickC <-chan time.Time
	if ticker != nil {
		tickC = ticker.C()
	}

	// ticks left to skip while backing off
	skipTicks := 0

	// forceSeq numbers forced launches. pendingForce is set when the latest
	// forced attempt met a running fetch and has to run once it settles.
	var forceSeq uint64
	pendingForce := false

	force := func() {
		forceSeq++
		c.launch(ctx, results, true, forceSeq)
	}

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		tickC = nil
	}

	applyPreference := func(enabled bool) {
		switch {
		case enabled && ticker == nil:
			ticker = c.clock.NewTicker(c.cadence)
			tickC = ticker.C()
			skipTicks = 0
			slog.Info("Auto-refresh resumed", "view", c.name, "cadence", c.cadence)
		case !enabled && ticker != nil:
			stopTicker()
			slog.Info("Auto-refresh paused", "view", c.name)
		}
		c.autoRefresh.Store(enabled)
	}

	defer func() {
		debounce.Stop()
		stopTicker()
	}()

	// The subscription is in place: catch up with writes made during Mount
	applyPreference(c.store.Read())

	for {
		select {
		case <-ctx.Done():
			return

		case <-debounceC:
			debounceC = nil
			force()

		case <-tickC:
			if skipTicks > 0 {
				skipTicks--
				slog.Debug("Skipping tick while backing off", "view", c.name, "remaining", skipTicks)
				continue
			}
			c.launch(ctx, results, false, 0)

		case r := <-results:
			if r.Kind == gate.OutcomeSkipped && r.Reason == gate.ReasonInFlight {
				if r.force && r.seq == forceSeq {
					pendingForce = true
				}
				c.projection.Apply(r.Outcome)
				continue
			}

			// The running fetch has settled
			if !r.stale(c.Params()) {
				skipTicks = c.nextSkip(r.Outcome, skipTicks)
				c.projection.Apply(r.Outcome)
			} else {
				slog.Debug("Dropping refresh for outdated parameters", "view", c.name, "params", r.params)
				// An armed debounce refetches on its own
				pendingForce = pendingForce || debounceC == nil
			}
			if pendingForce {
				pendingForce = false
				force()
			}

		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdSetParams:
				c.setParams(cmd.params)
				debounce.Stop()
				debounce = c.clock.NewTimer(c.debounce)
				debounceC = debounce.C()
				slog.Debug("View parameters changed", "view", c.name, "params", cmd.params)

			case cmdForce:
				force()

			case cmdPreference:
				applyPreference(cmd.enabled)
			}
			close(cmd.ack)
		}
	}
}

// launch runs one attempt with the current parameters
func (c *Coordinator) launch(ctx context.Context, results chan<- result, force bool, seq uint64) {
	params := c.Params()
	go func() {
		o := c.gate.Attempt(ctx, params, gate.AttemptOptions{
			Force:      force,
			OnFetching: c.projection.BeginFetch,
		})
		select {
		case results <- result{Outcome: o, params: params, force: force, seq: seq}:
		case <-ctx.Done():
		}
	}()
}

// stale reports whether r settled a fetch for other parameters than
// current. Skips carry no data and are never stale.
func (r result) stale(current map[string]string) bool {
	switch r.Kind {
	case gate.OutcomeFetched, gate.OutcomeCacheHit, gate.OutcomeError:
		return !maps.Equal(r.params, current)
	default:
		return false
	}
}

// nextSkip updates the backoff from an outcome and returns how many ticks
// to skip before the next polling attempt
func (c *Coordinator) nextSkip(o gate.Outcome, current int) int {
	if c.backoff == nil {
		return 0
	}

	switch o.Kind {
	case gate.OutcomeError:
		interval := c.backoff.NextBackOff()
		skip := int(interval/c.cadence) - 1
		if skip < 0 {
			skip = 0
		}
		slog.Debug("Backing off after failed refresh",
			"view", c.name,
			"interval", interval,
			"skipped_ticks", skip)
		return skip
	case gate.OutcomeFetched, gate.OutcomeCacheHit:
		c.backoff.Reset()
		return 0
	default:
		return current
	}
}
