// Package broadcast provides the in-process channel used to announce
// auto-refresh preference changes to every mounted dashboard view.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Origin identifies who caused a preference change
type Origin string

const (
	// OriginLocal means the change was written by this process
	OriginLocal Origin = "local"

	// OriginExternal means the change was detected in shared storage,
	// e.g. written by another process
	OriginExternal Origin = "external"
)

// Event is published whenever the auto-refresh preference changes
type Event struct {
	Key     string
	Enabled bool
	Origin  Origin
	At      time.Time
}

// Handler receives published events
type Handler func(Event)

type subscription struct {
	id      uuid.UUID
	handler Handler
}

// Channel delivers events synchronously to all current subscribers.
// The zero value is not usable, use New.
type Channel struct {
	mu   sync.RWMutex
	subs []*subscription
}

// New creates an empty channel
func New() *Channel {
	return &Channel{}
}

// Publish invokes every handler subscribed at the time of the call, in
// subscription order, on the caller's goroutine. It returns once all
// handlers have returned.
func (c *Channel) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	// Snapshot so handlers may (un)subscribe during delivery
	c.mu.RLock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	slog.Debug("Publishing preference event",
		"key", e.Key,
		"enabled", e.Enabled,
		"origin", e.Origin,
		"subscribers", len(subs))

	for _, s := range subs {
		s.handler(e)
	}
}

// Subscribe registers h and returns a function removing it again.
// The returned function is idempotent.
func (c *Channel) Subscribe(h Handler) func() {
	s := &subscription{id: uuid.New(), handler: h}

	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()

	slog.Debug("Subscribed to preference channel", "subscription", s.id)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, existing := range c.subs {
				if existing == s {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					break
				}
			}
			slog.Debug("Unsubscribed from preference channel", "subscription", s.id)
		})
	}
}

// Len returns the number of active subscriptions
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
