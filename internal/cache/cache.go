// Package cache provides the per-view staleness cache used by the fetch gate
// to avoid redundant backend calls while a response is still fresh.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultFreshness is how long a successful response counts as fresh
const DefaultFreshness = 15 * time.Second

// Entry is the last successful response for a key
type Entry struct {
	Key         string
	Timestamp   time.Time
	Payload     json.RawMessage
	Fingerprint string
}

// Age returns how old the entry is at now
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Cache memoises responses per key. Entries are never evicted; they only
// stop counting as hits once older than the freshness window.
type Cache struct {
	clock     clock.PassiveClock
	freshness time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
}

// Option configures a Cache
type Option func(*Cache)

// WithFreshness sets the freshness window
func WithFreshness(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.freshness = d
		}
	}
}

// WithClock sets the clock used to stamp and age entries
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		clock:     clock.RealClock{},
		freshness: DefaultFreshness,
		entries:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the cache key of a view for the given query parameters.
// Parameter order does not matter.
func Key(view string, params map[string]string) string {
	if len(params) == 0 {
		return view
	}
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	// Encode sorts by key
	return view + "?" + values.Encode()
}

// Fingerprint returns the content hash of a payload. Insignificant
// whitespace does not change the fingerprint.
func Fingerprint(payload json.RawMessage) string {
	var buf bytes.Buffer
	data := []byte(payload)
	if err := json.Compact(&buf, payload); err == nil {
		data = buf.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Freshness returns the configured freshness window
func (c *Cache) Freshness() time.Duration {
	return c.freshness
}

// Get returns the entry for key only while it is fresh
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.Age(c.clock.Now()) >= c.freshness {
		return nil, false
	}
	return e, true
}

// Peek returns the entry for key whether fresh or stale
func (c *Cache) Peek(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e, ok
}

// Put stores payload under key, replacing any previous entry
func (c *Cache) Put(key string, payload json.RawMessage) *Entry {
	e := &Entry{
		Key:         key,
		Timestamp:   c.clock.Now(),
		Payload:     append(json.RawMessage(nil), payload...),
		Fingerprint: Fingerprint(payload),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e
}

// WasIdentical reports whether payload matches the last stored entry for
// key, fresh or not
func (c *Cache) WasIdentical(key string, payload json.RawMessage) bool {
	e, ok := c.Peek(key)
	if !ok {
		return false
	}
	return e.Fingerprint == Fingerprint(payload)
}

// Len returns the number of stored entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
