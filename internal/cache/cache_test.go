package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

const testView = "order-queue"

func newTestCache(t *testing.T) (*Cache, *clocktesting.FakePassiveClock) {
	t.Helper()
	clk := clocktesting.NewFakePassiveClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	return New(WithClock(clk), WithFreshness(15*time.Second)), clk
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   map[string]string
		expected string
	}{
		{name: "no params", params: nil, expected: testView},
		{name: "empty params", params: map[string]string{}, expected: testView},
		{name: "single param", params: map[string]string{"range": "24h"}, expected: testView + "?range=24h"},
		{
			name:     "params are sorted",
			params:   map[string]string{"to": "2026-01-02", "from": "2026-01-01"},
			expected: testView + "?from=2026-01-01&to=2026-01-02",
		},
		{name: "values are escaped", params: map[string]string{"q": "a b&c"}, expected: testView + "?q=a+b%26c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Key(testView, tt.params))
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint(json.RawMessage(`{"units":4,"group":"O-"}`))
	b := Fingerprint(json.RawMessage("{\n  \"units\": 4,\n  \"group\": \"O-\"\n}"))
	c := Fingerprint(json.RawMessage(`{"units":5,"group":"O-"}`))

	assert.Equal(t, a, b, "whitespace must not change the fingerprint")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCache_GetRespectsFreshness(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t)
	key := Key(testView, nil)

	_, ok := c.Get(key)
	require.False(t, ok, "empty cache must miss")

	put := c.Put(key, json.RawMessage(`[1,2,3]`))
	assert.Equal(t, clk.Now(), put.Timestamp)

	clk.SetTime(clk.Now().Add(14 * time.Second))
	e, ok := c.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `[1,2,3]`, string(e.Payload))

	clk.SetTime(clk.Now().Add(time.Second))
	_, ok = c.Get(key)
	assert.False(t, ok, "entry at exactly the freshness window is stale")

	// Stale entries are retained
	stale, ok := c.Peek(key)
	require.True(t, ok)
	assert.Equal(t, put.Fingerprint, stale.Fingerprint)
	assert.Equal(t, 1, c.Len())
}

func TestCache_PutOverwrites(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t)
	key := Key(testView, map[string]string{"range": "7d"})

	c.Put(key, json.RawMessage(`{"v":1}`))
	clk.SetTime(clk.Now().Add(20 * time.Second))
	second := c.Put(key, json.RawMessage(`{"v":2}`))

	e, ok := c.Get(key)
	require.True(t, ok, "overwriting refreshes the timestamp")
	assert.Equal(t, second, e)
	assert.Equal(t, 1, c.Len())
}

func TestCache_PutCopiesPayload(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	payload := json.RawMessage(`{"v":1}`)
	c.Put(testView, payload)
	payload[5] = '9'

	e, ok := c.Get(testView)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(e.Payload))
}

func TestCache_WasIdentical(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(t)
	key := Key(testView, nil)

	assert.False(t, c.WasIdentical(key, json.RawMessage(`{}`)), "unknown key is never identical")

	c.Put(key, json.RawMessage(`{"a":1}`))
	assert.True(t, c.WasIdentical(key, json.RawMessage(`{ "a": 1 }`)))
	assert.False(t, c.WasIdentical(key, json.RawMessage(`{"a":2}`)))

	// Still compared once stale
	clk.SetTime(clk.Now().Add(time.Hour))
	assert.True(t, c.WasIdentical(key, json.RawMessage(`{"a":1}`)))
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New(WithFreshness(0))
	assert.Equal(t, DefaultFreshness, c.Freshness())
}
