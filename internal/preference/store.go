package preference

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hemobank/bo-dashboard/internal/broadcast"
)

// Store is the process-wide auto-refresh preference.
// All mutation goes through Write so that subscribers are always notified.
type Store interface {
	// Read returns the current preference. It defaults to true when the
	// value was never stored, is malformed, or storage is unavailable.
	Read() bool

	// Write persists the value and notifies every subscriber before returning.
	// Persistence failures are logged; Write never fails.
	Write(enabled bool)

	// Subscribe registers a handler for local and external changes
	Subscribe(handler broadcast.Handler) (unsubscribe func())

	// Reload re-reads shared storage and publishes an external change event
	// if the stored value differs from the current one
	Reload(ctx context.Context) (changed bool)
}

type store struct {
	persistence Persistence
	channel     *broadcast.Channel

	// writeMu serialises Write and Reload so events are published in the
	// same order values are applied
	writeMu sync.Mutex

	mu         sync.RWMutex
	enabled    bool
	memoryOnly bool
}

// NewStore creates a store backed by persistence, publishing on channel.
// The stored value is read once here.
func NewStore(ctx context.Context, persistence Persistence, channel *broadcast.Channel) Store {
	if channel == nil {
		channel = broadcast.New()
	}
	s := &store{
		persistence: persistence,
		channel:     channel,
		enabled:     true,
	}

	enabled, found, err := persistence.Load(ctx)
	switch {
	case err != nil:
		slog.Warn("Failed to load auto-refresh preference, using default",
			"key", Key,
			"default", true,
			"error", err)
	case !found:
		slog.Debug("No stored auto-refresh preference, using default", "key", Key)
	default:
		s.enabled = enabled
	}

	slog.Info("Auto-refresh preference loaded", "key", Key, "enabled", s.enabled)
	return s
}

func (s *store) Read() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *store) Write(enabled bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.enabled = enabled
	memoryOnly := s.memoryOnly
	s.mu.Unlock()

	if !memoryOnly {
		if err := s.persistence.Save(context.Background(), enabled); err != nil {
			slog.Warn("Failed to persist auto-refresh preference, continuing in memory",
				"key", Key,
				"error", err)
			s.mu.Lock()
			s.memoryOnly = true
			s.mu.Unlock()
		}
	}

	s.channel.Publish(broadcast.Event{Key: Key, Enabled: enabled, Origin: broadcast.OriginLocal})
}

func (s *store) Subscribe(handler broadcast.Handler) func() {
	return s.channel.Subscribe(handler)
}

func (s *store) Reload(ctx context.Context) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enabled, found, err := s.persistence.Load(ctx)
	if err != nil {
		slog.Warn("Failed to reload auto-refresh preference", "key", Key, "error", err)
		return false
	}
	if !found {
		return false
	}

	s.mu.Lock()
	if s.enabled == enabled {
		s.mu.Unlock()
		return false
	}
	s.enabled = enabled
	s.mu.Unlock()

	slog.Info("External auto-refresh preference change detected", "key", Key, "enabled", enabled)
	s.channel.Publish(broadcast.Event{Key: Key, Enabled: enabled, Origin: broadcast.OriginExternal})
	return true
}
