// Package preference provides the durable, process-wide auto-refresh
// preference shared by all dashboard views.
package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

const (
	// Key is the fixed namespace under which the preference is stored
	Key = "bo.autoRefreshEnabled"

	// FileName is the default preference file name
	FileName = "preferences.json"

	lockSuffix = ".lock"
)

// ErrMalformed is returned when the stored preference cannot be interpreted
var ErrMalformed = errors.New("malformed preference value")

// Persistence defines the storage backend of the preference
type Persistence interface {
	// Load returns the stored value. found is false if nothing was ever stored.
	Load(ctx context.Context) (enabled bool, found bool, err error)

	// Save stores the value, replacing any previous one
	Save(ctx context.Context, enabled bool) error
}

// document is the on-disk layout of the preference file
type document struct {
	Enabled   json.RawMessage `json:"bo.autoRefreshEnabled,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// filePersistence stores the preference in a JSON file guarded by an advisory lock
type filePersistence struct {
	// mu serialises goroutines of this process; lock serialises processes
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFilePersistence creates a file-based persistence at path
func NewFilePersistence(path string) Persistence {
	return &filePersistence{
		path: path,
		lock: flock.New(path + lockSuffix),
	}
}

// DefaultPath returns the preference file location used when none is
// configured, under the XDG config directory
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "bo-dashboard", FileName)
}

// Load reads the preference file under a shared lock
func (f *filePersistence) Load(_ context.Context) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return false, false, fmt.Errorf("failed to create preference directory: %w", err)
	}
	if err := f.lock.RLock(); err != nil {
		return false, false, fmt.Errorf("failed to lock preference file: %w", err)
	}
	defer func() {
		_ = f.lock.Unlock()
	}()

	// #nosec G304 -- path comes from configuration, not from requests
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to read preference file: %w", err)
	}

	return decode(data)
}

// Save writes the preference file atomically under an exclusive lock
func (f *filePersistence) Save(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create preference directory: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock preference file: %w", err)
	}
	defer func() {
		_ = f.lock.Unlock()
	}()

	raw, _ := json.Marshal(enabled)
	now := time.Now().UTC()
	data, err := json.MarshalIndent(document{Enabled: raw, UpdatedAt: &now}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preference: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary preference file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename preference file: %w", err)
	}
	return nil
}

func decode(data []byte) (bool, bool, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, false, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Enabled) == 0 {
		return false, false, nil
	}

	var enabled bool
	if err := json.Unmarshal(doc.Enabled, &enabled); err != nil {
		return false, false, fmt.Errorf("%w: %s is not a boolean", ErrMalformed, string(doc.Enabled))
	}
	return enabled, true, nil
}

// memoryPersistence keeps the preference for the lifetime of the process only
type memoryPersistence struct {
	mu      sync.RWMutex
	enabled bool
	found   bool
}

// NewMemoryPersistence creates a persistence that never touches disk
func NewMemoryPersistence() Persistence {
	return &memoryPersistence{}
}

func (m *memoryPersistence) Load(_ context.Context) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled, m.found, nil
}

func (m *memoryPersistence) Save(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	m.found = true
	return nil
}
