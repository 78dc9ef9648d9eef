// Package config provides configuration loading and management for the dashboard.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hemobank/bo-dashboard/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables read through viper
	EnvPrefix = "BO_DASHBOARD"

	// DefaultCadence is the polling interval of views that do not set one
	DefaultCadence = 15 * time.Second

	// DefaultMinInterval is the minimum spacing of non-forced fetches
	DefaultMinInterval = 5 * time.Second

	// DefaultFreshness is how long a response counts as a cache hit
	DefaultFreshness = 15 * time.Second

	// DefaultDebounce delays the forced fetch after a parameter change
	DefaultDebounce = 400 * time.Millisecond

	// DefaultFetchTimeout bounds a single backend request
	DefaultFetchTimeout = 30 * time.Second

	// DefaultBackoffMaxInterval caps the stretched polling interval
	DefaultBackoffMaxInterval = 2 * time.Minute

	// MinCadence and MaxCadence bound the polling interval of a view
	MinCadence = 15 * time.Second
	MaxCadence = 30 * time.Second
)

// viewNamePattern restricts view names to URL path segment friendly values
var viewNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Preference PreferenceConfig  `yaml:"preference,omitempty"`
	Defaults   DefaultsConfig    `yaml:"defaults,omitempty"`
	Views      []ViewConfig      `yaml:"views"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// PreferenceConfig locates the shared auto-refresh preference
type PreferenceConfig struct {
	// Path is the preference file. Defaults to the user config directory.
	Path string `yaml:"path,omitempty"`

	// Watch reloads the preference when another process changes the file.
	// Defaults to true.
	Watch *bool `yaml:"watch,omitempty"`
}

// DefaultsConfig holds timing settings shared by all views.
// Durations use Go syntax ("15s", "400ms").
type DefaultsConfig struct {
	Cadence      string         `yaml:"cadence,omitempty"`
	MinInterval  string         `yaml:"minInterval,omitempty"`
	Freshness    string         `yaml:"freshness,omitempty"`
	Debounce     string         `yaml:"debounce,omitempty"`
	FetchTimeout string         `yaml:"fetchTimeout,omitempty"`
	Backoff      *BackoffConfig `yaml:"backoff,omitempty"`
}

// BackoffConfig enables stretching the polling interval after failures
type BackoffConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxInterval string `yaml:"maxInterval,omitempty"`
}

// ViewConfig defines one dashboard view and its backend endpoint
type ViewConfig struct {
	// Name identifies the view and is part of its cache keys
	Name string `yaml:"name"`

	// Endpoint is the backend URL queried for the view's data
	Endpoint string `yaml:"endpoint"`

	// Cadence overrides the default polling interval
	Cadence string `yaml:"cadence,omitempty"`

	// DataPath is a gjson path selecting the payload within the response
	DataPath string `yaml:"dataPath,omitempty"`

	// Schema is a JSON schema file the payload must satisfy
	Schema string `yaml:"schema,omitempty"`

	// Params are the initial query parameters
	Params map[string]string `yaml:"params,omitempty"`
}

// Timings are the resolved durations of one view
type Timings struct {
	Cadence      time.Duration
	MinInterval  time.Duration
	Debounce     time.Duration
	FetchTimeout time.Duration

	// BackoffMaxInterval is zero when backoff is disabled
	BackoffMaxInterval time.Duration
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	if len(c.Views) == 0 {
		return fmt.Errorf("at least one view must be configured")
	}

	names := make(map[string]bool)
	for i, view := range c.Views {
		if view.Name == "" {
			return fmt.Errorf("view[%d]: name is required", i)
		}
		if !viewNamePattern.MatchString(view.Name) {
			return fmt.Errorf("view[%d]: name '%s' must contain only lowercase letters, digits and dashes", i, view.Name)
		}
		if names[view.Name] {
			return fmt.Errorf("view[%d]: duplicate view name '%s'", i, view.Name)
		}
		names[view.Name] = true

		if err := view.validate(); err != nil {
			return fmt.Errorf("view[%d] (%s): %w", i, view.Name, err)
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (d *DefaultsConfig) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"cadence", d.Cadence},
		{"minInterval", d.MinInterval},
		{"freshness", d.Freshness},
		{"debounce", d.Debounce},
		{"fetchTimeout", d.FetchTimeout},
	}
	for _, f := range fields {
		if err := validateDuration(f.name, f.value); err != nil {
			return err
		}
	}

	if d.Cadence != "" {
		if err := validateCadence(d.Cadence); err != nil {
			return err
		}
	}

	if d.Backoff != nil {
		if err := validateDuration("backoff.maxInterval", d.Backoff.MaxInterval); err != nil {
			return err
		}
	}

	return nil
}

func (v *ViewConfig) validate() error {
	if v.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(v.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https, got '%s'", u.Scheme)
	}

	if v.Cadence != "" {
		if err := validateDuration("cadence", v.Cadence); err != nil {
			return err
		}
		if err := validateCadence(v.Cadence); err != nil {
			return err
		}
	}

	return nil
}

// validateDuration accepts empty values, which fall back to defaults
func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '15s', '400ms'): %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return nil
}

func validateCadence(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("cadence must be a valid duration (e.g., '15s', '30s'): %w", err)
	}
	if d < MinCadence || d > MaxCadence {
		return fmt.Errorf("cadence must be between %s and %s, got %s", MinCadence, MaxCadence, value)
	}
	return nil
}

// WatchPreference reports whether external preference changes are observed
func (c *Config) WatchPreference() bool {
	if c.Preference.Watch == nil {
		return true
	}
	return *c.Preference.Watch
}

// Freshness returns the staleness cache window
func (c *Config) Freshness() time.Duration {
	return parseDuration("freshness", c.Defaults.Freshness, DefaultFreshness)
}

// ViewTimings resolves the durations of view, applying defaults
func (c *Config) ViewTimings(view ViewConfig) Timings {
	t := Timings{
		Cadence:      parseDuration("cadence", c.Defaults.Cadence, DefaultCadence),
		MinInterval:  parseDuration("minInterval", c.Defaults.MinInterval, DefaultMinInterval),
		Debounce:     parseDuration("debounce", c.Defaults.Debounce, DefaultDebounce),
		FetchTimeout: parseDuration("fetchTimeout", c.Defaults.FetchTimeout, DefaultFetchTimeout),
	}
	if view.Cadence != "" {
		t.Cadence = parseDuration("cadence", view.Cadence, t.Cadence)
	}
	if b := c.Defaults.Backoff; b != nil && b.Enabled {
		t.BackoffMaxInterval = parseDuration("backoff.maxInterval", b.MaxInterval, DefaultBackoffMaxInterval)
	}
	return t
}

// parseDuration returns def for empty or invalid values. A "0" fetchTimeout
// is kept as zero, meaning unbounded.
func parseDuration(name, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		slog.Warn("Invalid duration, using default",
			"setting", name,
			"value", value,
			"default", def,
			"error", err)
		return def
	}
	return d
}
