// Package config loads engine configuration from YAML.
//
// All thresholds that drive attendance classification and sync behaviour are
// configuration, never hard-coded: callers embed the engine with a Config
// built from Default() or loaded from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like "15m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string ("15m", "168h").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LocationPolicy holds the expected-time policy for one location.
// ExpectedStart and ExpectedEnd are wall-clock times in "15:04" form,
// resolved against the capture date in the capture time's location.
type LocationPolicy struct {
	ExpectedStart string   `yaml:"expected_start"`
	ExpectedEnd   string   `yaml:"expected_end"`
	GraceWindow   Duration `yaml:"grace_window"`
	LateCutoff    Duration `yaml:"late_cutoff"`
	HalfDayCutoff Duration `yaml:"half_day_cutoff"`
}

// AttendancePolicy maps locations to their expected-time policies.
// Locations without an explicit entry use Default.
type AttendancePolicy struct {
	Default   LocationPolicy            `yaml:"default"`
	Locations map[string]LocationPolicy `yaml:"locations"`
}

// For returns the policy for a location, falling back to Default.
func (p *AttendancePolicy) For(locationID string) LocationPolicy {
	if lp, ok := p.Locations[locationID]; ok {
		return lp
	}
	return p.Default
}

// ExpectedStartAt resolves the expected start time for a location on the
// day of the given capture time.
func (p *AttendancePolicy) ExpectedStartAt(locationID string, day time.Time) (time.Time, error) {
	return atClockTime(p.For(locationID).ExpectedStart, day)
}

// ExpectedEndAt resolves the expected end time for a location on the
// day of the given capture time.
func (p *AttendancePolicy) ExpectedEndAt(locationID string, day time.Time) (time.Time, error) {
	return atClockTime(p.For(locationID).ExpectedEnd, day)
}

func atClockTime(clock string, day time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// SyncConfig controls queue draining and retry behaviour.
type SyncConfig struct {
	BackoffBase   Duration `yaml:"backoff_base"`
	BackoffCap    Duration `yaml:"backoff_cap"`
	MaxAttempts   int      `yaml:"max_attempts"`
	BatchSize     int      `yaml:"batch_size"`
	DrainInterval Duration `yaml:"drain_interval"`
}

// Config is the full engine configuration.
type Config struct {
	ValidityWindow     Duration         `yaml:"validity_window"`
	ClockSkewTolerance Duration         `yaml:"clock_skew_tolerance"`
	NonceSafetyMargin  Duration         `yaml:"nonce_safety_margin"`
	OfflineLimit       Duration         `yaml:"offline_limit"`
	Attendance         AttendancePolicy `yaml:"attendance"`
	Sync               SyncConfig       `yaml:"sync"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ValidityWindow:     Duration{15 * time.Minute},
		ClockSkewTolerance: Duration{2 * time.Minute},
		NonceSafetyMargin:  Duration{5 * time.Minute},
		OfflineLimit:       Duration{168 * time.Hour},
		Attendance: AttendancePolicy{
			Default: LocationPolicy{
				ExpectedStart: "09:00",
				ExpectedEnd:   "17:00",
				GraceWindow:   Duration{5 * time.Minute},
				LateCutoff:    Duration{15 * time.Minute},
				HalfDayCutoff: Duration{4 * time.Hour},
			},
		},
		Sync: SyncConfig{
			BackoffBase:   Duration{30 * time.Second},
			BackoffCap:    Duration{time.Hour},
			MaxAttempts:   8,
			BatchSize:     32,
			DrainInterval: Duration{5 * time.Minute},
		},
	}
}

// Load reads a YAML config file, overlaying it on Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ValidityWindow.Duration <= 0 {
		return fmt.Errorf("validity_window must be positive")
	}
	if c.OfflineLimit.Duration <= 0 {
		return fmt.Errorf("offline_limit must be positive")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if _, err := time.Parse("15:04", c.Attendance.Default.ExpectedStart); err != nil {
		return fmt.Errorf("attendance.default.expected_start: %w", err)
	}
	for id, lp := range c.Attendance.Locations {
		if _, err := time.Parse("15:04", lp.ExpectedStart); err != nil {
			return fmt.Errorf("attendance.locations.%s.expected_start: %w", id, err)
		}
	}
	return nil
}
