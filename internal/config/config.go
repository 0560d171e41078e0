// Package config loads DevPulse server configuration: defaults overlaid by
// an optional YAML file, then by environment variables, then by CLI flags
// in cmd/devpulsed (SPEC_FULL.md §10.2).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelPricing is the $/Mtok estimate table entry for one model (spec.md
// §4.3 costs).
type ModelPricing struct {
	InputPerMtok  float64 `yaml:"input_per_mtok"`
	OutputPerMtok float64 `yaml:"output_per_mtok"`
}

type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Store     StoreConfig             `yaml:"store"`
	Conflict  ConflictConfig          `yaml:"conflict"`
	Alert     AlertConfig             `yaml:"alert"`
	Retention RetentionConfig         `yaml:"retention"`
	Costs     map[string]ModelPricing `yaml:"costs"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

// StoreConfig configures the embedded SQLite database file (spec.md §4.1).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ConflictConfig configures the Conflict Detector (spec.md §4.4).
type ConflictConfig struct {
	WindowMinutes int `yaml:"window_minutes"`
}

// AlertConfig configures the Alert Engine's rolling window and thresholds
// (spec.md §4.5). These are documented as best-fit defaults, not
// source-mandated values (spec.md §9 open questions).
type AlertConfig struct {
	WindowMinutes        int     `yaml:"window_minutes"`
	ErrorRateThreshold   float64 `yaml:"error_rate_threshold"`
	ErrorRateMinSample   int     `yaml:"error_rate_min_sample"`
	ErrorRateCritical    float64 `yaml:"error_rate_critical"`
	StuckAfterMinutes    float64 `yaml:"stuck_after_minutes"`
	WaitingAfterMinutes  float64 `yaml:"waiting_after_minutes"`
	CriticalAfterMinutes float64 `yaml:"critical_after_minutes"`
}

// RetentionConfig mirrors the settings table keys in spec.md §4.7 with
// in-process defaults; the live values read by the Retention Manager at
// tick time always come from the Store's settings table so they can be
// changed at runtime via GET|PUT /api/admin/settings. Nothing copies these
// config values into that table: keys never set through the admin endpoint
// fall back to the Retention Manager's own defaults. Apart from Diff, only
// CleanupIntervalHours is used, as the tick interval returned by
// RetentionCleanupInterval.
type RetentionConfig struct {
	EventsDays           int    `yaml:"events_days"`
	DevlogsDays          int    `yaml:"devlogs_days"`
	SessionsDays         int    `yaml:"sessions_days"`
	ArchiveEnabled       bool   `yaml:"archive_enabled"`
	ArchiveDirectory     string `yaml:"archive_directory"`
	CleanupIntervalHours int    `yaml:"cleanup_interval_hours"`
	MaxCleanupMillis     int    `yaml:"max_cleanup_millis"`
}

// defaultPricing is the fallback $/Mtok estimate for models absent from
// both the per-model table and its "default" key.
var defaultPricing = ModelPricing{InputPerMtok: 3.0, OutputPerMtok: 15.0}

// Pricing resolves the $/Mtok table entry for model, falling back to a
// "default" key then to a hardcoded estimate.
func (c *Config) Pricing(model string) ModelPricing {
	if p, ok := c.Costs[model]; ok {
		return p
	}
	if p, ok := c.Costs["default"]; ok {
		return p
	}
	return defaultPricing
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default config if
// path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

// ApplyEnv overlays recognized DEVPULSE_* environment variables onto cfg,
// matching the override order documented in SPEC_FULL.md §10.2.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DEVPULSE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &c.Server.Port)
	}
	if v := os.Getenv("DEVPULSE_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DEVPULSE_ARCHIVE_DIR"); v != "" {
		c.Retention.ArchiveDirectory = v
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 4000,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultStateDir(), "devpulse", "devpulse.db"),
		},
		Conflict: ConflictConfig{
			WindowMinutes: 30,
		},
		Alert: AlertConfig{
			WindowMinutes:        10,
			ErrorRateThreshold:   0.3,
			ErrorRateMinSample:   10,
			ErrorRateCritical:    0.5,
			StuckAfterMinutes:    10,
			WaitingAfterMinutes:  5,
			CriticalAfterMinutes: 30,
		},
		Retention: RetentionConfig{
			EventsDays:           30,
			DevlogsDays:          90,
			SessionsDays:         30,
			ArchiveEnabled:       true,
			ArchiveDirectory:     filepath.Join(defaultStateDir(), "devpulse", "archive"),
			CleanupIntervalHours: 24,
			MaxCleanupMillis:     2000,
		},
		Costs: map[string]ModelPricing{
			"default": defaultPricing,
		},
	}
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "state")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "devpulse", "config.yaml")
}

// Diff compares two configs and returns human-readable descriptions of what
// changed, for the subset of sections that are safe to apply without a
// restart (alert thresholds, conflict window, retention, cost table). Server.Port and
// Store.Path require a restart and are intentionally excluded.
func Diff(old, new *Config) []string {
	var changes []string

	if old.Conflict.WindowMinutes != new.Conflict.WindowMinutes {
		changes = append(changes, fmt.Sprintf("conflict.window_minutes: %d -> %d", old.Conflict.WindowMinutes, new.Conflict.WindowMinutes))
	}
	if old.Alert != new.Alert {
		changes = append(changes, "alert: configuration changed")
	}
	if old.Retention != new.Retention {
		changes = append(changes, "retention: configuration changed")
	}
	for k, v := range new.Costs {
		if ov, ok := old.Costs[k]; !ok {
			changes = append(changes, fmt.Sprintf("costs: added %s", k))
		} else if ov != v {
			changes = append(changes, fmt.Sprintf("costs: %s changed", k))
		}
	}
	for k := range old.Costs {
		if _, ok := new.Costs[k]; !ok {
			changes = append(changes, fmt.Sprintf("costs: removed %s", k))
		}
	}

	return changes
}

// RetentionCleanupInterval returns the configured cleanup interval as a
// time.Duration.
func (c *Config) RetentionCleanupInterval() time.Duration {
	if c.Retention.CleanupIntervalHours <= 0 {
		return time.Hour
	}
	return time.Duration(c.Retention.CleanupIntervalHours) * time.Hour
}
