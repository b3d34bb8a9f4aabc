package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on API requests.
	APIToken string `toml:"api_token"`
}

// Catalog configures the streaming catalog source.
type Catalog struct {
	BaseURL           string `toml:"base_url"`
	PageSize          int    `toml:"page_size"`
	RequestIntervalMS int    `toml:"request_interval_ms"`
	MaxAttempts       int    `toml:"max_attempts"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Ratings configures the rating/metadata source.
type Ratings struct {
	BaseURL           string `toml:"base_url"`
	UserAgent         string `toml:"user_agent"`
	RequestIntervalMS int    `toml:"request_interval_ms"`
	// MaxConcurrent bounds in-flight requests to the source across all
	// enrichment workers.
	MaxConcurrent  int `toml:"max_concurrent"`
	MaxAttempts    int `toml:"max_attempts"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Sync contains orchestrator and scheduler settings.
type Sync struct {
	Workers                 int    `toml:"workers"`
	ScheduleEnabled         bool   `toml:"schedule_enabled"`
	ScheduleTime            string `toml:"schedule_time"` // HH:MM, local time
	ProgressIntervalSeconds int    `toml:"progress_interval_seconds"`
	CommitAttempts          int    `toml:"commit_attempts"`
}

// Cache contains TTL and retention settings for the cache store.
type Cache struct {
	LookupTTLHours            int `toml:"lookup_ttl_hours"`
	SnapshotTTLHours          int `toml:"snapshot_ttl_hours"`
	RunRetentionDays          int `toml:"run_retention_days"`
	CompactionIntervalMinutes int `toml:"compaction_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Platform names one streaming service catalog to reconcile.
type Platform struct {
	Key      string `toml:"key"`
	Name     string `toml:"name"`
	Country  string `toml:"country"`
	Language string `toml:"language"`
}

// Config encapsulates all configuration values for reelscout.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Catalog: catalog source endpoint, page size and pacing
//   - Ratings: rating source endpoint, pacing and concurrency ceiling
//   - Sync: enrichment workers, daily schedule, commit retries
//   - Cache: lookup/snapshot TTLs and maintenance cadence
//   - Logging: log format and level
//   - Platforms: catalogs to reconcile
type Config struct {
	Paths     Paths      `toml:"paths"`
	Catalog   Catalog    `toml:"catalog"`
	Ratings   Ratings    `toml:"ratings"`
	Sync      Sync       `toml:"sync"`
	Cache     Cache      `toml:"cache"`
	Logging   Logging    `toml:"logging"`
	Platforms []Platform `toml:"platforms"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelscout/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// Array tables append to a pre-populated slice; start empty so a file
		// listing platforms replaces the default instead of extending it.
		defaults := cfg.Platforms
		cfg.Platforms = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Platforms) == 0 {
			cfg.Platforms = defaults
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelscout.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite cache database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "reelscout.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reelscoutd.lock")
}

// Platform returns the configured platform with the given key.
func (c *Config) Platform(key string) (Platform, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range c.Platforms {
		if p.Key == key {
			return p, true
		}
	}
	return Platform{}, false
}

// CatalogInterval is the enforced floor between catalog page requests.
func (c *Config) CatalogInterval() time.Duration {
	return time.Duration(c.Catalog.RequestIntervalMS) * time.Millisecond
}

// RatingsInterval is the enforced floor between rating source requests.
func (c *Config) RatingsInterval() time.Duration {
	return time.Duration(c.Ratings.RequestIntervalMS) * time.Millisecond
}

// LookupTTL is the lifetime of cached on-demand rating lookups.
func (c *Config) LookupTTL() time.Duration {
	return time.Duration(c.Cache.LookupTTLHours) * time.Hour
}

// SnapshotTTL is the lifetime of a full-catalog snapshot and its matched movies.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Cache.SnapshotTTLHours) * time.Hour
}

// RunRetention is how long terminal sync runs are kept before compaction.
func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.Cache.RunRetentionDays) * 24 * time.Hour
}

// CompactionInterval is the cadence of the optional maintenance pass.
func (c *Config) CompactionInterval() time.Duration {
	return time.Duration(c.Cache.CompactionIntervalMinutes) * time.Minute
}

// ProgressInterval throttles how often a running sync persists its counters.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Sync.ProgressIntervalSeconds) * time.Second
}

// ScheduleClock returns the parsed daily sync hour and minute.
func (c *Config) ScheduleClock() (int, int, error) {
	return parseClock(c.Sync.ScheduleTime)
}

func parseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q (want HH:MM): %w", value, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
