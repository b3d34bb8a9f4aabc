package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validatePlatforms()
}

func (c *Config) validateSources() error {
	for name, raw := range map[string]string{
		"catalog.base_url": c.Catalog.BaseURL,
		"ratings.base_url": c.Ratings.BaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"catalog.page_size":       c.Catalog.PageSize,
		"catalog.max_attempts":    c.Catalog.MaxAttempts,
		"catalog.timeout_seconds": c.Catalog.TimeoutSeconds,
		"ratings.max_concurrent":  c.Ratings.MaxConcurrent,
		"ratings.max_attempts":    c.Ratings.MaxAttempts,
		"ratings.timeout_seconds": c.Ratings.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Catalog.RequestIntervalMS < 0 {
		return errors.New("catalog.request_interval_ms must not be negative")
	}
	if c.Ratings.RequestIntervalMS < 0 {
		return errors.New("ratings.request_interval_ms must not be negative")
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.workers":                   c.Sync.Workers,
		"sync.progress_interval_seconds": c.Sync.ProgressIntervalSeconds,
		"sync.commit_attempts":           c.Sync.CommitAttempts,
	}); err != nil {
		return err
	}
	if _, _, err := parseClock(c.Sync.ScheduleTime); err != nil {
		return fmt.Errorf("sync.schedule_time: %w", err)
	}
	return nil
}

func (c *Config) validateCache() error {
	return ensurePositiveMap(map[string]int{
		"cache.lookup_ttl_hours":            c.Cache.LookupTTLHours,
		"cache.snapshot_ttl_hours":          c.Cache.SnapshotTTLHours,
		"cache.run_retention_days":          c.Cache.RunRetentionDays,
		"cache.compaction_interval_minutes": c.Cache.CompactionIntervalMinutes,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	if len(c.Platforms) == 0 {
		return errors.New("at least one [[platforms]] entry is required")
	}
	seen := make(map[string]struct{}, len(c.Platforms))
	for i, p := range c.Platforms {
		if p.Key == "" {
			return fmt.Errorf("platforms[%d].key must be set", i)
		}
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("platforms[%d].key %q is duplicated", i, p.Key)
		}
		seen[p.Key] = struct{}{}
		if len(p.Country) != 2 {
			return fmt.Errorf("platforms[%d].country must be a two-letter code, got %q", i, p.Country)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
