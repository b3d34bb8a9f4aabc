package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSources()
	c.normalizePlatforms()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("REELSCOUT_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = value
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("REELSCOUT_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeSources() {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	c.Ratings.BaseURL = strings.TrimRight(strings.TrimSpace(c.Ratings.BaseURL), "/")
	if c.Ratings.BaseURL == "" {
		c.Ratings.BaseURL = defaultRatingsBaseURL
	}
	if value, ok := os.LookupEnv("REELSCOUT_RATINGS_USER_AGENT"); ok && strings.TrimSpace(value) != "" {
		c.Ratings.UserAgent = value
	}
	c.Ratings.UserAgent = strings.TrimSpace(c.Ratings.UserAgent)
	if c.Ratings.UserAgent == "" {
		c.Ratings.UserAgent = defaultRatingsUserAgent
	}
	c.Sync.ScheduleTime = strings.TrimSpace(c.Sync.ScheduleTime)
	if c.Sync.ScheduleTime == "" {
		c.Sync.ScheduleTime = defaultSyncScheduleTime
	}
}

func (c *Config) normalizePlatforms() {
	for i := range c.Platforms {
		p := &c.Platforms[i]
		p.Key = strings.ToLower(strings.TrimSpace(p.Key))
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = p.Key
		}
		p.Country = strings.ToUpper(strings.TrimSpace(p.Country))
		if p.Country == "" {
			p.Country = defaultCountry
		}
		p.Language = strings.ToLower(strings.TrimSpace(p.Language))
		if p.Language == "" {
			p.Language = defaultLanguage
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
