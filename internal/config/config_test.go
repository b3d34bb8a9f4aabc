package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelscout/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "reelscout")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "reelscout.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LookupTTL() != 24*time.Hour {
		t.Fatalf("expected 24h lookup ttl, got %s", cfg.LookupTTL())
	}
	if cfg.SnapshotTTL() != 48*time.Hour {
		t.Fatalf("expected 48h snapshot ttl, got %s", cfg.SnapshotTTL())
	}
	if _, ok := cfg.Platform("NFX"); !ok {
		t.Fatal("expected default netflix platform")
	}
}

func TestLoadCustomConfigNormalizesPlatforms(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "reelscout.toml")

	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[logging]
format = "JSON"
level = "DEBUG"

[[platforms]]
key = " AMP "
country = "gb"

[[platforms]]
key = "nfx"
name = "Netflix"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config file to be read from %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging to be lower-cased, got %+v", cfg.Logging)
	}
	amp, ok := cfg.Platform("amp")
	if !ok {
		t.Fatal("expected amp platform")
	}
	if amp.Country != "GB" || amp.Language != "en" || amp.Name != "amp" {
		t.Fatalf("unexpected normalized platform: %+v", amp)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	override := t.TempDir()
	t.Setenv("REELSCOUT_DATA_DIR", override)

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.DataDir != override {
		t.Fatalf("expected env data dir %q, got %q", override, cfg.Paths.DataDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no platforms", func(c *config.Config) { c.Platforms = nil }, "platforms"},
		{"duplicate platform", func(c *config.Config) {
			c.Platforms = append(c.Platforms, c.Platforms[0])
		}, "duplicated"},
		{"workers", func(c *config.Config) { c.Sync.Workers = 0 }, "sync.workers"},
		{"schedule", func(c *config.Config) { c.Sync.ScheduleTime = "25:99" }, "sync.schedule_time"},
		{"ratings url", func(c *config.Config) { c.Ratings.BaseURL = "letterboxd" }, "ratings.base_url"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"interval", func(c *config.Config) { c.Catalog.RequestIntervalMS = -1 }, "catalog.request_interval_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if len(decoded.Platforms) != 1 || decoded.Platforms[0].Key != "nfx" {
		t.Fatalf("unexpected sample platforms: %+v", decoded.Platforms)
	}
	if decoded.Sync.ScheduleTime != "02:00" {
		t.Fatalf("unexpected sample schedule: %q", decoded.Sync.ScheduleTime)
	}
}

func TestScheduleClock(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.ScheduleTime = "03:45"
	hour, minute, err := cfg.ScheduleClock()
	if err != nil {
		t.Fatalf("ScheduleClock returned error: %v", err)
	}
	if hour != 3 || minute != 45 {
		t.Fatalf("unexpected clock %02d:%02d", hour, minute)
	}
}
