package testsupport

import (
	"path/filepath"
	"testing"

	"reelscout/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Pacing intervals are zeroed so tests never sleep on the rate floor.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Catalog.RequestIntervalMS = 0
	cfgVal.Catalog.MaxAttempts = 3
	cfgVal.Ratings.RequestIntervalMS = 0
	cfgVal.Ratings.MaxAttempts = 2
	cfgVal.Sync.ProgressIntervalSeconds = 0
	cfgVal.Sync.ScheduleEnabled = false
	cfgVal.Platforms = []config.Platform{{Key: "nfx", Name: "Netflix", Country: "US", Language: "en"}}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPlatforms replaces the configured platforms.
func WithPlatforms(platforms ...config.Platform) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Platforms = platforms
	}
}

// WithWorkers sets the enrichment worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.Workers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
