package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/store"
)

// compactor periodically expires cache entries, purges old runs, and prunes
// rotated log files.
type compactor struct {
	cfg      *config.Config
	store    *store.Store
	interval time.Duration
	logger   *slog.Logger
}

func newCompactor(cfg *config.Config, st *store.Store, interval time.Duration, logger *slog.Logger) *compactor {
	return &compactor{
		cfg:      cfg,
		store:    st,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "compactor"),
	}
}

func (c *compactor) String() string { return "cache-compactor" }

// Serve runs one pass immediately and then every interval.
func (c *compactor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.runOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *compactor) runOnce(ctx context.Context) {
	result, err := c.store.Compact(ctx, c.cfg.RunRetention())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(c.logger, "cache compaction failed", "cache_compaction",
			logging.Error(err),
			logging.String(logging.FieldImpact, "expired entries remain until the next pass"),
		)
		return
	}
	if result.ExpiredEntries > 0 || result.PurgedRuns > 0 {
		c.logger.Info("cache compacted",
			logging.Int64("expired_entries", result.ExpiredEntries),
			logging.Int64("purged_runs", result.PurgedRuns),
		)
	}

	if retention := c.cfg.RunRetention(); retention > 0 && c.cfg.Paths.LogDir != "" {
		logging.CleanupOldLogs(c.logger, time.Now().Add(-retention), logging.RetentionTarget{
			Dir:     c.cfg.Paths.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(c.cfg.Paths.LogDir, logging.LogFileName)},
		})
	}
}
