package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reelscout/internal/metrics"
)

// CompactResult reports how many rows a compaction pass removed.
type CompactResult struct {
	ExpiredEntries int64
	PurgedRuns     int64
}

// Compact deletes expired cache entries and terminal runs that finished
// before now-runRetention. A runRetention <= 0 keeps every run. Snapshots and
// matched movies are never compacted: stale data is still served to readers.
func (s *Store) Compact(ctx context.Context, runRetention time.Duration) (CompactResult, error) {
	now := s.clock()
	var result CompactResult

	res, err := s.execWithRetry(ctx,
		`DELETE FROM cache_entries
         WHERE ttl_seconds > 0 AND julianday(stored_at) + ttl_seconds / 86400.0 <= julianday(?)`,
		formatTime(now),
	)
	if err != nil {
		return result, fmt.Errorf("compact cache entries: %w", err)
	}
	result.ExpiredEntries, _ = res.RowsAffected()

	if runRetention > 0 {
		res, err = s.execWithRetry(ctx,
			`DELETE FROM sync_runs
             WHERE state IN ('COMPLETED', 'FAILED') AND finished_at IS NOT NULL AND finished_at < ?`,
			formatTime(now.Add(-runRetention)),
		)
		if err != nil {
			return result, fmt.Errorf("compact sync runs: %w", err)
		}
		result.PurgedRuns, _ = res.RowsAffected()
	}

	metrics.CacheCompactedRows.WithLabelValues("cache_entries").Add(float64(result.ExpiredEntries))
	metrics.CacheCompactedRows.WithLabelValues("sync_runs").Add(float64(result.PurgedRuns))
	return result, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Snapshots      int
	MatchedMovies  int
	RatedMovies    int
	MissingTitles  int
	Runs           int
	ActiveRuns     int
	CacheEntries   int
	ExpiredEntries int
	OldestSnapshot *time.Time
	NewestSnapshot *time.Time
}

// Stats returns row counts per table and the snapshot age range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	counts := []struct {
		query string
		dest  *int
		args  []any
	}{
		{query: `SELECT COUNT(1) FROM snapshots`, dest: &stats.Snapshots},
		{query: `SELECT COUNT(1) FROM matched_movies`, dest: &stats.MatchedMovies},
		{query: `SELECT COUNT(1) FROM matched_movies WHERE rating_value IS NOT NULL`, dest: &stats.RatedMovies},
		{query: `SELECT COUNT(1) FROM missing_titles`, dest: &stats.MissingTitles},
		{query: `SELECT COUNT(1) FROM sync_runs`, dest: &stats.Runs},
		{query: `SELECT COUNT(1) FROM sync_runs WHERE state NOT IN ('COMPLETED', 'FAILED')`, dest: &stats.ActiveRuns},
		{query: `SELECT COUNT(1) FROM cache_entries`, dest: &stats.CacheEntries},
		{
			query: `SELECT COUNT(1) FROM cache_entries
                    WHERE ttl_seconds > 0 AND julianday(stored_at) + ttl_seconds / 86400.0 <= julianday(?)`,
			dest: &stats.ExpiredEntries,
			args: []any{formatTime(s.clock())},
		},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("cache stats: %w", err)
		}
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(stored_at), MAX(stored_at) FROM snapshots`).Scan(&oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("snapshot age range: %w", err)
	}
	stats.OldestSnapshot = parseNullTime(oldest)
	stats.NewestSnapshot = parseNullTime(newest)
	return stats, nil
}
