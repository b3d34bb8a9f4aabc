package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reelscout/internal/metrics"
)

// PutEntry stores value under key with the given ttl, replacing any previous value.
func (s *Store) PutEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO cache_entries (key, value, stored_at, ttl_seconds) VALUES (?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at,
            ttl_seconds = excluded.ttl_seconds`,
		key, value, formatTime(s.clock()), ttlSeconds(ttl),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetEntry returns the entry for key, or nil when it is absent or expired.
// Expired entries are evicted on read.
func (s *Store) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	ctx = ensureContext(ctx)
	var (
		entry    CacheEntry
		storedAt string
		ttl      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, stored_at, ttl_seconds FROM cache_entries WHERE key = ?`, key,
	).Scan(&entry.Key, &entry.Value, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if entry.StoredAt, err = parseTimeString(storedAt); err != nil {
		return nil, fmt.Errorf("parse cache entry stored_at: %w", err)
	}
	entry.TTL = time.Duration(ttl) * time.Second
	if !entry.Fresh(s.clock()) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		if err := s.DeleteEntry(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &entry, nil
}

// DeleteEntry removes key. Deleting an absent key is not an error.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}
