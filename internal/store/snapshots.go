package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"reelscout/internal/catalog"
)

// GetSnapshot returns the stored snapshot for a platform, or nil when none
// exists. Stale snapshots are returned as well; callers decide via Fresh.
func (s *Store) GetSnapshot(ctx context.Context, platformKey string) (*SnapshotEntry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT platform_key, run_id, fetched_at, stored_at, ttl_seconds, records_json
         FROM snapshots WHERE platform_key = ?`,
		normalizeKey(platformKey),
	)
	entry, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PutSnapshot atomically replaces the platform snapshot.
func (s *Store) PutSnapshot(ctx context.Context, runID string, snapshot catalog.Snapshot, ttl time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.putSnapshotTx(ctx, tx, runID, snapshot, ttl)
	})
}

func (s *Store) putSnapshotTx(ctx context.Context, tx *sql.Tx, runID string, snapshot catalog.Snapshot, ttl time.Duration) error {
	key := normalizeKey(snapshot.PlatformKey)
	if key == "" {
		return errors.New("snapshot platform key is required")
	}
	records := snapshot.Records
	if records == nil {
		records = []catalog.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode snapshot records: %w", err)
	}
	fetchedAt := snapshot.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.clock()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (platform_key, run_id, fetched_at, stored_at, ttl_seconds, record_count, records_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(platform_key) DO UPDATE SET
            run_id = excluded.run_id,
            fetched_at = excluded.fetched_at,
            stored_at = excluded.stored_at,
            ttl_seconds = excluded.ttl_seconds,
            record_count = excluded.record_count,
            records_json = excluded.records_json`,
		key,
		nullableString(runID),
		formatTime(fetchedAt),
		formatTime(s.clock()),
		ttlSeconds(ttl),
		len(records),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// SnapshotSummary describes a stored snapshot without its records.
type SnapshotSummary struct {
	PlatformKey string
	FetchedAt   time.Time
	StoredAt    time.Time
	TTL         time.Duration
	RecordCount int
}

// Fresh reports whether the snapshot is still within its TTL at now.
func (s SnapshotSummary) Fresh(now time.Time) bool {
	return fresh(s.StoredAt, s.TTL, now)
}

// ListSnapshots returns per-platform snapshot metadata ordered by platform.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform_key, fetched_at, stored_at, ttl_seconds, record_count
         FROM snapshots ORDER BY platform_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SnapshotSummary
	for rows.Next() {
		summary, err := scanSnapshotSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func snapshotSummary(ctx context.Context, q queryer, platformKey string) (*SnapshotSummary, error) {
	row := q.QueryRowContext(ctx,
		`SELECT platform_key, fetched_at, stored_at, ttl_seconds, record_count
         FROM snapshots WHERE platform_key = ?`,
		normalizeKey(platformKey),
	)
	summary, err := scanSnapshotSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot summary: %w", err)
	}
	return &summary, nil
}

func scanSnapshotSummary(scanner interface{ Scan(dest ...any) error }) (SnapshotSummary, error) {
	var (
		summary   SnapshotSummary
		fetchedAt string
		storedAt  string
		ttl       int64
	)
	if err := scanner.Scan(&summary.PlatformKey, &fetchedAt, &storedAt, &ttl, &summary.RecordCount); err != nil {
		return SnapshotSummary{}, err
	}
	summary.FetchedAt, _ = parseTimeString(fetchedAt)
	summary.StoredAt, _ = parseTimeString(storedAt)
	summary.TTL = time.Duration(ttl) * time.Second
	return summary, nil
}

func scanSnapshot(scanner interface{ Scan(dest ...any) error }) (*SnapshotEntry, error) {
	var (
		entry     SnapshotEntry
		runID     sql.NullString
		fetchedAt string
		storedAt  string
		ttl       int64
		payload   string
	)
	if err := scanner.Scan(&entry.PlatformKey, &runID, &fetchedAt, &storedAt, &ttl, &payload); err != nil {
		return nil, err
	}
	if runID.Valid {
		entry.RunID = runID.String
	}
	var err error
	if entry.FetchedAt, err = parseTimeString(fetchedAt); err != nil {
		return nil, fmt.Errorf("parse snapshot fetched_at: %w", err)
	}
	if entry.StoredAt, err = parseTimeString(storedAt); err != nil {
		return nil, fmt.Errorf("parse snapshot stored_at: %w", err)
	}
	entry.TTL = time.Duration(ttl) * time.Second
	if err := json.Unmarshal([]byte(payload), &entry.Records); err != nil {
		return nil, fmt.Errorf("decode snapshot records: %w", err)
	}
	return &entry, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
