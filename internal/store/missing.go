package store

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
)

func replaceMissingTx(ctx context.Context, tx *sql.Tx, platformKey, runID string, missing []MissingTitle, positions map[string]int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM missing_titles WHERE platform_key = ?`, platformKey); err != nil {
		return fmt.Errorf("clear missing titles: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO missing_titles (platform_key, external_id, run_id, position, lookup_failed, record_json)
         VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare missing insert: %w", err)
	}
	defer stmt.Close()
	for _, item := range missing {
		rec := item.Record
		rec.PlatformKey = platformKey
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode missing record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			platformKey,
			rec.ExternalID,
			runID,
			positions[rec.ExternalID],
			boolToInt(item.LookupFailed),
			string(payload),
		); err != nil {
			return fmt.Errorf("insert missing title %s: %w", rec.ExternalID, err)
		}
	}
	return nil
}

// MissingTitles returns the titles the platform's last committed sync could
// not rate, in catalog order.
func (s *Store) MissingTitles(ctx context.Context, platformKey string) ([]MissingTitle, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, lookup_failed, record_json FROM missing_titles
         WHERE platform_key = ? ORDER BY position, external_id`,
		normalizeKey(platformKey),
	)
	if err != nil {
		return nil, fmt.Errorf("query missing titles: %w", err)
	}
	defer rows.Close()

	var missing []MissingTitle
	for rows.Next() {
		var (
			item    MissingTitle
			failed  int
			payload string
		)
		if err := rows.Scan(&item.RunID, &failed, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &item.Record); err != nil {
			return nil, fmt.Errorf("decode missing record: %w", err)
		}
		item.LookupFailed = failed != 0
		missing = append(missing, item)
	}
	return missing, rows.Err()
}
