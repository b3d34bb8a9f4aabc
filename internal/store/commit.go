package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"reelscout/internal/metrics"
)

// CommitSync persists the outcome of a successful sync in one transaction:
// the new snapshot, the full matched-movie set (rows absent from the snapshot
// are deleted), the missing list, and the run's final state. Either all of it
// becomes visible or none of it does.
func (s *Store) CommitSync(ctx context.Context, commit Commit) error {
	if commit.Run == nil {
		return errors.New("commit requires a run")
	}
	key := normalizeKey(commit.Snapshot.PlatformKey)
	if key == "" {
		return errors.New("commit requires a platform key")
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(commit); err != nil {
			return fmt.Errorf("commit sync: %w", err)
		}
	}
	start := time.Now()
	defer func() {
		metrics.CacheCommitDuration.Observe(time.Since(start).Seconds())
	}()

	ids := commit.Snapshot.IDs()
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode snapshot ids: %w", err)
	}
	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		positions[id] = i
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.putSnapshotTx(ctx, tx, commit.Run.RunID, commit.Snapshot, commit.SnapshotTTL); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM matched_movies
             WHERE platform_key = ? AND external_id NOT IN (SELECT value FROM json_each(?))`,
			key, string(idsJSON),
		); err != nil {
			return fmt.Errorf("delete removed movies: %w", err)
		}

		stmt, err := prepareMovieUpsert(ctx, tx)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, movie := range commit.Movies {
			pos, ok := positions[movie.Record.ExternalID]
			if !ok {
				return fmt.Errorf("matched movie %s is not in the snapshot", movie.Record.ExternalID)
			}
			movie.Record.PlatformKey = key
			if err := s.upsertMovie(ctx, stmt, movie, pos, commit.MovieTTL); err != nil {
				return err
			}
		}

		if err := replaceMissingTx(ctx, tx, key, commit.Run.RunID, commit.Missing, positions); err != nil {
			return err
		}

		commit.Run.UpdatedAt = s.clock()
		res, err := tx.ExecContext(ctx, updateRunSQL, updateRunArgs(commit.Run)...)
		if err != nil {
			return fmt.Errorf("finalize run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, commit.Run.RunID)
		}
		return nil
	})
}
