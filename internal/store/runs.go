package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const runColumns = `run_id, platform_key, state, trigger, started_at, updated_at, finished_at,
    pages_fetched, fetched_count, added_count, removed_count, retained_count,
    enrich_total, enriched_count, missing_count, failed_count, last_error`

// CreateRun inserts a new run. ErrAlreadyRunning is returned when the
// platform already has a non-terminal run.
func (s *Store) CreateRun(ctx context.Context, run *SyncRun) error {
	if run == nil || strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	run.PlatformKey = normalizeKey(run.PlatformKey)
	if run.State == "" {
		run.State = RunPending
	}
	if run.Trigger == "" {
		run.Trigger = TriggerManual
	}
	now := s.clock()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now

	_, err := s.execWithRetry(ctx,
		`INSERT INTO sync_runs (`+runColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.PlatformKey,
		string(run.State),
		run.Trigger,
		formatTime(run.StartedAt),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
		run.PagesFetched,
		run.FetchedCount,
		run.AddedCount,
		run.RemovedCount,
		run.RetainedCount,
		run.EnrichTotal,
		run.EnrichedCount,
		run.MissingCount,
		run.LookupFailures,
		nullableString(run.LastError),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, run.PlatformKey)
		}
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// UpdateRun persists the run's state and counters.
func (s *Store) UpdateRun(ctx context.Context, run *SyncRun) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = s.clock()
	res, err := s.execWithRetry(ctx, updateRunSQL, updateRunArgs(run)...)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.RunID)
	}
	return nil
}

const updateRunSQL = `UPDATE sync_runs SET
    state = ?, updated_at = ?, finished_at = ?,
    pages_fetched = ?, fetched_count = ?, added_count = ?, removed_count = ?, retained_count = ?,
    enrich_total = ?, enriched_count = ?, missing_count = ?, failed_count = ?, last_error = ?
    WHERE run_id = ?`

func updateRunArgs(run *SyncRun) []any {
	return []any{
		string(run.State),
		formatTime(run.UpdatedAt),
		nullableTime(run.FinishedAt),
		run.PagesFetched,
		run.FetchedCount,
		run.AddedCount,
		run.RemovedCount,
		run.RetainedCount,
		run.EnrichTotal,
		run.EnrichedCount,
		run.MissingCount,
		run.LookupFailures,
		nullableString(run.LastError),
		run.RunID,
	}
}

// GetRun fetches a run by id, returning nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*SyncRun, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ActiveRun returns the platform's non-terminal run, if any.
func (s *Store) ActiveRun(ctx context.Context, platformKey string) (*SyncRun, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs
         WHERE platform_key = ? AND state NOT IN ('COMPLETED', 'FAILED')`,
		normalizeKey(platformKey),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// LatestRun returns the most recently started run for a platform.
func (s *Store) LatestRun(ctx context.Context, platformKey string) (*SyncRun, error) {
	runs, err := s.ListRuns(ctx, platformKey, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns runs newest first. An empty platform lists every platform;
// limit <= 0 returns all rows.
func (s *Store) ListRuns(ctx context.Context, platformKey string, limit int) ([]*SyncRun, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM sync_runs`
	var args []any
	if key := normalizeKey(platformKey); key != "" {
		query += ` WHERE platform_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FailInterruptedRuns marks every non-terminal run FAILED. It is called at
// daemon startup: a run left in flight by a previous process cannot resume.
func (s *Store) FailInterruptedRuns(ctx context.Context, reason string) (int64, error) {
	now := formatTime(s.clock())
	res, err := s.execWithRetry(ctx,
		`UPDATE sync_runs SET state = ?, last_error = ?, updated_at = ?, finished_at = ?
         WHERE state NOT IN ('COMPLETED', 'FAILED')`,
		string(RunFailed), reason, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*SyncRun, error) {
	var (
		run        SyncRun
		state      string
		startedAt  string
		updatedAt  string
		finishedAt sql.NullString
		lastError  sql.NullString
	)
	if err := scanner.Scan(
		&run.RunID,
		&run.PlatformKey,
		&state,
		&run.Trigger,
		&startedAt,
		&updatedAt,
		&finishedAt,
		&run.PagesFetched,
		&run.FetchedCount,
		&run.AddedCount,
		&run.RemovedCount,
		&run.RetainedCount,
		&run.EnrichTotal,
		&run.EnrichedCount,
		&run.MissingCount,
		&run.LookupFailures,
		&lastError,
	); err != nil {
		return nil, err
	}
	run.State = RunState(state)
	var err error
	if run.StartedAt, err = parseTimeString(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at for run %s: %w", run.RunID, err)
	}
	if run.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for run %s: %w", run.RunID, err)
	}
	run.FinishedAt = parseNullTime(finishedAt)
	run.LastError = lastError.String
	return &run, nil
}
