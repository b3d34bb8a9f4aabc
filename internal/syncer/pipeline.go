package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/fetcher"
	"reelscout/internal/logging"
	"reelscout/internal/metrics"
	"reelscout/internal/ratelimit"
	"reelscout/internal/sources"
	"reelscout/internal/store"
)

func (o *Orchestrator) pipeline(ctx context.Context, platform config.Platform, t *tracker, logger *slog.Logger) error {
	// FETCHING
	t.transition(ctx, store.RunFetching)
	pager := o.fetcher.Fetch(platform.Key, platform.Country, platform.Language)
	current, err := fetcher.Collect(ctx, pager, func(p fetcher.Progress) {
		t.update(ctx, func(run *store.SyncRun) {
			run.PagesFetched = p.Pages
			run.FetchedCount = p.Records
		})
	})
	if err != nil {
		return err
	}
	logger.Info("catalog fetched",
		logging.Int("pages", pager.Pages()),
		logging.Int("records", len(current.Records)),
		logging.Int("duplicates", pager.Duplicates()),
	)

	// DIFFING
	t.transition(ctx, store.RunDiffing)
	previous, err := o.previousSnapshot(ctx, platform.Key, logger)
	if err != nil {
		return err
	}
	diff := catalog.Compute(previous, current)
	index, err := o.store.MatchedMovieIndex(ctx, platform.Key)
	if err != nil {
		return fmt.Errorf("load matched movies: %w", err)
	}
	work := workSet(diff, index)
	t.update(ctx, func(run *store.SyncRun) {
		run.AddedCount = len(diff.Added)
		run.RemovedCount = len(diff.Removed)
		run.RetainedCount = len(diff.Retained)
		run.EnrichTotal = len(work)
	})
	metrics.SyncDiffTitles.WithLabelValues(platform.Key, "added").Set(float64(len(diff.Added)))
	metrics.SyncDiffTitles.WithLabelValues(platform.Key, "removed").Set(float64(len(diff.Removed)))
	metrics.SyncDiffTitles.WithLabelValues(platform.Key, "retained").Set(float64(len(diff.Retained)))
	logger.Info("catalog diff computed",
		logging.Int("added", len(diff.Added)),
		logging.Int("removed", len(diff.Removed)),
		logging.Int("retained", len(diff.Retained)),
		logging.Int("to_enrich", len(work)),
	)

	// ENRICHING
	t.transition(ctx, store.RunEnriching)
	enriched, err := o.enrich(ctx, work, t, logger)
	if err != nil {
		return err
	}

	// PERSISTING
	if err := ctx.Err(); err != nil {
		return err
	}
	t.transition(ctx, store.RunPersisting)
	movies, missing := assemble(diff.Current(), index, enriched)
	now := time.Now().UTC()
	final := t.snapshot()
	final.State = store.RunCompleted
	final.FinishedAt = &now
	final.LastError = ""

	commit := store.Commit{
		Snapshot:    current,
		SnapshotTTL: o.cfg.SnapshotTTL(),
		Movies:      movies,
		MovieTTL:    o.cfg.SnapshotTTL(),
		Missing:     missing,
		Run:         &final,
	}
	if err := o.commit(ctx, commit, logger); err != nil {
		return err
	}
	t.settle(final)

	metrics.CatalogSize.WithLabelValues(platform.Key).Set(float64(len(current.Records)))
	metrics.MissingTitles.WithLabelValues(platform.Key).Set(float64(len(missing)))
	logger.Info("sync completed",
		logging.String(logging.FieldState, string(store.RunCompleted)),
		logging.Int("titles", len(movies)),
		logging.Int("enriched", final.EnrichedCount),
		logging.Int("missing", final.MissingCount),
		logging.Int("lookup_failures", final.LookupFailures),
	)
	return nil
}

// previousSnapshot returns the stored snapshot when it is still fresh. A
// stale snapshot does not qualify as a diff baseline.
func (o *Orchestrator) previousSnapshot(ctx context.Context, platformKey string, logger *slog.Logger) (*catalog.Snapshot, error) {
	entry, err := o.store.GetSnapshot(ctx, platformKey)
	if err != nil {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	if !entry.Fresh(time.Now()) {
		logger.Info("previous snapshot expired; diffing against an empty catalog",
			logging.Time("stored_at", entry.StoredAt),
			logging.Duration("ttl", entry.TTL),
		)
		return nil, nil
	}
	return &entry.Snapshot, nil
}

// workSet lists the records to enrich: every added record, plus retained
// records with no usable matched row.
func workSet(diff catalog.Diff, index map[string]catalog.MatchedMovie) []catalog.Record {
	work := make([]catalog.Record, 0, len(diff.Added))
	work = append(work, diff.Added...)
	for _, rec := range diff.Retained {
		movie, ok := index[rec.ExternalID]
		if !ok || movie.LookupFailed {
			work = append(work, rec)
		}
	}
	return work
}

func (o *Orchestrator) enrich(ctx context.Context, work []catalog.Record, t *tracker, logger *slog.Logger) (map[string]catalog.MatchedMovie, error) {
	results := make(map[string]catalog.MatchedMovie, len(work))
	if len(work) == 0 {
		return results, nil
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Sync.Workers, 1))
	for _, rec := range work {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			movie, err := o.enricher.Enrich(gctx, rec)
			var failure *sources.RatingLookupFailure
			switch {
			case err == nil:
			case errors.As(err, &failure):
				logging.WarnWithContext(logger, "rating lookup failed", "rating_lookup_failed",
					logging.String("external_id", rec.ExternalID),
					logging.String("title", rec.Title),
					logging.Bool("transient", failure.Transient()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "title is listed as missing and retried next sync"),
				)
				movie = failedMovie(rec, movie)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				logging.WarnWithContext(logger, "enrichment error", "enrichment_error",
					logging.String("external_id", rec.ExternalID),
					logging.Error(err),
					logging.String(logging.FieldImpact, "title is listed as missing and retried next sync"),
				)
				movie = failedMovie(rec, movie)
			}

			mu.Lock()
			results[rec.ExternalID] = movie
			mu.Unlock()
			t.update(gctx, func(run *store.SyncRun) {
				run.EnrichedCount++
				if movie.LookupFailed {
					run.LookupFailures++
				}
				if movie.Normalize().Missing() {
					run.MissingCount++
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func failedMovie(rec catalog.Record, movie catalog.MatchedMovie) catalog.MatchedMovie {
	movie.Record = rec
	movie.Rating = nil
	movie.Confidence = catalog.ConfidenceNone
	movie.LookupFailed = true
	if movie.LastEnrichedAt.IsZero() {
		movie.LastEnrichedAt = time.Now().UTC()
	}
	return movie
}

// assemble builds the committed movie set in snapshot order. Retained titles
// keep their previous match with the latest catalog fields. The missing list
// covers only titles enriched by this run, so it always has MissingCount
// entries; unrated titles carried forward from earlier runs are not repeated.
func assemble(current []catalog.Record, index, enriched map[string]catalog.MatchedMovie) ([]catalog.MatchedMovie, []store.MissingTitle) {
	movies := make([]catalog.MatchedMovie, 0, len(current))
	var missing []store.MissingTitle
	for _, rec := range current {
		movie, fresh := enriched[rec.ExternalID]
		if !fresh {
			movie = index[rec.ExternalID]
		}
		movie.Record = rec
		movie = movie.Normalize()
		movies = append(movies, movie)
		if fresh && movie.Missing() {
			missing = append(missing, store.MissingTitle{Record: rec, LookupFailed: movie.LookupFailed})
		}
	}
	return movies, missing
}

func (o *Orchestrator) commit(ctx context.Context, commit store.Commit, logger *slog.Logger) error {
	attempts := max(o.cfg.Sync.CommitAttempts, 1)
	policy := ratelimit.Policy{MaxAttempts: attempts, InitialBackoff: 250 * time.Millisecond, MaxBackoff: 5 * time.Second}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = o.store.CommitSync(ctx, commit); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}
		logger.Warn("sync commit failed; retrying",
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldEventType, "sync_commit_retry"),
			logging.String(logging.FieldErrorHint, "database busy or disk full"),
			logging.String(logging.FieldImpact, "commit retried; previous snapshot still served"),
		)
		if sleepErr := ratelimit.SleepWithContext(ctx, policy.Backoff(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return &CacheWriteFailure{RunID: commit.Run.RunID, Attempts: attempts, Err: err}
}
