package syncer_test

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/enricher"
	"reelscout/internal/fetcher"
	"reelscout/internal/logging"
	"reelscout/internal/ratelimit"
	"reelscout/internal/services"
	"reelscout/internal/store"
	"reelscout/internal/syncer"
	"reelscout/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	store   *store.Store
	catalog *testsupport.FakeCatalog
	ratings *testsupport.FakeRatings
	orch    *syncer.Orchestrator
}

func newHarness(t *testing.T, records []catalog.Record, opts ...store.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	st := testsupport.MustOpenStore(t, cfg, opts...)
	h := &harness{
		cfg:     cfg,
		store:   st,
		catalog: &testsupport.FakeCatalog{Pages: paginate(records, 2)},
		ratings: &testsupport.FakeRatings{
			ByID: map[string]catalog.Rating{
				"tt1375666": {IMDbID: "tt1375666", Title: "Inception", Year: 2010, Value: 4.22},
			},
			ByTitle: map[string][]catalog.Rating{
				"the matrix": {
					{Title: "The Matrix", Year: 1999, Value: 4.1},
					{Title: "The Matrix", Year: 2021, Value: 2.9},
				},
				"heat":   {{Title: "Heat", Year: 1995, Value: 4.0}},
				"amelie": {{Title: "Amélie", Year: 2001, Value: 4.0}},
			},
			Errors: map[string]error{},
		},
	}
	nop := logging.NewNop()
	f := fetcher.New(h.catalog, fetcher.Options{
		Policy:  ratelimit.Policy{MaxAttempts: 1},
		Breaker: ratelimit.BreakerSettings{ConsecutiveFailures: 100},
	}, nop)
	e := enricher.New(h.ratings, enricher.Options{
		MaxConcurrent: 2,
		Policy:        ratelimit.Policy{MaxAttempts: 1},
		Breaker:       ratelimit.BreakerSettings{ConsecutiveFailures: 100},
	}, nop)
	h.orch = syncer.New(cfg, st, f, e, nop)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.orch.Shutdown(ctx)
	})
	return h
}

func paginate(records []catalog.Record, size int) [][]catalog.Record {
	var pages [][]catalog.Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		pages = append(pages, records[start:end])
	}
	return pages
}

func (h *harness) setCatalog(records ...catalog.Record) {
	h.catalog.Pages = paginate(records, 2)
}

var (
	inception = testsupport.Movie("nfx", "inception", "Inception", 2010, "tt1375666", "Sci-Fi")
	matrix    = testsupport.Movie("nfx", "matrix", "The Matrix", 1999, "", "Action")
	obscure   = testsupport.Movie("nfx", "obscure", "Obscure Film", 2020, "")
	heat      = testsupport.Movie("nfx", "heat", "Heat", 1995, "", "Crime")
	amelie    = testsupport.Movie("nfx", "amelie", "Amelie", 2001, "", "Comedy")
)

func assertPersistedEqualsSnapshot(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	entry, err := h.store.GetSnapshot(ctx, "nfx")
	if err != nil || entry == nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	index, err := h.store.MatchedMovieIndex(ctx, "nfx")
	if err != nil {
		t.Fatalf("MatchedMovieIndex failed: %v", err)
	}
	ids := entry.IDs()
	if len(index) != len(ids) {
		t.Fatalf("persisted %d movies for a %d-title snapshot", len(index), len(ids))
	}
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			t.Fatalf("snapshot title %s missing from matched movies", id)
		}
	}
}

func TestRunSyncFirstRunEnrichesEverything(t *testing.T) {
	h := newHarness(t, []catalog.Record{inception, matrix, obscure})
	ctx := context.Background()

	run, err := h.orch.RunSync(ctx, "NFX", store.TriggerManual)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if run.State != store.RunCompleted || run.FinishedAt == nil {
		t.Fatalf("unexpected final run %#v", run)
	}
	if run.PagesFetched != 2 || run.FetchedCount != 3 || run.AddedCount != 3 || run.RemovedCount != 0 {
		t.Fatalf("unexpected counters %#v", run)
	}
	if run.EnrichedCount != 3 || run.MissingCount != 1 || run.LookupFailures != 0 {
		t.Fatalf("unexpected enrichment counters %#v", run)
	}
	assertPersistedEqualsSnapshot(t, h)

	index, _ := h.store.MatchedMovieIndex(ctx, "nfx")
	if index["inception"].Confidence != catalog.ConfidenceExactID || index["inception"].Rating.Value != 4.22 {
		t.Fatalf("unexpected inception match %#v", index["inception"])
	}
	if index["matrix"].Confidence != catalog.ConfidenceTitleYear || index["matrix"].Rating.Year != 1999 {
		t.Fatalf("unexpected matrix match %#v", index["matrix"])
	}
	missing, err := h.orch.GetMissingTitles(ctx, "nfx")
	if err != nil {
		t.Fatalf("GetMissingTitles failed: %v", err)
	}
	if len(missing) != 1 || missing[0].Record.ExternalID != "obscure" || missing[0].LookupFailed {
		t.Fatalf("unexpected missing list %#v", missing)
	}

	stored, _ := h.store.GetRun(ctx, run.RunID)
	if stored.State != store.RunCompleted || stored.EnrichedCount != 3 {
		t.Fatalf("final run not persisted: %#v", stored)
	}
}

func TestSecondRunEnrichesOnlyTheDelta(t *testing.T) {
	h := newHarness(t, []catalog.Record{inception, matrix})
	ctx := context.Background()
	if _, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual); err != nil {
		t.Fatalf("first RunSync failed: %v", err)
	}
	before := h.ratings.TotalCalls()

	h.setCatalog(matrix, heat)
	run, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("second RunSync failed: %v", err)
	}
	if run.AddedCount != 1 || run.RemovedCount != 1 || run.RetainedCount != 1 || run.EnrichTotal != 1 {
		t.Fatalf("unexpected diff counters %#v", run)
	}
	if calls := h.ratings.TotalCalls() - before; calls != 1 {
		t.Fatalf("expected exactly one lookup for the added title, got %d", calls)
	}
	assertPersistedEqualsSnapshot(t, h)

	index, _ := h.store.MatchedMovieIndex(ctx, "nfx")
	if _, ok := index["inception"]; ok {
		t.Fatal("removed title must not be queryable")
	}
	if index["matrix"].Rating == nil || index["matrix"].Rating.Value != 4.1 {
		t.Fatalf("retained title lost its match: %#v", index["matrix"])
	}
}

func TestLookupFailureIsPerTitleAndRetried(t *testing.T) {
	h := newHarness(t, []catalog.Record{matrix, heat})
	h.ratings.Errors["heat"] = services.Wrap(services.ErrPermanent, "ratings", "film", "markup changed", nil)
	ctx := context.Background()

	run, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if run.State != store.RunCompleted || run.LookupFailures != 1 || run.MissingCount != 1 {
		t.Fatalf("lookup failure must not abort the run: %#v", run)
	}
	assertPersistedEqualsSnapshot(t, h)
	missing, _ := h.store.MissingTitles(ctx, "nfx")
	if len(missing) != 1 || missing[0].Record.ExternalID != "heat" || !missing[0].LookupFailed {
		t.Fatalf("unexpected missing list %#v", missing)
	}

	delete(h.ratings.Errors, "heat")
	run, err = h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("second RunSync failed: %v", err)
	}
	if run.RetainedCount != 2 || run.EnrichTotal != 1 || run.MissingCount != 0 {
		t.Fatalf("failed title should be retried as retained work: %#v", run)
	}
	index, _ := h.store.MatchedMovieIndex(ctx, "nfx")
	if index["heat"].LookupFailed || index["heat"].Confidence != catalog.ConfidenceTitleYear {
		t.Fatalf("retry did not resolve heat: %#v", index["heat"])
	}
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t, []catalog.Record{inception, matrix})
	ctx := context.Background()
	first, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("first RunSync failed: %v", err)
	}

	h.setCatalog(heat, amelie, obscure)
	h.catalog.Failures = map[int][]error{
		1: {services.Wrap(services.ErrPermanent, "catalog", "decode", "bad page", nil)},
	}
	run, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err == nil {
		t.Fatal("expected fetch failure")
	}
	if run.State != store.RunFailed || run.LastError == "" {
		t.Fatalf("expected FAILED run with error, got %#v", run)
	}
	stored, _ := h.store.GetRun(ctx, run.RunID)
	if stored.State != store.RunFailed {
		t.Fatalf("failed state not persisted: %#v", stored)
	}

	entry, _ := h.store.GetSnapshot(ctx, "nfx")
	if entry.RunID != first.RunID || len(entry.Records) != 2 {
		t.Fatalf("previous snapshot must stay current, got %#v", entry)
	}
	if h.ratings.TotalCalls() != 2 {
		t.Fatalf("no enrichment may run after a fetch failure, got %d calls", h.ratings.TotalCalls())
	}
}

func TestTriggerSyncRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, []catalog.Record{matrix})
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.ratings.Hook = func(ctx context.Context, _ string) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ctx := context.Background()

	runID, err := h.orch.TriggerSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	<-entered

	if _, err := h.orch.TriggerSync(ctx, "nfx", store.TriggerManual); !errors.Is(err, syncer.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	runs, _ := h.store.ListRuns(ctx, "nfx", 0)
	if len(runs) != 1 {
		t.Fatalf("a rejected trigger must not create a run, got %d", len(runs))
	}
	status, err := h.orch.GetSyncStatus(ctx, runID)
	if err != nil || status.State != store.RunEnriching {
		t.Fatalf("expected live ENRICHING status, got %#v (err=%v)", status, err)
	}

	close(release)
	final, err := h.orch.Wait(ctx, runID)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if final.State != store.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", final.State, final.LastError)
	}
	if _, err := h.orch.TriggerSync(ctx, "nfx", store.TriggerManual); err != nil {
		t.Fatalf("trigger after completion failed: %v", err)
	}
}

func TestCancelFailsRunWithoutCommit(t *testing.T) {
	h := newHarness(t, []catalog.Record{matrix, heat, amelie})
	entered := make(chan struct{}, 1)
	h.ratings.Hook = func(ctx context.Context, _ string) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	ctx := context.Background()

	runID, err := h.orch.TriggerSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	<-entered
	if err := h.orch.Cancel(runID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	final, err := h.orch.Wait(ctx, runID)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if final.State != store.RunFailed || final.LastError != syncer.ErrCancelled.Error() {
		t.Fatalf("expected cancelled FAILED run, got %#v", final)
	}
	if entry, _ := h.store.GetSnapshot(ctx, "nfx"); entry != nil {
		t.Fatalf("cancelled run must not commit a snapshot, got %#v", entry)
	}
	if err := h.orch.Cancel(runID); !errors.Is(err, syncer.ErrRunNotActive) {
		t.Fatalf("expected ErrRunNotActive for finished run, got %v", err)
	}
}

func TestStaleSnapshotIsNotADiffBaseline(t *testing.T) {
	past := time.Now().Add(-72 * time.Hour)
	h := newHarness(t, []catalog.Record{matrix}, store.WithClock(func() time.Time { return past }))
	ctx := context.Background()
	if err := h.store.PutSnapshot(ctx, "seed", catalog.Snapshot{
		PlatformKey: "nfx",
		FetchedAt:   past,
		Records:     []catalog.Record{matrix},
	}, 48*time.Hour); err != nil {
		t.Fatalf("PutSnapshot failed: %v", err)
	}

	run, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if run.AddedCount != 1 || run.RetainedCount != 0 {
		t.Fatalf("expected stale snapshot to be treated as absent, got %#v", run)
	}
}

func TestUnknownPlatformIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.TriggerSync(context.Background(), "hulu", store.TriggerManual)
	if !errors.Is(err, syncer.ErrUnknownPlatform) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected unknown platform not-found error, got %v", err)
	}
	if _, err := h.orch.GetSyncStatus(context.Background(), "missing"); !errors.Is(err, syncer.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSchedulerTriggersEveryPlatform(t *testing.T) {
	h := newHarness(t, []catalog.Record{matrix})
	h.cfg.Platforms = append(h.cfg.Platforms, config.Platform{Key: "amp", Name: "Prime", Country: "US", Language: "en"})
	sched := syncer.NewScheduler(h.cfg, h.orch, logging.NewNop())

	ctx := context.Background()
	started := sched.TriggerAll(ctx)
	if len(started) != 2 {
		t.Fatalf("expected a run per platform, got %v", started)
	}
	for _, id := range started {
		run, err := h.orch.Wait(ctx, id)
		if err != nil || !run.State.Terminal() {
			t.Fatalf("run %s did not finish: %#v (err=%v)", id, run, err)
		}
	}
	runs, _ := h.store.ListRuns(ctx, "", 0)
	platforms := make([]string, 0, len(runs))
	for _, r := range runs {
		platforms = append(platforms, r.PlatformKey)
		if r.Trigger != store.TriggerScheduled {
			t.Fatalf("expected scheduled trigger, got %q", r.Trigger)
		}
	}
	sort.Strings(platforms)
	if len(platforms) != 2 || platforms[0] != "amp" || platforms[1] != "nfx" {
		t.Fatalf("unexpected platforms %v", platforms)
	}
}

func TestMissingTitlesTrackTheLatestRun(t *testing.T) {
	h := newHarness(t, []catalog.Record{inception, obscure})
	ctx := context.Background()

	first, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("first RunSync failed: %v", err)
	}
	missing, _ := h.orch.GetMissingTitles(ctx, "nfx")
	if first.MissingCount != 1 || len(missing) != 1 || missing[0].Record.ExternalID != "obscure" {
		t.Fatalf("unexpected first run missing=%d list=%#v", first.MissingCount, missing)
	}

	second, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("second RunSync failed: %v", err)
	}
	missing, err = h.orch.GetMissingTitles(ctx, "nfx")
	if err != nil {
		t.Fatalf("GetMissingTitles failed: %v", err)
	}
	if second.AddedCount != 0 || second.MissingCount != 0 || len(missing) != 0 {
		t.Fatalf("unchanged catalog must report no new missing titles: added=%d missing=%d list=%#v",
			second.AddedCount, second.MissingCount, missing)
	}
	index, _ := h.store.MatchedMovieIndex(ctx, "nfx")
	if movie, ok := index["obscure"]; !ok || movie.Confidence != catalog.ConfidenceNone {
		t.Fatalf("retained unrated title must stay in the catalog: %#v", movie)
	}

	h.setCatalog(inception, obscure, amelie)
	h.ratings.ByTitle["amelie"] = nil
	third, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("third RunSync failed: %v", err)
	}
	missing, _ = h.orch.GetMissingTitles(ctx, "nfx")
	if third.MissingCount != len(missing) || len(missing) != 1 || missing[0].Record.ExternalID != "amelie" {
		t.Fatalf("missing list must match the run counter: missing=%d list=%#v", third.MissingCount, missing)
	}
}

func TestCommitFailureFailsRunAndKeepsSnapshot(t *testing.T) {
	var (
		failCommits atomic.Bool
		attempts    atomic.Int32
	)
	guard := store.WithCommitGuard(func(store.Commit) error {
		if !failCommits.Load() {
			return nil
		}
		attempts.Add(1)
		return errors.New("disk I/O error")
	})
	h := newHarness(t, []catalog.Record{inception, matrix}, guard)
	h.cfg.Sync.CommitAttempts = 2
	ctx := context.Background()

	first, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	if err != nil {
		t.Fatalf("first RunSync failed: %v", err)
	}

	failCommits.Store(true)
	h.setCatalog(heat, amelie)
	run, err := h.orch.RunSync(ctx, "nfx", store.TriggerManual)
	var failure *syncer.CacheWriteFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected CacheWriteFailure, got %v", err)
	}
	if failure.Attempts != 2 || attempts.Load() != 2 {
		t.Fatalf("expected 2 commit attempts, got failure=%d guard=%d", failure.Attempts, attempts.Load())
	}
	if run.State != store.RunFailed || run.LastError == "" {
		t.Fatalf("expected FAILED run with error, got %#v", run)
	}
	stored, _ := h.store.GetRun(ctx, run.RunID)
	if stored.State != store.RunFailed {
		t.Fatalf("failed state not persisted: %#v", stored)
	}

	entry, _ := h.store.GetSnapshot(ctx, "nfx")
	if entry.RunID != first.RunID || len(entry.Records) != 2 || entry.Records[0].ExternalID != "inception" {
		t.Fatalf("previous snapshot must stay current, got %#v", entry)
	}
	index, _ := h.store.MatchedMovieIndex(ctx, "nfx")
	if _, ok := index["heat"]; ok || len(index) != 2 {
		t.Fatalf("failed commit leaked movies: %#v", index)
	}
}
