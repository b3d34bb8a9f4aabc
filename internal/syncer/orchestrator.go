package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/fetcher"
	"reelscout/internal/logging"
	"reelscout/internal/metrics"
	"reelscout/internal/services"
	"reelscout/internal/store"
)

// Fetcher opens catalog page streams.
type Fetcher interface {
	Fetch(platformKey, country, language string) *fetcher.Pager
}

// Enricher resolves one catalog record to a matched movie.
type Enricher interface {
	Enrich(ctx context.Context, rec catalog.Record) (catalog.MatchedMovie, error)
}

// Orchestrator owns sync runs for every configured platform.
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	fetcher  Fetcher
	enricher Enricher
	logger   *slog.Logger
	newID    func() string

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun // by platform key
	byID   map[string]*activeRun
}

type activeRun struct {
	platform string
	runID    string
	cancel   context.CancelFunc
	done     chan struct{}
	tracker  *tracker
}

// New constructs an Orchestrator.
func New(cfg *config.Config, st *store.Store, f Fetcher, e Enricher, logger *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		fetcher:    f,
		enricher:   e,
		logger:     logging.NewComponentLogger(logger, "syncer"),
		newID:      uuid.NewString,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[string]*activeRun),
		byID:       make(map[string]*activeRun),
	}
}

// TriggerSync starts a background run and returns its id immediately.
func (o *Orchestrator) TriggerSync(ctx context.Context, platformKey, trigger string) (string, error) {
	runCtx, cancel := context.WithCancel(o.baseCtx)
	platform, ar, err := o.begin(ctx, platformKey, trigger, cancel)
	if err != nil {
		cancel()
		return "", err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		_ = o.execute(runCtx, platform, ar)
	}()
	return ar.runID, nil
}

// RunSync runs a sync on the calling goroutine and returns the final run.
// Cancelling ctx cancels the run.
func (o *Orchestrator) RunSync(ctx context.Context, platformKey, trigger string) (*store.SyncRun, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	platform, ar, err := o.begin(ctx, platformKey, trigger, cancel)
	if err != nil {
		return nil, err
	}
	runErr := o.execute(runCtx, platform, ar)
	final := ar.tracker.snapshot()
	return &final, runErr
}

// Cancel requests cooperative cancellation of an active run. The run stops
// at the next page or title boundary and ends FAILED.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	ar, ok := o.byID[runID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	ar.cancel()
	return nil
}

// Wait blocks until the run finishes (or ctx ends) and returns its final
// record.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*store.SyncRun, error) {
	o.mu.Lock()
	ar, ok := o.byID[runID]
	o.mu.Unlock()
	if ok {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.GetSyncStatus(ctx, runID)
}

// GetSyncStatus returns the latest view of a run. Active runs report live
// counters that may be ahead of the throttled store copy.
func (o *Orchestrator) GetSyncStatus(ctx context.Context, runID string) (*store.SyncRun, error) {
	o.mu.Lock()
	ar, ok := o.byID[runID]
	o.mu.Unlock()
	if ok {
		run := ar.tracker.snapshot()
		return &run, nil
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// GetMissingTitles lists the platform's titles without a confident rating.
func (o *Orchestrator) GetMissingTitles(ctx context.Context, platformKey string) ([]store.MissingTitle, error) {
	platform, ok := o.cfg.Platform(platformKey)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "syncer", "missing titles",
			fmt.Sprintf("platform %q is not configured", platformKey), ErrUnknownPlatform)
	}
	return o.store.MissingTitles(ctx, platform.Key)
}

// ActiveRuns returns the live state of runs owned by this process.
func (o *Orchestrator) ActiveRuns() []store.SyncRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	runs := make([]store.SyncRun, 0, len(o.active))
	for _, ar := range o.active {
		if ar.tracker != nil {
			runs = append(runs, ar.tracker.snapshot())
		}
	}
	return runs
}

// Shutdown cancels background runs and waits for them to record FAILED.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.baseCancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin reserves the platform token and records a PENDING run.
func (o *Orchestrator) begin(ctx context.Context, platformKey, trigger string, cancel context.CancelFunc) (config.Platform, *activeRun, error) {
	platform, ok := o.cfg.Platform(platformKey)
	if !ok {
		return config.Platform{}, nil, services.Wrap(services.ErrNotFound, "syncer", "trigger",
			fmt.Sprintf("platform %q is not configured", platformKey), ErrUnknownPlatform)
	}

	o.mu.Lock()
	if existing, busy := o.active[platform.Key]; busy {
		o.mu.Unlock()
		return config.Platform{}, nil, fmt.Errorf("%w: %s (run %s)", ErrAlreadyRunning, platform.Key, existing.runID)
	}
	ar := &activeRun{platform: platform.Key, runID: o.newID(), cancel: cancel, done: make(chan struct{})}
	o.active[platform.Key] = ar
	o.mu.Unlock()

	run := store.SyncRun{RunID: ar.runID, PlatformKey: platform.Key, State: store.RunPending, Trigger: trigger}
	if err := o.store.CreateRun(ctx, &run); err != nil {
		o.release(ar)
		close(ar.done)
		return config.Platform{}, nil, err
	}

	logger := o.logger.With(
		logging.String(logging.FieldPlatform, platform.Key),
		logging.String(logging.FieldRunID, ar.runID),
	)
	ar.tracker = newTracker(run, o.store, o.cfg.ProgressInterval(), logger)

	o.mu.Lock()
	o.byID[ar.runID] = ar
	o.mu.Unlock()
	metrics.SyncActiveRuns.Inc()
	logger.Info("sync run created", logging.String("trigger", run.Trigger))
	return platform, ar, nil
}

func (o *Orchestrator) release(ar *activeRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[ar.platform] == ar {
		delete(o.active, ar.platform)
	}
	delete(o.byID, ar.runID)
}

func (o *Orchestrator) execute(ctx context.Context, platform config.Platform, ar *activeRun) error {
	start := time.Now()
	ctx = services.WithPlatform(ctx, platform.Key)
	ctx = services.WithRunID(ctx, ar.runID)
	logger := logging.WithContext(ctx, o.logger)

	err := o.pipeline(ctx, platform, ar.tracker, logger)
	if err != nil {
		o.fail(ctx, ar.tracker, logger, err)
	}

	final := ar.tracker.snapshot()
	metrics.SyncActiveRuns.Dec()
	metrics.SyncRunsTotal.WithLabelValues(platform.Key, string(final.State)).Inc()
	metrics.SyncRunDuration.WithLabelValues(platform.Key).Observe(time.Since(start).Seconds())

	o.release(ar)
	close(ar.done)
	return err
}

func (o *Orchestrator) fail(ctx context.Context, t *tracker, logger *slog.Logger, cause error) {
	if errors.Is(cause, context.Canceled) {
		cause = ErrCancelled
	}
	now := time.Now().UTC()
	run, seq := t.mutate(func(r *store.SyncRun) {
		r.State = store.RunFailed
		r.LastError = cause.Error()
		r.FinishedAt = &now
	})

	// The run context may already be cancelled; the FAILED record must land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := t.write(persistCtx, run, seq); err != nil {
		logger.Error("failed to persist failed run", logging.Error(err))
	}

	if errors.Is(cause, ErrCancelled) {
		logger.Info("sync cancelled", logging.String(logging.FieldState, string(store.RunFailed)))
		return
	}
	logging.ErrorWithContext(logger, "sync failed", "sync_failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.ErrorHint(cause)),
		logging.Alert("sync_failure"),
	)
}
