package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reelscout/internal/logging"
	"reelscout/internal/store"
)

// tracker holds the live view of a run. Counters change on every page and
// title; the store copy is refreshed at most once per interval.
//
// Every mutation gets a sequence number. Writes are serialized and a write
// older than the last one persisted is dropped, so the stored row never
// moves backwards when workers race.
type tracker struct {
	mu       sync.Mutex
	run      store.SyncRun
	seq      uint64
	store    *store.Store
	interval time.Duration
	last     time.Time
	logger   *slog.Logger

	writeMu   sync.Mutex
	persisted uint64
}

func newTracker(run store.SyncRun, st *store.Store, interval time.Duration, logger *slog.Logger) *tracker {
	return &tracker{run: run, store: st, interval: interval, logger: logger}
}

func (t *tracker) snapshot() store.SyncRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	run := t.run
	return run
}

// mutate applies fn and returns a copy of the result with its sequence.
func (t *tracker) mutate(fn func(*store.SyncRun)) (store.SyncRun, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.run)
	t.seq++
	t.last = time.Now()
	return t.run, t.seq
}

// update mutates the run and persists it when the throttle allows.
func (t *tracker) update(ctx context.Context, fn func(*store.SyncRun)) {
	t.mu.Lock()
	fn(&t.run)
	t.seq++
	due := t.interval <= 0 || time.Since(t.last) >= t.interval
	var (
		run store.SyncRun
		seq uint64
	)
	if due {
		t.last = time.Now()
		run, seq = t.run, t.seq
	}
	t.mu.Unlock()
	if due {
		t.persist(ctx, run, seq)
	}
}

// transition sets a new state and always persists.
func (t *tracker) transition(ctx context.Context, state store.RunState) {
	run, seq := t.mutate(func(r *store.SyncRun) { r.State = state })
	t.logger.Info("sync state changed", logging.String(logging.FieldState, string(state)))
	t.persist(ctx, run, seq)
}

func (t *tracker) persist(ctx context.Context, run store.SyncRun, seq uint64) {
	if err := t.write(ctx, run, seq); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(t.logger, "failed to persist sync progress", "sync_progress_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status readers see older counters until the next update"),
		)
	}
}

// write stores run unless a later sequence already reached the store.
func (t *tracker) write(ctx context.Context, run store.SyncRun, seq uint64) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if seq <= t.persisted {
		return nil
	}
	if err := t.store.UpdateRun(ctx, &run); err != nil {
		return err
	}
	t.persisted = seq
	return nil
}

// settle adopts a run row another transaction already stored, so no older
// progress write can follow it.
func (t *tracker) settle(run store.SyncRun) {
	_, seq := t.mutate(func(r *store.SyncRun) { *r = run })
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.persisted = max(t.persisted, seq)
}
