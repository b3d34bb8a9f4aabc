package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/query"
	"reelscout/internal/store"
	"reelscout/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	orch      *syncer.Orchestrator
	query     *query.Service
	scheduler *syncer.Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      <-chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	DatabasePath  string
	LockFilePath  string
	APIAddress    string
	NextScheduled *time.Time
	ActiveRuns    []store.SyncRun
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, orch *syncer.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		orch:      orch,
		query:     query.New(cfg, st),
		scheduler: syncer.NewScheduler(cfg, orch, logger),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted runs, and launches the
// supervised services.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	if err := tryLock(d.lock); err != nil {
		return err
	}

	// Holding the lock proves no other process is driving a run, so every
	// non-terminal run in the store is orphaned.
	recovered, err := d.store.FailInterruptedRuns(ctx, "interrupted by daemon restart")
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted runs: %w", err)
	}
	if recovered > 0 {
		logging.WarnWithContext(d.logger, "marked interrupted sync runs failed", "daemon_recovery",
			logging.Int64("runs", recovered),
			logging.String(logging.FieldImpact, "those platforms keep their previous snapshot"),
			logging.String(logging.FieldErrorHint, "trigger a sync to refresh them"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.api != nil {
		if err := d.api.listen(); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}
	d.done = d.supervisor().ServeBackground(runCtx)
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("reelscout daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

func (d *Daemon) supervisor() *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: d.logger}
	sup := suture.New("reelscout", suture.Spec{
		EventHook:      handler.MustHook(),
		FailureBackoff: 15 * time.Second,
		Timeout:        shutdownTimeout,
	})
	if d.api != nil {
		sup.Add(d.api)
	}
	if d.cfg.Sync.ScheduleEnabled {
		sup.Add(d.scheduler)
	}
	if interval := d.cfg.CompactionInterval(); interval > 0 {
		sup.Add(newCompactor(d.cfg, d.store, interval, d.logger))
	}
	return sup
}

// Stop cancels in-flight syncs, stops background services, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.orch.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "sync runs did not stop in time", "daemon_shutdown",
			logging.Error(err),
			logging.String(logging.FieldImpact, "runs will be marked failed on next start"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		select {
		case <-d.done:
		case <-ctx.Done():
		}
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("reelscout daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// APIAddress returns the bound API address once started.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.APIAddress(),
		ActiveRuns:   d.orch.ActiveRuns(),
	}
	d.mu.Lock()
	status.StartedAt = d.startedAt
	d.mu.Unlock()
	if d.cfg.Sync.ScheduleEnabled {
		if next, err := d.scheduler.NextRun(time.Now()); err == nil {
			status.NextScheduled = &next
		}
	}
	return status
}
