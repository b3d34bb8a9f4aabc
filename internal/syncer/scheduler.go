package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/store"
)

// Scheduler triggers a sync for every configured platform once a day at the
// configured local time.
type Scheduler struct {
	orch   *Orchestrator
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewScheduler constructs a Scheduler for orch.
func NewScheduler(cfg *config.Config, orch *Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orch:   orch,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		now:    time.Now,
		after:  time.After,
	}
}

// String names the service for supervisor logs.
func (s *Scheduler) String() string { return "sync-scheduler" }

// NextRun returns the next scheduled trigger strictly after now.
func (s *Scheduler) NextRun(now time.Time) (time.Time, error) {
	hour, minute, err := s.cfg.ScheduleClock()
	if err != nil {
		return time.Time{}, err
	}
	return nextRunAfter(now, hour, minute), nil
}

func nextRunAfter(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Serve waits for each scheduled time and triggers every platform. It returns
// when ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	for {
		next, err := s.NextRun(s.now())
		if err != nil {
			return err
		}
		s.logger.Info("next scheduled sync", logging.Time("at", next))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
		}
		s.TriggerAll(ctx)
	}
}

// TriggerAll starts a scheduled run for each platform. Platforms that are
// already syncing are skipped.
func (s *Scheduler) TriggerAll(ctx context.Context) []string {
	var started []string
	for _, platform := range s.cfg.Platforms {
		runID, err := s.orch.TriggerSync(ctx, platform.Key, store.TriggerScheduled)
		switch {
		case err == nil:
			started = append(started, runID)
			s.logger.Info("scheduled sync triggered",
				logging.String(logging.FieldPlatform, platform.Key),
				logging.String(logging.FieldRunID, runID),
			)
		case errors.Is(err, ErrAlreadyRunning):
			s.logger.Info("scheduled sync skipped; run already active",
				logging.String(logging.FieldPlatform, platform.Key),
			)
		default:
			logging.WarnWithContext(s.logger, "scheduled sync failed to start", "schedule_trigger_failed",
				logging.String(logging.FieldPlatform, platform.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "platform catalog stays at its previous snapshot until the next trigger"),
			)
		}
	}
	return started
}
