package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

// StatusSync reconciles run records with the execution manager. Runs the
// manager no longer knows about are failed, and runs past MaxDuration are
// stopped and failed.
type StatusSync struct {
	ctrl        *Controller
	interval    time.Duration
	grace       time.Duration
	maxDuration time.Duration
	logger      *zap.Logger
	now         func() time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewStatusSync(ctrl *Controller, interval, maxDuration time.Duration, logger *zap.Logger) *StatusSync {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	return &StatusSync{
		ctrl:        ctrl,
		interval:    interval,
		grace:       30 * time.Second,
		maxDuration: maxDuration,
		logger:      logger.Named("status_sync"),
		now:         time.Now,
	}
}

func (s *StatusSync) Start(ctx context.Context) {
	if s.cancel != nil || s.ctrl.Store() == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.logger.Info("status sync started", zap.Duration("interval", s.interval))
}

func (s *StatusSync) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("status sync stopped")
}

func (s *StatusSync) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass and returns the number of runs fixed.
func (s *StatusSync) Sweep(ctx context.Context) int {
	runs, err := s.ctrl.Store().RunsWithStatus(ctx, models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		s.logger.Error("failed to query active runs", zap.Error(err))
		return 0
	}

	fixed := 0
	now := s.now()
	for i := range runs {
		run := &runs[i]
		age := now.Sub(run.StartTime)
		switch {
		case age > s.maxDuration:
			if s.ctrl.runs.IsRunning(run.RunID) {
				s.ctrl.runs.Stop(run.RunID)
			}
			run.ErrorMessage = "Execution timed out after " + s.maxDuration.String()
		case !s.ctrl.runs.IsRunning(run.RunID) && age > s.grace:
			run.ErrorMessage = "Execution ended without reporting its outcome"
		default:
			continue
		}

		run.Status = models.RunStatusFailed
		run.EndTime = &now
		run.Duration = int(age.Milliseconds())
		if err := s.ctrl.Store().UpdateRun(ctx, run); err != nil {
			s.logger.Error("failed to fix stuck run", zap.String("run_id", run.RunID), zap.Error(err))
			continue
		}
		s.logger.Warn("stuck run marked failed", zap.String("run_id", run.RunID), zap.String("reason", run.ErrorMessage))
		fixed++
	}
	return fixed
}
