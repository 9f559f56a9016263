package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron checks expr against the scheduler's six-field syntax. An empty
// expression is valid and means "not scheduled".
func ValidateCron(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler replays stored workflows on their cron expressions. Expressions
// take a leading seconds field.
type Scheduler struct {
	cron    *cron.Cron
	ctrl    *Controller
	logger  *zap.Logger
	mutex   sync.Mutex
	entries map[string]cron.EntryID
	lastRun map[string]string
}

func NewScheduler(ctrl *Controller, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		ctrl:    ctrl,
		logger:  logger.Named("scheduler"),
		entries: make(map[string]cron.EntryID),
		lastRun: make(map[string]string),
	}
}

// Start loads the scheduled workflows and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.ctrl.Store() == nil {
		return ErrNoStore
	}
	workflows, err := s.ctrl.Store().ScheduledWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("load scheduled workflows: %w", err)
	}
	for _, wf := range workflows {
		if err := s.Sync(wf); err != nil {
			s.logger.Warn("failed to schedule workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("workflows", len(workflows)))
	return nil
}

// Sync installs, replaces or removes the schedule of wf to match its cron
// expression.
func (s *Scheduler) Sync(wf *models.Workflow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if id, ok := s.entries[wf.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, wf.ID)
	}
	if wf.CronExpression == "" {
		return nil
	}

	workflowID := wf.ID
	entryID, err := s.cron.AddFunc(wf.CronExpression, func() {
		s.fire(workflowID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", wf.CronExpression, err)
	}
	s.entries[wf.ID] = entryID
	s.logger.Info("workflow scheduled", zap.String("workflow_id", wf.ID), zap.String("cron", wf.CronExpression))
	return nil
}

func (s *Scheduler) Remove(workflowID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if id, ok := s.entries[workflowID]; ok {
		s.cron.Remove(id)
		delete(s.entries, workflowID)
		s.logger.Info("workflow unscheduled", zap.String("workflow_id", workflowID))
	}
}

// Scheduled reports whether a workflow has a live schedule.
func (s *Scheduler) Scheduled(workflowID string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.entries[workflowID]
	return ok
}

// fire starts a scheduled run unless the previous one is still going.
func (s *Scheduler) fire(workflowID string) {
	s.mutex.Lock()
	last := s.lastRun[workflowID]
	s.mutex.Unlock()
	if last != "" && s.ctrl.runs.IsRunning(last) {
		s.logger.Info("previous scheduled run still active, skipping",
			zap.String("workflow_id", workflowID), zap.String("run_id", last))
		return
	}

	runID, err := s.ctrl.ExecuteStored(context.Background(), workflowID, ExecuteRequest{Trigger: TriggerSchedule})
	if err != nil {
		s.logger.Error("scheduled run failed to start", zap.String("workflow_id", workflowID), zap.Error(err))
		return
	}
	s.mutex.Lock()
	s.lastRun[workflowID] = runID
	s.mutex.Unlock()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
