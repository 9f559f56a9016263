// Package services holds the controller shared by the HTTP and NATS
// transports, the cron scheduler and the run status sweeper.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/recorder"
	"webflowwizard/engine/internal/store"
)

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

var (
	ErrInvalidURL  = errors.New("target url must be an absolute http(s) url")
	ErrStillActive = errors.New("recording is still in progress")
	ErrNoStore     = errors.New("persistence is not configured")
)

// ExecuteRequest carries per-run overrides of the configured options.
type ExecuteRequest struct {
	Trigger         string `json:"trigger"`
	ContinueOnError *bool  `json:"continue_on_error"`
}

// SaveRequest names the workflow built from a stopped recording.
type SaveRequest struct {
	SessionID      string   `json:"session_id" binding:"required"`
	Name           string   `json:"name" binding:"required"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	CronExpression string   `json:"cron_expression"`
}

type Controller struct {
	recordings *recorder.Manager
	runs       *executor.Manager
	store      *store.Store
	notifier   notify.Notifier
	defaults   executor.Options
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
}

// NewController wires the managers together. st may be nil, in which case
// runs are not persisted and workflows can only be executed inline.
func NewController(rec *recorder.Manager, runs *executor.Manager, st *store.Store, n notify.Notifier, defaults executor.Options, logger *zap.Logger) *Controller {
	if n == nil {
		n = notify.Nop
	}
	return &Controller{
		recordings: rec,
		runs:       runs,
		store:      st,
		notifier:   n,
		defaults:   defaults,
		logger:     logger.Named("controller"),
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

func (c *Controller) Store() *store.Store { return c.store }

// Health is a snapshot of live work.
type Health struct {
	Recordings int  `json:"recordings"`
	Executions int  `json:"executions"`
	Persistent bool `json:"persistent"`
}

func (c *Controller) Health() Health {
	return Health{
		Recordings: c.recordings.Active(),
		Executions: c.runs.GetRunningCount(),
		Persistent: c.store != nil,
	}
}

// StartRecording opens a capture session on targetURL and returns its id.
func (c *Controller) StartRecording(ctx context.Context, targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, targetURL)
	}
	sessionID := c.newID()
	if err := c.recordings.Start(ctx, sessionID, targetURL); err != nil {
		c.notifier.Notify(notify.Event{
			Type:      notify.RecordingError,
			SessionID: sessionID,
			Payload:   notify.ErrorPayload{Error: err.Error()},
			Time:      c.now(),
		})
		return "", err
	}
	c.logger.Info("recording started", zap.String("session_id", sessionID), zap.String("url", targetURL))
	return sessionID, nil
}

func (c *Controller) StopRecording(_ context.Context, sessionID string) ([]models.Step, error) {
	steps, err := c.recordings.Stop(sessionID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("recording stopped", zap.String("session_id", sessionID), zap.Int("steps", len(steps)))
	return steps, nil
}

func (c *Controller) RecordingStatus(sessionID string) (bool, []models.Step, error) {
	return c.recordings.Status(sessionID)
}

// SaveRecording persists the steps of a stopped session as a new workflow and
// releases the session.
func (c *Controller) SaveRecording(ctx context.Context, req SaveRequest) (*models.Workflow, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	recording, steps, err := c.recordings.Status(req.SessionID)
	if err != nil {
		return nil, err
	}
	if recording {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrStillActive)
	}

	wf := &models.Workflow{
		Version:        models.WorkflowSchemaVersion,
		ID:             c.newID(),
		Name:           req.Name,
		Description:    req.Description,
		Tags:           req.Tags,
		Steps:          steps,
		CronExpression: strings.TrimSpace(req.CronExpression),
	}
	if err := c.store.AppendWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	c.recordings.Cleanup(req.SessionID)
	c.logger.Info("recording saved", zap.String("session_id", req.SessionID), zap.String("workflow_id", wf.ID))
	return wf, nil
}

// ExecuteStored replays a persisted workflow.
func (c *Controller) ExecuteStored(ctx context.Context, workflowID string, req ExecuteRequest) (string, error) {
	if c.store == nil {
		return "", ErrNoStore
	}
	wf, err := c.store.FindWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return c.ExecuteWorkflow(ctx, wf, req)
}

// ExecuteWorkflow queues a replay and returns its run id. Progress, per-step
// results and the outcome are delivered through the notifier.
func (c *Controller) ExecuteWorkflow(ctx context.Context, wf *models.Workflow, req ExecuteRequest) (string, error) {
	runID := c.newID()
	logger := c.logger.With(zap.String("run_id", runID), zap.String("workflow_id", wf.ID))

	if len(wf.Steps) == 0 {
		c.notifyError(runID, executor.ErrEmptyWorkflow)
		return "", executor.ErrEmptyWorkflow
	}
	for _, s := range wf.Steps {
		if err := s.Validate(); err != nil {
			logger.Warn("workflow contains an invalid step", zap.String("step_id", s.ID), zap.Error(err))
		}
	}

	opts := c.defaults
	if req.ContinueOnError != nil {
		opts.ContinueOnError = *req.ContinueOnError
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	var run *models.ExecutionRun
	if c.store != nil {
		run = &models.ExecutionRun{
			RunID:      runID,
			WorkflowID: wf.ID,
			Trigger:    trigger,
			Status:     models.RunStatusPending,
			StartTime:  c.now(),
			TotalSteps: len(wf.Steps),
		}
		if err := c.store.CreateRun(ctx, run); err != nil {
			return "", fmt.Errorf("create run record: %w", err)
		}
	}

	job := executor.Job{
		RunID:   runID,
		Steps:   wf.Steps,
		Options: opts,
		Hooks:   c.runHooks(runID, run),
		Done: func(report executor.RunReport, err error) {
			c.finishRun(runID, run, report, err)
		},
	}
	if err := c.runs.Submit(job); err != nil {
		c.finishRun(runID, run, executor.RunReport{State: executor.StateFailed}, err)
		return "", err
	}
	logger.Info("run queued", zap.String("trigger", trigger), zap.Int("steps", len(wf.Steps)))
	return runID, nil
}

func (c *Controller) runHooks(runID string, run *models.ExecutionRun) executor.Hooks {
	return executor.Hooks{
		OnProgress: func(p executor.Progress, step models.Step) {
			if run != nil && run.Status == models.RunStatusPending {
				run.Status = models.RunStatusRunning
				if err := c.store.UpdateRun(context.Background(), run); err != nil {
					c.logger.Warn("failed to mark run running", zap.String("run_id", runID), zap.Error(err))
				}
			}
			c.notifier.Notify(notify.Event{
				Type:  notify.ExecutionProgress,
				RunID: runID,
				Payload: notify.ProgressPayload{
					Progress:    p.Percent,
					CurrentStep: p.CurrentStep,
					TotalSteps:  p.TotalSteps,
					StepID:      step.ID,
					StepType:    string(step.Type),
				},
				Time: c.now(),
			})
		},
		OnResult: func(_ int, res models.ExecutionResult) {
			c.notifier.Notify(notify.Event{Type: notify.ExecutionStepDone, RunID: runID, Payload: res, Time: c.now()})
		},
	}
}

func (c *Controller) finishRun(runID string, run *models.ExecutionRun, report executor.RunReport, err error) {
	if run != nil {
		c.saveRun(runID, run, report, err)
	}
	if err != nil {
		c.notifyError(runID, err)
		return
	}
	c.notifier.Notify(notify.Event{Type: notify.ExecutionComplete, RunID: runID, Payload: report, Time: c.now()})
}

func (c *Controller) saveRun(runID string, run *models.ExecutionRun, report executor.RunReport, err error) {
	now := c.now()
	run.EndTime = &now
	run.Duration = int(now.Sub(run.StartTime).Milliseconds())
	run.Status = runStatus(report.State)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
	}
	if setErr := run.SetResults(report.Results); setErr != nil {
		c.logger.Error("failed to encode run results", zap.String("run_id", runID), zap.Error(setErr))
	}
	if saveErr := c.store.UpdateRun(context.Background(), run); saveErr != nil {
		c.logger.Error("failed to save run", zap.String("run_id", runID), zap.Error(saveErr))
	}
}

func (c *Controller) notifyError(runID string, err error) {
	c.notifier.Notify(notify.Event{
		Type:    notify.ExecutionError,
		RunID:   runID,
		Payload: notify.ErrorPayload{Error: err.Error()},
		Time:    c.now(),
	})
}

func runStatus(s executor.RunState) string {
	switch s {
	case executor.StateCompleted:
		return models.RunStatusCompleted
	case executor.StateStopped:
		return models.RunStatusStopped
	}
	return models.RunStatusFailed
}

func (c *Controller) StopExecution(runID string) error {
	if err := c.runs.Stop(runID); err != nil {
		return err
	}
	c.logger.Info("run stop requested", zap.String("run_id", runID))
	return nil
}

func (c *Controller) ExecutionStatus(runID string) executor.Status {
	return c.runs.Status(runID)
}

// Run returns the persisted record of a run.
func (c *Controller) Run(ctx context.Context, runID string) (*models.ExecutionRun, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	return c.store.FindRun(ctx, runID)
}

// Shutdown stops live recordings and runs.
func (c *Controller) Shutdown() {
	c.recordings.Shutdown()
	c.runs.Shutdown()
}
