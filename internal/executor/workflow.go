package executor

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateStopped   RunState = "stopped"
	StateFailed    RunState = "failed"
)

// Progress is valid only while a run is active.
type Progress struct {
	CurrentStep int `json:"currentStep"`
	TotalSteps  int `json:"totalSteps"`
	Percent     int `json:"progress"`
}

// Hooks are called synchronously from the run loop, in step order.
type Hooks struct {
	OnProgress func(Progress, models.Step)
	OnResult   func(index int, result models.ExecutionResult)
}

// RunReport is what one run produced. Results holds one entry per executed
// step, in order.
type RunReport struct {
	State    RunState                 `json:"state"`
	Results  []models.ExecutionResult `json:"results"`
	Duration time.Duration            `json:"duration"`
}

// Passed counts successful results.
func (r RunReport) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// WorkflowExecutor drives steps through a StepExecutor one at a time. An
// instance runs at most one workflow at a time; Stop is observed between
// steps only.
type WorkflowExecutor struct {
	steps  *StepExecutor
	opts   Options
	hooks  Hooks
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error

	mu      sync.Mutex
	state   RunState
	running bool
	halted  func() bool
	current int
	total   int
}

func NewWorkflowExecutor(target Target, opts Options, hooks Hooks, logger *zap.Logger) *WorkflowExecutor {
	opts = opts.withDefaults()
	return &WorkflowExecutor{
		steps:  NewStepExecutor(target, opts, logger),
		opts:   opts,
		hooks:  hooks,
		logger: logger.Named("workflow"),
		sleep:  sleepCtx,
		state:  StateIdle,
	}
}

func (w *WorkflowExecutor) Run(ctx context.Context, steps []models.Step) (RunReport, error) {
	if len(steps) == 0 {
		return RunReport{State: StateFailed}, ErrEmptyWorkflow
	}

	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return RunReport{}, ErrRunActive
	}
	w.state = StateRunning
	w.running = true
	w.current, w.total = 0, len(steps)
	w.mu.Unlock()

	start := time.Now()
	results := make([]models.ExecutionResult, 0, len(steps))
	final := StateCompleted

	for i, step := range steps {
		if !w.IsRunning() || w.haltRequested() || ctx.Err() != nil {
			final = StateStopped
			break
		}

		progress := w.advance(i)
		if w.hooks.OnProgress != nil {
			w.hooks.OnProgress(progress, step)
		}
		w.logger.Debug("executing step", zap.Int("index", i), zap.Int("total", len(steps)),
			zap.String("type", string(step.Type)), zap.Int("progress", progress.Percent))

		res := w.executeWithRetry(ctx, step, Invocation{CurrentStep: i, TotalSteps: len(steps)})
		results = append(results, res)
		if w.hooks.OnResult != nil {
			w.hooks.OnResult(i, res)
		}

		if !res.Success {
			w.logger.Warn("step failed", zap.Int("index", i), zap.String("step_id", step.ID),
				zap.String("kind", res.ErrorKind), zap.String("message", res.Message))
			if !w.opts.ContinueOnError {
				final = StateFailed
				break
			}
		}

		if i < len(steps)-1 {
			if err := w.sleep(ctx, w.opts.DelayBetweenSteps); err != nil {
				final = StateStopped
				break
			}
		}
	}

	w.mu.Lock()
	w.state = final
	w.running = false
	w.current, w.total = 0, 0
	w.mu.Unlock()

	return RunReport{State: final, Results: results, Duration: time.Since(start)}, nil
}

// executeWithRetry makes up to RetryCount attempts with linear backoff.
// Failures whose kind is not retryable end the loop at once.
func (w *WorkflowExecutor) executeWithRetry(ctx context.Context, step models.Step, inv Invocation) models.ExecutionResult {
	var res models.ExecutionResult
	for attempt := 1; attempt <= w.opts.RetryCount; attempt++ {
		res = w.steps.Execute(ctx, step, inv)
		res.Attempts = attempt
		if res.Success || !ErrorKind(res.ErrorKind).Retryable() || attempt == w.opts.RetryCount {
			return res
		}

		backoff := w.opts.BackoffBase * time.Duration(attempt)
		w.logger.Info("retrying step", zap.String("step_id", step.ID), zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff), zap.String("error", res.Message))
		if err := w.sleep(ctx, backoff); err != nil {
			return res
		}
	}
	return res
}

// Stop asks the active run to end before its next step. It has no effect on
// an idle executor.
func (w *WorkflowExecutor) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
}

func (w *WorkflowExecutor) haltRequested() bool {
	return w.halted != nil && w.halted()
}

func (w *WorkflowExecutor) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *WorkflowExecutor) State() RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Progress returns the current step and percentage, or zero when idle.
func (w *WorkflowExecutor) Progress() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRunning {
		return Progress{}
	}
	return progressOf(w.current, w.total)
}

func (w *WorkflowExecutor) advance(i int) Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = i
	return progressOf(i, w.total)
}

func progressOf(current, total int) Progress {
	if total == 0 {
		return Progress{}
	}
	pct := int(math.Round(float64(current) / float64(total) * 100))
	return Progress{CurrentStep: current, TotalSteps: total, Percent: pct}
}
