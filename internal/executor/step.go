package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

// StepExecutor performs single steps against a Target. Execute never panics
// and never returns an error: every failure ends up in the result.
type StepExecutor struct {
	target Target
	opts   Options
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

func NewStepExecutor(target Target, opts Options, logger *zap.Logger) *StepExecutor {
	return &StepExecutor{
		target: target,
		opts:   opts.withDefaults(),
		logger: logger.Named("step"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

func (s *StepExecutor) Execute(ctx context.Context, step models.Step, inv Invocation) (result models.ExecutionResult) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered while executing step",
				zap.String("step_id", step.ID), zap.Any("panic", r))
			result = s.failure(step, &StepError{Kind: KindTarget, Msg: fmt.Sprintf("step execution panic: %v", r)})
		}
	}()

	if err := s.run(ctx, step, inv); err != nil {
		s.logger.Debug("step failed", zap.String("step_id", step.ID),
			zap.String("type", string(step.Type)), zap.Error(err))
		return s.failure(step, err)
	}

	elapsed := s.now().Sub(start)
	return models.ExecutionResult{
		StepID:    step.ID,
		Success:   true,
		Message:   fmt.Sprintf("Step completed in %dms", elapsed.Milliseconds()),
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *StepExecutor) failure(step models.Step, err error) models.ExecutionResult {
	return models.ExecutionResult{
		StepID:    step.ID,
		Success:   false,
		Message:   err.Error(),
		Timestamp: s.now().UnixMilli(),
		ErrorKind: string(KindOf(err)),
	}
}

func (s *StepExecutor) run(ctx context.Context, step models.Step, inv Invocation) error {
	if err := step.Validate(); err != nil {
		return configError(err)
	}

	switch cfg := step.Config.(type) {
	case models.NavigationConfig:
		return s.awaitLoad(ctx, func(ctx context.Context) error {
			return s.target.Navigate(ctx, cfg.URL)
		})
	case models.ClickConfig:
		return s.click(ctx, cfg.Selector)
	case models.InputConfig:
		return s.input(ctx, cfg.Selector, cfg.Value)
	case models.SubmitConfig:
		if err := s.waitForElement(ctx, cfg.Selector); err != nil {
			return err
		}
		return s.awaitLoad(ctx, func(ctx context.Context) error {
			return s.target.Dispatch(ctx, ActionSubmit, cfg.Selector, "")
		})
	case models.WaitConfig:
		if cfg.Selector != "" {
			return s.waitForElement(ctx, cfg.Selector)
		}
		if err := s.sleep(ctx, time.Duration(cfg.Duration)*time.Millisecond); err != nil {
			return cancelledError(err)
		}
		return nil
	case models.CustomConfig:
		return s.custom(ctx, step, cfg.Code, inv)
	case models.TabSwitchConfig, models.TabClosedConfig:
		// Markers only; replay drives a single surface.
		return nil
	}
	return configError(fmt.Errorf("%w: unsupported step type: %s", models.ErrInvalidConfig, step.Type))
}

// awaitLoad subscribes to the load signal, runs trigger and waits for the
// signal for at most Timeout.
func (s *StepExecutor) awaitLoad(ctx context.Context, trigger func(context.Context) error) error {
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loaded, err := s.target.LoadSignal(loadCtx)
	if err != nil {
		return targetError(fmt.Errorf("subscribe to load event: %w", err))
	}
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	if err := trigger(loadCtx); err != nil {
		if ctx.Err() != nil {
			return cancelledError(ctx.Err())
		}
		return targetError(err)
	}

	select {
	case <-loaded:
		return nil
	case <-timer.C:
		return &StepError{Kind: KindNavigationTimeout, Msg: "Navigation timeout"}
	case <-ctx.Done():
		return cancelledError(ctx.Err())
	}
}

func (s *StepExecutor) click(ctx context.Context, sel string) error {
	if err := s.waitForElement(ctx, sel); err != nil {
		return err
	}
	if err := s.target.ScrollIntoView(ctx, sel); err != nil {
		return targetError(err)
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return cancelledError(err)
	}
	ok, err := s.target.Clickable(ctx, sel)
	if err != nil {
		return targetError(err)
	}
	if !ok {
		return &StepError{Kind: KindInteractionBlocked, Msg: "Element is not clickable: " + sel}
	}
	if err := s.target.Dispatch(ctx, ActionClick, sel, ""); err != nil {
		return targetError(err)
	}
	return nil
}

// input types value one character at a time so pages with keystroke-driven
// validation see the same sequence of input events a user would produce.
func (s *StepExecutor) input(ctx context.Context, sel, value string) error {
	if err := s.waitForElement(ctx, sel); err != nil {
		return err
	}
	if err := s.dispatchAll(ctx, sel, ActionClear, ActionChange); err != nil {
		return err
	}
	for _, ch := range value {
		if err := s.target.Dispatch(ctx, ActionAppend, sel, string(ch)); err != nil {
			return targetError(err)
		}
		if err := s.sleep(ctx, s.opts.TypeDelay); err != nil {
			return cancelledError(err)
		}
	}
	return s.dispatchAll(ctx, sel, ActionChange)
}

func (s *StepExecutor) dispatchAll(ctx context.Context, sel string, actions ...Action) error {
	for _, a := range actions {
		if err := s.target.Dispatch(ctx, a, sel, ""); err != nil {
			return targetError(err)
		}
	}
	return nil
}

func (s *StepExecutor) custom(ctx context.Context, step models.Step, code string, inv Invocation) error {
	if !s.opts.AllowCustomCode {
		return configError(ErrCustomDisabled)
	}
	evalCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.target.Evaluate(evalCtx, code, step, inv); err != nil {
		if ctx.Err() != nil {
			return cancelledError(ctx.Err())
		}
		return &StepError{Kind: KindCustomCode, Msg: err.Error(), Err: err}
	}
	return nil
}

// waitForElement polls every PollInterval until sel matches or Timeout passes.
// Backend errors during polling count as "not found yet".
func (s *StepExecutor) waitForElement(ctx context.Context, sel string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		found, err := s.target.Exists(waitCtx, sel)
		if err == nil && found {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return cancelledError(ctx.Err())
			}
			if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
				s.logger.Debug("element lookup failed while waiting", zap.String("selector", sel), zap.Error(lastErr))
			}
			return &StepError{Kind: KindResolutionTimeout, Msg: "Timeout waiting for element: " + sel}
		case <-ticker.C:
		}
	}
}
