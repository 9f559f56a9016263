package executor

import (
	"context"
	"errors"

	"webflowwizard/engine/internal/models"
)

var (
	ErrRunActive      = errors.New("a run is already active on this executor")
	ErrEmptyWorkflow  = errors.New("workflow has no steps")
	ErrCustomDisabled = errors.New("custom code execution is disabled")
)

// ErrorKind classifies a failed step.
type ErrorKind string

const (
	KindConfig             ErrorKind = "config"
	KindResolutionTimeout  ErrorKind = "resolution_timeout"
	KindInteractionBlocked ErrorKind = "interaction_blocked"
	KindNavigationTimeout  ErrorKind = "navigation_timeout"
	KindCustomCode         ErrorKind = "custom_code"
	KindProtocol           ErrorKind = "protocol"
	KindTarget             ErrorKind = "target"
	KindCancelled          ErrorKind = "cancelled"
)

// Retryable reports whether another attempt of the same step can succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindConfig, KindProtocol, KindCancelled:
		return false
	}
	return true
}

// StepError is a step failure with its kind. Error returns Msg verbatim since
// it becomes the result message.
type StepError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *StepError) Error() string {
	if e.Msg == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf classifies any error returned while executing a step.
func KindOf(err error) ErrorKind {
	var se *StepError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, models.ErrInvalidConfig), errors.Is(err, ErrCustomDisabled):
		return KindConfig
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindTarget
}

func configError(err error) error {
	return &StepError{Kind: KindConfig, Err: err}
}

func targetError(err error) error {
	return &StepError{Kind: KindTarget, Err: err}
}

func cancelledError(err error) error {
	return &StepError{Kind: KindCancelled, Msg: "Execution cancelled", Err: err}
}
