package executor

import (
	"context"

	"webflowwizard/engine/internal/models"
)

// Action is a DOM interaction the executor asks a Target to perform.
type Action string

const (
	ActionClick Action = "click"
	// ActionClear empties a form control.
	ActionClear Action = "clear"
	// ActionAppend appends one character to a control's value and fires an
	// input notification.
	ActionAppend Action = "append"
	ActionChange Action = "change"
	ActionSubmit Action = "submit"
)

// Invocation is the context handed to custom code.
type Invocation struct {
	CurrentStep int `json:"currentStep"`
	TotalSteps  int `json:"totalSteps"`
}

// Target is the page surface a workflow is replayed against. Implementations
// exist for chromedp, rod and an in-memory goquery document.
type Target interface {
	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
	// Clickable reports whether the element has a non-zero box and is the
	// topmost element (or contains it) at the centre of that box.
	Clickable(ctx context.Context, selector string) (bool, error)
	Dispatch(ctx context.Context, action Action, selector, value string) error
	Navigate(ctx context.Context, url string) error
	// LoadSignal subscribes to the next completed page load. Callers subscribe
	// before triggering the load.
	LoadSignal(ctx context.Context) (<-chan struct{}, error)
	// Evaluate runs code as a function body with the step and invocation in
	// scope and waits for it to settle.
	Evaluate(ctx context.Context, code string, step models.Step, inv Invocation) error
}
