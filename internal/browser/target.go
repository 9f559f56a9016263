package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
)

// Target replays steps in a Chrome tab through chromedp.
type Target struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// OpenTarget launches Chrome and returns a target on its first tab. Close
// releases the browser.
func OpenTarget(ctx context.Context, opts Options, logger *zap.Logger) (*Target, error) {
	logger = logger.Named("chromedp")
	cctx, cancel, err := newContext(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Target{ctx: cctx, cancel: cancel, logger: logger}, nil
}

func (t *Target) Close() {
	t.cancel()
}

// run executes actions on the tab and aborts them when ctx ends.
func (t *Target) run(ctx context.Context, actions ...chromedp.Action) error {
	return runBound(t.ctx, ctx, actions...)
}

// runBound runs actions on the chromedp context tab, cancelling them when
// caller ends. Cancelling the derived context leaves the tab open.
func runBound(tab, caller context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// call renders fn applied to args encoded as JSON literals.
func call(fn string, args ...interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode argument %d: %w", i, err)
		}
		encoded[i] = string(data)
	}
	return fn + "(" + strings.Join(encoded, ", ") + ")", nil
}

func (t *Target) eval(ctx context.Context, res interface{}, fn string, args ...interface{}) error {
	expr, err := call(fn, args...)
	if err != nil {
		return err
	}
	return t.run(ctx, chromedp.Evaluate(expr, res))
}

func (t *Target) Count(ctx context.Context, sel string) (int, error) {
	var n int
	if err := t.eval(ctx, &n, countScript, sel); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *Target) Exists(ctx context.Context, sel string) (bool, error) {
	n, err := t.Count(ctx, sel)
	return n > 0, err
}

func (t *Target) ScrollIntoView(ctx context.Context, sel string) error {
	var ok bool
	return t.eval(ctx, &ok, scrollScript, sel)
}

func (t *Target) Clickable(ctx context.Context, sel string) (bool, error) {
	var ok bool
	err := t.eval(ctx, &ok, clickableScript, sel)
	return ok, err
}

func (t *Target) Dispatch(ctx context.Context, action executor.Action, sel, value string) error {
	var ok bool
	return t.eval(ctx, &ok, dispatchScript, string(action), sel, value)
}

func (t *Target) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	}))
}

// LoadSignal closes the returned channel on the tab's next load event.
func (t *Target) LoadSignal(ctx context.Context) (<-chan struct{}, error) {
	return loadSignal(t.ctx, ctx), nil
}

func loadSignal(tab, caller context.Context) <-chan struct{} {
	listenCtx, cancel := context.WithCancel(tab)
	context.AfterFunc(caller, cancel)

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})
	return loaded
}

// Evaluate runs code as the body of a function taking step and context and
// awaits the value it returns.
func (t *Target) Evaluate(ctx context.Context, code string, step models.Step, inv executor.Invocation) error {
	expr, err := call(customScript, code, step, inv)
	if err != nil {
		return err
	}
	var ok bool
	return t.run(ctx, chromedp.Evaluate(expr, &ok, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}
