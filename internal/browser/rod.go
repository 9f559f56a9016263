package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
)

// RodTarget replays steps through go-rod. It shares the page helpers of the
// chromedp target, so both backends see the same DOM semantics.
type RodTarget struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	logger   *zap.Logger
}

func OpenRodTarget(ctx context.Context, opts Options, logger *zap.Logger) (*RodTarget, error) {
	path, err := opts.execPath()
	if err != nil {
		return nil, err
	}
	l := launcher.New().Context(ctx).Bin(path).Headless(opts.Headless).Set("no-sandbox")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	dev := opts.device()
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(dev.Width),
		Height:            int(dev.Height),
		DeviceScaleFactor: dev.DevicePixelRatio,
		Mobile:            dev.Mobile,
	})
	if err == nil {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: dev.UserAgent})
	}
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("emulate device %s: %w", dev.Name, err)
	}

	return &RodTarget{browser: browser, page: page, launcher: l, logger: logger.Named("rod")}, nil
}

func (t *RodTarget) Close() {
	if err := t.browser.Close(); err != nil {
		t.logger.Debug("close browser", zap.Error(err))
	}
	t.launcher.Kill()
}

func (t *RodTarget) eval(ctx context.Context, fn string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	expr, err := call(fn, args...)
	if err != nil {
		return nil, err
	}
	return t.page.Context(ctx).Eval("() => " + expr)
}

func (t *RodTarget) Count(ctx context.Context, sel string) (int, error) {
	res, err := t.eval(ctx, countScript, sel)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (t *RodTarget) Exists(ctx context.Context, sel string) (bool, error) {
	n, err := t.Count(ctx, sel)
	return n > 0, err
}

func (t *RodTarget) ScrollIntoView(ctx context.Context, sel string) error {
	_, err := t.eval(ctx, scrollScript, sel)
	return err
}

func (t *RodTarget) Clickable(ctx context.Context, sel string) (bool, error) {
	res, err := t.eval(ctx, clickableScript, sel)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (t *RodTarget) Dispatch(ctx context.Context, action executor.Action, sel, value string) error {
	_, err := t.eval(ctx, dispatchScript, string(action), sel, value)
	return err
}

func (t *RodTarget) Navigate(ctx context.Context, url string) error {
	return t.page.Context(ctx).Navigate(url)
}

// LoadSignal closes the returned channel on the page's next load event. It
// stays open when ctx ends first.
func (t *RodTarget) LoadSignal(ctx context.Context) (<-chan struct{}, error) {
	loaded := make(chan struct{})
	wait := t.page.Context(ctx).EachEvent(func(*proto.PageLoadEventFired) bool {
		return true
	})
	go func() {
		wait()
		if ctx.Err() == nil {
			close(loaded)
		}
	}()
	return loaded, nil
}

func (t *RodTarget) Evaluate(ctx context.Context, code string, step models.Step, inv executor.Invocation) error {
	expr, err := call(customScript, code, step, inv)
	if err != nil {
		return err
	}
	_, err = t.page.Context(ctx).Evaluate(rod.Eval("() => " + expr).ByPromise())
	return err
}
