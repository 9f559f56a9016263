package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/recorder"
)

const drainInterval = 100 * time.Millisecond

// Session captures user interaction in a visible Chrome window and reports it
// as recorder events.
type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID string
	logger   *zap.Logger

	mu     sync.Mutex
	queue  []recorder.RawEvent
	tabs   map[string]bool
	wake   chan struct{}
	events chan recorder.RawEvent

	closeOnce sync.Once
	done      chan struct{}
}

// OpenSession launches Chrome, installs the recording script and navigates to
// targetURL. The navigation itself is reported as the first event.
func OpenSession(ctx context.Context, opts Options, targetURL string, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("capture")
	cctx, cancel, err := newContext(context.Background(), opts, logger)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ctx:      cctx,
		cancel:   cancel,
		targetID: string(chromedp.FromContext(cctx).Target.TargetID),
		logger:   logger,
		tabs:     make(map[string]bool),
		wake:     make(chan struct{}, 1),
		events:   make(chan recorder.RawEvent, 64),
		done:     make(chan struct{}),
	}
	s.tabs[s.targetID] = true
	chromedp.ListenTarget(cctx, s.onTargetEvent)
	chromedp.ListenBrowser(cctx, s.onBrowserEvent)

	err = runBound(cctx, ctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(recordingScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, c.Browser))
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(targetURL).Do(ctx)
			if err == nil && errorText != "" {
				err = fmt.Errorf("page load error %s", errorText)
			}
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}

	go s.forward()
	go s.drain()
	return s, nil
}

func (s *Session) TargetID() string { return s.targetID }

func (s *Session) Events() <-chan recorder.RawEvent { return s.events }

func (s *Session) Count(ctx context.Context, sel string) (int, error) {
	expr, err := call(countScript, sel)
	if err != nil {
		return 0, err
	}
	var n int
	if err := runBound(s.ctx, ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Close shuts the browser down. Events is closed once the forwarder exits.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

func (s *Session) push(ev recorder.RawEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// forward hands queued events to Events in order. CDP listeners must not
// block, so they only append to the queue.
func (s *Session) forward() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// drain polls the in-page queue used when the binding is unavailable.
func (s *Session) drain() {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var batch []recorder.RawEvent
			err := chromedp.Run(s.ctx, chromedp.Evaluate(
				`window.__webflowRecorder ? window.__webflowRecorder.drain() : []`, &batch))
			if err != nil {
				s.logger.Debug("drain recorded events", zap.Error(err))
				continue
			}
			for _, ev := range batch {
				s.tag(&ev)
				s.push(ev)
			}
		}
	}
}

func (s *Session) tag(ev *recorder.RawEvent) {
	if ev.TabID == "" {
		ev.TabID = s.targetID
	}
}

func (s *Session) onTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != bindingName {
			return
		}
		var raw recorder.RawEvent
		if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
			s.logger.Warn("malformed recorded event", zap.Error(err))
			return
		}
		s.tag(&raw)
		s.push(raw)
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		s.push(recorder.RawEvent{
			Type:      recorder.EventNavigation,
			URL:       e.Frame.URL + e.Frame.URLFragment,
			TabID:     s.targetID,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (s *Session) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info == nil || info.Type != "page" || string(info.OpenerID) != s.targetID {
			return
		}
		s.mu.Lock()
		s.tabs[string(info.TargetID)] = true
		s.mu.Unlock()
		s.push(recorder.RawEvent{
			Type:      recorder.EventTabSwitch,
			TabID:     string(info.TargetID),
			URL:       info.URL,
			Timestamp: time.Now().UnixMilli(),
		})
	case *target.EventTargetDestroyed:
		s.mu.Lock()
		known := s.tabs[string(e.TargetID)]
		delete(s.tabs, string(e.TargetID))
		s.mu.Unlock()
		if !known {
			return
		}
		s.push(recorder.RawEvent{
			Type:      recorder.EventTabClosed,
			TabID:     string(e.TargetID),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
