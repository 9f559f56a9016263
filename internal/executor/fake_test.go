package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

// fakeTarget is a scripted Target. Elements listed in elements exist;
// blocked ones fail the clickable check.
type fakeTarget struct {
	mu          sync.Mutex
	elements    map[string]bool
	blocked     map[string]bool
	loadOnNav   bool
	existsCalls int
	actions     []string
	navigations []string
	evaluate    func(ctx context.Context, code string, inv Invocation) error
	waiters     []chan struct{}
}

func newFakeTarget(selectors ...string) *fakeTarget {
	f := &fakeTarget{
		elements:  make(map[string]bool),
		blocked:   make(map[string]bool),
		loadOnNav: true,
	}
	for _, s := range selectors {
		f.elements[s] = true
	}
	return f
}

func (f *fakeTarget) Exists(_ context.Context, sel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.elements[sel], nil
}

func (f *fakeTarget) ScrollIntoView(context.Context, string) error { return nil }

func (f *fakeTarget) Clickable(_ context.Context, sel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked[sel], nil
}

func (f *fakeTarget) Dispatch(_ context.Context, action Action, sel, value string) error {
	f.mu.Lock()
	entry := fmt.Sprintf("%s %s", action, sel)
	if value != "" {
		entry += " " + value
	}
	f.actions = append(f.actions, entry)
	fire := action == ActionSubmit && f.loadOnNav
	f.mu.Unlock()
	if fire {
		f.fireLoad()
	}
	return nil
}

func (f *fakeTarget) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.navigations = append(f.navigations, url)
	fire := f.loadOnNav
	f.mu.Unlock()
	if fire {
		f.fireLoad()
	}
	return nil
}

func (f *fakeTarget) LoadSignal(context.Context) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	return ch, nil
}

func (f *fakeTarget) Evaluate(ctx context.Context, code string, _ models.Step, inv Invocation) error {
	if f.evaluate == nil {
		return nil
	}
	return f.evaluate(ctx, code, inv)
}

func (f *fakeTarget) fireLoad() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.waiters {
		close(ch)
	}
	f.waiters = nil
}

func (f *fakeTarget) recordedActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

// sleepRecorder replaces real sleeps and remembers requested durations.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func fastOptions() Options {
	return Options{
		Timeout:           200 * time.Millisecond,
		RetryCount:        3,
		BackoffBase:       time.Second,
		DelayBetweenSteps: time.Second,
		PollInterval:      5 * time.Millisecond,
		AllowCustomCode:   true,
	}
}

func newTestStepExecutor(t *testing.T, target Target, opts Options) *StepExecutor {
	t.Helper()
	return NewStepExecutor(target, opts, zap.NewNop())
}

func newTestWorkflow(t *testing.T, target Target, opts Options, hooks Hooks) (*WorkflowExecutor, *sleepRecorder) {
	t.Helper()
	w := NewWorkflowExecutor(target, opts, hooks, zap.NewNop())
	rec := &sleepRecorder{}
	w.sleep = rec.sleep
	return w, rec
}

func customStep(id, code string) models.Step {
	return models.NewStep(id, models.CustomConfig{Code: code}, 0)
}
