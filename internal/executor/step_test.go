package executor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"webflowwizard/engine/internal/models"
)

func TestExecuteNavigationWaitsForLoad(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), models.NewStep("s1", models.NavigationConfig{URL: "https://example.com"}, 0), Invocation{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasPrefix(res.Message, "Step completed in ") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.StepID != "s1" {
		t.Fatalf("StepID = %q, want s1", res.StepID)
	}
	if len(target.navigations) != 1 || target.navigations[0] != "https://example.com" {
		t.Fatalf("navigations = %v", target.navigations)
	}
}

func TestExecuteNavigationTimeout(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	target.loadOnNav = false
	opts := fastOptions()
	opts.Timeout = 150 * time.Millisecond
	s := newTestStepExecutor(t, target, opts)

	start := time.Now()
	res := s.Execute(context.Background(), models.NewStep("nav", models.NavigationConfig{URL: "https://example.com"}, 0), Invocation{})
	elapsed := time.Since(start)

	if res.Success || res.Message != "Navigation timeout" {
		t.Fatalf("expected navigation timeout, got %+v", res)
	}
	if res.ErrorKind != string(KindNavigationTimeout) {
		t.Fatalf("ErrorKind = %q", res.ErrorKind)
	}
	if elapsed < opts.Timeout {
		t.Fatalf("returned after %v, before the %v timeout", elapsed, opts.Timeout)
	}
	if elapsed > opts.Timeout+500*time.Millisecond {
		t.Fatalf("returned after %v, far past the %v timeout", elapsed, opts.Timeout)
	}
}

func TestExecuteClick(t *testing.T) {
	t.Parallel()

	target := newFakeTarget("#submit-btn")
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), models.NewStep("c", models.ClickConfig{Selector: "#submit-btn"}, 0), Invocation{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := target.recordedActions(); !reflect.DeepEqual(got, []string{"click #submit-btn"}) {
		t.Fatalf("actions = %v", got)
	}
}

func TestExecuteClickBlocked(t *testing.T) {
	t.Parallel()

	target := newFakeTarget("#covered")
	target.blocked["#covered"] = true
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), models.NewStep("c", models.ClickConfig{Selector: "#covered"}, 0), Invocation{})
	if res.Success {
		t.Fatal("expected failure for occluded element")
	}
	if res.Message != "Element is not clickable: #covered" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.ErrorKind != string(KindInteractionBlocked) {
		t.Fatalf("ErrorKind = %q", res.ErrorKind)
	}
	if len(target.recordedActions()) != 0 {
		t.Fatalf("blocked element must not be clicked: %v", target.recordedActions())
	}
}

func TestExecuteInputTypesCharacterByCharacter(t *testing.T) {
	t.Parallel()

	target := newFakeTarget("#q")
	opts := fastOptions()
	opts.TypeDelay = 50 * time.Millisecond
	s := newTestStepExecutor(t, target, opts)
	rec := &sleepRecorder{}
	s.sleep = rec.sleep

	res := s.Execute(context.Background(), models.NewStep("i", models.InputConfig{Selector: "#q", Value: "abc"}, 0), Invocation{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	want := []string{"clear #q", "change #q", "append #q a", "append #q b", "append #q c", "change #q"}
	if got := target.recordedActions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	typing := 0
	for _, d := range rec.recorded() {
		if d == opts.TypeDelay {
			typing++
		}
	}
	if typing != 3 {
		t.Fatalf("expected one typing delay per character, got %d (%v)", typing, rec.recorded())
	}
}

func TestExecuteSubmitWaitsForLoad(t *testing.T) {
	t.Parallel()

	target := newFakeTarget("form#login")
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), models.NewStep("s", models.SubmitConfig{Selector: "form#login"}, 0), Invocation{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	target.loadOnNav = false
	res = s.Execute(context.Background(), models.NewStep("s2", models.SubmitConfig{Selector: "form#login"}, 0), Invocation{})
	if res.Success || res.Message != "Navigation timeout" {
		t.Fatalf("expected navigation timeout for a submit without load, got %+v", res)
	}
}

func TestExecuteWaitDuration(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	s := newTestStepExecutor(t, target, fastOptions())

	start := time.Now()
	res := s.Execute(context.Background(), models.NewStep("w", models.WaitConfig{Duration: 500}, 0), Invocation{})
	elapsed := time.Since(start)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if elapsed < 500*time.Millisecond {
		t.Fatalf("wait returned after %v", elapsed)
	}
	if target.existsCalls != 0 {
		t.Fatalf("duration wait must not poll, got %d lookups", target.existsCalls)
	}
}

func TestExecuteWaitWithoutDurationOrSelector(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	s := newTestStepExecutor(t, target, fastOptions())

	start := time.Now()
	res := s.Execute(context.Background(), models.NewStep("w", models.WaitConfig{}, 0), Invocation{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Message, "Wait step requires either duration or selector") {
		t.Fatalf("message = %q", res.Message)
	}
	if res.ErrorKind != string(KindConfig) {
		t.Fatalf("ErrorKind = %q", res.ErrorKind)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("invalid wait step must fail fast")
	}
}

func TestExecuteWaitForSelector(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	s := newTestStepExecutor(t, target, fastOptions())

	go func() {
		time.Sleep(30 * time.Millisecond)
		target.mu.Lock()
		target.elements[".ready"] = true
		target.mu.Unlock()
	}()

	res := s.Execute(context.Background(), models.NewStep("w", models.WaitConfig{Selector: ".ready"}, 0), Invocation{})
	if !res.Success {
		t.Fatalf("expected success once the element appears, got %+v", res)
	}
	if target.existsCalls < 2 {
		t.Fatalf("expected polling, got %d lookups", target.existsCalls)
	}
}

func TestExecuteElementTimeout(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	opts := fastOptions()
	opts.Timeout = 50 * time.Millisecond
	s := newTestStepExecutor(t, target, opts)

	res := s.Execute(context.Background(), models.NewStep("c", models.ClickConfig{Selector: "#missing"}, 0), Invocation{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Timeout waiting for element: #missing" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.ErrorKind != string(KindResolutionTimeout) {
		t.Fatalf("ErrorKind = %q", res.ErrorKind)
	}
}

func TestExecuteCustomCode(t *testing.T) {
	t.Parallel()

	var got Invocation
	target := newFakeTarget()
	target.evaluate = func(_ context.Context, code string, inv Invocation) error {
		got = inv
		if code == "throw" {
			return errors.New("boom")
		}
		return nil
	}
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), customStep("ok", "return 1"), Invocation{CurrentStep: 2, TotalSteps: 5})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got != (Invocation{CurrentStep: 2, TotalSteps: 5}) {
		t.Fatalf("invocation = %+v", got)
	}

	res = s.Execute(context.Background(), customStep("bad", "throw"), Invocation{})
	if res.Success || res.Message != "boom" {
		t.Fatalf("expected the thrown message, got %+v", res)
	}
	if res.ErrorKind != string(KindCustomCode) {
		t.Fatalf("ErrorKind = %q", res.ErrorKind)
	}
}

func TestExecuteCustomCodeDisabled(t *testing.T) {
	t.Parallel()

	called := false
	target := newFakeTarget()
	target.evaluate = func(context.Context, string, Invocation) error {
		called = true
		return nil
	}
	opts := fastOptions()
	opts.AllowCustomCode = false
	s := newTestStepExecutor(t, target, opts)

	res := s.Execute(context.Background(), customStep("c", "return 1"), Invocation{})
	if res.Success || res.ErrorKind != string(KindConfig) {
		t.Fatalf("expected a config failure, got %+v", res)
	}
	if called {
		t.Fatal("disabled custom code must not be evaluated")
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	target.evaluate = func(context.Context, string, Invocation) error {
		panic("driver exploded")
	}
	s := newTestStepExecutor(t, target, fastOptions())

	res := s.Execute(context.Background(), customStep("p", "x"), Invocation{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Message, "driver exploded") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestExecuteTabMarkers(t *testing.T) {
	t.Parallel()

	s := newTestStepExecutor(t, newFakeTarget(), fastOptions())
	for _, step := range []models.Step{
		models.NewStep("a", models.TabSwitchConfig{TabID: "t1"}, 0),
		models.NewStep("b", models.TabClosedConfig{TabID: "t1"}, 0),
	} {
		if res := s.Execute(context.Background(), step, Invocation{}); !res.Success {
			t.Fatalf("%s: expected success, got %+v", step.Type, res)
		}
	}
}

func TestExecuteMismatchedConfig(t *testing.T) {
	t.Parallel()

	s := newTestStepExecutor(t, newFakeTarget(), fastOptions())
	step := models.Step{ID: "x", Type: models.StepClick, Config: models.NavigationConfig{URL: "https://example.com"}}

	res := s.Execute(context.Background(), step, Invocation{})
	if res.Success || res.ErrorKind != string(KindConfig) {
		t.Fatalf("expected config failure, got %+v", res)
	}
}
