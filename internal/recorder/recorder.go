package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/selector"
)

var (
	ErrAlreadyRecording = errors.New("recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

const DefaultDebounceWindow = 500 * time.Millisecond

type Options struct {
	// DebounceWindow is how long a click waits for a newer click before it
	// is committed.
	DebounceWindow time.Duration
	// VolatileClasses overrides selector.DefaultVolatilePatterns when set.
	VolatileClasses []*regexp.Regexp
}

// state is either idleState or *recordingState.
type state interface {
	String() string
}

type idleState struct{}

func (idleState) String() string { return "idle" }

type recordingState struct {
	target  string
	steps   []models.Step
	pending *pendingClick
	lastTS  int64
	lastURL string
	seq     uint64
}

func (*recordingState) String() string { return "recording" }

type pendingClick struct {
	seq    uint64
	config models.ClickConfig
	ts     int64
	timer  *time.Timer
}

// Recorder turns captured events of one page into steps. One Recorder serves
// one recording session at a time.
type Recorder struct {
	mu       sync.Mutex
	id       string
	synth    *selector.Synthesizer
	opts     Options
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	state    state
	last     []models.Step
}

// New returns an idle recorder whose selectors are validated against q.
func New(sessionID string, q selector.Querier, opts Options, n notify.Notifier, logger *zap.Logger) *Recorder {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if n == nil {
		n = notify.Nop
	}
	return &Recorder{
		id:       sessionID,
		synth:    selector.NewSynthesizer(q, opts.VolatileClasses),
		opts:     opts,
		notifier: n,
		logger:   logger.Named("recorder").With(zap.String("session_id", sessionID)),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		state:    idleState{},
	}
}

// Start moves the recorder to recording with an empty step buffer. target
// names the recorded surface; closing it ends the session.
func (r *Recorder) Start(target string) error {
	r.mu.Lock()
	if _, ok := r.state.(*recordingState); ok {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.state = &recordingState{target: target, steps: make([]models.Step, 0)}
	r.last = nil
	r.mu.Unlock()

	r.logger.Info("recording started", zap.String("target", target))
	r.notifier.Notify(notify.Event{Type: notify.RecordingStarted, SessionID: r.id, Time: r.now()})
	return nil
}

// Stop commits a pending click, finalizes the session and returns its steps.
func (r *Recorder) Stop() ([]models.Step, error) {
	r.mu.Lock()
	rs, ok := r.state.(*recordingState)
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	committed := r.flushPendingLocked(rs)
	steps := r.finishLocked(rs)
	r.mu.Unlock()

	r.announce(committed)
	r.logger.Info("recording stopped", zap.Int("steps", len(steps)))
	r.notifier.Notify(notify.Event{Type: notify.RecordingStopped, SessionID: r.id, Payload: steps, Time: r.now()})
	return copySteps(steps), nil
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.state.(*recordingState)
	return ok
}

// Steps returns the live buffer while recording and the finalized sequence of
// the last session otherwise.
func (r *Recorder) Steps() []models.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.state.(*recordingState); ok {
		return copySteps(rs.steps)
	}
	return copySteps(r.last)
}

// HandleEvent converts one captured event into zero or one step. Events that
// arrive while idle are ignored.
func (r *Recorder) HandleEvent(ctx context.Context, ev RawEvent) error {
	r.mu.Lock()
	rs, ok := r.state.(*recordingState)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	switch ev.Type {
	case EventClick, EventDblClick:
		return r.bufferClick(ctx, rs, ev)
	case EventInput, EventSubmit, EventKeydown, EventNavigation, EventTabSwitch, EventTabClosed:
	default:
		return fmt.Errorf("unsupported event type %q", ev.Type)
	}

	cfg, err := r.configFor(ctx, ev)
	if err != nil || cfg == nil {
		return err
	}

	r.mu.Lock()
	if r.state != state(rs) {
		r.mu.Unlock()
		return nil
	}
	if nav, isNav := cfg.(models.NavigationConfig); isNav {
		if nav.URL == rs.lastURL {
			r.mu.Unlock()
			return nil
		}
		rs.lastURL = nav.URL
	}
	committed := r.flushPendingLocked(rs)
	committed = append(committed, r.commitLocked(rs, cfg, ev.Timestamp))

	var finished []models.Step
	if tab, closed := cfg.(models.TabClosedConfig); closed && tab.TabID == rs.target {
		finished = r.finishLocked(rs)
	}
	r.mu.Unlock()

	r.announce(committed)
	if finished != nil {
		r.logger.Info("recorded tab closed, recording stopped", zap.Int("steps", len(finished)))
		r.notifier.Notify(notify.Event{Type: notify.RecordingStopped, SessionID: r.id, Payload: finished, Time: r.now()})
	}
	return nil
}

// configFor builds the step config for a non-click event. A nil config means
// the event is not recorded.
func (r *Recorder) configFor(ctx context.Context, ev RawEvent) (models.StepConfig, error) {
	switch ev.Type {
	case EventInput:
		if ev.Target == nil {
			return nil, errors.New("input event without target")
		}
		cfg := models.InputConfig{
			Selector:  r.synth.Synthesize(ctx, ev.Target),
			Value:     ev.Value,
			InputType: ev.InputType,
		}
		if isSecret(ev.InputType) {
			cfg.Value = models.PasswordMask
			cfg.IsPassword = true
		}
		return cfg, nil
	case EventSubmit:
		if ev.Target == nil {
			return nil, errors.New("submit event without target")
		}
		return models.SubmitConfig{
			Selector: r.synth.Synthesize(ctx, ev.Target),
			FormData: formData(ev.Form),
		}, nil
	case EventKeydown:
		if !recordedChord(ev) {
			return nil, nil
		}
		return models.CustomConfig{Code: chordScript(ev)}, nil
	case EventNavigation:
		if ev.URL == "" {
			return nil, nil
		}
		return models.NavigationConfig{URL: ev.URL, Title: ev.Title}, nil
	case EventTabSwitch:
		return models.TabSwitchConfig{TabID: ev.TabID}, nil
	case EventTabClosed:
		return models.TabClosedConfig{TabID: ev.TabID}, nil
	}
	return nil, nil
}

func (r *Recorder) bufferClick(ctx context.Context, rs *recordingState, ev RawEvent) error {
	if ev.Target == nil {
		return errors.New("click event without target")
	}
	cfg := models.ClickConfig{
		Selector:   r.synth.Synthesize(ctx, ev.Target),
		InnerText:  strings.TrimSpace(ev.InnerText),
		Tag:        strings.ToLower(ev.Target.Tag),
		Attributes: elementAttributes(ev.Target),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != state(rs) {
		return nil
	}
	// The window is fixed from the first buffered click; later clicks only
	// replace what it will commit.
	if rs.pending != nil {
		rs.pending.config = cfg
		rs.pending.ts = ev.Timestamp
		return nil
	}
	rs.seq++
	seq := rs.seq
	rs.pending = &pendingClick{seq: seq, config: cfg, ts: ev.Timestamp}
	rs.pending.timer = time.AfterFunc(r.opts.DebounceWindow, func() {
		r.flushClick(rs, seq)
	})
	return nil
}

func (r *Recorder) flushClick(rs *recordingState, seq uint64) {
	r.mu.Lock()
	if r.state != state(rs) || rs.pending == nil || rs.pending.seq != seq {
		r.mu.Unlock()
		return
	}
	committed := r.flushPendingLocked(rs)
	r.mu.Unlock()
	r.announce(committed)
}

func (r *Recorder) flushPendingLocked(rs *recordingState) []models.Step {
	p := rs.pending
	if p == nil {
		return nil
	}
	p.timer.Stop()
	rs.pending = nil
	return []models.Step{r.commitLocked(rs, p.config, p.ts)}
}

// commitLocked appends a step, keeping timestamps non-decreasing.
func (r *Recorder) commitLocked(rs *recordingState, cfg models.StepConfig, ts int64) models.Step {
	if ts <= 0 {
		ts = r.now().UnixMilli()
	}
	if ts < rs.lastTS {
		ts = rs.lastTS
	}
	rs.lastTS = ts
	step := models.NewStep(r.newID(), cfg, ts)
	rs.steps = append(rs.steps, step)
	return step
}

func (r *Recorder) finishLocked(rs *recordingState) []models.Step {
	r.last = rs.steps
	r.state = idleState{}
	return rs.steps
}

func (r *Recorder) announce(steps []models.Step) {
	for _, s := range steps {
		r.logger.Debug("step committed", zap.String("step_id", s.ID), zap.String("type", string(s.Type)))
		r.notifier.Notify(notify.Event{Type: notify.StepCommitted, SessionID: r.id, Payload: s, Time: r.now()})
	}
}

func copySteps(steps []models.Step) []models.Step {
	if steps == nil {
		return nil
	}
	return append([]models.Step(nil), steps...)
}

// chordScript re-dispatches a recorded key chord on the focused element.
func chordScript(ev RawEvent) string {
	init, _ := json.Marshal(map[string]interface{}{
		"key":        ev.Key,
		"ctrlKey":    ev.CtrlKey,
		"metaKey":    ev.MetaKey,
		"altKey":     ev.AltKey,
		"shiftKey":   ev.ShiftKey,
		"bubbles":    true,
		"cancelable": true,
	})
	return fmt.Sprintf(`const el = document.activeElement || document.body;
const init = %s;
el.dispatchEvent(new KeyboardEvent('keydown', init));
el.dispatchEvent(new KeyboardEvent('keyup', init));`, init)
}
