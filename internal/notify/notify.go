// Package notify carries fire-and-forget notifications from recording
// sessions and runs to whoever is listening (websocket clients, NATS).
package notify

import (
	"time"
)

type EventType string

const (
	StepCommitted     EventType = "step_committed"
	RecordingStarted  EventType = "recording_started"
	RecordingStopped  EventType = "recording_stopped"
	RecordingError    EventType = "recording_error"
	ExecutionProgress EventType = "execution_progress"
	ExecutionStepDone EventType = "execution_step_result"
	ExecutionComplete EventType = "execution_complete"
	ExecutionError    EventType = "execution_error"
)

// Event is addressed by SessionID for recording events and by RunID for
// execution events.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Time      time.Time   `json:"time"`
}

// Topic is the address subscribers listen on.
func (e Event) Topic() string {
	if e.RunID != "" {
		return e.RunID
	}
	return e.SessionID
}

// Notifier must not block the caller for long.
type Notifier interface {
	Notify(Event)
}

type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

type nop struct{}

func (nop) Notify(Event) {}

// Nop discards every event.
var Nop Notifier = nop{}

// Multi fans one event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// ProgressPayload is sent with ExecutionProgress.
type ProgressPayload struct {
	Progress    int    `json:"progress"`
	CurrentStep int    `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	StepID      string `json:"stepId"`
	StepType    string `json:"stepType"`
}

// ErrorPayload is sent with RecordingError and ExecutionError.
type ErrorPayload struct {
	Error string `json:"error"`
}
