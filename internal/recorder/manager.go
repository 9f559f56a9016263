package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/selector"
)

var ErrSessionNotFound = errors.New("recording session not found")

// Session is the capture side of one recorded browser surface. Events is
// closed when the surface goes away.
type Session interface {
	selector.Querier
	TargetID() string
	Events() <-chan RawEvent
	Close() error
}

// SessionFactory opens a capture session on targetURL.
type SessionFactory func(ctx context.Context, targetURL string) (Session, error)

type entry struct {
	rec     *Recorder
	session Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns the recorders of all live sessions, keyed by session id.
// Stopped sessions stay registered until Cleanup so their steps can be saved.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	open     SessionFactory
	opts     Options
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewManager(open SessionFactory, opts Options, n notify.Notifier, logger *zap.Logger) *Manager {
	if n == nil {
		n = notify.Nop
	}
	return &Manager{
		sessions: make(map[string]*entry),
		open:     open,
		opts:     opts,
		notifier: n,
		logger:   logger,
	}
}

func (m *Manager) Start(ctx context.Context, sessionID, targetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, exists := m.sessions[sessionID]; exists {
		if e.rec.IsRecording() {
			return fmt.Errorf("recording session %s: %w", sessionID, ErrAlreadyRecording)
		}
		m.closeLocked(sessionID, e)
	}

	session, err := m.open(ctx, targetURL)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	rec := New(sessionID, session, m.opts, m.notifier, m.logger)
	if err := rec.Start(session.TargetID()); err != nil {
		session.Close()
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	e := &entry{rec: rec, session: session, cancel: cancel, done: make(chan struct{})}
	m.sessions[sessionID] = e
	go m.pump(pumpCtx, sessionID, e)
	return nil
}

// pump feeds captured events into the recorder until the session ends.
func (m *Manager) pump(ctx context.Context, sessionID string, e *entry) {
	defer close(e.done)
	events := e.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if e.rec.IsRecording() {
					if _, err := e.rec.Stop(); err == nil {
						m.logger.Info("capture session ended, recording stopped", zap.String("session_id", sessionID))
					}
				}
				return
			}
			if err := e.rec.HandleEvent(ctx, ev); err != nil {
				m.logger.Warn("failed to record event", zap.String("session_id", sessionID),
					zap.String("type", string(ev.Type)), zap.Error(err))
				m.notifier.Notify(notify.Event{
					Type:      notify.RecordingError,
					SessionID: sessionID,
					Payload:   notify.ErrorPayload{Error: err.Error()},
				})
			}
			if ev.Type == EventTabClosed && !e.rec.IsRecording() {
				if err := e.session.Close(); err != nil {
					m.logger.Debug("close capture session", zap.Error(err))
				}
				return
			}
		}
	}
}

// Stop finalizes the session's recording and releases its browser surface.
func (m *Manager) Stop(sessionID string) ([]models.Step, error) {
	m.mu.RLock()
	e, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	steps, err := e.rec.Stop()
	if err != nil {
		return nil, err
	}
	e.cancel()
	if err := e.session.Close(); err != nil {
		m.logger.Debug("close capture session", zap.String("session_id", sessionID), zap.Error(err))
	}
	return steps, nil
}

// Status reports whether the session is recording and the steps so far.
func (m *Manager) Status(sessionID string) (bool, []models.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.sessions[sessionID]
	if !exists {
		return false, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e.rec.IsRecording(), e.rec.Steps(), nil
}

func (m *Manager) Cleanup(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, exists := m.sessions[sessionID]; exists {
		m.closeLocked(sessionID, e)
	}
}

// Shutdown stops every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.rec.IsRecording() {
			e.rec.Stop()
		}
		m.closeLocked(id, e)
	}
}

func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.sessions {
		if e.rec.IsRecording() {
			n++
		}
	}
	return n
}

func (m *Manager) closeLocked(sessionID string, e *entry) {
	e.cancel()
	e.session.Close()
	delete(m.sessions, sessionID)
}
