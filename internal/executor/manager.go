package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
)

var (
	ErrRunExists   = errors.New("run already registered")
	ErrRunNotFound = errors.New("run not found")
	ErrQueueFull   = errors.New("execution queue is full")
)

// TargetFactory opens a fresh surface for one run. release is called once
// the run is over.
type TargetFactory func(ctx context.Context) (target Target, release func(), err error)

// Job is one queued workflow run. Done receives the report once the run
// ended, from the worker goroutine.
type Job struct {
	RunID   string
	Steps   []models.Step
	Options Options
	Hooks   Hooks
	Done    func(RunReport, error)
}

// Status is the answer to an execution status query.
type Status struct {
	Status      string `json:"status"`
	Progress    *int   `json:"progress,omitempty"`
	CurrentStep *int   `json:"currentStep,omitempty"`
}

const (
	StatusIdle      = "idle"
	StatusExecuting = "executing"
)

type run struct {
	exec    *WorkflowExecutor
	stopped bool
}

// Manager runs queued workflows on a fixed pool of workers, each run on its
// own WorkflowExecutor and its own target.
type Manager struct {
	open       TargetFactory
	maxWorkers int
	workQueue  chan Job
	wg         sync.WaitGroup
	mutex      sync.RWMutex
	running    map[string]*run
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	closed     bool
}

func NewManager(open TargetFactory, maxWorkers int, logger *zap.Logger) *Manager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		open:       open,
		maxWorkers: maxWorkers,
		workQueue:  make(chan Job, maxWorkers*2),
		running:    make(map[string]*run),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.Named("runs"),
	}
	for i := 0; i < maxWorkers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.logger.Info("execution manager started", zap.Int("workers", maxWorkers))
	return m
}

// Submit queues a run. It fails fast when the workflow is empty, the run id is
// taken or the queue is full.
func (m *Manager) Submit(job Job) error {
	if len(job.Steps) == 0 {
		return ErrEmptyWorkflow
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return errors.New("execution manager is shut down")
	}
	if _, exists := m.running[job.RunID]; exists {
		return fmt.Errorf("%w: %s", ErrRunExists, job.RunID)
	}

	select {
	case m.workQueue <- job:
		m.running[job.RunID] = &run{}
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.workQueue {
		report, err := m.execute(job)
		if job.Done != nil {
			job.Done(report, err)
		}

		m.mutex.Lock()
		delete(m.running, job.RunID)
		m.mutex.Unlock()
	}
}

func (m *Manager) execute(job Job) (report RunReport, err error) {
	logger := m.logger.With(zap.String("run_id", job.RunID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered in run", zap.Any("panic", r))
			report = RunReport{State: StateFailed}
			err = fmt.Errorf("run panic: %v", r)
		}
	}()

	m.mutex.RLock()
	r := m.running[job.RunID]
	stopped := r == nil || r.stopped
	m.mutex.RUnlock()
	if stopped {
		logger.Info("run stopped before it started")
		return RunReport{State: StateStopped, Results: []models.ExecutionResult{}}, nil
	}

	target, release, err := m.open(m.ctx)
	if err != nil {
		return RunReport{State: StateFailed}, fmt.Errorf("open target: %w", err)
	}
	defer release()

	exec := NewWorkflowExecutor(target, job.Options, job.Hooks, logger)
	exec.halted = func() bool {
		m.mutex.RLock()
		defer m.mutex.RUnlock()
		return r.stopped
	}
	m.mutex.Lock()
	r.exec = exec
	m.mutex.Unlock()

	logger.Info("run started", zap.Int("steps", len(job.Steps)))
	report, err = exec.Run(m.ctx, job.Steps)
	logger.Info("run finished", zap.String("state", string(report.State)),
		zap.Int("results", len(report.Results)), zap.Duration("duration", report.Duration))
	return report, err
}

// Stop asks a run to end at its next step boundary. Queued runs never start.
func (m *Manager) Stop(runID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	r, exists := m.running[runID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	r.stopped = true
	if r.exec != nil {
		r.exec.Stop()
	}
	return nil
}

// Status reports a queued or running run as executing and anything else as
// idle.
func (m *Manager) Status(runID string) Status {
	m.mutex.RLock()
	r, exists := m.running[runID]
	var exec *WorkflowExecutor
	if exists {
		exec = r.exec
	}
	m.mutex.RUnlock()

	if !exists {
		return Status{Status: StatusIdle}
	}
	p := Progress{}
	if exec != nil {
		p = exec.Progress()
	}
	return Status{Status: StatusExecuting, Progress: &p.Percent, CurrentStep: &p.CurrentStep}
}

func (m *Manager) IsRunning(runID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, exists := m.running[runID]
	return exists
}

func (m *Manager) GetRunningCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.running)
}

// Shutdown cancels in-flight runs and waits for the workers to exit.
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return
	}
	m.closed = true
	close(m.workQueue)
	m.mutex.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("execution manager stopped")
}
