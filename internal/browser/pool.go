package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/recorder"
)

const (
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
)

var ErrTooManyInstances = errors.New("too many chrome instances")

// Pool launches Chrome instances for recording and replay and keeps track of
// them so they can be torn down together. Replay uses the headless options,
// recording always opens a visible window.
type Pool struct {
	mutex        sync.Mutex
	instances    map[int]func()
	nextID       int
	maxInstances int
	backend      string
	opts         Options
	logger       *zap.Logger
}

func NewPool(opts Options, backend string, maxInstances int, logger *zap.Logger) *Pool {
	if backend == "" {
		backend = BackendChromedp
	}
	return &Pool{
		instances:    make(map[int]func()),
		maxInstances: maxInstances,
		backend:      backend,
		opts:         opts,
		logger:       logger.Named("browser"),
	}
}

func (p *Pool) reserve() (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.maxInstances > 0 && len(p.instances) >= p.maxInstances {
		return 0, fmt.Errorf("%w: limit is %d", ErrTooManyInstances, p.maxInstances)
	}
	p.nextID++
	p.instances[p.nextID] = func() {}
	return p.nextID, nil
}

func (p *Pool) track(id int, closeFn func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.instances[id] = closeFn
}

func (p *Pool) release(id int) {
	p.mutex.Lock()
	closeFn, ok := p.instances[id]
	delete(p.instances, id)
	p.mutex.Unlock()
	if ok {
		closeFn()
	}
}

// OpenTarget satisfies executor.TargetFactory.
func (p *Pool) OpenTarget(ctx context.Context) (executor.Target, func(), error) {
	id, err := p.reserve()
	if err != nil {
		return nil, nil, err
	}

	var (
		t       executor.Target
		closeFn func()
	)
	switch p.backend {
	case BackendRod:
		rt, err := OpenRodTarget(ctx, p.opts, p.logger)
		if err != nil {
			p.release(id)
			return nil, nil, err
		}
		t, closeFn = rt, rt.Close
	default:
		ct, err := OpenTarget(ctx, p.opts, p.logger)
		if err != nil {
			p.release(id)
			return nil, nil, err
		}
		t, closeFn = ct, ct.Close
	}

	p.track(id, closeFn)
	p.logger.Info("chrome instance started", zap.Int("instance", id), zap.String("backend", p.backend))
	return t, func() { p.release(id) }, nil
}

// OpenSession satisfies recorder.SessionFactory.
func (p *Pool) OpenSession(ctx context.Context, targetURL string) (recorder.Session, error) {
	id, err := p.reserve()
	if err != nil {
		return nil, err
	}
	opts := p.opts
	opts.Headless = false
	s, err := OpenSession(ctx, opts, targetURL, p.logger)
	if err != nil {
		p.release(id)
		return nil, err
	}
	p.track(id, func() { s.Close() })
	go func() {
		select {
		case <-s.done:
		case <-s.ctx.Done():
		}
		p.release(id)
	}()
	return s, nil
}

func (p *Pool) Active() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.instances)
}

// CloseAll shuts every tracked instance down.
func (p *Pool) CloseAll() {
	p.mutex.Lock()
	instances := p.instances
	p.instances = make(map[int]func())
	p.mutex.Unlock()

	for _, closeFn := range instances {
		closeFn()
	}
	p.logger.Info("all chrome instances closed", zap.Int("count", len(instances)))
}
