package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/market-research/internal/observability"
)

// Pool errors.
var (
	ErrPoolFull   = errors.New("run queue is full")
	ErrPoolClosed = errors.New("run pool is closed")
)

// Default pool sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// RunFunc executes one run. Orchestrator.Run satisfies it.
type RunFunc func(ctx context.Context, id uuid.UUID) error

// Handle tracks a submitted run.
type Handle struct {
	ID   uuid.UUID
	done chan struct{}
	err  error
}

// Done is closed when the run has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the run's error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool runs submitted requests on a fixed number of workers fed by a bounded queue.
// Submission never blocks the caller.
type Pool struct {
	run     RunFunc
	queue   chan *Handle
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger.
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = observability.OrNop(logger) }
}

// WithPoolMetrics reports queue depth.
func WithPoolMetrics(m *observability.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool starts workers goroutines executing run.
func NewPool(run RunFunc, workers, queueSize int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		run:    run,
		queue:  make(chan *Handle, queueSize),
		group:  &errgroup.Group{},
		ctx:    ctx,
		cancel: cancel,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Submit queues a run for id.
func (p *Pool) Submit(id uuid.UUID) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	h := &Handle{ID: id, done: make(chan struct{})}
	select {
	case p.queue <- h:
		p.metrics.QueueDepth(len(p.queue))
		return h, nil
	default:
		return nil, ErrPoolFull
	}
}

// Close stops accepting runs and waits for queued and active runs to finish. When ctx
// ends first, in-flight runs are cancelled and ctx's error is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker() error {
	for h := range p.queue {
		p.metrics.QueueDepth(len(p.queue))
		p.execute(h)
	}
	return nil
}

func (p *Pool) execute(h *Handle) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.err = fmt.Errorf("run panicked: %v", r)
			p.logger.Error("run panicked", zap.String("request_id", h.ID.String()), zap.Any("panic", r))
		}
	}()

	if err := p.ctx.Err(); err != nil {
		h.err = fmt.Errorf("%w: run dropped: %v", ErrPoolClosed, err)
		return
	}
	h.err = p.run(p.ctx, h.ID)
	if h.err != nil {
		p.logger.Warn("run ended with error", zap.String("request_id", h.ID.String()), zap.Error(h.err))
	}
}
