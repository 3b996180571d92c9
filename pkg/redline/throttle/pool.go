package throttle

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// Task is one unit of pooled work. The context is the pool's and is
// cancelled when the pool stops.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers. It exists for batch
// processing: chunks are submitted as tasks and the worker count keeps
// total producer concurrency bounded.
type Pool struct {
	log    *zap.Logger
	tasks  chan Task
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines (default 8) with a task queue of
// queueSize (default 4x workers).
func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		log:    log,
		tasks:  make(chan Task, queueSize),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues a task. It blocks while the queue is full and fails
// with ErrClosed once the pool has stopped. A task accepted by Submit
// is guaranteed to run: callers pair bookkeeping with task execution.
func (p *Pool) Submit(t Task) error {
	// The read lock holds the closed flag steady across the enqueue, so
	// a task never lands in the queue after Stop has started draining.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return internalerr.ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	case <-p.quit:
		return internalerr.ErrClosed
	}
}

// Stop cancels the pool context, lets the workers finish every task
// Submit accepted (queued tasks run with the cancelled context) and
// waits for them to return. Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
		p.cancel()
	})
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			p.run(id, t)
		case <-p.quit:
			// Drain what was accepted before shutdown.
			for {
				select {
				case t := <-p.tasks:
					p.run(id, t)
				default:
					return
				}
			}
		}
	}
}

// run executes one task, containing panics so a bad chunk cannot take
// a worker down with it.
func (p *Pool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("pooled task panicked",
				zap.Int("worker", id),
				zap.Any("panic", r))
		}
	}()
	t(p.ctx)
}
