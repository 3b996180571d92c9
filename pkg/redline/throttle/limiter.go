// Package throttle bounds how much suggestion work runs at once: a
// FIFO admission limiter for single requests and a fixed worker pool
// for batch chunks.
package throttle

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// Config bounds the limiter.
type Config struct {
	// MaxInFlight requests admitted at once.
	// Default: 8
	MaxInFlight int

	// QueueTimeout a queued request waits for a slot before failing.
	// Default: 10s
	QueueTimeout time.Duration
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{MaxInFlight: 8, QueueTimeout: 10 * time.Second}
}

type waiter struct {
	ready chan struct{} // buffered; receives exactly one grant
}

// Limiter admits up to MaxInFlight concurrent holders. Excess callers
// queue in arrival order; a released slot always goes to the oldest
// waiter, so no request can be starved by later arrivals.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	inFlight int
	waiters  *list.List // of *waiter
}

// NewLimiter builds a limiter, filling zero config fields from
// DefaultConfig.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	return &Limiter{cfg: cfg, waiters: list.New()}
}

// Acquire takes a slot, queueing when all are busy. It fails with
// ErrQueueTimeout after QueueTimeout, or with ctx.Err() if the caller
// gives up first. On success the caller must Release exactly once.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.inFlight < l.cfg.MaxInFlight && l.waiters.Len() == 0 {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{}, 1)}
	elem := l.waiters.PushBack(w)
	l.mu.Unlock()

	timer := time.NewTimer(l.cfg.QueueTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return nil
	case <-timer.C:
		if l.abandon(elem, w) {
			return fmt.Errorf("%w: no slot after %v", internalerr.ErrQueueTimeout, l.cfg.QueueTimeout)
		}
		// A grant raced the timer; the slot is ours.
		return nil
	case <-ctx.Done():
		if l.abandon(elem, w) {
			return ctx.Err()
		}
		l.Release()
		return ctx.Err()
	}
}

// abandon removes a waiter from the queue. It reports false when the
// waiter was already granted a slot, in which case the grant has been
// consumed and the slot belongs to the caller.
func (l *Limiter) abandon(elem *list.Element, w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-w.ready:
		return false
	default:
		l.waiters.Remove(elem)
		return true
	}
}

// Release returns a slot. If anyone is queued the slot transfers
// directly to the oldest waiter.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if front := l.waiters.Front(); front != nil {
		w := l.waiters.Remove(front).(*waiter)
		w.ready <- struct{}{}
		return
	}
	if l.inFlight > 0 {
		l.inFlight--
	}
}

// InFlight reports how many slots are held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Queued reports how many callers are waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}
