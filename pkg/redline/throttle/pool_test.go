package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cognicore/redline/pkg/redline/internalerr"
)

func TestPoolRunsEveryTask(t *testing.T) {
	p := NewPool(4, 0, nil)
	defer p.Stop()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.Submit(func(context.Context) {
			atomic.AddInt64(&ran, 1)
			wg.Done()
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt64(&ran); got != 20 {
		t.Errorf("ran %d tasks, want 20", got)
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p := NewPool(1, 0, nil)
	p.Stop()

	err := p.Submit(func(context.Context) {})
	if !errors.Is(err, internalerr.ErrClosed) {
		t.Fatalf("Submit after Stop: got %v, want ErrClosed", err)
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, 0, nil)
	defer p.Stop()

	if err := p.Submit(func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan struct{})
	if err := p.Submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died with the panicking task")
	}
}

func TestPoolStopRunsQueuedTasks(t *testing.T) {
	for round := 0; round < 20; round++ {
		p := NewPool(1, 8, nil)

		started := make(chan struct{})
		release := make(chan struct{})
		var ran int64
		var wg sync.WaitGroup

		wg.Add(1)
		if err := p.Submit(func(context.Context) {
			close(started)
			<-release
			atomic.AddInt64(&ran, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("round %d: Submit: %v", round, err)
		}
		<-started

		// These pile up in the queue behind the busy worker.
		for i := 0; i < 5; i++ {
			wg.Add(1)
			if err := p.Submit(func(context.Context) {
				atomic.AddInt64(&ran, 1)
				wg.Done()
			}); err != nil {
				t.Fatalf("round %d: Submit %d: %v", round, i, err)
			}
		}

		stopped := make(chan struct{})
		go func() {
			p.Stop()
			close(stopped)
		}()
		close(release)

		// Every accepted task must run even when Stop overlaps; callers
		// pair a wg.Add with each submission and only the task body
		// calls Done.
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: queued tasks discarded by Stop; wg.Wait hangs", round)
		}
		<-stopped

		if got := atomic.LoadInt64(&ran); got != 6 {
			t.Fatalf("round %d: ran %d tasks, want 6", round, got)
		}
	}
}

func TestPoolStopCancelsTaskContext(t *testing.T) {
	p := NewPool(1, 0, nil)

	started := make(chan struct{})
	finished := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	p.Stop()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the running task's context")
	}
}
