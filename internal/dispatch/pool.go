package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/embedder/internal/log"
)

// ErrPoolClosed is returned by Go after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// DefaultWorkers is used when NewPool is given a non-positive width.
const DefaultWorkers = 8

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
}

// Pool runs tasks with at most Workers of them executing at once.
type Pool struct {
	workers int
	sem     *semaphore.Weighted
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	pending   atomic.Int64
	running   atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// NewPool creates a pool of the given width.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  log.WithComponent("dispatch"),
	}
}

// Go schedules fn. It returns immediately.
func (p *Pool) Go(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.pending.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire with a background context: queued work is never cancelled.
		_ = p.sem.Acquire(context.Background(), 1)
		p.pending.Add(-1)
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.completed.Add(1)
			p.sem.Release(1)
		}()
		p.run(fn)
	}()
	return nil
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("worker task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Close stops accepting tasks and waits for submitted ones to finish or for
// ctx to end, whichever comes first.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool close timed out",
			"pending", p.pending.Load(),
			"running", p.running.Load(),
		)
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Pending:   p.pending.Load(),
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}
