package dispatch

import "sync"

// Queue is an unbounded FIFO with many producers and one consumer.
// Push is safe from any goroutine; Drain must only be called by the consumer.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends item and wakes the consumer.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after a Push. A signal may be stale; Drain anyway.
func (q *Queue[T]) Ready() <-chan struct{} { return q.ready }

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain runs fn for every queued item in push order, including items pushed
// while draining, and returns how many ran.
func (q *Queue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, item := range batch {
			fn(item)
		}
		n += len(batch)
	}
}
