// Package queue provides bounded-concurrency admission control in front of
// outbound provider calls. Waiters are admitted in FIFO order; completion
// order is not guaranteed.
package queue

import (
	"container/list"
	"context"
	"sync"
)

// Queue admits at most a fixed number of tasks at a time. Admission is FIFO
// among waiters; a task that fails releases its slot like any other, so one
// rejected task never blocks the next.
type Queue struct {
	mu      sync.Mutex
	limit   int
	running int
	waiters *list.List // of chan struct{}
}

// New creates a Queue with the given concurrency limit (minimum 1).
func New(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{limit: limit, waiters: list.New()}
}

// Do runs fn once a slot is available, blocking until admission or ctx
// cancellation. The slot is released when fn returns, admitting the next
// waiter in FIFO order.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()
	return fn()
}

func (q *Queue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.running < q.limit && q.waiters.Len() == 0 {
		q.running++
		q.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := q.waiters.PushBack(ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		// The release path may have admitted us concurrently with
		// cancellation; if so the slot is ours to give back.
		select {
		case <-ready:
			q.mu.Unlock()
			q.release()
		default:
			q.waiters.Remove(elem)
			q.mu.Unlock()
		}
		return ctx.Err()
	}
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if elem := q.waiters.Front(); elem != nil {
		q.waiters.Remove(elem)
		close(elem.Value.(chan struct{}))
		// running stays unchanged: the slot transfers to the admitted waiter.
		return
	}
	q.running--
}

// Running returns the number of tasks currently admitted.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Waiting returns the number of tasks waiting for admission.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

// Limit returns the configured concurrency limit.
func (q *Queue) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}
