package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/cask/engine"
)

// Queue orders.
const (
	FIFO = "fifo"
	LIFO = "lifo"
)

// queue is a blocking, optionally bounded, FIFO or LIFO queue. Waiters
// block on changed, which is closed and replaced on every state change.
type queue struct {
	mu      sync.Mutex
	lifo    bool
	size    int
	items   []any
	closed  bool
	changed chan struct{}
}

func newQueue(order string, size int) *queue {
	return &queue{lifo: order == LIFO, size: size, changed: make(chan struct{})}
}

func (q *queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// put appends v, waiting for room when the queue is full and block is
// set. A zero timeout waits until room appears or the queue closes.
func (q *queue) put(ctx context.Context, v any, block bool, timeout time.Duration) (bool, error) {
	deadline := after(timeout)

	q.mu.Lock()

	for {
		if q.closed {
			q.mu.Unlock()

			return false, nil
		}

		if q.size <= 0 || len(q.items) < q.size {
			q.items = append(q.items, v)
			q.notifyLocked()
			q.mu.Unlock()

			return true, nil
		}

		if !block {
			q.mu.Unlock()

			return false, nil
		}

		changed := q.changed
		q.mu.Unlock()

		if ok, err := wait(ctx, changed, deadline); !ok {
			return false, err
		}

		q.mu.Lock()
	}
}

// get removes the next item, waiting for one when block is set.
func (q *queue) get(ctx context.Context, block bool, timeout time.Duration) (any, bool, error) {
	deadline := after(timeout)

	q.mu.Lock()

	for {
		if n := len(q.items); n > 0 {
			var v any

			if q.lifo {
				v = q.items[n-1]
				q.items[n-1] = nil
				q.items = q.items[:n-1]
			} else {
				v = q.items[0]
				q.items[0] = nil
				q.items = q.items[1:]
			}

			q.notifyLocked()
			q.mu.Unlock()

			return v, true, nil
		}

		if !block || q.closed {
			q.mu.Unlock()

			return nil, false, nil
		}

		changed := q.changed
		q.mu.Unlock()

		if ok, err := wait(ctx, changed, deadline); !ok {
			return nil, false, err
		}

		q.mu.Lock()
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	clear(q.items)
	q.items = q.items[:0]
	q.notifyLocked()
}

// close wakes every waiter; the queue accepts nothing afterwards.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.items = nil
		q.notifyLocked()
	}
}

func after(timeout time.Duration) <-chan time.Time {
	if timeout <= 0 {
		return nil
	}

	return time.After(timeout)
}

// wait blocks until changed fires. It returns false when the deadline
// passes or ctx ends; the error is set only in the latter case.
func wait(ctx context.Context, changed <-chan struct{}, deadline <-chan time.Time) (bool, error) {
	select {
	case <-changed:
		return true, nil
	case <-deadline:
		return false, nil
	case <-ctx.Done():
		return false, engine.ErrTerminated.Wrap(context.Cause(ctx))
	}
}
