package tlist

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/cask/engine"
)

// list is a script list guarded by its own lock. Waiters block on added,
// which is closed and replaced whenever items are added.
type list struct {
	mu     sync.Mutex
	items  []any
	closed bool
	added  chan struct{}
}

func newList(items []any) *list {
	return &list{items: items, added: make(chan struct{})}
}

func (l *list) do(fn func(items *[]any) (any, error)) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)

	v, err := fn(&l.items)
	if len(l.items) > n && !l.closed {
		close(l.added)
		l.added = make(chan struct{})
	}

	return v, err
}

// wait blocks until the list holds an item, returning at once when it
// already does.
func (l *list) wait(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	if len(l.items) > 0 || l.closed {
		ok := len(l.items) > 0
		l.mu.Unlock()

		return ok, nil
	}

	added := l.added
	l.mu.Unlock()

	timer := time.NewTimer(max(timeout, 0))
	defer timer.Stop()

	select {
	case <-added:
		l.mu.Lock()
		defer l.mu.Unlock()

		return len(l.items) > 0, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, engine.ErrTerminated.Wrap(context.Cause(ctx))
	}
}

// close releases every waiter.
func (l *list) close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		l.items = nil
		close(l.added)
	}
}

// index resolves a possibly negative position against n, clamped to
// [0, n] as list.insert does.
func index(i int64, n int) int {
	if i < 0 {
		i += int64(n)
	}

	return int(min(max(i, 0), int64(n)))
}
