package flag

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/cask/engine"
)

// flag is a level-triggered event. Waiters block on up, which is closed
// while the flag is raised and replaced when it is lowered.
type flag struct {
	mu     sync.Mutex
	raised bool
	up     chan struct{}
}

func newFlag() *flag { return &flag{up: make(chan struct{})} }

func (f *flag) raise() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.raised {
		f.raised = true
		close(f.up)
	}
}

func (f *flag) lower() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.raised {
		f.raised = false
		f.up = make(chan struct{})
	}
}

func (f *flag) isRaised() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.raised
}

// wait blocks until the flag is raised. A non-positive timeout polls.
func (f *flag) wait(ctx context.Context, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	up := f.up
	f.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-up:
			return true, nil
		default:
			return false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-up:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, engine.ErrTerminated.Wrap(context.Cause(ctx))
	}
}
