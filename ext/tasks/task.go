package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/log"
)

// caller invokes a script callable from a task goroutine.
type caller func(ctx context.Context, fn any, args ...any) (any, error)

// task calls handler(data) on its own goroutine, once when delay is zero
// and otherwise every delay until stopped.
type task struct {
	name    string
	handler any
	data    any
	delay   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	paused  atomic.Bool
	wake    chan struct{}
	calls   atomic.Int64
}

func newTask(name string, handler, data any, delay time.Duration) *task {
	return &task{
		name:    name,
		handler: handler,
		data:    data,
		delay:   delay,
		wake:    make(chan struct{}, 1),
	}
}

// start launches the task goroutine unless one is running.
func (t *task) start(parent context.Context, call caller, logger log.Logger) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return false
	}

	if t.cancel != nil {
		t.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.run(ctx, t.done, call, logger)

	return true
}

// stop cancels the task goroutine without waiting for it, so a handler
// may stop its own task. It reports whether the task was running.
func (t *task) stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}

	return t.running.Load()
}

// wait blocks until the task goroutine exits or ctx ends.
func (t *task) wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// pause suspends or resumes handler calls. Resuming calls the handler
// immediately.
func (t *task) pause(flag bool) {
	t.paused.Store(flag)

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *task) run(ctx context.Context, done chan struct{}, call caller, logger log.Logger) {
	defer close(done)
	defer t.running.Store(false)

	logger.Debug("task started", slog.String("task", t.name), slog.Duration("delay", t.delay))
	defer logger.Debug("task finished", slog.String("task", t.name), slog.Int64("calls", t.calls.Load()))

	if t.delay <= 0 {
		t.invoke(ctx, call, logger)

		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.wake:
			if t.paused.Load() {
				continue
			}
		case <-timer.C:
			if t.paused.Load() {
				timer.Reset(t.delay)

				continue
			}
		}

		if !t.invoke(ctx, call, logger) {
			return
		}

		timer.Stop()
		timer.Reset(t.delay)
	}
}

// invoke calls the handler once and reports whether the task should keep
// running. Script errors are logged; termination ends the task.
func (t *task) invoke(ctx context.Context, call caller, logger log.Logger) bool {
	t.calls.Add(1)

	_, err := call(ctx, t.handler, t.data)
	if err == nil {
		return true
	}

	if errors.Is(err, engine.ErrTerminated) || ctx.Err() != nil {
		return false
	}

	logger.Warn("task handler failed", slog.String("task", t.name), slog.Any("error", err))

	return true
}
