package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/cask/engine"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	e, err := engine.New(engine.WithCatalog(engine.NewCatalog().Register(Name, New)))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	if _, err := e.LoadExtension(t.Context(), Name); err != nil {
		t.Fatalf("LoadExtension: %v", err)
	}

	return e
}

func eval(t *testing.T, e *engine.Engine, src string) string {
	t.Helper()

	v, err := e.Eval(t.Context(), "test", src)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}

	return engine.Repr(v)
}

func TestQueueOrder(t *testing.T) {
	e := newEngine(t)

	got := eval(t, e, `
queue_open_('f')
queue_open_('l', type='lifo')
for i in range(3):
    queue_put_('f', i)
    queue_put_('l', i)
([queue_get_('f') for _ in range(3)], [queue_get_('l') for _ in range(3)])
`)

	if want := "([0, 1, 2], [2, 1, 0])"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestQueueManagement(t *testing.T) {
	e := newEngine(t)

	got := eval(t, e, `
a = queue_open_('jobs')
b = queue_open_('jobs')
c = queue_open_('bad name')
queue_put_('jobs', 'x')
queue_put_('jobs', {'k': 1})
n = queue_len_('jobs')
queue_open_('aux')
names = queue_list_()
queue_clear_('jobs')
empty = queue_isempty_('jobs')
closed = (queue_close_('jobs'), queue_close_('jobs'))
missing = (queue_put_('jobs', 1), queue_get_('jobs'), queue_len_('jobs'))
(a, b, c, n, names, empty, closed, missing, queue_list_())
`)

	want := "(True, False, False, 2, ['aux', 'jobs'], True, (True, False), (False, None, 0), ['aux'])"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestQueueNonBlocking(t *testing.T) {
	e := newEngine(t)

	got := eval(t, e, `
queue_open_('q', size=1)
(queue_get_('q', block=False),
 queue_put_('q', 1, block=False),
 queue_put_('q', 2, block=False),
 queue_put_('q', 3, timeout=0.05),
 queue_get_('q', timeout=0.05),
 queue_get_('q', timeout=0.05))
`)

	if want := "(None, True, False, False, 1, None)"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestQueueInvalidType(t *testing.T) {
	e := newEngine(t)

	if err := e.Run(t.Context(), "queue_open_('q', type='ring')"); !errors.Is(err, engine.ErrValue) {
		t.Errorf("got %v, want ValueError", err)
	}
}

func TestQueueAcrossGoroutines(t *testing.T) {
	e := newEngine(t)

	eval(t, e, "queue_open_('q')")

	go func() {
		time.Sleep(20 * time.Millisecond)

		_, _ = e.Call(context.Background(), "queue_put_", "q", 42)
	}()

	if got := eval(t, e, "queue_get_('q', timeout=5)"); got != "42" {
		t.Errorf("got %s, want 42", got)
	}
}

func TestQueueBlockedGetStops(t *testing.T) {
	e := newEngine(t)

	eval(t, e, "queue_open_('q')")

	errc := make(chan error, 1)

	go func() { errc <- e.Run(context.Background(), "queue_get_('q')") }()

	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, engine.ErrTerminated) {
			t.Errorf("got %v, want Termination", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked get was not released")
	}
}

func TestQueueShutdownReleasesWaiters(t *testing.T) {
	q := newQueue(FIFO, 0)

	done := make(chan bool, 1)

	go func() {
		_, ok, _ := q.get(context.Background(), true, 0)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("get on a closed queue returned an item")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not wake the waiter")
	}

	if ok, _ := q.put(context.Background(), 1, true, 0); ok {
		t.Error("put on a closed queue succeeded")
	}
}
