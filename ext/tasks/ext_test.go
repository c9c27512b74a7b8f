package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/ardnew/cask/engine"
)

// recorder exports record_, which forwards its argument to a channel.
type recorder chan any

func (r recorder) Register(*engine.API) (engine.Exports, error) {
	return engine.Exports{
		"record_": func(_ context.Context, a engine.Args) (any, error) {
			var v any
			if err := a.Unpack("record_", "value", &v); err != nil {
				return nil, err
			}

			select {
			case r <- v:
			default:
			}

			return nil, nil
		},
	}, nil
}

func newEngine(t *testing.T) (*engine.Engine, recorder) {
	t.Helper()

	rec := make(recorder, 64)

	catalog := engine.NewCatalog().
		Register(Name, New).
		Register("recorder", func(map[string]any) engine.Provider { return rec })

	e, err := engine.New(engine.WithCatalog(catalog))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	for _, name := range []string{Name, "recorder"} {
		if _, err := e.LoadExtension(t.Context(), name); err != nil {
			t.Fatalf("LoadExtension(%s): %v", name, err)
		}
	}

	return e, rec
}

func receive(t *testing.T, rec recorder) any {
	t.Helper()

	select {
	case v := <-rec:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")

		return nil
	}
}

func eventually(t *testing.T, e *engine.Engine, src string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		v, err := e.Eval(t.Context(), "poll", src)
		if err != nil {
			t.Fatal(err)
		}

		if engine.Truthy(v) {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("%s never became true", src)
}

func TestRepeatingTask(t *testing.T) {
	e, rec := newEngine(t)

	err := e.Run(t.Context(), `
def tick(d):
    record_(d)
tasks_open_('t', tick, 'x', delay=0.01)
tasks_start_('t')
`)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if v := receive(t, rec); v != "x" {
			t.Fatalf("handler got %v, want x", v)
		}
	}

	v, err := e.Eval(t.Context(), "test", "(tasks_status_('t'), tasks_start_('t'), tasks_list_())")
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "(True, False, ['t'])" {
		t.Errorf("got %s", got)
	}

	if err := e.Run(t.Context(), "tasks_stop_('t')"); err != nil {
		t.Fatal(err)
	}

	eventually(t, e, "not tasks_status_('t')")

	v, err = e.Eval(t.Context(), "test", "(tasks_close_('t'), tasks_close_('t'), tasks_list_())")
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "(True, False, [])" {
		t.Errorf("got %s", got)
	}
}

func TestOneShotTaskByName(t *testing.T) {
	e, rec := newEngine(t)

	err := e.Run(t.Context(), `
def once(d):
    record_(d)
tasks_open_('o', 'once', delay=0)
tasks_start_('o')
`)
	if err != nil {
		t.Fatal(err)
	}

	if v := receive(t, rec); v != "o" {
		t.Errorf("handler got %v, want the task name", v)
	}

	eventually(t, e, "not tasks_status_('o')")

	select {
	case v := <-rec:
		t.Errorf("one-shot task ran again with %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTaskHandlerErrorKeepsRunning(t *testing.T) {
	e, rec := newEngine(t)

	err := e.Run(t.Context(), `
def flaky(d):
    record_(d)
    raise ValueError('flaky')
tasks_open_('f', flaky, delay=0.01)
tasks_start_('f')
`)
	if err != nil {
		t.Fatal(err)
	}

	receive(t, rec)
	receive(t, rec)
}

func TestTaskPause(t *testing.T) {
	e, rec := newEngine(t)

	err := e.Run(t.Context(), `
def tick(d):
    record_(d)
tasks_open_('p', tick, delay=0.01)
tasks_start_('p')
`)
	if err != nil {
		t.Fatal(err)
	}

	receive(t, rec)

	if err := e.Run(t.Context(), "tasks_pause_('p', True)"); err != nil {
		t.Fatal(err)
	}

	// drain calls that raced with the pause
	time.Sleep(30 * time.Millisecond)

	for len(rec) > 0 {
		<-rec
	}

	select {
	case v := <-rec:
		t.Fatalf("paused task ran with %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	if err := e.Run(t.Context(), "tasks_pause_('p', False)"); err != nil {
		t.Fatal(err)
	}

	receive(t, rec)
}

func TestTaskOpenFailures(t *testing.T) {
	e, _ := newEngine(t)

	v, err := e.Eval(t.Context(), "test", `
def h(d):
    pass
(tasks_open_('a', h), tasks_open_('a', h), tasks_open_('bad name', h),
 tasks_open_('b', 'undefined_handler'), tasks_start_('zz'), tasks_status_('zz'))
`)
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "(True, False, False, False, False, False)" {
		t.Errorf("got %s", got)
	}
}

func TestShutdownStopsTasks(t *testing.T) {
	e, rec := newEngine(t)

	err := e.Run(t.Context(), `
def tick(d):
    record_(d)
tasks_open_('s', tick, delay=0.01)
tasks_start_('s')
`)
	if err != nil {
		t.Fatal(err)
	}

	receive(t, rec)

	done := make(chan error, 1)

	go func() { done <- e.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
