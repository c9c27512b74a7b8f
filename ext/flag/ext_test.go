package flag

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

func TestFlagState(t *testing.T) {
	e := newEngine(t)

	got := eval(t, e, `
flag_add_('f')
[
    flag_israised_('f'),
    flag_wait_('f', 0),
    flag_raise_('f'),
    flag_israised_('f'),
    flag_wait_('f', postlower=True),
    flag_israised_('f'),
    flag_raise_('f', toggle=True),
    flag_israised_('f'),
    flag_add_('f'),
    flag_add_('bad name'),
    flag_list_(),
    flag_lower_('nope'),
    flag_del_('f'),
    flag_del_('f'),
    flag_list_(),
]
`)

	want := "[False, False, True, True, True, False, True, False, False, False, " +
		"[('f', False)], False, True, False, []]"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestFlagPrelower(t *testing.T) {
	e := newEngine(t)

	got := eval(t, e, `
flag_add_('f')
flag_raise_('f')
(flag_wait_('f', 0.02, prelower=True), flag_israised_('f'))
`)

	if want := "(False, False)"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFlagAcrossGoroutines(t *testing.T) {
	e := newEngine(t)

	eval(t, e, "flag_add_('go')")

	go func() {
		time.Sleep(20 * time.Millisecond)

		_, _ = e.Call(context.Background(), "flag_raise_", "go")
	}()

	if got := eval(t, e, "flag_wait_('go', 5)"); got != "True" {
		t.Errorf("got %s, want True", got)
	}
}

func TestFlagWaitStops(t *testing.T) {
	e := newEngine(t)

	eval(t, e, "flag_add_('f')")

	errc := make(chan error, 1)

	go func() { errc <- e.Run(context.Background(), "flag_wait_('f', 60)") }()

	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, engine.ErrTerminated) {
			t.Errorf("got %v, want Termination", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wait not stopped")
	}
}
