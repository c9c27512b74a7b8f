package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/cask/engine"
)

func newEngine(t *testing.T, opts map[string]any) *engine.Engine {
	t.Helper()

	e, err := engine.New(
		engine.WithCatalog(engine.NewCatalog().Register(Name, New)),
		engine.WithExtensionOptions(opts))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	if _, err := e.LoadExtension(t.Context(), Name); err != nil {
		t.Fatalf("LoadExtension: %v", err)
	}

	return e
}

func TestGatedExports(t *testing.T) {
	tests := []struct {
		opts           map[string]any
		getenv, system bool
	}{
		{nil, false, false},
		{map[string]any{AllowGetenv: true}, true, false},
		{map[string]any{AllowSystem: "true"}, false, true},
		{map[string]any{AllowGetenv: true, AllowSystem: true}, true, true},
	}

	for _, tt := range tests {
		e := newEngine(t, tt.opts)

		if got := e.IsDefined("getenv_"); got != tt.getenv {
			t.Errorf("%v: getenv_ defined = %v", tt.opts, got)
		}

		if got := e.IsDefined("system_"); got != tt.system {
			t.Errorf("%v: system_ defined = %v", tt.opts, got)
		}

		if !e.IsDefined("sleep_") {
			t.Errorf("%v: sleep_ missing", tt.opts)
		}
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("CASK_UTIL_TEST", "present")

	e := newEngine(t, map[string]any{AllowGetenv: true})

	v, err := e.Eval(t.Context(), "test",
		"(getenv_('CASK_UTIL_TEST'), getenv_('CASK_UTIL_UNSET'), getenv_('CASK_UTIL_UNSET', 'd'))")
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "('present', None, 'd')" {
		t.Errorf("got %s", got)
	}
}

func TestSystem(t *testing.T) {
	e := newEngine(t, map[string]any{AllowSystem: true})

	v, err := e.Eval(t.Context(), "test", "(system_('exit 3', capture=True), system_('echo hi', capture=True))")
	if err != nil {
		t.Fatal(err)
	}

	if got := engine.Repr(v); got != "((3, ''), (0, 'hi\\n'))" {
		t.Errorf("got %s", got)
	}
}

func TestSleepStops(t *testing.T) {
	e := newEngine(t, nil)

	errc := make(chan error, 1)

	go func() { errc <- e.Run(context.Background(), "sleep_(60)") }()

	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, engine.ErrTerminated) {
			t.Errorf("got %v, want Termination", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sleep_ was not interrupted")
	}

	e.Resume()

	if err := e.Run(t.Context(), "sleep_(-1)"); !errors.Is(err, engine.ErrValue) {
		t.Errorf("negative sleep: %v", err)
	}
}
