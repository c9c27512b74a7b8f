package tdict

import (
	"context"
	"errors"
	"sync"
	"testing"

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

func TestDict(t *testing.T) {
	e := newEngine(t)

	v, err := e.Eval(t.Context(), "test", `
tdict_open_('cfg')
tdict_put_('cfg', 'host', 'localhost')
tdict_put_('cfg', 'port', 80)
tdict_update_('cfg', {'port': 8080, 'tls': False})
snap = tdict_copy_('cfg')
snap['extra'] = 1
r = [
    tdict_get_('cfg', 'port'),
    tdict_get_('cfg', 'nope', 'dflt'),
    tdict_keys_('cfg'),
    tdict_len_('cfg'),
    tdict_pop_('cfg', 'tls'),
    tdict_pop_('cfg', 'tls', 'gone'),
    tdict_del_('cfg', 'host'),
    tdict_del_('cfg', 'host'),
    tdict_items_('cfg'),
    len(snap),
    tdict_open_('cfg'),
    tdict_list_(),
    tdict_clear_('cfg'),
    tdict_len_('cfg'),
    tdict_close_('cfg'),
    tdict_get_('cfg', 'port'),
    tdict_len_('cfg'),
]
r
`)
	if err != nil {
		t.Fatal(err)
	}

	want := "[8080, 'dflt', ['host', 'port', 'tls'], 3, False, 'gone', True, False, " +
		"[('port', 8080)], 4, False, ['cfg'], True, 0, True, None, 0]"
	if got := engine.Repr(v); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestDictUnhashableKey(t *testing.T) {
	e := newEngine(t)

	err := e.Run(t.Context(), "tdict_open_('d')\ntdict_put_('d', [1], 2)")
	if !errors.Is(err, engine.ErrType) {
		t.Errorf("got %v, want TypeError", err)
	}
}

func TestDictConcurrentWriters(t *testing.T) {
	e := newEngine(t)

	if err := e.Run(t.Context(), "tdict_open_('n')"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Go(func() {
			for j := range 25 {
				if _, err := e.Call(t.Context(), "tdict_put_", "n", i*100+j, j); err != nil {
					t.Error(err)

					return
				}
			}
		})
	}

	wg.Wait()

	v, err := e.Call(t.Context(), "tdict_len_", "n")
	if err != nil || v != int64(200) {
		t.Errorf("tdict_len_ = %v, %v; want 200", v, err)
	}
}
