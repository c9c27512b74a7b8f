package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/cask/engine"
)

func newEngine(t *testing.T, root string) *engine.Engine {
	t.Helper()

	e, err := engine.New(
		engine.WithCatalog(engine.NewCatalog().Register(Name, New)),
		engine.WithExtensionOptions(map[string]any{Root: root}))
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

func TestQuery(t *testing.T) {
	e := newEngine(t, t.TempDir())

	got := eval(t, e, `
sql_open_('db', ':memory:')
sql_execute_('db', 'CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER, f REAL)')
a = sql_execute_('db', 'INSERT INTO kv VALUES (?, ?, ?)', 'a', 1, 0.5)
b = sql_execute_('db', 'INSERT INTO kv VALUES (?, ?, ?)', 'b', 2, None)
u = sql_execute_('db', 'UPDATE kv SET v = v * 10')
rows = sql_query_('db', 'SELECT k, v, f FROM kv WHERE v > ? ORDER BY k', 5)
(a['lastId'], b['lastId'], u['affected'], rows)
`)

	want := "(1, 2, 2, [{'k': 'a', 'v': 10, 'f': 0.5}, {'k': 'b', 'v': 20, 'f': None}])"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestTransactions(t *testing.T) {
	e := newEngine(t, t.TempDir())

	got := eval(t, e, `
sql_open_('db', ':memory:')
sql_execute_('db', 'CREATE TABLE t (n INTEGER)')
sql_begin_('db')
sql_execute_('db', 'INSERT INTO t VALUES (1)')
sql_rollback_('db')
sql_begin_('db')
sql_execute_('db', 'INSERT INTO t VALUES (2)')
sql_commit_('db')
sql_query_('db', 'SELECT n FROM t')
`)

	if got != "[{'n': 2}]" {
		t.Errorf("got %s", got)
	}

	if err := e.Run(t.Context(), "sql_commit_('db')"); !errors.Is(err, engine.ErrRuntime) {
		t.Errorf("commit without transaction: %v", err)
	}
}

func TestFileDatabase(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir)

	got := eval(t, e, `
r = (sql_open_('one', 'data.db'), sql_open_('one', 'data.db'), sql_open_('bad name', 'x.db'),
     sql_open_('up', '../outside.db'))
sql_execute_('one', 'CREATE TABLE t (s TEXT)')
sql_execute_('one', 'INSERT INTO t VALUES (?)', 'persisted')
(r, sql_list_(), sql_close_('one'), sql_close_('one'), sql_list_())
`)

	if want := "((True, False, False, False), ['one'], True, False, [])"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	if _, err := os.Stat(filepath.Join(dir, "data.db")); err != nil {
		t.Errorf("database file not under root: %v", err)
	}

	got = eval(t, e, `
sql_open_('two', '/data.db')
sql_query_('two', 'SELECT s FROM t')
`)

	if got != "[{'s': 'persisted'}]" {
		t.Errorf("reopen: got %s", got)
	}
}

func TestErrors(t *testing.T) {
	e := newEngine(t, t.TempDir())

	if err := e.Run(t.Context(), "sql_open_('db', ':memory:')"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		src    string
		target error
	}{
		{"sql_execute_('db', 'NOT SQL')", engine.ErrRuntime},
		{"sql_query_('db', 'SELECT ?', [1])", engine.ErrType},
		{"sql_query_('db')", engine.ErrType},
	}

	for _, tt := range tests {
		if err := e.Run(t.Context(), tt.src); !errors.Is(err, tt.target) {
			t.Errorf("%s: got %v, want %v", tt.src, err, tt.target)
		}
	}

	if got := eval(t, e, "(sql_query_('nope', 'SELECT 1'), sql_begin_('nope'))"); got != "(None, False)" {
		t.Errorf("unknown connection: got %s", got)
	}
}
