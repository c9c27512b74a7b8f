package file

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

func TestWriteReadAppend(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir)

	got := eval(t, e, `
w = writeLines_('notes.txt', ['one', 2])
a = appendLines_('/notes.txt', 'three\n')
(w, a, readLines_('notes.txt'))
`)

	if want := "(6, 6, 'one\\n2\\nthree\\n')"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil || string(data) != "one\n2\nthree\n" {
		t.Errorf("file holds %q, %v", data, err)
	}
}

func TestReadHandler(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "in.txt"), []byte("a\n  b  \nstop\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t, dir)

	got := eval(t, e, `
seen = []
def each(line):
    seen.append(line)
    return line != 'stop'
n = readLines_('in.txt', each)
m = readLines_('in.txt', each, maxlines=1)
(n, m, seen)
`)

	if want := "(3, 1, ['a', 'b', 'stop', 'a'])"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestWriteHandler(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir)

	got := eval(t, e, `
pending = [['x'], ['y'], ['z']]
def next_line():
    if pending:
        return pending.pop(0)
    return None
(writeLines_('gen.txt', handler=next_line), writeLines_('cap.txt', handler=lambda: ['k'], maxlines=2))
`)

	if got != "(3, 2)" {
		t.Errorf("got %s", got)
	}

	for name, want := range map[string]string{"gen.txt": "x\ny\nz\n", "cap.txt": "k\nk\n"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(data) != want {
			t.Errorf("%s holds %q, %v; want %q", name, data, err, want)
		}
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"b.txt", "a.txt", "sub/c.txt"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	e := newEngine(t, dir)

	if got := eval(t, e, "(listFiles_(), listFiles_('sub'), listFiles_('nope'))"); got != "(['a.txt', 'b.txt', 'sub'], ['c.txt'], None)" {
		t.Errorf("got %s", got)
	}
}

func TestConfinedToRoot(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "root")

	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t, dir)

	got := eval(t, e, "(readLines_('../secret'), writeLines_('../escape', 'x'), readLines_('missing'))")
	if got != "(None, None, None)" {
		t.Errorf("got %s", got)
	}

	if _, err := os.Stat(filepath.Join(parent, "escape")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("write escaped the root: %v", err)
	}
}

func TestBadData(t *testing.T) {
	e := newEngine(t, t.TempDir())

	if err := e.Run(t.Context(), "writeLines_('x', {'a': 1})"); !errors.Is(err, engine.ErrType) {
		t.Errorf("got %v, want TypeError", err)
	}
}

func TestMissingRoot(t *testing.T) {
	e, err := engine.New(
		engine.WithCatalog(engine.NewCatalog().Register(Name, New)),
		engine.WithExtensionOptions(map[string]any{Root: filepath.Join(t.TempDir(), "absent")}))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	if _, err := e.LoadExtension(t.Context(), Name); !errors.Is(err, engine.ErrExtensionLoad) {
		t.Errorf("got %v, want ExtensionLoadError", err)
	}
}
