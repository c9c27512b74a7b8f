package repl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHistoryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), baseHistory)

	h := NewHistory(path)
	if err := h.Load(); err != nil {
		t.Fatalf("Load missing file: %v", err)
	}

	for _, e := range []HistoryEntry{
		{"x = 1", modeEval},
		{"list", modeCtrl},
		{"def f():\n    return 'a\\b'", modeEval},
		{"x = 1", modeEval},
		{"x = 1", modeEval},
		{"   ", modeEval},
	} {
		if err := h.Add(e.Line, e.Mode); err != nil {
			t.Fatalf("Add(%q): %v", e.Line, err)
		}
	}

	want := []HistoryEntry{
		{"list", modeCtrl},
		{"def f():\n    return 'a\\b'", modeEval},
		{"x = 1", modeEval},
	}

	check := func(h *History) {
		t.Helper()

		if h.Len() != len(want) {
			t.Fatalf("Len() = %d, want %d", h.Len(), len(want))
		}

		for i, w := range want {
			if got, err := h.Entry(i); err != nil || got != w {
				t.Errorf("Entry(%d) = %+v, %v; want %+v", i, got, err, w)
			}
		}
	}

	check(h)

	reloaded := NewHistory(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	check(reloaded)

	if _, err := h.Entry(len(want)); err != ErrOutOfBounds {
		t.Errorf("Entry past end: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if got := string(data); got != "C:list\nE:def f():\\n    return 'a\\\\b'\nE:x = 1\n" {
		t.Errorf("file = %q", got)
	}
}

func TestHistoryInMemory(t *testing.T) {
	h := NewHistory("")

	if err := h.Add("y = 2", modeEval); err != nil {
		t.Fatal(err)
	}

	if err := h.Load(); err != nil || h.Len() != 1 {
		t.Errorf("Len() = %d, %v", h.Len(), err)
	}
}
