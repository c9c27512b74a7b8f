package repl

import (
	"context"
	"testing"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/log"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	e, err := engine.New(engine.WithOutput(NewOutput()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	return e
}

func TestWordBounds(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		cursor    int
		wantWord  string
		wantStart int
		wantEnd   int
	}{
		{"simple", "foo", 3, "foo", 0, 3},
		{"after_dot", "bar.baz", 7, "baz", 4, 7},
		{"after_plus", "a + fo", 6, "fo", 4, 6},
		{"after_paren", "double(fo", 9, "fo", 7, 9},
		{"after_comma", "add(a, fo", 9, "fo", 7, 9},
		{"underscore", "queue_pu", 8, "queue_pu", 0, 8},
		{"minus_is_operator", "a-b", 3, "b", 2, 3},
		{"empty_at_boundary", "a + ", 4, "", 4, 4},
		{"mid_word", "foobar", 3, "foobar", 0, 6},
		{"at_start", "foo", 0, "foo", 0, 3},
		{"cursor_past_end", "foo", 10, "foo", 0, 3},
		{"empty_after_dot", "xs.", 3, "", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, start, end := wordBounds(tt.input, tt.cursor)
			if word != tt.wantWord || start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("wordBounds(%q, %d) = (%q, %d, %d), want (%q, %d, %d)",
					tt.input, tt.cursor, word, start, end,
					tt.wantWord, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestAfterDot(t *testing.T) {
	tests := []struct {
		input     string
		wordStart int
		want      bool
	}{
		{"xs.app", 3, true},
		{"xs. app", 4, true},
		{"x + app", 4, false},
		{"app", 0, false},
	}

	for _, tt := range tests {
		if got := afterDot(tt.input, tt.wordStart); got != tt.want {
			t.Errorf("afterDot(%q, %d) = %v, want %v", tt.input, tt.wordStart, got, tt.want)
		}
	}
}

func TestComputeMatches(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Run(t.Context(), "counter_total = 0\ndef count_up(n):\n    return n + 1"); err != nil {
		t.Fatal(err)
	}

	m := newModel(t.Context(), e, nil, NewHistory(""), log.Discard())

	m.input.SetValue("x = count")
	m.input.SetCursor(len("x = count"))

	matches, start, end := m.computeMatches()
	if start != 4 || end != 9 {
		t.Errorf("bounds = (%d, %d), want (4, 9)", start, end)
	}

	found := map[string]bool{}
	for _, match := range matches {
		found[match.Str] = true
	}

	for _, want := range []string{"count_up", "counter_total"} {
		if !found[want] {
			t.Errorf("matches missing %q: %v", want, matches)
		}
	}

	m.input.SetValue("xs.cou")
	m.input.SetCursor(len("xs.cou"))

	if matches, _, _ := m.computeMatches(); len(matches) != 0 {
		t.Errorf("attribute access completed: %v", matches)
	}

	m, _ = m.switchToMode(modeCtrl)
	m.input.SetValue("qu")
	m.input.SetCursor(2)

	if matches, _, _ := m.computeMatches(); len(matches) != 1 || matches[0].Str != "quit" {
		t.Errorf("ctrl matches = %v, want [quit]", matches)
	}
}

func TestIsCallable(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Run(t.Context(), "n = 1\ndef f():\n    pass"); err != nil {
		t.Fatal(err)
	}

	for name, want := range map[string]bool{"f": true, "len": true, "n": false, "missing": false} {
		if got := isCallable(e, name); got != want {
			t.Errorf("isCallable(%q) = %v, want %v", name, got, want)
		}
	}
}
