package repl

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ardnew/cask/engine"
	"github.com/ardnew/cask/log"
)

func newTestModel(t *testing.T) model {
	t.Helper()

	out := NewOutput()

	e, err := engine.New(engine.WithOutput(out))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(t.Context()) })

	return newModel(t.Context(), e, out, NewHistory(""), log.Discard())
}

func enter(m model, line string) model {
	m.input.SetValue(line)
	m, _ = m.executeInput()

	return m
}

func TestBlockContinuation(t *testing.T) {
	m := newTestModel(t)

	m = enter(m, "def twice(n):")
	if len(m.pending) != 1 || m.input.Value() != indentUnit {
		t.Fatalf("after header: pending=%q input=%q", m.pending, m.input.Value())
	}

	m = enter(m, "    if n:")
	if got := m.input.Value(); got != indentUnit+indentUnit {
		t.Errorf("nested indent = %q", got)
	}

	m = enter(m, "        return n * 2")
	m = enter(m, "    return 0")

	if m.busy {
		t.Fatal("block ran before the empty line")
	}

	m = enter(m, "")

	want := "def twice(n):\n    if n:\n        return n * 2\n    return 0"
	if !m.busy || m.lastRun != want || len(m.pending) != 0 {
		t.Fatalf("busy=%v lastRun=%q pending=%q", m.busy, m.lastRun, m.pending)
	}

	if entry, _ := m.history.Entry(m.history.Len() - 1); entry.Line != want {
		t.Errorf("history = %q", entry.Line)
	}
}

func TestFinishEval(t *testing.T) {
	m := newTestModel(t)

	if _, err := m.engine.Eval(t.Context(), "t", "print('hello')"); err != nil {
		t.Fatal(err)
	}

	m.busy = true
	m, cmd := m.finishEval(evalDoneMsg{value: int64(42)})

	if m.busy || cmd == nil {
		t.Fatalf("busy=%v cmd=%v", m.busy, cmd)
	}

	if out := m.out.Drain(); out != "" {
		t.Errorf("output not drained: %q", out)
	}

	m.engine.Stop()

	m, _ = m.finishEval(evalDoneMsg{err: engine.ErrTerminated})
	if m.engine.Stopped() {
		t.Error("engine left stopped")
	}

	if _, err := m.engine.Eval(t.Context(), "t", "1"); err != nil {
		t.Errorf("engine unusable after stop: %v", err)
	}

	m, _ = m.finishEval(evalDoneMsg{})
	if m.quitting {
		t.Error("quit without exit_")
	}

	_, err := m.engine.Eval(t.Context(), "t", "exit_(3)")
	if code, ok := engine.ExitCode(err); !ok || code != 3 {
		t.Fatalf("exit_: %v", err)
	}

	if m, _ = m.finishEval(evalDoneMsg{err: err}); !m.quitting {
		t.Error("exit_ did not quit")
	}
}

func TestCommands(t *testing.T) {
	m := newTestModel(t)

	if err := m.engine.Run(t.Context(), "def area(w, h=2):\n    '''Area of a rectangle.'''\n    return w * h"); err != nil {
		t.Fatal(err)
	}

	defs := m.listDefs()
	if !strings.Contains(defs, "area(w, h=2)") || !strings.Contains(defs, "Area of a rectangle.") {
		t.Errorf("listDefs() = %q", defs)
	}

	got := marked([]string{"a", "b", "c"}, []string{"b"})
	if fmt.Sprint(got) != "[a b* c]" {
		t.Errorf("marked = %v", got)
	}

	m, _ = m.switchToMode(modeCtrl)
	m = enter(m, "quit")

	if !m.quitting {
		t.Error("quit command did not quit")
	}
}

func TestHistoryRecall(t *testing.T) {
	m := newTestModel(t)

	_ = m.history.Add("x = 1", modeEval)
	_ = m.history.Add("names", modeCtrl)
	_ = m.history.Add("for i in range(2):\n    print(i)", modeEval)
	m.historyIdx = m.history.Len()

	m, _ = m.historyStep(-1, false)
	if m.recalled == "" || m.input.Value() != "for i in range(2): …" {
		t.Fatalf("recalled=%q input=%q", m.recalled, m.input.Value())
	}

	m, _ = m.historyStep(-1, false)
	if m.mode != modeCtrl || m.input.Value() != "names" || m.recalled != "" {
		t.Errorf("mode=%v input=%q", m.mode, m.input.Value())
	}

	m, _ = m.historyStep(-1, true)
	if m.input.Value() != "names" {
		t.Errorf("in-mode step left ctrl entries: %q", m.input.Value())
	}

	m, _ = m.switchToMode(modeEval)
	m.historyIdx = m.history.Len()
	m, _ = m.historyStep(-1, false)
	m, _ = m.executeInput()

	if !m.busy || m.lastRun != "for i in range(2):\n    print(i)" {
		t.Errorf("recalled block not run: busy=%v lastRun=%q", m.busy, m.lastRun)
	}
}

func TestOutputDrain(t *testing.T) {
	o := NewOutput()

	fmt.Fprintln(o, "one")
	fmt.Fprintln(o, "two")

	if got := o.Drain(); got != "one\ntwo" {
		t.Errorf("Drain() = %q", got)
	}

	if got := o.Drain(); got != "" {
		t.Errorf("second Drain() = %q", got)
	}
}

func TestRunWithoutEngine(t *testing.T) {
	if err := Run(t.Context(), nil, nil, "", log.Discard()); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Run(nil) = %v", err)
	}
}
