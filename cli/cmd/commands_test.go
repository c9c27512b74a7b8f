package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/cask/engine"
)

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()

	script := writeScript(t, dir, "hello.apy", strings.Join([]string{
		"print(greeting, getSysVar_('scriptName'), len(getSysVar_('args')), prefix='')",
		"print(getSysVar_('currentScript'), prefix='')",
	}, "\n"))
	writeScript(t, dir, "setup.apy", "greeting = 'hi'")

	var out bytes.Buffer

	pid := filepath.Join(dir, "run.pid")
	r := &Run{Script: script, Args: []string{"-v", "x"}, Init: "setup", PidFile: pid}

	if err := r.Run(t.Context(), &Host{Stdout: &out}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got, want := out.String(), "hi hello.apy 2\nhello.apy\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	if _, err := os.Stat(pid); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pidfile left behind: %v", err)
	}
}

func TestRunCommandBaseDir(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "lib/job.apy", "print('job', prefix='')")

	var out bytes.Buffer

	h := &Host{BaseDir: []string{filepath.Join(dir, "lib")}, Stdout: &out}

	if err := (&Run{Script: "job"}).Run(t.Context(), h); err != nil {
		t.Fatal(err)
	}

	if out.String() != "job\n" {
		t.Errorf("output = %q", out.String())
	}

	err := (&Run{Script: "missing"}).Run(t.Context(), h)
	if !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("missing script error = %v", err)
	}
}

func TestRunCommandExit(t *testing.T) {
	script := writeScript(t, t.TempDir(), "quit.apy", "exit_(4)\nprint('unreachable')")

	var out bytes.Buffer

	err := (&Run{Script: script}).Run(t.Context(), &Host{Stdout: &out})

	if code, ok := engine.ExitCode(err); !ok || code != 4 {
		t.Errorf("ExitCode(%v) = %d, %v; want 4", err, code, ok)
	}

	if out.Len() != 0 {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good.apy", "def f(x):\n    return x + 1\n")
	bad := writeScript(t, dir, "bad.apy", "def f(x)\n    return x\n")

	var out bytes.Buffer

	h := &Host{Stdout: &out}

	if err := (&Check{Scripts: []string{good}}).Run(t.Context(), h); err != nil {
		t.Fatalf("Check(good) error = %v", err)
	}

	err := (&Check{Scripts: []string{good, bad}}).Run(t.Context(), h)
	if !errors.Is(err, ErrCheck) {
		t.Fatalf("Check(bad) error = %v, want ErrCheck", err)
	}

	if !strings.Contains(out.String(), good+": ok") || !strings.Contains(out.String(), bad+": ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEvalCommand(t *testing.T) {
	var out bytes.Buffer

	ev := &Eval{Source: []string{"x = 20", "x + 22"}}
	if err := ev.Run(t.Context(), &Host{Stdout: &out}); err != nil {
		t.Fatal(err)
	}

	if out.String() != "42\n" {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()

	if err := (&Eval{Source: []string{"y = 1"}}).Run(t.Context(), &Host{Stdout: &out}); err != nil {
		t.Fatal(err)
	}

	if out.Len() != 0 {
		t.Errorf("statement printed %q", out.String())
	}
}

func TestExtsCommand(t *testing.T) {
	var out bytes.Buffer

	h := &Host{Allow: []string{"queue", "util"}, Stdout: &out}

	if err := (&Exts{}).Run(t.Context(), h); err != nil {
		t.Fatal(err)
	}

	if out.String() != "queue\nutil\n" {
		t.Errorf("extensions = %q", out.String())
	}

	out.Reset()

	if err := (&Exts{Modules: true}).Run(t.Context(), h); err != nil {
		t.Fatal(err)
	}

	if got, want := out.String(), strings.Join(engine.Modules(), "\n")+"\n"; got != want {
		t.Errorf("modules = %q, want %q", got, want)
	}
}
