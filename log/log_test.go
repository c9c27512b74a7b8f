package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestMakeJSON(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithTimeLayout("none"))
	l.Info("loaded", slog.String("script", "hello"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}

	if rec["msg"] != "loaded" || rec["script"] != "hello" || rec["level"] != "INFO" {
		t.Errorf("unexpected record %v", rec)
	}

	if _, ok := rec["time"]; ok {
		t.Errorf("time should be omitted: %v", rec)
	}
}

func TestLevelFilter(t *testing.T) {
	tests := []struct {
		level Level
		emit  func(Logger)
		want  bool
	}{
		{LevelInfo, func(l Logger) { l.Debug("x") }, false},
		{LevelInfo, func(l Logger) { l.Warn("x") }, true},
		{LevelTrace, func(l Logger) { l.Trace("x") }, true},
		{LevelDebug, func(l Logger) { l.Trace("x") }, false},
		{LevelError, func(l Logger) { l.Error("x") }, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer

		tt.emit(Make(&buf, WithLevel(tt.level), WithFormat(FormatText)))

		if got := buf.Len() > 0; got != tt.want {
			t.Errorf("level %s: wrote=%v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer

	Make(&buf, WithLevel(LevelTrace), WithFormat(FormatText)).Trace("step")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("want level=TRACE in %q", buf.String())
	}
}

func TestParse(t *testing.T) {
	if got := ParseLevel("trace"); got != LevelTrace {
		t.Errorf("ParseLevel(trace) = %v", got)
	}

	if got := ParseLevel("WARN"); got != LevelWarn {
		t.Errorf("ParseLevel(WARN) = %v", got)
	}

	if got := ParseLevel("bogus"); got != DefaultLevel {
		t.Errorf("ParseLevel(bogus) = %v", got)
	}

	if got := ParseFormat("text"); got != FormatText {
		t.Errorf("ParseFormat(text) = %v", got)
	}

	if got := ParseFormat(""); got != DefaultFormat {
		t.Errorf("ParseFormat(\"\") = %v", got)
	}
}

func TestWrapKeepsOutput(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithLevel(LevelError)).Wrap(WithLevel(LevelDebug))
	l.Debug("now visible")

	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("wrapped logger lost output: %q", buf.String())
	}

	if l.Level() != LevelDebug {
		t.Errorf("Level() = %v", l.Level())
	}
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatText)).With(slog.String("ext", "queue"))
	l.Info("registered")

	if !strings.Contains(buf.String(), "ext=queue") {
		t.Errorf("missing attr: %q", buf.String())
	}
}

func TestZeroLoggerDiscards(t *testing.T) {
	var l Logger

	l.Info("nothing")
	l.With(slog.Int("n", 1)).Error("still nothing")
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatText), WithPretty(true), WithTimeLayout(""))
	l.WithGroup("engine").Warn("slow", slog.Int("steps", 3))

	out := buf.String()
	if !strings.Contains(out, ansiYellow) || !strings.Contains(out, "engine.steps") {
		t.Errorf("unexpected pretty output %q", out)
	}
}

func TestCaller(t *testing.T) {
	var buf bytes.Buffer

	Make(&buf, WithCaller(true)).Info("here")

	if !strings.Contains(buf.String(), "log_test.go") {
		t.Errorf("source should point at the test file: %q", buf.String())
	}
}
