package cli

import (
	"testing"

	"github.com/ardnew/cask/log"
)

func TestFlagBool(t *testing.T) {
	tests := []struct {
		value    string
		assigned bool
		negated  bool
		want     bool
		wantOK   bool
	}{
		{"", false, false, true, true},
		{"", false, true, false, true},
		{"false", true, false, false, true},
		{"false", true, true, true, true},
		{"maybe", true, false, false, false},
	}

	for _, tt := range tests {
		got, ok := flagBool(tt.value, tt.assigned, tt.negated)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("flagBool(%q, %v, %v) = %v, %v", tt.value, tt.assigned, tt.negated, got, ok)
		}
	}
}

func TestLogScan(t *testing.T) {
	t.Cleanup(func() { log.Config(log.WithLevel(log.DefaultLevel), log.WithPretty(true)) })

	f := logConfig{Pretty: true}
	f.scan([]string{"run", "--log-level", "trace", "--no-log-pretty", "--log-caller=true", "--log-format=text", "x.apy"})

	if f.Level != "trace" || f.Format != "text" || f.Pretty || !f.Caller {
		t.Errorf("scan = %+v", f)
	}

	if got := log.Default().Level(); got != log.LevelTrace {
		t.Errorf("default level = %v, want trace", got)
	}
}

func TestLogVars(t *testing.T) {
	vars := (&logConfig{}).vars()

	if vars["logLevelEnum"] != "trace,debug,info,warn,error" || vars["logFormatEnum"] != "json,text" {
		t.Errorf("vars = %v", vars)
	}
}
