package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ardnew/cask/pkg"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestPermit(t *testing.T) {
	tests := []struct {
		name    string
		allow   []string
		policy  string
		permits map[string]bool
	}{
		{
			name:    "no_restriction",
			permits: map[string]bool{"queue": true, "util": true},
		},
		{
			name:    "allow_list",
			allow:   []string{"queue", "tdict"},
			permits: map[string]bool{"queue": true, "tdict": true, "util": false},
		},
		{
			name:    "policy",
			allow:   []string{"queue"},
			policy:  `name in allowed || name startsWith "t"`,
			permits: map[string]bool{"queue": true, "tasks": true, "tdict": true, "util": false},
		},
		{
			name:    "policy_ignores_empty_allow",
			policy:  `name == "file"`,
			permits: map[string]bool{"file": true, "queue": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Host{Allow: tt.allow, Policy: tt.policy}

			permit, err := h.Permit()
			if err != nil {
				t.Fatalf("Permit() error = %v", err)
			}

			for name, want := range tt.permits {
				if got := permit(name); got != want {
					t.Errorf("permit(%q) = %v, want %v", name, got, want)
				}
			}
		})
	}
}

func TestPermitInvalidPolicy(t *testing.T) {
	for _, policy := range []string{`name +`, `len(name)`} {
		h := &Host{Policy: policy}

		if _, err := h.Permit(); !errors.Is(err, ErrPolicy) {
			t.Errorf("Permit(%q) error = %v, want ErrPolicy", policy, err)
		}
	}
}

func TestScriptPath(t *testing.T) {
	for _, name := range []string{"", "  ", "/etc/passwd", `\share\x`, "../up", "lib/../../up", "a/.."} {
		if _, err := scriptPath(name); !errors.Is(err, ErrScriptPath) {
			t.Errorf("scriptPath(%q) error = %v, want ErrScriptPath", name, err)
		}
	}

	for name, want := range map[string]string{
		"main":           "main",
		"lib/util.apy":   filepath.Join("lib", "util.apy"),
		"./lib//net.apy": filepath.Join("lib", "net.apy"),
	} {
		if got, err := scriptPath(name); err != nil || got != want {
			t.Errorf("scriptPath(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
}

func TestLoadScript(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()

	writeScript(t, first, "main"+pkg.ScriptExt, "x = 1")
	writeScript(t, second, "main"+pkg.ScriptExt, "x = 2")
	writeScript(t, second, "lib/helper"+pkg.ScriptExt, "y = 3")
	writeScript(t, second, "plain.txt", "z = 4")

	h := &Host{BaseDir: []string{filepath.Join(first, "missing"), first, second}}

	tests := []struct {
		name string
		want string
	}{
		{"main", "x = 1"},
		{"main" + pkg.ScriptExt, "x = 1"},
		{"lib/helper", "y = 3"},
		{"plain.txt", "z = 4"},
	}

	for _, tt := range tests {
		got, err := h.LoadScript(t.Context(), tt.name)
		if err != nil || got != tt.want {
			t.Errorf("LoadScript(%q) = %q, %v; want %q", tt.name, got, err, tt.want)
		}
	}

	if _, err := h.LoadScript(t.Context(), "absent"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("LoadScript(absent) error = %v, want ErrScriptNotFound", err)
	}

	if _, err := h.LoadScript(t.Context(), "../main"); !errors.Is(err, ErrScriptPath) {
		t.Errorf("LoadScript(../main) error = %v, want ErrScriptPath", err)
	}
}

func TestNewEngine(t *testing.T) {
	var out bytes.Buffer

	h := &Host{
		Allow:   []string{"tdict"},
		Modules: []string{"math"},
		Stdout:  &out,
	}

	e, err := h.NewEngine(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t.Context(), e)

	if v, ok := e.GetSysVar("version"); !ok || v != pkg.Version {
		t.Errorf("version = %v", v)
	}

	if got := e.ScanAvailableExtensions(); !slices.Equal(got, []string{"tdict"}) {
		t.Errorf("ScanAvailableExtensions() = %v", got)
	}

	if !slices.Contains(e.ListModules(), "math") {
		t.Errorf("ListModules() = %v, want math installed", e.ListModules())
	}

	if err := e.Run(t.Context(), "print(getSysVar_('platform') != '', prefix='')"); err != nil {
		t.Fatal(err)
	}

	if got := out.String(); got != "True\n" {
		t.Errorf("output = %q", got)
	}

	h.Policy = "name +"
	if _, err := h.NewEngine(t.Context()); !errors.Is(err, ErrPolicy) {
		t.Errorf("NewEngine with bad policy: %v", err)
	}
}
