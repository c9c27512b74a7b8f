package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

func initContext(t *testing.T, path string, args ...string) (context.Context, *Host) {
	t.Helper()

	var cli struct {
		Host Host `embed:""`

		Verbose bool `help:"Enable verbose output"`
	}

	parser, err := kong.New(&cli, kong.Vars{ConfigIdentifier: path})
	if err != nil {
		t.Fatal(err)
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}

	return WithContext(t.Context(), ktx), &cli.Host
}

func TestInitRun(t *testing.T) {
	tests := []struct {
		name    string
		force   bool
		exists  bool
		wantErr error
	}{
		{name: "create_new_config"},
		{name: "overwrite_existing_with_force", force: true, exists: true},
		{name: "fail_without_force", exists: true, wantErr: ErrWriteConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")

			if tt.exists {
				if err := os.WriteFile(path, []byte("existing: true\n"), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			ctx, h := initContext(t, path)

			err := (&Init{Force: tt.force}).Run(ctx, h)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Init.Run() error = %v, want %v", err, tt.wantErr)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			var doc map[string]any
			if err := yaml.Unmarshal(data, &doc); err != nil {
				t.Fatalf("generated config is not YAML: %v", err)
			}

			if _, ok := doc[ExtensionsKey]; ok == (tt.wantErr != nil) {
				t.Errorf("extensions section present = %v", ok)
			}
		})
	}
}

func TestInitBuildConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	ctx, h := initContext(t, path, "--verbose", "--allow=queue,tdict", "--step-limit=10")

	h.Extensions = map[string]any{"file_root": "/srv/data", "custom": 3}

	conf := (&Init{}).buildConfig(ctx, h)

	values := map[string]any{}
	for _, item := range conf {
		values[fmt.Sprint(item.Key)] = item.Value
	}

	for key, want := range map[string]string{
		"verbose":    "true",
		"allow":      "[queue tdict]",
		"step-limit": "10",
		"basedir":    "[.]",
		"flatten":    "false",
	} {
		if got := fmt.Sprint(values[key]); got != want {
			t.Errorf("%s = %s, want %s", key, got, want)
		}
	}

	for _, key := range []string{"help", "policy"} {
		if _, ok := values[key]; ok {
			t.Errorf("unexpected key %q", key)
		}
	}

	if last := conf[len(conf)-1]; last.Key != ExtensionsKey {
		t.Fatalf("last key = %v, want %s", last.Key, ExtensionsKey)
	}

	ext, _ := conf[len(conf)-1].Value.(yaml.MapSlice)

	got := map[string]string{}
	for _, item := range ext {
		got[fmt.Sprint(item.Key)] = fmt.Sprint(item.Value)
	}

	for key, want := range map[string]string{
		"file_root":     "/srv/data",
		"sql_root":      ".",
		"allow_system":  "false",
		"http_insecure": "false",
		"custom":        "3",
	} {
		if got[key] != want {
			t.Errorf("extensions.%s = %q, want %q", key, got[key], want)
		}
	}
}

func TestConfigValue(t *testing.T) {
	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{nil, "<nil>", false},
		{true, "true", true},
		{int64(7), "7", true},
		{"", "", false},
		{"debug", "debug", true},
		{[]string{}, "[]", false},
		{[]string{"a"}, "[a]", true},
	}

	for _, tt := range tests {
		got, ok := configValue(tt.in)
		if ok != tt.wantOK || (ok && fmt.Sprint(got) != tt.want) {
			t.Errorf("configValue(%#v) = %v, %v", tt.in, got, ok)
		}
	}
}
