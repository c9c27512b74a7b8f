package cli

import (
	"slices"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/ardnew/cask/cli/cmd"
)

const testConfig = `
basedir: [scripts, lib]
allow: queue,tdict
step_limit: 5
flatten: true
log:
  level: debug
extensions:
  allow_system: true
  file_root: /srv/data
`

func TestLoad(t *testing.T) {
	var h cmd.Host

	res, err := load(t.Context(), &h)(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	conf, ok := res.(config)
	if !ok {
		t.Fatalf("resolver type %T", res)
	}

	for key, want := range map[string]any{
		"basedir":    "scripts,lib",
		"allow":      "queue,tdict",
		"step-limit": "5",
		"flatten":    true,
		"log-level":  "debug",
	} {
		if got := conf[key]; got != want {
			t.Errorf("%s = %#v, want %#v", key, got, want)
		}
	}

	if _, ok := conf["extensions"]; ok {
		t.Error("extensions section resolved as a flag")
	}

	if h.Extensions["allow_system"] != true || h.Extensions["file_root"] != "/srv/data" {
		t.Errorf("Extensions = %v", h.Extensions)
	}
}

func TestLoadInvalid(t *testing.T) {
	var h cmd.Host

	res, err := load(t.Context(), &h)(strings.NewReader("basedir: [unterminated\n"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if conf, _ := res.(config); len(conf) != 0 || h.Extensions != nil {
		t.Errorf("invalid file resolved %v, %v", conf, h.Extensions)
	}
}

func TestResolveFlags(t *testing.T) {
	var cli struct {
		Host cmd.Host `embed:""`

		Log struct {
			Level string `default:"info"`
		} `embed:"" prefix:"log-"`
	}

	res, err := load(t.Context(), &cli.Host)(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	parser, err := kong.New(&cli, kong.Resolvers(res))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"--step-limit=9"}); err != nil {
		t.Fatal(err)
	}

	h := cli.Host

	if !slices.Equal(h.BaseDir, []string{"scripts", "lib"}) ||
		!slices.Equal(h.Allow, []string{"queue", "tdict"}) {
		t.Errorf("BaseDir = %q, Allow = %q", h.BaseDir, h.Allow)
	}

	if !h.Flatten || h.StepLimit != 9 || cli.Log.Level != "debug" {
		t.Errorf("Flatten = %v, StepLimit = %d, Log.Level = %q", h.Flatten, h.StepLimit, cli.Log.Level)
	}
}
