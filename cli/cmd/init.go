package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/cask/ext/file"
	"github.com/ardnew/cask/ext/http"
	"github.com/ardnew/cask/ext/sqlite"
	"github.com/ardnew/cask/ext/util"
	"github.com/ardnew/cask/log"
	"github.com/ardnew/cask/profile"
)

// ExtensionsKey is the configuration file section holding extension
// options.
const ExtensionsKey = "extensions"

// Init generates a configuration file with current flag values.
type Init struct {
	Force bool `help:"Overwrite existing configuration file" short:"f"`
}

// Run executes the init command.
func (i *Init) Run(ctx context.Context, h *Host) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ktx := kongContextFrom(ctx)

	confPath, ok := ktx.Model.Vars()[ConfigIdentifier]
	if !ok {
		panic("internal error: config path undefined")
	}

	_, err = os.Stat(confPath)
	if err == nil && !i.Force {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			With(slog.Bool("exists", true)).
			Wrap(ErrFileExists)
	}

	data, err := yaml.Marshal(i.buildConfig(ctx, h))
	if err != nil {
		return ErrYAMLMarshal.Wrap(err)
	}

	if err := os.WriteFile(confPath, data, 0o600); err != nil {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			Wrap(err)
	}

	log.DebugContext(ctx, "initialized configuration file",
		slog.String("path", confPath))

	return nil
}

// buildConfig collects the current flag values in declaration order, then
// the extension options.
func (i *Init) buildConfig(ctx context.Context, h *Host) yaml.MapSlice {
	ktx := kongContextFrom(ctx)

	var conf yaml.MapSlice

	prefixIgnore := []string{"help", profile.Tag}

	for _, flag := range ktx.Model.Flags {
		if flag.Hidden || slices.ContainsFunc(prefixIgnore, func(s string) bool {
			return strings.HasPrefix(flag.Name, s)
		}) {
			continue
		}

		if val, ok := configValue(ktx.FlagValue(flag)); ok {
			conf = append(conf, yaml.MapItem{Key: flag.Name, Value: val})
		}
	}

	return append(conf, yaml.MapItem{Key: ExtensionsKey, Value: extensionConfig(h.Extensions)})
}

// configValue converts a flag value into its YAML form, reporting false
// for unset values.
func configValue(val any) (any, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false
	case bool, int, int64, float64:
		return v, true
	case string:
		return v, v != ""
	case []string:
		return v, len(v) > 0
	default:
		s := fmt.Sprint(v)

		return s, s != ""
	}
}

// extensionConfig returns the configured extension options, filling in the
// defaults of the bundled extensions, in key order.
func extensionConfig(opts map[string]any) yaml.MapSlice {
	merged := map[string]any{
		util.AllowGetenv: false,
		util.AllowSystem: false,
		util.Shell:       util.DefaultShell,
		file.Root:        ".",
		sqlite.Root:      ".",
		http.Insecure:    false,
	}

	maps.Copy(merged, opts)

	out := make(yaml.MapSlice, 0, len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, yaml.MapItem{Key: k, Value: merged[k]})
	}

	return out
}
