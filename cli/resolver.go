package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/cask/cli/cmd"
	"github.com/ardnew/cask/log"
)

// load returns a [kong.ConfigurationLoader] for YAML configuration files.
//
//	log-level: debug
//	basedir: [., lib]
//	allow: [queue, tdict]
//	extensions:
//	  allow_system: false
//	  file_root: /srv/data
//
// Top-level keys name flags; nested maps are joined with '-' (log: {level:
// debug} sets --log-level) and underscores may stand in for hyphens. The
// extensions section is stored in h.Extensions instead. A file that does not
// parse is ignored with a warning. Command-line flags override file values.
func load(ctx context.Context, h *cmd.Host) kong.ConfigurationLoader {
	return func(r io.Reader) (kong.Resolver, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}

		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			log.WarnContext(ctx, "ignoring configuration file",
				slog.Any("error", err))

			return config{}, nil
		}

		if ext, ok := doc[cmd.ExtensionsKey].(map[string]any); ok {
			h.Extensions = maps.Clone(ext)
		}

		delete(doc, cmd.ExtensionsKey)

		conf := config{}
		conf.flatten("", doc)

		return conf, nil
	}
}

// config implements [kong.Resolver] over flattened flag values.
type config map[string]any

func (r config) flatten(prefix string, m map[string]any) {
	for key, value := range m {
		key = strings.ReplaceAll(prefix+key, "_", "-")

		if sub, ok := value.(map[string]any); ok {
			r.flatten(key+"-", sub)

			continue
		}

		r[key] = flagValue(value)
	}
}

// flagValue converts a decoded YAML value to the form Kong decodes: numbers
// as strings and lists joined by the default separator.
func flagValue(value any) any {
	switch v := value.(type) {
	case nil, bool, string:
		return v
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = fmt.Sprint(item)
		}

		return strings.Join(items, ",")
	default:
		return fmt.Sprint(v)
	}
}

// Validate implements [kong.Resolver].
func (r config) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (r config) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	if value, ok := r[flag.Name]; ok {
		return value, nil
	}

	return nil, nil
}
