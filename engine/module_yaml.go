package engine

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

func yamlModule() map[string]any {
	return map[string]any{
		"dump": Func(yamlDump),
		"load": Func(yamlLoad),
	}
}

func yamlDump(ctx context.Context, a Args) (any, error) {
	var (
		v      any
		indent int64
		flow   bool
	)

	if err := a.Unpack("dump", "obj", &v, "indent?", &indent, "flow?", &flow); err != nil {
		return nil, err
	}

	yv, err := toYAML(v, 0)
	if err != nil {
		return nil, err
	}

	var opts []yaml.EncodeOption
	if indent > 0 {
		opts = append(opts, yaml.Indent(int(min(indent, 16))))
	}

	if flow {
		opts = append(opts, yaml.Flow(true))
	}

	out, err := yaml.MarshalContext(ctx, yv, opts...)
	if err != nil {
		return nil, ErrValue.Wrap(err)
	}

	return string(out), nil
}

func toYAML(v any, depth int) (any, error) {
	if depth > maxJSONDepth {
		return nil, NewError(CategoryRecursion, "maximum recursion depth exceeded while encoding YAML")
	}

	items := func(in []any) (any, error) {
		out := make([]any, len(in))

		for i, it := range in {
			y, err := toYAML(it, depth+1)
			if err != nil {
				return nil, err
			}

			out[i] = y
		}

		return out, nil
	}

	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case *List:
		return items(v.Snapshot())
	case *Tuple:
		return items(v.Items)
	case *Set:
		return items(v.Items())
	case *Dict:
		out := make(yaml.MapSlice, 0, v.Len())

		for _, e := range v.snapshot() {
			val, err := toYAML(e.value, depth+1)
			if err != nil {
				return nil, err
			}

			out = append(out, yaml.MapItem{Key: e.key, Value: val})
		}

		return out, nil
	}

	return nil, Errorf(CategoryType, "object of type %s is not YAML serializable", typeName(v))
}

// yamlLoad decodes a single YAML document, preserving mapping order.
func yamlLoad(_ context.Context, a Args) (any, error) {
	var s string
	if err := a.Unpack("load", "s", &s); err != nil {
		return nil, err
	}

	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var v any
	if err := yaml.UnmarshalWithOptions([]byte(s), &v, yaml.UseOrderedMap()); err != nil {
		return nil, Errorf(CategoryValue, "invalid YAML: %v", err)
	}

	return fromYAML(v)
}

func fromYAML(v any) (any, error) {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, errOverflow
		}

		return int64(v), nil
	case []any:
		out := make([]any, len(v))

		for i, it := range v {
			y, err := fromYAML(it)
			if err != nil {
				return nil, err
			}

			out[i] = y
		}

		return NewList(out...), nil
	case yaml.MapSlice:
		d := NewDict()

		for _, it := range v {
			if err := setYAML(d, it.Key, it.Value); err != nil {
				return nil, err
			}
		}

		return d, nil
	case map[string]any:
		d := NewDict()

		for _, k := range slices.Sorted(maps.Keys(v)) {
			if err := setYAML(d, k, v[k]); err != nil {
				return nil, err
			}
		}

		return d, nil
	}

	return fmt.Sprint(v), nil
}

func setYAML(d *Dict, k, v any) error {
	key, err := fromYAML(k)
	if err != nil {
		return err
	}

	val, err := fromYAML(v)
	if err != nil {
		return err
	}

	if err := d.Set(key, val); err != nil {
		return Errorf(CategoryValue, "unusable YAML mapping key %s", repr(key))
	}

	return nil
}
