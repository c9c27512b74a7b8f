package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

func jsonModule() map[string]any {
	return map[string]any{
		"dumps": Func(jsonDumps),
		"loads": Func(jsonLoads),
	}
}

func jsonDumps(_ context.Context, a Args) (any, error) {
	var (
		v        any
		indent   any
		sortKeys bool
	)

	if err := a.Unpack("dumps", "obj", &v, "indent?", &indent, "sort_keys?", &sortKeys); err != nil {
		return nil, err
	}

	var prefix string

	switch n := indent.(type) {
	case nil:
	case int64:
		prefix = strings.Repeat(" ", int(min(max(n, 0), 64)))
	case string:
		prefix = n
	default:
		return nil, Errorf(CategoryType, "dumps() argument 'indent' must be int or str, not %s", typeName(indent))
	}

	jv, err := toJSON(v, sortKeys, 0)
	if err != nil {
		return nil, err
	}

	var out []byte
	if indent == nil {
		out, err = json.Marshal(jv)
	} else {
		out, err = json.MarshalIndent(jv, "", prefix)
	}

	if err != nil {
		var ue *json.UnsupportedValueError
		if errors.As(err, &ue) {
			return nil, NewError(CategoryValue, "out of range float values are not JSON compliant")
		}

		return nil, ErrValue.Wrap(err)
	}

	return string(out), nil
}

// jsonObject encodes a dict in insertion (or sorted) order.
type jsonObject struct {
	keys   []string
	values []any
}

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer

	b.WriteByte('{')

	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}

		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}

	b.WriteByte('}')

	return b.Bytes(), nil
}

const maxJSONDepth = 512

func toJSON(v any, sortKeys bool, depth int) (any, error) {
	if depth > maxJSONDepth {
		return nil, NewError(CategoryRecursion, "maximum recursion depth exceeded while encoding JSON")
	}

	switch v := v.(type) {
	case nil, bool, int64, string:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewError(CategoryValue, "out of range float values are not JSON compliant")
		}

		return v, nil
	case *List:
		return toJSONItems(v.Snapshot(), sortKeys, depth)
	case *Tuple:
		return toJSONItems(v.Items, sortKeys, depth)
	case *Dict:
		obj := jsonObject{}

		for _, e := range v.snapshot() {
			key, err := jsonKey(e.key)
			if err != nil {
				return nil, err
			}

			val, err := toJSON(e.value, sortKeys, depth+1)
			if err != nil {
				return nil, err
			}

			obj.keys = append(obj.keys, key)
			obj.values = append(obj.values, val)
		}

		if sortKeys {
			idx := make([]int, len(obj.keys))
			for i := range idx {
				idx[i] = i
			}

			slices.SortStableFunc(idx, func(i, j int) int { return strings.Compare(obj.keys[i], obj.keys[j]) })

			sorted := jsonObject{}
			for _, i := range idx {
				sorted.keys = append(sorted.keys, obj.keys[i])
				sorted.values = append(sorted.values, obj.values[i])
			}

			obj = sorted
		}

		return obj, nil
	}

	return nil, Errorf(CategoryType, "Object of type %s is not JSON serializable", typeName(v))
}

func toJSONItems(items []any, sortKeys bool, depth int) (any, error) {
	out := make([]any, len(items))

	for i, it := range items {
		v, err := toJSON(it, sortKeys, depth+1)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

func jsonKey(k any) (string, error) {
	switch k := k.(type) {
	case string:
		return k, nil
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(k), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case float64:
		return formatFloat(k), nil
	}

	return "", Errorf(CategoryType, "keys must be str, int, float, bool or None, not %s", typeName(k))
}

func jsonLoads(_ context.Context, a Args) (any, error) {
	var s string
	if err := a.Unpack("loads", "s", &s); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	v, err := fromJSON(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, NewError(CategoryValue, "extra data after JSON value")
	}

	return v, nil
}

// fromJSON decodes the next value from dec, keeping object key order.
func fromJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, jsonError(err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			var items []any

			for dec.More() {
				v, err := fromJSON(dec)
				if err != nil {
					return nil, err
				}

				items = append(items, v)
			}

			if _, err := dec.Token(); err != nil {
				return nil, jsonError(err)
			}

			return NewList(items...), nil

		case '{':
			d := NewDict()

			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, jsonError(err)
				}

				v, err := fromJSON(dec)
				if err != nil {
					return nil, err
				}

				if err := d.Set(kt.(string), v); err != nil {
					return nil, err
				}
			}

			if _, err := dec.Token(); err != nil {
				return nil, jsonError(err)
			}

			return d, nil
		}

	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}

		f, err := t.Float64()
		if err != nil {
			return nil, Errorf(CategoryValue, "invalid JSON number %s", t)
		}

		return f, nil

	case string, bool, nil:
		return t, nil
	}

	return nil, Errorf(CategoryValue, "unexpected JSON token %v", tok)
}

func jsonError(err error) error {
	if errors.Is(err, io.EOF) {
		return NewError(CategoryValue, "unexpected end of JSON input")
	}

	return Errorf(CategoryValue, "invalid JSON: %v", err)
}
