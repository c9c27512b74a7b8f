// Package opt reads extension options from the host configuration.
package opt

import (
	"fmt"
	"strconv"
)

// Bool returns the option key as a boolean. Strings are parsed with
// [strconv.ParseBool]; anything unparseable is false.
func Bool(opts map[string]any, key string) bool {
	switch v := opts[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)

		return b
	case int, int64, uint64:
		return fmt.Sprint(v) != "0"
	}

	return false
}

// String returns the option key as a string, or def when unset or empty.
func String(opts map[string]any, key, def string) string {
	v, ok := opts[key]
	if !ok || v == nil {
		return def
	}

	if s := fmt.Sprint(v); s != "" {
		return s
	}

	return def
}
