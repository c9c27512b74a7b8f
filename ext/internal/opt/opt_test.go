package opt

import "testing"

func TestBool(t *testing.T) {
	opts := map[string]any{
		"yes":   true,
		"str":   "true",
		"junk":  "maybe",
		"one":   int64(1),
		"zero":  uint64(0),
		"float": 1.5,
	}

	tests := map[string]bool{
		"yes": true, "str": true, "junk": false, "one": true,
		"zero": false, "float": false, "unset": false,
	}

	for key, want := range tests {
		if got := Bool(opts, key); got != want {
			t.Errorf("Bool(%s) = %v, want %v", key, got, want)
		}
	}
}

func TestString(t *testing.T) {
	opts := map[string]any{"root": "/srv", "empty": "", "nil": nil, "num": 7}

	tests := map[string]string{
		"root": "/srv", "empty": "dflt", "nil": "dflt", "num": "7", "unset": "dflt",
	}

	for key, want := range tests {
		if got := String(opts, key, "dflt"); got != want {
			t.Errorf("String(%s) = %q, want %q", key, got, want)
		}
	}
}
