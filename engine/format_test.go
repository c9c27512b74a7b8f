package engine

import "testing"

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    any
		spec string
		want string
	}{
		{int64(42), "", "42"},
		{int64(42), "5d", "   42"},
		{int64(42), "<5", "42   "},
		{int64(42), "*^6", "**42**"},
		{int64(-42), "06", "-00042"},
		{int64(42), "+", "+42"},
		{int64(255), "x", "ff"},
		{int64(255), "#X", "0XFF"},
		{int64(5), "08b", "00000101"},
		{int64(1234567), ",", "1,234,567"},
		{3.14159, ".2f", "3.14"},
		{3.14159, "8.3f", "   3.142"},
		{0.5, ".0%", "50%"},
		{12345.678, ",.1f", "12,345.7"},
		{1500.0, ".2e", "1.50e+03"},
		{"abc", ">5", "  abc"},
		{"abcdef", ".3", "abc"},
		{true, "", "True"},
		{true, "d", "1"},
	}

	for _, tt := range tests {
		got, err := formatValue(tt.v, tt.spec)
		if err != nil {
			t.Errorf("formatValue(%v, %q): %v", tt.v, tt.spec, err)

			continue
		}

		if got != tt.want {
			t.Errorf("formatValue(%v, %q) = %q, want %q", tt.v, tt.spec, got, tt.want)
		}
	}

	for _, spec := range []string{"z", "5.", "<<<"} {
		if _, err := formatValue(int64(1), spec); err == nil {
			t.Errorf("formatValue(1, %q) accepted an invalid spec", spec)
		}
	}
}

func TestPercentFormat(t *testing.T) {
	tests := []struct {
		format string
		args   any
		want   string
	}{
		{"%s and %r", NewTuple("a", "b"), "a and 'b'"},
		{"%d%%", int64(50), "50%"},
		{"%5.2f|%-4d|", NewTuple(3.14159, int64(7)), " 3.14|7   |"},
		{"%x %o %c", NewTuple(int64(255), int64(8), int64(65)), "ff 10 A"},
		{"%(name)s=%(n)03d", func() any {
			d := NewDict()
			_ = d.Set("name", "k")
			_ = d.Set("n", int64(5))

			return d
		}(), "k=005"},
	}

	for _, tt := range tests {
		got, err := percentFormat(tt.format, tt.args)
		if err != nil {
			t.Errorf("%q %% %s: %v", tt.format, repr(tt.args), err)

			continue
		}

		if got != tt.want {
			t.Errorf("%q %% %s = %q, want %q", tt.format, repr(tt.args), got, tt.want)
		}
	}

	if _, err := percentFormat("%s %s", NewTuple("one")); err == nil {
		t.Error("too few arguments accepted")
	}

	if _, err := percentFormat("%s", NewTuple("a", "b")); err == nil {
		t.Error("too many arguments accepted")
	}
}
