package engine

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// fmtSpec is a parsed format specification:
// [[fill]align][sign][#][0][width][,][.precision][type].
type fmtSpec struct {
	fill  rune
	align byte
	sign  byte
	alt   bool
	width int
	comma bool
	prec  int
	typ   byte
}

func parseSpec(s string) (fmtSpec, error) {
	spec := fmtSpec{fill: ' ', prec: -1}
	bad := func() (fmtSpec, error) {
		return fmtSpec{}, Errorf(CategoryValue, "invalid format specifier '%s'", s)
	}

	isAlign := func(b byte) bool { return b == '<' || b == '>' || b == '^' || b == '=' }

	rest := s

	if r, n := utf8.DecodeRuneInString(rest); n > 0 && len(rest) > n && isAlign(rest[n]) {
		spec.fill, spec.align = r, rest[n]
		rest = rest[n+1:]
	} else if rest != "" && isAlign(rest[0]) {
		spec.align = rest[0]
		rest = rest[1:]
	}

	if rest != "" && (rest[0] == '+' || rest[0] == '-' || rest[0] == ' ') {
		spec.sign = rest[0]
		rest = rest[1:]
	}

	if rest != "" && rest[0] == '#' {
		spec.alt = true
		rest = rest[1:]
	}

	if rest != "" && rest[0] == '0' {
		if spec.align == 0 {
			spec.fill, spec.align = '0', '='
		}

		rest = rest[1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}

	if i > 0 {
		w, err := strconv.Atoi(rest[:i])
		if err != nil || w > maxSequence {
			return bad()
		}

		spec.width = w
		rest = rest[i:]
	}

	if rest != "" && rest[0] == ',' {
		spec.comma = true
		rest = rest[1:]
	}

	if rest != "" && rest[0] == '.' {
		rest = rest[1:]

		i = 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}

		if i == 0 {
			return bad()
		}

		p, err := strconv.Atoi(rest[:i])
		if err != nil || p > 1000 {
			return bad()
		}

		spec.prec = p
		rest = rest[i:]
	}

	switch len(rest) {
	case 0:
	case 1:
		if !strings.ContainsRune("sdnbcoxXeEfFgG%", rune(rest[0])) {
			return bad()
		}

		spec.typ = rest[0]
	default:
		return bad()
	}

	return spec, nil
}

// formatValue implements format(v, spec).
func formatValue(v any, spec string) (string, error) {
	if spec == "" {
		return str(v), nil
	}

	fs, err := parseSpec(spec)
	if err != nil {
		return "", err
	}

	if b, ok := v.(bool); ok && fs.typ != 0 && fs.typ != 's' {
		v = int64(0)
		if b {
			v = int64(1)
		}
	}

	switch x := v.(type) {
	case int64:
		return fs.formatInt(x)
	case float64:
		return fs.formatFloat(x)
	}

	if fs.typ != 0 && fs.typ != 's' {
		return "", Errorf(CategoryValue, "unknown format code '%c' for object of type '%s'", fs.typ, typeName(v))
	}

	s := str(v)
	if fs.prec >= 0 && utf8.RuneCountInString(s) > fs.prec {
		s = string([]rune(s)[:fs.prec])
	}

	if fs.align == 0 {
		fs.align = '<'
	}

	return fs.pad("", s), nil
}

func (fs fmtSpec) formatInt(x int64) (string, error) {
	var digits, prefix string

	neg := x < 0
	u := uint64(x)

	if neg {
		u = -u
	}

	switch fs.typ {
	case 0, 'd', 'n':
		digits = strconv.FormatUint(u, 10)
	case 'b':
		digits, prefix = strconv.FormatUint(u, 2), "0b"
	case 'o':
		digits, prefix = strconv.FormatUint(u, 8), "0o"
	case 'x':
		digits, prefix = strconv.FormatUint(u, 16), "0x"
	case 'X':
		digits, prefix = strings.ToUpper(strconv.FormatUint(u, 16)), "0X"
	case 'c':
		if x < 0 || x > utf8.MaxRune {
			return "", NewError(CategoryValue, "%c arg not in range")
		}

		if fs.align == 0 {
			fs.align = '<'
		}

		return fs.pad("", string(rune(x))), nil
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return fs.formatFloat(float64(x))
	default:
		return "", Errorf(CategoryValue, "unknown format code '%c' for object of type 'int'", fs.typ)
	}

	if fs.prec >= 0 {
		return "", NewError(CategoryValue, "precision not allowed in integer format specifier")
	}

	if fs.comma {
		digits = groupThousands(digits)
	}

	if !fs.alt {
		prefix = ""
	}

	return fs.pad(fs.signOf(neg)+prefix, digits), nil
}

func (fs fmtSpec) formatFloat(x float64) (string, error) {
	prec := fs.prec
	if prec < 0 {
		prec = 6
	}

	neg := math.Signbit(x) && !math.IsNaN(x)
	a := math.Abs(x)

	var digits string

	switch fs.typ {
	case 'f', 'F':
		digits = strconv.FormatFloat(a, 'f', prec, 64)
	case 'e', 'E':
		digits = strconv.FormatFloat(a, 'e', prec, 64)
	case 'g', 'G':
		if prec == 0 {
			prec = 1
		}

		digits = strconv.FormatFloat(a, 'g', prec, 64)
	case '%':
		digits = strconv.FormatFloat(a*100, 'f', prec, 64) + "%"
	case 0:
		if fs.prec >= 0 {
			digits = strconv.FormatFloat(a, 'g', max(prec, 1), 64)
		} else {
			digits = formatFloat(a)
		}
	default:
		return "", Errorf(CategoryValue, "unknown format code '%c' for object of type 'float'", fs.typ)
	}

	switch {
	case math.IsInf(a, 0):
		digits = "inf"
	case math.IsNaN(a):
		digits = "nan"
	}

	if fs.typ == 'E' || fs.typ == 'G' || fs.typ == 'F' {
		digits = strings.ToUpper(digits)
	}

	if fs.comma {
		intPart, frac, _ := strings.Cut(digits, ".")
		if frac != "" {
			frac = "." + frac
		}

		digits = groupThousands(intPart) + frac
	}

	return fs.pad(fs.signOf(neg), digits), nil
}

func (fs fmtSpec) signOf(neg bool) string {
	switch {
	case neg:
		return "-"
	case fs.sign == '+':
		return "+"
	case fs.sign == ' ':
		return " "
	}

	return ""
}

// pad aligns sign+body within the field width.
func (fs fmtSpec) pad(sign, body string) string {
	n := fs.width - utf8.RuneCountInString(sign) - utf8.RuneCountInString(body)
	if n <= 0 {
		return sign + body
	}

	fill := string(fs.fill)

	switch fs.align {
	case '<':
		return sign + body + strings.Repeat(fill, n)
	case '^':
		return strings.Repeat(fill, n/2) + sign + body + strings.Repeat(fill, n-n/2)
	case '=':
		return sign + strings.Repeat(fill, n) + body
	default:
		return strings.Repeat(fill, n) + sign + body
	}
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder

	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}

	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}

		b.WriteString(digits[i : i+3])
	}

	return b.String()
}

// formatString implements str.format.
func formatString(_ context.Context, s string, a Args) (string, error) {
	var b strings.Builder

	auto := 0
	manual := false

	for i := 0; i < len(s); {
		c := s[i]

		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			b.WriteByte('{')
			i += 2

			continue
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			b.WriteByte('}')
			i += 2

			continue
		case c == '}':
			return "", NewError(CategoryValue, "single '}' encountered in format string")
		case c != '{':
			b.WriteByte(c)
			i++

			continue
		}

		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return "", NewError(CategoryValue, "single '{' encountered in format string")
		}

		field := s[i+1 : i+end]
		i += end + 1

		name, spec, _ := strings.Cut(field, ":")
		name, conv, hasConv := strings.Cut(name, "!")

		key, index, hasIndex := strings.Cut(name, "[")

		var v any

		switch {
		case key == "":
			if manual {
				return "", NewError(CategoryValue,
					"cannot switch from manual field specification to automatic field numbering")
			}

			if auto >= len(a.Positional) {
				return "", Errorf(CategoryIndex, "replacement index %d out of range", auto)
			}

			v = a.Positional[auto]
			auto++
		case key[0] >= '0' && key[0] <= '9':
			n, err := strconv.Atoi(key)
			if err != nil {
				return "", Errorf(CategoryValue, "invalid field name '%s'", key)
			}

			if auto > 0 {
				return "", NewError(CategoryValue,
					"cannot switch from automatic field numbering to manual field specification")
			}

			manual = true

			if n >= len(a.Positional) {
				return "", Errorf(CategoryIndex, "replacement index %d out of range", n)
			}

			v = a.Positional[n]
		default:
			kv, ok := a.Keywords[key]
			if !ok {
				return "", &Error{Category: CategoryKey, args: []any{key}, msg: repr(key)}
			}

			v = kv
		}

		if hasIndex {
			idx, ok := strings.CutSuffix(index, "]")
			if !ok {
				return "", NewError(CategoryValue, "missing ']' in format string")
			}

			var k any = idx
			if n, err := strconv.ParseInt(idx, 10, 64); err == nil {
				k = n
			}

			item, err := getItem(v, k)
			if err != nil {
				return "", err
			}

			v = item
		}

		if hasConv {
			switch conv {
			case "r":
				v = repr(v)
			case "s":
				v = str(v)
			default:
				return "", Errorf(CategoryValue, "unknown conversion specifier %s", conv)
			}
		}

		out, err := formatValue(v, spec)
		if err != nil {
			return "", err
		}

		b.WriteString(out)

		if b.Len() > maxSequence {
			return "", NewError(CategoryValue, "formatted string is too large")
		}
	}

	return b.String(), nil
}

// percentFormat implements format % args.
func percentFormat(format string, args any) (any, error) {
	var (
		items   []any
		mapping *Dict
	)

	switch a := args.(type) {
	case *Tuple:
		items = a.Items
	case *Dict:
		mapping = a
		items = []any{a}
	default:
		items = []any{a}
	}

	var b strings.Builder

	next := 0

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)

			continue
		}

		i++
		if i >= len(format) {
			return nil, NewError(CategoryValue, "incomplete format")
		}

		var v any

		hasValue := false

		if format[i] == '(' {
			end := strings.IndexByte(format[i:], ')')
			if end < 0 {
				return nil, NewError(CategoryValue, "incomplete format key")
			}

			if mapping == nil {
				return nil, NewError(CategoryType, "format requires a mapping")
			}

			key := format[i+1 : i+end]

			mv, ok, err := mapping.Get(key)
			if err != nil {
				return nil, err
			}

			if !ok {
				return nil, &Error{Category: CategoryKey, args: []any{key}, msg: repr(key)}
			}

			v, hasValue = mv, true
			i += end + 1
		}

		fs := fmtSpec{fill: ' ', prec: -1, align: '>'}

	flags:
		for ; i < len(format); i++ {
			switch format[i] {
			case '-':
				fs.align = '<'
			case '+':
				fs.sign = '+'
			case ' ':
				if fs.sign == 0 {
					fs.sign = ' '
				}
			case '0':
				if fs.align != '<' {
					fs.fill, fs.align = '0', '='
				}
			case '#':
				fs.alt = true
			default:
				break flags
			}
		}

		start := i
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}

		if i > start {
			fs.width, _ = strconv.Atoi(format[start:i])
			if fs.width > maxSequence {
				return nil, NewError(CategoryValue, "width too big")
			}
		}

		if i < len(format) && format[i] == '.' {
			i++
			start = i

			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}

			fs.prec, _ = strconv.Atoi(format[start:i])
		}

		if i >= len(format) {
			return nil, NewError(CategoryValue, "incomplete format")
		}

		verb := format[i]
		if verb == '%' {
			b.WriteByte('%')

			continue
		}

		if !hasValue {
			if next >= len(items) {
				return nil, NewError(CategoryType, "not enough arguments for format string")
			}

			v = items[next]
			next++
		}

		out, err := percentVerb(fs, verb, v)
		if err != nil {
			return nil, err
		}

		b.WriteString(out)

		if b.Len() > maxSequence {
			return nil, NewError(CategoryValue, "formatted string is too large")
		}
	}

	if mapping == nil && next < len(items) {
		return nil, NewError(CategoryType, "not all arguments converted during string formatting")
	}

	return b.String(), nil
}

func percentVerb(fs fmtSpec, verb byte, v any) (string, error) {
	switch verb {
	case 's', 'r', 'a':
		s := str(v)
		if verb != 's' {
			s = repr(v)
		}

		if fs.prec >= 0 && utf8.RuneCountInString(s) > fs.prec {
			s = string([]rune(s)[:fs.prec])
		}

		if fs.align == '=' {
			fs.fill, fs.align = ' ', '>'
		}

		return fs.pad("", s), nil

	case 'd', 'i', 'u', 'x', 'X', 'o', 'c':
		n, ok := toNumber(v)
		if !ok {
			return "", Errorf(CategoryType, "%%%c format: a number is required, not %s", verb, typeName(v))
		}

		x := n.i
		if n.isFloat {
			if verb != 'd' && verb != 'i' && verb != 'u' {
				return "", Errorf(CategoryType, "%%%c format: an integer is required, not float", verb)
			}

			x = int64(n.f)
		}

		fs.typ = verb
		if verb == 'i' || verb == 'u' {
			fs.typ = 'd'
		}

		digitsOnly := fs
		digitsOnly.prec = -1

		return digitsOnly.formatInt(x)

	case 'f', 'F', 'e', 'E', 'g', 'G':
		n, ok := toNumber(v)
		if !ok {
			return "", Errorf(CategoryType, "must be real number, not %s", typeName(v))
		}

		fs.typ = verb

		return fs.formatFloat(n.float())
	}

	return "", Errorf(CategoryValue, "unsupported format character '%c'", verb)
}
