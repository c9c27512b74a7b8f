package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ardnew/cask/lang"
)

// exceptionClasses are the categories scripts can name, raise and catch.
var exceptionClasses = []Category{
	CategoryException,
	CategoryLookup,
	CategoryArithmetic,
	CategorySyntax,
	CategoryName,
	CategoryCollision,
	CategoryType,
	CategoryValue,
	CategoryIndex,
	CategoryKey,
	CategoryZeroDivision,
	CategoryAttribute,
	CategoryAssertion,
	CategoryRecursion,
	CategoryRuntime,
	CategoryTimeout,
	CategoryExtensionLoad,
	CategoryExtensionCollision,
	CategoryBusy,
}

// builtins returns the core bindings owned by the permanent builtins
// module.
func (e *Engine) builtins() map[string]any {
	fns := map[string]Func{
		"print":      e.print,
		"len":        builtinLen,
		"range":      builtinRange,
		"str":        builtinStr,
		"repr":       builtinRepr,
		"int":        builtinInt,
		"float":      builtinFloat,
		"bool":       builtinBool,
		"list":       builtinList,
		"tuple":      builtinTuple,
		"dict":       builtinDict,
		"set":        builtinSet,
		"abs":        builtinAbs,
		"min":        extremum("min", false),
		"max":        extremum("max", true),
		"sum":        builtinSum,
		"sorted":     builtinSorted,
		"reversed":   builtinReversed,
		"enumerate":  builtinEnumerate,
		"zip":        builtinZip,
		"any":        quantifier("any", true),
		"all":        quantifier("all", false),
		"round":      builtinRound,
		"type":       e.builtinType,
		"isinstance": e.builtinIsInstance,
		"hex":        radix("hex", 'x'),
		"oct":        radix("oct", 'o'),
		"bin":        radix("bin", 'b'),
		"chr":        builtinChr,
		"ord":        builtinOrd,
		"divmod":     builtinDivmod,
		"pow":        builtinPow,
		"map":        builtinMap,
		"filter":     builtinFilter,
		"callable":   builtinCallable,
		"format":     builtinFormat,
	}

	out := make(map[string]any, len(fns)+len(exceptionClasses))
	e.types = map[string]*Builtin{}

	for name, fn := range fns {
		b := &Builtin{Name: name, Fn: fn}
		out[name] = b

		switch name {
		case "int", "float", "str", "bool", "list", "tuple", "dict", "set", "range":
			e.types[name] = b
		}
	}

	for _, c := range exceptionClasses {
		out[string(c)] = &ExceptionClass{Category: c}
	}

	return out
}

// flusher is implemented by buffered writers.
type flusher interface{ Flush() error }

// syncer is implemented by files.
type syncer interface{ Sync() error }

func (e *Engine) print(_ context.Context, a Args) (any, error) {
	var (
		sep    any = " "
		end    any = "\n"
		prefix any = "--> "
		stderr bool
		flush  = true
	)

	for name, v := range a.Keywords {
		switch name {
		case "sep":
			sep = v
		case "end":
			end = v
		case "prefix":
			prefix = v
		case "stderr":
			stderr = truthy(v)
		case "flush":
			flush = truthy(v)
		default:
			return nil, Errorf(CategoryType, "print() got an unexpected keyword argument '%s'", name)
		}
	}

	text := func(name string, v any, def string) (string, error) {
		switch v := v.(type) {
		case nil:
			return def, nil
		case string:
			return v, nil
		default:
			return "", Errorf(CategoryType, "%s must be None or a string, not %s", name, typeName(v))
		}
	}

	sepS, err := text("sep", sep, " ")
	if err != nil {
		return nil, err
	}

	endS, err := text("end", end, "\n")
	if err != nil {
		return nil, err
	}

	prefixS, err := text("prefix", prefix, "")
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString(prefixS)

	for i, v := range a.Positional {
		if i > 0 {
			b.WriteString(sepS)
		}

		b.WriteString(str(v))
	}

	b.WriteString(endS)

	var w io.Writer = e.cfg.out
	if stderr {
		w = e.cfg.errOut
	}

	e.outMu.Lock()
	defer e.outMu.Unlock()

	if _, err := io.WriteString(w, b.String()); err != nil {
		return nil, ErrRuntime.Wrap(err)
	}

	if flush {
		switch f := w.(type) {
		case flusher:
			_ = f.Flush()
		case syncer:
			_ = f.Sync()
		}
	}

	return nil, nil
}

func one(name string, a Args) (any, error) {
	var v any
	if err := a.Unpack(name, "obj", &v); err != nil {
		return nil, err
	}

	return v, nil
}

func builtinLen(_ context.Context, a Args) (any, error) {
	v, err := one("len", a)
	if err != nil {
		return nil, err
	}

	return length(v)
}

func builtinRange(_ context.Context, a Args) (any, error) {
	if len(a.Keywords) > 0 {
		return nil, NewError(CategoryType, "range() takes no keyword arguments")
	}

	bounds := make([]int64, len(a.Positional))

	for i, v := range a.Positional {
		n, ok := asInt(v)
		if !ok {
			return nil, Errorf(CategoryType, "'%s' object cannot be interpreted as an integer", typeName(v))
		}

		bounds[i] = n
	}

	switch len(bounds) {
	case 1:
		return &Range{Stop: bounds[0], Step: 1}, nil
	case 2:
		return &Range{Start: bounds[0], Stop: bounds[1], Step: 1}, nil
	case 3:
		if bounds[2] == 0 {
			return nil, NewError(CategoryValue, "range() arg 3 must not be zero")
		}

		return &Range{Start: bounds[0], Stop: bounds[1], Step: bounds[2]}, nil
	}

	return nil, Errorf(CategoryType, "range expected 1 to 3 arguments, got %d", len(bounds))
}

func builtinStr(_ context.Context, a Args) (any, error) {
	var v any = ""
	if err := a.Unpack("str", "object?", &v); err != nil {
		return nil, err
	}

	return str(v), nil
}

func builtinRepr(_ context.Context, a Args) (any, error) {
	v, err := one("repr", a)
	if err != nil {
		return nil, err
	}

	return repr(v), nil
}

func builtinInt(_ context.Context, a Args) (any, error) {
	var (
		v    any = int64(0)
		base any
	)

	if err := a.Unpack("int", "x?", &v, "base?", &base); err != nil {
		return nil, err
	}

	if base != nil {
		s, ok := v.(string)
		if !ok {
			return nil, NewError(CategoryType, "int() can't convert non-string with explicit base")
		}

		b, ok := asInt(base)
		if !ok || b == 1 || b < 0 || b > 36 {
			return nil, NewError(CategoryValue, "int() base must be >= 2 and <= 36, or 0")
		}

		return parseInt(s, int(b))
	}

	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		n, _ := asInt(x)

		return n, nil
	case float64:
		return floatToInt(x)
	case string:
		return parseInt(x, 10)
	}

	return nil, Errorf(CategoryType, "int() argument must be a string or a number, not '%s'", typeName(v))
}

// floatToInt truncates x toward zero.
func floatToInt(x float64) (any, error) {
	switch {
	case math.IsNaN(x):
		return nil, NewError(CategoryValue, "cannot convert float NaN to integer")
	case math.IsInf(x, 0):
		return nil, NewError(CategoryArithmetic, "cannot convert float infinity to integer")
	case x >= 9.223372036854775807e18 || x < -9.223372036854775808e18:
		return nil, errOverflow
	}

	return int64(x), nil
}

func parseInt(s string, base int) (any, error) {
	t := strings.ReplaceAll(strings.TrimSpace(s), "_", "")

	neg := false
	if t != "" && (t[0] == '-' || t[0] == '+') {
		neg = t[0] == '-'
		t = t[1:]
	}

	lower := strings.ToLower(t)
	for _, p := range []struct {
		prefix string
		base   int
	}{{"0x", 16}, {"0o", 8}, {"0b", 2}} {
		if strings.HasPrefix(lower, p.prefix) && (base == 0 || base == p.base) {
			t, base = t[2:], p.base
		}
	}

	if base == 0 {
		base = 10
	}

	u, err := strconv.ParseUint(t, base, 64)
	if err != nil || t == "" {
		var ne *strconv.NumError
		if err != nil && errors.As(err, &ne) && ne.Err == strconv.ErrRange {
			return nil, errOverflow
		}

		return nil, Errorf(CategoryValue, "invalid literal for int() with base %d: %s", base, quote(s))
	}

	switch {
	case neg && u <= 1<<63:
		return -int64(u), nil
	case !neg && u < 1<<63:
		return int64(u), nil
	}

	return nil, errOverflow
}

func builtinFloat(_ context.Context, a Args) (any, error) {
	var v any = 0.0
	if err := a.Unpack("float", "x?", &v); err != nil {
		return nil, err
	}

	if s, ok := v.(string); ok {
		t := strings.ToLower(strings.TrimSpace(s))

		switch strings.TrimLeft(t, "+-") {
		case "inf", "infinity", "nan":
			f, _ := strconv.ParseFloat(t, 64)

			return f, nil
		}

		f, err := strconv.ParseFloat(strings.ReplaceAll(t, "_", ""), 64)
		if err != nil && !strings.Contains(err.Error(), "range") {
			return nil, Errorf(CategoryValue, "could not convert string to float: %s", quote(s))
		}

		return f, nil
	}

	n, ok := toNumber(v)
	if !ok {
		return nil, Errorf(CategoryType, "float() argument must be a string or a number, not '%s'", typeName(v))
	}

	return n.float(), nil
}

func builtinBool(_ context.Context, a Args) (any, error) {
	var v any = false
	if err := a.Unpack("bool", "x?", &v); err != nil {
		return nil, err
	}

	return truthy(v), nil
}

func builtinList(_ context.Context, a Args) (any, error) {
	var items []any
	if err := a.Unpack("list", "iterable?", &items); err != nil {
		return nil, err
	}

	return NewList(items...), nil
}

func builtinTuple(_ context.Context, a Args) (any, error) {
	var items []any
	if err := a.Unpack("tuple", "iterable?", &items); err != nil {
		return nil, err
	}

	return NewTuple(items...), nil
}

func builtinSet(_ context.Context, a Args) (any, error) {
	var items []any
	if err := a.Unpack("set", "iterable?", &items); err != nil {
		return nil, err
	}

	return NewSet(items...)
}

func builtinDict(_ context.Context, a Args) (any, error) {
	if len(a.Positional) > 1 {
		return nil, Errorf(CategoryType, "dict expected at most 1 argument, got %d", len(a.Positional))
	}

	d := NewDict()

	if len(a.Positional) == 1 {
		if err := mergeInto(d, a.Positional[0]); err != nil {
			return nil, err
		}
	}

	for k, v := range a.Keywords {
		if err := d.Set(k, v); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func builtinAbs(_ context.Context, a Args) (any, error) {
	v, err := one("abs", a)
	if err != nil {
		return nil, err
	}

	n, ok := toNumber(v)
	if !ok {
		return nil, Errorf(CategoryType, "bad operand type for abs(): '%s'", typeName(v))
	}

	if n.isFloat {
		return math.Abs(n.f), nil
	}

	if n.i == math.MinInt64 {
		return nil, errOverflow
	}

	return abs64(n.i), nil
}

// extremum implements min and max.
func extremum(name string, greatest bool) Func {
	return func(_ context.Context, a Args) (any, error) {
		var key, def any

		_, hasDefault := a.Keyword("default")

		for k, v := range a.Keywords {
			switch k {
			case "key":
				key = v
			case "default":
				def = v
			default:
				return nil, Errorf(CategoryType, "%s() got an unexpected keyword argument '%s'", name, k)
			}
		}

		items := a.Positional

		switch len(items) {
		case 0:
			return nil, Errorf(CategoryType, "%s expected at least 1 argument, got 0", name)
		case 1:
			var err error
			if items, err = elements(items[0]); err != nil {
				return nil, err
			}
		default:
			if hasDefault {
				return nil, Errorf(CategoryType,
					"Cannot specify a default for %s() with multiple positional arguments", name)
			}
		}

		if len(items) == 0 {
			if hasDefault {
				return def, nil
			}

			return nil, Errorf(CategoryValue, "%s() arg is an empty sequence", name)
		}

		keyOf := func(v any) (any, error) {
			if key == nil {
				return v, nil
			}

			return a.th.call(key, []any{v}, nil)
		}

		best := items[0]

		bestKey, err := keyOf(best)
		if err != nil {
			return nil, err
		}

		for _, it := range items[1:] {
			k, err := keyOf(it)
			if err != nil {
				return nil, err
			}

			x, y := bestKey, k
			if !greatest {
				x, y = k, bestKey
			}

			better, err := less(x, y)
			if err != nil {
				return nil, err
			}

			if better {
				best, bestKey = it, k
			}
		}

		return best, nil
	}
}

func builtinSum(_ context.Context, a Args) (any, error) {
	var (
		items []any
		acc   any = int64(0)
	)

	if err := a.Unpack("sum", "iterable", &items, "start?", &acc); err != nil {
		return nil, err
	}

	if _, ok := acc.(string); ok {
		return nil, NewError(CategoryType, "sum() can't sum strings, use ''.join(seq) instead")
	}

	for _, it := range items {
		var err error
		if acc, err = binaryOp(lang.OpAdd, acc, it); err != nil {
			return nil, err
		}
	}

	return acc, nil
}

func builtinSorted(_ context.Context, a Args) (any, error) {
	var (
		items   []any
		key     any
		reverse bool
	)

	if len(a.Positional) > 1 {
		return nil, NewError(CategoryType, "sorted expected 1 positional argument")
	}

	if err := a.Unpack("sorted", "iterable", &items, "key?", &key, "reverse?", &reverse); err != nil {
		return nil, err
	}

	if err := sortWithKey(a, items, key, reverse); err != nil {
		return nil, err
	}

	return NewList(items...), nil
}

func builtinReversed(_ context.Context, a Args) (any, error) {
	v, err := one("reversed", a)
	if err != nil {
		return nil, err
	}

	if _, ok := v.(*Set); ok {
		return nil, NewError(CategoryType, "'set' object is not reversible")
	}

	items, err := elements(v)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}

	return NewList(out...), nil
}

func builtinEnumerate(_ context.Context, a Args) (any, error) {
	var (
		items []any
		start int64
	)

	if err := a.Unpack("enumerate", "iterable", &items, "start?", &start); err != nil {
		return nil, err
	}

	out := make([]any, len(items))
	for i, it := range items {
		out[i] = NewTuple(start+int64(i), it)
	}

	return NewList(out...), nil
}

func builtinZip(_ context.Context, a Args) (any, error) {
	if len(a.Keywords) > 0 {
		return nil, NewError(CategoryType, "zip() takes no keyword arguments")
	}

	seqs := make([][]any, len(a.Positional))
	n := -1

	for i, v := range a.Positional {
		items, err := elements(v)
		if err != nil {
			return nil, Errorf(CategoryType, "zip argument #%d must support iteration", i+1)
		}

		seqs[i] = items
		if n < 0 || len(items) < n {
			n = len(items)
		}
	}

	out := make([]any, max(n, 0))

	for i := range out {
		row := make([]any, len(seqs))
		for j, s := range seqs {
			row[j] = s[i]
		}

		out[i] = NewTuple(row...)
	}

	return NewList(out...), nil
}

// quantifier implements any and all.
func quantifier(name string, want bool) Func {
	return func(_ context.Context, a Args) (any, error) {
		var items []any
		if err := a.Unpack(name, "iterable", &items); err != nil {
			return nil, err
		}

		for _, it := range items {
			if truthy(it) == want {
				return want, nil
			}
		}

		return !want, nil
	}
}

func builtinRound(_ context.Context, a Args) (any, error) {
	var x, nd any
	if err := a.Unpack("round", "number", &x, "ndigits?", &nd); err != nil {
		return nil, err
	}

	n, ok := toNumber(x)
	if !ok {
		return nil, Errorf(CategoryType, "type %s doesn't define __round__ method", typeName(x))
	}

	if nd == nil {
		if !n.isFloat {
			return n.i, nil
		}

		return floatToInt(math.RoundToEven(n.f))
	}

	digits, ok := asInt(nd)
	if !ok {
		return nil, Errorf(CategoryType, "'%s' object cannot be interpreted as an integer", typeName(nd))
	}

	if !n.isFloat {
		if digits >= 0 {
			return n.i, nil
		}

		p := math.Pow10(int(-digits))
		if math.IsInf(p, 0) {
			return int64(0), nil
		}

		return int64(math.RoundToEven(float64(n.i)/p) * p), nil
	}

	if digits > 308 {
		return n.f, nil
	}

	if digits < -308 {
		return 0.0, nil
	}

	p := math.Pow10(int(digits))

	r := math.RoundToEven(n.f*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return n.f, nil
	}

	return r, nil
}

func (e *Engine) builtinType(_ context.Context, a Args) (any, error) {
	v, err := one("type", a)
	if err != nil {
		return nil, err
	}

	if exc, ok := v.(*Error); ok {
		return &ExceptionClass{Category: exc.Category}, nil
	}

	if b, ok := e.types[typeName(v)]; ok {
		return b, nil
	}

	return typeName(v), nil
}

func (e *Engine) builtinIsInstance(_ context.Context, a Args) (any, error) {
	var v, cls any
	if err := a.Unpack("isinstance", "obj", &v, "class", &cls); err != nil {
		return nil, err
	}

	classes := []any{cls}
	if t, ok := cls.(*Tuple); ok {
		classes = t.Items
	}

	for _, c := range classes {
		switch c := c.(type) {
		case *ExceptionClass:
			if exc, ok := v.(*Error); ok && exc.Category.IsA(c.Category) {
				return true, nil
			}
		case *Builtin:
			if e.types[c.Name] != c {
				return nil, NewError(CategoryType, "isinstance() arg 2 must be a type or tuple of types")
			}

			name := typeName(v)
			if name == c.Name || (name == "bool" && c.Name == "int") {
				return true, nil
			}
		default:
			return nil, NewError(CategoryType, "isinstance() arg 2 must be a type or tuple of types")
		}
	}

	return false, nil
}

func radix(name string, verb byte) Func {
	return func(_ context.Context, a Args) (any, error) {
		v, err := one(name, a)
		if err != nil {
			return nil, err
		}

		n, ok := asInt(v)
		if !ok {
			return nil, Errorf(CategoryType, "'%s' object cannot be interpreted as an integer", typeName(v))
		}

		out, err := fmtSpec{fill: ' ', prec: -1, alt: true, typ: verb}.formatInt(n)
		if err != nil {
			return nil, err
		}

		return out, nil
	}
}

func builtinChr(_ context.Context, a Args) (any, error) {
	var i int64
	if err := a.Unpack("chr", "i", &i); err != nil {
		return nil, err
	}

	if i < 0 || i > utf8.MaxRune {
		return nil, NewError(CategoryValue, "chr() arg not in range(0x110000)")
	}

	return string(rune(i)), nil
}

func builtinOrd(_ context.Context, a Args) (any, error) {
	var s string
	if err := a.Unpack("ord", "c", &s); err != nil {
		return nil, err
	}

	if utf8.RuneCountInString(s) != 1 {
		return nil, Errorf(CategoryType, "ord() expected a character, but string of length %d found",
			utf8.RuneCountInString(s))
	}

	r, _ := utf8.DecodeRuneInString(s)

	return int64(r), nil
}

func builtinDivmod(_ context.Context, a Args) (any, error) {
	var x, y any
	if err := a.Unpack("divmod", "a", &x, "b", &y); err != nil {
		return nil, err
	}

	q, err := binaryOp(lang.OpFloorDiv, x, y)
	if err != nil {
		return nil, err
	}

	r, err := binaryOp(lang.OpMod, x, y)
	if err != nil {
		return nil, err
	}

	return NewTuple(q, r), nil
}

func builtinPow(_ context.Context, a Args) (any, error) {
	var x, y, mod any
	if err := a.Unpack("pow", "base", &x, "exp", &y, "mod?", &mod); err != nil {
		return nil, err
	}

	if mod == nil {
		return binaryOp(lang.OpPow, x, y)
	}

	b, ok1 := asInt(x)
	ex, ok2 := asInt(y)
	m, ok3 := asInt(mod)

	switch {
	case !ok1 || !ok2 || !ok3:
		return nil, NewError(CategoryType, "pow() 3rd argument not allowed unless all arguments are integers")
	case m == 0:
		return nil, NewError(CategoryValue, "pow() 3rd argument cannot be 0")
	case ex < 0:
		return nil, NewError(CategoryValue, "pow() 2nd argument cannot be negative when 3rd argument specified")
	}

	return modPow(b, ex, m), nil
}

// modPow computes base**exp mod m; a nonzero result takes the sign of m.
func modPow(base, exp, m int64) int64 {
	mu := uint64(abs64(m))

	mulmod := func(a, b uint64) uint64 {
		var r uint64

		a %= mu
		for b > 0 {
			if b&1 == 1 {
				r = (r + a) % mu
			}

			a = (a << 1) % mu
			b >>= 1
		}

		return r
	}

	var bu uint64
	if base >= 0 {
		bu = uint64(base) % mu
	} else {
		bu = (mu - (uint64(-(base+1))+1)%mu) % mu
	}
	r := uint64(1) % mu

	for exp > 0 {
		if exp&1 == 1 {
			r = mulmod(r, bu)
		}

		bu = mulmod(bu, bu)
		exp >>= 1
	}

	out := int64(r)
	if m < 0 && out != 0 {
		out += m
	}

	return out
}

func builtinMap(_ context.Context, a Args) (any, error) {
	if len(a.Positional) < 2 {
		return nil, NewError(CategoryType, "map() must have at least two arguments")
	}

	fn := a.Positional[0]

	zipped, err := builtinZip(context.Background(), Args{Positional: a.Positional[1:]})
	if err != nil {
		return nil, err
	}

	rows := zipped.(*List).Items
	out := make([]any, len(rows))

	for i, row := range rows {
		v, err := a.th.call(fn, row.(*Tuple).Items, nil)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return NewList(out...), nil
}

func builtinFilter(_ context.Context, a Args) (any, error) {
	var (
		fn    any
		items []any
	)

	if err := a.Unpack("filter", "function", &fn, "iterable", &items); err != nil {
		return nil, err
	}

	var out []any

	for _, it := range items {
		keep := it

		if fn != nil {
			v, err := a.th.call(fn, []any{it}, nil)
			if err != nil {
				return nil, err
			}

			keep = v
		}

		if truthy(keep) {
			out = append(out, it)
		}
	}

	return NewList(out...), nil
}

func builtinCallable(_ context.Context, a Args) (any, error) {
	v, err := one("callable", a)
	if err != nil {
		return nil, err
	}

	return callable(v), nil
}

func builtinFormat(_ context.Context, a Args) (any, error) {
	var (
		v    any
		spec string
	)

	if err := a.Unpack("format", "value", &v, "format_spec?", &spec); err != nil {
		return nil, err
	}

	out, err := formatValue(v, spec)
	if err != nil {
		return nil, err
	}

	return out, nil
}
