package engine

import (
	"context"
	"math"
	"strings"
	"time"
)

// Func is the signature of every native callable: builtins, module
// functions and extension exports. Returned Go values are converted with
// [FromGo]; a returned error is raised in the calling script.
type Func func(ctx context.Context, args Args) (any, error)

// Exports maps exported names to native callables.
type Exports map[string]Func

// Args holds the arguments of a native call.
type Args struct {
	Positional []any
	Keywords   map[string]any

	th *thread
}

// Len returns the number of positional arguments.
func (a Args) Len() int { return len(a.Positional) }

// Keyword returns the keyword argument name.
func (a Args) Keyword(name string) (any, bool) {
	v, ok := a.Keywords[name]

	return v, ok
}

// Call invokes a script callable from native code on the calling
// goroutine. Outside a script call (e.g. from a host goroutine) use
// [Engine.Call] instead.
func (a Args) Call(fn any, args ...any) (any, error) {
	if a.th == nil {
		return nil, NewError(CategoryRuntime, "no active script to call into")
	}

	conv := make([]any, len(args))
	for i, v := range args {
		conv[i] = FromGo(v)
	}

	v, err := a.th.call(fn, conv, nil)
	if err != nil {
		return nil, err
	}

	return v, nil
}

// Unpack assigns arguments to the pointers in specs, which alternate
// parameter name and destination pointer. Positional arguments fill
// parameters in order, keywords by name. A name with a trailing "?" is
// optional and leaves its destination untouched when absent.
//
// Supported destinations are *any, *string, *int64, *int, *float64, *bool,
// *[]any, *time.Duration (seconds), **List, **Dict and **Tuple.
func (a Args) Unpack(fname string, specs ...any) error {
	if len(specs)%2 != 0 {
		panic("engine: Unpack requires name, pointer pairs")
	}

	n := len(specs) / 2
	if len(a.Positional) > n {
		return Errorf(CategoryType, "%s() takes at most %d argument%s (%d given)",
			fname, n, plural(n), len(a.Positional))
	}

	set := make([]bool, n)
	names := make([]string, n)

	for i := range n {
		name, _ := specs[2*i].(string)
		names[i] = name
	}

	for i, v := range a.Positional {
		if err := unpackOne(fname, strings.TrimSuffix(names[i], "?"), specs[2*i+1], v); err != nil {
			return err
		}

		set[i] = true
	}

	for kw, v := range a.Keywords {
		i := -1

		for j, name := range names {
			if strings.TrimSuffix(name, "?") == kw {
				i = j

				break
			}
		}

		if i < 0 {
			return Errorf(CategoryType, "%s() got an unexpected keyword argument '%s'", fname, kw)
		}

		if set[i] {
			return Errorf(CategoryType, "%s() got multiple values for argument '%s'", fname, kw)
		}

		if err := unpackOne(fname, kw, specs[2*i+1], v); err != nil {
			return err
		}

		set[i] = true
	}

	for i, name := range names {
		if !set[i] && !strings.HasSuffix(name, "?") {
			return Errorf(CategoryType, "%s() missing required argument '%s'", fname, name)
		}
	}

	return nil
}

func unpackOne(fname, name string, dst, v any) error {
	mismatch := func(want string) error {
		return Errorf(CategoryType, "%s() argument '%s' must be %s, not %s",
			fname, name, want, typeName(v))
	}

	switch p := dst.(type) {
	case *any:
		*p = v
	case *string:
		s, ok := v.(string)
		if !ok {
			return mismatch("str")
		}

		*p = s
	case *int64:
		i, ok := asInt(v)
		if !ok {
			return mismatch("int")
		}

		*p = i
	case *int:
		i, ok := asInt(v)
		if !ok || i > math.MaxInt32 || i < math.MinInt32 {
			return mismatch("int")
		}

		*p = int(i)
	case *float64:
		n, ok := toNumber(v)
		if !ok {
			return mismatch("float")
		}

		*p = n.float()
	case *bool:
		*p = truthy(v)
	case *[]any:
		items, err := elements(v)
		if err != nil {
			return mismatch("iterable")
		}

		*p = items
	case *time.Duration:
		n, ok := toNumber(v)
		if !ok {
			return mismatch("number of seconds")
		}

		*p = time.Duration(n.float() * float64(time.Second))
	case **List:
		l, ok := v.(*List)
		if !ok {
			return mismatch("list")
		}

		*p = l
	case **Dict:
		d, ok := v.(*Dict)
		if !ok {
			return mismatch("dict")
		}

		*p = d
	case **Tuple:
		t, ok := v.(*Tuple)
		if !ok {
			return mismatch("tuple")
		}

		*p = t
	default:
		panic("engine: unsupported Unpack destination for " + name)
	}

	return nil
}

// asInt accepts int and bool.
func asInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	}

	return 0, false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}

	return "s"
}
