package engine

import (
	"context"
	"math"
)

func mathModule() map[string]any {
	return map[string]any{
		"pi":  math.Pi,
		"e":   math.E,
		"tau": 2 * math.Pi,
		"inf": math.Inf(1),
		"nan": math.NaN(),

		"sqrt":    mathUnary("sqrt", checked(math.Sqrt, func(x float64) bool { return x >= 0 })),
		"exp":     mathUnary("exp", math.Exp),
		"log10":   mathUnary("log10", checked(math.Log10, positive)),
		"log2":    mathUnary("log2", checked(math.Log2, positive)),
		"sin":     mathUnary("sin", math.Sin),
		"cos":     mathUnary("cos", math.Cos),
		"tan":     mathUnary("tan", math.Tan),
		"asin":    mathUnary("asin", checked(math.Asin, unit)),
		"acos":    mathUnary("acos", checked(math.Acos, unit)),
		"atan":    mathUnary("atan", math.Atan),
		"sinh":    mathUnary("sinh", math.Sinh),
		"cosh":    mathUnary("cosh", math.Cosh),
		"tanh":    mathUnary("tanh", math.Tanh),
		"fabs":    mathUnary("fabs", math.Abs),
		"degrees": mathUnary("degrees", func(x float64) float64 { return x * 180 / math.Pi }),
		"radians": mathUnary("radians", func(x float64) float64 { return x * math.Pi / 180 }),
		"floor":   mathRound("floor", math.Floor),
		"ceil":    mathRound("ceil", math.Ceil),
		"trunc":   mathRound("trunc", math.Trunc),
		"isnan":   mathTest("isnan", math.IsNaN),
		"isinf":   mathTest("isinf", func(x float64) bool { return math.IsInf(x, 0) }),
		"isfinite": mathTest("isfinite", func(x float64) bool {
			return !math.IsInf(x, 0) && !math.IsNaN(x)
		}),
		"log":       Func(mathLog),
		"pow":       mathBinary("pow", math.Pow),
		"atan2":     mathBinary("atan2", math.Atan2),
		"hypot":     mathBinary("hypot", math.Hypot),
		"fmod":      mathBinary("fmod", math.Mod),
		"copysign":  mathBinary("copysign", math.Copysign),
		"gcd":       Func(mathGCD),
		"factorial": Func(mathFactorial),
		"isclose":   Func(mathIsClose),
	}
}

func positive(x float64) bool { return x > 0 }
func unit(x float64) bool     { return x >= -1 && x <= 1 }

// checked raises a domain error for arguments outside fn's domain.
func checked(fn func(float64) float64, ok func(float64) bool) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		if !ok(x) && !math.IsNaN(x) {
			return 0, NewError(CategoryValue, "math domain error")
		}

		return fn(x), nil
	}
}

func mathUnary[F func(float64) float64 | func(float64) (float64, error)](name string, fn F) Func {
	return func(_ context.Context, a Args) (any, error) {
		var x float64
		if err := a.Unpack(name, "x", &x); err != nil {
			return nil, err
		}

		switch fn := any(fn).(type) {
		case func(float64) float64:
			return fn(x), nil
		case func(float64) (float64, error):
			return fn(x)
		}

		return nil, nil
	}
}

func mathBinary(name string, fn func(x, y float64) float64) Func {
	return func(_ context.Context, a Args) (any, error) {
		var x, y float64
		if err := a.Unpack(name, "x", &x, "y", &y); err != nil {
			return nil, err
		}

		r := fn(x, y)
		if math.IsNaN(r) && !math.IsNaN(x) && !math.IsNaN(y) {
			return nil, NewError(CategoryValue, "math domain error")
		}

		return r, nil
	}
}

func mathRound(name string, fn func(float64) float64) Func {
	return func(_ context.Context, a Args) (any, error) {
		var x any
		if err := a.Unpack(name, "x", &x); err != nil {
			return nil, err
		}

		n, ok := toNumber(x)
		if !ok {
			return nil, Errorf(CategoryType, "must be real number, not %s", typeName(x))
		}

		if !n.isFloat {
			return n.i, nil
		}

		return floatToInt(fn(n.f))
	}
}

func mathTest(name string, fn func(float64) bool) Func {
	return func(_ context.Context, a Args) (any, error) {
		var x float64
		if err := a.Unpack(name, "x", &x); err != nil {
			return nil, err
		}

		return fn(x), nil
	}
}

func mathLog(_ context.Context, a Args) (any, error) {
	var (
		x    float64
		base any
	)

	if err := a.Unpack("log", "x", &x, "base?", &base); err != nil {
		return nil, err
	}

	if x <= 0 {
		return nil, NewError(CategoryValue, "math domain error")
	}

	if base == nil {
		return math.Log(x), nil
	}

	b, ok := toNumber(base)
	if !ok {
		return nil, Errorf(CategoryType, "must be real number, not %s", typeName(base))
	}

	switch bf := b.float(); {
	case bf <= 0:
		return nil, NewError(CategoryValue, "math domain error")
	case bf == 1:
		return nil, NewError(CategoryZeroDivision, "float division by zero")
	case bf == 2:
		return math.Log2(x), nil
	default:
		return math.Log(x) / math.Log(bf), nil
	}
}

func mathGCD(_ context.Context, a Args) (any, error) {
	var g int64

	for i, v := range a.Positional {
		n, ok := asInt(v)
		if !ok {
			return nil, Errorf(CategoryType, "gcd() argument %d must be int, not %s", i+1, typeName(v))
		}

		g = gcd(g, abs64(n))
	}

	return g, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}

func mathFactorial(_ context.Context, a Args) (any, error) {
	var n int64
	if err := a.Unpack("factorial", "n", &n); err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, NewError(CategoryValue, "factorial() not defined for negative values")
	}

	r := int64(1)

	for i := int64(2); i <= n; i++ {
		if r > math.MaxInt64/i {
			return nil, errOverflow
		}

		r *= i
	}

	return r, nil
}

func mathIsClose(_ context.Context, a Args) (any, error) {
	var (
		x, y   float64
		relTol = 1e-9
		absTol = 0.0
	)

	if err := a.Unpack("isclose", "a", &x, "b", &y, "rel_tol?", &relTol, "abs_tol?", &absTol); err != nil {
		return nil, err
	}

	if relTol < 0 || absTol < 0 {
		return nil, NewError(CategoryValue, "tolerances must be non-negative")
	}

	if x == y {
		return true, nil
	}

	if math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false, nil
	}

	diff := math.Abs(x - y)

	return diff <= math.Abs(relTol*y) || diff <= math.Abs(relTol*x) || diff <= absTol, nil
}
