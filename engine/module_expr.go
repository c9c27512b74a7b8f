package engine

import (
	"context"
	"log/slog"

	"github.com/expr-lang/expr"
)

// The expr module evaluates expr-lang expressions. Script values in env are
// converted with [ToGo], and results with [FromGo].
func exprModule() map[string]any {
	return map[string]any{
		"eval":  Func(exprEval),
		"check": Func(exprCheck),
	}
}

func exprEnv(name string, env any) (map[string]any, error) {
	if env == nil {
		return map[string]any{}, nil
	}

	d, ok := env.(*Dict)
	if !ok {
		return nil, Errorf(CategoryType, "%s() argument 'env' must be dict, not %s", name, typeName(env))
	}

	return ToGo(d).(map[string]any), nil
}

func exprEval(_ context.Context, a Args) (any, error) {
	var (
		source string
		env    any
	)

	if err := a.Unpack("eval", "expression", &source, "env?", &env); err != nil {
		return nil, err
	}

	vars, err := exprEnv("eval", env)
	if err != nil {
		return nil, err
	}

	program, err := expr.Compile(source, expr.Env(vars))
	if err != nil {
		return nil, ErrValue.Wrap(err).With(slog.String("source", source))
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, ErrRuntime.Wrap(err).With(slog.String("source", source))
	}

	return FromGo(out), nil
}

// exprCheck compiles expression against env, returning "OK" or the
// compile error text.
func exprCheck(_ context.Context, a Args) (any, error) {
	var (
		source string
		env    any
	)

	if err := a.Unpack("check", "expression", &source, "env?", &env); err != nil {
		return nil, err
	}

	vars, err := exprEnv("check", env)
	if err != nil {
		return nil, err
	}

	if _, err := expr.Compile(source, expr.Env(vars)); err != nil {
		return err.Error(), nil
	}

	return "OK", nil
}
