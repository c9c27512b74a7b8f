package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ardnew/cask/lang"
)

// kwarg is one keyword argument, kept in call order.
type kwarg struct {
	name  string
	value any
}

func (f *frame) evalCall(x *lang.Call) (any, error) {
	fn, err := f.eval(x.Func)
	if err != nil {
		return nil, err
	}

	args, err := f.evalItems(x.Args)
	if err != nil {
		return nil, err
	}

	var kws []kwarg

	seen := map[string]bool{}
	add := func(name string, v any) error {
		if seen[name] {
			return Errorf(CategoryType, "%s() got multiple values for keyword argument '%s'",
				callableName(fn), name)
		}

		seen[name] = true
		kws = append(kws, kwarg{name: name, value: v})

		return nil
	}

	for _, k := range x.Keywords {
		v, err := f.eval(k.Value)
		if err != nil {
			return nil, err
		}

		if k.Name != "" {
			if err := add(k.Name, v); err != nil {
				return nil, err
			}

			continue
		}

		d, ok := v.(*Dict)
		if !ok {
			return nil, Errorf(CategoryType, "argument after ** must be a dict, not %s", typeName(v))
		}

		for _, e := range d.snapshot() {
			name, ok := e.key.(string)
			if !ok {
				return nil, NewError(CategoryType, "keywords must be strings")
			}

			if err := add(name, e.value); err != nil {
				return nil, err
			}
		}
	}

	return f.th.call(fn, args, kws)
}

func callableName(fn any) string {
	switch fn := fn.(type) {
	case *Procedure:
		return fn.Name
	case *Builtin:
		return fn.Name
	case *BoundMethod:
		return fn.Name
	case *ExceptionClass:
		return string(fn.Category)
	default:
		return typeName(fn)
	}
}

func callable(v any) bool {
	switch v.(type) {
	case *Procedure, *Builtin, *BoundMethod, *ExceptionClass:
		return true
	}

	return false
}

// call invokes any script callable.
func (th *thread) call(fn any, args []any, kws []kwarg) (any, error) {
	switch fn := fn.(type) {
	case *Procedure:
		return th.callProcedure(fn, args, kws)

	case *Builtin:
		return th.callNative(fn.Name, fn.reg, fn.Fn, args, kws)

	case *BoundMethod:
		recv, m := fn.Recv, fn.fn

		return th.callNative(fn.Name, nil, func(ctx context.Context, a Args) (any, error) {
			return m(ctx, recv, a)
		}, args, kws)

	case *ExceptionClass:
		if len(kws) > 0 {
			return nil, Errorf(CategoryType, "%s() takes no keyword arguments", fn.Category)
		}

		return &Error{Category: fn.Category, args: args}, nil

	default:
		return nil, Errorf(CategoryType, "'%s' object is not callable", typeName(fn))
	}
}

// callNative runs a native function on the calling goroutine, recovering
// panics and holding the extension's in-flight count for its duration.
func (th *thread) callNative(
	name string,
	reg *registration,
	fn Func,
	args []any,
	kws []kwarg,
) (v any, err error) {
	if reg != nil {
		if err := reg.enter(); err != nil {
			return nil, err
		}
		defer reg.leave()
	}

	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = Errorf(CategoryRuntime, "%s: native panic: %v", name, r)
		}
	}()

	a := Args{Positional: args, th: th}

	if len(kws) > 0 {
		a.Keywords = make(map[string]any, len(kws))
		for _, kw := range kws {
			a.Keywords[kw.name] = kw.value
		}
	}

	v, err = fn(th.ctx, a)
	if err != nil {
		return nil, err
	}

	return FromGo(v), nil
}

// callProcedure binds arguments into a fresh scope chained to the
// procedure's defining scope and executes its body.
func (th *thread) callProcedure(p *Procedure, args []any, kws []kwarg) (any, error) {
	if th.depth >= th.eng.cfg.maxDepth {
		return nil, Errorf(CategoryRecursion, "maximum recursion depth exceeded in %s()", p.Name)
	}

	th.depth++
	defer func() { th.depth-- }()

	scope, err := p.bindArgs(args, kws)
	if err != nil {
		return nil, err
	}

	fr := &frame{th: th, script: p.script, locals: scope}

	switch c := fr.execBlock(p.def.Body); c.kind {
	case ctrlReturn:
		return c.value, nil
	case ctrlRaise:
		return nil, c.err
	case ctrlTerminate:
		return nil, &halt{c.err}
	default:
		return nil, nil
	}
}

func (p *Procedure) bindArgs(args []any, kws []kwarg) (*Scope, error) {
	def := p.def
	scope := newScope(p.closure)
	bound := map[string]bool{}

	n := len(def.Params)
	for i, param := range def.Params {
		if i >= len(args) {
			break
		}

		scope.vars[param.Name] = args[i]
		bound[param.Name] = true
	}

	if len(args) > n {
		if def.VarArg == "" {
			return nil, Errorf(CategoryType, "%s() takes %d positional argument%s but %d were given",
				p.Name, n, plural(n), len(args))
		}

		scope.vars[def.VarArg] = NewTuple(append([]any(nil), args[n:]...)...)
	} else if def.VarArg != "" {
		scope.vars[def.VarArg] = NewTuple()
	}

	var extra *Dict
	if def.KwArg != "" {
		extra = NewDict()
		scope.vars[def.KwArg] = extra
	}

	for _, kw := range kws {
		if p.hasParam(kw.name) {
			if bound[kw.name] {
				return nil, Errorf(CategoryType, "%s() got multiple values for argument '%s'", p.Name, kw.name)
			}

			scope.vars[kw.name] = kw.value
			bound[kw.name] = true

			continue
		}

		if extra == nil {
			return nil, Errorf(CategoryType, "%s() got an unexpected keyword argument '%s'", p.Name, kw.name)
		}

		if err := extra.Set(kw.name, kw.value); err != nil {
			return nil, err
		}
	}

	var missing []string

	for i, param := range def.Params {
		if bound[param.Name] {
			continue
		}

		if param.Default == nil {
			missing = append(missing, "'"+param.Name+"'")

			continue
		}

		scope.vars[param.Name] = p.defaults[i]
	}

	if len(missing) > 0 {
		return nil, Errorf(CategoryType, "%s() missing %d required positional argument%s: %s",
			p.Name, len(missing), plural(len(missing)), strings.Join(missing, ", "))
	}

	for _, param := range def.KwOnly {
		if bound[param.Name] {
			continue
		}

		v, ok := p.kwonly[param.Name]
		if !ok {
			missing = append(missing, "'"+param.Name+"'")

			continue
		}

		scope.vars[param.Name] = v
	}

	if len(missing) > 0 {
		return nil, Errorf(CategoryType, "%s() missing %d required keyword-only argument%s: %s",
			p.Name, len(missing), plural(len(missing)), strings.Join(missing, ", "))
	}

	return scope, nil
}

func (p *Procedure) hasParam(name string) bool {
	for _, param := range p.def.Params {
		if param.Name == name {
			return true
		}
	}

	for _, param := range p.def.KwOnly {
		if param.Name == name {
			return true
		}
	}

	return false
}

// Signature renders the procedure's name and parameter list, including
// default values.
func (p *Procedure) Signature() string {
	def := p.def
	parts := make([]string, 0, len(def.Params)+len(def.KwOnly)+2)

	for i, param := range def.Params {
		if param.Default != nil {
			parts = append(parts, fmt.Sprintf("%s=%s", param.Name, repr(p.defaults[i])))
		} else {
			parts = append(parts, param.Name)
		}
	}

	switch {
	case def.VarArg != "":
		parts = append(parts, "*"+def.VarArg)
	case len(def.KwOnly) > 0:
		parts = append(parts, "*")
	}

	for _, param := range def.KwOnly {
		if v, ok := p.kwonly[param.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", param.Name, repr(v)))
		} else {
			parts = append(parts, param.Name)
		}
	}

	if def.KwArg != "" {
		parts = append(parts, "**"+def.KwArg)
	}

	return p.Name + "(" + strings.Join(parts, ", ") + ")"
}
