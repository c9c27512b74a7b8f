package engine

import (
	"context"
	"errors"

	"github.com/ardnew/cask/lang"
)

type ctrlKind uint8

const (
	ctrlNormal ctrlKind = iota
	ctrlReturn
	ctrlBreak
	ctrlContinue
	ctrlRaise
	ctrlTerminate
)

// control is the outcome of executing a statement.
type control struct {
	kind  ctrlKind
	value any
	err   *Error
}

var normal = control{}

// frame is one activation: the module body or a procedure call.
type frame struct {
	th     *thread
	script *lang.Script
	locals *Scope // nil at module level

	// handling is the exception of the innermost active except clause.
	handling *Error

	// last is the value of the most recent expression statement.
	last any
}

func (f *frame) execBlock(body []lang.Stmt) control {
	for _, s := range body {
		if c := f.exec(s); c.kind != ctrlNormal {
			return c
		}
	}

	return normal
}

// fail converts err into a raise or terminate control located at pos.
func (f *frame) fail(err error, pos lang.Position) control {
	if err == nil {
		return normal
	}

	var h *halt
	if errors.As(err, &h) {
		return control{kind: ctrlTerminate, err: h.err}
	}

	e := asError(err).located(f.script.Name, pos)
	if e.Category == CategoryTermination {
		return control{kind: ctrlTerminate, err: e}
	}

	return control{kind: ctrlRaise, err: e}
}

// checkpoint runs at every statement boundary.
func (f *frame) checkpoint(pos lang.Position) *Error {
	th := f.th
	th.steps++

	e := th.eng
	if e.stopped.Load() {
		return NewError(CategoryTermination, "stopped").located(f.script.Name, pos)
	}

	if err := th.ctx.Err(); err != nil {
		cause := context.Cause(th.ctx)

		var ee *Error
		if errors.As(cause, &ee) && ee.Category == CategoryTermination {
			return ee.located(f.script.Name, pos)
		}

		return ErrTerminated.Wrap(cause).located(f.script.Name, pos)
	}

	if e.cfg.checkpoint != nil {
		cp := Checkpoint{Script: f.script.Name, Pos: pos, Steps: th.steps}
		if err := e.cfg.checkpoint(th.ctx, cp); err != nil {
			return asError(err).located(f.script.Name, pos)
		}
	}

	return nil
}

func (f *frame) exec(s lang.Stmt) control {
	if err := f.checkpoint(s.Pos()); err != nil {
		return control{kind: ctrlTerminate, err: err}
	}

	switch s := s.(type) {
	case *lang.ExprStmt:
		v, err := f.eval(s.X)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		f.last = v

		return normal

	case *lang.Assign:
		v, err := f.eval(s.Value)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		for _, t := range s.Targets {
			if err := f.assign(t, v); err != nil {
				return f.fail(err, t.Pos())
			}
		}

		return normal

	case *lang.AugAssign:
		return f.fail(f.augAssign(s), s.Pos())

	case *lang.If:
		test, err := f.eval(s.Test)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		if truthy(test) {
			return f.execBlock(s.Body)
		}

		return f.execBlock(s.Else)

	case *lang.While:
		return f.execWhile(s)

	case *lang.For:
		return f.execFor(s)

	case *lang.FunctionDef:
		p, err := f.define(s)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		return f.fail(f.bind(s.Name, p), s.Pos())

	case *lang.Return:
		if s.Value == nil {
			return control{kind: ctrlReturn}
		}

		v, err := f.eval(s.Value)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		return control{kind: ctrlReturn, value: v}

	case *lang.Break:
		return control{kind: ctrlBreak}

	case *lang.Continue:
		return control{kind: ctrlContinue}

	case *lang.Pass:
		return normal

	case *lang.Try:
		return f.execTry(s)

	case *lang.Raise:
		return f.execRaise(s)

	case *lang.Delete:
		for _, t := range s.Targets {
			if err := f.delete(t); err != nil {
				return f.fail(err, t.Pos())
			}
		}

		return normal

	case *lang.Assert:
		test, err := f.eval(s.Test)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		if truthy(test) {
			return normal
		}

		exc := &Error{Category: CategoryAssertion}

		if s.Msg != nil {
			msg, err := f.eval(s.Msg)
			if err != nil {
				return f.fail(err, s.Pos())
			}

			exc.args = []any{msg}
		}

		return f.fail(exc, s.Pos())

	default:
		return f.fail(Errorf(CategorySyntax, "%s is not permitted", s.Kind()), s.Pos())
	}
}

func (f *frame) execWhile(s *lang.While) control {
	for {
		test, err := f.eval(s.Test)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		if !truthy(test) {
			break
		}

		switch c := f.execBlock(s.Body); c.kind {
		case ctrlBreak:
			return normal
		case ctrlNormal, ctrlContinue:
		default:
			return c
		}
	}

	return f.execBlock(s.Else)
}

func (f *frame) execFor(s *lang.For) control {
	seq, err := f.eval(s.Iter)
	if err != nil {
		return f.fail(err, s.Pos())
	}

	items, err := values(seq)
	if err != nil {
		return f.fail(err, s.Iter.Pos())
	}

	for v := range items {
		if err := f.assign(s.Target, v); err != nil {
			return f.fail(err, s.Target.Pos())
		}

		switch c := f.execBlock(s.Body); c.kind {
		case ctrlBreak:
			return normal
		case ctrlNormal, ctrlContinue:
		default:
			return c
		}
	}

	return f.execBlock(s.Else)
}

func (f *frame) execTry(s *lang.Try) control {
	c := f.execBlock(s.Body)

	switch c.kind {
	case ctrlRaise:
		c = f.handle(s, c)
	case ctrlNormal:
		c = f.execBlock(s.Else)
	}

	if c.kind == ctrlTerminate || len(s.Finally) == 0 {
		return c
	}

	if fc := f.execBlock(s.Finally); fc.kind != ctrlNormal {
		return fc
	}

	return c
}

// handle runs the first handler of s matching the raised error.
func (f *frame) handle(s *lang.Try, c control) control {
	exc := c.err

	for _, h := range s.Handlers {
		ok, err := f.matches(h, exc)
		if err != nil {
			return f.fail(err, h.Pos)
		}

		if !ok {
			continue
		}

		if h.Name != "" {
			if err := f.bind(h.Name, exc); err != nil {
				return f.fail(err, h.Pos)
			}
		}

		prev := f.handling
		f.handling = exc
		hc := f.execBlock(h.Body)
		f.handling = prev

		if h.Name != "" {
			f.unbind(h.Name)
		}

		return hc
	}

	return c
}

// matches reports whether handler h catches exc.
func (f *frame) matches(h *lang.ExceptHandler, exc *Error) (bool, error) {
	if h.Type == nil {
		return true, nil
	}

	typ, err := f.eval(h.Type)
	if err != nil {
		return false, err
	}

	var classes []any

	switch t := typ.(type) {
	case *Tuple:
		classes = t.Items
	default:
		classes = []any{t}
	}

	for _, c := range classes {
		cls, ok := c.(*ExceptionClass)
		if !ok {
			return false, Errorf(CategoryType,
				"catching '%s' that is not an exception class is not allowed", typeName(c))
		}

		if exc.Category.IsA(cls.Category) {
			return true, nil
		}
	}

	return false, nil
}

func (f *frame) execRaise(s *lang.Raise) control {
	if s.Exc == nil {
		if f.handling == nil {
			return f.fail(NewError(CategoryRuntime, "no active exception to re-raise"), s.Pos())
		}

		return control{kind: ctrlRaise, err: f.handling}
	}

	v, err := f.eval(s.Exc)
	if err != nil {
		return f.fail(err, s.Pos())
	}

	exc, err := exception(v)
	if err != nil {
		return f.fail(err, s.Pos())
	}

	if s.Cause != nil {
		cv, err := f.eval(s.Cause)
		if err != nil {
			return f.fail(err, s.Pos())
		}

		if cv != nil {
			cause, err := exception(cv)
			if err != nil {
				return f.fail(err, s.Pos())
			}

			exc = exc.clone()
			exc.cause = cause
		}
	}

	return control{kind: ctrlRaise, err: exc.located(f.script.Name, s.Pos())}
}

// exception converts a raised value into an error.
func exception(v any) (*Error, error) {
	switch v := v.(type) {
	case *ExceptionClass:
		return &Error{Category: v.Category}, nil
	case *Error:
		return v, nil
	default:
		return nil, Errorf(CategoryType, "exceptions must be exception classes or instances, not %s", typeName(v))
	}
}

// define builds a procedure from s, evaluating defaults now.
func (f *frame) define(s *lang.FunctionDef) (*Procedure, error) {
	p := &Procedure{
		Name:     s.Name,
		Doc:      s.Doc,
		def:      s,
		defaults: make([]any, len(s.Params)),
		closure:  f.locals,
		script:   f.script,
	}

	reserved := f.th.eng.symtab.reserved

	for i, param := range s.Params {
		if err := reserved(param.Name); err != nil {
			return nil, err
		}

		if param.Default == nil {
			continue
		}

		v, err := f.eval(param.Default)
		if err != nil {
			return nil, err
		}

		p.defaults[i] = v
	}

	for _, name := range []string{s.VarArg, s.KwArg} {
		if name == "" {
			continue
		}

		if err := reserved(name); err != nil {
			return nil, err
		}
	}

	for _, param := range s.KwOnly {
		if err := reserved(param.Name); err != nil {
			return nil, err
		}

		if param.Default == nil {
			continue
		}

		v, err := f.eval(param.Default)
		if err != nil {
			return nil, err
		}

		if p.kwonly == nil {
			p.kwonly = map[string]any{}
		}

		p.kwonly[param.Name] = v
	}

	return p, nil
}
