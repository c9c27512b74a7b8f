package engine

import (
	"errors"
	"fmt"

	"github.com/sahilm/fuzzy"

	"github.com/ardnew/cask/lang"
)

// eval evaluates x, locating any error at x unless a deeper expression
// already claimed it.
func (f *frame) eval(x lang.Expr) (any, error) {
	v, err := f.evalExpr(x)
	if err != nil {
		var h *halt
		if errors.As(err, &h) {
			return nil, err
		}

		return nil, asError(err).located(f.script.Name, x.Pos())
	}

	return v, nil
}

func (f *frame) evalExpr(x lang.Expr) (any, error) {
	switch x := x.(type) {
	case *lang.Literal:
		return x.Value, nil

	case *lang.Name:
		return f.lookup(x.ID)

	case *lang.UnaryOp:
		v, err := f.eval(x.X)
		if err != nil {
			return nil, err
		}

		return unaryOp(x.Op, v)

	case *lang.BinOp:
		a, err := f.eval(x.Left)
		if err != nil {
			return nil, err
		}

		b, err := f.eval(x.Right)
		if err != nil {
			return nil, err
		}

		return binaryOp(x.Op, a, b)

	case *lang.BoolOp:
		var v any

		for i, operand := range x.Values {
			var err error

			v, err = f.eval(operand)
			if err != nil {
				return nil, err
			}

			if i == len(x.Values)-1 {
				break
			}

			if t := truthy(v); (x.Op == lang.OpAnd && !t) || (x.Op == lang.OpOr && t) {
				return v, nil
			}
		}

		return v, nil

	case *lang.Compare:
		left, err := f.eval(x.Left)
		if err != nil {
			return nil, err
		}

		for i, op := range x.Ops {
			right, err := f.eval(x.Comparators[i])
			if err != nil {
				return nil, err
			}

			ok, err := compare(op, left, right)
			if err != nil || !ok {
				return false, err
			}

			left = right
		}

		return true, nil

	case *lang.Call:
		return f.evalCall(x)

	case *lang.IfExp:
		test, err := f.eval(x.Test)
		if err != nil {
			return nil, err
		}

		if truthy(test) {
			return f.eval(x.Body)
		}

		return f.eval(x.Else)

	case *lang.Collection:
		return f.evalCollection(x)

	case *lang.Subscript:
		v, err := f.eval(x.X)
		if err != nil {
			return nil, err
		}

		idx, err := f.evalIndex(x.Index)
		if err != nil {
			return nil, err
		}

		return getItem(v, idx)

	case *lang.Attribute:
		v, err := f.eval(x.X)
		if err != nil {
			return nil, err
		}

		return attribute(v, x.Name)

	case *lang.Comprehension:
		return f.evalComprehension(x)

	case *lang.Starred:
		return nil, NewError(CategoryType, "starred expression is not allowed here")

	case *lang.Slice:
		return nil, NewError(CategoryType, "slice is only allowed in a subscript")

	default:
		return nil, Errorf(CategorySyntax, "%s is not permitted", x.Kind())
	}
}

// lookup resolves name through the local chain, then the symbol table.
func (f *frame) lookup(name string) (any, error) {
	if f.locals != nil {
		if v, ok := f.locals.lookup(name); ok {
			return v, nil
		}
	}

	if v, ok := f.th.eng.symtab.Resolve(name); ok {
		return v, nil
	}

	return nil, f.th.eng.undefined(name)
}

// undefined returns a NameError for name, suggesting a close match.
func (e *Engine) undefined(name string) *Error {
	err := Errorf(CategoryName, "name '%s' is not defined", name)

	if len(name) < 2 {
		return err
	}

	if m := fuzzy.Find(name, e.symtab.all()); len(m) > 0 {
		err.msg = fmt.Sprintf("%s (did you mean '%s'?)", err.msg, m[0].Str)
	}

	return err
}

// bind assigns name in the innermost scope, or globally at module level
// and in flatten mode. Parameters stay local in flatten mode.
func (f *frame) bind(name string, v any) error {
	symtab := f.th.eng.symtab

	if f.locals == nil {
		return symtab.Bind(name, v)
	}

	if f.th.eng.cfg.flatten {
		if f.locals.replace(name, v) {
			return nil
		}

		return symtab.Bind(name, v)
	}

	if err := symtab.reserved(name); err != nil {
		return err
	}

	f.locals.set(name, v)

	return nil
}

func (f *frame) unbind(name string) bool {
	if f.locals != nil && f.locals.remove(name) {
		return true
	}

	ok, _ := f.th.eng.symtab.Unbind(name)

	return ok
}

func (f *frame) assign(target lang.Expr, v any) error {
	switch t := target.(type) {
	case *lang.Name:
		return f.bind(t.ID, v)

	case *lang.Subscript:
		x, err := f.eval(t.X)
		if err != nil {
			return err
		}

		idx, err := f.evalIndex(t.Index)
		if err != nil {
			return err
		}

		return setItem(x, idx, v)

	case *lang.Attribute:
		return Errorf(CategoryAttribute, "attribute '%s' is read-only", t.Name)

	case *lang.Collection:
		return f.unpack(t.Elts, v)

	default:
		return Errorf(CategorySyntax, "cannot assign to %s", target.Kind())
	}
}

// unpack assigns the elements of v across targets, at most one of which
// is starred.
func (f *frame) unpack(targets []lang.Expr, v any) error {
	items, err := elements(v)
	if err != nil {
		return Errorf(CategoryType, "cannot unpack non-iterable %s object", typeName(v))
	}

	star := -1

	for i, t := range targets {
		if _, ok := t.(*lang.Starred); ok {
			star = i
		}
	}

	if star < 0 {
		switch {
		case len(items) < len(targets):
			return Errorf(CategoryValue, "not enough values to unpack (expected %d, got %d)",
				len(targets), len(items))
		case len(items) > len(targets):
			return Errorf(CategoryValue, "too many values to unpack (expected %d)", len(targets))
		}

		for i, t := range targets {
			if err := f.assign(t, items[i]); err != nil {
				return err
			}
		}

		return nil
	}

	after := len(targets) - star - 1
	if len(items) < len(targets)-1 {
		return Errorf(CategoryValue, "not enough values to unpack (expected at least %d, got %d)",
			len(targets)-1, len(items))
	}

	for i := range star {
		if err := f.assign(targets[i], items[i]); err != nil {
			return err
		}
	}

	rest := NewList(append([]any(nil), items[star:len(items)-after]...)...)
	if err := f.assign(targets[star].(*lang.Starred).X, rest); err != nil {
		return err
	}

	for i := range after {
		if err := f.assign(targets[star+1+i], items[len(items)-after+i]); err != nil {
			return err
		}
	}

	return nil
}

func (f *frame) augAssign(s *lang.AugAssign) error {
	rhs, err := f.eval(s.Value)
	if err != nil {
		return err
	}

	switch t := s.Target.(type) {
	case *lang.Name:
		cur, err := f.lookup(t.ID)
		if err != nil {
			return err
		}

		next, err := inplace(s.Op, cur, rhs)
		if err != nil {
			return err
		}

		return f.bind(t.ID, next)

	case *lang.Subscript:
		x, err := f.eval(t.X)
		if err != nil {
			return err
		}

		idx, err := f.evalIndex(t.Index)
		if err != nil {
			return err
		}

		cur, err := getItem(x, idx)
		if err != nil {
			return err
		}

		next, err := inplace(s.Op, cur, rhs)
		if err != nil {
			return err
		}

		return setItem(x, idx, next)

	default:
		return Errorf(CategorySyntax, "illegal target for augmented assignment")
	}
}

// inplace applies an augmented operator. Lists extend in place.
func inplace(op lang.Operator, cur, rhs any) (any, error) {
	if l, ok := cur.(*List); ok && op == lang.OpAdd {
		items, err := elements(rhs)
		if err != nil {
			return nil, err
		}

		err = l.update(func(cur []any) ([]any, error) {
			if len(cur)+len(items) > maxSequence {
				return nil, NewError(CategoryValue, "list is too large")
			}

			return append(cur, items...), nil
		})

		return l, err
	}

	return binaryOp(op, cur, rhs)
}

func (f *frame) delete(target lang.Expr) error {
	switch t := target.(type) {
	case *lang.Name:
		if f.locals != nil && f.locals.remove(t.ID) {
			return nil
		}

		ok, err := f.th.eng.symtab.Unbind(t.ID)
		if err != nil {
			return err
		}

		if !ok {
			return f.th.eng.undefined(t.ID)
		}

		return nil

	case *lang.Subscript:
		x, err := f.eval(t.X)
		if err != nil {
			return err
		}

		idx, err := f.evalIndex(t.Index)
		if err != nil {
			return err
		}

		return delItem(x, idx)

	case *lang.Collection:
		for _, e := range t.Elts {
			if err := f.delete(e); err != nil {
				return err
			}
		}

		return nil

	default:
		return Errorf(CategorySyntax, "cannot delete %s", target.Kind())
	}
}

// evalIndex evaluates a subscript index, producing a sliceIndex for
// slices.
func (f *frame) evalIndex(x lang.Expr) (any, error) {
	s, ok := x.(*lang.Slice)
	if !ok {
		return f.eval(x)
	}

	var out sliceIndex

	for _, b := range []struct {
		x   lang.Expr
		dst **int64
	}{{s.Lower, &out.start}, {s.Upper, &out.stop}, {s.Step, &out.step}} {
		if b.x == nil {
			continue
		}

		v, err := f.eval(b.x)
		if err != nil {
			return nil, err
		}

		if v == nil {
			continue
		}

		i, err := toIndex(v)
		if err != nil {
			return nil, Errorf(CategoryType, "slice indices must be integers or None")
		}

		*b.dst = &i
	}

	return out, nil
}

func (f *frame) evalCollection(x *lang.Collection) (any, error) {
	if x.Form == lang.FormDict {
		d := NewDict()

		for i, kx := range x.Keys {
			if kx == nil {
				m, err := f.eval(x.Elts[i])
				if err != nil {
					return nil, err
				}

				src, ok := m.(*Dict)
				if !ok {
					return nil, Errorf(CategoryType, "'%s' object is not a mapping", typeName(m))
				}

				for _, kv := range src.snapshot() {
					if err := d.Set(kv.key, kv.value); err != nil {
						return nil, err
					}
				}

				continue
			}

			k, err := f.eval(kx)
			if err != nil {
				return nil, err
			}

			v, err := f.eval(x.Elts[i])
			if err != nil {
				return nil, err
			}

			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}

		return d, nil
	}

	items, err := f.evalItems(x.Elts)
	if err != nil {
		return nil, err
	}

	switch x.Form {
	case lang.FormList:
		return NewList(items...), nil
	case lang.FormTuple:
		return NewTuple(items...), nil
	default:
		return NewSet(items...)
	}
}

// evalItems evaluates display or argument items, expanding *starred ones.
func (f *frame) evalItems(xs []lang.Expr) ([]any, error) {
	items := make([]any, 0, len(xs))

	for _, e := range xs {
		if s, ok := e.(*lang.Starred); ok {
			v, err := f.eval(s.X)
			if err != nil {
				return nil, err
			}

			more, err := elements(v)
			if err != nil {
				return nil, err
			}

			items = append(items, more...)

			continue
		}

		v, err := f.eval(e)
		if err != nil {
			return nil, err
		}

		items = append(items, v)
	}

	return items, nil
}

// evalComprehension runs the generators in a scope of their own.
func (f *frame) evalComprehension(x *lang.Comprehension) (any, error) {
	inner := &frame{
		th:       f.th,
		script:   f.script,
		locals:   newScope(f.locals),
		handling: f.handling,
	}

	var (
		list []any
		set  *Set
		dict *Dict
	)

	switch x.Form {
	case lang.FormSet:
		set, _ = NewSet()
	case lang.FormDict:
		dict = NewDict()
	}

	emit := func() error {
		switch x.Form {
		case lang.FormDict:
			k, err := inner.eval(x.Key)
			if err != nil {
				return err
			}

			v, err := inner.eval(x.Elt)
			if err != nil {
				return err
			}

			return dict.Set(k, v)
		default:
			v, err := inner.eval(x.Elt)
			if err != nil {
				return err
			}

			if set != nil {
				return set.Add(v)
			}

			if len(list) >= maxSequence {
				return NewError(CategoryValue, "comprehension result is too large")
			}

			list = append(list, v)

			return nil
		}
	}

	if err := inner.generate(x.Generators, emit); err != nil {
		return nil, err
	}

	switch x.Form {
	case lang.FormSet:
		return set, nil
	case lang.FormDict:
		return dict, nil
	default:
		return NewList(list...), nil
	}
}

// generate runs nested for clauses, calling emit for each surviving
// binding.
func (f *frame) generate(clauses []*lang.ForClause, emit func() error) error {
	if len(clauses) == 0 {
		return emit()
	}

	c := clauses[0]

	seq, err := f.eval(c.Iter)
	if err != nil {
		return err
	}

	items, err := values(seq)
	if err != nil {
		return asError(err).located(f.script.Name, c.Iter.Pos())
	}

next:
	for v := range items {
		if cp := f.checkpoint(c.Pos); cp != nil {
			return &halt{cp}
		}

		if err := f.bindLocal(c.Target, v); err != nil {
			return err
		}

		for _, cond := range c.Ifs {
			ok, err := f.eval(cond)
			if err != nil {
				return err
			}

			if !truthy(ok) {
				continue next
			}
		}

		if err := f.generate(clauses[1:], emit); err != nil {
			return err
		}
	}

	return nil
}

// bindLocal binds comprehension targets in the comprehension's own scope
// regardless of flatten mode.
func (f *frame) bindLocal(target lang.Expr, v any) error {
	switch t := target.(type) {
	case *lang.Name:
		if err := f.th.eng.symtab.reserved(t.ID); err != nil {
			return err
		}

		f.locals.set(t.ID, v)

		return nil

	case *lang.Collection:
		items, err := elements(v)
		if err != nil {
			return Errorf(CategoryType, "cannot unpack non-iterable %s object", typeName(v))
		}

		if len(items) != len(t.Elts) {
			return Errorf(CategoryValue, "cannot unpack %d values into %d targets", len(items), len(t.Elts))
		}

		for i, e := range t.Elts {
			if err := f.bindLocal(e, items[i]); err != nil {
				return err
			}
		}

		return nil

	default:
		return f.assign(target, v)
	}
}
