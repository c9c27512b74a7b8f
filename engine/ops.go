package engine

import (
	"math"
	"math/bits"
	"slices"
	"strings"

	"github.com/ardnew/cask/lang"
)

// maxSequence bounds the size of sequences built by repetition.
const maxSequence = 1 << 24

type number struct {
	i       int64
	f       float64
	isFloat bool
}

func toNumber(v any) (number, bool) {
	switch v := v.(type) {
	case bool:
		if v {
			return number{i: 1}, true
		}

		return number{}, true
	case int64:
		return number{i: v}, true
	case float64:
		return number{f: v, isFloat: true}, true
	default:
		return number{}, false
	}
}

func numericPair(a, b any) (number, number, bool) {
	x, ok := toNumber(a)
	if !ok {
		return number{}, number{}, false
	}

	y, ok := toNumber(b)
	if !ok {
		return number{}, number{}, false
	}

	return x, y, true
}

func (x number) float() float64 {
	if x.isFloat {
		return x.f
	}

	return float64(x.i)
}

func (x number) value() any {
	if x.isFloat {
		return x.f
	}

	return x.i
}

func (x number) eq(y number) bool {
	if x.isFloat || y.isFloat {
		return x.float() == y.float()
	}

	return x.i == y.i
}

func (x number) lt(y number) bool {
	if x.isFloat || y.isFloat {
		return x.float() < y.float()
	}

	return x.i < y.i
}

var errOverflow = NewError(CategoryArithmetic, "integer overflow")

func unsupported(op lang.Operator, a, b any) *Error {
	return Errorf(CategoryType, "unsupported operand type(s) for %s: '%s' and '%s'",
		op, typeName(a), typeName(b))
}

// binaryOp applies a binary arithmetic or bitwise operator.
func binaryOp(op lang.Operator, a, b any) (any, error) {
	if x, y, ok := numericPair(a, b); ok {
		if ba, ok := a.(bool); ok {
			if bb, ok := b.(bool); ok {
				switch op {
				case lang.OpBitAnd:
					return ba && bb, nil
				case lang.OpBitOr:
					return ba || bb, nil
				case lang.OpBitXor:
					return ba != bb, nil
				}
			}
		}

		return arith(op, x, y)
	}

	switch a := a.(type) {
	case string:
		switch op {
		case lang.OpAdd:
			if s, ok := b.(string); ok {
				return a + s, nil
			}
		case lang.OpMul:
			if n, ok := b.(int64); ok {
				return repeatString(a, n)
			}
		case lang.OpMod:
			return percentFormat(a, b)
		}

	case *List:
		switch op {
		case lang.OpAdd:
			if l, ok := b.(*List); ok {
				return NewList(slices.Concat(a.Snapshot(), l.Snapshot())...), nil
			}
		case lang.OpMul:
			if n, ok := b.(int64); ok {
				items, err := repeatItems(a.Snapshot(), n)

				return NewList(items...), err
			}
		}

	case *Tuple:
		switch op {
		case lang.OpAdd:
			if t, ok := b.(*Tuple); ok {
				return NewTuple(slices.Concat(a.Items, t.Items)...), nil
			}
		case lang.OpMul:
			if n, ok := b.(int64); ok {
				items, err := repeatItems(a.Items, n)

				return NewTuple(items...), err
			}
		}

	case *Set:
		if s, ok := b.(*Set); ok {
			if r, ok := setOp(op, a, s); ok {
				return r, nil
			}
		}

	case *Dict:
		if d, ok := b.(*Dict); ok && op == lang.OpBitOr {
			m := a.copy()
			for _, e := range d.snapshot() {
				_ = m.Set(e.key, e.value)
			}

			return m, nil
		}

	case int64:
		if op == lang.OpMul {
			switch s := b.(type) {
			case string:
				return repeatString(s, a)
			case *List:
				items, err := repeatItems(s.Snapshot(), a)

				return NewList(items...), err
			case *Tuple:
				items, err := repeatItems(s.Items, a)

				return NewTuple(items...), err
			}
		}
	}

	return nil, unsupported(op, a, b)
}

func arith(op lang.Operator, x, y number) (any, error) {
	if op == lang.OpDiv {
		if y.float() == 0 {
			return nil, NewError(CategoryZeroDivision, "division by zero")
		}

		return x.float() / y.float(), nil
	}

	if x.isFloat || y.isFloat {
		return floatArith(op, x.float(), y.float())
	}

	a, b := x.i, y.i

	switch op {
	case lang.OpAdd:
		r := a + b
		if (r > a) != (b > 0) {
			return nil, errOverflow
		}

		return r, nil

	case lang.OpSub:
		r := a - b
		if (r < a) != (b > 0) {
			return nil, errOverflow
		}

		return r, nil

	case lang.OpMul:
		if a == 0 || b == 0 {
			return int64(0), nil
		}

		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, errOverflow
		}

		return r, nil

	case lang.OpFloorDiv, lang.OpMod:
		if b == 0 {
			return nil, NewError(CategoryZeroDivision, "integer division or modulo by zero")
		}

		if a == math.MinInt64 && b == -1 {
			if op == lang.OpMod {
				return int64(0), nil
			}

			return nil, errOverflow
		}

		q, r := a/b, a%b
		if r != 0 && (r < 0) != (b < 0) {
			q--
			r += b
		}

		if op == lang.OpMod {
			return r, nil
		}

		return q, nil

	case lang.OpPow:
		if b < 0 {
			if a == 0 {
				return nil, NewError(CategoryZeroDivision, "0.0 cannot be raised to a negative power")
			}

			return math.Pow(float64(a), float64(b)), nil
		}

		return intPow(a, b)

	case lang.OpBitAnd:
		return a & b, nil
	case lang.OpBitOr:
		return a | b, nil
	case lang.OpBitXor:
		return a ^ b, nil

	case lang.OpLShift, lang.OpRShift:
		if b < 0 {
			return nil, NewError(CategoryValue, "negative shift count")
		}

		if op == lang.OpRShift {
			if b >= 64 {
				if a < 0 {
					return int64(-1), nil
				}

				return int64(0), nil
			}

			return a >> b, nil
		}

		if a == 0 {
			return int64(0), nil
		}

		if b >= 63 {
			return nil, errOverflow
		}

		r := a << b
		if r>>b != a {
			return nil, errOverflow
		}

		return r, nil
	}

	return nil, unsupported(op, x.value(), y.value())
}

func intPow(base, exp int64) (any, error) {
	result := int64(1)

	for exp > 0 {
		if exp&1 == 1 {
			hi, lo := bits.Mul64(uint64(abs64(result)), uint64(abs64(base)))
			if hi != 0 || lo > math.MaxInt64 {
				return nil, errOverflow
			}

			result *= base
		}

		exp >>= 1

		if exp > 0 {
			hi, lo := bits.Mul64(uint64(abs64(base)), uint64(abs64(base)))
			if hi != 0 || lo > math.MaxInt64 {
				return nil, errOverflow
			}

			base *= base
		}
	}

	return result, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}

func floatArith(op lang.Operator, a, b float64) (any, error) {
	switch op {
	case lang.OpAdd:
		return a + b, nil
	case lang.OpSub:
		return a - b, nil
	case lang.OpMul:
		return a * b, nil
	case lang.OpFloorDiv:
		if b == 0 {
			return nil, NewError(CategoryZeroDivision, "float floor division by zero")
		}

		return math.Floor(a / b), nil
	case lang.OpMod:
		if b == 0 {
			return nil, NewError(CategoryZeroDivision, "float modulo")
		}

		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}

		return r, nil
	case lang.OpPow:
		if a == 0 && b < 0 {
			return nil, NewError(CategoryZeroDivision, "0.0 cannot be raised to a negative power")
		}

		r := math.Pow(a, b)
		if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
			return nil, NewError(CategoryValue, "math domain error")
		}

		return r, nil
	}

	return nil, unsupported(op, a, b)
}

func repeatString(s string, n int64) (any, error) {
	if n <= 0 || s == "" {
		return "", nil
	}

	if int64(len(s))*n > maxSequence || n > maxSequence {
		return nil, NewError(CategoryValue, "repeated string is too large")
	}

	return strings.Repeat(s, int(n)), nil
}

func repeatItems(items []any, n int64) ([]any, error) {
	if n <= 0 || len(items) == 0 {
		return nil, nil
	}

	if int64(len(items))*n > maxSequence || n > maxSequence {
		return nil, NewError(CategoryValue, "repeated sequence is too large")
	}

	out := make([]any, 0, len(items)*int(n))
	for range n {
		out = append(out, items...)
	}

	return out, nil
}

func setOp(op lang.Operator, a, b *Set) (*Set, bool) {
	out := &Set{}

	switch op {
	case lang.OpBitOr:
		for _, v := range a.Items() {
			_ = out.Add(v)
		}

		for _, v := range b.Items() {
			_ = out.Add(v)
		}

	case lang.OpBitAnd:
		for _, v := range a.Items() {
			if has, _ := b.Has(v); has {
				_ = out.Add(v)
			}
		}

	case lang.OpSub:
		for _, v := range a.Items() {
			if has, _ := b.Has(v); !has {
				_ = out.Add(v)
			}
		}

	case lang.OpBitXor:
		for _, v := range a.Items() {
			if has, _ := b.Has(v); !has {
				_ = out.Add(v)
			}
		}

		for _, v := range b.Items() {
			if has, _ := a.Has(v); !has {
				_ = out.Add(v)
			}
		}

	default:
		return nil, false
	}

	return out, true
}

// unaryOp applies -, +, ~ or not.
func unaryOp(op lang.Operator, v any) (any, error) {
	if op == lang.OpNot {
		return !truthy(v), nil
	}

	x, ok := toNumber(v)
	if !ok {
		return nil, Errorf(CategoryType, "bad operand type for unary %s: '%s'", op, typeName(v))
	}

	switch op {
	case lang.OpNeg:
		if x.isFloat {
			return -x.f, nil
		}

		if x.i == math.MinInt64 {
			return nil, errOverflow
		}

		return -x.i, nil

	case lang.OpPos:
		return x.value(), nil

	case lang.OpInvert:
		if x.isFloat {
			return nil, Errorf(CategoryType, "bad operand type for unary ~: 'float'")
		}

		return ^x.i, nil
	}

	return nil, Errorf(CategoryType, "bad unary operator %s", op)
}

// compare applies a single comparison operator.
func compare(op lang.Operator, a, b any) (bool, error) {
	switch op {
	case lang.OpEq:
		return equal(a, b), nil
	case lang.OpNotEq:
		return !equal(a, b), nil
	case lang.OpIs:
		return identical(a, b), nil
	case lang.OpIsNot:
		return !identical(a, b), nil
	case lang.OpIn:
		return contains(b, a)
	case lang.OpNotIn:
		in, err := contains(b, a)

		return !in, err
	}

	var (
		r   bool
		err error
	)

	switch op {
	case lang.OpLt:
		r, err = less(a, b)
	case lang.OpGt:
		r, err = less(b, a)
	case lang.OpLtE:
		r, err = less(b, a)
		r = !r
	case lang.OpGtE:
		r, err = less(a, b)
		r = !r
	}

	if err != nil {
		return false, Errorf(CategoryType, "'%s' not supported between instances of '%s' and '%s'",
			op, typeName(a), typeName(b))
	}

	if (op == lang.OpLtE || op == lang.OpGtE) && isNaN(a, b) {
		return false, nil
	}

	return r, nil
}

func isNaN(vals ...any) bool {
	for _, v := range vals {
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			return true
		}
	}

	return false
}

// contains implements "item in container".
func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, Errorf(CategoryType, "'in <string>' requires string as left operand, not %s", typeName(item))
		}

		return strings.Contains(c, s), nil
	case *List:
		return slices.ContainsFunc(c.Snapshot(), func(v any) bool { return equal(v, item) }), nil
	case *Tuple:
		return slices.ContainsFunc(c.Items, func(v any) bool { return equal(v, item) }), nil
	case *Dict:
		_, ok, err := c.Get(item)

		return ok, err
	case *Set:
		return c.Has(item)
	case *Range:
		x, ok := toNumber(item)
		if !ok || x.isFloat && x.f != math.Trunc(x.f) {
			return false, nil
		}

		i := x.i
		if x.isFloat {
			i = int64(x.f)
		}

		if c.Step > 0 && (i < c.Start || i >= c.Stop) || c.Step < 0 && (i > c.Start || i <= c.Stop) {
			return false, nil
		}

		return (i-c.Start)%c.Step == 0, nil
	default:
		return false, Errorf(CategoryType, "argument of type '%s' is not iterable", typeName(container))
	}
}

// sliceIndex is an evaluated slice expression. Nil bounds take defaults.
type sliceIndex struct{ start, stop, step *int64 }

// indices resolves s against a sequence of length n.
func (s sliceIndex) indices(n int64) (start, stop, step int64, err error) {
	step = 1
	if s.step != nil {
		step = *s.step
	}

	if step == 0 {
		return 0, 0, 0, NewError(CategoryValue, "slice step cannot be zero")
	}

	adjust := func(p *int64, def int64) int64 {
		if p == nil {
			return def
		}

		v := *p
		if v < 0 {
			v += n
		}

		lo, hi := int64(0), n
		if step < 0 {
			lo, hi = -1, n-1
		}

		return min(max(v, lo), hi)
	}

	if step > 0 {
		return adjust(s.start, 0), adjust(s.stop, n), step, nil
	}

	return adjust(s.start, n-1), adjust(s.stop, -1), step, nil
}

// Slice returns the elements of items selected by start:stop:step with
// the script's slicing rules. Nil bounds take their defaults.
func Slice(items []any, start, stop, step any) ([]any, error) {
	var s sliceIndex

	for _, b := range []struct {
		v any
		p **int64
	}{{start, &s.start}, {stop, &s.stop}, {step, &s.step}} {
		if b.v == nil {
			continue
		}

		i, err := toIndex(b.v)
		if err != nil {
			return nil, err
		}

		*b.p = &i
	}

	pos, err := s.positions(int64(len(items)))
	if err != nil {
		return nil, err
	}

	out := make([]any, len(pos))
	for i, p := range pos {
		out[i] = items[p]
	}

	return out, nil
}

func (s sliceIndex) positions(n int64) ([]int64, error) {
	start, stop, step, err := s.indices(n)
	if err != nil {
		return nil, err
	}

	var out []int64

	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}

	return out, nil
}

func toIndex(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}

		return 0, nil
	default:
		return 0, Errorf(CategoryType, "indices must be integers, not %s", typeName(v))
	}
}

func normalizeIndex(i, n int64, what string) (int64, error) {
	if i < 0 {
		i += n
	}

	if i < 0 || i >= n {
		return 0, Errorf(CategoryIndex, "%s index out of range", what)
	}

	return i, nil
}

// getItem implements x[idx].
func getItem(x, idx any) (any, error) {
	if s, ok := idx.(sliceIndex); ok {
		return getSlice(x, s)
	}

	switch c := x.(type) {
	case *List:
		c.mu.RLock()
		defer c.mu.RUnlock()

		i, err := seqIndex(idx, int64(len(c.Items)), "list")
		if err != nil {
			return nil, err
		}

		return c.Items[i], nil

	case *Tuple:
		i, err := seqIndex(idx, int64(len(c.Items)), "tuple")
		if err != nil {
			return nil, err
		}

		return c.Items[i], nil

	case string:
		runes := []rune(c)

		i, err := seqIndex(idx, int64(len(runes)), "string")
		if err != nil {
			return nil, err
		}

		return string(runes[i]), nil

	case *Range:
		i, err := seqIndex(idx, c.Len(), "range object")
		if err != nil {
			return nil, err
		}

		return c.At(i), nil

	case *Dict:
		v, ok, err := c.Get(idx)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, &Error{Category: CategoryKey, args: []any{idx}, msg: repr(idx)}
		}

		return v, nil
	}

	return nil, Errorf(CategoryType, "'%s' object is not subscriptable", typeName(x))
}

func seqIndex(idx any, n int64, what string) (int64, error) {
	i, err := toIndex(idx)
	if err != nil {
		return 0, Errorf(CategoryType, "%s indices must be integers, not %s", what, typeName(idx))
	}

	return normalizeIndex(i, n, what)
}

func getSlice(x any, s sliceIndex) (any, error) {
	pick := func(items []any) ([]any, error) {
		pos, err := s.positions(int64(len(items)))
		if err != nil {
			return nil, err
		}

		out := make([]any, len(pos))
		for i, p := range pos {
			out[i] = items[p]
		}

		return out, nil
	}

	switch c := x.(type) {
	case *List:
		items, err := pick(c.Snapshot())

		return NewList(items...), err

	case *Tuple:
		items, err := pick(c.Items)

		return NewTuple(items...), err

	case string:
		runes := []rune(c)

		pos, err := s.positions(int64(len(runes)))
		if err != nil {
			return nil, err
		}

		out := make([]rune, len(pos))
		for i, p := range pos {
			out[i] = runes[p]
		}

		return string(out), nil

	case *Range:
		start, stop, step, err := s.indices(c.Len())
		if err != nil {
			return nil, err
		}

		return &Range{Start: c.At(start), Stop: c.At(stop), Step: c.Step * step}, nil
	}

	return nil, Errorf(CategoryType, "'%s' object is not subscriptable", typeName(x))
}

// setItem implements x[idx] = v.
func setItem(x, idx, v any) error {
	switch c := x.(type) {
	case *List:
		if s, ok := idx.(sliceIndex); ok {
			return setListSlice(c, s, v)
		}

		return c.update(func(items []any) ([]any, error) {
			i, err := seqIndex(idx, int64(len(items)), "list assignment")
			if err != nil {
				return nil, err
			}

			items[i] = v

			return items, nil
		})

	case *Dict:
		return c.Set(idx, v)
	}

	return Errorf(CategoryType, "'%s' object does not support item assignment", typeName(x))
}

func setListSlice(l *List, s sliceIndex, v any) error {
	items, err := elements(v)
	if err != nil {
		return Errorf(CategoryType, "can only assign an iterable")
	}

	return l.update(func(cur []any) ([]any, error) {
		start, stop, step, err := s.indices(int64(len(cur)))
		if err != nil {
			return nil, err
		}

		if step == 1 {
			stop = max(stop, start)

			return slices.Concat(cur[:start], items, cur[stop:]), nil
		}

		pos, _ := s.positions(int64(len(cur)))
		if len(pos) != len(items) {
			return nil, Errorf(CategoryValue,
				"attempt to assign sequence of size %d to extended slice of size %d", len(items), len(pos))
		}

		for i, p := range pos {
			cur[p] = items[i]
		}

		return cur, nil
	})
}

// delItem implements del x[idx].
func delItem(x, idx any) error {
	switch c := x.(type) {
	case *List:
		return c.update(func(items []any) ([]any, error) {
			if s, ok := idx.(sliceIndex); ok {
				pos, err := s.positions(int64(len(items)))
				if err != nil {
					return nil, err
				}

				drop := make(map[int64]bool, len(pos))
				for _, p := range pos {
					drop[p] = true
				}

				kept := items[:0:0]

				for i, it := range items {
					if !drop[int64(i)] {
						kept = append(kept, it)
					}
				}

				return kept, nil
			}

			i, err := seqIndex(idx, int64(len(items)), "list assignment")
			if err != nil {
				return nil, err
			}

			return slices.Delete(items, int(i), int(i)+1), nil
		})

	case *Dict:
		ok, err := c.Delete(idx)
		if err != nil {
			return err
		}

		if !ok {
			return &Error{Category: CategoryKey, args: []any{idx}, msg: repr(idx)}
		}

		return nil
	}

	return Errorf(CategoryType, "'%s' object does not support item deletion", typeName(x))
}
