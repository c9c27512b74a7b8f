package engine

import (
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ardnew/cask/lang"
)

// Script values are represented by these Go types:
//
//	None            nil
//	bool            bool
//	int             int64
//	float           float64
//	str             string
//	list            *List
//	tuple           *Tuple
//	dict            *Dict
//	set             *Set
//	range           *Range
//	function        *Procedure, *Builtin, *BoundMethod
//	exception type  *ExceptionClass
//	exception       *Error
//
// Any other Go value may pass through a script as an opaque handle.

// List is a mutable sequence. Scripts on several goroutines may share one
// list, so Items is only touched directly before the list is published.
type List struct {
	mu    sync.RWMutex
	Items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List { return &List{Items: items} }

// Len returns the number of items.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.Items)
}

// Snapshot returns a copy of the items.
func (l *List) Snapshot() []any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.Items)
}

// update replaces the items with the result of fn, holding the write lock.
// fn must not touch other script values that could lock l.
func (l *List) update(fn func(items []any) ([]any, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	items, err := fn(l.Items)
	if err != nil {
		return err
	}

	l.Items = items

	return nil
}

// Tuple is an immutable sequence.
type Tuple struct{ Items []any }

// NewTuple returns a tuple holding items.
func NewTuple(items ...any) *Tuple { return &Tuple{Items: items} }

// Range is an arithmetic progression as produced by range().
type Range struct{ Start, Stop, Step int64 }

// Len returns the number of elements in r.
func (r *Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	default:
		return 0
	}
}

// At returns the i-th element of r; i must be in range.
func (r *Range) At(i int64) int64 { return r.Start + i*r.Step }

type dictEntry struct{ key, value any }

// Dict is an insertion-ordered mapping. It is safe for concurrent use.
type Dict struct {
	mu      sync.RWMutex
	entries []dictEntry
	index   map[any]int
}

// NewDict returns an empty dict.
func NewDict() *Dict { return &Dict{index: map[any]int{}} }

// Len returns the number of entries.
func (d *Dict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.entries)
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, bool, error) {
	h, err := hashKey(key)
	if err != nil {
		return nil, false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index[h]
	if !ok {
		return nil, false, nil
	}

	return d.entries[i].value, true, nil
}

// Set stores value under key, keeping the original insertion position of
// an existing key.
func (d *Dict) Set(key, value any) error {
	h, err := hashKey(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.index == nil {
		d.index = map[any]int{}
	}

	if i, ok := d.index[h]; ok {
		d.entries[i].value = value

		return nil
	}

	d.index[h] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})

	return nil
}

// Delete removes key and reports whether it was present.
func (d *Dict) Delete(key any) (bool, error) {
	h, err := hashKey(key)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.deleteLocked(h), nil
}

func (d *Dict) deleteLocked(h any) bool {
	i, ok := d.index[h]
	if !ok {
		return false
	}

	d.entries = slices.Delete(d.entries, i, i+1)
	delete(d.index, h)

	for j := i; j < len(d.entries); j++ {
		hk, _ := hashKey(d.entries[j].key)
		d.index[hk] = j
	}

	return true
}

// popLast removes and returns the newest entry.
func (d *Dict) popLast() (dictEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.entries) == 0 {
		return dictEntry{}, false
	}

	e := d.entries[len(d.entries)-1]
	hk, _ := hashKey(e.key)
	d.deleteLocked(hk)

	return e, true
}

// popFirst removes and returns the oldest entry.
func (d *Dict) popFirst() (dictEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.entries) == 0 {
		return dictEntry{}, false
	}

	e := d.entries[0]
	hk, _ := hashKey(e.key)
	d.deleteLocked(hk)

	return e, true
}

// Clear removes every entry.
func (d *Dict) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = nil
	d.index = map[any]int{}
}

// snapshot returns a copy of the entries in insertion order.
func (d *Dict) snapshot() []dictEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.entries)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any {
	entries := d.snapshot()

	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}

	return out
}

// Values returns the values in insertion order.
func (d *Dict) Values() []any {
	entries := d.snapshot()

	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}

	return out
}

// Items returns (key, value) tuples in insertion order.
func (d *Dict) Items() []any {
	entries := d.snapshot()

	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = NewTuple(e.key, e.value)
	}

	return out
}

func (d *Dict) copy() *Dict {
	c := NewDict()
	for _, e := range d.snapshot() {
		_ = c.Set(e.key, e.value)
	}

	return c
}

// Set is an insertion-ordered collection of unique hashable values. It is
// safe for concurrent use.
type Set struct{ d Dict }

// NewSet returns a set of items.
func NewSet(items ...any) (*Set, error) {
	s := &Set{}
	for _, v := range items {
		if err := s.Add(v); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Set) Len() int { return s.d.Len() }

func (s *Set) Add(v any) error { return s.d.Set(v, nil) }

func (s *Set) Has(v any) (bool, error) {
	_, ok, err := s.d.Get(v)

	return ok, err
}

func (s *Set) Remove(v any) (bool, error) { return s.d.Delete(v) }

// Items returns the members in insertion order.
func (s *Set) Items() []any { return s.d.Keys() }

// Procedure is a function defined by a script.
type Procedure struct {
	Name     string
	Doc      string
	def      *lang.FunctionDef
	defaults []any
	kwonly   map[string]any
	closure  *Scope
	script   *lang.Script
}

// Builtin is a native callable.
type Builtin struct {
	Name string
	Fn   Func
	reg  *registration
}

// BoundMethod is a curated method bound to its receiver.
type BoundMethod struct {
	Recv any
	Name string
	fn   method
}

// ExceptionClass is the script-visible type of an error category.
type ExceptionClass struct{ Category Category }

// typeName returns the script-visible type name of v.
func typeName(v any) string {
	switch v := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Tuple:
		return "tuple"
	case *Dict:
		return "dict"
	case *Set:
		return "set"
	case *Range:
		return "range"
	case *Procedure:
		return "function"
	case *Builtin, *BoundMethod:
		return "builtin_function_or_method"
	case *ExceptionClass:
		return "type"
	case *Error:
		return string(v.Category)
	default:
		return fmt.Sprintf("%T", v)
	}
}

// truthy implements script truthiness.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case *List:
		return v.Len() > 0
	case *Tuple:
		return len(v.Items) > 0
	case *Dict:
		return v.Len() > 0
	case *Set:
		return v.Len() > 0
	case *Range:
		return v.Len() > 0
	default:
		return true
	}
}

// str implements str(v).
func str(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case *Error:
		return v.Message()
	default:
		return repr(v)
	}
}

// repr implements repr(v).
func repr(v any) string {
	var b strings.Builder

	writeRepr(&b, v, 0)

	return b.String()
}

const maxReprDepth = 64

func writeRepr(b *strings.Builder, v any, depth int) {
	if depth > maxReprDepth {
		b.WriteString("...")

		return
	}

	seq := func(open, close string, items []any) {
		b.WriteString(open)

		for i, it := range items {
			if i > 0 {
				b.WriteString(", ")
			}

			writeRepr(b, it, depth+1)
		}

		b.WriteString(close)
	}

	switch v := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if v {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString(formatFloat(v))
	case string:
		b.WriteString(quote(v))
	case *List:
		seq("[", "]", v.Snapshot())
	case *Tuple:
		if len(v.Items) == 1 {
			seq("(", ",)", v.Items)
		} else {
			seq("(", ")", v.Items)
		}
	case *Dict:
		b.WriteByte('{')

		for i, e := range v.snapshot() {
			if i > 0 {
				b.WriteString(", ")
			}

			writeRepr(b, e.key, depth+1)
			b.WriteString(": ")
			writeRepr(b, e.value, depth+1)
		}

		b.WriteByte('}')
	case *Set:
		if v.Len() == 0 {
			b.WriteString("set()")
		} else {
			seq("{", "}", v.Items())
		}
	case *Range:
		if v.Step == 1 {
			fmt.Fprintf(b, "range(%d, %d)", v.Start, v.Stop)
		} else {
			fmt.Fprintf(b, "range(%d, %d, %d)", v.Start, v.Stop, v.Step)
		}
	case *Procedure:
		fmt.Fprintf(b, "<function %s>", v.Name)
	case *Builtin:
		fmt.Fprintf(b, "<built-in function %s>", v.Name)
	case *BoundMethod:
		fmt.Fprintf(b, "<built-in method %s of %s object>", v.Name, typeName(v.Recv))
	case *ExceptionClass:
		fmt.Fprintf(b, "<class '%s'>", v.Category)
	case *Error:
		b.WriteString(string(v.Category))
		seq("(", ")", v.Args())
	case fmt.Stringer:
		b.WriteString(v.String())
	default:
		fmt.Fprintf(b, "<%T>", v)
	}
}

// formatFloat renders f the way repr does: shortest round-trip digits,
// always with a decimal point or exponent.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	if a := math.Abs(f); a != 0 && (a >= 1e16 || a < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}

	return s
}

// quote renders s as a single-quoted literal unless it contains single
// quotes and no double quotes.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder

	b.WriteByte(q)

	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}

	b.WriteByte(q)

	return b.String()
}

// hashKey returns a comparable key for v, normalizing numbers so that
// equal ints, floats and bools collide.
func hashKey(v any) (any, error) {
	switch v := v.(type) {
	case nil, string:
		return v, nil
	case bool:
		if v {
			return int64(1), nil
		}

		return int64(0), nil
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<63 {
			return int64(v), nil
		}

		return v, nil
	case *Tuple:
		var b strings.Builder

		b.WriteString("\x00tuple(")

		for _, it := range v.Items {
			k, err := hashKey(it)
			if err != nil {
				return nil, err
			}

			fmt.Fprintf(&b, "%T:%v;", k, k)
		}

		b.WriteByte(')')

		return b.String(), nil
	case *List, *Dict, *Set:
		return nil, Errorf(CategoryType, "unhashable type: '%s'", typeName(v))
	}

	if t := reflect.TypeOf(v); t != nil && t.Comparable() {
		return v, nil
	}

	return nil, Errorf(CategoryType, "unhashable type: '%s'", typeName(v))
}

// equal implements ==.
func equal(a, b any) bool {
	if x, y, ok := numericPair(a, b); ok {
		return x.eq(y)
	}

	switch a := a.(type) {
	case nil:
		return b == nil
	case string:
		s, ok := b.(string)

		return ok && a == s
	case *List:
		l, ok := b.(*List)

		return ok && (a == l || equalItems(a.Snapshot(), l.Snapshot()))
	case *Tuple:
		t, ok := b.(*Tuple)

		return ok && equalItems(a.Items, t.Items)
	case *Dict:
		d, ok := b.(*Dict)
		if !ok || a.Len() != d.Len() {
			return false
		}

		for _, e := range a.snapshot() {
			v, found, err := d.Get(e.key)
			if err != nil || !found || !equal(e.value, v) {
				return false
			}
		}

		return true
	case *Set:
		s, ok := b.(*Set)
		if !ok || a.Len() != s.Len() {
			return false
		}

		for _, k := range a.Items() {
			if has, _ := s.Has(k); !has {
				return false
			}
		}

		return true
	case *Range:
		r, ok := b.(*Range)

		return ok && *a == *r
	case *ExceptionClass:
		c, ok := b.(*ExceptionClass)

		return ok && a.Category == c.Category
	}

	return identical(a, b)
}

func equalItems(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !equal(a[i], b[i]) {
			return false
		}
	}

	return true
}

// identical implements "is".
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}

	return a == b
}

// less implements <, used for ordering comparisons and sorting.
func less(a, b any) (bool, error) {
	if x, y, ok := numericPair(a, b); ok {
		return x.lt(y), nil
	}

	switch a := a.(type) {
	case string:
		if s, ok := b.(string); ok {
			return a < s, nil
		}
	case *List:
		if l, ok := b.(*List); ok {
			return lessItems(a.Snapshot(), l.Snapshot())
		}
	case *Tuple:
		if t, ok := b.(*Tuple); ok {
			return lessItems(a.Items, t.Items)
		}
	}

	return false, Errorf(CategoryType, "'<' not supported between instances of '%s' and '%s'",
		typeName(a), typeName(b))
}

func lessItems(a, b []any) (bool, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if equal(a[i], b[i]) {
			continue
		}

		return less(a[i], b[i])
	}

	return len(a) < len(b), nil
}

// sortValues sorts items in place by key(item), stably.
func sortValues(items []any, keys []any, reverse bool) error {
	var cmpErr error

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(i, j int) bool {
		if cmpErr != nil {
			return false
		}

		a, b := keys[idx[i]], keys[idx[j]]
		if reverse {
			a, b = b, a
		}

		lt, err := less(a, b)
		if err != nil {
			cmpErr = err
		}

		return lt
	})

	if cmpErr != nil {
		return cmpErr
	}

	sorted := make([]any, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}

	copy(items, sorted)

	return nil
}

// length implements len(v).
func length(v any) (int64, error) {
	switch v := v.(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case *List:
		return int64(v.Len()), nil
	case *Tuple:
		return int64(len(v.Items)), nil
	case *Dict:
		return int64(v.Len()), nil
	case *Set:
		return int64(v.Len()), nil
	case *Range:
		return v.Len(), nil
	default:
		return 0, Errorf(CategoryType, "object of type '%s' has no len()", typeName(v))
	}
}

// iterate calls fn for each element of v in iteration order. Containers
// are snapshotted first so fn may mutate them.
func iterate(v any, fn func(any) error) error {
	items, err := elements(v)
	if err != nil {
		return err
	}

	for _, it := range items {
		if err := fn(it); err != nil {
			return err
		}
	}

	return nil
}

// elements returns a snapshot of the elements of an iterable.
func elements(v any) ([]any, error) {
	switch v := v.(type) {
	case *List:
		return v.Snapshot(), nil
	case *Tuple:
		return v.Items, nil
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}

		return out, nil
	case *Dict:
		return v.Keys(), nil
	case *Set:
		return v.Items(), nil
	case *Range:
		n := v.Len()
		if n > maxRangeMaterialize {
			return nil, Errorf(CategoryValue, "range of %d elements is too large", n)
		}

		out := make([]any, n)
		for i := range n {
			out[i] = v.At(i)
		}

		return out, nil
	default:
		return nil, Errorf(CategoryType, "'%s' object is not iterable", typeName(v))
	}
}

const maxRangeMaterialize = maxSequence

// values yields the elements of an iterable. Ranges are produced lazily;
// other containers are snapshotted first.
func values(v any) (iter.Seq[any], error) {
	if r, ok := v.(*Range); ok {
		return func(yield func(any) bool) {
			n := r.Len()
			for i := int64(0); i < n; i++ {
				if !yield(r.At(i)) {
					return
				}
			}
		}, nil
	}

	items, err := elements(v)
	if err != nil {
		return nil, err
	}

	return slices.Values(items), nil
}

// FromGo converts a native Go value into its script representation.
// Values with no script equivalent are returned unchanged as opaque
// handles.
func FromGo(v any) any {
	switch v := v.(type) {
	case nil, bool, int64, float64, string,
		*List, *Tuple, *Dict, *Set, *Range, *Procedure, *Builtin, *BoundMethod,
		*ExceptionClass, *Error:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	case []any:
		out := make([]any, len(v))
		for i, it := range v {
			out[i] = FromGo(it)
		}

		return NewList(out...)
	case []string:
		out := make([]any, len(v))
		for i, it := range v {
			out[i] = it
		}

		return NewList(out...)
	case map[string]any:
		d := NewDict()

		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			_ = d.Set(k, FromGo(v[k]))
		}

		return d
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = FromGo(rv.Index(i).Interface())
		}

		return NewList(out...)

	case reflect.Map:
		d := NewDict()
		keys := rv.MapKeys()

		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})

		for _, k := range keys {
			if err := d.Set(FromGo(k.Interface()), FromGo(rv.MapIndex(k).Interface())); err != nil {
				return v
			}
		}

		return d
	}

	return v
}

// ToGo converts a script value into plain Go data: lists, tuples and sets
// become []any, dicts become map[string]any keyed by str(key).
func ToGo(v any) any {
	switch v := v.(type) {
	case *List:
		return toGoItems(v.Snapshot())
	case *Tuple:
		return toGoItems(v.Items)
	case *Set:
		return toGoItems(v.Items())
	case *Range:
		items, err := elements(v)
		if err != nil {
			return nil
		}

		return toGoItems(items)
	case *Dict:
		m := make(map[string]any, v.Len())
		for _, e := range v.snapshot() {
			m[str(e.key)] = ToGo(e.value)
		}

		return m
	default:
		return v
	}
}

func toGoItems(items []any) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = ToGo(it)
	}

	return out
}

// Repr returns the script representation of v, as repr() would.
func Repr(v any) string { return repr(v) }

// Str returns the string form of v, as str() would.
func Str(v any) string { return str(v) }

// Truthy reports whether v is true in a boolean context.
func Truthy(v any) bool { return truthy(v) }

// Equal reports whether a == b in a script.
func Equal(a, b any) bool { return equal(a, b) }

// TypeName returns the script-visible type name of v.
func TypeName(v any) string { return typeName(v) }
