package engine

import (
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ardnew/cask/lang"
)

// method is a curated method of a built-in type.
type method func(ctx context.Context, recv any, a Args) (any, error)

// attribute implements x.name. Only the curated methods below and an
// exception's args are reachable.
func attribute(x any, name string) (any, error) {
	var table map[string]method

	switch v := x.(type) {
	case string:
		table = strMethods
	case *List:
		table = listMethods
	case *Tuple:
		table = tupleMethods
	case *Dict:
		table = dictMethods
	case *Set:
		table = setMethods
	case *Error:
		if name == "args" {
			return NewTuple(v.Args()...), nil
		}
	}

	if m, ok := table[name]; ok {
		return &BoundMethod{Recv: x, Name: name, fn: m}, nil
	}

	return nil, Errorf(CategoryAttribute, "'%s' object has no attribute '%s'", typeName(x), name)
}

// noArgs adapts a method taking no arguments.
func noArgs(name string, fn func(recv any) (any, error)) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		if err := a.Unpack(name); err != nil {
			return nil, err
		}

		return fn(recv)
	}
}

func strPredicate(name string, fn func(rune) bool) method {
	return noArgs(name, func(recv any) (any, error) {
		s := recv.(string)
		if s == "" {
			return false, nil
		}

		for _, r := range s {
			if !fn(r) {
				return false, nil
			}
		}

		return true, nil
	})
}

func strMap(name string, fn func(string) string) method {
	return noArgs(name, func(recv any) (any, error) { return fn(recv.(string)), nil })
}

func strTrim(name string, def func(string) string, cut func(string, string) string) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var chars any
		if err := a.Unpack(name, "chars?", &chars); err != nil {
			return nil, err
		}

		s := recv.(string)

		switch c := chars.(type) {
		case nil:
			return def(s), nil
		case string:
			return cut(s, c), nil
		default:
			return nil, Errorf(CategoryType, "%s arg must be None or str", name)
		}
	}
}

// affixMatch implements startswith and endswith.
func affixMatch(name string, match func(s, affix string) bool) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var affix any
		if err := a.Unpack(name, "affix", &affix); err != nil {
			return nil, err
		}

		s := recv.(string)

		cands := []any{affix}
		if t, ok := affix.(*Tuple); ok {
			cands = t.Items
		}

		for _, c := range cands {
			p, ok := c.(string)
			if !ok {
				return nil, Errorf(CategoryType, "%s arg must be str or a tuple of str, not %s", name, typeName(c))
			}

			if match(s, p) {
				return true, nil
			}
		}

		return false, nil
	}
}

// runeIndex converts a byte offset in s to a rune offset.
func runeIndex(s string, i int) int64 {
	if i < 0 {
		return -1
	}

	return int64(utf8.RuneCountInString(s[:i]))
}

func strFind(name string, last, strict bool) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var sub string
		if err := a.Unpack(name, "sub", &sub); err != nil {
			return nil, err
		}

		s := recv.(string)

		i := strings.Index(s, sub)
		if last {
			i = strings.LastIndex(s, sub)
		}

		if i < 0 && strict {
			return nil, NewError(CategoryValue, "substring not found")
		}

		return runeIndex(s, i), nil
	}
}

func strPad(name string, pad func(s, fill string, n int) string) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var (
			width int64
			fill  = " "
		)

		if err := a.Unpack(name, "width", &width, "fillchar?", &fill); err != nil {
			return nil, err
		}

		if utf8.RuneCountInString(fill) != 1 {
			return nil, NewError(CategoryType, "the fill character must be exactly one character long")
		}

		s := recv.(string)

		n := int(width) - utf8.RuneCountInString(s)
		if n <= 0 {
			return s, nil
		}

		if width > maxSequence {
			return nil, NewError(CategoryValue, "padded string is too large")
		}

		return pad(s, fill, n), nil
	}
}

var strMethods map[string]method

func init() {
	strMethods = map[string]method{
		"upper":      strMap("upper", strings.ToUpper),
		"lower":      strMap("lower", strings.ToLower),
		"title":      strMap("title", titleCase),
		"capitalize": strMap("capitalize", capitalize),
		"swapcase":   strMap("swapcase", swapCase),
		"strip":      strTrim("strip", strings.TrimSpace, strings.Trim),
		"lstrip": strTrim("lstrip",
			func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }, strings.TrimLeft),
		"rstrip": strTrim("rstrip",
			func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }, strings.TrimRight),
		"startswith": affixMatch("startswith", strings.HasPrefix),
		"endswith":   affixMatch("endswith", strings.HasSuffix),
		"find":       strFind("find", false, false),
		"rfind":      strFind("rfind", true, false),
		"index":      strFind("index", false, true),
		"rindex":     strFind("rindex", true, true),
		"isdigit":    strPredicate("isdigit", unicode.IsDigit),
		"isalpha":    strPredicate("isalpha", unicode.IsLetter),
		"isalnum": strPredicate("isalnum", func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}),
		"isspace": strPredicate("isspace", unicode.IsSpace),
		"isupper": noArgs("isupper", func(recv any) (any, error) {
			s := recv.(string)

			return strings.ToUpper(s) == s && strings.ToLower(s) != s, nil
		}),
		"islower": noArgs("islower", func(recv any) (any, error) {
			s := recv.(string)

			return strings.ToLower(s) == s && strings.ToUpper(s) != s, nil
		}),
		"ljust": strPad("ljust", func(s, fill string, n int) string {
			return s + strings.Repeat(fill, n)
		}),
		"rjust": strPad("rjust", func(s, fill string, n int) string {
			return strings.Repeat(fill, n) + s
		}),
		"center": strPad("center", func(s, fill string, n int) string {
			left := n/2 + (n & (n + utf8.RuneCountInString(s)) & 1)

			return strings.Repeat(fill, left) + s + strings.Repeat(fill, n-left)
		}),
		"zfill": func(_ context.Context, recv any, a Args) (any, error) {
			var width int64
			if err := a.Unpack("zfill", "width", &width); err != nil {
				return nil, err
			}

			s := recv.(string)

			n := int(width) - utf8.RuneCountInString(s)
			if n <= 0 {
				return s, nil
			}

			if width > maxSequence {
				return nil, NewError(CategoryValue, "padded string is too large")
			}

			sign := ""
			if s != "" && (s[0] == '-' || s[0] == '+') {
				sign, s = s[:1], s[1:]
			}

			return sign + strings.Repeat("0", n) + s, nil
		},
		"count": func(_ context.Context, recv any, a Args) (any, error) {
			var sub string
			if err := a.Unpack("count", "sub", &sub); err != nil {
				return nil, err
			}

			s := recv.(string)
			if sub == "" {
				return int64(utf8.RuneCountInString(s) + 1), nil
			}

			return int64(strings.Count(s, sub)), nil
		},
		"replace": func(_ context.Context, recv any, a Args) (any, error) {
			var (
				old, repl string
				count     int64 = -1
			)

			if err := a.Unpack("replace", "old", &old, "new", &repl, "count?", &count); err != nil {
				return nil, err
			}

			return strings.Replace(recv.(string), old, repl, int(max(count, -1))), nil
		},
		"split":  strSplit("split", false),
		"rsplit": strSplit("rsplit", true),
		"splitlines": noArgs("splitlines", func(recv any) (any, error) {
			s := strings.ReplaceAll(recv.(string), "\r\n", "\n")
			s = strings.TrimSuffix(s, "\n")

			if s == "" {
				return NewList(), nil
			}

			return stringList(strings.Split(s, "\n")), nil
		}),
		"partition": func(_ context.Context, recv any, a Args) (any, error) {
			var sep string
			if err := a.Unpack("partition", "sep", &sep); err != nil {
				return nil, err
			}

			if sep == "" {
				return nil, NewError(CategoryValue, "empty separator")
			}

			before, after, found := strings.Cut(recv.(string), sep)
			if !found {
				return NewTuple(before, "", ""), nil
			}

			return NewTuple(before, sep, after), nil
		},
		"join": func(_ context.Context, recv any, a Args) (any, error) {
			var items []any
			if err := a.Unpack("join", "iterable", &items); err != nil {
				return nil, err
			}

			parts := make([]string, len(items))

			for i, it := range items {
				s, ok := it.(string)
				if !ok {
					return nil, Errorf(CategoryType, "sequence item %d: expected str instance, %s found",
						i, typeName(it))
				}

				parts[i] = s
			}

			return strings.Join(parts, recv.(string)), nil
		},
		"format": func(ctx context.Context, recv any, a Args) (any, error) {
			out, err := formatString(ctx, recv.(string), a)
			if err != nil {
				return nil, err
			}

			return out, nil
		},
	}
}

func strSplit(name string, fromRight bool) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var (
			sep      any
			maxsplit int64 = -1
		)

		if err := a.Unpack(name, "sep?", &sep, "maxsplit?", &maxsplit); err != nil {
			return nil, err
		}

		s := recv.(string)

		switch sep := sep.(type) {
		case nil:
			fields := strings.Fields(s)
			if maxsplit >= 0 && int64(len(fields)) > maxsplit+1 {
				if fromRight {
					keep := fields[len(fields)-int(maxsplit):]
					head := strings.TrimRightFunc(s, unicode.IsSpace)

					for range keep {
						i := strings.LastIndexFunc(head, unicode.IsSpace)
						head = strings.TrimRightFunc(head[:i], unicode.IsSpace)
					}

					fields = append([]string{head}, keep...)
				} else {
					rest := strings.TrimLeftFunc(s, unicode.IsSpace)
					out := make([]string, 0, maxsplit+1)

					for range maxsplit {
						i := strings.IndexFunc(rest, unicode.IsSpace)
						out = append(out, rest[:i])
						rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
					}

					fields = append(out, rest)
				}
			}

			return stringList(fields), nil

		case string:
			if sep == "" {
				return nil, NewError(CategoryValue, "empty separator")
			}

			if maxsplit < 0 {
				return stringList(strings.Split(s, sep)), nil
			}

			if !fromRight {
				return stringList(strings.SplitN(s, sep, int(maxsplit)+1)), nil
			}

			var parts []string

			for range maxsplit {
				i := strings.LastIndex(s, sep)
				if i < 0 {
					break
				}

				parts = append(parts, s[i+len(sep):])
				s = s[:i]
			}

			parts = append(parts, s)
			slices.Reverse(parts)

			return stringList(parts), nil

		default:
			return nil, Errorf(CategoryType, "must be str or None, not %s", typeName(sep))
		}
	}
}

func stringList(ss []string) *List {
	items := make([]any, len(ss))
	for i, s := range ss {
		items[i] = s
	}

	return NewList(items...)
}

func titleCase(s string) string {
	var b strings.Builder

	prev := false

	for _, r := range s {
		if unicode.IsLetter(r) {
			if prev {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}

			prev = true

			continue
		}

		prev = false

		b.WriteRune(r)
	}

	return b.String()
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}

	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		}

		return r
	}, s)
}

// seqIndexOf implements index for lists and tuples.
func seqIndexOf(name string, items func(any) []any) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var v any
		if err := a.Unpack(name, "value", &v); err != nil {
			return nil, err
		}

		if i := slices.IndexFunc(items(recv), func(it any) bool { return equal(it, v) }); i >= 0 {
			return int64(i), nil
		}

		return nil, Errorf(CategoryValue, "%s is not in %s", repr(v), typeName(recv))
	}
}

func seqCount(name string, items func(any) []any) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var v any
		if err := a.Unpack(name, "value", &v); err != nil {
			return nil, err
		}

		var n int64

		for _, it := range items(recv) {
			if equal(it, v) {
				n++
			}
		}

		return n, nil
	}
}

func listItems(recv any) []any  { return recv.(*List).Snapshot() }
func tupleItems(recv any) []any { return recv.(*Tuple).Items }

var tupleMethods = map[string]method{
	"index": seqIndexOf("index", tupleItems),
	"count": seqCount("count", tupleItems),
}

var listMethods map[string]method

func init() {
	listMethods = map[string]method{
		"index": seqIndexOf("index", listItems),
		"count": seqCount("count", listItems),
		"append": func(_ context.Context, recv any, a Args) (any, error) {
			var v any
			if err := a.Unpack("append", "object", &v); err != nil {
				return nil, err
			}

			return nil, recv.(*List).update(func(items []any) ([]any, error) {
				if len(items) >= maxSequence {
					return nil, NewError(CategoryValue, "list is too large")
				}

				return append(items, v), nil
			})
		},
		"extend": func(_ context.Context, recv any, a Args) (any, error) {
			var v any
			if err := a.Unpack("extend", "iterable", &v); err != nil {
				return nil, err
			}

			_, err := inplace(lang.OpAdd, recv, v)

			return nil, err
		},
		"insert": func(_ context.Context, recv any, a Args) (any, error) {
			var (
				i int64
				v any
			)

			if err := a.Unpack("insert", "index", &i, "object", &v); err != nil {
				return nil, err
			}

			return nil, recv.(*List).update(func(items []any) ([]any, error) {
				n := int64(len(items))

				j := i
				if j < 0 {
					j = max(j+n, 0)
				}

				return slices.Insert(items, int(min(j, n)), v), nil
			})
		},
		"pop": func(_ context.Context, recv any, a Args) (any, error) {
			i := int64(-1)
			if err := a.Unpack("pop", "index?", &i); err != nil {
				return nil, err
			}

			var v any

			err := recv.(*List).update(func(items []any) ([]any, error) {
				if len(items) == 0 {
					return nil, NewError(CategoryIndex, "pop from empty list")
				}

				j, err := normalizeIndex(i, int64(len(items)), "pop")
				if err != nil {
					return nil, err
				}

				v = items[j]

				return slices.Delete(items, int(j), int(j)+1), nil
			})

			return v, err
		},
		"remove": func(_ context.Context, recv any, a Args) (any, error) {
			var v any
			if err := a.Unpack("remove", "value", &v); err != nil {
				return nil, err
			}

			l := recv.(*List)

			i := slices.IndexFunc(l.Snapshot(), func(it any) bool { return equal(it, v) })
			if i < 0 {
				return nil, NewError(CategoryValue, "list.remove(x): x not in list")
			}

			return nil, l.update(func(items []any) ([]any, error) {
				if i >= len(items) {
					return items, nil
				}

				return slices.Delete(items, i, i+1), nil
			})
		},
		"reverse": noArgs("reverse", func(recv any) (any, error) {
			return nil, recv.(*List).update(func(items []any) ([]any, error) {
				slices.Reverse(items)

				return items, nil
			})
		}),
		"clear": noArgs("clear", func(recv any) (any, error) {
			return nil, recv.(*List).update(func([]any) ([]any, error) { return nil, nil })
		}),
		"copy": noArgs("copy", func(recv any) (any, error) {
			return NewList(recv.(*List).Snapshot()...), nil
		}),
		"sort": func(_ context.Context, recv any, a Args) (any, error) {
			var (
				key     any
				reverse bool
			)

			if len(a.Positional) > 0 {
				return nil, NewError(CategoryType, "sort() takes no positional arguments")
			}

			if err := a.Unpack("sort", "key?", &key, "reverse?", &reverse); err != nil {
				return nil, err
			}

			l := recv.(*List)
			items := l.Snapshot()

			if err := sortWithKey(a, items, key, reverse); err != nil {
				return nil, err
			}

			return nil, l.update(func([]any) ([]any, error) { return items, nil })
		},
	}
}

// sortWithKey sorts items in place, calling key on each item when it is
// not None.
func sortWithKey(a Args, items []any, key any, reverse bool) error {
	keys := items

	if key != nil {
		keys = make([]any, len(items))

		for i, it := range items {
			k, err := a.th.call(key, []any{it}, nil)
			if err != nil {
				return err
			}

			keys[i] = k
		}
	}

	return sortValues(items, keys, reverse)
}

var dictMethods = map[string]method{
	"keys": noArgs("keys", func(recv any) (any, error) {
		return NewList(recv.(*Dict).Keys()...), nil
	}),
	"values": noArgs("values", func(recv any) (any, error) {
		return NewList(recv.(*Dict).Values()...), nil
	}),
	"items": noArgs("items", func(recv any) (any, error) {
		return NewList(recv.(*Dict).Items()...), nil
	}),
	"clear": noArgs("clear", func(recv any) (any, error) {
		recv.(*Dict).Clear()

		return nil, nil
	}),
	"copy": noArgs("copy", func(recv any) (any, error) {
		return recv.(*Dict).copy(), nil
	}),
	"get": func(_ context.Context, recv any, a Args) (any, error) {
		var key, def any
		if err := a.Unpack("get", "key", &key, "default?", &def); err != nil {
			return nil, err
		}

		v, ok, err := recv.(*Dict).Get(key)
		if err != nil || !ok {
			return def, err
		}

		return v, nil
	},
	"setdefault": func(_ context.Context, recv any, a Args) (any, error) {
		var key, def any
		if err := a.Unpack("setdefault", "key", &key, "default?", &def); err != nil {
			return nil, err
		}

		d := recv.(*Dict)

		v, ok, err := d.Get(key)
		if err != nil || ok {
			return v, err
		}

		return def, d.Set(key, def)
	},
	"pop": func(_ context.Context, recv any, a Args) (any, error) {
		var key, def any
		if err := a.Unpack("pop", "key", &key, "default?", &def); err != nil {
			return nil, err
		}

		d := recv.(*Dict)

		v, ok, err := d.Get(key)
		if err != nil {
			return nil, err
		}

		if !ok {
			if _, given := a.Keyword("default"); given || len(a.Positional) > 1 {
				return def, nil
			}

			return nil, &Error{Category: CategoryKey, args: []any{key}, msg: repr(key)}
		}

		_, err = d.Delete(key)

		return v, err
	},
	"popitem": noArgs("popitem", func(recv any) (any, error) {
		last, ok := recv.(*Dict).popLast()
		if !ok {
			return nil, NewError(CategoryKey, "popitem(): dictionary is empty")
		}

		return NewTuple(last.key, last.value), nil
	}),
	"update": func(_ context.Context, recv any, a Args) (any, error) {
		var other any
		if len(a.Positional) > 1 {
			return nil, NewError(CategoryType, "update expected at most 1 argument")
		}

		if len(a.Positional) == 1 {
			other = a.Positional[0]
		}

		d := recv.(*Dict)

		if err := mergeInto(d, other); err != nil {
			return nil, err
		}

		for k, v := range a.Keywords {
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}

		return nil, nil
	},
}

// mergeInto adds the entries of a dict or an iterable of pairs to d.
func mergeInto(d *Dict, other any) error {
	switch o := other.(type) {
	case nil:
		return nil
	case *Dict:
		for _, e := range o.snapshot() {
			if err := d.Set(e.key, e.value); err != nil {
				return err
			}
		}

		return nil
	}

	items, err := elements(other)
	if err != nil {
		return err
	}

	for i, it := range items {
		pair, err := elements(it)
		if err != nil || len(pair) != 2 {
			return Errorf(CategoryValue, "dictionary update sequence element #%d has wrong length", i)
		}

		if err := d.Set(pair[0], pair[1]); err != nil {
			return err
		}
	}

	return nil
}

// setBinary adapts a set operation taking one iterable.
func setBinary(name string, fn func(s, other *Set) (any, error)) method {
	return func(_ context.Context, recv any, a Args) (any, error) {
		var items []any
		if err := a.Unpack(name, "other", &items); err != nil {
			return nil, err
		}

		other, err := NewSet(items...)
		if err != nil {
			return nil, err
		}

		return fn(recv.(*Set), other)
	}
}

var setMethods = map[string]method{
	"add": func(_ context.Context, recv any, a Args) (any, error) {
		var v any
		if err := a.Unpack("add", "elem", &v); err != nil {
			return nil, err
		}

		return nil, recv.(*Set).Add(v)
	},
	"remove": func(_ context.Context, recv any, a Args) (any, error) {
		var v any
		if err := a.Unpack("remove", "elem", &v); err != nil {
			return nil, err
		}

		ok, err := recv.(*Set).Remove(v)
		if err == nil && !ok {
			err = &Error{Category: CategoryKey, args: []any{v}, msg: repr(v)}
		}

		return nil, err
	},
	"discard": func(_ context.Context, recv any, a Args) (any, error) {
		var v any
		if err := a.Unpack("discard", "elem", &v); err != nil {
			return nil, err
		}

		_, err := recv.(*Set).Remove(v)

		return nil, err
	},
	"pop": noArgs("pop", func(recv any) (any, error) {
		first, ok := recv.(*Set).d.popFirst()
		if !ok {
			return nil, NewError(CategoryKey, "pop from an empty set")
		}

		return first.key, nil
	}),
	"clear": noArgs("clear", func(recv any) (any, error) {
		recv.(*Set).d.Clear()

		return nil, nil
	}),
	"copy": noArgs("copy", func(recv any) (any, error) {
		return NewSet(recv.(*Set).Items()...)
	}),
	"union": setBinary("union", func(s, o *Set) (any, error) {
		r, _ := setOp(lang.OpBitOr, s, o)

		return r, nil
	}),
	"intersection": setBinary("intersection", func(s, o *Set) (any, error) {
		r, _ := setOp(lang.OpBitAnd, s, o)

		return r, nil
	}),
	"difference": setBinary("difference", func(s, o *Set) (any, error) {
		r, _ := setOp(lang.OpSub, s, o)

		return r, nil
	}),
	"symmetric_difference": setBinary("symmetric_difference", func(s, o *Set) (any, error) {
		r, _ := setOp(lang.OpBitXor, s, o)

		return r, nil
	}),
	"update": setBinary("update", func(s, o *Set) (any, error) {
		for _, v := range o.Items() {
			if err := s.Add(v); err != nil {
				return nil, err
			}
		}

		return nil, nil
	}),
	"issubset": setBinary("issubset", func(s, o *Set) (any, error) {
		for _, v := range s.Items() {
			if ok, _ := o.Has(v); !ok {
				return false, nil
			}
		}

		return true, nil
	}),
	"issuperset": setBinary("issuperset", func(s, o *Set) (any, error) {
		for _, v := range o.Items() {
			if ok, _ := s.Has(v); !ok {
				return false, nil
			}
		}

		return true, nil
	}),
}
