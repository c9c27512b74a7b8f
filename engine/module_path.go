package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardnew/mung"
)

// The path module manipulates path strings and PATH-like lists. It never
// touches the filesystem.
func pathModule() map[string]any {
	return map[string]any{
		"sep":     string(filepath.Separator),
		"listsep": string(os.PathListSeparator),

		"join":     Func(pathJoin),
		"clean":    pathString("clean", filepath.Clean),
		"base":     pathString("base", filepath.Base),
		"dir":      pathString("dir", filepath.Dir),
		"ext":      pathString("ext", filepath.Ext),
		"isabs":    Func(pathIsAbs),
		"rel":      Func(pathRel),
		"split":    Func(pathSplit),
		"prefix":   Func(pathPrefix),
		"prefixif": Func(pathPrefixIf),
	}
}

func pathString(name string, fn func(string) string) Func {
	return func(_ context.Context, a Args) (any, error) {
		var p string
		if err := a.Unpack(name, "path", &p); err != nil {
			return nil, err
		}

		return fn(p), nil
	}
}

// stringArgs requires every argument to be a str.
func stringArgs(name string, args []any) ([]string, error) {
	out := make([]string, len(args))

	for i, v := range args {
		s, ok := v.(string)
		if !ok {
			return nil, Errorf(CategoryType, "%s() argument %d must be str, not %s", name, i+1, typeName(v))
		}

		out[i] = s
	}

	return out, nil
}

func pathJoin(_ context.Context, a Args) (any, error) {
	elems, err := stringArgs("join", a.Positional)
	if err != nil {
		return nil, err
	}

	return filepath.Join(elems...), nil
}

func pathIsAbs(_ context.Context, a Args) (any, error) {
	var p string
	if err := a.Unpack("isabs", "path", &p); err != nil {
		return nil, err
	}

	return filepath.IsAbs(p), nil
}

func pathRel(_ context.Context, a Args) (any, error) {
	var base, target string
	if err := a.Unpack("rel", "base", &base, "target", &target); err != nil {
		return nil, err
	}

	p, err := filepath.Rel(base, target)
	if err != nil {
		return nil, ErrValue.Wrap(err)
	}

	return p, nil
}

// pathSplit splits a PATH-like list into its non-empty elements.
func pathSplit(_ context.Context, a Args) (any, error) {
	var list string
	if err := a.Unpack("split", "list", &list); err != nil {
		return nil, err
	}

	var out []string

	for p := range strings.SplitSeq(list, string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}

	return stringList(out), nil
}

// pathPrefix prepends items to a PATH-like list, removing duplicates.
func pathPrefix(_ context.Context, a Args) (any, error) {
	if a.Len() < 1 {
		return nil, NewError(CategoryType, "prefix() missing required argument 'list'")
	}

	all, err := stringArgs("prefix", a.Positional)
	if err != nil {
		return nil, err
	}

	return mung.Make(
		mung.WithSubjectItems(all[0]),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(all[1:]...),
	).String(), nil
}

// pathPrefixIf is pathPrefix keeping only elements for which the script
// predicate returns true.
func pathPrefixIf(_ context.Context, a Args) (any, error) {
	if a.Len() < 2 {
		return nil, NewError(CategoryType, "prefixif() missing required arguments 'list' and 'predicate'")
	}

	list, ok := a.Positional[0].(string)
	if !ok {
		return nil, Errorf(CategoryType, "prefixif() argument 1 must be str, not %s", typeName(a.Positional[0]))
	}

	pred := a.Positional[1]
	if !callable(pred) {
		return nil, Errorf(CategoryType, "'%s' object is not callable", typeName(pred))
	}

	items, err := stringArgs("prefixif", a.Positional[2:])
	if err != nil {
		return nil, err
	}

	var failed error

	keep := func(p string) bool {
		if failed != nil {
			return false
		}

		v, err := a.Call(pred, p)
		if err != nil {
			failed = err

			return false
		}

		return truthy(v)
	}

	out := mung.Make(
		mung.WithSubjectItems(list),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(items...),
		mung.WithFilter(keep),
	).String()

	if failed != nil {
		return nil, failed
	}

	return out, nil
}
