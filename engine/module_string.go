package engine

import (
	"context"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

func stringModule() map[string]any {
	return map[string]any{
		"ascii_letters":   "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		"ascii_lowercase": "abcdefghijklmnopqrstuvwxyz",
		"ascii_uppercase": "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		"digits":          "0123456789",
		"hexdigits":       "0123456789abcdefABCDEF",
		"octdigits":       "01234567",
		"punctuation":     "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~",
		"whitespace":      " \t\n\r\x0b\x0c",

		"capwords":   Func(stringCapwords),
		"substitute": Func(stringSubstitute),
		"reverse":    Func(stringReverse),
		"fuzzy":      Func(stringFuzzy),
	}
}

func stringCapwords(_ context.Context, a Args) (any, error) {
	var s string
	if err := a.Unpack("capwords", "s", &s); err != nil {
		return nil, err
	}

	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}

	return strings.Join(words, " "), nil
}

// stringSubstitute replaces $name and ${name} with values from mapping.
// "$$" is a literal dollar sign.
func stringSubstitute(_ context.Context, a Args) (any, error) {
	var (
		tmpl    string
		mapping *Dict
	)

	if err := a.Unpack("substitute", "template", &tmpl, "mapping", &mapping); err != nil {
		return nil, err
	}

	var (
		b   strings.Builder
		err error
	)

	isIdent := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

	lookup := func(name string) string {
		v, ok, e := mapping.Get(name)
		switch {
		case e != nil:
			err = e
		case !ok:
			err = Errorf(CategoryKey, "%s", quote(name))
		}

		return str(v)
	}

	for i := 0; i < len(tmpl) && err == nil; {
		c := tmpl[i]
		if c != '$' {
			b.WriteByte(c)
			i++

			continue
		}

		rest := tmpl[i+1:]

		switch {
		case strings.HasPrefix(rest, "$"):
			b.WriteByte('$')
			i += 2
		case strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, NewError(CategoryValue, "unterminated placeholder in template")
			}

			b.WriteString(lookup(rest[1:end]))
			i += end + 2
		default:
			n := strings.IndexFunc(rest, func(r rune) bool { return !isIdent(r) })
			if n < 0 {
				n = len(rest)
			}

			if n == 0 {
				return nil, Errorf(CategoryValue, "invalid placeholder in template at offset %d", i)
			}

			b.WriteString(lookup(rest[:n]))
			i += n + 1
		}
	}

	if err != nil {
		return nil, err
	}

	return b.String(), nil
}

func stringReverse(_ context.Context, a Args) (any, error) {
	var s string
	if err := a.Unpack("reverse", "s", &s); err != nil {
		return nil, err
	}

	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}

	return string(r), nil
}

// stringFuzzy returns the candidates matching pattern, best match first.
func stringFuzzy(_ context.Context, a Args) (any, error) {
	var (
		pattern string
		items   []any
	)

	if err := a.Unpack("fuzzy", "pattern", &pattern, "candidates", &items); err != nil {
		return nil, err
	}

	candidates := make([]string, len(items))

	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, Errorf(CategoryType, "fuzzy() candidates must be str, not %s", typeName(it))
		}

		candidates[i] = s
	}

	matches := fuzzy.Find(pattern, candidates)

	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}

	return NewList(out...), nil
}
