package lang

import (
	"errors"
	"testing"
)

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		src       string
		construct string
	}{
		{"import os", "Import"},
		{"from os import path", "ImportFrom"},
		{"class A:\n  pass\n", "ClassDef"},
		{"f = lambda x: x", "Lambda"},
		{"def g():\n  yield 1\n", "Yield"},
		{"def g():\n  x = yield\n", "Yield"},
		{"x = await y", "Await"},
		{"s = sum(x for x in y)", "GeneratorExp"},
		{"g = (x for x in y)", "GeneratorExp"},
		{"def f():\n  global g\n", "Global"},
		{"def f():\n  nonlocal g\n", "Nonlocal"},
		{"with open('f') as fh:\n  pass\n", "With"},
		{"@dec\ndef f():\n  pass\n", "Decorated"},
		{"eval('1')", ConstructDynamicEval},
		{"x = [exec('1')]", ConstructDynamicEval},
		{"getattr(o, 'a')", ConstructDynamicEval},
		{"__import__('os')", ConstructDynamicEval},
		{"x = ().__class__", ConstructDunderAttribute},
		{"x.__dict__['a'] = 1", ConstructDunderAttribute},
		{"def helper_():\n  pass\n", ConstructReservedName},
	}

	for _, tt := range tests {
		_, err := Parse(t.Context(), "restricted", tt.src)

		var re *RestrictionError
		if !errors.As(err, &re) {
			t.Errorf("Parse(%q): got %v, want *RestrictionError", tt.src, err)

			continue
		}

		if re.Construct != tt.construct {
			t.Errorf("Parse(%q): construct %q, want %q", tt.src, re.Construct, tt.construct)
		}

		if re.Script != "restricted" || !re.Pos.IsValid() {
			t.Errorf("Parse(%q): missing location %+v", tt.src, re)
		}
	}
}

func TestValidateAccepts(t *testing.T) {
	src := `
def fib(n, memo={}):
    """Memoized Fibonacci."""
    if n in memo:
        return memo[n]
    if n < 2:
        result = n
    else:
        result = fib(n - 1) + fib(n - 2)
    memo[n] = result
    return result

total = 0
for i in range(10):
    if i % 2 == 0:
        continue
    total += fib(i)

squares = {k: k * k for k in range(5) if k}
pairs = [(a, b) for a in 'xy' for b in [1, 2]]
first, *rest = [1, 2, 3]
label = 'odd' if total % 2 else 'even'
try:
    d = {}
    d['missing']
except KeyError as err:
    print('caught', err)
finally:
    del d
assert total > 0, 'total should be positive'
words = ' '.join(['a', 'b']).upper()
`

	if _, err := Parse(t.Context(), "ok", src); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestValidateDirect(t *testing.T) {
	s, err := Parse(t.Context(), "raw", "import os\n", WithValidation(false))
	if err != nil {
		t.Fatalf("Parse without validation: %v", err)
	}

	if err := Validate(s.Module); err == nil {
		t.Error("Validate accepted an import")
	}
}

func TestAllowed(t *testing.T) {
	for _, k := range []Kind{KindAssign, KindCall, KindTry, KindComprehension} {
		if !Allowed(k) {
			t.Errorf("%v should be allowed", k)
		}
	}

	for _, k := range []Kind{KindImport, KindLambda, KindClassDef, KindGeneratorExp} {
		if Allowed(k) {
			t.Errorf("%v should be rejected", k)
		}
	}
}

func TestInspectOrder(t *testing.T) {
	mod := mustParse(t, "x = a + b\n")

	var names []string

	Inspect(mod, func(n Node) bool {
		if id, ok := n.(*Name); ok {
			names = append(names, id.ID)
		}

		return true
	})

	if len(names) != 3 || names[0] != "x" || names[1] != "a" || names[2] != "b" {
		t.Errorf("visit order %v", names)
	}
}
