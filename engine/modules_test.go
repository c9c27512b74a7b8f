package engine

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestInstall(t *testing.T) {
	e, _ := newTestEngine(t)

	ok, err := e.Install("math")
	if !ok || err != nil {
		t.Fatalf("Install(math) = %v, %v", ok, err)
	}

	ok, err = e.Install("math")
	if !ok || err != nil {
		t.Errorf("second Install(math) = %v, %v; want true, nil", ok, err)
	}

	if ok, err := e.Install("nonesuch"); ok || err != nil {
		t.Errorf("Install(nonesuch) = %v, %v", ok, err)
	}

	if got := e.ListModules(); !slices.Equal(got, []string{"math"}) {
		t.Errorf("ListModules() = %v", got)
	}

	got := mustEval(t, e, "(install_('json'), install_('json'), install_('nonesuch'), listModules_())")
	if repr(got) != "(True, True, False, ['json', 'math'])" {
		t.Errorf("got %s", repr(got))
	}

	if err := e.Run(t.Context(), "math_pi_ = 3"); !errors.Is(err, ErrCollision) {
		t.Errorf("rebinding a module export: %v", err)
	}
}

func TestInstallCollision(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.SetVar("random_seed_", 1); err != nil {
		t.Fatal(err)
	}

	ok, err := e.Install("random")
	if ok || !errors.Is(err, ErrExtensionCollision) {
		t.Fatalf("got %v, %v; want ExtensionCollisionError", ok, err)
	}

	if e.IsDefined("random_random_") || slices.Contains(e.ListModules(), "random") {
		t.Error("failed install bound exports")
	}
}

func TestWithModules(t *testing.T) {
	e, _ := newTestEngine(t, WithModules("math", "string"))

	if got := e.ListModules(); !slices.Equal(got, []string{"math", "string"}) {
		t.Errorf("ListModules() = %v", got)
	}

	if _, err := New(WithModules("bogus")); !errors.Is(err, ErrValue) {
		t.Errorf("New(bogus) = %v", err)
	}

	if got := Modules(); len(got) != 8 {
		t.Errorf("Modules() = %v", got)
	}
}

func TestModuleFunctions(t *testing.T) {
	tests := []struct {
		module string
		src    string
		want   string
	}{
		{"math", "math_sqrt_(16)", "4.0"},
		{"math", "(math_floor_(2.7), math_ceil_(2.1), math_trunc_(-2.5))", "(2, 3, -2)"},
		{"math", "math_gcd_(12, 18, 30)", "6"},
		{"math", "math_factorial_(10)", "3628800"},
		{"math", "math_log_(8, 2)", "3.0"},
		{"math", "math_isclose_(0.1 + 0.2, 0.3)", "True"},
		{"math", "round(math_pi_, 4)", "3.1416"},
		{"string", "string_capwords_('hello  big world')", "'Hello Big World'"},
		{"string", "string_substitute_('$who owes ${amt}$$', {'who': 'ann', 'amt': 5})", "'ann owes 5$'"},
		{"string", "string_reverse_('abc')", "'cba'"},
		{"string", "string_fuzzy_('abc', ['xyz', 'aXbXc', 'abc'])[0]", "'abc'"},
		{"string", "len(string_digits_)", "10"},
		{"time", "time_strftime_('%Y-%m-%d', 0) in ('1970-01-01', '1969-12-31')", "True"},
		{"time", "time_strptime_('2024-03-01', '%Y-%m-%d') > 0", "True"},
		{"time", "time_monotonic_() >= 0", "True"},
		{"time", "time_sleep_(0)", "None"},
		{"json", "json_dumps_({'b': 1, 'a': [True, None, 1.5]})", `'{"b":1,"a":[true,null,1.5]}'`},
		{"json", "json_dumps_({'b': 1, 'a': 2}, sort_keys=True)", `'{"a":2,"b":1}'`},
		{"json", "json_dumps_([1], indent=2)", "'[\\n  1\\n]'"},
		{"json", "json_loads_('{\"z\": 1, \"a\": [2.5, \"s\", false]}')", "{'z': 1, 'a': [2.5, 's', False]}"},
		{"yaml", "yaml_load_('b: 1\\na: [x, 2]\\n')", "{'b': 1, 'a': ['x', 2]}"},
		{"yaml", "yaml_load_(yaml_dump_({'k': [1, 2], 'n': None}))", "{'k': [1, 2], 'n': None}"},
		{"path", "path_join_('a', 'b', 'c.txt')", "'a/b/c.txt'"},
		{"path", "(path_base_('/x/y.go'), path_ext_('y.go'), path_dir_('/x/y.go'))", "('y.go', '.go', '/x')"},
		{"path", "path_split_('/a::/b')", "['/a', '/b']"},
		{"expr", "expr_eval_('x * 2 + len(items)', {'x': 20, 'items': [1, 2]})", "42"},
		{"expr", "expr_eval_('name startsWith \"ca\"', {'name': 'cask'})", "True"},
		{"expr", "expr_check_('1 +') != 'OK'", "True"},
		{"random", "random_seed_(7)\na = [random_randint_(1, 6) for _ in range(20)]\nall([1 <= v <= 6 for v in a])", "True"},
		{"random", "random_choice_(['only'])", "'only'"},
		{"random", "sorted(random_sample_([3, 1, 2], 3))", "[1, 2, 3]"},
	}

	for _, tt := range tests {
		t.Run(tt.module+"/"+tt.src, func(t *testing.T) {
			e, _ := newTestEngine(t, WithModules(tt.module))

			if got := repr(mustEval(t, e, tt.src)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestModuleErrors(t *testing.T) {
	tests := []struct {
		src    string
		target error
	}{
		{"math_sqrt_(-1)", ErrValue},
		{"math_log_(0)", ErrValue},
		{"math_factorial_(-1)", ErrValue},
		{"math_floor_(math_inf_)", NewError(CategoryArithmetic, "")},
		{"json_loads_('{')", ErrValue},
		{"json_loads_('[1] 2')", ErrValue},
		{"json_dumps_(math_nan_)", ErrValue},
		{"json_dumps_({(1, 2): 3})", ErrType},
		{"json_dumps_(print)", ErrType},
		{"string_substitute_('$missing', {})", ErrKey},
		{"random_choice_([])", ErrIndex},
		{"random_randint_(5, 1)", ErrValue},
		{"expr_eval_('1 +')", ErrValue},
	}

	e, _ := newTestEngine(t, WithModules(Modules()...))

	for _, tt := range tests {
		_, err := e.Eval(t.Context(), "test", tt.src)
		if !errors.Is(err, tt.target) {
			t.Errorf("%s: got %v, want %v", tt.src, err, tt.target)
		}
	}
}

func TestPathPrefix(t *testing.T) {
	e, _ := newTestEngine(t, WithModules("path"))

	got := mustEval(t, e, "path_prefix_('/usr/bin:/bin', '/opt/bin')")

	s, ok := got.(string)
	if !ok || !strings.HasPrefix(s, "/opt/bin") || !strings.Contains(s, "/usr/bin") {
		t.Errorf("path_prefix_ = %v", got)
	}

	got = mustEval(t, e, `
def keep(p):
    return not p.startswith('/tmp')
path_prefixif_('/usr/bin:/tmp/x', keep, '/opt/bin')
`)

	if s, _ := got.(string); !strings.Contains(s, "/opt/bin") {
		t.Errorf("path_prefixif_ = %v", got)
	}

	if err := e.Run(t.Context(), "path_prefixif_('/a', 5, '/b')"); !errors.Is(err, ErrType) {
		t.Errorf("non-callable predicate: %v", err)
	}
}

func TestRandomSeedIsPerEngine(t *testing.T) {
	draw := func() string {
		e, _ := newTestEngine(t, WithModules("random"))

		return repr(mustEval(t, e, "random_seed_(42)\n[random_random_() for _ in range(3)]"))
	}

	if a, b := draw(), draw(); a != b {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}
