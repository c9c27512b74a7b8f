package engine

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer

	e, err := New(append([]Option{WithOutput(&out)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	return e, &out
}

func mustEval(t *testing.T, e *Engine, src string) any {
	t.Helper()

	v, err := e.Eval(t.Context(), "test", src)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}

	return v
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "1 + 2 * 3", "7"},
		{"floor division", "(7 // 2, 7 % 3, -7 // 2, -7 % 2)", "(3, 1, -4, 1)"},
		{"true division", "7 / 2", "3.5"},
		{"power", "2 ** 10", "1024"},
		{"string concat", "'ab' + 'cd'", "'abcd'"},
		{"string repeat", "'ab' * 3", "'ababab'"},
		{"comparison chain", "1 < 2 < 3", "True"},
		{"comparison chain false", "1 < 3 < 2", "False"},
		{"boolean short circuit", "0 or 'x'", "'x'"},
		{"conditional", "'yes' if 3 > 2 else 'no'", "'yes'"},
		{"list index", "[1, 2, 3][-1]", "3"},
		{"slice", "[0, 1, 2, 3, 4][1:4:2]", "[1, 3]"},
		{"string slice", "'hello'[::-1]", "'olleh'"},
		{"membership", "2 in {1, 2}", "True"},
		{"dict literal", "{'a': 1, 'b': 2}['b']", "2"},
		{"list comprehension", "[x * x for x in range(5) if x % 2]", "[1, 9]"},
		{"dict comprehension", "{k: v for k, v in [('a', 1), ('b', 2)]}", "{'a': 1, 'b': 2}"},
		{"set comprehension", "len({x % 3 for x in range(10)})", "3"},
		{"nested comprehension", "[(a, b) for a in 'xy' for b in [1, 2]]",
			"[('x', 1), ('x', 2), ('y', 1), ('y', 2)]"},
		{"starred unpack", "first, *rest = [1, 2, 3]\nrest", "[2, 3]"},
		{"augmented", "x = 5\nx -= 2\nx *= 3\nx", "9"},
		{"list extend in place", "a = [1]\nb = a\na += [2]\nb", "[1, 2]"},
		{"while else", "i = 0\nwhile i < 3:\n  i += 1\nelse:\n  i = 10\ni", "10"},
		{"for break", "for i in range(10):\n  if i == 4:\n    break\ni", "4"},
		{"del item", "d = {'a': 1, 'b': 2}\ndel d['a']\nd", "{'b': 2}"},
		{"builtins", "(len('abc'), abs(-2), min(3, 1, 2), max([4, 5]), sum(range(5)))", "(3, 2, 1, 5, 10)"},
		{"sorted key", "sorted(['bb', 'a', 'ccc'], key=len, reverse=True)", "['ccc', 'bb', 'a']"},
		{"enumerate zip", "list(zip([1, 2], 'ab'))", "[(1, 'a'), (2, 'b')]"},
		{"conversions", "(int('0x1f', 16), int(3.9), float('1.5'), str(12), bool([]))", "(31, 3, 1.5, '12', False)"},
		{"round", "(round(2.5), round(3.14159, 2))", "(2, 3.14)"},
		{"radix", "(hex(255), oct(8), bin(5))", "('0xff', '0o10', '0b101')"},
		{"isinstance", "isinstance(1, (str, int))", "True"},
		{"type", "type([]) == list", "True"},
		{"string methods", "'a,b,,c'.split(',')", "['a', 'b', '', 'c']"},
		{"join upper", "'-'.join(['x', 'y']).upper()", "'X-Y'"},
		{"dict methods", "d = {'a': 1}\nd.setdefault('b', 2)\nsorted(d.items())", "[('a', 1), ('b', 2)]"},
		{"list methods", "l = [3, 1, 2]\nl.sort()\nl.append(4)\nl.pop(0)\nl", "[2, 3, 4]"},
		{"set methods", "sorted({1, 2}.union({3}))", "[1, 2, 3]"},
		{"percent format", "'%s=%05.1f' % ('x', 3.14159)", "'x=003.1'"},
		{"str format", "'{0}-{name}'.format(1, name='n')", "'1-n'"},
		{"format spec", "format(1234567, ',')", "'1,234,567'"},
		{"fstring-like format", "'{:>6}'.format('ab')", "'    ab'"},
		{"divmod", "divmod(-7, 2)", "(-4, 1)"},
		{"pow mod", "pow(3, 4, 5)", "1"},
		{"chr ord", "(chr(65), ord('a'))", "('A', 97)"},
		{"map filter", "list(map(str, filter(bool, [0, 1, 2])))", "['1', '2']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)

			if got := repr(mustEval(t, e, tt.src)); got != tt.want {
				t.Errorf("Eval(%q) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestProcedures(t *testing.T) {
	e, _ := newTestEngine(t)

	mustEval(t, e, `
def add(a, b=10, *rest, scale=1, **opts):
    total = (a + b + sum(rest)) * scale
    if opts.get('negate'):
        total = -total
    return total

def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)
`)

	tests := []struct {
		src  string
		want string
	}{
		{"add(1)", "11"},
		{"add(1, 2)", "3"},
		{"add(1, 2, 3, 4)", "10"},
		{"add(1, 2, scale=2)", "6"},
		{"add(b=1, a=2, negate=True)", "-3"},
		{"add(*[1, 2], **{'scale': 3})", "9"},
		{"fib(15)", "610"},
	}

	for _, tt := range tests {
		if got := repr(mustEval(t, e, tt.src)); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}

	errTests := []struct {
		src string
		msg string
	}{
		{"add()", "missing 1 required positional argument: 'a'"},
		{"add(1, a=2)", "got multiple values for argument 'a'"},
		{"fib(1, 2)", "takes 1 positional argument but 2 were given"},
		{"fib(m=1)", "unexpected keyword argument 'm'"},
	}

	for _, tt := range errTests {
		_, err := e.Eval(t.Context(), "test", tt.src)
		if !errors.Is(err, ErrType) || !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("%s: got %v, want TypeError containing %q", tt.src, err, tt.msg)
		}
	}

	if got := e.ListDefs(); strings.Join(got, ",") != "add,fib" {
		t.Errorf("ListDefs() = %v", got)
	}
}

func TestDefaultsEvaluatedAtDefinition(t *testing.T) {
	e, _ := newTestEngine(t)

	got := mustEval(t, e, `
n = 1
def f(x=n):
    return x
n = 2
f()
`)

	if got != int64(1) {
		t.Errorf("f() = %v, want 1", got)
	}
}

func TestPrint(t *testing.T) {
	var errOut bytes.Buffer

	e, out := newTestEngine(t, WithErrOutput(&errOut))

	mustEval(t, e, `
print('a', 1, [2])
print('b', 'c', sep='|', end='.\n', prefix=None)
print('d', prefix='')
print('warn', stderr=True)
`)

	want := "--> a 1 [2]\nb|c.\nd\n"
	if out.String() != want {
		t.Errorf("stdout = %q, want %q", out.String(), want)
	}

	if errOut.String() != "--> warn\n" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestExceptions(t *testing.T) {
	e, out := newTestEngine(t)

	mustEval(t, e, `
log = []
try:
    {}['missing']
except LookupError as err:
    log.append(type(err) == KeyError)
    log.append(str(err))
else:
    log.append('else')
finally:
    log.append('finally')

try:
    1 / 0
except (ValueError, ZeroDivisionError):
    log.append('zero')

try:
    try:
        raise ValueError('inner')
    except ValueError:
        raise
except Exception as err:
    log.append(err.args[0])

def check(x):
    assert x > 0, 'must be positive'
    return x

try:
    check(-1)
except AssertionError as err:
    log.append(str(err))

try:
    raise RuntimeError('outer') from KeyError('cause')
except RuntimeError as err:
    log.append(repr(err))

print(log)
`)

	want := `--> [True, "'missing'", 'finally', 'zero', 'inner', 'must be positive', "RuntimeError('outer')"]` + "\n"
	if out.String() != want {
		t.Errorf("output = %s\nwant     %s", out.String(), want)
	}
}

func TestUncaughtError(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Eval(t.Context(), "boom", "x = 1\n\ny = x + 'a'\n")

	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("got %T %v, want *Error", err, err)
	}

	if ee.Category != CategoryType || ee.Pos.Line != 3 || ee.Script != "boom" {
		t.Errorf("got %v (line %d, script %q)", ee, ee.Pos.Line, ee.Script)
	}

	if v, _ := e.GetSysVar("errline_"); v != int64(3) {
		t.Errorf("errline_ = %v, want 3", v)
	}
}

func TestNameErrorSuggestion(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Eval(t.Context(), "test", "counter = 1\ncountr + 1\n")
	if !errors.Is(err, ErrName) {
		t.Fatalf("got %v, want NameError", err)
	}

	if !strings.Contains(err.Error(), "did you mean 'counter'") {
		t.Errorf("no suggestion in %q", err.Error())
	}
}

func TestRestrictedConstructs(t *testing.T) {
	e, _ := newTestEngine(t)

	for _, src := range []string{
		"import os",
		"from os import path",
		"class A:\n  pass\n",
		"f = lambda x: x",
		"def g():\n  yield 1\n",
		"with open('f') as fh:\n  pass\n",
		"def f():\n  global g\n",
		"s = sum(x for x in y)",
		"eval('1')",
		"x = ().__class__",
		"def helper_():\n  pass\n",
	} {
		err := e.Run(t.Context(), src)
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("Run(%q): got %v, want SyntaxRestrictionError", src, err)
		}
	}

	if got := e.ListDefs(); len(got) != 0 {
		t.Errorf("restricted scripts defined %v", got)
	}
}

func TestNamespaceCollision(t *testing.T) {
	e, _ := newTestEngine(t)

	for _, src := range []string{
		"print = 1",
		"len = 2",
		"install_ = 3",
		"def f(print):\n  pass\n",
		"def f():\n  len = 1\nf()\n",
		"for range in [1]:\n  pass\n",
	} {
		err := e.Run(t.Context(), src)
		if !errors.Is(err, ErrCollision) {
			t.Errorf("Run(%q): got %v, want NamespaceCollisionError", src, err)
		}
	}

	if err := e.SetVar("str", "x"); !errors.Is(err, ErrCollision) {
		t.Errorf("SetVar(str): got %v", err)
	}

	// NamespaceCollisionError is a NameError.
	if got := mustEval(t, e, "try:\n  print = 1\nexcept NameError:\n  r = 'caught'\nr"); got != "caught" {
		t.Errorf("got %v", got)
	}
}

func TestFlatten(t *testing.T) {
	src := `
def f(p):
    inner = p * 2
    return inner
f(21)
`

	t.Run("off", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustEval(t, e, src)

		if _, ok := e.GetVar("inner"); ok {
			t.Error("local leaked into globals")
		}
	})

	t.Run("on", func(t *testing.T) {
		e, _ := newTestEngine(t, WithFlatten(true))
		mustEval(t, e, src)

		v, ok := e.GetVar("inner")
		if !ok || v != int64(42) {
			t.Errorf("inner = %v, %v; want 42 bound globally", v, ok)
		}

		if _, ok := e.GetVar("p"); ok {
			t.Error("parameter bound globally")
		}
	})

	t.Run("parameter writes", func(t *testing.T) {
		e, _ := newTestEngine(t, WithFlatten(true))

		got := mustEval(t, e, `
p = 'global'
def bump(p):
    p = p + 1
    return p
def total(n):
    t = 0
    while n > 0:
        t += n
        n -= 1
    return t
def drop(p):
    del p
    return p
(bump(1), total(4), drop('g'), p)
`)
		if s := Repr(got); s != "(2, 10, 'global', 'global')" {
			t.Errorf("got %s", s)
		}

		if _, ok := e.GetVar("n"); ok {
			t.Error("parameter write leaked into globals")
		}
	})

	t.Run("comprehension scope", func(t *testing.T) {
		e, _ := newTestEngine(t, WithFlatten(true))
		mustEval(t, e, "xs = [i for i in range(3)]")

		if _, ok := e.GetVar("i"); ok {
			t.Error("comprehension variable leaked")
		}
	})
}

func TestSharedCollectionsConcurrentWriters(t *testing.T) {
	e, _ := newTestEngine(t)

	mustEval(t, e, `
d = {}
s = set()
l = []
def fill(lo, hi):
    for k in range(lo, hi):
        d[k] = k
        s.add(k)
        l.append(k)
        l[0] = k
        del d[k]
        s.discard(k)
        l.insert(0, k)
        l.pop(0)
`)

	const (
		writers = 4
		span    = 500
	)

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for w := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := e.Call(t.Context(), "fill", int64(w*span), int64((w+1)*span)); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("fill: %v", err)
	}

	if got := Repr(mustEval(t, e, "(len(d), len(s), len(l))")); got != "(0, 0, 2000)" {
		t.Errorf("got %s, want (0, 0, 2000)", got)
	}
}

func TestStop(t *testing.T) {
	started := make(chan struct{})

	var once sync.Once

	e, _ := newTestEngine(t, WithCheckpoint(func(context.Context, Checkpoint) error {
		once.Do(func() { close(started) })

		return nil
	}))

	errc := make(chan error, 1)

	go func() {
		errc <- e.Run(context.Background(), `
n = 0
try:
    while True:
        n += 1
finally:
    n = -1
`)
	}()

	<-started
	e.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrTerminated) {
			t.Fatalf("got %v, want Termination", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("script did not stop")
	}

	if v, _ := e.GetVar("n"); v == int64(-1) {
		t.Error("finally ran on termination")
	}

	if err := e.Run(t.Context(), "x = 1"); !errors.Is(err, ErrTerminated) {
		t.Errorf("run while stopped: %v", err)
	}

	e.Resume()

	if err := e.Run(t.Context(), "x = 1"); err != nil {
		t.Errorf("run after Resume: %v", err)
	}
}

func TestTerminationNotCaught(t *testing.T) {
	e, _ := newTestEngine(t, WithStepLimit(50))

	err := e.Run(t.Context(), `
caught = False
try:
    while True:
        pass
except Exception:
    caught = True
`)

	if err == nil || !strings.Contains(err.Error(), "step limit of 50 exceeded") {
		t.Fatalf("got %v", err)
	}

	if v, _ := e.GetVar("caught"); v != false {
		t.Error("handler ran for a checkpoint error")
	}
}

func TestContextCancel(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if err := e.Run(ctx, "while True:\n  pass\n"); !errors.Is(err, ErrTerminated) {
		t.Errorf("got %v, want Termination", err)
	}
}

func TestRecursionLimit(t *testing.T) {
	e, _ := newTestEngine(t, WithMaxCallDepth(20))

	_, err := e.Eval(t.Context(), "test", "def f(n):\n  return f(n + 1)\nf(0)\n")
	if !errors.Is(err, ErrRecursion) || !errors.Is(err, ErrRuntime) {
		t.Errorf("got %v, want RecursionError", err)
	}

	got := mustEval(t, e, "def g(n):\n  return 0 if n == 0 else 1 + g(n - 1)\ng(15)\n")
	if got != int64(15) {
		t.Errorf("g(15) = %v", got)
	}
}

func TestExit(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Run(t.Context(), "try:\n  exit_(3)\nexcept Exception:\n  pass\n")
	if code, ok := ExitCode(err); !ok || code != 3 {
		t.Errorf("ExitCode(%v) = %d, %v", err, code, ok)
	}

	err = e.Run(t.Context(), "exit_()")
	if code, ok := ExitCode(err); !ok || code != 0 {
		t.Errorf("ExitCode(%v) = %d, %v", err, code, ok)
	}

	if _, ok := ExitCode(errors.New("other")); ok {
		t.Error("ExitCode accepted a foreign error")
	}
}

func TestSysVars(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.SetSysVar("scriptName", "demo"); err != nil {
		t.Fatal(err)
	}

	if err := e.SetSysVar("_sysvars_", 1); err == nil {
		t.Error("reserved sysvar name accepted")
	}

	got := mustEval(t, e, "(getSysVar_('scriptName'), getSysVar_('nope', 'dflt'))")
	if repr(got) != "('demo', 'dflt')" {
		t.Errorf("got %s", repr(got))
	}

	// system variables are not names
	if err := e.Run(t.Context(), "scriptName"); !errors.Is(err, ErrName) {
		t.Errorf("got %v, want NameError", err)
	}
}

func TestFramework(t *testing.T) {
	e, _ := newTestEngine(t)

	got := mustEval(t, e, `
def helper(a, b):
    return a
(isDef_('helper'), isDef_('helper(1, 2)'), isDef_('missing'), listDefs_(), check_('x = 1'), check_('import os') != 'OK')
`)

	if repr(got) != "(True, True, False, ['helper'], 'OK', True)" {
		t.Errorf("got %s", repr(got))
	}
}

func TestLoadScript(t *testing.T) {
	scripts := map[string]string{
		"lib":  "def double(x):\n    return x * 2\nloaded = getSysVar_('currentScript')\n",
		"main": "loadScript_('lib')\nresult = double(21)\n",
		"self": "loadScript_('self')\n",
	}

	loader := func(_ context.Context, name string) (string, error) {
		src, ok := scripts[name]
		if !ok {
			return "", errors.New("not found")
		}

		return src, nil
	}

	e, _ := newTestEngine(t, WithScriptLoader(loader), WithMaxCallDepth(10))

	if err := e.LoadScript(t.Context(), "main"); err != nil {
		t.Fatal(err)
	}

	if v, _ := e.GetVar("result"); v != int64(42) {
		t.Errorf("result = %v", v)
	}

	if v, _ := e.GetVar("loaded"); v != "lib" {
		t.Errorf("currentScript during load = %v", v)
	}

	if err := e.LoadScript(t.Context(), "self"); !errors.Is(err, ErrRecursion) {
		t.Errorf("self-load: got %v, want RecursionError", err)
	}

	if err := e.LoadScript(t.Context(), "absent"); !errors.Is(err, ErrRuntime) {
		t.Errorf("absent: got %v", err)
	}
}

func TestHostCall(t *testing.T) {
	e, _ := newTestEngine(t)

	mustEval(t, e, "def greet(name, punct='!'):\n    return 'hi ' + name + punct\n")

	got, err := e.Call(t.Context(), "greet", "bob")
	if err != nil || got != "hi bob!" {
		t.Errorf("Call = %v, %v", got, err)
	}

	if _, err := e.Call(t.Context(), "gret"); !errors.Is(err, ErrName) {
		t.Errorf("undefined: %v", err)
	}

	if err := e.SetVar("items", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if got := mustEval(t, e, "sum(items)"); got != int64(6) {
		t.Errorf("sum(items) = %v", got)
	}

	var wg sync.WaitGroup

	for range 8 {
		wg.Go(func() {
			if _, err := e.Call(context.Background(), "greet", "x"); err != nil {
				t.Error(err)
			}
		})
	}

	wg.Wait()
}

func TestShutdown(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.Shutdown(t.Context()); err != nil {
		t.Fatal(err)
	}

	if err := e.Run(t.Context(), "x = 1"); !errors.Is(err, ErrRuntime) {
		t.Errorf("run after shutdown: %v", err)
	}
}

func TestIntrospection(t *testing.T) {
	e, _ := newTestEngine(t)

	mustEval(t, e, "def area(w, h=2):\n    return w * h\nscale = 3")

	v, ok := e.GetVar("area")
	if !ok {
		t.Fatal("area not bound")
	}

	p, ok := v.(*Procedure)
	if !ok {
		t.Fatalf("area is %T", v)
	}

	if got := p.Signature(); got != "area(w, h=2)" {
		t.Errorf("Signature() = %q", got)
	}

	names := e.Names()
	for _, want := range []string{"area", "scale", "len", "print"} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() missing %q", want)
		}
	}

	if !slices.IsSorted(names) {
		t.Error("Names() not sorted")
	}

	if got := e.ListDefs(); !slices.Equal(got, []string{"area"}) {
		t.Errorf("ListDefs() = %v", got)
	}
}
