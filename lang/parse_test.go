package lang

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Module {
	t.Helper()

	s, err := Parse(t.Context(), "test", src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}

	return s.Module
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Kind
	}{
		{"assign", "x = 1\n", []Kind{KindAssign}},
		{"chained assign", "a = b = 2", []Kind{KindAssign}},
		{"aug assign", "x += 1", []Kind{KindAugAssign}},
		{"semicolons", "a = 1; b = 2; pass", []Kind{KindAssign, KindAssign, KindPass}},
		{"if elif else", "if a:\n  pass\nelif b:\n  pass\nelse:\n  pass\n", []Kind{KindIf}},
		{"while else", "while x:\n  break\nelse:\n  pass\n", []Kind{KindWhile}},
		{"for", "for i, v in enumerate(xs):\n  continue\n", []Kind{KindFor}},
		{"def", "def f(a, b=1, *args, c, **kw):\n  return a\n", []Kind{KindFunctionDef}},
		{"try", "try:\n  x\nexcept KeyError as e:\n  pass\nexcept:\n  raise\nelse:\n  y\nfinally:\n  z\n", []Kind{KindTry}},
		{"raise from", "raise ValueError('x') from err", []Kind{KindRaise}},
		{"del", "del a[0], b", []Kind{KindDelete}},
		{"assert", "assert x, 'msg'", []Kind{KindAssert}},
		{"expression", "print('hi')", []Kind{KindExprStmt}},
		{"one-line block", "if x: y = 1; z = 2\n", []Kind{KindIf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := mustParse(t, tt.src)

			if len(mod.Body) != len(tt.want) {
				t.Fatalf("got %d statements, want %d", len(mod.Body), len(tt.want))
			}

			for i, k := range tt.want {
				if got := mod.Body[i].Kind(); got != k {
					t.Errorf("statement %d: %v, want %v", i, got, k)
				}
			}
		})
	}
}

func TestParseFunctionDef(t *testing.T) {
	mod := mustParse(t, "def f(a, b=1, *rest, key=None, **opts):\n    'doc'\n    return a\n")

	fn, ok := mod.Body[0].(*FunctionDef)
	if !ok {
		t.Fatalf("got %T", mod.Body[0])
	}

	if fn.Name != "f" || len(fn.Params) != 2 || fn.VarArg != "rest" ||
		len(fn.KwOnly) != 1 || fn.KwArg != "opts" || fn.Doc != "doc" {
		t.Errorf("unexpected signature: %+v", fn)
	}

	if fn.Params[1].Default == nil {
		t.Error("missing default for b")
	}
}

func TestParsePrecedence(t *testing.T) {
	mod := mustParse(t, "x = 1 + 2 * 3 ** -2\n")
	add := mod.Body[0].(*Assign).Value.(*BinOp)

	if add.Op != OpAdd {
		t.Fatalf("top operator %v, want +", add.Op)
	}

	mul := add.Right.(*BinOp)
	if mul.Op != OpMul {
		t.Fatalf("right operator %v, want *", mul.Op)
	}

	pow := mul.Right.(*BinOp)
	if pow.Op != OpPow {
		t.Fatalf("innermost operator %v, want **", pow.Op)
	}

	if u, ok := pow.Right.(*UnaryOp); !ok || u.Op != OpNeg {
		t.Errorf("exponent %T, want unary minus", pow.Right)
	}
}

func TestParseComparisonChain(t *testing.T) {
	mod := mustParse(t, "ok = 1 < x <= 3 and y not in z and w is not None\n")
	b := mod.Body[0].(*Assign).Value.(*BoolOp)

	if len(b.Values) != 3 {
		t.Fatalf("got %d operands", len(b.Values))
	}

	c := b.Values[0].(*Compare)
	if len(c.Ops) != 2 || c.Ops[0] != OpLt || c.Ops[1] != OpLtE {
		t.Errorf("chain ops %v", c.Ops)
	}

	if op := b.Values[1].(*Compare).Ops[0]; op != OpNotIn {
		t.Errorf("got %v, want not in", op)
	}

	if op := b.Values[2].(*Compare).Ops[0]; op != OpIsNot {
		t.Errorf("got %v, want is not", op)
	}
}

func TestParseDisplays(t *testing.T) {
	tests := []struct {
		src  string
		form Form
		n    int
	}{
		{"[1, 2, 3]", FormList, 3},
		{"(1,)", FormTuple, 1},
		{"()", FormTuple, 0},
		{"{1, 2}", FormSet, 2},
		{"{'a': 1, **d}", FormDict, 2},
		{"{}", FormDict, 0},
		{"1, 2", FormTuple, 2},
	}

	for _, tt := range tests {
		mod := mustParse(t, "x = "+tt.src)

		c, ok := mod.Body[0].(*Assign).Value.(*Collection)
		if !ok {
			t.Errorf("%s: got %T", tt.src, mod.Body[0].(*Assign).Value)

			continue
		}

		if c.Form != tt.form || len(c.Elts) != tt.n {
			t.Errorf("%s: got %v with %d elements", tt.src, c.Form, len(c.Elts))
		}
	}
}

func TestParseComprehensions(t *testing.T) {
	mod := mustParse(t, "a = [x*y for x in xs if x for y in ys]\nb = {k: v for k, v in d.items()}\n")

	lc := mod.Body[0].(*Assign).Value.(*Comprehension)
	if lc.Form != FormList || len(lc.Generators) != 2 || len(lc.Generators[0].Ifs) != 1 {
		t.Errorf("unexpected list comprehension %+v", lc)
	}

	dc := mod.Body[1].(*Assign).Value.(*Comprehension)
	if dc.Form != FormDict || dc.Key == nil {
		t.Errorf("unexpected dict comprehension %+v", dc)
	}
}

func TestParseSubscripts(t *testing.T) {
	mod := mustParse(t, "a = x[1:2]\nb = x[::-1]\nc = x[i]\n")

	if _, ok := mod.Body[0].(*Assign).Value.(*Subscript).Index.(*Slice); !ok {
		t.Error("x[1:2] should produce a slice")
	}

	s := mod.Body[1].(*Assign).Value.(*Subscript).Index.(*Slice)
	if s.Lower != nil || s.Upper != nil || s.Step == nil {
		t.Errorf("x[::-1] = %+v", s)
	}
}

func TestParseCallArguments(t *testing.T) {
	mod := mustParse(t, "f(1, *xs, k=2, **kw)\n")
	c := mod.Body[0].(*ExprStmt).X.(*Call)

	if len(c.Args) != 2 || len(c.Keywords) != 2 {
		t.Fatalf("got %d args %d keywords", len(c.Args), len(c.Keywords))
	}

	if _, ok := c.Args[1].(*Starred); !ok {
		t.Error("second argument should be starred")
	}

	if c.Keywords[1].Name != "" {
		t.Error("**kw should have an empty keyword name")
	}
}

func TestParseStringConcatenation(t *testing.T) {
	mod := mustParse(t, "s = 'a' \"b\" '''c'''\n")

	if got := mod.Body[0].(*Assign).Value.(*Literal).Value; got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"return 1", "'return' outside function"},
		{"break", "'break' outside loop"},
		{"while x:\n  def f():\n    continue\n", "'continue' not properly in loop"},
		{"1 = x", "cannot assign to literal"},
		{"f() = 1", "cannot assign to function call"},
		{"x: int = 1", "annotations"},
		{"if x\n  pass\n", `expected ":"`},
		{"if x:\npass\n", "expected an indented block"},
		{"  x = 1", "unexpected indent"},
		{"def f(a=1, b):\n  pass\n", "non-default argument"},
		{"def f(a, a):\n  pass\n", "duplicate argument"},
		{"f(a=1, 2)", "positional argument follows keyword argument"},
		{"f(a=1, a=2)", "keyword argument repeated"},
		{"try:\n  pass\n", "expected 'except' or 'finally'"},
		{"x = ...", "Ellipsis"},
		{"a, *b, *c = xs", "multiple starred"},
		{"x += 1, = 2", ""},
	}

	for _, tt := range tests {
		_, err := Parse(t.Context(), "bad", tt.src)

		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q): got %v, want *SyntaxError", tt.src, err)

			continue
		}

		if !strings.Contains(se.Error(), tt.want) {
			t.Errorf("Parse(%q): %q does not mention %q", tt.src, se.Error(), tt.want)
		}

		if se.Script != "bad" || !se.Pos.IsValid() {
			t.Errorf("Parse(%q): missing location in %+v", tt.src, se)
		}
	}
}

func TestSyntaxErrorSnippet(t *testing.T) {
	_, err := Parse(t.Context(), "s", "x = 1\ny = (2 +)\n")

	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %v", err)
	}

	snip := se.Snippet()
	if !strings.Contains(snip, "2 | y = (2 +)") || !strings.Contains(snip, "^") {
		t.Errorf("unexpected snippet:\n%s", snip)
	}
}

func TestParseMaxDepth(t *testing.T) {
	src := "x = " + strings.Repeat("-", 50) + "1\n"

	_, err := Parse(t.Context(), "deep", src, WithMaxDepth(10))
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("got %v, want ErrMaxDepthExceeded", err)
	}

	if _, err := Parse(t.Context(), "deep", src); err != nil {
		t.Errorf("default depth: %v", err)
	}
}

func TestParseMaxSourceLength(t *testing.T) {
	_, err := Parse(t.Context(), "long", "x = 1\n", WithMaxSourceLength(3))
	if !errors.Is(err, ErrSourceTooLong) {
		t.Errorf("got %v, want ErrSourceTooLong", err)
	}
}

func TestParseReader(t *testing.T) {
	s, err := ParseReader(t.Context(), "r", strings.NewReader("x = 1\n"))
	if err != nil {
		t.Fatal(err)
	}

	if s.Name != "r" || len(s.Module.Body) != 1 {
		t.Errorf("unexpected script %+v", s)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, src := range []string{"", "\n\n", "# only a comment\n"} {
		if mod := mustParse(t, src); len(mod.Body) != 0 {
			t.Errorf("Parse(%q) produced %d statements", src, len(mod.Body))
		}
	}
}
