package lang

import (
	"errors"
	"testing"
)

func kinds(toks []token) []tokenKind {
	out := make([]tokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.kind
	}

	return out
}

func TestLexIndentation(t *testing.T) {
	src := "if x:\n    y = 1\n\n    # comment\n    z = 2\nw\n"

	toks, err := lex("t", src)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}

	want := []tokenKind{
		tokKeyword, tokName, tokOp, tokNewline,
		tokIndent, tokName, tokOp, tokInt, tokNewline,
		tokName, tokOp, tokInt, tokNewline,
		tokDedent, tokName, tokNewline,
		tokEOF,
	}

	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(got), got, len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: kind %d, want %d (%q)", i, got[i], want[i], toks[i].text)
		}
	}
}

func TestLexImplicitJoin(t *testing.T) {
	toks, err := lex("t", "x = (1,\n     2)\ny = 3 + \\\n  4\n")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}

	newlines := 0

	for _, tok := range toks {
		if tok.kind == tokNewline {
			newlines++
		}

		if tok.kind == tokIndent {
			t.Errorf("unexpected INDENT at %v", tok.pos)
		}
	}

	if newlines != 2 {
		t.Errorf("got %d NEWLINE tokens, want 2", newlines)
	}
}

func TestLexLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"42", int64(42)},
		{"1_000", int64(1000)},
		{"0x1F", int64(31)},
		{"0o17", int64(15)},
		{"0b101", int64(5)},
		{"3.5", 3.5},
		{"1e3", 1000.0},
		{".25", 0.25},
		{`'a\tb'`, "a\tb"},
		{`"\x41\u00e9"`, "Aé"},
		{`r'\n'`, `\n`},
		{`'''multi
line'''`, "multi\nline"},
		{`"\q"`, `\q`},
	}

	for _, tt := range tests {
		toks, err := lex("t", tt.src)
		if err != nil {
			t.Errorf("lex(%q): %v", tt.src, err)

			continue
		}

		if got := toks[0].val; got != tt.want {
			t.Errorf("lex(%q) = %#v, want %#v", tt.src, got, tt.want)
		}
	}
}

func TestLexErrors(t *testing.T) {
	tests := []string{
		"'unterminated",
		"f'x{1}'",
		"b'bytes'",
		"0123",
		"1j",
		"99999999999999999999",
		"x = $",
		"if x:\n    y\n  z\n",
		"(1, 2",
		"x)",
	}

	for _, src := range tests {
		_, err := lex("t", src)

		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("lex(%q): got %v, want *SyntaxError", src, err)
		}
	}
}

func TestLexPositions(t *testing.T) {
	toks, err := lex("t", "a = 1\n  \nbb")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}

	last := toks[len(toks)-3]
	if last.text != "bb" || last.pos.Line != 3 || last.pos.Column != 1 {
		t.Errorf("got %q at %v, want \"bb\" at 3:1", last.text, last.pos)
	}
}
