package lang

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	val  any
	pos  Position
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "newline"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	case tokString:
		return "string literal"
	default:
		return strconv.Quote(t.text)
	}
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true, "elif": true,
	"else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// operators lists every operator and delimiter, longest first within
// each length so that the first match is the maximal munch.
var operators = [][]string{
	{"**=", "//=", ">>=", "<<=", "..."},
	{
		"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "->", ":=",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	},
	{
		"+", "-", "*", "/", "%", "@", "&", "|", "^", "~", "<", ">",
		"(", ")", "[", "]", "{", "}", ",", ":", ".", ";", "=",
	},
}

// lexer converts source text into a token slice, synthesizing NEWLINE,
// INDENT and DEDENT tokens from line structure.
type lexer struct {
	script  string
	src     string
	pos     int
	line    int
	col     int
	indents []int
	depth   int
	bol     bool
	toks    []token
}

func lex(script, src string) ([]token, error) {
	l := &lexer{
		script:  script,
		src:     src,
		line:    1,
		col:     1,
		indents: []int{0},
		bol:     true,
	}

	if err := l.run(); err != nil {
		return nil, err
	}

	return l.toks, nil
}

func (l *lexer) run() error {
	for {
		if l.bol && l.depth == 0 {
			if err := l.indentation(); err != nil {
				return err
			}
		}

		if l.eof() {
			break
		}

		r := l.peek()

		switch {
		case r == '\n':
			p := l.position()
			l.advance()

			if l.depth == 0 {
				l.emit(tokNewline, "\n", nil, p)
				l.bol = true
			}

		case r == ' ' || r == '\t' || r == '\f' || r == '\r':
			l.advance()

		case r == '#':
			l.skipComment()

		case r == '\\':
			p := l.position()
			l.advance()

			if l.peek() == '\r' {
				l.advance()
			}

			if l.peek() != '\n' {
				return l.errorf(p, "unexpected character after line continuation character")
			}

			l.advance()

		case isIdentStart(r):
			if err := l.name(); err != nil {
				return err
			}

		case isDigit(r) || (r == '.' && isDigit(l.peekAt(1))):
			if err := l.number(); err != nil {
				return err
			}

		case r == '"' || r == '\'':
			if err := l.str("", l.position()); err != nil {
				return err
			}

		default:
			if err := l.operator(); err != nil {
				return err
			}
		}
	}

	p := l.position()

	if l.depth > 0 {
		return l.errorf(p, "unexpected end of input inside brackets")
	}

	if n := len(l.toks); n > 0 && l.toks[n-1].kind != tokNewline && l.toks[n-1].kind != tokDedent {
		l.emit(tokNewline, "", nil, p)
	}

	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(tokDedent, "", nil, p)
	}

	l.emit(tokEOF, "", nil, p)

	return nil
}

// indentation measures the leading whitespace of the next non-blank line
// and emits INDENT or DEDENT tokens against the indent stack.
func (l *lexer) indentation() error {
	for {
		width := 0

	measure:
		for !l.eof() {
			switch l.peek() {
			case ' ':
				width++
			case '\t':
				width = (width/8 + 1) * 8
			case '\f':
				width = 0
			default:
				break measure
			}

			l.advance()
		}

		if l.eof() {
			return nil
		}

		switch l.peek() {
		case '#':
			l.skipComment()

			fallthrough

		case '\r', '\n':
			for !l.eof() && l.peek() != '\n' {
				l.advance()
			}

			l.advance()

			continue
		}

		l.bol = false
		p := l.position()
		top := l.indents[len(l.indents)-1]

		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.emit(tokIndent, "", nil, p)

		case width < top:
			for width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.emit(tokDedent, "", nil, p)
			}

			if width != l.indents[len(l.indents)-1] {
				return l.errorf(p, "unindent does not match any outer indentation level")
			}
		}

		return nil
	}
}

func (l *lexer) name() error {
	p := l.position()
	start := l.pos

	for !l.eof() && isIdentContinue(l.peek()) {
		l.advance()
	}

	text := l.src[start:l.pos]

	if q := l.peek(); (q == '"' || q == '\'') && isStringPrefix(text) {
		return l.str(strings.ToLower(text), p)
	}

	if keywords[text] {
		l.emit(tokKeyword, text, nil, p)
	} else {
		l.emit(tokName, text, nil, p)
	}

	return nil
}

func (l *lexer) number() error {
	p := l.position()
	start := l.pos

	if l.peek() == '0' && strings.ContainsRune("xXoObB", l.peekAt(1)) {
		l.advance()
		l.advance()

		for !l.eof() && (isHexDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}

		text := l.src[start:l.pos]

		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return l.numberError(p, text, err)
		}

		l.emit(tokInt, text, v, p)

		return l.numberEnd(p)
	}

	float := false

	l.digits()

	if l.peek() == '.' {
		float = true

		l.advance()
		l.digits()
	}

	if r := l.peek(); r == 'e' || r == 'E' {
		next := l.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekAt(2))) {
			float = true

			l.advance()

			if r := l.peek(); r == '+' || r == '-' {
				l.advance()
			}

			l.digits()
		}
	}

	if r := l.peek(); r == 'j' || r == 'J' {
		return l.errorf(p, "complex literals are not supported")
	}

	text := l.src[start:l.pos]
	clean := strings.ReplaceAll(text, "_", "")

	if strings.HasSuffix(text, "_") || strings.Contains(text, "__") {
		return l.errorf(p, "invalid decimal literal %q", text)
	}

	if float {
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return l.numberError(p, text, err)
		}

		l.emit(tokFloat, text, v, p)

		return l.numberEnd(p)
	}

	if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
		return l.errorf(p, "leading zeros in decimal integer literals are not permitted")
	}

	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return l.numberError(p, text, err)
	}

	l.emit(tokInt, text, v, p)

	return l.numberEnd(p)
}

func (l *lexer) digits() {
	for !l.eof() && (isDigit(l.peek()) || l.peek() == '_') {
		l.advance()
	}
}

func (l *lexer) numberEnd(p Position) error {
	if !l.eof() && isIdentContinue(l.peek()) {
		return l.errorf(p, "invalid decimal literal")
	}

	return nil
}

func (l *lexer) numberError(p Position, text string, err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return l.errorf(p, "integer literal %s is too large", text)
	}

	return l.errorf(p, "invalid number literal %q", text)
}

func (l *lexer) str(prefix string, p Position) error {
	switch {
	case strings.ContainsRune(prefix, 'f'):
		return l.errorf(p, "f-strings are not supported")
	case strings.ContainsRune(prefix, 'b'):
		return l.errorf(p, "bytes literals are not supported")
	}

	raw := strings.ContainsRune(prefix, 'r')
	q := l.peek()
	delim := string(q)

	if strings.HasPrefix(l.src[l.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}

	triple := len(delim) == 3

	for range delim {
		l.advance()
	}

	var b strings.Builder

	for {
		if l.eof() {
			return l.errorf(p, "unterminated string literal")
		}

		if strings.HasPrefix(l.src[l.pos:], delim) {
			for range delim {
				l.advance()
			}

			break
		}

		r := l.peek()

		if r == '\n' && !triple {
			return l.errorf(p, "unterminated string literal")
		}

		if r != '\\' {
			b.WriteRune(r)
			l.advance()

			continue
		}

		l.advance()

		if l.eof() {
			return l.errorf(p, "unterminated string literal")
		}

		if raw {
			b.WriteByte('\\')
			b.WriteRune(l.peek())
			l.advance()

			continue
		}

		if err := l.escape(&b); err != nil {
			return err
		}
	}

	l.emit(tokString, l.src[p.Offset:l.pos], b.String(), p)

	return nil
}

var simpleEscapes = map[rune]string{
	'\n': "", '\\': "\\", '\'': "'", '"': "\"", 'a': "\a", 'b': "\b",
	'f': "\f", 'n': "\n", 'r': "\r", 't': "\t", 'v': "\v",
}

func (l *lexer) escape(b *strings.Builder) error {
	p := l.position()
	r := l.peek()

	if s, ok := simpleEscapes[r]; ok {
		l.advance()
		b.WriteString(s)

		return nil
	}

	switch {
	case r >= '0' && r <= '7':
		v := 0

		for i := 0; i < 3 && !l.eof() && l.peek() >= '0' && l.peek() <= '7'; i++ {
			v = v*8 + int(l.peek()-'0')
			l.advance()
		}

		b.WriteRune(rune(v))

		return nil

	case r == 'x' || r == 'u' || r == 'U':
		n := map[rune]int{'x': 2, 'u': 4, 'U': 8}[r]
		l.advance()

		if l.pos+n > len(l.src) {
			return l.errorf(p, "truncated \\%c escape", r)
		}

		hex := l.src[l.pos : l.pos+n]

		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || !utf8.ValidRune(rune(v)) {
			return l.errorf(p, "invalid \\%c escape", r)
		}

		for range n {
			l.advance()
		}

		b.WriteRune(rune(v))

		return nil

	case r == 'N':
		return l.errorf(p, "named unicode escapes are not supported")

	default:
		b.WriteByte('\\')
		b.WriteRune(r)
		l.advance()

		return nil
	}
}

func (l *lexer) operator() error {
	p := l.position()
	rest := l.src[l.pos:]

	for _, group := range operators {
		for _, op := range group {
			if !strings.HasPrefix(rest, op) {
				continue
			}

			for range op {
				l.advance()
			}

			switch op {
			case "(", "[", "{":
				l.depth++
			case ")", "]", "}":
				if l.depth == 0 {
					return l.errorf(p, "unmatched %q", op)
				}

				l.depth--
			}

			l.emit(tokOp, op, nil, p)

			return nil
		}
	}

	return l.errorf(p, "invalid character %q", l.peek())
}

func (l *lexer) skipComment() {
	for !l.eof() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *lexer) emit(kind tokenKind, text string, val any, p Position) {
	l.toks = append(l.toks, token{kind: kind, text: text, val: val, pos: p})
}

func (l *lexer) errorf(p Position, format string, args ...any) error {
	return &SyntaxError{
		Msg:    fmt.Sprintf(format, args...),
		Pos:    p,
		Script: l.script,
		Source: l.src,
	}
}

func (l *lexer) peek() rune {
	if l.eof() {
		return 0
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])

	return r
}

// peekAt returns the byte n positions ahead as a rune. Only used to look
// past ASCII characters.
func (l *lexer) peekAt(n int) rune {
	if l.pos+n >= len(l.src) {
		return 0
	}

	return rune(l.src[l.pos+n])
}

func (l *lexer) advance() {
	if l.eof() {
		return
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])

	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

func (l *lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isStringPrefix(s string) bool {
	switch strings.ToLower(s) {
	case "r", "u", "f", "b", "rb", "br", "fr", "rf":
		return true
	default:
		return false
	}
}
