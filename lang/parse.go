package lang

import (
	"fmt"
	"slices"
)

// parser is a recursive-descent parser over the token slice produced by
// [lex]. It tracks function and loop nesting so that misplaced return,
// break and continue are rejected as syntax errors.
type parser struct {
	script    string
	source    string
	toks      []token
	i         int
	depth     int
	maxDepth  int
	funcDepth int
	loopDepth int
}

func (p *parser) parseModule() (*Module, error) {
	mod := &Module{at: at(Position{Line: 1, Column: 1})}

	for p.peek().kind != tokEOF {
		if p.peek().kind == tokNewline {
			p.advance()

			continue
		}

		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		mod.Body = append(mod.Body, stmts...)
	}

	return mod, nil
}

func (p *parser) parseStatement() ([]Stmt, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	t := p.peek()

	switch t.kind {
	case tokIndent:
		return nil, p.errorf(t.pos, "unexpected indent")
	case tokDedent:
		return nil, p.errorf(t.pos, "unexpected unindent")
	}

	if t.kind == tokOp && t.text == "@" {
		return one(p.parseDecorated())
	}

	if t.kind == tokKeyword {
		switch t.text {
		case "if":
			return one(p.parseIf())
		case "while":
			return one(p.parseWhile())
		case "for":
			return one(p.parseFor())
		case "try":
			return one(p.parseTry())
		case "def":
			return one(p.parseDef())
		case "class":
			return one(p.parseClass())
		case "with":
			return one(p.parseWith())
		case "async":
			return nil, p.errorf(t.pos, "async statements are not supported")
		}
	}

	return p.parseSimpleStatements()
}

func one(s Stmt, err error) ([]Stmt, error) {
	if err != nil {
		return nil, err
	}

	return []Stmt{s}, nil
}

func (p *parser) parseSimpleStatements() ([]Stmt, error) {
	var out []Stmt

	for {
		s, err := p.parseSmall()
		if err != nil {
			return nil, err
		}

		out = append(out, s)

		if !p.acceptOp(";") {
			break
		}

		if k := p.peek().kind; k == tokNewline || k == tokEOF {
			break
		}
	}

	return out, p.expectNewline()
}

func (p *parser) parseSmall() (Stmt, error) {
	t := p.peek()

	if t.kind != tokKeyword {
		return p.parseExprStatement()
	}

	switch t.text {
	case "pass":
		p.advance()

		return &Pass{at: at(t.pos)}, nil

	case "break":
		if p.loopDepth == 0 {
			return nil, p.errorf(t.pos, "'break' outside loop")
		}

		p.advance()

		return &Break{at: at(t.pos)}, nil

	case "continue":
		if p.loopDepth == 0 {
			return nil, p.errorf(t.pos, "'continue' not properly in loop")
		}

		p.advance()

		return &Continue{at: at(t.pos)}, nil

	case "return":
		if p.funcDepth == 0 {
			return nil, p.errorf(t.pos, "'return' outside function")
		}

		p.advance()

		s := &Return{at: at(t.pos)}
		if p.atStatementEnd() {
			return s, nil
		}

		v, err := p.parseTestListStar()
		if err != nil {
			return nil, err
		}

		s.Value = v

		return s, nil

	case "raise":
		p.advance()

		s := &Raise{at: at(t.pos)}
		if p.atStatementEnd() {
			return s, nil
		}

		exc, err := p.parseTest()
		if err != nil {
			return nil, err
		}

		s.Exc = exc

		if p.acceptKeyword("from") {
			if s.Cause, err = p.parseTest(); err != nil {
				return nil, err
			}
		}

		return s, nil

	case "global", "nonlocal":
		p.advance()

		names, err := p.parseNames()
		if err != nil {
			return nil, err
		}

		if t.text == "global" {
			return &Global{at: at(t.pos), Names: names}, nil
		}

		return &Nonlocal{at: at(t.pos), Names: names}, nil

	case "del":
		p.advance()

		targets, err := p.parseTargetItems()
		if err != nil {
			return nil, err
		}

		for _, e := range targets {
			if err := p.checkTarget(e, "delete", false); err != nil {
				return nil, err
			}
		}

		return &Delete{at: at(t.pos), Targets: targets}, nil

	case "assert":
		p.advance()

		test, err := p.parseTest()
		if err != nil {
			return nil, err
		}

		s := &Assert{at: at(t.pos), Test: test}

		if p.acceptOp(",") {
			if s.Msg, err = p.parseTest(); err != nil {
				return nil, err
			}
		}

		return s, nil

	case "import":
		p.advance()

		var names []string

		for {
			name, err := p.parseDottedName()
			if err != nil {
				return nil, err
			}

			if p.acceptKeyword("as") {
				if _, err := p.expectName(); err != nil {
					return nil, err
				}
			}

			names = append(names, name)

			if !p.acceptOp(",") {
				break
			}
		}

		return &Import{at: at(t.pos), Names: names}, nil

	case "from":
		return p.parseImportFrom()
	}

	return p.parseExprStatement()
}

func (p *parser) parseImportFrom() (Stmt, error) {
	t := p.advance()
	s := &ImportFrom{at: at(t.pos)}

	for p.isOp(".") || p.isOp("...") {
		s.Module += p.advance().text
	}

	if !p.isKeyword("import") {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}

		s.Module += name
	}

	if _, err := p.expectKeyword("import"); err != nil {
		return nil, err
	}

	if p.acceptOp("*") {
		s.Names = []string{"*"}

		return s, nil
	}

	paren := p.acceptOp("(")

	for {
		n, err := p.expectName()
		if err != nil {
			return nil, err
		}

		s.Names = append(s.Names, n.text)

		if p.acceptKeyword("as") {
			if _, err := p.expectName(); err != nil {
				return nil, err
			}
		}

		if !p.acceptOp(",") || (paren && p.isOp(")")) {
			break
		}
	}

	if paren {
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (p *parser) parseExprStatement() (Stmt, error) {
	start := p.peek().pos

	first, err := p.parseYieldOrTestListStar()
	if err != nil {
		return nil, err
	}

	t := p.peek()

	if t.kind == tokOp {
		switch t.text {
		case ":":
			return nil, p.errorf(t.pos, "variable annotations are not supported")

		case ":=":
			return nil, p.errorf(t.pos, "assignment expressions are not supported")

		case "=":
			targets := []Expr{first}

			for p.acceptOp("=") {
				v, err := p.parseYieldOrTestListStar()
				if err != nil {
					return nil, err
				}

				targets = append(targets, v)
			}

			value := targets[len(targets)-1]
			targets = targets[:len(targets)-1]

			for _, e := range targets {
				if err := p.checkTarget(e, "assign to", true); err != nil {
					return nil, err
				}
			}

			return &Assign{at: at(start), Targets: targets, Value: value}, nil
		}

		if len(t.text) >= 2 && t.text[len(t.text)-1] == '=' {
			if op, ok := binaryOps[t.text[:len(t.text)-1]]; ok {
				p.advance()

				switch first.(type) {
				case *Name, *Attribute, *Subscript:
				default:
					return nil, p.errorf(first.Pos(),
						"'%s' is an illegal expression for augmented assignment", describe(first))
				}

				value, err := p.parseYieldOrTestList()
				if err != nil {
					return nil, err
				}

				return &AugAssign{at: at(start), Target: first, Op: op, Value: value}, nil
			}
		}
	}

	return &ExprStmt{at: at(start), X: first}, nil
}

// checkTarget reports whether e may appear on the left of an assignment,
// in a for target, or in a del statement.
func (p *parser) checkTarget(e Expr, verb string, starOK bool) error {
	switch e := e.(type) {
	case *Name, *Attribute, *Subscript:
		return nil

	case *Collection:
		if e.Form != FormTuple && e.Form != FormList {
			break
		}

		stars := 0

		for _, elt := range e.Elts {
			if s, ok := elt.(*Starred); ok && starOK {
				stars++
				if stars > 1 {
					return p.errorf(s.Pos(), "multiple starred expressions in assignment")
				}

				if err := p.checkTarget(s.X, verb, false); err != nil {
					return err
				}

				continue
			}

			if err := p.checkTarget(elt, verb, starOK); err != nil {
				return err
			}
		}

		return nil

	case *Starred:
		return p.errorf(e.Pos(), "starred assignment target must be in a list or tuple")
	}

	return p.errorf(e.Pos(), "cannot %s %s", verb, describe(e))
}

func describe(e Expr) string {
	switch e := e.(type) {
	case *Literal:
		return "literal"
	case *Call:
		return "function call"
	case *Collection:
		return e.Form.String() + " display"
	case *Comprehension:
		return e.Form.String() + " comprehension"
	case *BinOp, *UnaryOp, *BoolOp:
		return "expression"
	case *Compare:
		return "comparison"
	case *IfExp:
		return "conditional expression"
	case *Lambda:
		return "lambda"
	default:
		return e.Kind().String()
	}
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}

	if p.peek().kind != tokNewline {
		return p.parseSimpleStatements()
	}

	p.advance()

	if t := p.peek(); t.kind != tokIndent {
		return nil, p.errorf(t.pos, "expected an indented block")
	}

	p.advance()

	var body []Stmt

	for k := p.peek().kind; k != tokDedent && k != tokEOF; k = p.peek().kind {
		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}

		body = append(body, stmts...)
	}

	if p.peek().kind == tokDedent {
		p.advance()
	}

	return body, nil
}

// parseLoopBody parses a block with loop depth raised so that break and
// continue are accepted.
func (p *parser) parseLoopBody() ([]Stmt, error) {
	p.loopDepth++
	defer func() { p.loopDepth-- }()

	return p.parseBlock()
}

func (p *parser) parseIf() (Stmt, error) {
	t := p.advance()

	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	s := &If{at: at(t.pos), Test: test, Body: body}

	switch {
	case p.isKeyword("elif"):
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}

		s.Else = []Stmt{elif}

	case p.acceptKeyword("else"):
		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	t := p.advance()

	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}

	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}

	s := &While{at: at(t.pos), Test: test, Body: body}

	if p.acceptKeyword("else") {
		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (p *parser) parseFor() (Stmt, error) {
	t := p.advance()

	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}

	iter, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}

	s := &For{at: at(t.pos), Target: target, Iter: iter, Body: body}

	if p.acceptKeyword("else") {
		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (p *parser) parseTry() (Stmt, error) {
	t := p.advance()

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	s := &Try{at: at(t.pos), Body: body}

	for p.isKeyword("except") {
		et := p.advance()

		if p.isOp("*") {
			return nil, p.errorf(p.peek().pos, "exception groups are not supported")
		}

		if n := len(s.Handlers); n > 0 && s.Handlers[n-1].Type == nil {
			return nil, p.errorf(et.pos, "default 'except:' must be last")
		}

		h := &ExceptHandler{Pos: et.pos}

		if !p.isOp(":") {
			if h.Type, err = p.parseTest(); err != nil {
				return nil, err
			}

			if p.isOp(",") {
				return nil, p.errorf(p.peek().pos, "multiple exception types must be parenthesized")
			}

			if p.acceptKeyword("as") {
				n, err := p.expectName()
				if err != nil {
					return nil, err
				}

				h.Name = n.text
			}
		}

		if h.Body, err = p.parseBlock(); err != nil {
			return nil, err
		}

		s.Handlers = append(s.Handlers, h)
	}

	if p.acceptKeyword("else") {
		if len(s.Handlers) == 0 {
			return nil, p.errorf(t.pos, "'else' clause requires an except clause")
		}

		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("finally") {
		if s.Finally, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}

	if len(s.Handlers) == 0 && s.Finally == nil {
		return nil, p.errorf(t.pos, "expected 'except' or 'finally' block")
	}

	return s, nil
}

func (p *parser) parseDef() (Stmt, error) {
	t := p.advance()

	name, err := p.expectName()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}

	s := &FunctionDef{at: at(t.pos), Name: name.text}

	if s.Params, s.VarArg, s.KwOnly, s.KwArg, err = p.parseParams(")"); err != nil {
		return nil, err
	}

	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}

	if p.isOp("->") {
		return nil, p.errorf(p.peek().pos, "function annotations are not supported")
	}

	loops := p.loopDepth
	p.loopDepth = 0
	p.funcDepth++

	s.Body, err = p.parseBlock()

	p.funcDepth--
	p.loopDepth = loops

	if err != nil {
		return nil, err
	}

	if len(s.Body) > 0 {
		if es, ok := s.Body[0].(*ExprStmt); ok {
			if lit, ok := es.X.(*Literal); ok {
				if doc, ok := lit.Value.(string); ok {
					s.Doc = doc
				}
			}
		}
	}

	return s, nil
}

// parseParams parses a parameter list up to, but not including, end.
func (p *parser) parseParams(end string) (
	params []*Param, vararg string, kwonly []*Param, kwarg string, err error,
) {
	seen := map[string]bool{}
	star := false
	defaulted := false

	declare := func(t token) error {
		if seen[t.text] {
			return p.errorf(t.pos, "duplicate argument '%s' in function definition", t.text)
		}

		seen[t.text] = true

		return nil
	}

	for !p.isOp(end) {
		switch {
		case p.acceptOp("**"):
			n, err := p.expectName()
			if err != nil {
				return nil, "", nil, "", err
			}

			if err := declare(n); err != nil {
				return nil, "", nil, "", err
			}

			kwarg = n.text
			p.acceptOp(",")

			if !p.isOp(end) {
				return nil, "", nil, "", p.errorf(p.peek().pos, "arguments cannot follow var-keyword argument")
			}

			return params, vararg, kwonly, kwarg, nil

		case p.isOp("*"):
			t := p.advance()

			if star {
				return nil, "", nil, "", p.errorf(t.pos, "* argument may appear only once")
			}

			star = true

			if p.peek().kind == tokName {
				n := p.advance()
				if err := declare(n); err != nil {
					return nil, "", nil, "", err
				}

				vararg = n.text
			}

		case p.acceptOp("/"):

		default:
			n, err := p.expectName()
			if err != nil {
				return nil, "", nil, "", err
			}

			if err := declare(n); err != nil {
				return nil, "", nil, "", err
			}

			if p.isOp(":") && end != ":" {
				return nil, "", nil, "", p.errorf(p.peek().pos, "parameter annotations are not supported")
			}

			param := &Param{Pos: n.pos, Name: n.text}

			if p.acceptOp("=") {
				if param.Default, err = p.parseTest(); err != nil {
					return nil, "", nil, "", err
				}

				defaulted = true
			} else if defaulted && !star {
				return nil, "", nil, "", p.errorf(n.pos, "non-default argument follows default argument")
			}

			if star {
				kwonly = append(kwonly, param)
			} else {
				params = append(params, param)
			}
		}

		if !p.acceptOp(",") {
			break
		}
	}

	return params, vararg, kwonly, kwarg, nil
}

func (p *parser) parseClass() (Stmt, error) {
	t := p.advance()

	name, err := p.expectName()
	if err != nil {
		return nil, err
	}

	s := &ClassDef{at: at(t.pos), Name: name.text}

	if p.acceptOp("(") {
		args, kws, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}

		s.Bases = args

		for _, k := range kws {
			s.Bases = append(s.Bases, k.Value)
		}
	}

	loops, funcs := p.loopDepth, p.funcDepth
	p.loopDepth, p.funcDepth = 0, 0

	s.Body, err = p.parseBlock()

	p.loopDepth, p.funcDepth = loops, funcs

	if err != nil {
		return nil, err
	}

	return s, nil
}

func (p *parser) parseWith() (Stmt, error) {
	t := p.advance()
	s := &With{at: at(t.pos)}

	for {
		item, err := p.parseTest()
		if err != nil {
			return nil, err
		}

		var target Expr

		if p.acceptKeyword("as") {
			if target, err = p.parseTargetList(); err != nil {
				return nil, err
			}
		}

		s.Items = append(s.Items, item)
		s.Targets = append(s.Targets, target)

		if !p.acceptOp(",") {
			break
		}
	}

	var err error
	if s.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}

	return s, nil
}

func (p *parser) parseDecorated() (Stmt, error) {
	start := p.peek().pos
	s := &Decorated{at: at(start)}

	for p.acceptOp("@") {
		d, err := p.parseTest()
		if err != nil {
			return nil, err
		}

		s.Decorators = append(s.Decorators, d)

		if err := p.expectNewline(); err != nil {
			return nil, err
		}
	}

	var err error

	switch {
	case p.isKeyword("def"):
		s.Def, err = p.parseDef()
	case p.isKeyword("class"):
		s.Def, err = p.parseClass()
	default:
		return nil, p.unexpected()
	}

	if err != nil {
		return nil, err
	}

	return s, nil
}

func (p *parser) parseNames() ([]string, error) {
	var names []string

	for {
		n, err := p.expectName()
		if err != nil {
			return nil, err
		}

		names = append(names, n.text)

		if !p.acceptOp(",") {
			return names, nil
		}
	}
}

func (p *parser) parseDottedName() (string, error) {
	n, err := p.expectName()
	if err != nil {
		return "", err
	}

	name := n.text

	for p.acceptOp(".") {
		n, err := p.expectName()
		if err != nil {
			return "", err
		}

		name += "." + n.text
	}

	return name, nil
}

// Token helpers

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}

	return p.toks[p.i+n]
}

func (p *parser) advance() token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}

	return t
}

func (p *parser) isOp(s string) bool {
	t := p.peek()

	return t.kind == tokOp && t.text == s
}

func (p *parser) isKeyword(s string) bool {
	t := p.peek()

	return t.kind == tokKeyword && t.text == s
}

func (p *parser) acceptOp(s string) bool {
	if p.isOp(s) {
		p.advance()

		return true
	}

	return false
}

func (p *parser) acceptKeyword(s string) bool {
	if p.isKeyword(s) {
		p.advance()

		return true
	}

	return false
}

func (p *parser) expectOp(s string) (token, error) {
	if !p.isOp(s) {
		t := p.peek()

		return t, p.errorf(t.pos, "expected %q, found %s", s, t.describe())
	}

	return p.advance(), nil
}

func (p *parser) expectKeyword(s string) (token, error) {
	if !p.isKeyword(s) {
		t := p.peek()

		return t, p.errorf(t.pos, "expected %q, found %s", s, t.describe())
	}

	return p.advance(), nil
}

func (p *parser) expectName() (token, error) {
	t := p.peek()
	if t.kind != tokName {
		return t, p.errorf(t.pos, "expected name, found %s", t.describe())
	}

	return p.advance(), nil
}

func (p *parser) expectNewline() error {
	switch p.peek().kind {
	case tokNewline:
		p.advance()

		return nil
	case tokEOF:
		return nil
	default:
		return p.unexpected()
	}
}

func (p *parser) atStatementEnd() bool {
	k := p.peek().kind

	return k == tokNewline || k == tokEOF || p.isOp(";")
}

func (p *parser) unexpected() error {
	t := p.peek()

	return p.errorf(t.pos, "unexpected %s", t.describe())
}

func (p *parser) enter() error {
	p.depth++
	if p.maxDepth > 0 && p.depth > p.maxDepth {
		return &SyntaxError{
			Msg:    fmt.Sprintf("nesting deeper than %d levels", p.maxDepth),
			Pos:    p.peek().pos,
			Script: p.script,
			Source: p.source,
			err:    ErrMaxDepthExceeded,
		}
	}

	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{
		Msg:    fmt.Sprintf(format, args...),
		Pos:    pos,
		Script: p.script,
		Source: p.source,
	}
}

var exprStartKeywords = []string{"not", "lambda", "None", "True", "False", "await", "yield"}

var exprStartOps = []string{"(", "[", "{", "-", "+", "~", "*", "**", "..."}

// startsExpr reports whether the next token can begin an expression.
func (p *parser) startsExpr() bool {
	t := p.peek()

	switch t.kind {
	case tokName, tokInt, tokFloat, tokString:
		return true
	case tokKeyword:
		return slices.Contains(exprStartKeywords, t.text)
	case tokOp:
		return slices.Contains(exprStartOps, t.text)
	default:
		return false
	}
}
