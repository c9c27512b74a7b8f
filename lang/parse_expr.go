package lang

import "slices"

// Expression grammar, lowest precedence first:
//
//	test       = lambda | or_test ["if" or_test "else" test]
//	or_test    = and_test {"or" and_test}
//	and_test   = not_test {"and" not_test}
//	not_test   = "not" not_test | comparison
//	comparison = bitor {comp_op bitor}
//	bitor .. term: left-associative binary operators
//	factor     = ("+" | "-" | "~") factor | power
//	power      = ["await"] primary ["**" factor]

func (p *parser) parseTest() (Expr, error) {
	if p.isKeyword("lambda") {
		return p.parseLambda()
	}

	body, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}

	if !p.isKeyword("if") {
		return body, nil
	}

	p.advance()

	test, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKeyword("else"); err != nil {
		return nil, err
	}

	orElse, err := p.parseTest()
	if err != nil {
		return nil, err
	}

	return &IfExp{at: at(body.Pos()), Test: test, Body: body, Else: orElse}, nil
}

func (p *parser) parseLambda() (Expr, error) {
	t := p.advance()
	l := &Lambda{at: at(t.pos)}

	var err error

	if l.Params, l.VarArg, _, l.KwArg, err = p.parseParams(":"); err != nil {
		return nil, err
	}

	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}

	if l.Body, err = p.parseTest(); err != nil {
		return nil, err
	}

	return l, nil
}

func (p *parser) parseOrTest() (Expr, error) {
	return p.parseBoolOp("or", OpOr, p.parseAndTest)
}

func (p *parser) parseAndTest() (Expr, error) {
	return p.parseBoolOp("and", OpAnd, p.parseNotTest)
}

func (p *parser) parseBoolOp(kw string, op Operator, next func() (Expr, error)) (Expr, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}

	if !p.isKeyword(kw) {
		return first, nil
	}

	b := &BoolOp{at: at(first.Pos()), Op: op, Values: []Expr{first}}

	for p.acceptKeyword(kw) {
		v, err := next()
		if err != nil {
			return nil, err
		}

		b.Values = append(b.Values, v)
	}

	return b, nil
}

func (p *parser) parseNotTest() (Expr, error) {
	if !p.isKeyword("not") {
		return p.parseComparison()
	}

	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	t := p.advance()

	x, err := p.parseNotTest()
	if err != nil {
		return nil, err
	}

	return &UnaryOp{at: at(t.pos), Op: OpNot, X: x}, nil
}

var compareOps = map[string]Operator{
	"==": OpEq, "!=": OpNotEq, "<": OpLt, "<=": OpLtE, ">": OpGt, ">=": OpGtE,
}

func (p *parser) compareOp() (Operator, bool) {
	t := p.peek()

	switch {
	case t.kind == tokOp:
		op, ok := compareOps[t.text]
		if ok {
			p.advance()
		}

		return op, ok

	case t.kind == tokKeyword && t.text == "in":
		p.advance()

		return OpIn, true

	case t.kind == tokKeyword && t.text == "not":
		if n := p.peekAt(1); n.kind == tokKeyword && n.text == "in" {
			p.advance()
			p.advance()

			return OpNotIn, true
		}

	case t.kind == tokKeyword && t.text == "is":
		p.advance()

		if p.acceptKeyword("not") {
			return OpIsNot, true
		}

		return OpIs, true
	}

	return 0, false
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}

	var c *Compare

	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}

		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}

		if c == nil {
			c = &Compare{at: at(left.Pos()), Left: left}
		}

		c.Ops = append(c.Ops, op)
		c.Comparators = append(c.Comparators, right)
	}

	if c == nil {
		return left, nil
	}

	return c, nil
}

// parseBinary parses a left-associative chain of the given operators.
func (p *parser) parseBinary(ops []string, next func() (Expr, error)) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.kind != tokOp || !slices.Contains(ops, t.text) {
			return left, nil
		}

		p.advance()

		right, err := next()
		if err != nil {
			return nil, err
		}

		left = &BinOp{at: at(left.Pos()), Left: left, Op: binaryOps[t.text], Right: right}
	}
}

func (p *parser) parseBitOr() (Expr, error) {
	return p.parseBinary([]string{"|"}, p.parseBitXor)
}

func (p *parser) parseBitXor() (Expr, error) {
	return p.parseBinary([]string{"^"}, p.parseBitAnd)
}

func (p *parser) parseBitAnd() (Expr, error) {
	return p.parseBinary([]string{"&"}, p.parseShift)
}

func (p *parser) parseShift() (Expr, error) {
	return p.parseBinary([]string{"<<", ">>"}, p.parseArith)
}

func (p *parser) parseArith() (Expr, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseTerm)
}

func (p *parser) parseTerm() (Expr, error) {
	return p.parseBinary([]string{"*", "/", "//", "%", "@"}, p.parseFactor)
}

var unaryOps = map[string]Operator{"-": OpNeg, "+": OpPos, "~": OpInvert}

func (p *parser) parseFactor() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	t := p.peek()
	if t.kind == tokOp {
		if op, ok := unaryOps[t.text]; ok {
			p.advance()

			x, err := p.parseFactor()
			if err != nil {
				return nil, err
			}

			return &UnaryOp{at: at(t.pos), Op: op, X: x}, nil
		}
	}

	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	var (
		x   Expr
		err error
	)

	if t := p.peek(); t.kind == tokKeyword && t.text == "await" {
		p.advance()

		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}

		x = &Await{at: at(t.pos), X: inner}
	} else if x, err = p.parsePrimary(); err != nil {
		return nil, err
	}

	if !p.isOp("**") {
		return x, nil
	}

	p.advance()

	exp, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	return &BinOp{at: at(x.Pos()), Left: x, Op: OpPow, Right: exp}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.kind != tokOp {
			return x, nil
		}

		switch t.text {
		case "(":
			p.advance()

			args, kws, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}

			x = &Call{at: at(x.Pos()), Func: x, Args: args, Keywords: kws}

		case "[":
			p.advance()

			idx, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}

			if _, err := p.expectOp("]"); err != nil {
				return nil, err
			}

			x = &Subscript{at: at(x.Pos()), X: x, Index: idx}

		case ".":
			p.advance()

			n, err := p.expectName()
			if err != nil {
				return nil, err
			}

			x = &Attribute{at: at(x.Pos()), X: x, Name: n.text}

		default:
			return x, nil
		}
	}
}

// parseCallArgs parses call arguments after the opening parenthesis and
// consumes the closing one.
func (p *parser) parseCallArgs() ([]Expr, []*Keyword, error) {
	var (
		args []Expr
		kws  []*Keyword
	)

	seen := map[string]bool{}

	for !p.isOp(")") {
		t := p.peek()

		switch {
		case p.acceptOp("*"):
			x, err := p.parseTest()
			if err != nil {
				return nil, nil, err
			}

			args = append(args, &Starred{at: at(t.pos), X: x})

		case p.acceptOp("**"):
			x, err := p.parseTest()
			if err != nil {
				return nil, nil, err
			}

			kws = append(kws, &Keyword{Pos: t.pos, Value: x})

		case t.kind == tokName && p.peekAt(1).kind == tokOp && p.peekAt(1).text == "=":
			p.advance()
			p.advance()

			if seen[t.text] {
				return nil, nil, p.errorf(t.pos, "keyword argument repeated: %s", t.text)
			}

			seen[t.text] = true

			x, err := p.parseTest()
			if err != nil {
				return nil, nil, err
			}

			kws = append(kws, &Keyword{Pos: t.pos, Name: t.text, Value: x})

		default:
			x, err := p.parseTest()
			if err != nil {
				return nil, nil, err
			}

			if p.isKeyword("for") {
				gens, err := p.parseComprehensionClauses()
				if err != nil {
					return nil, nil, err
				}

				x = &GeneratorExp{at: at(x.Pos()), Elt: x, Generators: gens}

				if len(args) > 0 || len(kws) > 0 || !p.isOp(")") {
					return nil, nil, p.errorf(x.Pos(), "generator expression must be parenthesized")
				}
			}

			if len(kws) > 0 {
				return nil, nil, p.errorf(x.Pos(), "positional argument follows keyword argument")
			}

			args = append(args, x)
		}

		if !p.acceptOp(",") {
			break
		}
	}

	if _, err := p.expectOp(")"); err != nil {
		return nil, nil, err
	}

	return args, kws, nil
}

func (p *parser) parseSubscript() (Expr, error) {
	start := p.peek().pos

	first, err := p.parseSliceItem()
	if err != nil {
		return nil, err
	}

	if !p.isOp(",") {
		return first, nil
	}

	tuple := &Collection{at: at(start), Form: FormTuple, Elts: []Expr{first}}

	for p.acceptOp(",") {
		if p.isOp("]") {
			break
		}

		item, err := p.parseSliceItem()
		if err != nil {
			return nil, err
		}

		tuple.Elts = append(tuple.Elts, item)
	}

	return tuple, nil
}

func (p *parser) parseSliceItem() (Expr, error) {
	start := p.peek().pos

	var (
		lower Expr
		err   error
	)

	if !p.isOp(":") {
		if lower, err = p.parseTest(); err != nil {
			return nil, err
		}

		if !p.isOp(":") {
			return lower, nil
		}
	}

	p.advance()

	s := &Slice{at: at(start), Lower: lower}

	bound := func() bool { return !p.isOp(":") && !p.isOp("]") && !p.isOp(",") }

	if bound() {
		if s.Upper, err = p.parseTest(); err != nil {
			return nil, err
		}
	}

	if p.acceptOp(":") && bound() {
		if s.Step, err = p.parseTest(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()

	switch t.kind {
	case tokName:
		p.advance()

		return &Name{at: at(t.pos), ID: t.text}, nil

	case tokInt, tokFloat:
		p.advance()

		return &Literal{at: at(t.pos), Value: t.val}, nil

	case tokString:
		s := ""

		for p.peek().kind == tokString {
			s += p.advance().val.(string)
		}

		return &Literal{at: at(t.pos), Value: s}, nil

	case tokKeyword:
		switch t.text {
		case "None":
			p.advance()

			return &Literal{at: at(t.pos)}, nil

		case "True", "False":
			p.advance()

			return &Literal{at: at(t.pos), Value: t.text == "True"}, nil
		}

	case tokOp:
		switch t.text {
		case "(":
			return p.parseParen()
		case "[":
			return p.parseList()
		case "{":
			return p.parseBrace()
		case "...":
			return nil, p.errorf(t.pos, "Ellipsis is not supported")
		}
	}

	return nil, p.unexpected()
}

func (p *parser) parseParen() (Expr, error) {
	t := p.advance()

	if p.acceptOp(")") {
		return &Collection{at: at(t.pos), Form: FormTuple}, nil
	}

	if p.isKeyword("yield") {
		y, err := p.parseYield()
		if err != nil {
			return nil, err
		}

		_, err = p.expectOp(")")

		return y, err
	}

	first, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("for") {
		gens, err := p.parseComprehensionClauses()
		if err != nil {
			return nil, err
		}

		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}

		return &GeneratorExp{at: at(t.pos), Elt: first, Generators: gens}, nil
	}

	if p.acceptOp(")") {
		if _, ok := first.(*Starred); ok {
			return nil, p.errorf(first.Pos(), "cannot use starred expression here")
		}

		return first, nil
	}

	tuple := &Collection{at: at(t.pos), Form: FormTuple, Elts: []Expr{first}}

	if err := p.parseItems(tuple, ")"); err != nil {
		return nil, err
	}

	return tuple, nil
}

func (p *parser) parseList() (Expr, error) {
	t := p.advance()
	list := &Collection{at: at(t.pos), Form: FormList}

	if p.acceptOp("]") {
		return list, nil
	}

	first, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("for") {
		return p.finishComprehension(t.pos, FormList, nil, first, "]")
	}

	list.Elts = []Expr{first}

	if err := p.parseItems(list, "]"); err != nil {
		return nil, err
	}

	return list, nil
}

func (p *parser) parseBrace() (Expr, error) {
	t := p.advance()

	if p.acceptOp("}") {
		return &Collection{at: at(t.pos), Form: FormDict}, nil
	}

	dict := &Collection{at: at(t.pos), Form: FormDict}

	if p.acceptOp("**") {
		v, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}

		dict.Keys = append(dict.Keys, nil)
		dict.Elts = append(dict.Elts, v)

		return dict, p.parseDictItems(dict)
	}

	first, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}

	if _, star := first.(*Starred); !star && p.acceptOp(":") {
		v, err := p.parseTest()
		if err != nil {
			return nil, err
		}

		if p.isKeyword("for") {
			return p.finishComprehension(t.pos, FormDict, first, v, "}")
		}

		dict.Keys = append(dict.Keys, first)
		dict.Elts = append(dict.Elts, v)

		return dict, p.parseDictItems(dict)
	}

	if p.isKeyword("for") {
		return p.finishComprehension(t.pos, FormSet, nil, first, "}")
	}

	set := &Collection{at: at(t.pos), Form: FormSet, Elts: []Expr{first}}

	if err := p.parseItems(set, "}"); err != nil {
		return nil, err
	}

	return set, nil
}

// parseItems continues a comma-separated display after its first element
// and consumes the closing delimiter.
func (p *parser) parseItems(c *Collection, end string) error {
	for p.acceptOp(",") {
		if p.isOp(end) {
			break
		}

		x, err := p.parseTestOrStar()
		if err != nil {
			return err
		}

		c.Elts = append(c.Elts, x)
	}

	_, err := p.expectOp(end)

	return err
}

func (p *parser) parseDictItems(d *Collection) error {
	for p.acceptOp(",") {
		if p.isOp("}") {
			break
		}

		if p.acceptOp("**") {
			v, err := p.parseBitOr()
			if err != nil {
				return err
			}

			d.Keys = append(d.Keys, nil)
			d.Elts = append(d.Elts, v)

			continue
		}

		k, err := p.parseTest()
		if err != nil {
			return err
		}

		if _, err := p.expectOp(":"); err != nil {
			return err
		}

		v, err := p.parseTest()
		if err != nil {
			return err
		}

		d.Keys = append(d.Keys, k)
		d.Elts = append(d.Elts, v)
	}

	_, err := p.expectOp("}")

	return err
}

func (p *parser) finishComprehension(start Position, form Form, key, elt Expr, end string) (Expr, error) {
	if _, ok := elt.(*Starred); ok {
		return nil, p.errorf(elt.Pos(), "iterable unpacking cannot be used in comprehension")
	}

	gens, err := p.parseComprehensionClauses()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectOp(end); err != nil {
		return nil, err
	}

	return &Comprehension{at: at(start), Form: form, Key: key, Elt: elt, Generators: gens}, nil
}

func (p *parser) parseComprehensionClauses() ([]*ForClause, error) {
	var gens []*ForClause

	for p.isKeyword("for") {
		t := p.advance()

		target, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}

		if _, err := p.expectKeyword("in"); err != nil {
			return nil, err
		}

		iter, err := p.parseOrTest()
		if err != nil {
			return nil, err
		}

		c := &ForClause{Pos: t.pos, Target: target, Iter: iter}

		for p.acceptKeyword("if") {
			cond, err := p.parseOrTest()
			if err != nil {
				return nil, err
			}

			c.Ifs = append(c.Ifs, cond)
		}

		gens = append(gens, c)
	}

	if p.isKeyword("async") {
		return nil, p.errorf(p.peek().pos, "async comprehensions are not supported")
	}

	return gens, nil
}

func (p *parser) parseTestOrStar() (Expr, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "*" {
		p.advance()

		x, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}

		return &Starred{at: at(t.pos), X: x}, nil
	}

	return p.parseTest()
}

// parseTestListStar parses a comma-separated expression list, producing a
// tuple when a comma is present.
func (p *parser) parseTestListStar() (Expr, error) {
	return p.parseSequence(p.parseTestOrStar)
}

func (p *parser) parseTestList() (Expr, error) {
	return p.parseSequence(p.parseTest)
}

func (p *parser) parseYieldOrTestListStar() (Expr, error) {
	if p.isKeyword("yield") {
		return p.parseYield()
	}

	return p.parseTestListStar()
}

func (p *parser) parseYieldOrTestList() (Expr, error) {
	if p.isKeyword("yield") {
		return p.parseYield()
	}

	return p.parseTestList()
}

func (p *parser) parseSequence(item func() (Expr, error)) (Expr, error) {
	start := p.peek().pos

	first, err := item()
	if err != nil {
		return nil, err
	}

	if !p.isOp(",") {
		return first, nil
	}

	tuple := &Collection{at: at(start), Form: FormTuple, Elts: []Expr{first}}

	for p.acceptOp(",") {
		if !p.startsExpr() {
			break
		}

		x, err := item()
		if err != nil {
			return nil, err
		}

		tuple.Elts = append(tuple.Elts, x)
	}

	return tuple, nil
}

// parseTargetList parses assignment targets for "for" loops and
// comprehensions, stopping before "in".
func (p *parser) parseTargetList() (Expr, error) {
	start := p.peek().pos

	items, trailing, err := p.targetItems()
	if err != nil {
		return nil, err
	}

	var target Expr = &Collection{at: at(start), Form: FormTuple, Elts: items}
	if len(items) == 1 && !trailing {
		target = items[0]
	}

	if err := p.checkTarget(target, "assign to", true); err != nil {
		return nil, err
	}

	return target, nil
}

// parseTargetItems parses the targets of a del statement.
func (p *parser) parseTargetItems() ([]Expr, error) {
	items, _, err := p.targetItems()

	return items, err
}

func (p *parser) targetItems() (items []Expr, trailing bool, err error) {
	for {
		var x Expr

		if t := p.peek(); t.kind == tokOp && t.text == "*" {
			p.advance()

			inner, err := p.parseBitOr()
			if err != nil {
				return nil, false, err
			}

			x = &Starred{at: at(t.pos), X: inner}
		} else if x, err = p.parseBitOr(); err != nil {
			return nil, false, err
		}

		items = append(items, x)

		if !p.acceptOp(",") {
			return items, false, nil
		}

		if p.isKeyword("in") || !p.startsExpr() {
			return items, true, nil
		}
	}
}

func (p *parser) parseYield() (Expr, error) {
	t := p.advance()
	y := &Yield{at: at(t.pos)}

	var err error

	switch {
	case p.acceptKeyword("from"):
		y.From = true
		y.Value, err = p.parseTest()
	case p.startsExpr():
		y.Value, err = p.parseTestListStar()
	}

	if err != nil {
		return nil, err
	}

	return y, nil
}
