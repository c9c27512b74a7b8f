package lang

// Inspect traverses the tree rooted at n in source order, calling fn for
// each node. Children of a node are visited only when fn returns true.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}

	stmts := func(list []Stmt) {
		for _, s := range list {
			Inspect(s, fn)
		}
	}

	exprs := func(list ...Expr) {
		for _, e := range list {
			if e != nil {
				Inspect(e, fn)
			}
		}
	}

	params := func(list []*Param) {
		for _, p := range list {
			exprs(p.Default)
		}
	}

	clauses := func(list []*ForClause) {
		for _, c := range list {
			exprs(c.Target, c.Iter)
			exprs(c.Ifs...)
		}
	}

	switch n := n.(type) {
	case *Module:
		stmts(n.Body)
	case *ExprStmt:
		exprs(n.X)
	case *Assign:
		exprs(n.Targets...)
		exprs(n.Value)
	case *AugAssign:
		exprs(n.Target, n.Value)
	case *If:
		exprs(n.Test)
		stmts(n.Body)
		stmts(n.Else)
	case *While:
		exprs(n.Test)
		stmts(n.Body)
		stmts(n.Else)
	case *For:
		exprs(n.Target, n.Iter)
		stmts(n.Body)
		stmts(n.Else)
	case *FunctionDef:
		params(n.Params)
		params(n.KwOnly)
		stmts(n.Body)
	case *Return:
		exprs(n.Value)
	case *Break, *Continue, *Pass, *Import, *ImportFrom, *Global, *Nonlocal:
	case *Try:
		stmts(n.Body)

		for _, h := range n.Handlers {
			exprs(h.Type)
			stmts(h.Body)
		}

		stmts(n.Else)
		stmts(n.Finally)
	case *Raise:
		exprs(n.Exc, n.Cause)
	case *Delete:
		exprs(n.Targets...)
	case *Assert:
		exprs(n.Test, n.Msg)
	case *ClassDef:
		exprs(n.Bases...)
		stmts(n.Body)
	case *With:
		exprs(n.Items...)
		exprs(n.Targets...)
		stmts(n.Body)
	case *Decorated:
		exprs(n.Decorators...)
		Inspect(n.Def, fn)

	case *Literal, *Name:
	case *UnaryOp:
		exprs(n.X)
	case *BinOp:
		exprs(n.Left, n.Right)
	case *BoolOp:
		exprs(n.Values...)
	case *Compare:
		exprs(n.Left)
		exprs(n.Comparators...)
	case *Call:
		exprs(n.Func)
		exprs(n.Args...)

		for _, k := range n.Keywords {
			exprs(k.Value)
		}
	case *IfExp:
		exprs(n.Test, n.Body, n.Else)
	case *Collection:
		for i, e := range n.Elts {
			if i < len(n.Keys) {
				exprs(n.Keys[i])
			}

			exprs(e)
		}
	case *Subscript:
		exprs(n.X, n.Index)
	case *Slice:
		exprs(n.Lower, n.Upper, n.Step)
	case *Attribute:
		exprs(n.X)
	case *Comprehension:
		exprs(n.Key, n.Elt)
		clauses(n.Generators)
	case *Starred:
		exprs(n.X)
	case *Lambda:
		params(n.Params)
		exprs(n.Body)
	case *Yield:
		exprs(n.Value)
	case *Await:
		exprs(n.X)
	case *GeneratorExp:
		exprs(n.Elt)
		clauses(n.Generators)
	}
}
