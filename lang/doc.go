// Package lang parses cask scripts.
//
// The language is an indentation-structured, dynamically typed subset of
// Python. [Parse] turns source text into an immutable [Script] in three
// stages: a hand-written lexer that synthesizes INDENT and DEDENT tokens,
// a recursive-descent parser that produces a closed set of [Node] types,
// and [Validate], which walks the tree and fails closed on any construct
// outside the allow-list.
//
// The parser recognizes more of the host grammar than the sandbox permits
// (imports, classes, lambdas, generators, with-statements, global and
// nonlocal declarations, decorators) so that such scripts are rejected with
// a precise [*RestrictionError] naming the construct rather than an opaque
// syntax error.
//
// # Example
//
//	script, err := lang.Parse(ctx, "hello", "print('hello')\n")
//	if err != nil {
//		var re *lang.RestrictionError
//		if errors.As(err, &re) {
//			// re.Construct names the rejected construct
//		}
//	}
package lang
