package repl

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/ardnew/cask/engine"
)

var (
	signatureStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	signatureNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")).
				Bold(true)
	currentParamStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)
)

// functionCall describes the call whose argument list holds the cursor.
type functionCall struct {
	name     string
	argIndex int
	inCall   bool
}

// detectFunctionCall finds the innermost unclosed call before cursor and
// the index of the argument being typed. Brackets and string literals are
// skipped.
func detectFunctionCall(input string, cursor int) functionCall {
	cursor = min(max(cursor, 0), len(input))

	type frame struct {
		open   rune
		at     int
		commas int
	}

	var (
		stack []frame
		quote rune
	)

	for i := 0; i < cursor; {
		r, size := utf8.DecodeRuneInString(input[i:])

		switch {
		case quote != 0:
			if r == '\\' {
				i += size
				_, size = utf8.DecodeRuneInString(input[min(i, len(input)):])
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[' || r == '{':
			stack = append(stack, frame{open: r, at: i})
		case r == ')' || r == ']' || r == '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case r == ',':
			if len(stack) > 0 {
				stack[len(stack)-1].commas++
			}
		}

		i += size
	}

	if len(stack) == 0 {
		return functionCall{}
	}

	top := stack[len(stack)-1]
	if top.open != '(' {
		return functionCall{}
	}

	name, _, _ := wordBounds(input[:top.at], top.at)
	if name == "" || afterDot(input, top.at-len(name)) {
		return functionCall{}
	}

	return functionCall{name: name, argIndex: top.commas, inCall: true}
}

// signatureOf returns the rendered signature of the callable bound to name
// and its parameter list. Native functions report no parameters.
func signatureOf(e *engine.Engine, name string) (signature string, params []string) {
	v, ok := e.GetVar(name)
	if !ok {
		return "", nil
	}

	switch fn := v.(type) {
	case *engine.Procedure:
		signature = fn.Signature()
		open := strings.IndexByte(signature, '(')

		return signature, splitParams(signature[open+1 : len(signature)-1])
	case *engine.Builtin:
		return fn.Name + "(...)", nil
	}

	return "", nil
}

// splitParams splits a parameter list at top-level commas.
func splitParams(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	var (
		params []string
		depth  int
		start  int
		quote  rune
	)

	for i, r := range list {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case r == ',' && depth == 0:
			params = append(params, strings.TrimSpace(list[start:i]))
			start = i + 1
		}
	}

	return append(params, strings.TrimSpace(list[start:]))
}

// currentParam returns the index of the parameter receiving argument arg.
// A *args parameter absorbs every later positional argument.
func currentParam(params []string, arg int) int {
	for i, p := range params {
		if i == arg {
			return i
		}

		if strings.HasPrefix(p, "*") && !strings.HasPrefix(p, "**") && p != "*" {
			return i
		}
	}

	return -1
}

// renderSignatureHint renders signature with the parameter receiving
// argument arg highlighted.
func renderSignatureHint(signature string, params []string, arg int) string {
	open := strings.IndexByte(signature, '(')
	if open < 0 || len(params) == 0 {
		return signatureStyle.Render(signature)
	}

	cur := currentParam(params, arg)

	var b strings.Builder

	b.WriteString(signatureNameStyle.Render(signature[:open]))
	b.WriteString(signatureStyle.Render("("))

	for i, p := range params {
		if i > 0 {
			b.WriteString(signatureStyle.Render(", "))
		}

		if i == cur {
			b.WriteString(currentParamStyle.Render(p))
		} else {
			b.WriteString(signatureStyle.Render(p))
		}
	}

	b.WriteString(signatureStyle.Render(")"))

	return b.String()
}
