package lang

import "strings"

// allowed is the closed set of node kinds a script may contain.
var allowed = map[Kind]bool{
	KindModule:        true,
	KindExprStmt:      true,
	KindAssign:        true,
	KindAugAssign:     true,
	KindIf:            true,
	KindWhile:         true,
	KindFor:           true,
	KindFunctionDef:   true,
	KindReturn:        true,
	KindBreak:         true,
	KindContinue:      true,
	KindPass:          true,
	KindTry:           true,
	KindRaise:         true,
	KindDelete:        true,
	KindAssert:        true,
	KindLiteral:       true,
	KindName:          true,
	KindUnaryOp:       true,
	KindBinOp:         true,
	KindBoolOp:        true,
	KindCompare:       true,
	KindCall:          true,
	KindIfExp:         true,
	KindCollection:    true,
	KindSubscript:     true,
	KindSlice:         true,
	KindAttribute:     true,
	KindComprehension: true,
	KindStarred:       true,
}

// dynamicEval names builtins that would evaluate code or reflect on the
// interpreter. Calls to them are rejected even if a binding exists.
var dynamicEval = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"__import__": true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"open":       true,
}

// Restricted constructs that are not node kinds.
const (
	ConstructDynamicEval     = "DynamicEval"
	ConstructDunderAttribute = "DunderAttribute"
	ConstructReservedName    = "ReservedName"
)

// Allowed reports whether nodes of kind k may appear in a script.
func Allowed(k Kind) bool { return allowed[k] }

// Validate walks m and returns a [*RestrictionError] for the first node,
// in source order, that the sandbox does not permit.
func Validate(m *Module) error {
	var err *RestrictionError

	Inspect(m, func(n Node) bool {
		if err != nil {
			return false
		}

		if !allowed[n.Kind()] {
			err = &RestrictionError{Construct: n.Kind().String(), Pos: n.Pos()}

			return false
		}

		switch n := n.(type) {
		case *Call:
			if name, ok := n.Func.(*Name); ok && dynamicEval[name.ID] {
				err = &RestrictionError{
					Construct: ConstructDynamicEval,
					Detail:    name.ID,
					Pos:       n.Pos(),
				}
			}

		case *Attribute:
			if isDunder(n.Name) {
				err = &RestrictionError{
					Construct: ConstructDunderAttribute,
					Detail:    n.Name,
					Pos:       n.Pos(),
				}
			}

		case *FunctionDef:
			if strings.HasSuffix(n.Name, "_") {
				err = &RestrictionError{
					Construct: ConstructReservedName,
					Detail:    "function names ending in '_' are reserved: " + n.Name,
					Pos:       n.Pos(),
				}
			}
		}

		return err == nil
	})

	if err != nil {
		return err
	}

	return nil
}

func isDunder(s string) bool {
	return len(s) > 4 && strings.HasPrefix(s, "__") && strings.HasSuffix(s, "__")
}
