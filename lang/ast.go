package lang

import "fmt"

// Position locates a token or node in script source. Line and Column are
// 1-based; Offset is the 0-based byte offset.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// IsValid reports whether p refers to a real source location.
func (p Position) IsValid() bool { return p.Line > 0 }

// Kind identifies the variant of a syntax-tree node.
type Kind uint8

const (
	KindModule Kind = iota
	KindExprStmt
	KindAssign
	KindAugAssign
	KindIf
	KindWhile
	KindFor
	KindFunctionDef
	KindReturn
	KindBreak
	KindContinue
	KindPass
	KindTry
	KindRaise
	KindDelete
	KindAssert
	KindImport
	KindImportFrom
	KindClassDef
	KindGlobal
	KindNonlocal
	KindWith
	KindDecorated
	KindLiteral
	KindName
	KindUnaryOp
	KindBinOp
	KindBoolOp
	KindCompare
	KindCall
	KindIfExp
	KindCollection
	KindSubscript
	KindSlice
	KindAttribute
	KindComprehension
	KindStarred
	KindLambda
	KindYield
	KindAwait
	KindGeneratorExp
)

var kindNames = [...]string{
	KindModule:        "Module",
	KindExprStmt:      "ExprStmt",
	KindAssign:        "Assign",
	KindAugAssign:     "AugAssign",
	KindIf:            "If",
	KindWhile:         "While",
	KindFor:           "For",
	KindFunctionDef:   "FunctionDef",
	KindReturn:        "Return",
	KindBreak:         "Break",
	KindContinue:      "Continue",
	KindPass:          "Pass",
	KindTry:           "Try",
	KindRaise:         "Raise",
	KindDelete:        "Delete",
	KindAssert:        "Assert",
	KindImport:        "Import",
	KindImportFrom:    "ImportFrom",
	KindClassDef:      "ClassDef",
	KindGlobal:        "Global",
	KindNonlocal:      "Nonlocal",
	KindWith:          "With",
	KindDecorated:     "Decorated",
	KindLiteral:       "Literal",
	KindName:          "Name",
	KindUnaryOp:       "UnaryOp",
	KindBinOp:         "BinOp",
	KindBoolOp:        "BoolOp",
	KindCompare:       "Compare",
	KindCall:          "Call",
	KindIfExp:         "IfExp",
	KindCollection:    "CollectionLiteral",
	KindSubscript:     "Subscript",
	KindSlice:         "Slice",
	KindAttribute:     "Attribute",
	KindComprehension: "Comprehension",
	KindStarred:       "Starred",
	KindLambda:        "Lambda",
	KindYield:         "Yield",
	KindAwait:         "Await",
	KindGeneratorExp:  "GeneratorExp",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", k)
}

// Node is a syntax-tree node. The set of implementations is closed.
type Node interface {
	Pos() Position
	Kind() Kind
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

type at Position

func (a at) Pos() Position { return Position(a) }

// Operator is a unary, binary, boolean or comparison operator.
type Operator uint8

const (
	OpAdd Operator = iota + 1
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpMatMul
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLShift
	OpRShift

	OpNeg
	OpPos
	OpNot
	OpInvert

	OpAnd
	OpOr

	OpEq
	OpNotEq
	OpLt
	OpLtE
	OpGt
	OpGtE
	OpIn
	OpNotIn
	OpIs
	OpIsNot
)

var opSymbols = [...]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpFloorDiv: "//",
	OpMod:      "%",
	OpPow:      "**",
	OpMatMul:   "@",
	OpBitAnd:   "&",
	OpBitOr:    "|",
	OpBitXor:   "^",
	OpLShift:   "<<",
	OpRShift:   ">>",
	OpNeg:      "-",
	OpPos:      "+",
	OpNot:      "not",
	OpInvert:   "~",
	OpAnd:      "and",
	OpOr:       "or",
	OpEq:       "==",
	OpNotEq:    "!=",
	OpLt:       "<",
	OpLtE:      "<=",
	OpGt:       ">",
	OpGtE:      ">=",
	OpIn:       "in",
	OpNotIn:    "not in",
	OpIs:       "is",
	OpIsNot:    "is not",
}

func (o Operator) String() string {
	if int(o) < len(opSymbols) && opSymbols[o] != "" {
		return opSymbols[o]
	}

	return fmt.Sprintf("Operator(%d)", o)
}

// binaryOps maps augmented and plain operator tokens onto operators.
var binaryOps = map[string]Operator{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "//": OpFloorDiv,
	"%": OpMod, "**": OpPow, "@": OpMatMul, "&": OpBitAnd, "|": OpBitOr,
	"^": OpBitXor, "<<": OpLShift, ">>": OpRShift,
}

// Form distinguishes collection and comprehension shapes.
type Form uint8

const (
	FormList Form = iota
	FormTuple
	FormSet
	FormDict
)

func (f Form) String() string {
	switch f {
	case FormList:
		return "list"
	case FormTuple:
		return "tuple"
	case FormSet:
		return "set"
	case FormDict:
		return "dict"
	default:
		return "form"
	}
}

// Module is the root of a parsed script.
type Module struct {
	at
	Body []Stmt
}

// Statements.
type (
	ExprStmt struct {
		at
		X Expr
	}

	// Assign binds Value to every target: a = b = value.
	Assign struct {
		at
		Targets []Expr
		Value   Expr
	}

	AugAssign struct {
		at
		Target Expr
		Op     Operator
		Value  Expr
	}

	If struct {
		at
		Test Expr
		Body []Stmt
		Else []Stmt
	}

	While struct {
		at
		Test Expr
		Body []Stmt
		Else []Stmt
	}

	For struct {
		at
		Target Expr
		Iter   Expr
		Body   []Stmt
		Else   []Stmt
	}

	FunctionDef struct {
		at
		Name   string
		Params []*Param
		VarArg string
		KwOnly []*Param
		KwArg  string
		Body   []Stmt
		Doc    string
	}

	Return struct {
		at
		Value Expr
	}

	Break    struct{ at }
	Continue struct{ at }
	Pass     struct{ at }

	Try struct {
		at
		Body     []Stmt
		Handlers []*ExceptHandler
		Else     []Stmt
		Finally  []Stmt
	}

	// Raise with a nil Exc re-raises the exception being handled.
	Raise struct {
		at
		Exc   Expr
		Cause Expr
	}

	Delete struct {
		at
		Targets []Expr
	}

	Assert struct {
		at
		Test Expr
		Msg  Expr
	}

	Import struct {
		at
		Names []string
	}

	ImportFrom struct {
		at
		Module string
		Names  []string
	}

	ClassDef struct {
		at
		Name  string
		Bases []Expr
		Body  []Stmt
	}

	Global struct {
		at
		Names []string
	}

	Nonlocal struct {
		at
		Names []string
	}

	With struct {
		at
		Items   []Expr
		Targets []Expr
		Body    []Stmt
	}

	Decorated struct {
		at
		Decorators []Expr
		Def        Stmt
	}
)

// Param is a named function parameter with an optional default.
type Param struct {
	Pos     Position
	Name    string
	Default Expr
}

// ExceptHandler is one except clause. A nil Type catches everything.
type ExceptHandler struct {
	Pos  Position
	Type Expr
	Name string
	Body []Stmt
}

// Expressions.
type (
	// Literal holds nil, bool, int64, float64 or string.
	Literal struct {
		at
		Value any
	}

	Name struct {
		at
		ID string
	}

	UnaryOp struct {
		at
		Op Operator
		X  Expr
	}

	BinOp struct {
		at
		Left  Expr
		Op    Operator
		Right Expr
	}

	BoolOp struct {
		at
		Op     Operator
		Values []Expr
	}

	// Compare is a possibly chained comparison: Left Ops[0] Comparators[0] ...
	Compare struct {
		at
		Left        Expr
		Ops         []Operator
		Comparators []Expr
	}

	// Call arguments may include *Starred; a Keyword with an empty Name is
	// a **mapping unpack.
	Call struct {
		at
		Func     Expr
		Args     []Expr
		Keywords []*Keyword
	}

	IfExp struct {
		at
		Test Expr
		Body Expr
		Else Expr
	}

	// Collection is a list, tuple, set or dict display. For dicts, Keys is
	// parallel to Elts and a nil key marks a **mapping unpack.
	Collection struct {
		at
		Form Form
		Elts []Expr
		Keys []Expr
	}

	Subscript struct {
		at
		X     Expr
		Index Expr
	}

	Slice struct {
		at
		Lower Expr
		Upper Expr
		Step  Expr
	}

	Attribute struct {
		at
		X    Expr
		Name string
	}

	// Comprehension is a list, set or dict comprehension. Key is set only
	// for dicts.
	Comprehension struct {
		at
		Form       Form
		Key        Expr
		Elt        Expr
		Generators []*ForClause
	}

	Starred struct {
		at
		X Expr
	}

	Lambda struct {
		at
		Params []*Param
		VarArg string
		KwArg  string
		Body   Expr
	}

	Yield struct {
		at
		Value Expr
		From  bool
	}

	Await struct {
		at
		X Expr
	}

	GeneratorExp struct {
		at
		Elt        Expr
		Generators []*ForClause
	}
)

// Keyword is a name=value call argument.
type Keyword struct {
	Pos   Position
	Name  string
	Value Expr
}

// ForClause is one "for target in iter if cond..." clause of a comprehension.
type ForClause struct {
	Pos    Position
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

func (*Module) Kind() Kind      { return KindModule }
func (*ExprStmt) Kind() Kind    { return KindExprStmt }
func (*Assign) Kind() Kind      { return KindAssign }
func (*AugAssign) Kind() Kind   { return KindAugAssign }
func (*If) Kind() Kind          { return KindIf }
func (*While) Kind() Kind       { return KindWhile }
func (*For) Kind() Kind         { return KindFor }
func (*FunctionDef) Kind() Kind { return KindFunctionDef }
func (*Return) Kind() Kind      { return KindReturn }
func (*Break) Kind() Kind       { return KindBreak }
func (*Continue) Kind() Kind    { return KindContinue }
func (*Pass) Kind() Kind        { return KindPass }
func (*Try) Kind() Kind         { return KindTry }
func (*Raise) Kind() Kind       { return KindRaise }
func (*Delete) Kind() Kind      { return KindDelete }
func (*Assert) Kind() Kind      { return KindAssert }
func (*Import) Kind() Kind      { return KindImport }
func (*ImportFrom) Kind() Kind  { return KindImportFrom }
func (*ClassDef) Kind() Kind    { return KindClassDef }
func (*Global) Kind() Kind      { return KindGlobal }
func (*Nonlocal) Kind() Kind    { return KindNonlocal }
func (*With) Kind() Kind        { return KindWith }
func (*Decorated) Kind() Kind   { return KindDecorated }

func (*Literal) Kind() Kind       { return KindLiteral }
func (*Name) Kind() Kind          { return KindName }
func (*UnaryOp) Kind() Kind       { return KindUnaryOp }
func (*BinOp) Kind() Kind         { return KindBinOp }
func (*BoolOp) Kind() Kind        { return KindBoolOp }
func (*Compare) Kind() Kind       { return KindCompare }
func (*Call) Kind() Kind          { return KindCall }
func (*IfExp) Kind() Kind         { return KindIfExp }
func (*Collection) Kind() Kind    { return KindCollection }
func (*Subscript) Kind() Kind     { return KindSubscript }
func (*Slice) Kind() Kind         { return KindSlice }
func (*Attribute) Kind() Kind     { return KindAttribute }
func (*Comprehension) Kind() Kind { return KindComprehension }
func (*Starred) Kind() Kind       { return KindStarred }
func (*Lambda) Kind() Kind        { return KindLambda }
func (*Yield) Kind() Kind         { return KindYield }
func (*Await) Kind() Kind         { return KindAwait }
func (*GeneratorExp) Kind() Kind  { return KindGeneratorExp }

func (*ExprStmt) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*For) stmtNode()         {}
func (*FunctionDef) stmtNode() {}
func (*Return) stmtNode()      {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Try) stmtNode()         {}
func (*Raise) stmtNode()       {}
func (*Delete) stmtNode()      {}
func (*Assert) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*ClassDef) stmtNode()    {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*With) stmtNode()        {}
func (*Decorated) stmtNode()   {}

func (*Literal) exprNode()       {}
func (*Name) exprNode()          {}
func (*UnaryOp) exprNode()       {}
func (*BinOp) exprNode()         {}
func (*BoolOp) exprNode()        {}
func (*Compare) exprNode()       {}
func (*Call) exprNode()          {}
func (*IfExp) exprNode()         {}
func (*Collection) exprNode()    {}
func (*Subscript) exprNode()     {}
func (*Slice) exprNode()         {}
func (*Attribute) exprNode()     {}
func (*Comprehension) exprNode() {}
func (*Starred) exprNode()       {}
func (*Lambda) exprNode()        {}
func (*Yield) exprNode()         {}
func (*Await) exprNode()         {}
func (*GeneratorExp) exprNode()  {}
