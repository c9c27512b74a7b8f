package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ardnew/cask/lang"
)

// Category classifies an [Error]. Script exception classes share these
// names, so "except KeyError" matches errors of category [CategoryKey].
type Category string

const (
	CategoryException          Category = "Exception"
	CategoryLookup             Category = "LookupError"
	CategoryArithmetic         Category = "ArithmeticError"
	CategorySyntax             Category = "SyntaxRestrictionError"
	CategoryName               Category = "NameError"
	CategoryCollision          Category = "NamespaceCollisionError"
	CategoryType               Category = "TypeError"
	CategoryValue              Category = "ValueError"
	CategoryIndex              Category = "IndexError"
	CategoryKey                Category = "KeyError"
	CategoryZeroDivision       Category = "ZeroDivisionError"
	CategoryAttribute          Category = "AttributeError"
	CategoryAssertion          Category = "AssertionError"
	CategoryRecursion          Category = "RecursionError"
	CategoryRuntime            Category = "RuntimeError"
	CategoryTimeout            Category = "TimeoutError"
	CategoryExtensionLoad      Category = "ExtensionLoadError"
	CategoryExtensionCollision Category = "ExtensionCollisionError"
	CategoryBusy               Category = "BusyError"
	CategoryTermination        Category = "Termination"
)

// parents is the exception hierarchy. Categories without an entry derive
// directly from Exception.
var parents = map[Category]Category{
	CategoryIndex:        CategoryLookup,
	CategoryKey:          CategoryLookup,
	CategoryZeroDivision: CategoryArithmetic,
	CategoryCollision:    CategoryName,
	CategoryRecursion:    CategoryRuntime,
}

// Parent returns the category c derives from. Exception and Termination
// have no parent.
func (c Category) Parent() (Category, bool) {
	switch c {
	case CategoryException, CategoryTermination:
		return "", false
	}

	if p, ok := parents[c]; ok {
		return p, true
	}

	return CategoryException, true
}

// IsA reports whether c is target or derives from it. Termination derives
// from nothing, so no handler ever matches it.
func (c Category) IsA(target Category) bool {
	for {
		if c == target {
			return true
		}

		p, ok := c.Parent()
		if !ok {
			return false
		}

		c = p
	}
}

// Sentinel errors, one per category. errors.Is matches any [*Error] of the
// same or a derived category.
var (
	ErrSyntax             = NewError(CategorySyntax, "")
	ErrName               = NewError(CategoryName, "")
	ErrCollision          = NewError(CategoryCollision, "")
	ErrType               = NewError(CategoryType, "")
	ErrValue              = NewError(CategoryValue, "")
	ErrIndex              = NewError(CategoryIndex, "")
	ErrKey                = NewError(CategoryKey, "")
	ErrZeroDivision       = NewError(CategoryZeroDivision, "")
	ErrAttribute          = NewError(CategoryAttribute, "")
	ErrAssertion          = NewError(CategoryAssertion, "")
	ErrRecursion          = NewError(CategoryRecursion, "")
	ErrRuntime            = NewError(CategoryRuntime, "")
	ErrTimeout            = NewError(CategoryTimeout, "")
	ErrExtensionLoad      = NewError(CategoryExtensionLoad, "")
	ErrExtensionCollision = NewError(CategoryExtensionCollision, "")
	ErrBusy               = NewError(CategoryBusy, "")
	ErrTerminated         = NewError(CategoryTermination, "")
)

// Error is the single error type the engine returns to hosts and the value
// a script binds with "except ... as name".
type Error struct {
	Category Category
	Pos      lang.Position
	Script   string

	msg    string
	args   []any
	err    error
	origin error
	attrs  []slog.Attr
	cause  *Error
	exit   bool
}

// NewError returns an error of category c with message msg.
func NewError(c Category, msg string) *Error {
	return &Error{Category: c, msg: msg}
}

// Errorf returns an error of category c with a formatted message.
func Errorf(c Category, format string, args ...any) *Error {
	return &Error{Category: c, msg: fmt.Sprintf(format, args...)}
}

// Message returns the error text without category or location.
func (e *Error) Message() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	case len(e.args) == 1:
		return str(e.args[0])
	case len(e.args) > 1:
		return repr(NewTuple(e.args...))
	default:
		return ""
	}
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Script != "" {
		b.WriteString(e.Script)
		b.WriteByte(':')
	}

	if e.Pos.IsValid() {
		b.WriteString(e.Pos.String())
		b.WriteByte(':')
	}

	if b.Len() > 0 {
		b.WriteByte(' ')
	}

	b.WriteString(string(e.Category))

	if m := e.Message(); m != "" {
		b.WriteString(": ")
		b.WriteString(m)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	switch {
	case e.err != nil:
		return e.err
	case e.origin != nil:
		return e.origin
	case e.cause != nil:
		return e.cause
	default:
		return nil
	}
}

// Is matches target when it is an *Error carrying only a category (the
// sentinels) and e's category is the same or derived from it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.msg != "" || t.err != nil || len(t.args) > 0 {
		return false
	}

	return e.Category.IsA(t.Category)
}

func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+5)
	attrs = append(attrs, slog.String("category", string(e.Category)))

	if m := e.Message(); m != "" {
		attrs = append(attrs, slog.String("error", m))
	}

	if e.Script != "" {
		attrs = append(attrs, slog.String("script", e.Script))
	}

	if e.Pos.IsValid() {
		attrs = append(attrs, slog.Int("line", e.Pos.Line), slog.Int("column", e.Pos.Column))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap returns a copy of e wrapping err.
func (e *Error) Wrap(err error) *Error {
	c := e.clone()
	c.err = err

	return c
}

// With returns a copy of e with attrs appended.
func (e *Error) With(attrs ...slog.Attr) *Error {
	c := e.clone()
	c.attrs = append(append(make([]slog.Attr, 0, len(e.attrs)+len(attrs)), e.attrs...), attrs...)

	return c
}

// Args returns the arguments the script passed when constructing the
// exception, or the message when the engine raised it.
func (e *Error) Args() []any {
	if e.args != nil {
		return e.args
	}

	if m := e.Message(); m != "" {
		return []any{m}
	}

	return nil
}

func (e *Error) clone() *Error {
	c := *e

	return &c
}

// located returns e with its position filled in if it has none yet.
func (e *Error) located(script string, pos lang.Position) *Error {
	if e.Pos.IsValid() || !pos.IsValid() {
		return e
	}

	c := e.clone()
	c.Pos = pos
	c.Script = script

	return c
}

// ExitCode reports the status passed to exit_ when err ended a script
// that way.
func ExitCode(err error) (int, bool) {
	var e *Error
	if !errors.As(err, &e) || !e.exit {
		return 0, false
	}

	if len(e.args) == 1 {
		if n, ok := e.args[0].(int64); ok {
			return int(n), true
		}

		if e.args[0] == nil {
			return 0, true
		}
	}

	return 1, true
}

// halt carries a non-catchable termination through expression evaluation.
type halt struct{ err *Error }

func (h *halt) Error() string { return h.err.Error() }
func (h *halt) Unwrap() error { return h.err }

// asError converts any error returned by native code into an *Error.
func asError(err error) *Error {
	if err == nil {
		return nil
	}

	var h *halt
	if errors.As(err, &h) {
		return h.err
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var se *lang.SyntaxError
	if errors.As(err, &se) {
		return &Error{Category: CategorySyntax, Pos: se.Pos, Script: se.Script, msg: se.Msg, origin: err}
	}

	var re *lang.RestrictionError
	if errors.As(err, &re) {
		msg := re.Construct + " is not permitted"
		if re.Detail != "" {
			msg += " (" + re.Detail + ")"
		}

		return &Error{Category: CategorySyntax, Pos: re.Pos, Script: re.Script, msg: msg, origin: err}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout.Wrap(err)
	case errors.Is(err, context.Canceled):
		return ErrTerminated.Wrap(err)
	}

	return ErrRuntime.Wrap(err)
}
