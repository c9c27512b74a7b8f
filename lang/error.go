package lang

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Sentinel errors.
var (
	ErrReadInput        = NewError("failed to read input")
	ErrSourceTooLong    = NewError("script source too long")
	ErrMaxDepthExceeded = NewError("maximum nesting depth exceeded")
)

// Error is an error with optional structured logging attributes.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
}

// NewError returns an [Error] with message msg.
func NewError(msg string) *Error { return &Error{msg: msg} }

func (e *Error) Error() string {
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

func (e *Error) Unwrap() error { return e.err }

// Is matches errors derived from the same sentinel through With or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.msg == e.msg && t.err == nil && len(t.attrs) == 0
}

func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap returns a copy of e wrapping err.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, attrs: e.attrs}
}

// With returns a copy of e with attrs appended.
func (e *Error) With(attrs ...slog.Attr) *Error {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)

	return &Error{msg: e.msg, err: e.err, attrs: merged}
}

// SyntaxError reports source that does not conform to the grammar.
type SyntaxError struct {
	Msg    string
	Pos    Position
	Script string
	Source string
	err    error
}

func (e *SyntaxError) Error() string {
	var b strings.Builder

	if e.Script != "" {
		b.WriteString(e.Script)
		b.WriteByte(':')
	}

	if e.Pos.IsValid() {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	} else if e.Script != "" {
		b.WriteByte(' ')
	}

	b.WriteString("syntax error: ")
	b.WriteString(e.Msg)

	return b.String()
}

func (e *SyntaxError) Unwrap() error { return e.err }

// Snippet renders the offending source line with a caret under the
// error column. It is empty when the source is unknown.
func (e *SyntaxError) Snippet() string { return snippet(e.Source, e.Pos) }

func (e *SyntaxError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Msg),
		slog.String("script", e.Script),
		slog.Int("line", e.Pos.Line),
		slog.Int("column", e.Pos.Column),
	)
}

// RestrictionError reports a construct the sandbox does not permit.
type RestrictionError struct {
	Construct string
	Detail    string
	Pos       Position
	Script    string
}

func (e *RestrictionError) Error() string {
	var b strings.Builder

	if e.Script != "" {
		b.WriteString(e.Script)
		b.WriteByte(':')
	}

	if e.Pos.IsValid() {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	} else if e.Script != "" {
		b.WriteByte(' ')
	}

	b.WriteString(e.Construct)
	b.WriteString(" is not permitted")

	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteByte(')')
	}

	return b.String()
}

func (e *RestrictionError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("construct", e.Construct),
		slog.String("script", e.Script),
		slog.Int("line", e.Pos.Line),
		slog.Int("column", e.Pos.Column),
	)
}

func snippet(source string, pos Position) string {
	if source == "" || !pos.IsValid() {
		return ""
	}

	lines := strings.Split(source, "\n")
	if pos.Line > len(lines) {
		return ""
	}

	var b strings.Builder

	num := strconv.Itoa(pos.Line)

	b.WriteString("  ")
	b.WriteString(num)
	b.WriteString(" | ")
	b.WriteString(strings.TrimRight(lines[pos.Line-1], "\r"))
	b.WriteByte('\n')

	// 2 leading spaces plus " | "
	pad := len(num) + 5
	if pos.Column > 1 {
		pad += pos.Column - 1
	}

	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString("^\n")

	return b.String()
}
