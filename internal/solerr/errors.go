// Package solerr defines the error vocabulary shared by every stage of the
// Solid toolchain: lexing, IR assembly, type resolution, template
// instantiation, lowering, and interpretation.
package solerr

import (
	"fmt"
	"strings"
)

// Kind identifies which stage raised an Error.
type Kind string

const (
	LexError         Kind = "LexError"
	ParseError       Kind = "ParseError"
	ResolveError     Kind = "ResolveError"
	LayoutError      Kind = "LayoutError"
	TypeError        Kind = "TypeError"
	OverloadError    Kind = "OverloadError"
	TemplateError    Kind = "TemplateError"
	IRError          Kind = "IRError"
	InterpreterError Kind = "InterpreterError"
)

// Location pinpoints a byte offset and line/column in some source text,
// textual IR included.
type Location struct {
	File   string
	Offset int
	Line   int
	Column int
}

// Error is the single error type returned across every public entry point
// in the toolchain. Nothing panics across a package boundary; a panic
// inside a package is a bug in that package.
type Error struct {
	Kind     Kind
	Message  string
	Location Location
	Source   string // the offending source line, if known
}

func New(kind Kind, loc Location, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	}
}

func (e *Error) WithSource(line string) *Error {
	e.Source = line
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Kind, e.Message)
	if e.Location.File != "" || e.Location.Line > 0 {
		fmt.Fprintf(&sb, " (at %s:%d:%d)", e.Location.File, e.Location.Line, e.Location.Column)
	}
	if e.Source != "" {
		pad := e.Location.Column - 1
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(&sb, "\n  %d | %s\n  %s^", e.Location.Line, e.Source,
			strings.Repeat(" ", len(fmt.Sprintf("%d | ", e.Location.Line))+pad))
	}
	return sb.String()
}
