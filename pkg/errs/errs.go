// Package errs defines the single error type shared by the reader,
// compiler, and interpreter. It doubles as a Go error (for functions
// that fail before any Env exists, such as the reader and compiler)
// and as a value.Value (so the interpreter can store it in the result
// register per the language's first-class Error value), matching how
// original_source/py/error.Error is both a Python exception and a
// printable/sexpr-able object.
package errs

import (
	"strings"

	"sprog/pkg/token"
	"sprog/pkg/value"
)

// Kind names why an Error was raised. Semantic, not a Go type name.
type Kind uint8

const (
	Parse Kind = iota
	Compile
	UnknownVariable
	WrongArity
	NotCallable
	Type
	ConstantRedefine
	NoValue
	EOF
	SingleLine
	Runtime
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse"
	case Compile:
		return "compile"
	case UnknownVariable:
		return "unknown-variable"
	case WrongArity:
		return "wrong-arity"
	case NotCallable:
		return "not-callable"
	case Type:
		return "type"
	case ConstantRedefine:
		return "constant-redefine"
	case NoValue:
		return "no-value"
	case EOF:
		return "eof"
	case SingleLine:
		return "single-line"
	case Runtime:
		return "runtime"
	default:
		return "error"
	}
}

// Error is the one error/value type for the whole module.
type Error struct {
	ErrKind Kind
	Msg     string
	Data    value.Value
	Tag     *token.Tag
}

// New builds an Error, inheriting Data's tag when Tag isn't given
// explicitly — mirrors original_source/py/error.gen's fallback.
func New(kind Kind, msg string, data value.Value, tag *token.Tag) *Error {
	e := &Error{ErrKind: kind, Msg: msg, Data: data, Tag: tag}
	if e.Tag == nil {
		if t, ok := data.(value.Tagged); ok {
			e.Tag = t.Tag()
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	msg := e.Msg
	if msg == "" {
		msg = "no message"
	}
	b.WriteString(msg)
	if e.Data != nil {
		b.WriteByte(' ')
		b.WriteString(e.Data.Sexpr())
	}
	if e.Tag != nil {
		return e.Tag.String() + ": error: " + b.String() + "\n" + e.Tag.Caret()
	}
	return "error: " + b.String()
}

// Kind implements value.Value: an Error is a first-class Scheme value.
func (*Error) Kind() value.Kind { return value.KindError }
func (e *Error) Sexpr() string  { return "#error" }
