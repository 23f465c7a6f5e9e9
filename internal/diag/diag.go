// Package diag implements the closed error taxonomy of spec.md §7. Every
// compiler stage reports failures as a *diag.Error carrying the precise
// position of the offending node; ExitCode below converts them into process
// exit codes (spec.md §6), and cmd/ksc is its caller.
package diag

import (
	"fmt"

	"github.com/kernelscript/ksc/internal/ast"
)

// Kind is one member of the closed error taxonomy.
type Kind string

const (
	KindParseError            Kind = "ParseError"
	KindDuplicateSymbol       Kind = "DuplicateSymbol"
	KindUnresolvedSymbol      Kind = "UnresolvedSymbol"
	KindTypeMismatch          Kind = "TypeMismatch"
	KindNotCallable           Kind = "NotCallable"
	KindArityMismatch         Kind = "ArityMismatch"
	KindInvalidMainSignature  Kind = "InvalidMainSignature"
	KindMissingMain           Kind = "MissingMain"
	KindMultipleMain          Kind = "MultipleMain"
	KindPrivateNotExposed     Kind = "PrivateNotExposed"
	KindAttributeMisuse       Kind = "AttributeMisuse"
	KindUnknownAttribute      Kind = "UnknownAttribute"
	KindMapMisuse             Kind = "MapMisuse"
	KindVerifierWouldReject   Kind = "VerifierWouldReject"
)

// Error is a single diagnostic: a taxonomy Kind, the source position of the
// offending node, and a human-readable message. Error implements the error
// interface by formatting itself as "file:line:col: kind: message"
// (spec.md §7), which is exactly what the CLI driver prints verbatim.
type Error struct {
	Kind     Kind
	Pos      ast.Position
	Message  string
	Expected string // set for KindTypeMismatch
	Got      string // set for KindTypeMismatch
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Message)
}

// New builds an Error of kind at pos with a formatted message.
func New(kind Kind, pos ast.Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// TypeMismatch builds a KindTypeMismatch error with the expected/got type
// strings recorded separately, so formatters and tests can inspect them
// without reparsing Message.
func TypeMismatch(pos ast.Position, expected, got string) *Error {
	return &Error{
		Kind:     KindTypeMismatch,
		Pos:      pos,
		Message:  fmt.Sprintf("expected %s, got %s", expected, got),
		Expected: expected,
		Got:      got,
	}
}

// ExitCode maps a compiler failure to the process exit code spec.md §6
// defines. Any *diag.Error (the entire closed taxonomy) exits 1; anything
// else (I/O failures) exits 2.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*Error); ok {
		return 1
	}
	if errs, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range errs.Unwrap() {
			if _, ok := e.(*Error); ok {
				return 1
			}
		}
	}
	return 2
}
