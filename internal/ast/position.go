// Package ast defines the untyped syntax tree produced by the parser and
// later annotated with types by the checker. Every node is a closed sum
// type: Decl, Stmt, Expr, and Type each have a private marker method, so
// only types declared in this package can implement them.
package ast

import "fmt"

// Position locates a node in its source file.
type Position struct {
	File   string
	Line   int
	Column int
}

// String renders the position as "file:line:col", the prefix used by every
// diagnostic the compiler emits.
func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}
