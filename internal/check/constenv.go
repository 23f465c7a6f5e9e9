package check

import "github.com/kernelscript/ksc/internal/ast"

// ConstEnv is the rolling constant environment of spec.md §4.3/§9: an
// immutable association list threaded through statement checking.
// Reassignment invalidates a name by pushing a tombstone rather than
// mutating or removing anything, so an env snapshot taken before a branch
// remains valid after the branch returns.
type ConstEnv struct {
	name  string
	value int64
	valid bool
	next  *ConstEnv
}

// Bind records name as constant-valued v, shadowing any earlier binding.
func (e *ConstEnv) Bind(name string, v int64) *ConstEnv {
	return &ConstEnv{name: name, value: v, valid: true, next: e}
}

// Invalidate records that name is no longer known to be constant, e.g.
// after a plain assignment.
func (e *ConstEnv) Invalidate(name string) *ConstEnv {
	return &ConstEnv{name: name, valid: false, next: e}
}

// Lookup returns name's current constant value, walking from the most
// recent binding backward. The first binding found for name wins, whether
// it is a value or a tombstone.
func (e *ConstEnv) Lookup(name string) (int64, bool) {
	for b := e; b != nil; b = b.next {
		if b.name == name {
			return b.value, b.valid
		}
	}
	return 0, false
}

// FoldInt attempts to reduce e to a constant int64 under env. Only integer
// literals, constant-bound identifiers, negation, and the folded arithmetic
// operators (spec.md §4.3) ever fold; anything else reports ok=false.
func FoldInt(env *ConstEnv, e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Tag.Widen(n.Raw), true

	case *ast.Ident:
		return env.Lookup(n.Name)

	case *ast.UnaryExpr:
		v, ok := FoldInt(env, n.Operand)
		if !ok || n.Op != ast.OpNeg {
			return 0, false
		}
		return -v, true

	case *ast.BinaryExpr:
		if !n.Op.IsArithmetic() {
			return 0, false
		}
		l, okl := FoldInt(env, n.Left)
		r, okr := FoldInt(env, n.Right)
		if !okl || !okr {
			return 0, false
		}
		switch n.Op {
		case ast.OpAdd:
			return l + r, true
		case ast.OpSub:
			return l - r, true
		case ast.OpMul:
			return l * r, true
		case ast.OpDiv:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case ast.OpMod:
			if r == 0 {
				return 0, false
			}
			return l % r, true
		}
	}
	return 0, false
}
