// Package cgen holds the C-rendering helpers shared by kernelc and userc:
// type name mangling, pure-expression rendering, and the per-function
// unique-temporary namer that both codegens use to satisfy the
// literal-key/value rule of spec.md §4.7.
package cgen

import (
	"fmt"
	"strings"

	"github.com/kernelscript/ksc/internal/ast"
)

// TypeToC renders t as a C type name. Named types (structs, enums,
// aliases, and the include-injected BTF types like xdp_md) render as
// `struct <Name>`; their definitions come from generated headers or included
// BTF, not from this renderer.
func TypeToC(t ast.Type) string {
	switch n := t.(type) {
	case nil:
		return "void"
	case *ast.PrimitiveType:
		return primitiveC(n.Kind)
	case *ast.StrType:
		return fmt.Sprintf("char[%d]", n.N)
	case *ast.ArrayType:
		return TypeToC(n.Elem)
	case *ast.NamedType:
		return "struct " + n.Name
	case *ast.PointerType:
		return TypeToC(n.Elem) + " *"
	case *ast.MapType:
		return "int" // a map reference degrades to its FD/slot in generated code
	default:
		return "void"
	}
}

// ArraySuffix renders the trailing `[N]` for t if t is an ArrayType,
// otherwise the empty string — used when TypeToC(t) alone would drop the
// dimension (C declares arrays `T name[N];`, not `T[N] name;`).
func ArraySuffix(t ast.Type) string {
	if n, ok := t.(*ast.ArrayType); ok {
		return fmt.Sprintf("[%d]", n.N)
	}
	return ""
}

func primitiveC(k ast.PrimitiveKind) string {
	switch k {
	case ast.U8:
		return "__u8"
	case ast.U16:
		return "__u16"
	case ast.U32:
		return "__u32"
	case ast.U64:
		return "__u64"
	case ast.I8:
		return "__s8"
	case ast.I16:
		return "__s16"
	case ast.I32:
		return "__s32"
	case ast.I64:
		return "__s64"
	case ast.Bool:
		return "bool"
	default:
		return "int"
	}
}

// Namer hands out temporary names unique within one function, as spec.md
// §4.7's literal-key/value rule requires.
type Namer struct {
	counters map[string]int
}

func NewNamer() *Namer { return &Namer{counters: make(map[string]int)} }

// Temp returns a fresh name derived from base, e.g. Temp("k") -> "k_tmp0",
// then "k_tmp1" on the next call with the same base.
func (n *Namer) Temp(base string) string {
	i := n.counters[base]
	n.counters[base] = i + 1
	return fmt.Sprintf("%s_tmp%d", base, i)
}

// IsLiteral reports whether e is a literal (not an addressable lvalue),
// triggering the fresh-temporary rule wherever its address is needed.
func IsLiteral(e ast.Expr) bool {
	switch e.(type) {
	case *ast.IntLit, *ast.BoolLit, *ast.StringLit, *ast.NoneExpr:
		return true
	}
	return false
}

// Expr renders a pure expression (no map indexing, which both codegens
// lower to helper calls instead) as C source text.
func Expr(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.IntLit:
		return fmt.Sprintf("%d", n.Tag.Widen(n.Raw))
	case *ast.BoolLit:
		if n.Value {
			return "true"
		}
		return "false"
	case *ast.StringLit:
		return fmt.Sprintf("%q", n.Value)
	case *ast.NoneExpr:
		return "NULL"
	case *ast.Ident:
		return n.Name
	case *ast.FieldAccess:
		return Expr(n.Target) + "." + n.Field
	case *ast.ArrowAccess:
		return Expr(n.Target) + "->" + n.Field
	case *ast.UnaryExpr:
		return string(n.Op) + Expr(n.Operand)
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", Expr(n.Left), string(n.Op), Expr(n.Right))
	case *ast.CallExpr:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Expr(a)
		}
		return fmt.Sprintf("%s(%s)", Expr(n.Callee), strings.Join(args, ", "))
	default:
		return "/* unsupported expression */"
	}
}

// MapTypeName is the BPF_MAP_TYPE_* macro for kind.
func MapTypeName(kind ast.MapKind) string {
	switch kind {
	case ast.MapHash:
		return "BPF_MAP_TYPE_HASH"
	case ast.MapLRUHash:
		return "BPF_MAP_TYPE_LRU_HASH"
	case ast.MapArray:
		return "BPF_MAP_TYPE_ARRAY"
	case ast.MapPercpuHash:
		return "BPF_MAP_TYPE_PERCPU_HASH"
	case ast.MapPercpuArray:
		return "BPF_MAP_TYPE_PERCPU_ARRAY"
	case ast.MapRingbuf:
		return "BPF_MAP_TYPE_RINGBUF"
	case ast.MapPerfEventArray:
		return "BPF_MAP_TYPE_PERF_EVENT_ARRAY"
	default:
		return "BPF_MAP_TYPE_UNSPEC"
	}
}
