package cgen_test

import (
	"testing"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/codegen/cgen"
)

func i32Tag() ast.IntTag { return ast.IntTag{Width: 32, Signed: true} }

func TestTypeToC_Primitives(t *testing.T) {
	cases := []struct {
		kind ast.PrimitiveKind
		want string
	}{
		{ast.U8, "__u8"},
		{ast.U16, "__u16"},
		{ast.U32, "__u32"},
		{ast.U64, "__u64"},
		{ast.I8, "__s8"},
		{ast.I16, "__s16"},
		{ast.I32, "__s32"},
		{ast.I64, "__s64"},
		{ast.Bool, "bool"},
	}
	for _, c := range cases {
		got := cgen.TypeToC(&ast.PrimitiveType{Kind: c.kind})
		if got != c.want {
			t.Errorf("TypeToC(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestTypeToC_Nil(t *testing.T) {
	if got := cgen.TypeToC(nil); got != "void" {
		t.Errorf("TypeToC(nil) = %q, want void", got)
	}
}

func TestTypeToC_Str(t *testing.T) {
	got := cgen.TypeToC(&ast.StrType{N: 16})
	if got != "char[16]" {
		t.Errorf("TypeToC(StrType) = %q, want char[16]", got)
	}
}

func TestTypeToC_NamedType(t *testing.T) {
	got := cgen.TypeToC(&ast.NamedType{Name: "Config"})
	if got != "struct Config" {
		t.Errorf("TypeToC(NamedType) = %q, want struct Config", got)
	}
}

func TestTypeToC_Pointer(t *testing.T) {
	got := cgen.TypeToC(&ast.PointerType{Elem: &ast.PrimitiveType{Kind: ast.U8}})
	if got != "__u8 *" {
		t.Errorf("TypeToC(Pointer) = %q, want \"__u8 *\"", got)
	}
}

func TestTypeToC_Array(t *testing.T) {
	got := cgen.TypeToC(&ast.ArrayType{Elem: &ast.PrimitiveType{Kind: ast.U32}, N: 4})
	if got != "__u32" {
		t.Errorf("TypeToC(Array) = %q, want __u32 (dimension rendered separately)", got)
	}
}

func TestTypeToC_Map(t *testing.T) {
	got := cgen.TypeToC(&ast.MapType{Kind: ast.MapHash})
	if got != "int" {
		t.Errorf("TypeToC(MapType) = %q, want int", got)
	}
}

func TestArraySuffix(t *testing.T) {
	if got := cgen.ArraySuffix(&ast.ArrayType{Elem: &ast.PrimitiveType{Kind: ast.U8}, N: 8}); got != "[8]" {
		t.Errorf("ArraySuffix(array) = %q, want [8]", got)
	}
	if got := cgen.ArraySuffix(&ast.PrimitiveType{Kind: ast.U8}); got != "" {
		t.Errorf("ArraySuffix(non-array) = %q, want empty", got)
	}
}

func TestNamer_TempIsUniquePerBase(t *testing.T) {
	n := cgen.NewNamer()
	if got := n.Temp("k"); got != "k_tmp0" {
		t.Errorf("first Temp(k) = %q, want k_tmp0", got)
	}
	if got := n.Temp("k"); got != "k_tmp1" {
		t.Errorf("second Temp(k) = %q, want k_tmp1", got)
	}
	if got := n.Temp("v"); got != "v_tmp0" {
		t.Errorf("Temp(v) = %q, want v_tmp0 (independent counter)", got)
	}
}

func TestIsLiteral(t *testing.T) {
	literals := []ast.Expr{
		&ast.IntLit{Raw: 1, Tag: i32Tag()},
		&ast.BoolLit{Value: true},
		&ast.StringLit{Value: "x"},
		&ast.NoneExpr{},
	}
	for _, e := range literals {
		if !cgen.IsLiteral(e) {
			t.Errorf("IsLiteral(%T) = false, want true", e)
		}
	}
	if cgen.IsLiteral(&ast.Ident{Name: "x"}) {
		t.Error("IsLiteral(Ident) = true, want false")
	}
}

func TestExpr_IntLit(t *testing.T) {
	got := cgen.Expr(&ast.IntLit{Raw: 42, Tag: i32Tag()})
	if got != "42" {
		t.Errorf("Expr(IntLit) = %q, want 42", got)
	}
}

func TestExpr_BoolLit(t *testing.T) {
	if got := cgen.Expr(&ast.BoolLit{Value: true}); got != "true" {
		t.Errorf("Expr(true) = %q, want true", got)
	}
	if got := cgen.Expr(&ast.BoolLit{Value: false}); got != "false" {
		t.Errorf("Expr(false) = %q, want false", got)
	}
}

func TestExpr_NoneExpr(t *testing.T) {
	if got := cgen.Expr(&ast.NoneExpr{}); got != "NULL" {
		t.Errorf("Expr(NoneExpr) = %q, want NULL", got)
	}
}

func TestExpr_FieldAndArrowAccess(t *testing.T) {
	id := &ast.Ident{Name: "cfg"}
	fa := &ast.FieldAccess{Target: id, Field: "threshold"}
	if got := cgen.Expr(fa); got != "cfg.threshold" {
		t.Errorf("Expr(FieldAccess) = %q, want cfg.threshold", got)
	}
	aa := &ast.ArrowAccess{Target: id, Field: "data"}
	if got := cgen.Expr(aa); got != "cfg->data" {
		t.Errorf("Expr(ArrowAccess) = %q, want cfg->data", got)
	}
}

func TestExpr_BinaryAndUnary(t *testing.T) {
	left := &ast.IntLit{Raw: 1, Tag: i32Tag()}
	right := &ast.IntLit{Raw: 2, Tag: i32Tag()}
	bin := &ast.BinaryExpr{Op: ast.OpAdd, Left: left, Right: right}
	if got := cgen.Expr(bin); got != "(1 + 2)" {
		t.Errorf("Expr(BinaryExpr) = %q, want (1 + 2)", got)
	}
	un := &ast.UnaryExpr{Op: ast.OpNot, Operand: &ast.BoolLit{Value: true}}
	if got := cgen.Expr(un); got != "!true" {
		t.Errorf("Expr(UnaryExpr) = %q, want !true", got)
	}
}

func TestExpr_CallExpr(t *testing.T) {
	call := &ast.CallExpr{
		Callee: &ast.Ident{Name: "bpf_ktime_get_ns"},
		Args:   []ast.Expr{&ast.IntLit{Raw: 1, Tag: i32Tag()}},
	}
	got := cgen.Expr(call)
	want := "bpf_ktime_get_ns(1)"
	if got != want {
		t.Errorf("Expr(CallExpr) = %q, want %q", got, want)
	}
}

func TestExpr_UnsupportedNodeDegradesToComment(t *testing.T) {
	got := cgen.Expr(&ast.IndexExpr{Map: &ast.Ident{Name: "m"}, Key: &ast.IntLit{Raw: 0, Tag: i32Tag()}})
	if got != "/* unsupported expression */" {
		t.Errorf("Expr(IndexExpr) = %q, want the unsupported-expression placeholder", got)
	}
}

func TestMapTypeName(t *testing.T) {
	cases := []struct {
		kind ast.MapKind
		want string
	}{
		{ast.MapHash, "BPF_MAP_TYPE_HASH"},
		{ast.MapLRUHash, "BPF_MAP_TYPE_LRU_HASH"},
		{ast.MapArray, "BPF_MAP_TYPE_ARRAY"},
		{ast.MapPercpuHash, "BPF_MAP_TYPE_PERCPU_HASH"},
		{ast.MapPercpuArray, "BPF_MAP_TYPE_PERCPU_ARRAY"},
		{ast.MapRingbuf, "BPF_MAP_TYPE_RINGBUF"},
		{ast.MapPerfEventArray, "BPF_MAP_TYPE_PERF_EVENT_ARRAY"},
	}
	for _, c := range cases {
		if got := cgen.MapTypeName(c.kind); got != c.want {
			t.Errorf("MapTypeName(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}
