package kernelc_test

import (
	"strings"
	"testing"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/check"
	"github.com/kernelscript/ksc/internal/codegen/kernelc"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/ir"
	"github.com/kernelscript/ksc/internal/parser"
)

func buildIR(t *testing.T, src string) *ir.IR {
	t.Helper()
	f, err := parser.Parse("test.ks", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, cerr := check.Check(f)
	if cerr != nil {
		t.Fatalf("Check: %v", cerr)
	}
	return ir.Build(f, res)
}

func TestGenerate_WritesHeaderBoilerplateAndLicense(t *testing.T) {
	kir := buildIR(t, "fn main() -> i32 {\n\treturn 0\n}\n")
	out, err := kernelc.Generate("rate_limiter", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"// Code generated from rate_limiter.ks by ksc. DO NOT EDIT.",
		"#include \"vmlinux.h\"",
		"SEC(\"license\") = \"Dual BSD/GPL\"",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// S6 — a pinned map must carry LIBBPF_PIN_BY_NAME in its BTF map section.
func TestGenerate_PinnedMapCarriesPinningAttribute(t *testing.T) {
	src := `
pin var totals : hash<u32,u64>(64)

fn main() -> i32 {
	return totals[0]
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("pinned_globals", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "totals SEC(\".maps\")") {
		t.Fatalf("output missing totals map section:\n%s", out)
	}
	if !strings.Contains(out, "__uint(pinning, LIBBPF_PIN_BY_NAME);") {
		t.Errorf("output missing pinning attribute:\n%s", out)
	}
}

func TestGenerate_UnpinnedMapOmitsPinningAttribute(t *testing.T) {
	src := `
var counters : hash<u32,u64>(64)

fn main() -> i32 {
	return counters[0]
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(out, "LIBBPF_PIN_BY_NAME") {
		t.Errorf("unpinned map should not carry a pinning attribute:\n%s", out)
	}
}

func TestGenerate_XDPFunctionGetsXDPSection(t *testing.T) {
	src := `
include "xdp.kh"

@xdp
fn drop_all(ctx: *xdp_md) -> xdp_action {
	return 0
}

fn main() -> i32 {
	load(drop_all)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "SEC(\"xdp\")\nstruct xdp_action drop_all(struct xdp_md * ctx)") {
		t.Fatalf("output missing expected xdp section/signature:\n%s", out)
	}
}

func TestGenerate_TCFunctionSectionIncludesDirection(t *testing.T) {
	src := `
@tc("egress")
fn shape(skb: *__sk_buff) -> i32 {
	return 0
}

fn main() -> i32 {
	load(shape)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "SEC(\"tc/egress\")") {
		t.Fatalf("output missing tc/egress section:\n%s", out)
	}
}

// S5 — a small bounded loop must be unrolled into repeated blocks rather
// than emitted as a C for loop or a bpf_loop callback.
func TestGenerate_SmallBoundedLoopIsUnrolled(t *testing.T) {
	src := `
include "xdp.kh"

@xdp
fn count(ctx: *xdp_md) -> xdp_action {
	for i in 0..3 {
		var x : i32 = 0
	}
	return 0
}

fn main() -> i32 {
	load(count)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Count(out, "__s64 i = ") != 3 {
		t.Fatalf("expected 3 unrolled blocks, got output:\n%s", out)
	}
	if strings.Contains(out, "bpf_loop(") {
		t.Error("a small bounded loop must not lower to bpf_loop")
	}
}

func TestGenerate_LargeBoundedLoopUsesBpfLoopHelper(t *testing.T) {
	src := `
include "xdp.kh"

@xdp
fn count(ctx: *xdp_md) -> xdp_action {
	for i in 0..1000 {
		var x : i32 = 0
	}
	return 0
}

fn main() -> i32 {
	load(count)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "bpf_loop(1000, loop_cb_1, NULL, 0);") {
		t.Fatalf("expected a bpf_loop call with count 1000, got:\n%s", out)
	}
	if !strings.Contains(out, "static long loop_cb_1(__u64 i, void *ctx)") {
		t.Fatalf("expected a generated callback function, got:\n%s", out)
	}
}

func TestGenerate_MediumBoundedLoopUsesSimpleForLoop(t *testing.T) {
	src := `
include "xdp.kh"

@xdp
fn count(ctx: *xdp_md) -> xdp_action {
	for i in 0..50 {
		var x : i32 = 0
	}
	return 0
}

fn main() -> i32 {
	load(count)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "for (__s64 i = 0; i < 50; i++) {") {
		t.Fatalf("expected a plain for loop, got:\n%s", out)
	}
}

func TestGenerate_MapWriteLowersToUpdateElem(t *testing.T) {
	src := `
include "xdp.kh"

var counters : hash<u32,u64>(8)

@xdp
fn bump(ctx: *xdp_md) -> xdp_action {
	counters[0] = 1
	return 0
}

fn main() -> i32 {
	load(bump)
	return 0
}
`
	kir := buildIR(t, src)
	out, err := kernelc.Generate("unit", kir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out, "bpf_map_update_elem(&counters,") {
		t.Fatalf("expected a bpf_map_update_elem call, got:\n%s", out)
	}
}

func TestGenerate_RejectsRecursiveEBPFFunction(t *testing.T) {
	src := `
include "xdp.kh"

@xdp
fn loopy(ctx: *xdp_md) -> xdp_action {
	return loopy(ctx)
}

fn main() -> i32 {
	load(loopy)
	return 0
}
`
	f, err := parser.Parse("test.ks", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, cerr := check.Check(f)
	if cerr != nil {
		t.Fatalf("Check: %v", cerr)
	}
	kir := ir.Build(f, res)

	_, genErr := kernelc.Generate("unit", kir)
	if genErr == nil {
		t.Fatal("expected Generate to reject the recursive @xdp function")
	}
	if !strings.Contains(genErr.Error(), "recursive") {
		t.Errorf("error = %v, want it to mention recursion", genErr)
	}
}

func TestRejectsUnsafe_DetectsDirectRecursion(t *testing.T) {
	fn := &ast.FunctionDecl{Name: "f"}
	fn.Body = []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.CallExpr{Callee: &ast.Ident{Name: "f"}}},
	}
	err := kernelc.RejectsUnsafe(fn)
	if err == nil {
		t.Fatal("expected an error")
	}
	derr, ok := err.(*diag.Error)
	if !ok || derr.Kind != diag.KindVerifierWouldReject {
		t.Fatalf("error = %+v, want KindVerifierWouldReject", err)
	}
}

func TestRejectsUnsafe_AllowsNonRecursiveCalls(t *testing.T) {
	fn := &ast.FunctionDecl{Name: "f"}
	fn.Body = []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.CallExpr{Callee: &ast.Ident{Name: "g"}}},
	}
	if err := kernelc.RejectsUnsafe(fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
