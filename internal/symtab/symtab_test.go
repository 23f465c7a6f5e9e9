package symtab_test

import (
	"testing"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/symtab"
)

func TestDefineAndResolve(t *testing.T) {
	root := symtab.NewRoot()
	if err := root.Define(&symtab.Entry{Name: "counters", Kind: symtab.SymMap}); err != nil {
		t.Fatalf("Define: %v", err)
	}

	e, ok := symtab.Resolve(root, "counters")
	if !ok {
		t.Fatal("expected counters to resolve")
	}
	if e.Kind != symtab.SymMap {
		t.Errorf("Kind = %v, want SymMap", e.Kind)
	}
}

func TestDefineDuplicateIsRejected(t *testing.T) {
	root := symtab.NewRoot()
	if err := root.Define(&symtab.Entry{Name: "x", Kind: symtab.SymVar}); err != nil {
		t.Fatalf("first Define: %v", err)
	}
	err := root.Define(&symtab.Entry{Name: "x", Kind: symtab.SymVar})
	if err == nil {
		t.Fatal("expected DuplicateSymbol error")
	}
	derr, ok := err.(*diag.Error)
	if !ok || derr.Kind != diag.KindDuplicateSymbol {
		t.Fatalf("error = %+v, want KindDuplicateSymbol", err)
	}
}

func TestResolveWalksToOuterScope(t *testing.T) {
	root := symtab.NewRoot()
	_ = root.Define(&symtab.Entry{Name: "g", Kind: symtab.SymVar})
	child := root.Push()

	e, ok := symtab.Resolve(child, "g")
	if !ok {
		t.Fatal("expected g to resolve via parent scope")
	}
	if e.Name != "g" {
		t.Errorf("Name = %q, want g", e.Name)
	}
}

func TestShadowingInChildScopeIsNotDuplicate(t *testing.T) {
	root := symtab.NewRoot()
	_ = root.Define(&symtab.Entry{Name: "x", Kind: symtab.SymVar})
	child := root.Push()

	if err := child.Define(&symtab.Entry{Name: "x", Kind: symtab.SymParam}); err != nil {
		t.Fatalf("shadowing Define should succeed, got: %v", err)
	}

	e, _ := symtab.Resolve(child, "x")
	if e.Kind != symtab.SymParam {
		t.Errorf("Resolve from child should see the shadowing entry, got Kind=%v", e.Kind)
	}
}

func TestResolveUnknownNameFails(t *testing.T) {
	root := symtab.NewRoot()
	if _, ok := symtab.Resolve(root, "nope"); ok {
		t.Fatal("expected resolve failure for undefined name")
	}
}

func TestBuildInjectsXDPHeaderEntries(t *testing.T) {
	file := &ast.File{
		Path:     "test.ks",
		Includes: []*ast.IncludeDecl{{Header: "xdp.kh"}},
	}
	root, errs := symtab.Build(file)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	for _, name := range []string{"xdp_md", "xdp_action", "XDP_DROP", "XDP_PASS"} {
		if _, ok := symtab.Resolve(root, name); !ok {
			t.Errorf("expected %q to be injected by xdp.kh", name)
		}
	}
}

func TestBuildUnknownHeaderInjectsNothing(t *testing.T) {
	file := &ast.File{
		Path:     "test.ks",
		Includes: []*ast.IncludeDecl{{Header: "mystery.kh"}},
	}
	root, errs := symtab.Build(file)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := symtab.Resolve(root, "anything"); ok {
		t.Fatal("unknown header should inject nothing")
	}
}

func TestBuildCollectsDuplicateTopLevelDecls(t *testing.T) {
	fn1 := &ast.FunctionDecl{Name: "main"}
	fn2 := &ast.FunctionDecl{Name: "main"}
	file := &ast.File{Path: "test.ks", Decls: []ast.Decl{fn1, fn2}}

	_, errs := symtab.Build(file)
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	derr, ok := errs[0].(*diag.Error)
	if !ok || derr.Kind != diag.KindDuplicateSymbol {
		t.Fatalf("error = %+v, want KindDuplicateSymbol", errs[0])
	}
}

func TestFuncScopeDefinesParams(t *testing.T) {
	root := symtab.NewRoot()
	fn := &ast.FunctionDecl{
		Name: "main",
		Params: []ast.Param{
			{Name: "a", Type: &ast.PrimitiveType{Kind: ast.U32}},
			{Name: "b", Type: &ast.PrimitiveType{Kind: ast.Bool}},
		},
	}

	fs, errs := symtab.FuncScope(root, fn)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	for _, name := range []string{"a", "b"} {
		e, ok := symtab.Resolve(fs, name)
		if !ok {
			t.Fatalf("expected parameter %q to resolve", name)
		}
		if e.Kind != symtab.SymParam {
			t.Errorf("%q Kind = %v, want SymParam", name, e.Kind)
		}
	}
}

func TestFuncScopeRejectsDuplicateParamNames(t *testing.T) {
	root := symtab.NewRoot()
	fn := &ast.FunctionDecl{
		Name: "main",
		Params: []ast.Param{
			{Name: "a", Type: &ast.PrimitiveType{Kind: ast.U32}},
			{Name: "a", Type: &ast.PrimitiveType{Kind: ast.U32}},
		},
	}

	_, errs := symtab.FuncScope(root, fn)
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
}
