// Package ir lowers a checked AST into the two-sided intermediate
// representation of spec.md §4.5: a kernel-side partition (attributed
// functions, the shared map catalog, the kfunc table) and a user-space
// partition (main, the ordinary functions it transitively calls, the config
// blocks it writes, the maps it touches, and the attributed-function names
// reachable via `load(...)`). Map references are resolved to stable slots
// here, once, so neither codegen has to re-derive them.
package ir

import (
	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/check"
	"github.com/kernelscript/ksc/internal/loopanalysis"
	"github.com/kernelscript/ksc/internal/symtab"
)

// MapRef is a map resolved to a stable slot, usable as an index into an FD
// array by both codegens.
type MapRef struct {
	Name       string
	Slot       int
	Kind       ast.MapKind
	KeyType    ast.Type
	ValueType  ast.Type
	MaxEntries int
	Pinned     bool
}

// KernelFunc is one eBPF-side function plus the loop strategies chosen for
// every `for` loop reachable in its body.
type KernelFunc struct {
	Decl  *ast.FunctionDecl
	Loops map[*ast.ForStmt]loopanalysis.Result
}

// KernelIR is the eBPF-side partition.
type KernelIR struct {
	Maps   []MapRef
	Funcs  []KernelFunc // xdp, tc, kprobe, helper, private — compiled into the kernel translation unit
	Kfuncs []KernelFunc // kfunc — also kernel-side, registered separately via BTF
}

// UserspaceIR is the user-space partition: everything the generated
// orchestrator program needs.
type UserspaceIR struct {
	Main        *ast.FunctionDecl
	Helpers     []*ast.FunctionDecl // non-attributed functions transitively called from main, in call order
	Configs     []*ast.ConfigDecl
	Maps        []MapRef
	LoadTargets []string // attributed-function names passed to load(...)

	// ArgsStruct is the resolved struct declaration behind main's single
	// parameter, if any, so userc can generate one CLI flag per field
	// without re-resolving the symbol table itself.
	ArgsStruct *ast.StructDecl
}

// IR is the full two-sided lowering of one file.
type IR struct {
	Kernel        KernelIR
	User          UserspaceIR
	PinnedGlobals []MapRef
}

// Build lowers file using chk, the result of a prior internal/check.Check
// call on the same file.
func Build(file *ast.File, chk *check.Result) *IR {
	maps := collectMaps(file)

	ir := &IR{}
	for _, m := range maps {
		ir.Kernel.Maps = append(ir.Kernel.Maps, m)
		if m.Pinned {
			ir.PinnedGlobals = append(ir.PinnedGlobals, m)
		}
	}

	byName := make(map[string]*ast.FunctionDecl)
	var mainFn *ast.FunctionDecl
	for _, d := range file.Decls {
		fn, ok := d.(*ast.FunctionDecl)
		if !ok {
			continue
		}
		byName[fn.Name] = fn
		if fn.Attribute == ast.AttrNone {
			if fn.Name == "main" {
				mainFn = fn
			}
			continue
		}
		kf := KernelFunc{Decl: fn, Loops: loopsOf(chk, fn.Body)}
		if fn.Attribute == ast.AttrKfunc {
			ir.Kernel.Kfuncs = append(ir.Kernel.Kfuncs, kf)
		} else {
			ir.Kernel.Funcs = append(ir.Kernel.Funcs, kf)
		}
	}
	ir.User.Main = mainFn
	if mainFn == nil {
		return ir
	}

	if len(mainFn.Params) == 1 {
		if named, ok := mainFn.Params[0].Type.(*ast.NamedType); ok {
			for _, d := range file.Decls {
				if sd, ok := d.(*ast.StructDecl); ok && sd.Name == named.Name {
					ir.User.ArgsStruct = sd
					break
				}
			}
		}
	}

	helpers := reachableUserFuncs(mainFn, byName)
	ir.User.Helpers = helpers

	mapNames := map[string]bool{}
	cfgNames := map[string]bool{}
	var loadTargets []string
	walkBodyFor(mainFn.Body, chk.Root, mapNames, cfgNames, &loadTargets)
	for _, h := range helpers {
		walkBodyFor(h.Body, chk.Root, mapNames, cfgNames, &loadTargets)
	}

	for _, m := range maps {
		if mapNames[m.Name] {
			ir.User.Maps = append(ir.User.Maps, m)
		}
	}
	for _, d := range file.Decls {
		cd, ok := d.(*ast.ConfigDecl)
		if ok && cfgNames[cd.Name] {
			ir.User.Configs = append(ir.User.Configs, cd)
		}
	}
	ir.User.LoadTargets = loadTargets

	return ir
}

func collectMaps(file *ast.File) []MapRef {
	var out []MapRef
	slot := 0
	for _, d := range file.Decls {
		switch n := d.(type) {
		case *ast.MapDecl:
			out = append(out, MapRef{
				Name: n.Name, Slot: slot, Kind: n.Kind,
				KeyType: n.KeyType, ValueType: n.ValueType,
				MaxEntries: n.MaxEntries, Pinned: n.Pinned,
			})
			slot++
		case *ast.GlobalVarDecl:
			if mt, ok := n.Type.(*ast.MapType); ok {
				out = append(out, MapRef{
					Name: n.Name, Slot: slot, Kind: mt.Kind,
					KeyType: mt.Key, ValueType: mt.Value,
					MaxEntries: mt.MaxEntries, Pinned: n.Pinned,
				})
				slot++
			}
		}
	}
	return out
}

func loopsOf(chk *check.Result, body []ast.Stmt) map[*ast.ForStmt]loopanalysis.Result {
	out := map[*ast.ForStmt]loopanalysis.Result{}
	var visit func(stmts []ast.Stmt)
	visit = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			switch n := s.(type) {
			case *ast.IfStmt:
				visit(n.Then)
				visit(n.Else)
			case *ast.ForStmt:
				if r, ok := chk.Loops[n]; ok {
					out[n] = r
				}
				visit(n.Body)
			}
		}
	}
	visit(body)
	return out
}

// reachableUserFuncs finds every non-attributed function transitively
// called from main. Attributed functions are never inlined here: they are
// only ever referenced by name through load/attach/detach.
func reachableUserFuncs(main *ast.FunctionDecl, byName map[string]*ast.FunctionDecl) []*ast.FunctionDecl {
	seen := map[string]bool{main.Name: true}
	var order []*ast.FunctionDecl
	var visit func(body []ast.Stmt)
	visit = func(body []ast.Stmt) {
		for _, name := range calledNames(body) {
			fn, ok := byName[name]
			if !ok || fn.Attribute != ast.AttrNone || seen[name] {
				continue
			}
			seen[name] = true
			order = append(order, fn)
			visit(fn.Body)
		}
	}
	visit(main.Body)
	return order
}

func calledNames(body []ast.Stmt) []string {
	var out []string
	var visitExpr func(e ast.Expr)
	visitExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.CallExpr:
			if id, ok := n.Callee.(*ast.Ident); ok {
				out = append(out, id.Name)
			}
			visitExpr(n.Callee)
			for _, a := range n.Args {
				visitExpr(a)
			}
		case *ast.FieldAccess:
			visitExpr(n.Target)
		case *ast.ArrowAccess:
			visitExpr(n.Target)
		case *ast.IndexExpr:
			visitExpr(n.Map)
			visitExpr(n.Key)
		case *ast.UnaryExpr:
			visitExpr(n.Operand)
		case *ast.BinaryExpr:
			visitExpr(n.Left)
			visitExpr(n.Right)
		}
	}
	var visitStmt func(s ast.Stmt)
	visitStmt = func(s ast.Stmt) {
		switch n := s.(type) {
		case *ast.VarDeclStmt:
			if n.Init != nil {
				visitExpr(n.Init)
			}
		case *ast.AssignStmt:
			visitExpr(n.Target)
			visitExpr(n.Value)
		case *ast.ExprStmt:
			visitExpr(n.X)
		case *ast.DeleteStmt:
			visitExpr(n.Map)
			visitExpr(n.Key)
		case *ast.ReturnStmt:
			if n.Value != nil {
				visitExpr(n.Value)
			}
		case *ast.IfStmt:
			visitExpr(n.Cond)
			for _, s2 := range n.Then {
				visitStmt(s2)
			}
			for _, s2 := range n.Else {
				visitStmt(s2)
			}
		case *ast.ForStmt:
			if n.Kind == ast.ForRange {
				visitExpr(n.Start)
				visitExpr(n.End)
			} else {
				visitExpr(n.Iter)
			}
			for _, s2 := range n.Body {
				visitStmt(s2)
			}
		}
	}
	for _, s := range body {
		visitStmt(s)
	}
	return out
}

// walkBodyFor records every map name body reads/writes/deletes, every
// config name it writes a field of, and every load(...) target it names.
func walkBodyFor(body []ast.Stmt, root *symtab.Scope, mapNames, cfgNames map[string]bool, loadTargets *[]string) {
	markMap := func(e ast.Expr) {
		if id, ok := e.(*ast.Ident); ok {
			if entry, ok := symtab.Resolve(root, id.Name); ok && entry.Kind == symtab.SymMap {
				mapNames[id.Name] = true
			}
		}
	}

	var visitExpr func(e ast.Expr)
	visitExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.IndexExpr:
			markMap(n.Map)
			visitExpr(n.Map)
			visitExpr(n.Key)
		case *ast.FieldAccess:
			if id, ok := n.Target.(*ast.Ident); ok {
				if entry, ok := symtab.Resolve(root, id.Name); ok && entry.Kind == symtab.SymConfig {
					cfgNames[id.Name] = true
				}
			}
			visitExpr(n.Target)
		case *ast.ArrowAccess:
			visitExpr(n.Target)
		case *ast.CallExpr:
			if id, ok := n.Callee.(*ast.Ident); ok && id.Name == "load" && len(n.Args) > 0 {
				if argID, ok := n.Args[0].(*ast.Ident); ok {
					*loadTargets = append(*loadTargets, argID.Name)
				}
			}
			visitExpr(n.Callee)
			for _, a := range n.Args {
				visitExpr(a)
			}
		case *ast.UnaryExpr:
			visitExpr(n.Operand)
		case *ast.BinaryExpr:
			visitExpr(n.Left)
			visitExpr(n.Right)
		}
	}

	var visitStmt func(s ast.Stmt)
	visitStmt = func(s ast.Stmt) {
		switch n := s.(type) {
		case *ast.VarDeclStmt:
			if n.Init != nil {
				visitExpr(n.Init)
			}
		case *ast.AssignStmt:
			visitExpr(n.Target)
			visitExpr(n.Value)
		case *ast.ExprStmt:
			visitExpr(n.X)
		case *ast.DeleteStmt:
			markMap(n.Map)
			visitExpr(n.Map)
			visitExpr(n.Key)
		case *ast.ReturnStmt:
			if n.Value != nil {
				visitExpr(n.Value)
			}
		case *ast.IfStmt:
			visitExpr(n.Cond)
			for _, s2 := range n.Then {
				visitStmt(s2)
			}
			for _, s2 := range n.Else {
				visitStmt(s2)
			}
		case *ast.ForStmt:
			if n.Kind == ast.ForRange {
				visitExpr(n.Start)
				visitExpr(n.End)
			} else {
				visitExpr(n.Iter)
			}
			for _, s2 := range n.Body {
				visitStmt(s2)
			}
		}
	}

	for _, s := range body {
		visitStmt(s)
	}
}
