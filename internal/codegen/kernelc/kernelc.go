// Package kernelc renders the kernel-side IR of spec.md §4.5 into one eBPF C
// translation unit: map BTF sections, attributed entrypoints under the
// section name their attribute implies, plain and kfunc helpers, and the
// loop lowering internal/loopanalysis chose for every bounded or unbounded
// `for` in the source. Grounded on the raw-syscall eBPF conventions the
// teacher's loader targets (section naming, BTF-map struct layout, the
// pinned-globals map) even though the teacher never generates C itself.
package kernelc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/codegen/cgen"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/ir"
	"github.com/kernelscript/ksc/internal/loopanalysis"
)

// Generate renders unit's kernel-side translation unit. unit names the
// source file sans extension and appears in the generated file's header
// comment.
func Generate(unit string, kir *ir.IR) (string, error) {
	var errs []error
	var b strings.Builder

	fmt.Fprintf(&b, "// Code generated from %s.ks by ksc. DO NOT EDIT.\n\n", unit)
	b.WriteString("#include \"vmlinux.h\"\n")
	b.WriteString("#include <bpf/bpf_helpers.h>\n")
	b.WriteString("#include <bpf/bpf_core_read.h>\n")
	b.WriteString("#include <bpf/bpf_tracing.h>\n\n")
	b.WriteString("char LICENSE[] SEC(\"license\") = \"Dual BSD/GPL\";\n\n")

	for _, m := range kir.Kernel.Maps {
		writeMap(&b, m)
	}

	for _, kf := range kir.Kernel.Funcs {
		if err := RejectsUnsafe(kf.Decl); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := writeFunc(&b, kf, false); err != nil {
			errs = append(errs, err)
		}
	}
	for _, kf := range kir.Kernel.Kfuncs {
		if err := RejectsUnsafe(kf.Decl); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := writeFunc(&b, kf, true); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return "", joinErrs(errs)
	}
	return b.String(), nil
}

func joinErrs(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

func writeMap(b *strings.Builder, m ir.MapRef) {
	fmt.Fprintf(b, "struct {\n")
	fmt.Fprintf(b, "\t__uint(type, %s);\n", cgen.MapTypeName(m.Kind))
	fmt.Fprintf(b, "\t__uint(max_entries, %d);\n", m.MaxEntries)
	if m.KeyType != nil {
		fmt.Fprintf(b, "\t__type(key, %s);\n", cgen.TypeToC(m.KeyType))
	}
	if m.ValueType != nil {
		fmt.Fprintf(b, "\t__type(value, %s);\n", cgen.TypeToC(m.ValueType))
	}
	if m.Pinned {
		fmt.Fprintf(b, "\t__uint(pinning, LIBBPF_PIN_BY_NAME);\n")
	}
	fmt.Fprintf(b, "} %s SEC(\".maps\");\n\n", m.Name)
}

func sectionName(fn *ast.FunctionDecl) string {
	switch fn.Attribute {
	case ast.AttrXDP:
		return "xdp"
	case ast.AttrTC:
		return "tc/" + fn.TCDir
	case ast.AttrKprobe:
		return "kprobe/" + fn.KprobeSym
	default:
		return ""
	}
}

func writeFunc(b *strings.Builder, kf ir.KernelFunc, isKfunc bool) error {
	fn := kf.Decl
	var errs []error

	if sec := sectionName(fn); sec != "" {
		fmt.Fprintf(b, "SEC(%q)\n", sec)
	}
	if isKfunc {
		b.WriteString("__bpf_kfunc\n")
	} else if fn.Attribute == ast.AttrHelper || fn.Attribute == ast.AttrPrivate {
		b.WriteString("static __always_inline\n")
	}

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %s%s", cgen.TypeToC(p.Type), p.Name, cgen.ArraySuffix(p.Type))
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	fmt.Fprintf(b, "%s %s(%s)\n{\n", cgen.TypeToC(fn.ReturnType), fn.Name, strings.Join(params, ", "))

	namer := cgen.NewNamer()
	w := &funcWriter{b: b, namer: namer, loops: kf.Loops}
	for _, s := range fn.Body {
		if err := w.stmt(s, 1); err != nil {
			errs = append(errs, err)
		}
	}
	b.WriteString("}\n\n")

	if len(errs) > 0 {
		return joinErrs(errs)
	}
	return nil
}

type funcWriter struct {
	b     *strings.Builder
	namer *cgen.Namer
	loops map[*ast.ForStmt]loopanalysis.Result
	cb    int
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("\t", depth))
}

func (w *funcWriter) stmt(s ast.Stmt, depth int) error {
	switch n := s.(type) {
	case *ast.VarDeclStmt:
		indent(w.b, depth)
		if n.Init == nil {
			fmt.Fprintf(w.b, "%s %s%s;\n", cgen.TypeToC(n.Type), n.Name, cgen.ArraySuffix(n.Type))
			return nil
		}
		if idx, ok := n.Init.(*ast.IndexExpr); ok {
			return w.mapLookup(n.Name, n.Type, idx, depth)
		}
		fmt.Fprintf(w.b, "%s %s = %s;\n", cgen.TypeToC(n.Type), n.Name, cgen.Expr(n.Init))
		return nil

	case *ast.AssignStmt:
		return w.assign(n, depth)

	case *ast.ExprStmt:
		indent(w.b, depth)
		fmt.Fprintf(w.b, "%s;\n", cgen.Expr(n.X))
		return nil

	case *ast.DeleteStmt:
		indent(w.b, depth)
		key, pre := w.materialize(n.Key, "key")
		if pre != "" {
			w.b.WriteString(pre)
			indent(w.b, depth)
		}
		fmt.Fprintf(w.b, "bpf_map_delete_elem(&%s, &%s);\n", cgen.Expr(n.Map), key)
		return nil

	case *ast.ReturnStmt:
		indent(w.b, depth)
		if n.Value == nil {
			w.b.WriteString("return;\n")
			return nil
		}
		fmt.Fprintf(w.b, "return %s;\n", cgen.Expr(n.Value))
		return nil

	case *ast.IfStmt:
		indent(w.b, depth)
		fmt.Fprintf(w.b, "if (%s) {\n", cgen.Expr(n.Cond))
		for _, s2 := range n.Then {
			if err := w.stmt(s2, depth+1); err != nil {
				return err
			}
		}
		indent(w.b, depth)
		if len(n.Else) > 0 {
			w.b.WriteString("} else {\n")
			for _, s2 := range n.Else {
				if err := w.stmt(s2, depth+1); err != nil {
					return err
				}
			}
			indent(w.b, depth)
		}
		w.b.WriteString("}\n")
		return nil

	case *ast.ForStmt:
		return w.forStmt(n, depth)
	}
	return nil
}

// assign lowers `target = value`, routing map writes (`m[k] = v`) through
// bpf_map_update_elem and everything else, config field writes included,
// through plain C assignment.
func (w *funcWriter) assign(n *ast.AssignStmt, depth int) error {
	if idx, ok := n.Target.(*ast.IndexExpr); ok {
		indent(w.b, depth)
		key, keyPre := w.materialize(idx.Key, "key")
		val, valPre := w.materialize(n.Value, "val")
		if keyPre != "" {
			w.b.WriteString(keyPre)
			indent(w.b, depth)
		}
		if valPre != "" {
			w.b.WriteString(valPre)
			indent(w.b, depth)
		}
		fmt.Fprintf(w.b, "bpf_map_update_elem(&%s, &%s, &%s, BPF_ANY);\n", cgen.Expr(idx.Map), key, val)
		return nil
	}
	indent(w.b, depth)
	fmt.Fprintf(w.b, "%s = %s;\n", cgen.Expr(n.Target), cgen.Expr(n.Value))
	return nil
}

// mapLookup lowers `var v = m[k]` into a lookup-and-null-check, since
// bpf_map_lookup_elem returns a possibly-NULL pointer rather than a value.
func (w *funcWriter) mapLookup(name string, declType ast.Type, idx *ast.IndexExpr, depth int) error {
	key, pre := w.materialize(idx.Key, "key")
	if pre != "" {
		w.b.WriteString(pre)
		indent(w.b, depth)
	}
	ptr := w.namer.Temp("p")
	indent(w.b, depth)
	fmt.Fprintf(w.b, "%s *%s = bpf_map_lookup_elem(&%s, &%s);\n", cgen.TypeToC(declType), ptr, cgen.Expr(idx.Map), key)
	indent(w.b, depth)
	fmt.Fprintf(w.b, "%s %s = %s ? *%s : (%s){};\n", cgen.TypeToC(declType), name, ptr, ptr, cgen.TypeToC(declType))
	return nil
}

// materialize returns e rendered as an lvalue usable with `&`, emitting a
// fresh-temporary declaration line first when e is a literal (spec.md §4.7's
// forbidding `&(<literal>)`).
func (w *funcWriter) materialize(e ast.Expr, base string) (name string, preamble string) {
	if !cgen.IsLiteral(e) {
		return cgen.Expr(e), ""
	}
	tmp := w.namer.Temp(base)
	return tmp, fmt.Sprintf("__typeof__(%s) %s = %s;\n", cgen.Expr(e), tmp, cgen.Expr(e))
}

func (w *funcWriter) forStmt(n *ast.ForStmt, depth int) error {
	res, ok := w.loops[n]
	strategy := loopanalysis.SimpleLoop
	if ok {
		strategy = res.Strategy
	}

	switch strategy {
	case loopanalysis.UnrolledLoop:
		lo, hi := res.Bound.Lo, res.Bound.Hi
		for i := lo; i < hi; i++ {
			indent(w.b, depth)
			fmt.Fprintf(w.b, "{ __s64 %s = %d;\n", n.Var, i)
			for _, s2 := range n.Body {
				if err := w.stmt(s2, depth+1); err != nil {
					return err
				}
			}
			indent(w.b, depth)
			w.b.WriteString("}\n")
		}
		return nil

	case loopanalysis.BpfLoopHelper:
		w.cb++
		cbName := fmt.Sprintf("loop_cb_%d", w.cb)
		ctxName := fmt.Sprintf("loop_ctx_%d", w.cb)
		count := "0xffffffff"
		if res.Bound.Bounded {
			count = fmt.Sprintf("%d", res.Bound.Hi-res.Bound.Lo)
		}
		indent(w.b, depth)
		fmt.Fprintf(w.b, "bpf_loop(%s, %s, NULL, 0);\n", count, cbName)

		var cbBody strings.Builder
		sub := &funcWriter{b: &cbBody, namer: cgen.NewNamer(), loops: w.loops, cb: w.cb}
		for _, s2 := range n.Body {
			if err := sub.stmt(s2, 2); err != nil {
				return err
			}
		}
		w.cb = sub.cb
		fmt.Fprintf(w.b, "\nstatic long %s(__u64 %s, void *ctx)\n{\n\t__s64 %s = %s;\n%s\treturn 0;\n}\n",
			cbName, n.Var, n.Var, ctxName, cbBody.String())
		return nil

	default: // SimpleLoop
		lo, hi := "0", "0"
		if res.Bound.Bounded {
			lo = fmt.Sprintf("%d", res.Bound.Lo)
			hi = fmt.Sprintf("%d", res.Bound.Hi)
		}
		indent(w.b, depth)
		fmt.Fprintf(w.b, "for (__s64 %s = %s; %s < %s; %s++) {\n", n.Var, lo, n.Var, hi, n.Var)
		for _, s2 := range n.Body {
			if err := w.stmt(s2, depth+1); err != nil {
				return err
			}
		}
		indent(w.b, depth)
		w.b.WriteString("}\n")
		return nil
	}
}

// RejectsUnsafe scans fn for direct recursive self-calls, which the verifier
// would reject outright, so the compiler can fail fast with
// KindVerifierWouldReject instead of shipping a program the kernel will
// refuse to load. It inspects no other construct: pointer arithmetic is not
// checked, and the AST has no floating-point type or literal to check.
func RejectsUnsafe(fn *ast.FunctionDecl) error {
	var walk func(s ast.Stmt) error
	var walkExpr func(e ast.Expr) error
	walkExpr = func(e ast.Expr) error {
		switch n := e.(type) {
		case *ast.CallExpr:
			if id, ok := n.Callee.(*ast.Ident); ok && id.Name == fn.Name {
				return diag.New(diag.KindVerifierWouldReject, n.Position(), "recursive call to %q is not verifiable", fn.Name)
			}
			for _, a := range n.Args {
				if err := walkExpr(a); err != nil {
					return err
				}
			}
		case *ast.BinaryExpr:
			if err := walkExpr(n.Left); err != nil {
				return err
			}
			return walkExpr(n.Right)
		case *ast.UnaryExpr:
			return walkExpr(n.Operand)
		}
		return nil
	}
	walk = func(s ast.Stmt) error {
		switch n := s.(type) {
		case *ast.VarDeclStmt:
			if n.Init != nil {
				return walkExpr(n.Init)
			}
		case *ast.AssignStmt:
			return walkExpr(n.Value)
		case *ast.ExprStmt:
			return walkExpr(n.X)
		case *ast.ReturnStmt:
			if n.Value != nil {
				return walkExpr(n.Value)
			}
		case *ast.IfStmt:
			for _, s2 := range n.Then {
				if err := walk(s2); err != nil {
					return err
				}
			}
			for _, s2 := range n.Else {
				if err := walk(s2); err != nil {
					return err
				}
			}
		case *ast.ForStmt:
			for _, s2 := range n.Body {
				if err := walk(s2); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, s := range fn.Body {
		if err := walk(s); err != nil {
			return err
		}
	}
	return nil
}
