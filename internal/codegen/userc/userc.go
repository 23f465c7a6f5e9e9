// Package userc renders the user-space IR of spec.md §4.5/§4.7 into a
// libbpf-skeleton-driven orchestrator program: CLI argument parsing into the
// generated Args struct, skeleton open/load/attach/detach lifecycle calls
// bound to load/attach/detach builtin calls in source, map FD plumbing
// including the shared pinned-globals FD, and config writes lowered to
// bpf_map_update_elem against the config's backing array map.
package userc

import (
	"fmt"
	"strings"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/codegen/cgen"
	"github.com/kernelscript/ksc/internal/ir"
)

// Generate renders unit's user-space orchestrator translation unit.
func Generate(unit string, uir *ir.IR) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "// Code generated from %s.ks by ksc. DO NOT EDIT.\n\n", unit)
	b.WriteString("#include <stdio.h>\n")
	b.WriteString("#include <stdlib.h>\n")
	b.WriteString("#include <string.h>\n")
	b.WriteString("#include <unistd.h>\n")
	b.WriteString("#include <bpf/libbpf.h>\n")
	hasArgs := uir.User.ArgsStruct != nil
	if hasArgs {
		b.WriteString("#include <getopt.h>\n")
	}
	fmt.Fprintf(&b, "#include \"%s.ebpf.skel.h\"\n\n", unit)

	if hasArgs {
		writeArgsStruct(&b, uir.User.ArgsStruct)
	}

	for _, cfg := range uir.User.Configs {
		writeConfigStruct(&b, cfg)
	}

	if len(uir.PinnedGlobals) > 0 {
		b.WriteString("static int pinned_globals_map_fd = -1;\n\n")
	}

	for _, h := range uir.User.Helpers {
		writeFunc(&b, h, uir)
	}

	if uir.User.Main != nil {
		writeMain(&b, unit, uir, hasArgs)
	}

	return b.String(), nil
}

func writeArgsStruct(b *strings.Builder, sd *ast.StructDecl) {
	fmt.Fprintf(b, "struct %s {\n", sd.Name)
	for _, f := range sd.Fields {
		fmt.Fprintf(b, "\t%s %s%s;\n", cgen.TypeToC(f.Type), f.Name, cgen.ArraySuffix(f.Type))
	}
	fmt.Fprintf(b, "};\n\n")
}

// writeArgParsing emits a getopt_long loop binding one required-argument
// long option per field of sd onto the locally-declared `args` struct.
// Short option letters are assigned sequentially (a, b, c, ...) rather than
// derived from field names, since two fields sharing an initial letter
// would otherwise collide.
func writeArgParsing(b *strings.Builder, sd *ast.StructDecl) {
	shortFor := make([]byte, len(sd.Fields))
	for i := range sd.Fields {
		shortFor[i] = byte('a' + i)
	}

	b.WriteString("\tstatic struct option long_options[] = {\n")
	for i, f := range sd.Fields {
		fmt.Fprintf(b, "\t\t{\"%s\", required_argument, 0, '%c'},\n", f.Name, shortFor[i])
	}
	b.WriteString("\t\t{0, 0, 0, 0},\n")
	b.WriteString("\t};\n")

	optstring := make([]byte, 0, len(sd.Fields)*2)
	for _, c := range shortFor {
		optstring = append(optstring, c, ':')
	}
	fmt.Fprintf(b, "\tint opt;\n")
	fmt.Fprintf(b, "\twhile ((opt = getopt_long(argc, argv, \"%s\", long_options, NULL)) != -1) {\n", optstring)
	b.WriteString("\t\tswitch (opt) {\n")
	for i, f := range sd.Fields {
		fmt.Fprintf(b, "\t\tcase '%c':\n", shortFor[i])
		scanOptarg(b, "args."+f.Name, f.Type, 3)
		b.WriteString("\t\t\tbreak;\n")
	}
	b.WriteString("\t\tdefault:\n")
	b.WriteString("\t\t\tfprintf(stderr, \"unrecognized option\\n\");\n")
	b.WriteString("\t\t\treturn 1;\n")
	b.WriteString("\t\t}\n")
	b.WriteString("\t}\n")
}

// scanOptarg emits the statement(s) that parse the current getopt_long
// optarg into dst at the given indent depth, according to field's declared
// type. A str(N) field whose argument does not fit is rejected with exit
// code 1 rather than silently truncated.
func scanOptarg(b *strings.Builder, dst string, t ast.Type, depth int) {
	switch tt := t.(type) {
	case *ast.StrType:
		indent(b, depth)
		fmt.Fprintf(b, "if (strlen(optarg) >= sizeof(%s)) {\n", dst)
		indent(b, depth+1)
		fmt.Fprintf(b, "fprintf(stderr, \"%s: argument too long\\n\");\n", dst)
		indent(b, depth+1)
		b.WriteString("exit(1);\n")
		indent(b, depth)
		b.WriteString("}\n")
		indent(b, depth)
		fmt.Fprintf(b, "strncpy(%s, optarg, sizeof(%s) - 1);\n", dst, dst)
	case *ast.PrimitiveType:
		indent(b, depth)
		if tt.Kind == ast.Bool {
			fmt.Fprintf(b, "%s = (atoi(optarg) != 0);\n", dst)
			return
		}
		if tt.Kind.Signed() {
			fmt.Fprintf(b, "%s = (%s)strtoll(optarg, NULL, 0);\n", dst, cgen.TypeToC(t))
			return
		}
		fmt.Fprintf(b, "%s = (%s)strtoull(optarg, NULL, 0);\n", dst, cgen.TypeToC(t))
	default:
		indent(b, depth)
		fmt.Fprintf(b, "%s = (%s)strtoull(optarg, NULL, 0);\n", dst, cgen.TypeToC(t))
	}
}

func writeConfigStruct(b *strings.Builder, cfg *ast.ConfigDecl) {
	fmt.Fprintf(b, "struct %s_config {\n", cfg.Name)
	for _, f := range cfg.Fields {
		fmt.Fprintf(b, "\t%s %s%s;\n", cgen.TypeToC(f.Type), f.Name, cgen.ArraySuffix(f.Type))
	}
	fmt.Fprintf(b, "};\n\n")
}

func writeFunc(b *strings.Builder, fn *ast.FunctionDecl, uir *ir.IR) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %s%s", cgen.TypeToC(p.Type), p.Name, cgen.ArraySuffix(p.Type))
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	fmt.Fprintf(b, "static %s %s(%s)\n{\n", cgen.TypeToC(fn.ReturnType), fn.Name, strings.Join(params, ", "))
	w := &funcWriter{b: b, namer: cgen.NewNamer(), uir: uir}
	for _, s := range fn.Body {
		w.stmt(s, 1)
	}
	b.WriteString("}\n\n")
}

func writeMain(b *strings.Builder, unit string, uir *ir.IR, hasArgs bool) {
	skelVar := "skel"
	skelName := unit + "_ebpf"
	skelType := fmt.Sprintf("struct %s", skelName)
	hasLoad := len(uir.User.LoadTargets) > 0

	if hasArgs {
		fmt.Fprintf(b, "int main(int argc, char **argv)\n{\n")
		fmt.Fprintf(b, "\tstruct %s args = {0};\n", uir.User.ArgsStruct.Name)
		writeArgParsing(b, uir.User.ArgsStruct)
	} else {
		b.WriteString("int main(void)\n{\n")
	}

	fmt.Fprintf(b, "\t%s *%s;\n", skelType, skelVar)
	for _, m := range uir.User.Maps {
		fmt.Fprintf(b, "\tint %s_fd = -1;\n", m.Name)
	}
	for _, cfg := range uir.User.Configs {
		fmt.Fprintf(b, "\tint %s_config_map_fd;\n", cfg.Name)
	}
	b.WriteString("\tint err = 0;\n\n")

	// load(X) in source means the skeleton can be opened and loaded in one
	// step; without a load(...) call the skeleton is still needed for map
	// FD plumbing, so fall back to the separate open/load calls.
	if hasLoad {
		fmt.Fprintf(b, "\t%s = %s__open_and_load();\n", skelVar, skelName)
		fmt.Fprintf(b, "\tif (!%s) {\n\t\tfprintf(stderr, \"failed to open and load skeleton\\n\");\n\t\treturn 1;\n\t}\n\n", skelVar)
	} else {
		fmt.Fprintf(b, "\t%s = %s__open();\n", skelVar, skelName)
		fmt.Fprintf(b, "\tif (!%s) {\n\t\tfprintf(stderr, \"failed to open skeleton\\n\");\n\t\treturn 1;\n\t}\n\n", skelVar)

		fmt.Fprintf(b, "\terr = %s__load(%s);\n", skelName, skelVar)
		b.WriteString("\tif (err) {\n\t\tfprintf(stderr, \"failed to load skeleton: %d\\n\", err);\n\t\tgoto cleanup;\n\t}\n\n")
	}

	for _, m := range uir.User.Maps {
		fmt.Fprintf(b, "\t%s_fd = bpf_map__fd(%s->maps.%s);\n", m.Name, skelVar, m.Name)
		if m.Pinned {
			fmt.Fprintf(b, "\tpinned_globals_map_fd = %s_fd;\n", m.Name)
		}
	}
	for _, cfg := range uir.User.Configs {
		fmt.Fprintf(b, "\t%s_config_map_fd = bpf_map__fd(%s->maps.%s_config_map);\n", cfg.Name, skelVar, cfg.Name)
	}
	b.WriteString("\n")

	w := &funcWriter{b: b, namer: cgen.NewNamer(), unit: unit, uir: uir, skelVar: skelVar}
	for _, s := range uir.User.Main.Body {
		w.stmt(s, 1)
	}

	b.WriteString("\ncleanup:\n")
	fmt.Fprintf(b, "\t%s__destroy(%s);\n", skelName, skelVar)
	b.WriteString("\treturn err != 0;\n}\n")
}

type funcWriter struct {
	b       *strings.Builder
	namer   *cgen.Namer
	unit    string
	uir     *ir.IR
	skelVar string
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("\t", depth))
}

func (w *funcWriter) mapRef(name string) (ir.MapRef, bool) {
	for _, m := range w.uir.User.Maps {
		if m.Name == name {
			return m, true
		}
	}
	return ir.MapRef{}, false
}

// fdExprFor returns the C expression holding the FD for the map named name.
// A pinned map is dispatched through the single shared pinned_globals_map_fd
// rather than its own <name>_fd local.
func (w *funcWriter) fdExprFor(name string) string {
	if m, ok := w.mapRef(name); ok && m.Pinned {
		return "pinned_globals_map_fd"
	}
	return name + "_fd"
}

// kernelFuncByName finds the kernel-side declaration for an attributed
// function referenced from user-space (e.g. by load/attach/detach), so its
// attribute can drive which libbpf attach call to emit.
func (w *funcWriter) kernelFuncByName(name string) (*ast.FunctionDecl, ast.Attribute) {
	for _, kf := range w.uir.Kernel.Funcs {
		if kf.Decl.Name == name {
			return kf.Decl, kf.Decl.Attribute
		}
	}
	return nil, ast.AttrNone
}

// writeAttach lowers attach(prog, iface, flags) to the libbpf call matching
// prog's attribute: bpf_program__attach_xdp for @xdp, a TC hook attach for
// @tc, bpf_program__attach_kprobe for @kprobe, and the generic
// bpf_program__attach for anything else (or when prog's attribute cannot be
// resolved).
func (w *funcWriter) writeAttach(call *ast.CallExpr, depth int) {
	progName := cgen.Expr(call.Args[0])
	iface := "0"
	if len(call.Args) > 1 {
		iface = cgen.Expr(call.Args[1])
	}
	flags := "0"
	if len(call.Args) > 2 {
		flags = cgen.Expr(call.Args[2])
	}

	fn, attr := w.kernelFuncByName(progName)
	switch attr {
	case ast.AttrXDP:
		fmt.Fprintf(w.b, "bpf_program__attach_xdp(%s->progs.%s, %s);\n", w.skelVar, progName, iface)

	case ast.AttrTC:
		dir := "BPF_TC_INGRESS"
		if fn != nil && fn.TCDir == "egress" {
			dir = "BPF_TC_EGRESS"
		}
		fmt.Fprintf(w.b, "DECLARE_LIBBPF_OPTS(bpf_tc_hook, %s_hook, .ifindex = %s, .attach_point = %s);\n", progName, iface, dir)
		indent(w.b, depth)
		fmt.Fprintf(w.b, "DECLARE_LIBBPF_OPTS(bpf_tc_opts, %s_opts, .prog_fd = bpf_program__fd(%s->progs.%s), .flags = %s);\n", progName, w.skelVar, progName, flags)
		indent(w.b, depth)
		fmt.Fprintf(w.b, "bpf_tc_hook_create(&%s_hook);\n", progName)
		indent(w.b, depth)
		fmt.Fprintf(w.b, "bpf_tc_attach(&%s_hook, &%s_opts);\n", progName, progName)

	case ast.AttrKprobe:
		sym := fmt.Sprintf("%q", progName)
		if fn != nil && fn.KprobeSym != "" {
			sym = fmt.Sprintf("%q", fn.KprobeSym)
		}
		fmt.Fprintf(w.b, "bpf_program__attach_kprobe(%s->progs.%s, false, %s);\n", w.skelVar, progName, sym)

	default:
		fmt.Fprintf(w.b, "bpf_program__attach(%s->progs.%s);\n", w.skelVar, progName)
	}
}

func (w *funcWriter) stmt(s ast.Stmt, depth int) {
	switch n := s.(type) {
	case *ast.VarDeclStmt:
		indent(w.b, depth)
		if n.Init == nil {
			fmt.Fprintf(w.b, "%s %s%s;\n", cgen.TypeToC(n.Type), n.Name, cgen.ArraySuffix(n.Type))
			return
		}
		if idx, ok := n.Init.(*ast.IndexExpr); ok {
			w.mapLookup(n.Name, n.Type, idx, depth)
			return
		}
		fmt.Fprintf(w.b, "%s %s = %s;\n", cgen.TypeToC(n.Type), n.Name, cgen.Expr(n.Init))

	case *ast.AssignStmt:
		w.assign(n, depth)

	case *ast.ExprStmt:
		w.callStmt(n.X, depth)

	case *ast.DeleteStmt:
		indent(w.b, depth)
		key, pre := w.materialize(n.Key, "key")
		if pre != "" {
			w.b.WriteString(pre)
			indent(w.b, depth)
		}
		mapName := cgen.Expr(n.Map)
		fmt.Fprintf(w.b, "bpf_map_delete_elem(%s, &%s);\n", w.fdExprFor(mapName), key)

	case *ast.ReturnStmt:
		indent(w.b, depth)
		if n.Value == nil {
			w.b.WriteString("return;\n")
			return
		}
		if idx, ok := n.Value.(*ast.IndexExpr); ok {
			m, _ := w.mapRef(cgen.Expr(idx.Map))
			tmp := w.namer.Temp("ret")
			w.mapLookup(tmp, m.ValueType, idx, depth)
			indent(w.b, depth)
			fmt.Fprintf(w.b, "return %s;\n", tmp)
			return
		}
		fmt.Fprintf(w.b, "return %s;\n", cgen.Expr(n.Value))

	case *ast.IfStmt:
		indent(w.b, depth)
		fmt.Fprintf(w.b, "if (%s) {\n", cgen.Expr(n.Cond))
		for _, s2 := range n.Then {
			w.stmt(s2, depth+1)
		}
		indent(w.b, depth)
		if len(n.Else) > 0 {
			w.b.WriteString("} else {\n")
			for _, s2 := range n.Else {
				w.stmt(s2, depth+1)
			}
			indent(w.b, depth)
		}
		w.b.WriteString("}\n")

	case *ast.ForStmt:
		lo, hi := "0", "0"
		if n.Kind == ast.ForRange {
			lo, hi = cgen.Expr(n.Start), cgen.Expr(n.End)
		}
		indent(w.b, depth)
		fmt.Fprintf(w.b, "for (long %s = %s; %s < %s; %s++) {\n", n.Var, lo, n.Var, hi, n.Var)
		for _, s2 := range n.Body {
			w.stmt(s2, depth+1)
		}
		indent(w.b, depth)
		w.b.WriteString("}\n")
	}
}

// callStmt special-cases the load/attach/detach builtins, which drive the
// libbpf skeleton lifecycle instead of lowering to an ordinary C call.
func (w *funcWriter) callStmt(e ast.Expr, depth int) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		indent(w.b, depth)
		fmt.Fprintf(w.b, "%s;\n", cgen.Expr(e))
		return
	}
	id, ok := call.Callee.(*ast.Ident)
	if !ok {
		indent(w.b, depth)
		fmt.Fprintf(w.b, "%s;\n", cgen.Expr(e))
		return
	}
	indent(w.b, depth)
	switch id.Name {
	case "load":
		// Loading happens once, up front, via <unit>_ebpf__open_and_load in
		// writeMain; a source-level load(fn) call only needs to surface a
		// comment marking which program it is enabling, for readers of the
		// output.
		if len(call.Args) > 0 {
			fmt.Fprintf(w.b, "/* load(%s): handled by %s_ebpf__open_and_load above */\n", cgen.Expr(call.Args[0]), w.unit)
		}
	case "attach":
		if len(call.Args) > 0 {
			w.writeAttach(call, depth)
		}
	case "detach":
		if len(call.Args) > 0 {
			fmt.Fprintf(w.b, "bpf_link__destroy(%s->links.%s);\n", w.skelVar, cgen.Expr(call.Args[0]))
		}
	case "print":
		args := make([]string, len(call.Args))
		for i, a := range call.Args {
			args[i] = cgen.Expr(a)
		}
		fmt.Fprintf(w.b, "printf(%s);\n", strings.Join(args, ", "))
	default:
		fmt.Fprintf(w.b, "%s;\n", cgen.Expr(e))
	}
}

func (w *funcWriter) assign(n *ast.AssignStmt, depth int) {
	if idx, ok := n.Target.(*ast.IndexExpr); ok {
		indent(w.b, depth)
		mapName := cgen.Expr(idx.Map)
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
		fmt.Fprintf(w.b, "bpf_map_update_elem(%s, &%s, &%s, BPF_ANY);\n", w.fdExprFor(mapName), key, val)
		return
	}
	if fa, ok := n.Target.(*ast.FieldAccess); ok {
		if cfgName, isCfg := cfgTargetName(fa, w.uir); isCfg {
			indent(w.b, depth)
			val, valPre := w.materialize(n.Value, "val")
			if valPre != "" {
				w.b.WriteString(valPre)
				indent(w.b, depth)
			}
			fmt.Fprintf(w.b, "{ __u32 zero = 0; struct %s_config %s_v = {0}; %s_v.%s = %s; bpf_map_update_elem(%s_config_map_fd, &zero, &%s_v, BPF_ANY); }\n",
				cfgName, cfgName, cfgName, fa.Field, val, cfgName, cfgName)
			return
		}
	}
	indent(w.b, depth)
	fmt.Fprintf(w.b, "%s = %s;\n", cgen.Expr(n.Target), cgen.Expr(n.Value))
}

func cfgTargetName(fa *ast.FieldAccess, uir *ir.IR) (string, bool) {
	id, ok := fa.Target.(*ast.Ident)
	if !ok {
		return "", false
	}
	for _, cfg := range uir.User.Configs {
		if cfg.Name == id.Name {
			return cfg.Name, true
		}
	}
	return "", false
}

func (w *funcWriter) mapLookup(name string, declType ast.Type, idx *ast.IndexExpr, depth int) {
	mapName := cgen.Expr(idx.Map)
	key, pre := w.materialize(idx.Key, "key")
	if pre != "" {
		w.b.WriteString(pre)
		indent(w.b, depth)
	}
	indent(w.b, depth)
	fmt.Fprintf(w.b, "%s %s = {0};\n", cgen.TypeToC(declType), name)
	indent(w.b, depth)
	fmt.Fprintf(w.b, "bpf_map_lookup_elem(%s, &%s, &%s);\n", w.fdExprFor(mapName), key, name)
}

// materialize mirrors kernelc's fresh-temporary rule: a literal key or value
// used where an address is required is first bound to a uniquely named local
// so the generated code never takes the address of a literal.
func (w *funcWriter) materialize(e ast.Expr, base string) (name string, preamble string) {
	if !cgen.IsLiteral(e) {
		return cgen.Expr(e), ""
	}
	tmp := w.namer.Temp(base)
	return tmp, fmt.Sprintf("__typeof__(%s) %s = %s;\n", cgen.Expr(e), tmp, cgen.Expr(e))
}
