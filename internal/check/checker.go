// Package check implements the type checker of spec.md §4.3: it consumes
// the untyped AST plus the scope tree from internal/symtab and produces a
// Result carrying a per-expression type side table, the loop classification
// of every `for` node, and the resolved root scope — everything
// internal/ir needs to lower the program. Every error it finds carries the
// position of the offending node; the checker collects every independent
// error from one pass before it gives up, so a single bad program reports
// more than just its first mistake.
package check

import (
	"errors"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/loopanalysis"
	"github.com/kernelscript/ksc/internal/symtab"
)

// Result is the typed view of a checked file.
type Result struct {
	Root  *symtab.Scope
	Types map[ast.Expr]ast.Type
	Loops map[*ast.ForStmt]loopanalysis.Result
}

type checker struct {
	file  string
	root  *symtab.Scope
	types map[ast.Expr]ast.Type
	loops map[*ast.ForStmt]loopanalysis.Result
}

// Check type-checks file, returning a *Result on success or a joined error
// (unwrappable via errors.Join) listing every diagnostic found.
func Check(file *ast.File) (*Result, error) {
	root, errs := symtab.Build(file)

	c := &checker{
		file:  file.Path,
		root:  root,
		types: make(map[ast.Expr]ast.Type),
		loops: make(map[*ast.ForStmt]loopanalysis.Result),
	}

	funcs := rootFunctions(file)

	errs = append(errs, c.checkMain(funcs)...)
	for _, fn := range funcs {
		errs = append(errs, c.checkAttribute(fn)...)
	}
	errs = append(errs, c.checkVisibility(funcs)...)

	for _, fn := range funcs {
		fScope, ferrs := symtab.FuncScope(root, fn)
		errs = append(errs, ferrs...)
		errs = append(errs, c.checkBlock(fn, fScope, nil, fn.Body)...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Result{Root: root, Types: c.types, Loops: c.loops}, nil
}

func rootFunctions(file *ast.File) []*ast.FunctionDecl {
	var out []*ast.FunctionDecl
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FunctionDecl); ok {
			out = append(out, fn)
		}
	}
	return out
}

// checkMain enforces spec.md §3's main invariant: exactly one root-scope
// function named "main", taking no parameters or a single declared-struct
// parameter, returning i32.
func (c *checker) checkMain(funcs []*ast.FunctionDecl) []error {
	var mains []*ast.FunctionDecl
	for _, fn := range funcs {
		if fn.Name == "main" {
			mains = append(mains, fn)
		}
	}

	if len(mains) == 0 {
		return []error{diag.New(diag.KindMissingMain, ast.Position{File: c.file}, "no function named \"main\" at root scope")}
	}

	var errs []error
	for _, extra := range mains[1:] {
		errs = append(errs, diag.New(diag.KindMultipleMain, extra.Position(), "a function named \"main\" already exists"))
	}

	m := mains[0]
	if m.Attribute != ast.AttrNone {
		return append(errs, diag.New(diag.KindInvalidMainSignature, m.Position(), "main must not carry an attribute"))
	}
	if !isI32(m.ReturnType) {
		errs = append(errs, diag.New(diag.KindInvalidMainSignature, m.Position(), "main must return i32"))
	}
	switch len(m.Params) {
	case 0:
	case 1:
		if _, ok := resolveStruct(c.root, m.Params[0].Type); !ok {
			errs = append(errs, diag.New(diag.KindInvalidMainSignature, m.Position(), "main's single parameter must be a declared struct type"))
		}
	default:
		errs = append(errs, diag.New(diag.KindInvalidMainSignature, m.Position(), "main accepts at most one parameter"))
	}
	return errs
}

// checkAttribute enforces the fixed signatures spec.md §4.3 requires of
// @xdp and @tc; @kprobe, @kfunc, @helper, and @private accept any
// signature here and are instead constrained by checkVisibility.
func (c *checker) checkAttribute(fn *ast.FunctionDecl) []error {
	var errs []error
	switch fn.Attribute {
	case ast.AttrXDP:
		if !signatureMatches(fn, []ast.Type{pointerTo("xdp_md")}, named("xdp_action")) {
			errs = append(errs, diag.New(diag.KindAttributeMisuse, fn.Position(),
				"@xdp function %q must have signature (ctx: *xdp_md) -> xdp_action", fn.Name))
		}
	case ast.AttrTC:
		if fn.TCDir != "ingress" && fn.TCDir != "egress" {
			errs = append(errs, diag.New(diag.KindAttributeMisuse, fn.Position(),
				"@tc direction must be \"ingress\" or \"egress\", got %q", fn.TCDir))
		}
		if !signatureMatches(fn, []ast.Type{pointerTo("__sk_buff")}, primitive(ast.I32)) {
			errs = append(errs, diag.New(diag.KindAttributeMisuse, fn.Position(),
				"@tc function %q must have signature (ctx: *__sk_buff) -> i32", fn.Name))
		}
	}
	return errs
}

// checkVisibility enforces the two call-graph rules of spec.md §4.3:
// attributed functions cannot reach @private functions, and user-space code
// cannot call an attributed function directly (only through
// load/attach/detach).
func (c *checker) checkVisibility(funcs []*ast.FunctionDecl) []error {
	byName := make(map[string]*ast.FunctionDecl, len(funcs))
	for _, fn := range funcs {
		byName[fn.Name] = fn
	}

	var errs []error
	for _, fn := range funcs {
		for _, call := range collectCalls(fn.Body) {
			callee, ok := byName[call.name]
			if !ok {
				continue
			}
			if callee.Attribute == ast.AttrPrivate && fn.Attribute.IsEBPFSide() {
				errs = append(errs, diag.New(diag.KindPrivateNotExposed, call.pos,
					"%q is @private and not visible to attributed function %q", call.name, fn.Name))
			}
			if callee.Attribute.IsEBPFSide() && !fn.Attribute.IsEBPFSide() {
				errs = append(errs, diag.New(diag.KindAttributeMisuse, call.pos,
					"%q is an attributed function, reachable only via load/attach/detach", call.name))
			}
		}
	}
	return errs
}

type callRef struct {
	name string
	pos  ast.Position
}

// collectCalls walks stmts for every call to a plain identifier, ignoring
// calls through computed expressions (those can never name a declared
// function and so can never violate visibility).
func collectCalls(stmts []ast.Stmt) []callRef {
	var out []callRef

	var visitExpr func(e ast.Expr)
	visitExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.CallExpr:
			if id, ok := n.Callee.(*ast.Ident); ok {
				out = append(out, callRef{name: id.Name, pos: n.Position()})
			} else {
				visitExpr(n.Callee)
			}
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

	for _, s := range stmts {
		visitStmt(s)
	}
	return out
}

// checkBlock type-checks stmts in order within scope, threading env forward
// statement by statement. Nested blocks (if/for bodies) get their own child
// scope but inherit env as it stands at the point the nested block opens.
func (c *checker) checkBlock(fn *ast.FunctionDecl, scope *symtab.Scope, env *ConstEnv, stmts []ast.Stmt) []error {
	var errs []error
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.VarDeclStmt:
			var t ast.Type
			if n.Init != nil {
				it, ierrs := c.inferExpr(scope, env, n.Init)
				errs = append(errs, ierrs...)
				t = it
			}
			if n.Type != nil {
				t = n.Type
			}
			if err := scope.Define(&symtab.Entry{Name: n.Name, Kind: symtab.SymVar, Type: t, Pos: n.Position()}); err != nil {
				errs = append(errs, err)
			}
			if n.Init != nil {
				if v, ok := FoldInt(env, n.Init); ok {
					env = env.Bind(n.Name, v)
				} else {
					env = env.Invalidate(n.Name)
				}
			}

		case *ast.AssignStmt:
			_, terrs := c.inferExpr(scope, env, n.Target)
			errs = append(errs, terrs...)
			_, verrs := c.inferExpr(scope, env, n.Value)
			errs = append(errs, verrs...)
			if id, ok := n.Target.(*ast.Ident); ok {
				env = env.Invalidate(id.Name)
			}

		case *ast.ExprStmt:
			_, eerrs := c.inferExpr(scope, env, n.X)
			errs = append(errs, eerrs...)

		case *ast.DeleteStmt:
			mapType, merrs := c.inferExpr(scope, env, n.Map)
			errs = append(errs, merrs...)
			if _, ok := mapType.(*ast.MapType); !ok && mapType != nil {
				errs = append(errs, diag.New(diag.KindMapMisuse, n.Position(), "%s is not a map", mapType.String()))
			}
			_, kerrs := c.inferExpr(scope, env, n.Key)
			errs = append(errs, kerrs...)

		case *ast.ReturnStmt:
			if n.Value != nil {
				_, rerrs := c.inferExpr(scope, env, n.Value)
				errs = append(errs, rerrs...)
			}

		case *ast.IfStmt:
			_, cerrs := c.inferExpr(scope, env, n.Cond)
			errs = append(errs, cerrs...)
			errs = append(errs, c.checkBlock(fn, scope.Push(), env, n.Then)...)
			if n.Else != nil {
				errs = append(errs, c.checkBlock(fn, scope.Push(), env, n.Else)...)
			}

		case *ast.ForStmt:
			errs = append(errs, c.checkFor(fn, scope, env, n)...)
		}
	}
	return errs
}

func (c *checker) checkFor(fn *ast.FunctionDecl, scope *symtab.Scope, env *ConstEnv, n *ast.ForStmt) []error {
	var errs []error
	if n.Kind == ast.ForRange {
		_, serrs := c.inferExpr(scope, env, n.Start)
		errs = append(errs, serrs...)
		_, eerrs := c.inferExpr(scope, env, n.End)
		errs = append(errs, eerrs...)
	} else {
		_, ierrs := c.inferExpr(scope, env, n.Iter)
		errs = append(errs, ierrs...)
	}

	c.loops[n] = loopanalysis.Analyze(n, func(e ast.Expr) (int64, bool) { return FoldInt(env, e) })

	bodyScope := scope.Push()
	if err := bodyScope.Define(&symtab.Entry{Name: n.Var, Kind: symtab.SymVar, Type: &ast.PrimitiveType{Kind: ast.I64}, Pos: n.Position()}); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.checkBlock(fn, bodyScope, env, n.Body)...)
	return errs
}

// inferExpr infers e's type, recording it into c.types, and returns every
// diagnostic found while doing so.
func (c *checker) inferExpr(scope *symtab.Scope, env *ConstEnv, e ast.Expr) (ast.Type, []error) {
	var errs []error
	var t ast.Type

	switch n := e.(type) {
	case *ast.IntLit:
		t = &ast.PrimitiveType{Kind: ast.I64}

	case *ast.BoolLit:
		t = &ast.PrimitiveType{Kind: ast.Bool}

	case *ast.StringLit:
		t = &ast.StrType{N: len(n.Value)}

	case *ast.NoneExpr:
		t = nil

	case *ast.Ident:
		entry, ok := symtab.Resolve(scope, n.Name)
		if !ok {
			errs = append(errs, diag.New(diag.KindUnresolvedSymbol, n.Position(), "undefined name %q", n.Name))
			break
		}
		t = entry.Type
		if t == nil {
			if decl, ok := entry.Decl.(*ast.MapDecl); ok {
				t = &ast.MapType{Key: decl.KeyType, Value: decl.ValueType, Kind: decl.Kind, MaxEntries: decl.MaxEntries}
			}
		}

	case *ast.FieldAccess:
		targetType, terrs := c.inferExpr(scope, env, n.Target)
		errs = append(errs, terrs...)
		t = c.resolveField(targetType, n.Field, n.Position(), &errs)

	case *ast.ArrowAccess:
		targetType, terrs := c.inferExpr(scope, env, n.Target)
		errs = append(errs, terrs...)
		pt, ok := targetType.(*ast.PointerType)
		if !ok {
			if targetType != nil {
				errs = append(errs, diag.TypeMismatch(n.Position(), "a pointer", targetType.String()))
			}
			break
		}
		t = c.resolveField(pt.Elem, n.Field, n.Position(), &errs)

	case *ast.IndexExpr:
		mapType, merrs := c.inferExpr(scope, env, n.Map)
		errs = append(errs, merrs...)
		keyType, kerrs := c.inferExpr(scope, env, n.Key)
		errs = append(errs, kerrs...)
		mt, ok := mapType.(*ast.MapType)
		if !ok {
			if mapType != nil {
				errs = append(errs, diag.New(diag.KindMapMisuse, n.Position(), "%s is not a map", mapType.String()))
			}
			break
		}
		keyOK := typeEqual(mt.Key, keyType)
		if lit, isLit := n.Key.(*ast.IntLit); isLit && !keyOK {
			if kp, isPrim := mt.Key.(*ast.PrimitiveType); isPrim && kp.Kind.BitWidth() > 0 {
				_, keyOK = ast.IntTag{Width: kp.Kind.BitWidth(), Signed: kp.Kind.Signed()}.Narrow(lit.Tag.Widen(lit.Raw))
			}
		}
		if mt.Key != nil && keyType != nil && !keyOK {
			errs = append(errs, diag.TypeMismatch(n.Key.Position(), mt.Key.String(), keyType.String()))
		}
		t = mt.Value

	case *ast.CallExpr:
		errs = append(errs, c.checkCall(scope, env, n, &t)...)

	case *ast.UnaryExpr:
		operandType, operrs := c.inferExpr(scope, env, n.Operand)
		errs = append(errs, operrs...)
		t = operandType
		if n.Op == ast.OpNot && operandType != nil {
			if pt, ok := operandType.(*ast.PrimitiveType); !ok || pt.Kind != ast.Bool {
				errs = append(errs, diag.TypeMismatch(n.Position(), "bool", operandType.String()))
			}
		}

	case *ast.BinaryExpr:
		lt, lerrs := c.inferExpr(scope, env, n.Left)
		errs = append(errs, lerrs...)
		rt, rerrs := c.inferExpr(scope, env, n.Right)
		errs = append(errs, rerrs...)
		switch {
		case n.Op.IsArithmetic():
			t = lt
			if lt != nil && rt != nil && !typeEqual(lt, rt) {
				errs = append(errs, diag.TypeMismatch(n.Position(), lt.String(), rt.String()))
			}
		default: // comparisons and &&/||
			t = &ast.PrimitiveType{Kind: ast.Bool}
		}
	}

	if t != nil {
		c.types[e] = t
	}
	return t, errs
}

func (c *checker) resolveField(t ast.Type, field string, pos ast.Position, errs *[]error) ast.Type {
	nt, ok := t.(*ast.NamedType)
	if !ok {
		if t != nil {
			*errs = append(*errs, diag.New(diag.KindTypeMismatch, pos, "%s has no field %q", t.String(), field))
		}
		return nil
	}
	entry, ok := symtab.Resolve(c.root, nt.Name)
	if !ok {
		*errs = append(*errs, diag.New(diag.KindUnresolvedSymbol, pos, "undefined type %q", nt.Name))
		return nil
	}
	sd, ok := entry.Decl.(*ast.StructDecl)
	if !ok {
		*errs = append(*errs, diag.New(diag.KindTypeMismatch, pos, "%q is not a struct", nt.Name))
		return nil
	}
	for _, f := range sd.Fields {
		if f.Name == field {
			return f.Type
		}
	}
	*errs = append(*errs, diag.New(diag.KindUnresolvedSymbol, pos, "struct %q has no field %q", nt.Name, field))
	return nil
}

// builtins are the fixed user-space callables of spec.md §6; they are not
// declared anywhere in source so symtab never holds entries for them.
var builtinReturn = map[string]ast.PrimitiveKind{
	"load": ast.I32, "attach": ast.I32, "detach": ast.I32, "print": ast.I32,
}

func (c *checker) checkCall(scope *symtab.Scope, env *ConstEnv, n *ast.CallExpr, out *ast.Type) []error {
	var errs []error
	for _, a := range n.Args {
		_, aerrs := c.inferExpr(scope, env, a)
		errs = append(errs, aerrs...)
	}

	id, ok := n.Callee.(*ast.Ident)
	if !ok {
		ct, cerrs := c.inferExpr(scope, env, n.Callee)
		errs = append(errs, cerrs...)
		if ct != nil {
			errs = append(errs, diag.New(diag.KindNotCallable, n.Position(), "%s is not callable", ct.String()))
		}
		return errs
	}

	if kind, ok := builtinReturn[id.Name]; ok {
		*out = &ast.PrimitiveType{Kind: kind}
		return errs
	}

	entry, ok := symtab.Resolve(scope, id.Name)
	if !ok {
		errs = append(errs, diag.New(diag.KindUnresolvedSymbol, n.Position(), "undefined function %q", id.Name))
		return errs
	}
	fn, ok := entry.Decl.(*ast.FunctionDecl)
	if !ok {
		errs = append(errs, diag.New(diag.KindNotCallable, n.Position(), "%q is not a function", id.Name))
		return errs
	}
	if len(n.Args) != len(fn.Params) {
		errs = append(errs, diag.New(diag.KindArityMismatch, n.Position(),
			"%q expects %d argument(s), got %d", id.Name, len(fn.Params), len(n.Args)))
	}
	*out = fn.ReturnType
	return errs
}

func isI32(t ast.Type) bool {
	pt, ok := t.(*ast.PrimitiveType)
	return ok && pt.Kind == ast.I32
}

func resolveStruct(root *symtab.Scope, t ast.Type) (*ast.StructDecl, bool) {
	nt, ok := t.(*ast.NamedType)
	if !ok {
		return nil, false
	}
	entry, ok := symtab.Resolve(root, nt.Name)
	if !ok {
		return nil, false
	}
	sd, ok := entry.Decl.(*ast.StructDecl)
	return sd, ok
}

func signatureMatches(fn *ast.FunctionDecl, paramTypes []ast.Type, ret ast.Type) bool {
	if len(fn.Params) != len(paramTypes) {
		return false
	}
	for i, pt := range paramTypes {
		if !typeEqual(fn.Params[i].Type, pt) {
			return false
		}
	}
	return typeEqual(fn.ReturnType, ret)
}

func pointerTo(name string) ast.Type { return &ast.PointerType{Elem: &ast.NamedType{Name: name}} }
func named(name string) ast.Type     { return &ast.NamedType{Name: name} }
func primitive(k ast.PrimitiveKind) ast.Type { return &ast.PrimitiveType{Kind: k} }

// typeEqual is a structural comparison: NamedType compares by name only, so
// it is correct without re-resolving the type it names.
func typeEqual(a, b ast.Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *ast.PrimitiveType:
		y, ok := b.(*ast.PrimitiveType)
		return ok && x.Kind == y.Kind
	case *ast.StrType:
		y, ok := b.(*ast.StrType)
		return ok && x.N == y.N
	case *ast.ArrayType:
		y, ok := b.(*ast.ArrayType)
		return ok && x.N == y.N && typeEqual(x.Elem, y.Elem)
	case *ast.NamedType:
		y, ok := b.(*ast.NamedType)
		return ok && x.Name == y.Name
	case *ast.PointerType:
		y, ok := b.(*ast.PointerType)
		return ok && typeEqual(x.Elem, y.Elem)
	case *ast.MapType:
		y, ok := b.(*ast.MapType)
		if !ok || x.Kind != y.Kind || x.MaxEntries != y.MaxEntries || !typeEqual(x.Key, y.Key) {
			return false
		}
		if x.Value == nil || y.Value == nil {
			return x.Value == nil && y.Value == nil
		}
		return typeEqual(x.Value, y.Value)
	}
	return false
}
