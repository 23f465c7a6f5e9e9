// Package parser builds an untyped AST from a KernelScript token stream
// (spec.md §4.1). The parser performs no semantic validation — a main with
// a bad parameter list parses cleanly and is rejected later by
// internal/check.
package parser

import (
	"strconv"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/lexer"
	"github.com/kernelscript/ksc/internal/token"
)

// mapKindNames is the set of identifiers that introduce a map type in a
// `var` declaration, e.g. `var m : hash<u32,u32>(1024)`.
var mapKindNames = map[string]ast.MapKind{
	"hash":             ast.MapHash,
	"lru_hash":         ast.MapLRUHash,
	"array":            ast.MapArray,
	"percpu_hash":      ast.MapPercpuHash,
	"percpu_array":     ast.MapPercpuArray,
	"ringbuf":          ast.MapRingbuf,
	"perf_event_array": ast.MapPerfEventArray,
}

var primitiveNames = map[string]ast.PrimitiveKind{
	"u8": ast.U8, "u16": ast.U16, "u32": ast.U32, "u64": ast.U64,
	"i8": ast.I8, "i16": ast.I16, "i32": ast.I32, "i64": ast.I64,
	"bool": ast.Bool,
}

var attrNames = map[string]ast.Attribute{
	"xdp":     ast.AttrXDP,
	"tc":      ast.AttrTC,
	"kprobe":  ast.AttrKprobe,
	"kfunc":   ast.AttrKfunc,
	"helper":  ast.AttrHelper,
	"private": ast.AttrPrivate,
}

// Parse tokenizes and parses src, attributing positions to file.
func Parse(file, src string) (*ast.File, error) {
	toks, err := lexer.New(file, src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{file: file, toks: toks}
	return p.parseFile()
}

type parser struct {
	file string
	toks []token.Token
	i    int
}

func (p *parser) cur() token.Token     { return p.toks[p.i] }
func (p *parser) peekKind() token.Kind { return p.toks[p.i].Kind }

func (p *parser) pos() ast.Position {
	t := p.cur()
	return ast.Position{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *parser) advance() token.Token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) at(k token.Kind) bool { return p.peekKind() == k }

func (p *parser) expect(k token.Kind, what string) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, diag.New(diag.KindParseError, p.pos(), "expected %s, got %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *parser) parseFile() (*ast.File, error) {
	f := &ast.File{Path: p.file}
	for !p.at(token.EOF) {
		if p.at(token.KwInclude) {
			inc, err := p.parseInclude()
			if err != nil {
				return nil, err
			}
			f.Includes = append(f.Includes, inc)
			continue
		}
		d, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		f.Decls = append(f.Decls, d)
	}
	return f, nil
}

func (p *parser) parseInclude() (*ast.IncludeDecl, error) {
	pos := p.pos()
	p.advance() // 'include'
	tok, err := p.expect(token.String, "a header string")
	if err != nil {
		return nil, err
	}
	return &ast.IncludeDecl{DeclBase: ast.DeclBase{Pos: pos}, Header: tok.Text}, nil
}

func (p *parser) parseDecl() (ast.Decl, error) {
	switch {
	case p.at(token.KwStruct):
		return p.parseStruct()
	case p.at(token.KwType):
		return p.parseTypeAlias()
	case p.at(token.KwEnum):
		return p.parseEnum()
	case p.at(token.KwConfig):
		return p.parseConfig()
	case p.at(token.KwPin), p.at(token.KwVar):
		return p.parseVar()
	case p.at(token.At), p.at(token.KwFn):
		return p.parseFunction()
	default:
		return nil, diag.New(diag.KindParseError, p.pos(), "expected a declaration, got %q", p.cur().Text)
	}
}

func (p *parser) parseStruct() (*ast.StructDecl, error) {
	pos := p.pos()
	p.advance() // 'struct'
	nameTok, err := p.expect(token.Ident, "a struct name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "{"); err != nil {
		return nil, err
	}
	var fields []ast.StructField
	for !p.at(token.RBrace) {
		fnameTok, err := p.expect(token.Ident, "a field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, ":"); err != nil {
			return nil, err
		}
		ftyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.StructField{Name: fnameTok.Text, Type: ftyp})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBrace, "}"); err != nil {
		return nil, err
	}
	return &ast.StructDecl{DeclBase: ast.DeclBase{Pos: pos}, Name: nameTok.Text, Fields: fields}, nil
}

func (p *parser) parseTypeAlias() (*ast.TypeAliasDecl, error) {
	pos := p.pos()
	p.advance() // 'type'
	nameTok, err := p.expect(token.Ident, "a type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign, "="); err != nil {
		return nil, err
	}
	aliased, err := p.parseType()
	if err != nil {
		return nil, err
	}
	return &ast.TypeAliasDecl{DeclBase: ast.DeclBase{Pos: pos}, Name: nameTok.Text, Aliased: aliased}, nil
}

func (p *parser) parseEnum() (*ast.EnumDecl, error) {
	pos := p.pos()
	p.advance() // 'enum'
	nameTok, err := p.expect(token.Ident, "an enum name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "{"); err != nil {
		return nil, err
	}
	var values []ast.EnumValue
	for !p.at(token.RBrace) {
		vnameTok, err := p.expect(token.Ident, "an enum member name")
		if err != nil {
			return nil, err
		}
		var val *int64
		if p.at(token.Assign) {
			p.advance()
			neg := false
			if p.at(token.Minus) {
				neg = true
				p.advance()
			}
			tok, err := p.expect(token.Int, "an integer value")
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(tok.Text, 0, 64)
			if err != nil {
				return nil, diag.New(diag.KindParseError, pos, "invalid enum value %q", tok.Text)
			}
			if neg {
				n = -n
			}
			val = &n
		}
		values = append(values, ast.EnumValue{Name: vnameTok.Text, Value: val})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBrace, "}"); err != nil {
		return nil, err
	}
	return &ast.EnumDecl{DeclBase: ast.DeclBase{Pos: pos}, Name: nameTok.Text, Values: values}, nil
}

func (p *parser) parseConfig() (*ast.ConfigDecl, error) {
	pos := p.pos()
	p.advance() // 'config'
	nameTok, err := p.expect(token.Ident, "a config name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace, "{"); err != nil {
		return nil, err
	}
	var fields []ast.ConfigField
	for !p.at(token.RBrace) {
		fnameTok, err := p.expect(token.Ident, "a field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, ":"); err != nil {
			return nil, err
		}
		ftyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		var def ast.Expr
		if p.at(token.Assign) {
			p.advance()
			def, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		fields = append(fields, ast.ConfigField{Name: fnameTok.Text, Type: ftyp, Default: def})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBrace, "}"); err != nil {
		return nil, err
	}
	return &ast.ConfigDecl{DeclBase: ast.DeclBase{Pos: pos}, Name: nameTok.Text, Fields: fields}, nil
}

// parseVar parses a root-scope `[pin] var name [: type] [= init]`. A Type
// field carrying a *ast.MapType makes the declaration a map for symtab and
// ir (spec.md §3); the parser stays agnostic to that distinction.
func (p *parser) parseVar() (*ast.GlobalVarDecl, error) {
	pos := p.pos()
	pinned := false
	if p.at(token.KwPin) {
		pinned = true
		p.advance()
	}
	if _, err := p.expect(token.KwVar, "var"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.Ident, "a variable name")
	if err != nil {
		return nil, err
	}
	var typ ast.Type
	if p.at(token.Colon) {
		p.advance()
		typ, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.GlobalVarDecl{DeclBase: ast.DeclBase{Pos: pos}, Name: nameTok.Text, Type: typ, Init: init, Pinned: pinned}, nil
}

func (p *parser) parseFunction() (*ast.FunctionDecl, error) {
	pos := p.pos()
	attr := ast.AttrNone
	var tcDir, kprobeSym string
	if p.at(token.At) {
		p.advance()
		attrTok, err := p.expect(token.Ident, "an attribute name")
		if err != nil {
			return nil, err
		}
		a, ok := attrNames[attrTok.Text]
		if !ok {
			return nil, diag.New(diag.KindUnknownAttribute, pos, "unknown attribute %q", attrTok.Text)
		}
		attr = a
		if attr == ast.AttrTC || attr == ast.AttrKprobe {
			if _, err := p.expect(token.LParen, "("); err != nil {
				return nil, err
			}
			argTok, err := p.expect(token.String, "a string argument")
			if err != nil {
				return nil, err
			}
			if attr == ast.AttrTC {
				tcDir = argTok.Text
			} else {
				kprobeSym = argTok.Text
			}
			if _, err := p.expect(token.RParen, ")"); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(token.KwFn, "fn"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.Ident, "a function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen, "("); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(token.RParen) {
		pnameTok, err := p.expect(token.Ident, "a parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, ":"); err != nil {
			return nil, err
		}
		ptyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: pnameTok.Text, Type: ptyp})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RParen, ")"); err != nil {
		return nil, err
	}
	var ret ast.Type
	if p.at(token.Arrow) {
		p.advance()
		ret, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{
		DeclBase:   ast.DeclBase{Pos: pos},
		Name:       nameTok.Text,
		Attribute:  attr,
		TCDir:      tcDir,
		KprobeSym:  kprobeSym,
		Params:     params,
		ReturnType: ret,
		Body:       body,
	}, nil
}

func (p *parser) parseType() (ast.Type, error) {
	t, err := p.parseBaseType()
	if err != nil {
		return nil, err
	}
	for p.at(token.LBracket) {
		p.advance()
		tok, err := p.expect(token.Int, "an array size")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok.Text)
		if err != nil {
			return nil, diag.New(diag.KindParseError, p.pos(), "invalid array size %q", tok.Text)
		}
		if _, err := p.expect(token.RBracket, "]"); err != nil {
			return nil, err
		}
		t = &ast.ArrayType{Elem: t, N: n}
	}
	return t, nil
}

func (p *parser) parseBaseType() (ast.Type, error) {
	pos := p.pos()
	switch {
	case p.at(token.Star):
		p.advance()
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.PointerType{Elem: elem}, nil

	case p.at(token.Ident):
		name := p.cur().Text

		if name == "str" {
			p.advance()
			if _, err := p.expect(token.LParen, "("); err != nil {
				return nil, err
			}
			tok, err := p.expect(token.Int, "a string capacity")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(tok.Text)
			if err != nil {
				return nil, diag.New(diag.KindParseError, pos, "invalid string capacity %q", tok.Text)
			}
			if _, err := p.expect(token.RParen, ")"); err != nil {
				return nil, err
			}
			return &ast.StrType{N: n}, nil
		}

		if kind, ok := primitiveNames[name]; ok {
			p.advance()
			return &ast.PrimitiveType{Kind: kind}, nil
		}

		if kind, ok := mapKindNames[name]; ok {
			p.advance()
			if _, err := p.expect(token.Lt, "<"); err != nil {
				return nil, err
			}
			key, err := p.parseType()
			if err != nil {
				return nil, err
			}
			var val ast.Type
			if kind != ast.MapRingbuf && kind != ast.MapPerfEventArray {
				if _, err := p.expect(token.Comma, ","); err != nil {
					return nil, err
				}
				val, err = p.parseType()
				if err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(token.Gt, ">"); err != nil {
				return nil, err
			}
			if _, err := p.expect(token.LParen, "("); err != nil {
				return nil, err
			}
			tok, err := p.expect(token.Int, "a max_entries value")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(tok.Text)
			if err != nil {
				return nil, diag.New(diag.KindParseError, pos, "invalid max_entries %q", tok.Text)
			}
			if _, err := p.expect(token.RParen, ")"); err != nil {
				return nil, err
			}
			return &ast.MapType{Key: key, Value: val, Kind: kind, MaxEntries: n}, nil
		}

		p.advance()
		return &ast.NamedType{Name: name}, nil

	default:
		return nil, diag.New(diag.KindParseError, pos, "expected a type, got %q", p.cur().Text)
	}
}

func (p *parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(token.LBrace, "{"); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.at(token.RBrace) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(token.RBrace, "}"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	pos := p.pos()
	switch {
	case p.at(token.KwVar):
		return p.parseVarDeclStmt()
	case p.at(token.KwIf):
		return p.parseIf()
	case p.at(token.KwFor):
		return p.parseFor()
	case p.at(token.KwReturn):
		p.advance()
		if p.at(token.RBrace) {
			return &ast.ReturnStmt{StmtBase: ast.StmtBase{Pos: pos}}, nil
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{StmtBase: ast.StmtBase{Pos: pos}, Value: v}, nil
	case p.at(token.KwDelete):
		p.advance()
		e, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		idx, ok := e.(*ast.IndexExpr)
		if !ok {
			return nil, diag.New(diag.KindParseError, pos, "delete requires a map index expression")
		}
		return &ast.DeleteStmt{StmtBase: ast.StmtBase{Pos: pos}, Map: idx.Map, Key: idx.Key}, nil
	default:
		return p.parseSimpleStmt()
	}
}

func (p *parser) parseVarDeclStmt() (*ast.VarDeclStmt, error) {
	pos := p.pos()
	p.advance() // 'var'
	nameTok, err := p.expect(token.Ident, "a variable name")
	if err != nil {
		return nil, err
	}
	var typ ast.Type
	if p.at(token.Colon) {
		p.advance()
		typ, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	var init ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return &ast.VarDeclStmt{StmtBase: ast.StmtBase{Pos: pos}, Name: nameTok.Text, Type: typ, Init: init}, nil
}

func (p *parser) parseIf() (*ast.IfStmt, error) {
	pos := p.pos()
	p.advance() // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	thenBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBody []ast.Stmt
	if p.at(token.KwElse) {
		p.advance()
		if p.at(token.KwIf) {
			inner, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBody = []ast.Stmt{inner}
		} else {
			elseBody, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return &ast.IfStmt{StmtBase: ast.StmtBase{Pos: pos}, Cond: cond, Then: thenBody, Else: elseBody}, nil
}

// parseFor parses both surface loop forms (spec.md §4.4): `for v in lo..hi`
// and `for v in expr`. Only the range form can ever fold to Bounded; the
// iterator form is always classified Unbounded by internal/loopanalysis.
func (p *parser) parseFor() (*ast.ForStmt, error) {
	pos := p.pos()
	p.advance() // 'for'
	varTok, err := p.expect(token.Ident, "a loop variable")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwIn, "in"); err != nil {
		return nil, err
	}
	start, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(token.DotDot) {
		p.advance()
		end, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.ForStmt{StmtBase: ast.StmtBase{Pos: pos}, Var: varTok.Text, Kind: ast.ForRange, Start: start, End: end, Body: body}, nil
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{StmtBase: ast.StmtBase{Pos: pos}, Var: varTok.Text, Kind: ast.ForIter, Iter: start, Body: body}, nil
}

func (p *parser) parseSimpleStmt() (ast.Stmt, error) {
	pos := p.pos()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(token.Assign) {
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{StmtBase: ast.StmtBase{Pos: pos}, Target: e, Value: v}, nil
	}
	return &ast.ExprStmt{StmtBase: ast.StmtBase{Pos: pos}, X: e}, nil
}

func (p *parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.OrOr) {
		pos := p.pos()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(token.AndAnd) {
		pos := p.pos()
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.at(token.Eq) || p.at(token.Neq) {
		pos := p.pos()
		op := ast.OpEq
		if p.at(token.Neq) {
			op = ast.OpNeq
		}
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(token.Lt) || p.at(token.Le) || p.at(token.Gt) || p.at(token.Ge) {
		pos := p.pos()
		var op ast.BinaryOp
		switch p.peekKind() {
		case token.Lt:
			op = ast.OpLt
		case token.Le:
			op = ast.OpLe
		case token.Gt:
			op = ast.OpGt
		case token.Ge:
			op = ast.OpGe
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(token.Plus) || p.at(token.Minus) {
		pos := p.pos()
		op := ast.OpAdd
		if p.at(token.Minus) {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(token.Star) || p.at(token.Slash) || p.at(token.Percent) {
		pos := p.pos()
		var op ast.BinaryOp
		switch p.peekKind() {
		case token.Star:
			op = ast.OpMul
		case token.Slash:
			op = ast.OpDiv
		case token.Percent:
			op = ast.OpMod
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.at(token.Minus) || p.at(token.Bang) {
		pos := p.pos()
		op := ast.OpNeg
		if p.at(token.Bang) {
			op = ast.OpNot
		}
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{ExprBase: ast.ExprBase{Pos: pos}, Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(token.Dot):
			pos := p.pos()
			p.advance()
			fTok, err := p.expect(token.Ident, "a field name")
			if err != nil {
				return nil, err
			}
			e = &ast.FieldAccess{ExprBase: ast.ExprBase{Pos: pos}, Target: e, Field: fTok.Text}

		case p.at(token.Arrow):
			pos := p.pos()
			p.advance()
			fTok, err := p.expect(token.Ident, "a field name")
			if err != nil {
				return nil, err
			}
			e = &ast.ArrowAccess{ExprBase: ast.ExprBase{Pos: pos}, Target: e, Field: fTok.Text}

		case p.at(token.LBracket):
			pos := p.pos()
			p.advance()
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket, "]"); err != nil {
				return nil, err
			}
			e = &ast.IndexExpr{ExprBase: ast.ExprBase{Pos: pos}, Map: e, Key: k}

		case p.at(token.LParen):
			pos := p.pos()
			p.advance()
			var args []ast.Expr
			for !p.at(token.RParen) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(token.Comma) {
					p.advance()
				}
			}
			if _, err := p.expect(token.RParen, ")"); err != nil {
				return nil, err
			}
			e = &ast.CallExpr{ExprBase: ast.ExprBase{Pos: pos}, Callee: e, Args: args}

		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	pos := p.pos()
	switch {
	case p.at(token.Int):
		tok := p.advance()
		raw, tag, err := parseIntLiteral(tok.Text)
		if err != nil {
			return nil, diag.New(diag.KindParseError, pos, "invalid integer literal %q", tok.Text)
		}
		return &ast.IntLit{ExprBase: ast.ExprBase{Pos: pos}, Raw: raw, Tag: tag}, nil

	case p.at(token.KwTrue):
		p.advance()
		return &ast.BoolLit{ExprBase: ast.ExprBase{Pos: pos}, Value: true}, nil

	case p.at(token.KwFalse):
		p.advance()
		return &ast.BoolLit{ExprBase: ast.ExprBase{Pos: pos}, Value: false}, nil

	case p.at(token.KwNone):
		p.advance()
		return &ast.NoneExpr{ExprBase: ast.ExprBase{Pos: pos}}, nil

	case p.at(token.String):
		tok := p.advance()
		return &ast.StringLit{ExprBase: ast.ExprBase{Pos: pos}, Value: tok.Text}, nil

	case p.at(token.Ident):
		tok := p.advance()
		return &ast.Ident{ExprBase: ast.ExprBase{Pos: pos}, Name: tok.Text}, nil

	case p.at(token.LParen):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen, ")"); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, diag.New(diag.KindParseError, pos, "expected an expression, got %q", p.cur().Text)
	}
}

// parseIntLiteral parses a lexed integer token (decimal or 0x-prefixed hex)
// into its raw 64-bit pattern. The surface syntax has no literal width
// suffix, so every literal starts life tagged 64-bit unsigned; constant
// folding widens it with ast.IntTag.Widen, and the checker uses
// ast.IntTag.Narrow to accept a literal map key that fits the key type.
func parseIntLiteral(text string) (uint64, ast.IntTag, error) {
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, ast.IntTag{}, err
	}
	return v, ast.IntTag{Width: 64, Signed: false}, nil
}
