// Package lexer tokenizes KernelScript source text into the token stream
// consumed by internal/parser (spec.md §4.1). It performs no semantic
// validation; malformed surface syntax is rejected here only when it cannot
// be tokenized at all (an unterminated string, a stray character).
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/token"
)

// Lexer scans one source file into tokens on demand.
type Lexer struct {
	file string
	src  string
	pos  int
	line int
	col  int
}

// New creates a Lexer over src, attributing every position to file.
func New(file, src string) *Lexer {
	return &Lexer{file: file, src: src, line: 1, col: 1}
}

// Tokenize consumes the entire source and returns its token stream,
// terminated by a token.EOF. It returns a *diag.Error (KindParseError) on
// the first unrecognized character or unterminated literal.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var toks []token.Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) pos0() ast.Position { return ast.Position{File: l.file, Line: l.line, Column: l.col} }

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		b := l.peekByte()
		switch {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			l.advance()
		case b == '/' && l.peekByteAt(1) == '/':
			for l.pos < len(l.src) && l.peekByte() != '\n' {
				l.advance()
			}
		case b == '/' && l.peekByteAt(1) == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) && !(l.peekByte() == '*' && l.peekByteAt(1) == '/') {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentCont(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

func (l *Lexer) next() (token.Token, error) {
	l.skipTrivia()
	start := l.pos0()
	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Line: start.Line, Column: start.Column}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case isIdentStart(r):
		begin := l.pos
		for l.pos < len(l.src) {
			rr, sz := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentCont(rr) {
				break
			}
			for i := 0; i < sz; i++ {
				l.advance()
			}
		}
		text := l.src[begin:l.pos]
		if kw, ok := token.Lookup(text); ok {
			return token.Token{Kind: kw, Text: text, Line: start.Line, Column: start.Column}, nil
		}
		return token.Token{Kind: token.Ident, Text: text, Line: start.Line, Column: start.Column}, nil

	case unicode.IsDigit(r):
		begin := l.pos
		if r == '0' && (l.peekByteAt(1) == 'x' || l.peekByteAt(1) == 'X') {
			l.advance()
			l.advance()
			for l.pos < len(l.src) && isHexDigit(l.peekByte()) {
				l.advance()
			}
		} else {
			for l.pos < len(l.src) && unicode.IsDigit(rune(l.peekByte())) {
				l.advance()
			}
		}
		return token.Token{Kind: token.Int, Text: l.src[begin:l.pos], Line: start.Line, Column: start.Column}, nil

	case r == '"':
		l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token.Token{}, diag.New(diag.KindParseError, start, "unterminated string literal")
			}
			b := l.peekByte()
			if b == '"' {
				l.advance()
				break
			}
			if b == '\\' {
				l.advance()
				esc := l.advance()
				switch esc {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case '"', '\\':
					sb.WriteByte(esc)
				default:
					sb.WriteByte(esc)
				}
				continue
			}
			sb.WriteByte(l.advance())
		}
		return token.Token{Kind: token.String, Text: sb.String(), Line: start.Line, Column: start.Column}, nil
	}

	// Punctuation and operators, longest-match first.
	two := l.src[l.pos:min(l.pos+2, len(l.src))]
	switch two {
	case "->":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Arrow, Text: two, Line: start.Line, Column: start.Column}, nil
	case "..":
		l.advance()
		l.advance()
		return token.Token{Kind: token.DotDot, Text: two, Line: start.Line, Column: start.Column}, nil
	case "==":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Eq, Text: two, Line: start.Line, Column: start.Column}, nil
	case "!=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Neq, Text: two, Line: start.Line, Column: start.Column}, nil
	case "<=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Le, Text: two, Line: start.Line, Column: start.Column}, nil
	case ">=":
		l.advance()
		l.advance()
		return token.Token{Kind: token.Ge, Text: two, Line: start.Line, Column: start.Column}, nil
	case "&&":
		l.advance()
		l.advance()
		return token.Token{Kind: token.AndAnd, Text: two, Line: start.Line, Column: start.Column}, nil
	case "||":
		l.advance()
		l.advance()
		return token.Token{Kind: token.OrOr, Text: two, Line: start.Line, Column: start.Column}, nil
	}

	one := l.advance()
	kind, ok := singleCharKinds[one]
	if !ok {
		return token.Token{}, diag.New(diag.KindParseError, start, "unexpected character %q", one)
	}
	return token.Token{Kind: kind, Text: string(one), Line: start.Line, Column: start.Column}, nil
}

var singleCharKinds = map[byte]token.Kind{
	'{': token.LBrace,
	'}': token.RBrace,
	'(': token.LParen,
	')': token.RParen,
	'[': token.LBracket,
	']': token.RBracket,
	',': token.Comma,
	':': token.Colon,
	'.': token.Dot,
	'@': token.At,
	'=': token.Assign,
	'+': token.Plus,
	'-': token.Minus,
	'*': token.Star,
	'/': token.Slash,
	'%': token.Percent,
	'<': token.Lt,
	'>': token.Gt,
	'!': token.Bang,
	'&': token.Amp,
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
