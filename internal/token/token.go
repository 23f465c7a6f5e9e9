// Package token defines the lexical tokens produced by internal/lexer.
package token

// Kind identifies the lexical category of a Token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Int
	String

	// Keywords.
	KwStruct
	KwType
	KwVar
	KwPin
	KwConfig
	KwFn
	KwInclude
	KwIf
	KwElse
	KwFor
	KwIn
	KwReturn
	KwDelete
	KwTrue
	KwFalse
	KwNone
	KwEnum

	// Punctuation and operators.
	LBrace
	RBrace
	LParen
	RParen
	LBracket
	RBracket
	Comma
	Colon
	Dot
	Arrow    // ->
	DotDot   // ..
	At       // @
	Assign   // =
	Plus
	Minus
	Star
	Slash
	Percent
	Eq       // ==
	Neq      // !=
	Lt
	Le
	Gt
	Ge
	AndAnd
	OrOr
	Bang
	Amp // &
)

// keywords maps identifier text to its reserved keyword Kind.
var keywords = map[string]Kind{
	"struct":  KwStruct,
	"type":    KwType,
	"var":     KwVar,
	"pin":     KwPin,
	"config":  KwConfig,
	"fn":      KwFn,
	"include": KwInclude,
	"if":      KwIf,
	"else":    KwElse,
	"for":     KwFor,
	"in":      KwIn,
	"return":  KwReturn,
	"delete":  KwDelete,
	"true":    KwTrue,
	"false":   KwFalse,
	"none":    KwNone,
	"enum":    KwEnum,
}

// Lookup returns the keyword Kind for ident, or the zero Kind (EOF) and
// false if ident is not reserved.
func Lookup(ident string) (Kind, bool) {
	k, ok := keywords[ident]
	return k, ok
}

// Token is one lexical token with its source position.
type Token struct {
	Kind   Kind
	Text   string
	Line   int
	Column int
}
