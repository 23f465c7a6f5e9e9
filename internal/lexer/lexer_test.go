package lexer_test

import (
	"testing"

	"github.com/kernelscript/ksc/internal/diag"
	"github.com/kernelscript/ksc/internal/lexer"
	"github.com/kernelscript/ksc/internal/token"
)

func tokenize(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := lexer.New("test.ks", src).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q): unexpected error: %v", src, err)
	}
	return toks
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tk := range toks {
		out[i] = tk.Kind
	}
	return out
}

func TestTokenize_KeywordsAndIdents(t *testing.T) {
	toks := tokenize(t, "fn main struct Config")
	got := kinds(toks)
	want := []token.Kind{token.KwFn, token.Ident, token.KwStruct, token.Ident, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i, k := range want {
		if got[i] != k {
			t.Errorf("token[%d] kind = %v, want %v", i, got[i], k)
		}
	}
	if toks[1].Text != "main" {
		t.Errorf("token[1].Text = %q, want main", toks[1].Text)
	}
}

func TestTokenize_IntAndHex(t *testing.T) {
	toks := tokenize(t, "42 0xFF")
	if toks[0].Kind != token.Int || toks[0].Text != "42" {
		t.Errorf("token[0] = %+v", toks[0])
	}
	if toks[1].Kind != token.Int || toks[1].Text != "0xFF" {
		t.Errorf("token[1] = %+v", toks[1])
	}
}

func TestTokenize_StringWithEscapes(t *testing.T) {
	toks := tokenize(t, `"hello\nworld"`)
	if toks[0].Kind != token.String {
		t.Fatalf("token[0].Kind = %v, want String", toks[0].Kind)
	}
	if toks[0].Text != "hello\nworld" {
		t.Errorf("token[0].Text = %q, want %q", toks[0].Text, "hello\nworld")
	}
}

func TestTokenize_UnterminatedStringIsParseError(t *testing.T) {
	_, err := lexer.New("test.ks", `"unterminated`).Tokenize()
	if err == nil {
		t.Fatal("expected error for unterminated string")
	}
	derr, ok := err.(*diag.Error)
	if !ok {
		t.Fatalf("error type = %T, want *diag.Error", err)
	}
	if derr.Kind != diag.KindParseError {
		t.Errorf("Kind = %v, want KindParseError", derr.Kind)
	}
}

func TestTokenize_SkipsLineAndBlockComments(t *testing.T) {
	src := "fn // a comment\nmain /* block\ncomment */ ()"
	toks := tokenize(t, src)
	got := kinds(toks)
	want := []token.Kind{token.KwFn, token.Ident, token.LParen, token.RParen, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
}

func TestTokenize_TwoCharOperators(t *testing.T) {
	toks := tokenize(t, "-> .. == != <= >= && ||")
	got := kinds(toks)
	want := []token.Kind{
		token.Arrow, token.DotDot, token.Eq, token.Neq,
		token.Le, token.Ge, token.AndAnd, token.OrOr, token.EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i, k := range want {
		if got[i] != k {
			t.Errorf("token[%d] kind = %v, want %v", i, got[i], k)
		}
	}
}

func TestTokenize_UnexpectedCharacterIsParseError(t *testing.T) {
	_, err := lexer.New("test.ks", "fn main $ ()").Tokenize()
	if err == nil {
		t.Fatal("expected error for unexpected character")
	}
	derr, ok := err.(*diag.Error)
	if !ok {
		t.Fatalf("error type = %T, want *diag.Error", err)
	}
	if derr.Kind != diag.KindParseError {
		t.Errorf("Kind = %v, want KindParseError", derr.Kind)
	}
}

func TestTokenize_EmptySourceYieldsOnlyEOF(t *testing.T) {
	toks := tokenize(t, "")
	if len(toks) != 1 || toks[0].Kind != token.EOF {
		t.Fatalf("tokens = %+v, want single EOF", toks)
	}
}

func TestTokenize_PositionsTrackLinesAndColumns(t *testing.T) {
	toks := tokenize(t, "fn\nmain")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("fn position = %d:%d, want 1:1", toks[0].Line, toks[0].Column)
	}
	if toks[1].Line != 2 || toks[1].Column != 1 {
		t.Errorf("main position = %d:%d, want 2:1", toks[1].Line, toks[1].Column)
	}
}
