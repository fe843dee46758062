package lexer

import (
	"strings"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/google/go-cmp/cmp"
)

func lex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := Tokenize([]rune(src), 0, config.NewConfig())
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	return toks
}

func kinds(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestOperators(t *testing.T) {
	src := "+ ++ += - -- -= * *= / /= % %= & && &= | || |= ^ ^= << <<= >> >>= < <= > >= = == ! != ~ ? : ; , ( ) [ ] { }"
	want := []token.Type{
		token.Plus, token.Inc, token.PlusEq, token.Minus, token.Dec, token.MinusEq,
		token.Star, token.StarEq, token.Slash, token.SlashEq, token.Rem, token.RemEq,
		token.And, token.AndAnd, token.AndEq, token.Or, token.OrOr, token.OrEq,
		token.Xor, token.XorEq, token.Shl, token.ShlEq, token.Shr, token.ShrEq,
		token.Lt, token.Lte, token.Gt, token.Gte, token.Eq, token.EqEq, token.Not, token.Neq,
		token.Complement, token.Question, token.Colon, token.Semi, token.Comma,
		token.LParen, token.RParen, token.LBracket, token.RBracket, token.LBrace, token.RBrace,
		token.EOF,
	}
	if diff := cmp.Diff(want, kinds(lex(t, src))); diff != "" {
		t.Errorf("token kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestKeywordsAndIdents(t *testing.T) {
	toks := lex(t, "unsigned int counter; double _x1 = sizeof(char);")
	want := []token.Type{token.Unsigned, token.Int, token.Ident, token.Semi, token.Double, token.Ident,
		token.Eq, token.Sizeof, token.LParen, token.Char, token.RParen, token.Semi, token.EOF}
	if diff := cmp.Diff(want, kinds(toks)); diff != "" {
		t.Fatalf("token kinds mismatch (-want +got):\n%s", diff)
	}
	if toks[2].Value != "counter" || toks[5].Value != "_x1" {
		t.Errorf("identifier values %q, %q", toks[2].Value, toks[5].Value)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src  string
		typ  token.Type
		want string
	}{
		{"42", token.Number, "42"},
		{"0x1F", token.Number, "31"},
		{"017", token.Number, "15"},
		{"10u", token.Number, "10"},
		{"0", token.Number, "0"},
		{"3.25", token.FloatNumber, "3.25"},
		{"1.5f", token.FloatNumber, "1.5f"},
		{".5", token.FloatNumber, ".5"},
		{"2e3", token.FloatNumber, "2e3"},
		{"'a'", token.CharLit, "97"},
		{"'\\n'", token.CharLit, "10"},
		{"'\\x41'", token.CharLit, "65"},
		{"'\\0'", token.CharLit, "0"},
	}
	for _, tt := range tests {
		toks := lex(t, tt.src)
		if toks[0].Type != tt.typ || toks[0].Value != tt.want {
			t.Errorf("%s: got %v %q, want %v %q", tt.src, toks[0].Type, toks[0].Value, tt.typ, tt.want)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := lex(t, `"a\tb\n\"q\"\101"`)
	if toks[0].Type != token.String || toks[0].Value != "a\tb\n\"q\"A" {
		t.Errorf("got %v %q", toks[0].Type, toks[0].Value)
	}
}

func TestCommentsAndDirectives(t *testing.T) {
	src := "#include <stdio.h>\n// line\nint /* block\n comment */ x;\n  #define N 3\n"
	toks := lex(t, src)
	if diff := cmp.Diff([]token.Type{token.Int, token.Ident, token.Semi, token.EOF}, kinds(toks)); diff != "" {
		t.Fatalf("token kinds mismatch (-want +got):\n%s", diff)
	}
	if toks[1].Line != 4 || toks[1].Column != 13 {
		t.Errorf("x at %d:%d, want 4:13", toks[1].Line, toks[1].Column)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct{ src, want string }{
		{"int @;", "unexpected character '@'"},
		{`"abc`, "unterminated string literal"},
		{"/* open", "unterminated block comment"},
		{"''", "empty character constant"},
		{"1e+", "exponent has no digits"},
	}
	for _, tt := range tests {
		_, err := Tokenize([]rune(tt.src), 0, config.NewConfig())
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Tokenize(%q) error = %v, want %q", tt.src, err, tt.want)
		}
	}
}
