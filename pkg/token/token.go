package token

import "fmt"

type Type int

const (
	EOF Type = iota
	Ident
	Number
	FloatNumber
	CharLit
	String
	If
	Else
	While
	Do
	For
	Return
	Switch
	Case
	Default
	Break
	Continue
	Sizeof
	Enum
	Void
	Char
	Int
	Unsigned
	Float
	Double
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Question
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"if":       If,
	"else":     Else,
	"while":    While,
	"do":       Do,
	"for":      For,
	"return":   Return,
	"switch":   Switch,
	"case":     Case,
	"default":  Default,
	"break":    Break,
	"continue": Continue,
	"sizeof":   Sizeof,
	"enum":     Enum,
	"void":     Void,
	"char":     Char,
	"int":      Int,
	"unsigned": Unsigned,
	"float":    Float,
	"double":   Double,
}

var punctStrings = map[Type]string{
	EOF: "end of file", Ident: "identifier", Number: "number", FloatNumber: "floating constant",
	CharLit: "character constant", String: "string literal",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Question: "?",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Shl: "<<", Shr: ">>", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to its keyword or punctuation spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// IsTypeSpecifier reports whether t starts a type name.
func (t Type) IsTypeSpecifier() bool { return t >= Enum && t <= Double }

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
