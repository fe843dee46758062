package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize scans the whole source, ending with an EOF token.
func Tokenize(source []rune, fileIndex int, cfg *config.Config) (toks []token.Token, err error) {
	defer util.Recover(&err)
	l := NewLexer(source, fileIndex, cfg)
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
	case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
	case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
	case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case '?': return l.makeToken(token.Question, "", startPos, startCol, startLine)
	case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
	case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
	case '^': return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine)
	case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
	case '*': return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
	case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
	case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
	case '+': return l.doubled('+', token.Inc, token.PlusEq, token.Plus, startPos, startCol, startLine)
	case '-': return l.doubled('-', token.Dec, token.MinusEq, token.Minus, startPos, startCol, startLine)
	case '&': return l.doubled('&', token.AndAnd, token.AndEq, token.And, startPos, startCol, startLine)
	case '|': return l.doubled('|', token.OrOr, token.OrEq, token.Or, startPos, startCol, startLine)
	case '<':
		if l.match('<') {
			return l.matchThen('=', token.ShlEq, token.Shl, startPos, startCol, startLine)
		}
		return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine)
	case '>':
		if l.match('>') {
			return l.matchThen('=', token.ShrEq, token.Shr, startPos, startCol, startLine)
		}
		return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine)
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	case '\'':
		return l.charLiteral(startPos, startCol, startLine)
	}

	util.Abort(l.makeToken(token.EOF, "", startPos, startCol, startLine), "unexpected character '%c'", ch)
	return token.Token{}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

// skipWhitespaceAndComments also drops preprocessor lines: sources are fed
// in already preprocessed, but test drivers keep their #include lines.
func (l *Lexer) skipWhitespaceAndComments() {
	atLineStart := l.column == 1
	for {
		switch l.peek() {
		case '\n':
			l.advance()
			atLineStart = true
		case ' ', '\t', '\r':
			l.advance()
		case '#':
			if !atLineStart {
				return
			}
			l.lineComment()
		case '/':
			switch {
			case l.peekNext() == '*':
				l.blockComment()
			case l.peekNext() == '/' && l.cfg.IsFeatureEnabled(config.FeatCComments):
				l.lineComment()
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	startTok.Len = 2
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	util.Abort(startTok, "unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(tokType, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

// numberLiteral scans decimal, octal and hex integers and decimal floating
// constants. Integer suffixes u/l are accepted and dropped; a floating
// constant keeps its f suffix in Value so the parser can pick float over double.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	isFloat, isHex := false, false
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		isHex = true
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			isFloat = true
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			isFloat = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !unicode.IsDigit(l.peek()) {
				util.Abort(l.makeToken(token.FloatNumber, "", startPos, startCol, startLine), "exponent has no digits")
			}
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
	}
	valueStr := string(l.source[startPos:l.pos])

	if isFloat {
		if l.peek() == 'f' || l.peek() == 'F' {
			l.advance()
			valueStr += "f"
		} else if l.peek() == 'l' || l.peek() == 'L' {
			l.advance()
		}
		return l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine)
	}

	for strings.ContainsRune("uUlL", l.peek()) && l.peek() != 0 {
		l.advance()
	}
	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	base := 10
	digits := valueStr
	switch {
	case isHex:
		base, digits = 16, valueStr[2:]
	case len(valueStr) > 1 && valueStr[0] == '0':
		base, digits = 8, valueStr[1:]
	}
	val, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		util.Abort(tok, "invalid integer constant '%s'", valueStr)
	}
	if val > 0xFFFFFFFF {
		util.Warn(l.cfg, config.WarnOverflow, tok, "integer constant '%s' truncated to 32 bits", valueStr)
		val &= 0xFFFFFFFF
	}
	tok.Value = strconv.FormatUint(val, 10)
	return tok
}

func isHexDigit(c rune) bool {
	return unicode.IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var buf []byte
	for !l.isAtEnd() {
		c := l.peek()
		switch {
		case c == '"':
			l.advance()
			return l.makeToken(token.String, string(buf), startPos, startCol, startLine)
		case c == '\n':
			util.Abort(l.makeToken(token.String, "", startPos, startCol, startLine), "missing terminating '\"' character")
		case c == '\\' && l.cfg.IsFeatureEnabled(config.FeatCharEscapes):
			l.advance()
			buf = append(buf, l.decodeEscape(startPos, startCol, startLine))
		default:
			l.advance()
			buf = append(buf, []byte(string(c))...)
		}
	}
	util.Abort(l.makeToken(token.String, "", startPos, startCol, startLine), "unterminated string literal")
	return token.Token{}
}

// charLiteral yields the byte value of a single character constant. Multi
// character constants are packed big-endian into an int as C compilers do.
func (l *Lexer) charLiteral(startPos, startCol, startLine int) token.Token {
	var word int64
	count := 0
	for l.peek() != '\'' && !l.isAtEnd() && l.peek() != '\n' {
		var val byte
		if l.peek() == '\\' && l.cfg.IsFeatureEnabled(config.FeatCharEscapes) {
			l.advance()
			val = l.decodeEscape(startPos, startCol, startLine)
		} else {
			val = byte(l.advance())
		}
		word = (word << 8) | int64(val)
		count++
	}
	tok := l.makeToken(token.CharLit, "", startPos, startCol, startLine)
	if !l.match('\'') {
		util.Abort(tok, "unterminated character constant")
	}
	tok.Len = l.pos - startPos
	if count == 0 {
		util.Abort(tok, "empty character constant")
	}
	if count > 4 {
		util.Warn(l.cfg, config.WarnOverflow, tok, "character constant too long for its type")
	}
	tok.Value = strconv.FormatInt(int64(int32(word)), 10)
	return tok
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) byte {
	if l.isAtEnd() {
		util.Abort(l.makeToken(token.EOF, "", l.pos, l.column, l.line), "unterminated escape sequence")
	}
	c := l.advance()

	if c == 'x' {
		var val int64
		digits := 0
		for isHexDigit(l.peek()) {
			d, _ := strconv.ParseInt(string(l.advance()), 16, 64)
			val = val*16 + d
			digits++
		}
		if digits == 0 {
			util.Abort(l.makeToken(token.String, "", startPos, startCol, startLine), "\\x used with no following hex digits")
		}
		if val > 0xFF {
			util.Warn(l.cfg, config.WarnTruncatedChar, l.makeToken(token.String, "", startPos, startCol, startLine), "hex escape sequence out of range")
		}
		return byte(val)
	}

	if c >= '0' && c <= '7' {
		val := int64(c - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			val = val*8 + int64(l.advance()-'0')
		}
		if val > 0xFF {
			util.Warn(l.cfg, config.WarnTruncatedChar, l.makeToken(token.String, "", startPos, startCol, startLine), "octal escape sequence out of range")
		}
		return byte(val)
	}

	switch c {
	case 'n': return '\n'
	case 't': return '\t'
	case 'r': return '\r'
	case 'b': return '\b'
	case 'a': return '\a'
	case 'f': return '\f'
	case 'v': return '\v'
	case '\\', '\'', '"', '?': return byte(c)
	}
	util.Warn(l.cfg, config.WarnUnrecognizedEscape, l.makeToken(token.String, "", startPos, startCol, startLine), "unknown escape sequence '\\%c'", c)
	return byte(c)
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// doubled handles the x, xx, x= operator families (+ ++ +=, & && &=, ...).
func (l *Lexer) doubled(ch rune, twice, assign, single token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.makeToken(twice, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', assign, single, sPos, sCol, sLine)
}
