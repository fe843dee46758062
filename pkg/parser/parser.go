package parser

import (
	"strconv"
	"strings"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
}

// NewParser creates and initializes a new Parser from a token stream ending
// in EOF.
func NewParser(tokens []token.Token, cfg *config.Config) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Parser{tokens: tokens, current: tokens[0], cfg: cfg}
}

// ParseAST parses a whole translation unit.
func ParseAST(tokens []token.Token, cfg *config.Config) (root *ast.Node, err error) {
	defer util.Recover(&err)
	return NewParser(tokens, cfg).Parse(), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, context string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	got := p.current.Type.String()
	if p.current.Type == token.Ident {
		got = "'" + p.current.Value + "'"
	}
	util.Abort(p.current, "expected '%s' %s, got %s", tokType, context, got)
	return token.Token{}
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 13
	case token.Plus, token.Minus:
		return 12
	case token.Shl, token.Shr:
		return 11
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 10
	case token.EqEq, token.Neq:
		return 9
	case token.And:
		return 8
	case token.Xor:
		return 7
	case token.Or:
		return 6
	case token.AndAnd:
		return 5
	case token.OrOr:
		return 4
	default:
		return -1
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		val, _ := strconv.ParseInt(tok.Value, 10, 64)
		return ast.NewIntConst(tok, val, val > 0x7FFFFFFF)
	case p.match(token.FloatNumber):
		text := strings.TrimSuffix(tok.Value, "f")
		val, err := strconv.ParseFloat(text, 64)
		if err != nil {
			util.Abort(tok, "invalid floating constant '%s'", tok.Value)
		}
		return ast.NewFloatConst(tok, val, strings.HasSuffix(tok.Value, "f"))
	case p.match(token.CharLit):
		val, _ := strconv.ParseInt(tok.Value, 10, 64)
		return ast.NewCharConst(tok, val)
	case p.match(token.String):
		value := tok.Value
		for p.match(token.String) {
			value += p.previous.Value
		}
		return ast.NewStringConst(tok, value)
	case p.match(token.Ident):
		return ast.NewIdent(tok, tok.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "after expression")
		return expr
	}
	util.Abort(tok, "expected an expression, got %s", tok.Type)
	return nil
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.LParen):
			if expr.Type != ast.Ident {
				util.Abort(tok, "called object is not a function name")
			}
			var args []*ast.Node
			if !p.check(token.RParen) {
				for {
					args = append(args, p.parseAssignmentExpr())
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "after function arguments")
			expr = ast.NewCall(expr.Tok, expr.Data.(ast.IdentNode).Name, args)
		case p.match(token.LBracket):
			index := p.parseExpr()
			p.expect(token.RBracket, "after array index")
			expr = ast.NewIndex(tok, expr, index)
		case p.match(token.Inc) || p.match(token.Dec):
			if !ast.IsLValue(expr) {
				util.Abort(p.previous, "lvalue required as increment operand")
			}
			expr = ast.NewIncrement(p.previous, p.previous.Type, false, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Not) || p.match(token.Complement) || p.match(token.Minus) || p.match(token.Plus):
		return ast.NewUnary(tok, tok.Type, p.parseUnaryExpr())
	case p.match(token.Star):
		return ast.NewDeref(tok, p.parseUnaryExpr())
	case p.match(token.And):
		operand := p.parseUnaryExpr()
		if !ast.IsLValue(operand) {
			util.Abort(tok, "lvalue required as unary '&' operand")
		}
		return ast.NewAddrOf(tok, operand)
	case p.match(token.Inc) || p.match(token.Dec):
		operand := p.parseUnaryExpr()
		if !ast.IsLValue(operand) {
			util.Abort(tok, "lvalue required as increment operand")
		}
		return ast.NewIncrement(tok, tok.Type, true, operand)
	case p.match(token.Sizeof):
		if p.check(token.LParen) && p.peek().Type.IsTypeSpecifier() {
			p.advance()
			spec, enum := p.parseDeclSpec()
			if enum != nil {
				util.Abort(enum.Tok, "enum definition inside sizeof")
			}
			ptr := 0
			for p.match(token.Star) {
				ptr++
			}
			p.expect(token.RParen, "after type name")
			return ast.NewSizeofType(tok, spec, ptr)
		}
		return ast.NewSizeofExpr(tok, p.parseUnaryExpr())
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		switch op {
		case token.Lt, token.Gt, token.Lte, token.Gte, token.EqEq, token.Neq:
			left = ast.NewRelational(opTok, op, left, right)
		case token.AndAnd, token.OrOr:
			left = ast.NewLogical(opTok, op, left, right)
		default:
			left = ast.NewBinary(opTok, op, left, right)
		}
	}
	return left
}

func (p *Parser) parseTernaryExpr() *ast.Node {
	cond := p.parseBinaryExpr(0)
	if p.match(token.Question) {
		tok := p.previous
		if !p.cfg.IsFeatureEnabled(config.FeatTernary) {
			util.Abort(tok, "conditional operator is disabled (use -Fternary)")
		}
		thenExpr := p.parseExpr()
		p.expect(token.Colon, "in conditional expression")
		elseExpr := p.parseTernaryExpr()
		return ast.NewTernary(tok, cond, thenExpr, elseExpr)
	}
	return cond
}

func isAssignmentOp(op token.Type) bool {
	return op >= token.Eq && op <= token.ShrEq
}

func (p *Parser) parseAssignmentExpr() *ast.Node {
	left := p.parseTernaryExpr()
	if isAssignmentOp(p.current.Type) {
		if !ast.IsLValue(left) {
			util.Abort(p.current, "lvalue required as left operand of assignment")
		}
		tok := p.current
		p.advance()
		right := p.parseAssignmentExpr()
		return ast.NewAssign(tok, tok.Type, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseAssignmentExpr()
}

// Declarations

// parseDeclSpec reads a type specifier. An enum body defined in place is
// returned as a separate EnumDecl node.
func (p *Parser) parseDeclSpec() (ast.TypeSpec, *ast.Node) {
	tok := p.current
	switch {
	case p.match(token.Int):
		return ast.TypeSpec{Kind: types.Int}, nil
	case p.match(token.Char):
		return ast.TypeSpec{Kind: types.Char}, nil
	case p.match(token.Float):
		return ast.TypeSpec{Kind: types.Float}, nil
	case p.match(token.Double):
		return ast.TypeSpec{Kind: types.Double}, nil
	case p.match(token.Void):
		return ast.TypeSpec{Kind: types.Void}, nil
	case p.match(token.Unsigned):
		if !p.match(token.Int) {
			p.match(token.Char)
		}
		return ast.TypeSpec{Kind: types.Unsigned}, nil
	case p.match(token.Enum):
		name := ""
		if p.match(token.Ident) {
			name = p.previous.Value
		}
		if !p.check(token.LBrace) {
			if name == "" {
				util.Abort(p.current, "expected enum tag or '{'")
			}
			return ast.TypeSpec{Kind: types.Int, Enum: name}, nil
		}
		return ast.TypeSpec{Kind: types.Int, Enum: name}, p.parseEnumBody(tok, name)
	}
	util.Abort(tok, "expected a type specifier, got %s", tok.Type)
	return ast.TypeSpec{}, nil
}

func (p *Parser) parseEnumBody(tok token.Token, name string) *ast.Node {
	p.expect(token.LBrace, "to open enum body")
	var members []ast.EnumMember
	for !p.check(token.RBrace) {
		nameTok := p.expect(token.Ident, "in enumerator list")
		m := ast.EnumMember{Name: nameTok.Value, Tok: nameTok}
		if p.match(token.Eq) {
			m.Value = p.parseTernaryExpr()
		}
		members = append(members, m)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "to close enum body")
	return ast.NewEnumDecl(tok, name, members)
}

// parseDeclarator reads pointer stars, the name, an optional array suffix or
// parameter list, and an optional initializer.
func (p *Parser) parseDeclarator(allowInit bool) *ast.Node {
	var d ast.DeclaratorNode
	for p.match(token.Star) {
		d.Ptr++
	}
	nameTok := p.expect(token.Ident, "in declarator")
	d.Name = nameTok.Value

	switch {
	case p.match(token.LBracket):
		d.Array = true
		if !p.check(token.RBracket) {
			d.Size = p.parseTernaryExpr()
		}
		p.expect(token.RBracket, "after array size")
		if p.check(token.LBracket) {
			util.Abort(p.current, "multi-dimensional arrays are not supported")
		}
	case p.match(token.LParen):
		d.Func = true
		d.Params = p.parseParams()
	}

	if allowInit && p.match(token.Eq) {
		if d.Func {
			util.Abort(p.previous, "function '%s' is initialized like a variable", d.Name)
		}
		if p.check(token.LBrace) {
			d.Init = p.parseInitList()
		} else {
			d.Init = p.parseAssignmentExpr()
		}
	}
	if d.Array && d.Size == nil {
		if d.Init == nil {
			util.Abort(nameTok, "array size missing in '%s'", d.Name)
		}
		if d.Init.Type != ast.InitList && d.Init.Type != ast.StringConst {
			util.Abort(d.Init.Tok, "invalid initializer for array '%s'", d.Name)
		}
	}
	return ast.NewDeclarator(nameTok, d)
}

func (p *Parser) parseParams() []*ast.Node {
	var params []*ast.Node
	if p.check(token.Void) && p.peek().Type == token.RParen {
		p.advance()
	}
	for !p.check(token.RParen) {
		tok := p.current
		spec, enum := p.parseDeclSpec()
		if enum != nil {
			util.Abort(enum.Tok, "enum definition in parameter list")
		}
		ptr := 0
		for p.match(token.Star) {
			ptr++
		}
		name := ""
		if p.match(token.Ident) {
			name, tok = p.previous.Value, p.previous
		}
		if p.match(token.LBracket) {
			if !p.check(token.RBracket) {
				p.parseTernaryExpr()
			}
			p.expect(token.RBracket, "in array parameter")
			ptr++
		}
		if spec.Kind == types.Void && ptr == 0 {
			util.Abort(tok, "parameter has incomplete type 'void'")
		}
		params = append(params, ast.NewParam(tok, spec, name, ptr))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "after parameters")
	return params
}

func (p *Parser) parseInitList() *ast.Node {
	tok := p.expect(token.LBrace, "to open initializer list")
	var elems []*ast.Node
	for !p.check(token.RBrace) {
		if p.check(token.LBrace) {
			util.Abort(p.current, "nested initializer lists are not supported")
		}
		elems = append(elems, p.parseAssignmentExpr())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "to close initializer list")
	return ast.NewInitList(tok, elems)
}

// parseDeclaration parses "spec declarator, declarator, ...;" after the
// specifier has been read.
func (p *Parser) parseDeclaration(tok token.Token, spec ast.TypeSpec, enum *ast.Node) *ast.Node {
	var decls []*ast.Node
	if !p.check(token.Semi) {
		for {
			decls = append(decls, p.parseDeclarator(true))
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.Semi, "after declaration")
	return ast.NewDeclaration(tok, spec, enum, decls)
}

// Statement Parsing
func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.expect(token.LBrace, "to start a block")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace, "after block")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseParenExpr(context string) *ast.Node {
	p.expect(token.LParen, "after '"+context+"'")
	expr := p.parseExpr()
	p.expect(token.RParen, "after "+context+" condition")
	return expr
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.current.Type.IsTypeSpecifier():
		spec, enum := p.parseDeclSpec()
		return p.parseDeclaration(tok, spec, enum)
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	case p.match(token.If):
		cond := p.parseParenExpr("if")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case p.match(token.While):
		cond := p.parseParenExpr("while")
		return ast.NewWhile(tok, cond, p.parseStmt())
	case p.match(token.Do):
		if !p.cfg.IsFeatureEnabled(config.FeatDoWhile) {
			util.Abort(tok, "do-while loops are disabled (use -Fdo-while)")
		}
		body := p.parseStmt()
		p.expect(token.While, "after do body")
		cond := p.parseParenExpr("while")
		p.expect(token.Semi, "after do-while statement")
		return ast.NewDoWhile(tok, body, cond)
	case p.match(token.For):
		return p.parseFor(tok)
	case p.match(token.Switch):
		return p.parseSwitch(tok)
	case p.check(token.Case) || p.check(token.Default):
		util.Abort(tok, "'%s' label not directly within a switch body", tok.Type)
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "after return statement")
		return ast.NewReturn(tok, expr)
	case p.match(token.Break):
		p.expect(token.Semi, "after 'break'")
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		p.expect(token.Semi, "after 'continue'")
		return ast.NewContinue(tok)
	case p.match(token.Semi):
		return ast.NewExprStmt(tok, nil)
	}
	expr := p.parseExpr()
	p.expect(token.Semi, "after expression statement")
	return ast.NewExprStmt(tok, expr)
}

func (p *Parser) parseFor(tok token.Token) *ast.Node {
	p.expect(token.LParen, "after 'for'")
	var init, cond, update *ast.Node
	switch {
	case p.current.Type.IsTypeSpecifier():
		declTok := p.current
		spec, enum := p.parseDeclSpec()
		init = p.parseDeclaration(declTok, spec, enum)
	case p.match(token.Semi):
	default:
		init = ast.NewExprStmt(p.current, p.parseExpr())
		p.expect(token.Semi, "after for initializer")
	}
	if !p.check(token.Semi) {
		cond = p.parseExpr()
	}
	p.expect(token.Semi, "after for condition")
	if !p.check(token.RParen) {
		update = p.parseExpr()
	}
	p.expect(token.RParen, "after for clauses")
	return ast.NewFor(tok, init, cond, update, p.parseStmt())
}

// parseSwitch records each case and default marker by its position in the
// flat statement list of the switch body.
func (p *Parser) parseSwitch(tok token.Token) *ast.Node {
	expr := p.parseParenExpr("switch")
	if !p.check(token.LBrace) {
		util.Abort(p.current, "switch body must be a braced block")
	}
	p.advance()

	var body []*ast.Node
	var cases []ast.CaseLabel
	hasDefault := false
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		labelTok := p.current
		switch {
		case p.match(token.Case):
			value := p.parseTernaryExpr()
			p.expect(token.Colon, "after case value")
			cases = append(cases, ast.CaseLabel{Pos: len(body), Value: value, Tok: labelTok})
			body = append(body, ast.NewCase(labelTok, value))
		case p.match(token.Default):
			if hasDefault {
				util.Abort(labelTok, "multiple default labels in one switch")
			}
			hasDefault = true
			p.expect(token.Colon, "after 'default'")
			cases = append(cases, ast.CaseLabel{Pos: len(body), IsDefault: true, Tok: labelTok})
			body = append(body, ast.NewDefault(labelTok))
		default:
			body = append(body, p.parseStmt())
		}
	}
	p.expect(token.RBrace, "after switch body")
	return ast.NewSwitch(tok, expr, body, cases)
}

// Top-Level Parsing
func (p *Parser) parseExternalDecl() *ast.Node {
	tok := p.current
	spec, enum := p.parseDeclSpec()
	if p.check(token.Semi) {
		p.advance()
		if enum == nil {
			util.Abort(tok, "declaration does not declare anything")
		}
		return enum
	}

	first := p.parseDeclarator(true)
	if d := first.Data.(ast.DeclaratorNode); d.Func && p.check(token.LBrace) {
		if enum != nil {
			util.Abort(enum.Tok, "enum definition in function return type")
		}
		for _, prm := range d.Params {
			if prm.Data.(ast.ParamNode).Name == "" {
				util.Abort(prm.Tok, "parameter name omitted in definition of '%s'", d.Name)
			}
		}
		return ast.NewFuncDef(tok, spec, first, p.parseBlockStmt())
	}

	decls := []*ast.Node{first}
	for p.match(token.Comma) {
		decls = append(decls, p.parseDeclarator(true))
	}
	p.expect(token.Semi, "after top-level declaration")
	return ast.NewDeclaration(tok, spec, enum, decls)
}

func (p *Parser) Parse() *ast.Node {
	tok := p.current
	var decls []*ast.Node
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		if !p.current.Type.IsTypeSpecifier() {
			util.Abort(p.current, "expected a top-level declaration, got %s", p.current.Type)
		}
		decls = append(decls, p.parseExternalDecl())
	}
	return ast.NewTranslationUnit(tok, decls)
}
