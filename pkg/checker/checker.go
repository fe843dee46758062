// Package checker runs the semantic checks that do not depend on register or
// frame layout: name resolution for unused locals, loop and switch nesting,
// parameter lists and a handful of suspicious constructs. It runs between the
// parser and code generation.
package checker

import (
	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

type symKind int

const (
	symVar symKind = iota
	symArray
	symParam
	symFunc
	symEnumerator
)

type Symbol struct {
	Name string
	Kind symKind
	Tok  token.Token
	Used bool
	Next *Symbol
}

type Scope struct {
	Symbols *Symbol
	Parent  *Scope
}

type Checker struct {
	currentScope *Scope
	globalScope  *Scope
	cfg          *config.Config
	fnRet        types.Type
	loops        int
	switches     int
}

func NewChecker(cfg *config.Config) *Checker {
	globalScope := newScope(nil)
	return &Checker{currentScope: globalScope, globalScope: globalScope, cfg: cfg}
}

// Check walks the translation unit, printing warnings as it goes. The first
// structural error stops the walk and is returned.
func Check(root *ast.Node, cfg *config.Config) error {
	return NewChecker(cfg).Check(root)
}

func (c *Checker) Check(root *ast.Node) (err error) {
	defer util.Recover(&err)
	if root == nil || root.Type != ast.TranslationUnit {
		return nil
	}
	c.collectGlobals(root)
	for _, decl := range root.Data.(ast.TranslationUnitNode).Decls {
		if decl.Type == ast.FuncDef {
			c.checkFuncDef(decl)
			continue
		}
		if decl.Type == ast.Declaration {
			for _, dn := range decl.Data.(ast.DeclarationNode).Decls {
				if d := dn.Data.(ast.DeclaratorNode); d.Func {
					c.checkParams(d)
				}
			}
		}
	}
	return nil
}

func newScope(parent *Scope) *Scope { return &Scope{Parent: parent} }

func (c *Checker) enterScope() { c.currentScope = newScope(c.currentScope) }

// exitScope reports the locals of the closing scope that were never named
// again after their declaration.
func (c *Checker) exitScope() {
	for sym := c.currentScope.Symbols; sym != nil; sym = sym.Next {
		if sym.Used {
			continue
		}
		switch sym.Kind {
		case symVar, symArray:
			util.Warn(c.cfg, config.WarnUnusedVariable, sym.Tok, "unused variable '%s'", sym.Name)
		case symParam:
			util.Warn(c.cfg, config.WarnUnusedVariable, sym.Tok, "unused parameter '%s'", sym.Name)
		}
	}
	if c.currentScope.Parent != nil {
		c.currentScope = c.currentScope.Parent
	}
}

func (c *Checker) addSymbol(name string, kind symKind, tok token.Token) *Symbol {
	sym := &Symbol{Name: name, Kind: kind, Tok: tok, Next: c.currentScope.Symbols}
	c.currentScope.Symbols = sym
	return sym
}

func (c *Checker) findSymbol(name string) *Symbol {
	for s := c.currentScope; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (c *Checker) isSymbolLocal(name string) bool {
	for s := c.currentScope; s != nil && s != c.globalScope; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym.Kind == symVar || sym.Kind == symArray || sym.Kind == symParam
			}
		}
	}
	return false
}

// collectGlobals registers every file-scope name up front so that uses
// before the definition resolve to the global and not to nothing.
func (c *Checker) collectGlobals(root *ast.Node) {
	for _, decl := range root.Data.(ast.TranslationUnitNode).Decls {
		switch d := decl.Data.(type) {
		case ast.FuncDefNode:
			name, _ := ast.GetID(d.Decl)
			c.globalSymbol(name, symFunc, decl.Tok)
		case ast.EnumDeclNode:
			c.addEnumerators(d)
		case ast.DeclarationNode:
			if d.Enum != nil {
				c.addEnumerators(d.Enum.Data.(ast.EnumDeclNode))
			}
			for _, dn := range d.Decls {
				dd := dn.Data.(ast.DeclaratorNode)
				kind := symVar
				if dd.Func {
					kind = symFunc
				}
				c.globalSymbol(dd.Name, kind, dn.Tok)
			}
		}
	}
}

func (c *Checker) globalSymbol(name string, kind symKind, tok token.Token) {
	for sym := c.globalScope.Symbols; sym != nil; sym = sym.Next {
		if sym.Name == name {
			return
		}
	}
	sym := &Symbol{Name: name, Kind: kind, Tok: tok, Used: true, Next: c.globalScope.Symbols}
	c.globalScope.Symbols = sym
}

func (c *Checker) addEnumerators(d ast.EnumDeclNode) {
	for _, m := range d.Members {
		if m.Value != nil {
			c.checkExpr(m.Value)
		}
		c.globalSymbol(m.Name, symEnumerator, m.Tok)
	}
}

func (c *Checker) checkParams(d ast.DeclaratorNode) {
	seen := make(map[string]bool)
	for _, prm := range d.Params {
		pd := prm.Data.(ast.ParamNode)
		if pd.Name == "" {
			continue
		}
		if seen[pd.Name] {
			util.Abort(prm.Tok, "redefinition of parameter '%s'", pd.Name)
		}
		seen[pd.Name] = true
	}
}

func (c *Checker) checkFuncDef(node *ast.Node) {
	fd := node.Data.(ast.FuncDefNode)
	d := fd.Decl.Data.(ast.DeclaratorNode)
	c.checkParams(d)

	c.fnRet = types.Type{Kind: fd.Spec.Kind, Ptr: d.Ptr}

	if d.Name == "main" && c.fnRet != types.IntType {
		util.Warn(c.cfg, config.WarnExtra, fd.Decl.Tok, "return type of 'main' is not 'int'")
	}

	c.enterScope()
	for _, prm := range d.Params {
		pd := prm.Data.(ast.ParamNode)
		if pd.Name != "" {
			c.addSymbol(pd.Name, symParam, prm.Tok)
		}
	}
	c.checkBlock(fd.Body, false)
	c.exitScope()
}

// checkBlock checks a compound statement. Function bodies share the scope
// opened for the parameters.
func (c *Checker) checkBlock(node *ast.Node, scoped bool) {
	if scoped {
		c.enterScope()
		defer c.exitScope()
	}
	seenCode := false
	for _, stmt := range node.Data.(ast.BlockNode).Stmts {
		if stmt.Type == ast.Declaration {
			if seenCode {
				util.Warn(c.cfg, config.WarnPedantic, stmt.Tok, "ISO C90 forbids mixed declarations and code")
			}
		} else {
			seenCode = true
		}
		c.checkStmt(stmt)
	}
}

func (c *Checker) checkStmt(node *ast.Node) {
	if node == nil {
		return
	}
	switch d := node.Data.(type) {
	case ast.BlockNode:
		c.checkBlock(node, true)
	case ast.DeclarationNode:
		c.checkLocalDecl(d)
	case ast.EnumDeclNode:
		c.addEnumerators(d)
	case ast.ExprStmtNode:
		if d.Expr != nil {
			c.checkExpr(d.Expr)
		}
	case ast.IfNode:
		c.checkCondition(d.Cond)
		if isEmpty(d.Then) && d.Else == nil {
			util.Warn(c.cfg, config.WarnExtra, d.Then.Tok, "suggest braces around empty body in an 'if' statement")
		}
		c.checkStmt(d.Then)
		c.checkStmt(d.Else)
	case ast.WhileNode:
		c.checkCondition(d.Cond)
		c.loop(d.Body)
	case ast.DoWhileNode:
		c.loop(d.Body)
		c.checkCondition(d.Cond)
	case ast.ForNode:
		c.enterScope()
		if d.Init != nil {
			c.checkStmt(d.Init)
		}
		if d.Cond != nil {
			c.checkCondition(d.Cond)
		}
		if d.Update != nil {
			c.checkExpr(d.Update)
		}
		c.loop(d.Body)
		c.exitScope()
	case ast.SwitchNode:
		c.checkExpr(d.Expr)
		if !hasCase(d.Cases) {
			util.Warn(c.cfg, config.WarnExtra, node.Tok, "switch statement has no case labels")
		}
		c.switches++
		c.enterScope()
		for _, stmt := range d.Body {
			c.checkStmt(stmt)
		}
		c.exitScope()
		c.switches--
	case ast.CaseNode:
		c.checkExpr(d.Value)
	case ast.DefaultNode:
	case ast.BreakNode:
		if c.loops == 0 && c.switches == 0 {
			util.Abort(node.Tok, "break statement not within loop or switch")
		}
	case ast.ContinueNode:
		if c.loops == 0 {
			util.Abort(node.Tok, "continue statement not within a loop")
		}
	case ast.ReturnNode:
		c.checkReturn(node, d)
	default:
		util.Abort(node.Tok, "unexpected %s in statement position", node.Type)
	}
}

func (c *Checker) loop(body *ast.Node) {
	c.loops++
	c.checkStmt(body)
	c.loops--
}

func hasCase(cases []ast.CaseLabel) bool {
	for _, cl := range cases {
		if !cl.IsDefault {
			return true
		}
	}
	return false
}

func isEmpty(n *ast.Node) bool {
	if n == nil || n.Type != ast.ExprStmt {
		return false
	}
	return n.Data.(ast.ExprStmtNode).Expr == nil
}

func (c *Checker) checkLocalDecl(d ast.DeclarationNode) {
	if d.Enum != nil {
		c.addEnumerators(d.Enum.Data.(ast.EnumDeclNode))
	}
	for _, dn := range d.Decls {
		dd := dn.Data.(ast.DeclaratorNode)
		if dd.Func {
			c.checkParams(dd)
			c.addSymbol(dd.Name, symFunc, dn.Tok).Used = true
			continue
		}
		if dd.Size != nil {
			c.checkExpr(dd.Size)
		}
		if dd.Init != nil {
			c.checkExpr(dd.Init)
		}
		kind := symVar
		if dd.Array {
			kind = symArray
		}
		c.addSymbol(dd.Name, kind, dn.Tok)
	}
}

func (c *Checker) checkReturn(node *ast.Node, d ast.ReturnNode) {
	if d.Expr == nil {
		return
	}
	c.checkExpr(d.Expr)
	if !c.fnRet.IsPointer() {
		return
	}
	if name, ok := c.localAddress(d.Expr); ok {
		util.Warn(c.cfg, config.WarnExtra, d.Expr.Tok, "function returns address of local variable '%s'", name)
	}
}

// localAddress reports the local whose storage an expression hands out:
// &x, &x[i] or the name of a local array.
func (c *Checker) localAddress(n *ast.Node) (string, bool) {
	var name string
	switch d := n.Data.(type) {
	case ast.AddrOfNode:
		if d.Expr.Type != ast.Ident && d.Expr.Type != ast.Index {
			return "", false
		}
		name, _ = ast.GetID(d.Expr)
		if d.Expr.Type == ast.Index {
			if sym := c.findSymbol(name); sym == nil || sym.Kind != symArray {
				return "", false
			}
		}
	case ast.IdentNode:
		if sym := c.findSymbol(d.Name); sym == nil || sym.Kind != symArray {
			return "", false
		}
		name = d.Name
	default:
		return "", false
	}
	return name, c.isSymbolLocal(name)
}

func (c *Checker) checkCondition(n *ast.Node) {
	if n.Type == ast.Assign && n.Data.(ast.AssignNode).Op == token.Eq {
		util.Warn(c.cfg, config.WarnExtra, n.Tok, "suggest parentheses around assignment used as truth value")
	}
	c.checkExpr(n)
}

func (c *Checker) use(name string) *Symbol {
	sym := c.findSymbol(name)
	if sym != nil {
		sym.Used = true
	}
	return sym
}

func (c *Checker) checkExpr(n *ast.Node) {
	if n == nil {
		return
	}
	switch d := n.Data.(type) {
	case ast.IdentNode:
		if sym := c.use(d.Name); sym != nil && sym.Kind == symFunc {
			util.Abort(n.Tok, "function '%s' used as a value", d.Name)
		}
	case ast.IntConstNode, ast.FloatConstNode, ast.CharConstNode, ast.StringConstNode:
	case ast.BinaryNode:
		c.checkExpr(d.Left)
		c.checkExpr(d.Right)
	case ast.RelationalNode:
		c.checkExpr(d.Left)
		c.checkExpr(d.Right)
	case ast.LogicalNode:
		c.checkExpr(d.Left)
		c.checkExpr(d.Right)
	case ast.UnaryNode:
		c.checkExpr(d.Expr)
	case ast.IncrementNode:
		c.checkExpr(d.Expr)
	case ast.AssignNode:
		c.checkExpr(d.Lhs)
		c.checkExpr(d.Rhs)
		if d.Op == token.Eq && d.Lhs.Type == ast.Ident && d.Rhs.Type == ast.Ident &&
			d.Lhs.Data.(ast.IdentNode).Name == d.Rhs.Data.(ast.IdentNode).Name {
			util.Warn(c.cfg, config.WarnExtra, n.Tok, "explicitly assigning value of variable '%s' to itself", d.Lhs.Data.(ast.IdentNode).Name)
		}
	case ast.TernaryNode:
		c.checkExpr(d.Cond)
		c.checkExpr(d.Then)
		c.checkExpr(d.Else)
	case ast.CallNode:
		if sym := c.use(d.Name); sym != nil && sym.Kind != symFunc {
			util.Abort(n.Tok, "called object '%s' is not a function", d.Name)
		}
		for _, arg := range d.Args {
			c.checkExpr(arg)
		}
	case ast.IndexNode:
		c.checkExpr(d.Array)
		c.checkExpr(d.Index)
	case ast.AddrOfNode:
		c.checkExpr(d.Expr)
	case ast.DerefNode:
		c.checkExpr(d.Expr)
	case ast.SizeofNode:
		c.checkExpr(d.Expr)
	case ast.InitListNode:
		for _, e := range d.Elems {
			c.checkExpr(e)
		}
	default:
		util.Abort(n.Tok, "unexpected %s in expression", n.Type)
	}
}
