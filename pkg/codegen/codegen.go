package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

// Generate lowers a translation unit to RV32 assembly. On failure nothing
// is returned but the first error.
func Generate(root *ast.Node, cfg *config.Config) (asm *bytes.Buffer, err error) {
	ctx := NewContext(cfg)
	defer util.Recover(&err)
	ctx.codegenTranslationUnit(root)
	return ctx.out, nil
}

func (ctx *Context) emit(format string, args ...interface{}) {
	fmt.Fprintf(ctx.out, format, args...)
	ctx.out.WriteByte('\n')
}

func (ctx *Context) label(l string) { ctx.emit("%s:", l) }

// check aborts the pass if err is set.
func (ctx *Context) check(tok token.Token, err error) {
	if err != nil {
		panic(util.Wrap(tok, err))
	}
}

func reg(id int) string {
	name, err := RegName(id)
	if err != nil {
		panic(err)
	}
	return name
}

// assign takes a temporary able to hold a value of t.
func (ctx *Context) assign(tok token.Token, t types.Type) int {
	k := t.Value()
	if k == types.Void {
		k = types.Int
	}
	id, err := ctx.regs.Assign(k)
	ctx.check(tok, err)
	return id
}

func (ctx *Context) free(tok token.Token, id int) { ctx.check(tok, ctx.regs.Free(id)) }

func (ctx *Context) loadOp(tok token.Token, t types.Type) string {
	op, err := types.LoadOp(t.Value())
	ctx.check(tok, err)
	return op
}

func (ctx *Context) storeOp(tok token.Token, t types.Type) string {
	op, err := types.StoreOp(t.Value())
	ctx.check(tok, err)
	return op
}

func (ctx *Context) moveOp(tok token.Token, t types.Type) string {
	op, err := types.MoveOp(t.Value())
	ctx.check(tok, err)
	return op
}

func (ctx *Context) arithOp(tok token.Token, t types.Type, base string) string {
	op, err := types.ArithOp(t.Value(), base)
	ctx.check(tok, err)
	return op
}

func (ctx *Context) enterScope() { ctx.fn.EnterScope() }

func (ctx *Context) exitScope(tok token.Token) { ctx.check(tok, ctx.fn.ExitScope()) }

func (ctx *Context) codegenTranslationUnit(root *ast.Node) {
	if root == nil || root.Type != ast.TranslationUnit {
		util.Abort(token.Token{}, "codegen: expected a translation unit")
	}
	for _, decl := range root.Data.(ast.TranslationUnitNode).Decls {
		switch decl.Type {
		case ast.FuncDef:
			ctx.codegenFuncDef(decl)
		case ast.Declaration:
			ctx.codegenGlobalDecl(decl)
		case ast.EnumDecl:
			ctx.codegenEnumDecl(decl)
		default:
			util.Abort(decl.Tok, "unexpected %s at file scope", decl.Type)
		}
	}
	ctx.emitLiteralPool()
}

// emitLiteralPool flushes the float, double and string literals collected
// while lowering.
func (ctx *Context) emitLiteralPool() {
	if len(ctx.literals) == 0 {
		return
	}
	ctx.emit(".section .rodata")
	for i, lc := range ctx.literals {
		switch lc.Kind {
		case types.Float:
			ctx.emit(".align 2")
			ctx.label(lc.Label(i))
			for _, w := range (Const{Kind: types.Float, Float: lc.Value}).Bits() {
				ctx.emit(".word %d", w)
			}
		case types.Double:
			ctx.emit(".align 3")
			ctx.label(lc.Label(i))
			for _, w := range (Const{Kind: types.Double, Float: lc.Value}).Bits() {
				ctx.emit(".word %d", w)
			}
		default:
			ctx.label(lc.Label(i))
			ctx.emit(".string %s", asmQuote(lc.Text))
		}
	}
}

// asmQuote renders s as a GNU as string literal.
func asmQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, "\\%03o", c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// codegenStmt lowers one statement and reports whether control can fall
// off its end.
func (ctx *Context) codegenStmt(node *ast.Node) (terminates bool) {
	if node == nil {
		return false
	}
	switch node.Type {
	case ast.Block:
		ctx.enterScope()
		terminates = ctx.codegenStmtList(node.Data.(ast.BlockNode).Stmts)
		ctx.exitScope(node.Tok)
		return terminates
	case ast.Declaration:
		ctx.codegenLocalDecl(node)
		return false
	case ast.EnumDecl:
		ctx.codegenEnumDecl(node)
		return false
	case ast.ExprStmt:
		if e := node.Data.(ast.ExprStmtNode).Expr; e != nil {
			ctx.codegenDiscard(e)
		}
		return false
	case ast.If:
		return ctx.codegenIf(node)
	case ast.While:
		return ctx.codegenWhile(node)
	case ast.DoWhile:
		return ctx.codegenDoWhile(node)
	case ast.For:
		return ctx.codegenFor(node)
	case ast.Switch:
		return ctx.codegenSwitch(node)
	case ast.Break:
		l, err := ctx.BreakLabel()
		ctx.check(node.Tok, err)
		ctx.emit("j %s", l)
		return true
	case ast.Continue:
		l, err := ctx.ContinueLabel()
		ctx.check(node.Tok, err)
		ctx.emit("j %s", l)
		return true
	case ast.Return:
		ctx.codegenReturn(node)
		return true
	case ast.Case, ast.Default:
		util.Abort(node.Tok, "'%s' label not within a switch statement", node.Type)
	}
	util.Abort(node.Tok, "unexpected %s in statement position", node.Type)
	return false
}

// codegenStmtList lowers a statement sequence, warning once about code
// after an unconditional jump.
func (ctx *Context) codegenStmtList(stmts []*ast.Node) bool {
	terminates := false
	warned := false
	for _, stmt := range stmts {
		if terminates && !warned {
			util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "unreachable code")
			warned = true
		}
		if ctx.codegenStmt(stmt) {
			terminates = true
		}
	}
	return terminates
}

// codegenDiscard evaluates an expression for its side effects only.
func (ctx *Context) codegenDiscard(n *ast.Node) {
	t := ctx.typeOf(n)
	if t.Kind == types.Void && t.Ptr == 0 {
		if n.Type != ast.Call {
			util.Abort(n.Tok, "void value not ignored as it ought to be")
		}
		ctx.codegenCall(n, -1, t)
		return
	}
	r := ctx.assign(n.Tok, t)
	ctx.codegenExprAs(n, r, t)
	ctx.free(n.Tok, r)
}
