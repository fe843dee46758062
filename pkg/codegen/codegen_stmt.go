package codegen

import (
	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

// branchIfFalse evaluates cond and jumps to target when it is zero.
func (ctx *Context) branchIfFalse(cond *ast.Node, target string) {
	r := ctx.assign(cond.Tok, types.IntType)
	ctx.codegenCond(cond, r)
	ctx.emit("beqz %s,%s", reg(r), target)
	ctx.free(cond.Tok, r)
}

func (ctx *Context) codegenIf(node *ast.Node) bool {
	d := node.Data.(ast.IfNode)
	elseLabel := ctx.NewLabel("if_else")
	ctx.branchIfFalse(d.Cond, elseLabel)

	thenTerm := ctx.codegenStmt(d.Then)
	if d.Else == nil {
		ctx.label(elseLabel)
		return false
	}
	end := ctx.NewLabel("if_end")
	ctx.emit("j %s", end)
	ctx.label(elseLabel)
	elseTerm := ctx.codegenStmt(d.Else)
	ctx.label(end)
	return thenTerm && elseTerm
}

func (ctx *Context) codegenWhile(node *ast.Node) bool {
	d := node.Data.(ast.WhileNode)
	start, end := ctx.NewLabel("while_start"), ctx.NewLabel("while_end")
	ctx.PushLoop(LoopContext{Kind: LoopWhile, Start: start, End: end, Update: start})
	defer ctx.PopLoop()

	ctx.label(start)
	ctx.branchIfFalse(d.Cond, end)
	ctx.codegenStmt(d.Body)
	ctx.emit("j %s", start)
	ctx.label(end)
	return false
}

func (ctx *Context) codegenDoWhile(node *ast.Node) bool {
	d := node.Data.(ast.DoWhileNode)
	start, cond, end := ctx.NewLabel("do_start"), ctx.NewLabel("do_cond"), ctx.NewLabel("do_end")
	ctx.PushLoop(LoopContext{Kind: LoopDo, Start: start, End: end, Update: cond})
	defer ctx.PopLoop()

	ctx.label(start)
	ctx.codegenStmt(d.Body)
	ctx.label(cond)
	r := ctx.assign(d.Cond.Tok, types.IntType)
	ctx.codegenCond(d.Cond, r)
	ctx.emit("bnez %s,%s", reg(r), start)
	ctx.free(d.Cond.Tok, r)
	ctx.label(end)
	return false
}

// codegenFor gives the loop its own scope so a declaration in the init
// clause is not visible after the loop.
func (ctx *Context) codegenFor(node *ast.Node) bool {
	d := node.Data.(ast.ForNode)
	start, update, end := ctx.NewLabel("for_start"), ctx.NewLabel("for_update"), ctx.NewLabel("for_end")

	ctx.enterScope()
	defer ctx.exitScope(node.Tok)
	if d.Init != nil {
		ctx.codegenStmt(d.Init)
	}

	ctx.PushLoop(LoopContext{Kind: LoopFor, Start: start, End: end, Update: update})
	defer ctx.PopLoop()

	ctx.label(start)
	if d.Cond != nil {
		ctx.branchIfFalse(d.Cond, end)
	}
	ctx.codegenStmt(d.Body)
	ctx.label(update)
	if d.Update != nil {
		ctx.codegenDiscard(d.Update)
	}
	ctx.emit("j %s", start)
	ctx.label(end)
	return false
}

// codegenSwitch compares the controlling value against every case in
// source order, then lays the body out once with a label at each case
// position so control falls through between cases.
func (ctx *Context) codegenSwitch(node *ast.Node) bool {
	d := node.Data.(ast.SwitchNode)
	et := ctx.typeOf(d.Expr)
	if et.IsFloat() || et.IsPointer() {
		util.Abort(d.Expr.Tok, "switch quantity not an integer")
	}

	end := ctx.NewLabel("switch_end")
	labels := make([]string, len(d.Cases))
	seen := make(map[int64]bool)
	defaultLabel := end

	val := ctx.assign(d.Expr.Tok, et)
	ctx.codegenExprAs(d.Expr, val, et)
	cmp := ctx.assign(node.Tok, types.IntType)
	for i, c := range d.Cases {
		labels[i] = ctx.NewLabel("switch_case")
		if c.IsDefault {
			defaultLabel = labels[i]
			continue
		}
		v, err := ctx.evalConst(c.Value, et.Kind)
		if err != nil {
			util.Abort(c.Tok, "case label does not reduce to an integer constant")
		}
		if seen[v.Int] {
			util.Abort(c.Tok, "duplicate case value %d", v.Int)
		}
		seen[v.Int] = true
		ctx.emit("li %s,%d", reg(cmp), int32(v.Int))
		ctx.emit("beq %s,%s,%s", reg(val), reg(cmp), labels[i])
	}
	ctx.free(node.Tok, cmp)
	ctx.free(d.Expr.Tok, val)
	ctx.emit("j %s", defaultLabel)

	ctx.PushLoop(LoopContext{Kind: LoopSwitch, End: end})
	defer ctx.PopLoop()

	ctx.enterScope()
	next := 0
	for pos := 0; pos <= len(d.Body); pos++ {
		for next < len(d.Cases) && d.Cases[next].Pos == pos {
			ctx.label(labels[next])
			next++
		}
		if pos < len(d.Body) && d.Body[pos].Type != ast.Case && d.Body[pos].Type != ast.Default {
			ctx.codegenStmt(d.Body[pos])
		}
	}
	ctx.exitScope(node.Tok)
	ctx.label(end)
	return false
}

// codegenReturn moves the value into a0 or fa0 and jumps to the shared
// epilogue.
func (ctx *Context) codegenReturn(node *ast.Node) {
	d := node.Data.(ast.ReturnNode)
	ret := ctx.fn.Ret
	switch {
	case d.Expr == nil && !isVoid(ret):
		util.Warn(ctx.cfg, config.WarnMissingReturn, node.Tok, "'return' with no value, in function returning non-void")
	case d.Expr != nil && isVoid(ret):
		util.Abort(node.Tok, "'return' with a value, in function returning void")
	case d.Expr != nil:
		r := ctx.assign(node.Tok, ret)
		ctx.codegenExprAs(d.Expr, r, ret)
		if ret.IsFloat() {
			ctx.emit("%s fa0,%s", ctx.moveOp(node.Tok, ret), reg(r))
		} else {
			if ret.Value() == types.Char {
				ctx.emit("andi %s,%s,0xff", reg(r), reg(r))
			}
			ctx.emit("mv a0,%s", reg(r))
		}
		ctx.free(node.Tok, r)
	}
	ctx.emit("j %s", ctx.fn.EndLabel())
}
