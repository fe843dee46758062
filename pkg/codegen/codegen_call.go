package codegen

import (
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

// spill is a live register parked in the frame across a call.
type spill struct {
	reg    int
	offset int
	typ    types.Type
}

// slot reserves a reserved-name frame slot keyed by the current call depth,
// so nested calls never share one.
func (ctx *Context) slot(tok token.Token, name string, t types.Type) int {
	if ctx.callDepth > 0 {
		name = fmt.Sprintf("%s@%d", name, ctx.callDepth)
	}
	v, err := ctx.fn.AddVariable(name, t)
	ctx.check(tok, err)
	return v.Offset
}

// spillRegisters saves every live register except keep and releases it.
func (ctx *Context) spillRegisters(tok token.Token, keep int) []spill {
	var saved []spill
	for _, id := range ctx.regs.Used() {
		if id == keep {
			continue
		}
		t := types.IntType
		if IsFloatReg(id) {
			t = types.DoubleType
		}
		s := spill{reg: id, offset: ctx.slot(tok, "#"+reg(id), t), typ: t}
		ctx.frameOp(tok, ctx.storeOp(tok, t), id, s.offset)
		ctx.free(tok, id)
		saved = append(saved, s)
	}
	return saved
}

func (ctx *Context) restoreRegisters(tok token.Token, saved []spill) {
	for _, s := range saved {
		ctx.check(tok, ctx.regs.Use(reg(s.reg)))
		ctx.frameOp(tok, ctx.loadOp(tok, s.typ), s.reg, s.offset)
	}
}

// frameWord emits "op r,off(s0)" for a register given by name.
func (ctx *Context) frameWord(tok token.Token, op, r string, off int) {
	id, err := RegIndex(r)
	ctx.check(tok, err)
	ctx.frameOp(tok, op, id, off)
}

// codegenCall lowers a call. Arguments are evaluated left to right into
// per-call slots and only loaded into argument registers once all of them
// are known, so an argument that itself contains a call cannot clobber
// registers already set up. A dest of -1 discards the result.
func (ctx *Context) codegenCall(n *ast.Node, dest int, t types.Type) {
	d := n.Data.(ast.CallNode)
	fi := ctx.callee(n)
	if len(d.Args) != len(fi.Params) {
		what := "few"
		if len(d.Args) > len(fi.Params) {
			what = "many"
		}
		util.Abort(n.Tok, "too %s arguments to function '%s'", what, d.Name)
	}

	saved := ctx.spillRegisters(n.Tok, dest)

	params := fi.ParamTypes()
	staged := make([]int, len(d.Args))
	for i, arg := range d.Args {
		pt := params[i]
		tmp := ctx.assign(arg.Tok, pt)
		ctx.callDepth++
		ctx.codegenExprAs(arg, tmp, pt)
		ctx.callDepth--
		staged[i] = ctx.slot(arg.Tok, fmt.Sprintf("#arg%d:%s", i, pt.Value()), pt)
		ctx.frameOp(arg.Tok, ctx.storeOp(arg.Tok, pt), tmp, staged[i])
		ctx.free(arg.Tok, tmp)
	}

	locs, stack := ParamLocations(params)
	ctx.fn.ReserveOutgoing(stack)

	// Stack arguments go first: copying them needs scratch registers that
	// may coincide with argument registers.
	for i, loc := range locs {
		pt, off := params[i], staged[i]
		switch {
		case loc.Class == Split:
			ctx.copyToOutgoing(n.Tok, off+types.WordSize, 0, "lw")
		case loc.Class != InMemory:
		case pt.IsFloat() && pt.Kind == types.Double:
			ctx.copyToOutgoing(n.Tok, off, loc.Offset, "lw")
			ctx.copyToOutgoing(n.Tok, off+types.WordSize, loc.Offset+types.WordSize, "lw")
		case pt.IsFloat():
			ctx.copyToOutgoing(n.Tok, off, loc.Offset, "lw")
		default:
			ctx.copyToOutgoing(n.Tok, off, loc.Offset, ctx.loadOp(n.Tok, pt))
		}
	}

	var pinned []int
	load := func(op, r string, off int) {
		ctx.frameWord(n.Tok, op, r, off)
		if id, _ := RegIndex(r); id >= firstPoolReg && !ctx.regs.IsUsed(id) {
			ctx.check(n.Tok, ctx.regs.Use(r))
			pinned = append(pinned, id)
		}
	}
	for i, loc := range locs {
		pt, off := params[i], staged[i]
		switch loc.Class {
		case InFloatReg:
			load(ctx.loadOp(n.Tok, pt), fmt.Sprintf("fa%d", loc.Reg), off)
		case InIntReg:
			if pt.IsFloat() {
				// Floating values in integer registers travel as raw words.
				for w := 0; w < loc.Regs; w++ {
					load("lw", fmt.Sprintf("a%d", loc.Reg+w), off+w*types.WordSize)
				}
				continue
			}
			load(ctx.loadOp(n.Tok, pt), fmt.Sprintf("a%d", loc.Reg), off)
		case Split:
			load("lw", "a7", off)
		}
	}

	ctx.emit("call %s", d.Name)
	for _, id := range pinned {
		ctx.free(n.Tok, id)
	}

	if dest >= 0 && !isVoid(fi.Ret) {
		if IsFloatReg(dest) {
			ctx.emit("%s %s,fa0", ctx.moveOp(n.Tok, t), reg(dest))
		} else {
			ctx.emit("mv %s,a0", reg(dest))
		}
	}
	ctx.restoreRegisters(n.Tok, saved)
}

// copyToOutgoing moves one word from a frame slot to the outgoing argument
// area at sp.
func (ctx *Context) copyToOutgoing(tok token.Token, from, to int, load string) {
	tmp := ctx.assign(tok, types.IntType)
	ctx.frameOp(tok, load, tmp, from)
	ctx.emit("sw %s,%d(sp)", reg(tmp), to)
	ctx.free(tok, tmp)
}
