package codegen

import (
	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

var compoundBase = map[token.Type]token.Type{
	token.PlusEq: token.Plus, token.MinusEq: token.Minus, token.StarEq: token.Star,
	token.SlashEq: token.Slash, token.RemEq: token.Rem, token.AndEq: token.And,
	token.OrEq: token.Or, token.XorEq: token.Xor, token.ShlEq: token.Shl, token.ShrEq: token.Shr,
}

type lvalueKind int

const (
	lvFrame lvalueKind = iota
	lvGlobal
	lvAddr
)

// lvalue is a resolved storage location. For lvAddr the address sits in
// register addr until release.
type lvalue struct {
	kind   lvalueKind
	offset int
	name   string
	addr   int
}

// lvalueOf resolves n once so that read-modify-write sequences evaluate
// subscripts and dereferences a single time.
func (ctx *Context) lvalueOf(n *ast.Node) lvalue {
	if d, ok := n.Data.(ast.IdentNode); ok {
		s := ctx.lookup(n.Tok, d.Name)
		switch {
		case s.kind == symEnum:
			util.Abort(n.Tok, "lvalue required: '%s' is an enumerator", d.Name)
		case s.array:
			util.Abort(n.Tok, "assignment to expression with array type")
		case s.kind == symLocal:
			return lvalue{kind: lvFrame, offset: s.offset}
		}
		return lvalue{kind: lvGlobal, name: d.Name}
	}
	if !ast.IsLValue(n) {
		util.Abort(n.Tok, "lvalue required as left operand of assignment")
	}
	addr := ctx.assign(n.Tok, types.IntType)
	ctx.codegenAddress(n, addr)
	return lvalue{kind: lvAddr, addr: addr}
}

func (ctx *Context) release(tok token.Token, lv lvalue) {
	if lv.kind == lvAddr {
		ctx.free(tok, lv.addr)
	}
}

func (ctx *Context) accessLvalue(tok token.Token, lv lvalue, op string, r int) {
	switch lv.kind {
	case lvFrame:
		ctx.frameOp(tok, op, r, lv.offset)
	case lvGlobal:
		tmp := ctx.assign(tok, types.IntType)
		ctx.emit("lui %s,%%hi(%s)", reg(tmp), lv.name)
		ctx.emit("%s %s,%%lo(%s)(%s)", op, reg(r), lv.name, reg(tmp))
		ctx.free(tok, tmp)
	case lvAddr:
		ctx.emit("%s %s,0(%s)", op, reg(r), reg(lv.addr))
	}
}

func (ctx *Context) loadLvalue(tok token.Token, lv lvalue, r int, t types.Type) {
	ctx.accessLvalue(tok, lv, ctx.loadOp(tok, t), r)
}

// storeLvalue writes r, first narrowing chars so r also holds the value the
// object ends up with.
func (ctx *Context) storeLvalue(tok token.Token, lv lvalue, r int, t types.Type) {
	if t.Value() == types.Char {
		ctx.emit("andi %s,%s,0xff", reg(r), reg(r))
	}
	ctx.accessLvalue(tok, lv, ctx.storeOp(tok, t), r)
}

func (ctx *Context) codegenAssign(n *ast.Node, d ast.AssignNode, dest int, t types.Type) {
	lv := ctx.lvalueOf(d.Lhs)
	defer ctx.release(n.Tok, lv)

	if d.Op == token.Eq {
		ctx.codegenExprAs(d.Rhs, dest, t)
		ctx.storeLvalue(n.Tok, lv, dest, t)
		return
	}

	op, ok := compoundBase[d.Op]
	if !ok {
		util.Abort(n.Tok, "invalid assignment operator %s", d.Op)
	}
	if t.IsFloat() {
		switch op {
		case token.Rem, token.And, token.Or, token.Xor, token.Shl, token.Shr:
			util.Abort(n.Tok, "invalid operands to binary %s (have '%s')", op, t)
		}
	}

	ctx.loadLvalue(n.Tok, lv, dest, t)
	if t.IsPointer() {
		if op != token.Plus && op != token.Minus {
			util.Abort(n.Tok, "invalid operands to binary %s (have '%s')", op, t)
		}
		rt := ctx.typeOf(d.Rhs)
		if rt.IsFloat() || rt.IsPointer() {
			util.Abort(n.Tok, "invalid operands to binary %s (have '%s' and '%s')", op, t, rt)
		}
		src := ctx.assign(n.Tok, rt)
		ctx.codegenExprAs(d.Rhs, src, rt)
		ctx.scale(n.Tok, src, t.ElemSize())
		ctx.emitArith(n.Tok, op, types.IntType, dest, dest, src)
		ctx.free(n.Tok, src)
	} else {
		ot := promote(t)
		if rt := ctx.typeOf(d.Rhs); ot == types.IntType && rt == types.Scalar(types.Unsigned) {
			ot = rt
		}
		src := ctx.assign(n.Tok, ot)
		ctx.codegenExprAs(d.Rhs, src, ot)
		ctx.emitArith(n.Tok, op, ot, dest, dest, src)
		ctx.free(n.Tok, src)
	}
	ctx.storeLvalue(n.Tok, lv, dest, t)
}

// codegenIncrement lowers ++ and --. Postfix forms leave the old value in
// dest.
func (ctx *Context) codegenIncrement(n *ast.Node, d ast.IncrementNode, dest int, t types.Type) {
	lv := ctx.lvalueOf(d.Expr)
	defer ctx.release(n.Tok, lv)
	ctx.loadLvalue(n.Tok, lv, dest, t)

	updated := dest
	if !d.Prefix {
		updated = ctx.assign(n.Tok, t)
		defer ctx.free(n.Tok, updated)
	}

	if t.IsFloat() {
		one := ctx.assign(n.Tok, t)
		ctx.loadPooled(n.Tok, one, ctx.AddFloatLiteral(1, t.Kind), t)
		base := "add"
		if d.Op == token.Dec {
			base = "sub"
		}
		ctx.emit("%s %s,%s,%s", ctx.arithOp(n.Tok, t, base), reg(updated), reg(dest), reg(one))
		ctx.free(n.Tok, one)
	} else {
		step := 1
		if t.IsPointer() {
			step = t.ElemSize()
		}
		if d.Op == token.Dec {
			step = -step
		}
		ctx.emit("addi %s,%s,%d", reg(updated), reg(dest), step)
	}
	ctx.storeLvalue(n.Tok, lv, updated, t)
}
