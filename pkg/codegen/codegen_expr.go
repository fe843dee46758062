package codegen

import (
	"math/bits"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

var binaryOpBase = map[token.Type]string{
	token.Plus: "add", token.Minus: "sub", token.Star: "mul", token.Slash: "div", token.Rem: "rem",
	token.And: "and", token.Or: "or", token.Xor: "xor", token.Shl: "sll", token.Shr: "sra",
}

func isVoid(t types.Type) bool { return t.Kind == types.Void && t.Ptr == 0 }

// sameClass reports whether a value of from can sit in a register meant for
// to without conversion.
func sameClass(from, to types.Type) bool {
	if from.IsFloat() || to.IsFloat() {
		return from.IsFloat() && to.IsFloat() && from.Kind == to.Kind
	}
	return true
}

func pointerDepth(t types.Type) int {
	if t.Ptr == 0 && t.Kind == types.String {
		return 1
	}
	return t.Ptr
}

// compatiblePointers reports whether a value of from may initialize a
// to without a cast. Pointers only mix with pointers of the same depth,
// or with void*.
func compatiblePointers(from, to types.Type) bool {
	fd, td := pointerDepth(from), pointerDepth(to)
	if fd == 0 || td == 0 {
		return fd == td
	}
	if (from.Kind == types.Void && fd == 1) || (to.Kind == types.Void && td == 1) {
		return true
	}
	return fd == td
}

func (ctx *Context) isNullConstant(n *ast.Node) bool {
	c, err := ctx.fold(n)
	return err == nil && !c.IsFloat() && c.Kind != types.String && c.Int == 0
}

// codegenExprAs leaves the value of n, converted to want, in dest.
func (ctx *Context) codegenExprAs(n *ast.Node, dest int, want types.Type) {
	if ast.IsConstant(n) {
		if want.IsPointer() && !ctx.isNullConstant(n) {
			util.Abort(n.Tok, "%v: '%s' initialized from integer without a cast", ErrTypeMismatch, want)
		}
		ctx.codegenConstant(n, dest, want)
		return
	}
	t := ctx.typeOf(n)
	if isVoid(t) || isVoid(want) {
		util.Abort(n.Tok, "void value not ignored as it ought to be")
	}
	if !compatiblePointers(t, want) {
		util.Abort(n.Tok, "%v: cannot convert '%s' to '%s'", ErrTypeMismatch, t, want)
	}
	if sameClass(t, want) {
		ctx.codegenExpr(n, dest, t)
		return
	}
	ctx.codegenConversion(n, dest, t, want)
}

// codegenConversion evaluates n as from and converts it with fcvt.
func (ctx *Context) codegenConversion(n *ast.Node, dest int, from, to types.Type) {
	if from.IsPointer() || to.IsPointer() {
		util.Abort(n.Tok, "%v: cannot convert '%s' to '%s'", ErrTypeMismatch, from, to)
	}
	if !ctx.cfg.IsFeatureEnabled(config.FeatImplicitConversion) {
		util.Abort(n.Tok, "%v: '%s' used where '%s' is expected (enable -Fimplicit-conversion)", ErrTypeMismatch, from, to)
	}
	util.Warn(ctx.cfg, config.WarnImplicitConversion, n.Tok, "implicit conversion from '%s' to '%s'", from, to)

	tmp := ctx.assign(n.Tok, from)
	ctx.codegenExpr(n, tmp, from)
	ctx.emit("%s %s,%s%s", fcvtOp(from.Kind, to.Kind), reg(dest), reg(tmp), roundingMode(to))
	ctx.free(n.Tok, tmp)
}

func fcvtSuffix(k types.Kind) string {
	switch k {
	case types.Float:
		return "s"
	case types.Double:
		return "d"
	case types.Unsigned, types.Char:
		return "wu"
	}
	return "w"
}

func fcvtOp(from, to types.Kind) string { return "fcvt." + fcvtSuffix(to) + "." + fcvtSuffix(from) }

// roundingMode truncates toward zero on float to integer conversion, as C
// requires.
func roundingMode(to types.Type) string {
	if to.IsFloat() {
		return ""
	}
	return ",rtz"
}

// codegenConstant materializes a literal as want. Floating values are
// loaded from the literal pool.
func (ctx *Context) codegenConstant(n *ast.Node, dest int, want types.Type) {
	c, err := ctx.fold(n)
	ctx.check(n.Tok, err)
	if isVoid(want) {
		util.Abort(n.Tok, "void value not ignored as it ought to be")
	}
	if want.IsFloat() {
		v, err := c.Convert(want.Kind)
		ctx.check(n.Tok, err)
		ctx.loadPooled(n.Tok, dest, ctx.AddFloatLiteral(v.Float, want.Kind), want)
		return
	}
	if c.IsFloat() {
		if !ctx.cfg.IsFeatureEnabled(config.FeatImplicitConversion) {
			util.Abort(n.Tok, "%v: floating constant used where '%s' is expected", ErrTypeMismatch, want)
		}
		util.Warn(ctx.cfg, config.WarnImplicitConversion, n.Tok, "implicit conversion from '%s' to '%s'", c.Kind, want)
	}
	k := want.Kind
	if want.IsPointer() {
		k = types.Unsigned
	}
	v, err := c.Convert(k)
	ctx.check(n.Tok, err)
	ctx.emit("li %s,%d", reg(dest), int32(v.Int))
}

func (ctx *Context) loadPooled(tok token.Token, dest, index int, t types.Type) {
	label := LiteralConstant{}.Label(index)
	addr := ctx.assign(tok, types.IntType)
	ctx.emit("lui %s,%%hi(%s)", reg(addr), label)
	ctx.emit("%s %s,%%lo(%s)(%s)", ctx.loadOp(tok, t), reg(dest), label, reg(addr))
	ctx.free(tok, addr)
}

// codegenExpr lowers n into dest, where t is the static type of n.
func (ctx *Context) codegenExpr(n *ast.Node, dest int, t types.Type) {
	switch d := n.Data.(type) {
	case ast.IdentNode:
		ctx.codegenIdent(n, d.Name, dest, t)
	case ast.IntConstNode, ast.CharConstNode, ast.FloatConstNode:
		ctx.codegenConstant(n, dest, t)
	case ast.StringConstNode:
		label := LiteralConstant{}.Label(ctx.AddStringLiteral(d.Value))
		ctx.emit("lui %s,%%hi(%s)", reg(dest), label)
		ctx.emit("addi %s,%s,%%lo(%s)", reg(dest), reg(dest), label)
	case ast.BinaryNode:
		ctx.codegenBinary(n, d, dest, t)
	case ast.RelationalNode:
		ctx.codegenRelational(n, d, dest)
	case ast.LogicalNode:
		ctx.codegenLogical(n, d, dest)
	case ast.UnaryNode:
		ctx.codegenUnary(n, d, dest, t)
	case ast.IncrementNode:
		ctx.codegenIncrement(n, d, dest, t)
	case ast.AssignNode:
		ctx.codegenAssign(n, d, dest, t)
	case ast.TernaryNode:
		ctx.codegenTernary(d, dest, t)
	case ast.CallNode:
		ctx.codegenCall(n, dest, t)
	case ast.IndexNode, ast.DerefNode:
		ctx.codegenLoad(n, dest, t)
	case ast.AddrOfNode:
		ctx.codegenAddress(d.Expr, dest)
	case ast.SizeofNode:
		ctx.emit("li %s,%d", reg(dest), ctx.sizeOf(n))
	default:
		util.Abort(n.Tok, "%s is not an expression", n.Type)
	}
}

// frameOp emits "op r,off(s0)", going through a scratch register when off
// does not fit a 12-bit immediate.
func (ctx *Context) frameOp(tok token.Token, op string, r, off int) {
	if off >= -2048 && off <= 2047 {
		ctx.emit("%s %s,%d(s0)", op, reg(r), off)
		return
	}
	tmp := ctx.assign(tok, types.IntType)
	ctx.emit("li %s,%d", reg(tmp), off)
	ctx.emit("add %s,%s,s0", reg(tmp), reg(tmp))
	ctx.emit("%s %s,0(%s)", op, reg(r), reg(tmp))
	ctx.free(tok, tmp)
}

func (ctx *Context) frameAddr(dest, off int) {
	if off >= -2048 && off <= 2047 {
		ctx.emit("addi %s,s0,%d", reg(dest), off)
		return
	}
	ctx.emit("li %s,%d", reg(dest), off)
	ctx.emit("add %s,%s,s0", reg(dest), reg(dest))
}

func (ctx *Context) codegenIdent(n *ast.Node, name string, dest int, t types.Type) {
	s := ctx.lookup(n.Tok, name)
	switch s.kind {
	case symEnum:
		ctx.emit("li %s,%d", reg(dest), s.value)
	case symLocal:
		if s.array {
			ctx.frameAddr(dest, s.offset)
			return
		}
		ctx.frameOp(n.Tok, ctx.loadOp(n.Tok, t), dest, s.offset)
	case symGlobal:
		if s.array {
			ctx.emit("lui %s,%%hi(%s)", reg(dest), name)
			ctx.emit("addi %s,%s,%%lo(%s)", reg(dest), reg(dest), name)
			return
		}
		addr := dest
		if t.IsFloat() {
			addr = ctx.assign(n.Tok, types.IntType)
		}
		ctx.emit("lui %s,%%hi(%s)", reg(addr), name)
		ctx.emit("%s %s,%%lo(%s)(%s)", ctx.loadOp(n.Tok, t), reg(dest), name, reg(addr))
		if addr != dest {
			ctx.free(n.Tok, addr)
		}
	}
}

// scale multiplies integer register r by size.
func (ctx *Context) scale(tok token.Token, r, size int) {
	switch {
	case size == 1:
	case size > 0 && size&(size-1) == 0:
		ctx.emit("slli %s,%s,%d", reg(r), reg(r), bits.TrailingZeros(uint(size)))
	default:
		tmp := ctx.assign(tok, types.IntType)
		ctx.emit("li %s,%d", reg(tmp), size)
		ctx.emit("mul %s,%s,%s", reg(r), reg(r), reg(tmp))
		ctx.free(tok, tmp)
	}
}

func (ctx *Context) codegenBinary(n *ast.Node, d ast.BinaryNode, dest int, t types.Type) {
	lt, rt := ctx.typeOf(d.Left), ctx.typeOf(d.Right)
	lp, rp := lt.IsPointer(), rt.IsPointer()

	if !lp && !rp {
		ctx.codegenExprAs(d.Left, dest, t)
		src := ctx.assign(n.Tok, t)
		ctx.codegenExprAs(d.Right, src, t)
		ctx.emitArith(n.Tok, d.Op, t, dest, dest, src)
		ctx.free(n.Tok, src)
		return
	}

	// Pointer arithmetic: scale the integer side by the pointee size.
	ctx.codegenExprAs(d.Left, dest, lt)
	src := ctx.assign(n.Tok, rt)
	ctx.codegenExprAs(d.Right, src, rt)
	switch {
	case lp && rp:
		ctx.emit("sub %s,%s,%s", reg(dest), reg(dest), reg(src))
		if size := lt.ElemSize(); size > 1 {
			ctx.emit("srai %s,%s,%d", reg(dest), reg(dest), bits.TrailingZeros(uint(size)))
		}
	case lp:
		ctx.scale(n.Tok, src, lt.ElemSize())
		ctx.emitArith(n.Tok, d.Op, types.IntType, dest, dest, src)
	default:
		ctx.scale(n.Tok, dest, rt.ElemSize())
		ctx.emitArith(n.Tok, d.Op, types.IntType, dest, dest, src)
	}
	ctx.free(n.Tok, src)
}

func (ctx *Context) emitArith(tok token.Token, op token.Type, t types.Type, rd, rs1, rs2 int) {
	base, ok := binaryOpBase[op]
	if !ok {
		util.Abort(tok, "invalid binary operator %s", op)
	}
	ctx.emit("%s %s,%s,%s", ctx.arithOp(tok, t, base), reg(rd), reg(rs1), reg(rs2))
}

func floatSuffix(t types.Type) string {
	if t.Kind == types.Float {
		return ".s"
	}
	return ".d"
}

// codegenRelational materializes a comparison as 0 or 1 in dest.
func (ctx *Context) codegenRelational(n *ast.Node, d ast.RelationalNode, dest int) {
	ot := ctx.unify(n.Tok, d.Left, d.Right)
	x := dest
	if ot.IsFloat() {
		x = ctx.assign(n.Tok, ot)
	}
	ctx.codegenExprAs(d.Left, x, ot)
	y := ctx.assign(n.Tok, ot)
	ctx.codegenExprAs(d.Right, y, ot)

	rd, rx, ry := reg(dest), reg(x), reg(y)
	if ot.IsFloat() {
		sfx := floatSuffix(ot)
		switch d.Op {
		case token.Lt:
			ctx.emit("flt%s %s,%s,%s", sfx, rd, rx, ry)
		case token.Gt:
			ctx.emit("flt%s %s,%s,%s", sfx, rd, ry, rx)
		case token.Lte:
			ctx.emit("fle%s %s,%s,%s", sfx, rd, rx, ry)
		case token.Gte:
			ctx.emit("fle%s %s,%s,%s", sfx, rd, ry, rx)
		case token.EqEq:
			ctx.emit("feq%s %s,%s,%s", sfx, rd, rx, ry)
		case token.Neq:
			ctx.emit("feq%s %s,%s,%s", sfx, rd, rx, ry)
			ctx.emit("xori %s,%s,1", rd, rd)
		}
		ctx.free(n.Tok, x)
	} else {
		slt := "slt"
		if ot.IsPointer() || ot.Kind == types.Unsigned {
			slt = "sltu"
		}
		switch d.Op {
		case token.Lt:
			ctx.emit("%s %s,%s,%s", slt, rd, rx, ry)
		case token.Gt:
			ctx.emit("%s %s,%s,%s", slt, rd, ry, rx)
		case token.Lte:
			ctx.emit("%s %s,%s,%s", slt, rd, ry, rx)
			ctx.emit("xori %s,%s,1", rd, rd)
		case token.Gte:
			ctx.emit("%s %s,%s,%s", slt, rd, rx, ry)
			ctx.emit("xori %s,%s,1", rd, rd)
		case token.EqEq:
			ctx.emit("sub %s,%s,%s", rd, rx, ry)
			ctx.emit("seqz %s,%s", rd, rd)
		case token.Neq:
			ctx.emit("sub %s,%s,%s", rd, rx, ry)
			ctx.emit("snez %s,%s", rd, rd)
		}
	}
	ctx.free(n.Tok, y)
	ctx.emit("andi %s,%s,0xff", rd, rd)
}

// codegenCond leaves a value in integer register dest that is non-zero
// exactly when n is true.
func (ctx *Context) codegenCond(n *ast.Node, dest int) {
	t := ctx.typeOf(n)
	if !t.IsFloat() {
		ctx.codegenExprAs(n, dest, t)
		return
	}
	f := ctx.assign(n.Tok, t)
	ctx.codegenExprAs(n, f, t)
	zero := ctx.assign(n.Tok, t)
	ctx.emit("%s %s,zero", fcvtOp(types.Int, t.Kind), reg(zero))
	ctx.emit("feq%s %s,%s,%s", floatSuffix(t), reg(dest), reg(f), reg(zero))
	ctx.emit("xori %s,%s,1", reg(dest), reg(dest))
	ctx.free(n.Tok, zero)
	ctx.free(n.Tok, f)
}

// codegenLogical evaluates the right operand only when the left one does
// not decide the result.
func (ctx *Context) codegenLogical(n *ast.Node, d ast.LogicalNode, dest int) {
	short := ctx.NewLabel("logic_short")
	end := ctx.NewLabel("logic_end")
	branch, shortValue := "beqz", 0
	if d.Op == token.OrOr {
		branch, shortValue = "bnez", 1
	}
	ctx.codegenCond(d.Left, dest)
	ctx.emit("%s %s,%s", branch, reg(dest), short)
	ctx.codegenCond(d.Right, dest)
	ctx.emit("snez %s,%s", reg(dest), reg(dest))
	ctx.emit("j %s", end)
	ctx.label(short)
	ctx.emit("li %s,%d", reg(dest), shortValue)
	ctx.label(end)
}

func (ctx *Context) codegenUnary(n *ast.Node, d ast.UnaryNode, dest int, t types.Type) {
	switch d.Op {
	case token.Plus:
		ctx.codegenExprAs(d.Expr, dest, t)
	case token.Minus:
		if t.IsPointer() {
			util.Abort(n.Tok, "wrong type argument to unary minus")
		}
		ctx.codegenExprAs(d.Expr, dest, t)
		ctx.emit("%s %s,%s", ctx.arithOp(n.Tok, t, "neg"), reg(dest), reg(dest))
	case token.Not:
		ctx.codegenCond(d.Expr, dest)
		ctx.emit("seqz %s,%s", reg(dest), reg(dest))
	case token.Complement:
		if t.IsFloat() || t.IsPointer() {
			util.Abort(n.Tok, "wrong type argument to bit-complement")
		}
		ctx.codegenExprAs(d.Expr, dest, t)
		ctx.emit("not %s,%s", reg(dest), reg(dest))
	default:
		util.Abort(n.Tok, "invalid unary operator %s", d.Op)
	}
}

func (ctx *Context) codegenTernary(d ast.TernaryNode, dest int, t types.Type) {
	elseLabel := ctx.NewLabel("ternary_else")
	end := ctx.NewLabel("ternary_end")
	c := ctx.assign(d.Cond.Tok, types.IntType)
	ctx.codegenCond(d.Cond, c)
	ctx.emit("beqz %s,%s", reg(c), elseLabel)
	ctx.free(d.Cond.Tok, c)
	ctx.codegenExprAs(d.Then, dest, t)
	ctx.emit("j %s", end)
	ctx.label(elseLabel)
	ctx.codegenExprAs(d.Else, dest, t)
	ctx.label(end)
}

// codegenAddress leaves the address of lvalue n in integer register dest.
func (ctx *Context) codegenAddress(n *ast.Node, dest int) {
	switch d := n.Data.(type) {
	case ast.IdentNode:
		s := ctx.lookup(n.Tok, d.Name)
		switch s.kind {
		case symEnum:
			util.Abort(n.Tok, "lvalue required: '%s' is an enumerator", d.Name)
		case symLocal:
			ctx.frameAddr(dest, s.offset)
		case symGlobal:
			ctx.emit("lui %s,%%hi(%s)", reg(dest), d.Name)
			ctx.emit("addi %s,%s,%%lo(%s)", reg(dest), reg(dest), d.Name)
		}
	case ast.IndexNode:
		ctx.codegenIndexAddr(n, d, dest)
	case ast.DerefNode:
		pt := ctx.typeOf(d.Expr)
		if !pt.IsPointer() {
			util.Abort(n.Tok, "invalid type argument of unary '*' (have '%s')", pt)
		}
		ctx.codegenExprAs(d.Expr, dest, pt)
	default:
		util.Abort(n.Tok, "lvalue required")
	}
}

func (ctx *Context) codegenIndexAddr(n *ast.Node, d ast.IndexNode, dest int) {
	base, index := d.Array, d.Index
	pt := ctx.typeOf(base)
	if !pt.IsPointer() {
		base, index = index, base
		pt = ctx.typeOf(base)
	}
	it := ctx.typeOf(index)
	if it.IsFloat() || it.IsPointer() {
		util.Abort(index.Tok, "array subscript is not an integer")
	}
	ctx.codegenExprAs(base, dest, pt)
	tmp := ctx.assign(n.Tok, types.IntType)
	ctx.codegenExprAs(index, tmp, it)
	ctx.scale(n.Tok, tmp, pt.ElemSize())
	ctx.emit("add %s,%s,%s", reg(dest), reg(dest), reg(tmp))
	ctx.free(n.Tok, tmp)
}

// codegenLoad reads the object an index or dereference expression
// designates.
func (ctx *Context) codegenLoad(n *ast.Node, dest int, t types.Type) {
	addr := dest
	if t.IsFloat() {
		addr = ctx.assign(n.Tok, types.IntType)
	}
	ctx.codegenAddress(n, addr)
	ctx.emit("%s %s,0(%s)", ctx.loadOp(n.Tok, t), reg(dest), reg(addr))
	if addr != dest {
		ctx.free(n.Tok, addr)
	}
}
