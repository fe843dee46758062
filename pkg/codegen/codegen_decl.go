package codegen

import (
	"bytes"
	"math/bits"
	"strconv"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

const maxImmediate = 2047

func (ctx *Context) signature(tok token.Token, spec ast.TypeSpec, d ast.DeclaratorNode, defined bool) *FunctionInfo {
	fi := &FunctionInfo{Name: d.Name, Ret: ctx.specType(tok, spec, d.Ptr), Defined: defined}
	for _, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		fi.Params = append(fi.Params, ParamInfo{Name: pd.Name, Type: ctx.specType(p.Tok, pd.Spec, pd.Ptr)})
	}
	return fi
}

func (ctx *Context) declareFunction(tok token.Token, spec ast.TypeSpec, d ast.DeclaratorNode) {
	if d.Init != nil {
		util.Abort(tok, "function '%s' is initialized like a variable", d.Name)
	}
	ctx.check(tok, ctx.AddFunction(ctx.signature(tok, spec, d, false)))
}

// codegenFuncDef emits a function. The body is generated first into a
// separate buffer because the frame size is only known once it is done.
func (ctx *Context) codegenFuncDef(n *ast.Node) {
	d := n.Data.(ast.FuncDefNode)
	decl := d.Decl.Data.(ast.DeclaratorNode)
	fi := ctx.signature(d.Decl.Tok, d.Spec, decl, true)
	ctx.check(d.Decl.Tok, ctx.AddFunction(fi))

	ctx.fn = NewFunctionContext(fi.Name, fi.Ret, ctx.cfg.DefaultFrameSize)
	defer func() { ctx.fn = nil }()

	out := ctx.out
	ctx.out = new(bytes.Buffer)
	ctx.bindParams(d.Decl, fi)

	terminates := ctx.codegenStmtList(d.Body.Data.(ast.BlockNode).Stmts)
	if !terminates && !isVoid(fi.Ret) {
		if fi.Name == "main" {
			ctx.emit("li a0,0")
		} else {
			util.Warn(ctx.cfg, config.WarnMissingReturn, d.Body.Tok, "control reaches end of non-void function '%s'", fi.Name)
		}
	}
	if live := ctx.regs.InUse(); live != 0 {
		util.Abort(n.Tok, "internal error: %d registers still live at the end of '%s'", live, fi.Name)
	}
	body := ctx.out
	ctx.out = out

	size := ctx.fn.Size()
	ctx.emit(".text")
	ctx.emit(".globl %s", fi.Name)
	ctx.label(fi.Name)
	ctx.emitPrologue(size)
	ctx.out.Write(body.Bytes())
	ctx.label(ctx.fn.EndLabel())
	ctx.emitEpilogue(size)
}

func (ctx *Context) emitPrologue(size int) {
	ra, fp := size-2*types.WordSize, size-3*types.WordSize
	if size <= maxImmediate {
		ctx.emit("addi sp,sp,-%d", size)
		ctx.emit("sw ra,%d(sp)", ra)
		ctx.emit("sw s0,%d(sp)", fp)
		ctx.emit("addi s0,sp,%d", size)
		return
	}
	ctx.emit("li t0,%d", size)
	ctx.emit("sub sp,sp,t0")
	ctx.emit("add t0,sp,t0")
	ctx.emit("sw ra,%d(t0)", -2*types.WordSize)
	ctx.emit("sw s0,%d(t0)", -3*types.WordSize)
	ctx.emit("mv s0,t0")
}

func (ctx *Context) emitEpilogue(size int) {
	if size <= maxImmediate {
		ctx.emit("lw ra,%d(sp)", size-2*types.WordSize)
		ctx.emit("lw s0,%d(sp)", size-3*types.WordSize)
		ctx.emit("addi sp,sp,%d", size)
		ctx.emit("ret")
		return
	}
	ctx.emit("lw ra,%d(s0)", -2*types.WordSize)
	ctx.emit("mv t0,s0")
	ctx.emit("lw s0,%d(t0)", -3*types.WordSize)
	ctx.emit("mv sp,t0")
	ctx.emit("ret")
}

// bindParams gives every parameter a home in the frame. Register
// parameters are stored into fresh slots, the rest are bound where the
// caller left them.
func (ctx *Context) bindParams(decl *ast.Node, fi *FunctionInfo) {
	params := decl.Data.(ast.DeclaratorNode).Params
	locs, _ := ParamLocations(fi.ParamTypes())
	for i, loc := range locs {
		p, tok := fi.Params[i], params[i].Tok
		if _, isEnum := ctx.EnumValue(p.Name); isEnum {
			util.Abort(tok, "'%s' redeclared as different kind of symbol", p.Name)
		}
		switch loc.Class {
		case Split:
			_, err := ctx.fn.BindAt(p.Name, p.Type, splitSlotOffset)
			ctx.check(tok, err)
			ctx.emit("sw a7,%d(s0)", splitSlotOffset)
		case InMemory:
			_, err := ctx.fn.BindAt(p.Name, p.Type, loc.Offset)
			ctx.check(tok, err)
		default:
			v, err := ctx.fn.AddVariable(p.Name, p.Type)
			ctx.check(tok, err)
			switch {
			case loc.Class == InFloatReg:
				ctx.frameWord(tok, ctx.storeOp(tok, p.Type), "fa"+strconv.Itoa(loc.Reg), v.Offset)
			case p.Type.IsFloat():
				for w := 0; w < loc.Regs; w++ {
					ctx.frameWord(tok, "sw", "a"+strconv.Itoa(loc.Reg+w), v.Offset+w*types.WordSize)
				}
			default:
				ctx.frameWord(tok, ctx.storeOp(tok, p.Type), "a"+strconv.Itoa(loc.Reg), v.Offset)
			}
		}
	}
}

func (ctx *Context) codegenEnumDecl(n *ast.Node) {
	d := n.Data.(ast.EnumDeclNode)
	if d.Name != "" {
		if ctx.enumTags[d.Name] {
			util.Abort(n.Tok, "redeclaration of 'enum %s'", d.Name)
		}
		ctx.enumTags[d.Name] = true
	}
	var next int64
	for _, m := range d.Members {
		if m.Value != nil {
			c, err := ctx.evalConst(m.Value, types.Int)
			if err != nil {
				util.Abort(m.Tok, "enumerator value for '%s' is not an integer constant", m.Name)
			}
			next = c.Int
		}
		if ctx.fn != nil && ctx.fn.IsLocal(m.Name) {
			util.Abort(m.Tok, "'%s' redeclared as different kind of symbol", m.Name)
		}
		if err := ctx.AddEnum(m.Name, next); err != nil {
			util.Abort(m.Tok, "%v", err)
		}
		next = int64(int32(next + 1))
	}
}

// arrayCount works out the element count of an array declarator, taking it
// from the initializer when the size is omitted.
func (ctx *Context) arrayCount(tok token.Token, d ast.DeclaratorNode, elem types.Type) int {
	if d.Size != nil {
		c, err := ctx.evalConst(d.Size, types.Int)
		if err != nil {
			util.Abort(d.Size.Tok, "size of array '%s' is not an integer constant", d.Name)
		}
		if c.Int <= 0 {
			util.Abort(d.Size.Tok, "size of array '%s' is not positive", d.Name)
		}
		return int(c.Int)
	}
	switch init := d.Init; {
	case init == nil:
		util.Abort(tok, "array size missing in '%s'", d.Name)
	case init.Type == ast.InitList:
		if n := len(init.Data.(ast.InitListNode).Elems); n > 0 {
			return n
		}
		util.Abort(tok, "zero-size array '%s'", d.Name)
	case init.Type == ast.StringConst && elem == types.Scalar(types.Char):
		return len(init.Data.(ast.StringConstNode).Value) + 1
	}
	util.Abort(tok, "invalid initializer for array '%s'", d.Name)
	return 0
}

// checkStringInit validates a char array initialized from a string literal
// and returns the bytes to copy, terminator included when it fits.
func checkStringInit(tok token.Token, name string, s string, count int) []byte {
	b := []byte(s)
	switch {
	case len(b) > count:
		util.Abort(tok, "initializer-string for array '%s' is too long", name)
	case len(b) < count:
		b = append(b, 0)
	}
	return b
}

func (ctx *Context) initElems(tok token.Token, name string, init *ast.Node, count int) []*ast.Node {
	if init == nil {
		return nil
	}
	if init.Type != ast.InitList {
		util.Abort(init.Tok, "invalid initializer for array '%s'", name)
	}
	elems := init.Data.(ast.InitListNode).Elems
	if len(elems) > count {
		util.Abort(tok, "excess elements in array initializer for '%s'", name)
	}
	return elems
}

// scalarInit unwraps a braced scalar initializer such as "int x = {1};".
func scalarInit(name string, init *ast.Node) *ast.Node {
	if init == nil || init.Type != ast.InitList {
		return init
	}
	elems := init.Data.(ast.InitListNode).Elems
	if len(elems) != 1 {
		util.Abort(init.Tok, "excess elements in scalar initializer for '%s'", name)
	}
	return elems[0]
}

func (ctx *Context) checkVarType(tok token.Token, name string, t types.Type) {
	if isVoid(t) {
		util.Abort(tok, "variable '%s' declared void", name)
	}
}

// Globals

func (ctx *Context) codegenGlobalDecl(n *ast.Node) {
	d := n.Data.(ast.DeclarationNode)
	if d.Enum != nil {
		ctx.codegenEnumDecl(d.Enum)
	}
	for _, dn := range d.Decls {
		decl := dn.Data.(ast.DeclaratorNode)
		if decl.Func {
			ctx.declareFunction(dn.Tok, d.Spec, decl)
			continue
		}
		t := ctx.specType(dn.Tok, d.Spec, decl.Ptr)
		ctx.checkVarType(dn.Tok, decl.Name, t)
		if decl.Array {
			ctx.codegenGlobalArray(dn.Tok, decl, t)
			continue
		}
		_, err := ctx.AddGlobal(decl.Name, t)
		ctx.check(dn.Tok, err)
		ctx.globalHeader(decl.Name, t.Size())
		init := scalarInit(decl.Name, decl.Init)
		if init == nil {
			ctx.emit(".zero %d", t.Size())
			continue
		}
		ctx.emitDatum(init, t)
	}
}

func (ctx *Context) globalHeader(name string, align int) {
	ctx.emit(".data")
	ctx.emit(".align %d", bits.TrailingZeros(uint(align)))
	ctx.emit(".globl %s", name)
	ctx.label(name)
}

func (ctx *Context) codegenGlobalArray(tok token.Token, decl ast.DeclaratorNode, elem types.Type) {
	count := ctx.arrayCount(tok, decl, elem)
	_, err := ctx.AddGlobalArray(decl.Name, elem, count)
	ctx.check(tok, err)
	ctx.globalHeader(decl.Name, elem.Size())
	size := count * elem.Size()

	if decl.Init != nil && decl.Init.Type == ast.StringConst && elem == types.Scalar(types.Char) {
		b := checkStringInit(tok, decl.Name, decl.Init.Data.(ast.StringConstNode).Value, count)
		if len(b) > 0 && b[len(b)-1] == 0 {
			ctx.emit(".string %s", asmQuote(string(b[:len(b)-1])))
		} else {
			ctx.emit(".ascii %s", asmQuote(string(b)))
		}
		if rest := size - len(b); rest > 0 {
			ctx.emit(".zero %d", rest)
		}
		return
	}

	elems := ctx.initElems(tok, decl.Name, decl.Init, count)
	for _, e := range elems {
		ctx.emitDatum(e, elem)
	}
	if rest := size - len(elems)*elem.Size(); rest > 0 {
		ctx.emit(".zero %d", rest)
	}
}

// emitDatum writes the static initial value of one object of type t.
func (ctx *Context) emitDatum(init *ast.Node, t types.Type) {
	if t.IsPointer() {
		switch d := init.Data.(type) {
		case ast.StringConstNode:
			if t.Elem() != types.Scalar(types.Char) {
				util.Abort(init.Tok, "%v: string literal initializing '%s'", ErrTypeMismatch, t)
			}
			ctx.emit(".word %s", LiteralConstant{}.Label(ctx.AddStringLiteral(d.Value)))
			return
		case ast.AddrOfNode:
			if id, ok := d.Expr.Data.(ast.IdentNode); ok {
				if _, err := ctx.Global(id.Name); err == nil {
					ctx.emit(".word %s", id.Name)
					return
				}
			}
			util.Abort(init.Tok, "%v", ErrNotConstant)
		case ast.IdentNode:
			if g, err := ctx.Global(d.Name); err == nil && g.Array {
				ctx.emit(".word %s", d.Name)
				return
			}
		}
	}

	c, err := ctx.fold(init)
	if err != nil {
		util.Abort(init.Tok, "%v", err)
	}
	if c.IsFloat() && !t.IsFloat() && !ctx.cfg.IsFeatureEnabled(config.FeatImplicitConversion) {
		util.Abort(init.Tok, "%v: floating constant initializing '%s'", ErrTypeMismatch, t)
	}
	k := t.Value()
	if k == types.String {
		k = types.Unsigned
	}
	v, err := c.Convert(k)
	ctx.check(init.Tok, err)
	switch {
	case k == types.Char:
		ctx.emit(".byte %d", v.Int)
	case k.IsFloat():
		for _, w := range v.Bits() {
			ctx.emit(".word %d", w)
		}
	default:
		ctx.emit(".word %d", int32(v.Int))
	}
}

// Locals

func (ctx *Context) codegenLocalDecl(n *ast.Node) {
	d := n.Data.(ast.DeclarationNode)
	if d.Enum != nil {
		ctx.codegenEnumDecl(d.Enum)
	}
	for _, dn := range d.Decls {
		decl := dn.Data.(ast.DeclaratorNode)
		if decl.Func {
			ctx.declareFunction(dn.Tok, d.Spec, decl)
			continue
		}
		if _, isEnum := ctx.EnumValue(decl.Name); isEnum {
			util.Abort(dn.Tok, "'%s' redeclared as different kind of symbol", decl.Name)
		}
		if _, err := ctx.resolve(decl.Name); err == nil {
			util.Warn(ctx.cfg, config.WarnShadow, dn.Tok, "declaration of '%s' shadows a previous declaration", decl.Name)
		}
		t := ctx.specType(dn.Tok, d.Spec, decl.Ptr)
		ctx.checkVarType(dn.Tok, decl.Name, t)
		if decl.Array {
			ctx.codegenLocalArray(dn.Tok, decl, t)
			continue
		}
		v, err := ctx.fn.AddVariable(decl.Name, t)
		ctx.check(dn.Tok, err)
		if init := scalarInit(decl.Name, decl.Init); init != nil {
			r := ctx.assign(dn.Tok, t)
			ctx.codegenExprAs(init, r, t)
			ctx.storeLvalue(dn.Tok, lvalue{kind: lvFrame, offset: v.Offset}, r, t)
			ctx.free(dn.Tok, r)
		}
	}
}

func (ctx *Context) codegenLocalArray(tok token.Token, decl ast.DeclaratorNode, elem types.Type) {
	count := ctx.arrayCount(tok, decl, elem)
	v, err := ctx.fn.AddArray(decl.Name, elem, count)
	ctx.check(tok, err)
	if decl.Init == nil {
		return
	}
	size := elem.Size()

	if decl.Init.Type == ast.StringConst && elem == types.Scalar(types.Char) {
		b := checkStringInit(tok, decl.Name, decl.Init.Data.(ast.StringConstNode).Value, count)
		tmp := ctx.assign(tok, types.IntType)
		for i, c := range b {
			if c == 0 {
				ctx.frameWord(tok, "sb", "zero", v.Offset+i)
				continue
			}
			ctx.emit("li %s,%d", reg(tmp), c)
			ctx.frameOp(tok, "sb", tmp, v.Offset+i)
		}
		ctx.free(tok, tmp)
		ctx.zeroFill(tok, v.Offset+len(b), v.Offset+count)
		return
	}

	elems := ctx.initElems(tok, decl.Name, decl.Init, count)
	for i, e := range elems {
		r := ctx.assign(e.Tok, elem)
		ctx.codegenExprAs(e, r, elem)
		ctx.storeLvalue(e.Tok, lvalue{kind: lvFrame, offset: v.Offset + i*size}, r, elem)
		ctx.free(e.Tok, r)
	}
	ctx.zeroFill(tok, v.Offset+len(elems)*size, v.Offset+count*size)
}

// zeroFill clears the frame bytes in [from, to), using word stores where
// the slot is word aligned.
func (ctx *Context) zeroFill(tok token.Token, from, to int) {
	for off := from; off < to; {
		if off%types.WordSize == 0 && to-off >= types.WordSize {
			ctx.frameWord(tok, "sw", "zero", off)
			off += types.WordSize
			continue
		}
		ctx.frameWord(tok, "sb", "zero", off)
		off++
	}
}
