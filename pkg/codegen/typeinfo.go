package codegen

import (
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

// symbol is the resolved storage of an identifier.
type symbol struct {
	kind   symKind
	name   string
	typ    types.Type
	array  bool
	count  int
	offset int
	value  int64
}

// valueType is the symbol's type as an rvalue, with arrays decayed.
func (s symbol) valueType() types.Type {
	if s.array {
		return types.Type{Kind: s.typ.Kind, Ptr: s.typ.Ptr + 1}
	}
	return s.typ
}

func (ctx *Context) lookup(tok token.Token, name string) symbol {
	kind, err := ctx.resolve(name)
	if err != nil {
		util.Abort(tok, "%v", err)
	}
	switch kind {
	case symEnum:
		v, _ := ctx.EnumValue(name)
		return symbol{kind: symEnum, name: name, typ: types.IntType, value: v}
	case symLocal:
		v, _ := ctx.fn.Lookup(name)
		return symbol{kind: symLocal, name: name, typ: v.Type, array: v.Array, count: v.Count, offset: v.Offset}
	}
	g, _ := ctx.Global(name)
	return symbol{kind: symGlobal, name: name, typ: g.Type, array: g.Array, count: g.Count}
}

// specType turns a declaration specifier and pointer depth into a type.
func (ctx *Context) specType(tok token.Token, spec ast.TypeSpec, ptr int) types.Type {
	if spec.Enum != "" && !ctx.enumTags[spec.Enum] {
		util.Abort(tok, "'enum %s' is not declared", spec.Enum)
	}
	return types.Type{Kind: spec.Kind, Ptr: ptr}
}

// typeOf reports the static type of an expression.
func (ctx *Context) typeOf(n *ast.Node) types.Type {
	switch d := n.Data.(type) {
	case ast.IdentNode:
		return ctx.lookup(n.Tok, d.Name).valueType()
	case ast.IntConstNode:
		if d.Unsigned {
			return types.Scalar(types.Unsigned)
		}
		return types.IntType
	case ast.CharConstNode:
		return types.IntType
	case ast.FloatConstNode:
		if d.Single {
			return types.FloatType
		}
		return types.DoubleType
	case ast.StringConstNode:
		return types.Type{Kind: types.Char, Ptr: 1}
	case ast.BinaryNode:
		return ctx.binaryType(n.Tok, d.Op, d.Left, d.Right)
	case ast.RelationalNode, ast.LogicalNode, ast.SizeofNode:
		return types.IntType
	case ast.UnaryNode:
		if d.Op == token.Not {
			return types.IntType
		}
		return promote(ctx.typeOf(d.Expr))
	case ast.IncrementNode:
		return ctx.typeOf(d.Expr)
	case ast.AssignNode:
		return ctx.typeOf(d.Lhs)
	case ast.TernaryNode:
		return ctx.unify(n.Tok, d.Then, d.Else)
	case ast.CallNode:
		return ctx.callee(n).Ret
	case ast.IndexNode:
		t := ctx.typeOf(d.Array)
		if !t.IsPointer() {
			t = ctx.typeOf(d.Index)
			if !t.IsPointer() {
				util.Abort(n.Tok, "subscripted value is neither array nor pointer")
			}
		}
		return t.Elem()
	case ast.AddrOfNode:
		t := ctx.typeOf(d.Expr)
		if d.Expr.Type == ast.Ident && ctx.isArray(d.Expr) {
			return t
		}
		return types.Type{Kind: t.Kind, Ptr: t.Ptr + 1}
	case ast.DerefNode:
		t := ctx.typeOf(d.Expr)
		if !t.IsPointer() {
			util.Abort(n.Tok, "invalid type argument of unary '*' (have '%s')", t)
		}
		return t.Elem()
	}
	util.Abort(n.Tok, "%s is not an expression", n.Type)
	return types.VoidType
}

// isArray reports whether n names an array object.
func (ctx *Context) isArray(n *ast.Node) bool {
	if d, ok := n.Data.(ast.IdentNode); ok {
		if _, isEnum := ctx.EnumValue(d.Name); isEnum {
			return false
		}
		return ctx.lookup(n.Tok, d.Name).array
	}
	return false
}

func isIntegerClass(t types.Type) bool { return !t.IsFloat() }

// promote applies the integer promotion: char operands compute as int.
func promote(t types.Type) types.Type {
	if t.Ptr == 0 && t.Kind == types.Char {
		return types.IntType
	}
	return t
}

// unify picks the operation type of two operands. Chars promote to int
// first, a literal then takes the type of the other operand, mixed integer
// kinds become unsigned, and floating/integer mixes need implicit conversion
// to be enabled.
func (ctx *Context) unify(tok token.Token, l, r *ast.Node) types.Type {
	lt, rt := promote(ctx.typeOf(l)), promote(ctx.typeOf(r))
	if lt == rt {
		return lt
	}
	lc, rc := ast.IsConstant(l), ast.IsConstant(r)
	switch {
	case rc && (!rt.IsFloat() || lt.IsFloat()):
		return lt
	case lc && (!lt.IsFloat() || rt.IsFloat()):
		return rt
	case lt.IsPointer() && isIntegerClass(rt) && !rt.IsPointer():
		return lt
	case rt.IsPointer() && isIntegerClass(lt) && !lt.IsPointer():
		return rt
	case lt.IsPointer() || rt.IsPointer():
		if lt.IsPointer() && rt.IsPointer() {
			return lt
		}
	case isIntegerClass(lt) && isIntegerClass(rt):
		if lt.Kind == types.Unsigned || rt.Kind == types.Unsigned {
			return types.Scalar(types.Unsigned)
		}
		return types.IntType
	case ctx.cfg.IsFeatureEnabled(config.FeatImplicitConversion):
		if lt.Kind == types.Double || rt.Kind == types.Double {
			return types.DoubleType
		}
		return types.FloatType
	}
	util.Abort(tok, "%v: '%s' and '%s'", ErrTypeMismatch, lt, rt)
	return types.VoidType
}

// binaryType applies the pointer arithmetic rules before falling back to
// unify.
func (ctx *Context) binaryType(tok token.Token, op token.Type, l, r *ast.Node) types.Type {
	lt, rt := ctx.typeOf(l), ctx.typeOf(r)
	lp, rp := lt.IsPointer(), rt.IsPointer()
	switch {
	case lp && rp:
		if op != token.Minus {
			util.Abort(tok, "invalid operands to binary %s (have '%s' and '%s')", op, lt, rt)
		}
		if lt.ElemSize() != rt.ElemSize() {
			util.Abort(tok, "%v: pointer subtraction of '%s' and '%s'", ErrTypeMismatch, lt, rt)
		}
		return types.IntType
	case lp || rp:
		pt, it := lt, rt
		if rp {
			pt, it = rt, lt
		}
		if it.IsFloat() || (op != token.Plus && !(op == token.Minus && lp)) {
			util.Abort(tok, "invalid operands to binary %s (have '%s' and '%s')", op, lt, rt)
		}
		return pt
	}
	t := ctx.unify(tok, l, r)
	if t.IsFloat() {
		switch op {
		case token.Rem, token.And, token.Or, token.Xor, token.Shl, token.Shr:
			util.Abort(tok, "invalid operands to binary %s (have '%s')", op, t)
		}
	}
	return t
}

// callee returns the signature of the function a call names, declaring it
// implicitly when allowed.
func (ctx *Context) callee(n *ast.Node) *FunctionInfo {
	d := n.Data.(ast.CallNode)
	if fi, err := ctx.FunctionInfo(d.Name); err == nil {
		return fi
	}
	if _, err := ctx.resolve(d.Name); err == nil {
		util.Abort(n.Tok, "called object '%s' is not a function", d.Name)
	}
	if !ctx.cfg.IsFeatureEnabled(config.FeatImplicitDecl) {
		util.Abort(n.Tok, "implicit declaration of function '%s'", d.Name)
	}
	util.Warn(ctx.cfg, config.WarnImplicitDecl, n.Tok, "implicit declaration of function '%s'", d.Name)
	fi := &FunctionInfo{Name: d.Name, Ret: types.IntType, Implicit: true}
	for i, arg := range d.Args {
		fi.Params = append(fi.Params, ParamInfo{Name: fmt.Sprintf("arg%d", i), Type: ctx.typeOf(arg)})
	}
	ctx.funcs[d.Name] = fi
	return fi
}

// sizeOf evaluates a sizeof node. Arrays report their full storage size.
func (ctx *Context) sizeOf(n *ast.Node) int {
	d := n.Data.(ast.SizeofNode)
	if d.Type != nil {
		t := ctx.specType(n.Tok, *d.Type, d.Ptr)
		if t.Size() == 0 {
			util.Abort(n.Tok, "invalid application of 'sizeof' to type '%s'", t)
		}
		return t.Size()
	}
	if id, ok := d.Expr.Data.(ast.IdentNode); ok && ctx.isArray(d.Expr) {
		s := ctx.lookup(d.Expr.Tok, id.Name)
		return s.count * s.typ.Size()
	}
	if d.Expr.Type == ast.StringConst {
		return len(d.Expr.Data.(ast.StringConstNode).Value) + 1
	}
	return ctx.typeOf(d.Expr).Size()
}
