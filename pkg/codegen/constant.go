package codegen

import (
	"errors"
	"fmt"
	"math"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
)

var (
	ErrNotConstant  = errors.New("initializer element is not a compile-time constant")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrDivByZero    = errors.New("division by zero in constant expression")
)

// Const is a folded compile-time value tagged with its kind. Int holds
// integer kinds, Float the floating kinds and Str the string kind.
type Const struct {
	Kind  types.Kind
	Int   int64
	Float float64
	Str   string
}

func IntValue(v int64) Const { return Const{Kind: types.Int, Int: int64(int32(v))} }

func DoubleValue(v float64) Const { return Const{Kind: types.Double, Float: v} }

func StringValue(s string) Const { return Const{Kind: types.String, Str: s} }

func (c Const) IsFloat() bool { return c.Kind.IsFloat() }

func (c Const) String() string {
	switch {
	case c.Kind == types.String:
		return fmt.Sprintf("%q", c.Str)
	case c.IsFloat():
		return fmt.Sprintf("%g", c.Float)
	}
	return fmt.Sprintf("%d", c.Int)
}

// Convert changes c to kind k with C conversion semantics. Strings only
// convert to themselves.
func (c Const) Convert(k types.Kind) (Const, error) {
	if c.Kind == k {
		return c, nil
	}
	if c.Kind == types.String || k == types.String || k == types.Void {
		return Const{}, fmt.Errorf("convert %s to %s: %w", c.Kind, k, ErrTypeMismatch)
	}
	out := Const{Kind: k}
	switch k {
	case types.Float:
		out.Float = float64(float32(c.asFloat()))
	case types.Double:
		out.Float = c.asFloat()
	default:
		v := c.Int
		if c.IsFloat() {
			v = int64(c.Float)
		}
		out.Int = wrapInt(k, v)
	}
	return out, nil
}

func (c Const) asFloat() float64 {
	if c.IsFloat() {
		return c.Float
	}
	if c.Kind == types.Unsigned {
		return float64(uint32(c.Int))
	}
	return float64(c.Int)
}

// wrapInt truncates v to the width and signedness of k.
func wrapInt(k types.Kind, v int64) int64 {
	switch k {
	case types.Char:
		return int64(uint8(v))
	case types.Unsigned:
		return int64(uint32(v))
	}
	return int64(int32(v))
}

// Bits returns the little-endian words of a float or double constant.
func (c Const) Bits() []uint32 {
	if c.Kind == types.Float {
		return []uint32{math.Float32bits(float32(c.Float))}
	}
	b := math.Float64bits(c.Float)
	return []uint32{uint32(b), uint32(b >> 32)}
}

// constKind is the kind a binary operation on a and b is folded in.
func constKind(a, b types.Kind) types.Kind {
	switch {
	case a == types.Double || b == types.Double:
		return types.Double
	case a == types.Float || b == types.Float:
		return types.Float
	case a == types.Unsigned || b == types.Unsigned:
		return types.Unsigned
	}
	return types.Int
}

// evalConst folds n to a value of kind want. Only literals, enumerators,
// sizeof and operators over them fold.
func (ctx *Context) evalConst(n *ast.Node, want types.Kind) (Const, error) {
	c, err := ctx.fold(n)
	if err != nil {
		return Const{}, err
	}
	return c.Convert(want)
}

func (ctx *Context) fold(n *ast.Node) (Const, error) {
	if n == nil {
		return Const{}, ErrNotConstant
	}
	switch d := n.Data.(type) {
	case ast.IntConstNode:
		if d.Unsigned {
			return Const{Kind: types.Unsigned, Int: wrapInt(types.Unsigned, d.Value)}, nil
		}
		return IntValue(d.Value), nil
	case ast.CharConstNode:
		return IntValue(d.Value), nil
	case ast.FloatConstNode:
		if d.Single {
			return Const{Kind: types.Float, Float: float64(float32(d.Value))}, nil
		}
		return DoubleValue(d.Value), nil
	case ast.StringConstNode:
		return StringValue(d.Value), nil
	case ast.IdentNode:
		if v, ok := ctx.EnumValue(d.Name); ok {
			return IntValue(v), nil
		}
		return Const{}, fmt.Errorf("'%s': %w", d.Name, ErrNotConstant)
	case ast.SizeofNode:
		return IntValue(int64(ctx.sizeOf(n))), nil
	case ast.UnaryNode:
		return ctx.foldUnary(d)
	case ast.BinaryNode:
		return ctx.foldBinary(d.Op, d.Left, d.Right)
	case ast.RelationalNode:
		return ctx.foldRelational(d.Op, d.Left, d.Right)
	case ast.LogicalNode:
		l, err := ctx.foldTruth(d.Left)
		if err != nil {
			return Const{}, err
		}
		if (d.Op == token.AndAnd && !l) || (d.Op == token.OrOr && l) {
			return IntValue(b2i(l)), nil
		}
		r, err := ctx.foldTruth(d.Right)
		return IntValue(b2i(r)), err
	case ast.TernaryNode:
		cond, err := ctx.foldTruth(d.Cond)
		if err != nil {
			return Const{}, err
		}
		if cond {
			return ctx.fold(d.Then)
		}
		return ctx.fold(d.Else)
	}
	return Const{}, ErrNotConstant
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (ctx *Context) foldTruth(n *ast.Node) (bool, error) {
	c, err := ctx.fold(n)
	if err != nil {
		return false, err
	}
	if c.Kind == types.String {
		return true, nil
	}
	if c.IsFloat() {
		return c.Float != 0, nil
	}
	return c.Int != 0, nil
}

func (ctx *Context) foldUnary(d ast.UnaryNode) (Const, error) {
	c, err := ctx.fold(d.Expr)
	if err != nil {
		return Const{}, err
	}
	if c.Kind == types.String {
		return Const{}, ErrNotConstant
	}
	switch d.Op {
	case token.Plus:
		return c, nil
	case token.Minus:
		if c.IsFloat() {
			c.Float = -c.Float
			return c, nil
		}
		k := constKind(c.Kind, types.Int)
		return Const{Kind: k, Int: wrapInt(k, -c.Int)}, nil
	case token.Not:
		t, _ := ctx.foldTruth(d.Expr)
		return IntValue(b2i(!t)), nil
	case token.Complement:
		if c.IsFloat() {
			return Const{}, fmt.Errorf("wrong type argument to bit-complement: %w", ErrTypeMismatch)
		}
		k := constKind(c.Kind, types.Int)
		return Const{Kind: k, Int: wrapInt(k, ^c.Int)}, nil
	}
	return Const{}, ErrNotConstant
}

func (ctx *Context) foldOperands(l, r *ast.Node) (Const, Const, types.Kind, error) {
	a, err := ctx.fold(l)
	if err != nil {
		return a, a, 0, err
	}
	b, err := ctx.fold(r)
	if err != nil {
		return a, b, 0, err
	}
	if a.Kind == types.String || b.Kind == types.String {
		return a, b, 0, ErrNotConstant
	}
	k := constKind(a.Kind, b.Kind)
	if a, err = a.Convert(k); err != nil {
		return a, b, k, err
	}
	b, err = b.Convert(k)
	return a, b, k, err
}

func (ctx *Context) foldBinary(op token.Type, l, r *ast.Node) (Const, error) {
	a, b, k, err := ctx.foldOperands(l, r)
	if err != nil {
		return Const{}, err
	}
	if k.IsFloat() {
		var v float64
		switch op {
		case token.Plus:
			v = a.Float + b.Float
		case token.Minus:
			v = a.Float - b.Float
		case token.Star:
			v = a.Float * b.Float
		case token.Slash:
			v = a.Float / b.Float
		default:
			return Const{}, fmt.Errorf("invalid operands to binary %s: %w", op, ErrTypeMismatch)
		}
		if k == types.Float {
			v = float64(float32(v))
		}
		return Const{Kind: k, Float: v}, nil
	}

	x, y := a.Int, b.Int
	var v int64
	switch op {
	case token.Plus:
		v = x + y
	case token.Minus:
		v = x - y
	case token.Star:
		v = x * y
	case token.Slash, token.Rem:
		if y == 0 {
			return Const{}, ErrDivByZero
		}
		if op == token.Slash {
			v = x / y
		} else {
			v = x % y
		}
	case token.And:
		v = x & y
	case token.Or:
		v = x | y
	case token.Xor:
		v = x ^ y
	case token.Shl:
		v = x << uint(y&31)
	case token.Shr:
		if k == types.Unsigned {
			v = int64(uint32(x) >> uint(y&31))
		} else {
			v = int64(int32(x) >> uint(y&31))
		}
	default:
		return Const{}, fmt.Errorf("invalid operator %s: %w", op, ErrNotConstant)
	}
	return Const{Kind: k, Int: wrapInt(k, v)}, nil
}

func (ctx *Context) foldRelational(op token.Type, l, r *ast.Node) (Const, error) {
	a, b, k, err := ctx.foldOperands(l, r)
	if err != nil {
		return Const{}, err
	}
	var cmp int
	if k.IsFloat() {
		switch {
		case a.Float < b.Float:
			cmp = -1
		case a.Float > b.Float:
			cmp = 1
		case a.Float != b.Float:
			// NaN compares false with everything except !=.
			return IntValue(b2i(op == token.Neq)), nil
		}
	} else {
		switch {
		case a.Int < b.Int:
			cmp = -1
		case a.Int > b.Int:
			cmp = 1
		}
	}
	var res bool
	switch op {
	case token.Lt:
		res = cmp < 0
	case token.Gt:
		res = cmp > 0
	case token.Lte:
		res = cmp <= 0
	case token.Gte:
		res = cmp >= 0
	case token.EqEq:
		res = cmp == 0
	case token.Neq:
		res = cmp != 0
	}
	return IntValue(b2i(res)), nil
}
