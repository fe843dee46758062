package codegen

import (
	"errors"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/google/go-cmp/cmp"
)

func TestFrameOffsets(t *testing.T) {
	f := NewFunctionContext("f", types.IntType, 32)
	if f.Offset() != -12 {
		t.Fatalf("initial offset = %d, want -12", f.Offset())
	}
	steps := []struct {
		name string
		typ  types.Type
		want int
	}{
		{"i", types.IntType, -16},
		{"d", types.DoubleType, -24},
		{"c", types.Scalar(types.Char), -28},
		{"p", types.Type{Kind: types.Char, Ptr: 1}, -32},
	}
	for _, s := range steps {
		v, err := f.AddVariable(s.name, s.typ)
		if err != nil {
			t.Fatalf("AddVariable(%s): %v", s.name, err)
		}
		if v.Offset != s.want {
			t.Errorf("%s at %d, want %d", s.name, v.Offset, s.want)
		}
	}
	if f.Size() != 32 {
		t.Errorf("Size() = %d, want 32", f.Size())
	}
	f.AddVariable("overflow", types.IntType)
	if f.Size() != 64 {
		t.Errorf("Size() after overflow = %d, want 64", f.Size())
	}
}

func TestFrameArrays(t *testing.T) {
	f := NewFunctionContext("f", types.IntType, 32)
	a, err := f.AddArray("a", types.IntType, 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.Offset != -24 || !a.Array || a.Count != 3 {
		t.Errorf("a = %+v, want offset -24, array of 3", a)
	}
	if got := a.ValueType(); got != (types.Type{Kind: types.Int, Ptr: 1}) {
		t.Errorf("a decays to %s, want int*", got)
	}
	s, _ := f.AddArray("s", types.Scalar(types.Char), 5)
	if s.Offset != -32 {
		t.Errorf("char[5] at %d, want -32", s.Offset)
	}
	d, _ := f.AddArray("d", types.DoubleType, 1)
	if d.Offset != -40 {
		t.Errorf("double[1] at %d, want -40", d.Offset)
	}
	if _, err := f.AddArray("z", types.IntType, 0); err == nil {
		t.Error("zero-length array accepted")
	}
}

func TestFrameScopes(t *testing.T) {
	f := NewFunctionContext("f", types.IntType, 32)
	outer, _ := f.AddVariable("x", types.IntType)

	f.EnterScope()
	inner, err := f.AddVariable("x", types.DoubleType)
	if err != nil {
		t.Fatalf("shadowing in an inner scope: %v", err)
	}
	if got, _ := f.Lookup("x"); got != inner {
		t.Errorf("Lookup(x) in inner scope = %+v, want the inner x", got)
	}
	if f.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", f.Depth())
	}
	if err := f.ExitScope(); err != nil {
		t.Fatal(err)
	}

	if got, _ := f.Lookup("x"); got != outer {
		t.Errorf("Lookup(x) after exit = %+v, want the outer x", got)
	}
	if f.Offset() != outer.Offset {
		t.Errorf("offset after exit = %d, want %d", f.Offset(), outer.Offset)
	}
	if _, err := f.AddVariable("x", types.IntType); !errors.Is(err, ErrRedeclared) {
		t.Errorf("redeclaration error = %v, want ErrRedeclared", err)
	}
	if err := f.ExitScope(); !errors.Is(err, ErrOutermostScope) {
		t.Errorf("ExitScope on the body scope = %v, want ErrOutermostScope", err)
	}
	if _, err := f.Lookup("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(nope) = %v, want ErrNotFound", err)
	}
	if f.IsLocal("nope") || !f.IsLocal("x") {
		t.Error("IsLocal disagrees with Lookup")
	}
}

func TestFrameReservedNames(t *testing.T) {
	f := NewFunctionContext("f", types.IntType, 32)
	a, _ := f.AddVariable("#a1", types.IntType)
	b, err := f.AddVariable("#a1", types.IntType)
	if err != nil || a != b {
		t.Errorf("second #a1 = %+v, %v; want the first slot back", b, err)
	}
	if _, err := f.BindAt("#a1", types.IntType, 0); !errors.Is(err, ErrRedeclared) {
		t.Errorf("BindAt over a reserved slot = %v, want ErrRedeclared", err)
	}
}

func TestFrameOutgoing(t *testing.T) {
	f := NewFunctionContext("f", types.IntType, 32)
	f.ReserveOutgoing(16)
	if f.Size() != 32 {
		t.Errorf("Size() = %d, want 32", f.Size())
	}
	f.ReserveOutgoing(40)
	if f.Size() != 64 {
		t.Errorf("Size() = %d, want 64", f.Size())
	}
	f.ReserveOutgoing(8)
	if f.Size() != 64 {
		t.Errorf("smaller reservation changed Size() to %d", f.Size())
	}
}

func TestParamLocations(t *testing.T) {
	repeat := func(t types.Type, n int) []types.Type {
		out := make([]types.Type, n)
		for i := range out {
			out[i] = t
		}
		return out
	}
	d8 := repeat(types.DoubleType, 8)

	tests := []struct {
		name   string
		params []types.Type
		tail   []ParamLocation
		stack  int
	}{
		{
			name:   "mixed registers",
			params: []types.Type{types.IntType, types.DoubleType, types.FloatType},
			tail: []ParamLocation{
				{Class: InIntReg, Reg: 0, Regs: 1},
				{Class: InFloatReg, Reg: 0},
				{Class: InFloatReg, Reg: 1},
			},
		},
		{
			name:   "ninth double takes an integer pair",
			params: append(append([]types.Type{}, d8...), types.DoubleType),
			tail:   []ParamLocation{{Class: InIntReg, Reg: 0, Regs: 2}},
		},
		{
			name:   "double split between a7 and the stack",
			params: append(append(append([]types.Type{}, d8...), repeat(types.IntType, 7)...), types.DoubleType),
			tail:   []ParamLocation{{Class: Split, Reg: 7, Regs: 1}},
			stack:  4,
		},
		{
			name:   "stack doubles are 8-aligned",
			params: append(append(append([]types.Type{}, d8...), repeat(types.IntType, 9)...), types.DoubleType),
			tail:   []ParamLocation{{Class: InMemory, Offset: 0}, {Class: InMemory, Offset: 8}},
			stack:  16,
		},
		{
			name:   "ninth int",
			params: repeat(types.IntType, 9),
			tail:   []ParamLocation{{Class: InIntReg, Reg: 7, Regs: 1}, {Class: InMemory, Offset: 0}},
			stack:  4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, stack := ParamLocations(tt.params)
			got := locs[len(locs)-len(tt.tail):]
			if diff := cmp.Diff(tt.tail, got); diff != "" {
				t.Errorf("locations mismatch (-want +got):\n%s", diff)
			}
			if stack != tt.stack {
				t.Errorf("stack = %d, want %d", stack, tt.stack)
			}
		})
	}
}
