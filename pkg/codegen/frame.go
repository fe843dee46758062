package codegen

import (
	"errors"
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/types"
)

const (
	// Frame layout relative to s0: -4 holds the low half of a double split
	// between a7 and the stack, -8 the saved ra, -12 the saved s0.
	splitSlotOffset  = -4
	firstLocalOffset = -12

	argRegs = 8
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRedeclared     = errors.New("already declared")
	ErrOutermostScope = errors.New("cannot exit the outermost scope")
)

// Variable is a name bound to a frame slot. For arrays Type is the element
// type and Count the number of elements.
type Variable struct {
	Name   string
	Type   types.Type
	Offset int
	Array  bool
	Count  int
}

// ValueType is the type of the variable used as an rvalue. Arrays decay to a
// pointer to their first element.
func (v *Variable) ValueType() types.Type {
	if v.Array {
		return types.Type{Kind: v.Type.Kind, Ptr: v.Type.Ptr + 1}
	}
	return v.Type
}

type scope struct {
	base int
	vars map[string]*Variable
}

// FunctionContext is the frame layout of the function being compiled.
// Offsets are relative to s0 and grow downwards; each scope remembers the
// offset at entry and gives its slots back when it exits.
type FunctionContext struct {
	Name string
	Ret  types.Type

	scopes   []scope
	offset   int
	size     int
	outgoing int
}

func NewFunctionContext(name string, ret types.Type, frameSize int) *FunctionContext {
	f := &FunctionContext{Name: name, Ret: ret, offset: firstLocalOffset, size: frameSize}
	f.EnterScope()
	return f
}

func (f *FunctionContext) EndLabel() string { return "." + f.Name + "_func_end" }

// Size is the current frame size in bytes. It only ever doubles.
func (f *FunctionContext) Size() int { return f.size }

// Offset is the lowest s0-relative offset handed out in the live scopes.
func (f *FunctionContext) Offset() int { return f.offset }

// Depth is the number of open scopes, the function body scope included.
func (f *FunctionContext) Depth() int { return len(f.scopes) }

func (f *FunctionContext) EnterScope() {
	f.scopes = append(f.scopes, scope{base: f.offset, vars: make(map[string]*Variable)})
}

func (f *FunctionContext) ExitScope() error {
	if len(f.scopes) <= 1 {
		return fmt.Errorf("%s: %w", f.Name, ErrOutermostScope)
	}
	last := f.scopes[len(f.scopes)-1]
	f.scopes = f.scopes[:len(f.scopes)-1]
	f.offset = last.base
	return nil
}

// reserve claims n bytes below the current offset, aligned to align.
func (f *FunctionContext) reserve(n, align int) int {
	f.offset -= n
	f.offset &^= align - 1
	f.grow()
	return f.offset
}

func (f *FunctionContext) grow() {
	for -f.offset+f.outgoing > f.size {
		f.size *= 2
	}
}

func (f *FunctionContext) current() scope { return f.scopes[len(f.scopes)-1] }

// declare checks name against the innermost scope. Reserved names (prefixed
// with '#') that already exist are handed back instead of rejected.
func (f *FunctionContext) declare(name string) (*Variable, error) {
	if v, ok := f.current().vars[name]; ok {
		if len(name) > 0 && name[0] == '#' {
			return v, nil
		}
		return nil, fmt.Errorf("variable '%s': %w", name, ErrRedeclared)
	}
	return nil, nil
}

// AddVariable reserves a slot for a scalar or pointer variable.
func (f *FunctionContext) AddVariable(name string, t types.Type) (*Variable, error) {
	if v, err := f.declare(name); v != nil || err != nil {
		return v, err
	}
	size := t.StackSize()
	if size == 0 {
		return nil, fmt.Errorf("variable '%s' of type %s: %w", name, t, types.ErrInvalidKind)
	}
	v := &Variable{Name: name, Type: t, Offset: f.reserve(size, size)}
	f.current().vars[name] = v
	return v, nil
}

// AddArray reserves count elements of elem, rounded up to a whole word.
func (f *FunctionContext) AddArray(name string, elem types.Type, count int) (*Variable, error) {
	if v, err := f.declare(name); v != nil || err != nil {
		return v, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("array '%s' has non-positive size %d", name, count)
	}
	size, align := count*elem.Size(), types.WordSize
	if size == 0 {
		return nil, fmt.Errorf("array '%s' of %s: %w", name, elem, types.ErrInvalidKind)
	}
	if elem.Size() == 8 {
		align = 8
	}
	size = (size + types.WordSize - 1) &^ (types.WordSize - 1)
	v := &Variable{Name: name, Type: elem, Offset: f.reserve(size, align), Array: true, Count: count}
	f.current().vars[name] = v
	return v, nil
}

// BindAt binds name to a slot the caller already owns, such as a parameter
// passed on the stack.
func (f *FunctionContext) BindAt(name string, t types.Type, offset int) (*Variable, error) {
	if v, err := f.declare(name); v != nil || err != nil {
		if err == nil {
			err = fmt.Errorf("variable '%s': %w", name, ErrRedeclared)
		}
		return nil, err
	}
	v := &Variable{Name: name, Type: t, Offset: offset}
	f.current().vars[name] = v
	return v, nil
}

// ReserveOutgoing makes room for n bytes of stack arguments at 0(sp).
func (f *FunctionContext) ReserveOutgoing(n int) {
	if n > f.outgoing {
		f.outgoing = n
		f.grow()
	}
}

// Lookup resolves name from the innermost scope outwards.
func (f *FunctionContext) Lookup(name string) (*Variable, error) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if v, ok := f.scopes[i].vars[name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("variable '%s': %w", name, ErrNotFound)
}

func (f *FunctionContext) IsLocal(name string) bool {
	_, err := f.Lookup(name)
	return err == nil
}

// ParamClass says where one argument travels under the ilp32d convention.
type ParamClass int

const (
	InFloatReg ParamClass = iota
	InIntReg
	// Split is a double whose low word goes in a7 and high word in the
	// first stack argument word.
	Split
	InMemory
)

func (c ParamClass) String() string {
	switch c {
	case InFloatReg:
		return "fa"
	case InIntReg:
		return "a"
	case Split:
		return "split"
	default:
		return "mem"
	}
}

// ParamLocation is the placement of one argument. Reg is the index within
// the fa or a bank, Regs the number of a registers used, Offset the byte
// offset within the stack argument area.
type ParamLocation struct {
	Class  ParamClass
	Reg    int
	Regs   int
	Offset int
}

// ParamLocations classifies params in declaration order. Caller and callee
// both use it so the two sides agree. The second result is the size of the
// stack argument area.
func ParamLocations(params []types.Type) ([]ParamLocation, int) {
	locs := make([]ParamLocation, len(params))
	fi, ai, mem := 0, 0, 0
	for i, t := range params {
		if t.IsFloat() && fi < argRegs {
			locs[i] = ParamLocation{Class: InFloatReg, Reg: fi}
			fi++
			continue
		}
		isDouble := t.IsFloat() && t.Kind == types.Double
		switch {
		case isDouble && ai < argRegs-1:
			locs[i] = ParamLocation{Class: InIntReg, Reg: ai, Regs: 2}
			ai += 2
		case isDouble && ai == argRegs-1:
			locs[i] = ParamLocation{Class: Split, Reg: ai, Regs: 1}
			ai++
			mem += types.WordSize
		case !isDouble && ai < argRegs:
			locs[i] = ParamLocation{Class: InIntReg, Reg: ai, Regs: 1}
			ai++
		default:
			if isDouble {
				mem = (mem + 7) &^ 7
			}
			locs[i] = ParamLocation{Class: InMemory, Offset: mem}
			mem += t.StackSize()
		}
	}
	return locs, mem
}
