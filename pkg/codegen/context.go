package codegen

import (
	"bytes"
	"fmt"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
)

// GlobalVariable is a file-scope binding. For arrays Type is the element
// type.
type GlobalVariable struct {
	Name  string
	Type  types.Type
	Array bool
	Count int
}

func (g *GlobalVariable) ValueType() types.Type {
	if g.Array {
		return types.Type{Kind: g.Type.Kind, Ptr: g.Type.Ptr + 1}
	}
	return g.Type
}

type ParamInfo struct {
	Name string
	Type types.Type
}

// FunctionInfo is a function signature. Implicit marks a function called
// before any declaration, assumed to return int.
type FunctionInfo struct {
	Name     string
	Params   []ParamInfo
	Ret      types.Type
	Defined  bool
	Implicit bool
}

func (fi *FunctionInfo) ParamTypes() []types.Type {
	ts := make([]types.Type, len(fi.Params))
	for i, p := range fi.Params {
		ts[i] = p.Type
	}
	return ts
}

func (fi *FunctionInfo) sameSignature(other *FunctionInfo) bool {
	if fi.Ret != other.Ret || len(fi.Params) != len(other.Params) {
		return false
	}
	for i := range fi.Params {
		if fi.Params[i].Type != other.Params[i].Type {
			return false
		}
	}
	return true
}

// LiteralConstant is one entry of the read-only pool: a float, a double or
// a string.
type LiteralConstant struct {
	Kind  types.Kind
	Value float64
	Text  string
}

func (lc LiteralConstant) Label(index int) string { return fmt.Sprintf(".LC%d", index) }

type LoopKind int

const (
	LoopFor LoopKind = iota
	LoopWhile
	LoopDo
	LoopSwitch
)

func (k LoopKind) String() string {
	return [...]string{"for", "while", "do", "switch"}[k]
}

// LoopContext holds the jump targets of an enclosing loop or switch. Update
// is where continue goes.
type LoopContext struct {
	Kind   LoopKind
	Start  string
	End    string
	Update string
}

type symKind int

const (
	symEnum symKind = iota
	symLocal
	symGlobal
)

// Context is the state shared by the whole translation unit while it is
// lowered.
type Context struct {
	cfg  *config.Config
	regs RegisterFile

	globals  map[string]*GlobalVariable
	funcs    map[string]*FunctionInfo
	enums    map[string]int64
	enumTags map[string]bool
	literals []LiteralConstant
	loops    []LoopContext
	labels   int

	fn        *FunctionContext
	out       *bytes.Buffer
	callDepth int
}

func NewContext(cfg *config.Config) *Context {
	return &Context{
		cfg:      cfg,
		globals:  make(map[string]*GlobalVariable),
		funcs:    make(map[string]*FunctionInfo),
		enums:    make(map[string]int64),
		enumTags: make(map[string]bool),
		out:      new(bytes.Buffer),
	}
}

// Registers exposes the register file.
func (ctx *Context) Registers() *RegisterFile { return &ctx.regs }

// Function returns the function being compiled, or nil at file scope.
func (ctx *Context) Function() *FunctionContext { return ctx.fn }

func (ctx *Context) InGlobalScope() bool { return ctx.fn == nil }

func (ctx *Context) nameTaken(name string) error {
	if _, ok := ctx.globals[name]; ok {
		return fmt.Errorf("global '%s': %w", name, ErrRedeclared)
	}
	if _, ok := ctx.enums[name]; ok {
		return fmt.Errorf("'%s' redeclared, previously an enumerator: %w", name, ErrRedeclared)
	}
	return nil
}

func (ctx *Context) AddGlobal(name string, t types.Type) (*GlobalVariable, error) {
	if err := ctx.nameTaken(name); err != nil {
		return nil, err
	}
	if _, ok := ctx.funcs[name]; ok {
		return nil, fmt.Errorf("'%s' redeclared, previously a function: %w", name, ErrRedeclared)
	}
	g := &GlobalVariable{Name: name, Type: t}
	ctx.globals[name] = g
	return g, nil
}

func (ctx *Context) AddGlobalArray(name string, elem types.Type, count int) (*GlobalVariable, error) {
	if count <= 0 {
		return nil, fmt.Errorf("array '%s' has non-positive size %d", name, count)
	}
	g, err := ctx.AddGlobal(name, elem)
	if err != nil {
		return nil, err
	}
	g.Array, g.Count = true, count
	return g, nil
}

func (ctx *Context) Global(name string) (*GlobalVariable, error) {
	if g, ok := ctx.globals[name]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("global '%s': %w", name, ErrNotFound)
}

// AddFunction records a signature. A prototype may be followed by further
// prototypes or one definition with the same signature.
func (ctx *Context) AddFunction(info *FunctionInfo) error {
	if err := ctx.nameTaken(info.Name); err != nil {
		return err
	}
	prev, ok := ctx.funcs[info.Name]
	if !ok || prev.Implicit {
		ctx.funcs[info.Name] = info
		return nil
	}
	if !prev.sameSignature(info) {
		return fmt.Errorf("conflicting types for '%s'", info.Name)
	}
	if prev.Defined && info.Defined {
		return fmt.Errorf("function '%s': %w", info.Name, ErrRedeclared)
	}
	if info.Defined {
		ctx.funcs[info.Name] = info
	}
	return nil
}

func (ctx *Context) FunctionInfo(name string) (*FunctionInfo, error) {
	if fi, ok := ctx.funcs[name]; ok {
		return fi, nil
	}
	return nil, fmt.Errorf("function '%s': %w", name, ErrNotFound)
}

// AddEnum binds an enumerator to its value.
func (ctx *Context) AddEnum(name string, value int64) error {
	if _, ok := ctx.enums[name]; ok {
		return fmt.Errorf("enumerator '%s': %w", name, ErrRedeclared)
	}
	if _, ok := ctx.globals[name]; ok {
		return fmt.Errorf("'%s' redeclared as an enumerator: %w", name, ErrRedeclared)
	}
	ctx.enums[name] = value
	return nil
}

func (ctx *Context) EnumValue(name string) (int64, bool) {
	v, ok := ctx.enums[name]
	return v, ok
}

func (ctx *Context) AddFloatLiteral(value float64, k types.Kind) int {
	ctx.literals = append(ctx.literals, LiteralConstant{Kind: k, Value: value})
	return len(ctx.literals) - 1
}

func (ctx *Context) AddStringLiteral(s string) int {
	ctx.literals = append(ctx.literals, LiteralConstant{Kind: types.String, Text: s})
	return len(ctx.literals) - 1
}

func (ctx *Context) Literals() []LiteralConstant { return ctx.literals }

// NewLabel returns a label unique within the translation unit.
func (ctx *Context) NewLabel(prefix string) string {
	l := fmt.Sprintf(".%s%d", prefix, ctx.labels)
	ctx.labels++
	return l
}

func (ctx *Context) PushLoop(lc LoopContext) { ctx.loops = append(ctx.loops, lc) }

func (ctx *Context) PopLoop() {
	if len(ctx.loops) > 0 {
		ctx.loops = ctx.loops[:len(ctx.loops)-1]
	}
}

// BreakLabel is the end label of the innermost loop or switch.
func (ctx *Context) BreakLabel() (string, error) {
	if len(ctx.loops) == 0 {
		return "", fmt.Errorf("break statement not within loop or switch")
	}
	return ctx.loops[len(ctx.loops)-1].End, nil
}

// ContinueLabel skips enclosing switches: continue always targets a loop.
func (ctx *Context) ContinueLabel() (string, error) {
	for i := len(ctx.loops) - 1; i >= 0; i-- {
		if lc := ctx.loops[i]; lc.Kind != LoopSwitch {
			return lc.Update, nil
		}
	}
	return "", fmt.Errorf("continue statement not within a loop")
}

func (ctx *Context) resolve(name string) (symKind, error) {
	if _, ok := ctx.enums[name]; ok {
		return symEnum, nil
	}
	if ctx.fn != nil && ctx.fn.IsLocal(name) {
		return symLocal, nil
	}
	if _, ok := ctx.globals[name]; ok {
		return symGlobal, nil
	}
	return 0, fmt.Errorf("'%s' undeclared: %w", name, ErrNotFound)
}

// VariableIsLocal resolves name as an enumerator, then a local, then a
// global. Enumerators count as local since they need no memory access.
func (ctx *Context) VariableIsLocal(name string) (bool, error) {
	k, err := ctx.resolve(name)
	if err != nil {
		return false, err
	}
	return k != symGlobal, nil
}

// PointerElementSize is the stride of pointer arithmetic on a value of t.
func PointerElementSize(t types.Type) int { return t.ElemSize() }
