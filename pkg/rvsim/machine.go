package rvsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

const defaultMaxSteps = 50_000_000

var (
	ErrStepLimit   = errors.New("instruction budget exhausted")
	ErrMemory      = errors.New("memory access out of range")
	ErrBadPC       = errors.New("program counter outside text")
	ErrTooManyArgs = errors.New("too many arguments")
)

// Builtin implements an external function in Go. It reads its arguments
// from and writes its result to the machine registers.
type Builtin func(m *Machine) error

// Machine is one hart executing a Program. It is not safe for concurrent
// use; run separate machines instead.
type Machine struct {
	prog *Program
	x    [32]uint32
	f    [32]uint64
	pc   uint32
	mem  []byte

	Stdout   io.Writer
	MaxSteps int
	Builtins map[string]Builtin
	Steps    int
}

func NewMachine(p *Program) *Machine {
	m := &Machine{
		prog:     p,
		mem:      make([]byte, memSize),
		Stdout:   io.Discard,
		MaxSteps: defaultMaxSteps,
		Builtins: map[string]Builtin{"putchar": putchar},
	}
	copy(m.mem[dataBase:], p.data)
	return m
}

func putchar(m *Machine) error {
	_, err := m.Stdout.Write([]byte{byte(m.x[10])})
	return err
}

const ctxCheckInterval = 1 << 14

// Call runs fn with integer arguments in a0..a7 until it returns, and
// reports a0.
func (m *Machine) Call(fn string, args ...uint32) (uint32, error) {
	return m.CallContext(context.Background(), fn, args...)
}

// CallContext is Call that also stops when ctx is done.
func (m *Machine) CallContext(ctx context.Context, fn string, args ...uint32) (uint32, error) {
	if len(args) > 8 {
		return 0, fmt.Errorf("call %s: %w", fn, ErrTooManyArgs)
	}
	addr, ok := m.prog.symbols[fn]
	if !ok || addr >= dataBase {
		return 0, fmt.Errorf("function '%s': %w", fn, ErrUndefinedSymbol)
	}
	m.x = [32]uint32{}
	for i, a := range args {
		m.x[10+i] = a
	}
	m.x[1] = exitAddr
	m.x[2] = stackTop
	m.pc = addr
	for m.pc != exitAddr {
		if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
			return 0, fmt.Errorf("%s: %w after %d steps", fn, ErrStepLimit, m.Steps)
		}
		if m.Steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("%s: %w after %d steps", fn, err, m.Steps)
			}
		}
		m.Steps++
		if err := m.step(); err != nil {
			return 0, err
		}
	}
	return m.x[10], nil
}

// Run calls entry with no arguments and returns its int result.
func (m *Machine) Run(entry string) (int32, error) {
	return m.RunContext(context.Background(), entry)
}

func (m *Machine) RunContext(ctx context.Context, entry string) (int32, error) {
	v, err := m.CallContext(ctx, entry)
	return int32(v), err
}

// Reg returns an integer register by ABI name.
func (m *Machine) Reg(name string) (uint32, error) {
	r, err := regNumber(name)
	if err != nil {
		return 0, err
	}
	if r >= 32 {
		return uint32(m.f[r-32]), nil
	}
	return m.x[r], nil
}

// Double reads a floating-point register as a double.
func (m *Machine) Double(name string) (float64, error) {
	r, err := regNumber(name)
	if err != nil || r < 32 {
		return 0, fmt.Errorf("'%s' is not a float register: %w", name, ErrSyntax)
	}
	return math.Float64frombits(m.f[r-32]), nil
}

// Float reads a floating-point register as a single.
func (m *Machine) Float(name string) (float32, error) {
	r, err := regNumber(name)
	if err != nil || r < 32 {
		return 0, fmt.Errorf("'%s' is not a float register: %w", name, ErrSyntax)
	}
	return math.Float32frombits(uint32(m.f[r-32])), nil
}

// Word reads the word stored at a symbol plus offset.
func (m *Machine) Word(sym string, offset uint32) (uint32, error) {
	a, ok := m.prog.symbols[sym]
	if !ok {
		return 0, fmt.Errorf("'%s': %w", sym, ErrUndefinedSymbol)
	}
	return m.load(a+offset, 4)
}

func (m *Machine) check(addr, n uint32) error {
	if addr < dataBase || uint64(addr)+uint64(n) > memSize {
		return fmt.Errorf("%w: 0x%08x", ErrMemory, addr)
	}
	return nil
}

func (m *Machine) load(addr, n uint32) (uint32, error) {
	if err := m.check(addr, n); err != nil {
		return 0, err
	}
	var v uint32
	for i := n; i > 0; i-- {
		v = v<<8 | uint32(m.mem[addr+i-1])
	}
	return v, nil
}

func (m *Machine) store(addr, n, v uint32) error {
	if err := m.check(addr, n); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		m.mem[addr+i] = byte(v >> (8 * i))
	}
	return nil
}

const boxMask = 0xffffffff00000000

func (m *Machine) setF32(r int, v float32) { m.f[r-32] = boxMask | uint64(math.Float32bits(v)) }

func (m *Machine) getF32(r int) float32 { return math.Float32frombits(uint32(m.f[r-32])) }

func (m *Machine) setF64(r int, v float64) { m.f[r-32] = math.Float64bits(v) }

func (m *Machine) getF64(r int) float64 { return math.Float64frombits(m.f[r-32]) }

func (m *Machine) setX(r int, v uint32) {
	if r != 0 {
		m.x[r] = v
	}
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// toInt32 converts with RISC-V saturation semantics.
func toInt32(v float64, rtz bool) uint32 {
	if !rtz {
		v = math.RoundToEven(v)
	}
	switch {
	case math.IsNaN(v) || v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return 1 << 31
	}
	return uint32(int32(v))
}

func toUint32(v float64, rtz bool) uint32 {
	if !rtz {
		v = math.RoundToEven(v)
	}
	switch {
	case math.IsNaN(v) || v >= math.MaxUint32:
		return math.MaxUint32
	case v <= 0:
		return 0
	}
	return uint32(v)
}

func div(a, b int32) uint32 {
	switch {
	case b == 0:
		return math.MaxUint32
	case a == math.MinInt32 && b == -1:
		return uint32(a)
	}
	return uint32(a / b)
}

func rem(a, b int32) uint32 {
	switch {
	case b == 0:
		return uint32(a)
	case a == math.MinInt32 && b == -1:
		return 0
	}
	return uint32(a % b)
}

func (m *Machine) step() error {
	if m.pc < textBase || m.pc >= textBase+uint32(len(m.prog.insts))*instrSize || m.pc%instrSize != 0 {
		return fmt.Errorf("%w: 0x%08x", ErrBadPC, m.pc)
	}
	in := &m.prog.insts[(m.pc-textBase)/instrSize]
	next := m.pc + instrSize
	x1, x2 := m.x[in.rs1&31], m.x[in.rs2&31]
	imm := uint32(in.imm)
	fail := func(err error) error { return fmt.Errorf("line %d: %s: %w", in.line, in.op, err) }

	switch in.op {
	case "add":
		m.setX(in.rd, x1+x2)
	case "sub":
		m.setX(in.rd, x1-x2)
	case "mul":
		m.setX(in.rd, x1*x2)
	case "mulh":
		m.setX(in.rd, uint32((int64(int32(x1))*int64(int32(x2)))>>32))
	case "mulhu":
		hi, _ := bits.Mul32(x1, x2)
		m.setX(in.rd, hi)
	case "div":
		m.setX(in.rd, div(int32(x1), int32(x2)))
	case "divu":
		if x2 == 0 {
			m.setX(in.rd, math.MaxUint32)
		} else {
			m.setX(in.rd, x1/x2)
		}
	case "rem":
		m.setX(in.rd, rem(int32(x1), int32(x2)))
	case "remu":
		if x2 == 0 {
			m.setX(in.rd, x1)
		} else {
			m.setX(in.rd, x1%x2)
		}
	case "and":
		m.setX(in.rd, x1&x2)
	case "or":
		m.setX(in.rd, x1|x2)
	case "xor":
		m.setX(in.rd, x1^x2)
	case "sll":
		m.setX(in.rd, x1<<(x2&31))
	case "srl":
		m.setX(in.rd, x1>>(x2&31))
	case "sra":
		m.setX(in.rd, uint32(int32(x1)>>(x2&31)))
	case "slt":
		m.setX(in.rd, b2u(int32(x1) < int32(x2)))
	case "sltu":
		m.setX(in.rd, b2u(x1 < x2))

	case "addi":
		m.setX(in.rd, x1+imm)
	case "andi":
		m.setX(in.rd, x1&imm)
	case "ori":
		m.setX(in.rd, x1|imm)
	case "xori":
		m.setX(in.rd, x1^imm)
	case "slti":
		m.setX(in.rd, b2u(int32(x1) < in.imm))
	case "sltiu":
		m.setX(in.rd, b2u(x1 < imm))
	case "slli":
		m.setX(in.rd, x1<<(imm&31))
	case "srli":
		m.setX(in.rd, x1>>(imm&31))
	case "srai":
		m.setX(in.rd, uint32(int32(x1)>>(imm&31)))
	case "lui":
		m.setX(in.rd, imm<<12)
	case "li":
		m.setX(in.rd, imm)

	case "mv":
		m.setX(in.rd, x1)
	case "neg":
		m.setX(in.rd, -x1)
	case "not":
		m.setX(in.rd, ^x1)
	case "seqz":
		m.setX(in.rd, b2u(x1 == 0))
	case "snez":
		m.setX(in.rd, b2u(x1 != 0))

	case "lw", "lh", "lhu", "lb", "lbu":
		n := map[string]uint32{"lw": 4, "lh": 2, "lhu": 2, "lb": 1, "lbu": 1}[in.op]
		v, err := m.load(x1+imm, n)
		if err != nil {
			return fail(err)
		}
		switch in.op {
		case "lh":
			v = uint32(int32(int16(v)))
		case "lb":
			v = uint32(int32(int8(v)))
		}
		m.setX(in.rd, v)
	case "sw", "sh", "sb":
		n := map[string]uint32{"sw": 4, "sh": 2, "sb": 1}[in.op]
		if err := m.store(x1+imm, n, x2); err != nil {
			return fail(err)
		}
	case "flw":
		v, err := m.load(x1+imm, 4)
		if err != nil {
			return fail(err)
		}
		m.f[in.rd-32] = boxMask | uint64(v)
	case "fld":
		lo, err := m.load(x1+imm, 4)
		if err != nil {
			return fail(err)
		}
		hi, err := m.load(x1+imm+4, 4)
		if err != nil {
			return fail(err)
		}
		m.f[in.rd-32] = uint64(hi)<<32 | uint64(lo)
	case "fsw":
		if err := m.store(x1+imm, 4, uint32(m.f[in.rs2-32])); err != nil {
			return fail(err)
		}
	case "fsd":
		v := m.f[in.rs2-32]
		if err := m.store(x1+imm, 4, uint32(v)); err != nil {
			return fail(err)
		}
		if err := m.store(x1+imm+4, 4, uint32(v>>32)); err != nil {
			return fail(err)
		}

	case "fadd.s":
		m.setF32(in.rd, float32(m.getF32(in.rs1)+m.getF32(in.rs2)))
	case "fsub.s":
		m.setF32(in.rd, float32(m.getF32(in.rs1)-m.getF32(in.rs2)))
	case "fmul.s":
		m.setF32(in.rd, float32(m.getF32(in.rs1)*m.getF32(in.rs2)))
	case "fdiv.s":
		m.setF32(in.rd, float32(m.getF32(in.rs1)/m.getF32(in.rs2)))
	case "fadd.d":
		m.setF64(in.rd, float64(m.getF64(in.rs1)+m.getF64(in.rs2)))
	case "fsub.d":
		m.setF64(in.rd, float64(m.getF64(in.rs1)-m.getF64(in.rs2)))
	case "fmul.d":
		m.setF64(in.rd, float64(m.getF64(in.rs1)*m.getF64(in.rs2)))
	case "fdiv.d":
		m.setF64(in.rd, float64(m.getF64(in.rs1)/m.getF64(in.rs2)))
	case "feq.s":
		m.setX(in.rd, b2u(m.getF32(in.rs1) == m.getF32(in.rs2)))
	case "flt.s":
		m.setX(in.rd, b2u(m.getF32(in.rs1) < m.getF32(in.rs2)))
	case "fle.s":
		m.setX(in.rd, b2u(m.getF32(in.rs1) <= m.getF32(in.rs2)))
	case "feq.d":
		m.setX(in.rd, b2u(m.getF64(in.rs1) == m.getF64(in.rs2)))
	case "flt.d":
		m.setX(in.rd, b2u(m.getF64(in.rs1) < m.getF64(in.rs2)))
	case "fle.d":
		m.setX(in.rd, b2u(m.getF64(in.rs1) <= m.getF64(in.rs2)))
	case "fmv.s", "fmv.d":
		m.f[in.rd-32] = m.f[in.rs1-32]
	case "fneg.s":
		m.setF32(in.rd, -m.getF32(in.rs1))
	case "fneg.d":
		m.setF64(in.rd, -m.getF64(in.rs1))
	case "fmv.x.w":
		m.setX(in.rd, uint32(m.f[in.rs1-32]))
	case "fmv.w.x":
		m.f[in.rd-32] = boxMask | uint64(x1)
	case "fcvt.s.w":
		m.setF32(in.rd, float32(int32(x1)))
	case "fcvt.s.wu":
		m.setF32(in.rd, float32(x1))
	case "fcvt.d.w":
		m.setF64(in.rd, float64(int32(x1)))
	case "fcvt.d.wu":
		m.setF64(in.rd, float64(x1))
	case "fcvt.w.s":
		m.setX(in.rd, toInt32(float64(m.getF32(in.rs1)), in.rtz))
	case "fcvt.wu.s":
		m.setX(in.rd, toUint32(float64(m.getF32(in.rs1)), in.rtz))
	case "fcvt.w.d":
		m.setX(in.rd, toInt32(m.getF64(in.rs1), in.rtz))
	case "fcvt.wu.d":
		m.setX(in.rd, toUint32(m.getF64(in.rs1), in.rtz))
	case "fcvt.s.d":
		m.setF32(in.rd, float32(m.getF64(in.rs1)))
	case "fcvt.d.s":
		m.setF64(in.rd, float64(m.getF32(in.rs1)))

	case "beq", "bne", "blt", "bge", "bltu", "bgeu":
		var taken bool
		switch in.op {
		case "beq":
			taken = x1 == x2
		case "bne":
			taken = x1 != x2
		case "blt":
			taken = int32(x1) < int32(x2)
		case "bge":
			taken = int32(x1) >= int32(x2)
		case "bltu":
			taken = x1 < x2
		case "bgeu":
			taken = x1 >= x2
		}
		if taken {
			next = in.target
		}
	case "beqz":
		if x1 == 0 {
			next = in.target
		}
	case "bnez":
		if x1 != 0 {
			next = in.target
		}
	case "j":
		next = in.target
	case "call", "tail":
		if in.target != 0 {
			if in.op == "call" {
				m.x[1] = next
			}
			next = in.target
			break
		}
		b, ok := m.Builtins[in.sym]
		if !ok {
			return fail(fmt.Errorf("'%s': %w", in.sym, ErrUndefinedSymbol))
		}
		if err := b(m); err != nil {
			return fail(err)
		}
		if in.op == "tail" {
			next = m.x[1]
		}
	case "ret":
		next = m.x[1]
	case "nop":
	default:
		return fail(ErrUnknownOp)
	}
	m.pc = next
	return nil
}
