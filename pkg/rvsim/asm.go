// Package rvsim loads the RV32 assembly the compiler emits and interprets
// it. Only the instructions and directives the code generator produces are
// understood; instructions are kept symbolic rather than encoded.
package rvsim

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	textBase  = 0x00010000
	dataBase  = 0x00100000
	memSize   = 0x00800000
	stackTop  = memSize - 16
	exitAddr  = 0xfffffff0
	instrSize = 4
)

var (
	ErrSyntax          = errors.New("syntax error")
	ErrUndefinedSymbol = errors.New("undefined symbol")
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrUnknownOp       = errors.New("unknown instruction")
)

// Program is an assembled translation unit. It is immutable once loaded and
// may be shared by any number of machines.
type Program struct {
	insts   []inst
	symbols map[string]uint32
	globals map[string]bool
	data    []byte
	hash    uint64
}

type operandKind int

const (
	opReg operandKind = iota
	opImm
	opMem
	opSym
)

// inst is one decoded instruction. Registers are numbered 0-31 for the
// integer file and 32-63 for the floating-point file.
type inst struct {
	op     string
	rd     int
	rs1    int
	rs2    int
	imm    int32
	target uint32
	sym    string
	rtz    bool
	line   int
}

type section int

const (
	secText section = iota
	secData
)

type sourceLine struct {
	num    int
	label  string
	mnem   string
	args   []string
	sec    section
	offset uint32
}

var (
	cacheMu sync.Mutex
	cache   = make(map[uint64]*Program)
)

// LoadCached is Load memoized on the xxhash of the source text.
func LoadCached(src string) (*Program, error) {
	h := xxhash.Sum64String(src)
	cacheMu.Lock()
	p, ok := cache[h]
	cacheMu.Unlock()
	if ok {
		return p, nil
	}
	p, err := Load(src)
	if err != nil {
		return nil, err
	}
	cacheMu.Lock()
	cache[h] = p
	cacheMu.Unlock()
	return p, nil
}

// Load assembles src in two passes: the first lays out labels, the second
// decodes instructions and fills the data image.
func Load(src string) (*Program, error) {
	p := &Program{symbols: make(map[string]uint32), globals: make(map[string]bool), hash: xxhash.Sum64String(src)}

	lines, err := scan(src)
	if err != nil {
		return nil, err
	}

	var pc, dp uint32 = textBase, dataBase
	for i := range lines {
		l := &lines[i]
		if l.mnem == ".align" && l.sec == secData {
			n, err := parseInt(l.args, 0)
			if err != nil {
				return nil, lineErr(l.num, err)
			}
			dp = alignUp(dp, 1<<uint(n))
		}
		if l.label != "" {
			if _, dup := p.symbols[l.label]; dup {
				return nil, lineErr(l.num, fmt.Errorf("'%s': %w", l.label, ErrDuplicateSymbol))
			}
			if l.sec == secText {
				p.symbols[l.label] = pc
			} else {
				p.symbols[l.label] = dp
			}
		}
		if l.mnem == "" {
			continue
		}
		if l.sec == secText && !strings.HasPrefix(l.mnem, ".") {
			l.offset = pc
			pc += instrSize
			continue
		}
		l.offset = dp
		size, err := dataSize(l)
		if err != nil {
			return nil, lineErr(l.num, err)
		}
		dp += size
	}

	p.data = make([]byte, dp-dataBase)
	for i := range lines {
		l := &lines[i]
		if l.mnem == "" || l.mnem == ".align" {
			continue
		}
		if l.mnem == ".globl" {
			if len(l.args) == 1 {
				p.globals[l.args[0]] = true
			}
			continue
		}
		if l.sec == secText && !strings.HasPrefix(l.mnem, ".") {
			in, err := p.decode(l)
			if err != nil {
				return nil, lineErr(l.num, err)
			}
			p.insts = append(p.insts, in)
			continue
		}
		if err := p.emitData(l); err != nil {
			return nil, lineErr(l.num, err)
		}
	}
	return p, nil
}

func lineErr(line int, err error) error { return fmt.Errorf("line %d: %w", line, err) }

func alignUp(v, a uint32) uint32 { return (v + a - 1) &^ (a - 1) }

// Hash is the xxhash of the source the program was loaded from.
func (p *Program) Hash() uint64 { return p.hash }

// Symbol returns the address of a label.
func (p *Program) Symbol(name string) (uint32, bool) {
	a, ok := p.symbols[name]
	return a, ok
}

// Functions lists the global labels that sit in the text section.
func (p *Program) Functions() []string {
	var out []string
	for name := range p.globals {
		if a, ok := p.symbols[name]; ok && a < dataBase {
			out = append(out, name)
		}
	}
	return out
}

func scan(src string) ([]sourceLine, error) {
	var lines []sourceLine
	sec := secText
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for num := 1; sc.Scan(); num++ {
		text := strings.TrimSpace(stripComment(sc.Text()))
		if text == "" {
			continue
		}
		var l sourceLine
		l.num = num
		if i := strings.IndexByte(text, ':'); i > 0 && !strings.ContainsAny(text[:i], " \t\"") {
			l.label = text[:i]
			text = strings.TrimSpace(text[i+1:])
		}
		if text != "" {
			mnem, rest := text, ""
			if sp := strings.IndexAny(text, " \t"); sp >= 0 {
				mnem, rest = text[:sp], text[sp+1:]
			}
			l.mnem = mnem
			l.args = splitArgs(strings.TrimSpace(rest))
		}
		switch l.mnem {
		case ".text":
			sec = secText
			l.mnem = ""
		case ".data":
			sec = secData
			l.mnem = ""
		case ".section":
			sec = secData
			if len(l.args) > 0 && strings.HasPrefix(l.args[0], ".text") {
				sec = secText
			}
			l.mnem = ""
		}
		l.sec = sec
		lines = append(lines, l)
	}
	return lines, sc.Err()
}

// stripComment drops a '#' comment that is not inside a string.
func stripComment(s string) string {
	inStr := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inStr {
				i++
			}
		case '"':
			inStr = !inStr
		case '#':
			if !inStr {
				return s[:i]
			}
		}
	}
	return s
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	if s[0] == '"' {
		return []string{s}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt(args []string, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing operand: %w", ErrSyntax)
	}
	v, err := strconv.ParseInt(args[i], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number '%s': %w", args[i], ErrSyntax)
	}
	return v, nil
}

func dataSize(l *sourceLine) (uint32, error) {
	switch l.mnem {
	case ".globl", ".align", ".type", ".size":
		return 0, nil
	case ".word":
		return uint32(4 * len(l.args)), nil
	case ".byte":
		return uint32(len(l.args)), nil
	case ".zero", ".space":
		n, err := parseInt(l.args, 0)
		return uint32(n), err
	case ".string", ".asciz", ".ascii":
		s, err := unquote(l.args)
		if err != nil {
			return 0, err
		}
		if l.mnem == ".ascii" {
			return uint32(len(s)), nil
		}
		return uint32(len(s) + 1), nil
	}
	return 0, fmt.Errorf("directive '%s': %w", l.mnem, ErrUnknownOp)
}

func unquote(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one string: %w", ErrSyntax)
	}
	s, err := strconv.Unquote(args[0])
	if err != nil {
		return "", fmt.Errorf("bad string %s: %w", args[0], ErrSyntax)
	}
	return s, nil
}

func (p *Program) emitData(l *sourceLine) error {
	at := l.offset - dataBase
	switch l.mnem {
	case ".word":
		for i, a := range l.args {
			v, err := p.value(a)
			if err != nil {
				return err
			}
			putWord(p.data[at+uint32(4*i):], uint32(v))
		}
	case ".byte":
		for i := range l.args {
			v, err := parseInt(l.args, i)
			if err != nil {
				return err
			}
			p.data[at+uint32(i)] = byte(v)
		}
	case ".string", ".asciz", ".ascii":
		s, _ := unquote(l.args)
		copy(p.data[at:], s)
	}
	return nil
}

// value resolves a number or a label.
func (p *Program) value(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	if a, ok := p.symbols[s]; ok {
		return int64(a), nil
	}
	return 0, fmt.Errorf("'%s': %w", s, ErrUndefinedSymbol)
}

// immediate resolves an immediate operand, including %hi/%lo relocations.
func (p *Program) immediate(s string) (int32, error) {
	switch {
	case strings.HasPrefix(s, "%hi(") && strings.HasSuffix(s, ")"):
		a, err := p.value(s[4 : len(s)-1])
		return int32((uint32(a) + 0x800) >> 12), err
	case strings.HasPrefix(s, "%lo(") && strings.HasSuffix(s, ")"):
		a, err := p.value(s[4 : len(s)-1])
		return int32(uint32(a)<<20) >> 20, err
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad immediate '%s': %w", s, ErrSyntax)
	}
	return int32(v), nil
}

// memOperand splits "imm(reg)", where imm may itself be "%lo(sym)".
func (p *Program) memOperand(s string) (int32, int, error) {
	open := strings.LastIndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("bad memory operand '%s': %w", s, ErrSyntax)
	}
	r, err := regNumber(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}
	if open == 0 {
		return 0, r, nil
	}
	imm, err := p.immediate(s[:open])
	return imm, r, err
}

func (p *Program) decode(l *sourceLine) (inst, error) {
	in := inst{op: l.mnem, line: l.num}
	args := l.args
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d operands, got %d: %w", l.mnem, n, len(args), ErrSyntax)
		}
		return nil
	}
	regs := func(dst ...*int) error {
		for i, d := range dst {
			r, err := regNumber(args[i])
			if err != nil {
				return err
			}
			*d = r
		}
		return nil
	}
	label := func(s string) (uint32, error) {
		a, ok := p.symbols[s]
		if !ok || a >= dataBase {
			return 0, fmt.Errorf("branch target '%s': %w", s, ErrUndefinedSymbol)
		}
		return a, nil
	}

	var err error
	switch form, ok := forms[l.mnem]; {
	case !ok:
		return in, fmt.Errorf("'%s': %w", l.mnem, ErrUnknownOp)
	case form == formR:
		if err = need(3); err == nil {
			err = regs(&in.rd, &in.rs1, &in.rs2)
		}
	case form == formI:
		if err = need(3); err == nil {
			if err = regs(&in.rd, &in.rs1); err == nil {
				in.imm, err = p.immediate(args[2])
			}
		}
	case form == formU:
		if err = need(2); err == nil {
			if err = regs(&in.rd); err == nil {
				in.imm, err = p.immediate(args[1])
			}
		}
	case form == formRR:
		if len(args) == 3 && args[2] == "rtz" {
			in.rtz = true
			args = args[:2]
		}
		if err = need(2); err == nil {
			err = regs(&in.rd, &in.rs1)
		}
	case form == formLoad:
		if err = need(2); err == nil {
			if err = regs(&in.rd); err == nil {
				in.imm, in.rs1, err = p.memOperand(args[1])
			}
		}
	case form == formStore:
		if err = need(2); err == nil {
			if err = regs(&in.rs2); err == nil {
				in.imm, in.rs1, err = p.memOperand(args[1])
			}
		}
	case form == formBranch2:
		if err = need(3); err == nil {
			if err = regs(&in.rs1, &in.rs2); err == nil {
				in.target, err = label(args[2])
			}
		}
	case form == formBranch1:
		if err = need(2); err == nil {
			if err = regs(&in.rs1); err == nil {
				in.target, err = label(args[1])
			}
		}
	case form == formJump:
		if err = need(1); err == nil {
			in.target, err = label(args[0])
		}
	case form == formCall:
		if err = need(1); err == nil {
			in.sym = args[0]
			if a, ok := p.symbols[in.sym]; ok && a < dataBase {
				in.target = a
			}
		}
	case form == formNone:
		err = need(0)
	}
	return in, err
}

type form int

const (
	formNone form = iota
	formR
	formI
	formU
	formRR
	formLoad
	formStore
	formBranch2
	formBranch1
	formJump
	formCall
)

var forms = map[string]form{
	"add": formR, "sub": formR, "mul": formR, "mulh": formR, "mulhu": formR,
	"div": formR, "divu": formR, "rem": formR, "remu": formR,
	"and": formR, "or": formR, "xor": formR, "sll": formR, "srl": formR, "sra": formR,
	"slt": formR, "sltu": formR,
	"fadd.s": formR, "fsub.s": formR, "fmul.s": formR, "fdiv.s": formR,
	"fadd.d": formR, "fsub.d": formR, "fmul.d": formR, "fdiv.d": formR,
	"feq.s": formR, "flt.s": formR, "fle.s": formR, "feq.d": formR, "flt.d": formR, "fle.d": formR,

	"addi": formI, "andi": formI, "ori": formI, "xori": formI, "slti": formI, "sltiu": formI,
	"slli": formI, "srli": formI, "srai": formI,

	"lui": formU, "li": formU,

	"mv": formRR, "neg": formRR, "not": formRR, "seqz": formRR, "snez": formRR,
	"fmv.s": formRR, "fmv.d": formRR, "fneg.s": formRR, "fneg.d": formRR,
	"fcvt.s.w": formRR, "fcvt.s.wu": formRR, "fcvt.d.w": formRR, "fcvt.d.wu": formRR,
	"fcvt.w.s": formRR, "fcvt.wu.s": formRR, "fcvt.w.d": formRR, "fcvt.wu.d": formRR,
	"fcvt.s.d": formRR, "fcvt.d.s": formRR, "fmv.x.w": formRR, "fmv.w.x": formRR,

	"lw": formLoad, "lh": formLoad, "lhu": formLoad, "lb": formLoad, "lbu": formLoad,
	"flw": formLoad, "fld": formLoad,
	"sw": formStore, "sh": formStore, "sb": formStore, "fsw": formStore, "fsd": formStore,

	"beq": formBranch2, "bne": formBranch2, "blt": formBranch2, "bge": formBranch2,
	"bltu": formBranch2, "bgeu": formBranch2,
	"beqz": formBranch1, "bnez": formBranch1,
	"j": formJump,
	"call": formCall, "tail": formCall,
	"ret": formNone, "nop": formNone,
}

var xregNames = map[string]int{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4, "t0": 5, "t1": 6, "t2": 7,
	"s0": 8, "fp": 8, "s1": 9, "t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

var fregNames = map[string]int{"fs0": 8, "fs1": 9}

func init() {
	for i := 0; i < 8; i++ {
		xregNames[fmt.Sprintf("a%d", i)] = 10 + i
		fregNames[fmt.Sprintf("ft%d", i)] = i
		fregNames[fmt.Sprintf("fa%d", i)] = 10 + i
	}
	for i := 2; i <= 11; i++ {
		xregNames[fmt.Sprintf("s%d", i)] = 16 + i
		fregNames[fmt.Sprintf("fs%d", i)] = 16 + i
	}
	for i := 8; i <= 11; i++ {
		fregNames[fmt.Sprintf("ft%d", i)] = 20 + i
	}
}

// regNumber maps an ABI register name to 0-31 (integer) or 32-63 (float).
func regNumber(name string) (int, error) {
	if r, ok := xregNames[name]; ok {
		return r, nil
	}
	if r, ok := fregNames[name]; ok {
		return 32 + r, nil
	}
	return 0, fmt.Errorf("unknown register '%s': %w", name, ErrSyntax)
}

func putWord(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
