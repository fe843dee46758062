package rvsim

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func load(t *testing.T, src string) *Program {
	t.Helper()
	p, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

const sumSource = `
.text
.globl sum
sum:            # a0 = 1 + 2 + ... + a0
	li a1,0
.loop:
	beqz a0,.done
	add a1,a1,a0
	addi a0,a0,-1
	j .loop
.done:
	mv a0,a1
	ret
`

func TestCallLoop(t *testing.T) {
	m := NewMachine(load(t, sumSource))
	got, err := m.Call("sum", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got != 55 {
		t.Errorf("sum(10) = %d, want 55", got)
	}
}

func TestDataAndRelocations(t *testing.T) {
	src := `
.data
.align 0
.globl c
c:
.byte 7
.align 2
.globl w
w:
.word 1,-2
.globl p
p:
.word w
.section .rodata
.LC0:
.string "hi\n"
.text
.globl main
main:
	lui a1,%hi(w)
	lw a2,%lo(w)(a1)
	lui a3,%hi(c)
	lbu a4,%lo(c)(a3)
	add a0,a2,a4
	lui a5,%hi(.LC0)
	addi a5,a5,%lo(.LC0)
	lbu a6,2(a5)
	add a0,a0,a6
	ret
`
	p := load(t, src)
	w, _ := p.Symbol("w")
	if w%4 != 0 {
		t.Errorf("w at %#x is not word aligned", w)
	}
	m := NewMachine(p)
	got, err := m.Run("main")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1+7+'\n' {
		t.Errorf("main() = %d, want %d", got, 1+7+'\n')
	}
	if v, _ := m.Word("w", 4); int32(v) != -2 {
		t.Errorf("w[1] = %d, want -2", int32(v))
	}
	if v, _ := m.Word("p", 0); v != w {
		t.Errorf("p = %#x, want &w = %#x", v, w)
	}
	if diff := cmp.Diff([]string{"main"}, p.Functions()); diff != "" {
		t.Errorf("Functions() mismatch (-want +got):\n%s", diff)
	}
}

func TestPutchar(t *testing.T) {
	src := `
.text
.globl main
main:
	addi sp,sp,-16
	sw ra,12(sp)
	li a0,79
	call putchar
	li a0,75
	call putchar
	lw ra,12(sp)
	addi sp,sp,16
	li a0,0
	ret
`
	var out bytes.Buffer
	m := NewMachine(load(t, src))
	m.Stdout = &out
	if _, err := m.Run("main"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "OK" {
		t.Errorf("output = %q, want %q", out.String(), "OK")
	}
}

func TestDivisionSemantics(t *testing.T) {
	tests := []struct {
		op   string
		a, b int32
		want int32
	}{
		{"div", 7, 2, 3},
		{"div", -7, 2, -3},
		{"div", 7, 0, -1},
		{"div", -2147483648, -1, -2147483648},
		{"rem", -7, 2, -1},
		{"rem", 7, 0, 7},
		{"rem", -2147483648, -1, 0},
		{"divu", -1, 2, 2147483647},
		{"remu", 7, 0, 7},
	}
	for _, tt := range tests {
		src := ".text\n.globl f\nf:\n\t" + tt.op + " a0,a0,a1\n\tret\n"
		m := NewMachine(load(t, src))
		got, err := m.Call("f", uint32(tt.a), uint32(tt.b))
		if err != nil {
			t.Fatalf("%s: %v", tt.op, err)
		}
		if int32(got) != tt.want {
			t.Errorf("%s %d,%d = %d, want %d", tt.op, tt.a, tt.b, int32(got), tt.want)
		}
	}
}

func TestFloatingPoint(t *testing.T) {
	src := `
.text
.globl main
main:
	li a1,7
	fcvt.d.w fa1,a1
	li a2,2
	fcvt.d.w fa2,a2
	fdiv.d fa1,fa1,fa2
	fcvt.w.d a0,fa1,rtz
	flt.d a3,fa2,fa1
	add a0,a0,a3
	fmv.d fa0,fa1
	ret
`
	m := NewMachine(load(t, src))
	got, err := m.Run("main")
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Errorf("main() = %d, want 4", got)
	}
	if d, _ := m.Double("fa0"); d != 3.5 {
		t.Errorf("fa0 = %v, want 3.5", d)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"undefined branch target", ".text\nf:\n\tj nowhere\n", ErrUndefinedSymbol},
		{"duplicate label", ".text\nf:\nf:\n\tret\n", ErrDuplicateSymbol},
		{"unknown instruction", ".text\nf:\n\tfrobnicate a0\n", ErrUnknownOp},
		{"bad register", ".text\nf:\n\tmv q9,a0\n", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.src); !errors.Is(err, tt.want) {
				t.Errorf("Load error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	loop := NewMachine(load(t, ".text\n.globl f\nf:\n\tj f\n"))
	loop.MaxSteps = 1000
	if _, err := loop.Run("f"); !errors.Is(err, ErrStepLimit) {
		t.Errorf("infinite loop error = %v, want ErrStepLimit", err)
	}

	ext := NewMachine(load(t, ".text\n.globl f\nf:\n\tcall missing\n\tret\n"))
	if _, err := ext.Run("f"); !errors.Is(err, ErrUndefinedSymbol) {
		t.Errorf("call to unknown function error = %v, want ErrUndefinedSymbol", err)
	}

	wild := NewMachine(load(t, ".text\n.globl f\nf:\n\tli a1,-64\n\tlw a0,0(a1)\n\tret\n"))
	if _, err := wild.Run("f"); !errors.Is(err, ErrMemory) {
		t.Errorf("wild load error = %v, want ErrMemory", err)
	}

	if _, err := NewMachine(load(t, sumSource)).Call("nope"); !errors.Is(err, ErrUndefinedSymbol) {
		t.Errorf("Call(nope) error = %v, want ErrUndefinedSymbol", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spin := NewMachine(load(t, ".text\n.globl f\nf:\n\tj f\n"))
	spin.MaxSteps = 0
	if _, err := spin.RunContext(ctx, "f"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run error = %v, want context.Canceled", err)
	}
}

func TestLoadCached(t *testing.T) {
	a, err := LoadCached(sumSource)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := LoadCached(sumSource)
	if a != b {
		t.Error("LoadCached returned a fresh program for identical source")
	}
	if a.Hash() == 0 {
		t.Error("Hash() = 0")
	}
	fns := a.Functions()
	sort.Strings(fns)
	if diff := cmp.Diff([]string{"sum"}, fns); diff != "" {
		t.Errorf("Functions() mismatch (-want +got):\n%s", diff)
	}
}
