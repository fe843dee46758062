package codegen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/lexer"
	"github.com/energy-in-joles/C-Compiler/pkg/parser"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
	"github.com/google/go-cmp/cmp"
)

// generate compiles src and returns the assembly together with any
// diagnostics printed on the way.
func generate(t *testing.T, src string, flags ...string) (asm, diags string, err error) {
	t.Helper()
	cfg := config.NewConfig()
	for _, f := range flags {
		if !cfg.ApplyFlag(f) {
			t.Fatalf("unknown flag %s", f)
		}
	}
	var out bytes.Buffer
	prev := util.SetOutput(&out)
	defer util.SetOutput(prev)
	util.SetColor(false)

	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	root, err := parser.ParseAST(toks, cfg)
	if err != nil {
		t.Fatalf("ParseAST: %v", err)
	}
	buf, err := Generate(root, cfg)
	if err != nil {
		return "", out.String(), err
	}
	return buf.String(), out.String(), nil
}

func lines(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") }

func TestGenerateReturnConstant(t *testing.T) {
	asm, _, err := generate(t, "int f(void) { return 5; }")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		".text",
		".globl f",
		"f:",
		"addi sp,sp,-32",
		"sw ra,24(sp)",
		"sw s0,20(sp)",
		"addi s0,sp,32",
		"li a1,5",
		"mv a0,a1",
		"j .f_func_end",
		".f_func_end:",
		"lw ra,24(sp)",
		"lw s0,20(sp)",
		"addi sp,sp,32",
		"ret",
	}
	if diff := cmp.Diff(want, lines(asm)); diff != "" {
		t.Errorf("assembly mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateParameters(t *testing.T) {
	asm, _, err := generate(t, "int add(int a, int b) { return a + b; }")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		".text",
		".globl add",
		"add:",
		"addi sp,sp,-32",
		"sw ra,24(sp)",
		"sw s0,20(sp)",
		"addi s0,sp,32",
		"sw a0,-16(s0)",
		"sw a1,-20(s0)",
		"lw a1,-16(s0)",
		"lw a2,-20(s0)",
		"add a1,a1,a2",
		"mv a0,a1",
		"j .add_func_end",
		".add_func_end:",
		"lw ra,24(sp)",
		"lw s0,20(sp)",
		"addi sp,sp,32",
		"ret",
	}
	if diff := cmp.Diff(want, lines(asm)); diff != "" {
		t.Errorf("assembly mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateGlobals(t *testing.T) {
	src := `
double d = 1.5;
char c = 'A';
int a[3] = {1, 2};
char s[] = "hi";
int *p = a;
unsigned u;
`
	asm, _, err := generate(t, src)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		".data", ".align 3", ".globl d", "d:", ".word 0", ".word 1073217536",
		".data", ".align 0", ".globl c", "c:", ".byte 65",
		".data", ".align 2", ".globl a", "a:", ".word 1", ".word 2", ".zero 4",
		".data", ".align 0", ".globl s", "s:", `.string "hi"`,
		".data", ".align 2", ".globl p", "p:", ".word a",
		".data", ".align 2", ".globl u", "u:", ".zero 4",
	}
	if diff := cmp.Diff(want, lines(asm)); diff != "" {
		t.Errorf("assembly mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateLiteralPool(t *testing.T) {
	asm, _, err := generate(t, `double f(void) { return 2.5; } char *g(void) { return "a\"b"; }`)
	if err != nil {
		t.Fatal(err)
	}
	got := lines(asm)
	want := []string{
		".section .rodata",
		".align 3",
		".LC0:",
		".word 0",
		".word 1074003968",
		".LC1:",
		`.string "a\"b"`,
	}
	if diff := cmp.Diff(want, got[len(got)-len(want):]); diff != "" {
		t.Errorf("literal pool mismatch (-want +got):\n%s", diff)
	}
	for _, l := range []string{"lui a1,%hi(.LC0)", "fld fa1,%lo(.LC0)(a1)", "fmv.d fa0,fa1", "addi a1,a1,%lo(.LC1)"} {
		if !strings.Contains(asm, l+"\n") {
			t.Errorf("missing %q in\n%s", l, asm)
		}
	}
}

func TestGenerateLargeFrame(t *testing.T) {
	asm, _, err := generate(t, "int f(void) { int big[600]; big[599] = 1; return big[599]; }")
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []string{"li t0,4096", "sub sp,sp,t0", "add t0,sp,t0", "sw ra,-8(t0)", "sw s0,-12(t0)", "mv s0,t0",
		"li a1,-2412", "add a1,a1,s0",
		"lw ra,-8(s0)", "mv t0,s0", "lw s0,-12(t0)", "mv sp,t0"} {
		if !strings.Contains(asm, "\n"+l+"\n") {
			t.Errorf("missing %q in\n%s", l, asm)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undeclared", "int f(void) { return x; }", "'x' undeclared"},
		{"value from void", "void f(void) { return 1; }", "'return' with a value"},
		{"redeclared local", "int f(void) { int x; int x; return 0; }", "already declared"},
		{"break outside loop", "int f(void) { break; }", "break statement not within loop or switch"},
		{"continue in switch", "int f(int a) { switch (a) { case 1: continue; } return 0; }", "continue statement not within a loop"},
		{"too many arguments", "int f(int a) { return a; } int g(void) { return f(1, 2); }", "too many arguments to function 'f'"},
		{"too few arguments", "int f(int a, int b) { return a; } int g(void) { return f(1); }", "too few arguments to function 'f'"},
		{"duplicate case", "int f(int a) { switch (a) { case 1: case 1: break; } return 0; }", "duplicate case value 1"},
		{"non-constant case", "int f(int a) { switch (a) { case a: break; } return 0; }", "case label does not reduce"},
		{"float switch", "int f(double a) { switch (a) { default: break; } return 0; }", "switch quantity not an integer"},
		{"implicit conversion off", "int f(double d) { int x = d; return x; }", "type mismatch"},
		{"string too long", `char s[2] = "hello";`, "initializer-string for array 's' is too long"},
		{"excess elements", "int a[2] = {1, 2, 3};", "excess elements in array initializer"},
		{"enum tag redeclared", "enum e { A }; enum e { B };", "redeclaration of 'enum e'"},
		{"enumerator redeclared", "enum { A }; int f(void) { int A; return 0; }", "redeclared as different kind of symbol"},
		{"assign to array", "int f(void) { int a[2]; int b[2]; a = b; return 0; }", "assignment to expression with array type"},
		{"assign to enumerator", "enum { A }; int f(void) { A = 2; return 0; }", "'A' is an enumerator"},
		{"non-constant global", "int y; int x = y;", "not a compile-time constant"},
		{"void variable", "void v;", "variable 'v' declared void"},
		{"conflicting prototype", "int f(int a); double f(int a) { return 1.0; }", "conflicting types for 'f'"},
		{"redefined function", "int f(void) { return 0; } int f(void) { return 1; }", "already declared"},
		{"float modulo", "double f(double a) { return a % 2.0; }", "invalid operands to binary"},
		{"pointer plus pointer", "int f(int *p, int *q) { return p + q; }", "invalid operands to binary"},
		{"implicit decl disabled", "int f(void) { return g(); }", "implicit declaration of function 'g'"},
		{"int result into pointer", "int f(void) { return 1; } int g(void) { int *p = f(); return 0; }", "cannot convert 'int' to 'int*'"},
		{"pointer result into int", `char *g(void) { return "a"; } int f(void) { int x = g(); return x; }`, "cannot convert 'char*' to 'int'"},
		{"int variable into pointer", "int f(void) { int x = 3; double *p = x; return 0; }", "cannot convert 'int' to 'double*'"},
		{"pointer depth", "int f(int **pp) { int *p = pp; return 0; }", "cannot convert 'int**' to 'int*'"},
		{"nonzero constant pointer", "int f(void) { int *p = 4; return 0; }", "initialized from integer without a cast"},
		{"pointer return mismatch", "int *f(int x) { return x; }", "cannot convert 'int' to 'int*'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flags []string
			if tt.name == "implicit decl disabled" {
				flags = append(flags, "-Fno-implicit-decl")
			}
			_, _, err := generate(t, tt.src, flags...)
			if err == nil {
				t.Fatalf("Generate succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestGenerateWarnings(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		flags []string
		want  string
	}{
		{"missing return", "int f(int a) { if (a) return 1; }", nil, "control reaches end of non-void function 'f' [-Wmissing-return]"},
		{"unreachable", "int f(void) { return 1; return 2; }", nil, "unreachable code [-Wunreachable-code]"},
		{"implicit decl", "int f(void) { return g(1); }", nil, "implicit declaration of function 'g' [-Wimplicit-decl]"},
		{"implicit conversion", "int f(double d) { return d; }", []string{"-Fimplicit-conversion"}, "implicit conversion from 'double' to 'int'"},
		{"shadow", "int x; int f(void) { int x = 1; return x; }", []string{"-Wshadow"}, "declaration of 'x' shadows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags, err := generate(t, tt.src, tt.flags...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(diags, tt.want) {
				t.Errorf("diagnostics = %q, want %q", diags, tt.want)
			}
		})
	}

	_, diags, err := generate(t, "int f(void) { return 1; return 2; }", "-Wno-unreachable-code")
	if err != nil {
		t.Fatal(err)
	}
	if diags != "" {
		t.Errorf("disabled warning still printed: %q", diags)
	}
}

func TestMainFallsOffEnd(t *testing.T) {
	asm, diags, err := generate(t, "int main(void) { int x = 1; }")
	if err != nil {
		t.Fatal(err)
	}
	if diags != "" {
		t.Errorf("unexpected diagnostics %q", diags)
	}
	if !strings.Contains(asm, "li a0,0\n.main_func_end:") {
		t.Errorf("main does not return 0 by default:\n%s", asm)
	}
}

func TestSelectBackend(t *testing.T) {
	cfg := config.NewConfig()
	b, err := SelectBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "rv32" {
		t.Errorf("Name() = %q, want rv32", b.Name())
	}
	cfg.TargetArch = "x86_64"
	if _, err := SelectBackend(cfg); err == nil {
		t.Error("SelectBackend accepted x86_64")
	}
}
