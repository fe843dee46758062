package checker

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

func check(t *testing.T, src string, flags ...string) (string, error) {
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
	err = Check(root, cfg)
	return out.String(), err
}

// warnings extracts the bracketed message of every warning line.
func warnings(diags string) []string {
	var msgs []string
	for _, l := range strings.Split(diags, "\n") {
		if i := strings.Index(l, "warning: "); i >= 0 {
			msgs = append(msgs, l[i+len("warning: "):])
		}
	}
	return msgs
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"break outside loop", "int f(void) { break; return 0; }", "break statement not within loop or switch"},
		{"continue in switch", "int f(int a) { switch (a) { case 1: continue; } return 0; }", "continue statement not within a loop"},
		{"duplicate parameter", "int f(int a, int a) { return a; }", "redefinition of parameter 'a'"},
		{"duplicate prototype parameter", "int f(int a, double a);", "redefinition of parameter 'a'"},
		{"call a variable", "int f(void) { int g = 1; return g(); }", "called object 'g' is not a function"},
		{"function as value", "int g(void) { return 1; } int f(void) { return g + 1; }", "function 'g' used as a value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := check(t, tt.src)
			if err == nil {
				t.Fatalf("Check succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestCheckAccepts(t *testing.T) {
	srcs := []string{
		"int f(void) { while (1) { switch (2) { case 1: break; default: continue; } } return 0; }",
		"int g(int); int f(int x) { return g(x); }",
		"int f(void) { return later(); } int later(void) { return 1; }",
		"int f(void) { int g = 1; { int h = g; return h; } }",
		"enum { A = 1, B = A + 1 }; int f(void) { return B; }",
		"int f(void) { for (int i = 0; i < 3; i++) { if (i) break; } return 0; }",
	}
	for _, src := range srcs {
		diags, err := check(t, src)
		if err != nil {
			t.Errorf("Check(%q): %v", src, err)
		}
		if diags != "" {
			t.Errorf("Check(%q) printed %q", src, diags)
		}
	}
}

func TestCheckWarnings(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		flags []string
		want  []string
	}{
		{
			name:  "unused locals and parameters",
			src:   "int f(int used, int idle) { int x; int y = 2; int a[3]; return used + y; }",
			flags: []string{"-Wunused-variable"},
			want: []string{
				"unused variable 'a' [-Wunused-variable]",
				"unused variable 'x' [-Wunused-variable]",
				"unused parameter 'idle' [-Wunused-variable]",
			},
		},
		{
			name: "unused is off by default",
			src:  "int f(int idle) { int x; return 0; }",
		},
		{
			name:  "unused in a nested scope",
			src:   "int f(void) { int x = 1; { int x = 2; } return x; }",
			flags: []string{"-Wunused-variable"},
			want:  []string{"unused variable 'x' [-Wunused-variable]"},
		},
		{
			name: "assignment as condition",
			src:  "int f(int a, int b) { if (a = b) return 1; while (a = 0) ; return 0; }",
			want: []string{
				"suggest parentheses around assignment used as truth value [-Wextra]",
				"suggest parentheses around assignment used as truth value [-Wextra]",
			},
		},
		{
			name: "empty if body",
			src:  "int f(int a) { if (a); return a; }",
			want: []string{"suggest braces around empty body in an 'if' statement [-Wextra]"},
		},
		{
			name: "self assignment",
			src:  "int f(int a) { a = a; return a; }",
			want: []string{"explicitly assigning value of variable 'a' to itself [-Wextra]"},
		},
		{
			name: "address of a local",
			src:  "int *f(void) { int x = 1; return &x; } int *g(void) { int a[2]; return a; } int *h(int *p) { return &p[1]; }",
			want: []string{
				"function returns address of local variable 'x' [-Wextra]",
				"function returns address of local variable 'a' [-Wextra]",
			},
		},
		{
			name: "main returning double",
			src:  "double main(void) { return 0.0; }",
			want: []string{"return type of 'main' is not 'int' [-Wextra]"},
		},
		{
			name: "switch without cases",
			src:  "int f(int a) { switch (a) { default: break; } return a; }",
			want: []string{"switch statement has no case labels [-Wextra]"},
		},
		{
			name:  "mixed declarations under pedantic",
			src:   "int f(void) { int a = 1; a++; int b = a; return b; }",
			flags: []string{"-Wpedantic"},
			want:  []string{"ISO C90 forbids mixed declarations and code [-Wpedantic]"},
		},
		{
			name:  "extra disabled",
			src:   "int f(int a) { if (a = 1) return 1; return 0; }",
			flags: []string{"-Wno-extra"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags, err := check(t, tt.src, tt.flags...)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, warnings(diags)); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
