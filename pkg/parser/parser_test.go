package parser

import (
	"strings"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/lexer"
	"github.com/energy-in-joles/C-Compiler/pkg/types"
	"github.com/google/go-cmp/cmp"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	root, err := ParseAST(toks, cfg)
	if err != nil {
		t.Fatalf("ParseAST(%q): %v", src, err)
	}
	return root
}

func parseErr(src string) error {
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	if err != nil {
		return err
	}
	_, err = ParseAST(toks, cfg)
	return err
}

func firstStmt(t *testing.T, body string) *ast.Node {
	t.Helper()
	root := parse(t, "int f(void) { "+body+" }")
	fn := root.Data.(ast.TranslationUnitNode).Decls[0].Data.(ast.FuncDefNode)
	return fn.Body.Data.(ast.BlockNode).Stmts[0]
}

func TestExpressionPrecedence(t *testing.T) {
	tests := []struct{ src, want string }{
		{"a + b * c;", "a + (b * c);"},
		{"a * b + c;", "(a * b) + c;"},
		{"a - b - c;", "(a - b) - c;"},
		{"a = b = c;", "a = b = c;"},
		{"a || b && c;", "a || (b && c);"},
		{"a < b == c > d;", "(a < b) == (c > d);"},
		{"a & b | c ^ d;", "(a & b) | (c ^ d);"},
		{"a << 1 + 2;", "a << (1 + 2);"},
		{"x = c ? a : b;", "x = c ? a : b;"},
		{"-!a;", "-(!a);"},
		{"*p++;", "*p++;"},
		{"a[i + 1] += f(x, 2);", "a[i + 1] += f(x, 2);"},
		{"&a[3];", "&a[3];"},
		{"y = sizeof(int *);", "y = sizeof(int*);"},
		{"y = sizeof x;", "y = sizeof(x);"},
	}
	for _, tt := range tests {
		got := strings.TrimSpace(ast.String(firstStmt(t, tt.src)))
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestNodeKinds(t *testing.T) {
	tests := []struct {
		src  string
		want ast.NodeType
	}{
		{"a < b;", ast.Relational},
		{"a != b;", ast.Relational},
		{"a && b;", ast.Logical},
		{"a + b;", ast.Binary},
		{"a ? b : c;", ast.Ternary},
		{"a[1];", ast.Index},
		{"f();", ast.Call},
		{"++a;", ast.Increment},
		{"a *= 2;", ast.Assign},
	}
	for _, tt := range tests {
		stmt := firstStmt(t, tt.src)
		if got := stmt.Data.(ast.ExprStmtNode).Expr.Type; got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestFloatAndStringLiterals(t *testing.T) {
	e := firstStmt(t, "x = 1.5f;").Data.(ast.ExprStmtNode).Expr.Data.(ast.AssignNode).Rhs
	if d := e.Data.(ast.FloatConstNode); d.Value != 1.5 || !d.Single {
		t.Errorf("1.5f parsed as %+v", d)
	}
	e = firstStmt(t, `s = "ab" "cd";`).Data.(ast.ExprStmtNode).Expr.Data.(ast.AssignNode).Rhs
	if d := e.Data.(ast.StringConstNode); d.Value != "abcd" {
		t.Errorf("concatenated string = %q", d.Value)
	}
}

func TestDeclarations(t *testing.T) {
	root := parse(t, `
int g = 3, *gp, arr[4] = {1, 2};
char msg[] = "hi";
double f(double x, int v[], float *y);
enum color { RED, GREEN = 5, BLUE };
enum color c;
`)
	decls := root.Data.(ast.TranslationUnitNode).Decls
	if len(decls) != 5 {
		t.Fatalf("got %d top-level decls, want 5", len(decls))
	}

	first := decls[0].Data.(ast.DeclarationNode)
	var names []string
	var ptrs []int
	for _, d := range first.Decls {
		id, _ := ast.GetID(d)
		p, _ := ast.DeclPointerDepth(d)
		names = append(names, id)
		ptrs = append(ptrs, p)
	}
	if diff := cmp.Diff([]string{"g", "gp", "arr"}, names); diff != "" {
		t.Errorf("declarator names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 0}, ptrs); diff != "" {
		t.Errorf("pointer depths (-want +got):\n%s", diff)
	}
	if size, ok := ast.ArraySize(first.Decls[2]); !ok || size.Data.(ast.IntConstNode).Value != 4 {
		t.Errorf("arr size = %v, %v", size, ok)
	}

	msg := decls[1].Data.(ast.DeclarationNode).Decls[0]
	if size, ok := ast.ArraySize(msg); !ok || size != nil {
		t.Errorf("msg[] should have an implicit size")
	}

	proto := decls[2].Data.(ast.DeclarationNode)
	params, ok := ast.GetParams(proto.Decls[0])
	if !ok || len(params) != 3 {
		t.Fatalf("prototype params = %d, %v", len(params), ok)
	}
	if p := params[1].Data.(ast.ParamNode); p.Ptr != 1 || p.Spec.Kind != types.Int {
		t.Errorf("array parameter not adjusted to pointer: %+v", p)
	}

	enum := decls[3].Data.(ast.EnumDeclNode)
	if enum.Name != "color" || len(enum.Members) != 3 || enum.Members[1].Value == nil {
		t.Errorf("enum decl = %+v", enum)
	}
	if spec := decls[4].Data.(ast.DeclarationNode).Spec; spec.Enum != "color" || spec.Kind != types.Int {
		t.Errorf("enum-typed decl spec = %+v", spec)
	}
}

func TestSwitchCaseLabels(t *testing.T) {
	sw := firstStmt(t, "switch (x) { case 1: y = 1; case 2: default: y = 3; break; }")
	d := sw.Data.(ast.SwitchNode)
	var pos []int
	for _, c := range d.Cases {
		pos = append(pos, c.Pos)
	}
	if diff := cmp.Diff([]int{0, 2, 3}, pos); diff != "" {
		t.Errorf("case positions (-want +got):\n%s", diff)
	}
	if !d.Cases[2].IsDefault || d.Body[3].Type != ast.Default {
		t.Errorf("default label not recorded")
	}
	if len(d.Body) != 6 {
		t.Errorf("switch body has %d nodes, want 6", len(d.Body))
	}
}

func TestForAndDoWhile(t *testing.T) {
	f := firstStmt(t, "for (int i = 0; i < 3; i++) ;").Data.(ast.ForNode)
	if f.Init == nil || f.Init.Type != ast.Declaration || f.Cond == nil || f.Update == nil {
		t.Errorf("for clauses = %+v", f)
	}
	f = firstStmt(t, "for (;;) break;").Data.(ast.ForNode)
	if f.Init != nil || f.Cond != nil || f.Update != nil {
		t.Errorf("empty for clauses = %+v", f)
	}
	dw := firstStmt(t, "do x++; while (x < 3);")
	if dw.Type != ast.DoWhile {
		t.Errorf("got %v, want DoWhile", dw.Type)
	}
}

func TestFuncDef(t *testing.T) {
	root := parse(t, "float add(float a, float b) { return a + b; }")
	fn := root.Data.(ast.TranslationUnitNode).Decls[0]
	if !ast.IsFunction(fn) {
		t.Fatal("IsFunction(FuncDef) = false")
	}
	if id, _ := ast.GetID(fn); id != "add" {
		t.Errorf("GetID = %q", id)
	}
	if fn.Data.(ast.FuncDefNode).Spec.Kind != types.Float {
		t.Errorf("return kind = %v", fn.Data.(ast.FuncDefNode).Spec.Kind)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct{ src, want string }{
		{"int f(void) { 1 = 2; }", "lvalue required"},
		{"int f(void) { case 1: ; }", "not directly within a switch"},
		{"int f(void) { switch (x) y = 1; }", "braced block"},
		{"int f(void) { (a + b)(); }", "not a function name"},
		{"int a[];", "array size missing"},
		{"int m[2][3];", "multi-dimensional"},
		{"int f(void) { return 1 }", "expected ';'"},
		{"x = 1;", "top-level declaration"},
		{"int f(int) { return 0; }", "parameter name omitted"},
		{"int f(void) { switch (x) { default: default: ; } }", "multiple default"},
	}
	for _, tt := range tests {
		err := parseErr(tt.src)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestFeatureGates(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatTernary, false)
	toks, err := lexer.Tokenize([]rune("int f(void) { return a ? 1 : 2; }"), 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAST(toks, cfg); err == nil || !strings.Contains(err.Error(), "-Fternary") {
		t.Errorf("ternary with feature disabled: err = %v", err)
	}
}
