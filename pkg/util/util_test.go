package util

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
	"github.com/google/go-cmp/cmp"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	SetColor(false)
	SetSourceFiles([]SourceFileRecord{{Name: "m.c", Content: []rune("int main(void) {\n  return x;\n}\n")}})
	t.Cleanup(func() {
		SetOutput(prev)
		SetSourceFiles(nil)
	})
	return &buf
}

func TestCompileErrorPosition(t *testing.T) {
	capture(t)
	tok := token.Token{Type: token.Ident, Value: "x", Line: 2, Column: 10, Len: 1}
	if got, want := Errorf(tok, "'%s' undeclared", "x").Error(), "m.c:2:10: 'x' undeclared"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := Errorf(token.Token{}, "bare").Error(); got != "bare" {
		t.Errorf("unpositioned Error() = %q", got)
	}
}

func TestPrintErrorCaret(t *testing.T) {
	buf := capture(t)
	PrintError(Errorf(token.Token{Line: 2, Column: 3, Len: 6}, "oops"))
	want := "m.c:2:3: error: oops\n    return x;\n    ^~~~~~\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("PrintError output mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	PrintError(errors.New("no input"))
	if got := buf.String(); got != "rvcc: error: no input\n" {
		t.Errorf("plain error printed as %q", got)
	}
}

func TestRecover(t *testing.T) {
	run := func(f func()) (err error) {
		defer Recover(&err)
		f()
		return nil
	}
	err := run(func() { Abort(token.Token{Line: 1, Column: 1}, "stop") })
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Msg != "stop" {
		t.Fatalf("Recover gave %v", err)
	}

	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("foreign panic = %v, want it re-raised", r)
		}
	}()
	_ = run(func() { panic("boom") })
}

func TestWrapKeepsPosition(t *testing.T) {
	inner := Errorf(token.Token{Line: 1, Column: 5}, "inner")
	outer := fmt.Errorf("ctx: %w", inner)
	if got := Wrap(token.Token{Line: 9}, outer); got != inner {
		t.Errorf("Wrap replaced an existing position: %+v", got)
	}
	if got := Wrap(token.Token{Line: 9}, errors.New("plain")); got.Tok.Line != 9 || got.Msg != "plain" {
		t.Errorf("Wrap(plain) = %+v", got)
	}
}

func TestWarn(t *testing.T) {
	buf := capture(t)
	cfg := config.NewConfig()
	tok := token.Token{Line: 1, Column: 5, Len: 4}

	if !Warn(cfg, config.WarnExtra, tok, "look at %s", "this") {
		t.Fatal("enabled warning was not printed")
	}
	want := "m.c:1:5: warning: look at this [-Wextra]\n  int main(void) {\n      ^~~~\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("Warn output mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	cfg.SetWarning(config.WarnExtra, false)
	if Warn(cfg, config.WarnExtra, tok, "quiet") || buf.Len() != 0 {
		t.Errorf("disabled warning printed %q", buf.String())
	}
}
