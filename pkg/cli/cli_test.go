package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseMixedFlags(t *testing.T) {
	fs := NewFlagSet("rvcc")
	var (
		out     string
		run     bool
		frame   int
		timeout time.Duration
		defs    []string
	)
	fs.String(&out, "output", "o", "a.s", "output file", "file")
	fs.Bool(&run, "run", "r", false, "run the program")
	fs.Int(&frame, "frame-size", "", 32, "initial frame size", "bytes")
	fs.Duration(&timeout, "timeout", "", time.Second, "per test timeout")
	fs.List(&defs, "define", "D", nil, "define", "name")

	args := []string{"-o", "prog.s", "--frame-size=64", "-r", "in.c", "--timeout", "3s", "-DX", "-Dy", "--", "-not-a-flag"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out != "prog.s" || !run || frame != 64 || timeout != 3*time.Second {
		t.Fatalf("got out=%q run=%v frame=%d timeout=%v", out, run, frame, timeout)
	}
	if diff := cmp.Diff([]string{"X", "y"}, defs); diff != "" {
		t.Errorf("list flag mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"in.c", "-not-a-flag"}, fs.Args()); diff != "" {
		t.Errorf("positional args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--nope"}, "unknown flag: --nope"},
		{[]string{"-q"}, "unknown flag: -q"},
		{[]string{"--frame-size"}, "flag needs an argument"},
		{[]string{"--frame-size=big"}, "invalid integer value"},
	}
	for _, tt := range tests {
		fs := NewFlagSet("t")
		var n int
		fs.Int(&n, "frame-size", "", 0, "", "bytes")
		err := fs.Parse(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Parse(%v) error = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestFlagGroups(t *testing.T) {
	fs := NewFlagSet("t")
	on, off := false, false
	entries := []FlagGroupEntry{{Name: "shadow", Prefix: "W", Usage: "warn on shadowing", Enabled: &on, Disabled: &off}}
	fs.AddFlagGroup("Warning Flags", "", "warning flag", "", entries)
	if err := fs.Parse([]string{"-Wshadow", "-Wno-shadow"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !on || !off {
		t.Errorf("group switches not set: on=%v off=%v", on, off)
	}
}

func TestHelpPage(t *testing.T) {
	app := NewApp("rvcc")
	app.Synopsis = "[options] <input.c>"
	app.Description = "Compiles a subset of C to RV32 assembly."
	var out bytes.Buffer
	app.Stdout = &out
	var o string
	app.FlagSet.String(&o, "output", "o", "a.s", "Place the output into <file>.", "file")
	on, off := false, false
	app.FlagSet.AddFlagGroup("Feature Flags", "", "feature flag", "Available feature flags:",
		[]FlagGroupEntry{{Name: "ternary", Prefix: "F", Usage: "allow ?:", Enabled: &on, Disabled: &off, Default: true}})

	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	page := out.String()
	for _, want := range []string{"Synopsis", "rvcc [options] <input.c>", "-o <file>, --output <file>", "|a.s|", "-F<feature flag>", "ternary", "|x|"} {
		if !strings.Contains(page, want) {
			t.Errorf("help page missing %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "--Fternary") {
		t.Errorf("group switch listed as a plain option:\n%s", page)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrapText mismatch (-want +got):\n%s", diff)
	}
}
