package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testOptions(glob string) options {
	return options{glob: glob, jobs: 4, timeout: 10 * time.Second, maxSteps: 50_000_000}
}

func TestParseFlagsDirective(t *testing.T) {
	src := "// rvcc: -Fimplicit-conversion\n// rvcc: -Wshadow -Wno-extra\nint main(void) { return 0; }\n// rvcc: -Fno-ternary\n"
	want := []string{"-Fimplicit-conversion", "-Wshadow", "-Wno-extra"}
	if diff := cmp.Diff(want, parseFlagsDirective([]byte(src))); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
	if got := parseFlagsDirective([]byte("int main(void) { return 0; }")); len(got) != 0 {
		t.Errorf("flags without a directive = %v", got)
	}
}

func TestCompareResults(t *testing.T) {
	expected := &Golden{Source: "a.c", Hash: "1", Run: &Execution{Stdout: "hi\n", ExitCode: 3, Steps: 10, Duration: time.Second}}

	same := &Golden{Source: "a.c", Hash: "1", Run: &Execution{Stdout: "hi\n", ExitCode: 3, Steps: 99, Duration: time.Millisecond}}
	if r := compareResults("a.c", expected, same); r.Status != "PASS" || r.Diff != "" {
		t.Errorf("timing-only difference: status %s, diff %q", r.Status, r.Diff)
	}

	stale := &Golden{Source: "a.c", Hash: "2", Run: &Execution{Stdout: "hi\n", ExitCode: 3}}
	if r := compareResults("a.c", expected, stale); r.Status != "PASS" || !strings.Contains(r.Message, "--update") {
		t.Errorf("stale golden: status %s, message %q", r.Status, r.Message)
	}

	wrong := &Golden{Source: "a.c", Hash: "1", Run: &Execution{Stdout: "ho\n", ExitCode: 4}}
	r := compareResults("a.c", expected, wrong)
	if r.Status != "FAIL" || !strings.Contains(r.Diff, "ExitCode") {
		t.Errorf("mismatch: status %s, diff %q", r.Status, r.Diff)
	}

	broken := &Golden{Source: "a.c", Hash: "1", CompileError: "a.c:1:1: oops"}
	if r := compareResults("a.c", expected, broken); r.Status != "FAIL" {
		t.Errorf("compile failure against a run: status %s", r.Status)
	}
}

func TestCompileAndRun(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) testSource {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		return testSource{path: path, content: []byte(src), hash: hashContent([]byte(src))}
	}

	opts := testOptions("")
	ok := compileAndRun(opts, write("ok.c", "int putchar(int c);\nint main(void) { putchar('x'); return 300; }\n"))
	if ok.CompileError != "" || ok.Run == nil {
		t.Fatalf("ok.c: %+v", ok)
	}
	if ok.Run.ExitCode != 44 || ok.Run.Stdout != "x" {
		t.Errorf("ok.c ran with exit %d and output %q, want 44 and \"x\"", ok.Run.ExitCode, ok.Run.Stdout)
	}

	opts.maxSteps = 1000
	spin := compileAndRun(opts, write("spin.c", "int main(void) { while (1) ; return 0; }\n"))
	if spin.Run == nil || !spin.Run.TimedOut || spin.Run.ExitCode != -1 {
		t.Errorf("spin.c: %+v", spin.Run)
	}

	flagged := compileAndRun(opts, write("flag.c", "// rvcc: -Fno-such-thing\nint main(void) { return 0; }\n"))
	if !strings.Contains(flagged.CompileError, "unknown flags: -Fno-such-thing") {
		t.Errorf("unknown directive flag: %q", flagged.CompileError)
	}
}

func TestUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "seven.c")
	if err := os.WriteFile(src, []byte("int main(void) { return 7; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := testOptions(filepath.Join(dir, "*.c"))

	opts.update = true
	if !runTestSuite(opts) {
		t.Fatal("update run reported failures")
	}
	if _, err := os.Stat(filepath.Join(dir, ".seven.c.json")); err != nil {
		t.Fatalf("golden file not written: %v", err)
	}

	opts.update = false
	if !runTestSuite(opts) {
		t.Error("comparison against a fresh golden file failed")
	}

	if err := os.WriteFile(src, []byte("int main(void) { return 8; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if runTestSuite(opts) {
		t.Error("changed exit code passed against the old golden file")
	}
}

func TestCorpus(t *testing.T) {
	if !runTestSuite(testOptions(filepath.Join("..", "..", "tests", "*.c"))) {
		t.Error("tests/ corpus has failures")
	}
}
