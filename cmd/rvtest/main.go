package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/energy-in-joles/C-Compiler/pkg/checker"
	"github.com/energy-in-joles/C-Compiler/pkg/cli"
	"github.com/energy-in-joles/C-Compiler/pkg/codegen"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/lexer"
	"github.com/energy-in-joles/C-Compiler/pkg/parser"
	"github.com/energy-in-joles/C-Compiler/pkg/rvsim"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Execution is the observable behaviour of one run of main.
type Execution struct {
	Stdout   string        `json:"stdout"`
	ExitCode int           `json:"exitCode"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
	Error    string        `json:"error,omitempty"`
}

// Golden is the recorded outcome for one test source, stored next to it as
// .<name>.json.
type Golden struct {
	Source       string     `json:"source"`
	Hash         string     `json:"hash"`
	Flags        []string   `json:"flags,omitempty"`
	CompileError string     `json:"compile_error,omitempty"`
	Run          *Execution `json:"run,omitempty"`
}

type FileTestResult struct {
	File     string  `json:"file"`
	Status   string  `json:"status"` // PASS, FAIL, SKIP, ERROR, UPDATED
	Message  string  `json:"message,omitempty"`
	Diff     string  `json:"diff,omitempty"`
	Expected *Golden `json:"expected,omitempty"`
	Actual   *Golden `json:"actual,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

type options struct {
	dir      string
	glob     string
	update   bool
	jobs     int
	timeout  time.Duration
	maxSteps int
	jsonOut  string
	verbose  bool
}

var (
	cRed     = "\x1b[91m"
	cYellow  = "\x1b[93m"
	cGreen   = "\x1b[92m"
	cCyan    = "\x1b[96m"
	cMagenta = "\x1b[95m"
	cBold    = "\x1b[1m"
	cNone    = "\x1b[0m"
)

// flagsDirective lets a test source carry its own compiler switches on a
// leading comment line such as "// rvcc: -Fimplicit-conversion".
const flagsDirective = "// rvcc:"

func main() {
	log.SetFlags(0)

	app := cli.NewApp("rvtest")
	app.Synopsis = "[options]"
	app.Description = "Compiles each test program, runs main in the simulator and compares the exit code and output against its golden file."

	var opts options
	fs := app.FlagSet
	fs.String(&opts.dir, "dir", "d", "", "Directory to store/read golden JSON files (defaults to the source file dir).", "dir")
	fs.String(&opts.glob, "glob", "g", "tests/*.c", "Glob pattern(s) for files to test (space-separated).", "pattern")
	fs.Bool(&opts.update, "update", "u", false, "Write golden files from the current compiler instead of comparing.")
	fs.Int(&opts.jobs, "jobs", "j", 4, "Number of parallel test jobs.", "n")
	fs.Duration(&opts.timeout, "timeout", "", 5*time.Second, "Timeout for each program run.")
	fs.Int(&opts.maxSteps, "max-steps", "", 50_000_000, "Instruction budget for each program run.", "n")
	fs.String(&opts.jsonOut, "json", "", "", "Write the full JSON test report to <file>.", "file")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Enable verbose logging.")

	app.Action = func(args []string) error {
		if !cli.IsTerminal(os.Stdout) {
			cRed, cYellow, cGreen, cCyan, cMagenta, cBold, cNone = "", "", "", "", "", "", ""
		}
		if opts.jobs < 1 {
			opts.jobs = 1
		}
		setupInterruptHandler()
		if !runTestSuite(opts) {
			return errors.New("test failures")
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func setupInterruptHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(opts options, sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if opts.dir != "" {
		return filepath.Join(opts.dir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

func hashContent(content []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(content))
}

type testSource struct {
	path    string
	index   int
	content []byte
	hash    string
}

func runTestSuite(opts options) bool {
	files, err := expandGlobPatterns(opts.glob)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return true
	}

	// Every source is registered once so positioned errors from concurrent
	// compilations resolve against the right file.
	var sources []testSource
	var records []util.SourceFileRecord
	var results []*FileTestResult
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			results = append(results, &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file: %v", err)})
			continue
		}
		sources = append(sources, testSource{path: file, index: len(records), content: content, hash: hashContent(content)})
		records = append(records, util.SourceFileRecord{Name: filepath.Base(file), Content: []rune(string(content))})
	}
	util.SetSourceFiles(records)
	util.SetOutput(io.Discard)
	util.SetColor(false)

	tasks := make(chan testSource, len(sources))
	resultsChan := make(chan *FileTestResult, len(sources))
	var wg sync.WaitGroup

	for i := 0; i < opts.jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range tasks {
				resultsChan <- testFile(opts, src)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, src := range sources {
		if originalFile, seen := seenHashes[src.hash]; seen {
			resultsChan <- &FileTestResult{File: src.path, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[src.hash] = src.path
		tasks <- src
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()
	for result := range resultsChan {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].File < results[j].File
	})

	printSummary(opts, results)
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}
	if opts.jsonOut != "" {
		writeJSONReport(opts.jsonOut, resultsMap)
	}
	return !hasFailures(resultsMap)
}

func testFile(opts options, src testSource) *FileTestResult {
	actual := compileAndRun(opts, src)
	goldenFile := getJSONPath(opts, src.path)

	if opts.update {
		if err := writeGolden(opts, goldenFile, actual); err != nil {
			return &FileTestResult{File: src.path, Status: "ERROR", Message: err.Error(), Actual: actual}
		}
		return &FileTestResult{File: src.path, Status: "UPDATED", Message: "Golden file written to " + goldenFile, Actual: actual}
	}

	goldenData, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: src.path, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file (run with --update)", Actual: actual}
	}
	if err != nil {
		return &FileTestResult{File: src.path, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var expected Golden
	if err := json.Unmarshal(goldenData, &expected); err != nil {
		return &FileTestResult{File: src.path, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}
	return compareResults(src.path, &expected, actual)
}

// compareResults ignores timing and step counts, which move with every
// change to the code generator.
func compareResults(file string, expected, actual *Golden) *FileTestResult {
	diff := cmp.Diff(expected, actual,
		cmpopts.IgnoreFields(Golden{}, "Source", "Hash"),
		cmpopts.IgnoreFields(Execution{}, "Steps", "Duration"),
		cmpopts.EquateEmpty(),
	)
	result := &FileTestResult{File: file, Expected: expected, Actual: actual}
	switch {
	case diff != "":
		result.Status, result.Message, result.Diff = "FAIL", "Exit code, output or diagnostics mismatch", diff
	case expected.Hash != actual.Hash:
		result.Status, result.Message = "PASS", "Passed, but the golden file was recorded for different source (run with --update)"
	default:
		result.Status, result.Message = "PASS", "Output matches golden file"
	}
	return result
}

// parseFlagsDirective collects the switches named on leading directive lines.
func parseFlagsDirective(content []byte) []string {
	var flags []string
	sc := bufio.NewScanner(strings.NewReader(string(content)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, flagsDirective) {
			break
		}
		flags = append(flags, strings.Fields(strings.TrimPrefix(line, flagsDirective))...)
	}
	return flags
}

func compile(src testSource, cfg *config.Config) (string, error) {
	tokens, err := lexer.Tokenize([]rune(string(src.content)), src.index, cfg)
	if err != nil {
		return "", err
	}
	root, err := parser.ParseAST(tokens, cfg)
	if err != nil {
		return "", err
	}
	if err := checker.Check(root, cfg); err != nil {
		return "", err
	}
	backend, err := codegen.SelectBackend(cfg)
	if err != nil {
		return "", err
	}
	asm, err := backend.Generate(root, cfg)
	if err != nil {
		return "", err
	}
	return asm.String(), nil
}

func compileAndRun(opts options, src testSource) *Golden {
	g := &Golden{Source: filepath.Base(src.path), Hash: src.hash, Flags: parseFlagsDirective(src.content)}

	cfg := config.NewConfig()
	if unknown := cfg.ApplyFlagString(strings.Join(g.Flags, " ")); len(unknown) > 0 {
		g.CompileError = fmt.Sprintf("unknown flags: %s", strings.Join(unknown, " "))
		return g
	}
	asm, err := compile(src, cfg)
	if err != nil {
		g.CompileError = err.Error()
		return g
	}
	if opts.verbose {
		log.Printf("[%s] compiled to %d bytes of assembly", src.path, len(asm))
	}

	exec := &Execution{}
	g.Run = exec
	prog, err := rvsim.LoadCached(asm)
	if err != nil {
		exec.ExitCode, exec.Error = -2, "assembler: "+err.Error()
		return g
	}

	var stdout strings.Builder
	m := rvsim.NewMachine(prog)
	m.Stdout = &stdout
	m.MaxSteps = opts.maxSteps

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	start := time.Now()
	result, err := m.RunContext(ctx, "main")
	exec.Duration = time.Since(start)
	exec.Stdout = stdout.String()
	exec.Steps = m.Steps

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, rvsim.ErrStepLimit):
		exec.TimedOut, exec.ExitCode = true, -1
	case err != nil:
		exec.ExitCode, exec.Error = -2, err.Error()
	default:
		exec.ExitCode = int(uint8(result))
	}
	return g
}

func writeGolden(opts options, path string, g *Golden) error {
	jsonData, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden data to JSON: %w", err)
	}
	if opts.dir != "" {
		if err := os.MkdirAll(opts.dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", opts.dir, err)
		}
	}
	if err := os.WriteFile(path, append(jsonData, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write golden file %s: %w", path, err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(opts options, results []*FileTestResult) {
	var passed, failed, skipped, errored, updated int
	var totalRuntime time.Duration
	var totalSteps int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		case "UPDATED":
			updated++
			fmt.Printf("  [%sUPDATED%s] %s\n", cMagenta, cNone, result.Message)
		}

		if result.Actual != nil && result.Actual.Run != nil {
			run := result.Actual.Run
			totalRuntime += run.Duration
			totalSteps += run.Steps
			if opts.verbose {
				fmt.Printf("  [exit %d | %d steps | %s]\n", run.ExitCode, run.Steps, formatDuration(run.Duration))
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone)
	if updated > 0 {
		fmt.Printf(", %s%d Updated%s", cMagenta, updated, cNone)
	}
	fmt.Printf(", %d Total\n", len(results))
	if totalSteps > 0 {
		fmt.Printf("Simulated %d instructions in %s.\n", totalSteps, totalRuntime)
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(outputFile string, resultsMap TestSuiteResults) {
	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	if err := os.WriteFile(outputFile, jsonData, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
		return
	}
	fmt.Printf("Full test report saved to %s\n", outputFile)
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			if seen[file] {
				continue
			}
			if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
				allFiles = append(allFiles, file)
				seen[file] = true
			}
		}
	}
	return allFiles, nil
}
