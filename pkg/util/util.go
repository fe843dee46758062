package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/token"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var (
	mu          sync.Mutex
	sourceFiles []SourceFileRecord
	output      io.Writer = os.Stderr
	useColor              = true
)

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	mu.Lock()
	defer mu.Unlock()
	sourceFiles = files
}

// SetOutput redirects diagnostics, returning the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := output
	output = w
	return prev
}

func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	useColor = enabled
}

// CompileError is a diagnostic anchored at a source token.
type CompileError struct {
	Tok token.Token
	Msg string
}

func (e *CompileError) Error() string {
	filename, line, col := findFileAndLine(e.Tok)
	if line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s:%d:%d: %s", filename, line, col, e.Msg)
}

func Errorf(tok token.Token, format string, args ...interface{}) *CompileError {
	return &CompileError{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// Abort unwinds the current pass with a CompileError. The pass entry point
// turns it back into an error with Recover.
func Abort(tok token.Token, format string, args ...interface{}) {
	panic(Errorf(tok, format, args...))
}

// Wrap anchors a plain error at tok. An error that already carries a
// position is returned as is.
func Wrap(tok token.Token, err error) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	return &CompileError{Tok: tok, Msg: err.Error()}
}

// Recover converts a CompileError panic into *errp. Other panics propagate.
func Recover(errp *error) {
	if r := recover(); r != nil {
		if ce, ok := r.(*CompileError); ok {
			*errp = ce
			return
		}
		panic(r)
	}
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	mu.Lock()
	defer mu.Unlock()
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "<input>", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

func sourceLine(tok token.Token) (string, bool) {
	mu.Lock()
	defer mu.Unlock()
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return "", false
	}
	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	return string(content[lineStart:lineEnd]), true
}

func paint(code, s string) string {
	if !useColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	line, ok := sourceLine(tok)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  %s\n", line)
	col := tok.Column
	if col < 1 {
		col = 1
	}
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col-1), paint("32", caret))
}

// PrintError renders err to the diagnostic output, with the offending source
// line when err carries a position.
func PrintError(err error) {
	mu.Lock()
	w := output
	mu.Unlock()

	var ce *CompileError
	if !errors.As(err, &ce) {
		fmt.Fprintf(w, "rvcc: %s %v\n", paint("31", "error:"), err)
		return
	}
	filename, line, col := findFileAndLine(ce.Tok)
	if line == 0 {
		fmt.Fprintf(w, "rvcc: %s %s\n", paint("31", "error:"), ce.Msg)
		return
	}
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", filename, line, col, paint("31", "error:"), ce.Msg)
	printErrorLine(w, ce.Tok)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) bool {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return false
	}
	mu.Lock()
	w := output
	mu.Unlock()

	filename, line, col := findFileAndLine(tok)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "%s:%d:%d: %s %s [-W%s]\n", filename, line, col, paint("33", "warning:"), msg, cfg.Warnings[wt].Name)
	printErrorLine(w, tok)
	return true
}
