package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/token"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	default:
		return "error"
	}
}

// Stage names the pipeline stage a diagnostic comes from.
type Stage int

const (
	StageLexer Stage = iota
	StageParser
	StageSemantic
	StageCodegen
	StageBackpatch
	StageVM
)

var stageNames = [...]string{"lexer", "parser", "semantic", "codegen", "backpatch", "vm"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Diagnostic is one recorded message. Tok locates it; for diagnostics that
// are not tied to a lexeme only Tok.FileIndex and Tok.Program are meaningful.
type Diagnostic struct {
	Level   Level
	Stage   Stage
	Tok     token.Token
	Message string
	Warning string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Stage, d.Level, d.Message)
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Reporter prints diagnostics the way a compiler does and keeps them for the
// compilation artifact. Info messages are not printed; they go to the
// commonlog logger of their stage, which -v makes visible.
type Reporter struct {
	cfg     *config.Config
	out     io.Writer
	color   bool
	files   []SourceFileRecord
	diags   []Diagnostic
	loggers map[Stage]commonlog.Logger
}

func NewReporter(cfg *config.Config, out io.Writer) *Reporter {
	r := &Reporter{cfg: cfg, out: out, loggers: make(map[Stage]commonlog.Logger)}
	if f, ok := out.(*os.File); ok {
		r.color = term.IsTerminal(int(f.Fd()))
	}
	return r
}

// ConfigureLogging sets the commonlog verbosity; 0 keeps info and debug quiet.
func ConfigureLogging(verbosity int) {
	commonlog.Configure(verbosity, nil)
}

func (r *Reporter) Logger(stage Stage) commonlog.Logger {
	if l, ok := r.loggers[stage]; ok {
		return l
	}
	l := commonlog.GetLogger("g65." + stage.String())
	r.loggers[stage] = l
	return l
}

// SetSourceFiles stores the source code for all input files for rich error messages
func (r *Reporter) SetSourceFiles(files []SourceFileRecord) { r.files = files }

func (r *Reporter) Diagnostics() []Diagnostic { return r.diags }

// ProgramDiagnostics returns the diagnostics recorded for one program.
func (r *Reporter) ProgramDiagnostics(fileIndex, program int) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.diags {
		if d.Tok.FileIndex == fileIndex && d.Tok.Program == program {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any stage recorded an error for the program.
func (r *Reporter) HasErrors(fileIndex, program int) bool {
	for _, d := range r.diags {
		if d.Level == LevelError && d.Tok.FileIndex == fileIndex && d.Tok.Program == program {
			return true
		}
	}
	return false
}

func (r *Reporter) ErrorCount() int {
	n := 0
	for _, d := range r.diags {
		if d.Level == LevelError {
			n++
		}
	}
	return n
}

func (r *Reporter) findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) {
		return "unknown", tok.Line, tok.Column
	}
	return r.files[tok.FileIndex].Name, tok.Line, tok.Column
}

func (r *Reporter) paint(code, s string) string {
	if !r.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the error position
func (r *Reporter) printErrorLine(tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) || tok.Line == 0 {
		return
	}

	content := r.files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
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

	fmt.Fprintf(r.out, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(r.out, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), r.paint("32", caret))
}

func (r *Reporter) header(tok token.Token, stage Stage) string {
	filename, line, col := r.findFileAndLine(tok)
	if line == 0 {
		return fmt.Sprintf("%s: program %d: %s", filename, tok.Program, stage)
	}
	return fmt.Sprintf("%s:%d:%d: %s", filename, line, col, stage)
}

// Error records an error for the program tok belongs to and prints it.
func (r *Reporter) Error(stage Stage, tok token.Token, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.diags = append(r.diags, Diagnostic{Level: LevelError, Stage: stage, Tok: tok, Message: msg})
	if r.out == nil {
		return
	}
	fmt.Fprintf(r.out, "%s: %s %s\n", r.header(tok, stage), r.paint("31", "error:"), msg)
	r.printErrorLine(tok)
}

// Warn records and prints a warning if the corresponding warning is enabled
func (r *Reporter) Warn(wt config.Warning, stage Stage, tok token.Token, format string, args ...interface{}) {
	if !r.cfg.IsWarningEnabled(wt) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	name := r.cfg.Warnings[wt].Name
	r.diags = append(r.diags, Diagnostic{Level: LevelWarning, Stage: stage, Tok: tok, Message: msg, Warning: name})
	if r.out == nil {
		return
	}
	fmt.Fprintf(r.out, "%s: %s %s [-W%s]\n", r.header(tok, stage), r.paint("33", "warning:"), msg, name)
	r.printErrorLine(tok)
}

// Info records an informational message and forwards it to the stage logger.
func (r *Reporter) Info(stage Stage, tok token.Token, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.diags = append(r.diags, Diagnostic{Level: LevelInfo, Stage: stage, Tok: tok, Message: msg})
	r.Logger(stage).Infof("program %d: %s", tok.Program, msg)
}
