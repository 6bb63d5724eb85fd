package patternlang

import (
	"fmt"
	"strings"
)

// DiagFormatToken tags the pieces of a rendered diagnostic so a themed
// renderer can color each independently: the token kind is kept separate
// from the ANSI sequence used to render it.
type DiagFormatToken int

const (
	DiagTokenNone DiagFormatToken = iota
	DiagTokenCode
	DiagTokenTitle
	DiagTokenSource
	DiagTokenCaret
	DiagTokenHint
)

// DiagTheme maps each DiagFormatToken to the ANSI sequence wrapped around it;
// PlainTheme (the zero value) renders with no escape codes at all.
type DiagTheme map[DiagFormatToken]string

// PlainTheme renders diagnostics with no color, the default for non-TTY
// output (file logs, test assertions).
var PlainTheme = DiagTheme{}

// ColorTheme is the default ANSI palette for diagnostic rendering.
var ColorTheme = DiagTheme{
	DiagTokenCode:   "\033[1;38;5;127m", // pink, matches FormatToken_Error
	DiagTokenTitle:  "\033[1;38;5;245m", // gray, matches FormatToken_Literal
	DiagTokenSource: "\033[0m",
	DiagTokenCaret:  "\033[1;31;5;228m", // orange, matches FormatToken_Range
	DiagTokenHint:   "\033[3;38;5;245m",
}

const diagReset = "\033[0m"

func (t DiagTheme) wrap(tok DiagFormatToken, s string) string {
	seq, ok := t[tok]
	if !ok || seq == "" {
		return s
	}
	return seq + s + diagReset
}

// maxDiagLineWidth bounds how much of an over-long source line is shown
// around the offending span before the rest is elided.
const maxDiagLineWidth = 120

// Diagnostics renders CompileError/EvalError values against a SourceRegistry
// into a caret-annotated, human-readable form: the offending source line is
// reconstructed from the registry with the span underlined. Plain text only;
// JSON/HTML rendering belongs to embedding tooling.
type Diagnostics struct {
	Registry *SourceRegistry
	Theme    DiagTheme
}

func NewDiagnostics(registry *SourceRegistry) *Diagnostics {
	return &Diagnostics{Registry: registry, Theme: PlainTheme}
}

// diagError is the minimal shape both CompileError and EvalError satisfy;
// RenderError/RenderEvalError build one from either concrete type so the
// rendering logic below is written once.
type diagError struct {
	code        string
	title       string
	description string
	hint        string
	span        Span
	trace       []Span
}

// RenderError renders a CompileError: code + title on the first line, the
// reconstructed source line with a caret under the span on following lines,
// then the hint and call/include trace if present.
func (d *Diagnostics) RenderError(err *CompileError) string {
	return d.render(diagError{
		code: err.Code, title: err.Title, description: err.Description,
		hint: err.Hint, span: err.Span, trace: err.Trace,
	})
}

// RenderEvalError renders an EvalError the same way RenderError does for a
// CompileError; both stages share the (kind, location, trace) triple.
func (d *Diagnostics) RenderEvalError(err *EvalError) string {
	return d.render(diagError{
		code: err.Code, title: err.Title, description: err.Description,
		hint: err.Hint, span: err.Span, trace: err.Trace,
	})
}

func (d *Diagnostics) render(e diagError) string {
	theme := d.Theme
	var b strings.Builder

	b.WriteString(theme.wrap(DiagTokenCode, e.code))
	b.WriteString(": ")
	b.WriteString(theme.wrap(DiagTokenTitle, e.title))
	b.WriteByte('\n')

	if line, caret, ok := d.renderSourceLine(e.span); ok {
		b.WriteString(theme.wrap(DiagTokenSource, "  "+line))
		b.WriteByte('\n')
		b.WriteString(theme.wrap(DiagTokenCaret, "  "+caret))
		b.WriteByte('\n')
	} else {
		fmt.Fprintf(&b, "  @ %s\n", e.span)
	}

	if e.description != "" {
		fmt.Fprintf(&b, "  %s\n", e.description)
	}
	if e.hint != "" {
		b.WriteString(theme.wrap(DiagTokenHint, fmt.Sprintf("  hint: %s", e.hint)))
		b.WriteByte('\n')
	}

	for i := len(e.trace) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  from %s\n", e.trace[i])
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderSourceLine reconstructs the source line containing span.Start and
// builds a caret string underlining span.Start.Column through
// span.Start.Column+length-1, clipping both around maxDiagLineWidth when the
// line is longer than that.
func (d *Diagnostics) renderSourceLine(span Span) (line string, caret string, ok bool) {
	if d.Registry == nil || span.Start.SourceID == EmptySourceID {
		return "", "", false
	}
	src := d.Registry.Get(span.Start.SourceID)
	if src == nil {
		return "", "", false
	}

	full := src.Lines().LineText(span.Start.Line)
	length := int(span.End.Cursor - span.Start.Cursor)
	if length <= 0 {
		length = 1
	}
	col := int(span.Start.Column) - 1 // 0-based rune index into full
	if col < 0 {
		col = 0
	}

	runes := []rune(full)
	clipStart, clipCol := clipLine(len(runes), col, length, maxDiagLineWidth)
	clipEnd := clipStart + maxDiagLineWidth
	if clipEnd > len(runes) {
		clipEnd = len(runes)
	}
	shown := string(runes[clipStart:clipEnd])
	if clipStart > 0 {
		shown = "…" + shown
		clipCol++
	}
	if clipEnd < len(runes) {
		shown += "…"
	}

	caretLine := strings.Repeat(" ", clipCol) + "^" + strings.Repeat("~", maxInt(0, length-1))
	return shown, caretLine, true
}

// clipLine picks a window of width <= maxWidth around [col, col+length) and
// returns the window's start offset into the full line plus col's position
// relative to that window.
func clipLine(lineLen, col, length, maxWidth int) (clipStart, relCol int) {
	if lineLen <= maxWidth {
		return 0, col
	}
	half := maxWidth / 2
	start := col - half
	if start < 0 {
		start = 0
	}
	if start+maxWidth > lineLen {
		start = lineLen - maxWidth
	}
	if start < 0 {
		start = 0
	}
	return start, col - start
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
