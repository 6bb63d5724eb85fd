package patternlang

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsRenderErrorShowsCaretUnderSpan(t *testing.T) {
	registry := NewSourceRegistry()
	src := registry.AddVirtual("struct S {\n  u8 x\n};\n", "bad.pat")

	span := Span{
		Start: Location{SourceID: src.ID, Line: 2, Column: 3, Cursor: 14},
		End:   Location{SourceID: src.ID, Line: 2, Column: 7, Cursor: 18},
	}
	err := NewCompileError(KindParser, CodeUnexpectedToken, "unexpected token", "expected ';'", span).
		WithHint("did you forget a semicolon?")

	d := NewDiagnostics(registry)
	out := d.RenderError(err)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "P0001: unexpected token", lines[0])
	assert.Contains(t, lines[1], "u8 x")
	assert.True(t, strings.HasPrefix(strings.TrimLeft(lines[2], " "), "^"), "caret line should start with '^', got %q", lines[2])
	assert.Contains(t, out, "expected ';'")
	assert.Contains(t, out, "hint: did you forget a semicolon?")
}

func TestDiagnosticsRenderEvalError(t *testing.T) {
	registry := NewSourceRegistry()
	src := registry.AddVirtual("out u32 r;\nr = main();\n", "bad.pat")

	span := Span{
		Start: Location{SourceID: src.ID, Line: 2, Column: 1, Cursor: 11},
		End:   Location{SourceID: src.ID, Line: 2, Column: 2, Cursor: 12},
	}
	err := ErrVariable(span, "r")

	d := NewDiagnostics(registry)
	out := d.RenderEvalError(err)
	assert.True(t, strings.HasPrefix(out, err.Code+": "))
	assert.Contains(t, out, "r = main();")
}

func TestDiagnosticsRenderErrorWithoutSourceFallsBackToLocation(t *testing.T) {
	d := NewDiagnostics(nil)
	err := NewCompileError(KindValidator, CodeRecursionDepth, "recursion too deep", "", EmptySpan)
	out := d.RenderError(err)
	assert.Contains(t, out, "V0003: recursion too deep")
	assert.Contains(t, out, "@ ")
}

func TestDiagnosticsClipsOverLongLines(t *testing.T) {
	registry := NewSourceRegistry()
	longLine := strings.Repeat("x", 200) + "bad" + strings.Repeat("y", 200)
	src := registry.AddVirtual(longLine+"\n", "long.pat")

	span := Span{
		Start: Location{SourceID: src.ID, Line: 1, Column: 201, Cursor: 200},
		End:   Location{SourceID: src.ID, Line: 1, Column: 204, Cursor: 203},
	}
	err := NewCompileError(KindLexer, CodeUnknownSequence, "unexpected character", "", span)

	d := NewDiagnostics(registry)
	out := d.RenderError(err)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Less(t, len(lines[1]), len(longLine))
	assert.Contains(t, lines[1], "…")
}

func TestDiagnosticsColorThemeWrapsTokens(t *testing.T) {
	registry := NewSourceRegistry()
	registry.AddVirtual("u8 x;\n", "t.pat")

	d := NewDiagnostics(registry)
	d.Theme = ColorTheme
	err := NewCompileError(KindParser, CodeUnexpectedToken, "oops", "", EmptySpan)
	out := d.RenderError(err)
	assert.Contains(t, out, ColorTheme[DiagTokenCode])
	assert.Contains(t, out, diagReset)
}
