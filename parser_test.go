package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, code string) (*Program, []*CompileError) {
	t.Helper()
	registry := NewSourceRegistry()
	src := registry.AddVirtual(code, "test.pat")
	lx := NewLexer(src)
	tokens, lexErrs := lx.Lex()
	require.Empty(t, lexErrs, "lexing failed: %v", lexErrs)

	p := NewParser(tokens)
	return p.Parse()
}

func TestParserStructPlacement(t *testing.T) {
	prog, errs := parseSource(t, `
		struct P {
			u8 a;
			u16 b;
		};
		P p @ 0x10;
	`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 2)

	decl, ok := prog.Statements[0].(*TypeDeclNode)
	require.True(t, ok)
	assert.Equal(t, "P", decl.Name)

	placement, ok := prog.Statements[1].(*VariableDeclNode)
	require.True(t, ok)
	assert.Equal(t, "p", placement.Name)
}

func TestParserTopLevelAssignmentFallsThroughTypedDecl(t *testing.T) {
	// `r = main();` doesn't start with a type, so parsePlacementOrDecl must
	// back off its typed-declaration attempt and parse a plain statement
	// instead of failing the whole program.
	prog, errs := parseSource(t, `
		fn main() {
			return 42;
		}
		out u32 r;
		r = main();
	`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 3)

	_, ok := prog.Statements[0].(*FunctionDefinitionNode)
	require.True(t, ok)
	_, ok = prog.Statements[1].(*InOutDeclNode)
	require.True(t, ok)

	assign, ok := prog.Statements[2].(*LValueAssignmentNode)
	require.True(t, ok, "expected *LValueAssignmentNode, got %T", prog.Statements[2])
	_ = assign
}

func TestParserBareTopLevelCallStatement(t *testing.T) {
	prog, errs := parseSource(t, `
		fn main() {}
		main();
	`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 2)

	_, ok := prog.Statements[1].(*FunctionCallNode)
	require.True(t, ok, "expected a bare *FunctionCallNode statement, got %T", prog.Statements[1])
}

func TestParserPointerDeclaration(t *testing.T) {
	prog, errs := parseSource(t, `
		struct T { char data; };
		T *p : u8 @ 0x00;
	`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 2)
	_, ok := prog.Statements[1].(*PointerVariableDeclNode)
	require.True(t, ok, "expected *PointerVariableDeclNode, got %T", prog.Statements[1])
}

func TestParserMultiVariableDecl(t *testing.T) {
	prog, errs := parseSource(t, `u8 a, b, c;`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 1)
	decl, ok := prog.Statements[0].(*MultiVariableDeclNode)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, decl.Names)
}

func TestParserArrayDeclaration(t *testing.T) {
	prog, errs := parseSource(t, `u8 buf[16] @ 0;`)
	require.Empty(t, errs)
	require.Len(t, prog.Statements, 1)
	_, ok := prog.Statements[0].(*ArrayVariableDeclNode)
	require.True(t, ok)
}

func TestParserRejectsUnterminatedStruct(t *testing.T) {
	_, errs := parseSource(t, `struct P { u8 a; `)
	require.NotEmpty(t, errs)
	assert.Equal(t, KindParser, errs[0].Kind)
}

func TestParserMatchStatement(t *testing.T) {
	prog, errs := parseSource(t, `
		struct S {
			u8 x;
			match (x) {
				(1): u8 a;
				(_): padding c;
			}
		};
	`)
	require.Empty(t, errs)
	decl, ok := prog.Statements[0].(*TypeDeclNode)
	require.True(t, ok)
	structBody, ok := decl.Body.(*StructNode)
	require.True(t, ok)
	require.Len(t, structBody.Members, 2)
	_, ok = structBody.Members[1].Decl.(*MatchStatementNode)
	require.True(t, ok)
}
