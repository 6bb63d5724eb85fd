package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsWellFormedProgram(t *testing.T) {
	prog, errs := parseSource(t, `
		struct P { u8 a; u16 b; };
		P p @ 0;
	`)
	require.Empty(t, errs)

	registry := NewSourceRegistry()
	_ = registry
	v := NewValidator(map[string]*TypeDeclNode{"P": prog.Statements[0].(*TypeDeclNode)}, 0)
	assert.Empty(t, v.Validate(prog))
}

func TestValidatorRejectsDuplicateEnumEntry(t *testing.T) {
	prog, errs := parseSource(t, `
		enum E : u8 {
			A = 0,
			A = 1,
		};
	`)
	require.Empty(t, errs)

	types := map[string]*TypeDeclNode{"E": prog.Statements[0].(*TypeDeclNode)}
	v := NewValidator(types, 0)
	verrs := v.Validate(prog)
	require.NotEmpty(t, verrs)
	assert.Equal(t, CodeRedefinition, verrs[0].Code)
}

func TestValidatorRejectsRecursionBeyondDepth(t *testing.T) {
	prog, errs := parseSource(t, `
		struct C { u8 x; };
		struct B { C c; };
		struct A { B b; };
	`)
	require.Empty(t, errs)

	types := map[string]*TypeDeclNode{}
	for _, s := range prog.Statements {
		td := s.(*TypeDeclNode)
		types[td.Name] = td
	}

	v := NewValidator(types, 2)
	verrs := v.Validate(prog)
	require.NotEmpty(t, verrs)
	found := false
	for _, e := range verrs {
		if e.Code == CodeRecursionDepth {
			found = true
		}
	}
	assert.True(t, found, "expected a recursion-depth error among %v", verrs)
}

func TestValidatorAllowsRecursionWithinDepth(t *testing.T) {
	prog, errs := parseSource(t, `
		struct C { u8 x; };
		struct B { C c; };
		struct A { B b; };
	`)
	require.Empty(t, errs)

	types := map[string]*TypeDeclNode{}
	for _, s := range prog.Statements {
		td := s.(*TypeDeclNode)
		types[td.Name] = td
	}

	v := NewValidator(types, DefaultRecursionDepth)
	assert.Empty(t, v.Validate(prog))
}
