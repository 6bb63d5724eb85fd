package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preprocess(t *testing.T, pp *Preprocessor, code string) ([]Token, []*CompileError) {
	t.Helper()
	registry := pp.registry
	src := registry.AddVirtual(code, "pp.pat")
	return pp.Process(src, "")
}

func tokenTexts(tokens []Token) []string {
	var out []string
	for _, tok := range tokens {
		if tok.Kind == TokenEndOfProgram {
			continue
		}
		out = append(out, tok.Text)
	}
	return out
}

func TestPreprocessorDefineExpandsIdentifier(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	tokens, errs := preprocess(t, pp, "#define WIDTH 4\nu8 buf[WIDTH];")
	require.Empty(t, errs)
	assert.Contains(t, tokenTexts(tokens), "4")
	assert.NotContains(t, tokenTexts(tokens), "WIDTH")
}

func TestPreprocessorUndefRemovesMacro(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	tokens, errs := preprocess(t, pp, "#define WIDTH 4\n#undef WIDTH\nu8 WIDTH;")
	require.Empty(t, errs)
	assert.Contains(t, tokenTexts(tokens), "WIDTH")
}

func TestPreprocessorIfdefTakesDefinedBranch(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	tokens, errs := preprocess(t, pp, "#define FLAG\n#ifdef FLAG\nu8 a;\n#else\nu8 b;\n#endif")
	require.Empty(t, errs)
	texts := tokenTexts(tokens)
	assert.Contains(t, texts, "a")
	assert.NotContains(t, texts, "b")
}

func TestPreprocessorIfndefTakesUndefinedBranch(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	tokens, errs := preprocess(t, pp, "#ifndef FLAG\nu8 a;\n#else\nu8 b;\n#endif")
	require.Empty(t, errs)
	texts := tokenTexts(tokens)
	assert.Contains(t, texts, "a")
	assert.NotContains(t, texts, "b")
}

func TestPreprocessorErrorDirectiveAborts(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	_, errs := preprocess(t, pp, `#error "no thanks"`)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeUserError, errs[0].Code)
}

func TestPreprocessorUnregisteredPragmaIsTolerated(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	_, errs := preprocess(t, pp, "#pragma some_unknown_key 1\nu8 a;")
	require.Empty(t, errs)
}

func TestPreprocessorRegisteredPragmaHandlerCanReject(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)
	pp.RegisterPragma("limit", func(value string, span Span) bool {
		return value == "ok"
	})

	_, errs := preprocess(t, pp, "#pragma limit bad\nu8 a;")
	require.Len(t, errs, 1)
	assert.Equal(t, CodePragmaFailed, errs[0].Code)

	tokens, errs := preprocess(t, pp, "#pragma limit ok\nu8 a;")
	require.Empty(t, errs)
	assert.Contains(t, tokenTexts(tokens), "a")
}

func TestPreprocessorUnknownDirectiveInActiveBranchErrors(t *testing.T) {
	registry := NewSourceRegistry()
	pp := NewPreprocessor(registry)

	_, errs := preprocess(t, pp, "#bogus 1\n")
	require.Len(t, errs, 1)
	assert.Equal(t, KindPreprocessor, errs[0].Kind)
}
