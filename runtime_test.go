package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeFixedStruct(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x01, 0x02, 0x03, 0x04})

	ok := rt.ExecuteString(`
		struct P {
			u8 a;
			u16 b;
			u8 c;
		};
		P p @ 0x00;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	p, ok := patterns[0].(*StructPattern)
	require.True(t, ok)
	assert.EqualValues(t, 4, p.Base().Size)

	a, found := p.Field("a")
	require.True(t, found)
	av, err := a.Value()
	require.Nil(t, err)
	au, everr := av.ToUnsigned()
	require.Nil(t, everr)
	assert.EqualValues(t, 1, au)

	b, found := p.Field("b")
	require.True(t, found)
	bv, err := b.Value()
	require.Nil(t, err)
	bu, everr := bv.ToUnsigned()
	require.Nil(t, everr)
	assert.EqualValues(t, 0x0302, bu) // little-endian default

	c, found := p.Field("c")
	require.True(t, found)
	cv, err := c.Value()
	require.Nil(t, err)
	cu, everr := cv.ToUnsigned()
	require.Nil(t, everr)
	assert.EqualValues(t, 4, cu)
}

func TestRuntimeBitfieldDefaultOrder(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0xA5}) // 1010_0101

	ok := rt.ExecuteString(`
		bitfield B {
			x : 3;
			y : 5;
		};
		B b @ 0;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	bf, ok := patterns[0].(*BitfieldPattern)
	require.True(t, ok)
	require.Len(t, bf.Fields, 2)

	x := bf.Fields[0].(*BitfieldFieldPattern)
	y := bf.Fields[1].(*BitfieldFieldPattern)
	// right-to-left default: x takes the low 3 bits, y the next 5.
	assert.EqualValues(t, 0x5, x.Unsigned)
	assert.EqualValues(t, 0x14, y.Unsigned)
}

func TestRuntimePointer(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x02, 0x00, 0x41}) // pointer value 2, then data at offset 2

	ok := rt.ExecuteString(`
		struct T {
			char data;
		};
		T *p : u8 @ 0x00;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	ptr, ok := patterns[0].(*PointerPattern)
	require.True(t, ok)
	assert.EqualValues(t, 0, ptr.Base().Offset)
	assert.EqualValues(t, 1, ptr.Base().Size)
	assert.EqualValues(t, 2, ptr.Address)

	require.NotNil(t, ptr.Pointee)
	pointee, ok := ptr.Pointee.(*StructPattern)
	require.True(t, ok)
	assert.EqualValues(t, 2, pointee.Base().Offset)

	data, found := pointee.Field("data")
	require.True(t, found)
	s, err := data.ToString()
	require.Nil(t, err)
	assert.Equal(t, "A", s)
}

func TestRuntimeConditionalLayout(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x01, 0x10, 0x00, 0x00, 0x00})

	ok := rt.ExecuteString(`
		struct H {
			u8 tag;
			if (tag == 1)
				u32 v;
		};
		H h @ 0;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	h, ok := patterns[0].(*StructPattern)
	require.True(t, ok)
	assert.EqualValues(t, 5, h.Base().Size)

	v, found := h.Field("v")
	require.True(t, found)
	lit, err := v.Value()
	require.Nil(t, err)
	vu, everr := lit.ToUnsigned()
	require.Nil(t, everr)
	assert.EqualValues(t, 16, vu)
}

func TestRuntimeMatchWithDefault(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0xFF})

	ok := rt.ExecuteString(`
		struct S {
			u8 x;
			match (x) {
				(1): u8 a;
				(2): u16 b;
				(_): padding c;
			}
		};
		S s @ 0;
	`, nil, map[string]Literal{})
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	s, ok := patterns[0].(*StructPattern)
	require.True(t, ok)

	_, found := s.Field("c")
	assert.True(t, found)
	_, found = s.Field("a")
	assert.False(t, found)
	_, found = s.Field("b")
	assert.False(t, found)
}

func TestRuntimeFunctionAndOutVariable(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)

	ok := rt.ExecuteString(`
		fn main() {
			return 42;
		}
		out u32 r;
		r = main();
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	out := rt.GetOutVariables()
	require.Contains(t, out, "r")
	ru, err := out["r"].ToUnsigned()
	require.Nil(t, err)
	assert.EqualValues(t, 42, ru)
}

func TestRuntimeErrorDirectiveFailsCompilation(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)

	ok := rt.ExecuteString(`#error "not supported here"`, nil, nil)
	assert.False(t, ok)
	require.NotNil(t, rt.GetError())

	ce, ok := rt.GetError().(*CompileError)
	require.True(t, ok, "expected a *CompileError, got %T", rt.GetError())
	assert.Equal(t, CodeUserError, ce.Code)
}

func TestRuntimePragmaOnceSuppressesDoubleInclude(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x07})
	rt.RegisterProtocol("virtual", virtualProtocol{
		"inc.pat": "#pragma once\nu8 included_count;",
	})

	ok := rt.ExecuteString(`
		#include <virtual://inc.pat>
		#include <virtual://inc.pat>
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())
}

func TestRuntimeRecursionDepthLimitRejectsDeepChain(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)

	ok := rt.ExecuteString(`
		#pragma eval_depth 2
		struct C { u8 x; };
		struct B { C c; };
		struct A { B b; };
	`, nil, nil)
	assert.False(t, ok)
	require.NotNil(t, rt.GetError())
	ce, ok := rt.GetError().(*CompileError)
	require.True(t, ok)
	assert.Equal(t, CodeRecursionDepth, ce.Code)
}

func TestRuntimeDangerousFunctionDeniedByDefault(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)
	called := false
	rt.AddDangerousFunction("net", "fetch", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		called = true
		return UnitLiteral(sp), nil
	})

	ok := rt.ExecuteString(`
		fn main() {
			net::fetch();
		}
		out u32 r;
		r = 0;
		main();
	`, nil, nil)
	assert.False(t, ok)
	assert.False(t, called, "dangerous function body must not run without a handler granting it")
}

func TestRuntimeDangerousFunctionAllowedByHandler(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)
	called := false
	rt.AddDangerousFunction("net", "fetch", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		called = true
		return UnsignedLiteral(7, sp), nil
	})
	rt.SetDangerousFunctionHandler(func(qualified string) bool {
		return qualified == "net::fetch"
	})

	ok := rt.ExecuteString(`
		fn main() {
			return net::fetch();
		}
		out u32 r;
		r = main();
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())
	assert.True(t, called)

	out := rt.GetOutVariables()
	ru, err := out["r"].ToUnsigned()
	require.Nil(t, err)
	assert.EqualValues(t, 7, ru)
}

func TestRuntimeConsoleLogCapturesPrint(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)

	var captured []string
	rt.SetLogger(func(level LogLevel, message string) {
		captured = append(captured, message)
	})

	ok := rt.ExecuteString(`
		fn main() {
			std::print("hello");
		}
		out u32 r;
		r = 0;
		main();
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	log := rt.GetConsoleLog()
	require.Len(t, log, 1)
	assert.Equal(t, "hello", log[0].Message)
	require.Len(t, captured, 1)
	assert.Equal(t, "hello", captured[0])
}

func TestRuntimeResetClearsPriorRunState(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x01})

	ok := rt.ExecuteString(`u8 v @ 0;`, nil, nil)
	require.True(t, ok)
	require.Len(t, rt.GetPatterns(), 1)

	rt.Reset()
	assert.Nil(t, rt.GetPatterns())
	assert.Nil(t, rt.GetError())
	assert.Empty(t, rt.GetConsoleLog())
}

func TestRuntimeFixedArray(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x10, 0x20, 0x30})

	ok := rt.ExecuteString(`u8 data[3] @ 0;`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	arr, isArr := patterns[0].(*ArrayPattern)
	require.True(t, isArr)
	require.Len(t, arr.Elements, 3)
	assert.EqualValues(t, 3, arr.Base().Size)

	v, err := arr.Elements[2].Value()
	require.Nil(t, err)
	u, cerr := v.ToUnsigned()
	require.Nil(t, cerr)
	assert.EqualValues(t, 0x30, u)
}

func TestRuntimeWhileArrayStopsAtEndOfData(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x01, 0x02, 0x03, 0x04})

	ok := rt.ExecuteString(`u16 words[while(!std::mem::eof())] @ 0;`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	arr, isArr := patterns[0].(*ArrayPattern)
	require.True(t, isArr)
	require.Len(t, arr.Elements, 2)
	assert.EqualValues(t, 4, arr.Base().Size)
}

func TestRuntimeArrayLimitExceededFails(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(make([]byte, 16))

	ok := rt.ExecuteString(`
		#pragma array_limit 4
		u8 data[while(true)] @ 0;
	`, nil, nil)
	assert.False(t, ok)
	require.NotNil(t, rt.GetError())
	ee, isEval := rt.GetError().(*EvalError)
	require.True(t, isEval, "expected an *EvalError, got %T", rt.GetError())
	assert.Equal(t, CodeLimit, ee.Code)
}

func TestRuntimeImportRunsSubRuntimeAtCursor(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x01, 0x02, 0x03, 0x04})
	rt.RegisterProtocol("virtual", virtualProtocol{
		"pair.pat": "struct Pair { u8 lo; u8 hi; }; Pair pair @ $;",
	})

	ok := rt.ExecuteString(`
		import "virtual://pair.pat" as Pair;
		Pair first @ 0x02;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	p, isStruct := patterns[0].(*StructPattern)
	require.True(t, isStruct)
	assert.Equal(t, "first", p.Base().Name)
	assert.EqualValues(t, 2, p.Base().Offset)
	assert.EqualValues(t, 2, p.Base().Size)

	lo, found := p.Field("lo")
	require.True(t, found)
	v, err := lo.Value()
	require.Nil(t, err)
	u, cerr := v.ToUnsigned()
	require.Nil(t, cerr)
	assert.EqualValues(t, 3, u)
}

func TestRuntimeImportWrapsMultiplePatternsInSyntheticStruct(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0xAA, 0xBB, 0xCC, 0xDD})
	rt.RegisterProtocol("virtual", virtualProtocol{
		"two.pat": "u8 a @ 2; u8 b @ 3;",
	})

	ok := rt.ExecuteString(`
		import "virtual://two.pat" as Two;
		Two t @ 0;
	`, nil, nil)
	require.True(t, ok, "execution failed: %v", rt.GetError())

	patterns := rt.GetPatterns()
	require.Len(t, patterns, 1)
	wrapper, isStruct := patterns[0].(*StructPattern)
	require.True(t, isStruct)
	assert.Equal(t, "t", wrapper.Base().Name)
	assert.EqualValues(t, 2, wrapper.Base().Offset)
	assert.EqualValues(t, 2, wrapper.Base().Size)
	require.Len(t, wrapper.Fields, 2)
	assert.Same(t, wrapper, wrapper.Fields[0].Base().Parent)
}

func TestRuntimeImportUnresolvableFails(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData([]byte{0x00})

	ok := rt.ExecuteString(`
		import "proto://nowhere.pat" as Nope;
		Nope n @ 0;
	`, nil, nil)
	assert.False(t, ok)
	require.NotNil(t, rt.GetError())
}

func TestRuntimeParseWithoutExecuting(t *testing.T) {
	rt := NewRuntime()

	prog, errs := rt.Parse(`struct P { u8 a; }; P p @ 0;`)
	require.Empty(t, errs)
	require.NotNil(t, prog)
	assert.Len(t, prog.Statements, 2)
	assert.Nil(t, rt.GetPatterns(), "Parse must not execute anything")

	_, errs = rt.Parse(`struct {`)
	assert.NotEmpty(t, errs)
}

func TestRuntimeUndefinedStdFunctionGetsHint(t *testing.T) {
	rt := NewRuntime()
	rt.SetMainData(nil)

	ok := rt.ExecuteString(`std::does_not_exist();`, nil, nil)
	assert.False(t, ok)
	require.NotNil(t, rt.GetError())

	ee, isEval := rt.GetError().(*EvalError)
	require.True(t, isEval, "expected an *EvalError, got %T", rt.GetError())
	assert.Equal(t, CodeFunction, ee.Code)
	assert.Contains(t, ee.Hint, "standard library")
}

// virtualProtocol resolves "virtual://<key>" paths from an in-memory map,
// standing in for a real import backend (file, git,...) in tests.
type virtualProtocol map[string]string

func (v virtualProtocol) Resolve(path string) (content string, name string, err error) {
	return v[path], path, nil
}
