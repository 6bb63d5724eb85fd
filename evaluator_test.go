package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBytesRejectsMainSection(t *testing.T) {
	sections := NewSectionRegistry([]byte{0x00, 0x00})
	ev := NewEvaluator(NewSourceRegistry(), sections)

	err := ev.writeBytes(MainSectionID, 0, []byte{0xFF})
	require.NotNil(t, err)
	assert.Equal(t, CodeMemory, err.Code)
}

func TestWriteBytesAllowsHeapSection(t *testing.T) {
	sections := NewSectionRegistry(nil)
	ev := NewEvaluator(NewSourceRegistry(), sections)

	err := ev.writeBytes(HeapSectionID, 0, []byte{0x01, 0x02})
	require.Nil(t, err)

	raw, rerr := ev.readBytes(HeapSectionID, 0, 2)
	require.Nil(t, rerr)
	assert.Equal(t, []byte{0x01, 0x02}, raw)
}

func TestCallFunctionDeniesUnregisteredDangerousBuiltin(t *testing.T) {
	RegisterDangerousBuiltin("test::dangerous_probe", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		return UnsignedLiteral(1, sp), nil
	})

	ev := NewEvaluator(NewSourceRegistry(), NewSectionRegistry(nil))
	// no handler installed: e.dangerous is nil, so the gate must deny.
	n := &FunctionCallNode{Namespace: "test", Name: "dangerous_probe", Sp: EmptySpan}

	_, err := ev.callFunction(n)
	require.NotNil(t, err)
	assert.Equal(t, CodeFunction, err.Code)
}

func TestCallFunctionAllowsDangerousBuiltinWhenGranted(t *testing.T) {
	RegisterDangerousBuiltin("test::dangerous_probe_2", func(e *Evaluator, args []Literal, sp Span) (Literal, *EvalError) {
		return UnsignedLiteral(9, sp), nil
	})

	ev := NewEvaluator(NewSourceRegistry(), NewSectionRegistry(nil))
	ev.SetDangerousHandler(func(qualified string) bool { return qualified == "test::dangerous_probe_2" })
	n := &FunctionCallNode{Namespace: "test", Name: "dangerous_probe_2", Sp: EmptySpan}

	v, err := ev.callFunction(n)
	require.Nil(t, err)
	u, cerr := v.ToUnsigned()
	require.Nil(t, cerr)
	assert.EqualValues(t, 9, u)
}
