package patternlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralToUnsigned(t *testing.T) {
	tests := []struct {
		name      string
		lit       Literal
		expected  uint64
		expectErr bool
	}{
		{"unsigned passthrough", UnsignedLiteral(42, EmptySpan), 42, false},
		{"signed positive", SignedLiteral(7, EmptySpan), 7, false},
		{"signed negative rejected", SignedLiteral(-1, EmptySpan), 0, true},
		{"float truncates", FloatLiteral(3.9, EmptySpan), 3, false},
		{"char widens", CharLiteral('A', EmptySpan), 65, false},
		{"bool true", BoolLiteral(true, EmptySpan), 1, false},
		{"bool false", BoolLiteral(false, EmptySpan), 0, false},
		{"string rejected", StringLiteral("x", EmptySpan), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.lit.ToUnsigned()
			if tc.expectErr {
				require.NotNil(t, err)
				assert.Equal(t, CodeType, err.Code)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLiteralToSignedOverflow(t *testing.T) {
	huge := UnsignedLiteral(1<<63, EmptySpan)
	_, err := huge.ToSigned()
	require.NotNil(t, err)
	assert.Equal(t, CodeType, err.Code)
}

func TestLiteralToFloat(t *testing.T) {
	tests := []struct {
		name     string
		lit      Literal
		expected float64
	}{
		{"unsigned", UnsignedLiteral(4, EmptySpan), 4},
		{"signed", SignedLiteral(-4, EmptySpan), -4},
		{"float passthrough", FloatLiteral(1.5, EmptySpan), 1.5},
		{"char", CharLiteral('0', EmptySpan), 48},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.lit.ToFloat()
			require.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}

	_, err := StringLiteral("nope", EmptySpan).ToFloat()
	require.NotNil(t, err)
}

func TestLiteralToBoolean(t *testing.T) {
	tests := []struct {
		name     string
		lit      Literal
		expected bool
	}{
		{"zero unsigned is false", UnsignedLiteral(0, EmptySpan), false},
		{"nonzero unsigned is true", UnsignedLiteral(5, EmptySpan), true},
		{"zero signed is false", SignedLiteral(0, EmptySpan), false},
		{"nonzero float is true", FloatLiteral(0.1, EmptySpan), true},
		{"bool passthrough", BoolLiteral(true, EmptySpan), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.lit.ToBoolean()
			require.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}

	_, err := StringLiteral("x", EmptySpan).ToBoolean()
	require.NotNil(t, err)
}

func TestLiteralToStringValue(t *testing.T) {
	tests := []struct {
		name     string
		lit      Literal
		expected string
	}{
		{"string passthrough", StringLiteral("hi", EmptySpan), "hi"},
		{"char", CharLiteral('Z', EmptySpan), "Z"},
		{"unsigned", UnsignedLiteral(123, EmptySpan), "123"},
		{"signed", SignedLiteral(-5, EmptySpan), "-5"},
		{"bool", BoolLiteral(true, EmptySpan), "true"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.lit.ToStringValue()
			require.Nil(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLiteralToPattern(t *testing.T) {
	sections := NewSectionRegistry([]byte{0x01})
	ev := NewEvaluator(NewSourceRegistry(), sections)
	p, cerr := ev.createPrimitivePattern(TU8, "v", 0, MainSectionID, DefaultEndian, EmptySpan)
	require.Nil(t, cerr)

	lit := PatternLiteral(p, EmptySpan)
	got, err := lit.ToPattern()
	require.Nil(t, err)
	assert.Equal(t, p, got)

	_, err = UnsignedLiteral(1, EmptySpan).ToPattern()
	require.NotNil(t, err)
}

func TestLiteralIsNumeric(t *testing.T) {
	assert.True(t, UnsignedLiteral(1, EmptySpan).IsNumeric())
	assert.True(t, SignedLiteral(1, EmptySpan).IsNumeric())
	assert.True(t, FloatLiteral(1, EmptySpan).IsNumeric())
	assert.True(t, CharLiteral('a', EmptySpan).IsNumeric())
	assert.False(t, BoolLiteral(true, EmptySpan).IsNumeric())
	assert.False(t, StringLiteral("x", EmptySpan).IsNumeric())
	assert.False(t, UnitLiteral(EmptySpan).IsNumeric())
}

func TestLiteralKindString(t *testing.T) {
	assert.Equal(t, "unsigned", LiteralUnsigned.String())
	assert.Equal(t, "signed", LiteralSigned.String())
	assert.Equal(t, "float", LiteralFloat.String())
	assert.Equal(t, "char", LiteralChar.String())
	assert.Equal(t, "bool", LiteralBool.String())
	assert.Equal(t, "string", LiteralString.String())
	assert.Equal(t, "pattern", LiteralPattern.String())
	assert.Equal(t, "unit", LiteralUnit.String())
}
