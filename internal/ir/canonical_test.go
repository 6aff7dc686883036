package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool", Bool(true), "true"},
		{"empty list", List{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"sorted keys", Object{"zebra": Int(1), "alpha": Int(2)}, `{"alpha":2,"zebra":1}`},
		{"nested", Object{"z": Object{"b": Int(1), "a": Int(2)}, "a": Int(3)}, `{"a":3,"z":{"a":2,"b":1}}`},
		{"no html escaping", String("<a&b>"), `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := String("e\u0301") // e + combining acute
	composed := String("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	out, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(out))

	// A literal backslash followed by the text u2028 stays escaped.
	out, err = MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(out))
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(Object{"a": nil})
	assert.Error(t, err)
}

func TestMarshalCanonicalRejectsNFCKeyCollision(t *testing.T) {
	_, err := MarshalCanonical(Object{"e\u0301": Int(1), "\u00e9": Int(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide")
}

func TestCanonicalizeNormalizesPayload(t *testing.T) {
	got, err := Canonicalize(Object{"course": String("cafe\u0301")})
	require.NoError(t, err)
	assert.Equal(t, Object{"course": String("caf\u00e9")}, got)

	empty, err := Canonicalize(nil)
	require.NoError(t, err)
	assert.Equal(t, Object{}, empty)
}

func TestEqualCanonical(t *testing.T) {
	eq, err := EqualCanonical(Object{"a": String("e\u0301")}, Object{"a": String("\u00e9")})
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = EqualCanonical(Object{"a": Int(1)}, Object{"a": Int(2)})
	require.NoError(t, err)
	assert.False(t, eq)
}
