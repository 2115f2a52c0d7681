package mapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringTransforms(t *testing.T) {
	cases := []struct {
		transform string
		in        interface{}
		args      []interface{}
		want      interface{}
	}{
		{"uppercase", "hello world", nil, "HELLO WORLD"},
		{"lowercase", "Hello World", nil, "hello world"},
		{"title", "hello world", nil, "Hello World"},
		{"camel", "hello big world", nil, "helloBigWorld"},
		{"pascal", "hello big world", nil, "HelloBigWorld"},
		{"snake", "Hello Big World", nil, "hello_big_world"},
		{"kebab", "Hello Big World", nil, "hello-big-world"},
		{"kebab", "camelCaseInput", nil, "camel-case-input"},
		{"capital", "hello world", nil, "Hello World"},
		{"trim", "  padded  ", nil, "padded"},
		{"truncate", "abcdefgh", []interface{}{float64(3)}, "abc"},
		{"replace", "a-b-c", []interface{}{"-", "_"}, "a_b_c"},
		{"join", []interface{}{"a", "b"}, []interface{}{"|"}, "a|b"},
		{"join", []interface{}{"a", "b"}, nil, "a, b"},
	}
	for _, c := range cases {
		t.Run(c.transform, func(t *testing.T) {
			got, err := ApplyTransform(c.transform, c.in, c.args...)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestNumericTransforms(t *testing.T) {
	got, err := ApplyTransform("round", 3.14159, float64(2))
	require.NoError(t, err)
	assert.Equal(t, 3.14, got)

	got, err = ApplyTransform("floor", 3.9)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = ApplyTransform("ceil", 3.1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	got, err = ApplyTransform("abs", -7.5)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got)

	got, err = ApplyTransform("toFixed", 3.14159, float64(2))
	require.NoError(t, err)
	assert.Equal(t, "3.14", got)

	_, err = ApplyTransform("round", "not a number")
	assert.Error(t, err)
}

func TestDateTransforms(t *testing.T) {
	got, err := ApplyTransform("formatDate", "2024-06-01T10:30:00Z", "yyyy-MM-dd")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", got)

	got, err = ApplyTransform("isoDate", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T00:00:00.000Z", got)

	got, err = ApplyTransform("timestamp", "1970-01-01T00:00:01Z")
	require.NoError(t, err)
	assert.Equal(t, float64(1000), got)

	_, err = ApplyTransform("formatDate", "yesterday-ish")
	assert.Error(t, err)
}

func TestArrayTransforms(t *testing.T) {
	arr := []interface{}{"a", "b", "a", "c"}

	got, err := ApplyTransform("first", arr)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	got, err = ApplyTransform("last", arr)
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	got, err = ApplyTransform("length", arr)
	require.NoError(t, err)
	assert.Equal(t, float64(4), got)

	got, err = ApplyTransform("unique", arr)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c"}, got)

	got, err = ApplyTransform("toArray", "solo")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"solo"}, got)
}

func TestUnknownTransform(t *testing.T) {
	_, err := ApplyTransform("frobnicate", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transform")
}

func TestGenerateSlug(t *testing.T) {
	rec := map[string]interface{}{
		"title": "Hello, World!",
		"sku":   "A-100",
	}

	assert.Equal(t, "hello-world", GenerateSlug("{{title}}", rec))
	assert.Equal(t, "hello-world-a-100", GenerateSlug("{{title}} {{sku}}", rec))

	// empty render falls back to a safe literal
	assert.Equal(t, "item", GenerateSlug("{{missing}}", rec))
	assert.Equal(t, "item", GenerateSlug("!!!", rec))

	long := map[string]interface{}{"title": strings.Repeat("a", 150)}
	slug := GenerateSlug("{{title}}", long)
	assert.LessOrEqual(t, len(slug), 100)
	assert.True(t, ValidSlug(slug))
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("hello-world-1"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug("-leading"))
	assert.False(t, ValidSlug("trailing-"))
	assert.False(t, ValidSlug("Has-Caps"))
	assert.False(t, ValidSlug(strings.Repeat("a", 101)))
}
