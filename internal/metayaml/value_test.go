package metayaml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteralScalars(t *testing.T) {
	v, err := ParseLiteral(`"hello"`)
	require.NoError(t, err)
	assert.Equal(t, KindString, v.Kind)
	assert.Equal(t, "hello", v.Str)

	v, err = ParseLiteral(`42`)
	require.NoError(t, err)
	assert.Equal(t, KindInt, v.Kind)
	assert.Equal(t, int64(42), v.Int)

	v, err = ParseLiteral(`2.5`)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, v.Kind)

	v, err = ParseLiteral(`true`)
	require.NoError(t, err)
	assert.Equal(t, KindBool, v.Kind)
	assert.True(t, v.Bool)

	v, err = ParseLiteral(`null`)
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind)
}

func TestParseLiteralNestedObject(t *testing.T) {
	v, err := ParseLiteral(`{"author": "core", "version": 2, "tags": ["a", "b"], "extra": {"deep": true}}`)
	require.NoError(t, err)
	require.Equal(t, KindMap, v.Kind)

	assert.Equal(t, []string{"author", "version", "tags", "extra"}, v.Map.Keys())

	tags, ok := v.Map.Get("tags")
	require.True(t, ok)
	require.Equal(t, KindArray, tags.Kind)
	require.Len(t, tags.Array, 2)
	assert.Equal(t, "b", tags.Array[1].Str)

	extra, ok := v.Map.Get("extra")
	require.True(t, ok)
	deep, ok := extra.Map.Get("deep")
	require.True(t, ok)
	assert.True(t, deep.Bool)
}

func TestParseLiteralEmptyAndInvalid(t *testing.T) {
	v, err := ParseLiteral("")
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind)

	_, err = ParseLiteral(`{"unclosed": [`)
	assert.Error(t, err)
}
