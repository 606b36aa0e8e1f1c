package wdltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Int", Int().String())
	assert.Equal(t, "Int?", Int().WithOptional(true).String())
	assert.Equal(t, "Array[String]+", Array(String(), true).String())
	assert.Equal(t, "Map[String,File]", Map(String(), File()).String())
	assert.Equal(t, "Pair[Int,Float]", Pair(Int(), Float()).String())

	members := NewMemberList()
	it := Int()
	members.Set("n", &it)
	assert.Equal(t, "Person", StructInstance("Person", members).String())
}

func TestEqualsIgnoresQuantifiersByDefault(t *testing.T) {
	assert.True(t, Int().Equals(Int().WithOptional(true), false))
	assert.False(t, Int().Equals(Int().WithOptional(true), true))

	assert.True(t, Array(Int(), true).Equals(Array(Int(), false), false))
	assert.False(t, Array(Int(), true).Equals(Array(Int(), false), true))

	assert.False(t, Int().Equals(Float(), false))
	assert.True(t, Map(String(), Int()).Equals(Map(String(), Int()), true))
	assert.False(t, Map(String(), Int()).Equals(Map(String(), Float()), false))
}

func TestCoercionPrimitives(t *testing.T) {
	assert.True(t, Int().IsCoercibleTo(Float()))
	assert.False(t, Float().IsCoercibleTo(Int()))

	assert.True(t, String().IsCoercibleTo(File()))
	assert.True(t, String().IsCoercibleTo(Directory()))
	assert.True(t, File().IsCoercibleTo(String()))
	assert.False(t, File().IsCoercibleTo(Directory()))

	assert.True(t, AnyType().IsCoercibleTo(Int()))
	assert.True(t, Int().IsCoercibleTo(AnyType()))
}

func TestCoercionOptionals(t *testing.T) {
	assert.True(t, Int().IsCoercibleTo(Int().WithOptional(true)))
	// T? -> T permitted: IsCoercibleTo has no check_quant mode and always allows it.
	assert.True(t, Int().WithOptional(true).IsCoercibleTo(Int()))
}

func TestCoercionArrays(t *testing.T) {
	assert.True(t, Array(Int(), false).IsCoercibleTo(Array(Float(), false)))
	assert.True(t, Array(Int(), true).IsCoercibleTo(Array(Int(), false)))
	assert.False(t, Array(Int(), false).IsCoercibleTo(Array(Int(), true)))
	assert.False(t, Array(Int(), false).IsCoercibleTo(Array(String(), false)))
}

func TestCoercionMapToStruct(t *testing.T) {
	members := NewMemberList()
	f1, f2 := Float(), Float()
	members.Set("x", &f1)
	members.Set("y", &f2)
	st := StructInstance("Point", members)

	assert.True(t, Map(String(), Int()).IsCoercibleTo(st))
	assert.False(t, Map(Int(), Int()).IsCoercibleTo(st))

	strMembers := NewMemberList()
	s := String()
	strMembers.Set("x", &s)
	stStr := StructInstance("Label", strMembers)
	assert.False(t, Map(String(), Int()).IsCoercibleTo(stStr))
}

func TestUnify(t *testing.T) {
	u, ok := Unify(Int(), Float(), false)
	require.True(t, ok)
	assert.Equal(t, KindFloat, u.Kind)

	u, ok = Unify(Int(), Int().WithOptional(true), false)
	require.True(t, ok)
	assert.True(t, u.Optional)

	u, ok = Unify(AnyType(), String(), false)
	require.True(t, ok)
	assert.Equal(t, KindString, u.Kind)

	_, ok = Unify(Boolean(), Array(Int(), false), false)
	assert.False(t, ok)
}

func TestIsPrimitive(t *testing.T) {
	assert.True(t, String().IsPrimitive())
	assert.True(t, File().IsPrimitive())
	assert.False(t, Array(Int(), false).IsPrimitive())
	assert.False(t, ObjectType().IsPrimitive())
}

func TestParseMemoryString(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"4 GB", 4_000_000_000},
		{"100M", 100_000_000},
		{"1 GiB", 1 << 30},
		{"512 MiB", 512 << 20},
		{"2048", 2048},
		{"1.5 GB", 1_500_000_000},
		{"16K", 16_000},
	}
	for _, c := range cases {
		got, err := ParseMemoryString(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseMemoryString("lots")
	assert.Error(t, err)
	_, err = ParseMemoryString("4 ZB")
	assert.Error(t, err)
}
