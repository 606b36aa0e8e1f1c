package wdlvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// roundTrip marshals v and decodes it back through FromJSON against v's own
// static type.
func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var raw interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	out, err := FromJSON(raw, v.Type())
	require.NoError(t, err)
	return out
}

func TestJSONRoundTripPrimitives(t *testing.T) {
	for _, v := range []Value{
		NewBool(true),
		NewBool(false),
		NewInt(-7),
		NewFloat(2.5),
		NewString("hello"),
	} {
		assert.True(t, v.Equal(roundTrip(t, v)), "round trip of %s", v)
	}
}

func TestJSONRoundTripCompound(t *testing.T) {
	arr := NewArray(wdltype.Int(), []Value{NewInt(1), NewInt(2), NewInt(3)})
	assert.True(t, arr.Equal(roundTrip(t, arr)))

	om := NewOrderedMap()
	om.Set("a", NewInt(1))
	om.Set("b", NewInt(2))
	m := NewMap(wdltype.String(), wdltype.Int(), om)
	assert.True(t, m.Equal(roundTrip(t, m)))
}

func TestFileSerializesAsString(t *testing.T) {
	f := NewFile("/data/reads.bam")
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `"/data/reads.bam"`, string(b))
}

func TestNullMarshalsAsJSONNull(t *testing.T) {
	n := Null(wdltype.Int())
	b, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
	assert.True(t, n.Type().Optional)
}

func TestFromJSONCoercesToTarget(t *testing.T) {
	v, err := FromJSON(float64(42), wdltype.Int())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.AsInt())

	v, err = FromJSON("out.txt", wdltype.File())
	require.NoError(t, err)
	assert.Equal(t, wdltype.KindFile, v.Type().Kind)

	_, err = FromJSON("nope", wdltype.Boolean())
	assert.Error(t, err)

	_, err = FromJSON(nil, wdltype.Int())
	assert.Error(t, err)

	v, err = FromJSON(nil, wdltype.Int().WithOptional(true))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFromJSONStruct(t *testing.T) {
	members := wdltype.NewMemberList()
	it, st := wdltype.Int(), wdltype.String()
	members.Set("n", &it)
	members.Set("label", &st)
	target := wdltype.StructInstance("Sample", members)

	v, err := FromJSON(map[string]interface{}{"n": float64(3), "label": "x"}, target)
	require.NoError(t, err)
	got, ok := v.AsStruct().Get("n")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.AsInt())
}

func TestCoerceIntToFloat(t *testing.T) {
	v, ok := Coerce(NewInt(3), wdltype.Float())
	require.True(t, ok)
	assert.Equal(t, 3.0, v.AsFloat())
}

func TestCoerceStringFileInterchange(t *testing.T) {
	f, ok := Coerce(NewString("/tmp/x"), wdltype.File())
	require.True(t, ok)
	assert.Equal(t, wdltype.KindFile, f.Type().Kind)

	s, ok := Coerce(f, wdltype.String())
	require.True(t, ok)
	assert.Equal(t, wdltype.KindString, s.Type().Kind)
	assert.Equal(t, "/tmp/x", s.AsString())
}

func TestCoerceArrayMemberwise(t *testing.T) {
	arr := NewArray(wdltype.Int(), []Value{NewInt(1), NewInt(2)})
	v, ok := Coerce(arr, wdltype.Array(wdltype.Float(), false))
	require.True(t, ok)
	assert.Equal(t, 1.0, v.AsList()[0].AsFloat())

	_, ok = Coerce(arr, wdltype.Array(wdltype.Boolean(), false))
	assert.False(t, ok)
}

func TestCoerceNullRequiresOptionalTarget(t *testing.T) {
	_, ok := Coerce(Null(wdltype.Int()), wdltype.Int())
	assert.False(t, ok)

	v, ok := Coerce(Null(wdltype.Int()), wdltype.Int().WithOptional(true))
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestCoerceMapToStruct(t *testing.T) {
	members := wdltype.NewMemberList()
	f1, f2 := wdltype.Float(), wdltype.Float()
	members.Set("x", &f1)
	members.Set("y", &f2)
	target := wdltype.StructInstance("Point", members)

	om := NewOrderedMap()
	om.Set("x", NewInt(1))
	om.Set("y", NewInt(2))
	m := NewMap(wdltype.String(), wdltype.Int(), om)

	v, ok := Coerce(m, target)
	require.True(t, ok)
	x, _ := v.AsStruct().Get("x")
	assert.Equal(t, 1.0, x.AsFloat())

	// Missing member fails.
	short := NewOrderedMap()
	short.Set("x", NewInt(1))
	_, ok = Coerce(NewMap(wdltype.String(), wdltype.Int(), short), target)
	assert.False(t, ok)
}

func TestEqualMixedNumerics(t *testing.T) {
	assert.True(t, NewInt(2).Equal(NewFloat(2.0)))
	assert.False(t, NewInt(2).Equal(NewFloat(2.5)))
}

func TestTruthy(t *testing.T) {
	assert.False(t, Null(wdltype.Boolean()).Truthy())
	assert.True(t, NewInt(1).Truthy())
	assert.False(t, NewString("").Truthy())
	assert.False(t, NewArray(wdltype.Int(), nil).Truthy())
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	om := NewOrderedMap()
	om.Set("z", NewInt(1))
	om.Set("a", NewInt(2))
	om.Set("z", NewInt(3)) // overwrite keeps position
	assert.Equal(t, []string{"z", "a"}, om.Keys())
	v, _ := om.Get("z")
	assert.Equal(t, int64(3), v.AsInt())

	om.Delete("z")
	assert.Equal(t, []string{"a"}, om.Keys())
}

func TestCloneIsDeep(t *testing.T) {
	om := NewOrderedMap()
	om.Set("k", NewInt(1))
	m := NewMap(wdltype.String(), wdltype.Int(), om)
	c := m.Clone()
	om.Set("k", NewInt(99))
	v, _ := c.AsMap().Get("k")
	assert.Equal(t, int64(1), v.AsInt())
}
