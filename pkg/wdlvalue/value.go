// Package wdlvalue implements the runtime Value model: values tagged by
// their static wdltype.Type, with JSON in/out and the coercion/equality
// semantics that mirror the type system at runtime.
package wdlvalue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// Value is a tagged runtime value. File and Directory share the string
// payload with String; only the accompanying Type distinguishes them.
type Value struct {
	typ      wdltype.Type
	isNull   bool
	boolVal  bool
	intVal   int64
	fltVal   float64
	strVal   string
	listVal  []Value
	pairL    *Value
	pairR    *Value
	mapVal   *OrderedMap
	structV  *OrderedMap
}

// Null constructs a null value of the given (necessarily optional) type.
func Null(t wdltype.Type) Value {
	t.Optional = true
	return Value{typ: t, isNull: true}
}

func NewBool(b bool) Value   { return Value{typ: wdltype.Boolean(), boolVal: b} }
func NewInt(i int64) Value   { return Value{typ: wdltype.Int(), intVal: i} }
func NewFloat(f float64) Value { return Value{typ: wdltype.Float(), fltVal: f} }
func NewString(s string) Value { return Value{typ: wdltype.String(), strVal: s} }
func NewFile(path string) Value { return Value{typ: wdltype.File(), strVal: path} }
func NewDirectory(path string) Value { return Value{typ: wdltype.Directory(), strVal: path} }

// NewArray constructs an Array[itemType] value. nonempty mirrors the static
// Array[T]+ distinction but is not itself validated here (the typechecker
// enforces it statically; at runtime an empty list is simply Nonempty:false).
func NewArray(itemType wdltype.Type, items []Value) Value {
	return Value{typ: wdltype.Array(itemType, len(items) > 0), listVal: items}
}

// NewPair constructs a Pair value.
func NewPair(l, r Value) Value {
	return Value{typ: wdltype.Pair(l.typ, r.typ), pairL: &l, pairR: &r}
}

// NewMap constructs a Map(keyType,valueType) value from an OrderedMap of
// key->Value; the types are taken as given, not inferred from the entries.
func NewMap(keyType, valueType wdltype.Type, m *OrderedMap) Value {
	return Value{typ: wdltype.Map(keyType, valueType), mapVal: m}
}

// NewStruct constructs a StructInstance value.
func NewStruct(structType wdltype.Type, members *OrderedMap) Value {
	return Value{typ: structType, structV: members}
}

func (v Value) Type() wdltype.Type { return v.typ }
func (v Value) IsNull() bool       { return v.isNull }

func (v Value) AsBool() bool       { return v.boolVal }
func (v Value) AsInt() int64       { return v.intVal }
func (v Value) AsFloat() float64   { return v.fltVal }
func (v Value) AsString() string   { return v.strVal }
func (v Value) AsList() []Value    { return v.listVal }
func (v Value) AsPair() (Value, Value) { return *v.pairL, *v.pairR }
func (v Value) AsMap() *OrderedMap { return v.mapVal }
func (v Value) AsStruct() *OrderedMap { return v.structV }

// AsNumber promotes Int or Float to a float64, for mixed arithmetic.
func (v Value) AsNumber() float64 {
	if v.typ.Kind == wdltype.KindInt {
		return float64(v.intVal)
	}
	return v.fltVal
}

// Truthy implements Boolean coercion of a value in condition position.
func (v Value) Truthy() bool {
	if v.isNull {
		return false
	}
	switch v.typ.Kind {
	case wdltype.KindBoolean:
		return v.boolVal
	case wdltype.KindInt:
		return v.intVal != 0
	case wdltype.KindFloat:
		return v.fltVal != 0
	case wdltype.KindString, wdltype.KindFile, wdltype.KindDirectory:
		return v.strVal != ""
	case wdltype.KindArray:
		return len(v.listVal) > 0
	default:
		return true
	}
}

// Equal reports value equality, used by eval's == and the cache layer's
// output comparison.
func (v Value) Equal(other Value) bool {
	if v.isNull != other.isNull {
		return false
	}
	if v.isNull {
		return true
	}
	switch v.typ.Kind {
	case wdltype.KindBoolean:
		return v.boolVal == other.boolVal
	case wdltype.KindInt:
		if other.typ.Kind == wdltype.KindFloat {
			return float64(v.intVal) == other.fltVal
		}
		return v.intVal == other.intVal
	case wdltype.KindFloat:
		if other.typ.Kind == wdltype.KindInt {
			return v.fltVal == float64(other.intVal)
		}
		return v.fltVal == other.fltVal
	case wdltype.KindString, wdltype.KindFile, wdltype.KindDirectory:
		return v.strVal == other.strVal
	case wdltype.KindArray:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case wdltype.KindPair:
		return v.pairL.Equal(*other.pairL) && v.pairR.Equal(*other.pairR)
	case wdltype.KindMap:
		if v.mapVal.Len() != other.mapVal.Len() {
			return false
		}
		for _, k := range v.mapVal.Keys() {
			a, _ := v.mapVal.Get(k)
			b, ok := other.mapVal.Get(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	case wdltype.KindStruct, wdltype.KindObject:
		if v.structV.Len() != other.structV.Len() {
			return false
		}
		for _, k := range v.structV.Keys() {
			a, _ := v.structV.Get(k)
			b, ok := other.structV.Get(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.typ.Kind {
	case wdltype.KindArray:
		items := make([]Value, len(v.listVal))
		for i, it := range v.listVal {
			items[i] = it.Clone()
		}
		v.listVal = items
	case wdltype.KindPair:
		l, r := v.pairL.Clone(), v.pairR.Clone()
		v.pairL, v.pairR = &l, &r
	case wdltype.KindMap:
		if v.mapVal != nil {
			v.mapVal = v.mapVal.Clone()
		}
	case wdltype.KindStruct, wdltype.KindObject:
		if v.structV != nil {
			v.structV = v.structV.Clone()
		}
	}
	return v
}

// String renders a value for diagnostics/logging (not the JSON projection).
func (v Value) String() string {
	if v.isNull {
		return "null"
	}
	switch v.typ.Kind {
	case wdltype.KindBoolean:
		return strconv.FormatBool(v.boolVal)
	case wdltype.KindInt:
		return strconv.FormatInt(v.intVal, 10)
	case wdltype.KindFloat:
		return strconv.FormatFloat(v.fltVal, 'g', -1, 64)
	case wdltype.KindString, wdltype.KindFile, wdltype.KindDirectory:
		return v.strVal
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

// MarshalJSON produces the canonical JSON projection: numbers, strings,
// arrays, and objects; File/Directory serialize as plain strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNull {
		return []byte("null"), nil
	}
	switch v.typ.Kind {
	case wdltype.KindBoolean:
		return json.Marshal(v.boolVal)
	case wdltype.KindInt:
		return json.Marshal(v.intVal)
	case wdltype.KindFloat:
		return json.Marshal(v.fltVal)
	case wdltype.KindString, wdltype.KindFile, wdltype.KindDirectory:
		return json.Marshal(v.strVal)
	case wdltype.KindArray:
		out := make([]json.RawMessage, len(v.listVal))
		for i, it := range v.listVal {
			b, err := it.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return json.Marshal(out)
	case wdltype.KindPair:
		lb, err := v.pairL.MarshalJSON()
		if err != nil {
			return nil, err
		}
		rb, err := v.pairR.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"left":%s,"right":%s}`, lb, rb)), nil
	case wdltype.KindMap, wdltype.KindStruct, wdltype.KindObject:
		om := v.mapVal
		if om == nil {
			om = v.structV
		}
		return marshalOrderedMap(om)
	default:
		return nil, fmt.Errorf("wdlvalue: cannot marshal type %s", v.typ)
	}
}

func marshalOrderedMap(om *OrderedMap) ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, k := range om.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		v, _ := om.Get(k)
		vb, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// FromJSON decodes a Go-native JSON value (already unmarshaled via
// encoding/json into interface{}) into a Value coerced to the target type,
// the way workflow/task invocation inputs arrive from an inputs JSON file.
func FromJSON(raw interface{}, target wdltype.Type) (Value, error) {
	if raw == nil {
		if !target.Optional && target.Kind != wdltype.KindAny {
			return Value{}, fmt.Errorf("null not coercible to %s", target)
		}
		return Null(target), nil
	}
	switch target.Kind {
	case wdltype.KindAny:
		return fromJSONAny(raw)
	case wdltype.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected Boolean, got %T", raw)
		}
		return NewBool(b), nil
	case wdltype.KindInt:
		switch n := raw.(type) {
		case float64:
			return NewInt(int64(n)), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return Value{}, err
			}
			return NewInt(i), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot coerce %q to Int", n)
			}
			return NewInt(i), nil
		default:
			return Value{}, fmt.Errorf("expected Int, got %T", raw)
		}
	case wdltype.KindFloat:
		switch n := raw.(type) {
		case float64:
			return NewFloat(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, err
			}
			return NewFloat(f), nil
		default:
			return Value{}, fmt.Errorf("expected Float, got %T", raw)
		}
	case wdltype.KindString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected String, got %T", raw)
		}
		return NewString(s), nil
	case wdltype.KindFile:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected File path string, got %T", raw)
		}
		return NewFile(s), nil
	case wdltype.KindDirectory:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected Directory path string, got %T", raw)
		}
		return NewDirectory(s), nil
	case wdltype.KindArray:
		arr, ok := raw.([]interface{})
		if !ok {
			return Value{}, fmt.Errorf("expected Array, got %T", raw)
		}
		items := make([]Value, len(arr))
		for i, it := range arr {
			v, err := FromJSON(it, *target.Item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewArray(*target.Item, items), nil
	case wdltype.KindMap:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return Value{}, fmt.Errorf("expected Map, got %T", raw)
		}
		om := NewOrderedMap()
		for _, k := range sortedKeys(obj) {
			v, err := FromJSON(obj[k], *target.Value)
			if err != nil {
				return Value{}, err
			}
			om.Set(k, v)
		}
		return NewMap(*target.Key, *target.Value, om), nil
	case wdltype.KindStruct, wdltype.KindObject:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return Value{}, fmt.Errorf("expected Object, got %T", raw)
		}
		om := NewOrderedMap()
		for _, k := range sortedKeys(obj) {
			var mt wdltype.Type = wdltype.AnyType()
			if target.Members != nil {
				if t, ok := target.Members.Get(k); ok {
					mt = *t
				}
			}
			v, err := FromJSON(obj[k], mt)
			if err != nil {
				return Value{}, err
			}
			om.Set(k, v)
		}
		return NewStruct(target, om), nil
	default:
		return Value{}, fmt.Errorf("unsupported target type %s", target)
	}
}

func fromJSONAny(raw interface{}) (Value, error) {
	switch n := raw.(type) {
	case bool:
		return NewBool(n), nil
	case float64:
		if n == float64(int64(n)) {
			return NewInt(int64(n)), nil
		}
		return NewFloat(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return Value{}, err
		}
		return NewFloat(f), nil
	case string:
		return NewString(n), nil
	case []interface{}:
		items := make([]Value, len(n))
		for i, it := range n {
			v, err := fromJSONAny(it)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewArray(wdltype.AnyType(), items), nil
	case map[string]interface{}:
		om := NewOrderedMap()
		for _, k := range sortedKeys(n) {
			v, err := fromJSONAny(n[k])
			if err != nil {
				return Value{}, err
			}
			om.Set(k, v)
		}
		return NewStruct(wdltype.ObjectType(), om), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON value %T", raw)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
