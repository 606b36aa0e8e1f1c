// Package metayaml models the dynamically-typed literal values found in
// WDL's meta and parameter_meta blocks: a tagged union of null, bool, int,
// float, string, array-of-self, and map-from-string-to-self.
// This is intentionally a separate, simpler model from wdlvalue.Value,
// which carries a static wdltype.Type — meta values never participate in
// expression evaluation or coercion.
package metayaml

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the Value sum.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

// Value is one meta/parameter_meta literal.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Array []*Value
	Map   *OrderedMap
}

// OrderedMap preserves the declaration order of a meta object's keys.
type OrderedMap struct {
	keys   []string
	values map[string]*Value
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap { return &OrderedMap{values: map[string]*Value{}} }

// Set inserts or overwrites a key, preserving first-insertion order.
func (m *OrderedMap) Set(k string, v *Value) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Get returns a key's value and whether it exists.
func (m *OrderedMap) Get(k string) (*Value, bool) { v, ok := m.values[k]; return v, ok }

// Keys returns keys in insertion order.
func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// ParseLiteral parses the raw source text of a meta/parameter_meta block
// (a JSON-like literal subgrammar) by delegating to gopkg.in/yaml.v3,
// since JSON is a YAML subset and yaml.v3's Node walking already gives us
// ordered mapping keys for free.
func ParseLiteral(src string) (*Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		return nil, fmt.Errorf("metayaml: %w", err)
	}
	if len(node.Content) == 0 {
		return &Value{Kind: KindNull}, nil
	}
	return nodeToValue(node.Content[0])
}

func nodeToValue(n *yaml.Node) (*Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarToValue(n)
	case yaml.SequenceNode:
		arr := make([]*Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeToValue(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return &Value{Kind: KindArray, Array: arr}, nil
	case yaml.MappingNode:
		om := NewOrderedMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := nodeToValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			om.Set(key, v)
		}
		return &Value{Kind: KindMap, Map: om}, nil
	default:
		return nil, fmt.Errorf("metayaml: unsupported node kind %v", n.Kind)
	}
}

func scalarToValue(n *yaml.Node) (*Value, error) {
	var raw interface{}
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case nil:
		return &Value{Kind: KindNull}, nil
	case bool:
		return &Value{Kind: KindBool, Bool: v}, nil
	case int:
		return &Value{Kind: KindInt, Int: int64(v)}, nil
	case int64:
		return &Value{Kind: KindInt, Int: v}, nil
	case float64:
		return &Value{Kind: KindFloat, Float: v}, nil
	case string:
		return &Value{Kind: KindString, Str: v}, nil
	default:
		return nil, fmt.Errorf("metayaml: unsupported scalar %T", raw)
	}
}

// String renders a Value for debugging/status-API display.
func (v *Value) String() string {
	if v == nil {
		return "null"
	}
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindArray:
		return fmt.Sprintf("%v", v.Array)
	case KindMap:
		return fmt.Sprintf("%v", v.Map.keys)
	default:
		return "?"
	}
}
