// Package wdltype represents the WDL static type system: a closed sum of
// primitive and compound type variants, each carrying an optional/nonempty
// quantifier, with structural equality, coercibility, and unification rules.
package wdltype

import (
	"fmt"
	"strings"
)

// Kind discriminates the Type sum.
type Kind int

const (
	KindBoolean Kind = iota
	KindInt
	KindFloat
	KindString
	KindFile
	KindDirectory
	KindArray
	KindMap
	KindPair
	KindStruct
	KindObject
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "Boolean"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindFile:
		return "File"
	case KindDirectory:
		return "Directory"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindPair:
		return "Pair"
	case KindStruct:
		return "Struct"
	case KindObject:
		return "Object"
	case KindAny:
		return "Any"
	default:
		return "?"
	}
}

// Type is an immutable value describing the static type of an expression or
// declaration. Compound variants hold nested Types; StructInstance holds an
// ordered member list that may be nil prior to typedef resolution.
type Type struct {
	Kind     Kind
	Optional bool

	// Array
	Item     *Type
	Nonempty bool

	// Map
	Key   *Type
	Value *Type

	// Pair
	Left  *Type
	Right *Type

	// StructInstance
	StructName string
	Members    *MemberList
}

// MemberList is an insertion-ordered string->Type map used for struct members.
type MemberList struct {
	names []string
	types map[string]*Type
}

// NewMemberList builds an empty, ready-to-use MemberList.
func NewMemberList() *MemberList {
	return &MemberList{types: map[string]*Type{}}
}

// Set appends or overwrites a member's type, preserving first-insertion order.
func (m *MemberList) Set(name string, t *Type) {
	if _, ok := m.types[name]; !ok {
		m.names = append(m.names, name)
	}
	m.types[name] = t
}

// Get returns a member's type and whether it exists.
func (m *MemberList) Get(name string) (*Type, bool) {
	t, ok := m.types[name]
	return t, ok
}

// Names returns member names in declaration order.
func (m *MemberList) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len reports the member count.
func (m *MemberList) Len() int { return len(m.names) }

func simple(k Kind, optional bool) Type { return Type{Kind: k, Optional: optional} }

// Boolean, Int, Float, String, File, Directory, Any construct the primitive
// types, non-optional by default.
func Boolean() Type   { return simple(KindBoolean, false) }
func Int() Type       { return simple(KindInt, false) }
func Float() Type     { return simple(KindFloat, false) }
func String() Type    { return simple(KindString, false) }
func File() Type      { return simple(KindFile, false) }
func Directory() Type { return simple(KindDirectory, false) }
func AnyType() Type   { return simple(KindAny, false) }
func ObjectType() Type { return simple(KindObject, false) }

// Array builds Array(item, nonempty).
func Array(item Type, nonempty bool) Type {
	it := item
	return Type{Kind: KindArray, Item: &it, Nonempty: nonempty}
}

// Map builds Map(key, value).
func Map(key, value Type) Type {
	k, v := key, value
	return Type{Kind: KindMap, Key: &k, Value: &v}
}

// Pair builds Pair(left, right).
func Pair(left, right Type) Type {
	l, r := left, right
	return Type{Kind: KindPair, Left: &l, Right: &r}
}

// StructInstance builds a named struct type. members may be nil prior to
// typedef resolution.
func StructInstance(name string, members *MemberList) Type {
	return Type{Kind: KindStruct, StructName: name, Members: members}
}

// WithOptional returns a copy of t with the optional flag set to opt.
func (t Type) WithOptional(opt bool) Type {
	t.Optional = opt
	return t
}

// IsOptional reports whether a null value is permitted.
func (t Type) IsOptional() bool { return t.Optional }

// String renders the type the way WDL source and error messages do:
// "Array[Int]+", "Map[String,File]", "Int?", etc.
func (t Type) String() string {
	var s string
	switch t.Kind {
	case KindArray:
		s = fmt.Sprintf("Array[%s]", t.Item.String())
		if t.Nonempty {
			s += "+"
		}
	case KindMap:
		s = fmt.Sprintf("Map[%s,%s]", t.Key.String(), t.Value.String())
	case KindPair:
		s = fmt.Sprintf("Pair[%s,%s]", t.Left.String(), t.Right.String())
	case KindStruct:
		s = t.StructName
	default:
		s = t.Kind.String()
	}
	if t.Optional {
		s += "?"
	}
	return s
}

// Equals reports structural equality. By default optional/nonempty are
// ignored; pass checkQuant=true to include them.
func (t Type) Equals(other Type, checkQuant bool) bool {
	if checkQuant && t.Optional != other.Optional {
		return false
	}
	if t.Kind != other.Kind {
		// Any is equal to nothing but itself here; coercion handles Any.
		return false
	}
	switch t.Kind {
	case KindArray:
		if checkQuant && t.Nonempty != other.Nonempty {
			return false
		}
		return t.Item.Equals(*other.Item, checkQuant)
	case KindMap:
		return t.Key.Equals(*other.Key, checkQuant) && t.Value.Equals(*other.Value, checkQuant)
	case KindPair:
		return t.Left.Equals(*other.Left, checkQuant) && t.Right.Equals(*other.Right, checkQuant)
	case KindStruct:
		if t.StructName != other.StructName {
			return false
		}
		return membersEqual(t.Members, other.Members, checkQuant)
	default:
		return true
	}
}

func membersEqual(a, b *MemberList, checkQuant bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Len() != b.Len() {
		return false
	}
	for _, name := range a.names {
		at, _ := a.Get(name)
		bt, ok := b.Get(name)
		if !ok || !at.Equals(*bt, checkQuant) {
			return false
		}
	}
	return true
}

// IsCoercibleTo implements the coercion relation between static types.
func (t Type) IsCoercibleTo(dst Type) bool {
	// 1. Any coerces to/from anything.
	if t.Kind == KindAny || dst.Kind == KindAny {
		return true
	}
	// 3. T -> T? always; T? -> T only outside check_quant (caller's concern;
	// here we permit it, matching the non-check_quant default).
	if dst.Optional && !t.Optional {
		return t.withOptionalLike(dst).isCoercibleToCore(dst)
	}
	return t.isCoercibleToCore(dst)
}

func (t Type) withOptionalLike(dst Type) Type {
	t2 := t
	t2.Optional = dst.Optional
	return t2
}

func (t Type) isCoercibleToCore(dst Type) bool {
	if t.Kind == dst.Kind {
		switch t.Kind {
		case KindArray:
			if t.Nonempty && !dst.Nonempty {
				return t.Item.IsCoercibleTo(*dst.Item)
			}
			if !t.Nonempty && dst.Nonempty {
				return false // 4. reverse flagged: not coercible
			}
			return t.Item.IsCoercibleTo(*dst.Item)
		case KindMap:
			return t.Key.IsCoercibleTo(*dst.Key) && t.Value.IsCoercibleTo(*dst.Value)
		case KindPair:
			return t.Left.IsCoercibleTo(*dst.Left) && t.Right.IsCoercibleTo(*dst.Right)
		case KindStruct:
			if t.StructName == dst.StructName {
				return true
			}
			return structMembersCoercible(t.Members, dst.Members)
		default:
			return true
		}
	}
	switch {
	case t.Kind == KindInt && dst.Kind == KindFloat:
		return true // 2.
	case t.Kind == KindString && dst.Kind == KindFile:
		return true
	case t.Kind == KindString && dst.Kind == KindDirectory:
		return true
	case t.Kind == KindFile && dst.Kind == KindString:
		return true
	case t.Kind == KindMap && dst.Kind == KindStruct:
		// Map[String,V] -> Struct when every member's type is coercible
		// from V (the map's uniform value type stands in for each member).
		if t.Key == nil || t.Key.Kind != KindString || dst.Members == nil {
			return false
		}
		for _, name := range dst.Members.Names() {
			mt, _ := dst.Members.Get(name)
			if !t.Value.IsCoercibleTo(*mt) {
				return false
			}
		}
		return true
	case t.Kind == KindObject && dst.Kind == KindStruct:
		return true
	}
	return false
}

func structMembersCoercible(src, dst *MemberList) bool {
	if dst == nil {
		return false
	}
	if src == nil {
		return true
	}
	if src.Len() != dst.Len() {
		return false
	}
	for _, name := range dst.Names() {
		dt, _ := dst.Get(name)
		st, ok := src.Get(name)
		if !ok || !st.IsCoercibleTo(*dt) {
			return false
		}
	}
	return true
}

// Unify computes the common supertype of a and b, used for array-literal
// element typing and if/then/else branch typing. ok is false when no common
// type exists.
func Unify(a, b Type, checkQuant bool) (Type, bool) {
	if a.Kind == KindAny {
		return b, true
	}
	if b.Kind == KindAny {
		return a, true
	}
	if a.Equals(b, false) {
		result := a
		if a.Optional || b.Optional {
			result.Optional = true
		}
		if a.Kind == KindArray {
			result.Nonempty = a.Nonempty && b.Nonempty
		}
		return result, true
	}
	if a.IsCoercibleTo(b) {
		r := b
		r.Optional = a.Optional || b.Optional
		return r, true
	}
	if b.IsCoercibleTo(a) {
		r := a
		r.Optional = a.Optional || b.Optional
		return r, true
	}
	return Type{}, false
}

// IsPrimitive reports whether t is a legal Map key type.
func (t Type) IsPrimitive() bool {
	switch t.Kind {
	case KindBoolean, KindInt, KindFloat, KindString, KindFile, KindDirectory:
		return true
	default:
		return false
	}
}

// ParseMemoryString normalizes a runtime "memory" value like "4 GB",
// "100M", "1 GiB" into bytes. Lives here since it is pure type/unit
// parsing with no task-runner dependency.
func ParseMemoryString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var numStr, unit string
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numStr = s[:i]
	unit = strings.TrimSpace(s[i:])
	if numStr == "" {
		return 0, fmt.Errorf("invalid memory value %q", s)
	}
	var whole, frac int64
	var fracDigits int
	dot := strings.IndexByte(numStr, '.')
	var intPart, fracPart string
	if dot >= 0 {
		intPart, fracPart = numStr[:dot], numStr[dot+1:]
	} else {
		intPart = numStr
	}
	for _, c := range intPart {
		whole = whole*10 + int64(c-'0')
	}
	for _, c := range fracPart {
		frac = frac*10 + int64(c-'0')
		fracDigits++
	}
	mult, err := memoryUnitMultiplier(unit)
	if err != nil {
		return 0, err
	}
	bytes := whole * mult
	if fracDigits > 0 {
		p := int64(1)
		for i := 0; i < fracDigits; i++ {
			p *= 10
		}
		bytes += frac * mult / p
	}
	return bytes, nil
}

func memoryUnitMultiplier(unit string) (int64, error) {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "", "B":
		return 1, nil
	case "K", "KB":
		return 1000, nil
	case "KI", "KIB":
		return 1024, nil
	case "M", "MB":
		return 1000 * 1000, nil
	case "MI", "MIB":
		return 1024 * 1024, nil
	case "G", "GB":
		return 1000 * 1000 * 1000, nil
	case "GI", "GIB":
		return 1024 * 1024 * 1024, nil
	case "T", "TB":
		return 1000 * 1000 * 1000 * 1000, nil
	case "TI", "TIB":
		return 1024 * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown memory unit %q", unit)
	}
}
