package wdlvalue

import "github.com/lemonberrylabs/wdlcore/pkg/wdltype"

// Coerce converts v to the target type, the runtime half of the coercion
// relation (the static half lives in wdltype.IsCoercibleTo).
// ok is false when no runtime conversion applies.
func Coerce(v Value, target wdltype.Type) (Value, bool) {
	if v.IsNull() {
		if !target.Optional && target.Kind != wdltype.KindAny {
			return Value{}, false
		}
		return Null(target), true
	}
	if target.Kind == wdltype.KindAny {
		return v, true
	}
	switch target.Kind {
	case wdltype.KindBoolean:
		if v.typ.Kind == wdltype.KindBoolean {
			return v, true
		}
	case wdltype.KindInt:
		switch v.typ.Kind {
		case wdltype.KindInt:
			return v, true
		}
	case wdltype.KindFloat:
		switch v.typ.Kind {
		case wdltype.KindFloat:
			return v, true
		case wdltype.KindInt:
			return NewFloat(float64(v.intVal)), true
		}
	case wdltype.KindString:
		switch v.typ.Kind {
		case wdltype.KindString, wdltype.KindFile, wdltype.KindDirectory:
			return NewString(v.strVal), true
		}
	case wdltype.KindFile:
		switch v.typ.Kind {
		case wdltype.KindFile:
			return v, true
		case wdltype.KindString:
			return NewFile(v.strVal), true
		}
	case wdltype.KindDirectory:
		switch v.typ.Kind {
		case wdltype.KindDirectory:
			return v, true
		case wdltype.KindString:
			return NewDirectory(v.strVal), true
		}
	case wdltype.KindArray:
		if v.typ.Kind != wdltype.KindArray {
			return Value{}, false
		}
		out := make([]Value, len(v.listVal))
		for i, it := range v.listVal {
			c, ok := Coerce(it, *target.Item)
			if !ok {
				return Value{}, false
			}
			out[i] = c
		}
		r := NewArray(*target.Item, out)
		r.typ.Nonempty = target.Nonempty
		return r, true
	case wdltype.KindMap:
		switch v.typ.Kind {
		case wdltype.KindMap:
			out := NewOrderedMap()
			for _, k := range v.mapVal.Keys() {
				ev, _ := v.mapVal.Get(k)
				c, ok := Coerce(ev, *target.Value)
				if !ok {
					return Value{}, false
				}
				out.Set(k, c)
			}
			return NewMap(*target.Key, *target.Value, out), true
		}
	case wdltype.KindPair:
		if v.typ.Kind != wdltype.KindPair {
			return Value{}, false
		}
		l, ok := Coerce(*v.pairL, *target.Left)
		if !ok {
			return Value{}, false
		}
		r, ok := Coerce(*v.pairR, *target.Right)
		if !ok {
			return Value{}, false
		}
		return NewPair(l, r), true
	case wdltype.KindStruct:
		switch v.typ.Kind {
		case wdltype.KindStruct:
			if v.typ.StructName == target.StructName {
				return v, true
			}
			return coerceMembersToStruct(v.structV, target)
		case wdltype.KindMap:
			return coerceMembersToStruct(v.mapVal, target)
		case wdltype.KindObject:
			return coerceMembersToStruct(v.structV, target)
		}
	case wdltype.KindObject:
		switch v.typ.Kind {
		case wdltype.KindObject, wdltype.KindStruct:
			return Value{typ: target, structV: v.structV}, true
		case wdltype.KindMap:
			return Value{typ: target, structV: v.mapVal}, true
		}
	}
	return Value{}, false
}

func coerceMembersToStruct(src *OrderedMap, target wdltype.Type) (Value, bool) {
	if target.Members == nil || src == nil {
		return Value{}, false
	}
	out := NewOrderedMap()
	for _, name := range target.Members.Names() {
		mt, _ := target.Members.Get(name)
		sv, ok := src.Get(name)
		if !ok {
			return Value{}, false
		}
		cv, ok := Coerce(sv, *mt)
		if !ok {
			return Value{}, false
		}
		out.Set(name, cv)
	}
	return NewStruct(target, out), true
}
