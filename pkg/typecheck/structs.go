package typecheck

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// structRegistry maps a struct type name to its resolved member list.
type structRegistry map[string]*wdltype.MemberList

// resolveStructTypedefs registers every struct typedef in doc, detects
// member-reference cycles (a struct cannot contain itself, directly or
// transitively, without going through Array/Map/Pair indirection), and
// resolves nested StructInstance references within
// member types to their registered MemberList.
func resolveStructTypedefs(doc *ast.Document, merr *diag.MultiError) structRegistry {
	reg := structRegistry{}
	for _, st := range doc.StructTypedefs {
		if _, dup := reg[st.Name]; dup {
			merr.Add(diag.MultipleDefinitions(st.Pos, st.Name))
			continue
		}
		reg[st.Name] = st.Members
	}

	for _, st := range doc.StructTypedefs {
		if detectCycle(st.Name, reg, map[string]bool{}) {
			merr.Add(diag.New(diag.KindInvalidType, st.Pos, "struct %q has a circular member reference", st.Name))
		}
	}

	for _, st := range doc.StructTypedefs {
		for _, name := range st.Members.Names() {
			t, _ := st.Members.Get(name)
			*t = resolveStructRefs(*t, reg)
		}
	}
	return reg
}

func detectCycle(name string, reg structRegistry, visiting map[string]bool) bool {
	if visiting[name] {
		return true
	}
	members, ok := reg[name]
	if !ok {
		return false
	}
	visiting[name] = true
	defer delete(visiting, name)
	for _, mname := range members.Names() {
		t, _ := members.Get(mname)
		if referencesStructDirectly(*t, reg, visiting) {
			return true
		}
	}
	return false
}

// referencesStructDirectly holds only for direct struct nesting (a struct
// field typed as another struct), not through Array/Map/Pair indirection,
// matching WDL's actual acyclicity requirement (an Array[Self] is fine).
func referencesStructDirectly(t wdltype.Type, reg structRegistry, visiting map[string]bool) bool {
	if t.Kind == wdltype.KindStruct {
		return detectCycle(t.StructName, reg, visiting)
	}
	return false
}

// resolveStructRefs fills in Members for every StructInstance reachable
// inside t (recursing through Array/Map/Pair), using reg as the source of
// truth. Unknown struct names are left with nil Members; the caller that
// consumes the type (task/workflow typecheck) reports InvalidType then.
func resolveStructRefs(t wdltype.Type, reg structRegistry) wdltype.Type {
	switch t.Kind {
	case wdltype.KindStruct:
		if members, ok := reg[t.StructName]; ok {
			t.Members = members
		}
		return t
	case wdltype.KindArray:
		item := resolveStructRefs(*t.Item, reg)
		t.Item = &item
		return t
	case wdltype.KindMap:
		key := resolveStructRefs(*t.Key, reg)
		val := resolveStructRefs(*t.Value, reg)
		t.Key, t.Value = &key, &val
		return t
	case wdltype.KindPair:
		left := resolveStructRefs(*t.Left, reg)
		right := resolveStructRefs(*t.Right, reg)
		t.Left, t.Right = &left, &right
		return t
	default:
		return t
	}
}
