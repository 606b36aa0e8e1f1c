package typecheck

import (
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// sigFn computes a function's static return type from its argument types,
// reporting WrongArity/StaticTypeMismatch as needed. This is the
// compile-time half of the standard library; pkg/stdlib holds
// the runtime implementations sharing the same fixed-arity signatures.
type sigFn func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error)

func fixed(want int, ret wdltype.Type) sigFn {
	return func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != want {
			return wdltype.Type{}, arityErr(pos, "", want, len(args))
		}
		return ret, nil
	}
}

var stdlibSignatures = map[string]sigFn{
	"read_string":  fixed(1, wdltype.String()),
	"read_int":     fixed(1, wdltype.Int()),
	"read_float":   fixed(1, wdltype.Float()),
	"read_boolean": fixed(1, wdltype.Boolean()),
	"read_lines":   fixed(1, wdltype.Array(wdltype.String(), false)),
	"read_tsv":     fixed(1, wdltype.Array(wdltype.Array(wdltype.String(), false), false)),
	"read_map":     fixed(1, wdltype.Map(wdltype.String(), wdltype.String())),
	"read_json":    fixed(1, wdltype.AnyType()),
	"read_object":  fixed(1, wdltype.ObjectType()),
	"read_objects": fixed(1, wdltype.Array(wdltype.ObjectType(), false)),

	"write_lines":  fixed(1, wdltype.File()),
	"write_tsv":    fixed(1, wdltype.File()),
	"write_map":    fixed(1, wdltype.File()),
	"write_json":   fixed(1, wdltype.File()),
	"write_object": fixed(1, wdltype.File()),
	"write_objects": fixed(1, wdltype.File()),

	"stdout": fixed(0, wdltype.File()),
	"stderr": fixed(0, wdltype.File()),

	"basename": varArgs(1, 2, wdltype.String()),
	"sub":      fixed(3, wdltype.String()),
	"length":   func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 1 {
			return wdltype.Type{}, arityErr(pos, "length", 1, len(args))
		}
		if args[0].Kind != wdltype.KindArray && args[0].Kind != wdltype.KindMap {
			return wdltype.Type{}, diag.StaticTypeMismatch(pos, "length() expects Array or Map, got %s", args[0].String())
		}
		return wdltype.Int(), nil
	},
	"range": fixed(1, wdltype.Array(wdltype.Int(), false)),
	"floor": fixed(1, wdltype.Int()),
	"ceil":  fixed(1, wdltype.Int()),
	"round": fixed(1, wdltype.Int()),
	"prefix": fixed(2, wdltype.Array(wdltype.String(), false)),
	"suffix": fixed(2, wdltype.Array(wdltype.String(), false)),

	"defined": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 1 {
			return wdltype.Type{}, arityErr(pos, "defined", 1, len(args))
		}
		return wdltype.Boolean(), nil
	},
	"select_first": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 1 || args[0].Kind != wdltype.KindArray {
			return wdltype.Type{}, diag.StaticTypeMismatch(pos, "select_first() expects Array[X?]")
		}
		return args[0].Item.WithOptional(false), nil
	},
	"select_all": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 1 || args[0].Kind != wdltype.KindArray {
			return wdltype.Type{}, diag.StaticTypeMismatch(pos, "select_all() expects Array[X?]")
		}
		item := args[0].Item.WithOptional(false)
		return wdltype.Array(item, false), nil
	},
	"zip": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 2 {
			return wdltype.Type{}, arityErr(pos, "zip", 2, len(args))
		}
		return wdltype.Array(wdltype.Pair(*args[0].Item, *args[1].Item), false), nil
	},
	"cross": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 2 {
			return wdltype.Type{}, arityErr(pos, "cross", 2, len(args))
		}
		return wdltype.Array(wdltype.Pair(*args[0].Item, *args[1].Item), false), nil
	},
	"flatten": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) != 1 || args[0].Kind != wdltype.KindArray || args[0].Item.Kind != wdltype.KindArray {
			return wdltype.Type{}, diag.StaticTypeMismatch(pos, "flatten() expects Array[Array[X]]")
		}
		return *args[0].Item, nil
	},
	"transpose": fixed(1, wdltype.AnyType()),

	"glob": fixed(1, wdltype.Array(wdltype.File(), false)),
	"size": func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) < 1 || len(args) > 2 {
			return wdltype.Type{}, arityErr(pos, "size", 1, len(args))
		}
		return wdltype.Float(), nil
	},
}

func varArgs(min, max int, ret wdltype.Type) sigFn {
	return func(pos diag.SourcePos, args []wdltype.Type) (wdltype.Type, error) {
		if len(args) < min || len(args) > max {
			return wdltype.Type{}, arityErr(pos, "", min, len(args))
		}
		return ret, nil
	}
}
