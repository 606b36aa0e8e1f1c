package stdlib

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

func registerPure() {
	register("basename", basenameFn)
	register("sub", subFn)
	register("length", lengthFn)
	register("range", rangeFn)
	register("floor", floorFn)
	register("ceil", ceilFn)
	register("round", roundFn)
	register("prefix", prefixFn)
	register("suffix", suffixFn)
	register("defined", definedFn)
	register("select_first", selectFirstFn)
	register("select_all", selectAllFn)
	register("zip", zipFn)
	register("cross", crossFn)
	register("flatten", flattenFn)
	register("transpose", transposeFn)
}

func basenameFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return wdlvalue.Value{}, arityErr(pos, "basename", 1, len(args))
	}
	name := filepath.Base(args[0].AsString())
	if len(args) == 2 {
		name = strings.TrimSuffix(name, args[1].AsString())
	}
	return wdlvalue.NewString(name), nil
}

func subFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 3 {
		return wdlvalue.Value{}, arityErr(pos, "sub", 3, len(args))
	}
	re, err := regexp.Compile(args[1].AsString())
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "sub: invalid pattern: %v", err)
	}
	out := re.ReplaceAllString(args[0].AsString(), args[2].AsString())
	return wdlvalue.NewString(out), nil
}

func lengthFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "length", 1, len(args))
	}
	switch args[0].Type().Kind {
	case wdltype.KindArray:
		return wdlvalue.NewInt(int64(len(args[0].AsList()))), nil
	case wdltype.KindMap:
		return wdlvalue.NewInt(int64(args[0].AsMap().Len())), nil
	default:
		return wdlvalue.Value{}, diag.EvalErr(pos, "length() expects Array or Map")
	}
}

func rangeFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "range", 1, len(args))
	}
	n := args[0].AsInt()
	if n < 0 {
		return wdlvalue.Value{}, diag.EvalErr(pos, "range() expects a non-negative Int, got %d", n)
	}
	items := make([]wdlvalue.Value, n)
	for i := int64(0); i < n; i++ {
		items[i] = wdlvalue.NewInt(i)
	}
	return wdlvalue.NewArray(wdltype.Int(), items), nil
}

func floorFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "floor", 1, len(args))
	}
	return wdlvalue.NewInt(int64(math.Floor(args[0].AsNumber()))), nil
}

func ceilFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "ceil", 1, len(args))
	}
	return wdlvalue.NewInt(int64(math.Ceil(args[0].AsNumber()))), nil
}

func roundFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "round", 1, len(args))
	}
	return wdlvalue.NewInt(int64(math.Round(args[0].AsNumber()))), nil
}

func prefixFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 2 {
		return wdlvalue.Value{}, arityErr(pos, "prefix", 2, len(args))
	}
	p := args[0].AsString()
	items := make([]wdlvalue.Value, 0, len(args[1].AsList()))
	for _, it := range args[1].AsList() {
		items = append(items, wdlvalue.NewString(p+it.String()))
	}
	return wdlvalue.NewArray(wdltype.String(), items), nil
}

func suffixFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 2 {
		return wdlvalue.Value{}, arityErr(pos, "suffix", 2, len(args))
	}
	sfx := args[0].AsString()
	items := make([]wdlvalue.Value, 0, len(args[1].AsList()))
	for _, it := range args[1].AsList() {
		items = append(items, wdlvalue.NewString(it.String()+sfx))
	}
	return wdlvalue.NewArray(wdltype.String(), items), nil
}

func definedFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "defined", 1, len(args))
	}
	return wdlvalue.NewBool(!args[0].IsNull()), nil
}

func selectFirstFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "select_first() expects Array[X?]")
	}
	for _, it := range args[0].AsList() {
		if !it.IsNull() {
			return it, nil
		}
	}
	return wdlvalue.Value{}, diag.NullValueErr(pos, "select_first() found no non-null element")
}

func selectAllFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "select_all() expects Array[X?]")
	}
	itemType := *args[0].Type().Item
	itemType.Optional = false
	var out []wdlvalue.Value
	for _, it := range args[0].AsList() {
		if !it.IsNull() {
			out = append(out, it)
		}
	}
	return wdlvalue.NewArray(itemType, out), nil
}

func zipFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 2 {
		return wdlvalue.Value{}, arityErr(pos, "zip", 2, len(args))
	}
	a, b := args[0].AsList(), args[1].AsList()
	if len(a) != len(b) {
		return wdlvalue.Value{}, diag.EvalErr(pos, "zip() arrays must have equal length, got %d and %d", len(a), len(b))
	}
	items := make([]wdlvalue.Value, len(a))
	for i := range a {
		items[i] = wdlvalue.NewPair(a[i], b[i])
	}
	var pairType wdltype.Type
	if len(items) > 0 {
		pairType = items[0].Type()
	} else {
		pairType = wdltype.Pair(wdltype.AnyType(), wdltype.AnyType())
	}
	return wdlvalue.NewArray(pairType, items), nil
}

func crossFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 2 {
		return wdlvalue.Value{}, arityErr(pos, "cross", 2, len(args))
	}
	a, b := args[0].AsList(), args[1].AsList()
	var items []wdlvalue.Value
	for _, x := range a {
		for _, y := range b {
			items = append(items, wdlvalue.NewPair(x, y))
		}
	}
	var pairType wdltype.Type
	if len(items) > 0 {
		pairType = items[0].Type()
	} else {
		pairType = wdltype.Pair(wdltype.AnyType(), wdltype.AnyType())
	}
	return wdlvalue.NewArray(pairType, items), nil
}

func flattenFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray || args[0].Type().Item.Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "flatten() expects Array[Array[X]]")
	}
	itemType := *args[0].Type().Item.Item
	var out []wdlvalue.Value
	for _, row := range args[0].AsList() {
		out = append(out, row.AsList()...)
	}
	return wdlvalue.NewArray(itemType, out), nil
}

func transposeFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "transpose() expects Array[Array[X]]")
	}
	rows := args[0].AsList()
	if len(rows) == 0 {
		return wdlvalue.NewArray(wdltype.Array(wdltype.AnyType(), false), nil), nil
	}
	ncols := len(rows[0].AsList())
	itemType := *rows[0].Type().Item
	cols := make([]wdlvalue.Value, ncols)
	for c := 0; c < ncols; c++ {
		colItems := make([]wdlvalue.Value, len(rows))
		for r, row := range rows {
			cells := row.AsList()
			if len(cells) != ncols {
				return wdlvalue.Value{}, diag.EvalErr(pos, "transpose() requires a rectangular array")
			}
			colItems[r] = cells[c]
		}
		cols[c] = wdlvalue.NewArray(itemType, colItems)
	}
	return wdlvalue.NewArray(wdltype.Array(itemType, false), cols), nil
}
