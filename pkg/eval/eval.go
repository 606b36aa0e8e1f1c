// Package eval implements the pure expression evaluator: given an ast.Expr
// and a value environment, it produces a typed
// wdlvalue.Value. Standard library function calls are dispatched through a
// StdLib interface so the same evaluator serves both InputStdLib and
// OutputStdLib flavors (pkg/stdlib) without knowing which is in play.
//
// Structurally this mirrors pkg/typecheck/infer.go's per-node-kind dispatch
// (same switch shape, value-producing instead of type-producing).
package eval

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// Env is the value-level binding environment threaded through evaluation.
type Env = wdlenv.Bindings[wdlvalue.Value]

// StdLib is implemented by pkg/stdlib's InputStdLib/OutputStdLib, keeping
// the evaluator itself free of any file-I/O concern.
type StdLib interface {
	Call(pos diag.SourcePos, name string, args []wdlvalue.Value) (wdlvalue.Value, error)
}

// Eval computes expr's runtime Value under env, dispatching stdlib function
// calls to std.
func Eval(expr ast.Expr, env *Env, std StdLib) (wdlvalue.Value, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		v, ok := env.Resolve(e.Name)
		if !ok {
			return wdlvalue.Value{}, diag.UnknownIdentifier(e.Pos, e.Name)
		}
		return v, nil
	case *ast.IntLit:
		return wdlvalue.NewInt(e.Value), nil
	case *ast.FloatLit:
		return wdlvalue.NewFloat(e.Value), nil
	case *ast.BoolLit:
		return wdlvalue.NewBool(e.Value), nil
	case *ast.NullLit:
		return wdlvalue.Null(wdltype.AnyType()), nil
	case *ast.StringExpr:
		return evalStringExpr(e, env, std)
	case *ast.BinaryExpr:
		return evalBinary(e, env, std)
	case *ast.UnaryExpr:
		return evalUnary(e, env, std)
	case *ast.IfExpr:
		return evalIf(e, env, std)
	case *ast.ArrayLit:
		return evalArrayLit(e, env, std)
	case *ast.MapLit:
		return evalMapLit(e, env, std)
	case *ast.PairLit:
		l, err := Eval(e.Left, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		r, err := Eval(e.Right, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		return wdlvalue.NewPair(l, r), nil
	case *ast.ObjectLit:
		return evalObjectLit(e, env, std)
	case *ast.IndexExpr:
		return evalIndex(e, env, std)
	case *ast.MemberExpr:
		return evalMember(e, env, std)
	case *ast.CallExpr:
		return evalCall(e, env, std)
	default:
		return wdlvalue.Value{}, diag.EvalErr(expr.ExprPos(), "cannot evaluate expression of type %T", expr)
	}
}

// RenderPlaceholder renders a single Placeholder to its string
// substitution, applying the sep/true/false/default options. Shared by
// StringExpr evaluation and task command rendering (pkg/taskrun).
func RenderPlaceholder(ph *ast.Placeholder, env *Env, std StdLib) (string, error) {
	v, err := Eval(ph.Expr, env, std)
	if err != nil {
		return "", err
	}
	if sep, ok := ph.Get("sep"); ok {
		if v.IsNull() {
			return "", nil
		}
		items := v.AsList()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = valueToPlaceholderString(it)
		}
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += p
		}
		return out, nil
	}
	if trueLit, hasTrue := ph.Get("true"); hasTrue {
		falseLit, _ := ph.Get("false")
		if v.IsNull() {
			return "", nil
		}
		if v.Truthy() {
			return trueLit, nil
		}
		return falseLit, nil
	}
	if def, hasDefault := ph.Get("default"); hasDefault {
		if v.IsNull() {
			return def, nil
		}
		return valueToPlaceholderString(v), nil
	}
	if v.IsNull() {
		return "", nil
	}
	return valueToPlaceholderString(v), nil
}

func valueToPlaceholderString(v wdlvalue.Value) string {
	return v.String()
}

func evalStringExpr(e *ast.StringExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	out := ""
	for _, part := range e.Parts {
		if part.Placeholder == nil {
			out += part.Literal
			continue
		}
		s, err := RenderPlaceholder(part.Placeholder, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		out += s
	}
	return wdlvalue.NewString(out), nil
}

func evalBinary(e *ast.BinaryExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	switch e.Op {
	case ast.OpAnd:
		l, err := Eval(e.Left, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		if !l.Truthy() {
			return wdlvalue.NewBool(false), nil
		}
		r, err := Eval(e.Right, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		return wdlvalue.NewBool(r.Truthy()), nil
	case ast.OpOr:
		l, err := Eval(e.Left, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		if l.Truthy() {
			return wdlvalue.NewBool(true), nil
		}
		r, err := Eval(e.Right, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		return wdlvalue.NewBool(r.Truthy()), nil
	}

	l, err := Eval(e.Left, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	r, err := Eval(e.Right, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}

	switch e.Op {
	case ast.OpEq:
		return wdlvalue.NewBool(l.Equal(r)), nil
	case ast.OpNeq:
		return wdlvalue.NewBool(!l.Equal(r)), nil
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		return evalCompare(e, l, r)
	case ast.OpAdd:
		if l.Type().Kind == wdltype.KindString || r.Type().Kind == wdltype.KindString ||
			l.Type().Kind == wdltype.KindFile || r.Type().Kind == wdltype.KindFile {
			return wdlvalue.NewString(l.String() + r.String()), nil
		}
		return numericBinary(e.Pos, l, r, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case ast.OpSub:
		return numericBinary(e.Pos, l, r, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case ast.OpMul:
		return numericBinary(e.Pos, l, r, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case ast.OpDiv:
		if l.Type().Kind == wdltype.KindInt && r.Type().Kind == wdltype.KindInt {
			if r.AsInt() == 0 {
				return wdlvalue.Value{}, diag.EvalErr(e.Pos, "division by zero")
			}
			return wdlvalue.NewInt(floorDiv(l.AsInt(), r.AsInt())), nil
		}
		if r.AsNumber() == 0 {
			return wdlvalue.Value{}, diag.EvalErr(e.Pos, "division by zero")
		}
		return wdlvalue.NewFloat(l.AsNumber() / r.AsNumber()), nil
	case ast.OpMod:
		if l.Type().Kind == wdltype.KindInt && r.Type().Kind == wdltype.KindInt {
			if r.AsInt() == 0 {
				return wdlvalue.Value{}, diag.EvalErr(e.Pos, "modulo by zero")
			}
			return wdlvalue.NewInt(floorMod(l.AsInt(), r.AsInt())), nil
		}
		return wdlvalue.Value{}, diag.EvalErr(e.Pos, "%% requires Int operands")
	default:
		return wdlvalue.Value{}, diag.EvalErr(e.Pos, "unknown binary operator")
	}
}

// floorDiv rounds the quotient toward negative infinity, as / on Ints is
// floor division in WDL. Go's native / truncates toward zero instead, so
// the quotient is adjusted when the remainder is nonzero and the operands
// differ in sign.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorMod pairs with floorDiv: the result takes the divisor's sign, so
// floorDiv(a,b)*b + floorMod(a,b) == a.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func evalCompare(e *ast.BinaryExpr, l, r wdlvalue.Value) (wdlvalue.Value, error) {
	var cmp int
	switch {
	case l.Type().Kind == wdltype.KindInt && r.Type().Kind == wdltype.KindInt:
		a, b := l.AsInt(), r.AsInt()
		cmp = compareOrdered(a, b)
	case (l.Type().Kind == wdltype.KindInt || l.Type().Kind == wdltype.KindFloat) &&
		(r.Type().Kind == wdltype.KindInt || r.Type().Kind == wdltype.KindFloat):
		cmp = compareOrdered(l.AsNumber(), r.AsNumber())
	case l.Type().Kind == wdltype.KindString || l.Type().Kind == wdltype.KindFile || l.Type().Kind == wdltype.KindDirectory:
		cmp = compareOrdered(l.AsString(), r.AsString())
	default:
		return wdlvalue.Value{}, diag.EvalErr(e.Pos, "cannot order-compare %s and %s", l.Type(), r.Type())
	}
	switch e.Op {
	case ast.OpLt:
		return wdlvalue.NewBool(cmp < 0), nil
	case ast.OpLte:
		return wdlvalue.NewBool(cmp <= 0), nil
	case ast.OpGt:
		return wdlvalue.NewBool(cmp > 0), nil
	case ast.OpGte:
		return wdlvalue.NewBool(cmp >= 0), nil
	default:
		return wdlvalue.Value{}, diag.EvalErr(e.Pos, "unknown comparison operator")
	}
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func numericBinary(pos diag.SourcePos, l, r wdlvalue.Value, ints func(a, b int64) int64, floats func(a, b float64) float64) (wdlvalue.Value, error) {
	if l.Type().Kind == wdltype.KindInt && r.Type().Kind == wdltype.KindInt {
		return wdlvalue.NewInt(ints(l.AsInt(), r.AsInt())), nil
	}
	if l.Type().Kind != wdltype.KindInt && l.Type().Kind != wdltype.KindFloat {
		return wdlvalue.Value{}, diag.EvalErr(pos, "expected numeric operand, got %s", l.Type())
	}
	if r.Type().Kind != wdltype.KindInt && r.Type().Kind != wdltype.KindFloat {
		return wdlvalue.Value{}, diag.EvalErr(pos, "expected numeric operand, got %s", r.Type())
	}
	return wdlvalue.NewFloat(floats(l.AsNumber(), r.AsNumber())), nil
}

func evalUnary(e *ast.UnaryExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	v, err := Eval(e.Expr, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	switch e.Op {
	case ast.OpNot:
		return wdlvalue.NewBool(!v.Truthy()), nil
	case ast.OpNeg:
		if v.Type().Kind == wdltype.KindInt {
			return wdlvalue.NewInt(-v.AsInt()), nil
		}
		return wdlvalue.NewFloat(-v.AsNumber()), nil
	default:
		return wdlvalue.Value{}, diag.EvalErr(e.Pos, "unknown unary operator")
	}
}

func evalIf(e *ast.IfExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	cond, err := Eval(e.Cond, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	if cond.Truthy() {
		return Eval(e.Then, env, std)
	}
	return Eval(e.Else, env, std)
}

func evalArrayLit(e *ast.ArrayLit, env *Env, std StdLib) (wdlvalue.Value, error) {
	items := make([]wdlvalue.Value, len(e.Items))
	var itemType wdltype.Type = wdltype.AnyType()
	for i, it := range e.Items {
		v, err := Eval(it, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		items[i] = v
		if i == 0 {
			itemType = v.Type()
		}
	}
	return wdlvalue.NewArray(itemType, items), nil
}

func evalMapLit(e *ast.MapLit, env *Env, std StdLib) (wdlvalue.Value, error) {
	om := wdlvalue.NewOrderedMap()
	var keyType, valType wdltype.Type = wdltype.AnyType(), wdltype.AnyType()
	for i, ent := range e.Entries {
		k, err := Eval(ent.Key, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		v, err := Eval(ent.Value, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		om.Set(k.String(), v)
		if i == 0 {
			keyType, valType = k.Type(), v.Type()
		}
	}
	return wdlvalue.NewMap(keyType, valType, om), nil
}

func evalObjectLit(e *ast.ObjectLit, env *Env, std StdLib) (wdlvalue.Value, error) {
	om := wdlvalue.NewOrderedMap()
	for _, f := range e.Fields {
		v, err := Eval(f.Value, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		om.Set(f.Name, v)
	}
	structType := wdltype.ObjectType()
	if e.StructName != "" {
		members := wdltype.NewMemberList()
		for _, k := range om.Keys() {
			v, _ := om.Get(k)
			t := v.Type()
			members.Set(k, &t)
		}
		structType = wdltype.StructInstance(e.StructName, members)
	}
	return wdlvalue.NewStruct(structType, om), nil
}

func evalIndex(e *ast.IndexExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	target, err := Eval(e.Target, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	idx, err := Eval(e.Index, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	switch target.Type().Kind {
	case wdltype.KindArray:
		i := idx.AsInt()
		items := target.AsList()
		if i < 0 || i >= int64(len(items)) {
			return wdlvalue.Value{}, diag.OutOfBounds(e.Pos, "array index %d out of bounds (len %d)", i, len(items))
		}
		return items[i], nil
	case wdltype.KindMap:
		v, ok := target.AsMap().Get(idx.String())
		if !ok {
			return wdlvalue.Value{}, diag.OutOfBounds(e.Pos, "map has no key %q", idx.String())
		}
		return v, nil
	default:
		return wdlvalue.Value{}, diag.New(diag.KindNotAnArray, e.Pos, "cannot index into %s", target.Type())
	}
}

func evalMember(e *ast.MemberExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	if id, ok := e.Target.(*ast.Ident); ok {
		if v, ok := env.Resolve(id.Name + "." + e.Name); ok {
			return v, nil
		}
	}
	target, err := Eval(e.Target, env, std)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	switch target.Type().Kind {
	case wdltype.KindPair:
		l, r := target.AsPair()
		switch e.Name {
		case "left":
			return l, nil
		case "right":
			return r, nil
		default:
			return wdlvalue.Value{}, diag.NoSuchMember(e.Pos, target.Type().String(), e.Name)
		}
	case wdltype.KindStruct, wdltype.KindObject:
		v, ok := target.AsStruct().Get(e.Name)
		if !ok {
			return wdlvalue.Value{}, diag.NoSuchMember(e.Pos, target.Type().String(), e.Name)
		}
		return v, nil
	default:
		return wdlvalue.Value{}, diag.NoSuchMember(e.Pos, target.Type().String(), e.Name)
	}
}

func evalCall(e *ast.CallExpr, env *Env, std StdLib) (wdlvalue.Value, error) {
	args := make([]wdlvalue.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, env, std)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		args[i] = v
	}
	if std == nil {
		return wdlvalue.Value{}, diag.New(diag.KindNoSuchFunction, e.Pos, "no standard library available to call %q", e.Func)
	}
	return std.Call(e.Pos, e.Func, args)
}

// EvalDeclInput coerces a Decl's evaluated value to decl.Type, for use by
// pkg/plan/pkg/wfstate's Decl-node handling.
func EvalDeclInput(pos diag.SourcePos, t wdltype.Type, v wdlvalue.Value) (wdlvalue.Value, error) {
	coerced, ok := wdlvalue.Coerce(v, t)
	if !ok {
		return wdlvalue.Value{}, diag.StaticTypeMismatch(pos, "cannot coerce %s to %s", v.Type(), t)
	}
	return coerced, nil
}
