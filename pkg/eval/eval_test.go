package eval

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

func ident(name string) *ast.Ident         { return &ast.Ident{Name: name} }
func intLit(v int64) *ast.IntLit           { return &ast.IntLit{Value: v} }
func floatLit(v float64) *ast.FloatLit     { return &ast.FloatLit{Value: v} }
func boolLit(v bool) *ast.BoolLit          { return &ast.BoolLit{Value: v} }
func binary(op ast.BinaryOp, l, r ast.Expr) *ast.BinaryExpr {
	return &ast.BinaryExpr{Op: op, Left: l, Right: r}
}

func mustEval(t *testing.T, e ast.Expr, env *Env) wdlvalue.Value {
	t.Helper()
	v, err := Eval(e, env, nil)
	require.NoError(t, err)
	return v
}

func TestIdentResolution(t *testing.T) {
	env := wdlenv.Bind[wdlvalue.Value](nil, "x", wdlvalue.NewInt(5), nil)
	v := mustEval(t, ident("x"), env)
	assert.Equal(t, int64(5), v.AsInt())

	_, err := Eval(ident("missing"), env, nil)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindUnknownIdentifier, de.Kind)
}

func TestShortCircuitAnd(t *testing.T) {
	// Right side references an unbound name; must not be evaluated.
	e := binary(ast.OpAnd, boolLit(false), ident("boom"))
	v := mustEval(t, e, nil)
	assert.False(t, v.AsBool())
}

func TestShortCircuitOr(t *testing.T) {
	e := binary(ast.OpOr, boolLit(true), ident("boom"))
	v := mustEval(t, e, nil)
	assert.True(t, v.AsBool())
}

func TestIntArithmeticStaysInt(t *testing.T) {
	v := mustEval(t, binary(ast.OpAdd, intLit(2), intLit(3)), nil)
	assert.Equal(t, wdltype.KindInt, v.Type().Kind)
	assert.Equal(t, int64(5), v.AsInt())
}

func TestFloatOperandPromotes(t *testing.T) {
	v := mustEval(t, binary(ast.OpMul, intLit(2), floatLit(1.5)), nil)
	assert.Equal(t, wdltype.KindFloat, v.Type().Kind)
	assert.Equal(t, 3.0, v.AsFloat())
}

func TestIntDivisionFloors(t *testing.T) {
	v := mustEval(t, binary(ast.OpDiv, intLit(7), intLit(2)), nil)
	assert.Equal(t, int64(3), v.AsInt())

	// Floor division rounds toward negative infinity for mixed-sign
	// operands, not toward zero.
	v = mustEval(t, binary(ast.OpDiv, intLit(-7), intLit(2)), nil)
	assert.Equal(t, int64(-4), v.AsInt())

	v = mustEval(t, binary(ast.OpDiv, intLit(7), intLit(-2)), nil)
	assert.Equal(t, int64(-4), v.AsInt())

	v = mustEval(t, binary(ast.OpDiv, intLit(-7), intLit(-2)), nil)
	assert.Equal(t, int64(3), v.AsInt())

	v = mustEval(t, binary(ast.OpDiv, intLit(-6), intLit(2)), nil)
	assert.Equal(t, int64(-3), v.AsInt())
}

func TestIntModuloTakesDivisorSign(t *testing.T) {
	v := mustEval(t, binary(ast.OpMod, intLit(7), intLit(2)), nil)
	assert.Equal(t, int64(1), v.AsInt())

	v = mustEval(t, binary(ast.OpMod, intLit(-7), intLit(2)), nil)
	assert.Equal(t, int64(1), v.AsInt())

	v = mustEval(t, binary(ast.OpMod, intLit(7), intLit(-2)), nil)
	assert.Equal(t, int64(-1), v.AsInt())
}

func TestDivisionByZero(t *testing.T) {
	_, err := Eval(binary(ast.OpDiv, intLit(1), intLit(0)), nil, nil)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindEvalError, de.Kind)

	_, err = Eval(binary(ast.OpMod, intLit(1), intLit(0)), nil, nil)
	assert.Error(t, err)
}

func TestStringConcatCoercesOperands(t *testing.T) {
	v := mustEval(t, binary(ast.OpAdd, &ast.StringExpr{Parts: []ast.StringPart{{Literal: "n="}}}, intLit(4)), nil)
	assert.Equal(t, "n=4", v.AsString())
}

func TestComparisonIntVsFloat(t *testing.T) {
	v := mustEval(t, binary(ast.OpLt, intLit(1), floatLit(1.5)), nil)
	assert.True(t, v.AsBool())

	v = mustEval(t, binary(ast.OpEq, intLit(2), floatLit(2.0)), nil)
	assert.True(t, v.AsBool())
}

func TestIfThenElse(t *testing.T) {
	e := &ast.IfExpr{Cond: boolLit(true), Then: intLit(1), Else: intLit(2)}
	assert.Equal(t, int64(1), mustEval(t, e, nil).AsInt())

	e = &ast.IfExpr{Cond: boolLit(false), Then: intLit(1), Else: intLit(2)}
	assert.Equal(t, int64(2), mustEval(t, e, nil).AsInt())
}

func TestArrayIndexBounds(t *testing.T) {
	env := wdlenv.Bind[wdlvalue.Value](nil, "xs",
		wdlvalue.NewArray(wdltype.Int(), []wdlvalue.Value{wdlvalue.NewInt(10), wdlvalue.NewInt(20)}), nil)

	v := mustEval(t, &ast.IndexExpr{Target: ident("xs"), Index: intLit(1)}, env)
	assert.Equal(t, int64(20), v.AsInt())

	_, err := Eval(&ast.IndexExpr{Target: ident("xs"), Index: intLit(2)}, env, nil)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindOutOfBounds, de.Kind)
}

func TestMapIndexMiss(t *testing.T) {
	om := wdlvalue.NewOrderedMap()
	om.Set("a", wdlvalue.NewInt(1))
	env := wdlenv.Bind[wdlvalue.Value](nil, "m",
		wdlvalue.NewMap(wdltype.String(), wdltype.Int(), om), nil)

	v := mustEval(t, &ast.IndexExpr{
		Target: ident("m"),
		Index:  &ast.StringExpr{Parts: []ast.StringPart{{Literal: "a"}}},
	}, env)
	assert.Equal(t, int64(1), v.AsInt())

	_, err := Eval(&ast.IndexExpr{
		Target: ident("m"),
		Index:  &ast.StringExpr{Parts: []ast.StringPart{{Literal: "b"}}},
	}, env, nil)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindOutOfBounds, de.Kind)
}

func TestPairMemberAccess(t *testing.T) {
	env := wdlenv.Bind[wdlvalue.Value](nil, "p",
		wdlvalue.NewPair(wdlvalue.NewInt(1), wdlvalue.NewString("r")), nil)

	assert.Equal(t, int64(1), mustEval(t, &ast.MemberExpr{Target: ident("p"), Name: "left"}, env).AsInt())
	assert.Equal(t, "r", mustEval(t, &ast.MemberExpr{Target: ident("p"), Name: "right"}, env).AsString())

	_, err := Eval(&ast.MemberExpr{Target: ident("p"), Name: "middle"}, env, nil)
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindNoSuchMember, de.Kind)
}

func TestNamespacedMemberFallsBackToEnv(t *testing.T) {
	// "t.out" bound in the env resolves through member syntax, the way call
	// outputs surface inside a workflow.
	env := wdlenv.Bind[wdlvalue.Value](nil, "t.out", wdlvalue.NewInt(9), nil)
	v := mustEval(t, &ast.MemberExpr{Target: ident("t"), Name: "out"}, env)
	assert.Equal(t, int64(9), v.AsInt())
}

func TestNoneLiteralIsOptionalAny(t *testing.T) {
	v := mustEval(t, &ast.NullLit{}, nil)
	assert.True(t, v.IsNull())
	assert.True(t, v.Type().Optional)
	assert.Equal(t, wdltype.KindAny, v.Type().Kind)
}

func TestPlaceholderSep(t *testing.T) {
	env := wdlenv.Bind[wdlvalue.Value](nil, "xs",
		wdlvalue.NewArray(wdltype.Int(), []wdlvalue.Value{
			wdlvalue.NewInt(1), wdlvalue.NewInt(2), wdlvalue.NewInt(3),
		}), nil)
	ph := &ast.Placeholder{
		Options: []ast.PlaceholderOption{{Name: "sep", Literal: ","}},
		Expr:    ident("xs"),
	}
	s, err := RenderPlaceholder(ph, env, nil)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", s)
}

func TestPlaceholderTrueFalse(t *testing.T) {
	ph := &ast.Placeholder{
		Options: []ast.PlaceholderOption{
			{Name: "true", Literal: "--yes"},
			{Name: "false", Literal: "--no"},
		},
		Expr: boolLit(true),
	}
	s, err := RenderPlaceholder(ph, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "--yes", s)

	ph.Expr = boolLit(false)
	s, err = RenderPlaceholder(ph, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "--no", s)
}

func TestPlaceholderDefault(t *testing.T) {
	ph := &ast.Placeholder{
		Options: []ast.PlaceholderOption{{Name: "default", Literal: "unset"}},
		Expr:    &ast.NullLit{},
	}
	s, err := RenderPlaceholder(ph, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "unset", s)

	ph.Expr = intLit(5)
	s, err = RenderPlaceholder(ph, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "5", s)
}

func TestStringExprInterpolation(t *testing.T) {
	env := wdlenv.Bind[wdlvalue.Value](nil, "who", wdlvalue.NewString("Alyssa"), nil)
	e := &ast.StringExpr{Parts: []ast.StringPart{
		{Literal: "Hello, "},
		{Placeholder: &ast.Placeholder{Expr: ident("who")}},
		{Literal: "!"},
	}}
	v := mustEval(t, e, env)
	assert.Equal(t, "Hello, Alyssa!", v.AsString())
}

func TestEvalDeclInputCoerces(t *testing.T) {
	v, err := EvalDeclInput(diag.SourcePos{}, wdltype.Float(), wdlvalue.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.AsFloat())

	_, err = EvalDeclInput(diag.SourcePos{}, wdltype.Boolean(), wdlvalue.NewInt(2))
	var de *diag.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, diag.KindStaticTypeMismatch, de.Kind)
}
