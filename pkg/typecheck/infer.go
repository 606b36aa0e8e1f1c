// Package typecheck implements the static name-resolution and type-checking
// passes: struct typedef resolution, per-task and per-workflow type
// inference/coercion checking, Call.callee resolution, and position-sorted
// multi-error accumulation via diag.MultiError.
package typecheck

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// TypeEnv is the type-level binding environment used throughout static
// checking: wdlenv.Bindings specialized to wdltype.Type payloads.
type TypeEnv = wdlenv.Bindings[wdltype.Type]

// InferType computes the static type of expr under env, without evaluating
// a value. It does not itself enforce
// a target type — call sites call Coerce afterward where one is expected.
func InferType(expr ast.Expr, env *TypeEnv) (wdltype.Type, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		t, ok := env.Resolve(e.Name)
		if !ok {
			return wdltype.Type{}, diag.UnknownIdentifier(e.Pos, e.Name)
		}
		return t, nil
	case *ast.IntLit:
		return wdltype.Int(), nil
	case *ast.FloatLit:
		return wdltype.Float(), nil
	case *ast.BoolLit:
		return wdltype.Boolean(), nil
	case *ast.NullLit:
		return wdltype.AnyType().WithOptional(true), nil
	case *ast.StringExpr:
		for _, part := range e.Parts {
			if part.Placeholder != nil {
				if _, err := InferType(part.Placeholder.Expr, env); err != nil {
					return wdltype.Type{}, err
				}
			}
		}
		return wdltype.String(), nil
	case *ast.BinaryExpr:
		return inferBinary(e, env)
	case *ast.UnaryExpr:
		return inferUnary(e, env)
	case *ast.IfExpr:
		return inferIf(e, env)
	case *ast.ArrayLit:
		return inferArrayLit(e, env)
	case *ast.MapLit:
		return inferMapLit(e, env)
	case *ast.PairLit:
		left, err := InferType(e.Left, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		right, err := InferType(e.Right, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		return wdltype.Pair(left, right), nil
	case *ast.ObjectLit:
		return inferObjectLit(e, env)
	case *ast.IndexExpr:
		return inferIndex(e, env)
	case *ast.MemberExpr:
		return inferMember(e, env)
	case *ast.CallExpr:
		return inferCall(e, env)
	default:
		return wdltype.Type{}, diag.New(diag.KindEvalError, expr.ExprPos(), "cannot infer type of expression")
	}
}

// Coerce checks that t can coerce to want, returning a StaticTypeMismatch
// error (positioned at pos) if not.
func Coerce(pos diag.SourcePos, t, want wdltype.Type) error {
	if !t.IsCoercibleTo(want) {
		return diag.StaticTypeMismatch(pos, "expected %s, got %s", want.String(), t.String())
	}
	return nil
}

func inferBinary(e *ast.BinaryExpr, env *TypeEnv) (wdltype.Type, error) {
	l, err := InferType(e.Left, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	r, err := InferType(e.Right, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	switch e.Op {
	case ast.OpAnd, ast.OpOr:
		if err := Coerce(e.Left.ExprPos(), l, wdltype.Boolean()); err != nil {
			return wdltype.Type{}, err
		}
		if err := Coerce(e.Right.ExprPos(), r, wdltype.Boolean()); err != nil {
			return wdltype.Type{}, err
		}
		return wdltype.Boolean(), nil
	case ast.OpEq, ast.OpNeq, ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		if l.Kind == wdltype.KindInt && r.Kind == wdltype.KindFloat || l.Kind == wdltype.KindFloat && r.Kind == wdltype.KindInt {
			return wdltype.Boolean(), nil
		}
		if !l.Equals(r, false) && !l.IsCoercibleTo(r) && !r.IsCoercibleTo(l) {
			return wdltype.Type{}, diag.StaticTypeMismatch(e.Pos, "cannot compare %s with %s", l.String(), r.String())
		}
		return wdltype.Boolean(), nil
	case ast.OpAdd:
		if l.Kind == wdltype.KindString || r.Kind == wdltype.KindString {
			if !l.IsCoercibleTo(wdltype.String()) || !r.IsCoercibleTo(wdltype.String()) {
				return wdltype.Type{}, diag.StaticTypeMismatch(e.Pos, "cannot concatenate %s and %s", l.String(), r.String())
			}
			return wdltype.String(), nil
		}
		return numericResult(e.Pos, l, r)
	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return numericResult(e.Pos, l, r)
	default:
		return wdltype.Type{}, diag.New(diag.KindEvalError, e.Pos, "unknown binary operator")
	}
}

func numericResult(pos diag.SourcePos, l, r wdltype.Type) (wdltype.Type, error) {
	if l.Kind != wdltype.KindInt && l.Kind != wdltype.KindFloat {
		return wdltype.Type{}, diag.StaticTypeMismatch(pos, "expected numeric operand, got %s", l.String())
	}
	if r.Kind != wdltype.KindInt && r.Kind != wdltype.KindFloat {
		return wdltype.Type{}, diag.StaticTypeMismatch(pos, "expected numeric operand, got %s", r.String())
	}
	if l.Kind == wdltype.KindFloat || r.Kind == wdltype.KindFloat {
		return wdltype.Float(), nil
	}
	return wdltype.Int(), nil
}

func inferUnary(e *ast.UnaryExpr, env *TypeEnv) (wdltype.Type, error) {
	t, err := InferType(e.Expr, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	switch e.Op {
	case ast.OpNot:
		if err := Coerce(e.Expr.ExprPos(), t, wdltype.Boolean()); err != nil {
			return wdltype.Type{}, err
		}
		return wdltype.Boolean(), nil
	case ast.OpNeg:
		if t.Kind != wdltype.KindInt && t.Kind != wdltype.KindFloat {
			return wdltype.Type{}, diag.StaticTypeMismatch(e.Pos, "expected numeric operand, got %s", t.String())
		}
		return t, nil
	default:
		return wdltype.Type{}, diag.New(diag.KindEvalError, e.Pos, "unknown unary operator")
	}
}

func inferIf(e *ast.IfExpr, env *TypeEnv) (wdltype.Type, error) {
	condT, err := InferType(e.Cond, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	if err := Coerce(e.Cond.ExprPos(), condT, wdltype.Boolean()); err != nil {
		return wdltype.Type{}, err
	}
	thenT, err := InferType(e.Then, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	elseT, err := InferType(e.Else, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	u, ok := wdltype.Unify(thenT, elseT, false)
	if !ok {
		return wdltype.Type{}, diag.StaticTypeMismatch(e.Pos, "if/else branches have incompatible types %s and %s", thenT.String(), elseT.String())
	}
	return u, nil
}

func inferArrayLit(e *ast.ArrayLit, env *TypeEnv) (wdltype.Type, error) {
	if len(e.Items) == 0 {
		return wdltype.Array(wdltype.AnyType(), false), nil
	}
	item, err := InferType(e.Items[0], env)
	if err != nil {
		return wdltype.Type{}, err
	}
	for _, it := range e.Items[1:] {
		t, err := InferType(it, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		u, ok := wdltype.Unify(item, t, false)
		if !ok {
			return wdltype.Type{}, diag.StaticTypeMismatch(it.ExprPos(), "array element type mismatch: %s vs %s", item.String(), t.String())
		}
		item = u
	}
	return wdltype.Array(item, true), nil
}

func inferMapLit(e *ast.MapLit, env *TypeEnv) (wdltype.Type, error) {
	if len(e.Entries) == 0 {
		return wdltype.Map(wdltype.AnyType(), wdltype.AnyType()), nil
	}
	keyT, err := InferType(e.Entries[0].Key, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	valT, err := InferType(e.Entries[0].Value, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	for _, ent := range e.Entries[1:] {
		k, err := InferType(ent.Key, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		v, err := InferType(ent.Value, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		if u, ok := wdltype.Unify(keyT, k, false); ok {
			keyT = u
		} else {
			return wdltype.Type{}, diag.StaticTypeMismatch(ent.Key.ExprPos(), "map key type mismatch")
		}
		if u, ok := wdltype.Unify(valT, v, false); ok {
			valT = u
		} else {
			return wdltype.Type{}, diag.StaticTypeMismatch(ent.Value.ExprPos(), "map value type mismatch")
		}
	}
	return wdltype.Map(keyT, valT), nil
}

func inferObjectLit(e *ast.ObjectLit, env *TypeEnv) (wdltype.Type, error) {
	if e.StructName == "" {
		return wdltype.ObjectType(), nil
	}
	structT, ok := env.Resolve("__struct__." + e.StructName)
	if !ok {
		return wdltype.Type{}, diag.New(diag.KindInvalidType, e.Pos, "unknown struct type %q", e.StructName)
	}
	for _, f := range e.Fields {
		memberT, ok := structT.Members.Get(f.Name)
		if !ok {
			return wdltype.Type{}, diag.NoSuchMember(f.Value.ExprPos(), e.StructName, f.Name)
		}
		ft, err := InferType(f.Value, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := Coerce(f.Value.ExprPos(), ft, *memberT); err != nil {
			return wdltype.Type{}, err
		}
	}
	return structT, nil
}

func inferIndex(e *ast.IndexExpr, env *TypeEnv) (wdltype.Type, error) {
	targetT, err := InferType(e.Target, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	idxT, err := InferType(e.Index, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	switch targetT.Kind {
	case wdltype.KindArray:
		if err := Coerce(e.Index.ExprPos(), idxT, wdltype.Int()); err != nil {
			return wdltype.Type{}, err
		}
		return *targetT.Item, nil
	case wdltype.KindMap:
		if err := Coerce(e.Index.ExprPos(), idxT, *targetT.Key); err != nil {
			return wdltype.Type{}, err
		}
		return *targetT.Value, nil
	default:
		return wdltype.Type{}, diag.New(diag.KindNotAnArray, e.Target.ExprPos(), "cannot index into %s", targetT.String())
	}
}

func inferMember(e *ast.MemberExpr, env *TypeEnv) (wdltype.Type, error) {
	if id, ok := e.Target.(*ast.Ident); ok {
		if t, ok := env.Resolve(id.Name + "." + e.Name); ok {
			return t, nil
		}
	}
	targetT, err := InferType(e.Target, env)
	if err != nil {
		return wdltype.Type{}, err
	}
	switch targetT.Kind {
	case wdltype.KindPair:
		switch e.Name {
		case "left":
			return *targetT.Left, nil
		case "right":
			return *targetT.Right, nil
		default:
			return wdltype.Type{}, diag.NoSuchMember(e.Pos, targetT.String(), e.Name)
		}
	case wdltype.KindStruct, wdltype.KindObject:
		if targetT.Members == nil {
			return wdltype.AnyType(), nil
		}
		t, ok := targetT.Members.Get(e.Name)
		if !ok {
			return wdltype.Type{}, diag.NoSuchMember(e.Pos, targetT.String(), e.Name)
		}
		return *t, nil
	default:
		return wdltype.Type{}, diag.NoSuchMember(e.Pos, targetT.String(), e.Name)
	}
}

func inferCall(e *ast.CallExpr, env *TypeEnv) (wdltype.Type, error) {
	argTypes := make([]wdltype.Type, len(e.Args))
	for i, a := range e.Args {
		t, err := InferType(a, env)
		if err != nil {
			return wdltype.Type{}, err
		}
		argTypes[i] = t
	}
	sig, ok := stdlibSignatures[e.Func]
	if !ok {
		return wdltype.Type{}, diag.New(diag.KindNoSuchFunction, e.Pos, "no such function %q", e.Func)
	}
	return sig(e.Pos, argTypes)
}

func arityErr(pos diag.SourcePos, fn string, want, got int) error {
	return diag.WrongArity(pos, fn, want, got)
}
