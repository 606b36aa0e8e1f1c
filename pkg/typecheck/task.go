package typecheck

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// typecheckTask typechecks a task: topologically sort the
// input+postinput decl subgraph, infer and coerce each, typecheck the
// command's placeholders against String (with option-specific constraints),
// then typecheck each output decl.
func typecheckTask(t *ast.Task, baseEnv *TypeEnv, merr *diag.MultiError) {
	ordered, cyclic := topoSortDecls(t.AllDecls())
	if len(cyclic) > 0 {
		merr.Add(diag.CircularDependencies(t.Pos, cyclic))
	}

	env := baseEnv
	for _, d := range ordered {
		env = typecheckDecl(d, env, merr)
	}

	for _, part := range t.Command.Parts {
		if part.Placeholder == nil {
			continue
		}
		typecheckPlaceholder(part.Placeholder, env, merr)
	}

	for _, expr := range t.Runtime {
		if _, err := InferType(expr, env); err != nil {
			merr.Add(asErr(err))
		}
	}

	for _, d := range t.Outputs {
		env = typecheckDecl(d, env, merr)
	}
}

// typecheckDecl infers decl.Expr's type (if present), coerces it to
// decl.Type, and returns env extended with decl.Name bound to decl.Type
// regardless of whether the coercion succeeded (so downstream decls can
// still be checked against a best-effort environment).
func typecheckDecl(d *ast.Decl, env *TypeEnv, merr *diag.MultiError) *TypeEnv {
	if d.Expr != nil {
		t, err := InferType(d.Expr, env)
		if err != nil {
			merr.Add(asErr(err))
		} else if err := Coerce(d.Expr.ExprPos(), t, d.Type); err != nil {
			merr.Add(asErr(err))
		}
	}
	return wdlenv.Bind(env, d.Name, d.Type, d)
}

func typecheckPlaceholder(ph *ast.Placeholder, env *TypeEnv, merr *diag.MultiError) {
	t, err := InferType(ph.Expr, env)
	if err != nil {
		merr.Add(asErr(err))
		return
	}
	if _, ok := ph.Get("sep"); ok {
		if t.Kind != wdltype.KindArray {
			merr.Add(diag.StaticTypeMismatch(ph.Pos, "sep= placeholder option requires an Array, got %s", t.String()))
		}
		return
	}
	_, hasTrue := ph.Get("true")
	_, hasFalse := ph.Get("false")
	if hasTrue || hasFalse {
		if t.Kind != wdltype.KindBoolean {
			merr.Add(diag.StaticTypeMismatch(ph.Pos, "true=/false= placeholder option requires Boolean, got %s", t.String()))
		}
		return
	}
	if _, hasDefault := ph.Get("default"); hasDefault {
		if !t.IsOptional() {
			merr.Add(diag.StaticTypeMismatch(ph.Pos, "default= placeholder option requires an optional type, got %s", t.String()))
		}
		return
	}
	if err := Coerce(ph.Pos, t, wdltype.String()); err != nil {
		merr.Add(asErr(err))
	}
}

func asErr(err error) *diag.Error {
	if e, ok := err.(*diag.Error); ok {
		return e
	}
	return diag.New(diag.KindEvalError, diag.SourcePos{}, "%v", err)
}
