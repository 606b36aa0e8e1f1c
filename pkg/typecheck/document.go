package typecheck

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// Document runs every static pass over doc (whose imports,
// if any, must already have their Doc fields populated by the caller
// driving multi-file loading) and returns the accumulated diagnostics,
// sorted by source position, or nil if the document is well-typed.
func Document(doc *ast.Document) error {
	merr := &diag.MultiError{}

	reg := resolveStructTypedefs(doc, merr)
	structEnv := structTypeEnv(reg)

	for _, t := range doc.Tasks {
		resolveTaskStructRefs(t, reg)
		typecheckTask(t, structEnv, merr)
	}

	if doc.Workflow != nil {
		resolveWorkflowStructRefs(doc.Workflow, reg)
		typecheckWorkflow(doc, doc.Workflow, structEnv, merr)
	}

	merr.Sort()
	return merr.ErrOrNil()
}

// structTypeEnv seeds a TypeEnv with "__struct__.<Name>" bindings so
// InferType can look up a struct literal's member list without threading a
// separate registry parameter through every call.
func structTypeEnv(reg structRegistry) *TypeEnv {
	var env *TypeEnv
	for name, members := range reg {
		env = wdlenv.Bind(env, "__struct__."+name, wdltype.StructInstance(name, members), nil)
	}
	return env
}

func resolveTaskStructRefs(t *ast.Task, reg structRegistry) {
	for _, d := range t.AllDecls() {
		d.Type = resolveStructRefs(d.Type, reg)
	}
	for _, d := range t.Outputs {
		d.Type = resolveStructRefs(d.Type, reg)
	}
}

func resolveWorkflowStructRefs(w *ast.Workflow, reg structRegistry) {
	for _, d := range w.Inputs {
		d.Type = resolveStructRefs(d.Type, reg)
	}
	for _, d := range w.Outputs {
		d.Type = resolveStructRefs(d.Type, reg)
	}
	resolveBodyStructRefs(w.Body, reg)
}

func resolveBodyStructRefs(body []ast.Node, reg structRegistry) {
	for _, n := range body {
		switch el := n.(type) {
		case *ast.Decl:
			el.Type = resolveStructRefs(el.Type, reg)
		case *ast.Scatter:
			resolveBodyStructRefs(el.Body, reg)
		case *ast.Conditional:
			resolveBodyStructRefs(el.Body, reg)
		}
	}
}
