package typecheck

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// typecheckWorkflow typechecks a workflow: the body
// depth-first, resolving each Call.CalleeID, extending the environment
// through scatter/conditional sections, then typechecking explicit outputs.
func typecheckWorkflow(doc *ast.Document, wf *ast.Workflow, baseEnv *TypeEnv, merr *diag.MultiError) {
	env := baseEnv
	for _, d := range wf.Inputs {
		env = typecheckDecl(d, env, merr)
	}
	bodyEnv := typecheckWorkflowBody(wf.Body, env, doc, merr)

	if wf.Outputs != nil {
		wf.Outputs = expandCallWildcardOutputs(wf.Body, wf.Outputs, merr)
		seen := map[string]bool{}
		for _, d := range wf.Outputs {
			if seen[d.Name] {
				merr.Add(diag.MultipleDefinitions(d.Pos, d.Name))
				continue
			}
			seen[d.Name] = true
			typecheckDecl(d, bodyEnv, merr)
		}
	}
}

// expandCallWildcardOutputs replaces each draft-2 `CallName.*` output-section
// entry (parsed as a Decl with only CallWildcard set) with one concrete Decl
// per output of the named call, in the callee's declared output order
//. The generated decl's Name is "callname.outputname",
// matching the dotted key a plain `call.output` reference would bind under,
// and its Expr reads that output back out of the call's namespace.
func expandCallWildcardOutputs(body []ast.Node, outputs []*ast.Decl, merr *diag.MultiError) []*ast.Decl {
	expanded := make([]*ast.Decl, 0, len(outputs))
	for _, d := range outputs {
		if d.CallWildcard == "" {
			expanded = append(expanded, d)
			continue
		}
		call := findCallByName(body, d.CallWildcard)
		if call == nil {
			merr.Add(diag.New(diag.KindUnknownIdentifier, d.Pos, "no such call %q for output wildcard", d.CallWildcard))
			continue
		}
		var outputDecls []*ast.Decl
		switch {
		case call.CalleeTask != nil:
			outputDecls = call.CalleeTask.Outputs
		case call.CalleeWorkflow != nil:
			outputDecls = call.CalleeWorkflow.Outputs
		}
		for i, od := range outputDecls {
			expanded = append(expanded, &ast.Decl{
				NodeBase: ast.NewNodeBase(fmt.Sprintf("%s-%d", d.ID, i), d.Pos),
				Type:     od.Type,
				Name:     d.CallWildcard + "." + od.Name,
				Expr: &ast.MemberExpr{
					ExprBase: ast.NewExprBase(d.Pos),
					Target:   &ast.Ident{ExprBase: ast.NewExprBase(d.Pos), Name: d.CallWildcard},
					Name:     od.Name,
				},
			})
		}
	}
	return expanded
}

// findCallByName searches a workflow body depth-first (including inside
// scatter/conditional sections) for the Call whose EffectiveName matches.
func findCallByName(body []ast.Node, name string) *ast.Call {
	for _, n := range body {
		switch el := n.(type) {
		case *ast.Call:
			if el.EffectiveName() == name {
				return el
			}
		case *ast.Scatter:
			if c := findCallByName(el.Body, name); c != nil {
				return c
			}
		case *ast.Conditional:
			if c := findCallByName(el.Body, name); c != nil {
				return c
			}
		}
	}
	return nil
}

// typecheckWorkflowBody typechecks elements in order, threading the type
// environment through Decls and Calls, and returns the environment extended
// with every binding introduced (decls, call outputs under the call's
// namespace, and section-promoted gather types).
func typecheckWorkflowBody(elements []ast.Node, env *TypeEnv, doc *ast.Document, merr *diag.MultiError) *TypeEnv {
	for _, el := range elements {
		switch n := el.(type) {
		case *ast.Decl:
			env = typecheckDecl(n, env, merr)
		case *ast.Call:
			callOutputs := typecheckCall(n, env, doc, merr)
			env = wdlenv.Merge(callOutputs.WrapNamespace(n.EffectiveName()+"."), env)
		case *ast.Scatter:
			env = typecheckScatter(n, env, doc, merr)
		case *ast.Conditional:
			env = typecheckConditional(n, env, doc, merr)
		}
	}
	return env
}

func typecheckCall(c *ast.Call, env *TypeEnv, doc *ast.Document, merr *diag.MultiError) *TypeEnv {
	calleeDoc := doc
	name := c.CalleeID
	if idx := strings.LastIndex(c.CalleeID, "."); idx >= 0 {
		ns := c.CalleeID[:idx]
		name = c.CalleeID[idx+1:]
		found := false
		for _, imp := range doc.Imports {
			if imp.Namespace == ns && imp.Doc != nil {
				calleeDoc = imp.Doc
				found = true
				break
			}
		}
		if !found {
			merr.Add(diag.NoSuchTask(c.Pos, c.CalleeID))
			return &TypeEnv{}
		}
	}

	var inputDecls []*ast.Decl
	var outputDecls []*ast.Decl
	if calleeDoc.Workflow != nil && calleeDoc.Workflow.Name == name {
		c.CalleeWorkflow = calleeDoc.Workflow
		inputDecls = calleeDoc.Workflow.Inputs
		outputDecls = calleeDoc.Workflow.Outputs
	} else if task, ok := calleeDoc.FindTask(name); ok {
		c.CalleeTask = task
		inputDecls = task.AllDecls()
		outputDecls = task.Outputs
	} else {
		merr.Add(diag.NoSuchTask(c.Pos, c.CalleeID))
		return &TypeEnv{}
	}

	for _, in := range c.Inputs {
		var decl *ast.Decl
		for _, d := range inputDecls {
			if d.Name == in.Name {
				decl = d
				break
			}
		}
		if decl == nil {
			merr.Add(diag.NoSuchInput(in.Expr.ExprPos(), c.CalleeID, in.Name))
			continue
		}
		t, err := InferType(in.Expr, env)
		if err != nil {
			merr.Add(asErr(err))
			continue
		}
		if err := Coerce(in.Expr.ExprPos(), t, decl.Type); err != nil {
			merr.Add(asErr(err))
		}
	}

	var outEnv *TypeEnv
	for _, d := range outputDecls {
		outEnv = wdlenv.Bind(outEnv, d.Name, d.Type, d)
	}
	return outEnv
}

func typecheckScatter(s *ast.Scatter, env *TypeEnv, doc *ast.Document, merr *diag.MultiError) *TypeEnv {
	arrT, err := InferType(s.Expr, env)
	if err != nil {
		merr.Add(asErr(err))
		return env
	}
	if arrT.Kind != wdltype.KindArray {
		merr.Add(diag.New(diag.KindNotAnArray, s.Expr.ExprPos(), "scatter expression must be an Array, got %s", arrT.String()))
		return env
	}
	bodyEnv := wdlenv.Bind(env, s.Variable, *arrT.Item, nil)
	innerEnv := typecheckWorkflowBody(s.Body, bodyEnv, doc, merr)
	promoted := innerEnv.Subtract(bodyEnv).Map(func(b wdlenv.Binding[wdltype.Type]) wdlenv.Binding[wdltype.Type] {
		b.Value = wdltype.Array(b.Value, false)
		return b
	})
	return wdlenv.Merge(promoted, env)
}

func typecheckConditional(c *ast.Conditional, env *TypeEnv, doc *ast.Document, merr *diag.MultiError) *TypeEnv {
	condT, err := InferType(c.Expr, env)
	if err != nil {
		merr.Add(asErr(err))
		return env
	}
	if err := Coerce(c.Expr.ExprPos(), condT, wdltype.Boolean()); err != nil {
		merr.Add(asErr(err))
	}
	innerEnv := typecheckWorkflowBody(c.Body, env, doc, merr)
	promoted := innerEnv.Subtract(env).Map(func(b wdlenv.Binding[wdltype.Type]) wdlenv.Binding[wdltype.Type] {
		b.Value = b.Value.WithOptional(true)
		return b
	})
	return wdlenv.Merge(promoted, env)
}
