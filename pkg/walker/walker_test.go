package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

func strLit(s string) *ast.StringExpr {
	return &ast.StringExpr{Parts: []ast.StringPart{{Literal: s}}}
}

func TestWalkVisitsTasksAndWorkflow(t *testing.T) {
	doc := &ast.Document{
		Tasks: []*ast.Task{{Name: "greet", Outputs: []*ast.Decl{
			{Type: wdltype.String(), Name: "greeting"},
		}}},
		Workflow: &ast.Workflow{
			Name: "main",
			Body: []ast.Node{
				&ast.Call{CalleeID: "greet"},
			},
		},
	}

	var taskNames, callNames []string
	var seenTask, seenWorkflow, seenCall bool
	Walk(doc, walkFuncs{
		task: func(tt *ast.Task) { seenTask = true; taskNames = append(taskNames, tt.Name) },
		wf:   func(w *ast.Workflow) { seenWorkflow = true },
		call: func(c *ast.Call) { seenCall = true; callNames = append(callNames, c.CalleeID) },
	})

	assert.True(t, seenTask)
	assert.True(t, seenWorkflow)
	assert.True(t, seenCall)
	assert.Equal(t, []string{"greet"}, taskNames)
	assert.Equal(t, []string{"greet"}, callNames)
}

// walkFuncs adapts bare function fields into the Visitor interface for
// table-driven assertions without declaring a new named type per test.
type walkFuncs struct {
	BaseVisitor
	task func(*ast.Task)
	wf   func(*ast.Workflow)
	call func(*ast.Call)
}

func (w walkFuncs) Task(t *ast.Task)         { if w.task != nil { w.task(t) } }
func (w walkFuncs) Workflow(wf *ast.Workflow) { if w.wf != nil { w.wf(wf) } }
func (w walkFuncs) Call(c *ast.Call)          { if w.call != nil { w.call(c) } }

func TestUnusedDeclLint(t *testing.T) {
	doc := &ast.Document{
		Workflow: &ast.Workflow{
			Name: "main",
			Body: []ast.Node{
				&ast.Decl{Type: wdltype.Int(), Name: "used"},
				&ast.Decl{Type: wdltype.Int(), Name: "unused"},
				&ast.Call{CalleeID: "t", Inputs: []ast.CallInput{
					{Name: "x", Expr: &ast.Ident{Name: "used"}},
				}},
			},
		},
	}
	l := NewUnusedDeclLint()
	Walk(doc, l)
	l.Finish()
	assert.Len(t, l.Findings, 1)
	assert.Equal(t, "UnusedDeclaration", l.Findings[0].Code)
}

func TestStringCoercedToFileLint(t *testing.T) {
	doc := &ast.Document{
		Tasks: []*ast.Task{{
			Name: "t",
			Inputs: []*ast.Decl{
				{Type: wdltype.File(), Name: "f", Expr: strLit("x.txt")},
				{Type: wdltype.Int(), Name: "n"},
			},
		}},
	}
	l := &StringCoercedToFileLint{}
	Walk(doc, l)
	assert.Len(t, l.Findings, 1)
	assert.Equal(t, "StringCoercion", l.Findings[0].Code)
}

func TestShadowedCallAliasLint(t *testing.T) {
	doc := &ast.Document{
		Workflow: &ast.Workflow{
			Name: "main",
			Body: []ast.Node{
				&ast.Call{CalleeID: "ns.t", Alias: "x"},
				&ast.Call{CalleeID: "other.t", Alias: "x"},
			},
		},
	}
	l := NewShadowedCallAliasLint()
	Walk(doc, l)
	assert.Len(t, l.Findings, 1)
}
