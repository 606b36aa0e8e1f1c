package wfstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/plan"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// runToCompletion drives sm, handing every CallNow straight to fill, until
// Step stops producing work.
func runToCompletion(t *testing.T, sm *StateMachine, fill func(*CallNow) *Env) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		call, err := sm.Step()
		require.NoError(t, err)
		if call == nil {
			if sm.IsDone() {
				return
			}
			t.Fatalf("state machine stalled with no ready node and work remaining")
		}
		sm.CallFinished(call.ID, fill(call))
	}
	t.Fatal("runToCompletion: exceeded iteration budget")
}

func TestDeclChainBindsInOrder(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Int(), Name: "a", Expr: &ast.IntLit{Value: 1}},
			&ast.Decl{Type: wdltype.Int(), Name: "b", Expr: &ast.BinaryExpr{
				Op: ast.OpAdd, Left: &ast.Ident{Name: "a"}, Right: &ast.IntLit{Value: 41},
			}},
		},
	}
	p := plan.Build(w)
	sm := New(p, nil, nil)
	runToCompletion(t, sm, nil)

	// With no output section, Outputs holds only top-level call and gather
	// bindings, so b is read from its own decl node's bound output.
	v, ok := sm.jobOutputs["decl-b"].Resolve("b")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.AsInt())
}

func TestScatterOverCallGathersPerOutputArray(t *testing.T) {
	task := &ast.Task{
		Name:    "sq",
		Inputs:  []*ast.Decl{{Type: wdltype.Int(), Name: "x"}},
		Outputs: []*ast.Decl{{Type: wdltype.Int(), Name: "out"}},
	}
	call := &ast.Call{
		CalleeID:   "sq",
		CalleeTask: task,
		Inputs:     []ast.CallInput{{Name: "x", Expr: &ast.Ident{Name: "x"}}},
	}
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Scatter{Variable: "x", Expr: &ast.Ident{Name: "xs"}, Body: []ast.Node{call}},
		},
	}
	p := plan.Build(w)

	xs := wdlvalue.NewArray(wdltype.Int(), []wdlvalue.Value{
		wdlvalue.NewInt(1), wdlvalue.NewInt(2), wdlvalue.NewInt(3),
	})
	inputs := wdlenv.Bind(nil, "xs", xs, nil)

	sm := New(p, inputs, nil)
	runToCompletion(t, sm, func(c *CallNow) *Env {
		x, ok := c.Inputs.Resolve("x")
		require.True(t, ok)
		return wdlenv.Bind(nil, "out", wdlvalue.NewInt(x.AsInt()*x.AsInt()), nil)
	})

	v, ok := sm.Outputs.Resolve("sq.out")
	require.True(t, ok)
	got := v.AsList()
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].AsInt())
	assert.Equal(t, int64(4), got[1].AsInt())
	assert.Equal(t, int64(9), got[2].AsInt())
}

func TestConditionalGatherOptional(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Boolean(), Name: "flag", Expr: &ast.BoolLit{Value: true}},
			&ast.Conditional{
				Expr: &ast.Ident{Name: "flag"},
				Body: []ast.Node{
					&ast.Decl{Type: wdltype.Int(), Name: "y", Expr: &ast.IntLit{Value: 7}},
				},
			},
		},
	}
	p := plan.Build(w)
	sm := New(p, nil, nil)
	runToCompletion(t, sm, nil)

	v, ok := sm.Outputs.Resolve("y")
	require.True(t, ok)
	assert.Equal(t, int64(7), v.AsInt())
	assert.True(t, v.Type().IsOptional())
}

func TestConditionalFalseProducesNull(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Boolean(), Name: "flag", Expr: &ast.BoolLit{Value: false}},
			&ast.Conditional{
				Expr: &ast.Ident{Name: "flag"},
				Body: []ast.Node{
					&ast.Decl{Type: wdltype.Int(), Name: "y", Expr: &ast.IntLit{Value: 7}},
				},
			},
		},
	}
	p := plan.Build(w)
	sm := New(p, nil, nil)
	runToCompletion(t, sm, nil)

	v, ok := sm.Outputs.Resolve("y")
	require.True(t, ok)
	assert.True(t, v.IsNull())
}
