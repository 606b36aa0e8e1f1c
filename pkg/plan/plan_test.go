package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

func TestBuildSimpleDeclChain(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Int(), Name: "a", Expr: &ast.IntLit{Value: 1}},
			&ast.Decl{Type: wdltype.Int(), Name: "b", Expr: &ast.Ident{Name: "a"}},
		},
	}
	p := Build(w)

	declA, ok := p.Node("decl-a")
	require.True(t, ok)
	assert.Empty(t, declA.Deps)

	declB, ok := p.Node("decl-b")
	require.True(t, ok)
	assert.Equal(t, []string{"decl-a"}, declB.Deps)

	out, ok := p.Node("outputs")
	require.True(t, ok)
	assert.Equal(t, KindWorkflowOutputs, out.Kind)
}

func TestBuildScatterSynthesizesGather(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Array(wdltype.Int(), false), Name: "xs"},
			&ast.Scatter{
				Variable: "x",
				Expr:     &ast.Ident{Name: "xs"},
				Body: []ast.Node{
					&ast.Decl{Type: wdltype.Int(), Name: "sq", Expr: &ast.Ident{Name: "x"}},
				},
			},
		},
	}
	p := Build(w)

	section, ok := p.Node("scatter-x")
	require.True(t, ok)
	assert.Equal(t, []string{"decl-xs"}, section.Deps)
	require.NotNil(t, section.Body)
	_, ok = section.Body.Node("decl-sq")
	require.True(t, ok)

	gather, ok := p.Node("gather-decl-sq")
	require.True(t, ok)
	assert.Equal(t, KindGather, gather.Kind)
	assert.Equal(t, "decl-sq", gather.Referee)
	assert.Equal(t, wdltype.KindArray, gather.BindingType.Kind)
	assert.Equal(t, []string{"scatter-x"}, gather.Deps)

	out, ok := p.Node("outputs")
	require.True(t, ok)
	assert.Contains(t, out.Deps, "gather-decl-sq")
}

func TestBuildConditionalGatherIsOptional(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Boolean(), Name: "flag"},
			&ast.Conditional{
				Expr: &ast.Ident{Name: "flag"},
				Body: []ast.Node{
					&ast.Decl{Type: wdltype.Int(), Name: "y", Expr: &ast.IntLit{Value: 1}},
				},
			},
		},
	}
	p := Build(w)
	gather, ok := p.Node("gather-decl-y")
	require.True(t, ok)
	assert.True(t, gather.BindingType.Optional)
	assert.False(t, gather.BindingType.Kind == wdltype.KindArray)
}

func TestBuildExplicitOutputsOnlyDependOnReferenced(t *testing.T) {
	w := &ast.Workflow{
		Name: "main",
		Body: []ast.Node{
			&ast.Decl{Type: wdltype.Int(), Name: "a", Expr: &ast.IntLit{Value: 1}},
			&ast.Decl{Type: wdltype.Int(), Name: "b", Expr: &ast.IntLit{Value: 2}},
		},
		Outputs: []*ast.Decl{
			{Type: wdltype.Int(), Name: "out_a", Expr: &ast.Ident{Name: "a"}},
		},
	}
	p := Build(w)
	out, ok := p.Node("outputs")
	require.True(t, ok)
	assert.Equal(t, []string{"decl-a"}, out.Deps)
}
