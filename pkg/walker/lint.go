package walker

import (
	"fmt"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// Finding is one lint observation: a short code, a human message, and the
// position it pins to.
type Finding struct {
	Code    string
	Message string
	Pos     diag.SourcePos
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Pos, f.Code, f.Message)
}

// UnusedDeclLint flags declarations whose name no Ident references in a
// decl expression, a call input, or a scatter/conditional guard. Names are
// matched across the whole document, not per task or workflow. Output
// declarations are checked like any other, so an output nobody references
// is flagged, and references inside a task's command are not collected.
type UnusedDeclLint struct {
	BaseVisitor
	Findings []Finding

	declared map[string]*ast.Decl
	used     map[string]bool
}

// NewUnusedDeclLint returns a ready-to-run UnusedDeclLint visitor.
func NewUnusedDeclLint() *UnusedDeclLint {
	return &UnusedDeclLint{declared: map[string]*ast.Decl{}, used: map[string]bool{}}
}

func (l *UnusedDeclLint) Decl(n *ast.Decl) {
	l.declared[n.Name] = n
	if n.Expr != nil {
		collectIdents(n.Expr, l.used)
	}
}

func (l *UnusedDeclLint) Call(n *ast.Call) {
	for _, in := range n.Inputs {
		collectIdents(in.Expr, l.used)
	}
}

func (l *UnusedDeclLint) Scatter(n *ast.Scatter) { collectIdents(n.Expr, l.used) }

func (l *UnusedDeclLint) Conditional(n *ast.Conditional) { collectIdents(n.Expr, l.used) }

// Finish computes Findings once the whole document has been walked.
func (l *UnusedDeclLint) Finish() {
	for name, decl := range l.declared {
		if !l.used[name] {
			l.Findings = append(l.Findings, Finding{
				Code:    "UnusedDeclaration",
				Message: fmt.Sprintf("%q is never referenced", name),
				Pos:     decl.NodePos(),
			})
		}
	}
}

// StringCoercedToFileLint flags a String-typed expression assigned directly
// to a File- or Directory-typed declaration — legal under the coercion
// relation, but worth a style note since it bypasses the type
// checker's usual guarantee that a File actually originated from task output.
type StringCoercedToFileLint struct {
	BaseVisitor
	Findings []Finding
}

func (l *StringCoercedToFileLint) Decl(n *ast.Decl) {
	if n.Expr == nil {
		return
	}
	if n.Type.Kind != wdltype.KindFile && n.Type.Kind != wdltype.KindDirectory {
		return
	}
	if _, ok := n.Expr.(*ast.StringExpr); ok {
		l.Findings = append(l.Findings, Finding{
			Code:    "StringCoercion",
			Message: fmt.Sprintf("%q is declared %s but initialized from a String literal", n.Name, n.Type),
			Pos:     n.Pos,
		})
	}
}

// ShadowedCallAliasLint flags two calls in the same workflow resolving to
// the same effective name (whether via implicit callee name or an explicit
// `as` alias), since only the most recent one is reachable by that name.
type ShadowedCallAliasLint struct {
	BaseVisitor
	Findings []Finding

	seen map[string]*ast.Call
}

// NewShadowedCallAliasLint returns a ready-to-run ShadowedCallAliasLint visitor.
func NewShadowedCallAliasLint() *ShadowedCallAliasLint {
	return &ShadowedCallAliasLint{seen: map[string]*ast.Call{}}
}

func (l *ShadowedCallAliasLint) Call(n *ast.Call) {
	name := n.EffectiveName()
	if prev, ok := l.seen[name]; ok {
		l.Findings = append(l.Findings, Finding{
			Code:    "ShadowedCallAlias",
			Message: fmt.Sprintf("call %q at %s is shadowed by this one", name, prev.NodePos()),
			Pos:     n.NodePos(),
		})
	}
	l.seen[name] = n
}

// collectIdents walks an expression tree, recording every Ident.Name found.
func collectIdents(e ast.Expr, out map[string]bool) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Ident:
		out[n.Name] = true
	case *ast.StringExpr:
		for _, part := range n.Parts {
			if part.Placeholder != nil {
				collectIdents(part.Placeholder.Expr, out)
			}
		}
	case *ast.BinaryExpr:
		collectIdents(n.Left, out)
		collectIdents(n.Right, out)
	case *ast.UnaryExpr:
		collectIdents(n.Expr, out)
	case *ast.IfExpr:
		collectIdents(n.Cond, out)
		collectIdents(n.Then, out)
		collectIdents(n.Else, out)
	case *ast.ArrayLit:
		for _, it := range n.Items {
			collectIdents(it, out)
		}
	case *ast.MapLit:
		for _, entry := range n.Entries {
			collectIdents(entry.Key, out)
			collectIdents(entry.Value, out)
		}
	case *ast.PairLit:
		collectIdents(n.Left, out)
		collectIdents(n.Right, out)
	case *ast.ObjectLit:
		for _, f := range n.Fields {
			collectIdents(f.Value, out)
		}
	case *ast.IndexExpr:
		collectIdents(n.Target, out)
		collectIdents(n.Index, out)
	case *ast.MemberExpr:
		collectIdents(n.Target, out)
	case *ast.CallExpr:
		for _, a := range n.Args {
			collectIdents(a, out)
		}
	}
}
