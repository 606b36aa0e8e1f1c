// Package plan compiles a typechecked workflow body into the dependency-
// labeled node graph pkg/wfstate drives to completion. Nodes are addressed
// by string ID rather than pointer, since the graph is cyclic at the
// reference level (a Section's Gather nodes point back at nodes the Section
// itself contains).
package plan

import (
	"fmt"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// NodeKind discriminates the Node sum.
type NodeKind int

const (
	KindDecl NodeKind = iota
	KindCall
	KindSection
	KindGather
	KindWorkflowOutputs
)

// Node is one vertex of the plan graph. Only the fields relevant to Kind are
// populated; callers switch on Kind before reading them.
type Node struct {
	ID   string
	Kind NodeKind
	Deps []string // predecessor node IDs

	// KindDecl
	Decl *ast.Decl

	// KindCall
	Call *ast.Call

	// KindSection: a Scatter or Conditional. Exactly one of Scatter/
	// Conditional is non-nil.
	Scatter     *ast.Scatter
	Conditional *ast.Conditional
	Body        *Plan // the section's nested sub-plan

	// KindGather
	Referee     string       // the node ID (inside Body) this gather lifts
	RefereeKind NodeKind     // Decl, Call, or Gather
	BindingType wdltype.Type // the type this gather exposes: the referee's type wrapped in Array[T] (scatter) or T? (conditional)
	Section     string       // the owning Section node's ID
	ExposedName string       // the bound name this gather republishes, "" for a Call referee (which republishes a whole namespace instead)

	// KindWorkflowOutputs
	Outputs []*ast.Decl
}

// ExposedType is the type a downstream consumer sees when referencing this
// node's binding: a Gather wraps its referee's BindingType in Array[T] (for
// a scatter section) or T? (for a conditional section); other kinds expose
// their Decl's/Call output's own type, which the caller already knows.
func (n *Node) ExposedType() wdltype.Type {
	if n.Kind != KindGather {
		return wdltype.Type{}
	}
	return n.BindingType
}

// Plan is a workflow's (or a section body's) compiled node graph, in
// depth-first construction order.
type Plan struct {
	Nodes   []*Node
	byID    map[string]*Node
	counter map[string]int
}

func newPlan() *Plan {
	return &Plan{byID: map[string]*Node{}, counter: map[string]int{}}
}

// Node looks up a node by ID.
func (p *Plan) Node(id string) (*Node, bool) {
	n, ok := p.byID[id]
	return n, ok
}

func (p *Plan) add(n *Node) *Node {
	p.Nodes = append(p.Nodes, n)
	p.byID[n.ID] = n
	return n
}

func (p *Plan) freshID(prefix string) string {
	p.counter[prefix]++
	n := p.counter[prefix]
	if n == 1 {
		return prefix
	}
	return fmt.Sprintf("%s-%d", prefix, n)
}

// Build compiles w's body into a Plan: depth-first visit
// of the body creating Decl/Call/Section nodes, with a Gather synthesized
// for every inner Decl/Call/Gather immediately upon entering a Section, and
// a final WorkflowOutputs node depending on every output decl (or, when no
// output section is present, on every top-level Call/Gather).
func Build(w *ast.Workflow) *Plan {
	p := newPlan()
	scope := newScopeIndex()
	for _, n := range w.Body {
		buildNode(p, n, scope)
	}

	out := &Node{ID: "outputs", Kind: KindWorkflowOutputs, Outputs: w.Outputs}
	if len(w.Outputs) > 0 {
		for _, d := range w.Outputs {
			out.Deps = append(out.Deps, identDeps(d.Expr, scope)...)
		}
	} else {
		for _, n := range p.Nodes {
			if n.Kind == KindCall || n.Kind == KindGather {
				out.Deps = append(out.Deps, n.ID)
			}
		}
	}
	p.add(out)
	return p
}

// scopeIndex maps a bound name (decl name, call effective name, scatter
// variable) visible at the current nesting level to the plan node ID that
// produces it — consulted by identDeps to turn an Ident into a dependency
// edge, mirroring pkg/typecheck/deps.go's exprIdents but over plan node IDs
// instead of raw names.
type scopeIndex struct {
	byName map[string]string
}

func newScopeIndex() *scopeIndex { return &scopeIndex{byName: map[string]string{}} }

func (s *scopeIndex) bind(name, nodeID string) { s.byName[name] = nodeID }

func (s *scopeIndex) child() *scopeIndex {
	c := newScopeIndex()
	for k, v := range s.byName {
		c.byName[k] = v
	}
	return c
}

func buildNode(p *Plan, n ast.Node, scope *scopeIndex) {
	switch nn := n.(type) {
	case *ast.Decl:
		id := p.freshID("decl-" + nn.Name)
		node := &Node{ID: id, Kind: KindDecl, Decl: nn, Deps: identDeps(nn.Expr, scope)}
		p.add(node)
		scope.bind(nn.Name, id)
	case *ast.Call:
		id := p.freshID("call-" + nn.EffectiveName())
		var deps []string
		for _, in := range nn.Inputs {
			deps = append(deps, identDeps(in.Expr, scope)...)
		}
		for _, after := range nn.Afters {
			if depID, ok := scope.byName[after]; ok {
				deps = append(deps, depID)
			}
		}
		node := &Node{ID: id, Kind: KindCall, Call: nn, Deps: dedupe(deps)}
		p.add(node)
		scope.bind(nn.EffectiveName(), id)
	case *ast.Scatter:
		buildSection(p, scope, "scatter-"+nn.Variable, nn.Expr, nn.Body, nn, nil)
	case *ast.Conditional:
		buildSection(p, scope, "if", nn.Expr, nn.Body, nil, nn)
	}
}

func buildSection(p *Plan, outerScope *scopeIndex, idPrefix string, guard ast.Expr, body []ast.Node, sc *ast.Scatter, cond *ast.Conditional) {
	sectionID := p.freshID(idPrefix)
	section := &Node{
		ID: sectionID, Kind: KindSection, Scatter: sc, Conditional: cond,
		Deps: identDeps(guard, outerScope),
	}

	inner := newPlan()
	innerScope := outerScope.child()
	if sc != nil {
		innerScope.bind(sc.Variable, "") // scatter variable has no node ID; resolved at runtime
	}
	for _, n := range body {
		buildNode(inner, n, innerScope)
	}
	section.Body = inner
	p.add(section)

	for _, innerNode := range inner.Nodes {
		if innerNode.Kind != KindDecl && innerNode.Kind != KindCall && innerNode.Kind != KindGather {
			continue
		}
		gatherID := "gather-" + innerNode.ID
		bindingType := refereeType(innerNode)
		exposed := bindingType
		if sc != nil {
			exposed = wdltype.Array(bindingType, false)
		} else {
			exposed = bindingType.WithOptional(true)
		}
		name := gatherExposedName(innerNode)
		g := &Node{
			ID: gatherID, Kind: KindGather, Referee: innerNode.ID, RefereeKind: innerNode.Kind,
			BindingType: exposed, Section: sectionID, Deps: []string{sectionID}, ExposedName: name,
		}
		p.add(g)
		if name != "" {
			outerScope.bind(name, gatherID)
		}
	}
}

func gatherExposedName(n *Node) string {
	switch n.Kind {
	case KindDecl:
		return n.Decl.Name
	case KindCall:
		return n.Call.EffectiveName()
	case KindGather:
		return n.ExposedName
	default:
		return ""
	}
}

func refereeType(n *Node) wdltype.Type {
	switch n.Kind {
	case KindDecl:
		return n.Decl.Type
	case KindCall:
		return wdltype.AnyType() // resolved per-output by the caller; the Call node itself exposes a namespace, not a single type
	case KindGather:
		return n.BindingType
	default:
		return wdltype.Type{}
	}
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// identDeps resolves every Ident referenced in expr to a dependency node ID
// via scope, dropping references to names scope doesn't know about (workflow
// inputs, scatter variables bound with no node ID, stdlib calls).
func identDeps(expr ast.Expr, scope *scopeIndex) []string {
	if expr == nil {
		return nil
	}
	var names []string
	collectIdentNames(expr, &names)
	var deps []string
	for _, name := range names {
		if id, ok := scope.byName[name]; ok && id != "" {
			deps = append(deps, id)
		}
	}
	return dedupe(deps)
}

func collectIdentNames(e ast.Expr, out *[]string) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.Ident:
		*out = append(*out, n.Name)
	case *ast.BinaryExpr:
		collectIdentNames(n.Left, out)
		collectIdentNames(n.Right, out)
	case *ast.UnaryExpr:
		collectIdentNames(n.Expr, out)
	case *ast.IfExpr:
		collectIdentNames(n.Cond, out)
		collectIdentNames(n.Then, out)
		collectIdentNames(n.Else, out)
	case *ast.ArrayLit:
		for _, it := range n.Items {
			collectIdentNames(it, out)
		}
	case *ast.MapLit:
		for _, ent := range n.Entries {
			collectIdentNames(ent.Key, out)
			collectIdentNames(ent.Value, out)
		}
	case *ast.PairLit:
		collectIdentNames(n.Left, out)
		collectIdentNames(n.Right, out)
	case *ast.ObjectLit:
		for _, f := range n.Fields {
			collectIdentNames(f.Value, out)
		}
	case *ast.IndexExpr:
		collectIdentNames(n.Target, out)
		collectIdentNames(n.Index, out)
	case *ast.MemberExpr:
		collectIdentNames(n.Target, out)
	case *ast.CallExpr:
		for _, a := range n.Args {
			collectIdentNames(a, out)
		}
	case *ast.StringExpr:
		for _, part := range n.Parts {
			if part.Placeholder != nil {
				collectIdentNames(part.Placeholder.Expr, out)
			}
		}
	}
}
