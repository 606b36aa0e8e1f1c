// Package walker implements a generic pre/post-order traversal over a
// parsed Document: a visitor whose methods are called once per node, in
// document order. Walk fires a compound node's callback before its
// children's; PostWalk fires it after them instead.
package walker

import "github.com/lemonberrylabs/wdlcore/pkg/ast"

// Visitor receives one callback per node kind. Every method has a no-op
// default via embedding BaseVisitor, so callers override only what they need.
type Visitor interface {
	Document(d *ast.Document)
	Task(t *ast.Task)
	Workflow(w *ast.Workflow)
	Decl(n *ast.Decl)
	Call(n *ast.Call)
	Scatter(n *ast.Scatter)
	Conditional(n *ast.Conditional)
}

// BaseVisitor gives every Visitor method a no-op body; embed it and override
// only the callbacks a particular walk needs.
type BaseVisitor struct{}

func (BaseVisitor) Document(*ast.Document)       {}
func (BaseVisitor) Task(*ast.Task)                {}
func (BaseVisitor) Workflow(*ast.Workflow)        {}
func (BaseVisitor) Decl(*ast.Decl)                {}
func (BaseVisitor) Call(*ast.Call)                {}
func (BaseVisitor) Scatter(*ast.Scatter)          {}
func (BaseVisitor) Conditional(*ast.Conditional)  {}

// Walk visits d pre-order: a compound node's own callback fires before its
// children's. Task/Workflow bodies are visited in source order; Scatter and
// Conditional recurse into their Body.
func Walk(d *ast.Document, v Visitor) {
	v.Document(d)
	for _, t := range d.Tasks {
		walkTask(t, v)
	}
	if d.Workflow != nil {
		walkWorkflow(d.Workflow, v)
	}
}

func walkTask(t *ast.Task, v Visitor) {
	v.Task(t)
	for _, decl := range t.AllDecls() {
		v.Decl(decl)
	}
	for _, decl := range t.Outputs {
		v.Decl(decl)
	}
}

func walkWorkflow(w *ast.Workflow, v Visitor) {
	v.Workflow(w)
	for _, decl := range w.Inputs {
		v.Decl(decl)
	}
	walkNodes(w.Body, v)
	for _, decl := range w.Outputs {
		v.Decl(decl)
	}
}

func walkNodes(nodes []ast.Node, v Visitor) {
	for _, n := range nodes {
		walkNode(n, v)
	}
}

func walkNode(n ast.Node, v Visitor) {
	switch nn := n.(type) {
	case *ast.Decl:
		v.Decl(nn)
	case *ast.Call:
		v.Call(nn)
	case *ast.Scatter:
		v.Scatter(nn)
		walkNodes(nn.Body, v)
	case *ast.Conditional:
		v.Conditional(nn)
		walkNodes(nn.Body, v)
	}
}

// PostWalk is Walk's mirror image: a compound node's callback fires after
// its children's, for visitors that need a section's interior already
// visited. The built-in lints run by Lint all use Walk.
func PostWalk(d *ast.Document, v Visitor) {
	for _, t := range d.Tasks {
		postWalkTask(t, v)
	}
	if d.Workflow != nil {
		postWalkWorkflow(d.Workflow, v)
	}
	v.Document(d)
}

func postWalkTask(t *ast.Task, v Visitor) {
	for _, decl := range t.AllDecls() {
		v.Decl(decl)
	}
	for _, decl := range t.Outputs {
		v.Decl(decl)
	}
	v.Task(t)
}

func postWalkWorkflow(w *ast.Workflow, v Visitor) {
	for _, decl := range w.Inputs {
		v.Decl(decl)
	}
	postWalkNodes(w.Body, v)
	for _, decl := range w.Outputs {
		v.Decl(decl)
	}
	v.Workflow(w)
}

func postWalkNodes(nodes []ast.Node, v Visitor) {
	for _, n := range nodes {
		postWalkNode(n, v)
	}
}

func postWalkNode(n ast.Node, v Visitor) {
	switch nn := n.(type) {
	case *ast.Decl:
		v.Decl(nn)
	case *ast.Call:
		v.Call(nn)
	case *ast.Scatter:
		postWalkNodes(nn.Body, v)
		v.Scatter(nn)
	case *ast.Conditional:
		postWalkNodes(nn.Body, v)
		v.Conditional(nn)
	}
}
