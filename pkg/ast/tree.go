package ast

import (
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/internal/metayaml"
)

// Node is any workflow-body element: Decl, Call, Scatter, or Conditional.
// Each carries a unique, document-scoped ID used by pkg/plan to build the
// dependency graph without embedding pointer cycles in the AST itself.
type Node interface {
	NodeID() string
	NodePos() diag.SourcePos
}

// NodeBase carries the document-scoped ID and source position shared by
// every workflow-body node. It is exported so pkg/parser and pkg/plan can
// construct node literals directly from another package.
type NodeBase struct {
	ID  string
	Pos diag.SourcePos
}

func (n NodeBase) NodeID() string          { return n.ID }
func (n NodeBase) NodePos() diag.SourcePos { return n.Pos }

// NewNodeBase is a convenience constructor for NodeBase{ID: id, Pos: pos}.
func NewNodeBase(id string, pos diag.SourcePos) NodeBase { return NodeBase{ID: id, Pos: pos} }

// Decl is a typed declaration, optionally with an initializer expression.
// A Decl with a nil Expr in a task's `input` section is a required input.
type Decl struct {
	NodeBase
	Type wdltype.Type
	Name string
	Expr Expr // nil if unassigned (required input)

	// CallWildcard holds a call's effective name for a draft-2 workflow
	// output shorthand entry (`mytask.*`). Such a Decl carries
	// no Type/Name/Expr of its own until pkg/typecheck expands it in place
	// into one Decl per the named call's outputs.
	CallWildcard string
}

// CallInput is one `name: expr` actual argument to a Call, in source order.
type CallInput struct {
	Name string
	Expr Expr
}

// Call invokes a Task or Workflow. CalleeID is the parsed (possibly
// namespace-qualified) name; CalleeTask/CalleeWorkflow are filled in by
// pkg/typecheck once the callee is resolved.
type Call struct {
	NodeBase
	CalleeID string
	Alias    string // empty if no `as` alias
	Afters   []string
	Inputs   []CallInput

	CalleeTask     *Task
	CalleeWorkflow *Workflow
}

// EffectiveName is Alias if set, else the last path component of CalleeID.
func (c *Call) EffectiveName() string {
	if c.Alias != "" {
		return c.Alias
	}
	name := c.CalleeID
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// Scatter is a `scatter (x in expr) { body }` section.
type Scatter struct {
	NodeBase
	Variable string
	Expr     Expr
	Body     []Node
}

// Conditional is an `if (expr) { body }` section.
type Conditional struct {
	NodeBase
	Expr Expr
	Body []Node
}

// Task is a command-line task definition.
type Task struct {
	Name          string
	Inputs        []*Decl
	Postinputs    []*Decl
	Command       StringExpr
	Outputs       []*Decl
	Runtime       map[string]Expr
	RuntimeOrder  []string
	ParameterMeta *metayaml.Value
	Meta          *metayaml.Value
	Pos           diag.SourcePos
}

// AllDecls returns Inputs followed by Postinputs, the declaration
// dependency subgraph the typechecker topologically sorts.
func (t *Task) AllDecls() []*Decl {
	out := make([]*Decl, 0, len(t.Inputs)+len(t.Postinputs))
	out = append(out, t.Inputs...)
	out = append(out, t.Postinputs...)
	return out
}

// Workflow is a DAG of calls to tasks/sub-workflows with scatter/
// conditional sections.
type Workflow struct {
	Name          string
	Inputs        []*Decl
	Body          []Node
	Outputs       []*Decl // nil if no explicit output section
	ParameterMeta *metayaml.Value
	Meta          *metayaml.Value
	Pos           diag.SourcePos
}

// ImportAlias renames a struct type brought in from an imported document.
type ImportAlias struct {
	From, To string
}

// Import is one `import "uri" as ns alias A as B ...` statement.
type Import struct {
	URI       string
	Namespace string
	Aliases   []ImportAlias
	Doc       *Document // resolved by the caller driving multi-file typecheck
	Pos       diag.SourcePos
}

// StructTypedef is a top-level `struct Name { member: Type ... }`
// declaration. Members is populated by the parser from the textual type
// annotations; cross-struct references are validated for acyclicity by
// pkg/typecheck.
type StructTypedef struct {
	Name    string
	Members *wdltype.MemberList
	Pos     diag.SourcePos
}

// Document is one parsed WDL source file.
type Document struct {
	Filename       string
	Version        string
	Imports        []*Import
	StructTypedefs []*StructTypedef
	Tasks          []*Task
	Workflow       *Workflow // nil if the document defines no workflow
	Pos            diag.SourcePos
}

// FindTask returns a top-level task by name.
func (d *Document) FindTask(name string) (*Task, bool) {
	for _, t := range d.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
