// Package wfstate drives a plan.Plan to completion as a single-threaded
// cooperative state machine: Step() returns the next
// ready unit of work (a Decl binds itself immediately; a Call is handed back
// to the caller as a CallNow for out-of-band execution), and CallFinished()
// reports a call's result back in. Section (scatter/conditional) nodes are
// expanded lazily, once their guard expression's value is known, into one
// flattened sub-instance per array element (or 0/1 for a conditional),
// tracked in an explicit node table.
package wfstate

import (
	"fmt"
	"sort"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/plan"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// Env is the value environment shared with pkg/eval.
type Env = wdlenv.Bindings[wdlvalue.Value]

// CallNow is a ready-to-execute call, returned by Step for the driver to run
// (locally as a task, or recursively as a sub-workflow) and eventually
// report back via CallFinished.
type CallNow struct {
	ID             string
	Call           *ast.Call
	CalleeTask     *ast.Task
	CalleeWorkflow *ast.Workflow
	Inputs         *Env
}

type runtimeNode struct {
	id       string
	tmpl     *plan.Node
	deps     []string
	suffix   string // dotted instance-index path, "" at top level
	extras   map[string]wdlvalue.Value
	instanceN int // for Section nodes once expanded: number of instances (0/1 for conditional)
}

// StateMachine drives one workflow's plan to completion.
type StateMachine struct {
	plan           *plan.Plan
	std            eval.StdLib
	workflowInputs *Env

	nodes    map[string]*runtimeNode
	waiting  map[string]bool
	running  map[string]bool
	finished map[string]bool

	jobOutputs map[string]*Env

	// Outputs holds the final workflow output bindings once WorkflowOutputs
	// has finished.
	Outputs *Env
}

// New builds a StateMachine ready to drive p, seeded with the workflow's
// input bindings (e.g. parsed from an inputs JSON) and a stdlib handle for
// evaluating Decl expressions that aren't themselves task commands.
func New(p *plan.Plan, workflowInputs *Env, std eval.StdLib) *StateMachine {
	sm := &StateMachine{
		plan: p, std: std, workflowInputs: workflowInputs,
		nodes: map[string]*runtimeNode{}, waiting: map[string]bool{},
		running: map[string]bool{}, finished: map[string]bool{},
		jobOutputs: map[string]*Env{},
	}
	for _, n := range p.Nodes {
		sm.register(&runtimeNode{id: n.ID, tmpl: n, deps: n.Deps, suffix: "", extras: map[string]wdlvalue.Value{}})
	}
	return sm
}

// nodePos extracts a source position from whichever AST node a plan.Node
// wraps, for error reporting; plan.Node itself carries no position since it
// is a dependency-graph vertex, not an AST node.
func nodePos(n *plan.Node) diag.SourcePos {
	switch {
	case n.Decl != nil:
		return n.Decl.Pos
	case n.Call != nil:
		return n.Call.Pos
	case n.Scatter != nil:
		return n.Scatter.Pos
	case n.Conditional != nil:
		return n.Conditional.Pos
	default:
		return diag.SourcePos{}
	}
}

func (sm *StateMachine) register(rn *runtimeNode) {
	sm.nodes[rn.id] = rn
	sm.waiting[rn.id] = true
}

// IsDone reports whether every registered node (as of the current expansion
// state) has finished.
func (sm *StateMachine) IsDone() bool {
	return len(sm.waiting) == 0 && len(sm.running) == 0
}

// Step advances the state machine by one ready node. It returns a non-nil
// CallNow when a Call node becomes ready to execute; it returns (nil, nil)
// when nothing is currently ready (the caller should wait for an in-flight
// CallFinished, or stop once IsDone); and (nil, err) on evaluation failure.
func (sm *StateMachine) Step() (*CallNow, error) {
	for {
		id := sm.pickReady()
		if id == "" {
			return nil, nil
		}
		rn := sm.nodes[id]
		delete(sm.waiting, id)

		switch rn.tmpl.Kind {
		case plan.KindDecl:
			if err := sm.stepDecl(rn); err != nil {
				return nil, err
			}
			continue
		case plan.KindCall:
			call, err := sm.stepCall(rn)
			if err != nil {
				return nil, err
			}
			return call, nil
		case plan.KindSection:
			if err := sm.stepSection(rn); err != nil {
				return nil, err
			}
			continue
		case plan.KindGather:
			ready, err := sm.stepGather(rn)
			if err != nil {
				return nil, err
			}
			if !ready {
				// Not every multiplexed instance has finished yet; put back.
				sm.waiting[id] = true
				return nil, nil
			}
			continue
		case plan.KindWorkflowOutputs:
			if err := sm.stepOutputs(rn); err != nil {
				return nil, err
			}
			continue
		}
	}
}

// pickReady returns a waiting node ID whose every dependency has finished,
// or "" if none is currently ready.
func (sm *StateMachine) pickReady() string {
	for id := range sm.waiting {
		rn := sm.nodes[id]
		ready := true
		for _, d := range rn.deps {
			if !sm.finished[d] {
				ready = false
				break
			}
		}
		if ready {
			return id
		}
	}
	return ""
}

// envFor merges a node's dependency outputs plus its instance extras
// (scatter variable bindings) into one evaluation environment.
func (sm *StateMachine) envFor(rn *runtimeNode) *Env {
	stacks := make([]*Env, 0, len(rn.deps)+2)
	if sm.workflowInputs != nil {
		stacks = append(stacks, sm.workflowInputs)
	}
	for _, d := range rn.deps {
		if out, ok := sm.jobOutputs[d]; ok {
			stacks = append(stacks, out)
		}
	}
	env := wdlenv.MergeAll(stacks...)
	for name, v := range rn.extras {
		env = wdlenv.Bind(env, name, v, nil)
	}
	return env
}

func (sm *StateMachine) stepDecl(rn *runtimeNode) error {
	decl := rn.tmpl.Decl
	env := sm.envFor(rn)
	if v, ok := env.Resolve(decl.Name); ok && decl.Expr == nil {
		sm.finishWith(rn.id, wdlenv.Bind(nil, decl.Name, v, nil))
		return nil
	}
	if decl.Expr == nil {
		return diag.New(diag.KindNoSuchInput, nodePos(rn.tmpl), "no value bound for required input %q", decl.Name)
	}
	v, err := eval.Eval(decl.Expr, env, sm.std)
	if err != nil {
		return err
	}
	v, err = eval.EvalDeclInput(decl.NodePos(), decl.Type, v)
	if err != nil {
		return err
	}
	sm.finishWith(rn.id, wdlenv.Bind(nil, decl.Name, v, nil))
	return nil
}

func (sm *StateMachine) stepCall(rn *runtimeNode) (*CallNow, error) {
	call := rn.tmpl.Call
	env := sm.envFor(rn)
	inputs := (*Env)(nil)
	for _, in := range call.Inputs {
		v, err := eval.Eval(in.Expr, env, sm.std)
		if err != nil {
			return nil, err
		}
		inputs = wdlenv.Bind(inputs, in.Name, v, nil)
	}
	sm.running[rn.id] = true
	return &CallNow{
		ID: rn.id, Call: call, CalleeTask: call.CalleeTask, CalleeWorkflow: call.CalleeWorkflow,
		Inputs: inputs,
	}, nil
}

// CallFinished reports a completed call's output bindings (unqualified
// output names; CallFinished namespaces them under the call's effective
// name) back into the state machine.
func (sm *StateMachine) CallFinished(id string, outputs *Env) {
	delete(sm.running, id)
	call := sm.nodes[id].tmpl.Call
	ns := call.EffectiveName() + "."
	sm.finishWith(id, outputs.WrapNamespace(ns))
}

func (sm *StateMachine) finishWith(id string, out *Env) {
	sm.jobOutputs[id] = out
	sm.finished[id] = true
}

func (sm *StateMachine) stepSection(rn *runtimeNode) error {
	env := sm.envFor(rn)
	switch {
	case rn.tmpl.Scatter != nil:
		arr, err := eval.Eval(rn.tmpl.Scatter.Expr, env, sm.std)
		if err != nil {
			return err
		}
		items := arr.AsList()
		sm.expand(rn, len(items), rn.tmpl.Scatter.Variable, items)
	case rn.tmpl.Conditional != nil:
		cond, err := eval.Eval(rn.tmpl.Conditional.Expr, env, sm.std)
		if err != nil {
			return err
		}
		n := 0
		if cond.Truthy() {
			n = 1
		}
		sm.expand(rn, n, "", nil)
	}
	sm.finishWith(rn.id, nil)
	return nil
}

// expand fans rn's body out into n instances (one per scatter element, or
// 0/1 for a conditional), registering each body node as a fresh runtime
// node whose ID and local dependency edges carry the new instance suffix.
func (sm *StateMachine) expand(rn *runtimeNode, n int, varName string, elems []wdlvalue.Value) {
	rn.instanceN = n
	localIDs := rn.tmpl.Body.Nodes
	local := make(map[string]bool, len(localIDs))
	for _, bn := range localIDs {
		local[bn.ID] = true
	}
	for idx := 0; idx < n; idx++ {
		childSuffix := fmt.Sprintf("%s.%d", rn.suffix, idx)
		extras := make(map[string]wdlvalue.Value, len(rn.extras)+1)
		for k, v := range rn.extras {
			extras[k] = v
		}
		if varName != "" {
			extras[varName] = elems[idx]
		}
		for _, bn := range localIDs {
			newID := bn.ID + childSuffix
			deps := make([]string, 0, len(bn.Deps))
			for _, d := range bn.Deps {
				if local[d] {
					deps = append(deps, d+childSuffix)
				} else {
					deps = append(deps, d+rn.suffix)
				}
			}
			sm.register(&runtimeNode{id: newID, tmpl: bn, deps: deps, suffix: childSuffix, extras: extras})
		}
	}
}

func (sm *StateMachine) stepGather(rn *runtimeNode) (bool, error) {
	sectionID := rn.tmpl.Section + rn.suffix
	sectionRN, ok := sm.nodes[sectionID]
	if !ok || !sm.finished[sectionID] {
		return false, nil
	}
	n := sectionRN.instanceN
	refereeBase := rn.tmpl.Referee
	instances := make([]string, n)
	for i := 0; i < n; i++ {
		instances[i] = fmt.Sprintf("%s%s.%d", refereeBase, rn.suffix, i)
	}
	for _, instID := range instances {
		if !sm.finished[instID] {
			return false, nil
		}
	}

	isScatter := sectionRN.tmpl.Scatter != nil
	refNode, _ := sectionRN.tmpl.Body.Node(rn.tmpl.Referee)
	out, err := sm.gatherOutputs(rn, refNode, instances, isScatter)
	if err != nil {
		return false, err
	}
	sm.finishWith(rn.id, out)
	return true, nil
}

// gatherOutputs collects the referee's per-instance binding(s) into an
// Array (scatter) or an optional singleton (conditional).
// A Decl/Gather referee exposes exactly one bound name; a Call referee
// exposes one binding per callee output, each lifted independently.
func (sm *StateMachine) gatherOutputs(rn *runtimeNode, refNode *plan.Node, instances []string, isScatter bool) (*Env, error) {
	switch rn.tmpl.RefereeKind {
	case plan.KindCall:
		return sm.gatherCallOutputs(rn, instances, isScatter)
	default:
		return sm.gatherScalarOutputs(rn, refNode, instances, isScatter)
	}
}

func (sm *StateMachine) gatherScalarOutputs(rn *runtimeNode, refNode *plan.Node, instances []string, isScatter bool) (*Env, error) {
	name := refereeName(refNode)
	itemType := rn.tmpl.BindingType
	if isScatter {
		itemType = *itemType.Item
	} else {
		itemType = itemType.WithOptional(false)
	}

	var values []wdlvalue.Value
	for _, instID := range instances {
		out := sm.jobOutputs[instID]
		v, ok := out.Resolve(name)
		if !ok {
			return nil, diag.EvalErr(nodePos(rn.tmpl), "gather %s: instance %s produced no binding for %q", rn.id, instID, name)
		}
		values = append(values, v)
	}
	if isScatter {
		return wdlenv.Bind(nil, name, wdlvalue.NewArray(itemType, values), nil), nil
	}
	if len(values) == 0 {
		return wdlenv.Bind(nil, name, wdlvalue.Null(itemType.WithOptional(true)), nil), nil
	}
	return wdlenv.Bind(nil, name, values[0], nil), nil
}

func (sm *StateMachine) gatherCallOutputs(rn *runtimeNode, instances []string, isScatter bool) (*Env, error) {
	// The gather node carries no Call; take it from the referee inside the
	// section's body.
	sectionRN := sm.nodes[rn.tmpl.Section+rn.suffix]
	refNode, _ := sectionRN.tmpl.Body.Node(rn.tmpl.Referee)
	call := refNode.Call
	outputNames := calleeOutputNames(call)
	prefix := call.EffectiveName() + "."
	var out *Env
	for _, outName := range outputNames {
		qualified := prefix + outName
		var itemType wdltype.Type
		var values []wdlvalue.Value
		for _, instID := range instances {
			bound := sm.jobOutputs[instID]
			v, ok := bound.Resolve(qualified)
			if !ok {
				return nil, diag.EvalErr(nodePos(rn.tmpl), "gather %s: missing output %q", rn.id, qualified)
			}
			itemType = v.Type()
			values = append(values, v)
		}
		if isScatter {
			out = wdlenv.Bind(out, qualified, wdlvalue.NewArray(itemType, values), nil)
		} else if len(values) == 0 {
			out = wdlenv.Bind(out, qualified, wdlvalue.Null(itemType.WithOptional(true)), nil)
		} else {
			out = wdlenv.Bind(out, qualified, values[0], nil)
		}
	}
	return out, nil
}

// refereeName is the bound name a gathered Decl or nested Gather exposes
// (a gathered Call is handled separately via calleeOutputNames, since it
// exposes a namespace rather than one name).
func refereeName(n *plan.Node) string {
	switch n.Kind {
	case plan.KindDecl:
		return n.Decl.Name
	case plan.KindGather:
		return n.ExposedName
	default:
		return ""
	}
}

func calleeOutputNames(c *ast.Call) []string {
	var names []string
	if c.CalleeTask != nil {
		for _, d := range c.CalleeTask.Outputs {
			names = append(names, d.Name)
		}
	}
	if c.CalleeWorkflow != nil {
		for _, d := range c.CalleeWorkflow.Outputs {
			names = append(names, d.Name)
		}
	}
	return names
}

func (sm *StateMachine) stepOutputs(rn *runtimeNode) error {
	stacks := make([]*Env, 0, len(rn.deps))
	for _, d := range rn.deps {
		if out, ok := sm.jobOutputs[d]; ok {
			stacks = append(stacks, out)
		}
	}
	merged := wdlenv.MergeAll(stacks...)
	if len(rn.tmpl.Outputs) > 0 {
		env := sm.envFor(rn)
		var result *Env
		for _, decl := range rn.tmpl.Outputs {
			v, err := eval.Eval(decl.Expr, env, sm.std)
			if err != nil {
				return err
			}
			v, err = eval.EvalDeclInput(decl.NodePos(), decl.Type, v)
			if err != nil {
				return err
			}
			result = wdlenv.Bind(result, decl.Name, v, nil)
		}
		sm.Outputs = result
	} else {
		sm.Outputs = merged
	}
	sm.finishWith(rn.id, merged)
	return nil
}

// sortedIDs is a small helper used by callers/tests that want deterministic
// iteration over a node-ID set.
func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
