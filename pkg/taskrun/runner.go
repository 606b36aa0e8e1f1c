package taskrun

import (
	"context"
	"fmt"
	"os"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/stdlib"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// ContainerHostDir and ContainerWorkDir are the fixed in-container paths
// every backend mounts the attempt's sandbox at: the container sees its
// work/ directory as ContainerWorkDir, with the command script and captured
// stdout/stderr as siblings one level up, matching the
// "bash ../command >>../stdout.txt 2>>../stderr.txt" invocation shape.
const (
	ContainerHostDir = "/mnt/miniwdl_task_container"
	ContainerWorkDir = ContainerHostDir + "/work"
)

// TaskRunner drives one task call to completion: provisioning the sandbox,
// rendering the command, dispatching to a ContainerRuntime under resource
// admission, and binding outputs.
type TaskRunner struct {
	Runtime   ContainerRuntime
	Scheduler *ResourceScheduler
	ImagePull *ImagePullLock
	Logger    Logger

	// KeepWorkDir is not read by Run: every attempt's sandbox is left on
	// disk whatever its value, and a caller (the call cache) reads produced
	// output files back from it.
	KeepWorkDir bool
}

// Result is a completed task call: its output bindings plus the attempt
// accounting a caller (e.g. pkg/cache) may want to record.
type Result struct {
	Outputs  *eval.Env
	ExitCode int
	Attempts int
	HostDir  string
}

// Run executes task under hostDir with inputs already bound (the fully
// evaluated, coerced input environment a caller such as pkg/wfstate
// produces from a CallNow), retrying per the runtime's maxRetries.
func (r *TaskRunner) Run(ctx context.Context, hostDir string, task *ast.Task, inputs *eval.Env, terminating *TerminationFlag) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	if terminating == nil {
		terminating = NewTerminationFlag()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		res, retry, err := r.attempt(ctx, hostDir, task, inputs, attempt, terminating, logger)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retry {
			return nil, lastErr
		}
	}
}

func (r *TaskRunner) attempt(
	ctx context.Context,
	hostDir string,
	task *ast.Task,
	inputs *eval.Env,
	attempt int,
	terminating *TerminationFlag,
	logger Logger,
) (res *Result, retry bool, err error) {
	rd, err := ProvisionRunDir(hostDir, attempt)
	if err != nil {
		return nil, false, err
	}

	ipm := NewInputPathMap(ContainerWorkDir)
	inputs.Each(func(_ string, b wdlenv.Binding[wdlvalue.Value]) bool {
		registerInputPaths(b.Value, ipm)
		return true
	})

	// Rewrite every input File/Directory value to its container path before
	// postinput decls or the command template evaluate, mirroring miniwdl's
	// behavior on container paths: any non-File declaration that embeds a File's
	// string form (e.g. a String coerced from a File) inherits the
	// container-relative value from this point on, not the host path.
	var containerInputs *eval.Env
	inputs.Each(func(_ string, b wdlenv.Binding[wdlvalue.Value]) bool {
		containerInputs = wdlenv.Bind(containerInputs, b.Name, mapToContainer(b.Value, ipm), b.Info)
		return true
	})

	hostCtx := stdlib.NewContext(rd.WorkDir, ipm.HostPaths())
	hostCtx.OnFileProduced = func(p string) { ipm.Add(p) }
	hostCtx.Resolve = ipm.HostPath
	inputStd := stdlib.NewInputStdLib(hostCtx)

	env := containerInputs
	for _, decl := range task.Postinputs {
		if decl.Expr == nil {
			continue
		}
		v, evalErr := eval.Eval(decl.Expr, env, inputStd)
		if evalErr != nil {
			return nil, false, evalErr
		}
		v, evalErr = eval.EvalDeclInput(decl.Pos, decl.Type, v)
		if evalErr != nil {
			return nil, false, evalErr
		}
		env = wdlenv.Bind(env, decl.Name, v, nil)
	}

	rt, err := EvalRuntime(task, env, inputStd)
	if err != nil {
		return nil, false, err
	}

	cmdText, err := renderCommand(task, env, inputStd)
	if err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(rd.CommandPath, []byte(cmdText+"\n"), 0o644); err != nil {
		return nil, false, fmt.Errorf("taskrun: writing command script: %w", err)
	}

	if r.Scheduler != nil {
		if !r.Scheduler.Acquire(rt.CPU, rt.MemoryBytes, terminating) {
			return nil, false, diag.New(diag.KindTerminated, task.Pos, "run terminated while awaiting resources")
		}
		defer r.Scheduler.Release(rt.CPU, rt.MemoryBytes)
	}

	var unlockPull func()
	if r.ImagePull != nil && rt.Docker != "" {
		unlockPull = r.ImagePull.Lock(rt.Docker)
	}

	mounts := append([]Mount{}, ipm.Mounts()...)
	mounts = append(mounts,
		Mount{HostPath: rd.CommandPath, ContainerPath: ContainerHostDir + "/command", Kind: MountReadOnly},
		Mount{HostPath: rd.StdoutPath, ContainerPath: ContainerHostDir + "/stdout.txt", Kind: MountReadWrite},
		Mount{HostPath: rd.StderrPath, ContainerPath: ContainerHostDir + "/stderr.txt", Kind: MountReadWrite},
		Mount{HostPath: rd.WorkDir, ContainerPath: ContainerWorkDir, Kind: MountReadWrite},
	)

	job := &Job{
		HostDir: rd.HostDir,
		WorkDir: rd.WorkDir,
		Command: cmdText,
		Mounts:  mounts,
		Runtime: rt,
		Task:    task,
	}

	logger.Printf("taskrun: %s attempt %d: running under %s", task.Name, attempt, rt.Docker)
	exitCode, runErr := r.Runtime.Run(ctx, job, logger, terminating)
	if unlockPull != nil {
		unlockPull()
	}

	if terminating.IsSet() {
		return nil, false, diag.New(diag.KindTerminated, task.Pos, "%s terminated", task.Name)
	}
	if runErr == nil {
		os.WriteFile(rd.RcPath, []byte(fmt.Sprintf("%d\n", exitCode)), 0o644)
	}
	if runErr != nil || !rt.OK(exitCode) {
		if attempt <= rt.MaxRetries {
			logger.Printf("taskrun: %s attempt %d failed (exit %d, err %v), retrying", task.Name, attempt, exitCode, runErr)
			return nil, true, diag.New(diag.KindCommandFailed, task.Pos, "attempt %d: exit code %d", attempt, exitCode)
		}
		if runErr != nil {
			return nil, false, diag.Wrap(diag.KindCommandFailed, task.Pos, runErr)
		}
		return nil, false, diag.New(diag.KindCommandFailed, task.Pos, "command exited with code %d", exitCode)
	}

	outEnv, err := bindOutputs(task, env, rd, ipm)
	if err != nil {
		return nil, false, err
	}

	return &Result{Outputs: outEnv, ExitCode: exitCode, Attempts: attempt, HostDir: rd.HostDir}, false, nil
}

// bindOutputs evaluates task.Outputs under OutputStdLib (unrestricted reads,
// stdout()/stderr()/glob() all legal), against env (still carrying
// container-path input values), and returns only the
// output bindings. Only File/Directory-typed outputs are mapped back to a
// checked host path; any other type that happens to
// embed a File's string form (e.g. a String coerced from a File) keeps the
// container-relative value it was evaluated with, matching miniwdl.
func bindOutputs(task *ast.Task, env *eval.Env, rd *RunDir, ipm *InputPathMap) (*eval.Env, error) {
	outCtx := stdlib.NewContext(rd.WorkDir, nil)
	outCtx.Stdout = rd.StdoutPath
	outCtx.Stderr = rd.StderrPath
	outStd := stdlib.NewOutputStdLib(outCtx)

	known := map[string]bool{}
	for _, h := range ipm.HostPaths() {
		known[h] = true
	}

	full := env
	var out *eval.Env
	for _, decl := range task.Outputs {
		v, err := eval.Eval(decl.Expr, full, outStd)
		if err != nil {
			return nil, err
		}
		v, err = eval.EvalDeclInput(decl.Pos, decl.Type, v)
		if err != nil {
			return nil, err
		}
		v, err = resolveOutputPaths(v, rd.WorkDir, rd.HostDir, known, ipm)
		if err != nil {
			return nil, err
		}
		full = wdlenv.Bind(full, decl.Name, v, nil)
		out = wdlenv.Bind(out, decl.Name, v, nil)
	}
	return out, nil
}

// renderCommand evaluates task.Command (a StringExpr) under env, whose
// File/Directory-derived values are already container paths (mapToContainer
// ran before postinputs evaluated), so the rendered text needs no further
// host->container rewriting.
func renderCommand(task *ast.Task, env *eval.Env, std eval.StdLib) (string, error) {
	v, err := eval.Eval(&task.Command, env, std)
	if err != nil {
		return "", err
	}
	return StripCommonIndent(v.AsString()), nil
}

// mapToContainer walks v, rewriting every File/Directory leaf's host path
// to its container path. Every leaf must already be registered in ipm by an earlier
// registerInputPaths pass.
func mapToContainer(v wdlvalue.Value, ipm *InputPathMap) wdlvalue.Value {
	if v.IsNull() {
		return v
	}
	switch v.Type().Kind {
	case wdltype.KindFile:
		return wdlvalue.NewFile(ipm.Add(v.AsString()))
	case wdltype.KindDirectory:
		return wdlvalue.NewDirectory(ipm.Add(v.AsString()))
	case wdltype.KindArray:
		items := v.AsList()
		out := make([]wdlvalue.Value, len(items))
		for i, it := range items {
			out[i] = mapToContainer(it, ipm)
		}
		return wdlvalue.NewArray(*v.Type().Item, out)
	case wdltype.KindMap:
		om := wdlvalue.NewOrderedMap()
		src := v.AsMap()
		for _, k := range src.Keys() {
			val, _ := src.Get(k)
			om.Set(k, mapToContainer(val, ipm))
		}
		return wdlvalue.NewMap(*v.Type().Key, *v.Type().Value, om)
	case wdltype.KindPair:
		l, r := v.AsPair()
		return wdlvalue.NewPair(mapToContainer(l, ipm), mapToContainer(r, ipm))
	case wdltype.KindStruct, wdltype.KindObject:
		src := v.AsStruct()
		om := wdlvalue.NewOrderedMap()
		for _, k := range src.Keys() {
			val, _ := src.Get(k)
			om.Set(k, mapToContainer(val, ipm))
		}
		return wdlvalue.NewStruct(v.Type(), om)
	default:
		return v
	}
}

// registerInputPaths walks v, adding every File/Directory leaf's host path
// to ipm.
func registerInputPaths(v wdlvalue.Value, ipm *InputPathMap) {
	if v.IsNull() {
		return
	}
	switch v.Type().Kind {
	case wdltype.KindFile, wdltype.KindDirectory:
		ipm.Add(v.AsString())
	case wdltype.KindArray:
		for _, it := range v.AsList() {
			registerInputPaths(it, ipm)
		}
	case wdltype.KindMap:
		m := v.AsMap()
		for _, k := range m.Keys() {
			val, _ := m.Get(k)
			registerInputPaths(val, ipm)
		}
	case wdltype.KindPair:
		l, r := v.AsPair()
		registerInputPaths(l, ipm)
		registerInputPaths(r, ipm)
	case wdltype.KindStruct, wdltype.KindObject:
		s := v.AsStruct()
		for _, k := range s.Keys() {
			val, _ := s.Get(k)
			registerInputPaths(val, ipm)
		}
	}
}
