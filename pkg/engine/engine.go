// Package engine is the top-level driver: the loop that repeatedly calls a
// pkg/wfstate.StateMachine's
// Step, dispatches returned CallNows onto goroutines (a task call through
// pkg/taskrun, a sub-workflow call through a recursive StateMachine), and
// reports completions back via CallFinished under the state machine's
// single-threaded contract.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/wdlcore/internal/config"
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/cache"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/download"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/plan"
	"github.com/lemonberrylabs/wdlcore/pkg/stdlib"
	"github.com/lemonberrylabs/wdlcore/pkg/taskrun"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
	"github.com/lemonberrylabs/wdlcore/pkg/wfstate"
)

// Engine holds everything a run needs beyond the document itself: the
// container backend, the process-wide resource scheduler and image-pull
// serializer, and the optional call/
// download caches.
type Engine struct {
	Config      config.Config
	Runtime     taskrun.ContainerRuntime
	Logger      taskrun.Logger
	Scheduler   *taskrun.ResourceScheduler
	ImagePull   *taskrun.ImagePullLock
	CallCache   *cache.CallCache
	Downloader  *download.Downloader
	Terminating *taskrun.TerminationFlag
}

// New builds an Engine from cfg, wiring the call cache and downloader
// unless disabled, and detecting host resource limits from rt when cfg
// leaves them at zero.
func New(cfg config.Config, rt taskrun.ContainerRuntime, logger taskrun.Logger) (*Engine, error) {
	if logger == nil {
		logger = taskrun.NopLogger{}
	}
	if err := rt.GlobalInit(logger); err != nil {
		return nil, err
	}
	hostCPU, hostMem := cfg.HostCPU, cfg.HostMemory
	if hostCPU == 0 || hostMem == 0 {
		limits, err := rt.DetectResourceLimits(logger)
		if err != nil {
			return nil, err
		}
		if hostCPU == 0 {
			hostCPU = limits.CPU
		}
		if hostMem == 0 {
			hostMem = limits.MemBytes
		}
	}

	e := &Engine{
		Config:      cfg,
		Runtime:     rt,
		Logger:      logger,
		Scheduler:   taskrun.NewResourceScheduler(hostCPU, hostMem),
		ImagePull:   taskrun.NewImagePullLock(),
		Terminating: taskrun.NewTerminationFlag(),
	}
	if !cfg.NoCache && cfg.CacheDir != "" {
		e.CallCache = cache.NewCallCache(cfg.CacheDir)
		e.Downloader = download.NewDownloader(cfg.CacheDir, filepath.Join(cfg.CacheDir, "tmp"))
		e.Downloader.Policy = cache.PrefixPolicy{Allow: cfg.AllowDownloadPrefixes, Deny: cfg.DenyDownloadPrefixes}
		e.Downloader.DisregardQuery = cfg.DisregardDownloadQuery
	}
	return e, nil
}

// RunWorkflow drives doc.Workflow to completion under runDir, given raw
// input JSON (already json.Unmarshal'd into interface{} values), and
// returns the workflow's dot-namespaced output JSON.
func (e *Engine) RunWorkflow(ctx context.Context, runDir string, doc *ast.Document, inputsRaw map[string]interface{}) (map[string]interface{}, error) {
	if doc.Workflow == nil {
		return nil, diag.New(diag.KindUncallableWorkflow, doc.Pos, "document %s defines no workflow", doc.Filename)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: provisioning run directory: %w", err)
	}
	inputsEnv, err := bindDeclInputs(doc.Workflow.Inputs, doc.Workflow.Name, inputsRaw)
	if err != nil {
		return nil, err
	}
	out, err := e.driveWorkflow(ctx, runDir, doc.Workflow, inputsEnv)
	if err != nil {
		return nil, err
	}
	return envToJSON(doc.Workflow.Name, out), nil
}

// RunTask runs a single standalone task call (no enclosing workflow) under
// runDir and returns its output JSON, namespaced by the task's own name.
func (e *Engine) RunTask(ctx context.Context, runDir string, task *ast.Task, inputsRaw map[string]interface{}) (map[string]interface{}, error) {
	inputsEnv, err := bindDeclInputs(task.Inputs, task.Name, inputsRaw)
	if err != nil {
		return nil, err
	}
	res, err := e.runTaskCached(ctx, runDir, task, inputsEnv)
	if err != nil {
		return nil, err
	}
	return envToJSON(task.Name, res.Outputs), nil
}

// bindDeclInputs resolves raw[name] or raw[prefix.name] for each decl into a
// binding environment, leaving defaulted (Expr != nil) inputs unbound so the
// evaluator supplies their default, and erring on a missing required input.
func bindDeclInputs(decls []*ast.Decl, prefix string, raw map[string]interface{}) (*eval.Env, error) {
	var env *eval.Env
	for _, d := range decls {
		val, ok := raw[prefix+"."+d.Name]
		if !ok {
			val, ok = raw[d.Name]
		}
		if !ok {
			if d.Expr != nil {
				continue
			}
			return nil, diag.New(diag.KindInputError, d.Pos, "missing required input %q", d.Name)
		}
		v, err := wdlvalue.FromJSON(val, d.Type)
		if err != nil {
			return nil, diag.Wrap(diag.KindInputError, d.Pos, err)
		}
		env = wdlenv.Bind(env, d.Name, v, nil)
	}
	return env, nil
}

// envToJSON renders env's bindings as dot-namespaced output JSON,
// round-tripping each Value through its canonical MarshalJSON.
func envToJSON(prefix string, env *eval.Env) map[string]interface{} {
	out := map[string]interface{}{}
	env.Each(func(name string, b wdlenv.Binding[wdlvalue.Value]) bool {
		raw, err := b.Value.MarshalJSON()
		if err != nil {
			return true
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return true
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		out[key] = v
		return true
	})
	return out
}

type callResult struct {
	id  string
	out *eval.Env
	err error
}

// maxConcurrentCalls bounds how many CallNows a single workflow level
// dispatches into goroutines at once; the resource scheduler still gates
// actual container execution, this just keeps a wide scatter from spawning
// one goroutine per element up front.
const maxConcurrentCalls = 64

// driveWorkflow is the cooperative driver loop: it drains
// Step(), dispatching every CallNow through a bounded errgroup, and reenters
// with CallFinished as each job's result arrives on resultCh. It never
// blocks under a lock the state machine itself holds, since wfstate.
// StateMachine is not safe for concurrent use — only one goroutine (this
// one) ever calls into it.
func (e *Engine) driveWorkflow(ctx context.Context, runDir string, wf *ast.Workflow, workflowInputs *eval.Env) (*eval.Env, error) {
	p := plan.Build(wf)
	std := stdlib.NewInputStdLib(stdlib.NewContext(runDir, nil))
	sm := wfstate.New(p, workflowInputs, std)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCalls)
	defer g.Wait()

	resultCh := make(chan callResult, maxConcurrentCalls)
	inFlight := 0
	for {
		if e.Terminating != nil && e.Terminating.IsSet() {
			return nil, diag.New(diag.KindTerminated, wf.Pos, "workflow %s terminated", wf.Name)
		}
		call, err := sm.Step()
		if err != nil {
			return nil, err
		}
		if call != nil {
			inFlight++
			call := call
			g.Go(func() error {
				e.executeCall(gctx, runDir, call, resultCh)
				return nil
			})
			continue
		}
		if sm.IsDone() {
			return sm.Outputs, nil
		}
		if inFlight == 0 {
			return nil, diag.New(diag.KindEvalError, wf.Pos, "workflow %s stalled: no ready node and no call in flight", wf.Name)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-resultCh:
			inFlight--
			if msg.err != nil {
				return nil, msg.err
			}
			sm.CallFinished(msg.id, msg.out)
		}
	}
}

// executeCall runs one CallNow to completion (a task through the cached
// task runner, a sub-workflow through a recursive driveWorkflow) and
// reports the result on resultCh, or drops it silently once ctx is done —
// driveWorkflow may have already returned after an earlier sibling's error,
// and resultCh's reader is gone by then.
func (e *Engine) executeCall(ctx context.Context, runDir string, call *wfstate.CallNow, resultCh chan<- callResult) {
	hostDir := filepath.Join(runDir, sanitizeID(call.ID))
	var res callResult
	switch {
	case call.CalleeTask != nil:
		out, err := e.runTaskCached(ctx, hostDir, call.CalleeTask, call.Inputs)
		if err != nil {
			res = callResult{call.ID, nil, err}
		} else {
			res = callResult{call.ID, out.Outputs, nil}
		}
	case call.CalleeWorkflow != nil:
		out, err := e.driveWorkflow(ctx, hostDir, call.CalleeWorkflow, call.Inputs)
		res = callResult{call.ID, out, err}
	default:
		res = callResult{call.ID, nil, diag.New(diag.KindNoSuchTask, call.Call.Pos, "call %s resolves to neither a task nor a workflow", call.Call.CalleeID)}
	}
	select {
	case resultCh <- res:
	case <-ctx.Done():
	}
}

// runTaskCached resolves remote inputs, consults the call cache, and
// otherwise runs task through the configured ContainerRuntime, populating
// the cache on success.
func (e *Engine) runTaskCached(ctx context.Context, hostDir string, task *ast.Task, inputs *eval.Env) (*taskrun.Result, error) {
	resolved := inputs
	if e.Downloader != nil {
		r, unlock, err := download.ResolveInputs(ctx, e.Downloader, inputs)
		if err != nil {
			return nil, err
		}
		defer unlock()
		resolved = r
	}

	var taskDigest, inputDigest string
	if e.CallCache != nil {
		taskDigest = cache.TaskDigest(task)
		if d, err := cache.InputDigest(resolved, true); err == nil {
			inputDigest = d
			if hit, ok, err := e.CallCache.Get(task, taskDigest, inputDigest); err == nil && ok {
				defer hit.Release()
				return &taskrun.Result{Outputs: hit.Outputs, HostDir: hostDir}, nil
			}
		}
	}

	runner := &taskrun.TaskRunner{Runtime: e.Runtime, Scheduler: e.Scheduler, ImagePull: e.ImagePull, Logger: e.Logger}
	res, err := runner.Run(ctx, hostDir, task, resolved, e.Terminating)
	if err != nil {
		return nil, err
	}
	if e.CallCache != nil && taskDigest != "" && inputDigest != "" {
		if err := e.CallCache.Put(task, taskDigest, inputDigest, res.Outputs); err != nil {
			e.Logger.Printf("engine: caching %s outputs: %v", task.Name, err)
		}
	}
	return res, nil
}

// sanitizeID maps a plan node ID (which may contain '.' instance-index
// separators, e.g. "call-foo.0.1") to a filesystem-safe subdirectory name.
func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		if r == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
