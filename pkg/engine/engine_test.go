package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/internal/config"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/loader"
	"github.com/lemonberrylabs/wdlcore/pkg/taskrun"
)

func writeWDL(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestEngine(t *testing.T, rt taskrun.ContainerRuntime) *Engine {
	t.Helper()
	cfg := config.Config{
		RunDir:   t.TempDir(),
		CacheDir: t.TempDir(),
		HostCPU:  2,
		HostMemory: 1 << 30,
	}
	e, err := New(cfg, rt, taskrun.NopLogger{})
	require.NoError(t, err)
	return e
}

func TestRunTaskHelloBlank(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "hello.wdl", `version 1.0
task hello {
  input {
    String who
  }
  command {
    echo "Hello, ~{who}!"
  }
  output {
    String out = read_string(stdout())
  }
}
`)
	doc, err := loader.New().Load(main)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 1)

	e := newTestEngine(t, &taskrun.LocalRuntime{})
	runDir := filepath.Join(t.TempDir(), "run")
	out, err := e.RunTask(context.Background(), runDir, doc.Tasks[0], map[string]interface{}{
		"who": "Alyssa",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Alyssa!", out["hello.out"])
}

func TestRunWorkflowScatterGather(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "scatter.wdl", `version 1.0
workflow w {
  input {
    Array[Int] xs
  }
  scatter (x in xs) {
    Int sq = x * x
  }
  output {
    Array[Int] sqs = sq
  }
}
`)
	doc, err := loader.New().Load(main)
	require.NoError(t, err)

	e := newTestEngine(t, &taskrun.LocalRuntime{})
	out, err := e.RunWorkflow(context.Background(), filepath.Join(t.TempDir(), "run"), doc, map[string]interface{}{
		"xs": []interface{}{1.0, 2.0, 3.0},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{1.0, 4.0, 9.0}, out["w.sqs"])
}

func TestRunWorkflowConditional(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "cond.wdl", `version 1.0
workflow w {
  input {
    Boolean b
    Int x
  }
  if (b) {
    Int y = x + 1
  }
  output {
    Int? y_out = y
  }
}
`)
	doc, err := loader.New().Load(main)
	require.NoError(t, err)
	e := newTestEngine(t, &taskrun.LocalRuntime{})

	outFalse, err := e.RunWorkflow(context.Background(), filepath.Join(t.TempDir(), "run-false"), doc, map[string]interface{}{
		"b": false, "x": 5.0,
	})
	require.NoError(t, err)
	assert.Nil(t, outFalse["w.y_out"])

	outTrue, err := e.RunWorkflow(context.Background(), filepath.Join(t.TempDir(), "run-true"), doc, map[string]interface{}{
		"b": true, "x": 5.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, outTrue["w.y_out"])
}

// TestCoercionRejectsStringToInt covers the numeric-literal decl coercion
// case: this codebase's Type.IsCoercibleTo has no String->Int special case
// (its cross-Kind cases are Int->Float, String<->File, String->Directory and
// Map/Object->Struct), so a
// String-typed input assigned to an Int-typed decl is a static type error,
// not a permitted numeric-literal coercion.
func TestCoercionRejectsStringToInt(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "coerce.wdl", `version 1.0
task t {
  input {
    Int x = "42"
  }
  command {}
  output {
    Int y = x
  }
}
`)
	_, err := loader.New().Load(main)
	require.Error(t, err)
	merr, ok := err.(*diag.MultiError)
	require.True(t, ok, "expected *diag.MultiError, got %T", err)
	require.NotEmpty(t, merr.Errors)
	assert.Equal(t, diag.KindStaticTypeMismatch, merr.Errors[0].Kind)
}

// TestCircularDependenciesDetected covers a task whose two decls each
// reference the other before either is defined.
func TestCircularDependenciesDetected(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "circular.wdl", `version 1.0
task t {
  input {
    Int x = y
  }
  Int y = x
  command {}
}
`)
	_, err := loader.New().Load(main)
	require.Error(t, err)
	merr, ok := err.(*diag.MultiError)
	require.True(t, ok, "expected *diag.MultiError, got %T", err)
	require.NotEmpty(t, merr.Errors)
	assert.Equal(t, diag.KindCircularDependencies, merr.Errors[0].Kind)
}

// countingRuntime wraps a ContainerRuntime and counts Run invocations, so a
// call-cache hit on the second run is observable without inspecting the
// cache directory's internal layout.
type countingRuntime struct {
	taskrun.ContainerRuntime
	runs int32
}

func (r *countingRuntime) Run(ctx context.Context, job *taskrun.Job, logger taskrun.Logger, terminating *taskrun.TerminationFlag) (int, error) {
	atomic.AddInt32(&r.runs, 1)
	return r.ContainerRuntime.Run(ctx, job, logger, terminating)
}

func TestCallCacheAvoidsSecondRun(t *testing.T) {
	dir := t.TempDir()
	main := writeWDL(t, dir, "cached.wdl", `version 1.0
task touch {
  input {
    String who
  }
  command {
    echo "hi ~{who}"
  }
  output {
    String out = read_string(stdout())
  }
}
`)
	doc, err := loader.New().Load(main)
	require.NoError(t, err)

	rt := &countingRuntime{ContainerRuntime: &taskrun.LocalRuntime{}}
	cacheDir := t.TempDir()
	cfg := config.Config{RunDir: t.TempDir(), CacheDir: cacheDir, HostCPU: 2, HostMemory: 1 << 30}
	e, err := New(cfg, rt, taskrun.NopLogger{})
	require.NoError(t, err)

	inputs := map[string]interface{}{"who": "Ben"}

	out1, err := e.RunTask(context.Background(), filepath.Join(cfg.RunDir, "run1"), doc.Tasks[0], inputs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rt.runs))

	out2, err := e.RunTask(context.Background(), filepath.Join(cfg.RunDir, "run2"), doc.Tasks[0], inputs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rt.runs), "second identical call should be served from the call cache")
	assert.Equal(t, out1["touch.out"], out2["touch.out"])
}
