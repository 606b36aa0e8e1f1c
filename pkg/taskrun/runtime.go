package taskrun

import (
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/stdlib"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// RuntimeValues is the normalized form of a task's runtime section:
// memory in bytes, CPU as an integer core count, the Docker
// image reference, and the set of exit codes that count as success.
type RuntimeValues struct {
	MemoryBytes     int64
	CPU             int
	Docker          string
	MaxRetries      int
	ReturnCodesStar bool // true when "returnCodes" is the literal "*"
	ReturnCodes     map[int64]bool
}

// OK reports whether exitCode is an accepted return code (default: 0 only).
func (r RuntimeValues) OK(exitCode int) bool {
	if r.ReturnCodesStar {
		return true
	}
	if len(r.ReturnCodes) == 0 {
		return exitCode == 0
	}
	return r.ReturnCodes[int64(exitCode)]
}

// EvalRuntime evaluates task.Runtime's expressions under env (InputStdLib,
// since runtime values may reference task inputs) and normalizes them.
func EvalRuntime(task *ast.Task, env *eval.Env, std *stdlib.StdLib) (RuntimeValues, error) {
	rv := RuntimeValues{CPU: 1, MemoryBytes: 0, MaxRetries: 0}
	for _, name := range task.RuntimeOrder {
		expr, ok := task.Runtime[name]
		if !ok {
			continue
		}
		v, err := eval.Eval(expr, env, std)
		if err != nil {
			return RuntimeValues{}, err
		}
		switch name {
		case "memory":
			bytes, err := wdltype.ParseMemoryString(v.String())
			if err != nil {
				return RuntimeValues{}, diag.EvalErr(task.Pos, "runtime.memory: %v", err)
			}
			rv.MemoryBytes = bytes
		case "cpu":
			if v.Type().Kind == wdltype.KindFloat {
				rv.CPU = int(v.AsNumber())
			} else {
				rv.CPU = int(v.AsInt())
			}
		case "docker", "container":
			rv.Docker = v.AsString()
		case "maxRetries", "preemptible":
			if name == "maxRetries" {
				rv.MaxRetries = int(v.AsInt())
			}
		case "returnCodes", "return_codes":
			if v.Type().Kind == wdltype.KindString && v.AsString() == "*" {
				rv.ReturnCodesStar = true
				continue
			}
			rv.ReturnCodes = map[int64]bool{}
			if v.Type().Kind == wdltype.KindArray {
				for _, it := range v.AsList() {
					rv.ReturnCodes[it.AsInt()] = true
				}
			} else {
				rv.ReturnCodes[v.AsInt()] = true
			}
		}
	}
	if rv.CPU < 1 {
		rv.CPU = 1
	}
	return rv, nil
}
