// Package stdlib implements the WDL standard library in its
// two flavors: InputStdLib (legal during input/command evaluation, confined
// to the task's input path map) and OutputStdLib (legal during output
// evaluation, additionally exposing stdout()/stderr()/glob() over the task's
// working directory). Both share one dispatch table; only the file-I/O
// functions consult the embedded *Context's permission flags.
package stdlib

import (
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// Func is one standard library function implementation.
type Func func(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error)

// StdLib dispatches WDL stdlib calls by name, implementing eval.StdLib.
type StdLib struct {
	ctx   *Context
	funcs map[string]Func
}

// NewInputStdLib builds the flavor legal for task input/command evaluation:
// read_*/write_* are confined to ctx's allowed-reads set; stdout(),
// stderr(), and glob() are rejected.
func NewInputStdLib(ctx *Context) *StdLib {
	ctx.AllowStreams = false
	ctx.AllowGlob = false
	return &StdLib{ctx: ctx, funcs: registry}
}

// NewOutputStdLib builds the flavor legal for output expression evaluation:
// reads are unrestricted (no allowed-reads set), plus stdout(), stderr(),
// and glob() over the task's working directory.
func NewOutputStdLib(ctx *Context) *StdLib {
	ctx.AllowedReads = nil
	ctx.AllowStreams = true
	ctx.AllowGlob = true
	return &StdLib{ctx: ctx, funcs: registry}
}

// Call implements eval.StdLib.
func (s *StdLib) Call(pos diag.SourcePos, name string, args []wdlvalue.Value) (wdlvalue.Value, error) {
	fn, ok := s.funcs[name]
	if !ok {
		return wdlvalue.Value{}, diag.New(diag.KindNoSuchFunction, pos, "no such function %q", name)
	}
	return fn(s.ctx, pos, args)
}

var registry = map[string]Func{}

func register(name string, fn Func) { registry[name] = fn }

func init() {
	registerFileIO()
	registerPure()
}

func arityErr(pos diag.SourcePos, name string, want, got int) error {
	return diag.WrongArity(pos, name, want, got)
}
