// Package taskrun is the task runner: it provisions a sandboxed working
// directory per attempt, renders the task's command, hands it to an
// abstract container backend, and binds outputs back to host paths.
package taskrun

import (
	"context"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
)

// Logger is the minimal logging surface a ContainerRuntime and TaskRunner
// write to; concrete logging/TUI stays out of this package.
type Logger interface {
	Printf(format string, args ...interface{})
}

// NopLogger discards everything; used when the caller supplies none.
type NopLogger struct{}

func (NopLogger) Printf(string, ...interface{}) {}

// ResourceLimits is the host's available CPU/memory, as detected by a
// ContainerRuntime backend.
type ResourceLimits struct {
	CPU       int
	MemBytes  int64
}

// MountKind distinguishes how a path is exposed inside the container.
type MountKind int

const (
	MountReadOnly MountKind = iota
	MountReadWrite
)

// Mount is one host path bound into the container at ContainerPath.
type Mount struct {
	HostPath      string
	ContainerPath string
	Kind          MountKind
}

// Job carries everything a ContainerRuntime.Run invocation needs: the
// rendered command script, every mount (inputs RO, stdout/stderr/work RW,
// command RO), and the normalized runtime values.
type Job struct {
	HostDir  string
	WorkDir  string
	Command  string // the rendered, whitespace-stripped script text
	Mounts   []Mount
	Runtime  RuntimeValues

	Task *ast.Task
}

// TerminationFlag is a cooperative cancellation signal polled by blocking
// waits: the resource scheduler, the container poll loop, the
// download cache flock acquisition. Set exactly once; safe to poll from any
// goroutine.
type TerminationFlag struct {
	ch chan struct{}
}

// NewTerminationFlag returns a flag that is not yet set.
func NewTerminationFlag() *TerminationFlag { return &TerminationFlag{ch: make(chan struct{})} }

// Signal sets the flag; idempotent.
func (f *TerminationFlag) Signal() {
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Done returns a channel closed once Signal has been called, usable in a
// select alongside ctx.Done().
func (f *TerminationFlag) Done() <-chan struct{} { return f.ch }

// IsSet reports whether Signal has been called.
func (f *TerminationFlag) IsSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// ContainerRuntime is the external container backend:
// Docker/Podman/Singularity/udocker backends all implement this.
type ContainerRuntime interface {
	// GlobalInit performs idempotent one-time setup (e.g. verifying the
	// container engine is reachable).
	GlobalInit(logger Logger) error

	// DetectResourceLimits reports the host's CPU/memory budget for the
	// resource scheduler to admit against.
	DetectResourceLimits(logger Logger) (ResourceLimits, error)

	// Run executes job's command, honoring the mount mapping and CPU/memory
	// limits in job.Runtime, and returns the process exit code. It must
	// observe terminating and return promptly (with a non-nil error) once
	// set.
	Run(ctx context.Context, job *Job, logger Logger, terminating *TerminationFlag) (int, error)
}
