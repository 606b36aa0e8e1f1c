package stdlib

import (
	"fmt"
	"path/filepath"
)

// Context carries the file-I/O surface a stdlib call may touch: the task's
// working directory, a dedicated subdirectory for write_*-produced files,
// the captured stdout/stderr paths, and (for InputStdLib only) the set of
// host paths legal to read — the task's input path map plus anything
// write_* itself has produced so far.
type Context struct {
	WorkDir  string
	WriteDir string

	Stdout string
	Stderr string

	// AllowedReads, when non-nil, restricts read_*/size() to these exact
	// host paths (InputStdLib). A nil map means unrestricted (OutputStdLib).
	AllowedReads map[string]bool
	AllowGlob    bool
	AllowStreams bool

	writeCounter int

	// OnFileProduced is invoked whenever a write_* function materializes a
	// new file, letting pkg/taskrun record it in the input path map so it
	// appears under the container mount like any other input.
	OnFileProduced func(hostPath string)

	// Resolve translates a File/Directory value's string form, as handed to
	// a stdlib call, to the real host path to actually open. InputStdLib
	// evaluates decls and the command against container-path values, so a
	// path a task author wrote as an input File must be
	// mapped back before any real disk I/O; nil means the path is already a
	// host path (OutputStdLib, and any path InputStdLib's map doesn't know,
	// e.g. one under the task's own shared work/ directory).
	Resolve func(path string) (string, bool)
}

// resolvePath maps path to a real host path via Resolve, if set and it knows
// path; otherwise path is assumed to already be a host path.
func (c *Context) resolvePath(path string) string {
	if c.Resolve == nil {
		return path
	}
	if hp, ok := c.Resolve(path); ok {
		return hp
	}
	return path
}

// NewContext builds a Context rooted at workDir, with AllowedReads seeded
// from inputPaths (nil means unrestricted, used for OutputStdLib).
func NewContext(workDir string, inputPaths []string) *Context {
	c := &Context{WorkDir: workDir, WriteDir: filepath.Join(workDir, "_miniwdl_write_")}
	if inputPaths != nil {
		c.AllowedReads = make(map[string]bool, len(inputPaths))
		for _, p := range inputPaths {
			c.AllowedReads[p] = true
		}
	}
	return c
}

// checkRead enforces the input-path-map confinement of InputStdLib, checking
// path's resolved host form against the set of legal host paths.
func (c *Context) checkRead(path string) error {
	if c.AllowedReads == nil {
		return nil
	}
	if c.AllowedReads[c.resolvePath(path)] {
		return nil
	}
	return fmt.Errorf("stdlib: %q is not in the task's input path map", path)
}

// nextWritePath allocates a fresh path under WriteDir for a write_*
// function, e.g. "write_0.txt".
func (c *Context) nextWritePath(suffix string) string {
	p := filepath.Join(c.WriteDir, fmt.Sprintf("write_%d%s", c.writeCounter, suffix))
	c.writeCounter++
	return p
}

// allow marks path as legal to read back (write_* outputs are always
// immediately legal inputs to later stdlib calls in the same evaluation).
func (c *Context) allow(path string) {
	if c.AllowedReads != nil {
		c.AllowedReads[path] = true
	}
	if c.OnFileProduced != nil {
		c.OnFileProduced(path)
	}
}
