package taskrun

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RunDir is the provisioned per-attempt sandbox: a host_dir
// containing work/ (or work<N> on retry attempt N>1), stdout.txt/stderr.txt
// (stdout<N>.txt/stderr<N>.txt on retry), and the rendered command script.
type RunDir struct {
	HostDir     string
	WorkDir     string
	StdoutPath  string
	StderrPath  string
	CommandPath string
	RcPath      string
	Attempt     int
}

// ProvisionRunDir creates host_dir/work(<N>) and the sibling stdout/stderr
// files for attempt (1-based; attempt 1 uses unsuffixed names).
func ProvisionRunDir(hostDir string, attempt int) (*RunDir, error) {
	suffix := ""
	if attempt > 1 {
		suffix = fmt.Sprintf("%d", attempt)
	}
	rd := &RunDir{
		HostDir:     hostDir,
		WorkDir:     filepath.Join(hostDir, "work"+suffix),
		StdoutPath:  filepath.Join(hostDir, "stdout"+suffix+".txt"),
		StderrPath:  filepath.Join(hostDir, "stderr"+suffix+".txt"),
		CommandPath: filepath.Join(hostDir, "command"),
		RcPath:      filepath.Join(hostDir, "rc"),
		Attempt:     attempt,
	}
	if err := os.MkdirAll(rd.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("taskrun: provisioning work dir: %w", err)
	}
	for _, p := range []string{rd.StdoutPath, rd.StderrPath} {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("taskrun: provisioning %s: %w", p, err)
		}
		f.Close()
	}
	return rd, nil
}

// inputGroup is one subdirectory N of work/_miniwdl_inputs/, holding every
// input whose basenames don't collide within it.
type inputGroup struct {
	n         int
	hostDir   string // the host parent directory this group mirrors
	basenames map[string]bool
}

// InputPathMap records host->container mappings for every input file or
// directory: inputs are grouped by host parent
// directory, each group assigned a subdirectory under
// work/_miniwdl_inputs/N/, with N chosen fresh whenever reusing an existing
// group would collide a basename.
type InputPathMap struct {
	workDir       string
	byHostDir     map[string]*inputGroup
	byHostPath    map[string]string // host path -> container path, persists across Add calls
	byContainer   map[string]string // container path -> host path, the reverse of byHostPath
	nextN         int
}

// NewInputPathMap builds an empty map rooted at workDir (a task attempt's
// work/ directory).
func NewInputPathMap(workDir string) *InputPathMap {
	return &InputPathMap{
		workDir:     workDir,
		byHostDir:   map[string]*inputGroup{},
		byHostPath:  map[string]string{},
		byContainer: map[string]string{},
	}
}

// Add records hostPath (a file or directory) and returns its container path.
// Repeated calls with the same hostPath return the same container path.
func (m *InputPathMap) Add(hostPath string) string {
	if cp, ok := m.byHostPath[hostPath]; ok {
		return cp
	}
	hostDir := filepath.Dir(hostPath)
	base := filepath.Base(hostPath)

	g, ok := m.byHostDir[hostDir]
	if !ok || g.basenames[base] {
		g = &inputGroup{n: m.nextN, hostDir: hostDir, basenames: map[string]bool{}}
		m.nextN++
		m.byHostDir[hostDir] = g
	}
	g.basenames[base] = true
	cp := filepath.Join(m.workDir, "_miniwdl_inputs", fmt.Sprintf("%d", g.n), base)
	m.byHostPath[hostPath] = cp
	m.byContainer[cp] = hostPath
	return cp
}

// ContainerPath returns the container path already assigned to hostPath, if
// any.
func (m *InputPathMap) ContainerPath(hostPath string) (string, bool) {
	cp, ok := m.byHostPath[hostPath]
	return cp, ok
}

// HostPath reverses ContainerPath: given a path as it appears inside the
// container, returns the real host path it was mounted from, if any. A path
// under the task's shared work/ directory (not routed through Add) has no
// entry here since the same tree is mounted at both locations.
func (m *InputPathMap) HostPath(containerPath string) (string, bool) {
	hp, ok := m.byContainer[containerPath]
	return hp, ok
}

// HostPaths returns every host path recorded so far, sorted, so the order is
// deterministic for cache-key and mount-list purposes.
func (m *InputPathMap) HostPaths() []string {
	out := make([]string, 0, len(m.byHostPath))
	for h := range m.byHostPath {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Mounts renders the map into read-only Mount entries for a Job.
func (m *InputPathMap) Mounts() []Mount {
	hosts := m.HostPaths()
	out := make([]Mount, len(hosts))
	for i, h := range hosts {
		out[i] = Mount{HostPath: h, ContainerPath: m.byHostPath[h], Kind: MountReadOnly}
	}
	return out
}
