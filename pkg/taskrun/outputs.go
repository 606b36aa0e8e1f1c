package taskrun

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// resolveOutputPaths walks v, resolving every File/Directory leaf to an
// absolute host path (relative output paths are resolved against workDir,
// matching a task command's own working directory) and verifying it is
// contained under hostDir or matches an already-known input path (stdout()/stderr()
// and pass-through inputs are always legal). A leaf still carrying its
// container-path form (an input File passed straight through to an output)
// is mapped back to its host path via
// ipm before any of that.
func resolveOutputPaths(v wdlvalue.Value, workDir, hostDir string, knownInputs map[string]bool, ipm *InputPathMap) (wdlvalue.Value, error) {
	switch v.Type().Kind {
	case wdltype.KindFile, wdltype.KindDirectory:
		if v.IsNull() {
			return v, nil
		}
		p := v.AsString()
		if hp, ok := ipm.HostPath(p); ok {
			p = hp
		} else if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		if knownInputs[p] {
			if v.Type().Kind == wdltype.KindFile {
				return wdlvalue.NewFile(p), nil
			}
			return wdlvalue.NewDirectory(p), nil
		}
		if err := checkContainment(p, hostDir); err != nil {
			return wdlvalue.Value{}, err
		}
		if v.Type().Kind == wdltype.KindFile {
			return wdlvalue.NewFile(p), nil
		}
		return wdlvalue.NewDirectory(p), nil
	case wdltype.KindArray:
		items := v.AsList()
		out := make([]wdlvalue.Value, len(items))
		for i, it := range items {
			r, err := resolveOutputPaths(it, workDir, hostDir, knownInputs, ipm)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			out[i] = r
		}
		itemType := *v.Type().Item
		r := wdlvalue.NewArray(itemType, out)
		return r, nil
	case wdltype.KindMap:
		om := wdlvalue.NewOrderedMap()
		src := v.AsMap()
		for _, k := range src.Keys() {
			val, _ := src.Get(k)
			r, err := resolveOutputPaths(val, workDir, hostDir, knownInputs, ipm)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			om.Set(k, r)
		}
		return wdlvalue.NewMap(*v.Type().Key, *v.Type().Value, om), nil
	case wdltype.KindPair:
		l, r := v.AsPair()
		nl, err := resolveOutputPaths(l, workDir, hostDir, knownInputs, ipm)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		nr, err := resolveOutputPaths(r, workDir, hostDir, knownInputs, ipm)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		return wdlvalue.NewPair(nl, nr), nil
	case wdltype.KindStruct, wdltype.KindObject:
		src := v.AsStruct()
		om := wdlvalue.NewOrderedMap()
		for _, k := range src.Keys() {
			val, _ := src.Get(k)
			r, err := resolveOutputPaths(val, workDir, hostDir, knownInputs, ipm)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			om.Set(k, r)
		}
		return wdlvalue.NewStruct(v.Type(), om), nil
	default:
		return v, nil
	}
}

// checkContainment verifies path (after symlink resolution) lies under
// hostDir, rejecting absolute references elsewhere and symlink escapes. The
// check covers hostDir as a whole, not only its work*/ subtree: a path to a
// file beside work/ inside hostDir (e.g. the captured stdout.txt) passes.
func checkContainment(path, hostDir string) error {
	resolved, err := resolveSymlinksBestEffort(path)
	if err != nil {
		return diag.Wrap(diag.KindOutputError, diag.SourcePos{}, err)
	}
	resolvedHostDir, err := resolveSymlinksBestEffort(hostDir)
	if err != nil {
		return diag.Wrap(diag.KindOutputError, diag.SourcePos{}, err)
	}
	rel, err := filepath.Rel(resolvedHostDir, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return diag.New(diag.KindOutputError, diag.SourcePos{},
			"output path %q escapes the task's working directory", path)
	}
	return nil
}

// resolveSymlinksBestEffort resolves symlinks in path, falling back to the
// unresolved path when the file doesn't exist yet (e.g. a parent directory
// component that is itself a symlink but the leaf hasn't been stat'd during
// a dry containment check on a path we're about to create).
func resolveSymlinksBestEffort(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return filepath.Clean(path), nil
		}
		return "", err
	}
	return resolved, nil
}
