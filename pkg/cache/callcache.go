package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// CallCache memoizes task outputs under
// <dir>/<task_digest>/<input_digest>.json.
type CallCache struct {
	dir string
}

// NewCallCache roots a call cache at dir (created lazily on first Put).
func NewCallCache(dir string) *CallCache { return &CallCache{dir: dir} }

func (c *CallCache) entryPath(taskDigest, inputDigest string) string {
	return filepath.Join(c.dir, taskDigest, inputDigest+".json")
}

// Hit is a successful cache lookup: the stored outputs, plus shared locks on
// every File/Directory they reference, held for the caller's run lifetime
// and released via Release.
type Hit struct {
	Outputs *eval.Env
	locks   []*SharedLock
}

// Release unlocks every file held by the hit. Safe to call once, required
// before the cache entry's backing files may be safely rewritten elsewhere.
func (h *Hit) Release() {
	if h == nil {
		return
	}
	for _, l := range h.locks {
		l.Unlock()
	}
}

// Get looks up taskDigest/inputDigest. A miss (false, nil error) occurs both
// when no entry exists and when an entry exists but references a file that
// no longer exists or cannot be shared-locked.
func (c *CallCache) Get(task *ast.Task, taskDigest, inputDigest string) (*Hit, bool, error) {
	path := c.entryPath(taskDigest, inputDigest)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: reading %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, false, nil // corrupted entry: treat as a miss, not a hard error
	}

	var env *eval.Env
	var locks []*SharedLock
	for _, o := range task.Outputs {
		field, ok := raw[o.Name]
		if !ok {
			releaseLocks(locks)
			return nil, false, nil
		}
		var anyVal interface{}
		dec := json.NewDecoder(bytes.NewReader(field))
		dec.UseNumber()
		if err := dec.Decode(&anyVal); err != nil {
			releaseLocks(locks)
			return nil, false, nil
		}
		v, err := wdlvalue.FromJSON(anyVal, o.Type)
		if err != nil {
			releaseLocks(locks)
			return nil, false, nil
		}
		newLocks, ok := lockReferencedFiles(v)
		if !ok {
			releaseLocks(locks)
			releaseLocks(newLocks)
			return nil, false, nil
		}
		locks = append(locks, newLocks...)
		env = wdlenv.Bind(env, o.Name, v, nil)
	}
	return &Hit{Outputs: env, locks: locks}, true, nil
}

// Put atomically records outputs under taskDigest/inputDigest.json
// (temp file + rename).
func (c *CallCache) Put(task *ast.Task, taskDigest, inputDigest string, outputs *eval.Env) error {
	dir := filepath.Join(c.dir, taskDigest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	buf := []byte("{")
	for i, o := range task.Outputs {
		if i > 0 {
			buf = append(buf, ',')
		}
		v, _ := outputs.Resolve(o.Name)
		vb, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("cache: marshaling output %q: %w", o.Name, err)
		}
		kb, _ := json.Marshal(o.Name)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')

	tmp, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(taskDigest, inputDigest)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

func releaseLocks(locks []*SharedLock) {
	for _, l := range locks {
		l.Unlock()
	}
}

// lockReferencedFiles walks v, shared-locking every File/Directory leaf. ok
// is false if any referenced path is missing or cannot be locked, in which
// case every lock already taken during this call has been released.
func lockReferencedFiles(v wdlvalue.Value) (locks []*SharedLock, ok bool) {
	if v.IsNull() {
		return nil, true
	}
	switch v.Type().Kind {
	case wdltype.KindFile, wdltype.KindDirectory:
		// Nonblocking: a referenced file held under an exclusive lock (a
		// concurrent run rewriting it) makes the entry a miss, not a wait.
		l, ok, err := TryLockShared(v.AsString())
		if err != nil || !ok {
			return nil, false
		}
		return []*SharedLock{l}, true
	case wdltype.KindArray:
		var all []*SharedLock
		for _, it := range v.AsList() {
			ls, ok := lockReferencedFiles(it)
			all = append(all, ls...)
			if !ok {
				releaseLocks(all)
				return nil, false
			}
		}
		return all, true
	case wdltype.KindPair:
		l, r := v.AsPair()
		ll, ok := lockReferencedFiles(l)
		if !ok {
			releaseLocks(ll)
			return nil, false
		}
		rl, ok := lockReferencedFiles(r)
		if !ok {
			releaseLocks(ll)
			releaseLocks(rl)
			return nil, false
		}
		return append(ll, rl...), true
	case wdltype.KindMap, wdltype.KindStruct, wdltype.KindObject:
		om := v.AsMap()
		if om == nil {
			om = v.AsStruct()
		}
		var all []*SharedLock
		for _, k := range om.Keys() {
			mv, _ := om.Get(k)
			ls, ok := lockReferencedFiles(mv)
			all = append(all, ls...)
			if !ok {
				releaseLocks(all)
				return nil, false
			}
		}
		return all, true
	default:
		return nil, true
	}
}
