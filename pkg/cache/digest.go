// Package cache implements a content-addressed call cache keyed by a
// task/input digest pair, and a URL download cache. Digests are SHA-256 of
// a canonical serialization of the task's source and inputs; the minimal
// canonical-text renderer below exists purely to make that serialization
// deterministic — it is not a general WDL pretty-printer and its output is
// never shown to a user.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/eval"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlenv"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

// TaskDigest hashes task's command text and output expressions: any edit
// to either invalidates every cache entry keyed under it.
func TaskDigest(task *ast.Task) string {
	var b strings.Builder
	b.WriteString("command:")
	b.WriteString(exprText(&task.Command))
	b.WriteString("\n")
	for _, o := range task.Outputs {
		fmt.Fprintf(&b, "output:%s:%s=%s\n", o.Name, o.Type.String(), exprText(o.Expr))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// InputDigest hashes the canonical JSON of inputs: sorted
// keys, File/Directory values serialized as a content hash when hashFiles is
// set (the default for cacheability across hosts sharing no filesystem),
// else as their canonical absolute path.
func InputDigest(inputs *eval.Env, hashFiles bool) (string, error) {
	names := []string{}
	inputs.Each(func(name string, _ wdlenv.Binding[wdlvalue.Value]) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		v, _ := inputs.Resolve(name)
		j, err := canonicalJSON(v, hashFiles)
		if err != nil {
			return "", fmt.Errorf("cache: digesting input %q: %w", name, err)
		}
		fmt.Fprintf(&b, "%q:%s", name, j)
	}
	b.WriteByte('}')
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders v the same way wdlvalue.Value.MarshalJSON does,
// except Map/Struct member order is sorted (MarshalJSON preserves insertion
// order, which is the right behavior for round-tripping but not for a cache
// key) and File/Directory leaves resolve to a content digest.
func canonicalJSON(v wdlvalue.Value, hashFiles bool) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	switch v.Type().Kind {
	case wdltype.KindFile, wdltype.KindDirectory:
		if !hashFiles {
			return strconv.Quote(v.AsString()), nil
		}
		h, err := hashFileOrDir(v.AsString())
		if err != nil {
			return "", err
		}
		return strconv.Quote(h), nil
	case wdltype.KindArray:
		items := v.AsList()
		parts := make([]string, len(items))
		for i, it := range items {
			j, err := canonicalJSON(it, hashFiles)
			if err != nil {
				return "", err
			}
			parts[i] = j
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case wdltype.KindPair:
		l, r := v.AsPair()
		lj, err := canonicalJSON(l, hashFiles)
		if err != nil {
			return "", err
		}
		rj, err := canonicalJSON(r, hashFiles)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"left":%s,"right":%s}`, lj, rj), nil
	case wdltype.KindMap, wdltype.KindStruct, wdltype.KindObject:
		om := v.AsMap()
		if om == nil {
			om = v.AsStruct()
		}
		keys := om.Keys()
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			mv, _ := om.Get(k)
			j, err := canonicalJSON(mv, hashFiles)
			if err != nil {
				return "", err
			}
			parts[i] = fmt.Sprintf("%s:%s", strconv.Quote(k), j)
		}
		return "{" + strings.Join(parts, ",") + "}", nil
	default:
		b, err := v.MarshalJSON()
		return string(b), err
	}
}

// fastListDigest computes a non-cryptographic xxhash of a sorted path list.
// hashFileOrDir mixes it into a Directory's SHA-256 digest ahead of the
// per-file content hashes; the full content pass always runs.
func fastListDigest(paths []string) uint64 {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	h := xxhash.New()
	for _, p := range sorted {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
