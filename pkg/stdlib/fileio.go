package stdlib

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
	"github.com/lemonberrylabs/wdlcore/pkg/wdlvalue"
)

func registerFileIO() {
	register("read_string", readString)
	register("read_int", readInt)
	register("read_float", readFloat)
	register("read_boolean", readBoolean)
	register("read_lines", readLines)
	register("read_tsv", readTSV)
	register("read_map", readMap)
	register("read_json", readJSON)
	register("read_object", readObject)
	register("read_objects", readObjects)

	register("write_lines", writeLines)
	register("write_tsv", writeTSV)
	register("write_map", writeMap)
	register("write_json", writeJSON)
	register("write_object", writeObjectFn)
	register("write_objects", writeObjectsFn)

	register("stdout", stdoutFn)
	register("stderr", stderrFn)
	register("glob", globFn)
	register("size", sizeFn)
}

func filePath(v wdlvalue.Value) string { return v.AsString() }

func readFileContent(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value, name string) (string, error) {
	if len(args) != 1 {
		return "", arityErr(pos, name, 1, len(args))
	}
	path := filePath(args[0])
	if err := ctx.checkRead(path); err != nil {
		return "", diag.Wrap(diag.KindInputError, pos, err)
	}
	b, err := os.ReadFile(ctx.resolvePath(path))
	if err != nil {
		return "", diag.Wrap(diag.KindInputError, pos, err)
	}
	return string(b), nil
}

func readString(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_string")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	return wdlvalue.NewString(strings.TrimRight(s, "\n")), nil
}

func readInt(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_int")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_int: %v", err)
	}
	return wdlvalue.NewInt(i), nil
}

func readFloat(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_float")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_float: %v", err)
	}
	return wdlvalue.NewFloat(f), nil
}

func readBoolean(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_boolean")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return wdlvalue.NewBool(true), nil
	case "false":
		return wdlvalue.NewBool(false), nil
	default:
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_boolean: not a boolean literal: %q", s)
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func readLines(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_lines")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	lines := splitLines(s)
	items := make([]wdlvalue.Value, len(lines))
	for i, l := range lines {
		items[i] = wdlvalue.NewString(l)
	}
	return wdlvalue.NewArray(wdltype.String(), items), nil
}

func readTSV(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_tsv")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	rowType := wdltype.Array(wdltype.String(), false)
	var rows []wdlvalue.Value
	for _, line := range splitLines(s) {
		fields := strings.Split(line, "\t")
		items := make([]wdlvalue.Value, len(fields))
		for i, f := range fields {
			items[i] = wdlvalue.NewString(f)
		}
		rows = append(rows, wdlvalue.NewArray(wdltype.String(), items))
	}
	return wdlvalue.NewArray(rowType, rows), nil
}

func readMap(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_map")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	om := wdlvalue.NewOrderedMap()
	for _, line := range splitLines(s) {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return wdlvalue.Value{}, diag.EvalErr(pos, "read_map: malformed line %q", line)
		}
		om.Set(parts[0], wdlvalue.NewString(parts[1]))
	}
	return wdlvalue.NewMap(wdltype.String(), wdltype.String(), om), nil
}

func readJSON(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	s, err := readFileContent(ctx, pos, args, "read_json")
	if err != nil {
		return wdlvalue.Value{}, err
	}
	var raw interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_json: %v", err)
	}
	v, err := wdlvalue.FromJSON(raw, wdltype.AnyType())
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_json: %v", err)
	}
	return v, nil
}

func readObject(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	v, err := readJSON(ctx, pos, args)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	if v.Type().Kind != wdltype.KindStruct && v.Type().Kind != wdltype.KindObject {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_object: JSON value is not an object")
	}
	return v, nil
}

func readObjects(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	v, err := readJSON(ctx, pos, args)
	if err != nil {
		return wdlvalue.Value{}, err
	}
	if v.Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "read_objects: JSON value is not an array")
	}
	return v, nil
}

func ensureWriteDir(ctx *Context) error {
	return os.MkdirAll(ctx.WriteDir, 0o755)
}

func writeFile(ctx *Context, pos diag.SourcePos, suffix, content string) (wdlvalue.Value, error) {
	if err := ensureWriteDir(ctx); err != nil {
		return wdlvalue.Value{}, diag.Wrap(diag.KindInputError, pos, err)
	}
	path := ctx.nextWritePath(suffix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return wdlvalue.Value{}, diag.Wrap(diag.KindInputError, pos, err)
	}
	ctx.allow(path)
	return wdlvalue.NewFile(path), nil
}

func writeLines(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_lines expects Array[String]")
	}
	var b strings.Builder
	for _, it := range args[0].AsList() {
		b.WriteString(it.AsString())
		b.WriteByte('\n')
	}
	return writeFile(ctx, pos, ".txt", b.String())
}

func writeTSV(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_tsv expects Array[Array[String]]")
	}
	var b strings.Builder
	w := bufio.NewWriter(&b)
	for _, row := range args[0].AsList() {
		fields := row.AsList()
		strs := make([]string, len(fields))
		for i, f := range fields {
			strs[i] = f.AsString()
		}
		fmt.Fprintln(w, strings.Join(strs, "\t"))
	}
	w.Flush()
	return writeFile(ctx, pos, ".tsv", b.String())
}

func writeMap(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindMap {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_map expects Map[String,String]")
	}
	m := args[0].AsMap()
	var b strings.Builder
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		fmt.Fprintf(&b, "%s\t%s\n", k, v.AsString())
	}
	return writeFile(ctx, pos, ".tsv", b.String())
}

func writeJSON(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "write_json", 1, len(args))
	}
	b, err := args[0].MarshalJSON()
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_json: %v", err)
	}
	return writeFile(ctx, pos, ".json", string(b))
}

func writeObjectFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || (args[0].Type().Kind != wdltype.KindStruct && args[0].Type().Kind != wdltype.KindObject) {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_object expects an Object/Struct")
	}
	return writeJSON(ctx, pos, args)
}

func writeObjectsFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 || args[0].Type().Kind != wdltype.KindArray {
		return wdlvalue.Value{}, diag.EvalErr(pos, "write_objects expects Array[Object]")
	}
	return writeJSON(ctx, pos, args)
}

func stdoutFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 0 {
		return wdlvalue.Value{}, arityErr(pos, "stdout", 0, len(args))
	}
	if !ctx.AllowStreams {
		return wdlvalue.Value{}, diag.New(diag.KindEvalError, pos, "stdout() is only legal in output expressions")
	}
	return wdlvalue.NewFile(ctx.Stdout), nil
}

func stderrFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 0 {
		return wdlvalue.Value{}, arityErr(pos, "stderr", 0, len(args))
	}
	if !ctx.AllowStreams {
		return wdlvalue.Value{}, diag.New(diag.KindEvalError, pos, "stderr() is only legal in output expressions")
	}
	return wdlvalue.NewFile(ctx.Stderr), nil
}

func globFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) != 1 {
		return wdlvalue.Value{}, arityErr(pos, "glob", 1, len(args))
	}
	if !ctx.AllowGlob {
		return wdlvalue.Value{}, diag.New(diag.KindEvalError, pos, "glob() is only legal in output expressions")
	}
	pattern := args[0].AsString()
	if filepath.IsAbs(pattern) || strings.Contains(pattern, "..") {
		return wdlvalue.Value{}, diag.New(diag.KindEvalError, pos, "glob() pattern must be relative and contain no '..': %q", pattern)
	}
	matches, err := filepath.Glob(filepath.Join(ctx.WorkDir, pattern))
	if err != nil {
		return wdlvalue.Value{}, diag.EvalErr(pos, "glob: %v", err)
	}
	sort.Strings(matches)
	items := make([]wdlvalue.Value, len(matches))
	for i, m := range matches {
		items[i] = wdlvalue.NewFile(m)
	}
	return wdlvalue.NewArray(wdltype.File(), items), nil
}

func fileSize(ctx *Context, pos diag.SourcePos, v wdlvalue.Value) (int64, error) {
	if v.IsNull() {
		return 0, nil
	}
	p := ctx.resolvePath(v.AsString())
	info, err := os.Stat(p)
	if err != nil {
		return 0, diag.Wrap(diag.KindEvalError, pos, err)
	}
	if info.IsDir() {
		var total int64
		_ = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
			if err == nil && !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		return total, nil
	}
	return info.Size(), nil
}

func sizeFn(ctx *Context, pos diag.SourcePos, args []wdlvalue.Value) (wdlvalue.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return wdlvalue.Value{}, arityErr(pos, "size", 1, len(args))
	}
	var total int64
	target := args[0]
	if target.Type().Kind == wdltype.KindArray {
		for _, it := range target.AsList() {
			s, err := fileSize(ctx, pos, it)
			if err != nil {
				return wdlvalue.Value{}, err
			}
			total += s
		}
	} else {
		s, err := fileSize(ctx, pos, target)
		if err != nil {
			return wdlvalue.Value{}, err
		}
		total = s
	}
	bytesF := float64(total)
	if len(args) == 2 {
		unit := args[1].AsString()
		div, err := wdltype.ParseMemoryString("1" + unit)
		if err != nil {
			return wdlvalue.Value{}, diag.EvalErr(pos, "size: %v", err)
		}
		bytesF = bytesF / float64(div)
	}
	return wdlvalue.NewFloat(bytesF), nil
}
