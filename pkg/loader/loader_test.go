package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadResolvesLocalImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.wdl", `version 1.0
task greet {
  input { String who }
  command { echo "hi ~{who}" }
  output { String out = read_string(stdout()) }
}
`)
	main := writeFile(t, dir, "main.wdl", `version 1.0
import "lib.wdl" as lib
workflow w {
  input { String who }
  call lib.greet { input: who = who }
  output { String out = lib.greet.out }
}
`)

	doc, err := New().Load(main)
	require.NoError(t, err)
	require.NotNil(t, doc.Workflow)
	require.Len(t, doc.Workflow.Body, 1)
	assert.Equal(t, "lib", doc.Imports[0].Namespace)
	assert.NotNil(t, doc.Imports[0].Doc)
}

func TestLoadDefaultsNamespaceToBasename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "helpers.wdl", `version 1.0
task noop { command {} }
`)
	main := writeFile(t, dir, "main.wdl", `version 1.0
import "helpers.wdl"
workflow w {
  call helpers.noop
}
`)
	doc, err := New().Load(main)
	require.NoError(t, err)
	assert.Equal(t, "helpers", doc.Imports[0].Namespace)
}

func TestLoadMergesImportedStructsWithAlias(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "types.wdl", `version 1.0
struct Sample {
  String name
}
`)
	main := writeFile(t, dir, "main.wdl", `version 1.0
import "types.wdl" as types alias Sample as LibSample
workflow w {
  input {
    LibSample s
  }
}
`)
	doc, err := New().Load(main)
	require.NoError(t, err)
	var names []string
	for _, st := range doc.StructTypedefs {
		names = append(names, st.Name)
	}
	assert.Contains(t, names, "LibSample")
}

func TestLoadDetectsCircularImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.wdl", `version 1.0
import "b.wdl"
`)
	a := writeFile(t, dir, "b.wdl", `version 1.0
import "a.wdl"
`)
	_, err := New().Load(a)
	assert.Error(t, err)
}

func TestLoadSurfacesTypecheckErrors(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "bad.wdl", `version 1.0
task t {
  input { Int x = y }
  Int y = x
  command {}
}
`)
	_, err := New().Load(main)
	assert.Error(t, err)
}
