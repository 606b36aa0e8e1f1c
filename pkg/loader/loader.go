// Package loader resolves a WDL document's import graph from the
// filesystem (or http(s) URLs), populating ast.Import.Doc for every import
// and typechecking each document once its own imports are resolved, so
// documents are checked in import topological order (children before the
// parent that imports them).
package loader

import (
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/parser"
	"github.com/lemonberrylabs/wdlcore/pkg/typecheck"
)

// Loader caches resolved documents by their canonical URI so a diamond
// import graph parses and typechecks each file exactly once.
type Loader struct {
	docs     map[string]*ast.Document
	visiting map[string]bool
	client   *http.Client
}

// New returns a Loader ready to resolve a document's import graph.
func New() *Loader {
	return &Loader{
		docs:     map[string]*ast.Document{},
		visiting: map[string]bool{},
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Load parses uri (a local filesystem path or an http(s) URL) and every
// document it transitively imports, resolves each Import.Doc, defaults an
// unaliased import's namespace to its basename, and runs typecheck.Document
// over every document bottom-up (imports before importers) so Call callees
// resolve across files. The returned error is the first ImportError or
// typecheck MultiError encountered, in load order.
func (l *Loader) Load(uri string) (*ast.Document, error) {
	return l.load(uri, diag.SourcePos{})
}

func (l *Loader) load(uri string, pos diag.SourcePos) (*ast.Document, error) {
	key := canonicalize(uri)
	if doc, ok := l.docs[key]; ok {
		return doc, nil
	}
	if l.visiting[key] {
		return nil, diag.ImportErr(pos, uri, errCircularImport(uri))
	}
	l.visiting[key] = true
	defer delete(l.visiting, key)

	src, err := l.read(uri)
	if err != nil {
		return nil, diag.ImportErr(pos, uri, err)
	}
	doc, err := parser.Parse(uri, src)
	if err != nil {
		return nil, diag.ImportErr(pos, uri, err)
	}

	for _, imp := range doc.Imports {
		childURI := resolveRelative(uri, imp.URI)
		childDoc, err := l.load(childURI, imp.Pos)
		if err != nil {
			return nil, err
		}
		imp.Doc = childDoc
		if imp.Namespace == "" {
			imp.Namespace = defaultNamespace(imp.URI)
		}
	}

	mergeImportedStructs(doc)

	if err := typecheck.Document(doc); err != nil {
		return nil, err
	}

	l.docs[key] = doc
	return doc, nil
}

// mergeImportedStructs flattens every transitively-imported struct typedef
// (each import's own doc.StructTypedefs, which by the time we reach here
// already includes *its* imports, since children typecheck first) into
// doc.StructTypedefs, renaming per an `alias From as To` clause and letting
// typecheck.Document's existing MultipleDefinitions check catch collisions.
func mergeImportedStructs(doc *ast.Document) {
	var merged []*ast.StructTypedef
	for _, imp := range doc.Imports {
		if imp.Doc == nil {
			continue
		}
		aliasOf := map[string]string{}
		for _, a := range imp.Aliases {
			aliasOf[a.From] = a.To
		}
		for _, st := range imp.Doc.StructTypedefs {
			name := st.Name
			if to, ok := aliasOf[name]; ok {
				name = to
			}
			merged = append(merged, &ast.StructTypedef{Name: name, Members: st.Members, Pos: st.Pos})
		}
	}
	doc.StructTypedefs = append(merged, doc.StructTypedefs...)
}

func (l *Loader) read(uri string) (string, error) {
	if isRemote(uri) {
		resp, err := l.client.Get(uri)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := os.ReadFile(uri)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// resolveRelative resolves an import URI against the document that imports
// it: a remote base with a relative child stays remote; otherwise the child
// path is resolved relative to the importing file's directory.
func resolveRelative(baseURI, childURI string) string {
	if isRemote(childURI) {
		return childURI
	}
	if isRemote(baseURI) {
		base, err := urlParseDir(baseURI)
		if err == nil {
			return base + "/" + childURI
		}
	}
	if filepath.IsAbs(childURI) {
		return childURI
	}
	return filepath.Join(filepath.Dir(baseURI), childURI)
}

func urlParseDir(baseURI string) (string, error) {
	idx := strings.LastIndex(baseURI, "/")
	if idx < 0 {
		return "", errCircularImport(baseURI)
	}
	return baseURI[:idx], nil
}

// defaultNamespace is the WDL convention for an unaliased import: the
// imported file's basename without its extension.
func defaultNamespace(uri string) string {
	base := path.Base(uri)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func canonicalize(uri string) string {
	if isRemote(uri) {
		return uri
	}
	abs, err := filepath.Abs(uri)
	if err != nil {
		return uri
	}
	return abs
}

type circularImportError string

func (e circularImportError) Error() string { return "circular import: " + string(e) }

func errCircularImport(uri string) error { return circularImportError(uri) }
