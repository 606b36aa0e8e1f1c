package walker

import "github.com/lemonberrylabs/wdlcore/pkg/ast"

// Lint runs the built-in lint suite over a document and returns every
// Finding, sorted by neither severity nor position — callers sort as needed.
func Lint(d *ast.Document) []Finding {
	var findings []Finding

	unused := NewUnusedDeclLint()
	Walk(d, unused)
	unused.Finish()
	findings = append(findings, unused.Findings...)

	coercion := &StringCoercedToFileLint{}
	Walk(d, coercion)
	findings = append(findings, coercion.Findings...)

	shadow := NewShadowedCallAliasLint()
	Walk(d, shadow)
	findings = append(findings, shadow.Findings...)

	return findings
}
