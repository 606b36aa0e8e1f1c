// Package diag provides source positions and diagnostic aggregation shared by
// every later stage of the pipeline (lexer, parser, typechecker, evaluator).
package diag

import "fmt"

// SourcePos identifies a span of source text: a file plus a starting and
// ending line/column. Every AST node and token carries one of these so that
// error messages and the web status views can point back at real source.
type SourcePos struct {
	Filename       string
	Line, Column   int
	EndLine, EndCol int
}

// String renders positions the way the rest of the pipeline formats them in
// error messages: "(filename Ln L, Col C)".
func (p SourcePos) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("Ln %d, Col %d", p.Line, p.Column)
	}
	return fmt.Sprintf("(%s Ln %d, Col %d)", p.Filename, p.Line, p.Column)
}

// IsZero reports whether the position was never set.
func (p SourcePos) IsZero() bool {
	return p.Filename == "" && p.Line == 0 && p.Column == 0
}
