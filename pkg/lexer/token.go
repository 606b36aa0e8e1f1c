// Package lexer tokenizes WDL source text across the draft-2/1.0/1.1/1.2/
// development grammar versions.
package lexer

import "github.com/lemonberrylabs/wdlcore/pkg/diag"

// TokenKind discriminates token categories.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokKeyword
	TokInt
	TokFloat
	TokStringLit   // a fully-lexed simple string with no placeholders
	TokStringPart  // a literal fragment of a string/command containing placeholders
	TokPlaceholderOpen  // ${ or ~{
	TokPlaceholderClose // }
	TokCommandOpen  // command { or command <<<
	TokCommandClose // } or >>>
	TokSymbol       // operators and punctuation, exact text in Text
	TokComment
)

// Token is one lexical unit with its source span.
type Token struct {
	Kind TokenKind
	Text string
	Pos  diag.SourcePos
}

// Keywords recognized across all grammar versions; version-specific
// dispatch (draft-2 lacking `struct`, etc.) is handled by the parser, which
// treats unrecognized-for-version keywords as plain identifiers where legal.
var keywords = map[string]bool{
	"version": true, "import": true, "as": true, "alias": true,
	"struct": true, "task": true, "workflow": true, "call": true,
	"input": true, "output": true, "command": true, "runtime": true,
	"meta": true, "parameter_meta": true, "scatter": true, "if": true,
	"then": true, "else": true, "in": true, "after": true,
	"Boolean": true, "Int": true, "Float": true, "String": true,
	"File": true, "Directory": true, "Array": true, "Map": true,
	"Pair": true, "Object": true, "object": true,
	"true": true, "false": true, "None": true,
	"and": true, "or": true, "not": true,
}

// IsKeyword reports whether text is a reserved word in any supported
// version.
func IsKeyword(text string) bool { return keywords[text] }
