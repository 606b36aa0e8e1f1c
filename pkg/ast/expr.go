// Package ast defines the typed syntax tree produced by pkg/parser and
// decorated with types by pkg/typecheck: declarations, calls, scatter/
// conditional sections, tasks, workflows, and documents.
//
// Cyclic references (Call.Callee, struct member types) are represented by
// ID strings resolved into pointers during typechecking, rather than
// recursive pointer cycles built during parsing.
package ast

import (
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// Expr is any expression AST node.
type Expr interface {
	ExprPos() diag.SourcePos
}

// ExprBase carries the source position shared by every expression node.
// It is exported (unlike a private mixin) so pkg/parser can construct node
// literals directly as ast.Ident{ExprBase: ast.ExprBase{Pos: pos}, ...}.
type ExprBase struct {
	Pos diag.SourcePos
}

func (e ExprBase) ExprPos() diag.SourcePos { return e.Pos }

// NewExprBase is a convenience constructor for ExprBase{Pos: pos}.
func NewExprBase(pos diag.SourcePos) ExprBase { return ExprBase{Pos: pos} }

// Ident is a bare identifier reference, resolved to a declaration or call
// output during typechecking.
type Ident struct {
	ExprBase
	Name string
}

// IntLit, FloatLit, BoolLit, StringSimpleLit are literal leaves. String
// literals with placeholders are represented by StringExpr instead.
type IntLit struct {
	ExprBase
	Value int64
}

type FloatLit struct {
	ExprBase
	Value float64
}

type BoolLit struct {
	ExprBase
	Value bool
}

// NullLit is the `None` literal, type Any?.
type NullLit struct{ ExprBase }

// StringExpr is an ordered sequence of literal fragments interleaved with
// placeholders — used for both quoted string literals and task commands.
type StringExpr struct {
	ExprBase
	Parts []StringPart
}

// StringPart is either a literal fragment or a placeholder.
type StringPart struct {
	Literal     string
	Placeholder *Placeholder // nil for a literal-only part
}

// Placeholder is `${expr}` or `~{expr}` with an ordered option list.
type Placeholder struct {
	Pos     diag.SourcePos
	Options []PlaceholderOption
	Expr    Expr
}

// PlaceholderOption is one `name = "literal"` pair, e.g. `sep=","`.
type PlaceholderOption struct {
	Name    string
	Literal string
}

// Get returns the literal value for a named option, if present.
func (p *Placeholder) Get(name string) (string, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o.Literal, true
		}
	}
	return "", false
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

// BinaryExpr is a binary operator application.
type BinaryExpr struct {
	ExprBase
	Op          BinaryOp
	Left, Right Expr
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// UnaryExpr is a unary operator application.
type UnaryExpr struct {
	ExprBase
	Op   UnaryOp
	Expr Expr
}

// IfExpr is `if cond then a else b`.
type IfExpr struct {
	ExprBase
	Cond, Then, Else Expr
}

// ArrayLit is `[a, b, c]`.
type ArrayLit struct {
	ExprBase
	Items []Expr
}

// MapEntry is one `key: value` pair in a MapLit.
type MapEntry struct {
	Key, Value Expr
}

// MapLit is `{k1: v1, k2: v2}`.
type MapLit struct {
	ExprBase
	Entries []MapEntry
}

// PairLit is `(left, right)`.
type PairLit struct {
	ExprBase
	Left, Right Expr
}

// ObjectField is one `name: value` field of an ObjectLit/StructLit.
type ObjectField struct {
	Name  string
	Value Expr
}

// ObjectLit is a `object { ... }` or `StructName { ... }` literal.
// StructName is empty for the legacy untyped `object { }` form.
type ObjectLit struct {
	ExprBase
	StructName string
	Fields     []ObjectField
}

// IndexExpr is `array[i]` or `map[k]`.
type IndexExpr struct {
	ExprBase
	Target, Index Expr
}

// MemberExpr is `pair.left`, `call.output`, or `struct.field`.
type MemberExpr struct {
	ExprBase
	Target Expr
	Name   string
}

// CallExpr is a stdlib or user function application `f(a, b)`.
type CallExpr struct {
	ExprBase
	Func string
	Args []Expr
}

// TypeExpr is the textual type annotation on a Decl, already resolved to a
// wdltype.Type by the parser (struct member maps filled in later by
// pkg/typecheck's struct-resolution pass).
type TypeExpr struct {
	Type wdltype.Type
	Pos  diag.SourcePos
}
