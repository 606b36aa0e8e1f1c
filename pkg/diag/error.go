package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the diagnostic taxonomy shared by every stage of the pipeline,
// from syntax errors through task-runtime failures.
type Kind string

const (
	KindSyntaxError           Kind = "SyntaxError"
	KindImportError           Kind = "ImportError"
	KindInvalidType           Kind = "InvalidType"
	KindStaticTypeMismatch    Kind = "StaticTypeMismatch"
	KindIncompatibleOperand   Kind = "IncompatibleOperand"
	KindUnknownIdentifier     Kind = "UnknownIdentifier"
	KindNoSuchFunction        Kind = "NoSuchFunction"
	KindNoSuchTask            Kind = "NoSuchTask"
	KindNoSuchInput           Kind = "NoSuchInput"
	KindNoSuchMember          Kind = "NoSuchMember"
	KindWrongArity            Kind = "WrongArity"
	KindNotAnArray            Kind = "NotAnArray"
	KindEmptyArray            Kind = "EmptyArray"
	KindMultipleDefinitions   Kind = "MultipleDefinitions"
	KindStrayInputDeclaration Kind = "StrayInputDeclaration"
	KindCircularDependencies  Kind = "CircularDependencies"
	KindUncallableWorkflow    Kind = "UncallableWorkflow"
	KindEvalError             Kind = "EvalError"
	KindNullValue             Kind = "NullValue"
	KindOutOfBounds           Kind = "OutOfBounds"
	KindCommandFailed         Kind = "CommandFailed"
	KindTerminated            Kind = "Terminated"
	KindInterrupted           Kind = "Interrupted"
	KindOutputError           Kind = "OutputError"
	KindInputError            Kind = "InputError"
	KindDownloadFailed        Kind = "DownloadFailed"
)

// Error is a single diagnostic: a Kind, a message, and the source position
// it pins to.
type Error struct {
	Kind    Kind
	Message string
	Pos     SourcePos
	Cause   error
}

// New constructs an Error, the single concrete error type every component
// in this repository raises.
func New(kind Kind, pos SourcePos, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// Wrap attaches a Kind and position to an underlying error (e.g. a
// container-backend or filesystem failure).
func Wrap(kind Kind, pos SourcePos, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Pos: pos, Cause: cause}
}

// Error implements the error interface, rendering "(filename Ln L, Col C)
// <description>".
func (e *Error) Error() string {
	if e.Pos.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Pos, e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports Kind-based matching for errors.Is(err, diag.New(kind, ...)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Syntax, ImportErr, UnknownIdentifier, ... are convenience constructors
// for the most common kinds.
func Syntax(pos SourcePos, format string, args ...interface{}) *Error {
	return New(KindSyntaxError, pos, format, args...)
}
func ImportErr(pos SourcePos, uri string, cause error) *Error {
	return &Error{Kind: KindImportError, Message: fmt.Sprintf("importing %s: %v", uri, cause), Pos: pos, Cause: cause}
}
func StaticTypeMismatch(pos SourcePos, format string, args ...interface{}) *Error {
	return New(KindStaticTypeMismatch, pos, format, args...)
}
func UnknownIdentifier(pos SourcePos, name string) *Error {
	return New(KindUnknownIdentifier, pos, "unknown identifier %q", name)
}
func NoSuchTask(pos SourcePos, name string) *Error {
	return New(KindNoSuchTask, pos, "no such task or workflow %q", name)
}
func NoSuchInput(pos SourcePos, callee, name string) *Error {
	return New(KindNoSuchInput, pos, "%s has no input %q", callee, name)
}
func NoSuchMember(pos SourcePos, typ, name string) *Error {
	return New(KindNoSuchMember, pos, "%s has no member %q", typ, name)
}
func WrongArity(pos SourcePos, fn string, want, got int) *Error {
	return New(KindWrongArity, pos, "%s expects %d argument(s), got %d", fn, want, got)
}
func CircularDependencies(pos SourcePos, names []string) *Error {
	return New(KindCircularDependencies, pos, "circular dependency among: %s", strings.Join(names, ", "))
}
func MultipleDefinitions(pos SourcePos, name string) *Error {
	return New(KindMultipleDefinitions, pos, "multiple definitions of %q", name)
}
func OutOfBounds(pos SourcePos, format string, args ...interface{}) *Error {
	return New(KindOutOfBounds, pos, format, args...)
}
func NullValueErr(pos SourcePos, format string, args ...interface{}) *Error {
	return New(KindNullValue, pos, format, args...)
}
func EvalErr(pos SourcePos, format string, args ...interface{}) *Error {
	return New(KindEvalError, pos, format, args...)
}

// MultiError accumulates validation diagnostics across a whole document so
// the typechecker can report every error found in one pass instead of
// halting at the first.
type MultiError struct {
	Errors []*Error
}

// Add appends an error.
func (m *MultiError) Add(e *Error) { m.Errors = append(m.Errors, e) }

// HasErrors reports whether anything was accumulated.
func (m *MultiError) HasErrors() bool { return len(m.Errors) > 0 }

// Sort orders accumulated errors by source position.
func (m *MultiError) Sort() {
	sort.SliceStable(m.Errors, func(i, j int) bool {
		a, b := m.Errors[i].Pos, m.Errors[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Error implements the error interface by joining every accumulated
// message, one per line.
func (m *MultiError) Error() string {
	m.Sort()
	lines := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// ErrOrNil returns m as an error if it has accumulated anything, else nil —
// the usual way a typecheck pass returns its MultiError.
func (m *MultiError) ErrOrNil() error {
	if m == nil || !m.HasErrors() {
		return nil
	}
	return m
}
