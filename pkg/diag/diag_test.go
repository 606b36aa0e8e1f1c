package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorRendersWithPosition(t *testing.T) {
	pos := SourcePos{Filename: "hello.wdl", Line: 3, Column: 7}
	err := UnknownIdentifier(pos, "whom")
	assert.Equal(t, `(hello.wdl Ln 3, Col 7) UnknownIdentifier: unknown identifier "whom"`, err.Error())
}

func TestErrorRendersWithoutPosition(t *testing.T) {
	err := EvalErr(SourcePos{}, "division by zero")
	assert.Equal(t, "EvalError: division by zero", err.Error())
}

func TestErrorKindMatching(t *testing.T) {
	err := Syntax(SourcePos{Filename: "f", Line: 1, Column: 1}, "unexpected token")
	assert.True(t, errors.Is(err, &Error{Kind: KindSyntaxError}))
	assert.False(t, errors.Is(err, &Error{Kind: KindEvalError}))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindDownloadFailed, SourcePos{}, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Equal(t, KindDownloadFailed, err.Kind)
}

func TestMultiErrorSortsByPosition(t *testing.T) {
	m := &MultiError{}
	m.Add(New(KindEvalError, SourcePos{Filename: "b.wdl", Line: 1, Column: 1}, "third"))
	m.Add(New(KindEvalError, SourcePos{Filename: "a.wdl", Line: 9, Column: 1}, "second"))
	m.Add(New(KindEvalError, SourcePos{Filename: "a.wdl", Line: 2, Column: 5}, "first"))
	m.Sort()

	require.Len(t, m.Errors, 3)
	assert.Equal(t, "first", m.Errors[0].Message)
	assert.Equal(t, "second", m.Errors[1].Message)
	assert.Equal(t, "third", m.Errors[2].Message)
}

func TestMultiErrorErrOrNil(t *testing.T) {
	m := &MultiError{}
	assert.NoError(t, m.ErrOrNil())

	m.Add(New(KindSyntaxError, SourcePos{}, "oops"))
	require.Error(t, m.ErrOrNil())
	assert.Contains(t, m.Error(), "oops")

	var nilM *MultiError
	assert.NoError(t, nilM.ErrOrNil())
}

func TestSourcePosIsZero(t *testing.T) {
	assert.True(t, SourcePos{}.IsZero())
	assert.False(t, SourcePos{Filename: "x", Line: 1, Column: 1}.IsZero())
}
