package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := New("test.wdl", src)
	var toks []Token
	for {
		tok, err := l.Next()
		require.NoError(t, err)
		if tok.Kind == TokEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestBasicTokens(t *testing.T) {
	toks := lexAll(t, "task hello_2 { Int n = 42 }")
	require.Len(t, toks, 8)
	assert.Equal(t, TokKeyword, toks[0].Kind)
	assert.Equal(t, "task", toks[0].Text)
	assert.Equal(t, TokIdent, toks[1].Kind)
	assert.Equal(t, "hello_2", toks[1].Text)
	assert.Equal(t, TokSymbol, toks[2].Kind)
	assert.Equal(t, TokKeyword, toks[3].Kind) // Int
	assert.Equal(t, TokInt, toks[6].Kind)
	assert.Equal(t, "42", toks[6].Text)
}

func TestNumberTokens(t *testing.T) {
	toks := lexAll(t, "1 2.5 3e2 4.0E-1")
	require.Len(t, toks, 4)
	assert.Equal(t, TokInt, toks[0].Kind)
	assert.Equal(t, TokFloat, toks[1].Kind)
	assert.Equal(t, TokFloat, toks[2].Kind)
	assert.Equal(t, TokFloat, toks[3].Kind)
}

func TestTwoCharOperators(t *testing.T) {
	toks := lexAll(t, "a == b != c <= d >= e && f || g")
	var ops []string
	for _, tok := range toks {
		if tok.Kind == TokSymbol {
			ops = append(ops, tok.Text)
		}
	}
	assert.Equal(t, []string{"==", "!=", "<=", ">=", "&&", "||"}, ops)
}

func TestCommentsIgnored(t *testing.T) {
	toks := lexAll(t, "a # this is a comment\nb")
	require.Len(t, toks, 2)
	assert.Equal(t, "a", toks[0].Text)
	assert.Equal(t, "b", toks[1].Text)
	assert.Equal(t, 2, toks[1].Pos.Line)
}

func TestPositionsTrackLineAndColumn(t *testing.T) {
	toks := lexAll(t, "one\n  two")
	require.Len(t, toks, 2)
	assert.Equal(t, 1, toks[0].Pos.Line)
	assert.Equal(t, 1, toks[0].Pos.Column)
	assert.Equal(t, 2, toks[1].Pos.Line)
	assert.Equal(t, 3, toks[1].Pos.Column)
	assert.Equal(t, "test.wdl", toks[0].Pos.Filename)
}

func TestQuotedStringWithPlaceholders(t *testing.T) {
	l := New("test.wdl", `Hello, ~{who} and ${other}!"`)
	frags, err := l.LexQuotedString('"')
	require.NoError(t, err)
	require.Len(t, frags, 5)
	assert.Equal(t, "Hello, ", frags[0].Literal)
	assert.True(t, frags[1].IsPlaceholder)
	assert.Equal(t, "who", frags[1].PlaceholderSrc)
	assert.Equal(t, " and ", frags[2].Literal)
	assert.True(t, frags[3].IsPlaceholder)
	assert.Equal(t, "other", frags[3].PlaceholderSrc)
	assert.Equal(t, "!", frags[4].Literal)
}

func TestQuotedStringEscapes(t *testing.T) {
	l := New("test.wdl", `a\tb\nc\"d"`)
	frags, err := l.LexQuotedString('"')
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "a\tb\nc\"d", frags[0].Literal)
}

func TestUnterminatedString(t *testing.T) {
	l := New("test.wdl", `no closing quote`)
	_, err := l.LexQuotedString('"')
	assert.Error(t, err)
}

func TestCommandBracesBalanced(t *testing.T) {
	// The awk braces inside the command must not terminate the block early.
	l := New("test.wdl", ` awk '{print $1}' ~{infile} } trailing`)
	frags, err := l.LexCommandBraces()
	require.NoError(t, err)
	require.Len(t, frags, 3)
	assert.Equal(t, " awk '{print $1}' ", frags[0].Literal)
	assert.True(t, frags[1].IsPlaceholder)
	assert.Equal(t, "infile", frags[1].PlaceholderSrc)
	assert.Equal(t, " ", frags[2].Literal)
}

func TestCommandHeredocOnlyTildePlaceholders(t *testing.T) {
	l := New("test.wdl", ` echo ${not_a_placeholder} ~{yes} >>>`)
	frags, err := l.LexCommandHeredoc()
	require.NoError(t, err)
	require.Len(t, frags, 3)
	assert.Equal(t, " echo ${not_a_placeholder} ", frags[0].Literal)
	assert.True(t, frags[1].IsPlaceholder)
	assert.Equal(t, "yes", frags[1].PlaceholderSrc)
}

func TestPlaceholderBalancesNestedBraces(t *testing.T) {
	l := New("test.wdl", `~{if b then "}" else x} done"`)
	frags, err := l.LexQuotedString('"')
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.True(t, frags[0].IsPlaceholder)
	assert.Equal(t, `if b then "}" else x`, frags[0].PlaceholderSrc)
	assert.Equal(t, " done", frags[1].Literal)
}

func TestHeredocDelimiterTokens(t *testing.T) {
	toks := lexAll(t, "<<< >>>")
	require.Len(t, toks, 2)
	assert.Equal(t, "<<<", toks[0].Text)
	assert.Equal(t, ">>>", toks[1].Text)
}

func TestSaveRestore(t *testing.T) {
	l := New("test.wdl", "a b c")
	first, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first.Text)

	s := l.Save()
	second, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", second.Text)

	l.Restore(s)
	again, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", again.Text)
}

func TestIsKeyword(t *testing.T) {
	assert.True(t, IsKeyword("workflow"))
	assert.True(t, IsKeyword("scatter"))
	assert.False(t, IsKeyword("myident"))
}
