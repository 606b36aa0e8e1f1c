package lexer

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/diag"
)

// Lexer is a hand-written rune scanner over WDL source, covering the full
// document grammar: declarations, task/workflow headers, command blocks,
// and the string/command placeholder sublanguage.
type Lexer struct {
	filename string
	src      []rune
	pos      int
	line     int
	col      int
}

// New returns a Lexer positioned at the start of src.
func New(filename, src string) *Lexer {
	return &Lexer{filename: filename, src: []rune(src), line: 1, col: 1}
}

func (l *Lexer) here() diag.SourcePos {
	return diag.SourcePos{Filename: l.filename, Line: l.line, Column: l.col}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		r := l.peek()
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			l.advance()
			continue
		}
		if r == '#' {
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

// Next scans and returns one token of the top-level grammar (outside any
// string or command body). An opening quote, `{` or `<<<` comes back as a
// plain symbol token with the lexer positioned just after it; the parser
// then calls LexQuotedString, LexCommandBraces, LexCommandHeredoc or
// ScanBalancedBraceBody to scan the body itself.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespaceAndComments()
	if l.atEnd() {
		return Token{Kind: TokEOF, Pos: l.here()}, nil
	}
	start := l.here()
	r := l.peek()

	switch {
	case isIdentStart(r):
		return l.readIdentifier(start), nil
	case isDigit(r):
		return l.readNumber(start)
	case r == '"' || r == '\'':
		return Token{Kind: TokSymbol, Text: string(l.advance()), Pos: start}, nil
	}

	twoByte := map[string]bool{
		"==": true, "!=": true, "<=": true, ">=": true, "&&": true, "||": true,
	}
	if l.pos+1 < len(l.src) {
		two := string(l.peek()) + string(l.peekAt(1))
		if l.pos+2 < len(l.src) {
			three := two + string(l.peekAt(2))
			if three == "<<<" || three == ">>>" {
				l.advance()
				l.advance()
				l.advance()
				return Token{Kind: TokSymbol, Text: three, Pos: start}, nil
			}
		}
		if twoByte[two] {
			l.advance()
			l.advance()
			return Token{Kind: TokSymbol, Text: two, Pos: start}, nil
		}
		if two == "${" || two == "~{" {
			l.advance()
			l.advance()
			return Token{Kind: TokPlaceholderOpen, Text: two, Pos: start}, nil
		}
	}

	single := l.advance()
	return Token{Kind: TokSymbol, Text: string(single), Pos: start}, nil
}

func (l *Lexer) readIdentifier(start diag.SourcePos) Token {
	var sb strings.Builder
	for !l.atEnd() && isIdentPart(l.peek()) {
		sb.WriteRune(l.advance())
	}
	text := sb.String()
	kind := TokIdent
	if IsKeyword(text) {
		kind = TokKeyword
	}
	return Token{Kind: kind, Text: text, Pos: start}
}

func (l *Lexer) readNumber(start diag.SourcePos) (Token, error) {
	var sb strings.Builder
	isFloat := false
	for !l.atEnd() && isDigit(l.peek()) {
		sb.WriteRune(l.advance())
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		sb.WriteRune(l.advance())
		for !l.atEnd() && isDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		sb.WriteRune(l.advance())
		if l.peek() == '+' || l.peek() == '-' {
			sb.WriteRune(l.advance())
		}
		for !l.atEnd() && isDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}
	kind := TokInt
	if isFloat {
		kind = TokFloat
	}
	return Token{Kind: kind, Text: sb.String(), Pos: start}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }
func isDigit(r rune) bool     { return r >= '0' && r <= '9' }

// StringFragment is one piece of a lexed string or command: either a
// literal text run or a placeholder delimited by ${...}/~{...} whose inner
// expression text (unparsed) is returned for the parser to recursively
// lex+parse.
type StringFragment struct {
	Literal        string
	IsPlaceholder  bool
	PlaceholderSrc string
	Pos            diag.SourcePos
}

// LexQuotedString scans a quoted string literal starting just after the
// opening quote (already consumed by the caller), honoring escape
// sequences and both ${} and ~{} placeholder forms, each balanced by brace
// depth and blind to the other's escape context.
func (l *Lexer) LexQuotedString(quote rune) ([]StringFragment, error) {
	var frags []StringFragment
	var lit strings.Builder
	litStart := l.here()
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, StringFragment{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	for {
		if l.atEnd() {
			return nil, fmt.Errorf("%s unterminated string literal", l.here())
		}
		r := l.peek()
		if r == quote {
			l.advance()
			flush()
			return frags, nil
		}
		if r == '\\' {
			l.advance()
			if l.atEnd() {
				return nil, fmt.Errorf("%s unterminated escape", l.here())
			}
			esc := l.advance()
			lit.WriteString(unescape(esc))
			continue
		}
		if (r == '$' || r == '~') && l.peekAt(1) == '{' {
			flush()
			start := l.here()
			l.advance()
			l.advance()
			inner, err := l.scanBalancedPlaceholder()
			if err != nil {
				return nil, err
			}
			frags = append(frags, StringFragment{IsPlaceholder: true, PlaceholderSrc: inner, Pos: start})
			litStart = l.here()
			continue
		}
		lit.WriteRune(l.advance())
	}
}

// LexCommandBraces scans a `command { ... }` body, where `}` must be
// brace-balanced against any literal `{`/`}` in the command text, and only
// `${`/`~{` introduce placeholders.
func (l *Lexer) LexCommandBraces() ([]StringFragment, error) {
	var frags []StringFragment
	var lit strings.Builder
	litStart := l.here()
	depth := 1
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, StringFragment{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	for {
		if l.atEnd() {
			return nil, fmt.Errorf("%s unterminated command block", l.here())
		}
		r := l.peek()
		if (r == '$' || r == '~') && l.peekAt(1) == '{' {
			flush()
			start := l.here()
			l.advance()
			l.advance()
			inner, err := l.scanBalancedPlaceholder()
			if err != nil {
				return nil, err
			}
			frags = append(frags, StringFragment{IsPlaceholder: true, PlaceholderSrc: inner, Pos: start})
			litStart = l.here()
			continue
		}
		if r == '{' {
			depth++
			lit.WriteRune(l.advance())
			continue
		}
		if r == '}' {
			depth--
			if depth == 0 {
				l.advance()
				flush()
				return frags, nil
			}
			lit.WriteRune(l.advance())
			continue
		}
		lit.WriteRune(l.advance())
	}
}

// LexCommandHeredoc scans a `command <<< ... >>>` body, where only `~{`
// introduces a placeholder and `>>>` terminates unconditionally (no brace
// balancing against literal braces).
func (l *Lexer) LexCommandHeredoc() ([]StringFragment, error) {
	var frags []StringFragment
	var lit strings.Builder
	litStart := l.here()
	flush := func() {
		if lit.Len() > 0 {
			frags = append(frags, StringFragment{Literal: lit.String(), Pos: litStart})
			lit.Reset()
		}
	}
	for {
		if l.atEnd() {
			return nil, fmt.Errorf("%s unterminated command heredoc", l.here())
		}
		if l.peek() == '>' && l.peekAt(1) == '>' && l.peekAt(2) == '>' {
			l.advance()
			l.advance()
			l.advance()
			flush()
			return frags, nil
		}
		if l.peek() == '~' && l.peekAt(1) == '{' {
			flush()
			start := l.here()
			l.advance()
			l.advance()
			inner, err := l.scanBalancedPlaceholder()
			if err != nil {
				return nil, err
			}
			frags = append(frags, StringFragment{IsPlaceholder: true, PlaceholderSrc: inner, Pos: start})
			litStart = l.here()
			continue
		}
		lit.WriteRune(l.advance())
	}
}

// scanBalancedPlaceholder consumes characters up to the matching `}`,
// tracking nested `{`/`}` (e.g. from a map literal inside the placeholder)
// and string literals so an embedded `}` inside a quoted string doesn't
// terminate early. Returns the raw inner source text (re-lexed by the
// parser as an expression).
func (l *Lexer) scanBalancedPlaceholder() (string, error) {
	var sb strings.Builder
	depth := 1
	for {
		if l.atEnd() {
			return "", fmt.Errorf("%s unterminated placeholder", l.here())
		}
		r := l.peek()
		if r == '"' || r == '\'' {
			quote := r
			sb.WriteRune(l.advance())
			for !l.atEnd() && l.peek() != quote {
				if l.peek() == '\\' {
					sb.WriteRune(l.advance())
					if !l.atEnd() {
						sb.WriteRune(l.advance())
					}
					continue
				}
				sb.WriteRune(l.advance())
			}
			if !l.atEnd() {
				sb.WriteRune(l.advance())
			}
			continue
		}
		if r == '{' {
			depth++
			sb.WriteRune(l.advance())
			continue
		}
		if r == '}' {
			depth--
			if depth == 0 {
				l.advance()
				return sb.String(), nil
			}
			sb.WriteRune(l.advance())
			continue
		}
		sb.WriteRune(l.advance())
	}
}

// ScanBalancedBraceBody consumes raw source text up to (and including) the
// matching closing `}`, given that the opening `{` has already been
// consumed by the caller as a token. String literals are scanned blind to
// brace balance so an embedded `}`/`{` inside a quoted string doesn't affect
// depth. Returns the inner text without the closing brace, used by
// parseMetaObjectBody to re-parse a meta/parameter_meta block as a literal.
func (l *Lexer) ScanBalancedBraceBody() (string, error) {
	var sb strings.Builder
	depth := 1
	for {
		if l.atEnd() {
			return "", fmt.Errorf("%s unterminated block", l.here())
		}
		r := l.peek()
		if r == '"' || r == '\'' {
			quote := r
			sb.WriteRune(l.advance())
			for !l.atEnd() && l.peek() != quote {
				if l.peek() == '\\' {
					sb.WriteRune(l.advance())
					if !l.atEnd() {
						sb.WriteRune(l.advance())
					}
					continue
				}
				sb.WriteRune(l.advance())
			}
			if !l.atEnd() {
				sb.WriteRune(l.advance())
			}
			continue
		}
		if r == '#' {
			for !l.atEnd() && l.peek() != '\n' {
				sb.WriteRune(l.advance())
			}
			continue
		}
		if r == '{' {
			depth++
			sb.WriteRune(l.advance())
			continue
		}
		if r == '}' {
			depth--
			if depth == 0 {
				l.advance()
				return sb.String(), nil
			}
			sb.WriteRune(l.advance())
			continue
		}
		sb.WriteRune(l.advance())
	}
}

func unescape(esc rune) string {
	switch esc {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '\\':
		return "\\"
	case '"':
		return "\""
	case '\'':
		return "'"
	case '$':
		return "$"
	case '~':
		return "~"
	default:
		return string(esc)
	}
}

// Save/Restore let the parser backtrack the lexer position, used when
// probing ahead (e.g. telling a placeholder option `sep=` from the
// placeholder's expression, or a `call.*` output wildcard from a decl).
type State struct {
	pos, line, col int
}

func (l *Lexer) Save() State { return State{l.pos, l.line, l.col} }
func (l *Lexer) Restore(s State) { l.pos, l.line, l.col = s.pos, s.line, s.col }
