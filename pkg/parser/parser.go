// Package parser implements a recursive-descent parser building an
// ast.Document from WDL source text, across the draft-2/1.0/1.1/1.2/
// development grammar versions. The expression grammar is a
// precedence-climbing ladder; document-level structure (imports, tasks,
// workflows, command blocks) is parsed by straightforward recursive descent.
package parser

import (
	"fmt"
	"strconv"

	"github.com/lemonberrylabs/wdlcore/internal/metayaml"
	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/diag"
	"github.com/lemonberrylabs/wdlcore/pkg/lexer"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

// ParseError is a syntax error with the offending position.
type ParseError struct {
	Message string
	Pos     diag.SourcePos
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %s", e.Pos, e.Message)
}

// Parser holds parse state: the lexer, the current lookahead token, and a
// monotonically increasing node-ID counter for ast.Node.ID assignment.
type Parser struct {
	lx       *lexer.Lexer
	filename string
	tok      lexer.Token
	nextID   int
}

// Parse parses a complete WDL document.
func Parse(filename, src string) (*ast.Document, error) {
	p := &Parser{lx: lexer.New(filename, src), filename: filename}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseDocument()
}

func (p *Parser) advance() error {
	t, err := p.lx.Next()
	if err != nil {
		return &ParseError{Message: err.Error(), Pos: p.tok.Pos}
	}
	p.tok = t
	return nil
}

func (p *Parser) newID(prefix string) string {
	p.nextID++
	return fmt.Sprintf("%s-%d", prefix, p.nextID)
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &ParseError{Message: fmt.Sprintf(format, args...), Pos: p.tok.Pos}
}

func (p *Parser) isKeyword(kw string) bool {
	return p.tok.Kind == lexer.TokKeyword && p.tok.Text == kw
}

func (p *Parser) isSymbol(sym string) bool {
	return p.tok.Kind == lexer.TokSymbol && p.tok.Text == sym
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.isSymbol(sym) {
		return p.errf("expected %q, got %q", sym, p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errf("expected %q, got %q", kw, p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) expectIdent() (string, error) {
	if p.tok.Kind != lexer.TokIdent && p.tok.Kind != lexer.TokKeyword {
		return "", p.errf("expected identifier, got %q", p.tok.Text)
	}
	name := p.tok.Text
	return name, p.advance()
}

// ---- Document ----

func (p *Parser) parseDocument() (*ast.Document, error) {
	doc := &ast.Document{Filename: p.filename, Pos: p.tok.Pos}

	if p.isKeyword("version") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		// "1.0"/"1.1" lex as a float token, "development" as an identifier.
		if p.tok.Kind != lexer.TokFloat && p.tok.Kind != lexer.TokIdent {
			return nil, p.errf("expected version, got %q", p.tok.Text)
		}
		doc.Version = p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		doc.Version = "draft-2"
	}

	for p.tok.Kind != lexer.TokEOF {
		switch {
		case p.isKeyword("import"):
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			doc.Imports = append(doc.Imports, imp)
		case p.isKeyword("struct"):
			st, err := p.parseStructTypedef()
			if err != nil {
				return nil, err
			}
			doc.StructTypedefs = append(doc.StructTypedefs, st)
		case p.isKeyword("task"):
			t, err := p.parseTask()
			if err != nil {
				return nil, err
			}
			doc.Tasks = append(doc.Tasks, t)
		case p.isKeyword("workflow"):
			w, err := p.parseWorkflow()
			if err != nil {
				return nil, err
			}
			if doc.Workflow != nil {
				return nil, p.errf("document defines more than one workflow")
			}
			doc.Workflow = w
		default:
			return nil, p.errf("unexpected token %q at document scope", p.tok.Text)
		}
	}
	return doc, nil
}

func (p *Parser) parseImport() (*ast.Import, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // consume 'import'
		return nil, err
	}
	uri, err := p.parseSimpleStringLiteral()
	if err != nil {
		return nil, err
	}
	imp := &ast.Import{URI: uri, Pos: pos}
	if p.isKeyword("as") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		ns, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		imp.Namespace = ns
	}
	for p.isKeyword("alias") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		from, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		to, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		imp.Aliases = append(imp.Aliases, ast.ImportAlias{From: from, To: to})
	}
	return imp, nil
}

func (p *Parser) parseStructTypedef() (*ast.StructTypedef, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'struct'
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	members := wdltype.NewMemberList()
	for !p.isSymbol("}") {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		mname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		members.Set(mname, &t)
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return &ast.StructTypedef{Name: name, Members: members, Pos: pos}, nil
}

// ---- Types ----

func (p *Parser) parseType() (wdltype.Type, error) {
	if p.tok.Kind != lexer.TokKeyword && p.tok.Kind != lexer.TokIdent {
		return wdltype.Type{}, p.errf("expected type, got %q", p.tok.Text)
	}
	name := p.tok.Text
	if err := p.advance(); err != nil {
		return wdltype.Type{}, err
	}
	var t wdltype.Type
	switch name {
	case "Boolean":
		t = wdltype.Boolean()
	case "Int":
		t = wdltype.Int()
	case "Float":
		t = wdltype.Float()
	case "String":
		t = wdltype.String()
	case "File":
		t = wdltype.File()
	case "Directory":
		t = wdltype.Directory()
	case "Object", "object":
		t = wdltype.ObjectType()
	case "Array":
		if err := p.expectSymbol("["); err != nil {
			return wdltype.Type{}, err
		}
		item, err := p.parseType()
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := p.expectSymbol("]"); err != nil {
			return wdltype.Type{}, err
		}
		nonempty := false
		if p.isSymbol("+") {
			nonempty = true
			if err := p.advance(); err != nil {
				return wdltype.Type{}, err
			}
		}
		t = wdltype.Array(item, nonempty)
	case "Map":
		if err := p.expectSymbol("["); err != nil {
			return wdltype.Type{}, err
		}
		key, err := p.parseType()
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := p.expectSymbol(","); err != nil {
			return wdltype.Type{}, err
		}
		val, err := p.parseType()
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := p.expectSymbol("]"); err != nil {
			return wdltype.Type{}, err
		}
		t = wdltype.Map(key, val)
	case "Pair":
		if err := p.expectSymbol("["); err != nil {
			return wdltype.Type{}, err
		}
		left, err := p.parseType()
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := p.expectSymbol(","); err != nil {
			return wdltype.Type{}, err
		}
		right, err := p.parseType()
		if err != nil {
			return wdltype.Type{}, err
		}
		if err := p.expectSymbol("]"); err != nil {
			return wdltype.Type{}, err
		}
		t = wdltype.Pair(left, right)
	default:
		// A user-defined struct name; members resolved later by pkg/typecheck.
		t = wdltype.StructInstance(name, nil)
	}
	if p.isSymbol("?") {
		if err := p.advance(); err != nil {
			return wdltype.Type{}, err
		}
		t.Optional = true
	}
	return t, nil
}

// ---- Task ----

func (p *Parser) parseTask() (*ast.Task, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'task'
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	task := &ast.Task{Name: name, Pos: pos, Runtime: map[string]ast.Expr{}}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	for !p.isSymbol("}") {
		switch {
		case p.isKeyword("input"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.isSymbol("}") {
				d, err := p.parseDeclStmt()
				if err != nil {
					return nil, err
				}
				task.Inputs = append(task.Inputs, d)
			}
			if err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.isKeyword("output"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.isSymbol("}") {
				d, err := p.parseDeclStmt()
				if err != nil {
					return nil, err
				}
				task.Outputs = append(task.Outputs, d)
			}
			if err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.isKeyword("command"):
			cmd, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			task.Command = cmd
		case p.isKeyword("runtime"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.isSymbol("}") {
				key, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				if err := p.expectSymbol(":"); err != nil {
					return nil, err
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				task.Runtime[key] = e
				task.RuntimeOrder = append(task.RuntimeOrder, key)
			}
			if err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.isKeyword("meta"):
			m, err := p.parseMetaBlock()
			if err != nil {
				return nil, err
			}
			task.Meta = m
		case p.isKeyword("parameter_meta"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			m, err := p.parseMetaObjectBody()
			if err != nil {
				return nil, err
			}
			task.ParameterMeta = m
		default:
			// Bare (non-input-section) declaration, permitted pre-1.0.
			d, err := p.parseDeclStmt()
			if err != nil {
				return nil, err
			}
			task.Postinputs = append(task.Postinputs, d)
		}
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return task, nil
}

func (p *Parser) parseDeclStmt() (*ast.Decl, error) {
	pos := p.tok.Pos
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	d := &ast.Decl{Type: t, Name: name}
	d.ID = p.newID("decl")
	d.Pos = pos
	if p.isSymbol("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.Expr = e
	}
	return d, nil
}

// ---- Command ----

func (p *Parser) parseCommand() (ast.StringExpr, error) {
	if err := p.advance(); err != nil { // 'command'
		return ast.StringExpr{}, err
	}
	var frags []lexer.StringFragment
	var err error
	// The opener token is already consumed by the lexer: the body scan
	// starts right after it.
	if p.isSymbol("<<<") {
		frags, err = p.lx.LexCommandHeredoc()
	} else if p.isSymbol("{") {
		frags, err = p.lx.LexCommandBraces()
	} else {
		return ast.StringExpr{}, p.errf("expected command body, got %q", p.tok.Text)
	}
	if err != nil {
		return ast.StringExpr{}, err
	}
	se, err := p.fragmentsToStringExpr(frags)
	if err != nil {
		return ast.StringExpr{}, err
	}
	return se, p.advance()
}

func (p *Parser) fragmentsToStringExpr(frags []lexer.StringFragment) (ast.StringExpr, error) {
	se := ast.StringExpr{}
	for _, f := range frags {
		if !f.IsPlaceholder {
			se.Parts = append(se.Parts, ast.StringPart{Literal: f.Literal})
			continue
		}
		ph, err := p.parsePlaceholder(f.PlaceholderSrc, f.Pos)
		if err != nil {
			return ast.StringExpr{}, err
		}
		se.Parts = append(se.Parts, ast.StringPart{Placeholder: ph})
	}
	return se, nil
}

// parsePlaceholder parses the inner text of a ${...}/~{...} fragment: an
// optional ordered list of `name=literal` options, then an expression.
func (p *Parser) parsePlaceholder(src string, pos diag.SourcePos) (*ast.Placeholder, error) {
	sub := &Parser{lx: lexer.New(p.filename, src), filename: p.filename, nextID: p.nextID}
	if err := sub.advance(); err != nil {
		return nil, err
	}
	ph := &ast.Placeholder{Pos: pos}
	for sub.tok.Kind == lexer.TokIdent || (sub.tok.Kind == lexer.TokKeyword && (sub.tok.Text == "true" || sub.tok.Text == "false")) {
		save := sub.lx.Save()
		savedTok := sub.tok
		name := sub.tok.Text
		if err := sub.advance(); err != nil {
			return nil, err
		}
		if !sub.isSymbol("=") {
			sub.lx.Restore(save)
			sub.tok = savedTok
			break
		}
		if err := sub.advance(); err != nil {
			return nil, err
		}
		lit, err := sub.parseSimpleStringLiteral()
		if err != nil {
			return nil, err
		}
		ph.Options = append(ph.Options, ast.PlaceholderOption{Name: name, Literal: lit})
	}
	e, err := sub.parseExpr()
	if err != nil {
		return nil, err
	}
	ph.Expr = e
	p.nextID = sub.nextID
	return ph, nil
}

// ---- Workflow ----

func (p *Parser) parseWorkflow() (*ast.Workflow, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'workflow'
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	w := &ast.Workflow{Name: name, Pos: pos}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	for !p.isSymbol("}") {
		switch {
		case p.isKeyword("input"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.isSymbol("}") {
				d, err := p.parseDeclStmt()
				if err != nil {
					return nil, err
				}
				w.Inputs = append(w.Inputs, d)
			}
			if err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.isKeyword("output"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("{"); err != nil {
				return nil, err
			}
			for !p.isSymbol("}") {
				d, err := p.parseWorkflowOutputItem()
				if err != nil {
					return nil, err
				}
				w.Outputs = append(w.Outputs, d)
			}
			if err := p.expectSymbol("}"); err != nil {
				return nil, err
			}
		case p.isKeyword("meta"):
			m, err := p.parseMetaBlock()
			if err != nil {
				return nil, err
			}
			w.Meta = m
		case p.isKeyword("parameter_meta"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			m, err := p.parseMetaObjectBody()
			if err != nil {
				return nil, err
			}
			w.ParameterMeta = m
		default:
			n, err := p.parseWorkflowBodyNode()
			if err != nil {
				return nil, err
			}
			w.Body = append(w.Body, n)
		}
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return w, nil
}

// parseWorkflowOutputItem parses one entry of a workflow's output section.
// Most entries are an ordinary `Type name = expr` decl, but draft-2 also
// allows a bare `CallName.*` shorthand that stands for one decl per output
// of that call; pkg/typecheck expands it once the call's callee is
// resolved. Distinguishing the two needs two-token lookahead (ident, then
// either "." or something else), so a normal decl always starts by parsing
// a type, not an identifier on its own.
func (p *Parser) parseWorkflowOutputItem() (*ast.Decl, error) {
	if p.tok.Kind == lexer.TokIdent {
		pos := p.tok.Pos
		save := p.lx.Save()
		savedTok := p.tok
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isSymbol(".") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.isSymbol("*") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				d := &ast.Decl{CallWildcard: name}
				d.ID = p.newID("decl")
				d.Pos = pos
				return d, nil
			}
		}
		p.lx.Restore(save)
		p.tok = savedTok
	}
	return p.parseDeclStmt()
}

func (p *Parser) parseWorkflowBodyNode() (ast.Node, error) {
	switch {
	case p.isKeyword("call"):
		return p.parseCall()
	case p.isKeyword("scatter"):
		return p.parseScatter()
	case p.isKeyword("if"):
		return p.parseConditional()
	default:
		return p.parseDeclStmt()
	}
}

func (p *Parser) parseCall() (*ast.Call, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'call'
		return nil, err
	}
	calleeID, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	c := &ast.Call{CalleeID: calleeID}
	c.ID = p.newID("call")
	c.Pos = pos
	if p.isKeyword("as") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		c.Alias = alias
	}
	for p.isKeyword("after") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		after, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		c.Afters = append(c.Afters, after)
	}
	if p.isSymbol("{") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isKeyword("input") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol(":"); err != nil {
				return nil, err
			}
		}
		for !p.isSymbol("}") {
			iname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			var ie ast.Expr
			if p.isSymbol("=") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				ie, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			} else {
				ie = &ast.Ident{ExprBase: ast.NewExprBase(p.tok.Pos), Name: iname}
			}
			c.Inputs = append(c.Inputs, ast.CallInput{Name: iname, Expr: ie})
			if p.isSymbol(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseDottedName() (string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	for p.isSymbol(".") {
		if err := p.advance(); err != nil {
			return "", err
		}
		part, err := p.expectIdent()
		if err != nil {
			return "", err
		}
		name += "." + part
	}
	return name, nil
}

func (p *Parser) parseScatter() (*ast.Scatter, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'scatter'
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	variable, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	s := &ast.Scatter{Variable: variable, Expr: e}
	s.ID = p.newID("scatter")
	s.Pos = pos
	body, err := p.parseBodyBlock()
	if err != nil {
		return nil, err
	}
	s.Body = body
	return s, nil
}

func (p *Parser) parseConditional() (*ast.Conditional, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil { // 'if'
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	c := &ast.Conditional{Expr: e}
	c.ID = p.newID("if")
	c.Pos = pos
	body, err := p.parseBodyBlock()
	if err != nil {
		return nil, err
	}
	c.Body = body
	return c, nil
}

func (p *Parser) parseBodyBlock() ([]ast.Node, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var nodes []ast.Node
	for !p.isSymbol("}") {
		n, err := p.parseWorkflowBodyNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, p.advance()
}

// ---- Meta blocks ----

func (p *Parser) parseMetaBlock() (*metayaml.Value, error) {
	if err := p.advance(); err != nil { // 'meta'
		return nil, err
	}
	return p.parseMetaObjectBody()
}

// parseMetaObjectBody parses a `{ ... }` block as a raw literal by
// re-lexing its balanced-brace source text and delegating to metayaml.
func (p *Parser) parseMetaObjectBody() (*metayaml.Value, error) {
	if !p.isSymbol("{") {
		return nil, p.errf("expected '{', got %q", p.tok.Text)
	}
	raw, err := p.lx.ScanBalancedBraceBody()
	if err != nil {
		return nil, err
	}
	val, err := metayaml.ParseLiteral("{" + raw + "}")
	if err != nil {
		return nil, err
	}
	return val, p.advance()
}

// ---- String literals ----

func (p *Parser) parseSimpleStringLiteral() (string, error) {
	if !(p.isSymbol(`"`) || p.isSymbol(`'`)) {
		return "", p.errf("expected string literal, got %q", p.tok.Text)
	}
	quote := rune(p.tok.Text[0])
	frags, err := p.lx.LexQuotedString(quote)
	if err != nil {
		return "", err
	}
	var out string
	for _, f := range frags {
		if f.IsPlaceholder {
			return "", p.errf("placeholder not permitted in this string literal")
		}
		out += f.Literal
	}
	return out, p.advance()
}

func (p *Parser) parseStringExprLiteral() (ast.Expr, error) {
	pos := p.tok.Pos
	quote := rune(p.tok.Text[0])
	frags, err := p.lx.LexQuotedString(quote)
	if err != nil {
		return nil, err
	}
	se, err := p.fragmentsToStringExpr(frags)
	if err != nil {
		return nil, err
	}
	se.Pos = pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &se, nil
}

// ---- Expressions (precedence climbing) ----

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseIfExpr() }

func (p *Parser) parseIfExpr() (ast.Expr, error) {
	if p.isKeyword("if") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		thenE, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("else"); err != nil {
			return nil, err
		}
		elseE, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.IfExpr{ExprBase: ast.NewExprBase(pos), Cond: cond, Then: thenE, Else: elseE}, nil
	}
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("||") || p.isKeyword("or") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = newBinary(pos, ast.OpOr, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("&&") || p.isKeyword("and") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = newBinary(pos, ast.OpAnd, left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.isSymbol("!") || p.isKeyword("not") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return newUnary(pos, ast.OpNot, e), nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	ops := map[string]ast.BinaryOp{"==": ast.OpEq, "!=": ast.OpNeq, "<": ast.OpLt, "<=": ast.OpLte, ">": ast.OpGt, ">=": ast.OpGte}
	for {
		op, ok := ops[p.tok.Text]
		if !ok || p.tok.Kind != lexer.TokSymbol {
			return left, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = newBinary(pos, op, left, right)
	}
}

func (p *Parser) parseAddition() (ast.Expr, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("+") || p.isSymbol("-") {
		op := ast.OpAdd
		if p.tok.Text == "-" {
			op = ast.OpSub
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = newBinary(pos, op, left, right)
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	ops := map[string]ast.BinaryOp{"*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod}
	for {
		op, ok := ops[p.tok.Text]
		if !ok || p.tok.Kind != lexer.TokSymbol {
			return left, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = newBinary(pos, op, left, right)
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.isSymbol("-") {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return newUnary(pos, ast.OpNeg, e), nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isSymbol("["):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			e = &ast.IndexExpr{ExprBase: ast.NewExprBase(pos), Target: e, Index: idx}
		case p.isSymbol("."):
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			e = &ast.MemberExpr{ExprBase: ast.NewExprBase(pos), Target: e, Name: name}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.tok.Pos
	switch {
	case p.tok.Kind == lexer.TokInt:
		n, err := strconv.ParseInt(p.tok.Text, 10, 64)
		if err != nil {
			return nil, p.errf("invalid int literal %q", p.tok.Text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.IntLit{ExprBase: ast.NewExprBase(pos), Value: n}, nil
	case p.tok.Kind == lexer.TokFloat:
		f, err := strconv.ParseFloat(p.tok.Text, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", p.tok.Text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.FloatLit{ExprBase: ast.NewExprBase(pos), Value: f}, nil
	case p.isSymbol(`"`) || p.isSymbol(`'`):
		return p.parseStringExprLiteral()
	case p.isKeyword("true"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BoolLit{ExprBase: ast.NewExprBase(pos), Value: true}, nil
	case p.isKeyword("false"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.BoolLit{ExprBase: ast.NewExprBase(pos), Value: false}, nil
	case p.isKeyword("None"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.NullLit{ExprBase: ast.NewExprBase(pos)}, nil
	case p.isSymbol("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			second, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return &ast.PairLit{ExprBase: ast.NewExprBase(pos), Left: first, Right: second}, nil
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return first, nil
	case p.isSymbol("["):
		return p.parseArrayLit(pos)
	case p.isSymbol("{"):
		return p.parseMapLit(pos)
	case p.isKeyword("object"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseObjectLitBody(pos, "")
	case p.tok.Kind == lexer.TokIdent || p.tok.Kind == lexer.TokKeyword:
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isSymbol("(") {
			return p.parseCallArgs(pos, name)
		}
		if p.isSymbol("{") {
			return p.parseObjectLitBody(pos, name)
		}
		return &ast.Ident{ExprBase: ast.NewExprBase(pos), Name: name}, nil
	default:
		return nil, p.errf("unexpected token %q in expression", p.tok.Text)
	}
}

func (p *Parser) parseArrayLit(pos diag.SourcePos) (ast.Expr, error) {
	if err := p.advance(); err != nil { // '['
		return nil, err
	}
	var items []ast.Expr
	for !p.isSymbol("]") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // ']'
		return nil, err
	}
	return &ast.ArrayLit{ExprBase: ast.NewExprBase(pos), Items: items}, nil
}

func (p *Parser) parseMapLit(pos diag.SourcePos) (ast.Expr, error) {
	if err := p.advance(); err != nil { // '{'
		return nil, err
	}
	var entries []ast.MapEntry
	for !p.isSymbol("}") {
		k, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.MapEntry{Key: k, Value: v})
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // '}'
		return nil, err
	}
	return &ast.MapLit{ExprBase: ast.NewExprBase(pos), Entries: entries}, nil
}

func (p *Parser) parseObjectLitBody(pos diag.SourcePos, structName string) (ast.Expr, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var fields []ast.ObjectField
	for !p.isSymbol("}") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.ObjectField{Name: name, Value: v})
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // '}'
		return nil, err
	}
	return &ast.ObjectLit{ExprBase: ast.NewExprBase(pos), StructName: structName, Fields: fields}, nil
}

func (p *Parser) parseCallArgs(pos diag.SourcePos, fn string) (ast.Expr, error) {
	if err := p.advance(); err != nil { // '('
		return nil, err
	}
	var args []ast.Expr
	for !p.isSymbol(")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.isSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // ')'
		return nil, err
	}
	return &ast.CallExpr{ExprBase: ast.NewExprBase(pos), Func: fn, Args: args}, nil
}

func newBinary(pos diag.SourcePos, op ast.BinaryOp, l, r ast.Expr) ast.Expr {
	return &ast.BinaryExpr{ExprBase: ast.NewExprBase(pos), Op: op, Left: l, Right: r}
}

func newUnary(pos diag.SourcePos, op ast.UnaryOp, e ast.Expr) ast.Expr {
	return &ast.UnaryExpr{ExprBase: ast.NewExprBase(pos), Op: op, Expr: e}
}
