package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
)

// exprText renders e to a stable textual form for digesting (TaskDigest).
// It is not a WDL unparser: output need only be deterministic for
// semantically-identical expressions, not valid or pretty WDL syntax.
func exprText(e ast.Expr) string {
	if e == nil {
		return "<nil>"
	}
	switch n := e.(type) {
	case *ast.Ident:
		return n.Name
	case *ast.IntLit:
		return strconv.FormatInt(n.Value, 10)
	case *ast.FloatLit:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *ast.BoolLit:
		return strconv.FormatBool(n.Value)
	case *ast.NullLit:
		return "None"
	case *ast.StringExpr:
		var b strings.Builder
		b.WriteByte('"')
		for _, part := range n.Parts {
			if part.Placeholder == nil {
				b.WriteString(part.Literal)
				continue
			}
			b.WriteString("~{")
			for _, o := range part.Placeholder.Options {
				fmt.Fprintf(&b, "%s=%q ", o.Name, o.Literal)
			}
			b.WriteString(exprText(part.Placeholder.Expr))
			b.WriteByte('}')
		}
		b.WriteByte('"')
		return b.String()
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %d %s)", exprText(n.Left), n.Op, exprText(n.Right))
	case *ast.UnaryExpr:
		return fmt.Sprintf("(%d %s)", n.Op, exprText(n.Expr))
	case *ast.IfExpr:
		return fmt.Sprintf("(if %s then %s else %s)", exprText(n.Cond), exprText(n.Then), exprText(n.Else))
	case *ast.ArrayLit:
		parts := make([]string, len(n.Items))
		for i, it := range n.Items {
			parts[i] = exprText(it)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case *ast.MapLit:
		parts := make([]string, len(n.Entries))
		for i, ent := range n.Entries {
			parts[i] = exprText(ent.Key) + ":" + exprText(ent.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	case *ast.PairLit:
		return fmt.Sprintf("(%s,%s)", exprText(n.Left), exprText(n.Right))
	case *ast.ObjectLit:
		parts := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			parts[i] = f.Name + ":" + exprText(f.Value)
		}
		return n.StructName + "{" + strings.Join(parts, ",") + "}"
	case *ast.IndexExpr:
		return fmt.Sprintf("%s[%s]", exprText(n.Target), exprText(n.Index))
	case *ast.MemberExpr:
		return exprText(n.Target) + "." + n.Name
	case *ast.CallExpr:
		parts := make([]string, len(n.Args))
		for i, a := range n.Args {
			parts[i] = exprText(a)
		}
		return n.Func + "(" + strings.Join(parts, ",") + ")"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
