package typecheck

import "github.com/lemonberrylabs/wdlcore/pkg/ast"

// exprIdents collects every bare Ident.Name referenced anywhere within
// expr; a decl's dependency set is the union of Ident nodes in its
// expression subtree.
func exprIdents(e ast.Expr) []string {
	var out []string
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		if e == nil {
			return
		}
		switch n := e.(type) {
		case *ast.Ident:
			out = append(out, n.Name)
		case *ast.BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		case *ast.UnaryExpr:
			walk(n.Expr)
		case *ast.IfExpr:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		case *ast.ArrayLit:
			for _, it := range n.Items {
				walk(it)
			}
		case *ast.MapLit:
			for _, ent := range n.Entries {
				walk(ent.Key)
				walk(ent.Value)
			}
		case *ast.PairLit:
			walk(n.Left)
			walk(n.Right)
		case *ast.ObjectLit:
			for _, f := range n.Fields {
				walk(f.Value)
			}
		case *ast.IndexExpr:
			walk(n.Target)
			walk(n.Index)
		case *ast.MemberExpr:
			walk(n.Target)
		case *ast.CallExpr:
			for _, a := range n.Args {
				walk(a)
			}
		case *ast.StringExpr:
			for _, part := range n.Parts {
				if part.Placeholder != nil {
					walk(part.Placeholder.Expr)
				}
			}
		}
	}
	walk(e)
	return out
}

// topoSortDecls orders decls so that every decl's dependencies (per
// exprIdents) precede it, returning the remaining unorderable decl names (a
// nonempty result indicates a cycle, reported as CircularDependencies by the
// caller).
func topoSortDecls(decls []*ast.Decl) (ordered []*ast.Decl, cyclic []string) {
	byName := make(map[string]*ast.Decl, len(decls))
	for _, d := range decls {
		byName[d.Name] = d
	}
	indeg := make(map[string]int, len(decls))
	dependents := make(map[string][]string)
	for _, d := range decls {
		indeg[d.Name] = 0
	}
	for _, d := range decls {
		if d.Expr == nil {
			continue
		}
		seen := map[string]bool{}
		for _, name := range exprIdents(d.Expr) {
			if name == d.Name {
				continue
			}
			if _, ok := byName[name]; !ok {
				continue // not a sibling decl (workflow input, stdlib call, etc.)
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			indeg[d.Name]++
			dependents[name] = append(dependents[name], d.Name)
		}
	}

	var ready []string
	for _, d := range decls {
		if indeg[d.Name] == 0 {
			ready = append(ready, d.Name)
		}
	}
	visited := map[string]bool{}
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		ordered = append(ordered, byName[name])
		for _, dep := range dependents[name] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	for _, d := range decls {
		if !visited[d.Name] {
			cyclic = append(cyclic, d.Name)
		}
	}
	return ordered, cyclic
}
