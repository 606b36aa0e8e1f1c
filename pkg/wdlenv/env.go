// Package wdlenv implements Env.Bindings[T]: a persistent, immutable,
// namespaced singly-linked binding stack. Every operation returns a new
// Bindings value; nothing is mutated in place, so a Bindings can be shared
// freely across goroutines.
package wdlenv

import "strings"

// Binding pairs a (possibly dot-namespaced) name with a value and optional
// side info (e.g. a source position or AST node reference).
type Binding[T any] struct {
	Name  string
	Value T
	Info  any
}

type frameKind int

const (
	frameBinding frameKind = iota
	frameEmptyNamespace
)

// Bindings is a persistent singly-linked stack of binding and
// empty-namespace frames. The zero value is a valid empty stack.
type Bindings[T any] struct {
	kind      frameKind
	binding   *Binding[T]
	namespace string // for frameEmptyNamespace, always ends in "."
	next      *Bindings[T]
}

// Bind returns a new stack with one binding frame prepended. Shadowing is
// allowed: resolve/iterate see the newest binding for a name first.
func Bind[T any](rest *Bindings[T], name string, value T, info any) *Bindings[T] {
	return &Bindings[T]{
		kind:    frameBinding,
		binding: &Binding[T]{Name: name, Value: value, Info: info},
		next:    rest,
	}
}

// WithEmptyNamespace returns a new stack with an empty-namespace marker
// frame prepended, so that the namespace ns ("a." style) is considered to
// exist even if no bindings are ever added under it.
func WithEmptyNamespace[T any](rest *Bindings[T], ns string) *Bindings[T] {
	ns = normalizeNamespace(ns)
	return &Bindings[T]{kind: frameEmptyNamespace, namespace: ns, next: rest}
}

func normalizeNamespace(ns string) string {
	if ns == "" || strings.HasSuffix(ns, ".") {
		return ns
	}
	return ns + "."
}

// IsEmpty reports whether the stack has no frames at all.
func (b *Bindings[T]) IsEmpty() bool { return b == nil }

// ResolveBinding returns the full Binding (value + info) for name, newest
// frame wins.
func (b *Bindings[T]) ResolveBinding(name string) (Binding[T], bool) {
	for cur := b; cur != nil; cur = cur.next {
		if cur.kind == frameBinding && cur.binding.Name == name {
			return *cur.binding, true
		}
	}
	var zero Binding[T]
	return zero, false
}

// Resolve returns just the value for name.
func (b *Bindings[T]) Resolve(name string) (T, bool) {
	bind, ok := b.ResolveBinding(name)
	return bind.Value, ok
}

// HasBinding reports whether name is bound anywhere in the stack.
func (b *Bindings[T]) HasBinding(name string) bool {
	_, ok := b.ResolveBinding(name)
	return ok
}

// Each yields (name, binding) pairs newest-first, skipping names already
// seen (shadowing hides earlier bindings).
func (b *Bindings[T]) Each(yield func(name string, bind Binding[T]) bool) {
	seen := map[string]bool{}
	for cur := b; cur != nil; cur = cur.next {
		if cur.kind != frameBinding {
			continue
		}
		if seen[cur.binding.Name] {
			continue
		}
		seen[cur.binding.Name] = true
		if !yield(cur.binding.Name, *cur.binding) {
			return
		}
	}
}

// Len counts distinct (unshadowed) bindings.
func (b *Bindings[T]) Len() int {
	n := 0
	b.Each(func(string, Binding[T]) bool { n++; return true })
	return n
}

// Bool reports whether there is at least one binding
// (empty-namespace-only stacks count as empty).
func (b *Bindings[T]) Bool() bool { return b.Len() > 0 }

// Map returns a new stack with f applied to every (name, binding), in the
// same relative order (newest-first structurally, since Map rebuilds from
// oldest to newest to preserve stack order semantics).
func (b *Bindings[T]) Map(f func(Binding[T]) Binding[T]) *Bindings[T] {
	frames := b.collectFrames()
	var out *Bindings[T]
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		if fr.kind == frameBinding {
			nb := f(*fr.binding)
			out = Bind(out, nb.Name, nb.Value, nb.Info)
		} else {
			out = WithEmptyNamespace(out, fr.namespace)
		}
	}
	return out
}

// Filter returns a new stack containing only bindings for which p returns
// true, preserving relative order and empty-namespace markers.
func (b *Bindings[T]) Filter(p func(Binding[T]) bool) *Bindings[T] {
	frames := b.collectFrames()
	var out *Bindings[T]
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		if fr.kind == frameBinding {
			if p(*fr.binding) {
				out = Bind(out, fr.binding.Name, fr.binding.Value, fr.binding.Info)
			}
		} else {
			out = WithEmptyNamespace(out, fr.namespace)
		}
	}
	return out
}

// Subtract returns a new stack with every name present in rhs removed.
func (b *Bindings[T]) Subtract(rhs *Bindings[T]) *Bindings[T] {
	return b.Filter(func(bind Binding[T]) bool { return !rhs.HasBinding(bind.Name) })
}

func (b *Bindings[T]) collectFrames() []*Bindings[T] {
	var frames []*Bindings[T]
	for cur := b; cur != nil; cur = cur.next {
		frames = append(frames, cur)
	}
	return frames
}

// Namespaces returns the set of namespace prefixes implied by bound names
// (a name "a.b.c" implies namespaces "a." and "a.b.") plus any explicit
// WithEmptyNamespace markers.
func (b *Bindings[T]) Namespaces() []string {
	seen := map[string]bool{}
	var out []string
	add := func(ns string) {
		if ns != "" && !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	for cur := b; cur != nil; cur = cur.next {
		switch cur.kind {
		case frameEmptyNamespace:
			add(cur.namespace)
		case frameBinding:
			parts := strings.Split(cur.binding.Name, ".")
			for i := 1; i < len(parts); i++ {
				add(strings.Join(parts[:i], ".") + ".")
			}
		}
	}
	return out
}

// HasNamespace reports whether ns (normalized to end in ".") is among
// Namespaces().
func (b *Bindings[T]) HasNamespace(ns string) bool {
	ns = normalizeNamespace(ns)
	for _, n := range b.Namespaces() {
		if n == ns {
			return true
		}
	}
	return false
}

// EnterNamespace returns a view containing only bindings under ns, with the
// namespace prefix stripped from each name.
func (b *Bindings[T]) EnterNamespace(ns string) *Bindings[T] {
	ns = normalizeNamespace(ns)
	frames := b.collectFrames()
	var out *Bindings[T]
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		if fr.kind == frameBinding && strings.HasPrefix(fr.binding.Name, ns) {
			stripped := strings.TrimPrefix(fr.binding.Name, ns)
			out = Bind(out, stripped, fr.binding.Value, fr.binding.Info)
		}
	}
	return out
}

// WrapNamespace returns a new stack with every name prefixed by ns.
func (b *Bindings[T]) WrapNamespace(ns string) *Bindings[T] {
	ns = normalizeNamespace(ns)
	frames := b.collectFrames()
	var out *Bindings[T]
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		if fr.kind == frameBinding {
			out = Bind(out, ns+fr.binding.Name, fr.binding.Value, fr.binding.Info)
		} else {
			out = WithEmptyNamespace(out, ns+fr.namespace)
		}
	}
	return out
}

// Merge concatenates bindings newest-first: lhs's bindings shadow rhs's on
// name collision (first-bind-wins).
func Merge[T any](lhs, rhs *Bindings[T]) *Bindings[T] {
	if lhs == nil {
		return rhs
	}
	frames := lhs.collectFrames()
	out := rhs
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		if fr.kind == frameBinding {
			out = Bind(out, fr.binding.Name, fr.binding.Value, fr.binding.Info)
		} else {
			out = WithEmptyNamespace(out, fr.namespace)
		}
	}
	return out
}

// MergeAll left-folds Merge across a slice, first entries taking priority
// over later ones on collision (first-bind-wins).
func MergeAll[T any](stacks ...*Bindings[T]) *Bindings[T] {
	var out *Bindings[T]
	for i := len(stacks) - 1; i >= 0; i-- {
		out = Merge(stacks[i], out)
	}
	return out
}
