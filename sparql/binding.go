package sparql

import (
	"sort"
	"strings"
)

// Binding maps variable names to terms. A Binding is immutable: every
// operation that changes it returns a new value.
type Binding struct {
	vars map[string]Term
}

// NewBinding copies m into a new binding. Unbound terms are skipped.
func NewBinding(m map[string]Term) Binding {
	vars := make(map[string]Term, len(m))
	for k, v := range m {
		if v.IsBound() {
			vars[strings.TrimLeft(k, "?$")] = v
		}
	}
	return Binding{vars: vars}
}

// Get returns the term bound to name.
func (b Binding) Get(name string) (Term, bool) {
	t, ok := b.vars[name]
	return t, ok
}

// Len returns the number of bound variables.
func (b Binding) Len() int { return len(b.vars) }

// Vars returns the bound variable names in sorted order.
func (b Binding) Vars() []string {
	names := make([]string, 0, len(b.vars))
	for k := range b.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the underlying map.
func (b Binding) Map() map[string]Term {
	out := make(map[string]Term, len(b.vars))
	for k, v := range b.vars {
		out[k] = v
	}
	return out
}

// With returns a new binding with name bound to t.
func (b Binding) With(name string, t Term) Binding {
	out := b.Map()
	if t.IsBound() {
		out[name] = t
	} else {
		delete(out, name)
	}
	return Binding{vars: out}
}

// Without returns a new binding with the given variables removed.
func (b Binding) Without(names ...string) Binding {
	out := b.Map()
	for _, n := range names {
		delete(out, n)
	}
	return Binding{vars: out}
}

// Merge returns a new binding holding b plus every variable of other that b
// does not bind. Values already in b are never overwritten.
func (b Binding) Merge(other Binding) Binding {
	out := b.Map()
	for k, v := range other.vars {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return Binding{vars: out}
}

// Project keeps only the listed variables.
func (b Binding) Project(vars []string) Binding {
	out := make(map[string]Term, len(vars))
	for _, v := range vars {
		if t, ok := b.vars[v]; ok {
			out[v] = t
		}
	}
	return Binding{vars: out}
}

// Resolve substitutes a variable term by its bound value. Non-variable terms
// are returned as is. The boolean is false for an unbound variable.
func (b Binding) Resolve(t Term) (Term, bool) {
	if !t.IsVariable() {
		return t, t.IsBound()
	}
	v, ok := b.vars[t.Value]
	return v, ok
}

// Key renders the values of vars into a canonical string. Two bindings with
// equal keys agree on every listed variable (unbound counts as a value).
func (b Binding) Key(vars []string) string {
	var sb strings.Builder
	for i, v := range vars {
		if i > 0 {
			sb.WriteByte(0)
		}
		if t, ok := b.vars[v]; ok {
			sb.WriteString(t.key())
		}
	}
	return sb.String()
}

// Equal reports whether both bindings bind the same variables to the same terms.
func (b Binding) Equal(other Binding) bool {
	if len(b.vars) != len(other.vars) {
		return false
	}
	for k, v := range b.vars {
		if o, ok := other.vars[k]; !ok || o != v {
			return false
		}
	}
	return true
}

// String renders the binding for logs, e.g. "{?a=<x> ?b="y"}".
func (b Binding) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range b.Vars() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("?" + k + "=" + b.vars[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
