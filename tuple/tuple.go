// Package tuple provides multi-valued variable bindings used for skill
// parameters and query-variable substitution.
package tuple

import (
	"sort"
	"strings"
)

// Tuple is an immutable variable to value mapping.
type Tuple struct {
	vars map[string]string
}

// New copies m into a tuple.
func New(m map[string]string) Tuple {
	vars := make(map[string]string, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return Tuple{vars: vars}
}

// Get returns the value bound to name.
func (t Tuple) Get(name string) (string, bool) {
	v, ok := t.vars[name]
	return v, ok
}

// Len returns the number of bound variables.
func (t Tuple) Len() int { return len(t.vars) }

// Vars returns the variables in sorted order.
func (t Tuple) Vars() []string {
	out := make([]string, 0, len(t.vars))
	for k := range t.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the tuple's content.
func (t Tuple) Map() map[string]string {
	out := make(map[string]string, len(t.vars))
	for k, v := range t.vars {
		out[k] = v
	}
	return out
}

// Merge returns a new tuple with the variables of both. Variables bound in
// t keep t's value.
func (t Tuple) Merge(other Tuple) Tuple {
	out := t.Map()
	for k, v := range other.vars {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return Tuple{vars: out}
}

// String renders the tuple as "a=1,b=2" in variable order.
func (t Tuple) String() string {
	parts := make([]string, 0, len(t.vars))
	for _, k := range t.Vars() {
		parts = append(parts, k+"="+t.vars[k])
	}
	return strings.Join(parts, ",")
}
