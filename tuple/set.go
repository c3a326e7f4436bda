package tuple

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/catenax-ng/product-agents-edc-sub000/sparql"
)

// ErrVariableConflict is returned when a variable would be bound both in a
// set and in one of its nested children.
var ErrVariableConflict = errors.New("variable bound in outer and nested tuple set")

// ErrSyntax is returned by Parse for malformed parameter text.
var ErrSyntax = errors.New("malformed tuple parameters")

// Set holds multi-valued bindings plus nested child sets. Its explosion is
// the cartesian product of the outer values combined with the union of the
// children's explosions.
type Set struct {
	bindings map[string][]string
	children []*Set
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{bindings: make(map[string][]string)}
}

// Add binds one more value to variable. Duplicate values are ignored.
func (s *Set) Add(variable, value string) error {
	for _, c := range s.children {
		if c.binds(variable) {
			return fmt.Errorf("%w: %s", ErrVariableConflict, variable)
		}
	}
	for _, v := range s.bindings[variable] {
		if v == value {
			return nil
		}
	}
	s.bindings[variable] = append(s.bindings[variable], value)
	return nil
}

// AddChild nests child. It fails if child, at any depth, binds a variable
// that s binds directly.
func (s *Set) AddChild(child *Set) error {
	for variable := range s.bindings {
		if child.binds(variable) {
			return fmt.Errorf("%w: %s", ErrVariableConflict, variable)
		}
	}
	s.children = append(s.children, child)
	return nil
}

func (s *Set) binds(variable string) bool {
	if _, ok := s.bindings[variable]; ok {
		return true
	}
	for _, c := range s.children {
		if c.binds(variable) {
			return true
		}
	}
	return false
}

// Children returns the nested sets.
func (s *Set) Children() []*Set { return s.children }

// Values returns the values bound directly to variable.
func (s *Set) Values(variable string) []string {
	return append([]string(nil), s.bindings[variable]...)
}

// Variables returns every variable of the set and its children, sorted.
func (s *Set) Variables() []string {
	seen := make(map[string]struct{})
	s.collect(seen)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Set) collect(seen map[string]struct{}) {
	for k := range s.bindings {
		seen[k] = struct{}{}
	}
	for _, c := range s.children {
		c.collect(seen)
	}
}

func (s *Set) ownVariables() []string {
	out := make([]string, 0, len(s.bindings))
	for k := range s.bindings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Explode materializes the set into tuples. An empty set explodes into a
// single empty tuple.
func (s *Set) Explode() []Tuple {
	outer := []map[string]string{{}}
	for _, variable := range s.ownVariables() {
		values := s.bindings[variable]
		next := make([]map[string]string, 0, len(outer)*len(values))
		for _, partial := range outer {
			for _, v := range values {
				m := make(map[string]string, len(partial)+1)
				for k, pv := range partial {
					m[k] = pv
				}
				m[variable] = v
				next = append(next, m)
			}
		}
		outer = next
	}

	if len(s.children) == 0 {
		out := make([]Tuple, len(outer))
		for i, m := range outer {
			out[i] = Tuple{vars: m}
		}
		return out
	}

	var inner []Tuple
	for _, c := range s.children {
		inner = append(inner, c.Explode()...)
	}
	out := make([]Tuple, 0, len(outer)*len(inner))
	for _, m := range outer {
		base := Tuple{vars: m}
		for _, in := range inner {
			out = append(out, base.Merge(in))
		}
	}
	return out
}

// Encode renders the set as parameter text, the inverse of Parse. Outer
// variables come first in sorted order, then each child in parentheses.
func (s *Set) Encode() string {
	var parts []string
	for _, variable := range s.ownVariables() {
		for _, v := range s.bindings[variable] {
			parts = append(parts, url.QueryEscape(variable)+"="+url.QueryEscape(v))
		}
	}
	for _, c := range s.children {
		parts = append(parts, "("+c.Encode()+")")
	}
	return strings.Join(parts, "&")
}

// Parse reads parameter text such as "a=1&a=2&(b=3&c=4)&(b=5)".
// Parenthesized groups become nested child sets; keys and values are
// URL-unescaped and a leading '?' on a key is dropped.
func Parse(raw string) (*Set, error) {
	s := NewSet()
	segments, err := splitTopLevel(raw)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "(") {
			if !strings.HasSuffix(seg, ")") {
				return nil, fmt.Errorf("%w: unterminated group %q", ErrSyntax, seg)
			}
			child, err := Parse(seg[1 : len(seg)-1])
			if err != nil {
				return nil, err
			}
			if err := s.AddChild(child); err != nil {
				return nil, err
			}
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		if key, err = url.QueryUnescape(key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		key = strings.TrimPrefix(key, "?")
		if key == "" {
			return nil, fmt.Errorf("%w: empty variable in %q", ErrSyntax, seg)
		}
		if value, err = url.QueryUnescape(value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		if err := s.Add(key, value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func splitTopLevel(raw string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ')' at %d", ErrSyntax, i)
			}
		case '&':
			if depth == 0 {
				out = append(out, raw[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '('", ErrSyntax)
	}
	return append(out, raw[start:]), nil
}

// FromBindings builds a set with one child per row, holding the row's
// values for vars (all of the row's variables when vars is empty). Plain
// literals are written as their raw value, other terms in SPARQL syntax.
func FromBindings(rows []sparql.Binding, vars []string) *Set {
	s := NewSet()
	for _, row := range rows {
		names := vars
		if len(names) == 0 {
			names = row.Vars()
		}
		child := NewSet()
		for _, name := range names {
			t, ok := row.Get(name)
			if !ok {
				continue
			}
			_ = child.Add(name, TermValue(t))
		}
		// the outer set binds nothing, so AddChild cannot conflict
		_ = s.AddChild(child)
	}
	return s
}

// TermValue renders a term as a parameter value.
func TermValue(t sparql.Term) string {
	if t.Kind == sparql.KindLiteral && t.Datatype == "" && t.Lang == "" {
		return t.Value
	}
	return t.String()
}
