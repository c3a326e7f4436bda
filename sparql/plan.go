package sparql

import (
	"regexp"
	"sort"
)

// Node is a query plan fragment.
//
// This is a sealed interface: only the node types of this package implement
// it, so rewriters can switch over the concrete types exhaustively.
//
// Node types:
//   - BGP: a block of triple patterns
//   - Join: unordered join of two fragments
//   - Sequence: strict left-to-right evaluation, each step fed by the previous
//   - Union: alternative fragments
//   - Graph: a fragment scoped to a named graph
//   - Service: a fragment delegated to a remote (or local) target
//   - Project: a sub-select keeping the listed variables
//   - Filter: a fragment restricted by a condition expression
//   - Values: an inline table of bindings
type Node interface {
	planNode() // marker method
}

// Triple is one triple pattern. Any position may hold a variable.
type Triple struct {
	S, P, O Term
}

// BGP is a basic graph pattern.
type BGP struct {
	Triples []Triple
}

// Join combines both sides without fixing an evaluation order.
type Join struct {
	Left, Right Node
}

// Sequence evaluates Nodes strictly in order; each node sees the bindings
// produced by its predecessors.
type Sequence struct {
	Nodes []Node
}

// Union yields the rows of both sides.
type Union struct {
	Left, Right Node
}

// Graph scopes Sub to the named graph Name (IRI or variable).
type Graph struct {
	Name Term
	Sub  Node
}

// Service delegates Sub to Target. A silent service degrades to its input
// bindings when the call fails.
type Service struct {
	Target Term
	Silent bool
	Sub    Node
}

// Project is a sub-select.
type Project struct {
	Vars []string
	Sub  Node
}

// Filter restricts Sub by Condition, a SPARQL expression kept as text.
type Filter struct {
	Condition string
	Sub       Node
}

// Values is an inline data block. Rows are aligned with Vars; an unbound
// Term renders as UNDEF.
type Values struct {
	Vars []string
	Rows [][]Term
}

func (*BGP) planNode()      {}
func (*Join) planNode()     {}
func (*Sequence) planNode() {}
func (*Union) planNode()    {}
func (*Graph) planNode()    {}
func (*Service) planNode()  {}
func (*Project) planNode()  {}
func (*Filter) planNode()   {}
func (*Values) planNode()   {}

// Transform rewrites a plan bottom-up. Children are transformed first, a
// shallow copy of the parent is rebuilt from them and handed to fn. The input
// tree is never modified.
func Transform(n Node, fn func(Node) Node) Node {
	if n == nil {
		return nil
	}
	var out Node
	switch v := n.(type) {
	case *BGP:
		cp := *v
		out = &cp
	case *Join:
		out = &Join{Left: Transform(v.Left, fn), Right: Transform(v.Right, fn)}
	case *Sequence:
		nodes := make([]Node, len(v.Nodes))
		for i, c := range v.Nodes {
			nodes[i] = Transform(c, fn)
		}
		out = &Sequence{Nodes: nodes}
	case *Union:
		out = &Union{Left: Transform(v.Left, fn), Right: Transform(v.Right, fn)}
	case *Graph:
		out = &Graph{Name: v.Name, Sub: Transform(v.Sub, fn)}
	case *Service:
		out = &Service{Target: v.Target, Silent: v.Silent, Sub: Transform(v.Sub, fn)}
	case *Project:
		out = &Project{Vars: v.Vars, Sub: Transform(v.Sub, fn)}
	case *Filter:
		out = &Filter{Condition: v.Condition, Sub: Transform(v.Sub, fn)}
	case *Values:
		cp := *v
		out = &cp
	default:
		out = n
	}
	return fn(out)
}

// Walk visits the plan in pre-order. Returning false from fn skips the
// children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range children(n) {
		Walk(c, fn)
	}
}

func children(n Node) []Node {
	switch v := n.(type) {
	case *Join:
		return []Node{v.Left, v.Right}
	case *Sequence:
		return v.Nodes
	case *Union:
		return []Node{v.Left, v.Right}
	case *Graph:
		return []Node{v.Sub}
	case *Service:
		return []Node{v.Sub}
	case *Project:
		return []Node{v.Sub}
	case *Filter:
		return []Node{v.Sub}
	default:
		return nil
	}
}

var exprVarPattern = regexp.MustCompile(`[?$]([A-Za-z_][A-Za-z0-9_]*)`)

// Variables returns the sorted set of variables a fragment mentions: triple
// patterns, graph names, service targets, VALUES columns, filter conditions
// and projections.
func Variables(n Node) []string {
	seen := make(map[string]struct{})
	addTerm := func(t Term) {
		if t.IsVariable() {
			seen[t.Value] = struct{}{}
		}
	}
	Walk(n, func(n Node) bool {
		switch v := n.(type) {
		case *BGP:
			for _, tr := range v.Triples {
				addTerm(tr.S)
				addTerm(tr.P)
				addTerm(tr.O)
			}
		case *Graph:
			addTerm(v.Name)
		case *Service:
			addTerm(v.Target)
		case *Project:
			for _, name := range v.Vars {
				seen[name] = struct{}{}
			}
		case *Filter:
			for _, m := range exprVarPattern.FindAllStringSubmatch(v.Condition, -1) {
				seen[m[1]] = struct{}{}
			}
		case *Values:
			for _, name := range v.Vars {
				seen[name] = struct{}{}
			}
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GraphNames returns the graph name terms of every GRAPH node in the fragment,
// in visiting order.
func GraphNames(n Node) []Term {
	var names []Term
	Walk(n, func(n Node) bool {
		if g, ok := n.(*Graph); ok {
			names = append(names, g.Name)
		}
		return true
	})
	return names
}
