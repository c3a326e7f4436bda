package federation

import "github.com/catenax-ng/product-agents-edc-sub000/sparql"

// Optimize linearizes joins around remote calls. A Join whose right side is
// a SERVICE (or a UNION containing one), or whose left side is a SERVICE or
// GRAPH, becomes a Sequence so the left side's bindings drive the call.
// Nested sequences are flattened. The input plan is not modified.
func Optimize(n sparql.Node) sparql.Node {
	return sparql.Transform(n, func(n sparql.Node) sparql.Node {
		j, ok := n.(*sparql.Join)
		if !ok {
			return n
		}
		if !drivesCall(j.Right) && !scopedLeft(j.Left) {
			return n
		}
		var nodes []sparql.Node
		for _, side := range []sparql.Node{j.Left, j.Right} {
			if seq, ok := side.(*sparql.Sequence); ok {
				nodes = append(nodes, seq.Nodes...)
				continue
			}
			nodes = append(nodes, side)
		}
		return &sparql.Sequence{Nodes: nodes}
	})
}

// drivesCall reports whether n needs input bindings to call a service.
func drivesCall(n sparql.Node) bool {
	switch v := n.(type) {
	case *sparql.Service:
		return true
	case *sparql.Union:
		return containsService(v)
	default:
		return false
	}
}

func scopedLeft(n sparql.Node) bool {
	switch n.(type) {
	case *sparql.Service, *sparql.Graph:
		return true
	default:
		return false
	}
}

func containsService(n sparql.Node) bool {
	found := false
	sparql.Walk(n, func(n sparql.Node) bool {
		if _, ok := n.(*sparql.Service); ok {
			found = true
		}
		return !found
	})
	return found
}
