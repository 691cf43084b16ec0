package graph

import "nbcollab/internal/shared/observability"

// Prune returns the subgraph induced by every cell node and every section node
// with at least one incident edge. The input graph is left untouched.
func Prune(g *Graph) *Graph {
	out := New()
	pruned := 0
	for _, id := range g.order {
		if id.IsSection() && g.Degree(id) == 0 {
			pruned++
			continue
		}
		n := *g.nodes[id]
		out.insertNode(&n)
	}
	for _, e := range g.edges {
		if !out.HasNode(e.From) || !out.HasNode(e.To) {
			continue
		}
		out.insertEdge(e.From, e.To, e.Weight)
	}
	observability.SectionsPrunedTotal.Add(float64(pruned))
	return out
}
