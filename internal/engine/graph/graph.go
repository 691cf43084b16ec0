package graph

import (
	"nbcollab/internal/shared/observability"
)

// Graph is the notebook dependency graph. It is built once and read-only
// afterwards, so it carries no lock.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID

	edges []*Edge
	out   map[NodeID]map[NodeID]*Edge
	in    map[NodeID]map[NodeID]*Edge

	sectionsByName map[string]NodeID
	cellsByID      map[string]NodeID
}

func New() *Graph {
	return &Graph{
		nodes:          make(map[NodeID]*Node),
		out:            make(map[NodeID]map[NodeID]*Edge),
		in:             make(map[NodeID]map[NodeID]*Edge),
		sectionsByName: make(map[string]NodeID),
		cellsByID:      make(map[string]NodeID),
	}
}

func (g *Graph) insertNode(n *Node) {
	if _, exists := g.nodes[n.ID]; exists {
		return
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)

	if n.ID.IsSection() {
		if _, taken := g.sectionsByName[n.Section]; !taken {
			g.sectionsByName[n.Section] = n.ID
		}
	} else if n.CellID != "" {
		g.cellsByID[n.CellID] = n.ID
	}
}

// insertEdge adds a directed edge and reports whether it was new.
func (g *Graph) insertEdge(from, to NodeID, weight int) (*Edge, bool) {
	if e, ok := g.out[from][to]; ok {
		return e, false
	}
	e := &Edge{From: from, To: to, Weight: weight}
	if g.out[from] == nil {
		g.out[from] = make(map[NodeID]*Edge)
	}
	if g.in[to] == nil {
		g.in[to] = make(map[NodeID]*Edge)
	}
	g.out[from][to] = e
	g.in[to][from] = e
	g.edges = append(g.edges, e)
	return e, true
}

func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) Edge(from, to NodeID) (*Edge, bool) {
	e, ok := g.out[from][to]
	return e, ok
}

func (g *Graph) CellNodes() []*Node {
	var out []*Node
	for _, id := range g.order {
		if id.IsCell() {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

func (g *Graph) SectionNodes() []*Node {
	var out []*Node
	for _, id := range g.order {
		if id.IsSection() {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// CellEdges returns the cell-to-cell dependency edges.
func (g *Graph) CellEdges() []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From.IsCell() {
			out = append(out, e)
		}
	}
	return out
}

// SectionEdges returns the aggregated section-to-section edges.
func (g *Graph) SectionEdges() []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From.IsSection() {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) Successors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.out[id]))
	for to := range g.out[id] {
		out = append(out, to)
	}
	sortIDs(out)
	return out
}

func (g *Graph) Predecessors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.in[id]))
	for from := range g.in[id] {
		out = append(out, from)
	}
	sortIDs(out)
	return out
}

// Degree is the number of incident edges, in and out.
func (g *Graph) Degree(id NodeID) int {
	return len(g.in[id]) + len(g.out[id])
}

// SectionByName resolves a section title to its node.
func (g *Graph) SectionByName(name string) (NodeID, bool) {
	id, ok := g.sectionsByName[name]
	return id, ok
}

// CellByExternalID resolves a notebook cell id to its cell node.
func (g *Graph) CellByExternalID(cellID string) (*Node, bool) {
	id, ok := g.cellsByID[cellID]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// SectionIndex returns a copy of the section name to node index.
func (g *Graph) SectionIndex() map[string]NodeID {
	out := make(map[string]NodeID, len(g.sectionsByName))
	for name, id := range g.sectionsByName {
		out[name] = id
	}
	return out
}

func (g *Graph) publishMetrics() {
	cells, sections := 0, 0
	for _, id := range g.order {
		if id.IsCell() {
			cells++
		} else {
			sections++
		}
	}
	observability.GraphNodes.WithLabelValues("cell").Set(float64(cells))
	observability.GraphNodes.WithLabelValues("section").Set(float64(sections))
	observability.GraphEdges.WithLabelValues("cell").Set(float64(len(g.CellEdges())))
	observability.GraphEdges.WithLabelValues("section").Set(float64(len(g.SectionEdges())))
}
