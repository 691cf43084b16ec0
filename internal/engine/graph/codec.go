package graph

import (
	"fmt"

	"nbcollab/internal/core/errors"

	"github.com/bytedance/sonic"
)

// LegacySectionOffset is the integer key base for section nodes in the
// node-link document: a section introduced by markdown cell i is keyed
// LegacySectionOffset-i and the start sentinel LegacySectionOffset+1. Cell
// nodes are keyed by their index. The offset only exists on the wire.
const LegacySectionOffset = 4096

// Key returns the integer node key used in serialized graphs.
func (id NodeID) Key() int {
	switch id.Kind {
	case KindSection:
		return LegacySectionOffset - id.Index
	case KindStart:
		return LegacySectionOffset + 1
	}
	return id.Index
}

func idFromKey(kind NodeKind, key int) NodeID {
	switch kind {
	case KindSection:
		return SectionID(LegacySectionOffset - key)
	case KindStart:
		return StartID
	}
	return CellID(key)
}

type nodeLinkDocument struct {
	Directed   bool           `json:"directed"`
	Multigraph bool           `json:"multigraph"`
	Graph      map[string]any `json:"graph"`
	Nodes      []nodeLinkNode `json:"nodes"`
	Edges      []nodeLinkEdge `json:"edges"`
}

type nodeLinkNode struct {
	ID          int    `json:"id"`
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	Part        string `json:"part"`
	Level       int    `json:"level"`
	CellID      string `json:"cell_id,omitempty"`
	SectionKey  *int   `json:"section_key,omitempty"`
	SectionKind string `json:"section_kind,omitempty"`
}

type nodeLinkEdge struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Weight int `json:"weight,omitempty"`
}

// MarshalJSON encodes the graph as a node-link document.
func (g *Graph) MarshalJSON() ([]byte, error) {
	doc := nodeLinkDocument{
		Directed: true,
		Graph:    map[string]any{},
		Nodes:    make([]nodeLinkNode, 0, len(g.order)),
		Edges:    make([]nodeLinkEdge, 0, len(g.edges)),
	}
	for _, id := range g.order {
		n := g.nodes[id]
		node := nodeLinkNode{
			ID:     id.Key(),
			Kind:   id.Kind.String(),
			Label:  n.Label,
			Part:   n.Section,
			Level:  n.Level,
			CellID: n.CellID,
		}
		if id.IsCell() {
			key := n.SectionID.Key()
			node.SectionKey = &key
			node.SectionKind = n.SectionID.Kind.String()
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, nodeLinkEdge{Source: e.From.Key(), Target: e.To.Key(), Weight: e.Weight})
	}
	return sonic.ConfigStd.MarshalIndent(doc, "", "  ")
}

// Decode parses a node-link document produced by MarshalJSON.
func Decode(data []byte) (*Graph, error) {
	var doc nodeLinkDocument
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "decode graph")
	}

	g := New()
	byKey := make(map[int]NodeID, len(doc.Nodes))
	for _, raw := range doc.Nodes {
		kind, ok := parseNodeKind(raw.Kind)
		if !ok {
			return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("unknown node kind %q", raw.Kind))
		}
		id := idFromKey(kind, raw.ID)
		n := &Node{
			ID:      id,
			Label:   raw.Label,
			Section: raw.Part,
			Level:   raw.Level,
			CellID:  raw.CellID,
		}
		if id.IsCell() && raw.SectionKey != nil {
			if sk, ok := parseNodeKind(raw.SectionKind); ok {
				n.SectionID = idFromKey(sk, *raw.SectionKey)
			}
		}
		if _, dup := byKey[raw.ID]; dup {
			return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("duplicate node key %d", raw.ID))
		}
		byKey[raw.ID] = id
		g.insertNode(n)
	}

	for _, raw := range doc.Edges {
		from, okFrom := byKey[raw.Source]
		to, okTo := byKey[raw.Target]
		if !okFrom || !okTo {
			return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("edge %d->%d references unknown node", raw.Source, raw.Target))
		}
		g.insertEdge(from, to, raw.Weight)
	}
	return g, nil
}
