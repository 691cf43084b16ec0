package graph

import (
	"fmt"
	"sort"
)

// NodeKind separates the two vertex namespaces of the dependency graph.
type NodeKind uint8

const (
	KindCell NodeKind = iota
	KindSection
	KindStart
)

func (k NodeKind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindSection:
		return "section"
	case KindStart:
		return "start"
	}
	return "unknown"
}

func parseNodeKind(value string) (NodeKind, bool) {
	switch value {
	case "cell":
		return KindCell, true
	case "section":
		return KindSection, true
	case "start":
		return KindStart, true
	}
	return 0, false
}

// NodeID identifies a vertex. Cell nodes carry the ordinal of their code cell,
// section nodes the ordinal of the markdown cell that introduced the heading.
// The start sentinel has no index.
type NodeID struct {
	Kind  NodeKind
	Index int
}

// StartID is the synthetic section preceding the first heading.
var StartID = NodeID{Kind: KindStart}

const StartSection = "<start>"

func CellID(index int) NodeID    { return NodeID{Kind: KindCell, Index: index} }
func SectionID(index int) NodeID { return NodeID{Kind: KindSection, Index: index} }

func (id NodeID) IsCell() bool    { return id.Kind == KindCell }
func (id NodeID) IsSection() bool { return id.Kind == KindSection || id.Kind == KindStart }

func (id NodeID) String() string {
	switch id.Kind {
	case KindCell:
		return fmt.Sprintf("cell:%d", id.Index)
	case KindSection:
		return fmt.Sprintf("section:%d", id.Index)
	case KindStart:
		return "section:start"
	}
	return "unknown"
}

// Less orders cells before sections, the start sentinel before every heading,
// and same-kind nodes by notebook position.
func (id NodeID) Less(other NodeID) bool {
	if id.IsCell() != other.IsCell() {
		return id.IsCell()
	}
	if id.Kind != other.Kind {
		return id.Kind == KindStart
	}
	return id.Index < other.Index
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Node is a vertex of the dependency graph.
type Node struct {
	ID    NodeID
	Label string
	// Section is the section name; for section nodes it equals the title.
	Section string
	Level   int
	// CellID and SectionID are only set on cell nodes.
	CellID    string
	SectionID NodeID
}

// Edge is either a cell dependency (Weight 0) or an aggregated section
// dependency whose Weight counts the crossing cell dependencies.
type Edge struct {
	From   NodeID
	To     NodeID
	Weight int
}
