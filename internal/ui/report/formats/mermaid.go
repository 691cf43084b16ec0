package formats

import (
	"fmt"
	"strings"

	"nbcollab/internal/engine/graph"
)

// MermaidGenerator renders the section graph as a flowchart with one subgraph
// per schedule level.
type MermaidGenerator struct {
	graph    *graph.Graph
	schedule []graph.Level
}

func NewMermaidGenerator(g *graph.Graph, schedule []graph.Level) *MermaidGenerator {
	return &MermaidGenerator{graph: g, schedule: schedule}
}

func (m *MermaidGenerator) Generate() (string, error) {
	if m.graph == nil {
		return "", fmt.Errorf("mermaid: graph is required")
	}

	var b strings.Builder
	b.WriteString("%%{init: {'theme': 'base', 'flowchart': {'nodeSpacing': 60, 'rankSpacing': 90, 'curve': 'basis'}}}%%\n")
	b.WriteString("flowchart LR\n")

	sections := m.graph.SectionNodes()
	keys := make([]string, 0, len(sections))
	for _, n := range sections {
		keys = append(keys, n.ID.String())
	}
	ids := makeIDs(keys)

	cells := make(map[graph.NodeID]int, len(sections))
	for _, c := range m.graph.CellNodes() {
		cells[c.SectionID]++
	}

	for i, level := range m.schedule {
		b.WriteString(fmt.Sprintf("  subgraph level_%d[\"Level %d\"]\n", i, i))
		for _, id := range level {
			n, ok := m.graph.Node(id)
			if !ok {
				continue
			}
			b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", ids[id.String()], escapeLabel(sectionLabel(n.Section, n.Level, cells[id]))))
		}
		b.WriteString("  end\n")
	}

	for _, e := range m.graph.SectionEdges() {
		from, okFrom := ids[e.From.String()]
		to, okTo := ids[e.To.String()]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -->|%d| %s\n", from, e.Weight, to))
	}

	return b.String(), nil
}
