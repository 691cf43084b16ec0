package formats

import (
	"fmt"
	"strings"
	"unicode"

	"nbcollab/internal/engine/graph"
)

// sectionName resolves a section id to its title, falling back to the id.
func sectionName(g *graph.Graph, id graph.NodeID) string {
	if g != nil {
		if n, ok := g.Node(id); ok && n.Section != "" {
			return n.Section
		}
	}
	return id.String()
}

func sectionNames(g *graph.Graph, ids []graph.NodeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, sectionName(g, id))
	}
	return out
}

func sectionLabel(name string, level, cells int) string {
	parts := []string{name}
	if level > 0 {
		parts = append(parts, fmt.Sprintf("(h%d, %d cells)", level, cells))
	} else {
		parts = append(parts, fmt.Sprintf("(%d cells)", cells))
	}
	return strings.Join(parts, "\\n")
}

func sanitizeID(name string) string {
	if name == "" {
		return "s"
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	out := b.String()
	first := rune(out[0])
	if unicode.IsDigit(first) {
		return "s_" + out
	}
	return out
}

func makeIDs(names []string) map[string]string {
	ids := make(map[string]string, len(names))
	used := make(map[string]int, len(names))
	for _, name := range names {
		base := sanitizeID(name)
		idx := used[base]
		used[base] = idx + 1
		if idx == 0 {
			ids[name] = base
			continue
		}
		ids[name] = fmt.Sprintf("%s_%d", base, idx+1)
	}
	return ids
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
