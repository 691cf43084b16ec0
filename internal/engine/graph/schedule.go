package graph

// Level is a set of sections that can be worked on at the same time.
type Level []NodeID

// IdealSchedule layers the section nodes with Kahn's algorithm over the
// section-to-section edges only. Sections without incoming section edges form
// level 0; each following level holds the sections whose last dependency was
// released by the previous one. Within a level sections keep notebook order.
//
// A repeated heading can close a loop between sections. When the layering
// stalls on one, the earliest unscheduled section is released on its own
// level, so every section is scheduled exactly once.
func IdealSchedule(g *Graph) []Level {
	sections := g.SectionNodes()
	inDegree := make(map[NodeID]int, len(sections))
	for _, n := range sections {
		inDegree[n.ID] = 0
		for _, pred := range g.Predecessors(n.ID) {
			if pred.IsSection() {
				inDegree[n.ID]++
			}
		}
	}

	var frontier Level
	for _, n := range sections {
		if inDegree[n.ID] == 0 {
			frontier = append(frontier, n.ID)
		}
	}

	placed := make(map[NodeID]bool, len(sections))
	var levels []Level
	for len(placed) < len(sections) {
		if len(frontier) == 0 {
			frontier = Level{firstUnplaced(sections, placed)}
		}
		levels = append(levels, frontier)
		for _, id := range frontier {
			placed[id] = true
		}

		var next Level
		for _, id := range frontier {
			for _, succ := range g.Successors(id) {
				if !succ.IsSection() || placed[succ] {
					continue
				}
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		sortIDs(next)
		frontier = next
	}
	return levels
}

func firstUnplaced(sections []*Node, placed map[NodeID]bool) NodeID {
	for _, n := range sections {
		if !placed[n.ID] {
			return n.ID
		}
	}
	return StartID
}
