package activity

import (
	"sort"
	"time"

	"nbcollab/internal/engine/graph"
	"nbcollab/internal/shared/observability"
)

// Event is one recorded cell execution.
type Event struct {
	CellID    string
	Timestamp time.Time
	UserID    string
	Status    string
}

// Record is an execution event resolved onto the section of its cell.
type Record struct {
	SectionID graph.NodeID
	Section   string
	Timestamp time.Time
}

// MapStats counts what happened to the events of one mapping pass.
type MapStats struct {
	Mapped int
	// UnknownCell counts events for cells absent from the analyzed notebook.
	UnknownCell int
	// PrunedSection counts events whose section has no cross-section
	// dependency and therefore no node in the graph.
	PrunedSection int
}

func (s MapStats) Dropped() int { return s.UnknownCell + s.PrunedSection }

// MapExecutions resolves events onto sections and returns the records sorted
// by timestamp. Events that cannot be resolved are skipped and counted.
func MapExecutions(g *graph.Graph, events []Event) ([]Record, MapStats) {
	var stats MapStats
	index := g.SectionIndex()
	records := make([]Record, 0, len(events))

	for _, ev := range events {
		cell, ok := g.CellByExternalID(ev.CellID)
		if !ok {
			stats.UnknownCell++
			continue
		}

		// Sections are identified by name; the index holds the first node
		// carrying each name.
		sectionID, ok := index[cell.Section]
		if !ok {
			stats.PrunedSection++
			continue
		}

		records = append(records, Record{
			SectionID: sectionID,
			Section:   cell.Section,
			Timestamp: ev.Timestamp,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	stats.Mapped = len(records)
	observability.EventsMappedTotal.Add(float64(stats.Mapped))
	observability.EventsDroppedTotal.WithLabelValues("unknown_cell").Add(float64(stats.UnknownCell))
	observability.EventsDroppedTotal.WithLabelValues("pruned_section").Add(float64(stats.PrunedSection))
	return records, stats
}
