package activity

import (
	"fmt"
	"sort"
	"time"

	"nbcollab/internal/core/errors"
	"nbcollab/internal/engine/graph"
)

// DefaultThreshold is the cumulative share of a window's executions that its
// dominant sections must account for.
const DefaultThreshold = 0.95

// Row is one dominant section of one time window.
type Row struct {
	Bucket    int
	SectionID graph.NodeID
	Section   string
	Count     int
}

type sectionCount struct {
	id    graph.NodeID
	name  string
	count int
}

// Aggregate buckets records into windows of the given width, counted from the
// earliest record, and keeps the dominant sections of each window: sorted by
// execution count, the leading sections whose cumulative share of the window
// total stays within threshold. The busiest section is always kept. Rows are
// ordered by bucket, then by descending count.
func Aggregate(records []Record, width time.Duration, threshold float64) ([]Row, error) {
	if width <= 0 {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("slice width must be positive, got %s", width))
	}
	if threshold <= 0 || threshold > 1 {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("threshold must be in (0, 1], got %g", threshold))
	}
	if len(records) == 0 {
		return nil, nil
	}

	t0 := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(t0) {
			t0 = r.Timestamp
		}
	}

	buckets := make(map[int]map[graph.NodeID]*sectionCount)
	for _, r := range records {
		b := int(r.Timestamp.Sub(t0) / width)
		if buckets[b] == nil {
			buckets[b] = make(map[graph.NodeID]*sectionCount)
		}
		sc, ok := buckets[b][r.SectionID]
		if !ok {
			sc = &sectionCount{id: r.SectionID, name: r.Section}
			buckets[b][r.SectionID] = sc
		}
		sc.count++
	}

	indexes := make([]int, 0, len(buckets))
	for b := range buckets {
		indexes = append(indexes, b)
	}
	sort.Ints(indexes)

	var rows []Row
	for _, b := range indexes {
		for _, sc := range dominant(buckets[b], threshold) {
			rows = append(rows, Row{Bucket: b, SectionID: sc.id, Section: sc.name, Count: sc.count})
		}
	}
	return rows, nil
}

func dominant(counts map[graph.NodeID]*sectionCount, threshold float64) []*sectionCount {
	ranked := make([]*sectionCount, 0, len(counts))
	total := 0
	for _, sc := range counts {
		ranked = append(ranked, sc)
		total += sc.count
	}
	if total == 0 {
		return nil
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].id.Less(ranked[j].id)
	})

	cumulative := ranked[0].count
	kept := 1
	for _, sc := range ranked[1:] {
		cumulative += sc.count
		if float64(cumulative)/float64(total) > threshold {
			break
		}
		kept++
	}
	return ranked[:kept]
}

// GroupRows collects the section ids of each window, one list per non-empty
// bucket in bucket order.
func GroupRows(rows []Row) [][]graph.NodeID {
	var windows [][]graph.NodeID
	last := 0
	for i, r := range rows {
		if i == 0 || r.Bucket != last {
			windows = append(windows, nil)
			last = r.Bucket
		}
		windows[len(windows)-1] = append(windows[len(windows)-1], r.SectionID)
	}
	return windows
}
