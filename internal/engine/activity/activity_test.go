package activity

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"nbcollab/internal/core/errors"
	"nbcollab/internal/engine/graph"
	"nbcollab/internal/engine/parser"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return epoch.Add(d) }

// twoSectionGraph has sections "S1" (index 0) and "S2" (index 2) with S2
// depending on S1, plus a self-contained "Notes" section that gets pruned.
func twoSectionGraph(t *testing.T) *graph.Graph {
	t.Helper()
	cells := []parser.Cell{
		{Index: 0, Kind: parser.CellMarkdown, Source: "# S1"},
		{Index: 1, Kind: parser.CellCode, Source: "x = 1", ID: "c1"},
		{Index: 2, Kind: parser.CellMarkdown, Source: "# S2"},
		{Index: 3, Kind: parser.CellCode, Source: "print(x)", ID: "c3"},
		{Index: 4, Kind: parser.CellMarkdown, Source: "# Notes"},
		{Index: 5, Kind: parser.CellCode, Source: "y = 2", ID: "c5"},
	}
	b := graph.NewBuilder(parser.NewPythonSymbolExtractor(), graph.DefaultBuildOptions())
	return b.Build(context.Background(), cells)
}

func TestAggregate_DominantSections(t *testing.T) {
	s1, s2 := graph.SectionID(0), graph.SectionID(2)
	records := []Record{
		{SectionID: s1, Section: "S1", Timestamp: at(0)},
		{SectionID: s1, Section: "S1", Timestamp: at(0)},
		{SectionID: s2, Section: "S2", Timestamp: at(4 * time.Minute)},
	}

	rows, err := Aggregate(records, 5*time.Minute, 0.95)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []Row{{Bucket: 0, SectionID: s1, Section: "S1", Count: 2}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %+v, want %+v", rows, want)
	}
}

func TestAggregate_TopSectionAlwaysKept(t *testing.T) {
	records := []Record{
		{SectionID: graph.SectionID(0), Timestamp: at(0)},
		{SectionID: graph.SectionID(2), Timestamp: at(time.Second)},
	}
	rows, err := Aggregate(records, time.Minute, 0.1)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly the top section, got %+v", rows)
	}
	// Equal counts fall back to node order.
	if rows[0].SectionID != graph.SectionID(0) {
		t.Errorf("tie broken toward %v, want %v", rows[0].SectionID, graph.SectionID(0))
	}
}

func TestAggregate_ThresholdIsInclusive(t *testing.T) {
	var records []Record
	for i := 0; i < 3; i++ {
		records = append(records, Record{SectionID: graph.SectionID(0), Timestamp: at(0)})
	}
	records = append(records, Record{SectionID: graph.SectionID(2), Timestamp: at(0)})

	rows, err := Aggregate(records, time.Minute, 1.0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("threshold 1.0 should keep every section, got %+v", rows)
	}
}

func TestAggregate_SkipsEmptyBuckets(t *testing.T) {
	records := []Record{
		{SectionID: graph.SectionID(0), Timestamp: at(0)},
		{SectionID: graph.SectionID(2), Timestamp: at(11 * time.Minute)},
	}
	rows, err := Aggregate(records, 5*time.Minute, 0.95)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if rows[0].Bucket != 0 || rows[1].Bucket != 2 {
		t.Fatalf("unexpected buckets: %+v", rows)
	}
	windows := GroupRows(rows)
	want := [][]graph.NodeID{{graph.SectionID(0)}, {graph.SectionID(2)}}
	if !reflect.DeepEqual(windows, want) {
		t.Fatalf("got %v, want %v", windows, want)
	}
}

func TestAggregate_InvalidArguments(t *testing.T) {
	records := []Record{{SectionID: graph.SectionID(0), Timestamp: at(0)}}
	cases := []struct {
		name      string
		width     time.Duration
		threshold float64
	}{
		{"zero width", 0, 0.95},
		{"negative width", -time.Minute, 0.95},
		{"zero threshold", time.Minute, 0},
		{"threshold above one", time.Minute, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Aggregate(records, tc.width, tc.threshold)
			if !errors.IsCode(err, errors.CodeValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	a, b, c, d := graph.SectionID(0), graph.SectionID(2), graph.SectionID(4), graph.SectionID(6)
	cases := []struct {
		name string
		x, y SectionSet
		want float64
	}{
		{"both empty", NewSectionSet(), NewSectionSet(), 1.0},
		{"nil sets", nil, nil, 1.0},
		{"identical", NewSectionSet(a, b), NewSectionSet(a, b), 1.0},
		{"one empty", NewSectionSet(a), NewSectionSet(), 0},
		{"disjoint", NewSectionSet(a, b), NewSectionSet(c, d), 0},
		{"subset", NewSectionSet(a), NewSectionSet(a, b, c), 1.0 / 3.0},
		{"overlap", NewSectionSet(a, b, c), NewSectionSet(b, c, d), 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Jaccard(tc.x, tc.y)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Jaccard(x, y) = %v, want %v", got, tc.want)
			}
			if back := Jaccard(tc.y, tc.x); back != got {
				t.Fatalf("not symmetric: Jaccard(x, y) = %v, Jaccard(y, x) = %v", got, back)
			}
		})
	}
}

func TestAggregate_KeptCountsWithinBucketTotal(t *testing.T) {
	s1, s2, s3 := graph.SectionID(0), graph.SectionID(2), graph.SectionID(4)
	fixtures := map[string][]Record{
		"single dominant": {
			{SectionID: s1, Timestamp: at(0)},
			{SectionID: s1, Timestamp: at(10 * time.Second)},
			{SectionID: s2, Timestamp: at(20 * time.Second)},
		},
		"spread across buckets": {
			{SectionID: s1, Timestamp: at(0)},
			{SectionID: s2, Timestamp: at(30 * time.Second)},
			{SectionID: s3, Timestamp: at(90 * time.Second)},
			{SectionID: s3, Timestamp: at(100 * time.Second)},
			{SectionID: s1, Timestamp: at(110 * time.Second)},
			{SectionID: s2, Timestamp: at(5 * time.Minute)},
		},
		"even split": {
			{SectionID: s1, Timestamp: at(0)},
			{SectionID: s2, Timestamp: at(time.Second)},
			{SectionID: s3, Timestamp: at(2 * time.Second)},
			{SectionID: s1, Timestamp: at(3 * time.Minute)},
			{SectionID: s2, Timestamp: at(3*time.Minute + time.Second)},
		},
	}

	for name, records := range fixtures {
		for _, threshold := range []float64{0.3, 0.95, 1.0} {
			rows, err := Aggregate(records, time.Minute, threshold)
			if err != nil {
				t.Fatalf("%s: Aggregate: %v", name, err)
			}

			totals := make(map[int]int)
			for _, r := range records {
				totals[int(r.Timestamp.Sub(epoch)/time.Minute)]++
			}
			kept := make(map[int]int)
			for _, row := range rows {
				kept[row.Bucket] += row.Count
			}
			for bucket, total := range totals {
				if kept[bucket] == 0 {
					t.Errorf("%s threshold %v: bucket %d kept nothing", name, threshold, bucket)
				}
				if kept[bucket] > total {
					t.Errorf("%s threshold %v: bucket %d kept %d of %d", name, threshold, bucket, kept[bucket], total)
				}
			}
			if threshold == 1.0 {
				for bucket, total := range totals {
					if kept[bucket] != total {
						t.Errorf("%s: threshold 1.0 kept %d of %d in bucket %d", name, kept[bucket], total, bucket)
					}
				}
			}
		}
	}
}

func TestListSimilarity(t *testing.T) {
	a, b, c := graph.SectionID(0), graph.SectionID(2), graph.SectionID(4)
	cases := []struct {
		name            string
		observed, ideal [][]graph.NodeID
		want            float64
	}{
		{"identical", [][]graph.NodeID{{a}, {b}}, [][]graph.NodeID{{a}, {b}}, 1.0},
		{"padded", [][]graph.NodeID{{a}}, [][]graph.NodeID{{a}, {b}}, 0.5},
		{"partial overlap", [][]graph.NodeID{{a, b}}, [][]graph.NodeID{{b, c}}, 1.0 / 3.0},
		{"disjoint", [][]graph.NodeID{{a}}, [][]graph.NodeID{{c}}, 0},
		{"both empty", nil, nil, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ListSimilarity(tc.observed, tc.ideal); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMapExecutions(t *testing.T) {
	g := twoSectionGraph(t)
	events := []Event{
		{CellID: "c3", Timestamp: at(2 * time.Minute)},
		{CellID: "c1", Timestamp: at(0)},
		{CellID: "c5", Timestamp: at(time.Minute)},
		{CellID: "gone", Timestamp: at(time.Minute)},
	}

	records, stats := MapExecutions(g, events)
	if stats.Mapped != 2 || stats.UnknownCell != 1 || stats.PrunedSection != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	want := []Record{
		{SectionID: graph.SectionID(0), Section: "S1", Timestamp: at(0)},
		{SectionID: graph.SectionID(2), Section: "S2", Timestamp: at(2 * time.Minute)},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("got %+v, want %+v", records, want)
	}
}

func TestMapExecutions_RepeatedHeadingMapsToFirstSection(t *testing.T) {
	cells := []parser.Cell{
		{Index: 0, Kind: parser.CellMarkdown, Source: "# S1"},
		{Index: 1, Kind: parser.CellCode, Source: "x = 1", ID: "c1"},
		{Index: 2, Kind: parser.CellMarkdown, Source: "# S2"},
		{Index: 3, Kind: parser.CellCode, Source: "y = x", ID: "c3"},
		{Index: 4, Kind: parser.CellMarkdown, Source: "# S1"},
		{Index: 5, Kind: parser.CellCode, Source: "print(y)", ID: "c5"},
	}
	g := graph.NewBuilder(parser.NewPythonSymbolExtractor(), graph.DefaultBuildOptions()).
		Build(context.Background(), cells)

	records, stats := MapExecutions(g, []Event{
		{CellID: "c1", Timestamp: at(0)},
		{CellID: "c5", Timestamp: at(time.Minute)},
	})
	if stats.Mapped != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	for _, r := range records {
		if r.SectionID != graph.SectionID(0) || r.Section != "S1" {
			t.Errorf("record %+v should map to the first S1 section", r)
		}
	}
}

func TestScorer_PerfectMatchAtEveryWidth(t *testing.T) {
	g := twoSectionGraph(t)
	records, _ := MapExecutions(g, []Event{
		{CellID: "c1", Timestamp: at(0)},
		{CellID: "c3", Timestamp: at(2 * time.Hour)},
	})

	s, err := NewScorer(ScorerConfig{})
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	res, err := s.Score(context.Background(), graph.IdealSchedule(g), records)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !res.Observed {
		t.Fatal("expected a score")
	}
	for _, ws := range res.Sweep {
		if ws.Score != 1.0 {
			t.Errorf("width %s scored %v, want 1.0", ws.Width, ws.Score)
		}
	}
	if res.Best.Width != DefaultSliceWidths[0] {
		t.Errorf("ties should resolve to the narrowest width, got %s", res.Best.Width)
	}
}

func TestScorer_NoEvents(t *testing.T) {
	g := twoSectionGraph(t)
	s, err := NewScorer(ScorerConfig{})
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	res, err := s.Score(context.Background(), graph.IdealSchedule(g), nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.Observed || len(res.Sweep) != 0 {
		t.Fatalf("expected no score, got %+v", res)
	}
}

func TestScorer_RestrictsIdealToObservedSections(t *testing.T) {
	g := twoSectionGraph(t)
	records, _ := MapExecutions(g, []Event{{CellID: "c3", Timestamp: at(0)}})

	s, err := NewScorer(ScorerConfig{Widths: []time.Duration{time.Minute}})
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	res, err := s.Score(context.Background(), graph.IdealSchedule(g), records)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []graph.Level{{}, {graph.SectionID(2)}}
	if !reflect.DeepEqual(res.Ideal, want) {
		t.Fatalf("ideal: got %v, want %v", res.Ideal, want)
	}
	if res.Best.Score != 0 {
		t.Errorf("score: got %v, want 0", res.Best.Score)
	}
}

func TestScorer_EmptiedLevelKeepsItsPosition(t *testing.T) {
	s1, s2, s3 := graph.SectionID(0), graph.SectionID(2), graph.SectionID(4)
	schedule := []graph.Level{{s1}, {s2}, {s3}}
	records := []Record{
		{SectionID: s1, Section: "S1", Timestamp: at(0)},
		{SectionID: s3, Section: "S3", Timestamp: at(2 * time.Hour)},
	}

	s, err := NewScorer(ScorerConfig{Widths: []time.Duration{time.Minute}})
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	res, err := s.Score(context.Background(), schedule, records)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []graph.Level{{s1}, {}, {s3}}
	if !reflect.DeepEqual(res.Ideal, want) {
		t.Fatalf("ideal: got %v, want %v", res.Ideal, want)
	}
	if got := res.Best.Score; math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("score: got %v, want 1/3", got)
	}
}

func TestNewScorer_RejectsBadConfig(t *testing.T) {
	if _, err := NewScorer(ScorerConfig{Widths: []time.Duration{0}}); !errors.IsCode(err, errors.CodeValidationError) {
		t.Errorf("zero width: expected validation error, got %v", err)
	}
	if _, err := NewScorer(ScorerConfig{Threshold: 2}); !errors.IsCode(err, errors.CodeValidationError) {
		t.Errorf("threshold 2: expected validation error, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 15, 500000000, time.UTC)
	for _, in := range []string{
		"2024-03-01T09:30:15.5Z",
		"2024-03-01T09:30:15.5",
		"2024-03-01T10:30:15.5+01:00",
		"2024-03-01 09:30:15.5",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected an error for an unreadable timestamp")
	}
}

func TestDecodeEvents(t *testing.T) {
	data := []byte(`[
		{"cell": "c1", "t_start": "2024-03-01T09:00:00Z", "user_id": "ana", "status": "ok"},
		{"cell": "", "t_start": "2024-03-01T09:01:00Z"},
		{"cell": "c3", "t_start": "soon"}
	]`)
	events, skipped, err := DecodeEvents(data)
	if err != nil {
		t.Fatalf("DecodeEvents: %v", err)
	}
	if skipped != 2 || len(events) != 1 {
		t.Fatalf("got %d events, %d skipped", len(events), skipped)
	}
	if events[0].UserID != "ana" || !events[0].Timestamp.Equal(epoch) {
		t.Errorf("unexpected event %+v", events[0])
	}

	if _, _, err := DecodeEvents([]byte("{")); !errors.IsCode(err, errors.CodeValidationError) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	events := []Event{
		{CellID: "a", UserID: "ana", Timestamp: at(0)},
		{CellID: "b", UserID: "bo", Timestamp: at(time.Hour)},
		{CellID: "c", UserID: "ana", Timestamp: at(2 * time.Hour)},
	}
	got := Filter{Since: at(30 * time.Minute), Users: []string{"ana"}}.Apply(events)
	if len(got) != 1 || got[0].CellID != "c" {
		t.Fatalf("unexpected selection: %+v", got)
	}
	if all := (Filter{}).Apply(events); len(all) != 3 {
		t.Fatalf("empty filter dropped events: %+v", all)
	}
}
