package history

import (
	"context"
	"testing"
	"time"

	"nbcollab/internal/engine/activity"
	"nbcollab/internal/engine/graph"
	"nbcollab/internal/engine/parser"
)

func TestAdapter_GraphRoundTrip(t *testing.T) {
	adapter := NewAdapter(openTestStore(t))
	ctx := context.Background()

	b := graph.NewBuilder(parser.NewPythonSymbolExtractor(), graph.DefaultBuildOptions())
	g := b.Build(ctx, []parser.Cell{
		{Index: 0, Kind: parser.CellMarkdown, Source: "# Load"},
		{Index: 1, Kind: parser.CellCode, Source: "df = 1", ID: "a"},
		{Index: 2, Kind: parser.CellMarkdown, Source: "# Plot"},
		{Index: 3, Kind: parser.CellCode, Source: "print(df)", ID: "b"},
	})
	if err := adapter.SaveGraph(ctx, "nb-1", "eda.ipynb", g); err != nil {
		t.Fatalf("save graph: %v", err)
	}

	loaded, err := adapter.LoadGraph(ctx, "nb-1")
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	if len(loaded.Nodes()) != len(g.Nodes()) || len(loaded.Edges()) != len(g.Edges()) {
		t.Fatalf("graph changed shape: %d/%d nodes, %d/%d edges",
			len(loaded.Nodes()), len(g.Nodes()), len(loaded.Edges()), len(g.Edges()))
	}
	if _, ok := loaded.Edge(graph.SectionID(0), graph.SectionID(2)); !ok {
		t.Fatal("section edge lost")
	}
}

func TestAdapter_SaveResultAndTrend(t *testing.T) {
	adapter := NewAdapter(openTestStore(t))
	ctx := context.Background()

	id, err := adapter.SaveResult(ctx, "nb-1", "", activity.Result{})
	if err != nil || id != "" {
		t.Fatalf("unscored result should not be stored: id=%q err=%v", id, err)
	}

	res := activity.Result{
		Observed: true,
		Best:     activity.WidthScore{Width: 2 * time.Minute, Score: 0.8},
		Sweep: []activity.WidthScore{
			{Width: time.Minute, Score: 0.6},
			{Width: 2 * time.Minute, Score: 0.8},
		},
	}
	id, err = adapter.SaveResult(ctx, "nb-1", "", res)
	if err != nil {
		t.Fatalf("save result: %v", err)
	}
	if id == "" {
		t.Fatal("expected run id")
	}

	report, err := adapter.Trend(ctx, "nb-1", "", time.Time{}, time.Hour)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if report.RunCount != 1 || report.Points[0].Score != 0.8 || report.Points[0].Width != 2*time.Minute {
		t.Fatalf("unexpected report: %+v", report)
	}
}
