package history

import (
	"context"
	"time"

	"nbcollab/internal/engine/activity"
	"nbcollab/internal/engine/graph"
)

// Adapter bridges Store to the core HistoryStore port, translating engine
// values to stored rows.
type Adapter struct {
	store *Store
}

func NewAdapter(store *Store) *Adapter {
	return &Adapter{store: store}
}

func (a *Adapter) SaveGraph(ctx context.Context, notebookID, name string, g *graph.Graph) error {
	doc, err := g.MarshalJSON()
	if err != nil {
		return err
	}
	return a.store.SaveGraph(ctx, GraphSnapshot{NotebookID: notebookID, Name: name, Document: doc})
}

func (a *Adapter) LoadGraph(ctx context.Context, notebookID string) (*graph.Graph, error) {
	snap, err := a.store.LoadGraph(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	return graph.Decode(snap.Document)
}

func (a *Adapter) RecordExecutions(ctx context.Context, notebookID string, events []activity.Event) (int, error) {
	return a.store.RecordExecutions(ctx, notebookID, events)
}

func (a *Adapter) LoadExecutions(ctx context.Context, notebookID string, filter activity.Filter) ([]activity.Event, error) {
	return a.store.LoadExecutions(ctx, notebookID, filter)
}

func (a *Adapter) SaveGroup(ctx context.Context, group Group) error {
	return a.store.SaveGroup(ctx, group)
}

func (a *Adapter) LoadGroups(ctx context.Context, notebookID string) ([]Group, error) {
	return a.store.LoadGroups(ctx, notebookID)
}

// SaveResult records a scored sweep. Results without a score are not stored.
func (a *Adapter) SaveResult(ctx context.Context, notebookID, group string, res activity.Result) (string, error) {
	if !res.Observed {
		return "", nil
	}
	run := ScoreRun{
		NotebookID: notebookID,
		Group:      group,
		BestWidth:  res.Best.Width,
		BestScore:  res.Best.Score,
		Widths:     make([]WidthScore, 0, len(res.Sweep)),
	}
	for _, ws := range res.Sweep {
		run.Widths = append(run.Widths, WidthScore{Width: ws.Width, Score: ws.Score})
	}
	return a.store.SaveScoreRun(ctx, run)
}

func (a *Adapter) Trend(ctx context.Context, notebookID, group string, since time.Time, window time.Duration) (TrendReport, error) {
	runs, err := a.store.LoadScoreRuns(ctx, notebookID, group, since)
	if err != nil {
		return TrendReport{}, err
	}
	return BuildTrendReport(runs, window)
}
