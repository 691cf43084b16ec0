package ports

import (
	"context"
	"time"

	"nbcollab/internal/data/history"
	"nbcollab/internal/engine/activity"
	"nbcollab/internal/engine/graph"
	"nbcollab/internal/engine/parser"
)

// HistoryStore abstracts persistence of graphs, executions, groups and score runs.
type HistoryStore interface {
	SaveGraph(ctx context.Context, notebookID, name string, g *graph.Graph) error
	LoadGraph(ctx context.Context, notebookID string) (*graph.Graph, error)
	RecordExecutions(ctx context.Context, notebookID string, events []activity.Event) (int, error)
	LoadExecutions(ctx context.Context, notebookID string, filter activity.Filter) ([]activity.Event, error)
	SaveGroup(ctx context.Context, group history.Group) error
	LoadGroups(ctx context.Context, notebookID string) ([]history.Group, error)
	SaveResult(ctx context.Context, notebookID, group string, res activity.Result) (string, error)
	Trend(ctx context.Context, notebookID, group string, since time.Time, window time.Duration) (history.TrendReport, error)
}

// Analysis is the dependency structure derived from one notebook file.
type Analysis struct {
	Path       string
	NotebookID string
	Notebook   *parser.Notebook
	Graph      *graph.Graph
	Schedule   []graph.Level
	AnalyzedAt time.Time
}

// IngestRequest carries execution events for one notebook.
type IngestRequest struct {
	NotebookID string
	Events     []activity.Event
}

type IngestResult struct {
	Received int
	Stored   int
}

// ScoreRequest selects a notebook and the executions to score it against.
// When Events is nil the executions are read from the history store.
type ScoreRequest struct {
	NotebookPath string
	Events       []activity.Event
	Filter       activity.Filter
	Group        string
}

// ScoreReport is the outcome of scoring one notebook for one set of users.
type ScoreReport struct {
	Analysis *Analysis
	Group    string
	Result   activity.Result
	Stats    activity.MapStats
	RunID    string
}

// TrendRequest selects the stored score runs to summarize.
type TrendRequest struct {
	NotebookID string
	Group      string
	Since      time.Time
	Window     time.Duration
}

// AnalysisService is the driving-port surface over notebook analysis and scoring.
type AnalysisService interface {
	AnalyzeNotebook(ctx context.Context, path string) (*Analysis, error)
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	Score(ctx context.Context, req ScoreRequest) (ScoreReport, error)
	ScoreGroups(ctx context.Context, req ScoreRequest) ([]ScoreReport, error)
	Trend(ctx context.Context, req TrendRequest) (history.TrendReport, error)
	WatchService() WatchService
	Close(ctx context.Context) error
}

// WatchUpdate is emitted after a watched notebook has been re-analyzed.
type WatchUpdate struct {
	Path       string
	NotebookID string
	Sections   int
	Levels     int
	Analysis   *Analysis
	Report     *ScoreReport
	Err        error
	// Removed is set when the notebook file no longer exists.
	Removed bool
	At      time.Time
}

// WatchService exposes watch lifecycle and updates for driving adapters.
type WatchService interface {
	Start(ctx context.Context) error
	Subscribe(handler func(WatchUpdate))
	Snapshot() []WatchUpdate
}

// WriteOperation names a deferred history write.
type WriteOperation string

const (
	WriteOperationSaveGraph        WriteOperation = "save_graph"
	WriteOperationSaveResult       WriteOperation = "save_result"
	WriteOperationRecordExecutions WriteOperation = "record_executions"
)

// WriteRequest is one history write queued by watch mode.
type WriteRequest struct {
	Operation  WriteOperation
	NotebookID string
	Name       string
	Group      string
	Graph      *graph.Graph
	Result     activity.Result
	Events     []activity.Event
}

type EnqueueResult string

const (
	EnqueueAccepted EnqueueResult = "accepted"
	EnqueueDropped  EnqueueResult = "dropped"
)

// WriteQueuePort buffers history writes between producers and the write worker.
type WriteQueuePort interface {
	Enqueue(req WriteRequest) EnqueueResult
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]WriteRequest, error)
	Close() error
}
