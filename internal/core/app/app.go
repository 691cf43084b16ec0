package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nbcollab/internal/core/config"
	"nbcollab/internal/core/errors"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/core/watcher"
	"nbcollab/internal/data/history"
	"nbcollab/internal/engine/activity"
	"nbcollab/internal/engine/graph"
	"nbcollab/internal/engine/parser"
	"nbcollab/internal/shared/observability"
	"nbcollab/internal/shared/util"
)

// limiterTTL is how long an idle notebook keeps its rescoring limiter.
const limiterTTL = 10 * time.Minute

type App struct {
	Config  *config.Config
	builder *graph.Builder
	scorer  *activity.Scorer
	history ports.HistoryStore

	analysesMu sync.RWMutex
	analyses   map[string]*ports.Analysis

	groupsMu sync.RWMutex
	groups   []config.Group

	updateMu sync.RWMutex
	onUpdate []func(ports.WatchUpdate)
	latest   map[string]ports.WatchUpdate

	limiter       *util.KeyedLimiter
	watcherMu     sync.Mutex
	activeWatcher *watcher.Watcher

	writeQueue   ports.WriteQueuePort
	workerCancel context.CancelFunc
	workerDone   chan struct{}
}

// New wires the analysis pipeline. store may be nil, in which case
// ingestion, stored executions and trends are unavailable.
func New(cfg *config.Config, store ports.HistoryStore) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	scorer, err := activity.NewScorer(activity.ScorerConfig{
		Widths:    cfg.Scoring.SliceWidths,
		Threshold: cfg.Scoring.Threshold,
		Parallel:  cfg.Scoring.Parallel,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config: cfg,
		builder: graph.NewBuilder(parser.NewPythonSymbolExtractor(), graph.BuildOptions{
			IncludeImports: cfg.Scoring.ImportsIncluded(),
		}),
		scorer:   scorer,
		history:  store,
		analyses: make(map[string]*ports.Analysis),
		groups:   append([]config.Group(nil), cfg.Groups...),
		latest:   make(map[string]ports.WatchUpdate),
		limiter:  util.NewKeyedLimiter(cfg.Watch.RescoreRate, cfg.Watch.RescoreBurst, limiterTTL),
	}, nil
}

// AnalyzeNotebook parses the notebook at path, builds its section graph and
// derives the ideal schedule. The latest analysis per path is cached.
func (a *App) AnalyzeNotebook(ctx context.Context, path string) (*ports.Analysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.AnalyzeNotebook", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nb, err := parser.LoadNotebook(path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	g := a.builder.Build(ctx, nb.Cells)
	analysis := &ports.Analysis{
		Path:       path,
		NotebookID: notebookID(nb, path),
		Notebook:   nb,
		Graph:      g,
		Schedule:   graph.IdealSchedule(g),
		AnalyzedAt: time.Now().UTC(),
	}

	a.analysesMu.Lock()
	a.analyses[path] = analysis
	a.analysesMu.Unlock()

	span.SetAttributes(
		attribute.String("notebook", analysis.NotebookID),
		attribute.Int("sections", len(g.SectionNodes())),
		attribute.Int("levels", len(analysis.Schedule)),
	)
	return analysis, nil
}

// Analysis returns the cached analysis for path, if any.
func (a *App) Analysis(path string) (*ports.Analysis, bool) {
	a.analysesMu.RLock()
	defer a.analysesMu.RUnlock()
	an, ok := a.analyses[path]
	return an, ok
}

func (a *App) forgetAnalysis(path string) {
	a.analysesMu.Lock()
	delete(a.analyses, path)
	a.analysesMu.Unlock()
}

// notebookID prefers the instrumentation id embedded in the notebook and falls
// back to the file name without extension.
func notebookID(nb *parser.Notebook, path string) string {
	if id := strings.TrimSpace(nb.ID); id != "" {
		return id
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// scoreAnalysis maps the selected executions onto the analysis graph and
// sweeps the slice widths. Persisting the result is left to the caller.
func (a *App) scoreAnalysis(ctx context.Context, an *ports.Analysis, req ports.ScoreRequest) (ports.ScoreReport, error) {
	events, err := a.selectEvents(ctx, an.NotebookID, req)
	if err != nil {
		return ports.ScoreReport{}, err
	}

	records, stats := activity.MapExecutions(an.Graph, events)
	if stats.Dropped() > 0 {
		slog.Debug("executions dropped while mapping",
			"notebook", an.NotebookID,
			"unknown_cell", stats.UnknownCell,
			"pruned_section", stats.PrunedSection,
		)
	}

	res, err := a.scorer.Score(ctx, an.Schedule, records)
	if err != nil {
		return ports.ScoreReport{}, errors.AddContext(err, errors.CtxNotebook, an.NotebookID)
	}
	if res.Observed {
		observability.CollaborationScore.WithLabelValues(an.NotebookID, groupLabel(req.Group)).Set(res.Best.Score)
	}
	return ports.ScoreReport{Analysis: an, Group: req.Group, Result: res, Stats: stats}, nil
}

func groupLabel(group string) string {
	if group == "" {
		return "all"
	}
	return group
}

// selectEvents returns the request's events, or the stored ones when none were
// given, narrowed by the request filter and group membership.
func (a *App) selectEvents(ctx context.Context, notebookID string, req ports.ScoreRequest) ([]activity.Event, error) {
	filter := req.Filter
	if req.Group != "" {
		group, err := a.findGroup(ctx, notebookID, req.Group)
		if err != nil {
			return nil, err
		}
		filter.Users = group.Members
	}

	if req.Events != nil {
		return filter.Apply(req.Events), nil
	}
	if a.history == nil {
		return nil, errors.New(errors.CodeNotSupported, "no executions given and the history store is disabled")
	}
	events, err := a.history.LoadExecutions(ctx, notebookID, filter)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxNotebook, notebookID)
	}
	return events, nil
}

// Groups returns the groups defined for a notebook, merging configured groups
// with stored ones. A configured group shadows a stored group of the same name.
func (a *App) Groups(ctx context.Context, notebookID string) ([]history.Group, error) {
	byName := make(map[string]history.Group)
	if a.history != nil {
		stored, err := a.history.LoadGroups(ctx, notebookID)
		if err != nil {
			return nil, err
		}
		for _, g := range stored {
			byName[g.Name] = g
		}
	}
	for _, g := range a.configuredGroups() {
		if g.NotebookID != "" && g.NotebookID != notebookID {
			continue
		}
		byName[g.Name] = history.Group{NotebookID: notebookID, Name: g.Name, Members: append([]string(nil), g.Members...)}
	}

	out := make([]history.Group, 0, len(byName))
	for _, name := range util.SortedStringKeys(byName) {
		out = append(out, byName[name])
	}
	return out, nil
}

func (a *App) configuredGroups() []config.Group {
	a.groupsMu.RLock()
	defer a.groupsMu.RUnlock()
	return a.groups
}

func (a *App) findGroup(ctx context.Context, notebookID, name string) (history.Group, error) {
	groups, err := a.Groups(ctx, notebookID)
	if err != nil {
		return history.Group{}, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g, nil
		}
	}
	err = errors.New(errors.CodeNotFound, fmt.Sprintf("group %q is not defined", name))
	err = errors.AddContext(err, errors.CtxGroup, name)
	return history.Group{}, errors.AddContext(err, errors.CtxNotebook, notebookID)
}

// SyncGroups stores the configured groups that name a notebook so that they
// survive without the config file. It returns the number stored.
func (a *App) SyncGroups(ctx context.Context) (int, error) {
	if a.history == nil {
		return 0, nil
	}
	stored := 0
	for _, g := range a.configuredGroups() {
		if g.NotebookID == "" {
			continue
		}
		err := a.history.SaveGroup(ctx, history.Group{NotebookID: g.NotebookID, Name: g.Name, Members: g.Members})
		if err != nil {
			return stored, errors.AddContext(err, errors.CtxGroup, g.Name)
		}
		stored++
	}
	return stored, nil
}

// SetUpdateHandler replaces all watch subscribers with handler.
func (a *App) SetUpdateHandler(handler func(ports.WatchUpdate)) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = nil
	if handler != nil {
		a.onUpdate = append(a.onUpdate, handler)
	}
}

func (a *App) subscribe(handler func(ports.WatchUpdate)) {
	if handler == nil {
		return
	}
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = append(a.onUpdate, handler)
}

func (a *App) emitUpdate(update ports.WatchUpdate, removed bool) {
	a.updateMu.Lock()
	if removed {
		delete(a.latest, update.Path)
	} else {
		a.latest[update.Path] = update
	}
	handlers := make([]func(ports.WatchUpdate), len(a.onUpdate))
	copy(handlers, a.onUpdate)
	a.updateMu.Unlock()

	for _, h := range handlers {
		h(update)
	}
}

func (a *App) snapshot() []ports.WatchUpdate {
	a.updateMu.RLock()
	defer a.updateMu.RUnlock()
	out := make([]ports.WatchUpdate, 0, len(a.latest))
	for _, u := range a.latest {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Close stops the watcher and drains pending history writes. The history
// store itself is owned by the caller.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var firstErr error
	a.watcherMu.Lock()
	if a.activeWatcher != nil {
		firstErr = a.activeWatcher.Close()
		a.activeWatcher = nil
	}
	a.watcherMu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, drainTimeout)
		defer cancel()
	}
	if err := a.stopWriteWorker(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	a.limiter.Close()
	return firstErr
}
