package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"nbcollab/internal/core/config"
	"nbcollab/internal/core/errors"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/core/watcher"
	"nbcollab/internal/shared/observability"
	"nbcollab/internal/shared/util"
)

type watchService struct {
	app *App
}

var _ ports.WatchService = (*watchService)(nil)

func (s *watchService) Start(ctx context.Context) error {
	return s.app.StartWatcher(ctx)
}

func (s *watchService) Subscribe(handler func(ports.WatchUpdate)) {
	s.app.subscribe(handler)
}

func (s *watchService) Snapshot() []ports.WatchUpdate {
	return s.app.snapshot()
}

// StartWatcher watches the configured paths and re-analyzes notebooks as they
// change. Notebooks already present are analyzed once up front.
func (a *App) StartWatcher(ctx context.Context) error {
	a.watcherMu.Lock()
	defer a.watcherMu.Unlock()
	if a.activeWatcher != nil {
		return errors.New(errors.CodeConflict, "watcher already running")
	}

	w, err := watcher.NewWatcher(
		a.Config.Watch.Debounce,
		a.Config.Watch.ExcludeDirs,
		a.Config.Watch.ExcludeFiles,
		func(paths []string) { a.HandleChanges(ctx, paths) },
	)
	if err != nil {
		return err
	}
	a.startWriteWorker()
	if err := w.Watch(a.Config.Watch.Paths); err != nil {
		_ = w.Close()
		return err
	}
	a.activeWatcher = w

	existing := w.Tracked()
	slog.Info("watching notebooks", "paths", a.Config.Watch.Paths, "notebooks", len(existing))
	for _, path := range existing {
		a.emitUpdate(a.refresh(ctx, path), false)
	}
	return nil
}

// HandleChanges re-analyzes each changed notebook. Paths whose rescoring
// budget is exhausted are skipped until their next change.
func (a *App) HandleChanges(ctx context.Context, paths []string) {
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if !a.limiter.Get(path).Allow(1) {
			observability.RescoreThrottledTotal.Inc()
			slog.Debug("rescore throttled", "path", path)
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			a.forgetAnalysis(path)
			a.emitUpdate(ports.WatchUpdate{Path: path, Err: err, Removed: true, At: time.Now().UTC()}, true)
			slog.Info("notebook removed", "path", path)
			continue
		}
		a.emitUpdate(a.refresh(ctx, path), false)
	}
}

// refresh analyzes path, queues its graph for storage and, when history is
// enabled, rescores it against the stored executions.
func (a *App) refresh(ctx context.Context, path string) ports.WatchUpdate {
	update := ports.WatchUpdate{Path: path, At: time.Now().UTC()}

	an, err := a.AnalyzeNotebook(ctx, path)
	if err != nil {
		slog.Warn("notebook analysis failed", "path", path, "error", err)
		update.Err = err
		return update
	}
	update.NotebookID = an.NotebookID
	update.Analysis = an
	update.Sections = len(an.Graph.SectionNodes())
	update.Levels = len(an.Schedule)

	if a.history == nil {
		return update
	}
	if err := a.enqueueWrite(ports.WriteRequest{
		Operation:  ports.WriteOperationSaveGraph,
		NotebookID: an.NotebookID,
		Name:       an.Notebook.Name,
		Graph:      an.Graph,
	}); err != nil {
		slog.Warn("graph write not queued", "notebook", an.NotebookID, "error", err)
	}

	report, err := a.scoreAnalysis(ctx, an, ports.ScoreRequest{NotebookPath: path})
	if err != nil {
		update.Err = err
		return update
	}
	update.Report = &report
	if report.Result.Observed {
		if err := a.enqueueWrite(ports.WriteRequest{
			Operation:  ports.WriteOperationSaveResult,
			NotebookID: an.NotebookID,
			Result:     report.Result,
		}); err != nil {
			slog.Warn("score write not queued", "notebook", an.NotebookID, "error", err)
		}
	}

	slog.Info("notebook rescored",
		"path", path,
		"notebook", an.NotebookID,
		"sections", update.Sections,
		"observed", report.Result.Observed,
		"score", report.Result.Best.Score,
		"heap_mb", util.HeapAllocMB(),
	)
	return update
}

// ApplyConfig takes over the settings that can change without a restart: the
// debounce interval and the configured groups.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.groupsMu.Lock()
	a.groups = append([]config.Group(nil), cfg.Groups...)
	a.groupsMu.Unlock()

	a.watcherMu.Lock()
	if a.activeWatcher != nil {
		a.activeWatcher.SetDebounce(cfg.Watch.Debounce)
	}
	a.watcherMu.Unlock()
	slog.Info("configuration reloaded", "groups", len(cfg.Groups), "debounce", cfg.Watch.Debounce)
}
