package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nbcollab/internal/core/errors"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/data/history"
	"nbcollab/internal/shared/observability"
)

type analysisService struct {
	app *App
}

var _ ports.AnalysisService = (*analysisService)(nil)

func NewAnalysisService(app *App) ports.AnalysisService {
	return &analysisService{app: app}
}

func (a *App) AnalysisService() ports.AnalysisService {
	return NewAnalysisService(a)
}

func (s *analysisService) Close(ctx context.Context) error {
	if s == nil || s.app == nil {
		return nil
	}
	return s.app.Close(ctx)
}

// AnalyzeNotebook builds the graph and schedule for one notebook and stores
// the graph when history is enabled.
func (s *analysisService) AnalyzeNotebook(ctx context.Context, path string) (*ports.Analysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.AnalyzeNotebook")
	defer span.End()

	if strings.TrimSpace(path) == "" {
		return nil, errors.New(errors.CodeValidationError, "notebook path is required")
	}
	an, err := s.app.AnalyzeNotebook(ctx, path)
	if err != nil {
		return nil, err
	}
	if s.app.history != nil {
		if err := s.app.history.SaveGraph(ctx, an.NotebookID, an.Notebook.Name, an.Graph); err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "save_graph")
		}
	}
	return an, nil
}

func (s *analysisService) Ingest(ctx context.Context, req ports.IngestRequest) (ports.IngestResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Ingest", trace.WithAttributes(
		attribute.String("notebook", req.NotebookID),
		attribute.Int("events", len(req.Events)),
	))
	defer span.End()

	if s.app.history == nil {
		return ports.IngestResult{}, errors.New(errors.CodeNotSupported, "ingest requires the history store (db.enabled)")
	}
	if strings.TrimSpace(req.NotebookID) == "" {
		return ports.IngestResult{}, errors.New(errors.CodeValidationError, "notebook id is required")
	}

	stored, err := s.app.history.RecordExecutions(ctx, req.NotebookID, req.Events)
	if err != nil {
		span.RecordError(err)
		return ports.IngestResult{}, errors.AddContext(err, errors.CtxNotebook, req.NotebookID)
	}
	slog.Info("executions ingested", "notebook", req.NotebookID, "received", len(req.Events), "stored", stored)
	return ports.IngestResult{Received: len(req.Events), Stored: stored}, nil
}

// Score scores one notebook against the selected executions. Observed results
// are stored as a score run when history is enabled.
func (s *analysisService) Score(ctx context.Context, req ports.ScoreRequest) (ports.ScoreReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Score", trace.WithAttributes(
		attribute.String("path", req.NotebookPath),
		attribute.String("group", req.Group),
	))
	defer span.End()

	an, err := s.AnalyzeNotebook(ctx, req.NotebookPath)
	if err != nil {
		return ports.ScoreReport{}, err
	}
	report, err := s.app.scoreAnalysis(ctx, an, req)
	if err != nil {
		span.RecordError(err)
		return ports.ScoreReport{}, err
	}
	if err := s.saveReport(ctx, &report); err != nil {
		return report, err
	}
	return report, nil
}

// ScoreGroups scores the notebook once per defined group, in name order.
func (s *analysisService) ScoreGroups(ctx context.Context, req ports.ScoreRequest) ([]ports.ScoreReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.ScoreGroups")
	defer span.End()

	an, err := s.AnalyzeNotebook(ctx, req.NotebookPath)
	if err != nil {
		return nil, err
	}
	groups, err := s.app.Groups(ctx, an.NotebookID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotFound, "no groups are defined for this notebook"),
			errors.CtxNotebook, an.NotebookID,
		)
	}

	reports := make([]ports.ScoreReport, 0, len(groups))
	for _, g := range groups {
		groupReq := req
		groupReq.Group = g.Name
		report, err := s.app.scoreAnalysis(ctx, an, groupReq)
		if err != nil {
			return reports, err
		}
		if err := s.saveReport(ctx, &report); err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	span.SetAttributes(attribute.Int("groups", len(reports)))
	return reports, nil
}

func (s *analysisService) saveReport(ctx context.Context, report *ports.ScoreReport) error {
	if s.app.history == nil || !report.Result.Observed {
		return nil
	}
	id, err := s.app.history.SaveResult(ctx, report.Analysis.NotebookID, report.Group, report.Result)
	if err != nil {
		return errors.AddContext(err, errors.CtxOperation, "save_result")
	}
	report.RunID = id
	return nil
}

func (s *analysisService) Trend(ctx context.Context, req ports.TrendRequest) (history.TrendReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Trend")
	defer span.End()

	if s.app.history == nil {
		return history.TrendReport{}, errors.New(errors.CodeNotSupported, "trends require the history store (db.enabled)")
	}
	if strings.TrimSpace(req.NotebookID) == "" {
		return history.TrendReport{}, errors.New(errors.CodeValidationError, "notebook id is required")
	}
	if req.Window < 0 {
		return history.TrendReport{}, errors.New(errors.CodeValidationError, fmt.Sprintf("trend window must not be negative, got %s", req.Window))
	}
	return s.app.history.Trend(ctx, req.NotebookID, req.Group, req.Since, req.Window)
}

func (s *analysisService) WatchService() ports.WatchService {
	return &watchService{app: s.app}
}
