package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	coreapp "nbcollab/internal/core/app"
	"nbcollab/internal/core/config"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/engine/activity"
	"nbcollab/internal/shared/util"
	"nbcollab/internal/ui/report"
)

func runCommand(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	switch opts.command {
	case "graph":
		return runGraph(ctx, opts, svc, stdout)
	case "schedule":
		return runSchedule(ctx, opts, svc, stdout)
	case "ingest":
		return runIngest(ctx, opts, svc, stdout)
	case "score":
		return runScore(ctx, opts, svc, stdout)
	case "trend":
		return runTrend(ctx, opts, svc, stdout)
	default:
		return fmt.Errorf("unknown command %q", opts.command)
	}
}

// emit writes content to the -output file when one is set, else to stdout.
func emit(opts cliOptions, stdout io.Writer, content string) error {
	if opts.output != "" {
		if err := util.WriteFileWithDirs(opts.output, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
		slog.Info("report written", "path", opts.output, "format", opts.format)
		return nil
	}
	_, err := io.WriteString(stdout, content)
	return err
}

func runGraph(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	an, err := svc.AnalyzeNotebook(ctx, opts.args[0])
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		data, err := an.Graph.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode graph: %w", err)
		}
		return emit(opts, stdout, string(data)+"\n")
	case "mermaid":
		diagram, err := report.RenderMermaid(an)
		if err != nil {
			return err
		}
		if opts.inject != "" {
			block := "```mermaid\n" + strings.TrimRight(diagram, "\n") + "\n```"
			if err := report.InjectBlock(opts.inject, "graph", block); err != nil {
				return err
			}
			slog.Info("diagram injected", "path", opts.inject)
		}
		return emit(opts, stdout, diagram)
	default:
		return emit(opts, stdout, report.RenderAnalysis(an))
	}
}

func runSchedule(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	an, err := svc.AnalyzeNotebook(ctx, opts.args[0])
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		data, err := report.RenderScheduleJSON(an)
		if err != nil {
			return fmt.Errorf("encode schedule: %w", err)
		}
		return emit(opts, stdout, string(data)+"\n")
	case "markdown":
		md, err := report.RenderMarkdown(an, nil, versionString, false)
		if err != nil {
			return err
		}
		return emit(opts, stdout, md)
	default:
		return emit(opts, stdout, report.RenderSchedule(an))
	}
}

func readEvents(path string) ([]activity.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", path, err)
	}
	events, skipped, err := activity.DecodeEvents(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		slog.Warn("skipped unreadable execution rows", "path", path, "skipped", skipped)
	}
	return events, nil
}

func runIngest(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	events, err := readEvents(opts.args[0])
	if err != nil {
		return err
	}
	res, err := svc.Ingest(ctx, ports.IngestRequest{NotebookID: opts.notebookID, Events: events})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "ingested %d of %d executions for %s\n", res.Stored, res.Received, opts.notebookID)
	return err
}

func buildScoreRequest(opts cliOptions) (ports.ScoreRequest, error) {
	req := ports.ScoreRequest{
		NotebookPath: opts.args[0],
		Group:        opts.group,
		Filter:       activity.Filter{Users: splitList(opts.users)},
	}
	var err error
	if req.Filter.Since, err = parseSince(opts.since); err != nil {
		return ports.ScoreRequest{}, fmt.Errorf("invalid -since: %w", err)
	}
	if req.Filter.Until, err = parseSince(opts.until); err != nil {
		return ports.ScoreRequest{}, fmt.Errorf("invalid -until: %w", err)
	}
	if !req.Filter.Since.IsZero() && !req.Filter.Until.IsZero() && req.Filter.Until.Before(req.Filter.Since) {
		return ports.ScoreRequest{}, fmt.Errorf("-until must not be before -since")
	}
	if opts.eventsPath != "" {
		if req.Events, err = readEvents(opts.eventsPath); err != nil {
			return ports.ScoreRequest{}, err
		}
	}
	return req, nil
}

func runScore(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	req, err := buildScoreRequest(opts)
	if err != nil {
		return err
	}

	var reports []ports.ScoreReport
	if opts.allGroups {
		reports, err = svc.ScoreGroups(ctx, req)
	} else {
		var r ports.ScoreReport
		r, err = svc.Score(ctx, req)
		reports = []ports.ScoreReport{r}
	}
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		data, err := report.RenderScoresJSON(reports)
		if err != nil {
			return fmt.Errorf("encode scores: %w", err)
		}
		return emit(opts, stdout, string(data)+"\n")
	case "markdown":
		md, err := report.RenderMarkdown(reports[0].Analysis, reports, versionString, opts.windows)
		if err != nil {
			return err
		}
		return emit(opts, stdout, md)
	default:
		if opts.allGroups {
			return emit(opts, stdout, report.RenderGroupScores(reports))
		}
		return emit(opts, stdout, report.RenderScore(reports[0]))
	}
}

func runTrend(ctx context.Context, opts cliOptions, svc ports.AnalysisService, stdout io.Writer) error {
	since, err := parseSince(opts.since)
	if err != nil {
		return fmt.Errorf("invalid -since: %w", err)
	}
	window, err := parseWindow(opts.window)
	if err != nil {
		return err
	}

	trend, err := svc.Trend(ctx, ports.TrendRequest{
		NotebookID: opts.notebookID,
		Group:      opts.group,
		Since:      since,
		Window:     window,
	})
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		data, err := report.RenderTrendJSON(trend)
		if err != nil {
			return err
		}
		return emit(opts, stdout, string(data)+"\n")
	case "tsv":
		data, err := report.RenderTrendTSV(trend)
		if err != nil {
			return err
		}
		return emit(opts, stdout, string(data))
	default:
		return emit(opts, stdout, report.RenderTrend(trend))
	}
}

// runWatch starts the notebook watcher and blocks until ctx is done or the
// terminal UI exits. When cfgPath is set, edits to it hot-reload groups and
// the debounce.
func runWatch(ctx context.Context, opts cliOptions, application *coreapp.App, cfgPath string) error {
	watch := application.AnalysisService().WatchService()

	if cfgPath != "" {
		cfgWatcher := config.NewWatcher(cfgPath, application.ApplyConfig)
		if err := cfgWatcher.Start(ctx); err != nil {
			slog.Warn("config hot reload disabled", "path", cfgPath, "error", err)
		} else {
			defer cfgWatcher.Stop()
		}
	}

	if opts.ui {
		return runUI(ctx, watch)
	}

	watch.Subscribe(func(u ports.WatchUpdate) {
		printUpdate(os.Stdout, u)
	})
	if err := watch.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func printUpdate(w io.Writer, u ports.WatchUpdate) {
	fmt.Fprintln(w, formatUpdate(u))
}

func formatUpdate(u ports.WatchUpdate) string {
	stamp := u.At.Format("15:04:05")
	if u.Removed {
		return fmt.Sprintf("%s %s: removed", stamp, u.Path)
	}
	if u.Err != nil {
		return fmt.Sprintf("%s %s: %v", stamp, u.Path, u.Err)
	}
	line := fmt.Sprintf("%s %s (%s): %d sections in %d levels", stamp, u.Path, u.NotebookID, u.Sections, u.Levels)
	if u.Report != nil && u.Report.Result.Observed {
		line += fmt.Sprintf(", score %.4f at %s", u.Report.Result.Best.Score, u.Report.Result.Best.Width)
	}
	return line
}
