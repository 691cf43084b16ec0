package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	coreapp "nbcollab/internal/core/app"
	"nbcollab/internal/core/config"
	"nbcollab/internal/core/ports"
	"nbcollab/internal/data/history"
	"nbcollab/internal/ui/report"
)

const testNotebook = `{
  "nbformat": 4,
  "metadata": {"unianalytics_notebook_id": "nb-1"},
  "cells": [
    {"cell_type": "markdown", "id": "m0", "source": "# Load"},
    {"cell_type": "code", "id": "c1", "source": "df = 1"},
    {"cell_type": "markdown", "id": "m2", "source": "# Plot"},
    {"cell_type": "code", "id": "c3", "source": "print(df)"}
  ]
}`

const testEvents = `[
  {"cell": "c1", "t_start": "2024-03-01T09:00:00Z", "user_id": "ana"},
  {"cell": "c3", "t_start": "2024-03-01T11:00:00Z", "user_id": "ana"},
  {"cell": "", "t_start": "2024-03-01T11:00:00Z", "user_id": "ana"}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestService(t *testing.T, withHistory bool) ports.AnalysisService {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scoring.SliceWidths = []time.Duration{time.Minute, time.Hour}

	var store ports.HistoryStore
	if withHistory {
		s, err := history.Open(filepath.Join(t.TempDir(), "history.db"), 0)
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		store = history.NewAdapter(s)
	}

	application, err := coreapp.New(cfg, store)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	svc := application.AnalysisService()
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func run(t *testing.T, svc ports.AnalysisService, args ...string) string {
	t.Helper()
	opts, err := parseOptions(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	var out bytes.Buffer
	if err := runCommand(context.Background(), opts, svc, &out); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
	return out.String()
}

func TestRunSchedule_JSON(t *testing.T) {
	dir := t.TempDir()
	nb := writeFile(t, dir, "eda.ipynb", testNotebook)

	out := run(t, newTestService(t, false), "schedule", "-format", "json", nb)

	var doc report.ScheduleDocument
	if err := sonic.UnmarshalString(out, &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if doc.NotebookID != "nb-1" {
		t.Fatalf("unexpected notebook id %q", doc.NotebookID)
	}
	if len(doc.Levels) != 2 || doc.Levels[0][0] != "Load" || doc.Levels[1][0] != "Plot" {
		t.Fatalf("unexpected levels: %v", doc.Levels)
	}
}

func TestRunGraph_MermaidInjectsIntoMarkdown(t *testing.T) {
	dir := t.TempDir()
	nb := writeFile(t, dir, "eda.ipynb", testNotebook)
	readme := writeFile(t, dir, "README.md", "# EDA\n<!-- nbcollab:graph:start -->\nold\n<!-- nbcollab:graph:end -->\n")

	out := run(t, newTestService(t, false), "graph", "-format", "mermaid", "-inject", readme, nb)
	if !strings.Contains(out, "flowchart LR") {
		t.Fatalf("expected mermaid flowchart, got:\n%s", out)
	}

	data, err := os.ReadFile(readme)
	if err != nil {
		t.Fatalf("read readme: %v", err)
	}
	if strings.Contains(string(data), "old") || !strings.Contains(string(data), "```mermaid") {
		t.Fatalf("diagram not injected:\n%s", data)
	}
}

func TestRunGraph_WritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	nb := writeFile(t, dir, "eda.ipynb", testNotebook)
	target := filepath.Join(dir, "out", "graph.json")

	out := run(t, newTestService(t, false), "graph", "-format", "json", "-output", target, nb)
	if out != "" {
		t.Fatalf("expected nothing on stdout, got %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `"directed": true`) {
		t.Fatalf("unexpected graph document:\n%s", data)
	}
}

func TestRunScore_EventsFile(t *testing.T) {
	dir := t.TempDir()
	nb := writeFile(t, dir, "eda.ipynb", testNotebook)
	events := writeFile(t, dir, "events.json", testEvents)

	out := run(t, newTestService(t, false), "score", "-format", "json", "-events", events, nb)

	var docs []report.ScoreDocument
	if err := sonic.UnmarshalString(out, &docs); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(docs) != 1 || !docs[0].Observed {
		t.Fatalf("expected one observed score, got %+v", docs)
	}
	if docs[0].BestScore != 1.0 || docs[0].Mapped != 2 {
		t.Fatalf("unexpected score document: %+v", docs[0])
	}
}

func TestRunIngestThenScoreAndTrend(t *testing.T) {
	dir := t.TempDir()
	nb := writeFile(t, dir, "eda.ipynb", testNotebook)
	events := writeFile(t, dir, "events.json", testEvents)
	svc := newTestService(t, true)

	out := run(t, svc, "ingest", "-notebook", "nb-1", events)
	if !strings.Contains(out, "ingested 2 of 2 executions") {
		t.Fatalf("unexpected ingest output: %q", out)
	}

	out = run(t, svc, "score", nb)
	if !strings.Contains(out, "Best:") {
		t.Fatalf("expected a best score line, got:\n%s", out)
	}

	out = run(t, svc, "trend", "-notebook", "nb-1", "-format", "tsv")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one run, got:\n%s", out)
	}
}

func TestRunIngest_RequiresHistory(t *testing.T) {
	dir := t.TempDir()
	events := writeFile(t, dir, "events.json", testEvents)

	opts, err := parseOptions([]string{"ingest", "-notebook", "nb-1", events})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := runCommand(context.Background(), opts, newTestService(t, false), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without a history store")
	}
}

func TestFormatUpdate(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	removed := formatUpdate(ports.WatchUpdate{Path: "a.ipynb", Removed: true, At: at})
	if removed != "09:30:00 a.ipynb: removed" {
		t.Fatalf("unexpected removal line: %q", removed)
	}
	line := formatUpdate(ports.WatchUpdate{Path: "a.ipynb", NotebookID: "nb-1", Sections: 2, Levels: 2, At: at})
	if line != "09:30:00 a.ipynb (nb-1): 2 sections in 2 levels" {
		t.Fatalf("unexpected update line: %q", line)
	}
}
