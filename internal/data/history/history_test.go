package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	domainerrors "nbcollab/internal/core/errors"
	"nbcollab/internal/engine/activity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveLoadGraphUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveGraph(ctx, GraphSnapshot{NotebookID: "nb-1", Name: "eda.ipynb", Document: []byte(`{"v":1}`)}); err != nil {
		t.Fatalf("save first graph: %v", err)
	}
	if err := store.SaveGraph(ctx, GraphSnapshot{NotebookID: "nb-1", Name: "eda.ipynb", Document: []byte(`{"v":2}`)}); err != nil {
		t.Fatalf("save second graph: %v", err)
	}

	got, err := store.LoadGraph(ctx, "nb-1")
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	if string(got.Document) != `{"v":2}` || got.Name != "eda.ipynb" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.SavedAt.IsZero() {
		t.Fatal("expected saved_at to be populated")
	}

	_, err = store.LoadGraph(ctx, "nb-missing")
	if !domainerrors.IsCode(err, domainerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_ExecutionsDeduplicateAndFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

	events := []activity.Event{
		{CellID: "c1", UserID: "ana", Status: "ok", Timestamp: base},
		{CellID: "c2", UserID: "bo", Status: "ok", Timestamp: base.Add(time.Minute)},
		{CellID: "c3", UserID: "ana", Status: "error", Timestamp: base.Add(2*time.Minute + 500*time.Millisecond)},
	}
	n, err := store.RecordExecutions(ctx, "nb-1", events)
	if err != nil {
		t.Fatalf("record executions: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 inserted rows, got %d", n)
	}
	n, err = store.RecordExecutions(ctx, "nb-1", events[:1])
	if err != nil {
		t.Fatalf("record duplicate: %v", err)
	}
	if n != 0 {
		t.Fatalf("duplicate event inserted %d rows", n)
	}

	all, err := store.LoadExecutions(ctx, "nb-1", activity.Filter{})
	if err != nil {
		t.Fatalf("load executions: %v", err)
	}
	if len(all) != 3 || !all[2].Timestamp.Equal(events[2].Timestamp) {
		t.Fatalf("unexpected rows: %+v", all)
	}

	got, err := store.LoadExecutions(ctx, "nb-1", activity.Filter{Since: base.Add(30 * time.Second), Users: []string{"ana"}})
	if err != nil {
		t.Fatalf("load filtered executions: %v", err)
	}
	if len(got) != 1 || got[0].CellID != "c3" || got[0].Status != "error" {
		t.Fatalf("unexpected filtered rows: %+v", got)
	}

	other, err := store.LoadExecutions(ctx, "nb-2", activity.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("notebooks should be isolated, got %+v", other)
	}
}

func TestStore_GroupsReplaceMembers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveGroup(ctx, Group{NotebookID: "nb-1", Name: "team-a", Members: []string{"bo", "ana"}}); err != nil {
		t.Fatalf("save group: %v", err)
	}
	if err := store.SaveGroup(ctx, Group{NotebookID: "nb-1", Name: "team-a", Members: []string{"cy"}}); err != nil {
		t.Fatalf("replace group: %v", err)
	}
	if err := store.SaveGroup(ctx, Group{NotebookID: "nb-1", Name: "empty"}); err != nil {
		t.Fatalf("save empty group: %v", err)
	}

	groups, err := store.LoadGroups(ctx, "nb-1")
	if err != nil {
		t.Fatalf("load groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %+v", groups)
	}
	if groups[0].Name != "empty" || len(groups[0].Members) != 0 {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if groups[1].Name != "team-a" || len(groups[1].Members) != 1 || groups[1].Members[0] != "cy" {
		t.Fatalf("unexpected second group: %+v", groups[1])
	}

	if err := store.SaveGroup(ctx, Group{NotebookID: "nb-1"}); !domainerrors.IsCode(err, domainerrors.CodeValidationError) {
		t.Fatalf("expected validation error for unnamed group, got %v", err)
	}
}

func TestStore_ScoreRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

	runID, err := store.SaveScoreRun(ctx, ScoreRun{
		NotebookID: "nb-1",
		ComputedAt: base,
		BestWidth:  5 * time.Minute,
		BestScore:  0.75,
		Widths: []WidthScore{
			{Width: time.Minute, Score: 0.5},
			{Width: 5 * time.Minute, Score: 0.75},
		},
	})
	if err != nil {
		t.Fatalf("save run: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a generated run id")
	}
	if _, err := store.SaveScoreRun(ctx, ScoreRun{NotebookID: "nb-1", Group: "team-a", ComputedAt: base, BestScore: 1}); err != nil {
		t.Fatalf("save group run: %v", err)
	}

	runs, err := store.LoadScoreRuns(ctx, "nb-1", "", time.Time{})
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != runID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if len(runs[0].Widths) != 2 || runs[0].Widths[1].Width != 5*time.Minute || runs[0].BestScore != 0.75 {
		t.Fatalf("run details did not round trip: %+v", runs[0])
	}

	later, err := store.LoadScoreRuns(ctx, "nb-1", "", base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(later) != 0 {
		t.Fatalf("since filter ignored: %+v", later)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, 0)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []ScoreRun{
		{RunID: "r1", NotebookID: "nb-1", ComputedAt: base, BestScore: 0.5},
		{RunID: "r2", NotebookID: "nb-1", ComputedAt: base.Add(2 * time.Hour), BestScore: 0.75},
		{RunID: "r3", NotebookID: "nb-1", ComputedAt: base.Add(30 * time.Hour), BestScore: 0.25},
	}

	report, err := BuildTrendReport(runs, 24*time.Hour)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.RunCount != 3 {
		t.Fatalf("expected 3 runs, got %d", report.RunCount)
	}
	if report.Points[1].Delta != 0.25 {
		t.Fatalf("expected delta 0.25, got %v", report.Points[1].Delta)
	}
	if report.Points[1].MovingAvg != 0.625 {
		t.Fatalf("expected moving avg 0.625, got %v", report.Points[1].MovingAvg)
	}
	if report.Points[2].MovingAvg != 0.25 {
		t.Fatalf("window should exclude old runs, got %v", report.Points[2].MovingAvg)
	}

	if _, err := BuildTrendReport(nil, time.Hour); err == nil {
		t.Fatal("expected error for empty series")
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}
