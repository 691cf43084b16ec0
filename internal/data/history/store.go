package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	domainerrors "nbcollab/internal/core/errors"
	"nbcollab/internal/engine/activity"
)

const (
	driverName         = "sqlite"
	maxAttempts        = 5
	defaultBusyTimeout = 2 * time.Second
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open creates or opens the sqlite database at path and applies pending
// migrations. A zero busyTimeout uses the default.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	// busy_timeout + WAL keep watch-mode ingestion from tripping over readers.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveGraph stores the latest graph document of a notebook, replacing any
// earlier one.
func (s *Store) SaveGraph(ctx context.Context, snap GraphSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(snap.NotebookID) == "" {
		return domainerrors.New(domainerrors.CodeValidationError, "notebook id must not be empty")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	query := `
INSERT INTO notebooks (notebook_id, name, graph_json, saved_at_utc)
VALUES (?, ?, ?, ?)
ON CONFLICT(notebook_id) DO UPDATE SET
  name=excluded.name,
  graph_json=excluded.graph_json,
  saved_at_utc=excluded.saved_at_utc
`
	return s.withRetry("save graph", func() error {
		_, err := s.db.ExecContext(ctx, query, snap.NotebookID, snap.Name, snap.Document, snap.SavedAt.UTC().Format(tsLayout))
		return err
	})
}

func (s *Store) LoadGraph(ctx context.Context, notebookID string) (GraphSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		snap  GraphSnapshot
		tsRaw string
	)
	err := s.withRetry("load graph", func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT notebook_id, name, graph_json, saved_at_utc FROM notebooks WHERE notebook_id = ?`,
			notebookID,
		).Scan(&snap.NotebookID, &snap.Name, &snap.Document, &tsRaw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		e := domainerrors.New(domainerrors.CodeNotFound, "no graph stored for notebook")
		return GraphSnapshot{}, domainerrors.AddContext(e, domainerrors.CtxNotebook, notebookID)
	}
	if err != nil {
		return GraphSnapshot{}, err
	}
	ts, err := time.Parse(tsLayout, tsRaw)
	if err != nil {
		return GraphSnapshot{}, fmt.Errorf("parse graph timestamp %q: %w", tsRaw, err)
	}
	snap.SavedAt = ts.UTC()
	return snap, nil
}

// RecordExecutions appends execution events for a notebook. Events already
// stored are ignored; the number of new rows is returned.
func (s *Store) RecordExecutions(ctx context.Context, notebookID string, events []activity.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	err := s.withRetry("record executions", func() error {
		inserted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO cell_executions (notebook_id, cell_id, user_id, status, t_start_utc)
VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			res, err := stmt.ExecContext(ctx, notebookID, ev.CellID, ev.UserID, ev.Status, ev.Timestamp.UTC().Format(tsLayout))
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return tx.Commit()
	})
	return inserted, err
}

// LoadExecutions returns the stored events of a notebook matching filter, in
// timestamp order.
func (s *Store) LoadExecutions(ctx context.Context, notebookID string, filter activity.Filter) ([]activity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT cell_id, user_id, status, t_start_utc FROM cell_executions WHERE notebook_id = ?`
	args := []any{notebookID}
	if !filter.Since.IsZero() {
		query += " AND t_start_utc >= ?"
		args = append(args, filter.Since.UTC().Format(tsLayout))
	}
	if !filter.Until.IsZero() {
		query += " AND t_start_utc <= ?"
		args = append(args, filter.Until.UTC().Format(tsLayout))
	}
	if len(filter.Users) > 0 {
		query += " AND user_id IN (?" + strings.Repeat(", ?", len(filter.Users)-1) + ")"
		for _, u := range filter.Users {
			args = append(args, u)
		}
	}
	query += " ORDER BY t_start_utc ASC, cell_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load executions", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]activity.Event, 0)
	for rows.Next() {
		var (
			ev    activity.Event
			tsRaw string
		)
		if err := rows.Scan(&ev.CellID, &ev.UserID, &ev.Status, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		ts, err := time.Parse(tsLayout, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse execution timestamp %q: %w", tsRaw, err)
		}
		ev.Timestamp = ts.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return events, nil
}

// SaveGroup creates or replaces a group and its membership.
func (s *Store) SaveGroup(ctx context.Context, group Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(group.Name) == "" {
		e := domainerrors.New(domainerrors.CodeValidationError, "group name must not be empty")
		return domainerrors.AddContext(e, domainerrors.CtxNotebook, group.NotebookID)
	}

	return s.withRetry("save group", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_groups (notebook_id, name) VALUES (?, ?)`,
			group.NotebookID, group.Name,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE notebook_id = ? AND group_name = ?`,
			group.NotebookID, group.Name,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, member := range group.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO group_members (notebook_id, group_name, user_id) VALUES (?, ?, ?)`,
				group.NotebookID, group.Name, member,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) LoadGroups(ctx context.Context, notebookID string) ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load groups", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT g.name, COALESCE(m.user_id, '')
FROM user_groups g
LEFT JOIN group_members m ON m.notebook_id = g.notebook_id AND m.group_name = g.name
WHERE g.notebook_id = ?
ORDER BY g.name ASC, m.user_id ASC`, notebookID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]Group, 0)
	for rows.Next() {
		var name, member string
		if err := rows.Scan(&name, &member); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if len(groups) == 0 || groups[len(groups)-1].Name != name {
			groups = append(groups, Group{NotebookID: notebookID, Name: name})
		}
		if member != "" {
			last := &groups[len(groups)-1]
			last.Members = append(last.Members, member)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}

// SaveScoreRun persists a scoring pass and returns its run id, generating one
// when the run has none.
func (s *Store) SaveScoreRun(ctx context.Context, run ScoreRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.ComputedAt.IsZero() {
		run.ComputedAt = time.Now().UTC()
	}

	err := s.withRetry("save score run", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO score_runs (run_id, notebook_id, group_name, computed_at_utc, best_width_ns, best_score)
VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, run.NotebookID, run.Group, run.ComputedAt.UTC().Format(tsLayout),
			int64(run.BestWidth), run.BestScore,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, ws := range run.Widths {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO width_scores (run_id, width_ns, score) VALUES (?, ?, ?)`,
				run.RunID, int64(ws.Width), ws.Score,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return run.RunID, nil
}

// LoadScoreRuns returns the runs of a notebook and group computed at or after
// since, oldest first, each with its per-width scores.
func (s *Store) LoadScoreRuns(ctx context.Context, notebookID, group string, since time.Time) ([]ScoreRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT r.run_id, r.computed_at_utc, r.best_width_ns, r.best_score, w.width_ns, w.score
FROM score_runs r
LEFT JOIN width_scores w ON w.run_id = r.run_id
WHERE r.notebook_id = ? AND r.group_name = ?`
	args := []any{notebookID, group}
	if !since.IsZero() {
		query += " AND r.computed_at_utc >= ?"
		args = append(args, since.UTC().Format(tsLayout))
	}
	query += " ORDER BY r.computed_at_utc ASC, r.run_id ASC, w.width_ns ASC"

	var rows *sql.Rows
	err := s.withRetry("load score runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]ScoreRun, 0)
	for rows.Next() {
		var (
			runID, tsRaw string
			bestWidth    int64
			bestScore    float64
			width        sql.NullInt64
			score        sql.NullFloat64
		)
		if err := rows.Scan(&runID, &tsRaw, &bestWidth, &bestScore, &width, &score); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		if len(runs) == 0 || runs[len(runs)-1].RunID != runID {
			ts, err := time.Parse(tsLayout, tsRaw)
			if err != nil {
				return nil, fmt.Errorf("parse score timestamp %q: %w", tsRaw, err)
			}
			runs = append(runs, ScoreRun{
				RunID:      runID,
				NotebookID: notebookID,
				Group:      group,
				ComputedAt: ts.UTC(),
				BestWidth:  time.Duration(bestWidth),
				BestScore:  bestScore,
			})
		}
		if width.Valid {
			last := &runs[len(runs)-1]
			last.Widths = append(last.Widths, WidthScore{Width: time.Duration(width.Int64), Score: score.Float64})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
