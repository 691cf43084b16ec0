package history

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notebooks (
  notebook_id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  graph_json BLOB NOT NULL,
  saved_at_utc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cell_executions (
  notebook_id TEXT NOT NULL,
  cell_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  t_start_utc TEXT NOT NULL,
  PRIMARY KEY (notebook_id, cell_id, user_id, t_start_utc)
);
CREATE INDEX IF NOT EXISTS idx_cell_executions_ts ON cell_executions(notebook_id, t_start_utc);
CREATE TABLE IF NOT EXISTS user_groups (
  notebook_id TEXT NOT NULL,
  name TEXT NOT NULL,
  PRIMARY KEY (notebook_id, name)
);
CREATE TABLE IF NOT EXISTS group_members (
  notebook_id TEXT NOT NULL,
  group_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (notebook_id, group_name, user_id),
  FOREIGN KEY (notebook_id, group_name) REFERENCES user_groups(notebook_id, name) ON DELETE CASCADE
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS score_runs (
  run_id TEXT PRIMARY KEY,
  notebook_id TEXT NOT NULL,
  group_name TEXT NOT NULL DEFAULT '',
  computed_at_utc TEXT NOT NULL,
  best_width_ns INTEGER NOT NULL,
  best_score REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_runs_notebook ON score_runs(notebook_id, group_name, computed_at_utc);
CREATE TABLE IF NOT EXISTS width_scores (
  run_id TEXT NOT NULL,
  width_ns INTEGER NOT NULL,
  score REAL NOT NULL,
  PRIMARY KEY (run_id, width_ns),
  FOREIGN KEY (run_id) REFERENCES score_runs(run_id) ON DELETE CASCADE
);
`,
	},
}

func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
