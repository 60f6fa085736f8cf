package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		flow_id TEXT NOT NULL,
		id TEXT NOT NULL,
		objective TEXT NOT NULL,
		contract TEXT,
		status INTEGER NOT NULL,
		result TEXT,
		error TEXT,
		parent TEXT,
		agents TEXT,
		completion_agents TEXT,
		max_turns INTEGER NOT NULL DEFAULT 0,
		max_calls INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (flow_id, id)
	);

	CREATE TABLE IF NOT EXISTS task_edges (
		flow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		tolerate_failure INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (flow_id, task_id, target_id, kind),
		FOREIGN KEY (flow_id, task_id) REFERENCES tasks(flow_id, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_edges_task ON task_edges(flow_id, task_id);

	CREATE TABLE IF NOT EXISTS flow_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		flow_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		agent TEXT,
		task_id TEXT,
		content TEXT,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flow_events_flow ON flow_events(flow_id, seq);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		flow_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		turns INTEGER NOT NULL,
		finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
