package store

import (
	"fmt"

	"congresstwin/internal/logging"
)

// schemaVersion is stored in PRAGMA user_version. Bump it when appending to
// schemaSteps; each step is applied exactly once, in order.
const schemaVersion = 1

// schemaSteps[i] upgrades a database from user_version i to i+1.
var schemaSteps = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS plans (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			event_date       TEXT,
			source_plan_id   TEXT NOT NULL DEFAULT '',
			is_template      INTEGER NOT NULL DEFAULT 0,
			fingerprint      TEXT NOT NULL DEFAULT '',
			dirty_since_sync INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS buckets (
			id         TEXT NOT NULL,
			plan_id    TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			order_hint TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (plan_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT NOT NULL,
			plan_id          TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			bucket_id        TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			percent_complete INTEGER NOT NULL DEFAULT 0,
			priority         INTEGER NOT NULL DEFAULT 5,
			start_at         TEXT,
			due_at           TEXT,
			completed_at     TEXT,
			assignees        TEXT NOT NULL DEFAULT '[]',
			categories       TEXT NOT NULL DEFAULT '[]',
			order_hint       TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			last_modified_at TEXT NOT NULL,
			created_by       TEXT NOT NULL DEFAULT '',
			completed_by     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (plan_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS subtasks (
			id               TEXT NOT NULL,
			plan_id          TEXT NOT NULL,
			task_id          TEXT NOT NULL,
			title            TEXT NOT NULL,
			checked          INTEGER NOT NULL DEFAULT 0,
			order_hint       TEXT NOT NULL DEFAULT '',
			last_modified_at TEXT NOT NULL,
			PRIMARY KEY (plan_id, task_id, id),
			FOREIGN KEY (plan_id, task_id) REFERENCES tasks(plan_id, id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS dependencies (
			plan_id        TEXT NOT NULL,
			task_id        TEXT NOT NULL,
			predecessor_id TEXT NOT NULL,
			dep_type       TEXT NOT NULL DEFAULT 'FS',
			PRIMARY KEY (plan_id, task_id, predecessor_id),
			FOREIGN KEY (plan_id, task_id) REFERENCES tasks(plan_id, id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS task_locks (
			plan_id     TEXT NOT NULL,
			task_id     TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			acquired_at TEXT NOT NULL,
			ttl_seconds INTEGER NOT NULL,
			PRIMARY KEY (plan_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS external_events (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id           TEXT NOT NULL,
			event_type        TEXT NOT NULL,
			title             TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			severity          TEXT NOT NULL DEFAULT 'medium',
			affected_task_ids TEXT NOT NULL DEFAULT '[]',
			payload           TEXT NOT NULL DEFAULT '{}',
			created_at        TEXT NOT NULL,
			acknowledged_at   TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS proposed_actions (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id           TEXT NOT NULL,
			external_event_id INTEGER NOT NULL DEFAULT 0,
			task_id           TEXT NOT NULL DEFAULT '',
			action_type       TEXT NOT NULL,
			title             TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			payload           TEXT NOT NULL DEFAULT '{}',
			status            TEXT NOT NULL DEFAULT 'pending',
			created_at        TEXT NOT NULL,
			decided_at        TEXT,
			decided_by        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS historical_samples (
			plan_id        TEXT NOT NULL,
			task_id        TEXT NOT NULL,
			bucket         TEXT NOT NULL DEFAULT '',
			planned_days   REAL NOT NULL,
			actual_days    REAL NOT NULL,
			assignees      TEXT NOT NULL DEFAULT '[]',
			terminal_state TEXT NOT NULL,
			block_count    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (plan_id, task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			plan_id          TEXT PRIMARY KEY,
			last_sync_at     TEXT,
			previous_sync_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_plan ON tasks(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_plan ON external_events(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_plan ON proposed_actions(plan_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_event ON proposed_actions(external_event_id)`,
	},
}

func (s *Store) migrate() error {
	log := logging.Get(logging.CategoryStore)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	for v := version; v < schemaVersion; v++ {
		for _, stmt := range schemaSteps[v] {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("apply schema step %d: %w", v+1, err)
			}
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
		log.Debugw("schema upgraded", "to", v+1)
	}
	return nil
}
