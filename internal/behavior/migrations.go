package behavior

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the newest migration version this build understands.
const SchemaVersion = 1

var migrations = []struct {
	version int
	stmts   []string
}{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS behavior_events (
				id TEXT PRIMARY KEY,
				ts INTEGER NOT NULL,
				session_key TEXT NOT NULL,
				type TEXT NOT NULL,
				pattern_hash TEXT NOT NULL,
				suggestion_id TEXT,
				mode TEXT,
				user_action TEXT,
				confidence REAL,
				workspace TEXT,
				file_path TEXT,
				app_name TEXT,
				metadata_json TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_behavior_events_ts ON behavior_events(ts)`,
			`CREATE INDEX IF NOT EXISTS idx_behavior_events_pattern ON behavior_events(pattern_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_behavior_events_session ON behavior_events(session_key)`,
			`CREATE TABLE IF NOT EXISTS pattern_preferences (
				pattern_hash TEXT PRIMARY KEY,
				preference TEXT NOT NULL,
				score REAL NOT NULL DEFAULT 0,
				updated_at_ms INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sync_watermarks (
				device_id TEXT PRIMARY KEY,
				last_event_ts INTEGER NOT NULL
			)`,
		},
	},
}

// applyMigrations brings the database up to SchemaVersion and returns the
// resulting version.
func applyMigrations(db *sql.DB, nowMs int64) (int, error) {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS neuro_schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at_ms INTEGER NOT NULL
		)`,
	); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM neuro_schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && current.Int64 >= int64(m.version) {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := db.Exec(stmt); err != nil {
				return 0, fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO neuro_schema_migrations(version, applied_at_ms) VALUES(?, ?)`,
			m.version, nowMs,
		); err != nil {
			return 0, fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return SchemaVersion, nil
}
