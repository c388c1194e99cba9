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
CREATE TABLE IF NOT EXISTS runs (
  run_id          TEXT PRIMARY KEY,
  schema_version  INTEGER NOT NULL,
  ts_utc          TEXT NOT NULL,
  commit_hash     TEXT NOT NULL DEFAULT '',
  commit_ts_utc   TEXT NOT NULL DEFAULT '',
  package         TEXT NOT NULL,
  current_version TEXT NOT NULL DEFAULT '',
  target_version  TEXT NOT NULL DEFAULT '',
  total_score     REAL NOT NULL,
  severity        TEXT NOT NULL,
  semver_score    REAL NOT NULL DEFAULT 0,
  usage_score     REAL NOT NULL DEFAULT 0,
  changelog_score REAL NOT NULL DEFAULT 0,
  coverage        TEXT NOT NULL DEFAULT 'unknown',
  change_count    INTEGER NOT NULL DEFAULT 0,
  usage_count     INTEGER NOT NULL DEFAULT 0,
  created_at_utc  TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
CREATE INDEX IF NOT EXISTS idx_runs_package_ts ON runs(package, ts_utc);
`,
	},
}

// EnsureSchema brings the database up to SchemaVersion. The applied version
// lives in PRAGMA user_version; each step commits on its own.
func EnsureSchema(db *sql.DB) error {
	var current int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("history schema %d is newer than supported %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
		return err
	}
	return tx.Commit()
}
