package db

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version string
	stmts   []string
}

var migrations = []migration{
	{
		version: "0001_request_logs",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS request_logs (
  id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  request_id VARCHAR(64) NOT NULL,
  capability VARCHAR(32) NOT NULL,
  model VARCHAR(64) NOT NULL DEFAULT '',
  outcome VARCHAR(32) NOT NULL,
  status INT NOT NULL,
  latency_ms BIGINT NOT NULL DEFAULT 0,
  prompt_bytes INT NOT NULL DEFAULT 0,
  input_tokens BIGINT NOT NULL DEFAULT 0,
  output_tokens BIGINT NOT NULL DEFAULT 0,
  history_len INT NOT NULL DEFAULT 0,
  image_attached TINYINT(1) NOT NULL DEFAULT 0,
  error_msg TEXT,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_request_logs_created_at (created_at),
  KEY idx_request_logs_capability (capability)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		},
	},
}

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version VARCHAR(255) PRIMARY KEY,
  applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := hasMigration(db, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, s := range m.stmts {
			if _, err := tx.Exec(s); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %s: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func hasMigration(db *sql.DB, version string) (bool, error) {
	var v string
	err := db.QueryRow(`SELECT version FROM schema_migrations WHERE version = ?`, version).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == version, nil
}
