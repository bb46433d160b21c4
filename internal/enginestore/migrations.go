package enginestore

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one schema step. Grounded on the teacher's
// internal/store/migrations.go version-table pattern.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{version: 1, sql: ""}, // handled specially: applies allSchemas
}

func (s *Store) migrate() error {
	if _, err := s.writer.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("enginestore: create migrations table: %w", err)
	}

	current, err := s.currentVersion()
	if err != nil {
		return fmt.Errorf("enginestore: read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("enginestore: migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) currentVersion() (int, error) {
	var version int
	err := s.writer.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	return version, err
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if m.version == 1 {
		if err := applyInitialSchema(tx); err != nil {
			return err
		}
	} else if m.sql != "" {
		if _, err := tx.Exec(m.sql); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func applyInitialSchema(tx *sql.Tx) error {
	for _, ddl := range allSchemas {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}
