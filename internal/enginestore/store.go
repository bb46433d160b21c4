// Package enginestore is the engine's SQLite-backed persistence layer:
// the raw capture table, a geo lookup cache table, and the ETL watermark
// table (spec.md §3.4). Grounded on the teacher's internal/store/store.go
// writer/reader connection split.
package enginestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the engine. It uses the same
// two-connection pattern as the teacher: a single writer connection
// (MaxOpenConns=1) serialising all writes, and a separate read-only pool for
// concurrent reads.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	closeOnce sync.Once
}

// Open creates or opens the SQLite database at path, enabling WAL mode on
// both pools and applying all pending schema migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("enginestore: create directory %s: %w", dir, err)
	}

	writerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("enginestore: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("enginestore: ping writer: %w", err)
	}

	readerDSN := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=query_only(ON)"
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("enginestore: open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(0)
	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("enginestore: ping reader: %w", err)
	}

	s := &Store{writer: writer, reader: reader, path: path}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("enginestore: migrate: %w", err)
	}
	return s, nil
}

// Close closes both pools. Safe to call more than once.
func (s *Store) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if err := s.writer.Close(); err != nil {
			firstErr = err
		}
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Writer exposes the single writer connection for advanced callers
// (primarily tests).
func (s *Store) Writer() *sql.DB { return s.writer }

// Reader exposes the read-only pool.
func (s *Store) Reader() *sql.DB { return s.reader }

// Ping verifies both pools are alive.
func (s *Store) Ping() error {
	if err := s.writer.Ping(); err != nil {
		return fmt.Errorf("enginestore: writer ping: %w", err)
	}
	if err := s.reader.Ping(); err != nil {
		return fmt.Errorf("enginestore: reader ping: %w", err)
	}
	return nil
}
