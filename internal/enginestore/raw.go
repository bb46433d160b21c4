package enginestore

import (
	"context"
	"fmt"

	"github.com/smartpixl/smartpixl/internal/bulkwriter"
)

const insertRawSQL = `
INSERT INTO raw (
    company_id, pixel_id, remote_address, request_path,
    query_string, headers_json, user_agent, referer, received_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBatch writes an entire batch inside one transaction via a single
// prepared statement, reading each row's columns by ordinal straight off
// rows (spec.md §4.7: "no intermediate row objects, no type-lookup
// dictionaries"). Satisfies bulkwriter.Store.
func (s *Store) InsertBatch(ctx context.Context, rows *bulkwriter.BatchReader) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("enginestore: begin batch tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertRawSQL)
	if err != nil {
		return fmt.Errorf("enginestore: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for rows.Next() {
		cols := rows.Values()
		if _, err := stmt.ExecContext(ctx, cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6], cols[7], cols[8]); err != nil {
			return fmt.Errorf("enginestore: insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("enginestore: commit batch: %w", err)
	}
	return nil
}

// RawRow is a single row read back from the raw table, used by the ETL
// trigger's parse/identity-match routines (spec.md §4.8).
type RawRow struct {
	ID            int64
	CompanyID     string
	PixelID       string
	RemoteAddress string
	RequestPath   string
	QueryString   string
	HeadersJson   string
	UserAgent     string
	Referer       string
	ReceivedAt    string
}

// RawRowsAfter reads up to limit raw rows with id > afterID, ascending by
// id, for ETL watermark-driven processing.
func (s *Store) RawRowsAfter(ctx context.Context, afterID int64, limit int) ([]RawRow, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, company_id, pixel_id, remote_address, request_path,
		       query_string, headers_json, user_agent, referer, received_at
		FROM raw WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("enginestore: query raw rows: %w", err)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var r RawRow
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.PixelID, &r.RemoteAddress, &r.RequestPath,
			&r.QueryString, &r.HeadersJson, &r.UserAgent, &r.Referer, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("enginestore: scan raw row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
