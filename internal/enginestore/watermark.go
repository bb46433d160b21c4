package enginestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Watermark tracks the last raw row id processed by a named ETL routine
// (spec.md §3.4, §4.8: "both are watermark-driven by the store").
func (s *Store) Watermark(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.reader.QueryRowContext(ctx,
		`SELECT last_raw_id FROM etl_watermark WHERE name = ?`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("enginestore: read watermark %s: %w", name, err)
	}
	return id, nil
}

// SetWatermark advances the named watermark to id.
func (s *Store) SetWatermark(ctx context.Context, name string, id int64) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO etl_watermark (name, last_raw_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET last_raw_id = excluded.last_raw_id, updated_at = excluded.updated_at`,
		name, id, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("enginestore: set watermark %s: %w", name, err)
	}
	return nil
}
