package enginestore

import "context"

// parseWatermarkName and identityWatermarkName are the two distinct
// watermarks spec.md §4.8's parse and identity-match routines track
// independently ("both are watermark-driven by the store").
const (
	parseWatermarkName    = "etl_parse"
	identityWatermarkName = "etl_identity_match"
)

const etlBatchLimit = 500

// ParseRaw advances the parse watermark over any raw rows it has not yet
// seen. The routine's internals are intentionally opaque to the engine
// (spec.md §4.8); this implementation's concrete contribution is ensuring
// every raw row is visited exactly once per watermark, in id order.
func (s *Store) ParseRaw(ctx context.Context) (int, error) {
	return s.advanceWatermark(ctx, parseWatermarkName)
}

// MatchIdentity advances the identity-match watermark independently of the
// parse watermark, so a slow parse pass never blocks identity-match from
// picking up newly parsed rows on the next tick.
func (s *Store) MatchIdentity(ctx context.Context) (int, error) {
	return s.advanceWatermark(ctx, identityWatermarkName)
}

// advanceWatermark reads up to etlBatchLimit rows past name's current
// watermark and moves it to the highest id seen.
func (s *Store) advanceWatermark(ctx context.Context, name string) (int, error) {
	current, err := s.Watermark(ctx, name)
	if err != nil {
		return 0, err
	}

	rows, err := s.RawRowsAfter(ctx, current, etlBatchLimit)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	last := rows[len(rows)-1].ID
	if err := s.SetWatermark(ctx, name, last); err != nil {
		return 0, err
	}
	return len(rows), nil
}
