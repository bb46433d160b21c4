package enginestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/bulkwriter"
	"github.com/smartpixl/smartpixl/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_CreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	defer st.Close()

	if err := st.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestInsertBatch_WritesAllRowsAndReadsBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	batch := []record.Record{
		{CompanyID: "acme", PixelID: "p1", ReceivedAt: time.Unix(1000, 0)},
		{CompanyID: "acme", PixelID: "p2", ReceivedAt: time.Unix(2000, 0)},
	}
	if err := st.InsertBatch(ctx, bulkwriter.NewBatchReader(batch)); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	rows, err := st.RawRowsAfter(ctx, 0, 10)
	if err != nil {
		t.Fatalf("RawRowsAfter: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].PixelID != "p1" || rows[1].PixelID != "p2" {
		t.Errorf("unexpected row order/content: %+v", rows)
	}
}

func TestGeoLookup_RoundTrips(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetGeoLookup(ctx, "203.0.113.1"); err != nil || ok {
		t.Fatalf("expected miss for unseeded key, got ok=%v err=%v", ok, err)
	}

	want := GeoLookup{Country: "US", Region: "CA", City: "SF", Timezone: "America/Los_Angeles", LookedUpAt: time.Unix(5000, 0)}
	if err := st.PutGeoLookup(ctx, "203.0.113.1", want); err != nil {
		t.Fatalf("PutGeoLookup: %v", err)
	}
	got, ok, err := st.GetGeoLookup(ctx, "203.0.113.1")
	if err != nil || !ok {
		t.Fatalf("expected hit after put, got ok=%v err=%v", ok, err)
	}
	if got.Country != "US" || got.City != "SF" {
		t.Errorf("got %+v, want country=US city=SF", got)
	}
}

func TestWatermark_DefaultsToZeroThenAdvances(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.Watermark(ctx, "parse")
	if err != nil || id != 0 {
		t.Fatalf("expected watermark 0 before first set, got %d (err %v)", id, err)
	}
	if err := st.SetWatermark(ctx, "parse", 42); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}
	id, err = st.Watermark(ctx, "parse")
	if err != nil || id != 42 {
		t.Fatalf("expected watermark 42, got %d (err %v)", id, err)
	}
}
