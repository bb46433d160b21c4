package catchup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartpixl/smartpixl/internal/record"
)

type fakeSink struct {
	got []record.Record
}

func (f *fakeSink) Push(r record.Record) bool {
	f.got = append(f.got, r)
	return true
}

func TestScanOnce_ReplaysAndDeletesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	rec := record.Record{CompanyID: "acme", PixelID: "p1"}
	line, _ := rec.MarshalLine()
	path := filepath.Join(dir, "failover_2026_01_01.jsonl")
	if err := os.WriteFile(path, append(line, '\n'), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	s := New(dir, sink)
	s.scanOnce()

	if len(sink.got) != 1 {
		t.Fatalf("expected 1 replayed record, got %d", len(sink.got))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected fully-replayed file to be deleted")
	}
}

func TestScanOnce_LeavesFileWithMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failover_2026_01_02.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	s := New(dir, sink)
	s.scanOnce()

	if _, err := os.Stat(path); err != nil {
		t.Error("expected file with a malformed line to remain for next cycle")
	}
}
