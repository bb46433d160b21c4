package bulkwriter

import (
	"testing"

	"github.com/smartpixl/smartpixl/internal/record"
)

func TestBatchReader_IteratesInOrderByOrdinal(t *testing.T) {
	rows := []record.Record{
		{CompanyID: "acme", PixelID: "p1"},
		{CompanyID: "globex", PixelID: "p2"},
	}
	r := NewBatchReader(rows)

	var companies []string
	for r.Next() {
		cols := r.Values()
		companies = append(companies, cols[0].(string))
	}
	if len(companies) != 2 || companies[0] != "acme" || companies[1] != "globex" {
		t.Fatalf("unexpected iteration order: %v", companies)
	}
	if r.Next() {
		t.Error("expected Next() to return false once exhausted")
	}
}
