package bulkwriter

import "github.com/smartpixl/smartpixl/internal/record"

// BatchReader exposes a batch of records as a nine-column ordinal stream
// for the bulk-load primitive (spec.md §4.7): "a streaming reader adapter
// that exposes nine columns by ordinal over the in-memory batch, no
// intermediate row objects, no type-lookup dictionaries". Columns are read
// straight off each record.Record via Columns(); no per-row DTO is ever
// allocated.
type BatchReader struct {
	rows []record.Record
	pos  int
}

func NewBatchReader(rows []record.Record) *BatchReader {
	return &BatchReader{rows: rows, pos: -1}
}

// Next advances to the next row, returning false once exhausted.
func (b *BatchReader) Next() bool {
	b.pos++
	return b.pos < len(b.rows)
}

// Values returns the current row's nine columns in fixed ordinal order.
func (b *BatchReader) Values() [9]any {
	return b.rows[b.pos].Columns()
}

func (b *BatchReader) Len() int {
	return len(b.rows)
}
