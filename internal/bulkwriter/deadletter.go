package bulkwriter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/smartpixl/smartpixl/internal/record"
)

// deadLetterNameLayout matches spec.md §4.7's
// deadletter_<UTC-timestamp>_<uniqueid>.json naming.
const deadLetterNameLayout = "20060102T150405.000000000Z"

// writeDeadLetter serializes a failed batch to a new JSON file under dir,
// grounded on the teacher's internal/daemon/pidfile.go atomic-write-then-
// rename discipline.
func writeDeadLetter(dir string, now func() time.Time, batch []record.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bulkwriter: mkdir %s: %w", dir, err)
	}

	name := fmt.Sprintf("deadletter_%s_%s.json", now().UTC().Format(deadLetterNameLayout), uuid.NewString())
	final := filepath.Join(dir, name)
	tmp := final + ".tmp"

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("bulkwriter: marshal dead-letter batch: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("bulkwriter: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("bulkwriter: rename %s: %w", tmp, err)
	}
	return nil
}

// listDeadLetterFilesOldestFirst lists *.json dead-letter batch files under
// dir sorted by filename, which sorts oldest-first since the timestamp
// component is lexicographically ordered (spec.md §4.7: "scanned
// oldest-first").
func listDeadLetterFilesOldestFirst(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bulkwriter: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func removeDeadLetterFile(dir, name string) error {
	return os.Remove(filepath.Join(dir, name))
}

func readDeadLetterBatch(dir, name string) ([]record.Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("bulkwriter: read %s: %w", name, err)
	}
	var batch []record.Record
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("bulkwriter: unmarshal %s: %w", name, err)
	}
	return batch, nil
}
