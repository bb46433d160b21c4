package bulkwriter

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/circuit"
	"github.com/smartpixl/smartpixl/internal/record"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]record.Record
	nextErr []error
}

func (f *fakeStore) InsertBatch(ctx context.Context, rows *BatchReader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.nextErr) > 0 {
		err = f.nextErr[0]
		f.nextErr = f.nextErr[1:]
	}
	var batch []record.Record
	for rows.Next() {
		cols := rows.Values()
		batch = append(batch, record.Record{CompanyID: cols[0].(string)})
	}
	f.batches = append(f.batches, batch)
	return err
}

func newRec(company string) record.Record {
	return record.Record{CompanyID: company, ReceivedAt: time.Unix(0, 0)}
}

func TestWriter_WritesBatchOnSuccess(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	w := New(store, circuit.New(3, 30*time.Second, 1), 10, 2, dir, time.Second)

	w.Enqueue(newRec("acme"))
	w.Enqueue(newRec("globex"))
	w.drainOnce(context.Background())

	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %+v", store.batches)
	}
}

func TestWriter_DeadlockClassificationRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{nextErr: []error{errors.New("deadlock detected"), nil}}
	w := New(store, circuit.New(5, 30*time.Second, 1), 10, 5, dir, time.Second)
	w.now = func() time.Time { return time.Unix(0, 0) }
	w.retryDelays = []time.Duration{time.Millisecond}

	w.Enqueue(newRec("acme"))
	w.drainOnce(context.Background())

	if len(store.batches) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(store.batches))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no dead-letter file after eventual success, got %d", len(entries))
	}
}

func TestWriter_FilegroupFullTripsCircuitAndDeadLetters(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{nextErr: []error{errors.New("Filegroup full on primary")}}
	breaker := circuit.New(5, 30*time.Second, 1)
	w := New(store, breaker, 10, 5, dir, time.Second)
	w.now = func() time.Time { return time.Unix(0, 0) }

	w.Enqueue(newRec("acme"))
	w.drainOnce(context.Background())

	if breaker.State() != circuit.Open {
		t.Errorf("expected circuit Open after filegroup-full error, got %v", breaker.State())
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one dead-letter file, got %v (err %v)", entries, err)
	}
}

func TestWriter_OpenCircuitDeadLettersWithoutCallingStore(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	breaker := circuit.New(1, 30*time.Second, 1)
	breaker.Trip()
	w := New(store, breaker, 10, 5, dir, time.Second)
	w.now = func() time.Time { return time.Unix(0, 0) }

	w.Enqueue(newRec("acme"))
	w.drainOnce(context.Background())

	if len(store.batches) != 0 {
		t.Errorf("expected store not to be called while circuit is open")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one dead-letter file, got %d", len(entries))
	}
}

func TestWriter_ReloadDeadLettersReplaysAndDeletesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	if err := writeDeadLetter(dir, func() time.Time { return time.Unix(0, 0) }, []record.Record{newRec("acme")}); err != nil {
		t.Fatalf("writeDeadLetter: %v", err)
	}
	store := &fakeStore{}
	w := New(store, circuit.New(3, 30*time.Second, 1), 10, 5, dir, time.Second)

	w.reloadDeadLetters(context.Background())

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected dead-letter file to be deleted after successful replay, got %d", len(entries))
	}
	if len(store.batches) != 1 {
		t.Errorf("expected the replayed batch to reach the store")
	}
}

func TestWriter_ReloadDeadLettersLeavesFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	if err := writeDeadLetter(dir, func() time.Time { return time.Unix(0, 0) }, []record.Record{newRec("acme")}); err != nil {
		t.Fatalf("writeDeadLetter: %v", err)
	}
	store := &fakeStore{nextErr: []error{errors.New("disk full")}}
	w := New(store, circuit.New(3, 30*time.Second, 1), 10, 5, dir, time.Second)

	w.reloadDeadLetters(context.Background())

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected dead-letter file to remain after failed replay, got %d", len(entries))
	}
}
