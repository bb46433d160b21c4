// Package bulkwriter implements the engine's bulk SQL writer (spec.md
// §4.7): a single consumer of the writer queue that batches records, writes
// them via a streaming ordinal reader, and applies a three-state circuit
// breaker with classified retry and dead-letter discipline on failure.
// Grounded on the teacher's internal/cache.go single-background-worker
// pattern and internal/store/store.go's writer-connection discipline.
package bulkwriter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/circuit"
	"github.com/smartpixl/smartpixl/internal/dqueue"
	"github.com/smartpixl/smartpixl/internal/record"
)

// DefaultBatchSize is spec.md §4.7's default BatchSize.
const DefaultBatchSize = 100

// DefaultShutdownTimeout is spec.md §4.7's default ShutdownTimeoutSeconds.
const DefaultShutdownTimeout = 30 * time.Second

var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Store is what the bulk writer needs from the persistence layer: a
// server-side bulk insert over a streaming ordinal reader (spec.md §4.7).
// enginestore.Store satisfies this.
type Store interface {
	InsertBatch(ctx context.Context, rows *BatchReader) error
}

// Writer is the engine's single consumer of the writer queue (spec.md
// §4.7, §5 "the bulk writer is a single consumer of the writer queue").
type Writer struct {
	queue         *dqueue.Queue[record.Record]
	store         Store
	breaker       *circuit.Breaker
	batchSize     int
	deadLetterDir string
	bulkTimeout   time.Duration
	retryDelays   []time.Duration

	now func() time.Time
}

// New creates a Writer. queueCapacity bounds the internal drop-oldest
// queue; batchSize, deadLetterDir, and bulkTimeout come from configuration
// (spec.md §6.3: BatchSize, BulkCopyTimeoutSeconds).
func New(store Store, breaker *circuit.Breaker, queueCapacity, batchSize int, deadLetterDir string, bulkTimeout time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		queue:         dqueue.New[record.Record](queueCapacity),
		store:         store,
		breaker:       breaker,
		batchSize:     batchSize,
		deadLetterDir: deadLetterDir,
		bulkTimeout:   bulkTimeout,
		retryDelays:   retryDelays,
		now:           time.Now,
	}
}

// Enqueue hands rec to the writer queue. Never blocks; drop-oldest under
// pressure, matching every other bounded queue in this system (spec.md §5).
func (w *Writer) Enqueue(rec record.Record) {
	w.queue.Push(rec)
}

// QueueDepth reports the number of records currently queued.
func (w *Writer) QueueDepth() int {
	return w.queue.Len()
}

// ResetCircuit forces the breaker closed. Bound to the engine's
// /internal/circuit-reset same-host endpoint (spec.md §4.7).
func (w *Writer) ResetCircuit() {
	w.breaker.Reset()
}

// CircuitState reports the breaker's current state, for /internal/health.
func (w *Writer) CircuitState() string {
	return w.breaker.State().String()
}

// Run reloads any dead-letter backlog oldest-first, then batches and writes
// records from the queue until stop fires, draining until empty or
// shutdownTimeout elapses (spec.md §4.7 shutdown: "remaining records are
// dead-lettered, never dropped").
func (w *Writer) Run(ctx context.Context, stop <-chan struct{}, shutdownTimeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("bulkwriter: writer panicked, exiting")
		}
	}()

	w.reloadDeadLetters(ctx)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		w.drainOnce(ctx)
		select {
		case <-stop:
			w.drainUntilDeadline(ctx, shutdownTimeout)
			return
		case <-ticker.C:
		}
	}
}

// drainOnce writes batches until the queue is empty.
func (w *Writer) drainOnce(ctx context.Context) {
	for {
		batch := w.nextBatch()
		if len(batch) == 0 {
			return
		}
		w.writeBatch(ctx, batch)
	}
}

// drainUntilDeadline keeps draining the queue past stop, up to deadline,
// dead-lettering whatever remains once time is up (spec.md §4.7 shutdown).
func (w *Writer) drainUntilDeadline(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	deadline := w.now().Add(timeout)
	for w.now().Before(deadline) {
		batch := w.nextBatch()
		if len(batch) == 0 {
			return
		}
		w.writeBatch(ctx, batch)
	}
	remaining := w.queue.DrainAll()
	if len(remaining) == 0 {
		return
	}
	log.Warn().Int("count", len(remaining)).Msg("bulkwriter: shutdown deadline reached, dead-lettering remainder")
	if err := writeDeadLetter(w.deadLetterDir, w.now, remaining); err != nil {
		log.Error().Err(err).Msg("bulkwriter: failed to dead-letter shutdown remainder")
	}
}

func (w *Writer) nextBatch() []record.Record {
	batch := make([]record.Record, 0, w.batchSize)
	for len(batch) < w.batchSize {
		rec, ok := w.queue.Pop()
		if !ok {
			break
		}
		batch = append(batch, rec)
	}
	return batch
}

// writeBatch applies the circuit breaker and classified retry policy
// (spec.md §4.7) to a single batch.
func (w *Writer) writeBatch(ctx context.Context, batch []record.Record) {
	if !w.breaker.Allow() {
		w.deadLetter(batch, "circuit open")
		return
	}

	for attempt := 0; ; attempt++ {
		bctx, cancel := context.WithTimeout(ctx, w.bulkTimeoutOrDefault())
		err := w.store.InsertBatch(bctx, NewBatchReader(batch))
		cancel()
		if err == nil {
			w.breaker.RecordSuccess()
			return
		}

		switch classify(err) {
		case outcomeTripAndDeadLetter:
			w.breaker.Trip()
			w.breaker.RecordFailure()
			w.deadLetter(batch, err.Error())
			return
		case outcomeRetry:
			w.breaker.RecordFailure()
			if attempt >= len(w.retryDelays) {
				w.deadLetter(batch, err.Error())
				return
			}
			sleepOrReturn(ctx, w.retryDelays[attempt])
		case outcomeDeadLetterAfterExhaustion:
			if attempt >= len(w.retryDelays) {
				w.breaker.RecordFailure()
				w.deadLetter(batch, err.Error())
				return
			}
			sleepOrReturn(ctx, w.retryDelays[attempt])
		}
	}
}

func (w *Writer) deadLetter(batch []record.Record, reason string) {
	log.Error().Int("count", len(batch)).Str("reason", reason).Msg("bulkwriter: dead-lettering batch")
	if err := writeDeadLetter(w.deadLetterDir, w.now, batch); err != nil {
		log.Error().Err(err).Msg("bulkwriter: failed to write dead-letter file")
	}
}

func (w *Writer) bulkTimeoutOrDefault() time.Duration {
	if w.bulkTimeout <= 0 {
		return 60 * time.Second
	}
	return w.bulkTimeout
}

// reloadDeadLetters scans the dead-letter directory oldest-first at
// startup, replaying each batch through the normal write path; files fully
// accepted are deleted, files that fail again are left for next startup
// (spec.md §4.7).
func (w *Writer) reloadDeadLetters(ctx context.Context) {
	names, err := listDeadLetterFilesOldestFirst(w.deadLetterDir)
	if err != nil {
		log.Error().Err(err).Msg("bulkwriter: failed to list dead-letter directory")
		return
	}
	for _, name := range names {
		batch, err := readDeadLetterBatch(w.deadLetterDir, name)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("bulkwriter: failed to read dead-letter file, leaving in place")
			continue
		}
		if w.replayDeadLetterBatch(ctx, batch) {
			if err := removeDeadLetterFile(w.deadLetterDir, name); err != nil {
				log.Error().Err(err).Str("file", name).Msg("bulkwriter: failed to delete replayed dead-letter file")
			}
		} else {
			log.Warn().Str("file", name).Msg("bulkwriter: dead-letter replay failed, leaving for next startup")
		}
	}
}

// replayDeadLetterBatch attempts a single direct write, without the
// multi-retry/trip machinery of writeBatch: a file left over from a prior
// dead-letter is retried once per startup, not spun through backoff again.
func (w *Writer) replayDeadLetterBatch(ctx context.Context, batch []record.Record) bool {
	if !w.breaker.Allow() {
		return false
	}
	bctx, cancel := context.WithTimeout(ctx, w.bulkTimeoutOrDefault())
	defer cancel()
	err := w.store.InsertBatch(bctx, NewBatchReader(batch))
	if err != nil {
		w.breaker.RecordFailure()
		return false
	}
	w.breaker.RecordSuccess()
	return true
}

func sleepOrReturn(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
