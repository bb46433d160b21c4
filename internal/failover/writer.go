// Package failover implements the edge's last-resort durability path
// (spec.md §4.4): a bounded drop-oldest queue drained by a single writer
// that appends one JSON line per record to a UTC-date-rolled file. Grounded
// on the teacher's internal/daemon/pidfile.go file-handling conventions
// (O_APPEND, a buffered-writer Flush after every line, no fsync) and internal/cache.go's
// single-background-worker pattern.
package failover

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/dqueue"
	"github.com/smartpixl/smartpixl/internal/record"
)

const fileDateLayout = "2006_01_02"

// Writer is the failover destination the pipe client hands records to while
// the engine connection is unreachable (spec.md §4.3, §4.4).
type Writer struct {
	dir   string
	queue *dqueue.Queue[record.Record]
	wake  chan struct{}

	fileMu      sync.Mutex
	currentDate string
	file        *os.File
	bw          *bufio.Writer

	now func() time.Time
}

// New creates a failover Writer rooted at dir with the given internal queue
// capacity (spec.md §4.4).
func New(dir string, queueCapacity int) *Writer {
	return &Writer{
		dir:   dir,
		queue: dqueue.New[record.Record](queueCapacity),
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Enqueue hands rec to the failover queue. Never blocks; drop-oldest under
// pressure (spec.md §4.4).
func (w *Writer) Enqueue(rec record.Record) {
	w.queue.Push(rec)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run is the single background reader. It drains the queue to disk until
// stop is closed, then performs one final drain before returning.
func (w *Writer) Run(stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("failover: writer panicked, exiting")
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		w.drainOnce()
		select {
		case <-stop:
			w.drainOnce()
			w.closeCurrent()
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

func (w *Writer) drainOnce() {
	for {
		rec, ok := w.queue.Pop()
		if !ok {
			return
		}
		if err := w.appendLine(rec); err != nil {
			log.Error().Err(err).Msg("failover: write failed, dropping record")
		}
	}
}

func (w *Writer) appendLine(rec record.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("failover: marshal: %w", err)
	}

	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	if err := w.ensureFileLocked(); err != nil {
		return err
	}
	if _, err := w.bw.Write(line); err != nil {
		return fmt.Errorf("failover: write: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("failover: write: %w", err)
	}
	// Flush on every line so a flushed record is never lost (spec.md §4.4).
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failover: flush: %w", err)
	}
	return nil
}

func (w *Writer) ensureFileLocked() error {
	date := w.now().UTC().Format(fileDateLayout)
	if w.file != nil && date == w.currentDate {
		return nil
	}
	w.closeCurrentLocked()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failover: mkdir: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("failover_%s.jsonl", date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failover: open %s: %w", path, err)
	}
	w.file = f
	w.bw = bufio.NewWriter(f)
	w.currentDate = date
	return nil
}

func (w *Writer) closeCurrent() {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	w.closeCurrentLocked()
}

func (w *Writer) closeCurrentLocked() {
	if w.file == nil {
		return
	}
	_ = w.bw.Flush()
	_ = w.file.Close()
	w.file = nil
	w.bw = nil
}
