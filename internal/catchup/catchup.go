// Package catchup implements the engine's failover-directory replay service
// (spec.md §4.5): on start and on a periodic cadence it scans the failover
// directory, replays each `.jsonl` file's lines into the shared ingest
// queue, and deletes a file only once every line has been accepted.
// "Accepted" means pushed onto the drop-oldest queue: a record evicted from
// that queue after its file was deleted is lost, so delivery is
// at-least-once only while the queue is not overloaded.
// Grounded on the teacher's internal/daemon/pidfile.go file-scanning idiom
// and internal/cache.go's ticker-driven sweep goroutine.
package catchup

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/record"
)

// Sink is the shared ingest queue the pipe server also feeds.
type Sink interface {
	Push(record.Record) bool
}

// Service periodically replays failover files into sink.
type Service struct {
	dir  string
	sink Sink
	now  func() time.Time
}

// New creates a catch-up Service rooted at the failover directory.
func New(dir string, sink Sink) *Service {
	return &Service{dir: dir, sink: sink, now: time.Now}
}

// Run performs an immediate scan, then repeats every interval until ctx is
// cancelled (spec.md §4.5: "on engine start and then on a periodic cadence").
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("catchup: service panicked, exiting")
		}
	}()

	s.scanOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

func (s *Service) scanOnce() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dir", s.dir).Msg("catchup: scan failed")
		}
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		s.replayFile(filepath.Join(s.dir, name))
	}
}

// replayFile feeds every line of path into the sink. The file is deleted
// only if every line parsed and was accepted; a partial-line or parse
// failure leaves the file in place for the next cycle (spec.md §4.5).
func (s *Service) replayFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("catchup: open failed")
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	complete := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := record.UnmarshalLine(line)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("catchup: malformed line, leaving file for next cycle")
			complete = false
			continue
		}
		s.sink.Push(rec)
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("catchup: read error, leaving file for next cycle")
		complete = false
	}

	if complete {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("catchup: failed to delete replayed file")
		}
	}
}
