// Package pipeserver implements the engine's side of the same-host duplex
// stream (spec.md §4.5): a concurrent accept loop over a unix domain
// listener, one reader goroutine per connection, strict line-delimited JSON
// parsing that tolerates malformed lines, feeding a single shared bounded
// queue. Grounded on the teacher's internal/proxy/websocket.go per-connection
// reader goroutine shape.
package pipeserver

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/dqueue"
	"github.com/smartpixl/smartpixl/internal/record"
)

// Server accepts concurrent same-host duplex connections and feeds parsed
// records into a single shared queue consumed by the enrichment pipeline.
type Server struct {
	listener net.Listener
	queue    *dqueue.Queue[record.Record]

	wg sync.WaitGroup
}

// New wraps an already-bound listener (a unix socket per spec.md §4.5) and
// the shared ingest queue.
func New(listener net.Listener, queueCapacity int) *Server {
	return &Server{
		listener: listener,
		queue:    dqueue.New[record.Record](queueCapacity),
	}
}

// Queue returns the shared ingest queue, also used by the catch-up service
// (spec.md §4.5) to feed replayed failover records.
func (s *Server) Queue() *dqueue.Queue[record.Record] {
	return s.queue
}

// Serve runs the accept loop until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return
			default:
			}
			log.Warn().Err(err).Msg("pipeserver: accept failed, continuing")
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pipeserver: connection handler panicked")
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := record.UnmarshalLine(line)
		if err != nil {
			log.Warn().Err(err).Msg("pipeserver: malformed line, skipping")
			continue
		}
		s.queue.Push(rec)
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("pipeserver: connection read error")
	}
}
