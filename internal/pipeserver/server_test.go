package pipeserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

func TestServer_ParsesLinesAndSkipsMalformed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(ln, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	rec := record.Record{CompanyID: "acme", PixelID: "p1"}
	line, _ := rec.MarshalLine()
	conn.Write(line)
	conn.Write([]byte("\n"))
	conn.Write([]byte("not json\n"))
	conn.Write(line)
	conn.Write([]byte("\n"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Queue().Len() >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if got := s.Queue().Len(); got != 2 {
		t.Fatalf("queue len = %d, want 2 (malformed line must be skipped, not drop connection)", got)
	}
}
