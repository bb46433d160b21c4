package pipeclient

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

type fakeFailover struct {
	got []record.Record
}

func (f *fakeFailover) Enqueue(r record.Record) {
	f.got = append(f.got, r)
}

func TestClient_WritesRecordsOverDuplexStream(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	dialed := make(chan struct{}, 1)
	dial := func(ctx context.Context) (net.Conn, error) {
		select {
		case dialed <- struct{}{}:
		default:
		}
		return clientConn, nil
	}

	fo := &fakeFailover{}
	c := New(dial, fo, 10, time.Second)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), stop)
		close(done)
	}()

	c.TryEnqueue(record.Record{CompanyID: "acme", PixelID: "p1"})

	lineCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(serverConn)
		if scanner.Scan() {
			lineCh <- scanner.Text()
		}
	}()

	select {
	case line := <-lineCh:
		if line == "" {
			t.Error("expected a non-empty JSON line")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received a line")
	}

	close(stop)
	<-done
}

func TestClient_FallsBackToFailoverWhenDialFails(t *testing.T) {
	dial := func(ctx context.Context) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: errConnRefused{}}
	}
	fo := &fakeFailover{}
	c := New(dial, fo, 10, time.Second)

	c.TryEnqueue(record.Record{CompanyID: "acme", PixelID: "p1"})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), stop)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(fo.got) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-done

	if len(fo.got) != 1 {
		t.Fatalf("expected 1 record handed to failover, got %d", len(fo.got))
	}
}

type errConnRefused struct{}

func (errConnRefused) Error() string { return "connection refused" }
