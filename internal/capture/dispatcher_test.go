package capture

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/smartpixl/smartpixl/internal/record"
)

type fakeEnqueuer struct {
	got []record.Record
}

func (f *fakeEnqueuer) TryEnqueue(r record.Record) bool {
	f.got = append(f.got, r)
	return true
}

func TestHandlePixel_ValidGIF(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := &Handler{Enqueue: enq, SameHost: NewSameHostChecker(nil)}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/acme/pix1_example.com_SMART.GIF", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	if rw.Header().Get("Content-Type") != "image/gif" {
		t.Errorf("content-type = %q", rw.Header().Get("Content-Type"))
	}
	if len(enq.got) != 1 {
		t.Fatalf("expected 1 captured record, got %d", len(enq.got))
	}
	if enq.got[0].CompanyID != "acme" || enq.got[0].PixelID != "pix1" {
		t.Errorf("record = %+v", enq.got[0])
	}
}

func TestHandlePixel_InvalidIdentifierStillServesGIF(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := &Handler{Enqueue: enq}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/bad!company/pix!_example.com_SMART.GIF", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (never reveal invalid identifier)", rw.Code)
	}
	if len(enq.got) != 1 {
		t.Fatalf("expected capture even on invalid identifier, got %d records", len(enq.got))
	}
	if v, _ := enq.got[0].QueryParam("botTrap"); v != "1" {
		t.Error("invalid identifier on GIF shape must be tagged botTrap")
	}
}

func TestHandlePixel_UnmatchedPathIsBotTrap(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := &Handler{Enqueue: enq}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/some/random/path", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	if v, _ := enq.got[0].QueryParam("botTrap"); v != "1" {
		t.Error("unmatched path must be tagged botTrap")
	}
}

func TestHandleJS_InvalidIdentifierRejected(t *testing.T) {
	h := &Handler{}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/acme/bad!id_example.com_SMART.js", nil)
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid identifier on .js shape", rw.Code)
	}
}

func TestInternalHealth_NotSameHostReturns404(t *testing.T) {
	h := &Handler{SameHost: &SameHostChecker{allowed: map[netip.Addr]struct{}{}}}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for non-same-host caller", rw.Code)
	}
}

func TestInternalHealth_LoopbackAllowed(t *testing.T) {
	h := &Handler{SameHost: NewSameHostChecker(nil)}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for loopback caller", rw.Code)
	}
}
