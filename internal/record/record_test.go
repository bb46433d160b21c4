package record

import (
	"testing"
	"time"
)

func sample() Record {
	return Record{
		CompanyID:     "ACME",
		PixelID:       "42",
		RemoteAddress: "203.0.113.9",
		RequestPath:   "/ACME/42_thetriviaquest.com_SMART.GIF",
		QueryString:   "sw=1920&sh=1080&canvasFP=abc",
		HeadersJson:   `{"accept":"*/*"}`,
		UserAgent:     "Mozilla/5.0",
		Referer:       "https://thetriviaquest.com/",
		ReceivedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRoundTrip_JSONLine(t *testing.T) {
	r := sample()
	line, err := r.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine: %v", err)
	}
	got, err := UnmarshalLine(line)
	if err != nil {
		t.Fatalf("UnmarshalLine: %v", err)
	}
	if got != r {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, r)
	}
}

func TestWithQueryParam_AppendsAndEncodes(t *testing.T) {
	r := sample()
	out := r.WithQueryParam("hitType", "modern")
	if out.QueryString != r.QueryString+"&_srv_hitType=modern" {
		t.Errorf("QueryString = %q", out.QueryString)
	}
	// original unchanged (value semantics).
	if r.QueryString == out.QueryString {
		t.Error("original record was mutated")
	}
}

func TestWithQueryParam_EncodesSpecialChars(t *testing.T) {
	r := Record{}
	out := r.WithQueryParam("botName", "a b&c")
	v, ok := out.QueryParam("botName")
	if !ok || v != "a b&c" {
		t.Errorf("QueryParam roundtrip = %q, %v", v, ok)
	}
}

func TestWithQueryParam_EmptyNameNoop(t *testing.T) {
	r := sample()
	out := r.WithQueryParam("", "x")
	if out.QueryString != r.QueryString {
		t.Error("empty name should be a no-op")
	}
}

func TestWithQueryParams_Multiple(t *testing.T) {
	r := Record{}
	out := r.WithQueryParams(Pair{Name: "a", Value: "1"}, Pair{Name: "b", Value: "2"})
	if out.QueryString != "_srv_a=1&_srv_b=2" {
		t.Errorf("QueryString = %q", out.QueryString)
	}
}

func TestColumns_FixedOrdinalOrder(t *testing.T) {
	r := sample()
	cols := r.Columns()
	if cols[0] != r.CompanyID || cols[1] != r.PixelID || cols[4] != r.QueryString || cols[7] != r.Referer {
		t.Errorf("Columns() ordinal mismatch: %+v", cols)
	}
}

func TestEnrichmentIdempotence_SamePairsTwice(t *testing.T) {
	r := sample()
	a := r.WithQueryParam("hitType", "modern")
	b := r.WithQueryParam("hitType", "modern")
	if a.QueryString != b.QueryString {
		t.Errorf("running the same append twice produced different output: %q vs %q", a.QueryString, b.QueryString)
	}
}
