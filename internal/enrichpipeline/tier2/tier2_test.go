package tier2

import (
	"context"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

func TestCrossCustomerWitness_AlertsAtThreshold(t *testing.T) {
	witness := NewCrossCustomerWitness(2 * time.Hour)
	analyze := CrossCustomer(witness)

	rec := func(company string) record.Record {
		r := record.Record{RemoteAddress: "203.0.113.1", CompanyID: company}
		r.QueryString = "canvasFP=abc"
		return r
	}

	analyze(context.Background(), rec("c1"))
	analyze(context.Background(), rec("c2"))
	out, _ := analyze(context.Background(), rec("c3"))

	if v, _ := out.QueryParam("crossCustAlert"); v != "1" {
		t.Error("3 distinct companies against one (IP, canvasFP) key must trigger crossCustAlert")
	}
}

func TestSessionRegistry_NewSessionOnIdleTimeout(t *testing.T) {
	registry := NewSessionRegistry(30*time.Minute, func() string { return "sess-1" })
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return cur }

	analyze := Session(registry)
	rec := record.Record{RemoteAddress: "203.0.113.1"}
	rec.QueryString = "canvasFP=abc&webglFP=def"

	out1, _ := analyze(context.Background(), rec)
	id1, _ := out1.QueryParam("sessionId")
	hit1, _ := out1.QueryParam("sessionHitNum")

	cur = cur.Add(5 * time.Minute)
	out2, _ := analyze(context.Background(), rec)
	hit2, _ := out2.QueryParam("sessionHitNum")

	if id1 == "" || hit1 != "1" || hit2 != "2" {
		t.Errorf("expected hit numbers 1 then 2 within one session, got %s then %s", hit1, hit2)
	}

	cur = cur.Add(31 * time.Minute)
	out3, _ := analyze(context.Background(), rec)
	if hit3, _ := out3.QueryParam("sessionHitNum"); hit3 != "1" {
		t.Errorf("expected a new session (hit number 1) after 31 idle minutes, got %s", hit3)
	}
}

func TestAffluence_ClassifiesHighEndGPU(t *testing.T) {
	rec := record.Record{}
	rec.QueryString = "gpu=NVIDIA+RTX+4080&deviceMemory=32&screenW=3840"
	out, err := Affluence(context.Background(), rec)
	if err != nil {
		t.Fatalf("Affluence: %v", err)
	}
	if v, _ := out.QueryParam("affluence"); v != "HIGH" {
		t.Errorf("affluence = %q, want HIGH", v)
	}
	if v, _ := out.QueryParam("gpuTier"); v != "HIGH" {
		t.Errorf("gpuTier = %q, want HIGH", v)
	}
}

func TestLeadScore_CapsAt100(t *testing.T) {
	rec := record.Record{}
	rec.QueryString = "canvasFP=abc&mouseEntropy=42&fontsCount=10"
	rec = rec.WithQueryParams(
		record.Pair{Name: "sessionPages", Value: "3"},
	)
	out, err := LeadScore(context.Background(), rec)
	if err != nil {
		t.Fatalf("LeadScore: %v", err)
	}
	score, ok := out.QueryParam("leadScore")
	if !ok {
		t.Fatal("expected a leadScore pair")
	}
	if score != "100" {
		t.Errorf("leadScore = %q, want 100 (every positive signal present, capped at 100)", score)
	}
}
