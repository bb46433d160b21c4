package fastenrich

import (
	"context"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/dctrie"
	"github.com/smartpixl/smartpixl/internal/geocache"
	"github.com/smartpixl/smartpixl/internal/record"
)

func newRecord(ip string) record.Record {
	return record.Record{
		CompanyID:     "acme",
		PixelID:       "p1",
		RemoteAddress: ip,
		ReceivedAt:    time.Now(),
	}
}

// clockBank wraps a Bank with a settable fake clock for deterministic window
// tests (spec.md §8.4 scenario 4: rapid-fire gap in 50..200ms).
func newClockBank(t *testing.T) (*Bank, *time.Time) {
	t.Helper()
	state := NewState(24*time.Hour, 5*time.Minute)
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state.now = func() time.Time { return cur }
	bank := NewBank(state, nil, nil, DefaultThresholds())
	return bank, &cur
}

func TestIPVelocity_RapidFire(t *testing.T) {
	bank, cur := newClockBank(t)
	r := newRecord("203.0.113.5")

	r1 := bank.ipVelocity(r)
	if v, _ := r1.QueryParam("rapidFire"); v == "1" {
		t.Error("first hit must not trigger rapid-fire")
	}

	*cur = cur.Add(120 * time.Millisecond)
	r2 := bank.ipVelocity(r)

	gapMs, ok := r2.QueryParam("lastGapMs")
	if !ok {
		t.Fatal("expected lastGapMs on second hit")
	}
	gap, _ := strconv.Atoi(gapMs)
	if gap < 50 || gap > 200 {
		t.Errorf("lastGapMs = %d, want in [50,200]", gap)
	}
	if v, _ := r2.QueryParam("rapidFire"); v != "1" {
		t.Error("second hit within 15s window must trigger rapid-fire")
	}
}

func TestIPVelocity_SubSecondDuplicate(t *testing.T) {
	bank, cur := newClockBank(t)
	r := newRecord("203.0.113.6")

	bank.ipVelocity(r)
	*cur = cur.Add(400 * time.Millisecond)
	r2 := bank.ipVelocity(r)

	if v, _ := r2.QueryParam("subSecDupe"); v != "1" {
		t.Error("hit 400ms after previous must be flagged sub-second duplicate")
	}
}

func TestIPVelocity_SubnetWitness(t *testing.T) {
	bank, _ := newClockBank(t)

	bank.ipVelocity(newRecord("203.0.113.1"))
	bank.ipVelocity(newRecord("203.0.113.2"))
	r3 := bank.ipVelocity(newRecord("203.0.113.3"))

	ips, ok := r3.QueryParam("subnetIps")
	if !ok || ips != "3" {
		t.Errorf("subnetIps = %q, want 3", ips)
	}
	if v, _ := r3.QueryParam("subnetAlert"); v != "1" {
		t.Error("3 distinct IPs from one /24 within 5m must trigger subnetAlert")
	}
}

func TestFingerprintStability_DistinctComposites(t *testing.T) {
	bank, _ := newClockBank(t)
	ip := "198.51.100.9"

	mk := func(canvas string) record.Record {
		r := newRecord(ip)
		r.QueryString = "canvasFP=" + canvas + "&webglFP=w&audioFP=a"
		return r
	}

	bank.fingerprintStability(mk("c1"))
	bank.fingerprintStability(mk("c2"))
	r3 := bank.fingerprintStability(mk("c3"))

	uniq, _ := r3.QueryParam("fpUniq")
	if uniq != "3" {
		t.Errorf("fpUniq = %q, want 3", uniq)
	}
	if v, _ := r3.QueryParam("fpAlert"); v != "1" {
		t.Error("3 distinct composites from one IP must trigger fpAlert")
	}
}

func TestHitType_ModernVsLegacy(t *testing.T) {
	bank, _ := newClockBank(t)

	legacy := bank.hitType(newRecord("1.2.3.4"))
	if v, _ := legacy.QueryParam("hitType"); v != "legacy" {
		t.Errorf("hitType = %q, want legacy", v)
	}

	r := newRecord("1.2.3.4")
	r.QueryString = "canvasFP=abc"
	modern := bank.hitType(r)
	if v, _ := modern.QueryParam("hitType"); v != "modern" {
		t.Errorf("hitType = %q, want modern", v)
	}
}

func TestDatacenterMatch_TrieHit(t *testing.T) {
	pub := dctrie.NewPublisher()
	b := dctrie.NewBuilder()
	b.Add(netip.MustParsePrefix("203.0.113.0/24"), "cloudA")
	pub.Publish(b.Build())

	bank := NewBank(NewState(time.Hour, time.Hour), pub, nil, DefaultThresholds())
	r := bank.datacenterMatch(newRecord("203.0.113.50"))

	if v, _ := r.QueryParam("dc"); v != "cloudA" {
		t.Errorf("dc = %q, want cloudA", v)
	}
}

func TestIPClassification_PrivateRange(t *testing.T) {
	bank, _ := newClockBank(t)
	r := bank.ipClassification(newRecord("10.1.2.3"))
	if v, ok := r.QueryParam("ipType"); !ok || v == "" {
		t.Error("private IP must produce an ipType tag")
	}
	pub := bank.ipClassification(newRecord("8.8.8.8"))
	if _, ok := pub.QueryParam("ipType"); ok {
		t.Error("public IP must not produce an ipType tag")
	}
}

type stubGeoResolver struct {
	result geocache.Result
}

func (s stubGeoResolver) ResolveGeo(ctx context.Context, ip string) (geocache.Result, bool, error) {
	return s.result, true, nil
}

func TestGeoLookupAndTimezoneMismatch(t *testing.T) {
	cache, err := geocache.New(stubGeoResolver{result: geocache.Result{
		CountryCode: "US", Timezone: "America/Chicago",
	}}, 10, time.Hour, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bank := NewBank(NewState(time.Hour, time.Hour), nil, cache, DefaultThresholds())
	ip := "203.0.113.77"

	// First call only enqueues the miss; populate the cache directly as the
	// background worker would.
	cache.Lookup(ip)
	ctx, cancel := context.WithCancel(context.Background())
	go cache.RunMissWorker(ctx)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := cache.Lookup(ip); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	r := newRecord(ip)
	r.QueryString = "tz=America%2FNew_York"
	r = bank.geoLookup(r)
	r = bank.timezoneMismatch(r)

	if v, _ := r.QueryParam("geoTzMismatch"); v != "1" {
		t.Error("America/Chicago vs America/New_York must mismatch")
	}
}

func TestBank_EnrichRecoversFromPanickingAnalyzer(t *testing.T) {
	bank, _ := newClockBank(t)
	// Enrich must never panic even if downstream analyzers receive odd input.
	r := record.Record{RemoteAddress: "not-an-ip"}
	out := bank.Enrich(r)
	if out.RemoteAddress != "not-an-ip" {
		t.Error("Enrich must return a record even when address parsing fails in every analyzer")
	}

	// A panicking analyzer is recovered and its input record is returned.
	got := bank.safely(out, func(record.Record) record.Record { panic("analyzer bug") })
	if got != out {
		t.Error("safely must recover a panicking analyzer and return its input record unchanged")
	}
}
