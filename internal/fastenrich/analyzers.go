package fastenrich

import (
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/smartpixl/smartpixl/internal/dctrie"
	"github.com/smartpixl/smartpixl/internal/geocache"
	"github.com/smartpixl/smartpixl/internal/ipclass"
	"github.com/smartpixl/smartpixl/internal/record"
)

// Thresholds collects the fixed constants named in spec.md §4.2.
type Thresholds struct {
	FingerprintDistinctAlert int // ≥3 distinct composites from one IP in 24h
	FingerprintVolumeAlert   int // observation count above this in the TTL window
	FingerprintRate5mAlert   int // hits per 5 min above this

	RapidFireWindow     time.Duration // ≥2 hits within this window
	RapidFireMinHits    int
	SubSecondDupe       time.Duration // consecutive hits closer than this
	SubnetVelocityWindow time.Duration
	SubnetVelocityMinIPs int // ≥3 distinct IPs from one /24 in the window
}

// DefaultThresholds returns the thresholds spec.md's examples are written
// against (§4.2, §8.4 scenario 4).
func DefaultThresholds() Thresholds {
	return Thresholds{
		FingerprintDistinctAlert: 3,
		FingerprintVolumeAlert:   20,
		FingerprintRate5mAlert:   10,
		RapidFireWindow:          15 * time.Second,
		RapidFireMinHits:         2,
		SubSecondDupe:            time.Second,
		SubnetVelocityWindow:     5 * time.Minute,
		SubnetVelocityMinIPs:     3,
	}
}

// Bank runs the seven fixed-order analyzers over a captured record. It never
// blocks and performs no I/O, matching the <10ms latency contract (spec.md
// §4.1).
type Bank struct {
	state      *State
	trie       *dctrie.Publisher
	geo        *geocache.Cache
	thresholds Thresholds
}

// NewBank wires the fast-enrichment analyzers to their shared state.
func NewBank(state *State, trie *dctrie.Publisher, geo *geocache.Cache, thresholds Thresholds) *Bank {
	return &Bank{state: state, trie: trie, geo: geo, thresholds: thresholds}
}

// Enrich runs all seven analyzers in fixed order and returns the annotated
// record. A panic inside any single analyzer is recovered so one analyzer's
// bug can never drop a record; recovery simply skips that analyzer's pairs.
func (b *Bank) Enrich(r record.Record) record.Record {
	r = b.safely(r, b.hitType)
	r = b.safely(r, b.fingerprintStability)
	r = b.safely(r, b.ipVelocity)
	r = b.safely(r, b.datacenterMatch)
	r = b.safely(r, b.ipClassification)
	r = b.safely(r, b.geoLookup)
	r = b.safely(r, b.timezoneMismatch)
	return r
}

func (b *Bank) safely(r record.Record, analyzer func(record.Record) record.Record) (out record.Record) {
	out = r
	defer func() {
		if rec := recover(); rec != nil {
			out = r
		}
	}()
	return analyzer(r)
}

// 1. Hit-type tag.
func (b *Bank) hitType(r record.Record) record.Record {
	_, hasSw := r.RawQueryParam("sw")
	_, hasCanvas := r.RawQueryParam("canvasFP")
	if hasSw || hasCanvas {
		return r.WithQueryParam("hitType", "modern")
	}
	return r.WithQueryParam("hitType", "legacy")
}

// 2. Fingerprint stability.
func (b *Bank) fingerprintStability(r record.Record) record.Record {
	composite := compositeFingerprint(r)
	if composite == "" {
		return r
	}

	ip := r.RemoteAddress
	now := b.state.now()

	b.state.fpMu.Lock()
	e, ok := b.state.fp[ip]
	if !ok {
		e = &fingerprintEntry{composites: make(map[string]struct{}), firstSeen: now}
		b.state.fp[ip] = e
	}
	e.composites[composite] = struct{}{}
	e.lastSeen = now
	e.count++
	e.recent = append(e.recent, now)
	// Trim to the last historySize entries and drop anything outside 5m for
	// the rate computation.
	if len(e.recent) > historySize {
		e.recent = e.recent[len(e.recent)-historySize:]
	}
	cutoff := now.Add(-5 * time.Minute)
	rate5m := 0
	for _, t := range e.recent {
		if t.After(cutoff) {
			rate5m++
		}
	}
	distinct := len(e.composites)
	obsCount := e.count
	b.state.fpMu.Unlock()

	fire := distinct >= b.thresholds.FingerprintDistinctAlert ||
		obsCount > b.thresholds.FingerprintVolumeAlert ||
		rate5m > b.thresholds.FingerprintRate5mAlert

	r = r.WithQueryParam("fpObs", strconv.Itoa(obsCount))
	r = r.WithQueryParam("fpUniq", strconv.Itoa(distinct))
	r = r.WithQueryParam("fpRate5m", strconv.Itoa(rate5m))
	if fire {
		r = r.WithQueryParam("fpAlert", "1")
	}
	return r
}

func compositeFingerprint(r record.Record) string {
	canvas, _ := r.RawQueryParam("canvasFP")
	webgl, _ := r.RawQueryParam("webglFP")
	audio, _ := r.RawQueryParam("audioFP")
	if canvas == "" && webgl == "" && audio == "" {
		return ""
	}
	return canvas + "|" + webgl + "|" + audio
}

// 3. IP velocity.
func (b *Bank) ipVelocity(r record.Record) record.Record {
	addr, err := netip.ParseAddr(r.RemoteAddress)
	if err != nil {
		return r
	}
	addr = ipclass.Normalize(addr)
	now := b.state.now()

	// Rapid-fire + sub-second duplicate, per-IP.
	ip := addr.String()
	b.state.hitMu.Lock()
	he, ok := b.state.hit[ip]
	if !ok {
		he = &ipHitEntry{}
		b.state.hit[ip] = he
	}
	var lastGap time.Duration
	hadPrev := len(he.hits) > 0
	if hadPrev {
		lastGap = now.Sub(he.hits[len(he.hits)-1])
	}
	he.hits = append(he.hits, now)
	if len(he.hits) > historySize {
		he.hits = he.hits[len(he.hits)-historySize:]
	}
	he.lastSeen = now

	rapidFireCount := 0
	for _, t := range he.hits {
		if now.Sub(t) <= b.thresholds.RapidFireWindow {
			rapidFireCount++
		}
	}
	b.state.hitMu.Unlock()

	rapidFire := rapidFireCount >= b.thresholds.RapidFireMinHits
	subSecDupe := hadPrev && lastGap < b.thresholds.SubSecondDupe

	if hadPrev {
		r = r.WithQueryParam("lastGapMs", strconv.FormatInt(lastGap.Milliseconds(), 10))
	}
	r = r.WithQueryParam("hitsIn15s", strconv.Itoa(rapidFireCount))
	if rapidFire {
		r = r.WithQueryParam("rapidFire", "1")
	}
	if subSecDupe {
		r = r.WithQueryParam("subSecDupe", "1")
	}

	// Subnet /24 witness.
	subnet, ok := subnet24(addr)
	if !ok {
		return r
	}
	b.state.subnetMu.Lock()
	se, ok := b.state.subnet[subnet]
	if !ok {
		se = &subnetEntry{ips: make(map[string]time.Time)}
		b.state.subnet[subnet] = se
	}
	se.ips[ip] = now
	se.lastSeen = now
	cutoff := now.Add(-b.thresholds.SubnetVelocityWindow)
	distinctIPs := 0
	for otherIP, t := range se.ips {
		if t.Before(cutoff) {
			delete(se.ips, otherIP)
			continue
		}
		distinctIPs++
	}
	b.state.subnetMu.Unlock()

	r = r.WithQueryParam("subnetIps", strconv.Itoa(distinctIPs))
	r = r.WithQueryParam("subnetHits", strconv.Itoa(rapidFireCount))
	if distinctIPs >= b.thresholds.SubnetVelocityMinIPs {
		r = r.WithQueryParam("subnetAlert", "1")
	}
	return r
}

// 4. Datacenter match.
func (b *Bank) datacenterMatch(r record.Record) record.Record {
	if b.trie == nil {
		return r
	}
	addr, err := netip.ParseAddr(r.RemoteAddress)
	if err != nil {
		return r
	}
	addr = ipclass.Normalize(addr)
	tag, ok := b.trie.Current().Lookup(addr)
	if !ok {
		return r
	}
	return r.WithQueryParam("dc", tag)
}

// 5. IP classification.
func (b *Bank) ipClassification(r record.Record) record.Record {
	class := ipclass.Classify(r.RemoteAddress)
	if class == ipclass.Public || class == ipclass.Invalid {
		return r
	}
	return r.WithQueryParam("ipType", strconv.Itoa(int(class)))
}

// 6. Geo lookup.
func (b *Bank) geoLookup(r record.Record) record.Record {
	if b.geo == nil {
		return r
	}
	result, ok := b.geo.Lookup(r.RemoteAddress)
	if !ok {
		return r
	}
	r = r.WithQueryParams(
		record.Pair{Name: "geoCC", Value: result.CountryCode},
		record.Pair{Name: "geoReg", Value: result.Region},
		record.Pair{Name: "geoCity", Value: result.City},
		record.Pair{Name: "geoTz", Value: result.Timezone},
		record.Pair{Name: "geoISP", Value: result.ISP},
	)
	if result.IsProxy {
		r = r.WithQueryParam("geoProxy", "1")
	}
	if result.IsMobile {
		r = r.WithQueryParam("geoMobile", "1")
	}
	return r
}

// 7. Timezone mismatch.
func (b *Bank) timezoneMismatch(r record.Record) record.Record {
	geoTz, ok := r.QueryParam("geoTz")
	if !ok || geoTz == "" {
		return r
	}
	browserTz, ok := r.RawQueryParam("tz")
	if !ok || browserTz == "" {
		return r
	}
	if !strings.EqualFold(geoTz, browserTz) {
		return r.WithQueryParam("geoTzMismatch", "1")
	}
	return r
}

// BotTrap appends the bot-trap marker for requests whose URL didn't match a
// pixel shape (spec.md §4.1, §4.2).
func BotTrap(r record.Record) record.Record {
	return r.WithQueryParam("botTrap", "1")
}
