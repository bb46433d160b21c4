package tier1

import (
	"context"
	"testing"

	"github.com/smartpixl/smartpixl/internal/record"
)

func TestBotUA_FlagsKnownBot(t *testing.T) {
	rec := record.Record{UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"}
	out, err := BotUA(context.Background(), rec)
	if err != nil {
		t.Fatalf("BotUA: %v", err)
	}
	if v, _ := out.QueryParam("knownBot"); v != "1" {
		t.Error("Googlebot UA must be flagged knownBot")
	}
}

func TestBotUA_OrdinaryBrowserNotFlagged(t *testing.T) {
	rec := record.Record{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"}
	out, err := BotUA(context.Background(), rec)
	if err != nil {
		t.Fatalf("BotUA: %v", err)
	}
	if _, ok := out.QueryParam("knownBot"); ok {
		t.Error("ordinary browser UA must not be flagged knownBot")
	}
}

func TestUAParse_PopulatesStructuredFields(t *testing.T) {
	rec := record.Record{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"}
	out, err := UAParse(context.Background(), rec)
	if err != nil {
		t.Fatalf("UAParse: %v", err)
	}
	if v, ok := out.QueryParam("browser"); !ok || v == "" {
		t.Error("expected a non-empty browser field")
	}
	if v, ok := out.QueryParam("deviceType"); !ok || v == "" {
		t.Error("expected a non-empty deviceType field")
	}
}

func TestNeedsOnlineLookup(t *testing.T) {
	rec := record.Record{}
	if !NeedsOnlineLookup(rec) {
		t.Error("record with no offline geo result should need online lookup")
	}
	rec = rec.WithQueryParam("mmCC", "US")
	if NeedsOnlineLookup(rec) {
		t.Error("record with an offline geo result should not need online lookup")
	}
}

func TestWHOIS_SkipsWhenAlreadyResolved(t *testing.T) {
	rec := record.Record{RemoteAddress: "8.8.8.8"}
	rec = rec.WithQueryParam("mmASN", "15169")
	out, err := WHOIS(context.Background(), rec)
	if err != nil {
		t.Fatalf("WHOIS: %v", err)
	}
	if _, ok := out.QueryParam("whoisASN"); ok {
		t.Error("WHOIS must skip when mmASN is already set")
	}
}
