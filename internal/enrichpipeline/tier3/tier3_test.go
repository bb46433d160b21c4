package tier3

import (
	"context"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/record"
)

func TestCultural_FlagsLanguageMismatch(t *testing.T) {
	rec := record.Record{}
	rec = rec.WithQueryParam("mmCC", "JP")
	rec.QueryString += "&lang=en-us"
	out, err := Cultural(context.Background(), rec)
	if err != nil {
		t.Fatalf("Cultural: %v", err)
	}
	flags, _ := out.QueryParam("culturalFlags")
	if flags == "" {
		t.Error("expected culturalFlags to include langMismatch for JP IP with en-us lang")
	}
}

func TestDeviceAge_FlagsAnomalyForOldGPUModernBrowserDatacenter(t *testing.T) {
	rec := record.Record{}
	rec.QueryString = "gpu=Intel+HD+Graphics"
	rec = rec.WithQueryParams(
		record.Pair{Name: "browserVer", Value: "120.0.0"},
		record.Pair{Name: "dc", Value: "cloudA"},
	)
	out, err := DeviceAge(context.Background(), rec)
	if err != nil {
		t.Fatalf("DeviceAge: %v", err)
	}
	if v, _ := out.QueryParam("deviceAgeAnomaly"); v != "1" {
		t.Error("old GPU + modern browser + datacenter IP + no mouse entropy must flag deviceAgeAnomaly")
	}
}

func TestContradictionMatrix_FlagsTinyDesktopScreen(t *testing.T) {
	rec := record.Record{}
	rec = rec.WithQueryParam("deviceType", "computer")
	rec.QueryString += "&screenW=400"
	out, err := ContradictionMatrix(context.Background(), rec)
	if err != nil {
		t.Fatalf("ContradictionMatrix: %v", err)
	}
	if v, _ := out.QueryParam("contradictions"); v != "1" {
		t.Errorf("contradictions = %q, want 1", v)
	}
}

func TestBehavioralReplay_FlagsDifferentFingerprint(t *testing.T) {
	index := NewReplayIndex(time.Hour)
	analyze := BehavioralReplay(index)

	rec1 := record.Record{}
	rec1.QueryString = "mousePath=1,2;3,4&canvasFP=fpA"
	analyze(context.Background(), rec1)

	rec2 := record.Record{}
	rec2.QueryString = "mousePath=1,2;3,4&canvasFP=fpB"
	out2, _ := analyze(context.Background(), rec2)

	if v, _ := out2.QueryParam("replayDetected"); v != "1" {
		t.Error("same mouse path under a different fingerprint must flag replayDetected")
	}
}

func TestDeadInternetIndex_RisesWithAnomalousTraffic(t *testing.T) {
	index := NewDeadInternetIndex()
	analyze := DeadInternet(index)

	normal := record.Record{CompanyID: "acme"}
	anomalous := record.Record{CompanyID: "acme"}
	anomalous = anomalous.WithQueryParam("botTrap", "1")

	analyze(context.Background(), normal)
	analyze(context.Background(), normal)
	out, _ := analyze(context.Background(), anomalous)

	idx, ok := out.QueryParam("deadInternetIdx")
	if !ok {
		t.Fatal("expected a deadInternetIdx pair")
	}
	if idx == "0" {
		t.Error("index should be > 0 once an anomalous hit is observed")
	}
}
