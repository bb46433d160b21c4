package tier2

import (
	"context"
	"strconv"
	"strings"

	"github.com/smartpixl/smartpixl/internal/record"
)

// gpuTierSubstrings maps GPU model substrings to a coarse tier, the static
// reference table named in spec.md §4.6 tier 2.
var gpuTierSubstrings = []struct {
	substr string
	tier   string
}{
	{"rtx 40", "HIGH"}, {"rtx 30", "HIGH"}, {"rx 7", "HIGH"}, {"apple m3", "HIGH"}, {"apple m2", "HIGH"},
	{"rtx 20", "MID"}, {"gtx 16", "MID"}, {"rx 6", "MID"}, {"apple m1", "MID"}, {"iris", "MID"},
	{"intel hd", "LOW"}, {"intel uhd", "LOW"}, {"gma", "LOW"}, {"mali", "LOW"}, {"adreno 3", "LOW"},
}

// Affluence classifies the browser-reported GPU/CPU/memory/resolution tuple
// into a coarse affluence tier (spec.md §4.6 tier 2).
func Affluence(ctx context.Context, rec record.Record) (record.Record, error) {
	gpu, _ := rec.RawQueryParam("gpu")
	memGB, _ := rec.RawQueryParam("deviceMemory")
	width, _ := rec.RawQueryParam("screenW")

	gpuTier := classifyGPU(gpu)
	score := gpuScoreOf(gpuTier)

	if mem, err := strconv.Atoi(memGB); err == nil {
		switch {
		case mem >= 16:
			score += 2
		case mem >= 8:
			score += 1
		}
	}
	if w, err := strconv.Atoi(width); err == nil && w >= 2560 {
		score++
	}

	affluence := "LOW"
	switch {
	case score >= 4:
		affluence = "HIGH"
	case score >= 2:
		affluence = "MID"
	}

	pairs := []record.Pair{{Name: "affluence", Value: affluence}}
	if gpuTier != "" {
		pairs = append(pairs, record.Pair{Name: "gpuTier", Value: gpuTier})
	}
	return rec.WithQueryParams(pairs...), nil
}

func classifyGPU(gpu string) string {
	lower := strings.ToLower(gpu)
	for _, entry := range gpuTierSubstrings {
		if strings.Contains(lower, entry.substr) {
			return entry.tier
		}
	}
	return ""
}

func gpuScoreOf(tier string) int {
	switch tier {
	case "HIGH":
		return 2
	case "MID":
		return 1
	default:
		return 0
	}
}
