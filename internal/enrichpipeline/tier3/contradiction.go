package tier3

import (
	"context"
	"strconv"
	"strings"

	"github.com/smartpixl/smartpixl/internal/record"
)

// contradictionRule checks one "impossible tuple" named in spec.md §4.6
// tier 3 and returns a short label when it fires.
type contradictionRule struct {
	label string
	check func(rec record.Record) bool
}

var contradictionRules = []contradictionRule{
	{
		label: "mobileUAWithDesktopResAndMouse",
		check: func(rec record.Record) bool {
			deviceType, _ := rec.QueryParam("deviceType")
			_, hasMouse := rec.RawQueryParam("mouseEntropy")
			w, hw := screenWidth(rec)
			return deviceType == "phone" && hw && w >= 2560 && hasMouse
		},
	},
	{
		label: "macOSWithDirectXGPU",
		check: func(rec record.Record) bool {
			os, _ := rec.QueryParam("os")
			gpu, _ := rec.RawQueryParam("gpu")
			return strings.EqualFold(os, "macOS") && strings.Contains(strings.ToLower(gpu), "directx")
		},
	},
	{
		label: "desktopUAWithTinyScreen",
		check: func(rec record.Record) bool {
			deviceType, _ := rec.QueryParam("deviceType")
			w, ok := screenWidth(rec)
			return deviceType == "computer" && ok && w < 600
		},
	},
}

// ContradictionMatrix implements the contradiction-matrix analyzer (spec.md
// §4.6 tier 3): a rule engine over a fixed set of impossible signal tuples.
func ContradictionMatrix(ctx context.Context, rec record.Record) (record.Record, error) {
	var fired []string
	for _, rule := range contradictionRules {
		if rule.check(rec) {
			fired = append(fired, rule.label)
		}
	}
	if len(fired) == 0 {
		return rec, nil
	}
	return rec.WithQueryParams(
		record.Pair{Name: "contradictions", Value: strconv.Itoa(len(fired))},
		record.Pair{Name: "contradictionList", Value: strings.Join(fired, ",")},
	), nil
}

func screenWidth(rec record.Record) (int, bool) {
	w, ok := rec.RawQueryParam("screenW")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(w)
	if err != nil {
		return 0, false
	}
	return n, true
}
