package tier3

import (
	"context"
	"strconv"
	"strings"

	"github.com/smartpixl/smartpixl/internal/record"
)

// gpuReleaseYear maps GPU model substrings to an approximate release year,
// the table named in spec.md §4.6 tier 3 ("GPU model -> release-year
// table").
var gpuReleaseYear = []struct {
	substr string
	year   int
}{
	{"rtx 40", 2022}, {"rtx 30", 2020}, {"rtx 20", 2018},
	{"gtx 16", 2019}, {"gtx 10", 2016}, {"gtx 9", 2014},
	{"rx 7", 2022}, {"rx 6", 2020}, {"rx 5", 2019},
	{"apple m3", 2023}, {"apple m2", 2022}, {"apple m1", 2020},
	{"intel hd", 2012}, {"intel uhd", 2017},
}

const modernBrowserMinVersion = 100

// DeviceAge implements the device-age-estimation analyzer (spec.md §4.6
// tier 3): flags a contradiction when a very old GPU is paired with a
// modern browser, a datacenter IP, and zero mouse-entropy signal.
func DeviceAge(ctx context.Context, rec record.Record) (record.Record, error) {
	gpu, _ := rec.RawQueryParam("gpu")
	year, ok := gpuYearOf(gpu)
	if !ok {
		return rec, nil
	}
	rec = rec.WithQueryParam("deviceAgeYear", strconv.Itoa(year))

	if year >= 2018 {
		return rec, nil
	}

	browserVer, _ := rec.QueryParam("browserVer")
	modernBrowser := false
	if major, err := strconv.Atoi(strings.SplitN(browserVer, ".", 2)[0]); err == nil {
		modernBrowser = major >= modernBrowserMinVersion
	}
	_, isDatacenter := rec.QueryParam("dc")
	_, hasMouse := rec.RawQueryParam("mouseEntropy")

	if modernBrowser && isDatacenter && !hasMouse {
		rec = rec.WithQueryParam("deviceAgeAnomaly", "1")
	}
	return rec, nil
}

func gpuYearOf(gpu string) (int, bool) {
	lower := strings.ToLower(gpu)
	for _, entry := range gpuReleaseYear {
		if strings.Contains(lower, entry.substr) {
			return entry.year, true
		}
	}
	return 0, false
}
