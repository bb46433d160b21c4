package tier1

import (
	"context"
	"strconv"

	"github.com/avct/uasurfer"

	"github.com/smartpixl/smartpixl/internal/record"
)

// UAParse extracts structured browser/OS/device fields (spec.md §4.6 tier 1)
// via github.com/avct/uasurfer.
func UAParse(ctx context.Context, rec record.Record) (record.Record, error) {
	if rec.UserAgent == "" {
		return rec, nil
	}
	ua := uasurfer.Parse(rec.UserAgent)

	deviceType := deviceTypeName(ua.DeviceType)
	pairs := []record.Pair{
		{Name: "browser", Value: ua.Browser.Name.String()},
		{Name: "browserVer", Value: formatVersion(ua.Browser.Version)},
		{Name: "os", Value: ua.OS.Name.String()},
		{Name: "osVer", Value: formatVersion(ua.OS.Version)},
		{Name: "deviceType", Value: deviceType},
	}
	if ua.DeviceType == uasurfer.DeviceComputer || ua.DeviceType == uasurfer.DeviceTablet || ua.DeviceType == uasurfer.DevicePhone {
		pairs = append(pairs,
			record.Pair{Name: "deviceModel", Value: ua.OS.Name.String()},
			record.Pair{Name: "deviceBrand", Value: ua.OS.Platform.String()},
		)
	}
	return rec.WithQueryParams(pairs...), nil
}

func deviceTypeName(d uasurfer.DeviceType) string {
	switch d {
	case uasurfer.DeviceComputer:
		return "computer"
	case uasurfer.DeviceTablet:
		return "tablet"
	case uasurfer.DevicePhone:
		return "phone"
	case uasurfer.DeviceConsole:
		return "console"
	case uasurfer.DeviceWearable:
		return "wearable"
	case uasurfer.DeviceTV:
		return "tv"
	default:
		return "unknown"
	}
}

func formatVersion(v uasurfer.Version) string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}
