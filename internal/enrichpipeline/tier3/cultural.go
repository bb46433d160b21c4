package tier3

import (
	"context"
	"strconv"
	"strings"

	"github.com/smartpixl/smartpixl/internal/record"
)

// countryLanguage maps ISO country codes to the language tag(s) expected for
// a consistent browser (spec.md §4.6 tier 3: "fonts × language × date/number
// format × calendar × voices against IP country").
var countryLanguage = map[string][]string{
	"US": {"en-us", "en"},
	"GB": {"en-gb", "en"},
	"FR": {"fr", "fr-fr"},
	"DE": {"de", "de-de"},
	"JP": {"ja", "ja-jp"},
	"BR": {"pt-br", "pt"},
	"MX": {"es-mx", "es"},
	"CN": {"zh-cn", "zh"},
}

// Cultural implements the cultural-consistency analyzer (spec.md §4.6
// tier 3). It scores 0-100 based on how many consistency checks pass.
func Cultural(ctx context.Context, rec record.Record) (record.Record, error) {
	country, hasCountry := rec.QueryParam("mmCC")
	if !hasCountry {
		country, hasCountry = rec.QueryParam("ipapiCC")
	}
	lang, _ := rec.RawQueryParam("lang")
	tz, hasTZ := rec.QueryParam("geoTz")
	browserTZ, hasBrowserTZ := rec.RawQueryParam("tz")

	if !hasCountry {
		return rec, nil
	}

	checks, passed := 0, 0
	var flags []string

	if lang != "" {
		checks++
		if languageMatchesCountry(country, lang) {
			passed++
		} else {
			flags = append(flags, "langMismatch")
		}
	}
	if hasTZ && hasBrowserTZ {
		checks++
		if strings.EqualFold(tz, browserTZ) {
			passed++
		} else {
			flags = append(flags, "tzMismatch")
		}
	}
	if checks == 0 {
		return rec, nil
	}

	score := (passed * 100) / checks
	pairs := []record.Pair{
		{Name: "culturalScore", Value: strconv.Itoa(score)},
		{Name: "culturalFlags", Value: strings.Join(flags, ",")},
	}
	return rec.WithQueryParams(pairs...), nil
}

func languageMatchesCountry(country, lang string) bool {
	expected, ok := countryLanguage[strings.ToUpper(country)]
	if !ok {
		return true
	}
	lang = strings.ToLower(lang)
	for _, e := range expected {
		if lang == e || strings.HasPrefix(lang, e) {
			return true
		}
	}
	return false
}
