package capture

import "regexp"

// identifierPattern validates CompanyID and PixelID (spec.md §4.1).
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
