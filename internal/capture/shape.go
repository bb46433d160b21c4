package capture

import "strings"

type shapeKind int

const (
	shapeOther shapeKind = iota
	shapeGIF
	shapeJS
)

const (
	gifSuffix = "_SMART.GIF"
	jsSuffix  = "_SMART.js"
)

// parsedShape is the result of matching one of the pixel URL shapes
// (spec.md §4.1): `/{company}/{pixel}_{domain}_SMART.GIF` or
// `/{company}/{pixel}_{domain}_SMART.js`.
type parsedShape struct {
	kind      shapeKind
	company   string
	pixel     string
	domain    string
	identOK   bool
}

// parseShape inspects an incoming request path and determines which of the
// dispatcher's URL shapes it matches, per spec.md §4.1. Any path that does
// not match the two-segment `{company}/{pixel}_{domain}_SMART.{GIF,js}`
// shape is shapeOther (the bot trap).
func parseShape(path string) parsedShape {
	trimmed := strings.TrimPrefix(path, "/")
	segs := strings.SplitN(trimmed, "/", 2)
	if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
		return parsedShape{kind: shapeOther}
	}
	company, rest := segs[0], segs[1]

	var kind shapeKind
	var body string
	switch {
	case strings.HasSuffix(rest, gifSuffix):
		kind = shapeGIF
		body = strings.TrimSuffix(rest, gifSuffix)
	case strings.HasSuffix(rest, jsSuffix):
		kind = shapeJS
		body = strings.TrimSuffix(rest, jsSuffix)
	default:
		return parsedShape{kind: shapeOther}
	}

	if body == "" {
		return parsedShape{kind: shapeOther}
	}
	pixel := body
	domain := ""
	if idx := strings.IndexByte(body, '_'); idx >= 0 {
		pixel = body[:idx]
		domain = body[idx+1:]
	}

	return parsedShape{
		kind:    kind,
		company: company,
		pixel:   pixel,
		domain:  domain,
		identOK: validIdentifier(company) && validIdentifier(pixel),
	}
}
