package acquire

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// MapHint is a map link found on or attached to a listing.
type MapHint struct {
	URL string   `json:"url"`
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether both coordinates are known.
func (h *MapHint) HasCoordinates() bool {
	return h != nil && h.Lat != nil && h.Lng != nil
}

var (
	reAtCoords  = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	reCoordSep  = regexp.MustCompile(`[\s,]+`)
	coordParams = []string{"q", "query", "center", "ll"}
)

// IsMapURL recognizes Google Maps links, including short links and embeds.
func IsMapURL(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "google.com/maps") ||
		strings.Contains(l, "maps.google.") ||
		strings.Contains(l, "goo.gl/maps") ||
		strings.Contains(l, "maps.app.goo.gl")
}

// ParseMapURL reads coordinates from "@lat,lng" path segments or from the
// q, query, center and ll parameters. ok is false for non-map URLs.
func ParseMapURL(raw string) (*MapHint, bool) {
	raw = strings.TrimSpace(raw)
	if !IsMapURL(raw) {
		return nil, false
	}
	hint := &MapHint{URL: raw}
	if lat, lng, ok := Coordinates(raw); ok {
		hint.Lat, hint.Lng = &lat, &lng
	}
	return hint, true
}

// Coordinates extracts a lat/lng pair from a map URL.
func Coordinates(raw string) (float64, float64, bool) {
	if m := reAtCoords.FindStringSubmatch(raw); m != nil {
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lng, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && validCoords(lat, lng) {
			return lat, lng, true
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return 0, 0, false
	}
	params := u.Query()
	for _, k := range coordParams {
		v := strings.TrimSpace(params.Get(k))
		if v == "" {
			continue
		}
		parts := reCoordSep.Split(v, -1)
		if len(parts) < 2 {
			continue
		}
		lat, err1 := strconv.ParseFloat(parts[0], 64)
		lng, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && validCoords(lat, lng) {
			return lat, lng, true
		}
	}
	return 0, 0, false
}

func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// SearchURL converts an embed link into a shareable search link using its
// q or center parameter. Other URLs are returned unchanged.
func SearchURL(raw string) string {
	if !strings.Contains(raw, "/embed") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	params := u.Query()
	for _, k := range []string{"q", "center"} {
		if v := params.Get(k); v != "" {
			return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(v)
		}
	}
	return raw
}

// FindMapHint returns a hint for the first map link in links, preferring one
// that carries coordinates.
func FindMapHint(links []string) *MapHint {
	var first *MapHint
	for _, l := range links {
		h, ok := ParseMapURL(l)
		if !ok {
			continue
		}
		if h.HasCoordinates() {
			return h
		}
		if first == nil {
			first = h
		}
	}
	return first
}
