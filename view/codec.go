package view

import (
	"net/url"
	"strconv"
	"strings"

	"web/artmap/place"
)

// Recognized query keys. Anything else is ignored on read and never
// written.
const (
	keyLocation = "location"
	keyLat      = "lat"
	keyLng      = "lng"
	keyZoom     = "zoom"
	keyType     = "type"
	keyRegion   = "region"
	keySearch   = "search"
)

// Serialization precision: enough for street-level positions while keeping
// URLs short. Round-trip equality is defined up to these precisions.
const (
	latLngDecimals = 4
	zoomDecimals   = 2
)

// Defaults are the system default center and zoom; fields equal to them
// are omitted from encoded URLs.
type Defaults struct {
	Lat  float64
	Lng  float64
	Zoom float64
}

// DefaultsFrance centers the map on metropolitan France.
var DefaultsFrance = Defaults{Lat: 46.6034, Lng: 1.8883, Zoom: 6}

// Codec maps view state to URL query strings and back. It performs no
// I/O; applying the result to navigation state is the URLSink's job.
type Codec struct {
	Defaults Defaults
}

// Partial is a decoded view state: every field is either set or nil, so
// callers can tell "absent" from "explicitly default".
type Partial struct {
	Location *string
	Lat      *float64
	Lng      *float64
	Zoom     *float64
	Type     *place.Type
	Region   *string
	Search   *string
}

// Empty reports whether nothing was recognized in the query.
func (p Partial) Empty() bool {
	return p.Location == nil && p.Lat == nil && p.Lng == nil &&
		p.Zoom == nil && p.Type == nil && p.Region == nil && p.Search == nil
}

// Decode parses a raw query string. Unrecognized keys and unparsable
// values are dropped silently; decoding never fails.
func (c Codec) Decode(rawQuery string) Partial {
	var p Partial

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// ParseQuery keeps whatever parsed before the first bad pair.
		if values == nil {
			return p
		}
	}

	if v := values.Get(keyLocation); v != "" {
		p.Location = &v
	}
	if f, ok := parseFloat(values.Get(keyLat)); ok && f >= -90 && f <= 90 {
		p.Lat = &f
	}
	if f, ok := parseFloat(values.Get(keyLng)); ok && f >= -180 && f <= 180 {
		p.Lng = &f
	}
	if f, ok := parseFloat(values.Get(keyZoom)); ok && f >= 0 {
		p.Zoom = &f
	}
	if v := values.Get(keyType); v != "" && !strings.EqualFold(v, "all") {
		t := place.Type(strings.ToLower(v))
		if t.Known() {
			p.Type = &t
		}
	}
	if v := values.Get(keyRegion); v != "" && !strings.EqualFold(v, RegionAll) {
		p.Region = &v
	}
	if v := values.Get(keySearch); v != "" {
		p.Search = &v
	}
	return p
}

// Encode serializes the state, omitting every field equal to the system
// default so that the default view yields an empty query string.
func (c Codec) Encode(s State) url.Values {
	values := url.Values{}

	if s.Selection.ID != "" {
		values.Set(keyLocation, s.Selection.ID)
	}

	lat := formatFloat(s.Viewport.Lat, latLngDecimals)
	lng := formatFloat(s.Viewport.Lng, latLngDecimals)
	zoom := formatFloat(s.Viewport.Zoom, zoomDecimals)
	if lat != formatFloat(c.Defaults.Lat, latLngDecimals) {
		values.Set(keyLat, lat)
	}
	if lng != formatFloat(c.Defaults.Lng, latLngDecimals) {
		values.Set(keyLng, lng)
	}
	if zoom != formatFloat(c.Defaults.Zoom, zoomDecimals) {
		values.Set(keyZoom, zoom)
	}

	// The URL carries a single category; multi-type selections stay
	// in-session only.
	if len(s.Filters.Types) == 1 {
		values.Set(keyType, string(s.Filters.Types[0]))
	}
	if !regionIsAll(s.Filters.Region) {
		values.Set(keyRegion, s.Filters.Region)
	}
	if q := strings.TrimSpace(s.Search.Query); q != "" {
		values.Set(keySearch, q)
	}
	return values
}

// EncodeQuery is Encode rendered as a query string.
func (c Codec) EncodeQuery(s State) string {
	return c.Encode(s).Encode()
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatFloat(f float64, decimals int) string {
	return strconv.FormatFloat(f, 'f', decimals, 64)
}
