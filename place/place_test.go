package place

import (
	"encoding/json"
	"math"
	"testing"
)

func TestHasValidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lng  float64
		want bool
	}{
		{"paris", 48.8566, 2.3522, true},
		{"null island", 0, 0, false},
		{"nan lat", math.NaN(), 2.35, false},
		{"nan lng", 48.85, math.NaN(), false},
		{"lat too big", 91, 2.35, false},
		{"lng too small", 48.85, -181, false},
		{"equator not null island", 0, 9.5, true},
		{"meridian not null island", 51.48, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Place{Lat: tt.lat, Lng: tt.lng}
			if got := p.HasValidCoordinates(); got != tt.want {
				t.Errorf("HasValidCoordinates(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

func TestTypeKnown(t *testing.T) {
	for _, typ := range Types {
		if !typ.Known() {
			t.Errorf("%q not recognized", typ)
		}
	}
	if Type("museum").Known() {
		t.Error("museum must not be a known type")
	}
	if Type("Gallery").Known() {
		t.Error("type matching is case-sensitive")
	}
}

func TestFeatureCollectionRoundTrip(t *testing.T) {
	in := []Place{
		{ID: "1", Name: "Galerie A", City: "Paris", Type: TypeGallery, Lat: 48.86, Lng: 2.33},
		{ID: "2", Name: "Atelier B", City: "Lyon", Type: TypeArtist}, // no coordinates
	}

	fc := ToFeatureCollection(in)
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want only the mappable place", len(fc.Features))
	}
	coords := fc.Features[0].Geometry.Coordinates
	if coords[0] != 2.33 || coords[1] != 48.86 {
		t.Fatalf("coordinates = %v, want [lng lat]", coords)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	var parsed FeatureCollection
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	out := parsed.Places()
	if len(out) != 1 || out[0].ID != "1" || out[0].Lat != 48.86 {
		t.Fatalf("round trip produced %+v", out)
	}
}
