package place

import "math"

var nan = math.NaN()

// GeoJSON structures for the HTTP surface and file imports.
// Coordinates follow the GeoJSON convention: [lng, lat].

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ToFeatureCollection converts places to a GeoJSON FeatureCollection.
// Places without valid coordinates are skipped; they cannot be drawn.
func ToFeatureCollection(places []Place) *FeatureCollection {
	features := make([]Feature, 0, len(places))
	for _, p := range places {
		if !p.HasValidCoordinates() {
			continue
		}
		props := map[string]interface{}{
			"id":     p.ID,
			"name":   p.Name,
			"city":   p.City,
			"region": p.Region,
			"type":   string(p.Type),
		}
		if p.Address != "" {
			props["address"] = p.Address
		}
		if p.Website != "" {
			props["website"] = p.Website
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{p.Lng, p.Lat},
			},
			Properties: props,
		})
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

// Places converts a decoded FeatureCollection back into places. Features
// with non-point geometry or missing coordinates come out without valid
// coordinates rather than being dropped, so they stay searchable.
func (fc *FeatureCollection) Places() []Place {
	places := make([]Place, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := Place{Lat: nan, Lng: nan}
		if f.Geometry.Type == "Point" && len(f.Geometry.Coordinates) >= 2 {
			p.Lng = f.Geometry.Coordinates[0]
			p.Lat = f.Geometry.Coordinates[1]
		}
		p.ID = propString(f.Properties, "id")
		p.Name = propString(f.Properties, "name")
		p.City = propString(f.Properties, "city")
		p.Region = propString(f.Properties, "region")
		p.Type = Type(propString(f.Properties, "type"))
		p.Description = propString(f.Properties, "description")
		p.Address = propString(f.Properties, "address")
		p.Website = propString(f.Properties, "website")
		p.Contact = propString(f.Properties, "contact")
		p.OpeningHours = propString(f.Properties, "opening_hours")
		p.Image = propString(f.Properties, "image")
		places = append(places, p)
	}
	return places
}

func propString(props map[string]interface{}, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
