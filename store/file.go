package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"web/artmap/place"
)

// FileStore reads the catalog from a JSON file. Both a plain place array
// and a GeoJSON FeatureCollection are accepted; the export pipeline has
// produced each format at different times.
type FileStore struct {
	Path string
}

func (f FileStore) FetchPlaces(ctx context.Context) ([]place.Place, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read places file: %w", err)
	}
	return ParsePlaces(data)
}

// ParsePlaces decodes either supported JSON shape.
func ParsePlaces(data []byte) ([]place.Place, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Type == "FeatureCollection" {
		var fc place.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse feature collection: %w", err)
		}
		return fc.Places(), nil
	}

	var places []place.Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("parse places array: %w", err)
	}
	return places, nil
}
