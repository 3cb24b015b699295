package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"web/artmap/place"
)

func TestSQLiteRoundTrip(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "places.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	in := []place.Place{
		{ID: "1", Name: "Galerie Itinerrance", City: "Paris", Region: "Île-de-France",
			Type: place.TypeGallery, Lat: 48.8322, Lng: 2.3764, Website: "https://itinerrance.fr"},
		{ID: "2", Name: "Le MUR", City: "Paris", Region: "Île-de-France",
			Type: place.TypeAssociation, Lat: 48.8664, Lng: 2.3802},
	}
	for _, p := range in {
		if err := s.UpsertPlace(ctx, p); err != nil {
			t.Fatalf("upsert %s: %v", p.ID, err)
		}
	}

	got, err := s.FetchPlaces(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("fetched %d places, want 2", len(got))
	}
	if got[0].Name != "Galerie Itinerrance" || got[0].Lat != 48.8322 {
		t.Fatalf("row 1 mismatch: %+v", got[0])
	}
	if got[0].Website != "https://itinerrance.fr" {
		t.Fatalf("website lost: %+v", got[0])
	}
}

func TestSQLiteUpsertReplaces(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "places.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	p := place.Place{ID: "1", Name: "Old Name", Type: place.TypeWall, Lat: 43.3, Lng: 5.37}
	if err := s.UpsertPlace(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Name = "New Name"
	if err := s.UpsertPlace(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.FetchPlaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "New Name" {
		t.Fatalf("upsert did not replace: %+v", got)
	}
}

func TestSQLiteNullCoordinatesScanAsNaN(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "places.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	// Null island on input means no coordinates; the store persists NULL.
	p := place.Place{ID: "x", Name: "Atelier", Type: place.TypeArtist}
	if err := s.UpsertPlace(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.FetchPlaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("fetched %d, want 1", len(got))
	}
	if !math.IsNaN(got[0].Lat) || !math.IsNaN(got[0].Lng) {
		t.Fatalf("NULL coordinates came back as %v,%v", got[0].Lat, got[0].Lng)
	}
	if got[0].HasValidCoordinates() {
		t.Fatal("coordinate-less place reports valid coordinates")
	}
}

func TestSQLiteDeleteMissing(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "places.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.DeletePlace(context.Background(), "nope"); err == nil {
		t.Fatal("deleting a missing place must fail")
	}
}

func TestFileStorePlacesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.json")
	data := `[
		{"id": "1", "name": "Galerie A", "city": "Paris", "type": "gallery", "lat": 48.86, "lng": 2.33},
		{"id": "2", "name": "Asso B", "city": "Lyon", "type": "association", "lat": 45.76, "lng": 4.83}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FileStore{Path: path}.FetchPlaces(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 || got[1].City != "Lyon" {
		t.Fatalf("parsed %+v", got)
	}
}

func TestFileStoreFeatureCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.geojson")
	data := `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [2.33, 48.86]},
			"properties": {"id": "1", "name": "Galerie A", "city": "Paris", "type": "gallery"}
		}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FileStore{Path: path}.FetchPlaces(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("parsed %d places, want 1", len(got))
	}
	if got[0].Lng != 2.33 || got[0].Lat != 48.86 {
		t.Fatalf("coordinate order wrong: %+v", got[0])
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	_, err := FileStore{Path: "/does/not/exist.json"}.FetchPlaces(context.Background())
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
