package cluster

import (
	"math"
	"path/filepath"
	"testing"

	"web/artmap/place"
)

func testPlaces() []place.Place {
	return []place.Place{
		{ID: "1", Name: "Galerie A", City: "Paris", Type: place.TypeGallery, Lat: 48.86, Lng: 2.33},
		{ID: "2", Name: "Galerie B", City: "Paris", Type: place.TypeGallery, Lat: 48.87, Lng: 2.34},
		{ID: "3", Name: "Asso C", City: "Lyon", Type: place.TypeAssociation, Lat: 45.76, Lng: 4.83},
		{ID: "4", Name: "Mur D", City: "Marseille", Type: place.TypeWall, Lat: 43.30, Lng: 5.37},
	}
}

func franceBounds() Bounds {
	return Bounds{MinX: -5, MinY: 41, MaxX: 10, MaxY: 52}
}

func TestInvalidCoordinatesDropped(t *testing.T) {
	places := append(testPlaces(),
		place.Place{ID: "bad-lat", Name: "Nowhere", Lat: 120, Lng: 2},
		place.Place{ID: "bad-lng", Name: "Nowhere", Lat: 45, Lng: -600},
		place.Place{ID: "null-island", Name: "Nowhere", Lat: 0, Lng: 0},
		place.Place{ID: "nan", Name: "Nowhere", Lat: math.NaN(), Lng: math.NaN()},
	)

	idx := NewIndex(Options{})
	idx.Load(places)

	if len(idx.Places) != 4 {
		t.Fatalf("expected 4 indexed places, got %d", len(idx.Places))
	}

	world := Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}
	for _, zoom := range []float64{0, 5, 10, 16, 20} {
		for _, n := range idx.Query(world, zoom) {
			if n.PlaceID == "bad-lat" || n.PlaceID == "bad-lng" ||
				n.PlaceID == "null-island" || n.PlaceID == "nan" {
				t.Errorf("invalid place %q surfaced at zoom %v", n.PlaceID, zoom)
			}
		}
	}
}

func TestEveryPlaceIsLeafAtMaxZoom(t *testing.T) {
	idx := NewIndex(Options{MaxZoom: 16})
	idx.Load(testPlaces())

	nodes := idx.Query(franceBounds(), 16)
	if len(nodes) != 4 {
		t.Fatalf("expected 4 leaves at max zoom, got %d", len(nodes))
	}
	for _, n := range nodes {
		if n.IsCluster() {
			t.Errorf("unexpected cluster %d at max zoom", n.ID)
		}
		if n.PlaceID == "" {
			t.Errorf("leaf without place id")
		}
	}
}

func TestNearbyPlacesClusterAtLowZoom(t *testing.T) {
	idx := NewIndex(Options{MinPoints: 2, Radius: 60})
	idx.Load(testPlaces())

	nodes := idx.Query(franceBounds(), 4)

	var clustered uint32
	for _, n := range nodes {
		clustered += n.Count
	}
	if clustered != 4 {
		t.Fatalf("markers cover %d places, want 4", clustered)
	}

	// The two Paris galleries are ~1.3km apart and must merge well below
	// street-level zoom.
	foundParisCluster := false
	for _, n := range nodes {
		if n.IsCluster() && n.Count >= 2 {
			foundParisCluster = true
			if n.TypeCounts[place.TypeGallery] < 2 {
				t.Errorf("paris cluster type counts = %v", n.TypeCounts)
			}
		}
	}
	if !foundParisCluster {
		t.Error("expected the Paris galleries to cluster at zoom 4")
	}
}

func TestQueryDeterministic(t *testing.T) {
	idx := NewIndex(Options{})
	idx.Load(GenerateTestPlaces(500, franceBounds()))

	a := idx.Query(franceBounds(), 6)
	b := idx.Query(franceBounds(), 6)

	if len(a) != len(b) {
		t.Fatalf("query sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Count != b[i].Count {
			t.Fatalf("node %d differs between identical queries", i)
		}
	}
}

func TestEmptyIndexQueries(t *testing.T) {
	idx := NewIndex(Options{})
	idx.Load(nil)

	if nodes := idx.Query(franceBounds(), 8); len(nodes) != 0 {
		t.Fatalf("empty index returned %d nodes", len(nodes))
	}

	idx.Load([]place.Place{{ID: "x", Lat: 200, Lng: 200}})
	if nodes := idx.Query(franceBounds(), 8); len(nodes) != 0 {
		t.Fatalf("fully-invalid index returned %d nodes", len(nodes))
	}
}

func TestExpansionZoomSplitsCluster(t *testing.T) {
	idx := NewIndex(Options{MinPoints: 2})
	idx.Load(testPlaces())

	nodes := idx.Query(franceBounds(), 2)
	var cl *MarkerNode
	for i := range nodes {
		if nodes[i].IsCluster() {
			cl = &nodes[i]
			break
		}
	}
	if cl == nil {
		t.Skip("no cluster formed at zoom 2")
	}

	ez := idx.ExpansionZoom(*cl, 2)
	if ez <= 2 || ez > idx.Options.MaxZoom {
		t.Fatalf("expansion zoom %d out of range", ez)
	}
	if ez > MaxSaneZoom {
		t.Fatalf("expansion zoom %d above sane cap", ez)
	}

	// At the expansion zoom the members no longer form a single group.
	members := make([]KDPoint, 0, len(cl.Members))
	for _, id := range cl.Members {
		members = append(members, idx.pointByID(id))
	}
	groups := groupByRadius(idx.projectPoints(members, ez), float32(idx.Options.Radius), idx.Options.MinPoints)
	if len(groups) < 2 {
		t.Errorf("cluster did not split at its expansion zoom %d", ez)
	}
}

func TestExpansionZoomCoLocatedPlaces(t *testing.T) {
	idx := NewIndex(Options{MinPoints: 2})
	idx.Load([]place.Place{
		{ID: "a", Lat: 48.86, Lng: 2.33, Type: place.TypeWall},
		{ID: "b", Lat: 48.86, Lng: 2.33, Type: place.TypeWall},
	})

	nodes := idx.Query(franceBounds(), 3)
	if len(nodes) != 1 || !nodes[0].IsCluster() {
		t.Fatalf("expected one cluster, got %+v", nodes)
	}

	ez := idx.ExpansionZoom(nodes[0], 3)
	if ez != idx.Options.MaxZoom {
		t.Fatalf("co-located cluster should report max zoom, got %d", ez)
	}
}

func TestKDTreeRangeMatchesLinearScan(t *testing.T) {
	places := GenerateTestPlaces(1000, franceBounds())
	idx := NewIndex(Options{NodeSize: 8})
	idx.Load(places)

	box := Bounds{MinX: 0, MinY: 44, MaxX: 5, MaxY: 48}
	got := idx.Tree.Range(box)

	want := 0
	for _, p := range idx.Tree.Points {
		if box.Contains(p.X, p.Y) {
			want++
		}
	}
	if len(got) != want {
		t.Fatalf("range query returned %d points, linear scan found %d", len(got), want)
	}
	seen := make(map[uint32]bool, len(got))
	for _, p := range got {
		if seen[p.ID] {
			t.Fatalf("range query returned point %d twice", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	idx := NewIndex(Options{})

	testCases := []struct {
		lng, lat float32
		zoom     int
	}{
		{0, 0, 0},
		{180, 85, 10},
		{-180, -85, 5},
		{45, 45, 8},
		{2.33, 48.86, 12},
	}

	for _, tc := range testCases {
		projected := idx.project(tc.lng, tc.lat, tc.zoom)
		unprojected := idx.unproject(projected[0], projected[1], tc.zoom)

		const epsilon = 0.0001
		if math.Abs(float64(tc.lng-unprojected[0])) > epsilon ||
			math.Abs(float64(tc.lat-unprojected[1])) > epsilon {
			t.Errorf("projection round trip failed for (%f,%f) at zoom %d: got (%f,%f)",
				tc.lng, tc.lat, tc.zoom, unprojected[0], unprojected[1])
		}
	}
}

func TestViewportBoundsContainCenter(t *testing.T) {
	b := ViewportBounds(48.86, 2.33, 12, 1280, 800, 512)
	if !b.Contains(2.33, 48.86) {
		t.Fatalf("viewport bounds %+v exclude their own center", b)
	}
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		t.Fatalf("degenerate viewport bounds %+v", b)
	}
	// A wider viewport must see at least as much.
	wide := ViewportBounds(48.86, 2.33, 12, 2560, 800, 512)
	if wide.MaxX-wide.MinX <= b.MaxX-b.MinX {
		t.Errorf("wider viewport did not widen bounds")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(Options{MinPoints: 2, Radius: 80})
	idx.Load(testPlaces())

	path := filepath.Join(dir, "index.zst")
	if err := idx.SaveCompressed(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadCompressed(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	assertSameIndex(t, idx, loaded)
}

func TestMMapSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(Options{MinPoints: 2, Radius: 80})
	idx.Load(testPlaces())

	path := filepath.Join(dir, "index.bin")
	if err := idx.SaveToMMap(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromMMap(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	assertSameIndex(t, idx, loaded)
}

func assertSameIndex(t *testing.T, want, got *Index) {
	t.Helper()
	if len(got.Places) != len(want.Places) {
		t.Fatalf("loaded %d places, want %d", len(got.Places), len(want.Places))
	}
	if got.Options != want.Options {
		t.Fatalf("options differ: %+v vs %+v", got.Options, want.Options)
	}

	a := want.Query(franceBounds(), 5)
	b := got.Query(franceBounds(), 5)
	if len(a) != len(b) {
		t.Fatalf("loaded index answers %d nodes, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Count != b[i].Count || a[i].PlaceID != b[i].PlaceID {
			t.Fatalf("node %d differs after reload: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSummarize(t *testing.T) {
	idx := NewIndex(Options{MinPoints: 2})
	idx.Load(testPlaces())

	nodes := idx.Query(franceBounds(), 4)
	summary := Summarize(nodes)

	if summary.TotalPlaces != 4 {
		t.Errorf("summary counts %d places, want 4", summary.TotalPlaces)
	}
	if summary.NumClusters+summary.NumSingleMarkers != len(nodes) {
		t.Errorf("summary node counts do not add up")
	}
}
