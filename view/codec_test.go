package view

import (
	"math"
	"math/rand"
	"testing"

	"web/artmap/place"
)

func TestEncodeDefaultStateIsEmpty(t *testing.T) {
	codec := Codec{Defaults: DefaultsFrance}
	state := State{
		Viewport: Viewport{Lat: DefaultsFrance.Lat, Lng: DefaultsFrance.Lng, Zoom: DefaultsFrance.Zoom},
		Filters:  Filters{Region: RegionAll},
	}
	if got := codec.EncodeQuery(state); got != "" {
		t.Fatalf("default state encoded to %q, want empty", got)
	}
}

func TestEncodeOmitsDefaultsPerField(t *testing.T) {
	codec := Codec{Defaults: DefaultsFrance}
	state := State{
		Viewport: Viewport{Lat: DefaultsFrance.Lat, Lng: DefaultsFrance.Lng, Zoom: 12},
	}
	values := codec.Encode(state)
	if values.Get(keyLat) != "" || values.Get(keyLng) != "" {
		t.Errorf("default center serialized: %v", values)
	}
	if values.Get(keyZoom) != "12.00" {
		t.Errorf("zoom = %q, want 12.00", values.Get(keyZoom))
	}
}

func TestDecodeIgnoresUnknownAndUnparsable(t *testing.T) {
	codec := Codec{Defaults: DefaultsFrance}

	p := codec.Decode("lat=abc&lng=999&zoom=-3&type=bakery&utm_source=x&foo=bar")
	if !p.Empty() {
		t.Fatalf("garbage query decoded to %+v", p)
	}

	p = codec.Decode("lat=48.8600&search=graffiti")
	if p.Lat == nil || *p.Lat != 48.86 {
		t.Errorf("lat not decoded: %+v", p)
	}
	if p.Lng != nil {
		t.Error("absent lng should stay unset")
	}
	if p.Search == nil || *p.Search != "graffiti" {
		t.Errorf("search not decoded: %+v", p)
	}
}

func TestDecodeAllSentinels(t *testing.T) {
	codec := Codec{Defaults: DefaultsFrance}
	p := codec.Decode("type=all&region=all")
	if p.Type != nil || p.Region != nil {
		t.Fatalf("'all' sentinels should decode as unset, got %+v", p)
	}
}

func TestRoundTripRandomStates(t *testing.T) {
	codec := Codec{Defaults: DefaultsFrance}
	r := rand.New(rand.NewSource(7))

	queries := []string{"", "banksy", "mur graffiti", "éphémère"}
	regions := []string{RegionAll, "Bretagne", "Occitanie", "Île-de-France"}

	for i := 0; i < 500; i++ {
		state := State{
			Viewport: Viewport{
				Lat:  r.Float64()*180 - 90,
				Lng:  r.Float64()*360 - 180,
				Zoom: r.Float64() * 20,
			},
			Filters: Filters{Region: regions[r.Intn(len(regions))]},
			Search:  Search{Query: queries[r.Intn(len(queries))]},
		}
		if r.Intn(2) == 0 {
			state.Filters.Types = []place.Type{place.Types[r.Intn(len(place.Types))]}
		}
		if r.Intn(3) == 0 {
			state.Selection.ID = "loc-42"
		}

		p := codec.Decode(codec.EncodeQuery(state))

		assertFloatField(t, "lat", p.Lat, state.Viewport.Lat, DefaultsFrance.Lat, 0.00005)
		assertFloatField(t, "lng", p.Lng, state.Viewport.Lng, DefaultsFrance.Lng, 0.00005)
		assertFloatField(t, "zoom", p.Zoom, state.Viewport.Zoom, DefaultsFrance.Zoom, 0.005)

		if len(state.Filters.Types) == 1 {
			if p.Type == nil || *p.Type != state.Filters.Types[0] {
				t.Fatalf("type did not round-trip: %+v vs %v", p.Type, state.Filters.Types)
			}
		} else if p.Type != nil {
			t.Fatalf("spurious type after round trip: %v", *p.Type)
		}

		if regionIsAll(state.Filters.Region) {
			if p.Region != nil {
				t.Fatalf("spurious region %q", *p.Region)
			}
		} else if p.Region == nil || *p.Region != state.Filters.Region {
			t.Fatalf("region did not round-trip: %+v vs %q", p.Region, state.Filters.Region)
		}

		if state.Search.Query == "" {
			if p.Search != nil {
				t.Fatalf("spurious search %q", *p.Search)
			}
		} else if p.Search == nil || *p.Search != state.Search.Query {
			t.Fatalf("search did not round-trip: %+v vs %q", p.Search, state.Search.Query)
		}

		if state.Selection.ID == "" {
			if p.Location != nil {
				t.Fatalf("spurious location %q", *p.Location)
			}
		} else if p.Location == nil || *p.Location != state.Selection.ID {
			t.Fatalf("location did not round-trip")
		}
	}
}

// assertFloatField checks a numeric field round-trips within precision,
// treating "decoded as unset" as correct only when the original value
// rounds to the default.
func assertFloatField(t *testing.T, name string, got *float64, want, def, eps float64) {
	t.Helper()
	if got == nil {
		if math.Abs(want-def) > eps {
			t.Fatalf("%s lost in round trip: want %v", name, want)
		}
		return
	}
	if math.Abs(*got-want) > eps {
		t.Fatalf("%s = %v, want %v within %v", name, *got, want, eps)
	}
}
