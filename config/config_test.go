package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Map.Lat != 46.6034 || cfg.Map.Zoom != 6 {
		t.Fatalf("default map = %+v", cfg.Map)
	}
	if cfg.Timing.DebounceMs != 500 || cfg.Timing.AnimationMs != 1500 {
		t.Fatalf("default timing = %+v", cfg.Timing)
	}

	vc := cfg.Coordinator()
	if vc.DebounceWindow != 500*time.Millisecond {
		t.Fatalf("debounce window = %v", vc.DebounceWindow)
	}
	if vc.Cluster.Radius != 60 || vc.Cluster.Extent != 512 {
		t.Fatalf("cluster options = %+v", vc.Cluster)
	}
}

func TestLoadOverridesPartially(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
map:
  lat: 48.8566
  lng: 2.3522
  zoom: 11
cluster:
  radius: 80
timing:
  debounce_ms: 250
source:
  sqlite: /var/lib/artmap/places.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Map.Lat != 48.8566 || cfg.Map.Zoom != 11 {
		t.Fatalf("map not overridden: %+v", cfg.Map)
	}
	if cfg.Cluster.Radius != 80 {
		t.Fatalf("cluster radius = %v", cfg.Cluster.Radius)
	}
	// Untouched sections keep their defaults.
	if cfg.Cluster.Extent != 512 || cfg.Timing.AnimationMs != 1500 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Cluster, cfg.Timing)
	}
	if cfg.Source.SQLitePath != "/var/lib/artmap/places.db" {
		t.Fatalf("source = %+v", cfg.Source)
	}

	// Overridden tuning reaches the coordinator config.
	vc := cfg.Coordinator()
	if vc.Cluster.Radius != 80 {
		t.Fatalf("coordinator cluster radius = %v, want 80", vc.Cluster.Radius)
	}
	if vc.DebounceWindow != 250*time.Millisecond {
		t.Fatalf("coordinator debounce = %v, want 250ms", vc.DebounceWindow)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.MinQueryLength != 2 {
		t.Fatalf("search defaults = %+v", cfg.Search)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
