// Package config handles configuration loading and shared defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"web/artmap/cluster"
	"web/artmap/search"
	"web/artmap/view"
)

// Config represents the root configuration file structure. Every field
// has a working default; an absent or empty file yields the stock map
// over France.
type Config struct {
	Map     MapConfig     `yaml:"map,omitempty"`
	Cluster ClusterConfig `yaml:"cluster,omitempty"`
	Search  SearchConfig  `yaml:"search,omitempty"`
	Timing  TimingConfig  `yaml:"timing,omitempty"`
	Source  SourceConfig  `yaml:"source,omitempty"`
}

// MapConfig sets the default camera, used on first load and on reset.
type MapConfig struct {
	Lat       float64 `yaml:"lat,omitempty"`
	Lng       float64 `yaml:"lng,omitempty"`
	Zoom      float64 `yaml:"zoom,omitempty"`
	FocusZoom float64 `yaml:"focus_zoom,omitempty"`
	MaxZoom   float64 `yaml:"max_zoom,omitempty"`
}

// ClusterConfig tunes the marker clustering pass. Radius is in screen
// pixels at the query zoom.
type ClusterConfig struct {
	MaxZoom   int     `yaml:"max_zoom,omitempty"`
	MinPoints int     `yaml:"min_points,omitempty"`
	Radius    float64 `yaml:"radius,omitempty"`
	Extent    int     `yaml:"extent,omitempty"`
	NodeSize  int     `yaml:"node_size,omitempty"`
}

// SearchConfig tunes the text search index.
type SearchConfig struct {
	MinQueryLength  int `yaml:"min_query_length,omitempty"`
	MaxTypoDistance int `yaml:"max_typo_distance,omitempty"`
}

// TimingConfig holds the interaction delays in milliseconds.
type TimingConfig struct {
	DebounceMs  int `yaml:"debounce_ms,omitempty"`
	AnimationMs int `yaml:"animation_ms,omitempty"`
}

// SourceConfig names where the place catalog comes from. When both are
// empty the server runs on generated demo data.
type SourceConfig struct {
	SQLitePath string `yaml:"sqlite,omitempty"`
	FilePath   string `yaml:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Map: MapConfig{
			Lat:       view.DefaultsFrance.Lat,
			Lng:       view.DefaultsFrance.Lng,
			Zoom:      view.DefaultsFrance.Zoom,
			FocusZoom: 14,
			MaxZoom:   cluster.MaxSaneZoom,
		},
		Cluster: ClusterConfig{
			MaxZoom:   16,
			MinPoints: 2,
			Radius:    60,
			Extent:    512,
			NodeSize:  64,
		},
		Search: SearchConfig{
			MinQueryLength:  2,
			MaxTypoDistance: 2,
		},
		Timing: TimingConfig{
			DebounceMs:  500,
			AnimationMs: 1500,
		},
	}
}

// Load reads and parses the YAML configuration file from the specified
// path, filling anything absent from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Coordinator translates the file values into a coordinator config.
func (c *Config) Coordinator() view.Config {
	return view.Config{
		Defaults: view.Defaults{
			Lat:  c.Map.Lat,
			Lng:  c.Map.Lng,
			Zoom: c.Map.Zoom,
		},
		FocusZoom:      c.Map.FocusZoom,
		MaxZoom:        c.Map.MaxZoom,
		DebounceWindow: time.Duration(c.Timing.DebounceMs) * time.Millisecond,
		AnimationDelay: time.Duration(c.Timing.AnimationMs) * time.Millisecond,
		Cluster: cluster.Options{
			MaxZoom:   c.Cluster.MaxZoom,
			MinPoints: c.Cluster.MinPoints,
			Radius:    c.Cluster.Radius,
			Extent:    c.Cluster.Extent,
			NodeSize:  c.Cluster.NodeSize,
		},
		Search: search.Options{
			MinQueryLength:  c.Search.MinQueryLength,
			MaxTypoDistance: c.Search.MaxTypoDistance,
		},
	}
}
