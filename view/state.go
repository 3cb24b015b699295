// Package view keeps the map view state consistent: it owns the viewport,
// filters, search and selection, recomputes the visible marker set on every
// change, and mirrors the state into a shareable URL query string.
package view

import (
	"strings"

	"web/artmap/place"
)

// RegionAll is the sentinel for "no region filter".
const RegionAll = "all"

// Viewport is the visible map region. Width and Height are the renderer's
// pixel size; the bounding box is derived from them, never set directly.
type Viewport struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Zoom   float64 `json:"zoom"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

// Filters narrow the working set by category and region. An empty Types
// set and an empty or "all" Region mean no filtering.
type Filters struct {
	Types  []place.Type `json:"types,omitempty"`
	Region string       `json:"region,omitempty"`
}

// Active reports whether the filters narrow anything at all.
func (f Filters) Active() bool {
	return len(f.Types) > 0 || !regionIsAll(f.Region)
}

// Matches reports whether a place passes the filters.
func (f Filters) Matches(p place.Place) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if p.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !regionIsAll(f.Region) && !strings.EqualFold(p.Region, f.Region) {
		return false
	}
	return true
}

func regionIsAll(region string) bool {
	return region == "" || strings.EqualFold(region, RegionAll)
}

// Search holds the free-text query. Whether it is active depends on the
// text index's minimum query length, not on this struct.
type Search struct {
	Query string `json:"query,omitempty"`
}

// Selection is the currently selected place plus the one-shot recenter
// flag. CenterOnSelection stays true for the length of the camera
// animation and then clears itself, so re-selecting the same place
// retriggers the animation.
type Selection struct {
	ID                string `json:"id,omitempty"`
	CenterOnSelection bool   `json:"centerOnSelection,omitempty"`
}

// Camera is a one-shot camera target for the renderer to animate to.
type Camera struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

// State is the URL-persistable part of the view state.
type State struct {
	Viewport  Viewport
	Filters   Filters
	Search    Search
	Selection Selection
}
