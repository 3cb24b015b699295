// Package place defines the street-art location model shared by the
// clustering, search and coordination layers.
package place

import "math"

// Type is the category of a place. The set is closed; the admin workflow
// that feeds the store only produces these values.
type Type string

const (
	TypeGallery     Type = "gallery"
	TypeAssociation Type = "association"
	TypeArtist      Type = "artist"
	TypeWall        Type = "wall"
	TypeEvent       Type = "event"
)

// Types lists every known category in display order.
var Types = []Type{TypeGallery, TypeAssociation, TypeArtist, TypeWall, TypeEvent}

// Known reports whether t is one of the closed category set.
func (t Type) Known() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// Place is one street-art location. Instances are read-only snapshots
// supplied by a store; nothing in this module mutates them.
type Place struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	City   string  `json:"city"`
	Region string  `json:"region"`
	Type   Type    `json:"type"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`

	Description  string `json:"description,omitempty"`
	Address      string `json:"address,omitempty"`
	Website      string `json:"website,omitempty"`
	Contact      string `json:"contact,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
	Image        string `json:"image,omitempty"`
}

// HasValidCoordinates reports whether the place can be put on a map.
// The data source stores ungeocoded rows as NULL (NaN after scanning) or as
// the (0,0) placeholder; both are treated as missing. Places that fail this
// check never enter the spatial index but remain text-searchable.
func (p Place) HasValidCoordinates() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return true
}
