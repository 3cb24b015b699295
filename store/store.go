// Package store loads place snapshots from external sources. The
// coordinator never talks to a source directly; it consumes whatever
// snapshot the store hands back and keeps serving the previous one when
// a refresh fails.
package store

import (
	"context"

	"web/artmap/place"
)

// Store is a read-through source of the full place snapshot.
type Store interface {
	// FetchPlaces returns the complete current set of places. Callers
	// treat the returned slice as immutable.
	FetchPlaces(ctx context.Context) ([]place.Place, error)
}
