package cluster

import (
	"fmt"
	"math/rand"

	"web/artmap/place"
)

// MarkerSummary aggregates a query result for the badge/count UI: how many
// places are visible, how they split into clusters and singles, and the
// category distribution.
type MarkerSummary struct {
	TotalPlaces      int                    `json:"totalPlaces"`
	NumClusters      int                    `json:"numClusters"`
	NumSingleMarkers int                    `json:"numSingleMarkers"`
	TypeDistribution map[place.Type]float64 `json:"typeDistribution"` // percent
}

// Summarize condenses a marker set into a MarkerSummary.
func Summarize(nodes []MarkerNode) MarkerSummary {
	summary := MarkerSummary{
		TypeDistribution: make(map[place.Type]float64),
	}

	typeCounts := make(map[place.Type]uint32)
	var typed uint32

	for _, n := range nodes {
		if n.IsCluster() {
			summary.NumClusters++
		} else {
			summary.NumSingleMarkers++
		}
		summary.TotalPlaces += int(n.Count)

		for t, c := range n.TypeCounts {
			typeCounts[t] += c
			typed += c
		}
	}

	if typed > 0 {
		for t, c := range typeCounts {
			summary.TypeDistribution[t] = float64(c) / float64(typed) * 100
		}
	}
	return summary
}

// GenerateTestPlaces creates n random places inside the bounding box, for
// benchmarks and the demo server mode.
func GenerateTestPlaces(n int, bounds Bounds) []place.Place {
	r := rand.New(rand.NewSource(42))
	cities := []string{"Paris", "Lyon", "Marseille", "Toulouse", "Nantes", "Lille"}
	regions := []string{"Île-de-France", "Auvergne-Rhône-Alpes", "Provence-Alpes-Côte d'Azur", "Occitanie", "Pays de la Loire", "Hauts-de-France"}

	places := make([]place.Place, n)
	for i := 0; i < n; i++ {
		c := r.Intn(len(cities))
		places[i] = place.Place{
			ID:     fmt.Sprintf("demo-%d", i+1),
			Name:   fmt.Sprintf("Spot %d", i+1),
			City:   cities[c],
			Region: regions[c],
			Type:   place.Types[r.Intn(len(place.Types))],
			Lng:    float64(bounds.MinX) + r.Float64()*float64(bounds.MaxX-bounds.MinX),
			Lat:    float64(bounds.MinY) + r.Float64()*float64(bounds.MaxY-bounds.MinY),
		}
	}
	return places
}
