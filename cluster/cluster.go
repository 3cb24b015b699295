// Package cluster builds the spatial marker index: given a set of places
// and a map viewport it answers with either aggregate cluster markers or
// individual leaf markers.
package cluster

import (
	"hash/fnv"
	"math"
	"sort"

	"web/artmap/place"
)

// KDNode is one node of the flattened KD-tree. Internal nodes split on the
// median point; leaf buckets cover Points[Start:End+1] directly.
type KDNode struct {
	PointIdx int32 // median point, internal nodes only
	Left     int32 // index into nodes array, -1 for leaf buckets
	Right    int32
	Start    int32 // covered range in the points array
	End      int32
	Axis     uint8 // 0 = lng, 1 = lat
}

// KDTree holds every node and point in flat slices.
type KDTree struct {
	Nodes    []KDNode
	Points   []KDPoint
	NodeSize int
	Bounds   Bounds
}

// KDPoint is one indexed place. X/Y are lng/lat in degrees. ID is the
// 1-based position of the place in the index load order; TypeIdx indexes
// place.Types.
type KDPoint struct {
	X, Y      float32
	ID        uint32
	NumPoints uint32
	TypeIdx   uint8
}

// MarkerNode is one renderable marker: a cluster aggregate or a single
// place leaf. Produced fresh on every query and never mutated.
type MarkerNode struct {
	ID         uint32
	PlaceID    string // set for leaves only
	Lng, Lat   float32
	Count      uint32
	Members    []uint32              // point IDs, clusters only, sorted
	TypeCounts map[place.Type]uint32 // clusters only
}

// IsCluster reports whether the node aggregates more than one place.
func (n MarkerNode) IsCluster() bool {
	return n.Count > 1
}

// Options control clustering behaviour. Radius is in screen pixels at the
// query zoom; at or above MaxZoom no aggregation happens.
type Options struct {
	MinZoom   int
	MaxZoom   int
	MinPoints int
	Radius    float64
	NodeSize  int
	Extent    int
}

// Index is the spatial marker index over a fixed snapshot of places.
// Rebuilt wholesale when the place list changes; never mutated in place.
type Index struct {
	Tree    *KDTree
	Places  []place.Place // places with valid coordinates, load order
	Options Options
}

// MaxSaneZoom caps camera zoom computed from expansion, so a click on a
// stack of co-located places does not zoom past street level.
const MaxSaneZoom = 20

// NewIndex creates an empty index, applying defaults for unset options.
func NewIndex(options Options) *Index {
	if options.MinZoom < 0 {
		options.MinZoom = 0
	}
	if options.MaxZoom <= 0 {
		options.MaxZoom = 16
	}
	if options.NodeSize <= 0 {
		options.NodeSize = 64
	}
	if options.Extent <= 0 {
		options.Extent = 512
	}
	if options.Radius <= 0 {
		options.Radius = 60
	}
	if options.MinPoints <= 0 {
		options.MinPoints = 2
	}
	if options.MinZoom > options.MaxZoom {
		options.MinZoom = options.MaxZoom
	}

	return &Index{Options: options}
}

// Load indexes the given places. Places without valid coordinates are
// silently dropped. Loading an empty or fully-invalid set yields an index
// that answers every query with an empty result.
func (idx *Index) Load(places []place.Place) {
	idx.Places = nil
	for _, p := range places {
		if p.HasValidCoordinates() {
			idx.Places = append(idx.Places, p)
		}
	}

	points := make([]KDPoint, len(idx.Places))
	for i := range idx.Places {
		points[i] = idx.pointByID(uint32(i + 1))
	}
	idx.Tree = NewKDTree(points, idx.Options.NodeSize)
}

// PlaceByID resolves a point ID back to its place.
func (idx *Index) PlaceByID(id uint32) (place.Place, bool) {
	if id == 0 || int(id) > len(idx.Places) {
		return place.Place{}, false
	}
	return idx.Places[id-1], true
}

// Query returns the markers visible in bounds at the given zoom.
// Fractional zoom is floored; identical inputs produce identical output.
func (idx *Index) Query(bounds Bounds, zoom float64) []MarkerNode {
	if idx.Tree == nil || len(idx.Tree.Points) == 0 {
		return []MarkerNode{}
	}

	z := int(math.Floor(zoom))
	if z < idx.Options.MinZoom {
		z = idx.Options.MinZoom
	}

	visible := idx.Tree.Range(bounds)
	// Load order, so repeated queries agree regardless of tree shape.
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })

	if z >= idx.Options.MaxZoom {
		nodes := make([]MarkerNode, 0, len(visible))
		for _, p := range visible {
			nodes = append(nodes, idx.leafNode(p))
		}
		return nodes
	}

	projected := idx.projectPoints(visible, z)
	groups := groupByRadius(projected, float32(idx.Options.Radius), idx.Options.MinPoints)

	nodes := make([]MarkerNode, 0, len(groups))
	for _, g := range groups {
		if len(g) == 1 {
			nodes = append(nodes, idx.leafNode(idx.pointByID(g[0].ID)))
			continue
		}
		nodes = append(nodes, idx.clusterNode(g, z))
	}
	return nodes
}

// ExpansionZoom returns the lowest zoom at which the given cluster splits
// into more than one marker, scanning upward from fromZoom. Leaves and
// clusters that never split report MaxZoom, where everything renders
// individually anyway.
func (idx *Index) ExpansionZoom(node MarkerNode, fromZoom int) int {
	if !node.IsCluster() {
		return idx.Options.MaxZoom
	}

	members := make([]KDPoint, 0, len(node.Members))
	for _, id := range node.Members {
		members = append(members, idx.pointByID(id))
	}

	for z := fromZoom + 1; z < idx.Options.MaxZoom; z++ {
		projected := idx.projectPoints(members, z)
		groups := groupByRadius(projected, float32(idx.Options.Radius), idx.Options.MinPoints)
		if len(groups) > 1 {
			return z
		}
	}
	return idx.Options.MaxZoom
}

// pointByID rebuilds the KDPoint for a 1-based load position. The tree
// reorders its own copy of the points, so resolution goes through Places.
func (idx *Index) pointByID(id uint32) KDPoint {
	p := idx.Places[id-1]
	return KDPoint{
		X:         float32(p.Lng),
		Y:         float32(p.Lat),
		ID:        id,
		NumPoints: 1,
		TypeIdx:   typeIndex(p.Type),
	}
}

func (idx *Index) leafNode(p KDPoint) MarkerNode {
	pl := idx.Places[p.ID-1]
	return MarkerNode{
		ID:      p.ID,
		PlaceID: pl.ID,
		Lng:     p.X,
		Lat:     p.Y,
		Count:   1,
	}
}

func (idx *Index) clusterNode(points []KDPoint, zoom int) MarkerNode {
	var sumX, sumY float64
	var total uint32
	typeCounts := make(map[place.Type]uint32)
	members := make([]uint32, 0, len(points))

	for _, p := range points {
		weight := float64(p.NumPoints)
		sumX += float64(p.X) * weight
		sumY += float64(p.Y) * weight
		total += p.NumPoints
		members = append(members, p.ID)
		if int(p.TypeIdx) < len(place.Types) {
			typeCounts[place.Types[p.TypeIdx]] += p.NumPoints
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	invTotal := 1.0 / float64(total)
	unproj := idx.unproject(float32(sumX*invTotal), float32(sumY*invTotal), zoom)

	return MarkerNode{
		ID:         clusterID(members),
		Lng:        unproj[0],
		Lat:        unproj[1],
		Count:      total,
		Members:    members,
		TypeCounts: typeCounts,
	}
}

// clusterID hashes the sorted member IDs so the same group of places yields
// the same cluster ID on every query.
func clusterID(members []uint32) uint32 {
	h := fnv.New32a()
	var buf [4]byte
	for _, id := range members {
		buf[0] = byte(id)
		buf[1] = byte(id >> 8)
		buf[2] = byte(id >> 16)
		buf[3] = byte(id >> 24)
		h.Write(buf[:])
	}
	// High bit keeps synthetic cluster IDs apart from point IDs.
	return h.Sum32() | 0x80000000
}

func (idx *Index) projectPoints(points []KDPoint, zoom int) []KDPoint {
	projected := make([]KDPoint, 0, len(points))
	for _, p := range points {
		proj := idx.project(p.X, p.Y, zoom)
		projected = append(projected, KDPoint{
			X:         proj[0],
			Y:         proj[1],
			ID:        p.ID,
			NumPoints: p.NumPoints,
			TypeIdx:   p.TypeIdx,
		})
	}
	return projected
}

// groupByRadius greedily merges points within radius of a seed point,
// scanning in input order. Groups smaller than minPoints stay individual.
func groupByRadius(points []KDPoint, radius float32, minPoints int) [][]KDPoint {
	var groups [][]KDPoint
	processed := make(map[uint32]bool, len(points))

	for _, p := range points {
		if processed[p.ID] {
			continue
		}

		group := []KDPoint{p}
		for _, other := range points {
			if other.ID == p.ID || processed[other.ID] {
				continue
			}
			dx := other.X - p.X
			dy := other.Y - p.Y
			if dx*dx+dy*dy <= radius*radius {
				group = append(group, other)
			}
		}

		if len(group) >= minPoints {
			for _, m := range group {
				processed[m.ID] = true
			}
			groups = append(groups, group)
		} else {
			processed[p.ID] = true
			groups = append(groups, []KDPoint{p})
		}
	}
	return groups
}

// project converts lng/lat to pixel coordinates at the given zoom with
// Extent-sized tiles, so one unit is one screen pixel at that zoom.
func (idx *Index) project(lng, lat float32, zoom int) [2]float32 {
	sin := float32(math.Sin(float64(lat) * math.Pi / 180))
	x := (lng + 180) / 360
	y := float32(0.5 - 0.25*math.Log(float64((1+sin)/(1-sin)))/math.Pi)

	scale := float32(math.Pow(2, float64(zoom)))
	return [2]float32{
		x * scale * float32(idx.Options.Extent),
		y * scale * float32(idx.Options.Extent),
	}
}

// unproject converts pixel coordinates at the given zoom back to lng/lat.
func (idx *Index) unproject(x, y float32, zoom int) [2]float32 {
	scale := float32(math.Pow(2, float64(zoom)))

	x = x / (scale * float32(idx.Options.Extent))
	y = y / (scale * float32(idx.Options.Extent))

	lng := x*360 - 180
	lat := float32(math.Atan(math.Sinh(float64(math.Pi*(1-2*y))))) * 180 / math.Pi

	return [2]float32{lng, lat}
}

func typeIndex(t place.Type) uint8 {
	for i, k := range place.Types {
		if t == k {
			return uint8(i)
		}
	}
	return uint8(len(place.Types)) // unknown, excluded from type counts
}

// Bounds is a lng/lat bounding box: X is longitude, Y is latitude.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float32
}

// Extend expands bounds to include another point.
func (b *Bounds) Extend(x, y float32) {
	b.MinX = float32(math.Min(float64(b.MinX), float64(x)))
	b.MinY = float32(math.Min(float64(b.MinY), float64(y)))
	b.MaxX = float32(math.Max(float64(b.MaxX), float64(x)))
	b.MaxY = float32(math.Max(float64(b.MaxY), float64(y)))
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(x, y float32) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// ViewportBounds derives the lng/lat bounding box seen by a viewport of
// width x height pixels centered on (lat, lng) at the given zoom.
func ViewportBounds(lat, lng, zoom float64, width, height, extent int) Bounds {
	if extent <= 0 {
		extent = 512
	}
	scale := math.Pow(2, math.Floor(zoom)) * float64(extent)

	sin := math.Sin(lat * math.Pi / 180)
	cx := (lng + 180) / 360 * scale
	cy := (0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi) * scale

	halfW := float64(width) / 2
	halfH := float64(height) / 2

	unproject := func(x, y float64) (float64, float64) {
		nx := x / scale
		ny := y / scale
		ulng := nx*360 - 180
		ulat := math.Atan(math.Sinh(math.Pi*(1-2*ny))) * 180 / math.Pi
		return ulng, ulat
	}

	west, north := unproject(cx-halfW, cy-halfH)
	east, south := unproject(cx+halfW, cy+halfH)

	return Bounds{
		MinX: float32(math.Max(west, -180)),
		MinY: float32(math.Max(south, -90)),
		MaxX: float32(math.Min(east, 180)),
		MaxY: float32(math.Min(north, 90)),
	}
}
