package cluster

import (
	"math"
	"sort"
)

// NewKDTree builds a flattened KD-tree over the given points. The input
// slice is copied; building reorders only the copy.
func NewKDTree(points []KDPoint, nodeSize int) *KDTree {
	if nodeSize <= 0 {
		nodeSize = 64
	}
	tree := &KDTree{
		Nodes:    make([]KDNode, 0, len(points)/nodeSize*2+1),
		Points:   make([]KDPoint, len(points)),
		NodeSize: nodeSize,
	}
	copy(tree.Points, points)

	bounds := Bounds{
		MinX: float32(math.Inf(1)),
		MinY: float32(math.Inf(1)),
		MaxX: float32(math.Inf(-1)),
		MaxY: float32(math.Inf(-1)),
	}
	for _, p := range points {
		bounds.Extend(p.X, p.Y)
	}
	tree.Bounds = bounds

	if len(points) > 0 {
		tree.build(0, len(points)-1, 0)
	}
	return tree
}

func (t *KDTree) build(start, end, depth int) int32 {
	if start > end {
		return -1
	}

	nodeIdx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, KDNode{})

	if end-start < t.NodeSize {
		t.Nodes[nodeIdx] = KDNode{
			PointIdx: -1,
			Left:     -1,
			Right:    -1,
			Start:    int32(start),
			End:      int32(end),
		}
		return nodeIdx
	}

	axis := depth % 2
	median := (start + end) / 2
	sortPointsRange(t.Points[start:end+1], axis)

	left := t.build(start, median-1, depth+1)
	right := t.build(median+1, end, depth+1)

	// Assigned after the recursive appends; a pointer taken before them
	// would dangle once the nodes slice reallocates.
	t.Nodes[nodeIdx] = KDNode{
		PointIdx: int32(median),
		Left:     left,
		Right:    right,
		Start:    int32(start),
		End:      int32(end),
		Axis:     uint8(axis),
	}
	return nodeIdx
}

func sortPointsRange(points []KDPoint, axis int) {
	if axis == 0 {
		sort.Slice(points, func(i, j int) bool {
			return points[i].X < points[j].X
		})
	} else {
		sort.Slice(points, func(i, j int) bool {
			return points[i].Y < points[j].Y
		})
	}
}

// Range returns every point inside the bounding box.
func (t *KDTree) Range(b Bounds) []KDPoint {
	var out []KDPoint
	if len(t.Nodes) == 0 {
		return out
	}
	t.rangeSearch(0, b, &out)
	return out
}

func (t *KDTree) rangeSearch(nodeIdx int32, b Bounds, out *[]KDPoint) {
	if nodeIdx < 0 {
		return
	}
	node := t.Nodes[nodeIdx]

	if node.Left == -1 && node.Right == -1 {
		for _, p := range t.Points[node.Start : node.End+1] {
			if b.Contains(p.X, p.Y) {
				*out = append(*out, p)
			}
		}
		return
	}

	median := t.Points[node.PointIdx]
	if b.Contains(median.X, median.Y) {
		*out = append(*out, median)
	}

	var split, lo, hi float32
	if node.Axis == 0 {
		split, lo, hi = median.X, b.MinX, b.MaxX
	} else {
		split, lo, hi = median.Y, b.MinY, b.MaxY
	}

	// Duplicates of the split value can land on the left, so the left
	// branch is pruned only when the whole box lies strictly above it.
	if lo <= split {
		t.rangeSearch(node.Left, b, out)
	}
	if hi >= split {
		t.rangeSearch(node.Right, b, out)
	}
}
