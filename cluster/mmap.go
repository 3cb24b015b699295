package cluster

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"web/artmap/place"
)

// Memory-mapped snapshot variant. Same layout as the compressed snapshot
// but uncompressed, so reload is a straight map + scan with no decoder.

const (
	nodeRecordSize  = 4*5 + 1 // PointIdx, Left, Right, Start, End, Axis
	pointRecordSize = 4*4 + 1 // X, Y, ID, NumPoints, TypeIdx
	mmapHeaderSize  = 4*9 + 8 // magic, version, counts, options
)

// MMapWriter writes fixed-layout records into a mapped region.
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{data: data}
}

func (w *MMapWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], v)
	w.offset += 4
}

func (w *MMapWriter) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *MMapWriter) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

func (w *MMapWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], math.Float64bits(v))
	w.offset += 8
}

func (w *MMapWriter) WriteUint8(v byte) {
	w.data[w.offset] = v
	w.offset++
}

func (w *MMapWriter) WriteBytes(b []byte) {
	copy(w.data[w.offset:], b)
	w.offset += len(b)
}

// MMapReader reads fixed-layout records from a mapped region.
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{data: data}
}

func (r *MMapReader) ReadUint32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *MMapReader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

func (r *MMapReader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

func (r *MMapReader) ReadFloat64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.offset:]))
	r.offset += 8
	return v
}

func (r *MMapReader) ReadUint8() byte {
	v := r.data[r.offset]
	r.offset++
	return v
}

func (r *MMapReader) ReadBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.data[r.offset:r.offset+n])
	r.offset += n
	return b
}

// SaveToMMap writes the built index into a memory-mapped file.
func (idx *Index) SaveToMMap(filename string) error {
	if idx.Tree == nil {
		return fmt.Errorf("index not loaded")
	}

	placeBytes, err := json.Marshal(idx.Places)
	if err != nil {
		return fmt.Errorf("failed to marshal places: %v", err)
	}

	size := mmapHeaderSize +
		len(idx.Tree.Nodes)*nodeRecordSize +
		len(idx.Tree.Points)*pointRecordSize +
		4 + len(placeBytes)

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	if err := file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("failed to size file: %v", err)
	}

	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %v", err)
	}
	defer data.Unmap()

	w := NewMMapWriter(data)
	w.WriteUint32(snapshotMagic)
	w.WriteUint32(snapshotVersion)
	w.WriteUint32(uint32(len(idx.Tree.Nodes)))
	w.WriteUint32(uint32(len(idx.Tree.Points)))
	w.WriteInt32(int32(idx.Options.MinZoom))
	w.WriteInt32(int32(idx.Options.MaxZoom))
	w.WriteInt32(int32(idx.Options.MinPoints))
	w.WriteFloat64(idx.Options.Radius)
	w.WriteInt32(int32(idx.Options.NodeSize))
	w.WriteInt32(int32(idx.Options.Extent))

	for _, node := range idx.Tree.Nodes {
		w.WriteInt32(node.PointIdx)
		w.WriteInt32(node.Left)
		w.WriteInt32(node.Right)
		w.WriteInt32(node.Start)
		w.WriteInt32(node.End)
		w.WriteUint8(node.Axis)
	}

	for _, point := range idx.Tree.Points {
		w.WriteFloat32(point.X)
		w.WriteFloat32(point.Y)
		w.WriteUint32(point.ID)
		w.WriteUint32(point.NumPoints)
		w.WriteUint8(point.TypeIdx)
	}

	w.WriteUint32(uint32(len(placeBytes)))
	w.WriteBytes(placeBytes)

	return data.Flush()
}

// LoadFromMMap reads an index from a memory-mapped snapshot file.
func LoadFromMMap(filename string) (*Index, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %v", err)
	}
	defer data.Unmap()

	if len(data) < mmapHeaderSize {
		return nil, fmt.Errorf("snapshot too small")
	}

	r := NewMMapReader(data)
	if r.ReadUint32() != snapshotMagic {
		return nil, fmt.Errorf("not an index snapshot")
	}
	if v := r.ReadUint32(); v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	numNodes := r.ReadUint32()
	numPoints := r.ReadUint32()

	var options Options
	options.MinZoom = int(r.ReadInt32())
	options.MaxZoom = int(r.ReadInt32())
	options.MinPoints = int(r.ReadInt32())
	options.Radius = r.ReadFloat64()
	options.NodeSize = int(r.ReadInt32())
	options.Extent = int(r.ReadInt32())

	want := mmapHeaderSize + int(numNodes)*nodeRecordSize + int(numPoints)*pointRecordSize + 4
	if len(data) < want {
		return nil, fmt.Errorf("truncated snapshot")
	}

	nodes := make([]KDNode, numNodes)
	for i := range nodes {
		nodes[i].PointIdx = r.ReadInt32()
		nodes[i].Left = r.ReadInt32()
		nodes[i].Right = r.ReadInt32()
		nodes[i].Start = r.ReadInt32()
		nodes[i].End = r.ReadInt32()
		nodes[i].Axis = r.ReadUint8()
	}

	bounds := Bounds{
		MinX: float32(math.Inf(1)),
		MinY: float32(math.Inf(1)),
		MaxX: float32(math.Inf(-1)),
		MaxY: float32(math.Inf(-1)),
	}
	points := make([]KDPoint, numPoints)
	for i := range points {
		points[i].X = r.ReadFloat32()
		points[i].Y = r.ReadFloat32()
		points[i].ID = r.ReadUint32()
		points[i].NumPoints = r.ReadUint32()
		points[i].TypeIdx = r.ReadUint8()
		bounds.Extend(points[i].X, points[i].Y)
	}

	placeLen := int(r.ReadUint32())
	if len(data) < want+placeLen {
		return nil, fmt.Errorf("truncated snapshot")
	}
	var places []place.Place
	if err := json.Unmarshal(r.ReadBytes(placeLen), &places); err != nil {
		return nil, fmt.Errorf("failed to unmarshal places: %v", err)
	}

	idx := NewIndex(options)
	idx.Places = places
	idx.Tree = &KDTree{
		Nodes:    nodes,
		Points:   points,
		NodeSize: options.NodeSize,
		Bounds:   bounds,
	}
	return idx, nil
}
