package cluster

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"

	"web/artmap/place"
)

// Snapshot format: little-endian header (magic, version, counts, options),
// the tree nodes and points as packed binary, then the place records as one
// length-prefixed JSON block.

const (
	snapshotMagic   uint32 = 0x41544d31 // "ATM1"
	snapshotVersion uint32 = 1
)

// SaveCompressed writes the built index to a zstd-compressed snapshot file.
func (idx *Index) SaveCompressed(filename string) error {
	if idx.Tree == nil {
		return fmt.Errorf("index not loaded")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	if err := idx.writeTo(enc); err != nil {
		return err
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %v", err)
	}
	return bufWriter.Flush()
}

// LoadCompressed reads an index back from a zstd-compressed snapshot file.
func LoadCompressed(filename string) (*Index, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	bufReader := bufio.NewReaderSize(file, 1024*1024)
	dec, err := zstd.NewReader(bufReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	return readIndex(dec)
}

func (idx *Index) writeTo(w io.Writer) error {
	binary.Write(w, binary.LittleEndian, snapshotMagic)
	binary.Write(w, binary.LittleEndian, snapshotVersion)

	binary.Write(w, binary.LittleEndian, uint32(len(idx.Tree.Nodes)))
	binary.Write(w, binary.LittleEndian, uint32(len(idx.Tree.Points)))

	binary.Write(w, binary.LittleEndian, int32(idx.Options.MinZoom))
	binary.Write(w, binary.LittleEndian, int32(idx.Options.MaxZoom))
	binary.Write(w, binary.LittleEndian, int32(idx.Options.MinPoints))
	binary.Write(w, binary.LittleEndian, idx.Options.Radius)
	binary.Write(w, binary.LittleEndian, int32(idx.Options.NodeSize))
	binary.Write(w, binary.LittleEndian, int32(idx.Options.Extent))

	for _, node := range idx.Tree.Nodes {
		binary.Write(w, binary.LittleEndian, node.PointIdx)
		binary.Write(w, binary.LittleEndian, node.Left)
		binary.Write(w, binary.LittleEndian, node.Right)
		binary.Write(w, binary.LittleEndian, node.Start)
		binary.Write(w, binary.LittleEndian, node.End)
		binary.Write(w, binary.LittleEndian, node.Axis)
	}

	for _, point := range idx.Tree.Points {
		binary.Write(w, binary.LittleEndian, point.X)
		binary.Write(w, binary.LittleEndian, point.Y)
		binary.Write(w, binary.LittleEndian, point.ID)
		binary.Write(w, binary.LittleEndian, point.NumPoints)
		binary.Write(w, binary.LittleEndian, point.TypeIdx)
	}

	placeBytes, err := json.Marshal(idx.Places)
	if err != nil {
		return fmt.Errorf("failed to marshal places: %v", err)
	}
	binary.Write(w, binary.LittleEndian, uint32(len(placeBytes)))
	if _, err := w.Write(placeBytes); err != nil {
		return fmt.Errorf("failed to write places: %v", err)
	}
	return nil
}

func readIndex(r io.Reader) (*Index, error) {
	var magic, version uint32
	binary.Read(r, binary.LittleEndian, &magic)
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not an index snapshot")
	}
	binary.Read(r, binary.LittleEndian, &version)
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	var numNodes, numPoints uint32
	binary.Read(r, binary.LittleEndian, &numNodes)
	binary.Read(r, binary.LittleEndian, &numPoints)

	var options Options
	var minZoom, maxZoom, minPoints, nodeSize, extent int32
	binary.Read(r, binary.LittleEndian, &minZoom)
	binary.Read(r, binary.LittleEndian, &maxZoom)
	binary.Read(r, binary.LittleEndian, &minPoints)
	binary.Read(r, binary.LittleEndian, &options.Radius)
	binary.Read(r, binary.LittleEndian, &nodeSize)
	binary.Read(r, binary.LittleEndian, &extent)
	options.MinZoom = int(minZoom)
	options.MaxZoom = int(maxZoom)
	options.MinPoints = int(minPoints)
	options.NodeSize = int(nodeSize)
	options.Extent = int(extent)

	nodes := make([]KDNode, numNodes)
	for i := range nodes {
		binary.Read(r, binary.LittleEndian, &nodes[i].PointIdx)
		binary.Read(r, binary.LittleEndian, &nodes[i].Left)
		binary.Read(r, binary.LittleEndian, &nodes[i].Right)
		binary.Read(r, binary.LittleEndian, &nodes[i].Start)
		binary.Read(r, binary.LittleEndian, &nodes[i].End)
		binary.Read(r, binary.LittleEndian, &nodes[i].Axis)
	}

	bounds := Bounds{
		MinX: float32(math.Inf(1)),
		MinY: float32(math.Inf(1)),
		MaxX: float32(math.Inf(-1)),
		MaxY: float32(math.Inf(-1)),
	}
	points := make([]KDPoint, numPoints)
	for i := range points {
		binary.Read(r, binary.LittleEndian, &points[i].X)
		binary.Read(r, binary.LittleEndian, &points[i].Y)
		binary.Read(r, binary.LittleEndian, &points[i].ID)
		binary.Read(r, binary.LittleEndian, &points[i].NumPoints)
		if err := binary.Read(r, binary.LittleEndian, &points[i].TypeIdx); err != nil {
			return nil, fmt.Errorf("truncated snapshot: %v", err)
		}
		bounds.Extend(points[i].X, points[i].Y)
	}

	var placeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &placeLen); err != nil {
		return nil, fmt.Errorf("truncated snapshot: %v", err)
	}
	placeBytes := make([]byte, placeLen)
	if _, err := io.ReadFull(r, placeBytes); err != nil {
		return nil, fmt.Errorf("truncated snapshot: %v", err)
	}
	var places []place.Place
	if err := json.Unmarshal(placeBytes, &places); err != nil {
		return nil, fmt.Errorf("failed to unmarshal places: %v", err)
	}
	if len(places) != int(numPoints) {
		return nil, fmt.Errorf("snapshot place count mismatch: %d points, %d places", numPoints, len(places))
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
