package grid

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Connectivity selects which voxels count as neighbors.
type Connectivity int

const (
	// Face6 connects voxels sharing a face.
	Face6 Connectivity = 6
	// Edge18 adds voxels sharing an edge.
	Edge18 Connectivity = 18
	// Vertex26 adds voxels sharing a corner.
	Vertex26 Connectivity = 26
)

// Offset is a neighbor displacement in voxels.
type Offset struct {
	DX, DY, DZ int
}

// offsets lists faces, then edges, then corners. Every traversal visits
// neighbors in this order, which makes tie-breaking reproducible.
var offsets = [26]Offset{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},

	{0, -1, -1}, {0, -1, 1},
	{0, 1, -1}, {0, 1, 1},
	{-1, 0, -1}, {-1, 0, 1},
	{1, 0, -1}, {1, 0, 1},
	{-1, -1, 0}, {-1, 1, 0},
	{1, -1, 0}, {1, 1, 0},

	{-1, -1, -1}, {-1, -1, 1},
	{-1, 1, -1}, {-1, 1, 1},
	{1, -1, -1}, {1, -1, 1},
	{1, 1, -1}, {1, 1, 1},
}

// Valid reports whether c is one of the supported connectivities.
func (c Connectivity) Valid() bool {
	return c == Face6 || c == Edge18 || c == Vertex26
}

// Offsets returns the neighbor displacements of c in canonical order.
// An invalid connectivity falls back to Face6.
func (c Connectivity) Offsets() []Offset {
	if !c.Valid() {
		return offsets[:Face6]
	}
	return offsets[:c]
}

func (c Connectivity) String() string {
	return strconv.Itoa(int(c))
}

// ParseConnectivity accepts "6", "18", "26" or the names face, edge, vertex.
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "6", "face", "":
		return Face6, nil
	case "18", "edge":
		return Edge18, nil
	case "26", "vertex", "corner":
		return Vertex26, nil
	}
	return 0, errors.Errorf("unknown connectivity %q (want 6, 18 or 26)", s)
}

// Neighbors appends to buf the indices of the in-bounds neighbors of voxel i
// in offset order and returns the extended slice.
func (d Dims) Neighbors(i int, conn Connectivity, buf []int) []int {
	x, y, z := d.Coord(i)
	for _, o := range conn.Offsets() {
		nx, ny, nz := x+o.DX, y+o.DY, z+o.DZ
		if d.Outside(nx, ny, nz) {
			continue
		}
		buf = append(buf, d.Index(nx, ny, nz))
	}
	return buf
}

// Neighbors appends the in-bounds neighbors of voxel i to buf.
func (g *Grid) Neighbors(i int, conn Connectivity, buf []int) []int {
	return g.Dims.Neighbors(i, conn, buf)
}
