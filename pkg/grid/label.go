package grid

import "fmt"

// Label is the per-voxel segmentation state. A voxel is always in exactly one
// of Unvisited, Masked, Watershed or a basin; basins are built with Basin.
type Label int32

const (
	// Masked marks a voxel of the tie level being flooded whose basin is not
	// yet known.
	Masked Label = -2

	// Unvisited marks a voxel whose height level has not been reached.
	Unvisited Label = -1

	// Watershed marks a voxel on the boundary between two or more basins.
	Watershed Label = 0
)

// Basin returns the label of basin id. Basin ids start at 1.
func Basin(id int) Label {
	if id < 1 {
		panic(fmt.Sprintf("grid: invalid basin id %d", id))
	}
	return Label(id)
}

// IsBasin reports whether l is a confirmed basin label.
func (l Label) IsBasin() bool {
	return l > 0
}

// IsSettled reports whether l is final for its level: a basin or watershed.
func (l Label) IsSettled() bool {
	return l >= 0
}

// BasinID returns the basin id of l, if l is a basin.
func (l Label) BasinID() (int, bool) {
	if l > 0 {
		return int(l), true
	}
	return 0, false
}

// Export returns the integer written to output files: the basin id, or 0 for
// any voxel that is not a basin member.
func (l Label) Export() int32 {
	if l > 0 {
		return int32(l)
	}
	return 0
}

func (l Label) String() string {
	switch {
	case l == Masked:
		return "masked"
	case l == Unvisited:
		return "unvisited"
	case l == Watershed:
		return "watershed"
	case l > 0:
		return fmt.Sprintf("basin(%d)", int32(l))
	default:
		return fmt.Sprintf("label(%d)", int32(l))
	}
}
