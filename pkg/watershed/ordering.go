package watershed

import "sort"

// Level is a maximal run of the height ordering sharing one exact height.
// Start and End are positions in the ordering, End exclusive.
type Level struct {
	Start, End int
	Height     float64
}

// Len returns the number of voxels in the level.
func (l Level) Len() int {
	return l.End - l.Start
}

// Ordering is every voxel index sorted by ascending height. Equal heights
// keep ascending index order.
type Ordering struct {
	order   []int
	heights []float64
	levels  []Level
}

// NewOrdering sorts the voxels of heights and groups them into tie levels.
func NewOrdering(heights []float64) *Ordering {
	order := make([]int, len(heights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return heights[order[a]] < heights[order[b]]
	})

	o := &Ordering{order: order, heights: heights}
	for pos := 0; pos < len(order); {
		lvl := o.LevelAt(pos)
		o.levels = append(o.levels, lvl)
		pos = lvl.End
	}
	return o
}

// Len returns the number of voxels ordered.
func (o *Ordering) Len() int {
	return len(o.order)
}

// At returns the voxel index at position pos.
func (o *Ordering) At(pos int) int {
	return o.order[pos]
}

// LevelAt returns the run of voxels from pos onward that share the height
// of the voxel at pos.
func (o *Ordering) LevelAt(pos int) Level {
	h := o.heights[o.order[pos]]
	end := pos
	for end < len(o.order) && o.heights[o.order[end]] == h {
		end++
	}
	return Level{Start: pos, End: end, Height: h}
}

// Levels returns the tie levels in ascending height.
func (o *Ordering) Levels() []Level {
	return o.levels
}

// Voxels returns the voxel indices of level. The slice aliases the ordering.
func (o *Ordering) Voxels(level Level) []int {
	return o.order[level.Start:level.End]
}
