// Package grid holds the voxel grid a segmentation runs on: the scalar
// heights, the per-voxel labels and flood distances, and the neighbor
// topology used to walk between voxels.
package grid

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"

	"watershed3d/internal/models"
)

// Dims is the size of a grid along each axis.
type Dims struct {
	X, Y, Z int
}

// Len returns the number of voxels.
func (d Dims) Len() int {
	return d.X * d.Y * d.Z
}

// Index returns the linear offset of (x, y, z); x varies fastest.
func (d Dims) Index(x, y, z int) int {
	return (z*d.Y+y)*d.X + x
}

// Coord is the inverse of Index.
func (d Dims) Coord(i int) (x, y, z int) {
	x = i % d.X
	i /= d.X
	y = i % d.Y
	z = i / d.Y
	return x, y, z
}

// Outside reports whether any coordinate is negative or past its dimension.
func (d Dims) Outside(x, y, z int) bool {
	return x < 0 || y < 0 || z < 0 || x >= d.X || y >= d.Y || z >= d.Z
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z)
}

// ConfigError reports an input grid that cannot be segmented.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Grid owns the scalar field and the working state of one segmentation.
// Heights must not change while a flood or cleanup runs.
type Grid struct {
	Dims    Dims
	Origin  r3.Vec
	Spacing r3.Vec

	Heights []float64
	Labels  []Label
	Dist    []int32
}

// New validates an imported volume and allocates a grid for it. The volume's
// values are used as the heights without copying.
func New(v *models.Volume) (*Grid, error) {
	if v == nil {
		return nil, &ConfigError{Field: "volume", Msg: "nil"}
	}
	dims := Dims{X: v.Dimensions[0], Y: v.Dimensions[1], Z: v.Dimensions[2]}

	var err error
	err = multierr.Append(err, validateDims(dims))
	for axis, s := range v.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			err = multierr.Append(err, &ConfigError{
				Field: fmt.Sprintf("spacing[%d]", axis),
				Msg:   fmt.Sprintf("must be positive and finite, got %v", s),
			})
		}
	}
	for axis, o := range v.Origin {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			err = multierr.Append(err, &ConfigError{
				Field: fmt.Sprintf("origin[%d]", axis),
				Msg:   fmt.Sprintf("must be finite, got %v", o),
			})
		}
	}
	if err != nil {
		return nil, err
	}
	if err := validateHeights(dims, v.Values); err != nil {
		return nil, err
	}

	g := newGrid(dims, v.Values)
	g.Origin = r3.Vec{X: v.Origin[0], Y: v.Origin[1], Z: v.Origin[2]}
	g.Spacing = r3.Vec{X: v.Spacing[0], Y: v.Spacing[1], Z: v.Spacing[2]}
	return g, nil
}

// FromHeights builds a unit-spaced grid at the origin.
func FromHeights(dims Dims, heights []float64) (*Grid, error) {
	if err := validateDims(dims); err != nil {
		return nil, err
	}
	if err := validateHeights(dims, heights); err != nil {
		return nil, err
	}
	g := newGrid(dims, heights)
	g.Spacing = r3.Vec{X: 1, Y: 1, Z: 1}
	return g, nil
}

func newGrid(dims Dims, heights []float64) *Grid {
	n := dims.Len()
	g := &Grid{
		Dims:    dims,
		Heights: heights,
		Labels:  make([]Label, n),
		Dist:    make([]int32, n),
	}
	g.Reset()
	return g
}

func validateDims(d Dims) error {
	var err error
	for axis, n := range [3]int{d.X, d.Y, d.Z} {
		if n <= 0 {
			err = multierr.Append(err, &ConfigError{
				Field: fmt.Sprintf("dimensions[%d]", axis),
				Msg:   fmt.Sprintf("must be positive, got %d", n),
			})
		}
	}
	return err
}

func validateHeights(d Dims, heights []float64) error {
	if len(heights) != d.Len() {
		return &ConfigError{
			Field: "values",
			Msg:   fmt.Sprintf("grid %s needs %d values, got %d", d, d.Len(), len(heights)),
		}
	}
	for i, h := range heights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			x, y, z := d.Coord(i)
			return &ConfigError{
				Field: "values",
				Msg:   fmt.Sprintf("non-finite height %v at (%d, %d, %d)", h, x, y, z),
			}
		}
	}
	return nil
}

// Len returns the number of voxels.
func (g *Grid) Len() int {
	return len(g.Heights)
}

// Outside reports whether (x, y, z) lies outside the grid.
func (g *Grid) Outside(x, y, z int) bool {
	return g.Dims.Outside(x, y, z)
}

// Reset marks every voxel unvisited with distance 0.
func (g *Grid) Reset() {
	for i := range g.Labels {
		g.Labels[i] = Unvisited
		g.Dist[i] = 0
	}
}

// Position returns the physical position of voxel i.
func (g *Grid) Position(i int) r3.Vec {
	x, y, z := g.Dims.Coord(i)
	return r3.Vec{
		X: g.Origin.X + g.Spacing.X*float64(x),
		Y: g.Origin.Y + g.Spacing.Y*float64(y),
		Z: g.Origin.Z + g.Spacing.Z*float64(z),
	}
}

// ExportLabels returns the final labels as plain integers, 0 for boundary.
func (g *Grid) ExportLabels() []int32 {
	out := make([]int32, len(g.Labels))
	for i, l := range g.Labels {
		out[i] = l.Export()
	}
	return out
}

// Count returns how many voxels carry label l.
func (g *Grid) Count(l Label) int {
	n := 0
	for _, v := range g.Labels {
		if v == l {
			n++
		}
	}
	return n
}
