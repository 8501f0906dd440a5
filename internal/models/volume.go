package models

// Volume is a scalar field sampled on a regular voxel grid, exactly as it
// arrives from a volumetric file before any segmentation state exists.
type Volume struct {
	// Dimensions is the number of samples along x, y and z
	Dimensions [3]int

	// Origin is the physical position of the first sample
	Origin [3]float64

	// Spacing is the physical distance between neighboring samples per axis
	Spacing [3]float64

	// Values holds one scalar per voxel, x fastest-varying, then y, then z
	Values []float64

	// ScalarName is the name of the array the values were read from
	ScalarName string
}

// Len returns the number of voxels implied by Dimensions.
func (v *Volume) Len() int {
	return v.Dimensions[0] * v.Dimensions[1] * v.Dimensions[2]
}

// NewVolume creates a volume with unit spacing at the origin.
func NewVolume(nx, ny, nz int, values []float64) *Volume {
	return &Volume{
		Dimensions: [3]int{nx, ny, nz},
		Spacing:    [3]float64{1, 1, 1},
		Values:     values,
		ScalarName: "scalars",
	}
}
