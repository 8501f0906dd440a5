// Package filter smooths a scalar volume before it is segmented. Smoothing
// merges the shallow minima that noise produces, which would otherwise each
// become a basin of their own.
package filter

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"watershed3d/pkg/grid"
)

// Kind names a smoothing kernel.
type Kind string

const (
	// KindGaussian is a separable Gaussian kernel with sigma = radius/3.
	KindGaussian Kind = "gaussian"

	// KindLaplacian is an unweighted box average, the classic Laplacian
	// smoothing step.
	KindLaplacian Kind = "laplacian"
)

// ParseKind parses a kernel name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGaussian, KindLaplacian:
		return k, nil
	}
	return "", errors.Errorf("unknown filter kind %q (want gaussian or laplacian)", s)
}

// Step is one entry of a filter sequence.
type Step struct {
	// Kind selects the kernel
	Kind Kind `yaml:"kind"`

	// Radius is the half-width of the kernel in voxels. A radius of 0 leaves
	// the volume unchanged.
	Radius int `yaml:"radius"`

	// Passes is how many times the kernel is applied. 0 means once.
	Passes int `yaml:"passes"`
}

// Validate checks that the step can be applied.
func (s Step) Validate() error {
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if err := checkRadius(s.Radius); err != nil {
		return err
	}
	if s.Passes < 0 {
		return errors.Errorf("filter passes must not be negative, got %d", s.Passes)
	}
	return nil
}

// Gaussian smooths src with a Gaussian kernel of the given radius.
//
// Each output voxel is the weighted mean of the voxels within radius along
// every axis, with weights exp(-d²/2σ²) per axis and σ = radius/3. Near the
// border only in-bounds taps are used and the weights are renormalised over
// them, so a constant field stays constant.
//
// Parameters:
//   - src: Scalar values in x-fastest order
//   - dims: Grid dimensions matching src
//   - radius: Kernel half-width in voxels
//   - workers: Number of goroutines to split the z range across
//
// Returns:
//   - A new slice with the smoothed values, or an error for bad input
func Gaussian(src []float64, dims grid.Dims, radius, workers int) ([]float64, error) {
	if err := checkRadius(radius); err != nil {
		return nil, err
	}
	if radius == 0 {
		return checkedCopy(src, dims)
	}
	return separable(src, dims, gaussianWeights(radius), workers)
}

// Laplacian smooths src with an unweighted box of the given radius. Near the
// border the mean is taken over the in-bounds taps only.
//
// Parameters:
//   - src: Scalar values in x-fastest order
//   - dims: Grid dimensions matching src
//   - radius: Box half-width in voxels
//   - workers: Number of goroutines to split the z range across
//
// Returns:
//   - A new slice with the smoothed values, or an error for bad input
func Laplacian(src []float64, dims grid.Dims, radius, workers int) ([]float64, error) {
	if err := checkRadius(radius); err != nil {
		return nil, err
	}
	if radius == 0 {
		return checkedCopy(src, dims)
	}
	weights := make([]float64, 2*radius+1)
	for i := range weights {
		weights[i] = 1
	}
	return separable(src, dims, weights, workers)
}

// Apply runs steps in order and returns the result. src is never modified;
// an empty sequence returns a copy.
func Apply(src []float64, dims grid.Dims, steps []Step, workers int) ([]float64, error) {
	out, err := checkedCopy(src, dims)
	if err != nil {
		return nil, err
	}
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return nil, errors.Wrapf(err, "filter step %d", i)
		}
		kind, _ := ParseKind(string(step.Kind))
		passes := max(step.Passes, 1)
		for p := 0; p < passes; p++ {
			switch kind {
			case KindGaussian:
				out, err = Gaussian(out, dims, step.Radius, workers)
			case KindLaplacian:
				out, err = Laplacian(out, dims, step.Radius, workers)
			}
			if err != nil {
				return nil, errors.Wrapf(err, "filter step %d (%s)", i, kind)
			}
		}
	}
	return out, nil
}

func gaussianWeights(radius int) []float64 {
	sigma := float64(radius) / 3.0
	norm := math.Sqrt(2*math.Pi) * sigma
	weights := make([]float64, 2*radius+1)
	for d := -radius; d <= radius; d++ {
		weights[d+radius] = math.Exp(-float64(d*d)/(2*sigma*sigma)) / norm
	}
	return weights
}

func checkRadius(radius int) error {
	if radius < 0 {
		return errors.Errorf("filter radius must not be negative, got %d", radius)
	}
	return nil
}

func checkedCopy(src []float64, dims grid.Dims) ([]float64, error) {
	if err := checkInput(src, dims); err != nil {
		return nil, err
	}
	return append([]float64(nil), src...), nil
}

func checkInput(src []float64, dims grid.Dims) error {
	if dims.X < 1 || dims.Y < 1 || dims.Z < 1 {
		return errors.Errorf("invalid dimensions %s", dims)
	}
	if len(src) != dims.Len() {
		return errors.Errorf("got %d values for a %s grid (want %d)", len(src), dims, dims.Len())
	}
	return nil
}

// separable applies a 1D kernel along x, then y, then z. Taps that fall
// outside the grid are dropped and the remaining weights renormalised, which
// for a product kernel gives the same result as the full 3D window.
func separable(src []float64, dims grid.Dims, weights []float64, workers int) ([]float64, error) {
	if len(weights)%2 == 0 {
		return nil, errors.Errorf("kernel length must be odd, got %d", len(weights))
	}
	if err := checkInput(src, dims); err != nil {
		return nil, err
	}
	radius := len(weights) / 2

	cur := src
	for axis := 0; axis < 3; axis++ {
		out := make([]float64, len(cur))
		in := cur
		err := forEachSlab(dims.Z, workers, func(z0, z1 int) {
			convolveAxis(in, out, dims, axis, weights, radius, z0, z1)
		})
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

func convolveAxis(in, out []float64, dims grid.Dims, axis int, weights []float64, radius, z0, z1 int) {
	var stride, extent int
	switch axis {
	case 0:
		stride, extent = 1, dims.X
	case 1:
		stride, extent = dims.X, dims.Y
	default:
		stride, extent = dims.X*dims.Y, dims.Z
	}

	for z := z0; z < z1; z++ {
		for y := 0; y < dims.Y; y++ {
			for x := 0; x < dims.X; x++ {
				i := dims.Index(x, y, z)
				pos := [3]int{x, y, z}[axis]
				lo := max(-radius, -pos)
				hi := min(radius, extent-1-pos)

				var sum, wsum float64
				for d := lo; d <= hi; d++ {
					w := weights[d+radius]
					sum += w * in[i+d*stride]
					wsum += w
				}
				out[i] = sum / wsum
			}
		}
	}
}

// forEachSlab splits [0, depth) into one contiguous z range per worker and
// runs fn on each range concurrently.
func forEachSlab(depth, workers int, fn func(z0, z1 int)) error {
	if workers <= 1 || depth <= 1 {
		fn(0, depth)
		return nil
	}
	workers = min(workers, depth)
	slabsPerWorker := (depth + workers - 1) / workers

	var grp errgroup.Group
	for w := 0; w < workers; w++ {
		z0 := w * slabsPerWorker
		z1 := min(z0+slabsPerWorker, depth)
		if z0 >= depth {
			break
		}
		grp.Go(func() error {
			fn(z0, z1)
			return nil
		})
	}
	return grp.Wait()
}
