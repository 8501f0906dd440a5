package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"watershed3d/pkg/grid"
)

// Viewer extracts axis-aligned slices of a segmented volume as images: the
// scalar field in grayscale and the region codes in color.
type Viewer struct {
	// dims is the size of the volume
	dims grid.Dims

	// heights is the scalar field, x fastest-varying
	heights []float64

	// labels holds the exported region code per voxel; nil disables label slices
	labels []int32

	// palette maps region codes to colors
	palette []color.RGBA

	// hMin and hMax bound the scalar field for grayscale normalization
	hMin, hMax float64
}

// NewViewer creates a viewer over a scalar field and, optionally, its region
// codes. labels may be nil.
func NewViewer(dims grid.Dims, heights []float64, labels []int32) (*Viewer, error) {
	if len(heights) != dims.Len() {
		return nil, fmt.Errorf("got %d heights for a %s volume", len(heights), dims)
	}
	if labels != nil && len(labels) != dims.Len() {
		return nil, fmt.Errorf("got %d labels for a %s volume", len(labels), dims)
	}
	v := &Viewer{dims: dims, heights: heights, labels: labels}
	if len(heights) > 0 {
		v.hMin, v.hMax = floats.Min(heights), floats.Max(heights)
	}
	var maxCode int32
	for _, l := range labels {
		if l > maxCode {
			maxCode = l
		}
	}
	v.palette = Palette(int(maxCode))
	return v, nil
}

// plane describes a 2D cut through the volume: its image size and the voxel
// index of each pixel.
type plane struct {
	w, h  int
	index func(a, b int) int
}

// slicePlane maps axis and position to the pixels of the cut. An x cut is laid
// out as (z, y), a y cut as (x, z) and a z cut as (x, y).
func (v *Viewer) slicePlane(axis string, position int) (plane, error) {
	if position < 0 {
		return plane{}, fmt.Errorf("position must be non-negative")
	}
	d := v.dims
	switch axis {
	case "x", "X":
		if position >= d.X {
			return plane{}, fmt.Errorf("position %d exceeds width %d", position, d.X)
		}
		return plane{w: d.Z, h: d.Y, index: func(z, y int) int { return d.Index(position, y, z) }}, nil
	case "y", "Y":
		if position >= d.Y {
			return plane{}, fmt.Errorf("position %d exceeds height %d", position, d.Y)
		}
		return plane{w: d.X, h: d.Z, index: func(x, z int) int { return d.Index(x, position, z) }}, nil
	case "z", "Z":
		if position >= d.Z {
			return plane{}, fmt.Errorf("position %d exceeds depth %d", position, d.Z)
		}
		return plane{w: d.X, h: d.Y, index: func(x, y int) int { return d.Index(x, y, position) }}, nil
	}
	return plane{}, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts the scalar field along the specified axis as a
// grayscale image, scaled so the volume's minimum is black and its maximum
// white.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	p, err := v.slicePlane(axis, position)
	if err != nil {
		return nil, err
	}
	span := v.hMax - v.hMin
	img := image.NewGray16(image.Rect(0, 0, p.w, p.h))
	for b := 0; b < p.h; b++ {
		for a := 0; a < p.w; a++ {
			var t float64
			if span > 0 {
				t = (v.heights[p.index(a, b)] - v.hMin) / span
			}
			value := uint16(math.Max(0, math.Min(65535, t*65535)))
			img.SetGray16(a, b, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// ExtractLabelSlice extracts the region codes along the specified axis as a
// color image. Boundary voxels are black.
func (v *Viewer) ExtractLabelSlice(axis string, position int) (image.Image, error) {
	if v.labels == nil {
		return nil, fmt.Errorf("viewer has no labels")
	}
	p, err := v.slicePlane(axis, position)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.w, p.h))
	for b := 0; b < p.h; b++ {
		for a := 0; a < p.w; a++ {
			code := v.labels[p.index(a, b)]
			c := v.palette[0]
			if code > 0 && int(code) < len(v.palette) {
				c = v.palette[code]
			}
			img.SetRGBA(a, b, c)
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice. Files ending in .png are written as
// PNG, everything else as JPEG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(filename), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis:
// the scalar field as slice_<axis>_NNN.jpg and, when the viewer has labels,
// the region codes as labels_<axis>_NNN.png.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.dims.X
	case "y", "Y":
		maxPos = v.dims.Y
	case "z", "Z":
		maxPos = v.dims.Z
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}

		if v.labels == nil {
			continue
		}
		img, err = v.ExtractLabelSlice(axis, pos)
		if err != nil {
			return err
		}
		filename = filepath.Join(outputDir, fmt.Sprintf("labels_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
