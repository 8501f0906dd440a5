// Package vtk reads and writes legacy VTK STRUCTURED_POINTS files, the
// format the segmentation takes scalar fields from and writes region codes
// back to. Both ASCII and BINARY (big-endian) encodings are supported.
package vtk

import (
	"fmt"

	"github.com/pkg/errors"

	"watershed3d/internal/models"
)

// DataType is a legacy VTK scalar type name.
type DataType string

// Supported scalar types.
const (
	UnsignedChar  DataType = "unsigned_char"
	Char          DataType = "char"
	UnsignedShort DataType = "unsigned_short"
	Short         DataType = "short"
	UnsignedInt   DataType = "unsigned_int"
	Int           DataType = "int"
	UnsignedLong  DataType = "unsigned_long"
	Long          DataType = "long"
	Float         DataType = "float"
	Double        DataType = "double"
)

// Size returns the encoded width of one value in bytes, or 0 for an unknown
// type.
func (t DataType) Size() int {
	switch t {
	case UnsignedChar, Char:
		return 1
	case UnsignedShort, Short:
		return 2
	case UnsignedInt, Int, Float:
		return 4
	case UnsignedLong, Long, Double:
		return 8
	}
	return 0
}

// Integral reports whether values of t are written without a fraction.
func (t DataType) Integral() bool {
	return t != Float && t != Double
}

// Array is one named point-data array. Values are held as float64, which
// represents every supported type except 64-bit integers beyond 2^53 exactly.
type Array struct {
	Name   string
	Type   DataType
	Values []float64
}

// IntArray builds an int array from 32-bit values.
func IntArray(name string, values []int32) Array {
	a := Array{Name: name, Type: Int, Values: make([]float64, len(values))}
	for i, v := range values {
		a.Values[i] = float64(v)
	}
	return a
}

// DoubleArray builds a double array. values is copied.
func DoubleArray(name string, values []float64) Array {
	return Array{Name: name, Type: Double, Values: append([]float64(nil), values...)}
}

// UnsignedCharArray builds an unsigned_char array, used for masks.
func UnsignedCharArray(name string, values []uint8) Array {
	a := Array{Name: name, Type: UnsignedChar, Values: make([]float64, len(values))}
	for i, v := range values {
		a.Values[i] = float64(v)
	}
	return a
}

// Dataset is a structured-points grid with its point-data arrays.
type Dataset struct {
	// Title is the free-form second header line
	Title string

	Dimensions [3]int
	Origin     [3]float64
	Spacing    [3]float64

	// Arrays are written and read in order. The first one is the active
	// scalars.
	Arrays []Array
}

// Points returns the number of grid points.
func (d *Dataset) Points() int {
	return d.Dimensions[0] * d.Dimensions[1] * d.Dimensions[2]
}

// Array returns the array called name, or the first array when name is empty.
func (d *Dataset) Array(name string) (*Array, bool) {
	for i := range d.Arrays {
		if name == "" || d.Arrays[i].Name == name {
			return &d.Arrays[i], true
		}
	}
	return nil, false
}

// Volume returns the grid geometry with the values of the array called name
// (the first array when name is empty).
func (d *Dataset) Volume(name string) (*models.Volume, error) {
	a, ok := d.Array(name)
	if !ok {
		if name == "" {
			return nil, errors.New("dataset has no point data")
		}
		return nil, errors.Errorf("dataset has no array named %q (have %s)", name, d.arrayNames())
	}
	return &models.Volume{
		Dimensions: d.Dimensions,
		Origin:     d.Origin,
		Spacing:    d.Spacing,
		Values:     append([]float64(nil), a.Values...),
		ScalarName: a.Name,
	}, nil
}

// FromVolume creates a dataset with the geometry of v and no arrays.
func FromVolume(v *models.Volume) *Dataset {
	return &Dataset{
		Dimensions: v.Dimensions,
		Origin:     v.Origin,
		Spacing:    v.Spacing,
	}
}

func (d *Dataset) arrayNames() string {
	names := make([]string, len(d.Arrays))
	for i, a := range d.Arrays {
		names[i] = a.Name
	}
	return fmt.Sprintf("%q", names)
}

// ParseError reports a malformed file.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vtk: line %d: %s", e.Line, e.Msg)
}
