package vtk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleASCII = `# vtk DataFile Version 2.0
ftle sample
ASCII
DATASET STRUCTURED_POINTS
DIMENSIONS 3 2 1
ASPECT_RATIO 0.5 0.5 2
ORIGIN -1 0 1.5

POINT_DATA 6
SCALARS ftle float
LOOKUP_TABLE default
0.25 1 2.5
3 -4 5e-1
SCALARS velocity double 3
LOOKUP_TABLE default
1 10 100  2 20 200  3 30 300
4 40 400  5 50 500  6 60 600
`

func sampleDataset() *Dataset {
	return &Dataset{
		Title:      "segmentation",
		Dimensions: [3]int{3, 2, 2},
		Origin:     [3]float64{0.5, -2, 0},
		Spacing:    [3]float64{0.1, 0.2, 0.3},
		Arrays: []Array{
			IntArray("region", []int32{1, 1, 2, 2, 0, 3, 3, 3, 1, 1, 2, 70000}),
			DoubleArray("ftle", []float64{0.1, 0.2, math.Pi, -1e-9, 5, 6, 7, 8, 9, 10, 11, 1.0 / 3}),
			UnsignedCharArray("boundary", []uint8{0, 1, 1, 0, 0, 0, 1, 0, 0, 0, 0, 255}),
		},
	}
}

func TestRead_ASCII(t *testing.T) {
	ds, err := Read(strings.NewReader(sampleASCII))
	require.NoError(t, err)

	assert.Equal(t, "ftle sample", ds.Title)
	assert.Equal(t, [3]int{3, 2, 1}, ds.Dimensions)
	assert.Equal(t, [3]float64{-1, 0, 1.5}, ds.Origin)
	assert.Equal(t, [3]float64{0.5, 0.5, 2}, ds.Spacing)
	require.Len(t, ds.Arrays, 2)

	assert.Equal(t, Float, ds.Arrays[0].Type)
	assert.Equal(t, []float64{0.25, 1, 2.5, 3, -4, 0.5}, ds.Arrays[0].Values)
	// only the first component of a tuple is kept
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, ds.Arrays[1].Values)
}

func TestDataset_Volume(t *testing.T) {
	ds, err := Read(strings.NewReader(sampleASCII))
	require.NoError(t, err)

	v, err := ds.Volume("")
	require.NoError(t, err)
	assert.Equal(t, "ftle", v.ScalarName)
	assert.Equal(t, 6, v.Len())

	v, err = ds.Volume("velocity")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v.Values)

	_, err = ds.Volume("pressure")
	assert.ErrorContains(t, err, `"pressure"`)
}

func TestReadStructuredPoints(t *testing.T) {
	v, err := ReadStructuredPoints(strings.NewReader(sampleASCII))
	require.NoError(t, err)
	assert.Equal(t, [3]int{3, 2, 1}, v.Dimensions)
	assert.Equal(t, 0.25, v.Values[0])
}

func TestRoundTrip(t *testing.T) {
	for _, binary := range []bool{false, true} {
		var buf bytes.Buffer
		want := sampleDataset()
		require.NoError(t, Writer{Binary: binary}.Write(&buf, want))

		got, err := Read(&buf)
		require.NoError(t, err, "binary=%v", binary)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("binary=%v round trip mismatch (-want +got):\n%s", binary, diff)
		}
	}
}

func TestRoundTrip_AllTypes(t *testing.T) {
	values := []float64{0, 1, 100, 127}
	for _, typ := range []DataType{UnsignedChar, Char, UnsignedShort, Short, UnsignedInt, Int, UnsignedLong, Long, Float, Double} {
		for _, binary := range []bool{false, true} {
			ds := &Dataset{
				Dimensions: [3]int{2, 2, 1},
				Spacing:    [3]float64{1, 1, 1},
				Arrays:     []Array{{Name: "v", Type: typ, Values: values}},
			}
			var buf bytes.Buffer
			require.NoError(t, Writer{Binary: binary}.Write(&buf, ds))
			got, err := Read(&buf)
			require.NoError(t, err, "%s binary=%v", typ, binary)
			assert.Equal(t, values, got.Arrays[0].Values, "%s binary=%v", typ, binary)
		}
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.vtk")
	want := sampleDataset()
	require.NoError(t, Writer{Binary: true}.WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.vtk"))
	assert.Error(t, err)
}

func TestWrite_ASCIILayout(t *testing.T) {
	var buf bytes.Buffer
	ds := &Dataset{
		Dimensions: [3]int{2, 1, 1},
		Spacing:    [3]float64{1, 1, 1},
		Arrays:     []Array{IntArray("region", []int32{4, 7})},
	}
	require.NoError(t, Writer{}.Write(&buf, ds))
	assert.Equal(t, `# vtk DataFile Version 3.0
vtk output
ASCII
DATASET STRUCTURED_POINTS
DIMENSIONS 2 1 1
SPACING 1 1 1
ORIGIN 0 0 0
POINT_DATA 2
SCALARS region int 1
LOOKUP_TABLE default
4 7
`, buf.String())
}

func TestWrite_RejectsBadDataset(t *testing.T) {
	ds := sampleDataset()
	ds.Arrays[1].Values = ds.Arrays[1].Values[:3]
	assert.ErrorContains(t, Writer{}.Write(&bytes.Buffer{}, ds), `"ftle"`)

	for _, name := range []string{"wind speed", "tab\tname", "line\nbreak"} {
		ds = sampleDataset()
		ds.Arrays[0].Name = name
		assert.ErrorContains(t, Writer{}.Write(&bytes.Buffer{}, ds), "whitespace", "name %q", name)
	}

	ds = sampleDataset()
	ds.Arrays[0].Type = "bit"
	assert.Error(t, Writer{}.Write(&bytes.Buffer{}, ds))
}

func TestRead_Errors(t *testing.T) {
	header := "# vtk DataFile Version 3.0\nt\nASCII\nDATASET STRUCTURED_POINTS\n"
	tests := []struct {
		name  string
		input string
		line  int
		msg   string
	}{
		{
			name:  "not vtk",
			input: "hello\n",
			line:  1,
			msg:   "not a legacy VTK file",
		},
		{
			name:  "bad format",
			input: "# vtk DataFile Version 3.0\nt\nXML\n",
			line:  3,
			msg:   "unknown file format",
		},
		{
			name:  "unstructured",
			input: "# vtk DataFile Version 3.0\nt\nASCII\nDATASET UNSTRUCTURED_GRID\n",
			line:  4,
			msg:   "unsupported dataset",
		},
		{
			name:  "point count mismatch",
			input: header + "DIMENSIONS 2 2 2\nPOINT_DATA 7\n",
			line:  6,
			msg:   "does not match",
		},
		{
			name:  "bad type",
			input: header + "DIMENSIONS 1 1 1\nPOINT_DATA 1\nSCALARS s bit\nLOOKUP_TABLE default\n1\n",
			line:  7,
			msg:   "unsupported scalar type",
		},
		{
			name:  "missing lookup table",
			input: header + "DIMENSIONS 1 1 1\nPOINT_DATA 1\nSCALARS s int\n1\n",
			line:  8,
			msg:   "expected LOOKUP_TABLE",
		},
		{
			name:  "short data",
			input: header + "DIMENSIONS 3 1 1\nPOINT_DATA 3\nSCALARS s int\nLOOKUP_TABLE default\n1 2\n",
			line:  9,
			msg:   "got 2 of 3 values",
		},
		{
			name:  "bad value",
			input: header + "DIMENSIONS 2 1 1\nPOINT_DATA 2\nSCALARS s int\nLOOKUP_TABLE default\n1\nx\n",
			line:  10,
			msg:   `invalid int value "x"`,
		},
		{
			name:  "bad field type",
			input: header + "FIELD FieldData 1\nTIME 1 1 bit\n0\n",
			line:  6,
			msg:   "unsupported FIELD array type",
		},
		{
			name:  "vectors outside point data",
			input: header + "DIMENSIONS 1 1 1\nVECTORS v float\n0 0 0\n",
			line:  6,
			msg:   "outside POINT_DATA",
		},
		{
			name:  "short vectors",
			input: header + "DIMENSIONS 2 1 1\nPOINT_DATA 2\nVECTORS v float\n1 2 3\n4 5\n",
			line:  9,
			msg:   "got 5 of 6 values",
		},
		{
			name:  "no dimensions",
			input: header,
			line:  4,
			msg:   "missing DIMENSIONS",
		},
		{
			name:  "bad spacing",
			input: header + "SPACING 1 1\n",
			line:  5,
			msg:   "SPACING needs 3 values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
			assert.Equal(t, tt.line, perr.Line)
			assert.Contains(t, perr.Msg, tt.msg)
		})
	}
}

func TestRead_TruncatedBinary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Writer{Binary: true}.Write(&buf, sampleDataset()))
	data := buf.Bytes()[:buf.Len()-5]

	_, err := Read(bytes.NewReader(data))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Msg, "truncated binary data")
}

// extrasASCII carries sections the reader skips: dataset field data, point
// vectors before the scalars, and a cell data block.
const extrasASCII = `# vtk DataFile Version 3.0
ftle with extras
ASCII
DATASET STRUCTURED_POINTS
FIELD FieldData 2
TIME 1 1 double
12.5
CYCLE 1 1 int
3
DIMENSIONS 2 2 1
SPACING 1 1 1
ORIGIN 0 0 0
POINT_DATA 4
VECTORS velocity float
1 0 0 0 1 0 0 0 1 1 1 1
SCALARS ftle double 1
LOOKUP_TABLE default
0.5 1.5 2.5 3.5
NORMALS n float
0 0 1 0 0 1 0 0 1 0 0 1
CELL_DATA 1
SCALARS pressure float
LOOKUP_TABLE default
9
TENSORS stress double
1 0 0 0 1 0 0 0 1
`

func extrasWant() *Dataset {
	return &Dataset{
		Title:      "ftle with extras",
		Dimensions: [3]int{2, 2, 1},
		Spacing:    [3]float64{1, 1, 1},
		Arrays:     []Array{{Name: "ftle", Type: Double, Values: []float64{0.5, 1.5, 2.5, 3.5}}},
	}
}

// extrasBinary encodes the same content as extrasASCII with binary data.
func extrasBinary(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	put := func(header string, data interface{}) {
		buf.WriteString(header)
		require.NoError(t, binary.Write(&buf, binary.BigEndian, data))
		buf.WriteString("\n")
	}
	buf.WriteString("# vtk DataFile Version 3.0\nftle with extras\nBINARY\nDATASET STRUCTURED_POINTS\n")
	put("FIELD FieldData 2\nTIME 1 1 double\n", []float64{12.5})
	put("CYCLE 1 1 int\n", []int32{3})
	buf.WriteString("DIMENSIONS 2 2 1\nSPACING 1 1 1\nORIGIN 0 0 0\nPOINT_DATA 4\n")
	put("VECTORS velocity float\n", []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1})
	put("SCALARS ftle double 1\nLOOKUP_TABLE default\n", []float64{0.5, 1.5, 2.5, 3.5})
	put("COLOR_SCALARS rgb 3\n", []uint8{255, 0, 0, 0, 255, 0, 0, 0, 255, 10, 10, '\n'})
	put("CELL_DATA 1\nSCALARS pressure float\nLOOKUP_TABLE default\n", []float32{9})
	put("TENSORS stress double\n", []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	return buf.Bytes()
}

func TestRead_SkipsUnusedSections(t *testing.T) {
	inputs := map[string][]byte{
		"ascii":  []byte(extrasASCII),
		"binary": extrasBinary(t),
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := Read(bytes.NewReader(input))
			require.NoError(t, err)
			if diff := cmp.Diff(extrasWant(), got); diff != "" {
				t.Errorf("dataset mismatch (-want +got):\n%s", diff)
			}

			// what was kept survives a write and a second read
			for _, bin := range []bool{false, true} {
				var out bytes.Buffer
				require.NoError(t, Writer{Binary: bin}.Write(&out, got))
				again, err := Read(&out)
				require.NoError(t, err, "binary=%v", bin)
				if diff := cmp.Diff(got, again); diff != "" {
					t.Errorf("binary=%v round trip mismatch (-want +got):\n%s", bin, diff)
				}
			}
		})
	}
}

func TestRead_VectorsBeforeScalars(t *testing.T) {
	input := `# vtk DataFile Version 3.0
velocity first
ASCII
DATASET STRUCTURED_POINTS
DIMENSIONS 3 1 1
POINT_DATA 3
VECTORS velocity double
1 2 3
4 5 6
7 8 9
SCALARS ftle float
LOOKUP_TABLE default
0.1 0.2 0.3
`
	vol, err := ReadStructuredPoints(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "ftle", vol.ScalarName)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, vol.Values, 1e-6)
}

func TestRead_TruncatedSkippedSection(t *testing.T) {
	data := extrasBinary(t)
	cut := bytes.Index(data, []byte("VECTORS"))
	require.Positive(t, cut)

	_, err := Read(bytes.NewReader(data[:cut+len("VECTORS velocity float\n")+7]))
	var perr *ParseError
	require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
	assert.Contains(t, perr.Msg, "truncated binary data")
}
