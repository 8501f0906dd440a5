package vtk

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// valuesPerLine matches what VTK itself writes in ASCII mode.
const valuesPerLine = 9

// Writer encodes datasets as legacy VTK files.
type Writer struct {
	// Binary selects big-endian binary data instead of ASCII
	Binary bool
}

// Write encodes ds to w.
func (wr Writer) Write(w io.Writer, ds *Dataset) error {
	if err := validate(ds); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)

	title := ds.Title
	if title == "" {
		title = "vtk output"
	}
	format := "ASCII"
	if wr.Binary {
		format = "BINARY"
	}
	fmt.Fprintf(bw, "# vtk DataFile Version 3.0\n%s\n%s\n", title, format)
	fmt.Fprintf(bw, "DATASET STRUCTURED_POINTS\n")
	fmt.Fprintf(bw, "DIMENSIONS %d %d %d\n", ds.Dimensions[0], ds.Dimensions[1], ds.Dimensions[2])
	fmt.Fprintf(bw, "SPACING %s %s %s\n", formatFloat(ds.Spacing[0]), formatFloat(ds.Spacing[1]), formatFloat(ds.Spacing[2]))
	fmt.Fprintf(bw, "ORIGIN %s %s %s\n", formatFloat(ds.Origin[0]), formatFloat(ds.Origin[1]), formatFloat(ds.Origin[2]))

	if len(ds.Arrays) > 0 {
		fmt.Fprintf(bw, "POINT_DATA %d\n", ds.Points())
	}
	for _, a := range ds.Arrays {
		fmt.Fprintf(bw, "SCALARS %s %s 1\nLOOKUP_TABLE default\n", a.Name, a.Type)
		var err error
		if wr.Binary {
			err = writeBinary(bw, a)
		} else {
			err = writeASCII(bw, a)
		}
		if err != nil {
			return errors.Wrapf(err, "write array %q", a.Name)
		}
	}
	return errors.Wrap(bw.Flush(), "write vtk")
}

// WriteFile writes ds to path, replacing any existing file.
func (wr Writer) WriteFile(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create vtk file")
	}
	if err := wr.Write(f, ds); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close vtk file")
}

func validate(ds *Dataset) error {
	for i, d := range ds.Dimensions {
		if d < 1 {
			return errors.Errorf("dimension %d is %d, want at least 1", i, d)
		}
	}
	for _, a := range ds.Arrays {
		if a.Type.Size() == 0 {
			return errors.Errorf("array %q has unsupported type %q", a.Name, a.Type)
		}
		if a.Name == "" {
			return errors.New("array name must not be empty")
		}
		if strings.IndexFunc(a.Name, unicode.IsSpace) >= 0 {
			return errors.Errorf("array name %q must not contain whitespace", a.Name)
		}
		if len(a.Values) != ds.Points() {
			return errors.Errorf("array %q has %d values for %d points", a.Name, len(a.Values), ds.Points())
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeASCII(w *bufio.Writer, a Array) error {
	for i, v := range a.Values {
		var s string
		switch a.Type {
		case Float:
			s = strconv.FormatFloat(v, 'g', -1, 32)
		case Double:
			s = formatFloat(v)
		default:
			s = strconv.FormatInt(int64(v), 10)
		}
		if _, err := w.WriteString(s); err != nil {
			return err
		}
		sep := byte(' ')
		if (i+1)%valuesPerLine == 0 || i == len(a.Values)-1 {
			sep = '\n'
		}
		if err := w.WriteByte(sep); err != nil {
			return err
		}
	}
	return nil
}

func writeBinary(w *bufio.Writer, a Array) error {
	size := a.Type.Size()
	buf := make([]byte, size)
	be := binary.BigEndian
	for _, v := range a.Values {
		switch a.Type {
		case UnsignedChar:
			buf[0] = uint8(v)
		case Char:
			buf[0] = uint8(int8(v))
		case UnsignedShort:
			be.PutUint16(buf, uint16(v))
		case Short:
			be.PutUint16(buf, uint16(int16(v)))
		case UnsignedInt:
			be.PutUint32(buf, uint32(v))
		case Int:
			be.PutUint32(buf, uint32(int32(v)))
		case UnsignedLong:
			be.PutUint64(buf, uint64(v))
		case Long:
			be.PutUint64(buf, uint64(int64(v)))
		case Float:
			be.PutUint32(buf, math.Float32bits(float32(v)))
		case Double:
			be.PutUint64(buf, math.Float64bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
