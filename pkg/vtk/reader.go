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

	"github.com/pkg/errors"

	"watershed3d/internal/models"
)

type reader struct {
	r      *bufio.Reader
	line   int
	binary bool
}

func (p *reader) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

// rawLine returns the next line without its terminator. io.EOF is returned
// only when nothing at all is left.
func (p *reader) rawLine() (string, error) {
	s, err := p.r.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	p.line++
	return strings.TrimRight(s, "\r\n"), nil
}

// nextLine returns the next non-blank line, trimmed.
func (p *reader) nextLine() (string, error) {
	for {
		s, err := p.rawLine()
		if err != nil {
			return "", err
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
}

// token returns the next whitespace-separated word of ASCII data.
func (p *reader) token() (string, error) {
	var sb strings.Builder
	for {
		b, err := p.r.ReadByte()
		if err == io.EOF && sb.Len() > 0 {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			if sb.Len() > 0 {
				// leave the terminator so the line count stays on the token's line
				return sb.String(), p.r.UnreadByte()
			}
			if b == '\n' {
				p.line++
			}
		default:
			sb.WriteByte(b)
		}
	}
}

// Read parses a legacy VTK STRUCTURED_POINTS file with all of its SCALARS
// arrays.
func Read(r io.Reader) (*Dataset, error) {
	p := &reader{r: bufio.NewReader(r)}
	ds := &Dataset{Spacing: [3]float64{1, 1, 1}}

	version, err := p.rawLine()
	if err != nil {
		return nil, p.errorf("missing header")
	}
	if !strings.HasPrefix(strings.ToLower(version), "# vtk datafile") {
		return nil, p.errorf("not a legacy VTK file: %q", version)
	}
	if ds.Title, err = p.rawLine(); err != nil {
		return nil, p.errorf("missing title line")
	}

	format, err := p.nextLine()
	if err != nil {
		return nil, p.errorf("missing file format")
	}
	switch strings.ToUpper(format) {
	case "ASCII":
	case "BINARY":
		p.binary = true
	default:
		return nil, p.errorf("unknown file format %q (want ASCII or BINARY)", format)
	}

	// count is the number of tuples per array in the current POINT_DATA or
	// CELL_DATA section; only point scalars are kept.
	count := -1
	cellData := false
	haveDims := false
	for {
		line, err := p.nextLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read vtk")
		}
		fields := strings.Fields(line)
		keyword := strings.ToUpper(fields[0])
		switch keyword {
		case "DATASET":
			if len(fields) != 2 || !strings.EqualFold(fields[1], "STRUCTURED_POINTS") {
				return nil, p.errorf("unsupported dataset %q (want STRUCTURED_POINTS)", line)
			}
		case "DIMENSIONS":
			var dims [3]float64
			if err := p.parseTriple(fields, &dims); err != nil {
				return nil, err
			}
			for i, v := range dims {
				if v != math.Trunc(v) || v < 1 {
					return nil, p.errorf("invalid dimension %v", v)
				}
				ds.Dimensions[i] = int(v)
			}
			haveDims = true
		case "ORIGIN":
			if err := p.parseTriple(fields, &ds.Origin); err != nil {
				return nil, err
			}
		case "SPACING", "ASPECT_RATIO":
			if err := p.parseTriple(fields, &ds.Spacing); err != nil {
				return nil, err
			}
		case "POINT_DATA", "CELL_DATA":
			if len(fields) != 2 {
				return nil, p.errorf("malformed %s line %q", keyword, line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return nil, p.errorf("invalid %s count %q", keyword, fields[1])
			}
			if !haveDims {
				return nil, p.errorf("%s before DIMENSIONS", keyword)
			}
			cellData = keyword == "CELL_DATA"
			if !cellData && n != ds.Points() {
				return nil, p.errorf("POINT_DATA %d does not match DIMENSIONS %v (%d points)", n, ds.Dimensions, ds.Points())
			}
			count = n
		case "SCALARS":
			if count < 0 {
				return nil, p.errorf("SCALARS outside POINT_DATA")
			}
			a, err := p.readScalars(fields, count)
			if err != nil {
				return nil, err
			}
			if !cellData {
				ds.Arrays = append(ds.Arrays, a)
			}
		case "VECTORS", "NORMALS", "TENSORS", "TEXTURE_COORDINATES", "COLOR_SCALARS":
			if count < 0 {
				return nil, p.errorf("%s outside POINT_DATA or CELL_DATA", keyword)
			}
			if err := p.skipAttribute(keyword, fields, count); err != nil {
				return nil, err
			}
		case "LOOKUP_TABLE":
			// a standalone table: size RGBA entries
			if len(fields) != 3 {
				return nil, p.errorf("malformed LOOKUP_TABLE line %q", line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, p.errorf("invalid LOOKUP_TABLE size %q", fields[2])
			}
			if err := p.skipColors(4 * n); err != nil {
				return nil, err
			}
		case "FIELD":
			if err := p.skipField(fields); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("unsupported keyword %q", fields[0])
		}
	}

	if !haveDims {
		return nil, p.errorf("missing DIMENSIONS")
	}
	return ds, nil
}

func (p *reader) parseTriple(fields []string, out *[3]float64) error {
	if len(fields) != 4 {
		return p.errorf("%s needs 3 values, got %d", fields[0], len(fields)-1)
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return p.errorf("invalid %s value %q", fields[0], fields[i+1])
		}
		out[i] = v
	}
	return nil
}

func (p *reader) readScalars(fields []string, points int) (Array, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return Array{}, p.errorf("malformed SCALARS line")
	}
	a := Array{Name: fields[1], Type: DataType(strings.ToLower(fields[2]))}
	if a.Type.Size() == 0 {
		return Array{}, p.errorf("unsupported scalar type %q", fields[2])
	}
	comps := 1
	if len(fields) == 4 {
		n, err := strconv.Atoi(fields[3])
		if err != nil || n < 1 || n > 4 {
			return Array{}, p.errorf("invalid component count %q", fields[3])
		}
		comps = n
	}

	lut, err := p.nextLine()
	if err != nil {
		return Array{}, p.errorf("missing LOOKUP_TABLE for %q", a.Name)
	}
	if f := strings.Fields(lut); !strings.EqualFold(f[0], "LOOKUP_TABLE") || len(f) != 2 {
		return Array{}, p.errorf("expected LOOKUP_TABLE, got %q", lut)
	}

	total := points * comps
	raw := make([]float64, total)
	if p.binary {
		err = p.readBinary(a.Type, raw)
	} else {
		err = p.readASCII(a.Type, raw)
	}
	if err != nil {
		return Array{}, err
	}

	if comps == 1 {
		a.Values = raw
		return a, nil
	}
	// keep the first component of each tuple
	a.Values = make([]float64, points)
	for i := range a.Values {
		a.Values[i] = raw[i*comps]
	}
	return a, nil
}

// skipAttribute reads past a point or cell attribute this package does not
// keep. Each of the count tuples holds a fixed number of components.
func (p *reader) skipAttribute(keyword string, fields []string, count int) error {
	var comps int
	var t DataType
	switch keyword {
	case "VECTORS", "NORMALS", "TENSORS":
		if len(fields) != 3 {
			return p.errorf("malformed %s line", keyword)
		}
		comps = 3
		if keyword == "TENSORS" {
			comps = 9
		}
		t = DataType(strings.ToLower(fields[2]))
	case "TEXTURE_COORDINATES":
		if len(fields) != 4 {
			return p.errorf("malformed %s line", keyword)
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 || n > 3 {
			return p.errorf("invalid texture dimension %q", fields[2])
		}
		comps, t = n, DataType(strings.ToLower(fields[3]))
	case "COLOR_SCALARS":
		if len(fields) != 3 {
			return p.errorf("malformed %s line", keyword)
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 {
			return p.errorf("invalid color component count %q", fields[2])
		}
		return p.skipColors(count * n)
	}
	if t.Size() == 0 {
		return p.errorf("unsupported %s type %q", keyword, t)
	}
	return p.skipValues(t, count*comps)
}

// skipField reads past a FIELD block: a header naming the number of arrays,
// then per array a "name components tuples type" line and its values.
func (p *reader) skipField(fields []string) error {
	if len(fields) != 3 {
		return p.errorf("malformed FIELD line")
	}
	arrays, err := strconv.Atoi(fields[2])
	if err != nil || arrays < 0 {
		return p.errorf("invalid FIELD array count %q", fields[2])
	}
	for i := 0; i < arrays; i++ {
		line, err := p.nextLine()
		if err != nil {
			return p.errorf("missing FIELD array %d of %d", i+1, arrays)
		}
		f := strings.Fields(line)
		if len(f) == 1 && strings.EqualFold(f[0], "NULL_ARRAY") {
			continue
		}
		if len(f) != 4 {
			return p.errorf("malformed FIELD array line %q", line)
		}
		comps, cerr := strconv.Atoi(f[1])
		tuples, terr := strconv.Atoi(f[2])
		if cerr != nil || terr != nil || comps < 1 || tuples < 0 {
			return p.errorf("invalid FIELD array size in %q", line)
		}
		t := DataType(strings.ToLower(f[3]))
		if t.Size() == 0 {
			return p.errorf("unsupported FIELD array type %q", f[3])
		}
		if err := p.skipValues(t, comps*tuples); err != nil {
			return err
		}
	}
	return nil
}

// skipColors reads past n color components: floats in ASCII files and
// unsigned chars in binary ones.
func (p *reader) skipColors(n int) error {
	if p.binary {
		return p.skipValues(UnsignedChar, n)
	}
	return p.skipValues(Float, n)
}

// skipValues reads past n values of type t, checking ASCII values parse.
func (p *reader) skipValues(t DataType, n int) error {
	if p.binary {
		size := int64(t.Size()) * int64(n)
		if _, err := io.CopyN(io.Discard, p.r, size); err != nil {
			return p.errorf("truncated binary data: %v", err)
		}
		return nil
	}
	// parse in bounded chunks so large skipped arrays need no big buffer
	buf := make([]float64, min(n, 4096))
	for n > 0 {
		chunk := buf[:min(n, len(buf))]
		if err := p.readASCII(t, chunk); err != nil {
			return err
		}
		n -= len(chunk)
	}
	return nil
}

func (p *reader) readASCII(t DataType, out []float64) error {
	for i := range out {
		tok, err := p.token()
		if err == io.EOF {
			return p.errorf("unexpected end of data: got %d of %d values", i, len(out))
		}
		if err != nil {
			return errors.Wrap(err, "read vtk data")
		}
		var v float64
		if t.Integral() {
			n, perr := strconv.ParseInt(tok, 10, 64)
			v, err = float64(n), perr
		} else {
			v, err = strconv.ParseFloat(tok, 64)
		}
		if err != nil {
			return &ParseError{Line: p.line + 1, Msg: fmt.Sprintf("invalid %s value %q", t, tok)}
		}
		out[i] = v
	}
	return nil
}

func (p *reader) readBinary(t DataType, out []float64) error {
	size := t.Size()
	buf := make([]byte, size*len(out))
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return p.errorf("truncated binary data: %v", err)
	}
	be := binary.BigEndian
	for i := range out {
		b := buf[i*size : (i+1)*size]
		switch t {
		case UnsignedChar:
			out[i] = float64(b[0])
		case Char:
			out[i] = float64(int8(b[0]))
		case UnsignedShort:
			out[i] = float64(be.Uint16(b))
		case Short:
			out[i] = float64(int16(be.Uint16(b)))
		case UnsignedInt:
			out[i] = float64(be.Uint32(b))
		case Int:
			out[i] = float64(int32(be.Uint32(b)))
		case UnsignedLong:
			out[i] = float64(be.Uint64(b))
		case Long:
			out[i] = float64(int64(be.Uint64(b)))
		case Float:
			out[i] = float64(math.Float32frombits(be.Uint32(b)))
		case Double:
			out[i] = math.Float64frombits(be.Uint64(b))
		}
	}
	return nil
}

// ReadStructuredPoints reads a file and returns its active scalars as a
// volume.
func ReadStructuredPoints(r io.Reader) (*models.Volume, error) {
	ds, err := Read(r)
	if err != nil {
		return nil, err
	}
	return ds.Volume("")
}

// ReadFile reads the dataset stored at path.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open vtk file")
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ds, nil
}
