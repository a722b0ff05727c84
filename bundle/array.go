package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobeaver/filestag"
)

// Array is an n-dimensional numeric array in row-major order. Data holds
// one of []float64, []float32, []int64, []int32, []int16, []int8, []uint64,
// []uint32, []uint16, []uint8 or []bool.
//
// Arrays are stored in the .npy v1.0 format.
type Array struct {
	Shape []int
	Data  any
}

// NewArray checks that data matches shape. A nil shape describes a
// one-dimensional array over all of data.
func NewArray(shape []int, data any) (*Array, error) {
	n, err := dataLen(data)
	if err != nil {
		return nil, err
	}
	if shape == nil {
		shape = []int{n}
	}
	a := &Array{Shape: shape, Data: data}
	if a.Size() != n {
		return nil, fmt.Errorf("%w: shape %v holds %d values, data has %d", filestag.ErrInvalidConfig, shape, a.Size(), n)
	}
	return a, nil
}

// Size returns the number of elements described by the shape.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

var npyMagic = []byte("\x93NUMPY")

type dtype struct {
	descr string
	make  func(n int) any
}

var dtypes = map[string]dtype{
	"f8": {"<f8", func(n int) any { return make([]float64, n) }},
	"f4": {"<f4", func(n int) any { return make([]float32, n) }},
	"i8": {"<i8", func(n int) any { return make([]int64, n) }},
	"i4": {"<i4", func(n int) any { return make([]int32, n) }},
	"i2": {"<i2", func(n int) any { return make([]int16, n) }},
	"i1": {"|i1", func(n int) any { return make([]int8, n) }},
	"u8": {"<u8", func(n int) any { return make([]uint64, n) }},
	"u4": {"<u4", func(n int) any { return make([]uint32, n) }},
	"u2": {"<u2", func(n int) any { return make([]uint16, n) }},
	"u1": {"|u1", func(n int) any { return make([]uint8, n) }},
	"b1": {"|b1", func(n int) any { return make([]bool, n) }},
}

func typeCode(data any) (string, error) {
	switch data.(type) {
	case []float64:
		return "f8", nil
	case []float32:
		return "f4", nil
	case []int64:
		return "i8", nil
	case []int32:
		return "i4", nil
	case []int16:
		return "i2", nil
	case []int8:
		return "i1", nil
	case []uint64:
		return "u8", nil
	case []uint32:
		return "u4", nil
	case []uint16:
		return "u2", nil
	case []uint8:
		return "u1", nil
	case []bool:
		return "b1", nil
	}
	return "", fmt.Errorf("%w: array data of type %T", filestag.ErrNotSupported, data)
}

func dataLen(data any) (int, error) {
	if _, err := typeCode(data); err != nil {
		return 0, err
	}
	return binary.Size(data) / elemSize(data), nil
}

func elemSize(data any) int {
	switch data.(type) {
	case []float64, []int64, []uint64:
		return 8
	case []float32, []int32, []uint32:
		return 4
	case []int16, []uint16:
		return 2
	}
	return 1
}

// MarshalBinary encodes the array as .npy v1.0.
func (a *Array) MarshalBinary() ([]byte, error) {
	code, err := typeCode(a.Data)
	if err != nil {
		return nil, err
	}
	n, _ := dataLen(a.Data)
	if a.Size() != n {
		return nil, fmt.Errorf("%w: shape %v holds %d values, data has %d", filestag.ErrInvalidConfig, a.Shape, a.Size(), n)
	}

	dims := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dtypes[code].descr, shape)

	// magic, version and length take 10 bytes; the header ends in a newline
	// and pads the data start to a multiple of 64
	total := 10 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		return nil, err
	}
	buf.WriteString(header)
	if err := binary.Write(&buf, binary.LittleEndian, a.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	descrPattern   = regexp.MustCompile(`'descr':\s*'([<>|=])([a-z])(\d+)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// UnmarshalBinary decodes .npy data of format version 1.0 or 2.0.
func (a *Array) UnmarshalBinary(data []byte) error {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return fmt.Errorf("%w: not an npy stream", filestag.ErrCorrupt)
	}

	var headerLen, offset int
	switch data[6] {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return fmt.Errorf("%w: truncated npy header", filestag.ErrCorrupt)
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return fmt.Errorf("%w: npy version %d", filestag.ErrNotSupported, data[6])
	}
	if len(data) < offset+headerLen {
		return fmt.Errorf("%w: truncated npy header", filestag.ErrCorrupt)
	}
	header := string(data[offset : offset+headerLen])
	body := data[offset+headerLen:]

	descr := descrPattern.FindStringSubmatch(header)
	fortran := fortranPattern.FindStringSubmatch(header)
	shapeMatch := shapePattern.FindStringSubmatch(header)
	if descr == nil || fortran == nil || shapeMatch == nil {
		return fmt.Errorf("%w: malformed npy header %q", filestag.ErrCorrupt, header)
	}
	if fortran[1] == "True" {
		return fmt.Errorf("%w: fortran ordered arrays", filestag.ErrNotSupported)
	}

	dt, ok := dtypes[descr[2]+descr[3]]
	if !ok {
		return fmt.Errorf("%w: npy dtype %s%s", filestag.ErrNotSupported, descr[2], descr[3])
	}
	var order binary.ByteOrder = binary.LittleEndian
	if descr[1] == ">" {
		order = binary.BigEndian
	}

	shape := []int{}
	for _, part := range strings.Split(shapeMatch[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(strings.TrimSuffix(part, "L"))
		if err != nil || d < 0 {
			return fmt.Errorf("%w: npy shape %q", filestag.ErrCorrupt, shapeMatch[1])
		}
		shape = append(shape, d)
	}

	size, _ := strconv.Atoi(descr[3])
	count, ok := elementCount(shape, size)
	if !ok || count*size != len(body) {
		return fmt.Errorf("%w: npy body holds %d bytes, shape %v does not match", filestag.ErrCorrupt, len(body), shape)
	}

	a.Shape = shape
	a.Data = dt.make(count)
	return binary.Read(bytes.NewReader(body), order, a.Data)
}

// elementCount multiplies the dimensions, reporting false when the array
// could not fit in memory.
func elementCount(shape []int, itemSize int) (int, bool) {
	count := 1
	for _, d := range shape {
		if d != 0 && count > math.MaxInt/itemSize/d {
			return 0, false
		}
		count *= d
	}
	return count, true
}
