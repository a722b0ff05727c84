package bundle

import (
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gobeaver/filestag"
)

// Frame is a small column oriented table. Every column holds one of
// []string, []int64, []float64, []bool or []time.Time and all columns have
// the same length.
type Frame struct {
	Columns []Column
}

// Column is a named column of a Frame.
type Column struct {
	Name   string
	Values any
}

// Column kinds on the wire.
const (
	kindString = "string"
	kindInt    = "int64"
	kindFloat  = "float64"
	kindBool   = "bool"
	kindTime   = "time"
)

// zeroTime marks a zero time.Time, which has no unix nano representation.
const zeroTime = math.MinInt64

// NewFrame validates the columns and returns a frame holding them.
func NewFrame(columns ...Column) (*Frame, error) {
	f := &Frame{Columns: columns}
	if _, err := f.rows(); err != nil {
		return nil, err
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	n, _ := f.rows()
	return n
}

func (f *Frame) rows() (int, error) {
	rows := -1
	seen := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		if seen[c.Name] {
			return 0, fmt.Errorf("%w: duplicate column %q", filestag.ErrInvalidConfig, c.Name)
		}
		seen[c.Name] = true

		n, err := columnLen(c.Values)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", c.Name, err)
		}
		if rows >= 0 && n != rows {
			return 0, fmt.Errorf("%w: column %q has %d rows, want %d", filestag.ErrInvalidConfig, c.Name, n, rows)
		}
		rows = n
	}
	if rows < 0 {
		rows = 0
	}
	return rows, nil
}

func columnLen(values any) (int, error) {
	switch v := values.(type) {
	case []string:
		return len(v), nil
	case []int64:
		return len(v), nil
	case []float64:
		return len(v), nil
	case []bool:
		return len(v), nil
	case []time.Time:
		return len(v), nil
	}
	return 0, fmt.Errorf("%w: column values of type %T", filestag.ErrNotSupported, values)
}

// Column returns the column called name.
func (f *Frame) Column(name string) (Column, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Strings returns the values of a string column.
func (f *Frame) Strings(name string) ([]string, error) {
	return columnAs[[]string](f, name)
}

// Int64s returns the values of an int64 column.
func (f *Frame) Int64s(name string) ([]int64, error) {
	return columnAs[[]int64](f, name)
}

// Times returns the values of a time column.
func (f *Frame) Times(name string) ([]time.Time, error) {
	return columnAs[[]time.Time](f, name)
}

func columnAs[T any](f *Frame, name string) (T, error) {
	var zero T
	c, ok := f.Column(name)
	if !ok {
		return zero, fmt.Errorf("%w: column %q", filestag.ErrNotExist, name)
	}
	v, ok := c.Values.(T)
	if !ok {
		return zero, fmt.Errorf("%w: column %q holds %T", filestag.ErrInvalidConfig, name, c.Values)
	}
	return v, nil
}

type wireFrame struct {
	Version int          `cbor:"version"`
	Rows    int          `cbor:"rows"`
	Columns []wireColumn `cbor:"columns"`
}

type wireColumn struct {
	Name    string    `cbor:"name"`
	Kind    string    `cbor:"kind"`
	Strings []string  `cbor:"s,omitempty"`
	Ints    []int64   `cbor:"i,omitempty"`
	Floats  []float64 `cbor:"f,omitempty"`
	Bools   []bool    `cbor:"b,omitempty"`
}

var (
	frameEncMode cbor.EncMode
	frameDecMode cbor.DecMode
)

func init() {
	var err error
	frameEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bundle: CBOR encoder initialization failed: " + err.Error())
	}
	frameDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("bundle: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalBinary encodes the frame as deterministic CBOR.
func (f *Frame) MarshalBinary() ([]byte, error) {
	rows, err := f.rows()
	if err != nil {
		return nil, err
	}

	w := wireFrame{Version: 1, Rows: rows, Columns: make([]wireColumn, 0, len(f.Columns))}
	for _, c := range f.Columns {
		wc := wireColumn{Name: c.Name}
		switch v := c.Values.(type) {
		case []string:
			wc.Kind, wc.Strings = kindString, v
		case []int64:
			wc.Kind, wc.Ints = kindInt, v
		case []float64:
			wc.Kind, wc.Floats = kindFloat, v
		case []bool:
			wc.Kind, wc.Bools = kindBool, v
		case []time.Time:
			wc.Kind = kindTime
			wc.Ints = make([]int64, len(v))
			for i, t := range v {
				if t.IsZero() {
					wc.Ints[i] = zeroTime
					continue
				}
				wc.Ints[i] = t.UnixNano()
			}
		}
		w.Columns = append(w.Columns, wc)
	}
	return frameEncMode.Marshal(w)
}

// UnmarshalBinary decodes a frame written by MarshalBinary. Times are
// restored in UTC.
func (f *Frame) UnmarshalBinary(data []byte) error {
	var w wireFrame
	if err := frameDecMode.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)
	}

	columns := make([]Column, 0, len(w.Columns))
	for _, wc := range w.Columns {
		var values any
		var n int
		switch wc.Kind {
		case kindString:
			values, n = nonNil(wc.Strings), len(wc.Strings)
		case kindInt:
			values, n = nonNil(wc.Ints), len(wc.Ints)
		case kindFloat:
			values, n = nonNil(wc.Floats), len(wc.Floats)
		case kindBool:
			values, n = nonNil(wc.Bools), len(wc.Bools)
		case kindTime:
			times := make([]time.Time, len(wc.Ints))
			for i, ns := range wc.Ints {
				if ns == zeroTime {
					continue
				}
				times[i] = time.Unix(0, ns).UTC()
			}
			values, n = times, len(times)
		default:
			return fmt.Errorf("%w: column %q has kind %q", filestag.ErrCorrupt, wc.Name, wc.Kind)
		}
		if n != w.Rows {
			return fmt.Errorf("%w: column %q has %d rows, want %d", filestag.ErrCorrupt, wc.Name, n, w.Rows)
		}
		columns = append(columns, Column{Name: wc.Name, Values: values})
	}
	f.Columns = columns
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
