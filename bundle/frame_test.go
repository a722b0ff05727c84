package bundle

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gobeaver/filestag"
)

func TestFrameRoundTrip(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	f, err := NewFrame(
		Column{Name: "filename", Values: []string{"a.txt", "b.txt"}},
		Column{Name: "size", Values: []int64{10, -1}},
		Column{Name: "score", Values: []float64{0.5, 1}},
		Column{Name: "hidden", Values: []bool{false, true}},
		Column{Name: "modified", Values: []time.Time{modified, {}}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Frame
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", got.Len())
	}
	if !reflect.DeepEqual(got.Columns[:4], f.Columns[:4]) {
		t.Errorf("expected %#v, got %#v", f.Columns[:4], got.Columns[:4])
	}

	times, err := got.Times("modified")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !times[0].Equal(modified) || !times[1].IsZero() {
		t.Errorf("unexpected times %v", times)
	}
}

func TestFrameEmpty(t *testing.T) {
	f, err := NewFrame(Column{Name: "filename", Values: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Frame
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names, err := got.Strings("filename")
	if err != nil || names == nil || len(names) != 0 {
		t.Errorf("expected empty column, got %#v %v", names, err)
	}
}

func TestFrameErrors(t *testing.T) {
	_, err := NewFrame(
		Column{Name: "a", Values: []string{"x"}},
		Column{Name: "b", Values: []int64{1, 2}},
	)
	if !errors.Is(err, filestag.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for ragged columns, got %v", err)
	}

	_, err = NewFrame(Column{Name: "a", Values: []int{1}})
	if !errors.Is(err, filestag.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}

	f, _ := NewFrame(Column{Name: "a", Values: []string{"x"}})
	if _, err := f.Int64s("a"); !errors.Is(err, filestag.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := f.Strings("missing"); !errors.Is(err, filestag.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
