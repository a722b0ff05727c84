package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/zip"
)

func roundTrip(t *testing.T, r *Registry, v any) any {
	t.Helper()
	data, err := r.Pack(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := r.Unpack(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestPackInline(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		value any
	}{
		{"dict", map[string]any{"x": 5, "y": []any{1, 2, 3}}},
		{"list", []any{"a", 1.5, true, nil}},
		{"tuple", Tuple{1, "a", true}},
		{"single int", 42},
		{"single string", "hello"},
		{"whole float", 3.0},
		{"nested map", map[string]any{"cfg": map[string]any{"depth": 2, "scale": 0.25, "tags": []any{"a", "b"}}}},
		{"int32 kind", int32(-7)},
		{"float32 kind", float32(1.5)},
		{"uint64 kind", uint64(1) << 63},
		{"tuple in dict", map[string]any{"size": Tuple{640, 480}}},
		{"nested kinds", map[string]any{"a": []any{int64(7), float32(1.5), uint8(3)}}},
		{"kinds in nested map", map[string]any{"cfg": map[string]any{"depth": int16(-3), "name": "x", "ids": []any{1, uint32(2)}}}},
		{"nested tuple", []any{[]any{Tuple{1, 2}, "a"}}},
		{"tuple of kinds", Tuple{int8(1), "x", Tuple{float32(0.5)}}},
		{"empty dict", map[string]any{}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, r, tt.value)
			want := tt.value
			if m, ok := want.(map[string]any); ok && len(m) == 0 {
				want = map[string]any{}
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected %#v, got %#v", want, got)
			}
		})
	}
}

func TestTupleStaysTuple(t *testing.T) {
	got := roundTrip(t, NewRegistry(), Tuple{1, "a", true})
	if _, ok := got.(Tuple); !ok {
		t.Fatalf("expected Tuple, got %T", got)
	}

	got = roundTrip(t, NewRegistry(), []any{1, "a", true})
	if _, ok := got.([]any); !ok {
		t.Fatalf("expected []any, got %T", got)
	}
}

func TestPackAdvanced(t *testing.T) {
	r := NewRegistry()

	arr, err := NewArray([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, err := NewFrame(
		Column{Name: "filename", Values: []string{"a.txt", "b.txt"}},
		Column{Name: "size", Values: []int64{1, -1}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := map[string]any{
		"raw":   []byte{0, 1, 2},
		"grid":  arr,
		"table": frame,
		"count": 2,
	}
	got := roundTrip(t, r, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("expected %#v, got %#v", in, got)
	}
}

func TestPackUnsupported(t *testing.T) {
	_, err := NewRegistry().Pack(map[string]any{"when": time.Now()})
	if !errors.Is(err, filestag.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}

	_, err = NewRegistry().Pack(map[string]any{ManifestName: 1})
	if !errors.Is(err, filestag.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestInlineKeysNeedNoStreamName(t *testing.T) {
	r := NewRegistry()
	for _, key := range []string{"", "a\\b", "dir/", "./x", "../up"} {
		in := map[string]any{key: 1, "list": []any{key}}
		got := roundTrip(t, r, in)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("key %q: expected %#v, got %#v", key, in, got)
		}
	}

	for _, key := range []string{"", "a\\b", "./x"} {
		_, err := r.Pack(map[string]any{key: []byte("raw")})
		if !errors.Is(err, filestag.ErrInvalidName) {
			t.Errorf("key %q: expected ErrInvalidName, got %v", key, err)
		}
	}
}

type point struct{ X, Y int }

func TestRegisterType(t *testing.T) {
	r := NewRegistry()
	RegisterType(r, "point", func(p point) ([]byte, error) {
		return json.Marshal(p)
	}, func(data []byte) (point, error) {
		var p point
		err := json.Unmarshal(data, &p)
		return p, err
	})

	got := roundTrip(t, r, Tuple{point{1, 2}, "label"})
	want := Tuple{point{1, 2}, "label"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}

	data, err := r.Pack(point{3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewRegistry().Unpack(data); !errors.Is(err, filestag.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestManifestWrittenLast(t *testing.T) {
	arr, _ := NewArray(nil, []int32{1, 2, 3})
	data, err := NewRegistry().Pack(map[string]any{"a": []byte("x"), "b": arr, "c": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := zip.OpenBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	want := []string{"a", "b", ManifestName}
	if got := a.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected entries %v, got %v", want, got)
	}

	m, err := ReadManifest(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SourceType != SourceDict || !reflect.DeepEqual(m.Keys, []string{"a", "b", "c"}) {
		t.Errorf("unexpected manifest %+v", m)
	}
	if m.Elements["b"].DataType != ArrayTag || m.Elements["c"].DataType != "" {
		t.Errorf("unexpected element types %+v", m.Elements)
	}
}

// buildContainer writes raw entries in order, bypassing Pack.
func buildContainer(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	s := zip.NewSink()
	for _, e := range entries {
		if _, err := s.Store(context.Background(), e[0], []byte(e[1]), true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := s.Bytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func TestUnpackCorrupt(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"not a zip", []byte("plain text"), filestag.ErrCorrupt},
		{"missing manifest", buildContainer(t, [2]string{"a", "x"}), filestag.ErrCorrupt},
		{"bad manifest json", buildContainer(t, [2]string{ManifestName, "{"}), filestag.ErrCorrupt},
		{
			"missing stream",
			buildContainer(t, [2]string{ManifestName, `{"version":1,"source_type":"dict","keys":["a"],"elements":{"a":{"version":1,"data_type":"bytes"}}}`}),
			filestag.ErrCorrupt,
		},
		{
			"missing element",
			buildContainer(t, [2]string{ManifestName, `{"version":1,"source_type":"list","keys":["__0000__"],"elements":{}}`}),
			filestag.ErrCorrupt,
		},
		{
			"unknown tag",
			buildContainer(t, [2]string{"a", "x"}, [2]string{ManifestName, `{"version":1,"source_type":"dict","keys":["a"],"elements":{"a":{"version":1,"data_type":"pandas.core.frame.DataFrame"}}}`}),
			filestag.ErrUnknownType,
		},
		{
			"kinds do not match value",
			buildContainer(t, [2]string{ManifestName, `{"version":1,"source_type":"dict","keys":["a"],"elements":{"a":{"version":1,"data":1,"properties":{"kinds":"{\"i\":[{\"k\":\"int8\"}]}"}}}}`}),
			filestag.ErrCorrupt,
		},
		{
			"oversized array",
			buildContainer(t,
				[2]string{"grid", string(npyStream("{'descr': '<f8', 'fortran_order': False, 'shape': (4611686018427387904,), }", make([]byte, 8)))},
				[2]string{ManifestName, `{"version":1,"source_type":"dict","keys":["grid"],"elements":{"grid":{"version":1,"data_type":"NumpyBundler"}}}`},
			),
			filestag.ErrCorrupt,
		},
		{
			"digest mismatch",
			buildContainer(t, [2]string{"a", "tampered"}, [2]string{ManifestName, `{"version":1,"source_type":"dict","keys":["a"],"elements":{"a":{"version":1,"data_type":"bytes","properties":{"digest":"sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"}}}}`}),
			filestag.ErrCorrupt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Unpack(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPackageLevel(t *testing.T) {
	data, err := Pack([]any{[]byte("payload")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := got.([]any)
	if !ok || len(list) != 1 || !bytes.Equal(list[0].([]byte), []byte("payload")) {
		t.Errorf("unexpected result %#v", got)
	}
}
