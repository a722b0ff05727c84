package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/gobeaver/filestag"
)

// Kinds that are recorded in the element properties because a JSON round
// trip would otherwise turn them into int or float64.
var recordedKinds = map[reflect.Kind]bool{
	reflect.Int8: true, reflect.Int16: true, reflect.Int32: true, reflect.Int64: true,
	reflect.Uint: true, reflect.Uint8: true, reflect.Uint16: true, reflect.Uint32: true, reflect.Uint64: true,
	reflect.Float32: true,
}

// isInline reports whether v can be written into the manifest. Nested
// lists and maps must consist of inline values themselves.
func isInline(v any) bool {
	switch x := v.(type) {
	case nil, bool, string:
		return true
	case Tuple:
		return allInline(x)
	case []any:
		return allInline(x)
	case map[string]any:
		for _, e := range x {
			if !isInline(e) {
				return false
			}
		}
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Float64:
		// named types such as time.Duration are not plain numbers
		return reflect.TypeOf(v).PkgPath() == ""
	}
	return recordedKinds[reflect.TypeOf(v).Kind()] && reflect.TypeOf(v).PkgPath() == ""
}

func allInline(values []any) bool {
	for _, e := range values {
		if !isInline(e) {
			return false
		}
	}
	return true
}

// inlineKind returns the kind recorded for a top level scalar, "" when the
// default decoding restores it exactly.
func inlineKind(v any) string {
	if v == nil {
		return ""
	}
	k := reflect.TypeOf(v).Kind()
	if recordedKinds[k] {
		return k.String()
	}
	return ""
}

// kindNode mirrors the shape of an inline collection and records the
// values a plain decode would not restore exactly. A nil node records
// nothing.
type kindNode struct {
	Kind   string               `json:"k,omitempty"`
	Items  []*kindNode          `json:"i,omitempty"`
	Fields map[string]*kindNode `json:"f,omitempty"`
}

const tupleKind = "tuple"

func kindsOf(v any) *kindNode {
	switch x := v.(type) {
	case Tuple:
		return &kindNode{Kind: tupleKind, Items: itemKinds(x)}
	case []any:
		if items := itemKinds(x); items != nil {
			return &kindNode{Items: items}
		}
		return nil
	case map[string]any:
		fields := make(map[string]*kindNode)
		for k, e := range x {
			if n := kindsOf(e); n != nil {
				fields[k] = n
			}
		}
		if len(fields) == 0 {
			return nil
		}
		return &kindNode{Fields: fields}
	}
	if kind := inlineKind(v); kind != "" {
		return &kindNode{Kind: kind}
	}
	return nil
}

func itemKinds(values []any) []*kindNode {
	var items []*kindNode
	for i, e := range values {
		n := kindsOf(e)
		if n == nil {
			continue
		}
		if items == nil {
			items = make([]*kindNode, len(values))
		}
		items[i] = n
	}
	return items
}

// nestedKinds returns the kinds tree of a top level collection, nil when
// it holds only default kinds. A top level tuple is flagged on the element
// itself.
func nestedKinds(v any) *kindNode {
	switch v.(type) {
	case Tuple, []any, map[string]any:
	default:
		return nil
	}
	n := kindsOf(v)
	if n != nil && n.Kind == tupleKind {
		if n.Items == nil {
			return nil
		}
		n.Kind = ""
	}
	return n
}

// restoreKinds walks a decoded value along n.
func restoreKinds(v any, n *kindNode) (any, error) {
	if n == nil {
		return v, nil
	}

	switch {
	case n.Items != nil || n.Kind == tupleKind:
		list, ok := v.([]any)
		if !ok || (n.Items != nil && len(n.Items) != len(list)) {
			return nil, fmt.Errorf("%w: kinds recorded for a list do not match %T", filestag.ErrCorrupt, v)
		}
		for i, c := range n.Items {
			e, err := restoreKinds(list[i], c)
			if err != nil {
				return nil, err
			}
			list[i] = e
		}
		if n.Kind == tupleKind {
			return Tuple(list), nil
		}
		return list, nil
	case n.Fields != nil:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: kinds recorded for a map do not match %T", filestag.ErrCorrupt, v)
		}
		for k, c := range n.Fields {
			e, ok := m[k]
			if !ok {
				return nil, fmt.Errorf("%w: kind recorded for missing key %q", filestag.ErrCorrupt, k)
			}
			e, err := restoreKinds(e, c)
			if err != nil {
				return nil, err
			}
			m[k] = e
		}
		return m, nil
	}
	return restoreKind(v, n.Kind)
}

// encodeInline writes v as JSON. Floats always carry a fraction or an
// exponent so they decode as floats again.
func encodeInline(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(x))
		return nil
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	case Tuple:
		return encodeList(buf, x)
	case []any:
		return encodeList(buf, x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeInline(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %v cannot be stored inline", filestag.ErrNotSupported, f)
		}
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		s := strconv.FormatFloat(f, 'g', -1, bits)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	default:
		return fmt.Errorf("%w: %T cannot be stored inline", filestag.ErrNotSupported, v)
	}
	return nil
}

func encodeList(buf *bytes.Buffer, values []any) error {
	buf.WriteByte('[')
	for i, e := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeInline(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// decodeInline parses an inline value. Numbers without fraction or
// exponent become int, all others float64.
func decodeInline(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return convertNumbers(v)
}

func convertNumbers(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if strings.ContainsAny(s, ".eE") {
			return x.Float64()
		}
		if i, err := strconv.ParseInt(s, 10, strconv.IntSize); err == nil {
			return int(i), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
		return x.Float64()
	case []any:
		for i, e := range x {
			c, err := convertNumbers(e)
			if err != nil {
				return nil, err
			}
			x[i] = c
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			c, err := convertNumbers(e)
			if err != nil {
				return nil, err
			}
			x[k] = c
		}
		return x, nil
	}
	return v, nil
}

// restoreKind converts a decoded number back to its recorded kind.
func restoreKind(v any, kind string) (any, error) {
	if kind == "" {
		return v, nil
	}

	var i int64
	var u uint64
	var f float64
	switch x := v.(type) {
	case int:
		i, u, f = int64(x), uint64(x), float64(x)
	case uint64:
		i, u, f = int64(x), x, float64(x)
	case float64:
		i, u, f = int64(x), uint64(x), x
	default:
		return nil, fmt.Errorf("%w: kind %s recorded for %T", filestag.ErrCorrupt, kind, v)
	}

	switch kind {
	case "int8":
		return int8(i), nil
	case "int16":
		return int16(i), nil
	case "int32":
		return int32(i), nil
	case "int64":
		return i, nil
	case "uint":
		return uint(u), nil
	case "uint8":
		return uint8(u), nil
	case "uint16":
		return uint16(u), nil
	case "uint32":
		return uint32(u), nil
	case "uint64":
		return u, nil
	case "float32":
		return float32(f), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", filestag.ErrCorrupt, kind)
}
