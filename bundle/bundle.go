// Package bundle packs structured values into a single ZIP container and
// restores them. Plain values (nil, bool, numbers, strings and lists or
// maps of those) are stored inline in a JSON manifest; every other value is
// handed to a registered codec and stored as its own stream.
//
// The manifest is always the last entry of the container:
//
//	data, err := bundle.Pack(map[string]any{"x": 5, "grid": arr})
//	v, err := bundle.Unpack(data)
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/zip"
)

// ManifestName is the reserved container entry holding the manifest.
const ManifestName = "__bundle_info.json"

// Version of the manifest layout.
const Version = 1

// Source shapes recorded in the manifest.
const (
	SourceDict   = "dict"
	SourceList   = "list"
	SourceTuple  = "tuple"
	SourceSingle = "single"
)

// Property keys of a manifest element.
const (
	PropKind   = "kind"
	PropKinds  = "kinds"
	PropDigest = "digest"
)

// Tuple is an ordered list that restores as a Tuple instead of a []any.
type Tuple []any

// Manifest describes the content of a bundle.
type Manifest struct {
	Version    int                 `json:"version"`
	SourceType string              `json:"source_type"`
	Keys       []string            `json:"keys"`
	Elements   map[string]*Element `json:"elements"`
}

// Element is one manifest entry. Inline values carry Data, advanced values
// carry the DataType tag of the codec that wrote the stream named by the
// element key.
type Element struct {
	Version    int               `json:"version"`
	DataType   string            `json:"data_type,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Tuple      bool              `json:"tuple,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Pack bundles v with the default registry.
func Pack(v any) ([]byte, error) {
	return defaultRegistry.Pack(v)
}

// Unpack restores a bundle with the default registry.
func Unpack(data []byte) (any, error) {
	return defaultRegistry.Unpack(data)
}

func positionalKey(i int) string {
	return fmt.Sprintf("__%04d__", i)
}

// Pack bundles a map[string]any, a []any, a Tuple or a single value.
func (r *Registry) Pack(v any) ([]byte, error) {
	var (
		sourceType string
		keys       []string
		values     = make(map[string]any)
	)

	switch x := v.(type) {
	case map[string]any:
		sourceType = SourceDict
		for k, e := range x {
			keys = append(keys, k)
			values[k] = e
		}
		sort.Strings(keys)
	case Tuple:
		sourceType = SourceTuple
		for i, e := range x {
			keys = append(keys, positionalKey(i))
			values[keys[i]] = e
		}
	case []any:
		sourceType = SourceList
		for i, e := range x {
			keys = append(keys, positionalKey(i))
			values[keys[i]] = e
		}
	default:
		sourceType = SourceSingle
		keys = []string{positionalKey(0)}
		values[keys[0]] = v
	}

	manifest := Manifest{
		Version:    Version,
		SourceType: sourceType,
		Keys:       keys,
		Elements:   make(map[string]*Element, len(keys)),
	}

	ctx := context.Background()
	sink := zip.NewSink(zip.WithCompression(r.compression))

	for _, key := range keys {
		if key == ManifestName {
			return nil, &filestag.PathError{Op: "bundle", Path: key, Err: fmt.Errorf("%w: reserved key", filestag.ErrInvalidConfig)}
		}

		value := values[key]
		el := &Element{Version: Version}

		if isInline(value) {
			var buf bytes.Buffer
			if err := encodeInline(&buf, value); err != nil {
				return nil, &filestag.PathError{Op: "bundle", Path: key, Err: err}
			}
			el.Data = buf.Bytes()
			if _, ok := value.(Tuple); ok {
				el.Tuple = true
			}
			if kind := inlineKind(value); kind != "" {
				el.Properties = map[string]string{PropKind: kind}
			} else if n := nestedKinds(value); n != nil {
				tree, err := json.Marshal(n)
				if err != nil {
					return nil, &filestag.PathError{Op: "bundle", Path: key, Err: err}
				}
				el.Properties = map[string]string{PropKinds: string(tree)}
			}
			manifest.Elements[key] = el
			continue
		}

		// only advanced values become container entries
		if key == "" || filestag.NormalizeName(key) != key || !filestag.IsValidName(key) {
			return nil, &filestag.PathError{Op: "bundle", Path: key, Err: filestag.ErrInvalidName}
		}

		typeName := TypeName(reflect.TypeOf(value))
		packer, ok := r.packer(typeName)
		if !ok {
			return nil, &filestag.PathError{Op: "bundle", Path: key, Err: fmt.Errorf("%w: no bundler for %s", filestag.ErrNotSupported, typeName)}
		}
		tag, payload, err := packer(value)
		if err != nil {
			return nil, &filestag.PathError{Op: "bundle", Path: key, Err: err}
		}

		el.DataType = tag
		el.Properties = map[string]string{PropDigest: digest.FromBytes(payload).String()}
		if _, err := sink.Store(ctx, key, payload, false); err != nil {
			return nil, err
		}
		manifest.Elements[key] = el
	}

	info, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	// the manifest goes last
	if _, err := sink.Store(ctx, ManifestName, info, false); err != nil {
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	return sink.Bytes()
}

// ReadManifest returns the manifest of a bundle without decoding its
// values.
func ReadManifest(data []byte) (*Manifest, error) {
	a, err := zip.OpenBytes(data)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return readManifest(a)
}

func readManifest(a *zip.Archive) (*Manifest, error) {
	if !a.Exists(ManifestName) {
		return nil, &filestag.PathError{Op: "unpack", Path: ManifestName, Err: fmt.Errorf("%w: bundle info missing", filestag.ErrCorrupt)}
	}
	info, err := a.ReadFile(ManifestName)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(info, &m); err != nil {
		return nil, &filestag.PathError{Op: "unpack", Path: ManifestName, Err: fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)}
	}
	if m.Version > Version {
		return nil, &filestag.PathError{Op: "unpack", Path: ManifestName, Err: fmt.Errorf("%w: manifest version %d", filestag.ErrNotSupported, m.Version)}
	}
	return &m, nil
}

// Unpack restores the value a bundle was created from.
func (r *Registry) Unpack(data []byte) (any, error) {
	a, err := zip.OpenBytes(data)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	m, err := readManifest(a)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(m.Keys))
	for _, key := range m.Keys {
		el, ok := m.Elements[key]
		if !ok {
			return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: element missing from manifest", filestag.ErrCorrupt)}
		}
		v, err := r.unpackElement(a, key, el)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	switch m.SourceType {
	case SourceDict:
		out := make(map[string]any, len(values))
		for i, key := range m.Keys {
			out[key] = values[i]
		}
		return out, nil
	case SourceList:
		return values, nil
	case SourceTuple:
		return Tuple(values), nil
	case SourceSingle:
		if len(values) != 1 {
			return nil, &filestag.PathError{Op: "unpack", Path: ManifestName, Err: fmt.Errorf("%w: single value bundle holds %d elements", filestag.ErrCorrupt, len(values))}
		}
		return values[0], nil
	}
	return nil, &filestag.PathError{Op: "unpack", Path: ManifestName, Err: fmt.Errorf("%w: source type %q", filestag.ErrNotSupported, m.SourceType)}
}

func (r *Registry) unpackElement(a *zip.Archive, key string, el *Element) (any, error) {
	if el.DataType == "" {
		v, err := decodeInline(el.Data)
		if err != nil {
			return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)}
		}
		if tree, ok := el.Properties[PropKinds]; ok {
			var n kindNode
			if err := json.Unmarshal([]byte(tree), &n); err != nil {
				return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)}
			}
			if v, err = restoreKinds(v, &n); err != nil {
				return nil, &filestag.PathError{Op: "unpack", Path: key, Err: err}
			}
		}
		if el.Tuple {
			list, ok := v.([]any)
			if !ok {
				return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: tuple flag on %T", filestag.ErrCorrupt, v)}
			}
			return Tuple(list), nil
		}
		v, err = restoreKind(v, el.Properties[PropKind])
		if err != nil {
			return nil, &filestag.PathError{Op: "unpack", Path: key, Err: err}
		}
		return v, nil
	}

	unpacker, ok := r.unpacker(el.DataType)
	if !ok {
		return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: %s", filestag.ErrUnknownType, el.DataType)}
	}

	payload, err := a.ReadFile(key)
	if err != nil {
		if filestag.IsNotExist(err) {
			return nil, &filestag.PathError{Op: "unpack", Path: key, Err: fmt.Errorf("%w: stream missing", filestag.ErrCorrupt)}
		}
		return nil, err
	}

	if s, ok := el.Properties[PropDigest]; ok {
		if err := verify(s, payload); err != nil {
			return nil, &filestag.PathError{Op: "unpack", Path: key, Err: err}
		}
	}

	v, err := unpacker(payload)
	if err != nil {
		return nil, &filestag.PathError{Op: "unpack", Path: key, Err: err}
	}
	return v, nil
}

func verify(s string, payload []byte) error {
	d, err := digest.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)
	}
	verifier := d.Verifier()
	if _, err := verifier.Write(payload); err != nil {
		return err
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: digest mismatch", filestag.ErrCorrupt)
	}
	return nil
}
