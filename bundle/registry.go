package bundle

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/zip"
)

// Packer turns a value into its type tag and payload.
type Packer func(v any) (tag string, data []byte, err error)

// Unpacker restores a value from a payload written by the matching Packer.
type Unpacker func(data []byte) (any, error)

// Registry holds the codecs for values that cannot be stored inline in the
// manifest. Packers are keyed by the Go type name of the value, unpackers
// by the tag the packer recorded.
type Registry struct {
	mu          sync.Mutex
	packers     map[string]Packer
	unpackers   map[string]Unpacker
	baseOnce    sync.Once
	compression int
}

// Option configures a Registry.
type Option func(*Registry)

// WithCompression sets the compression of payload streams on the 0..100
// scale of the archive sink.
func WithCompression(compression int) Option {
	return func(r *Registry) {
		r.compression = compression
	}
}

// NewRegistry creates a registry. The base codecs for []byte, *Array and
// *Frame are added on first use unless a codec was registered for them
// before.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		packers:     make(map[string]Packer),
		unpackers:   make(map[string]Unpacker),
		compression: zip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the registry used by the package level Pack and Unpack.
func Default() *Registry {
	return defaultRegistry
}

// RegisterPacker registers p for values whose TypeName is typeName.
func (r *Registry) RegisterPacker(typeName string, p Packer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packers[typeName] = p
}

// RegisterUnpacker registers u for payloads tagged with tag.
func (r *Registry) RegisterUnpacker(tag string, u Unpacker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unpackers[tag] = u
}

// RegisterType registers a typed codec pair for T under tag.
func RegisterType[T any](r *Registry, tag string, pack func(T) ([]byte, error), unpack func([]byte) (T, error)) {
	var zero T
	r.RegisterPacker(TypeName(reflect.TypeOf(&zero).Elem()), func(v any) (string, []byte, error) {
		data, err := pack(v.(T))
		return tag, data, err
	})
	r.RegisterUnpacker(tag, func(data []byte) (any, error) {
		return unpack(data)
	})
}

func (r *Registry) ensureBase() {
	r.baseOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		base := []struct {
			typeName string
			tag      string
			pack     Packer
			unpack   Unpacker
		}{
			{"[]uint8", BytesTag, packBytes, unpackBytes},
			{TypeName(reflect.TypeOf((*Array)(nil))), ArrayTag, packArray, unpackArray},
			{TypeName(reflect.TypeOf((*Frame)(nil))), FrameTag, packFrame, unpackFrame},
		}
		for _, b := range base {
			if _, ok := r.packers[b.typeName]; !ok {
				r.packers[b.typeName] = b.pack
			}
			if _, ok := r.unpackers[b.tag]; !ok {
				r.unpackers[b.tag] = b.unpack
			}
		}
	})
}

func (r *Registry) packer(typeName string) (Packer, bool) {
	r.ensureBase()
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.packers[typeName]
	return p, ok
}

func (r *Registry) unpacker(tag string) (Unpacker, bool) {
	r.ensureBase()
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.unpackers[tag]
	return u, ok
}

// TypeName returns the fully qualified name packers are registered under,
// for example "*github.com/gobeaver/filestag/bundle.Array".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + TypeName(t.Elem())
	}
	if t.PkgPath() != "" && t.Name() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// Base codec tags.
const (
	BytesTag = "bytes"
	ArrayTag = "NumpyBundler"
	FrameTag = "filestag.Frame"
)

func packBytes(v any) (string, []byte, error) {
	return BytesTag, v.([]byte), nil
}

func unpackBytes(data []byte) (any, error) {
	return data, nil
}

func packArray(v any) (string, []byte, error) {
	a := v.(*Array)
	if a == nil {
		return "", nil, fmt.Errorf("%w: nil array", filestag.ErrNotSupported)
	}
	data, err := a.MarshalBinary()
	return ArrayTag, data, err
}

func unpackArray(data []byte) (any, error) {
	a := &Array{}
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return a, nil
}

func packFrame(v any) (string, []byte, error) {
	f := v.(*Frame)
	if f == nil {
		return "", nil, fmt.Errorf("%w: nil frame", filestag.ErrNotSupported)
	}
	data, err := f.MarshalBinary()
	return FrameTag, data, err
}

func unpackFrame(data []byte) (any, error) {
	f := &Frame{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}
