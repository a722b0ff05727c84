package zip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/gobeaver/filestag"
)

// DefaultCompression is the compression used by NewSink without options.
const DefaultCompression = 20

// Sink collects files into an in-memory ZIP container. Entries keep their
// insertion order; the container is only assembled on Close.
type Sink struct {
	mu          sync.Mutex
	entries     []sinkEntry
	index       map[string]int
	compression int
	closed      bool
	data        []byte
}

type sinkEntry struct {
	name     string
	data     []byte
	modified time.Time
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithCompression sets the compression on a 0..100 scale. 0 stores entries
// uncompressed, every 10 points raise the deflate level by one up to 9.
func WithCompression(compression int) SinkOption {
	return func(s *Sink) {
		s.compression = compression
	}
}

// NewSink creates an empty in-memory archive sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		index:       make(map[string]int),
		compression: DefaultCompression,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// level maps the 0..100 compression scale to a deflate level. Zero means
// entries are stored.
func (s *Sink) level() int {
	level := s.compression / 10
	if s.compression > 0 && level == 0 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	if level < 0 {
		level = 0
	}
	return level
}

// Store implements filestag.Sink. Overwriting replaces the entry in place.
func (s *Sink) Store(ctx context.Context, name string, data []byte, overwrite bool) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrClosed}
	}

	normalized := normalizePath(name)
	if normalized == "" || !isValidPath(normalized) {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrInvalidName}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	entry := sinkEntry{name: normalized, data: buf, modified: time.Now()}

	if i, exists := s.index[normalized]; exists {
		if !overwrite {
			return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrExist}
		}
		s.entries[i] = entry
		return true, nil
	}

	s.index[normalized] = len(s.entries)
	s.entries = append(s.entries, entry)
	return true, nil
}

// Names returns the stored names in insertion order.
func (s *Sink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Close assembles the container. Closing twice returns ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &filestag.PathError{Op: "close", Path: "archive", Err: filestag.ErrClosed}
	}

	data, err := s.build()
	if err != nil {
		return err
	}
	s.data = data
	s.entries = nil
	s.index = nil
	s.closed = true
	return nil
}

func (s *Sink) build() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	level := s.level()
	method := zip.Store
	if level > 0 {
		method = zip.Deflate
		w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			fw, err := flate.NewWriter(out, level)
			if err != nil {
				return nil, err
			}
			return fw, nil
		})
	}

	for _, e := range s.entries {
		header := &zip.FileHeader{
			Name:     e.name,
			Method:   method,
			Modified: e.modified,
		}
		fw, err := w.CreateHeader(header)
		if err != nil {
			return nil, &filestag.PathError{Op: "close", Path: e.name, Err: err}
		}
		if _, err := fw.Write(e.data); err != nil {
			return nil, &filestag.PathError{Op: "close", Path: e.name, Err: err}
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Bytes returns the finished container. It is only available after Close.
func (s *Sink) Bytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		return nil, &filestag.PathError{Op: "bytes", Path: "archive", Err: fmt.Errorf("%w: sink not closed", filestag.ErrNotAllowed)}
	}
	return s.data, nil
}

var _ filestag.Sink = (*Sink)(nil)
