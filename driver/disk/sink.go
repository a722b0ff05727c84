package disk

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/gobeaver/filestag"
)

// Sink writes files below a local directory.
type Sink struct {
	mu         sync.Mutex
	root       string
	createDirs bool
	closed     bool
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithCreateDirs controls whether missing parent directories are created on
// demand. Enabled by default.
func WithCreateDirs(enabled bool) SinkOption {
	return func(s *Sink) {
		s.createDirs = enabled
	}
}

// NewSink creates a sink writing below root.
func NewSink(root string, opts ...SinkOption) (*Sink, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &filestag.PathError{Op: "open", Path: root, Err: err}
	}

	s := &Sink{root: absRoot, createDirs: true}
	for _, opt := range opts {
		opt(s)
	}

	if s.createDirs {
		if err := os.MkdirAll(absRoot, 0o755); err != nil {
			return nil, &filestag.PathError{Op: "open", Path: root, Err: err}
		}
	}
	return s, nil
}

// Store implements filestag.Sink. With directory creation disabled, a
// missing parent directory makes Store return false without an error.
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

	rel := filestag.NormalizeName(name)
	if rel == "" || !filestag.IsValidName(rel) {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrInvalidName}
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !isPathUnderRoot(s.root, fullPath) {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrNotAllowed}
	}

	dir := filepath.Dir(fullPath)
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return false, &filestag.PathError{Op: "store", Path: name, Err: err}
		}
		if !s.createDirs {
			return false, nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, &filestag.PathError{Op: "store", Path: name, Err: err}
		}
	}

	if !overwrite {
		if _, err := os.Stat(fullPath); err == nil {
			return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrExist}
		}
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return false, &filestag.PathError{Op: "store", Path: name, Err: err}
	}
	return true, nil
}

// Delete implements filestag.CanDelete
func (s *Sink) Delete(ctx context.Context, name string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrClosed}
	}

	rel := filestag.NormalizeName(name)
	if rel == "" || !filestag.IsValidName(rel) {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrInvalidName}
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !isPathUnderRoot(s.root, fullPath) {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrNotAllowed}
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &filestag.PathError{Op: "delete", Path: name, Err: err}
	}
	if info.IsDir() {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrNotAllowed}
	}
	if err := os.Remove(fullPath); err != nil {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: err}
	}
	return true, nil
}

// Close implements filestag.Sink
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &filestag.PathError{Op: "close", Path: s.root, Err: filestag.ErrClosed}
	}
	s.closed = true
	return nil
}

var (
	_ filestag.Sink      = (*Sink)(nil)
	_ filestag.CanDelete = (*Sink)(nil)
)
