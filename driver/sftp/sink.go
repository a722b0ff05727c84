package sftp

import (
	"context"
	"errors"
	"os"
	"path"

	"github.com/gobeaver/filestag"
)

// Sink writes files below the base path of a connected Backend.
type Sink struct {
	backend    *Backend
	createDirs bool
	closed     bool
}

// NewSink creates a sink sharing the connection of b. Closing the sink
// closes the connection.
func NewSink(b *Backend, createDirs bool) *Sink {
	return &Sink{backend: b, createDirs: createDirs}
}

// Store implements filestag.Sink
func (s *Sink) Store(ctx context.Context, name string, data []byte, overwrite bool) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if s.closed {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrClosed}
	}

	client, err := s.backend.sftpClient()
	if err != nil {
		return false, filestag.NewPathError("store", name, err)
	}

	full, ok := s.backend.fullPath(name)
	if !ok || full == s.backend.basePath {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrInvalidName}
	}

	if s.createDirs {
		if err := client.MkdirAll(path.Dir(full)); err != nil {
			return false, mapSFTPError("store", name, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := client.OpenFile(full, flags)
	if err != nil {
		if !overwrite {
			if _, statErr := client.Stat(full); statErr == nil {
				return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrExist}
			}
		}
		if !s.createDirs && errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, mapSFTPError("store", name, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, mapSFTPError("store", name, err)
	}
	if err := f.Close(); err != nil {
		return false, mapSFTPError("store", name, err)
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

	if s.closed {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrClosed}
	}

	client, err := s.backend.sftpClient()
	if err != nil {
		return false, filestag.NewPathError("delete", name, err)
	}

	full, ok := s.backend.fullPath(name)
	if !ok || full == s.backend.basePath {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrInvalidName}
	}

	if err := client.Remove(full); err != nil {
		mapped := mapSFTPError("delete", name, err)
		if filestag.IsNotExist(mapped) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Close implements filestag.Sink
func (s *Sink) Close() error {
	if s.closed {
		return &filestag.PathError{Op: "close", Path: s.backend.Identifier(), Err: filestag.ErrClosed}
	}
	s.closed = true
	return s.backend.Close()
}

var (
	_ filestag.Sink      = (*Sink)(nil)
	_ filestag.CanDelete = (*Sink)(nil)
)
