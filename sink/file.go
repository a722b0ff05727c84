package sink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/archive"
)

// WriteFile stores data at target, replacing an existing file. target is a
// local path or a cloud or sftp URI whose last segment names the file; the
// rest of it is opened as a sink.
func WriteFile(ctx context.Context, target string, data []byte, opts ...Option) error {
	if data == nil {
		return &filestag.PathError{Op: "write", Path: redact(target), Err: fmt.Errorf("%w: no data", filestag.ErrInvalidConfig)}
	}
	parent, name, err := splitTarget(target)
	if err != nil {
		return err
	}

	_, err = Use(ctx, parent, func(s filestag.Sink) error {
		ok, err := s.Store(ctx, name, data, true)
		if err == nil && !ok {
			err = &filestag.PathError{Op: "write", Path: redact(target), Err: filestag.ErrNotExist}
		}
		return err
	}, opts...)
	return err
}

// Delete removes the file at target and reports whether it existed.
// Directories are never created or recreated on the way.
func Delete(ctx context.Context, target string, opts ...Option) (bool, error) {
	parent, name, err := splitTarget(target)
	if err != nil {
		return false, err
	}

	opts = append(opts, WithCreateDirs(false), WithCreateContainer(false), WithRecreateContainer(false))
	s, err := Open(ctx, parent, opts...)
	if err != nil {
		return false, err
	}

	d, ok := s.(filestag.CanDelete)
	if !ok {
		_ = s.Close()
		return false, &filestag.PathError{Op: "delete", Path: redact(target), Err: fmt.Errorf("%w: %T cannot delete", filestag.ErrNotSupported, s)}
	}
	deleted, err := d.Delete(ctx, name)
	if closeErr := s.Close(); closeErr != nil {
		return deleted, errors.Join(err, closeErr)
	}
	return deleted, err
}

// splitTarget separates the sink target holding a file from the file name.
func splitTarget(target string) (parent, name string, err error) {
	if archive.IsArchiveURI(target) {
		return "", "", &filestag.PathError{Op: "write", Path: target, Err: fmt.Errorf("%w: archive entries cannot be addressed", filestag.ErrNotSupported)}
	}

	p := strings.TrimPrefix(target, "file://")
	if p != "" && !strings.Contains(p, "://") {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", "", &filestag.PathError{Op: "write", Path: target, Err: err}
		}
		if strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(filepath.Separator)) {
			return "", "", &filestag.PathError{Op: "write", Path: target, Err: filestag.ErrInvalidName}
		}
		return filepath.Dir(abs), filepath.Base(abs), nil
	}

	base, query, hasQuery := strings.Cut(target, "?")
	schemeEnd := strings.Index(base, "://")
	i := strings.LastIndex(base, "/")
	if schemeEnd < 0 || i <= schemeEnd+2 || i == len(base)-1 {
		return "", "", &filestag.PathError{Op: "write", Path: redact(target), Err: filestag.ErrInvalidName}
	}
	parent, name = base[:i], base[i+1:]
	if hasQuery {
		parent += "?" + query
	}
	return parent, name, nil
}
