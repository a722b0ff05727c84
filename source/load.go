package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/archive"
)

// ReadFile loads a single file addressed by an archive:// URI, an
// http(s):// URL, a file:// URI or a local path. Options other than the
// registry, fetcher, config and logger are ignored.
func ReadFile(ctx context.Context, uri string, opts ...Option) ([]byte, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case archive.IsArchiveURI(uri):
		return o.registry().ReadFile(uri)
	case isWebURL(uri):
		return o.fetcher().Fetch(ctx, uri)
	}

	p, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filestag.PathError{Op: "read", Path: uri, Err: filestag.ErrNotExist}
		}
		return nil, &filestag.PathError{Op: "read", Path: uri, Err: err}
	}
	return data, nil
}

// FileExists reports whether uri names an existing file. Web resources are
// checked by fetching them.
func FileExists(ctx context.Context, uri string, opts ...Option) (bool, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case archive.IsArchiveURI(uri):
		return o.registry().Exists(uri)
	case isWebURL(uri):
		_, err := o.fetcher().Fetch(ctx, uri)
		if err != nil {
			if filestag.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	p, err := localPath(uri)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &filestag.PathError{Op: "exists", Path: uri, Err: err}
	}
	return info.Mode().IsRegular(), nil
}

func localPath(uri string) (string, error) {
	p := strings.TrimPrefix(uri, FileScheme)
	if p == "" {
		return "", &filestag.PathError{Op: "read", Path: uri, Err: filestag.ErrInvalidName}
	}
	if strings.Contains(p, "://") {
		return "", &filestag.PathError{Op: "read", Path: uri, Err: fmt.Errorf("%w: unknown scheme", filestag.ErrNotSupported)}
	}
	return p, nil
}

func (o *Options) registry() *archive.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return archive.Default()
}
