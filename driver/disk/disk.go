package disk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/filestag"
)

// Backend serves files below a local directory.
type Backend struct {
	root string
}

// New creates a backend rooted at root. The directory must exist.
func New(root string) (*Backend, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &filestag.PathError{Op: "open", Path: root, Err: err}
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filestag.PathError{Op: "open", Path: root, Err: filestag.ErrNotExist}
		}
		return nil, &filestag.PathError{Op: "open", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &filestag.PathError{Op: "open", Path: root, Err: filestag.ErrInvalidName}
	}

	return &Backend{root: absRoot}, nil
}

// Root returns the absolute root directory.
func (b *Backend) Root() string {
	return b.root
}

// Identifier implements filestag.Backend
func (b *Backend) Identifier() string {
	return b.root
}

// Scan implements filestag.Backend. The listing is built with one directory
// walk and served from memory.
func (b *Backend) Scan(ctx context.Context, opts filestag.ScanOptions) (filestag.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prefix := filestag.NormalizeName(opts.Prefix)
	if !filestag.IsValidName(prefix) {
		return nil, &filestag.PathError{Op: "scan", Path: opts.Prefix, Err: filestag.ErrNotAllowed}
	}
	start := filepath.Join(b.root, filepath.FromSlash(prefix))

	info, err := os.Stat(start)
	if err != nil || !info.IsDir() {
		// a missing search path is an empty listing
		return filestag.NewSliceCursor(nil), nil
	}

	var entries []filestag.FileListEntry
	err = filepath.WalkDir(start, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if walkPath != start && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(b.root, walkPath)
		if err != nil {
			return err
		}

		entries = append(entries, filestag.FileListEntry{
			Filename: filepath.ToSlash(rel),
			Size:     info.Size(),
			Created:  createdTime(info),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, &filestag.PathError{Op: "scan", Path: start, Err: err}
	}

	return filestag.NewSliceCursor(entries), nil
}

// Read implements filestag.Backend
func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath, err := b.resolve("read", name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filestag.PathError{Op: "read", Path: name, Err: filestag.ErrNotExist}
		}
		return nil, &filestag.PathError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// Exists implements filestag.Backend
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	fullPath, err := b.resolve("exists", name)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &filestag.PathError{Op: "exists", Path: name, Err: err}
	}
	return !info.IsDir(), nil
}

// Close implements filestag.Backend
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) resolve(op, name string) (string, error) {
	fullPath := filepath.Join(b.root, filepath.FromSlash(filestag.NormalizeName(name)))
	if !isPathUnderRoot(b.root, fullPath) {
		return "", &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotAllowed}
	}
	return fullPath, nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var _ filestag.Backend = (*Backend)(nil)
