package zip

import (
	"context"
	"strings"

	"github.com/gobeaver/filestag"
)

// Backend exposes an Archive as a file source backend.
type Backend struct {
	archive *Archive
	owned   bool
}

// NewBackend wraps a. When owned is false the archive belongs to someone
// else, typically the shared archive registry, and Close leaves it open.
func NewBackend(a *Archive, owned bool) *Backend {
	return &Backend{archive: a, owned: owned}
}

// Archive returns the wrapped archive.
func (b *Backend) Archive() *Archive {
	return b.archive
}

// Identifier implements filestag.Backend
func (b *Backend) Identifier() string {
	return b.archive.Identifier()
}

// Scan implements filestag.Backend. The central directory is already in
// memory, so the cursor serves a prefix-filtered copy of it.
func (b *Backend) Scan(ctx context.Context, opts filestag.ScanOptions) (filestag.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prefix := normalizePath(opts.Prefix)
	all := b.archive.Entries()
	if prefix == "" {
		return filestag.NewSliceCursor(all), nil
	}

	entries := make([]filestag.FileListEntry, 0, len(all))
	for _, e := range all {
		if strings.HasPrefix(e.Filename, prefix+"/") {
			entries = append(entries, e)
		}
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
	return b.archive.ReadFile(name)
}

// Exists implements filestag.Backend
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	return b.archive.Exists(name), nil
}

// Close implements filestag.Backend
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.archive.Close()
}

var _ filestag.Backend = (*Backend)(nil)
