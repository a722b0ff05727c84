package filestag

import (
	"context"
	"io"
)

// SliceCursor serves a listing that was materialized up front. Disk and
// archive backends use it since their listings are cheap to build.
type SliceCursor struct {
	entries []FileListEntry
	pos     int
}

// NewSliceCursor returns a cursor over entries.
func NewSliceCursor(entries []FileListEntry) *SliceCursor {
	return &SliceCursor{entries: entries}
}

// Next implements Cursor.
func (c *SliceCursor) Next(ctx context.Context) (FileListEntry, error) {
	select {
	case <-ctx.Done():
		return FileListEntry{}, ctx.Err()
	default:
	}
	if c.pos >= len(c.entries) {
		return FileListEntry{}, io.EOF
	}
	e := c.entries[c.pos]
	c.pos++
	return e, nil
}

// Close implements Cursor.
func (c *SliceCursor) Close() error {
	c.entries = nil
	return nil
}

var _ Cursor = (*SliceCursor)(nil)
