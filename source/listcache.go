package source

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/bundle"
)

// Listing cache record keys. The record is a bundle of
// {"version": 1, "data": <frame>, "cache_version": <caller version>}.
const (
	listingFormat     = 1
	keyVersion        = "version"
	keyData           = "data"
	keyCacheVersion   = "cache_version"
	columnFilename    = "filename"
	columnSize        = "file_size"
	columnCreated     = "created"
	columnModified    = "modified"
	anyListingVersion = -1
)

// EncodeListing serializes entries into a listing cache record.
func EncodeListing(entries []filestag.FileListEntry, version int) ([]byte, error) {
	names := make([]string, len(entries))
	sizes := make([]int64, len(entries))
	created := make([]time.Time, len(entries))
	modified := make([]time.Time, len(entries))
	for i, e := range entries {
		names[i] = e.Filename
		sizes[i] = e.Size
		created[i] = e.Created
		modified[i] = e.Modified
	}

	frame, err := bundle.NewFrame(
		bundle.Column{Name: columnFilename, Values: names},
		bundle.Column{Name: columnSize, Values: sizes},
		bundle.Column{Name: columnCreated, Values: created},
		bundle.Column{Name: columnModified, Values: modified},
	)
	if err != nil {
		return nil, err
	}
	return bundle.Pack(map[string]any{
		keyVersion:      listingFormat,
		keyData:         frame,
		keyCacheVersion: version,
	})
}

// DecodeListing parses a listing cache record. It reports false when the
// record was written for another version; a version of -1 accepts any.
func DecodeListing(data []byte, version int) ([]filestag.FileListEntry, bool, error) {
	v, err := bundle.Unpack(data)
	if err != nil {
		return nil, false, err
	}
	record, ok := v.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: listing record is %T", filestag.ErrCorrupt, v)
	}
	if record[keyVersion] != listingFormat {
		return nil, false, fmt.Errorf("%w: unknown listing format %v", filestag.ErrCorrupt, record[keyVersion])
	}
	if version != anyListingVersion && record[keyCacheVersion] != version {
		return nil, false, nil
	}

	frame, ok := record[keyData].(*bundle.Frame)
	if !ok {
		return nil, false, fmt.Errorf("%w: listing data is %T", filestag.ErrCorrupt, record[keyData])
	}
	names, err := frame.Strings(columnFilename)
	if err != nil {
		return nil, false, err
	}
	sizes, err := frame.Int64s(columnSize)
	if err != nil {
		return nil, false, err
	}
	created, err := frame.Times(columnCreated)
	if err != nil {
		return nil, false, err
	}
	modified, err := frame.Times(columnModified)
	if err != nil {
		return nil, false, err
	}

	entries := make([]filestag.FileListEntry, len(names))
	for i := range names {
		entries[i] = filestag.FileListEntry{
			Filename: names[i],
			Size:     sizes[i],
			Created:  created[i],
			Modified: modified[i],
		}
	}
	return entries, true, nil
}

// loadListing reads the record at path. A missing file is a miss, not an
// error.
func loadListing(path string, version int) ([]filestag.FileListEntry, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &filestag.PathError{Op: "read", Path: path, Err: err}
	}
	entries, ok, err := DecodeListing(data, version)
	if err != nil {
		return nil, false, &filestag.PathError{Op: "read", Path: path, Err: err}
	}
	return entries, ok, nil
}

func saveListing(path string, entries []filestag.FileListEntry, version int) error {
	data, err := EncodeListing(entries, version)
	if err != nil {
		return &filestag.PathError{Op: "write", Path: path, Err: err}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &filestag.PathError{Op: "write", Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &filestag.PathError{Op: "write", Path: path, Err: err}
	}
	return nil
}
