package zip

import (
	"bytes"
	"crypto/md5" //nolint:gosec // MD5 identifies in-memory archives, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/gobeaver/filestag"
)

// Archive is a read handle on a ZIP container kept on disk or in memory.
// Its central directory is indexed once when opened.
type Archive struct {
	mu     sync.Mutex
	path   string
	id     string
	reader *zip.Reader
	closer io.Closer
	files  map[string]*zip.File
	order  []string
	closed bool
}

// OpenFile opens the archive at zipPath. With cache set, the whole file is
// loaded into memory and the file handle is released immediately.
func OpenFile(zipPath string, cache bool) (*Archive, error) {
	if cache {
		data, err := os.ReadFile(zipPath)
		if err != nil {
			return nil, mapOpenError(zipPath, err)
		}
		a, err := newArchive(data, zipPath)
		if err != nil {
			return nil, err
		}
		a.path = zipPath
		a.id = zipPath
		return a, nil
	}

	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, mapOpenError(zipPath, err)
	}

	a := &Archive{
		path:   zipPath,
		id:     zipPath,
		reader: &rc.Reader,
		closer: rc,
	}
	a.index()
	return a, nil
}

// OpenBytes opens an archive held in memory. Its identifier is derived from
// the content so identical blobs share cache keys.
func OpenBytes(data []byte) (*Archive, error) {
	return newArchive(data, "memory")
}

func newArchive(data []byte, name string) (*Archive, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, mapOpenError(name, err)
	}

	sum := md5.Sum(data) //nolint:gosec // MD5 identifies in-memory archives, not security
	a := &Archive{
		id:     "memory:" + hex.EncodeToString(sum[:]),
		reader: reader,
	}
	a.index()
	return a, nil
}

func mapOpenError(name string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &filestag.PathError{Op: "open", Path: name, Err: filestag.ErrNotExist}
	case errors.Is(err, zip.ErrFormat), errors.Is(err, zip.ErrAlgorithm), errors.Is(err, zip.ErrChecksum):
		return &filestag.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)}
	default:
		return &filestag.PathError{Op: "open", Path: name, Err: err}
	}
}

// index builds the name lookup in central directory order. Directory
// entries and names escaping the archive root are ignored.
func (a *Archive) index() {
	a.files = make(map[string]*zip.File, len(a.reader.File))
	for _, f := range a.reader.File {
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(f.Name)
		if name == "" || !isValidPath(name) {
			continue
		}
		if _, dup := a.files[name]; !dup {
			a.order = append(a.order, name)
		}
		a.files[name] = f
	}
}

// Path returns the file the archive was opened from, "" for in-memory data.
func (a *Archive) Path() string {
	return a.path
}

// Identifier returns the archive path or a content hash for in-memory data.
func (a *Archive) Identifier() string {
	return a.id
}

// Len returns the number of file entries.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Names returns the file names in central directory order.
func (a *Archive) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Entries returns the listing of the archive in central directory order.
func (a *Archive) Entries() []filestag.FileListEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]filestag.FileListEntry, 0, len(a.order))
	for _, name := range a.order {
		f := a.files[name]
		entries = append(entries, filestag.FileListEntry{
			Filename: name,
			Size:     int64(f.UncompressedSize64),
			Modified: f.Modified,
		})
	}
	return entries
}

// Exists reports whether the archive holds name.
func (a *Archive) Exists(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.files[normalizePath(name)]
	return ok
}

// ReadFile returns the uncompressed content of name.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, &filestag.PathError{Op: "read", Path: name, Err: filestag.ErrClosed}
	}

	f, ok := a.files[normalizePath(name)]
	if !ok {
		return nil, &filestag.PathError{Op: "read", Path: name, Err: filestag.ErrNotExist}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &filestag.PathError{Op: "read", Path: name, Err: fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) {
			err = fmt.Errorf("%w: %v", filestag.ErrCorrupt, err)
		}
		return nil, &filestag.PathError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// Close releases the file handle. Closing an in-memory archive only marks
// it closed; closing twice is a no-op.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// normalizePath trims slashes and cleans an entry name.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return path.Clean(p)
}

func isValidPath(p string) bool {
	return p != ".." && !strings.HasPrefix(p, "../")
}
