// Package archive keeps ZIP archives open under short identifiers so that
// many readers can address their content through archive:// URIs without
// reopening the container for every file.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/zip"
)

// Source describes where a registered archive comes from.
type Source struct {
	Path string
	Data []byte
}

// FromFile describes an archive file on disk.
func FromFile(path string) Source {
	return Source{Path: path}
}

// FromBytes describes an archive held in memory.
func FromBytes(data []byte) Source {
	return Source{Data: data}
}

func (s Source) String() string {
	if s.Data != nil {
		return fmt.Sprintf("memory(%d bytes)", len(s.Data))
	}
	return s.Path
}

type entry struct {
	archive *zip.Archive
	source  Source
	cached  bool
}

// Registry maps identifiers to open archives. All mutation and all handle
// access is serialized by a single mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry used by archive://@ URIs when
// no registry is passed explicitly. Entries live until unloaded.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Register opens src and stores it under id. If id is already registered
// the existing handle is returned and src is ignored. With cache set a file
// source is loaded into memory once.
func (r *Registry) Register(id string, src Source, cache bool) (*zip.Archive, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, &filestag.PathError{Op: "register", Path: id, Err: filestag.ErrInvalidName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		r.log().Debug("archive already registered", slog.String("id", id), slog.String("source", e.source.String()))
		return e.archive, nil
	}

	var (
		a   *zip.Archive
		err error
	)
	switch {
	case src.Data != nil:
		a, err = zip.OpenBytes(src.Data)
		cache = true
	case src.Path != "":
		a, err = zip.OpenFile(src.Path, cache)
	default:
		err = &filestag.PathError{Op: "register", Path: id, Err: fmt.Errorf("%w: empty archive source", filestag.ErrInvalidConfig)}
	}
	if err != nil {
		return nil, err
	}

	r.entries[id] = &entry{archive: a, source: src, cached: cache}
	r.log().Info("archive registered", slog.String("id", id), slog.String("source", src.String()), slog.Int("files", a.Len()))
	return a, nil
}

// Lookup returns the archive registered under id.
func (r *Registry) Lookup(id string) (*zip.Archive, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.archive, true
}

// Len returns the number of registered archives.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsLoaded reports whether an archive opened from filename is registered.
func (r *Registry) IsLoaded(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByPath(filename) != ""
}

// findByPath returns the id of the entry opened from filename. The caller
// holds r.mu.
func (r *Registry) findByPath(filename string) string {
	want := filepath.Clean(filename)
	for id, e := range r.entries {
		if e.source.Path != "" && filepath.Clean(e.source.Path) == want {
			return id
		}
	}
	return ""
}

// Unload closes and removes the archive registered under key, which is
// either an identifier or the file name it was opened from. It reports
// whether anything was removed.
func (r *Registry) Unload(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := key
	if _, ok := r.entries[id]; !ok {
		id = r.findByPath(key)
		if id == "" {
			return false
		}
	}

	e := r.entries[id]
	delete(r.entries, id)
	if err := e.archive.Close(); err != nil {
		r.log().Warn("closing archive failed", slog.String("id", id), slog.Any("error", err))
	}
	r.log().Info("archive unloaded", slog.String("id", id))
	return true
}

// Close unloads every archive.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, e := range r.entries {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		delete(r.entries, id)
	}
	return errors.Join(errs...)
}

// ReadFile returns the content addressed by an archive:// URI. Registry
// URIs use the registered handle; direct URIs reopen the archive for this
// call only.
func (r *Registry) ReadFile(uri string) ([]byte, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	if u.ID == "" {
		a, err := zip.OpenFile(u.ArchivePath, false)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.ReadFile(u.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[u.ID]
	if !ok {
		return nil, &filestag.PathError{Op: "read", Path: uri, Err: fmt.Errorf("%w: archive %q not registered", filestag.ErrNotExist, u.ID)}
	}
	return e.archive.ReadFile(u.Name)
}

// Exists reports whether uri names a file. Unknown identifiers, missing
// archives and missing names all report false without an error; only a
// malformed URI fails.
func (r *Registry) Exists(uri string) (bool, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return false, err
	}

	if u.ID == "" {
		a, err := zip.OpenFile(u.ArchivePath, false)
		if err != nil {
			if filestag.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		defer a.Close()
		return a.Exists(u.Name), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[u.ID]
	if !ok {
		return false, nil
	}
	return e.archive.Exists(u.Name), nil
}

// Scan lists the files of archive id matching the glob mask. Without long
// only the file names are filled in.
func (r *Registry) Scan(id, mask string, long bool) ([]filestag.FileListEntry, error) {
	m, err := filestag.CompileMask(mask)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, &filestag.PathError{Op: "scan", Path: id, Err: fmt.Errorf("%w: archive not registered", filestag.ErrNotExist)}
	}

	var out []filestag.FileListEntry
	for _, fe := range e.archive.Entries() {
		if !m.Match(fe.Filename) {
			continue
		}
		if !long {
			fe = filestag.FileListEntry{Filename: fe.Filename, Size: -1}
		}
		out = append(out, fe)
	}
	return out, nil
}
