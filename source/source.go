// Package source enumerates and reads files of any backend through one
// interface. A Source applies the search mask, search path, sharding and a
// user filter on top of a raw backend listing and fetches the accepted
// files lazily.
//
// Example:
//
//	src, err := source.Open(ctx, source.Path("/data/images.zip"),
//	    source.WithSearchMask("*.png"),
//	    source.WithShard(4, workerIndex),
//	)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for el, err := range src.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    process(el.Name, el.Data)
//	}
package source

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/gobeaver/filestag"
)

// Element is one file produced by the enumeration.
type Element struct {
	// Name is the output name, relative to the search path. A filter may
	// have renamed it.
	Name string
	// Entry holds the listing metadata under the original name.
	Entry filestag.FileListEntry
	// Data is nil in names-only mode.
	Data []byte
}

// item is one snapshot row.
type item struct {
	name  string
	entry filestag.FileListEntry
}

// Source is a filtered, optionally snapshotted view on a backend.
type Source struct {
	mu       sync.Mutex
	backend  filestag.Backend
	opts     Options
	mask     *filestag.Mask
	base     string
	snapshot []item
	names    map[string]struct{}
	reduced  bool
	stats    *Stats
	closed   bool
}

// New wraps backend. With prefetch enabled (the default) the listing is
// pulled into the snapshot before New returns. The source owns backend and
// closes it with itself, also when New fails.
func New(ctx context.Context, backend filestag.Backend, opts ...Option) (*Source, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return start(ctx, backend, o)
}

func start(ctx context.Context, backend filestag.Backend, o Options) (*Source, error) {
	s, err := newSource(backend, o)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if o.Prefetch {
		if err := s.prefetch(ctx, false); err != nil {
			_ = backend.Close()
			return nil, err
		}
	}
	return s, nil
}

func newSource(backend filestag.Backend, o Options) (*Source, error) {
	if err := o.validate(); err != nil {
		return nil, &filestag.PathError{Op: "open", Path: backend.Identifier(), Err: err}
	}
	mask, err := filestag.CompileMask(o.SearchMask)
	if err != nil {
		return nil, &filestag.PathError{Op: "open", Path: backend.Identifier(), Err: err}
	}
	base := filestag.NormalizeName(o.SearchPath)
	if !filestag.IsValidName(base) {
		return nil, &filestag.PathError{Op: "open", Path: o.SearchPath, Err: filestag.ErrNotAllowed}
	}
	return &Source{
		backend: backend,
		opts:    o,
		mask:    mask,
		base:    base,
	}, nil
}

func (s *Source) log() *slog.Logger {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Backend returns the wrapped backend.
func (s *Source) Backend() filestag.Backend {
	return s.backend
}

// Identifier names the backend and search path.
func (s *Source) Identifier() string {
	if s.base == "" {
		return s.backend.Identifier()
	}
	return s.backend.Identifier() + "/" + s.base
}

// Options returns a copy of the effective options.
func (s *Source) Options() Options {
	return s.opts
}

func (s *Source) checkOpen(op string) error {
	if s.closed {
		return &filestag.PathError{Op: op, Path: s.Identifier(), Err: filestag.ErrClosed}
	}
	return nil
}

// ============================================================================
// Listing
// ============================================================================

// relative maps a backend name into the search path, reporting false for
// names outside of it.
func (s *Source) relative(name string) (string, bool) {
	name = filestag.NormalizeName(name)
	if s.base == "" {
		return name, name != ""
	}
	rel, ok := strings.CutPrefix(name, s.base+"/")
	return rel, ok && rel != ""
}

// accepts applies the search mask and recursion check to a relative name.
func (s *Source) accepts(rel string) bool {
	if !s.opts.Recursive && strings.Contains(rel, "/") {
		return false
	}
	return s.mask.Match(rel)
}

func (s *Source) scanOptions() filestag.ScanOptions {
	return filestag.ScanOptions{
		Prefix:    s.base,
		Recursive: s.opts.Recursive,
		PageSize:  s.opts.PageSize,
	}
}

// nextCandidate pulls the next mask and path matched entry from cur.
func (s *Source) nextCandidate(ctx context.Context, cur filestag.Cursor) (filestag.FileListEntry, error) {
	for {
		e, err := cur.Next(ctx)
		if err != nil {
			return filestag.FileListEntry{}, err
		}
		rel, ok := s.relative(e.Filename)
		if !ok || !s.accepts(rel) {
			continue
		}
		e.Filename = rel
		return e, nil
	}
}

// list performs a full listing of the backend.
func (s *Source) list(ctx context.Context) ([]filestag.FileListEntry, error) {
	cur, err := s.backend.Scan(ctx, s.scanOptions())
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var entries []filestag.FileListEntry
	for {
		e, err := s.nextCandidate(ctx, cur)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

func (s *Source) sortEntries(entries []filestag.FileListEntry) {
	slices.SortStableFunc(entries, func(a, b filestag.FileListEntry) int {
		if s.opts.SortKey != nil {
			if c := s.opts.SortKey(a, b); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
}

// prefetch builds the snapshot, from the listing cache unless relist is
// set. The caller holds no lock.
func (s *Source) prefetch(ctx context.Context, relist bool) error {
	if s.opts.ListingCachePath != "" && !relist {
		entries, ok, err := loadListing(s.opts.ListingCachePath, s.opts.ListingCacheVersion)
		if err != nil {
			s.log().Debug("listing cache unreadable", slog.String("path", s.opts.ListingCachePath), slog.Any("error", err))
		}
		if ok {
			s.log().Debug("listing cache hit", slog.String("path", s.opts.ListingCachePath), slog.Int("files", len(entries)))
			s.setSnapshot(entries, false)
			return nil
		}
		s.log().Debug("listing cache miss", slog.String("path", s.opts.ListingCachePath))
	}

	entries, err := s.list(ctx)
	if err != nil {
		return err
	}
	s.sortEntries(entries)
	s.log().Debug("snapshot", slog.String("source", s.Identifier()), slog.Int("files", len(entries)))

	if s.opts.ListingCachePath != "" {
		if err := saveListing(s.opts.ListingCachePath, entries, s.opts.ListingCacheVersion); err != nil {
			return err
		}
	}
	s.setSnapshot(entries, false)
	return nil
}

func (s *Source) setSnapshot(entries []filestag.FileListEntry, reduced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]item, len(entries))
	names := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		items[i] = item{name: e.Filename, entry: e}
		names[e.Filename] = struct{}{}
	}
	s.snapshot = items
	s.names = names
	s.reduced = reduced
	s.stats = nil
}

// ============================================================================
// Snapshot access
// ============================================================================

// HasSnapshot reports whether the source iterates a snapshot.
func (s *Source) HasSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot != nil
}

// Snapshot returns a copy of the snapshot entries under their output
// names, nil without a snapshot.
func (s *Source) Snapshot() []filestag.FileListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	out := make([]filestag.FileListEntry, len(s.snapshot))
	for i, it := range s.snapshot {
		out[i] = it.entry
		out[i].Filename = it.name
	}
	return out
}

// Names returns the output names of the snapshot.
func (s *Source) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.snapshot))
	for i, it := range s.snapshot {
		out[i] = it.name
	}
	return out
}

// Len returns the number of snapshot entries, 0 without a snapshot.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshot)
}

// Reduced reports whether Reduce has been applied to the snapshot.
func (s *Source) Reduced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reduced
}

// SetSnapshot replaces the snapshot with an explicit list. Entries are
// sorted like a fetched listing.
func (s *Source) SetSnapshot(entries []filestag.FileListEntry) {
	list := make([]filestag.FileListEntry, len(entries))
	for i, e := range entries {
		e.Filename = filestag.NormalizeName(e.Filename)
		list[i] = e
	}
	s.sortEntries(list)
	s.setSnapshot(list, false)
}

// SetSnapshotNames replaces the snapshot with names of unknown size.
func (s *Source) SetSnapshotNames(names ...string) {
	entries := make([]filestag.FileListEntry, len(names))
	for i, n := range names {
		entries[i] = filestag.FileListEntry{Filename: n, Size: -1}
	}
	s.SetSnapshot(entries)
}

// Refresh drops the snapshot and lists the backend again, bypassing the
// listing cache. A previous Reduce is undone.
func (s *Source) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkOpen("refresh"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.snapshot = nil
	s.names = nil
	s.reduced = false
	s.stats = nil
	s.mu.Unlock()

	return s.prefetch(ctx, true)
}

// Reduce applies the shard, the filter and the max count to the snapshot
// once. Later iterations serve the reduced snapshot without calling the
// filter again. A source without a snapshot is listed first.
func (s *Source) Reduce(ctx context.Context) error {
	if !s.HasSnapshot() {
		if err := s.prefetch(ctx, false); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("reduce"); err != nil {
		return err
	}
	if s.reduced {
		return nil
	}

	kept := make([]item, 0, len(s.snapshot))
	for i, it := range s.snapshot {
		if s.opts.MaxCount > 0 && len(kept) >= s.opts.MaxCount {
			break
		}
		name, ok := s.decide(i, it.entry)
		if !ok {
			continue
		}
		kept = append(kept, item{name: name, entry: it.entry})
	}

	names := make(map[string]struct{}, len(kept))
	for _, it := range kept {
		names[it.name] = struct{}{}
	}
	s.snapshot = kept
	s.names = names
	s.reduced = true
	s.stats = nil
	s.log().Debug("snapshot reduced", slog.String("source", s.Identifier()), slog.Int("files", len(kept)))
	return nil
}

// decide runs the shard check and the filter for the candidate at index.
func (s *Source) decide(index int, e filestag.FileListEntry) (string, bool) {
	if s.opts.ShardCount > 0 && index%s.opts.ShardCount != s.opts.ShardIndex {
		return "", false
	}
	name := e.Filename
	if s.opts.Filter != nil {
		r := s.opts.Filter.Apply(Candidate{Index: index, Name: name, Entry: e})
		switch r.Action {
		case Skip:
			return "", false
		case Rename:
			if r.Name != "" {
				name = r.Name
			}
		}
	}
	return name, true
}

// ============================================================================
// Direct access
// ============================================================================

// Fetch reads name relative to the search path. Disk and archive backends
// fail with ErrNotExist for unknown names, cloud backends return nil data.
func (s *Source) Fetch(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	err := s.checkOpen("fetch")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rel := filestag.NormalizeName(name)
	if rel == "" || !filestag.IsValidName(rel) {
		return nil, &filestag.PathError{Op: "fetch", Path: name, Err: filestag.ErrNotAllowed}
	}
	full := filestag.JoinName(s.base, rel)

	cacheKey := s.backend.Identifier() + "/" + full
	if s.opts.FetchCache != nil {
		if v, ok := s.opts.FetchCache.Get(cacheKey); ok {
			if data, ok := v.([]byte); ok {
				s.log().Debug("fetch cache hit", slog.String("name", full))
				return data, nil
			}
		}
	}

	data, err := s.backend.Read(ctx, full)
	if err != nil {
		return nil, err
	}
	if s.opts.FetchCache != nil && data != nil {
		s.opts.FetchCache.Set(cacheKey, data, s.opts.FetchCacheTTL)
	}
	return data, nil
}

// Exists reports whether name is part of the source. With a snapshot the
// answer comes from it, otherwise the backend is asked.
func (s *Source) Exists(ctx context.Context, name string) (bool, error) {
	rel := filestag.NormalizeName(name)

	s.mu.Lock()
	if err := s.checkOpen("exists"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if s.names != nil {
		_, ok := s.names[rel]
		s.mu.Unlock()
		return ok, nil
	}
	s.mu.Unlock()

	if rel == "" || !filestag.IsValidName(rel) {
		return false, nil
	}
	return s.backend.Exists(ctx, filestag.JoinName(s.base, rel))
}

// CopyTo stores every accepted element in sink and returns the number of
// stored files. Existing targets are skipped unless overwrite is set.
func (s *Source) CopyTo(ctx context.Context, sink filestag.Sink, overwrite bool) (int, error) {
	if s.opts.NamesOnly {
		return 0, &filestag.PathError{Op: "copy", Path: s.Identifier(), Err: fmt.Errorf("%w: names-only sources carry no data", filestag.ErrNotSupported)}
	}

	stored := 0
	for el, err := range s.All(ctx) {
		if err != nil {
			return stored, err
		}
		ok, err := sink.Store(ctx, el.Name, el.Data, overwrite)
		if err != nil {
			if filestag.IsExist(err) {
				continue
			}
			return stored, err
		}
		if ok {
			stored++
		}
	}
	return stored, nil
}

// Close releases the backend. Closing twice returns ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &filestag.PathError{Op: "close", Path: s.Identifier(), Err: filestag.ErrClosed}
	}
	s.closed = true
	return s.backend.Close()
}
