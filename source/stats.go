package source

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/gobeaver/filestag"
)

// Stats summarizes a snapshot.
type Stats struct {
	FileCount  int
	TotalBytes int64
	DirCount   int
	// Extensions is ordered by descending file count.
	Extensions []ExtensionStats
}

// ExtensionStats groups the files sharing one extension. Files without an
// extension are grouped under "".
type ExtensionStats struct {
	Extension string
	FileCount int
	Bytes     int64
}

// Stats computes the statistics of the snapshot. It returns nil when the
// source has no snapshot. Unknown sizes count as zero.
func (s *Source) Stats() *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return nil
	}
	if s.stats != nil {
		return s.stats
	}

	st := &Stats{FileCount: len(s.snapshot)}
	dirs := make(map[string]struct{})
	byExt := make(map[string]*ExtensionStats)
	for _, it := range s.snapshot {
		size := max(it.entry.Size, 0)
		st.TotalBytes += size
		dirs[path.Dir(it.name)] = struct{}{}

		ext := path.Ext(it.name)
		es, ok := byExt[ext]
		if !ok {
			es = &ExtensionStats{Extension: ext}
			byExt[ext] = es
		}
		es.FileCount++
		es.Bytes += size
	}
	st.DirCount = len(dirs)

	for _, es := range byExt {
		st.Extensions = append(st.Extensions, *es)
	}
	sort.Slice(st.Extensions, func(i, j int) bool {
		a, b := st.Extensions[i], st.Extensions[j]
		if a.FileCount != b.FileCount {
			return a.FileCount > b.FileCount
		}
		return a.Extension < b.Extension
	})

	s.stats = st
	return st
}

// Hash fingerprints the snapshot from names, sizes and timestamps. Files
// up to maxContentSize bytes also contribute their content; 0 disables
// content hashing. A source without a snapshot is listed first.
func (s *Source) Hash(ctx context.Context, maxContentSize int64) (string, error) {
	if !s.HasSnapshot() {
		if err := s.prefetch(ctx, false); err != nil {
			return "", err
		}
	}
	entries := s.Snapshot()

	var content func(filestag.FileListEntry) ([]byte, error)
	if maxContentSize > 0 {
		s.mu.Lock()
		items := s.snapshot
		s.mu.Unlock()
		original := make(map[string]string, len(items))
		for _, it := range items {
			original[it.name] = it.entry.Filename
		}

		content = func(e filestag.FileListEntry) ([]byte, error) {
			if e.Size < 0 || e.Size > maxContentSize {
				return nil, nil
			}
			data, err := s.Fetch(ctx, original[e.Filename])
			if err != nil && !filestag.IsNotExist(err) {
				return nil, fmt.Errorf("hash %s: %w", e.Filename, err)
			}
			return data, nil
		}
	}
	return filestag.FingerprintEntries(entries, s.opts.HashAlgorithm, content)
}

// Checksum returns the hex digest of one file's content under the source's
// hash algorithm.
func (s *Source) Checksum(ctx context.Context, name string) (string, error) {
	data, err := s.Fetch(ctx, name)
	if err != nil {
		return "", err
	}
	return filestag.CalculateChecksum(bytes.NewReader(data), s.opts.HashAlgorithm)
}

// Checksums digests one file's content with every given algorithm in a
// single pass.
func (s *Source) Checksums(ctx context.Context, name string, algorithms ...filestag.ChecksumAlgorithm) (map[filestag.ChecksumAlgorithm]string, error) {
	data, err := s.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return filestag.CalculateChecksums(bytes.NewReader(data), algorithms)
}
