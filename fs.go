package filestag

import (
	"context"
	"path"
	"strings"
	"time"
)

// FileListEntry describes one enumerated file.
type FileListEntry struct {
	// Filename is relative to the backend root and slash separated.
	Filename string
	// Size in bytes, -1 if unknown.
	Size int64
	// Created and Modified are zero when the backend does not report them.
	Created  time.Time
	Modified time.Time
}

// ============================================================================
// Core Interfaces
// ============================================================================

// ScanOptions narrows a raw backend scan. Backends may return more entries
// than requested; callers re-check prefix and recursion.
type ScanOptions struct {
	// Prefix restricts the scan to names starting with it.
	Prefix string
	// Recursive asks the backend to descend below Prefix.
	Recursive bool
	// PageSize is a hint for paginated backends.
	PageSize int
}

// Cursor yields raw candidates of one scan. Next returns io.EOF once
// exhausted.
type Cursor interface {
	Next(ctx context.Context) (FileListEntry, error)
	Close() error
}

// Backend is the storage-specific half of a file source: it produces raw
// listings and serves name-addressed reads. Names are relative to the
// backend root.
type Backend interface {
	// Scan opens a fresh cursor over the backend's entries.
	Scan(ctx context.Context, opts ScanOptions) (Cursor, error)

	// Read returns the content of name. Disk and archive backends return
	// ErrNotExist for unknown names, cloud backends return nil data.
	Read(ctx context.Context, name string) ([]byte, error)

	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Identifier names the backend for diagnostics and cache keys.
	Identifier() string

	// Close releases backend handles.
	Close() error
}

// Sink is the write counterpart of Backend.
type Sink interface {
	// Store writes data under name. It returns false and an ErrExist error
	// when name exists and overwrite is false.
	Store(ctx context.Context, name string, data []byte, overwrite bool) (bool, error)

	// Close finalizes the sink. Closing twice returns ErrClosed.
	Close() error
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// CanSignURL indicates the backend can hand out time limited read URLs.
type CanSignURL interface {
	SignedURL(ctx context.Context, name string, expires time.Duration) (string, error)
}

// CanDelete indicates the sink can remove files it stores. Delete reports
// false when name was not present.
type CanDelete interface {
	Delete(ctx context.Context, name string) (bool, error)
}

// ============================================================================
// Checksums
// ============================================================================

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm (128-bit, fast but not cryptographically secure)
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA256 is the SHA-256 hash algorithm (256-bit, recommended)
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumCRC32 is the CRC32 checksum (32-bit, fastest, for integrity only)
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast)
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
	// ChecksumBLAKE3 is the BLAKE3 algorithm (256-bit, fast and secure)
	ChecksumBLAKE3 ChecksumAlgorithm = "blake3"
)

// ============================================================================
// Name helpers
// ============================================================================

// NormalizeName converts a name to the slash separated, relative form used in
// listings. It returns "" for the root.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	name = path.Clean(name)
	if name == "." {
		return ""
	}
	return name
}

// IsValidName reports whether a normalized name stays inside its root.
func IsValidName(name string) bool {
	return name != ".." && !strings.HasPrefix(name, "../")
}

// JoinName joins a prefix and a relative name into a normalized name.
func JoinName(prefix, name string) string {
	return NormalizeName(path.Join(prefix, name))
}
