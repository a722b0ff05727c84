package source

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/archive"
)

// Option represents a configuration option
type Option func(*Options)

// Options contains all settings of a Source
type Options struct {
	// SearchMask is the glob every file name has to match. It applies to
	// the base name unless it contains a slash.
	SearchMask string

	// SearchPath restricts the source to a folder below the backend root.
	// Names are reported relative to it.
	SearchPath string

	// Recursive includes the content of sub folders
	Recursive bool

	// Filter decides per candidate whether it is processed, skipped or
	// renamed
	Filter Filter

	// ShardCount and ShardIndex select every ShardCount-th entry starting
	// at ShardIndex. A ShardCount of 0 disables sharding.
	ShardCount int
	ShardIndex int

	// MaxCount stops the enumeration after that many accepted files, 0 for
	// no limit
	MaxCount int

	// Prefetch lists the whole source into a sorted snapshot on open
	Prefetch bool

	// SortKey orders the snapshot. Ties fall back to the file name.
	SortKey func(a, b filestag.FileListEntry) int

	// NamesOnly enumerates without reading file contents
	NamesOnly bool

	// ListingCachePath persists the snapshot in a bundle file.
	// ListingCacheVersion invalidates it when changed, -1 accepts any version.
	ListingCachePath    string
	ListingCacheVersion int

	// FetchCache memoizes fetched contents for FetchCacheTTL
	FetchCache    filestag.Cache
	FetchCacheTTL time.Duration

	// PageSize and Timeout apply to paginated cloud backends
	PageSize int
	Timeout  time.Duration

	// Config supplies credentials and defaults for the backends opened by
	// Open
	Config *filestag.Config

	// Registry resolves archive://@ URIs, archive.Default() when nil
	Registry *archive.Registry

	// Fetcher downloads http(s) archives, built from Config when nil
	Fetcher *filestag.Fetcher

	// HashAlgorithm fingerprints snapshots in Hash and contents in
	// Checksum
	HashAlgorithm filestag.ChecksumAlgorithm

	// Logger receives debug records, discarded when nil
	Logger *slog.Logger
}

func defaultOptions() Options {
	return Options{
		SearchMask:          "*",
		Recursive:           true,
		Prefetch:            true,
		ListingCacheVersion: -1,
		HashAlgorithm:       filestag.ChecksumXXHash,
	}
}

// validate rejects option combinations that cannot be served.
func (o *Options) validate() error {
	if o.ShardCount < 0 || (o.ShardCount > 0 && (o.ShardIndex < 0 || o.ShardIndex >= o.ShardCount)) {
		return fmt.Errorf("%w: shard index %d out of range for %d shards", filestag.ErrInvalidConfig, o.ShardIndex, o.ShardCount)
	}
	if o.ShardCount > 0 && !o.Prefetch {
		return fmt.Errorf("%w: sharding requires prefetch", filestag.ErrInvalidConfig)
	}
	if o.SortKey != nil && !o.Prefetch {
		return fmt.Errorf("%w: sorting requires prefetch", filestag.ErrInvalidConfig)
	}
	if o.ListingCachePath != "" && !o.Prefetch {
		return fmt.Errorf("%w: a listing cache requires prefetch", filestag.ErrInvalidConfig)
	}
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = filestag.ChecksumXXHash
	}
	if _, err := filestag.NewHasher(o.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: hash algorithm %q", filestag.ErrInvalidConfig, o.HashAlgorithm)
	}
	if o.MaxCount < 0 {
		o.MaxCount = 0
	}
	return nil
}

// WithSearchMask sets the glob file names have to match
func WithSearchMask(mask string) Option {
	return func(o *Options) {
		o.SearchMask = mask
	}
}

// WithSearchPath restricts the source to a folder
func WithSearchPath(path string) Option {
	return func(o *Options) {
		o.SearchPath = path
	}
}

// WithRecursive sets whether sub folders are included
func WithRecursive(recursive bool) Option {
	return func(o *Options) {
		o.Recursive = recursive
	}
}

// WithFilter sets the candidate filter. Several filters can be combined
// with Chain.
func WithFilter(filter Filter) Option {
	return func(o *Options) {
		o.Filter = filter
	}
}

// WithShard makes the source serve shard index of count. Sources with the
// same listing and different indexes never share a file.
func WithShard(count, index int) Option {
	return func(o *Options) {
		o.ShardCount = count
		o.ShardIndex = index
	}
}

// WithMaxCount limits the number of processed files
func WithMaxCount(n int) Option {
	return func(o *Options) {
		o.MaxCount = n
	}
}

// WithPrefetch enables or disables the snapshot
func WithPrefetch(enabled bool) Option {
	return func(o *Options) {
		o.Prefetch = enabled
	}
}

// WithSortKey orders the snapshot by cmp
func WithSortKey(cmp func(a, b filestag.FileListEntry) int) Option {
	return func(o *Options) {
		o.SortKey = cmp
	}
}

// WithNamesOnly enumerates names without fetching data
func WithNamesOnly(enabled bool) Option {
	return func(o *Options) {
		o.NamesOnly = enabled
	}
}

// WithListingCache stores the snapshot at path, tagged with version
func WithListingCache(path string, version int) Option {
	return func(o *Options) {
		o.ListingCachePath = path
		o.ListingCacheVersion = version
	}
}

// WithFetchCache keeps fetched contents in cache for ttl
func WithFetchCache(cache filestag.Cache, ttl time.Duration) Option {
	return func(o *Options) {
		o.FetchCache = cache
		o.FetchCacheTTL = ttl
	}
}

// WithPageSize sets the listing page size of cloud backends
func WithPageSize(n int) Option {
	return func(o *Options) {
		o.PageSize = n
	}
}

// WithTimeout sets the per-request timeout of cloud backends
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithConfig sets the configuration used to open backends
func WithConfig(cfg *filestag.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithRegistry sets the archive registry for archive://@ URIs
func WithRegistry(r *archive.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithFetcher sets the downloader for http(s) archives
func WithFetcher(f *filestag.Fetcher) Option {
	return func(o *Options) {
		o.Fetcher = f
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithHashAlgorithm selects the algorithm of Hash and Checksum
func WithHashAlgorithm(algorithm filestag.ChecksumAlgorithm) Option {
	return func(o *Options) {
		o.HashAlgorithm = algorithm
	}
}
