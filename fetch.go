package filestag

import (
	"context"
	"crypto/md5" //nolint:gosec // MD5 names cache files, not security
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher downloads http(s) resources and optionally keeps them in an
// in-memory cache and an on-disk cache directory.
//
// Concurrent calls for the same URL are deduplicated, so a burst of readers
// results in a single request.
type Fetcher struct {
	client   *http.Client
	cache    Cache
	ttl      time.Duration
	cacheDir string
	maxBytes int64
	logger   *slog.Logger
	group    singleflight.Group
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithFetchCache keeps downloads in cache for up to ttl. A ttl of 0 keeps
// them until the cache is cleared.
func WithFetchCache(cache Cache, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
		f.ttl = ttl
	}
}

// WithCacheDir persists downloads below dir. Files older than the cache TTL
// are fetched again.
func WithCacheDir(dir string) FetcherOption {
	return func(f *Fetcher) {
		f.cacheDir = dir
	}
}

// WithMaxBytes limits the size of a single download.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithFetchLogger sets a custom logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher. Without options it performs uncached
// requests through http.DefaultClient.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{client: http.DefaultClient}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	return f
}

// NewFetcherFromConfig builds a Fetcher honoring the web cache settings and
// the request timeout of cfg.
func NewFetcherFromConfig(cfg *Config, opts ...FetcherOption) *Fetcher {
	base := []FetcherOption{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
		WithMaxBytes(cfg.WebMaxBytes),
	}
	if ttl := cfg.WebCacheTTL(); ttl > 0 {
		base = append(base, WithFetchCache(NewMemoryCache(), ttl))
	}
	if cfg.WebCacheDir != "" {
		base = append(base, WithCacheDir(cfg.WebCacheDir))
	}
	return NewFetcher(append(base, opts...)...)
}

func (f *Fetcher) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Fetch returns the body of url. A 404 maps to ErrNotExist, transport
// failures and other non-2xx responses map to ErrConnection.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if data, ok := f.cached(url); ok {
		attrs := []any{slog.String("url", url)}
		if st, ok := f.CacheStats(); ok {
			attrs = append(attrs, slog.Int64("hits", st.Hits), slog.Int64("entries", st.Size), slog.Float64("hit_rate", st.HitRate))
		}
		f.log().Debug("web cache hit", attrs...)
		return data, nil
	}

	result, err, _ := f.group.Do(url, func() (any, error) {
		if data, ok := f.cached(url); ok {
			return data, nil
		}
		data, err := f.download(ctx, url)
		if err != nil {
			return nil, err
		}
		f.store(url, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, _ := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewPathError("fetch", url, fmt.Errorf("%w: %v", ErrInvalidName, err))
	}

	f.log().Debug("downloading", slog.String("url", url))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, NewPathError("fetch", url, fmt.Errorf("%w: %w", ErrConnection, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewPathError("fetch", url, ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, NewPathError("fetch", url, fmt.Errorf("%w: unexpected status %s", ErrConnection, resp.Status))
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewPathError("fetch", url, fmt.Errorf("%w: %w", ErrConnection, err))
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, NewPathError("fetch", url, fmt.Errorf("%w: response exceeds %d bytes", ErrNotAllowed, f.maxBytes))
	}
	return data, nil
}

func (f *Fetcher) cached(url string) ([]byte, bool) {
	if f.cache != nil {
		if v, ok := f.cache.Get(url); ok {
			if data, ok := v.([]byte); ok {
				return data, true
			}
		}
	}
	if f.cacheDir == "" {
		return nil, false
	}
	name := f.cacheFile(url)
	info, err := os.Stat(name)
	if err != nil {
		return nil, false
	}
	if f.ttl > 0 && time.Since(info.ModTime()) > f.ttl {
		return nil, false
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, false
	}
	if f.cache != nil {
		f.cache.Set(url, data, f.ttl)
	}
	return data, true
}

func (f *Fetcher) store(url string, data []byte) {
	if sc, ok := f.cache.(StatsCache); ok {
		sc.Cleanup()
	}
	if f.cache != nil {
		f.cache.Set(url, data, f.ttl)
	}
	if f.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		f.log().Warn("web cache dir unavailable", slog.String("dir", f.cacheDir), slog.Any("error", err))
		return
	}
	if err := os.WriteFile(f.cacheFile(url), data, 0o644); err != nil {
		f.log().Warn("web cache write failed", slog.String("url", url), slog.Any("error", err))
	}
}

func (f *Fetcher) cacheFile(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec // MD5 names cache files, not security
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:]))
}

// CacheStats reports the statistics of the in-memory cache layer. ok is
// false when the fetcher has no cache or the cache keeps none.
func (f *Fetcher) CacheStats() (CacheStatistics, bool) {
	sc, ok := f.cache.(StatsCache)
	if !ok {
		return CacheStatistics{}, false
	}
	return sc.Stats(), true
}

// Invalidate drops url from every cache layer.
func (f *Fetcher) Invalidate(url string) {
	if f.cache != nil {
		f.cache.Delete(url)
	}
	if f.cacheDir != "" {
		_ = os.Remove(f.cacheFile(url))
	}
}
