package filestag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newFetchServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/data.bin":
			_, _ = w.Write([]byte("payload"))
		case "/large.bin":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	srv, _ := newFetchServer(t)
	f := NewFetcher(WithMaxBytes(32))

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "ok", path: "/data.bin", want: "payload"},
		{name: "not found", path: "/missing", wantErr: ErrNotExist},
		{name: "server error", path: "/broken", wantErr: ErrConnection},
		{name: "too large", path: "/large.bin", wantErr: ErrNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := f.Fetch(ctx, srv.URL+tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, data)
			}
		})
	}
}

func TestFetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFetcher().Fetch(ctx, "http://127.0.0.1:1/x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchMemoryCache(t *testing.T) {
	ctx := context.Background()
	srv, requests := newFetchServer(t)
	f := NewFetcher(WithFetchCache(NewMemoryCache(), time.Minute))
	url := srv.URL + "/data.bin"

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(ctx, url); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}

	f.Invalidate(url)
	if _, err := f.Fetch(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("expected a new request after Invalidate, got %d", got)
	}
}

func TestFetchCacheStats(t *testing.T) {
	ctx := context.Background()
	srv, _ := newFetchServer(t)

	if _, ok := NewFetcher().CacheStats(); ok {
		t.Error("expected no statistics without a cache")
	}

	now := time.Now()
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }
	cache.Set("stale", []byte("old"), time.Second)
	now = now.Add(time.Minute)

	f := NewFetcher(WithFetchCache(cache, time.Hour))
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(ctx, srv.URL+"/data.bin"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	st, ok := f.CacheStats()
	if !ok {
		t.Fatal("expected statistics for a memory cache")
	}
	if st.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", st.Hits)
	}
	if st.Size != 1 {
		t.Errorf("expected the expired entry to be evicted, got %d entries", st.Size)
	}
}

func TestFetchCacheDir(t *testing.T) {
	ctx := context.Background()
	srv, requests := newFetchServer(t)
	dir := t.TempDir()
	url := srv.URL + "/data.bin"

	if _, err := NewFetcher(WithCacheDir(dir)).Fetch(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a fresh fetcher sharing the directory serves from disk
	data, err := NewFetcher(WithCacheDir(dir)).Fetch(ctx, url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected payload, got %q", data)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestFetchConcurrent(t *testing.T) {
	ctx := context.Background()
	srv, _ := newFetchServer(t)
	f := NewFetcher(WithFetchCache(NewMemoryCache(), 0))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := f.Fetch(ctx, srv.URL+"/data.bin")
			if err == nil && string(data) != "payload" {
				err = errors.New("unexpected body " + string(data))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestNewFetcherFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebCacheTTLSeconds = 60
	cfg.WebCacheDir = t.TempDir()

	f := NewFetcherFromConfig(cfg)
	if f.cache == nil || f.ttl != time.Minute {
		t.Errorf("expected memory cache with 1m ttl, got %v %v", f.cache, f.ttl)
	}
	if f.cacheDir != cfg.WebCacheDir || f.maxBytes != cfg.WebMaxBytes {
		t.Errorf("unexpected fetcher settings dir=%q max=%d", f.cacheDir, f.maxBytes)
	}
	if f.client.Timeout != 30*time.Second {
		t.Errorf("expected 30s client timeout, got %v", f.client.Timeout)
	}
}
