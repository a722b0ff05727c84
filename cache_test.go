package filestag

import (
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set("forever", []byte("a"), 0)
	c.Set("short", []byte("b"), time.Minute)

	if v, ok := c.Get("short"); !ok || string(v.([]byte)) != "b" {
		t.Fatalf("expected cached value, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Error("expected expired entry to be evicted")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Error("expected entry without ttl to survive")
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss")
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 2 || stats.Size != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}

	c.Delete("forever")
	if _, ok := c.Get("forever"); ok {
		t.Error("expected deleted entry to be gone")
	}
}

func TestMemoryCacheCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, 0)

	now = now.Add(time.Minute)
	c.Cleanup()
	if size := c.Stats().Size; size != 2 {
		t.Errorf("expected 2 entries after cleanup, got %d", size)
	}

	c.Clear()
	if size := c.Stats().Size; size != 0 {
		t.Errorf("expected empty cache, got %d", size)
	}
}
