package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[*domain.PortalState](5 * time.Minute)
	defer c.Close()

	c.Set("casa-nova", &domain.PortalState{Client: domain.PortalClient{ID: "casa-nova"}})
	val, ok := c.Get("casa-nova")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val.Client.ID != "casa-nova" {
		t.Errorf("expected 'casa-nova', got '%s'", val.Client.ID)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge, got %d entries", c.Len())
	}
}

type countingStats struct{ hits, misses atomic.Int64 }

func (s *countingStats) Hit()  { s.hits.Add(1) }
func (s *countingStats) Miss() { s.misses.Add(1) }

func TestCache_Stats(t *testing.T) {
	stats := &countingStats{}
	c := cache.New[string](5 * time.Minute).WithStats(stats)
	defer c.Close()

	c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	if stats.hits.Load() != 2 || stats.misses.Load() != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d/%d", stats.hits.Load(), stats.misses.Load())
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close()
}
