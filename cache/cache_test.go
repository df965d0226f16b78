package cache

import (
	"context"
	"testing"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

const testTenant = models.TenantID("tenant-a")

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	return New(store)
}

func TestGetMissesOnEmptyCache(t *testing.T) {
	c := newTestCache(t)
	_, ok, err := c.Get(context.Background(), testTenant, "https://example.com/a", models.FreshnessAny)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestRealtimeFreshnessAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	result := models.BrowseResult{URL: "https://example.com/a", Content: models.PageContent{Text: "hello"}}
	if err := c.Set(ctx, testTenant, "https://example.com/a", result); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get(ctx, testTenant, "https://example.com/a", models.FreshnessRealtime)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected realtime freshness to never hit the cache")
	}
}

func TestCachedFreshnessReturnsStoredEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	result := models.BrowseResult{URL: "https://example.com/a", Content: models.PageContent{Text: "hello"}}
	if err := c.Set(ctx, testTenant, "https://example.com/a", result); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, testTenant, "https://example.com/a", models.FreshnessCached)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Content.Text != "hello" {
		t.Fatalf("expected cached content, got %q", got.Content.Text)
	}
	if got.CacheStatus != "hit" {
		t.Fatalf("expected cache_status hit, got %q", got.CacheStatus)
	}
}

func TestAnyFreshnessRespectsTTL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.ttl = 0 // force immediate expiry for this test

	result := models.BrowseResult{URL: "https://example.com/a", Content: models.PageContent{Text: "hello"}}
	if err := c.Set(ctx, testTenant, "https://example.com/a", result); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, ok, err := c.Get(ctx, testTenant, "https://example.com/a", models.FreshnessAny)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a zero-TTL entry to be considered stale under freshness=any")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	result := models.BrowseResult{URL: "https://example.com/a"}
	if err := c.Set(ctx, testTenant, "https://example.com/a", result); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Invalidate(ctx, testTenant, "https://example.com/a"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	_, ok, err := c.Get(ctx, testTenant, "https://example.com/a", models.FreshnessCached)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no entry after invalidate")
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	result := models.BrowseResult{URL: "https://example.com/a", Content: models.PageContent{Text: "hello"}}
	if err := c.Set(ctx, testTenant, "https://example.com/a", result); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get(ctx, models.TenantID("tenant-b"), "https://example.com/a", models.FreshnessCached)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected tenant-b to not see tenant-a's cached entry")
	}
}
