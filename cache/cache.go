// Package cache implements the Tiered Fetcher's page-level freshness cache
// (spec §4.3 step 2): results keyed by (url, content-hash), consulted
// before any tier runs when the caller's freshness requirement isn't
// realtime.
//
// Purify's original cache.go kept a single in-process
// sync.RWMutex-guarded map, bounded by entry count with random eviction and
// a goroutine sweeping anything older than an hour every five minutes. That
// shape doesn't survive a restart, which the rest of this tree's persisted
// state (API patterns, domain entries, trajectories/skills) all does via
// internal/kv — so this package keeps purify's bounded,
// TTL-expiring cache *concept* but stores entries through kv.Store instead
// of a private map, for the same durability every other component gets.
// Expiry is checked lazily on read rather than by a background sweep: kv
// entries already carry their own write timestamp, so a second cleanup
// goroutine would just be duplicating bookkeeping the store already does.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

// defaultTTL is how long a cached entry is considered "fresh" for
// freshness=any; freshness=cached ignores TTL entirely and returns
// whatever is stored, however old.
const defaultTTL = time.Hour

type record struct {
	Result      models.BrowseResult `json:"result"`
	ContentHash string              `json:"content_hash"`
	StoredAt    time.Time           `json:"stored_at"`
}

// Cache is the page-level result cache, backed by internal/kv.
type Cache struct {
	store *kv.Store
	ttl   time.Duration
}

// New builds a Cache backed by store, using defaultTTL for freshness=any
// lookups.
func New(store *kv.Store) *Cache {
	return &Cache{store: store, ttl: defaultTTL}
}

// Key derives the cache key for (url): the registrable request identity the
// Tiered Fetcher looks up before running any tier. Content-hash addressing
// happens at Set time, once the page's actual content is known — Key alone
// only identifies "a result for this URL", matching spec's literal
// "keyed by (url, content-hash)" where the hash is filled in once computed.
func Key(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(h[:])
}

// ContentHash hashes a result's text content, used both to decide whether a
// freshly-fetched page actually changed and as the second half of the
// cache's (url, content-hash) identity.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Get looks up rawURL's cached result for tenant. freshness=realtime
// always misses (callers should not call Get at all in that case, but a
// miss is the safe behavior regardless). freshness=cached returns any
// stored entry regardless of age. freshness=any returns the entry only if
// it is younger than the cache's TTL.
func (c *Cache) Get(ctx context.Context, tenant models.TenantID, rawURL string, freshness models.FreshnessRequirement) (*models.BrowseResult, bool, error) {
	if freshness == models.FreshnessRealtime {
		return nil, false, nil
	}

	raw, ok, err := c.store.Get(ctx, tenant, kv.NSPageCache, Key(rawURL))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, nil
	}

	if freshness == models.FreshnessAny && time.Since(rec.StoredAt) > c.ttl {
		return nil, false, nil
	}

	result := rec.Result
	result.CacheStatus = "hit"
	return &result, true, nil
}

// Set stores result under rawURL's cache key, stamping its content hash.
func (c *Cache) Set(ctx context.Context, tenant models.TenantID, rawURL string, result models.BrowseResult) error {
	rec := record{
		Result:      result,
		ContentHash: ContentHash(result.Content.Text),
		StoredAt:    time.Now(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal cache entry", err)
	}
	return c.store.Put(ctx, tenant, kv.NSPageCache, Key(rawURL), raw, kv.EntryMeta{})
}

// Invalidate removes rawURL's cached entry for tenant, used when a fetch
// explicitly requests realtime content and the caller wants the next
// freshness=any lookup to miss rather than serve stale data.
func (c *Cache) Invalidate(ctx context.Context, tenant models.TenantID, rawURL string) error {
	return c.store.Delete(ctx, tenant, kv.NSPageCache, Key(rawURL))
}
