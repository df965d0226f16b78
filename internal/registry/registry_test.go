package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

const testTenant = models.TenantID("tenant-a")

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	if err := r.Bootstrap(ctx, testTenant, now); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	patterns, err := r.all(ctx, testTenant)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(patterns) != 8 {
		t.Fatalf("expected 8 seed patterns, got %d", len(patterns))
	}

	if err := r.Bootstrap(ctx, testTenant, now); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	patterns, err = r.all(ctx, testTenant)
	if err != nil {
		t.Fatalf("all after second bootstrap: %v", err)
	}
	if len(patterns) != 8 {
		t.Fatalf("expected bootstrap to stay idempotent, got %d patterns", len(patterns))
	}
}

func TestFindMatchingReturnsSeedPatternForURL(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	if err := r.Bootstrap(ctx, testTenant, now); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	matches, err := r.FindMatching(ctx, testTenant, "https://registry.npmjs.org/some-package")
	if err != nil {
		t.Fatalf("find_matching: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "seed-npm" {
		t.Fatalf("expected seed-npm to match, got %+v", matches)
	}
}

func TestFindMatchingExcludesQuarantinedAndRetired(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	p := &models.ApiPattern{
		ID:         "p1",
		URLPattern: "example.com/items/{id}",
		Method:     "GET",
		Confidence: 0.6,
		LearnedAt:  now,
	}
	if err := r.put(ctx, testTenant, p); err != nil {
		t.Fatalf("put: %v", err)
	}

	matches, err := r.FindMatching(ctx, testTenant, "https://example.com/items/12345")
	if err != nil {
		t.Fatalf("find_matching: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match before quarantine, got %d", len(matches))
	}

	// Three consecutive failures should quarantine the pattern out of
	// find_matching's results without deleting it.
	for i := 0; i < 3; i++ {
		if err := r.UpdateMetrics(ctx, testTenant, "p1", false, "example.com", 10*time.Millisecond, "timeout"); err != nil {
			t.Fatalf("update_metrics failure %d: %v", i, err)
		}
	}

	matches, err = r.FindMatching(ctx, testTenant, "https://example.com/items/12345")
	if err != nil {
		t.Fatalf("find_matching after quarantine: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected quarantined pattern to be excluded, got %+v", matches)
	}

	still, ok, err := r.store.Get(ctx, testTenant, kv.NSApiPatterns, "p1")
	if err != nil || !ok || len(still) == 0 {
		t.Fatalf("quarantined pattern should remain indexed, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateMetricsConfidenceMonotonicUnderSuccess(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	p := &models.ApiPattern{ID: "p1", URLPattern: "example.com/items/{id}", Method: "GET", Confidence: 0.5, LearnedAt: now}
	if err := r.put(ctx, testTenant, p); err != nil {
		t.Fatalf("put: %v", err)
	}

	prev := 0.5
	for i := 0; i < 5; i++ {
		if err := r.UpdateMetrics(ctx, testTenant, "p1", true, "example.com", 5*time.Millisecond, ""); err != nil {
			t.Fatalf("update_metrics success %d: %v", i, err)
		}
		raw, ok, err := r.store.Get(ctx, testTenant, kv.NSApiPatterns, "p1")
		if err != nil || !ok {
			t.Fatalf("get after update %d: ok=%v err=%v", i, ok, err)
		}
		var got models.ApiPattern
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Confidence < prev {
			t.Fatalf("confidence decreased on success: %f -> %f", prev, got.Confidence)
		}
		if got.Confidence > 1 {
			t.Fatalf("confidence exceeded 1: %f", got.Confidence)
		}
		prev = got.Confidence
	}
}

func TestLearnFromExtractionRejectsBelowMinimumViableBar(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	obs := models.ExtractionObservation{
		APIURL:         "https://example.com/api/v1/posts/42",
		Method:         "GET",
		ResponseBody:   []byte(`{"title":"short","body":"too short"}`),
		ExtractedTitle: "short",
		ExtractedText:  "too short",
	}
	p, err := r.LearnFromExtraction(ctx, testTenant, obs)
	if err != nil {
		t.Fatalf("learn_from_extraction: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil pattern below minimum-viable bar, got %+v", p)
	}
}

func TestLearnFromExtractionCreatesAndReinforcesPattern(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	longText := ""
	for len(longText) < 120 {
		longText += "this is extracted article content. "
	}

	obs := models.ExtractionObservation{
		APIURL:         "https://example.com/api/v1/posts/4242",
		Method:         "GET",
		ResponseTimeMs: 80,
		ResponseBody:   []byte(`{"title":"My Post","body":"` + longText + `"}`),
		ExtractedTitle: "My Post",
		ExtractedText:  longText,
	}

	p, err := r.LearnFromExtraction(ctx, testTenant, obs)
	if err != nil {
		t.Fatalf("learn_from_extraction: %v", err)
	}
	if p == nil {
		t.Fatalf("expected a learned pattern")
	}
	if p.URLPattern != "example.com/api/v1/posts/{id}" {
		t.Fatalf("unexpected url template: %s", p.URLPattern)
	}
	if p.ContentMapping["title"] != "title" {
		t.Fatalf("expected title mapping to resolve to json path, got %q", p.ContentMapping["title"])
	}

	obs2 := obs
	obs2.APIURL = "https://example.com/api/v1/posts/9999"
	obs2.ResponseTimeMs = 40
	p2, err := r.LearnFromExtraction(ctx, testTenant, obs2)
	if err != nil {
		t.Fatalf("learn_from_extraction reinforce: %v", err)
	}
	if p2.ID != p.ID {
		t.Fatalf("expected second observation to reinforce the same template, got new id %s vs %s", p2.ID, p.ID)
	}
}

func TestRemoveAndClear(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	if err := r.put(ctx, testTenant, &models.ApiPattern{ID: "a1", URLPattern: "a.com/x/{id}", Method: "GET", Confidence: 0.5, LearnedAt: now}); err != nil {
		t.Fatalf("put a1: %v", err)
	}
	if err := r.put(ctx, testTenant, &models.ApiPattern{ID: "a2", URLPattern: "a.com/y/{id}", Method: "GET", Confidence: 0.5, LearnedAt: now}); err != nil {
		t.Fatalf("put a2: %v", err)
	}
	if err := r.put(ctx, testTenant, &models.ApiPattern{ID: "b1", URLPattern: "b.com/z/{id}", Method: "GET", Confidence: 0.5, LearnedAt: now}); err != nil {
		t.Fatalf("put b1: %v", err)
	}

	if err := r.Remove(ctx, testTenant, "a1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	patterns, err := r.all(ctx, testTenant)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns after remove, got %d", len(patterns))
	}

	if err := r.Clear(ctx, testTenant, "a.com"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	patterns, err = r.all(ctx, testTenant)
	if err != nil {
		t.Fatalf("all after clear: %v", err)
	}
	if len(patterns) != 1 || patterns[0].ID != "b1" {
		t.Fatalf("expected clear(a.com) to leave only b1, got %+v", patterns)
	}
}

func TestEventsDeliverOnLearnAndUpdate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	events := r.Events()

	if err := r.put(ctx, testTenant, &models.ApiPattern{ID: "p1", URLPattern: "example.com/items/{id}", Method: "GET", Confidence: 0.5, LearnedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := r.UpdateMetrics(ctx, testTenant, "p1", true, "example.com", time.Millisecond, ""); err != nil {
		t.Fatalf("update_metrics: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != models.PatternApplied || ev.PatternID != "p1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pattern_applied event")
	}
}
