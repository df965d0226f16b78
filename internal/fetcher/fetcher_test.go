package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/fetchkit/browsecore/models"
)

func TestClassifyTierFailureDeadlineExceeded(t *testing.T) {
	got := classifyTierFailure(context.DeadlineExceeded, errors.New("static: fetch failed: context deadline exceeded"))
	if got != models.FailureTimeout {
		t.Fatalf("expected timeout, got %v", got)
	}
}

func TestClassifyTierFailureCancelled(t *testing.T) {
	got := classifyTierFailure(context.Canceled, errors.New("static: fetch failed: context canceled"))
	if got != models.FailureCancelled {
		t.Fatalf("expected cancelled, got %v", got)
	}
}

// TestClassifyTierFailureOrdinaryErrorNotMisreadAsCancelled guards the fix
// for the bug where calling a tier's context.WithTimeout cancel func before
// classification would make every ordinary failure read back as cancelled.
// With the snapshot taken before cancel(), ctxErr is nil here, matching what
// the fetcher captures for a tier that failed well within its timeout.
func TestClassifyTierFailureOrdinaryErrorNotMisreadAsCancelled(t *testing.T) {
	got := classifyTierFailure(nil, errors.New("static: fetch failed: connection refused"))
	if got == models.FailureCancelled {
		t.Fatalf("ordinary failure misclassified as cancelled")
	}
	if got != models.FailureNetwork {
		t.Fatalf("expected network, got %v", got)
	}
}

func TestClassifyTierFailureHTTPError(t *testing.T) {
	got := classifyTierFailure(nil, errors.New("static: unexpected status 429 too many requests"))
	if got != models.FailureHTTPError {
		t.Fatalf("expected http_error, got %v", got)
	}
}

func TestClassifyTierFailureCoreErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want models.FailureReason
	}{
		{models.NewCoreError(models.ErrCodeRendererUnavailable, "no renderer", nil), models.FailureNetwork},
		{models.NewCoreError(models.ErrCodeValidationFailed, "bad content", nil), models.FailureParseError},
		{models.NewCoreError(models.ErrCodeCancelled, "cancelled", nil), models.FailureCancelled},
		{models.NewCoreError(models.ErrCodeInvalidURL, "bad url", nil), models.FailureNetwork},
	}
	for _, c := range cases {
		if got := classifyTierFailure(nil, c.err); got != c.want {
			t.Fatalf("classifyTierFailure(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestFailureReasonForPrecedence(t *testing.T) {
	if got := failureReasonFor(models.Validation{}, true, true); got != models.FailureBotChallenge {
		t.Fatalf("forceEscalate should take precedence, got %v", got)
	}
	if got := failureReasonFor(models.Validation{}, false, false); got != models.FailureContentTooShort {
		t.Fatalf("expected content_too_short, got %v", got)
	}
	if got := failureReasonFor(models.Validation{Passed: false}, true, false); got != models.FailureValidationFailed {
		t.Fatalf("expected validation_failed, got %v", got)
	}
}

func TestFailureTypeForMapping(t *testing.T) {
	if got := failureTypeFor(models.FailureBotChallenge); got != models.FailureTypeBotChallenge {
		t.Fatalf("got %v", got)
	}
	if got := failureTypeFor(models.FailureContentTooShort); got != models.FailureTypeEmptyContent {
		t.Fatalf("got %v", got)
	}
	if got := failureTypeFor(models.FailureNetwork); got != models.FailureTypeParseError {
		t.Fatalf("expected default fallback, got %v", got)
	}
}

func TestConfidenceLevelThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  models.ConfidenceLevel
	}{
		{0.9, models.ConfidenceHigh},
		{0.8, models.ConfidenceHigh},
		{0.6, models.ConfidenceMedium},
		{0.5, models.ConfidenceMedium},
		{0.1, models.ConfidenceLow},
	}
	for _, c := range cases {
		if got := confidenceLevel(c.score); got != c.want {
			t.Fatalf("confidenceLevel(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestDiscoveredAPIsFiltersJSON(t *testing.T) {
	network := []models.NetworkRequest{
		{URL: "https://example.com/page.html", ContentType: "text/html"},
		{URL: "https://example.com/api/items", ContentType: "application/json; charset=utf-8"},
	}
	got := discoveredAPIs(network)
	if len(got) != 1 || got[0] != "https://example.com/api/items" {
		t.Fatalf("expected only the JSON request, got %v", got)
	}
}

func TestNetworkSummaryCounts(t *testing.T) {
	network := []models.NetworkRequest{
		{ContentType: "text/html", Status: 200},
		{ContentType: "application/json", Status: 200},
		{ContentType: "application/json", Status: 500},
	}
	s := networkSummary(network)
	if s.TotalRequests != 3 || s.APIRequests != 2 || s.FailedCount != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestResolveJSONPathWalksNestedMaps(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"title": "hello",
		},
	}
	val, ok := resolveJSONPath(doc, "data.title")
	if !ok || val != "hello" {
		t.Fatalf("expected hello, got %v ok=%v", val, ok)
	}
	if _, ok := resolveJSONPath(doc, "data.missing"); ok {
		t.Fatal("expected false for missing path")
	}
	if _, ok := resolveJSONPath(doc, "data.title.nested"); ok {
		t.Fatal("expected false when descending into a non-map value")
	}
}

func TestExtractByMappingDeterministicAndTitleSplit(t *testing.T) {
	body := []byte(`{"post":{"headline":"Breaking","body":"full story"}}`)
	mapping := map[string]string{
		"title": "post.headline",
		"body":  "post.body",
	}
	content := extractByMapping(body, mapping)
	if content.Title != "Breaking" {
		t.Fatalf("expected title Breaking, got %q", content.Title)
	}
	if content.Text != "full story" {
		t.Fatalf("expected body-only text, got %q", content.Text)
	}
}

func TestExtractByMappingInvalidJSONReturnsEmpty(t *testing.T) {
	content := extractByMapping([]byte("not json"), map[string]string{"title": "x"})
	if content.Text != "" || content.Title != "" {
		t.Fatalf("expected empty content for invalid JSON, got %+v", content)
	}
}

func TestAnyCriticalFailed(t *testing.T) {
	if anyCriticalFailed([]models.ActionResult{{Success: true}, {Success: true}}) {
		t.Fatal("expected no failure")
	}
	if !anyCriticalFailed([]models.ActionResult{{Success: true}, {Success: false}}) {
		t.Fatal("expected a failure to be detected")
	}
}

func TestChooseStartTierForceTierWins(t *testing.T) {
	f := New(Deps{})
	opts := models.FetchOptions{ForceTier: models.TierPlaywright}
	entry := &models.DomainEntry{}
	got := f.chooseStartTier(opts, "example.com", entry)
	if got != models.TierPlaywright {
		t.Fatalf("expected force_tier to win, got %v", got)
	}
}

func TestChooseStartTierFallsBackToLearnedPreference(t *testing.T) {
	f := New(Deps{})
	entry := &models.DomainEntry{Profile: models.SuccessProfile{PreferredTier: models.TierLightweight}}
	got := f.chooseStartTier(models.FetchOptions{}, "example.com", entry)
	if got != models.TierLightweight {
		t.Fatalf("expected learned preferred tier, got %v", got)
	}
}

func TestChooseStartTierDefaultsToIntelligence(t *testing.T) {
	f := New(Deps{})
	got := f.chooseStartTier(models.FetchOptions{}, "example.com", &models.DomainEntry{})
	if got != models.TierIntelligence {
		t.Fatalf("expected default intelligence tier, got %v", got)
	}
}
