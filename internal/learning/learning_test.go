package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { _ = store })
	return New(store)
}

const testTenant = models.TenantID("tenant-a")

func TestGetEntryReturnsEmptyForUnseenDomain(t *testing.T) {
	e := newTestEngine(t)
	entry, err := e.GetEntry(context.Background(), testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Domain != "example.com" {
		t.Fatalf("expected domain set on empty entry, got %q", entry.Domain)
	}
	if len(entry.SelectorChains) != 0 {
		t.Fatalf("expected no selector chains, got %v", entry.SelectorChains)
	}
}

func TestLearnSelectorReordersChainBySuccess(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.LearnSelector(ctx, testTenant, "example.com", "div.article", models.ContentArticle); err != nil {
		t.Fatalf("LearnSelector: %v", err)
	}
	if err := e.RecordSelectorFailure(ctx, testTenant, "example.com", "div.fallback", models.ContentArticle); err != nil {
		t.Fatalf("RecordSelectorFailure: %v", err)
	}
	if err := e.LearnSelector(ctx, testTenant, "example.com", "div.fallback", models.ContentArticle); err != nil {
		t.Fatalf("LearnSelector: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := e.LearnSelector(ctx, testTenant, "example.com", "div.fallback", models.ContentArticle); err != nil {
			t.Fatalf("LearnSelector: %v", err)
		}
	}

	chain, err := e.GetSelectorChain(ctx, testTenant, "example.com", models.ContentArticle)
	if err != nil {
		t.Fatalf("GetSelectorChain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 selectors, got %v", chain)
	}
	if chain[0] != "div.fallback" {
		t.Fatalf("expected div.fallback (4 successes) to rank first, got %v", chain)
	}
}

func TestRecordSelectorFailureKeepsSelectorInChain(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.RecordSelectorFailure(ctx, testTenant, "example.com", "h1.title", models.ContentTitle); err != nil {
		t.Fatalf("RecordSelectorFailure: %v", err)
	}
	chain, err := e.GetSelectorChain(ctx, testTenant, "example.com", models.ContentTitle)
	if err != nil {
		t.Fatalf("GetSelectorChain: %v", err)
	}
	if len(chain) != 1 || chain[0] != "h1.title" {
		t.Fatalf("expected failed selector retained in chain, got %v", chain)
	}
}

func TestLearnValidatorRejectsShortSample(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.LearnValidator(ctx, testTenant, "example.com", "too short", "https://example.com/a"); err != nil {
		t.Fatalf("LearnValidator: %v", err)
	}
	entry, err := e.GetEntry(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if len(entry.Validators) != 0 {
		t.Fatalf("expected no validator learned from a short sample, got %v", entry.Validators)
	}
}

func TestLearnValidatorDerivesMinLengthFloor(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	sample := make([]byte, 400)
	for i := range sample {
		sample[i] = 'a'
	}
	if err := e.LearnValidator(ctx, testTenant, "example.com", string(sample), "https://example.com/a"); err != nil {
		t.Fatalf("LearnValidator: %v", err)
	}
	entry, err := e.GetEntry(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if len(entry.Validators) != 1 {
		t.Fatalf("expected one learned validator, got %v", entry.Validators)
	}
	if entry.Validators[0].MinTextLength != 200 {
		t.Fatalf("expected min_text_length 200 (50%% of 400), got %d", entry.Validators[0].MinTextLength)
	}

	ok, reasons, err := e.ValidateContent(ctx, testTenant, "example.com", string(sample), "https://example.com/b")
	if err != nil {
		t.Fatalf("ValidateContent: %v", err)
	}
	if !ok {
		t.Fatalf("expected full-length content to validate, got reasons %v", reasons)
	}

	ok, _, err = e.ValidateContent(ctx, testTenant, "example.com", "short", "https://example.com/b")
	if err != nil {
		t.Fatalf("ValidateContent: %v", err)
	}
	if ok {
		t.Fatal("expected short content to fail the learned validator")
	}
}

func TestGetFailurePatternsBacksOffAfterThreeRecentSameTypeFailures(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	for i := 0; i < 2; i++ {
		if err := e.RecordFailure(ctx, testTenant, "example.com", models.FailureRecord{Type: models.FailureTypeTimeout, Timestamp: time.Now()}); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	summary, err := e.GetFailurePatterns(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetFailurePatterns: %v", err)
	}
	if summary.ShouldBackoff {
		t.Fatal("expected no backoff after only 2 failures")
	}

	if err := e.RecordFailure(ctx, testTenant, "example.com", models.FailureRecord{Type: models.FailureTypeTimeout, Timestamp: time.Now()}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	summary, err = e.GetFailurePatterns(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetFailurePatterns: %v", err)
	}
	if !summary.ShouldBackoff {
		t.Fatal("expected backoff after 3 same-type failures within the window")
	}
	if summary.MostCommonType != models.FailureTypeTimeout {
		t.Fatalf("expected most common type timeout, got %s", summary.MostCommonType)
	}
}

func TestGetFailurePatternsIgnoresFailuresOutsideWindow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	old := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := e.RecordFailure(ctx, testTenant, "example.com", models.FailureRecord{Type: models.FailureTypeHTTPError, Timestamp: old}); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	summary, err := e.GetFailurePatterns(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetFailurePatterns: %v", err)
	}
	if summary.ShouldBackoff {
		t.Fatal("expected stale failures outside the 1h window to not trigger backoff")
	}
}

func TestRecordSuccessUpdatesProfile(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.RecordSuccess(ctx, testTenant, "example.com", models.TierIntelligence, 120, 5000, true, false, false); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	entry, err := e.GetEntry(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Profile.PreferredTier != models.TierIntelligence {
		t.Fatalf("expected preferred tier intelligence, got %s", entry.Profile.PreferredTier)
	}
	if !entry.Profile.HasStructuredData {
		t.Fatal("expected has_structured_data flag set")
	}
	if entry.OverallSuccessRate != 1 {
		t.Fatalf("expected success rate 1, got %f", entry.OverallSuccessRate)
	}
}

func TestPaginationPatternRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	pattern := models.PaginationPattern{Type: models.PaginationQueryParam, ParamName: "page"}
	urls := []string{"https://example.com/posts/12"}
	if err := e.LearnPaginationPattern(ctx, testTenant, "example.com", urls, pattern); err != nil {
		t.Fatalf("LearnPaginationPattern: %v", err)
	}

	got, ok, err := e.GetPaginationPattern(ctx, testTenant, "example.com", "https://example.com/posts/99")
	if err != nil {
		t.Fatalf("GetPaginationPattern: %v", err)
	}
	if !ok {
		t.Fatal("expected pagination pattern to match a different page number on the same path template")
	}
	if got.ParamName != "page" {
		t.Fatalf("expected param_name page, got %+v", got)
	}

	_, ok, err = e.GetPaginationPattern(ctx, testTenant, "example.com", "https://example.com/about")
	if err != nil {
		t.Fatalf("GetPaginationPattern: %v", err)
	}
	if ok {
		t.Fatal("expected no pagination pattern for an unrelated path")
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want models.FailureType
	}{
		{models.NewCoreError(models.ErrCodeRateLimited, "slow down", nil), models.FailureTypeRateLimited},
		{context.DeadlineExceeded, models.FailureTypeTimeout},
		{errors.New("429 too many requests"), models.FailureTypeRateLimited},
		{errors.New("connection reset"), models.FailureTypeHTTPError},
	}
	for _, c := range cases {
		if got := ClassifyError(c.err); got != c.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestGetDomainGroupDefaultsEmpty(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group, err := e.GetDomainGroup(ctx, testTenant, "example.com")
	if err != nil {
		t.Fatalf("GetDomainGroup: %v", err)
	}
	if group != "" {
		t.Fatalf("expected empty domain group, got %q", group)
	}
}
