// Package learning implements the Learning Engine (spec §4.9): the
// per-domain knowledge base of selector chains, validators, pagination
// patterns, failure history and success profiles that the Tiered Fetcher
// consults before and after every attempt.
//
// It generalizes purify's engine/domain_memory.go — a sync.Map of
// engine-name-by-domain with a TTL and an hourly sweep — into a persisted,
// richer-than-a-single-string-per-domain record backed by internal/kv.
// models.DomainEntry already aggregates selector chains, validators,
// pagination patterns, the failure ring and the success profile into one
// struct (with RecordOutcome/AppendFailure as pure helper methods), so the
// whole entry is stored as a single JSON record under kv.NSDomainEntries
// rather than split across the five separate namespaces spec §4.12 also
// lists — splitting would force a multi-key transaction for every mutation
// for no benefit, since every mutation here already needs the whole entry
// in hand to reorder a chain or recompute the success window.
package learning

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/internal/verify"
	"github.com/fetchkit/browsecore/models"
)

// backoffWindow and backoffThreshold implement get_failure_patterns'
// "back off when >= 3 failures of the same class within the last hour".
const (
	backoffWindow    = time.Hour
	backoffThreshold = 3
)

// Engine owns the DomainEntry map.
type Engine struct {
	store *kv.Store
}

// New builds an Engine backed by store.
func New(store *kv.Store) *Engine {
	return &Engine{store: store}
}

// GetEntry returns domain's knowledge record, or a fresh zero-value entry
// if none has been recorded yet (not an error — a domain's first visit is
// an empty, not a missing, record).
func (e *Engine) GetEntry(ctx context.Context, tenant models.TenantID, domain string) (*models.DomainEntry, error) {
	raw, ok, err := e.store.Get(ctx, tenant, kv.NSDomainEntries, domain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &models.DomainEntry{Domain: domain, PaginationPatterns: map[string]models.PaginationPattern{}}, nil
	}
	var entry models.DomainEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "unmarshal domain entry", err)
	}
	if entry.PaginationPatterns == nil {
		entry.PaginationPatterns = map[string]models.PaginationPattern{}
	}
	return &entry, nil
}

func (e *Engine) put(ctx context.Context, tenant models.TenantID, entry *models.DomainEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal domain entry", err)
	}
	return e.store.Put(ctx, tenant, kv.NSDomainEntries, entry.Domain, raw, kv.EntryMeta{Domain: entry.Domain})
}

// GetSelectorChain returns the ordered selector list for domain's
// content_type, most-successful first.
func (e *Engine) GetSelectorChain(ctx context.Context, tenant models.TenantID, domain string, contentType models.ContentType) ([]string, error) {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return nil, err
	}
	for _, chain := range entry.SelectorChains {
		if chain.ContentType == contentType {
			out := make([]string, len(chain.Selectors))
			for i, s := range chain.Selectors {
				out[i] = s.Selector
			}
			return out, nil
		}
	}
	return nil, nil
}

// LearnSelector records a successful use of selector for contentType,
// reordering the chain so higher-success selectors sort first.
func (e *Engine) LearnSelector(ctx context.Context, tenant models.TenantID, domain, selector string, contentType models.ContentType) error {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}
	chain := findOrCreateChain(entry, contentType)
	pattern := findOrCreateSelector(chain, selector, contentType)
	pattern.SuccessCount++
	reorderChain(chain)
	return e.put(ctx, tenant, entry)
}

// RecordSelectorFailure records a failed use of selector without removing
// it from the chain — a selector that mostly works still outranks one that
// never has.
func (e *Engine) RecordSelectorFailure(ctx context.Context, tenant models.TenantID, domain, selector string, contentType models.ContentType) error {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}
	chain := findOrCreateChain(entry, contentType)
	pattern := findOrCreateSelector(chain, selector, contentType)
	pattern.FailureCount++
	reorderChain(chain)
	return e.put(ctx, tenant, entry)
}

func findOrCreateChain(entry *models.DomainEntry, contentType models.ContentType) *models.SelectorChain {
	for i := range entry.SelectorChains {
		if entry.SelectorChains[i].ContentType == contentType {
			return &entry.SelectorChains[i]
		}
	}
	entry.SelectorChains = append(entry.SelectorChains, models.SelectorChain{ContentType: contentType})
	return &entry.SelectorChains[len(entry.SelectorChains)-1]
}

func findOrCreateSelector(chain *models.SelectorChain, selector string, contentType models.ContentType) *models.SelectorPattern {
	for i := range chain.Selectors {
		if chain.Selectors[i].Selector == selector {
			return &chain.Selectors[i]
		}
	}
	chain.Selectors = append(chain.Selectors, models.SelectorPattern{Selector: selector, ContentType: contentType})
	return &chain.Selectors[len(chain.Selectors)-1]
}

// reorderChain sorts by descending success count, ties broken by ascending
// failure count so a selector tried once and never failed ranks above one
// with the same successes but a worse track record.
func reorderChain(chain *models.SelectorChain) {
	sort.SliceStable(chain.Selectors, func(i, j int) bool {
		a, b := chain.Selectors[i], chain.Selectors[j]
		if a.SuccessCount != b.SuccessCount {
			return a.SuccessCount > b.SuccessCount
		}
		return a.FailureCount < b.FailureCount
	})
}

// minValidatorSampleLen guards learn_validator against deriving a
// min_text_length floor from a too-short sample, which would reject
// perfectly good pages later.
const minValidatorSampleLen = 200

// learnedMinTextFraction is how much of a known-good sample's length
// becomes the learned floor: conservative enough that ordinary length
// variance across a domain's pages doesn't trip the validator.
const learnedMinTextFraction = 0.5

// LearnValidator derives a compact validator from a known-good (domain,
// text, url) observation: a minimum-text-length floor at a fraction of the
// observed sample. Required/forbidden substrings and language/link-count
// floors are not inferred automatically — this system gives no signal to
// learn those from in this single-sample call, so callers populate them
// explicitly via get_entry + a direct validator edit when needed.
func (e *Engine) LearnValidator(ctx context.Context, tenant models.TenantID, domain, text, sourceURL string) error {
	if len(text) < minValidatorSampleLen {
		return nil
	}
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}
	floor := int(float64(len(text)) * learnedMinTextFraction)
	for i := range entry.Validators {
		if entry.Validators[i].MinTextLength > 0 && entry.Validators[i].MinTextLength < floor {
			// Keep the more permissive (smaller) floor already learned.
			return nil
		}
	}
	entry.Validators = append(entry.Validators, models.Validator{MinTextLength: floor})
	return e.put(ctx, tenant, entry)
}

// ValidateContent applies domain's learned validators to text. Delegates to
// internal/verify.ApplyValidators so the rule evaluation has one
// implementation shared with the Verifier's standard/thorough modes. The
// language and link-count floors are not evaluated here since url alone
// (this system's validate_content signature) carries neither signal; full
// multi-factor validation happens in internal/verify.Verify once the
// Content Extractor has produced metadata.
func (e *Engine) ValidateContent(ctx context.Context, tenant models.TenantID, domain, text, sourceURL string) (bool, []string, error) {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return false, nil, err
	}
	valid, reasons := verify.ApplyValidators(entry.Validators, text, "", 0)
	return valid, reasons, nil
}

// RecordFailure appends a failure to domain's bounded ring.
func (e *Engine) RecordFailure(ctx context.Context, tenant models.TenantID, domain string, failure models.FailureRecord) error {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}
	if failure.Timestamp.IsZero() {
		failure.Timestamp = time.Now()
	}
	entry.AppendFailure(failure)
	entry.RecordOutcome(false)
	return e.put(ctx, tenant, entry)
}

// GetFailurePatterns reports whether domain should be backed off: true when
// at least backoffThreshold failures of the same class landed within
// backoffWindow of now.
func (e *Engine) GetFailurePatterns(ctx context.Context, tenant models.TenantID, domain string) (models.FailurePatternSummary, error) {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return models.FailurePatternSummary{}, err
	}

	cutoff := time.Now().Add(-backoffWindow)
	counts := map[models.FailureType]int{}
	for _, f := range entry.RecentFailures {
		if f.Timestamp.After(cutoff) {
			counts[f.Type]++
		}
	}

	var mostCommon models.FailureType
	best := 0
	for t, n := range counts {
		if n > best {
			best, mostCommon = n, t
		}
	}
	return models.FailurePatternSummary{
		ShouldBackoff:  best >= backoffThreshold,
		MostCommonType: mostCommon,
	}, nil
}

// RecordSuccess updates domain's success profile and preferred tier after a
// successful fetch. The preferred tier always tracks the most recent
// success's tier: a domain's rendering requirements rarely regress, so the
// latest observation is the best predictor of what the next request will
// need, and cheaper tiers are tried first regardless (the Tiered Fetcher's
// own cascade already prefers cheap tiers; this field is a hint, not a
// guarantee).
func (e *Engine) RecordSuccess(ctx context.Context, tenant models.TenantID, domain string, tier models.RenderTier, responseTimeMs int64, contentLength int, hasStructuredData, hasFrameworkData, hasBypassableAPIs bool) error {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}

	p := &entry.Profile
	p.PreferredTier = tier
	if p.AvgResponseMs == 0 {
		p.AvgResponseMs = float64(responseTimeMs)
	} else {
		p.AvgResponseMs = p.AvgResponseMs*0.8 + float64(responseTimeMs)*0.2
	}
	p.ContentLength = contentLength
	p.HasStructuredData = p.HasStructuredData || hasStructuredData
	p.HasFrameworkData = p.HasFrameworkData || hasFrameworkData
	p.HasBypassableAPIs = p.HasBypassableAPIs || hasBypassableAPIs

	entry.RecordOutcome(true)
	return e.put(ctx, tenant, entry)
}

// LearnPaginationPattern records how to advance to the next page for the
// path template shared by urls.
func (e *Engine) LearnPaginationPattern(ctx context.Context, tenant models.TenantID, domain string, urls []string, pattern models.PaginationPattern) error {
	if len(urls) == 0 {
		return nil
	}
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return err
	}
	key := pathTemplate(urls[0])
	if entry.PaginationPatterns == nil {
		entry.PaginationPatterns = map[string]models.PaginationPattern{}
	}
	entry.PaginationPatterns[key] = pattern
	return e.put(ctx, tenant, entry)
}

// GetPaginationPattern looks up the pagination pattern learned for
// pageURL's path template, if any.
func (e *Engine) GetPaginationPattern(ctx context.Context, tenant models.TenantID, domain, pageURL string) (models.PaginationPattern, bool, error) {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return models.PaginationPattern{}, false, err
	}
	pattern, ok := entry.PaginationPatterns[pathTemplate(pageURL)]
	return pattern, ok, nil
}

// pathTemplate reduces a URL to a path key stable across paginated pages:
// the final path segment's digit run is stripped, so /posts/12?page=3 and
// /posts/12?page=4 key the same pattern.
func pathTemplate(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 {
		segments[len(segments)-1] = strings.TrimRight(segments[len(segments)-1], "0123456789")
	}
	return u.Host + "/" + strings.Join(segments, "/")
}

// ClassifyError maps a raw error into this system's failure-type taxonomy,
// generalizing purify's scraper/page.go:categorizeError switch (which
// only distinguished timeout vs. generic navigation failure) into the
// richer FailureType enum. bot_challenge/captcha/empty_content are not
// produced here: those are content-shape anomalies the renderer's
// successful response still carries, classified by
// internal/verify.DetectContentAnomalies instead of raised as Go errors.
func ClassifyError(err error) models.FailureType {
	if err == nil {
		return ""
	}
	if ce := models.AsCoreError(err); ce != nil {
		switch ce.Code {
		case models.ErrCodeRateLimited:
			return models.FailureTypeRateLimited
		case models.ErrCodeCancelled:
			return models.FailureTypeTimeout
		case models.ErrCodeValidationFailed:
			return models.FailureTypeParseError
		case models.ErrCodeRendererUnavailable:
			return models.FailureTypeHTTPError
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"), strings.Contains(msg, "context canceled"):
		return models.FailureTypeTimeout
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return models.FailureTypeRateLimited
	default:
		return models.FailureTypeHTTPError
	}
}

// GetDomainGroup returns the shared-pattern bundle id domain has been
// grouped under, if any. The Domain Group Learner that assigns groups is an
// explicit external component (spec.md's non-goals); this is a plain
// accessor over the field it would populate.
func (e *Engine) GetDomainGroup(ctx context.Context, tenant models.TenantID, domain string) (string, error) {
	entry, err := e.GetEntry(ctx, tenant, domain)
	if err != nil {
		return "", err
	}
	return entry.DomainGroup, nil
}
