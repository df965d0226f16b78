package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

const (
	successAlpha  = 0.5
	failureBeta   = 0.2
	quarantineCap = 3
	cooldown      = 15 * time.Minute
	recencyHalflife = 7 * 24 * time.Hour

	minExtractedTextLen = 100
)

// Registry is the API Pattern Registry: a persistent, tenant-namespaced
// index of learned network-API bypass patterns.
type Registry struct {
	store *kv.Store
	bus   *broadcaster
}

// New builds a Registry backed by store.
func New(store *kv.Store) *Registry {
	return &Registry{store: store, bus: newBroadcaster()}
}

// Events returns a channel of pattern-change events for the Domain Group
// Learner (external) or any other subscriber.
func (r *Registry) Events() <-chan models.PatternChangeEvent {
	return r.bus.Subscribe()
}

// Bootstrap seeds tenant's namespace with the known-good pattern set if it
// has no patterns of its own yet. Safe to call on every startup.
func (r *Registry) Bootstrap(ctx context.Context, tenant models.TenantID, now time.Time) error {
	n, err := r.store.Count(ctx, tenant, kv.NSApiPatterns)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, p := range seedPatterns(now) {
		if err := r.put(ctx, tenant, &p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) put(ctx context.Context, tenant models.TenantID, p *models.ApiPattern) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "marshal api pattern", err)
	}
	return r.store.Put(ctx, tenant, kv.NSApiPatterns, p.ID, raw, kv.EntryMeta{
		Domain:   domainOf(p.URLPattern),
		Category: p.Category,
	})
}

func (r *Registry) all(ctx context.Context, tenant models.TenantID) ([]*models.ApiPattern, error) {
	raw, err := r.store.GetAll(ctx, tenant, kv.NSApiPatterns)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ApiPattern, 0, len(raw))
	for _, v := range raw {
		var p models.ApiPattern
		if err := json.Unmarshal(v, &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

func domainOf(urlPattern string) string {
	if i := strings.IndexByte(urlPattern, '/'); i >= 0 {
		return urlPattern[:i]
	}
	return urlPattern
}

// match is one ranked find_matching result.
type match struct {
	pattern *models.ApiPattern
	score   float64
}

// FindMatching returns patterns whose template matches rawURL, ranked by
// confidence x recency x specificity, descending. Quarantined and retired
// patterns are excluded.
func (r *Registry) FindMatching(ctx context.Context, tenant models.TenantID, rawURL string) ([]models.ApiPattern, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "parse url for pattern matching", err)
	}

	patterns, err := r.all(ctx, tenant)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var matches []match
	for _, p := range patterns {
		if p.Quarantined(now) || p.Retired() {
			continue
		}
		tmpl := parseTemplate(p.URLPattern)
		if !tmpl.matches(u.Host, u.Path) {
			continue
		}
		matches = append(matches, match{pattern: p, score: rankScore(p, tmpl, now)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]models.ApiPattern, 0, len(matches))
	for _, m := range matches {
		out = append(out, *m.pattern)
	}
	return out, nil
}

func rankScore(p *models.ApiPattern, tmpl urlTemplate, now time.Time) float64 {
	return p.Confidence * recencyOf(p.LastUsedAt, now) * tmpl.specificity()
}

// recencyOf decays exponentially with a one-week halflife; a pattern never
// used (zero LastUsedAt) is treated as maximally recent so freshly learned
// patterns get a chance before they've been used at all.
func recencyOf(lastUsedAt, now time.Time) float64 {
	if lastUsedAt.IsZero() {
		return 1
	}
	age := now.Sub(lastUsedAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(recencyHalflife))
}

func parseTemplate(pattern string) urlTemplate {
	parts := strings.SplitN(pattern, "/", 2)
	host := parts[0]
	path := ""
	if len(parts) == 2 {
		path = parts[1]
	}
	return urlToTemplate(host, path)
}

// LearnFromExtraction synthesises or reinforces a pattern from an observed
// network-API extraction. Returns nil (no error) if the observation doesn't
// meet the minimum-viable-pattern bar: JSON content, >=1 mapped field, and
// extracted text length >= 100.
func (r *Registry) LearnFromExtraction(ctx context.Context, tenant models.TenantID, obs models.ExtractionObservation) (*models.ApiPattern, error) {
	if !json.Valid(obs.ResponseBody) {
		return nil, nil
	}
	if len(obs.ExtractedText) < minExtractedTextLen {
		return nil, nil
	}

	mapping := findContentMapping(obs.ResponseBody, obs.ExtractedTitle, obs.ExtractedText)
	if len(mapping) == 0 {
		return nil, nil
	}

	u, err := url.Parse(obs.APIURL)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "parse api_url", err)
	}
	tmpl := urlToTemplate(u.Host, u.Path)

	now := time.Now()
	patterns, err := r.all(ctx, tenant)
	if err != nil {
		return nil, err
	}
	for _, p := range patterns {
		if p.URLPattern == tmpl.pattern && p.Method == methodOrDefault(obs.Method) {
			// Reinforce: repeated observations of the same template just
			// touch last_used_at and average in the new response time.
			p.LastUsedAt = now
			p.Metrics.AvgResponseMs = (p.Metrics.AvgResponseMs + float64(obs.ResponseTimeMs)) / 2
			if err := r.put(ctx, tenant, p); err != nil {
				return nil, err
			}
			r.bus.publish(models.PatternChangeEvent{Kind: models.PatternLearned, PatternID: p.ID, Domain: domainOf(p.URLPattern), Timestamp: now})
			return p, nil
		}
	}

	id := fmt.Sprintf("learned-%s-%s", strings.ReplaceAll(u.Host, ".", "-"), uuid.NewString())
	p := &models.ApiPattern{
		ID:             id,
		URLPattern:     tmpl.pattern,
		Method:         methodOrDefault(obs.Method),
		ContentMapping: mapping,
		Category:       "learned",
		Confidence:     0.6,
		Metrics:        models.PatternMetrics{AvgResponseMs: float64(obs.ResponseTimeMs)},
		LearnedAt:      now,
		LastUsedAt:     now,
	}
	if err := r.put(ctx, tenant, p); err != nil {
		return nil, err
	}
	r.bus.publish(models.PatternChangeEvent{Kind: models.PatternLearned, PatternID: p.ID, Domain: domainOf(p.URLPattern), Timestamp: now})
	return p, nil
}

func methodOrDefault(method string) string {
	if method == "" {
		return "GET"
	}
	return strings.ToUpper(method)
}

// UpdateMetrics adjusts pattern_id's confidence and counters after an
// attempt: c <- clamp(c + (success ? +alpha/(n+1) : -beta), 0, 1), where n
// is the success count observed so far. Three consecutive failures
// quarantine the pattern for `cooldown` without removing it from the index.
func (r *Registry) UpdateMetrics(ctx context.Context, tenant models.TenantID, patternID string, success bool, domain string, duration time.Duration, failureReason string) error {
	raw, ok, err := r.store.Get(ctx, tenant, kv.NSApiPatterns, patternID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewCoreError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown pattern %q", patternID), nil)
	}
	var p models.ApiPattern
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "unmarshal api pattern", err)
	}

	now := time.Now()
	p.LastUsedAt = now
	p.Metrics.AvgResponseMs = (p.Metrics.AvgResponseMs + float64(duration.Milliseconds())) / 2

	if success {
		p.Confidence = clamp01(p.Confidence + successAlpha/float64(p.Metrics.SuccessCount+1))
		p.Metrics.SuccessCount++
		p.ConsecutiveFailures = 0
	} else {
		p.Confidence = clamp01(p.Confidence - failureBeta)
		p.Metrics.FailureCount++
		p.Metrics.LastFailureReason = failureReason
		p.ConsecutiveFailures++
		if p.ConsecutiveFailures >= quarantineCap {
			p.QuarantinedUntil = now.Add(cooldown)
		}
	}

	if err := r.put(ctx, tenant, &p); err != nil {
		return err
	}
	r.bus.publish(models.PatternChangeEvent{Kind: models.PatternApplied, PatternID: p.ID, Domain: domain, Timestamp: now})
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PatternsForDomain returns every non-retired pattern whose URL pattern's
// host matches domain, for get_domain_intelligence's known_patterns field.
// Unlike FindMatching it isn't ranked against a specific URL — every pattern
// for the domain is returned, quarantined ones included, so callers can see
// the full picture.
func (r *Registry) PatternsForDomain(ctx context.Context, tenant models.TenantID, domain string) ([]models.ApiPattern, error) {
	patterns, err := r.all(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := make([]models.ApiPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Retired() {
			continue
		}
		if domainOf(p.URLPattern) == domain {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Remove deletes a single pattern.
func (r *Registry) Remove(ctx context.Context, tenant models.TenantID, patternID string) error {
	return r.store.Delete(ctx, tenant, kv.NSApiPatterns, patternID)
}

// Clear removes every pattern whose URL pattern's host matches domain.
func (r *Registry) Clear(ctx context.Context, tenant models.TenantID, domain string) error {
	patterns, err := r.all(ctx, tenant)
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if domainOf(p.URLPattern) == domain {
			if err := r.store.Delete(ctx, tenant, kv.NSApiPatterns, p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
