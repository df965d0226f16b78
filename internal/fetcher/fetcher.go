// Package fetcher implements the Tiered Fetcher (spec §4.3): the
// orchestrator every public operation ultimately calls. It gates and
// rate-limits a URL, consults the page-level cache and the API Pattern
// Registry, then cascades up the intelligence → lightweight → playwright
// render-tier ladder, verification-gating each attempt, until a tier
// produces content or the budget runs out. Every decision — tier attempts,
// selector/title resolution, validation, skipped tiers — is appended to a
// DecisionTrace, and Registry/Learning Engine/Procedural Memory all receive
// observations on completion.
//
// Purify's engine/dispatcher.go races every engine concurrently
// (context.WithCancel, first success wins) and remembers a domain's last
// winner in a bespoke TTL map (engine/domain_memory.go). Racing can't
// express this system's per-tier verification gate or budget accounting, so
// this package replaces dispatcher's control flow with this system's own
// sequential, validation-gated cascade — but keeps purify's idiom of
// trying the cheapest path first and remembering what worked
// (internal/learning's preferred-tier field takes over domain_memory's
// job).
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fetchkit/browsecore/cache"
	"github.com/fetchkit/browsecore/internal/extract"
	"github.com/fetchkit/browsecore/internal/heuristics"
	"github.com/fetchkit/browsecore/internal/learning"
	"github.com/fetchkit/browsecore/internal/memory"
	"github.com/fetchkit/browsecore/internal/ratelimit"
	"github.com/fetchkit/browsecore/internal/registry"
	"github.com/fetchkit/browsecore/internal/render/browser"
	"github.com/fetchkit/browsecore/internal/render/lightweight"
	"github.com/fetchkit/browsecore/internal/render/static"
	"github.com/fetchkit/browsecore/internal/safety"
	"github.com/fetchkit/browsecore/internal/verify"
	"github.com/fetchkit/browsecore/models"
)

const (
	defaultTierTimeout         = 15 * time.Second
	backoffSleep               = 5 * time.Second
	patternConfidenceThreshold = 0.5
)

// Deps bundles every collaborator the Tiered Fetcher wires together.
// Browser may be nil, in which case the playwright tier always fails with
// RENDERER_UNAVAILABLE rather than the fetcher dereferencing a nil pointer.
type Deps struct {
	Gate        *safety.Gate
	Limiter     *ratelimit.Limiter
	Heuristics  *heuristics.Config
	Registry    *registry.Registry
	Learning    *learning.Engine
	Memory      *memory.Memory
	Cache       *cache.Cache
	Extractor   *extract.Extractor
	Static      *static.Renderer
	Lightweight *lightweight.Renderer
	Browser     *browser.Renderer
}

// Fetcher is the Tiered Fetcher. Stateless beyond its Deps; safe for
// concurrent use, same as every renderer it wraps.
type Fetcher struct {
	deps Deps
}

// New builds a Fetcher over deps.
func New(deps Deps) *Fetcher {
	return &Fetcher{deps: deps}
}

// Fetch runs the full tiered-fetch algorithm for req and returns a
// BrowseResult. The returned error is non-nil only for conditions the
// caller cannot recover from by inspecting the result; ordinary fetch
// failures — blocked URLs, exhausted tiers — come back as
// result.Success == false with result.Error populated, error == nil,
// matching this tree's (value, ok/error) convention elsewhere.
func (f *Fetcher) Fetch(ctx context.Context, req models.Request) (*models.BrowseResult, error) {
	req.Options.Defaults()
	opts := req.Options
	start := time.Now()
	trace := &models.DecisionTrace{}

	u, err := f.deps.Gate.Validate(ctx, req.URL)
	if err != nil {
		return f.fail(req, trace, err), nil
	}
	domain := safety.Domain(u)

	if err := f.deps.Limiter.Acquire(ctx, domain); err != nil {
		return f.fail(req, trace, err), nil
	}

	if opts.Freshness != models.FreshnessRealtime {
		if cached, ok, cerr := f.deps.Cache.Get(ctx, req.TenantID, req.URL, opts.Freshness); cerr == nil && ok {
			if opts.Freshness == models.FreshnessCached {
				trace.Seal()
				cached.DecisionTrace = trace
				return cached, nil
			}
		}
	}

	entry, err := f.deps.Learning.GetEntry(ctx, req.TenantID, domain)
	if err != nil {
		entry = &models.DomainEntry{Domain: domain}
	}

	if summary, perr := f.deps.Learning.GetFailurePatterns(ctx, req.TenantID, domain); perr == nil && summary.ShouldBackoff {
		select {
		case <-ctx.Done():
			return f.fail(req, trace, ctx.Err()), nil
		case <-time.After(backoffSleep):
		}
	}

	if patterns, perr := f.deps.Registry.FindMatching(ctx, req.TenantID, req.URL); perr == nil && len(patterns) > 0 && patterns[0].Confidence > patternConfidenceThreshold {
		if result := f.attemptPattern(ctx, req, domain, patterns[0], trace, start); result != nil {
			return result, nil
		}
	}

	return f.runCascade(ctx, req, domain, entry, trace, start)
}

// runCascade executes steps 5-10 of the algorithm: pick a starting tier,
// execute tiers in ascending cost order until one verifies, honoring
// max_cost_tier and max_latency_ms, recording every attempt and the skill
// (if any) applied during the playwright tier.
func (f *Fetcher) runCascade(ctx context.Context, req models.Request, domain string, entry *models.DomainEntry, trace *models.DecisionTrace, start time.Time) (*models.BrowseResult, error) {
	opts := req.Options
	tiers := models.AllTiers()
	startIdx := f.chooseStartTier(opts, domain, entry).Rank()
	if startIdx < 0 {
		startIdx = 0
	}

	var staticRes *static.Result
	var lastErr error
	latencyExceeded := false

	for idx := startIdx; idx < len(tiers); idx++ {
		tier := tiers[idx]

		if opts.MaxCostTier != "" && opts.MaxCostTier.Valid() && tier.Rank() > opts.MaxCostTier.Rank() {
			for j := idx; j < len(tiers); j++ {
				trace.TiersSkipped = append(trace.TiersSkipped, tiers[j])
			}
			break
		}
		if opts.MaxLatencyMs > 0 && time.Since(start).Milliseconds() >= opts.MaxLatencyMs {
			latencyExceeded = true
			break
		}

		timeout := defaultTierTimeout
		if opts.TierTimeoutMs > 0 {
			timeout = time.Duration(opts.TierTimeoutMs) * time.Millisecond
		}
		tierCtx, cancel := context.WithTimeout(ctx, timeout)

		attemptStart := time.Now()
		html, finalURL, network, console, forceEscalate, skillsOutcome, tierErr := f.runTier(tierCtx, req, tier, domain, &staticRes)
		duration := time.Since(attemptStart).Milliseconds()
		// Read the tier context's error before calling cancel: cancel()
		// would otherwise stamp it as context.Canceled even when the tier
		// failed for an unrelated reason, misclassifying every ordinary
		// failure as a caller cancellation.
		tierCtxErr := tierCtx.Err()
		cancel()

		if skillsOutcome.Applied != "" || len(skillsOutcome.Matched) > 0 {
			trace.Skills = skillsOutcome
		}

		if tierErr != nil {
			reason := classifyTierFailure(tierCtxErr, tierErr)
			trace.TierAttempts = append(trace.TierAttempts, models.TierAttempt{Tier: tier, Success: false, DurationMs: duration, FailureReason: reason})
			if reason != models.FailureCancelled && opts.EnableLearning {
				_ = f.deps.Learning.RecordFailure(ctx, req.TenantID, domain, models.FailureRecord{
					Type:         learning.ClassifyError(tierErr),
					ErrorMessage: tierErr.Error(),
					Timestamp:    time.Now(),
				})
			}
			lastErr = tierErr
			continue
		}

		content, extractTrace, exErr := f.deps.Extractor.ExtractWithTrace(html, finalURL, opts.SelectorChain)
		if exErr != nil {
			trace.TierAttempts = append(trace.TierAttempts, models.TierAttempt{Tier: tier, Success: false, DurationMs: duration, FailureReason: models.FailureParseError})
			if opts.EnableLearning {
				_ = f.deps.Learning.RecordFailure(ctx, req.TenantID, domain, models.FailureRecord{Type: models.FailureTypeParseError, ErrorMessage: exErr.Error(), Timestamp: time.Now()})
			}
			lastErr = exErr
			continue
		}
		trace.SelectorAttempts = append(trace.SelectorAttempts, extractTrace.SelectorAttempts...)
		trace.TitleAttempts = append(trace.TitleAttempts, extractTrace.TitleAttempts...)

		metadata := extract.ExtractMetadata(html, finalURL)
		patterns, _ := f.deps.Registry.FindMatching(ctx, req.TenantID, finalURL)
		validation, anomaly := verify.Verify(opts.Verify, html, content, verify.Options{
			MinContentLength: opts.MinContentLength,
			Validators:       entry.Validators,
			Patterns:         patterns,
			Metadata:         metadata,
		})
		trace.Validation = append(trace.Validation, validation)
		if anomaly.IsAnomaly {
			trace.Anomaly = &anomaly
		}

		lengthOK := len(content.Text) >= opts.MinContentLength
		success := validation.Passed && lengthOK && !forceEscalate

		if !success {
			reason := failureReasonFor(validation, lengthOK, forceEscalate)
			trace.TierAttempts = append(trace.TierAttempts, models.TierAttempt{Tier: tier, Success: false, DurationMs: duration, FailureReason: reason, ValidationDetails: &validation})
			if opts.EnableLearning {
				_ = f.deps.Learning.RecordFailure(ctx, req.TenantID, domain, models.FailureRecord{
					Type:         failureTypeFor(reason),
					ErrorMessage: strings.Join(validation.Errors, "; "),
					Timestamp:    time.Now(),
				})
			}
			lastErr = fmt.Errorf("tier %s failed verification: %s", tier, strings.Join(validation.Errors, "; "))
			continue
		}

		trace.TierAttempts = append(trace.TierAttempts, models.TierAttempt{Tier: tier, Success: true, DurationMs: duration, ValidationDetails: &validation})
		trace.NetworkSummary = networkSummary(network)
		trace.Budget = models.BudgetOutcome{TierTimeoutMs: opts.TierTimeoutMs, MaxLatencyMs: opts.MaxLatencyMs, SpentMs: time.Since(start).Milliseconds(), LatencyExceeded: latencyExceeded}
		trace.Seal()

		discovered := discoveredAPIs(network)
		result := &models.BrowseResult{
			URL:            req.URL,
			FinalURL:       finalURL,
			Title:          content.Title,
			Content:        content,
			DiscoveredAPIs: discovered,
			Network:        network,
			Console:        console,
			Metadata:       metadata,
			Learning:       models.LearningOutcome{RenderTier: tier, ConfidenceLevel: confidenceLevel(validation.Confidence)},
			DecisionTrace:  trace,
			Success:        true,
			FetchedAt:      time.Now(),
		}

		f.onSuccess(ctx, req, domain, tier, duration, content, network, discovered, start)
		_ = f.deps.Cache.Set(ctx, req.TenantID, req.URL, *result)
		return result, nil
	}

	ce := models.AsCoreError(lastErr)
	if lastErr == nil {
		ce = models.NewCoreError(models.ErrCodeAllTiersFailed, "no tier was attempted", nil)
	} else {
		ce = models.NewCoreError(models.ErrCodeAllTiersFailed, "all render tiers failed verification", lastErr)
	}
	trace.Budget = models.BudgetOutcome{TierTimeoutMs: opts.TierTimeoutMs, MaxLatencyMs: opts.MaxLatencyMs, SpentMs: time.Since(start).Milliseconds(), LatencyExceeded: latencyExceeded}
	trace.Seal()
	return &models.BrowseResult{
		URL:           req.URL,
		Success:       false,
		Error:         ce.ToDetail(),
		DecisionTrace: trace,
		FetchedAt:     time.Now(),
	}, nil
}

// onSuccess emits this system's step-9 observations: Registry learns from any
// JSON network traces captured during this tier, Learning Engine records
// the success profile, Procedural Memory closes the trajectory.
func (f *Fetcher) onSuccess(ctx context.Context, req models.Request, domain string, tier models.RenderTier, durationMs int64, content models.PageContent, network []models.NetworkRequest, discovered []string, start time.Time) {
	opts := req.Options

	if opts.EnableLearning {
		hasTables := len(content.Tables) > 0
		hasAPIs := len(discovered) > 0
		hasFramework := len(network) > 1
		_ = f.deps.Learning.RecordSuccess(ctx, req.TenantID, domain, tier, durationMs, len(content.Text), hasTables, hasFramework, hasAPIs)

		for _, nr := range network {
			if !strings.Contains(strings.ToLower(nr.ContentType), "json") {
				continue
			}
			_, _ = f.deps.Registry.LearnFromExtraction(ctx, req.TenantID, models.ExtractionObservation{
				SourceURL:      req.URL,
				APIURL:         nr.URL,
				Strategy:       string(tier),
				ResponseTimeMs: durationMs,
				Method:         nr.Method,
				ResponseBody:   []byte(nr.ResponseBody),
				ExtractedTitle: content.Title,
				ExtractedText:  content.Text,
			})
		}
	}

	if opts.RecordTrajectory && f.deps.Memory != nil {
		traj := models.BrowsingTrajectory{
			Domain:        domain,
			StartURL:      req.URL,
			Success:       true,
			TotalDuration: time.Since(start),
			Actions: []models.BrowsingAction{
				{Type: models.ActionNavigate, URL: req.URL, Success: true, Timestamp: start},
				{Type: models.ActionExtract, Success: true, Timestamp: time.Now()},
			},
			ExtractedContent: models.ExtractedContentSummary{
				TextLen: len(content.Text),
				Tables:  len(content.Tables),
				APIs:    len(discovered),
			},
		}
		_ = f.deps.Memory.RecordTrajectory(ctx, req.TenantID, traj)
	}
}

// chooseStartTier implements step 5: force_tier wins, then heuristics
// classification, then the Learning Engine's remembered preference,
// defaulting to the intelligence tier.
func (f *Fetcher) chooseStartTier(opts models.FetchOptions, domain string, entry *models.DomainEntry) models.RenderTier {
	if opts.ForceTier.Valid() {
		return opts.ForceTier
	}
	if f.deps.Heuristics != nil {
		if f.deps.Heuristics.IsBrowserRequired(domain) {
			return models.TierPlaywright
		}
		if f.deps.Heuristics.IsStaticDomain(domain) {
			return models.TierIntelligence
		}
	}
	if entry != nil && entry.Profile.PreferredTier.Valid() {
		return entry.Profile.PreferredTier
	}
	return models.TierIntelligence
}

// runTier executes one render tier and returns its raw HTML, resolved
// final URL, captured network/console activity, and whether the renderer
// itself flagged the result as needing escalation (the lightweight tier's
// needs_full_browser signal). The lightweight tier needs raw HTML to layer
// script execution on top of, so it shares the intelligence tier's static
// fetch rather than issuing its own GET — staticRes caches that fetch
// across tiers within one request.
func (f *Fetcher) runTier(ctx context.Context, req models.Request, tier models.RenderTier, domain string, staticRes **static.Result) (html, finalURL string, network []models.NetworkRequest, console []models.ConsoleMessage, forceEscalate bool, skills models.SkillsOutcome, err error) {
	opts := req.Options

	switch tier {
	case models.TierIntelligence:
		res, serr := f.fetchStatic(ctx, req)
		if serr != nil {
			return "", "", nil, nil, false, skills, serr
		}
		*staticRes = res
		return res.HTML, res.FinalURL, []models.NetworkRequest{res.NetworkRequest}, nil, false, skills, nil

	case models.TierLightweight:
		if f.deps.Lightweight == nil {
			return "", "", nil, nil, false, skills, models.NewCoreError(models.ErrCodeRendererUnavailable, "lightweight renderer not configured", nil)
		}
		base := *staticRes
		if base == nil {
			res, serr := f.fetchStatic(ctx, req)
			if serr != nil {
				return "", "", nil, nil, false, skills, serr
			}
			base = res
			*staticRes = res
		}
		lwRes, lerr := f.deps.Lightweight.Render(ctx, req.TenantID, req.SessionProfile, base.FinalURL, base.HTML, lightweight.Options{})
		if lerr != nil {
			return "", "", nil, nil, false, skills, lerr
		}
		return lwRes.HTML, lwRes.FinalURL, lwRes.Network, nil, lwRes.NeedsFullBrowser, skills, nil

	case models.TierPlaywright:
		if f.deps.Browser == nil {
			return "", "", nil, nil, false, skills, models.NewCoreError(models.ErrCodeRendererUnavailable, "browser renderer not configured", nil)
		}
		actions, outcome := f.resolveSkillActions(ctx, req, domain)
		skills = outcome
		browseStart := time.Now()
		brRes, berr := f.deps.Browser.Browse(ctx, req.TenantID, req.SessionProfile, req.URL, browser.Options{
			WaitFor:        opts.WaitFor,
			TimeoutMs:      opts.TierTimeoutMs,
			RemoveOverlays: opts.DismissCookieBanner,
			ScrollToLoad:   opts.ScrollToLoad,
			CaptureConsole: true,
			Actions:        actions,
		})
		if berr != nil {
			return "", "", nil, nil, false, skills, berr
		}
		if len(actions) > 0 && f.deps.Memory != nil && skills.Applied != "" {
			succeeded := !anyCriticalFailed(brRes.ActionResults)
			_ = f.deps.Memory.RecordSkillExecution(ctx, req.TenantID, skills.Applied, succeeded, time.Since(browseStart))
		}
		return brRes.HTML, brRes.FinalURL, nil, brRes.Console, false, skills, nil
	}

	return "", "", nil, nil, false, skills, fmt.Errorf("unknown tier %q", tier)
}

// fetchStatic runs the static renderer, used directly for the intelligence
// tier and as the lightweight tier's raw-HTML source.
func (f *Fetcher) fetchStatic(ctx context.Context, req models.Request) (*static.Result, error) {
	return f.deps.Static.Render(ctx, req.TenantID, req.SessionProfile, req.URL, static.Options{
		Headers:  req.Options.Headers,
		ProxyURL: req.Options.ProxyURL,
	})
}

// resolveSkillActions consults Procedural Memory for a matching skill to
// replay during the playwright tier, when use_skills is on. Page context is
// built from what's known before navigation (domain, caller-supplied
// selector chain) — a coarser signal than a post-render PageContext would
// give, but the only one available before the browser tier itself runs.
func (f *Fetcher) resolveSkillActions(ctx context.Context, req models.Request, domain string) ([]models.BrowsingAction, models.SkillsOutcome) {
	var outcome models.SkillsOutcome
	if !req.Options.UseSkills || f.deps.Memory == nil {
		return nil, outcome
	}
	pageCtx := models.PageContext{
		URL:                req.URL,
		Domain:             domain,
		PageType:           models.PageUnknown,
		AvailableSelectors: req.Options.SelectorChain,
	}
	matches, err := f.deps.Memory.RetrieveSkills(ctx, req.TenantID, pageCtx, 3)
	if err != nil || len(matches) == 0 {
		return nil, outcome
	}
	for _, m := range matches {
		outcome.Matched = append(outcome.Matched, m.Skill.ID)
	}
	best := matches[0]
	if !best.PreconditionsMet {
		return nil, outcome
	}
	outcome.Applied = best.Skill.ID
	return best.Skill.ActionSequence, outcome
}

func anyCriticalFailed(results []models.ActionResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

// attemptPattern implements step 4: the highest-confidence matching
// registry pattern is attempted first, regardless of the chosen starting
// tier. Patterns are matched against the requested URL itself (not a
// distinct API endpoint discovered separately) — every seeded pattern
// (reddit's `.json` suffix, the GitHub/npm/PyPI/Wikipedia/HN/
// StackExchange/dev.to JSON APIs) is a URL callers request directly, so a
// static GET of req.URL *is* the API call. Only GET patterns are
// supported: the Static Renderer has no verb parameter.
func (f *Fetcher) attemptPattern(ctx context.Context, req models.Request, domain string, pattern models.ApiPattern, trace *models.DecisionTrace, start time.Time) *models.BrowseResult {
	if pattern.Method != "" && !strings.EqualFold(pattern.Method, "GET") {
		return nil
	}

	attemptStart := time.Now()
	res, err := f.fetchStatic(ctx, req)
	duration := time.Since(attemptStart)
	if err != nil {
		_ = f.deps.Registry.UpdateMetrics(ctx, req.TenantID, pattern.ID, false, domain, duration, err.Error())
		return nil
	}
	if !json.Valid([]byte(res.HTML)) {
		_ = f.deps.Registry.UpdateMetrics(ctx, req.TenantID, pattern.ID, false, domain, duration, "non-json response")
		return nil
	}

	content := extractByMapping([]byte(res.HTML), pattern.ContentMapping)
	if len(content.Text) == 0 {
		_ = f.deps.Registry.UpdateMetrics(ctx, req.TenantID, pattern.ID, false, domain, duration, "no mapped fields present")
		return nil
	}
	if len(content.Text) < req.Options.MinContentLength {
		_ = f.deps.Registry.UpdateMetrics(ctx, req.TenantID, pattern.ID, false, domain, duration, "content below minimum length")
		return nil
	}

	_ = f.deps.Registry.UpdateMetrics(ctx, req.TenantID, pattern.ID, true, domain, duration, "")

	fieldConfidence := make(map[string]models.FieldConfidence, len(pattern.ContentMapping))
	for field := range pattern.ContentMapping {
		fieldConfidence[field] = models.FieldConfidence{
			Score:  pattern.Confidence,
			Source: models.SourceAPIResponse,
			Reason: "registry pattern " + pattern.ID,
		}
	}

	trace.TierAttempts = append(trace.TierAttempts, models.TierAttempt{Tier: models.TierIntelligence, Success: true, DurationMs: duration.Milliseconds()})
	trace.Budget = models.BudgetOutcome{TierTimeoutMs: req.Options.TierTimeoutMs, MaxLatencyMs: req.Options.MaxLatencyMs, SpentMs: time.Since(start).Milliseconds()}
	trace.Seal()

	result := &models.BrowseResult{
		URL:             req.URL,
		FinalURL:        res.FinalURL,
		Title:           content.Title,
		Content:         content,
		Metadata:        models.ResultMetadata{},
		FieldConfidence: fieldConfidence,
		Learning:        models.LearningOutcome{RenderTier: models.TierIntelligence, ConfidenceLevel: confidenceLevel(pattern.Confidence)},
		DecisionTrace:   trace,
		Success:         true,
		FetchedAt:       time.Now(),
	}

	if req.Options.EnableLearning {
		_ = f.deps.Learning.RecordSuccess(ctx, req.TenantID, domain, models.TierIntelligence, duration.Milliseconds(), len(content.Text), false, false, true)
	}
	_ = f.deps.Cache.Set(ctx, req.TenantID, req.URL, *result)
	return result
}

// extractByMapping resolves a registry pattern's content_mapping (field
// name -> dot-path into the decoded JSON body) into a PageContent. Keys are
// walked in sorted order so the concatenated text is deterministic
// regardless of Go's randomized map iteration.
func extractByMapping(body []byte, mapping map[string]string) models.PageContent {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.PageContent{}
	}

	fields := make([]string, 0, len(mapping))
	for field := range mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var content models.PageContent
	var parts []string
	for _, field := range fields {
		val, ok := resolveJSONPath(doc, mapping[field])
		if !ok {
			continue
		}
		s := fmt.Sprintf("%v", val)
		if field == "title" {
			content.Title = s
			continue
		}
		parts = append(parts, s)
	}
	content.Text = strings.Join(parts, "\n\n")
	content.Markdown = content.Text
	return content
}

func resolveJSONPath(doc any, path string) (any, bool) {
	cur := doc
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[segment]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func confidenceLevel(score float64) models.ConfidenceLevel {
	switch {
	case score >= 0.8:
		return models.ConfidenceHigh
	case score >= 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func discoveredAPIs(network []models.NetworkRequest) []string {
	var out []string
	for _, nr := range network {
		if strings.Contains(strings.ToLower(nr.ContentType), "json") {
			out = append(out, nr.URL)
		}
	}
	return out
}

func networkSummary(network []models.NetworkRequest) models.NetworkSummary {
	s := models.NetworkSummary{TotalRequests: len(network)}
	for _, nr := range network {
		if strings.Contains(strings.ToLower(nr.ContentType), "json") {
			s.APIRequests++
		}
		if nr.Status >= 400 {
			s.FailedCount++
		}
	}
	return s
}

// failureReasonFor maps a failed verification onto this system's
// failure_reason taxonomy for the TierAttempt trace entry.
func failureReasonFor(validation models.Validation, lengthOK, forceEscalate bool) models.FailureReason {
	if forceEscalate {
		return models.FailureBotChallenge
	}
	if !lengthOK {
		return models.FailureContentTooShort
	}
	return models.FailureValidationFailed
}

func failureTypeFor(reason models.FailureReason) models.FailureType {
	switch reason {
	case models.FailureBotChallenge:
		return models.FailureTypeBotChallenge
	case models.FailureContentTooShort:
		return models.FailureTypeEmptyContent
	default:
		return models.FailureTypeParseError
	}
}

// classifyTierFailure maps a tier execution error onto this system's
// failure_reason taxonomy, distinguishing a caller-driven cancellation from
// a budget timeout per §4.3's cancellation rule. ctxErr must be the tier's
// context error captured before its cancel func was called, otherwise an
// ordinary failure would read back as context.Canceled regardless of cause.
func classifyTierFailure(ctxErr error, err error) models.FailureReason {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	if errors.Is(ctxErr, context.Canceled) {
		return models.FailureCancelled
	}

	ce := models.AsCoreError(err)
	switch ce.Code {
	case models.ErrCodeRendererUnavailable:
		return models.FailureNetwork
	case models.ErrCodeValidationFailed:
		return models.FailureParseError
	case models.ErrCodeCancelled:
		return models.FailureCancelled
	case models.ErrCodeInvalidURL:
		return models.FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return models.FailureTimeout
	case strings.Contains(msg, "context canceled"):
		return models.FailureCancelled
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return models.FailureHTTPError
	default:
		return models.FailureNetwork
	}
}

// fail builds a terminal BrowseResult for failures that occur before any
// tier is attempted (blocked URL, rate-limiter error, cancelled context).
func (f *Fetcher) fail(req models.Request, trace *models.DecisionTrace, err error) *models.BrowseResult {
	ce := models.AsCoreError(err)
	trace.Errors = append(trace.Errors, models.ErrorRecord{Type: ce.Code, Message: ce.Message, Timestamp: time.Now()})
	trace.Seal()
	return &models.BrowseResult{
		URL:           req.URL,
		Success:       false,
		Error:         ce.ToDetail(),
		DecisionTrace: trace,
		FetchedAt:     time.Now(),
	}
}
