package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fetchkit/browsecore/internal/render/browser"
	"github.com/fetchkit/browsecore/internal/safety"
	"github.com/fetchkit/browsecore/models"
)

// Screenshot is the screenshot(url, opts) operation (spec §6).
func (c *CoreContext) Screenshot(ctx context.Context, tenant models.TenantID, rawURL string, opts models.ScreenshotOptions) *models.ScreenshotResult {
	start := time.Now()
	if c.Browser == nil {
		return &models.ScreenshotResult{
			OK:        false,
			Timestamp: start,
			Err:       &models.ErrorDetail{Code: models.ErrCodeRendererUnavailable, Message: "browser renderer unavailable"},
		}
	}

	u, err := c.Gate.Validate(ctx, rawURL)
	if err != nil {
		return &models.ScreenshotResult{OK: false, Timestamp: start, Err: coreErrDetail(err)}
	}
	domain := safety.Domain(u)
	if err := c.Limiter.Acquire(ctx, domain); err != nil {
		return &models.ScreenshotResult{OK: false, Timestamp: start, Err: coreErrDetail(err)}
	}

	res, err := c.Browser.Screenshot(ctx, tenant, opts.SessionProfile, rawURL, browser.ScreenshotOptions{
		FullPage:        opts.FullPage,
		Element:         opts.Element,
		WaitForSelector: opts.WaitForSelector,
		Width:           opts.Width,
		Height:          opts.Height,
	})
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return &models.ScreenshotResult{OK: false, Timestamp: start, Duration: duration, Err: coreErrDetail(err)}
	}

	return &models.ScreenshotResult{
		OK:        true,
		PNGBase64: base64.StdEncoding.EncodeToString(res.PNG),
		FinalURL:  res.FinalURL,
		Title:     res.Title,
		Viewport:  [2]int{res.Width, res.Height},
		Timestamp: start,
		Duration:  duration,
	}
}

const defaultMaxHARBodyBytes = 1 << 20 // 1 MB

// ExportHAR is the export_har(url, opts) operation (spec §6). It drives the
// full browser tier with network capture enabled and assembles the
// captured requests into a HAR 1.2 log.
func (c *CoreContext) ExportHAR(ctx context.Context, tenant models.TenantID, rawURL string, opts models.HarOptions) *models.HarResult {
	start := time.Now()
	if c.Browser == nil {
		return &models.HarResult{OK: false, Timestamp: start, Err: &models.ErrorDetail{Code: models.ErrCodeRendererUnavailable, Message: "browser renderer unavailable"}}
	}

	u, err := c.Gate.Validate(ctx, rawURL)
	if err != nil {
		return &models.HarResult{OK: false, Timestamp: start, Err: coreErrDetail(err)}
	}
	domain := safety.Domain(u)
	if err := c.Limiter.Acquire(ctx, domain); err != nil {
		return &models.HarResult{OK: false, Timestamp: start, Err: coreErrDetail(err)}
	}

	res, err := c.Browser.Browse(ctx, tenant, opts.SessionProfile, rawURL, browser.Options{
		WaitFor:              "load",
		WaitForSelector:      opts.WaitForSelector,
		CaptureNetwork:       true,
		CaptureNetworkBodies: opts.IncludeBodies,
	})
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return &models.HarResult{OK: false, Timestamp: start, Duration: duration, Err: coreErrDetail(err)}
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxHARBodyBytes
	}

	entries := make([]models.HarEntry, 0, len(res.Network))
	for _, n := range res.Network {
		entries = append(entries, buildHarEntry(n, opts.IncludeBodies, maxBody))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartedDateTime.Before(entries[j].StartedDateTime) })

	har := &models.Har{
		Log: models.HarLog{
			Version: "1.2",
			Creator: models.HarCreator{Name: "browsecore", Version: "1.0"},
			Entries: entries,
		},
	}

	return &models.HarResult{
		OK:        true,
		Har:       har,
		FinalURL:  res.FinalURL,
		Title:     res.Title,
		Entries:   len(entries),
		Timestamp: start,
		Duration:  duration,
	}
}

func buildHarEntry(n models.NetworkRequest, includeBodies bool, maxBody int) models.HarEntry {
	reqHeaders := make([]models.HarHeader, 0, len(n.RequestHeaders))
	for k, v := range n.RequestHeaders {
		reqHeaders = append(reqHeaders, models.HarHeader{Name: k, Value: v})
	}
	respHeaders := make([]models.HarHeader, 0, len(n.Headers))
	for k, v := range n.Headers {
		respHeaders = append(respHeaders, models.HarHeader{Name: k, Value: v})
	}

	content := models.HarContent{
		Size:     len(n.ResponseBody),
		MimeType: n.ContentType,
	}
	if includeBodies && len(n.ResponseBody) > 0 && len(n.ResponseBody) <= maxBody {
		content.Text = n.ResponseBody
	}

	return models.HarEntry{
		StartedDateTime: n.Timestamp,
		Time:            float64(n.DurationMs),
		Request: models.HarRequest{
			Method:      n.Method,
			URL:         n.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     reqHeaders,
			Cookies:     []models.HarCookie{},
			HeadersSize: -1,
			BodySize:    len(n.RequestBody),
		},
		Response: models.HarResponse{
			Status:      n.Status,
			HTTPVersion: "HTTP/1.1",
			Headers:     respHeaders,
			Cookies:     []models.HarCookie{},
			Content:     content,
			HeadersSize: -1,
			BodySize:    len(n.ResponseBody),
		},
		Timings: models.HarTimings{
			Send:    0,
			Wait:    float64(n.DurationMs),
			Receive: 0,
		},
	}
}

// GetDomainIntelligence is the get_domain_intelligence(domain) operation
// (spec §6): a read-only snapshot of everything the Registry, Learning
// Engine and Heuristics config know about domain.
func (c *CoreContext) GetDomainIntelligence(ctx context.Context, tenant models.TenantID, domain string) (*models.DomainIntelligence, error) {
	patterns, err := c.Registry.PatternsForDomain(ctx, tenant, domain)
	if err != nil {
		return nil, err
	}
	entry, err := c.Learning.GetEntry(ctx, tenant, domain)
	if err != nil {
		entry = &models.DomainEntry{Domain: domain}
	}
	group, _ := c.Learning.GetDomainGroup(ctx, tenant, domain)

	waitStrategy := "domcontentloaded"
	if c.Heuristics.IsBrowserRequired(domain) {
		waitStrategy = "networkidle"
	}

	return &models.DomainIntelligence{
		KnownPatterns:           patterns,
		SelectorChains:          entry.SelectorChains,
		Validators:              entry.Validators,
		PaginationPatterns:      entry.PaginationPatterns,
		RecentFailures:          entry.RecentFailures,
		SuccessRate:             entry.OverallSuccessRate,
		DomainGroup:             group,
		RecommendedWaitStrategy: waitStrategy,
		ShouldUseSession:        entry.Profile.HasBypassableAPIs || len(patterns) > 0,
	}, nil
}

// GetDomainCapabilities is the get_domain_capabilities(domain) operation
// (spec §6): a higher-level, recommendation-oriented view built from the
// same DomainEntry/Registry data GetDomainIntelligence uses.
func (c *CoreContext) GetDomainCapabilities(ctx context.Context, tenant models.TenantID, domain string) (*models.DomainCapabilitiesResult, error) {
	patterns, err := c.Registry.PatternsForDomain(ctx, tenant, domain)
	if err != nil {
		return nil, err
	}
	entry, err := c.Learning.GetEntry(ctx, tenant, domain)
	if err != nil {
		entry = &models.DomainEntry{Domain: domain}
	}

	caps := models.DomainCapabilities{
		HasStructuredData: entry.Profile.HasStructuredData,
		HasFrameworkData:  entry.Profile.HasFrameworkData,
		HasBypassableAPIs: len(patterns) > 0 || entry.Profile.HasBypassableAPIs,
		RequiresBrowser:   c.Heuristics.IsBrowserRequired(domain),
	}

	n := len(entry.RecentOutcomes)
	score := entry.OverallSuccessRate
	basis := "no observations yet"
	switch {
	case n >= 10:
		basis = fmt.Sprintf("%d recent outcomes", n)
	case n > 0:
		score *= float64(n) / 10 // discount confidence until the outcome window fills
		basis = fmt.Sprintf("only %d recent outcomes", n)
	}

	recommendations := make([]string, 0, 3)
	if caps.HasBypassableAPIs {
		recommendations = append(recommendations, "prefer discovered API patterns over full-page rendering")
	}
	if caps.RequiresBrowser {
		recommendations = append(recommendations, "force_tier=playwright recommended for this domain")
	}
	if entry.Profile.PreferredTier == "" {
		recommendations = append(recommendations, "no tier history yet; default cascade will probe from intelligence upward")
	}

	return &models.DomainCapabilitiesResult{
		Capabilities: caps,
		Confidence: models.DomainConfidence{
			Level: confidenceLevelOf(score),
			Score: score,
			Basis: basis,
		},
		Performance: models.DomainPerformance{
			PreferredTier: entry.Profile.PreferredTier,
			AvgResponseMs: entry.Profile.AvgResponseMs,
			SuccessRate:   entry.OverallSuccessRate,
		},
		Recommendations: recommendations,
		Details: map[string]string{
			"content_length": fmt.Sprintf("%d", entry.Profile.ContentLength),
			"domain_group":   entry.DomainGroup,
		},
	}, nil
}

func confidenceLevelOf(score float64) models.ConfidenceLevel {
	switch {
	case score >= 0.8:
		return models.ConfidenceHigh
	case score >= 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// BatchFetch is the batch_fetch(urls, opts, batch_opts) operation (spec
// §6): fans out over urls with a bounded concurrency via
// golang.org/x/sync/errgroup, honoring stop_on_error and
// continue_on_rate_limit.
func (c *CoreContext) BatchFetch(ctx context.Context, tenant models.TenantID, urls []string, opts models.FetchOptions, batchOpts models.BatchOptions) []models.BatchItemResult {
	batchOpts.Defaults()

	if batchOpts.TotalTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(batchOpts.TotalTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	results := make([]models.BatchItemResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchOpts.Concurrency)

	var stopped atomic.Bool
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if stopped.Load() {
				results[i] = models.BatchItemResult{URL: u, Status: models.BatchSkipped, Index: i}
				return nil
			}

			itemCtx := gctx
			var cancel context.CancelFunc
			if batchOpts.PerURLTimeoutMs > 0 {
				itemCtx, cancel = context.WithTimeout(gctx, time.Duration(batchOpts.PerURLTimeoutMs)*time.Millisecond)
				defer cancel()
			}

			start := time.Now()
			result, err := c.Fetch(itemCtx, models.Request{URL: u, Options: opts, TenantID: tenant, SessionProfile: opts.SessionProfile, StartedAt: start})
			duration := time.Since(start).Milliseconds()

			if err != nil {
				results[i] = models.BatchItemResult{URL: u, Status: models.BatchError, Err: coreErrDetail(err), Duration: duration, Index: i}
				if batchOpts.StopOnError {
					stopped.Store(true)
					return err
				}
				return nil
			}

			if !result.Success && result.Error != nil && result.Error.Code == models.ErrCodeRateLimited {
				results[i] = models.BatchItemResult{URL: u, Status: models.BatchRateLimited, Result: result, Duration: duration, Index: i}
				if !batchOpts.ContinueOnRateLimit {
					stopped.Store(true)
				}
				return nil
			}

			if !result.Success {
				results[i] = models.BatchItemResult{URL: u, Status: models.BatchError, Result: result, Err: result.Error, Duration: duration, Index: i}
				if batchOpts.StopOnError {
					stopped.Store(true)
				}
				return nil
			}

			results[i] = models.BatchItemResult{URL: u, Status: models.BatchSuccess, Result: result, Duration: duration, Index: i}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func coreErrDetail(err error) *models.ErrorDetail {
	return models.AsCoreError(err).ToDetail()
}

