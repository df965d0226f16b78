package verify

import (
	"regexp"
	"strings"

	"github.com/fetchkit/browsecore/models"
)

// Marker tables are deliberately separate from internal/render/lightweight's
// challengeMarkers: the lightweight tier only needs one coarse boolean
// ("does this page need a full browser"), generalized directly from the
// purify's scraper/httpfetch.go:needsBrowser. The anomaly detector needs to
// tell challenge, captcha, error-page and rate-limit states apart so the
// Tiered Fetcher can pick a different corrective action for each, so the
// tables here are finer-grained even where the underlying signatures
// overlap.
var (
	challengeMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cf-browser-verification`),
		regexp.MustCompile(`(?i)checking your browser`),
		regexp.MustCompile(`(?i)cf_chl_opt`),
		regexp.MustCompile(`(?i)just a moment\.\.\.`),
		regexp.MustCompile(`(?i)ddos-guard`),
		regexp.MustCompile(`(?i)verify you are human`),
	}

	captchaMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)g-recaptcha`),
		regexp.MustCompile(`(?i)recaptcha/api\.js`),
		regexp.MustCompile(`(?i)hcaptcha\.com`),
		regexp.MustCompile(`(?i)data-sitekey`),
	}

	rateLimitMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)too many requests`),
		regexp.MustCompile(`(?i)rate limit exceeded`),
		regexp.MustCompile(`(?i)429 too many requests`),
	}

	errorPageTitleMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<title>[^<]*\b404\b`),
		regexp.MustCompile(`(?i)<title>[^<]*page not found`),
		regexp.MustCompile(`(?i)<title>[^<]*not found`),
	}
)

// errorPageBodyThreshold mirrors needsBrowser's "very little visible text"
// signal: a 404-titled page with a short body is almost certainly a genuine
// error page rather than a false positive title match.
const errorPageBodyThreshold = 300

// emptyTextThreshold below this, a page is empty regardless of DOM shape.
const emptyTextThreshold = 50

// shellTextThreshold matches lightweight.shellTextThreshold: a page whose
// well-known SPA root is present but unrendered, with little visible text,
// is a shell rather than real content.
const shellTextThreshold = 1000

var appRootMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
}

// DetectContentAnomalies classifies rawHTML/content into one of this system's
// anomaly types, in the same priority order spec.md lists them: challenge,
// error page, empty/shell DOM, captcha, rate limit, topic drift. The first
// marker that fires wins; no per-type check is exported.
func DetectContentAnomalies(rawHTML string, content models.PageContent, expectedTopic string) models.AnomalyResult {
	lower := strings.ToLower(rawHTML)
	text := strings.TrimSpace(content.Text)

	if matchAny(challengeMarkers, rawHTML) {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyChallenge,
			Confidence:      0.9,
			Reasons:         []string{"anti-bot challenge marker present"},
			SuggestedAction: models.ActionWait,
			WaitTimeMs:      5000,
		}
	}

	if matchAny(errorPageTitleMarkers, rawHTML) && len(text) < errorPageBodyThreshold {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyErrorPage,
			Confidence:      0.85,
			Reasons:         []string{"404-style title with short body"},
			SuggestedAction: models.ActionSkip,
		}
	}

	if len(text) < emptyTextThreshold {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyEmpty,
			Confidence:      0.8,
			Reasons:         []string{"extracted text is effectively empty"},
			SuggestedAction: models.ActionRetry,
		}
	}

	if len(text) < shellTextThreshold && hasEmptyAppRoot(lower) {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyShellDOM,
			Confidence:      0.75,
			Reasons:         []string{"SPA root present but unrendered"},
			SuggestedAction: models.ActionRetry,
		}
	}

	if matchAny(captchaMarkers, rawHTML) {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyCaptcha,
			Confidence:      0.9,
			Reasons:         []string{"captcha widget marker present"},
			SuggestedAction: models.ActionChangeAgent,
		}
	}

	if matchAny(rateLimitMarkers, rawHTML) {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyRateLimit,
			Confidence:      0.85,
			Reasons:         []string{"rate-limit signature present"},
			SuggestedAction: models.ActionWait,
			WaitTimeMs:      30000,
		}
	}

	if expectedTopic != "" && !topicPresent(expectedTopic, content) {
		return models.AnomalyResult{
			IsAnomaly:       true,
			Type:            models.AnomalyTopicDrift,
			Confidence:      0.6,
			Reasons:         []string{"expected topic not found in title or text"},
			SuggestedAction: models.ActionRetry,
		}
	}

	return models.AnomalyResult{Type: models.AnomalyNone}
}

func matchAny(markers []*regexp.Regexp, s string) bool {
	for _, re := range markers {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func hasEmptyAppRoot(lowerHTML string) bool {
	for _, marker := range appRootMarkers {
		if strings.Contains(lowerHTML, marker) {
			return true
		}
	}
	return false
}

func topicPresent(expectedTopic string, content models.PageContent) bool {
	haystack := strings.ToLower(content.Title + " " + content.Text)
	return strings.Contains(haystack, strings.ToLower(expectedTopic))
}
