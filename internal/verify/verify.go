// Package verify implements the Verifier & Anomaly Detector (spec §4.11):
// three escalating verification modes (basic/standard/thorough) that decide
// whether a BrowseResult is trustworthy enough to return, plus the content
// anomaly classifier the Tiered Fetcher uses to drive up-tier/back-off
// decisions. Anomaly marker scanning generalizes purify's
// scraper/httpfetch.go:needsBrowser single-signal heuristic into this system's
// full marker taxonomy.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fetchkit/browsecore/models"
)

// defaultMinContentLength matches BrowseOptions.min_content_length's
// documented default.
const defaultMinContentLength = 500

// Options carries everything a verification pass beyond "off" needs besides
// the extracted content itself.
type Options struct {
	MinContentLength int
	ExpectedTopic    string
	Validators       []models.Validator
	// Patterns is the ranked find_matching result for the URL being
	// verified, used by the thorough mode's cross-check. Empty/nil skips
	// that check rather than failing it.
	Patterns []models.ApiPattern
	Metadata models.ResultMetadata
}

// Verify runs mode's checks against content (already extracted from
// rawHTML by internal/extract) and returns both the verification result and
// the anomaly classification that informed it.
func Verify(mode models.VerificationMode, rawHTML string, content models.PageContent, opts Options) (models.Validation, models.AnomalyResult) {
	anomaly := DetectContentAnomalies(rawHTML, content, opts.ExpectedTopic)

	if mode == models.VerifyOff {
		return models.Validation{Passed: true, Confidence: 1, Checks: []string{"off"}}, anomaly
	}

	minLen := opts.MinContentLength
	if minLen == 0 {
		minLen = defaultMinContentLength
	}

	var checks, errs, warnings []string

	checks = append(checks, "non_empty_title")
	if content.Title == "" {
		errs = append(errs, "title is empty")
	}

	checks = append(checks, "content_length")
	if len(content.Text) < minLen {
		errs = append(errs, fmt.Sprintf("content length %d below minimum %d", len(content.Text), minLen))
	}

	checks = append(checks, "not_anomaly")
	if anomaly.IsAnomaly {
		errs = append(errs, fmt.Sprintf("anomaly detected: %s", anomaly.Type))
	}

	if mode == models.VerifyStandard || mode == models.VerifyThorough {
		checks = append(checks, "validators")
		if ok, reasons := ApplyValidators(opts.Validators, content.Text, opts.Metadata.Language, len(opts.Metadata.Links)); !ok {
			errs = append(errs, reasons...)
		}

		checks = append(checks, "structural_marker")
		if !hasStructuralMarker(rawHTML) {
			warnings = append(warnings, "no structural marker (article/main/heading/table) found")
		}
	}

	if mode == models.VerifyThorough {
		checks = append(checks, "pattern_field_coverage")
		if coverage, applicable := patternFieldCoverage(opts.Patterns, content); applicable && coverage < 0.5 {
			errs = append(errs, fmt.Sprintf("only %.0f%% of registry-mapped fields present", coverage*100))
		}

		checks = append(checks, "language_consistency")
		if !languageConsistent(opts.Metadata, opts.Validators) {
			warnings = append(warnings, "declared page language does not match the domain's expected language tag")
		}
	}

	return models.Validation{
		Passed:     len(errs) == 0,
		Confidence: confidenceFromChecks(len(checks), len(errs), len(warnings)),
		Checks:     checks,
		Errors:     errs,
		Warnings:   warnings,
	}, anomaly
}

// confidenceFromChecks penalizes each failed check more than each warning;
// errors gate pass/fail directly while confidence is a softer signal callers
// use to decide whether a successful-but-shaky result still warrants
// surfacing warnings (spec's "low confidence" path).
func confidenceFromChecks(total, errCount, warnCount int) float64 {
	if total == 0 {
		return 1
	}
	score := 1 - float64(errCount)*0.25 - float64(warnCount)*0.1
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ApplyValidators implements the Learning Engine's validate_content rule
// set: minimum text length, required/forbidden substrings, a language-tag
// match, and a link-count floor. Exported so internal/learning's
// validate_content and internal/verify's standard/thorough modes share one
// implementation instead of two copies of the same rule evaluation.
func ApplyValidators(validators []models.Validator, text, language string, linkCount int) (valid bool, reasons []string) {
	valid = true
	for _, v := range validators {
		if v.MinTextLength > 0 && len(text) < v.MinTextLength {
			valid = false
			reasons = append(reasons, fmt.Sprintf("text length %d below validator minimum %d", len(text), v.MinTextLength))
		}
		for _, req := range v.RequiredSubstrings {
			if !strings.Contains(text, req) {
				valid = false
				reasons = append(reasons, fmt.Sprintf("missing required substring %q", req))
			}
		}
		for _, forbidden := range v.ForbiddenSubstrings {
			if strings.Contains(text, forbidden) {
				valid = false
				reasons = append(reasons, fmt.Sprintf("contains forbidden substring %q", forbidden))
			}
		}
		if v.LanguageTag != "" && language != "" && !strings.HasPrefix(language, v.LanguageTag) {
			valid = false
			reasons = append(reasons, fmt.Sprintf("language %q does not match validator tag %q", language, v.LanguageTag))
		}
		if v.MinLinkCount > 0 && linkCount < v.MinLinkCount {
			valid = false
			reasons = append(reasons, fmt.Sprintf("link count %d below validator minimum %d", linkCount, v.MinLinkCount))
		}
	}
	return valid, reasons
}

var structuralMarkers = regexp.MustCompile(`(?i)<(article|main|h1|h2|h3|h4|h5|h6|table)[\s>]`)

// hasStructuralMarker is the standard mode's "at least one structural
// marker" check: presence of an article/main/heading/table element,
// checked directly against the raw markup rather than a parsed tree, in
// the same terse, single-purpose regex style as purify's own
// scraper/httpfetch.go:reNoscript.
func hasStructuralMarker(rawHTML string) bool {
	return structuralMarkers.MatchString(rawHTML)
}

// patternFieldCoverage cross-checks the top-ranked registry pattern's
// content mapping against the final extracted content: applicable is false
// when no pattern was supplied, so the caller can skip the check rather
// than failing it.
func patternFieldCoverage(patterns []models.ApiPattern, content models.PageContent) (coverage float64, applicable bool) {
	if len(patterns) == 0 {
		return 0, false
	}
	mapping := patterns[0].ContentMapping
	if len(mapping) == 0 {
		return 0, false
	}
	present := 0
	for field := range mapping {
		if fieldPresent(field, content) {
			present++
		}
	}
	return float64(present) / float64(len(mapping)), true
}

func fieldPresent(field string, content models.PageContent) bool {
	switch field {
	case "title":
		return content.Title != ""
	case "text", "description", "body", "summary":
		return content.Text != ""
	default:
		return false
	}
}

// languageConsistent compares the declared page language (from
// internal/extract's <html lang> metadata) against the first validator that
// carries an expected language tag. Deliberately a prefix compare rather
// than statistical language identification: no language-detection library
// is ever actually imported anywhere in the corpus (it appears only as an
// unused indirect entry in one example's go.mod with no corresponding call
// site), so inventing that dependency here would defeat the point of
// grounding every library choice in an observed usage.
func languageConsistent(metadata models.ResultMetadata, validators []models.Validator) bool {
	for _, v := range validators {
		if v.LanguageTag == "" {
			continue
		}
		if metadata.Language == "" {
			return true
		}
		return strings.HasPrefix(metadata.Language, v.LanguageTag) || strings.HasPrefix(v.LanguageTag, metadata.Language)
	}
	return true
}
