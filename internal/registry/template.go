// Package registry implements the API Pattern Registry (spec §4.8): a
// persistent, tenant-namespaced index of learned network-API bypass
// patterns, matched against future URLs and scored by success rate.
//
// New component backed by internal/kv. URL templating uses regexp (stdlib)
// in the same terse, single-purpose style as purify's own regex use in
// scraper/httpfetch.go (reNoscript) — there is no ecosystem URL-templating
// library in the corpus, so this is one of the few places stdlib regexp is
// the grounded choice rather than a fallback.
package registry

import (
	"regexp"
	"strings"
)

var (
	reNumericSegment = regexp.MustCompile(`^\d{4,}$`)
	reUUIDSegment    = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// idPlaceholder marks a templated path segment.
const idPlaceholder = "{id}"

// urlTemplate is the parameterised host+path template produced by
// urlToTemplate, plus the bookkeeping needed to rank and re-match it.
type urlTemplate struct {
	pattern     string // e.g. "reddit.com/r/{id}/comments/{id}"
	fixedTokens int
	totalTokens int
}

// urlToTemplate replaces long numeric or UUID-like path segments in rawURL
// with {id}, forming the parameterised template learn_from_extraction
// persists and find_matching re-matches against.
func urlToTemplate(host, path string) urlTemplate {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	tokens := make([]string, 0, len(segments)+1)
	tokens = append(tokens, host)
	fixed := 1 // host always counts as fixed

	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if reNumericSegment.MatchString(seg) || reUUIDSegment.MatchString(seg) {
			tokens = append(tokens, idPlaceholder)
			continue
		}
		tokens = append(tokens, seg)
		fixed++
	}

	return urlTemplate{
		pattern:     tokens[0] + "/" + strings.Join(tokens[1:], "/"),
		fixedTokens: fixed,
		totalTokens: len(tokens),
	}
}

// specificity is the fraction of template tokens that are fixed (not {id}),
// used as one factor in find_matching's ranking. Normalized to [0,1] so it
// combines cleanly with confidence and recency instead of letting raw token
// counts dominate the ranking on patterns with long paths.
func (t urlTemplate) specificity() float64 {
	if t.totalTokens == 0 {
		return 0
	}
	return float64(t.fixedTokens) / float64(t.totalTokens)
}

// matches reports whether rawHost/rawPath satisfies this template: every
// fixed token must match literally, every {id} token accepts any segment.
func (t urlTemplate) matches(host, path string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	candidate := make([]string, 0, len(segments)+1)
	candidate = append(candidate, host)
	for _, seg := range segments {
		if seg != "" {
			candidate = append(candidate, seg)
		}
	}

	want := strings.Split(t.pattern, "/")
	if len(want) != len(candidate) {
		return false
	}
	for i, w := range want {
		if w == idPlaceholder {
			continue
		}
		if w != candidate[i] {
			return false
		}
	}
	return true
}
