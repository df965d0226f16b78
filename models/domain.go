package models

import "time"

// ContentType enumerates the kinds of content a SelectorPattern targets.
type ContentType string

const (
	ContentMain    ContentType = "main_content"
	ContentArticle ContentType = "article"
	ContentTitle   ContentType = "title"
	ContentPrice   ContentType = "price"
	ContentProduct ContentType = "product"
	ContentList    ContentType = "list"
	ContentNav     ContentType = "nav"
	ContentFooter  ContentType = "footer"
	ContentOther   ContentType = "other"
)

// SelectorPattern is unique per (domain, content_type, selector).
type SelectorPattern struct {
	Selector     string      `json:"selector"`
	ContentType  ContentType `json:"content_type"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
}

// PaginationType enumerates pagination mechanisms.
type PaginationType string

const (
	PaginationNextButton  PaginationType = "next_button"
	PaginationQueryParam  PaginationType = "query_param"
	PaginationPathSegment PaginationType = "path_segment"
	PaginationCursor      PaginationType = "cursor"
)

// PaginationPattern describes how to advance to the next page of a domain.
type PaginationPattern struct {
	Type      PaginationType `json:"type"`
	Selector  string         `json:"selector,omitempty"`
	ParamName string         `json:"param_name,omitempty"`
	Template  string         `json:"template,omitempty"`
}

// FailureType enumerates classes of recorded failures.
type FailureType string

const (
	FailureTypeTimeout      FailureType = "timeout"
	FailureTypeBotChallenge FailureType = "bot_challenge"
	FailureTypeHTTPError    FailureType = "http_error"
	FailureTypeParseError   FailureType = "parse_error"
	FailureTypeRateLimited  FailureType = "rate_limited"
	FailureTypeCaptcha      FailureType = "captcha"
	FailureTypeEmptyContent FailureType = "empty_content"
)

// FailureRecord is one entry in a DomainEntry's bounded failure ring.
type FailureRecord struct {
	Type               FailureType `json:"type"`
	ErrorMessage       string      `json:"error_message"`
	RecoveryAttempted  bool        `json:"recovery_attempted"`
	RecoverySucceeded  bool        `json:"recovery_succeeded"`
	Timestamp          time.Time   `json:"timestamp"`
}

// Validator is a compact content-validation rule learned for a domain.
type Validator struct {
	MinTextLength      int      `json:"min_text_length,omitempty"`
	RequiredSubstrings []string `json:"required_substrings,omitempty"`
	ForbiddenSubstrings []string `json:"forbidden_substrings,omitempty"`
	LanguageTag        string   `json:"language_tag,omitempty"`
	MinLinkCount       int      `json:"min_link_count,omitempty"`
}

// SelectorChain is an ordered list of selectors for one content type,
// ordered by descending historical success.
type SelectorChain struct {
	ContentType ContentType       `json:"content_type"`
	Selectors   []SelectorPattern `json:"selectors"`
}

// SuccessProfile records what a successful fetch looked like for a domain.
type SuccessProfile struct {
	PreferredTier       RenderTier `json:"preferred_tier"`
	AvgResponseMs       float64    `json:"avg_response_ms"`
	ContentLength       int        `json:"content_length"`
	HasStructuredData   bool       `json:"has_structured_data"`
	HasFrameworkData    bool       `json:"has_framework_data"`
	HasBypassableAPIs   bool       `json:"has_bypassable_apis"`
}

// DomainEntry is the Learning Engine's per-domain knowledge record.
type DomainEntry struct {
	Domain             string              `json:"domain"`
	APIPatterns        []string            `json:"api_patterns"` // ApiPattern ids
	SelectorChains     []SelectorChain     `json:"selector_chains"`
	Validators         []Validator         `json:"validators"`
	PaginationPatterns map[string]PaginationPattern `json:"pagination_patterns"`
	RecentFailures     []FailureRecord     `json:"recent_failures"` // ring, <=20
	OverallSuccessRate float64             `json:"overall_success_rate"`
	DomainGroup        string              `json:"domain_group,omitempty"`
	Profile            SuccessProfile      `json:"profile"`
	RecentOutcomes     []bool              `json:"recent_outcomes"` // bounded window, default N=50
}

const (
	maxFailureRing   = 20
	maxOutcomeWindow = 50
)

// RecordOutcome appends a success/failure outcome, trims the bounded window,
// and recomputes OverallSuccessRate over the last N outcomes.
func (d *DomainEntry) RecordOutcome(success bool) {
	d.RecentOutcomes = append(d.RecentOutcomes, success)
	if len(d.RecentOutcomes) > maxOutcomeWindow {
		d.RecentOutcomes = d.RecentOutcomes[len(d.RecentOutcomes)-maxOutcomeWindow:]
	}
	if len(d.RecentOutcomes) == 0 {
		d.OverallSuccessRate = 0
		return
	}
	successes := 0
	for _, o := range d.RecentOutcomes {
		if o {
			successes++
		}
	}
	d.OverallSuccessRate = float64(successes) / float64(len(d.RecentOutcomes))
}

// AppendFailure pushes a failure onto the bounded ring, dropping the oldest
// entry once the ring is full.
func (d *DomainEntry) AppendFailure(f FailureRecord) {
	d.RecentFailures = append(d.RecentFailures, f)
	if len(d.RecentFailures) > maxFailureRing {
		d.RecentFailures = d.RecentFailures[len(d.RecentFailures)-maxFailureRing:]
	}
}

// FailurePatternSummary is returned by get_failure_patterns.
type FailurePatternSummary struct {
	ShouldBackoff   bool        `json:"should_backoff"`
	MostCommonType  FailureType `json:"most_common_type,omitempty"`
}
