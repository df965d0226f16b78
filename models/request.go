package models

import "time"

// FetchOptions carries every tunable knob for a single fetch call (spec §4.3).
type FetchOptions struct {
	ForceTier         RenderTier            `json:"force_tier,omitempty"`
	MinContentLength  int                   `json:"min_content_length,omitempty"`
	TierTimeoutMs     int64                 `json:"tier_timeout_ms,omitempty"`
	MaxLatencyMs      int64                 `json:"max_latency_ms,omitempty"`
	MaxCostTier       RenderTier            `json:"max_cost_tier,omitempty"`
	Freshness         FreshnessRequirement  `json:"freshness,omitempty"`
	SessionProfile    string                `json:"session_profile,omitempty"`
	WaitFor           string                `json:"wait_for,omitempty"`
	WaitForSelector   string                `json:"wait_for_selector,omitempty"`
	ScrollToLoad      bool                  `json:"scroll_to_load,omitempty"`
	DismissCookieBanner bool                `json:"dismiss_cookie_banner,omitempty"`
	Verify            VerificationMode      `json:"verify,omitempty"`
	FollowPagination  bool                  `json:"follow_pagination,omitempty"`
	MaxPages          int                   `json:"max_pages,omitempty"`
	EnableLearning    bool                  `json:"enable_learning,omitempty"`
	UseSkills         bool                  `json:"use_skills,omitempty"`
	RecordTrajectory  bool                  `json:"record_trajectory,omitempty"`
	ProxyURL          string                `json:"proxy_url,omitempty"`
	Headers           map[string]string     `json:"headers,omitempty"`
	SelectorChain     []string              `json:"selector_chain,omitempty"`
}

// Defaults fills zero-valued options with this operation's stated defaults.
func (o *FetchOptions) Defaults() {
	if o.MinContentLength == 0 {
		o.MinContentLength = 500
	}
	if o.Freshness == "" {
		o.Freshness = FreshnessAny
	}
	if o.Verify == "" {
		o.Verify = VerifyBasic
	}
	if o.MaxPages == 0 {
		o.MaxPages = 5
	}
	// The bool options (DismissCookieBanner, EnableLearning, UseSkills,
	// RecordTrajectory) are not defaulted here: false means off, and the
	// HTTP fetch handler decodes them as plain bools, so a request that
	// omits one leaves that option off.
}

// Request is one invocation of the Tiered Fetcher. Immutable once created;
// discarded after the result is produced.
type Request struct {
	URL            string
	Options        FetchOptions
	TenantID       TenantID
	SessionProfile string
	StartedAt      time.Time
}
