package models

// RenderTier is a total ordering over the three rendering capability levels.
// Cost and latency increase monotonically with tier index.
type RenderTier string

const (
	TierIntelligence RenderTier = "intelligence"
	TierLightweight  RenderTier = "lightweight"
	TierPlaywright   RenderTier = "playwright"
)

// tierRank gives the monotone cost ordering used to enforce tier monotonicity.
var tierRank = map[RenderTier]int{
	TierIntelligence: 0,
	TierLightweight:  1,
	TierPlaywright:   2,
}

// Rank returns the cost ordinal for t, or -1 if t is not a known tier.
func (t RenderTier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

// Less reports whether t is strictly cheaper than other.
func (t RenderTier) Less(other RenderTier) bool {
	return t.Rank() < other.Rank()
}

// Valid reports whether t is one of the three known tiers.
func (t RenderTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AllTiers returns the three tiers in ascending cost order.
func AllTiers() []RenderTier {
	return []RenderTier{TierIntelligence, TierLightweight, TierPlaywright}
}

// NextTier returns the next more expensive tier, and false if t is already
// the most expensive tier.
func NextTier(t RenderTier) (RenderTier, bool) {
	tiers := AllTiers()
	for i, cur := range tiers {
		if cur == t && i+1 < len(tiers) {
			return tiers[i+1], true
		}
	}
	return "", false
}

// FreshnessRequirement controls cache reuse policy for a fetch.
type FreshnessRequirement string

const (
	FreshnessRealtime FreshnessRequirement = "realtime"
	FreshnessCached   FreshnessRequirement = "cached"
	FreshnessAny      FreshnessRequirement = "any"
)

// VerificationMode controls how strictly a BrowseResult is validated.
type VerificationMode string

const (
	VerifyOff      VerificationMode = "off"
	VerifyBasic    VerificationMode = "basic"
	VerifyStandard VerificationMode = "standard"
	VerifyThorough VerificationMode = "thorough"
)

// FailureReason enumerates why a single tier attempt did not succeed.
type FailureReason string

const (
	FailureContentTooShort  FailureReason = "content_too_short"
	FailureValidationFailed FailureReason = "validation_failed"
	FailureBotChallenge     FailureReason = "bot_challenge"
	FailureHTTPError        FailureReason = "http_error"
	FailureTimeout          FailureReason = "timeout"
	FailureNetwork          FailureReason = "network"
	FailureParseError       FailureReason = "parse_error"
	FailureCancelled        FailureReason = "cancelled"
)

// AnomalyType classifies a non-content page state.
type AnomalyType string

const (
	AnomalyNone       AnomalyType = ""
	AnomalyChallenge  AnomalyType = "challenge"
	AnomalyCaptcha    AnomalyType = "captcha"
	AnomalyEmpty      AnomalyType = "empty"
	AnomalyRateLimit  AnomalyType = "rate_limit"
	AnomalyShellDOM   AnomalyType = "shell_dom"
	AnomalyErrorPage  AnomalyType = "error_page"
	AnomalyTopicDrift AnomalyType = "topic_drift"
)

// SuggestedAction is the corrective action recommended for an anomaly.
type SuggestedAction string

const (
	ActionWait        SuggestedAction = "wait"
	ActionRetry       SuggestedAction = "retry"
	ActionUseSession  SuggestedAction = "use_session"
	ActionChangeAgent SuggestedAction = "change_agent"
	ActionSkip        SuggestedAction = "skip"
)
