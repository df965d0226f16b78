package models

import "time"

// TierAttempt is appended once per attempted tier, in order of appearance.
type TierAttempt struct {
	Tier              RenderTier    `json:"tier"`
	Success           bool          `json:"success"`
	DurationMs        int64         `json:"duration_ms"`
	FailureReason     FailureReason `json:"failure_reason,omitempty"`
	ValidationDetails *Validation   `json:"validation_details,omitempty"`
}

// FieldConfidenceSource enumerates where a FieldConfidence score came from.
type FieldConfidenceSource string

const (
	SourceSelectorMatch FieldConfidenceSource = "selector_match"
	SourceAPIResponse   FieldConfidenceSource = "api_response"
	SourceHeuristic     FieldConfidenceSource = "heuristic"
	SourceFallback      FieldConfidenceSource = "fallback"
)

// FieldConfidence is produced for each extracted field and aggregated into
// BrowseResult.FieldConfidence.
type FieldConfidence struct {
	Score  float64               `json:"score"`
	Source FieldConfidenceSource `json:"source"`
	Reason string                `json:"reason"`
}

// SelectorAttempt records one try of a content-extraction selector.
type SelectorAttempt struct {
	Selector   string  `json:"selector"`
	ContentType string `json:"content_type"`
	Success    bool    `json:"success"`
	TextLength int     `json:"text_length"`
}

// TitleAttempt records one try of a title-resolution source.
type TitleAttempt struct {
	Source     string  `json:"source"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
}

// Validation is the output of the Verifier for one tier attempt or the
// final result.
type Validation struct {
	Passed     bool     `json:"passed"`
	Confidence float64  `json:"confidence"`
	Checks     []string `json:"checks"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ErrorRecord is one entry in DecisionTrace.Errors.
type ErrorRecord struct {
	Type               string    `json:"type"`
	Message            string    `json:"message"`
	RecoveryAttempted  bool      `json:"recovery_attempted"`
	RecoverySucceeded  *bool     `json:"recovery_succeeded,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// BudgetOutcome summarises how the request and tier budgets were spent.
type BudgetOutcome struct {
	TierTimeoutMs   int64 `json:"tier_timeout_ms"`
	MaxLatencyMs    int64 `json:"max_latency_ms"`
	SpentMs         int64 `json:"spent_ms"`
	LatencyExceeded bool  `json:"latency_exceeded"`
}

// SkillsOutcome summarises procedural-memory involvement in a request.
type SkillsOutcome struct {
	Matched []string `json:"matched"`
	Applied string   `json:"applied,omitempty"`
}

// NetworkSummary aggregates NetworkRequest observations for compact tracing.
type NetworkSummary struct {
	TotalRequests int `json:"total_requests"`
	APIRequests   int `json:"api_requests"`
	FailedCount   int `json:"failed_count"`
}

// DecisionTrace is the append-only record of every decision made while
// servicing one Request. Grows append-only; sealed on result.
type DecisionTrace struct {
	Version          int               `json:"v"`
	TierAttempts     []TierAttempt     `json:"tier_attempts"`
	SelectorAttempts []SelectorAttempt `json:"selector_attempts"`
	TitleAttempts    []TitleAttempt    `json:"title_attempts"`
	Validation       []Validation      `json:"validation"`
	NetworkSummary   NetworkSummary    `json:"network_summary"`
	Errors           []ErrorRecord     `json:"errors"`
	Anomaly          *AnomalyResult    `json:"anomaly,omitempty"`
	Skills           SkillsOutcome     `json:"skills"`
	Budget           BudgetOutcome     `json:"budget"`
	TiersSkipped     []RenderTier      `json:"tiers_skipped,omitempty"`
}

// Seal finalises the trace version; called exactly once when the result is
// produced.
func (d *DecisionTrace) Seal() {
	if d.Version == 0 {
		d.Version = 1
	}
}
