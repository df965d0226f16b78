package models

import "time"

// PatternMetrics tracks an ApiPattern's observed reliability.
type PatternMetrics struct {
	SuccessCount      int     `json:"success_count"`
	FailureCount      int     `json:"failure_count"`
	LastFailureReason string  `json:"last_failure_reason,omitempty"`
	AvgResponseMs     float64 `json:"avg_response_ms"`
}

// ApiPattern is a learned bypass pattern owned by the API Pattern Registry.
type ApiPattern struct {
	ID             string            `json:"id"`
	URLPattern     string            `json:"url_pattern"`
	Method         string            `json:"method"`
	ContentMapping map[string]string `json:"content_mapping"`
	Category       string            `json:"category"`
	Contributor    TenantID          `json:"contributor,omitempty"`
	Confidence     float64           `json:"confidence"`
	Metrics        PatternMetrics    `json:"metrics"`
	LearnedAt      time.Time         `json:"learned_at"`
	LastUsedAt     time.Time         `json:"last_used_at"`
	QuarantinedUntil time.Time       `json:"quarantined_until,omitzero"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
}

// Quarantined reports whether the pattern is currently benched.
func (p *ApiPattern) Quarantined(now time.Time) bool {
	return !p.QuarantinedUntil.IsZero() && now.Before(p.QuarantinedUntil)
}

// Retired reports whether the pattern has crossed the retirement threshold:
// confidence < 0.1 AND failure_count >= 5.
func (p *ApiPattern) Retired() bool {
	return p.Confidence < 0.1 && p.Metrics.FailureCount >= 5
}

// PatternChangeKind enumerates the registry's change-event stream kinds.
type PatternChangeKind string

const (
	PatternLearned     PatternChangeKind = "pattern_learned"
	PatternApplied     PatternChangeKind = "pattern_applied"
	PatternTransferred PatternChangeKind = "pattern_transferred"
)

// PatternChangeEvent is one entry in the registry's change-event stream.
type PatternChangeEvent struct {
	Kind      PatternChangeKind `json:"kind"`
	PatternID string            `json:"pattern_id"`
	Domain    string            `json:"domain"`
	Timestamp time.Time         `json:"timestamp"`
}

// ExtractionObservation is what learn_from_extraction accepts.
type ExtractionObservation struct {
	SourceURL      string
	APIURL         string
	Strategy       string
	ResponseTimeMs int64
	Content        []byte
	Method         string
	RequestBody    []byte
	ResponseBody   []byte
	ExtractedTitle string
	ExtractedText  string
}
