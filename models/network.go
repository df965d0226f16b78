package models

import "time"

// NetworkRequest is one observed network exchange, captured by the
// lightweight and full-browser tiers in wall-clock order.
type NetworkRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Status          int               `json:"status"`
	Headers         map[string]string `json:"headers,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ContentType     string            `json:"content_type,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`

	// DurationMs is the time from request-sent to response-received, used to
	// populate HarTimings.Wait in export_har. Zero when the tier captured the
	// request without round-trip timing (e.g. a synthetic lightweight entry).
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// ConsoleMessage is a single browser console entry captured by the
// full-browser tier.
type ConsoleMessage struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
