package models

// AnomalyResult is the output of detect_content_anomalies (spec §4.9).
type AnomalyResult struct {
	IsAnomaly      bool            `json:"is_anomaly"`
	Type           AnomalyType     `json:"anomaly_type"`
	Confidence     float64         `json:"confidence"`
	Reasons        []string        `json:"reasons"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
	WaitTimeMs     int64           `json:"wait_time_ms,omitempty"`
}
