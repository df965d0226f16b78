package models

import "time"

// TableData is one extracted <table>.
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Caption string     `json:"caption,omitempty"`
}

// PageContent is the Content Extractor's output shape.
type PageContent struct {
	Title    string      `json:"title"`
	Text     string      `json:"text"`
	Markdown string      `json:"markdown"`
	HTML     string      `json:"html,omitempty"`
	Tables   []TableData `json:"tables,omitempty"`
}

// ResultMetadata holds page-level information extracted during a fetch.
type ResultMetadata struct {
	Description string            `json:"description,omitempty"`
	SiteName    string            `json:"site_name,omitempty"`
	Author      string            `json:"author,omitempty"`
	Language    string            `json:"language,omitempty"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Images      []string          `json:"images,omitempty"`
}

// ConfidenceLevel is a human-facing bucket derived from a numeric score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// LearningOutcome reports what the pipeline believes about this fetch for
// learning purposes.
type LearningOutcome struct {
	RenderTier      RenderTier      `json:"render_tier"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
}

// BrowseResult is produced once per Request; immutable.
type BrowseResult struct {
	URL              string           `json:"url"`
	FinalURL         string           `json:"final_url"`
	Title            string           `json:"title"`
	Content          PageContent      `json:"content"`
	DiscoveredAPIs   []string         `json:"discovered_apis,omitempty"`
	Network          []NetworkRequest `json:"network,omitempty"`
	Console          []ConsoleMessage `json:"console,omitempty"`
	Metadata         ResultMetadata   `json:"metadata"`
	Learning         LearningOutcome  `json:"learning"`
	FieldConfidence  map[string]FieldConfidence `json:"field_confidence,omitempty"`
	DecisionTrace    *DecisionTrace   `json:"decision_trace,omitempty"`
	AdditionalPages  []BrowseResult   `json:"additional_pages,omitempty"`
	Success          bool             `json:"success"`
	CacheStatus      string           `json:"cache_status,omitempty"` // "hit"|"miss"|""
	Error            *ErrorDetail     `json:"error,omitempty"`
	FetchedAt        time.Time        `json:"fetched_at"`
}
