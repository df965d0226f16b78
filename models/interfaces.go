package models

import "time"

// --- screenshot(url, opts) ------------------------------------------------

type ScreenshotOptions struct {
	FullPage        bool   `json:"full_page,omitempty"`
	Element         string `json:"element,omitempty"`
	WaitForSelector string `json:"wait_for_selector,omitempty"`
	SessionProfile  string `json:"session_profile,omitempty"`
	Width           int    `json:"w,omitempty"`
	Height          int    `json:"h,omitempty"`
}

type ScreenshotResult struct {
	OK        bool         `json:"ok"`
	PNGBase64 string       `json:"png_base64,omitempty"`
	FinalURL  string       `json:"final_url"`
	Title     string       `json:"title"`
	Viewport  [2]int       `json:"viewport"`
	Timestamp time.Time    `json:"ts"`
	Duration  int64        `json:"duration"`
	Err       *ErrorDetail `json:"err,omitempty"`
}

// --- export_har(url, opts) ------------------------------------------------

type HarOptions struct {
	IncludeBodies   bool   `json:"include_bodies,omitempty"`
	MaxBodyBytes    int    `json:"max_body_bytes,omitempty"`
	SessionProfile  string `json:"session_profile,omitempty"`
	WaitForSelector string `json:"wait_for_selector,omitempty"`
}

// HarCreator identifies the tool that produced the HAR log.
type HarCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HarHeader, HarCookie, HarContent, HarRequest, HarResponse, HarEntry, HarLog
// implement the HAR 1.2 wire format (spec §6).
type HarHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HarCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HarContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type HarRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HarHeader `json:"headers"`
	Cookies     []HarCookie `json:"cookies"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

type HarResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HarHeader `json:"headers"`
	Cookies     []HarCookie `json:"cookies"`
	Content     HarContent  `json:"content"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

type HarTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

type HarEntry struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HarRequest  `json:"request"`
	Response        HarResponse `json:"response"`
	Timings         HarTimings  `json:"timings"`
}

type HarLog struct {
	Version string     `json:"version"`
	Creator HarCreator `json:"creator"`
	Entries []HarEntry `json:"entries"`
}

type Har struct {
	Log HarLog `json:"log"`
}

type HarResult struct {
	OK       bool         `json:"ok"`
	Har      *Har         `json:"har,omitempty"`
	FinalURL string       `json:"final_url"`
	Title    string       `json:"title"`
	Entries  int          `json:"entries"`
	Timestamp time.Time   `json:"ts"`
	Duration int64        `json:"duration"`
	Err      *ErrorDetail `json:"err,omitempty"`
}

// --- get_domain_intelligence(domain) --------------------------------------

type DomainIntelligence struct {
	KnownPatterns           []ApiPattern                 `json:"known_patterns"`
	SelectorChains          []SelectorChain              `json:"selector_chains"`
	Validators              []Validator                  `json:"validators"`
	PaginationPatterns      map[string]PaginationPattern  `json:"pagination_patterns"`
	RecentFailures          []FailureRecord               `json:"recent_failures"`
	SuccessRate             float64                       `json:"success_rate"`
	DomainGroup             string                        `json:"domain_group,omitempty"`
	RecommendedWaitStrategy string                        `json:"recommended_wait_strategy"`
	ShouldUseSession        bool                          `json:"should_use_session"`
}

// --- get_domain_capabilities(domain) ---------------------------------------

type DomainCapabilities struct {
	HasStructuredData  bool `json:"has_structured_data"`
	HasFrameworkData   bool `json:"has_framework_data"`
	HasBypassableAPIs  bool `json:"has_bypassable_apis"`
	RequiresBrowser    bool `json:"requires_browser"`
}

type DomainConfidence struct {
	Level ConfidenceLevel `json:"level"`
	Score float64         `json:"score"`
	Basis string          `json:"basis"`
}

type DomainPerformance struct {
	PreferredTier RenderTier `json:"preferred_tier"`
	AvgResponseMs float64    `json:"avg_response_ms"`
	SuccessRate   float64    `json:"success_rate"`
}

type DomainCapabilitiesResult struct {
	Capabilities  DomainCapabilities `json:"capabilities"`
	Confidence    DomainConfidence   `json:"confidence"`
	Performance   DomainPerformance  `json:"performance"`
	Recommendations []string         `json:"recommendations"`
	Details       map[string]string  `json:"details"`
}

// --- batch_fetch(urls, opts, batch_opts) -----------------------------------

type BatchOptions struct {
	Concurrency         int   `json:"concurrency,omitempty"`
	StopOnError         bool  `json:"stop_on_error,omitempty"`
	ContinueOnRateLimit bool  `json:"continue_on_rate_limit,omitempty"`
	PerURLTimeoutMs     int64 `json:"per_url_timeout_ms,omitempty"`
	TotalTimeoutMs      int64 `json:"total_timeout_ms,omitempty"`
}

// Defaults fills zero-valued batch options with this operation's stated defaults.
func (b *BatchOptions) Defaults() {
	if b.Concurrency == 0 {
		b.Concurrency = 3
	}
}

type BatchItemStatus string

const (
	BatchSuccess     BatchItemStatus = "success"
	BatchError       BatchItemStatus = "error"
	BatchSkipped     BatchItemStatus = "skipped"
	BatchRateLimited BatchItemStatus = "rate_limited"
)

type BatchItemResult struct {
	URL      string          `json:"url"`
	Status   BatchItemStatus `json:"status"`
	Result   *BrowseResult   `json:"result,omitempty"`
	Err      *ErrorDetail    `json:"err,omitempty"`
	Duration int64           `json:"duration"`
	Index    int             `json:"index"`
}
