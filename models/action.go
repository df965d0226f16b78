package models

import "time"

// ActionType enumerates a BrowsingAction's kind.
type ActionType string

const (
	ActionNavigate      ActionType = "navigate"
	ActionClick         ActionType = "click"
	ActionFill          ActionType = "fill"
	ActionSelect        ActionType = "select"
	ActionScroll        ActionType = "scroll"
	ActionWait          ActionType = "wait"
	ActionExtract       ActionType = "extract"
	ActionDismissBanner ActionType = "dismiss_banner"
)

// Critical reports whether a failure of this action type must abort the
// skill (spec §4.10): click, fill, select are critical; the rest are not.
func (a ActionType) Critical() bool {
	switch a {
	case ActionClick, ActionFill, ActionSelect:
		return true
	default:
		return false
	}
}

// BrowsingAction is immutable once recorded.
type BrowsingAction struct {
	Type      ActionType    `json:"type"`
	Selector  string        `json:"selector,omitempty"`
	URL       string        `json:"url,omitempty"`
	Value     string        `json:"value,omitempty"`
	WaitFor   string        `json:"wait_for,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
}

// ExtractedContentSummary is the shape Trajectory.ExtractedContent takes.
type ExtractedContentSummary struct {
	TextLen int `json:"text_len"`
	Tables  int `json:"tables"`
	APIs    int `json:"apis"`
}

// BrowsingTrajectory is owned by the session; moved to Procedural Memory on
// completion.
type BrowsingTrajectory struct {
	ID               string                   `json:"id"`
	Domain           string                   `json:"domain"`
	StartURL         string                   `json:"start_url"`
	EndURL           string                   `json:"end_url"`
	Actions          []BrowsingAction         `json:"actions"`
	Success          bool                     `json:"success"`
	TotalDuration    time.Duration            `json:"total_duration"`
	ExtractedContent ExtractedContentSummary  `json:"extracted_content"`
}

// Preconditions for skill applicability.
type Preconditions struct {
	RequiredSelectors []string `json:"required_selectors"`
	PageFeatures      []string `json:"page_features"`
}

// BrowsingSkill is distilled from >= K similar successful trajectories.
type BrowsingSkill struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Domain         string           `json:"domain"`
	PageType       PageType         `json:"page_type"`
	Preconditions  Preconditions    `json:"preconditions"`
	ActionSequence []BrowsingAction `json:"action_sequence"`
	Embedding      []float64        `json:"embedding,omitempty"`
	Uses           int              `json:"uses"`
	SuccessRate    float64          `json:"success_rate"`
}

// PageType classifies the kind of page a PageContext describes.
type PageType string

const (
	PageLogin    PageType = "login"
	PageSearch   PageType = "search"
	PageForm     PageType = "form"
	PageList     PageType = "list"
	PageDetail   PageType = "detail"
	PageUnknown  PageType = "unknown"
)

// PageContext is computed at most once per page visit.
type PageContext struct {
	URL                string   `json:"url"`
	Domain             string   `json:"domain"`
	Title              string   `json:"title,omitempty"`
	Language           string   `json:"language,omitempty"`
	PageType           PageType `json:"page_type"`
	AvailableSelectors []string `json:"available_selectors"`
	ContentLength      int      `json:"content_length"`
	HasForm            bool     `json:"has_form"`
	HasPagination      bool     `json:"has_pagination"`
	HasTable           bool     `json:"has_table"`
}

// SkillMatch is one candidate returned by retrieve_skills.
type SkillMatch struct {
	Skill             BrowsingSkill `json:"skill"`
	Similarity        float64       `json:"similarity"`
	PreconditionsMet  bool          `json:"preconditions_met"`
	Reason            string        `json:"reason"`
}

// ActionResult is produced for each action executed during skill execution.
type ActionResult struct {
	Type     ActionType    `json:"type"`
	Selector string        `json:"selector,omitempty"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// SkillExecutionTrace is the result of executing a matched skill.
type SkillExecutionTrace struct {
	SkillID        string         `json:"skill_id"`
	Actions        []ActionResult `json:"actions"`
	ActionsExecuted int           `json:"actions_executed"`
	UsedFallback   bool           `json:"used_fallback"`
}

// MemoryStats is returned by Procedural Memory's get_stats.
type MemoryStats struct {
	TotalTrajectories int            `json:"total_trajectories"`
	TotalSkills       int            `json:"total_skills"`
	PerDomainCounts   map[string]int `json:"per_domain_counts"`
	MostUsedSkills    []string       `json:"most_used_skills"`
}
