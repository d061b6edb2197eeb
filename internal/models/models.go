package models

import (
	"fmt"
	"time"
)

// Platform identifies a citation-check target
type Platform string

const (
	PlatformPerplexity Platform = "perplexity"
	PlatformOpenAI     Platform = "openai"
	PlatformClaude     Platform = "claude"
	PlatformGemini     Platform = "gemini"
	PlatformDeepSeek   Platform = "deepseek"
	PlatformGoogle     Platform = "google"
	PlatformYouTube    Platform = "youtube"
	PlatformFacebook   Platform = "facebook"
)

// AllPlatforms lists every supported platform in display order
var AllPlatforms = []Platform{
	PlatformPerplexity,
	PlatformOpenAI,
	PlatformClaude,
	PlatformGemini,
	PlatformDeepSeek,
	PlatformGoogle,
	PlatformYouTube,
	PlatformFacebook,
}

// ParsePlatform validates a platform name
func ParsePlatform(name string) (Platform, error) {
	for _, p := range AllPlatforms {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", name)
}

// Frequency controls how often a query is checked automatically
type Frequency string

const (
	FrequencyManual Frequency = "manual"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// CheckStatus is the lifecycle state of a CitationCheck
type CheckStatus string

const (
	StatusPending    CheckStatus = "pending"
	StatusProcessing CheckStatus = "processing"
	StatusCompleted  CheckStatus = "completed"
	StatusFailed     CheckStatus = "failed"
)

// AlertType describes a change in citation state
type AlertType string

const (
	AlertNewCitation  AlertType = "new_citation"
	AlertLostCitation AlertType = "lost_citation"
)

// Citation types reported by the adapters and the analyzer
const (
	CitationTypeSource         = "source"
	CitationTypeMention        = "text_mention"
	CitationTypeOrganic        = "organic"
	CitationTypeAIOverview     = "ai_overview"
	CitationTypeKnowledgeGraph = "knowledge_graph"
	CitationTypeYouTubeVideo   = "youtube_video"
	CitationTypeFacebookPost   = "facebook_post"
	CitationTypeFacebookVideo  = "facebook_video"
	CitationTypeFacebookGroup  = "facebook_group"
	CitationTypeFacebookEvent  = "facebook_event"
	CitationTypeFacebookPage   = "facebook_page"
)

// CitationQuery is a tracked (query, domain, brand) tuple
type CitationQuery struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id,omitempty"`
	Query         string     `json:"query"`
	Domain        string     `json:"domain"`
	Brand         *string    `json:"brand,omitempty"`
	Platforms     []Platform `json:"platforms,omitempty"` // empty means every enabled platform
	Active        bool       `json:"active"`
	Frequency     Frequency  `json:"frequency"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	NextCheckAt   *time.Time `json:"next_check_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// BrandName returns the brand or an empty string
func (q *CitationQuery) BrandName() string {
	if q.Brand == nil {
		return ""
	}
	return *q.Brand
}

// IsDeleted reports whether the query was soft-deleted
func (q *CitationQuery) IsDeleted() bool {
	return q.DeletedAt != nil
}

// IsDue reports whether the scheduler should dispatch this query
func (q *CitationQuery) IsDue(now time.Time) bool {
	if !q.Active || q.IsDeleted() || q.Frequency == FrequencyManual || q.NextCheckAt == nil {
		return false
	}
	return !q.NextCheckAt.After(now)
}

// Schedule records a run at now and computes the next check time.
// NextCheckAt stays nil for manual queries.
func (q *CitationQuery) Schedule(now time.Time) {
	q.LastCheckedAt = &now
	q.NextCheckAt = NextCheckTime(q.Frequency, now)
}

// NextCheckTime returns the next run time for a frequency, nil for manual
func NextCheckTime(freq Frequency, from time.Time) *time.Time {
	var next time.Time
	switch freq {
	case FrequencyDaily:
		next = from.Add(24 * time.Hour)
	case FrequencyWeekly:
		next = from.Add(7 * 24 * time.Hour)
	default:
		return nil
	}
	return &next
}

// Citation is a structured record evidencing a domain or brand reference
type Citation struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position"`
	Type     string `json:"type"`
}

// CheckResult is what a platform adapter returns for a successful check
type CheckResult struct {
	IsCited    bool                   `json:"is_cited"`
	AIResponse string                 `json:"ai_response"`
	Citations  []Citation             `json:"citations"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// CitationCheck is one invocation of a platform adapter for a query
type CitationCheck struct {
	ID              string                 `json:"id"`
	QueryID         string                 `json:"query_id"`
	Platform        Platform               `json:"platform"`
	Status          CheckStatus            `json:"status"`
	ProgressStep    string                 `json:"progress_step,omitempty"`
	ProgressPercent int                    `json:"progress_percent"`
	IsCited         *bool                  `json:"is_cited"`
	AIResponse      *string                `json:"ai_response,omitempty"`
	Citations       []Citation             `json:"citations"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// NewCheck creates a pending check
func NewCheck(id, queryID string, platform Platform, now time.Time) *CitationCheck {
	return &CitationCheck{
		ID:           id,
		QueryID:      queryID,
		Platform:     platform,
		Status:       StatusPending,
		ProgressStep: "queued",
		CreatedAt:    now,
	}
}

// IsTerminal reports whether the check reached completed or failed
func (c *CitationCheck) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusFailed
}

// SetProgress updates the polling markers without changing status
func (c *CitationCheck) SetProgress(step string, percent int) {
	c.ProgressStep = step
	c.ProgressPercent = percent
}

// Start moves a pending check to processing
func (c *CitationCheck) Start(now time.Time) error {
	if c.Status != StatusPending {
		return fmt.Errorf("check %s cannot start from status %s", c.ID, c.Status)
	}
	c.Status = StatusProcessing
	c.StartedAt = &now
	c.SetProgress("querying platform", 10)
	return nil
}

// Complete stores a successful result on a processing check
func (c *CitationCheck) Complete(result *CheckResult, now time.Time) error {
	if c.Status != StatusProcessing {
		return fmt.Errorf("check %s cannot complete from status %s", c.ID, c.Status)
	}
	cited := result.IsCited
	response := result.AIResponse

	c.Status = StatusCompleted
	c.IsCited = &cited
	c.AIResponse = &response
	c.Citations = result.Citations
	if c.Citations == nil {
		c.Citations = []Citation{}
	}
	c.Metadata = result.Metadata
	c.ErrorMessage = ""
	c.CompletedAt = &now
	c.SetProgress("completed", 100)
	return nil
}

// Fail marks a pending or processing check as failed. No verdict is recorded.
func (c *CitationCheck) Fail(message string, now time.Time) error {
	if c.IsTerminal() {
		return fmt.Errorf("check %s cannot fail from status %s", c.ID, c.Status)
	}
	c.Status = StatusFailed
	c.IsCited = nil
	c.Citations = nil
	c.ErrorMessage = message
	c.CompletedAt = &now
	c.SetProgress("failed", 100)
	return nil
}

// CitationAlert is raised when is_cited flips between completed checks
type CitationAlert struct {
	ID         string     `json:"id"`
	QueryID    string     `json:"query_id"`
	CheckID    string     `json:"check_id"`
	Type       AlertType  `json:"type"`
	Platform   Platform   `json:"platform"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MarkRead sets the read flag once
func (a *CitationAlert) MarkRead(now time.Time) {
	if a.IsRead {
		return
	}
	a.IsRead = true
	a.ReadAt = &now
}
