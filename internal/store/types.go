package store

import "time"

const StoreVersion = 1

// Document is the full persisted state: one operator, one file.
type Document struct {
	Version   int             `json:"version"`
	Profile   *Profile        `json:"profile,omitempty"`
	Pillars   []Pillar        `json:"pillars"`
	Templates []Template      `json:"templates"`
	Ideas     []Idea          `json:"ideas"`
	Posts     []ScheduledPost `json:"posts"`
}

// Profile is the singleton publishing persona. The autopilot runner only
// reads it; all writes come from the operator.
type Profile struct {
	BrandName      string          `json:"brand_name"`
	LinkedInURL    string          `json:"linkedin_url,omitempty"`
	Voice          string          `json:"voice,omitempty"`
	TargetAudience string          `json:"target_audience,omitempty"`
	Goals          string          `json:"goals,omitempty"`
	CadencePerWeek int             `json:"cadence_per_week,omitempty"`
	PostingWindows []PostingWindow `json:"posting_windows,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// PostingWindow is a weekly publish slot, e.g. {Day: "Monday", Time: "09:00"}.
type PostingWindow struct {
	Day  string `json:"day"`
	Time string `json:"time"`
}

type Pillar struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Audience    string `json:"audience,omitempty"`
	Active      bool   `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Template struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Structure    string `json:"structure,omitempty"`
	Prompt       string `json:"prompt"`
	CallToAction string `json:"call_to_action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Idea struct {
	ID       string `json:"id"`
	PillarID string `json:"pillar_id,omitempty"`
	Summary  string `json:"summary"`
	Hook     string `json:"hook,omitempty"`
	Angle    string `json:"angle,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduledPost is the unit the autopilot runner operates on.
type ScheduledPost struct {
	ID         string `json:"id"`
	PillarID   string `json:"pillar_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Audience   string `json:"audience,omitempty"`
	IdeaHook   string `json:"idea_hook,omitempty"`
	IdeaAngle  string `json:"idea_angle,omitempty"`

	Status       string      `json:"status"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	Autopilot    bool        `json:"autopilot"`
	Metrics      PostMetrics `json:"metrics,omitzero"`
	Error        string      `json:"error,omitempty"`

	// ExternalPostID is the URN returned by the network on publish.
	// Present and non-empty once Status is posted.
	ExternalPostID string `json:"external_post_id,omitempty"`

	// RunningAt marks an in-flight autopilot claim. Cleared when the run
	// finishes or when a claim is older than the stuck-run horizon.
	RunningAt time.Time `json:"running_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostMetrics records side facts about a post. Named fields rather than a
// free-form map so the invariants stay checkable.
type PostMetrics struct {
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// PostPatch carries the fields a finished autopilot step may write back.
// Nil pointers leave the stored value untouched.
type PostPatch struct {
	Status         string
	Content        *string
	Error          *string
	ExternalPostID *string
	Metrics        *PostMetrics
}
