package database

import (
	"time"

	"gorm.io/gorm"
)

// ConnectedRepo is a user's connection of one forge repository to techy.
// Keyed by (UserID, Slug); AnalysisData/PersonaData/CustomSkills are stored
// as jsonb text and marshaled/unmarshaled by the Store.
type ConnectedRepo struct {
	UserID   string `gorm:"primaryKey;index:idx_connected_repos_user" json:"user_id"`
	Slug     string `gorm:"primaryKey" json:"slug"`
	Name     string `gorm:"not null" json:"name"` // owner/name
	Provider string `gorm:"not null" json:"provider"`
	Status   string `gorm:"index;not null;default:'analyzing'" json:"status"`

	ConnectedAt time.Time `json:"connected_at"`

	AnalysisData string `gorm:"type:jsonb" json:"analysis_data,omitempty"`
	PersonaData  string `gorm:"type:jsonb" json:"persona_data,omitempty"`
	CustomSkills string `gorm:"type:jsonb;default:'[]'" json:"custom_skills"`

	WebhookHookID *int64 `json:"webhook_hook_id,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`

	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserSettings holds per-user forge tokens and review preferences. Tokens
// are owned exclusively here, never on ConnectedRepo.
type UserSettings struct {
	UserID string `gorm:"primaryKey" json:"user_id"`

	GitHubToken        string `gorm:"column:git_hub_token" json:"-"`
	GitHubRefreshToken string `gorm:"column:git_hub_refresh_token" json:"-"`
	GitLabToken        string `gorm:"column:git_lab_token" json:"-"`
	GitLabRefreshToken string `gorm:"column:git_lab_refresh_token" json:"-"`

	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"` // "provider/model" form
	APIKey      string `json:"-"`

	MaxComments int `gorm:"default:10" json:"max_comments"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Review is an append-only record of one completed review. Never updated
// after insert; CommentCount always equals len(Comments).
type Review struct {
	ID uint `gorm:"primarykey" json:"id"`

	UserID     string `gorm:"index:idx_reviews_user_slug;not null" json:"user_id"`
	RepoSlug   string `gorm:"index:idx_reviews_user_slug;not null" json:"repo_slug"`
	PRNumber   int    `gorm:"not null" json:"pr_number"`
	PRTitle    string `json:"pr_title"`
	PRURL      string `json:"pr_url"`
	PRAuthor   string `json:"pr_author"`

	Verdict string `json:"verdict"`
	Summary string `gorm:"type:text" json:"summary,omitempty"`

	CommentCount int    `json:"comment_count"`
	Comments     string `gorm:"type:jsonb" json:"comments"` // []models.ReviewComment

	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`

	CreatedAt time.Time `gorm:"index:idx_reviews_user_created" json:"created_at"`
}

// Subscription tracks plan state and the monthly free-tier review counter.
type Subscription struct {
	UserID string `gorm:"primaryKey" json:"user_id"`

	StripeCustomerID     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`

	Plan   string `gorm:"default:'free'" json:"plan"`
	Status string `gorm:"default:'active'" json:"status"`

	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	ReviewCountMonth   int        `gorm:"default:0" json:"review_count_month"`
	ReviewCountResetAt time.Time  `json:"review_count_reset_at"`
}

// WorkerMetrics tracks worker-process heartbeats for ambient observability.
type WorkerMetrics struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WorkerID       string    `gorm:"index;not null" json:"worker_id"`
	Hostname       string    `json:"hostname"`
	Status         string    `gorm:"index" json:"status"`
	TasksProcessed int       `gorm:"default:0" json:"tasks_processed"`
	TasksFailed    int       `gorm:"default:0" json:"tasks_failed"`
	LastHeartbeat  time.Time `gorm:"index" json:"last_heartbeat"`
}
