// Package models holds the value types shared across techy's components:
// forge-agnostic webhook/diff shapes, review comments, interview questions,
// and the process-wide Config. Persisted (gorm-tagged) shapes live in
// internal/database; this package is their plain, storage-agnostic source of
// truth.
package models

import "time"

// Provider identifies which hosted forge a repo/token/webhook belongs to.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// RepoStatus is the lifecycle state of a ConnectedRepo.
type RepoStatus string

const (
	StatusAnalyzing RepoStatus = "analyzing"
	StatusInterview RepoStatus = "interview"
	StatusActive    RepoStatus = "active"
	StatusPaused    RepoStatus = "paused"
)

// Severity classifies a review comment.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// ReviewComment is one inline finding produced by a review.
type ReviewComment struct {
	File       string   `json:"file"`
	Line       int      `json:"line"`
	EndLine    int      `json:"endLine,omitempty"`
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// EventType is the normalized shape WebhookIngress produces regardless of
// source forge.
type EventType string

const (
	EventPROpened   EventType = "pr_opened"
	EventPRUpdated  EventType = "pr_updated"
	EventPRClosed   EventType = "pr_closed"
	EventPRReopened EventType = "pr_reopened"
)

// WebhookEvent is the forge-agnostic event the Queue carries from
// WebhookIngress to the Scheduler.
type WebhookEvent struct {
	Provider    Provider  `json:"provider"`
	EventType   EventType `json:"event_type"`
	RepoSlug    string    `json:"repo_slug"`
	RepoName    string    `json:"repo_name"`
	PRNumber    int       `json:"pr_number"`
	PRTitle     string    `json:"pr_title"`
	PRURL       string    `json:"pr_url"`
	PRAuthor    string    `json:"pr_author"`
	BaseBranch  string    `json:"base_branch"`
	HeadBranch  string    `json:"head_branch"`
	RawAction   string    `json:"raw_action"`
	UserID      string    `json:"user_id"`
	ReceivedAt  time.Time `json:"received_at"`
}

// DiffRefs identifies a GitLab diff position; unused (zero value) for GitHub.
type DiffRefs struct {
	BaseSHA  string `json:"base_sha"`
	StartSHA string `json:"start_sha"`
	HeadSHA  string `json:"head_sha"`
}

// PRMetadata is the forge-agnostic subset of PR/MR fields the Reviewer needs.
type PRMetadata struct {
	Title        string
	Body         string
	BaseBranch   string
	HeadBranch   string
	HeadSHA      string
	Author       string
	Draft        bool
	Refs         DiffRefs
}

// FileChange is one file entry from a diff listing, forge-agnostic.
type FileChange struct {
	OldPath   string
	NewPath   string
	Status    string // added, modified, removed, renamed
	Additions int
	Deletions int
	Patch     string
}

// RepoAnalysisPayload is the Queue body for the repo_analysis queue.
type RepoAnalysisPayload struct {
	UserID   string   `json:"user_id"`
	Slug     string   `json:"slug"`
	RepoName string   `json:"repo_name"`
	Provider Provider `json:"provider"`
}

// QuestionType distinguishes the five InterviewQuestion variants.
type QuestionType string

const (
	QuestionSingleSelect   QuestionType = "single_select"
	QuestionMultiSelect    QuestionType = "multi_select"
	QuestionCodeOpinion    QuestionType = "code_opinion"
	QuestionConfirmCorrect QuestionType = "confirm_correct"
	QuestionShortText      QuestionType = "short_text"
)

// InterviewQuestion is a sum type over the five question shapes the
// InterviewDriver can emit, discriminated by Type. Validate enforces the
// per-type required fields rather than leaving callers to trust a loose map.
type InterviewQuestion struct {
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"prompt"`
	Category    string       `json:"category"`
	Options     []string     `json:"options,omitempty"`
	CodeSnippet string       `json:"codeSnippet,omitempty"`
	CodeFile    string       `json:"codeFile,omitempty"`
	Detections  []string     `json:"detections,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
}

// Validate checks the required-field invariants for the question's Type.
func (q InterviewQuestion) Validate() error {
	switch q.Type {
	case QuestionSingleSelect, QuestionMultiSelect:
		if len(q.Options) == 0 {
			return errMissingField(q.Type, "options")
		}
	case QuestionCodeOpinion:
		if len(q.Options) == 0 {
			return errMissingField(q.Type, "options")
		}
		if q.CodeSnippet == "" {
			return errMissingField(q.Type, "codeSnippet")
		}
		if q.CodeFile == "" {
			return errMissingField(q.Type, "codeFile")
		}
	case QuestionConfirmCorrect:
		if len(q.Detections) == 0 {
			return errMissingField(q.Type, "detections")
		}
	case QuestionShortText:
		// placeholder is optional; nothing else required.
	default:
		return errUnknownQuestionType(q.Type)
	}
	return nil
}

// InterviewStepStatus is the discriminant of an InterviewDriver step result.
type InterviewStepStatus string

const (
	InterviewStatusQuestion InterviewStepStatus = "question"
	InterviewStatusComplete InterviewStepStatus = "complete"
	InterviewStatusError    InterviewStepStatus = "error"
)

// InterviewStep is the single-shape result of one InterviewDriver invocation.
type InterviewStep struct {
	Status         InterviewStepStatus `json:"status"`
	Question       *InterviewQuestion  `json:"question,omitempty"`
	QuestionNumber int                 `json:"questionNumber,omitempty"`
	EstimatedTotal int                 `json:"estimatedTotal,omitempty"`
	Persona        string              `json:"persona,omitempty"`
	Message        string              `json:"message,omitempty"`
}

// InterviewAnswer records one answered question in the running transcript.
type InterviewAnswer struct {
	Question InterviewQuestion `json:"question"`
	Answer   string            `json:"answer"`
}

// Config holds all process-wide configuration, loaded once at startup and
// treated as immutable thereafter.
type Config struct {
	// HTTP server
	Port string

	// Forge: GitHub App (optional bot-posting identity)
	GitHubAppID         int64
	GitHubPrivateKey    []byte
	GitHubWebhookSecret string

	// Forge: GitHub OAuth (user-level connect flow)
	GitHubClientID     string
	GitHubClientSecret string

	// Forge: GitLab OAuth + bot identity
	GitLabClientID     string
	GitLabClientSecret string
	GitLabBotToken     string
	GitLabBotUserID    int64

	WebhookBaseURL string

	// Storage
	DatabaseURL string

	// Redis / asynq
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AsynqConcurrency   int
	AsynqQueueReview   string
	AsynqQueueAnalysis string
	AsynqMaxRetry      int

	// Sandbox / agent
	ContainerImage       string
	AgentPath            string
	AgentModel           string // default provider/model, e.g. "anthropic/claude-3-5-sonnet"
	DockerHost           string // empty uses the default local socket
	SandboxMaxConcurrent int

	// Scheduler
	PollIntervalMS int

	// Resilience
	RateLimitMaxTokens      int
	RateLimitRefillSec      int
	CircuitFailureThreshold int
	CircuitTimeoutSec       int
	CacheEnabled            bool
	CacheMaxSize            int
	CacheTTLMin             int
	DedupEnabled            bool
	DedupTTLMin             int
	RetryMaxAttempts        int
	RetryInitialDelay       int // ms
	RetryMaxDelay     int // ms

	// Skills catalog
	SkillsRoot string

	// Limits
	MaxDiffSize int

	// Admin
	AdminAPIKey string
}

type validationError struct {
	qtype QuestionType
	field string
}

func (e *validationError) Error() string {
	return "interview question of type " + string(e.qtype) + " missing required field " + e.field
}

func errMissingField(qtype QuestionType, field string) error {
	return &validationError{qtype: qtype, field: field}
}

type unknownTypeError struct {
	qtype QuestionType
}

func (e *unknownTypeError) Error() string {
	return "unknown interview question type " + string(e.qtype)
}

func errUnknownQuestionType(qtype QuestionType) error {
	return &unknownTypeError{qtype: qtype}
}
