// Package reviewer implements the Reviewer: the admission-controlled,
// persona/profile/skills-templated pipeline that turns one PR lifecycle
// WebhookEvent into a posted set of review comments. It generalizes
// internal/review/modes.go's ProcessReview pipeline (precondition checks,
// prompt assembly, sandboxed agent call, post-processing, persist) from
// its comment-command-triggered, single-mode shape into this
// PR-lifecycle-triggered, persona-aware shape.
package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/agent"
	"github.com/techy/revo/internal/circuitbreaker"
	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/internal/oauth"
	"github.com/techy/revo/internal/ratelimit"
	"github.com/techy/revo/internal/retry"
	"github.com/techy/revo/internal/sandbox"
	"github.com/techy/revo/internal/skills"
	"github.com/techy/revo/pkg/models"
)

const (
	reviewTimeout      = 5 * time.Minute
	subscriptionWindow = 30 * 24 * time.Hour
	freeReviewCap      = 50
	maxFileCount       = 100
	dedupLineWindow    = 3
	dedupMessageChars  = 80
	suggestionDropAbove = 5
)

// agentResult is the shape the agent CLI's final text blob is parsed into.
type agentResult struct {
	Comments []models.ReviewComment `json:"comments"`
}

// Reviewer drives one PR/MR through admission control, sandboxed review,
// and comment posting.
type Reviewer struct {
	store          *database.Store
	tokens         *oauth.TokenStore
	adapters       map[models.Provider]forge.Adapter
	sandbox        *sandbox.Sandbox
	skills         *skills.Catalog
	containerImage string
	agentPath      string
	gitlabBotToken string

	sandboxLimiter *ratelimit.Limiter
	breakers       map[models.Provider]*circuitbreaker.CircuitBreaker
	retrier        *retry.Retrier
}

// New wires a Reviewer from its dependencies. adapters must have an entry
// for every models.Provider the deployment handles.
func New(store *database.Store, tokens *oauth.TokenStore, adapters map[models.Provider]forge.Adapter, sb *sandbox.Sandbox, catalog *skills.Catalog, containerImage, agentPath, gitlabBotToken string, cfg *models.Config) *Reviewer {
	breakers := make(map[models.Provider]*circuitbreaker.CircuitBreaker, len(adapters))
	for provider := range adapters {
		breakers[provider] = circuitbreaker.New(circuitbreaker.Config{
			Name:             "forge-" + string(provider),
			FailureThreshold: cfg.CircuitFailureThreshold,
			Timeout:          time.Duration(cfg.CircuitTimeoutSec) * time.Second,
		})
	}

	return &Reviewer{
		store:          store,
		tokens:         tokens,
		adapters:       adapters,
		sandbox:        sb,
		skills:         catalog,
		containerImage: containerImage,
		agentPath:      agentPath,
		gitlabBotToken: gitlabBotToken,

		sandboxLimiter: ratelimit.NewLimiter(cfg.RateLimitMaxTokens, time.Duration(cfg.RateLimitRefillSec)*time.Second),
		breakers:       breakers,
		retrier: retry.New(retry.Config{
			MaxRetries:     cfg.RetryMaxAttempts,
			InitialDelay:   time.Duration(cfg.RetryInitialDelay) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.RetryMaxDelay) * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0.3,
		}),
	}
}

// withForge wraps a forge call with the per-provider circuit breaker and
// the shared retrier, so a flaky or outage-prone forge fails fast instead
// of burning through sandbox runs that would only stall on PostReview.
func (r *Reviewer) withForge(ctx context.Context, provider models.Provider, fn func() error) error {
	breaker := r.breakers[provider]
	if breaker == nil {
		return r.retrier.Do(ctx, func(context.Context) error { return fn() })
	}
	return breaker.Execute(func() error {
		return r.retrier.Do(ctx, func(context.Context) error { return fn() })
	})
}

// Run executes the full review pipeline for one event. A skip (admission
// control rejects the event) is not an error: it logs and returns nil so
// the Scheduler treats the job as done rather than retrying it.
func (r *Reviewer) Run(ctx context.Context, event models.WebhookEvent) error {
	repo, err := r.store.GetConnectedRepo(event.UserID, event.RepoSlug)
	if err != nil {
		return fmt.Errorf("reviewer: load connected repo: %w", err)
	}

	if repo.Status != string(models.StatusActive) {
		log.Info().Str("repo", event.RepoSlug).Str("status", repo.Status).Msg("skipping review: repo not active")
		return nil
	}

	persona := database.DecodeText(repo.PersonaData)
	if persona == "" {
		log.Info().Str("repo", event.RepoSlug).Msg("skipping review: no persona")
		return nil
	}

	sub, err := r.store.GetSubscription(event.UserID)
	if err != nil {
		return fmt.Errorf("reviewer: load subscription: %w", err)
	}
	if sub.Plan != "pro" {
		if time.Since(sub.ReviewCountResetAt) > subscriptionWindow {
			if err := r.store.ResetReviewCount(event.UserID); err != nil {
				return fmt.Errorf("reviewer: reset review count: %w", err)
			}
			sub.ReviewCountMonth = 0
		}
		if sub.ReviewCountMonth >= freeReviewCap {
			log.Info().Str("user_id", event.UserID).Msg("skipping review: monthly free cap reached")
			return nil
		}
	}

	token, _, err := r.tokens.GetValid(ctx, event.UserID, event.Provider)
	if err != nil {
		return fmt.Errorf("reviewer: token lookup: %w", err)
	}
	if token == "" {
		log.Info().Str("repo", event.RepoSlug).Msg("skipping review: no valid token")
		return nil
	}

	settings, err := r.store.GetUserSettings(event.UserID)
	if err != nil {
		log.Info().Str("repo", event.RepoSlug).Msg("skipping review: no user settings")
		return nil
	}
	if settings.APIKey == "" {
		log.Info().Str("repo", event.RepoSlug).Msg("skipping review: no api key")
		return nil
	}
	model := agent.NormalizeModel(settings.LLMModel, settings.LLMProvider)

	adapter := r.adapters[event.Provider]
	if adapter == nil {
		return fmt.Errorf("reviewer: no adapter for provider %q", event.Provider)
	}

	var metadata models.PRMetadata
	var files []models.FileChange
	if err := r.withForge(ctx, event.Provider, func() error {
		var ferr error
		metadata, files, ferr = adapter.FetchDiff(ctx, event.RepoName, event.PRNumber, token)
		return ferr
	}); err != nil {
		return fmt.Errorf("reviewer: fetch diff: %w", err)
	}
	if metadata.Draft {
		log.Info().Str("repo", event.RepoSlug).Int("pr", event.PRNumber).Msg("skipping review: draft")
		return nil
	}
	if len(files) == 0 || len(files) > maxFileCount {
		log.Info().Str("repo", event.RepoSlug).Int("pr", event.PRNumber).Int("files", len(files)).Msg("skipping review: file count out of bounds")
		return nil
	}

	prior, err := r.store.PriorComments(event.UserID, event.RepoSlug, event.PRNumber)
	if err != nil {
		return fmt.Errorf("reviewer: load prior comments: %w", err)
	}

	var analysisProfile string
	if repo.AnalysisData != "" {
		var record struct {
			Profile string `json:"profile"`
		}
		if err := json.Unmarshal([]byte(repo.AnalysisData), &record); err == nil {
			analysisProfile = record.Profile
		}
	}

	var customSkills []string
	if repo.CustomSkills != "" {
		_ = json.Unmarshal([]byte(repo.CustomSkills), &customSkills)
	}

	systemPrompt := buildSystemPrompt(persona, analysisProfile, r.skills.FormatPredefined(), skills.FormatCustom(customSkills))
	userMessage := buildUserMessage(metadata, prior, len(files), forge.FormatDiff(files))

	result, err := r.invokeAgent(ctx, event, systemPrompt, userMessage, settings.LLMProvider, model, settings.APIKey)
	if err != nil {
		return fmt.Errorf("reviewer: invoke agent: %w", err)
	}

	comments := postProcess(result.Comments, prior, settings.MaxComments)

	var postedCount int
	if err := r.withForge(ctx, event.Provider, func() error {
		var perr error
		postedCount, perr = adapter.PostReview(ctx, event.RepoName, event.PRNumber, token, comments, metadata.Refs, metadata.HeadSHA)
		return perr
	}); err != nil {
		return fmt.Errorf("reviewer: post review: %w", err)
	}
	if postedCount != len(comments) {
		log.Warn().Str("repo", event.RepoSlug).Int("pr", event.PRNumber).
			Int("posted", postedCount).Int("produced", len(comments)).
			Msg("forge accepted fewer comments than the review produced")
	}

	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("reviewer: marshal comments: %w", err)
	}
	review := &database.Review{
		UserID:       event.UserID,
		RepoSlug:     event.RepoSlug,
		PRNumber:     event.PRNumber,
		PRTitle:      metadata.Title,
		PRURL:        event.PRURL,
		PRAuthor:     metadata.Author,
		Verdict:      "comment",
		CommentCount: len(comments),
		Comments:     string(commentsJSON),
		LLMProvider:  settings.LLMProvider,
		LLMModel:     model,
		CreatedAt:    time.Now(),
	}
	if err := r.store.CreateReview(review); err != nil {
		return fmt.Errorf("reviewer: persist review: %w", err)
	}

	if sub.Plan != "pro" {
		if err := r.store.IncrementReviewCount(event.UserID); err != nil {
			return fmt.Errorf("reviewer: increment review count: %w", err)
		}
	}

	return nil
}

func (r *Reviewer) invokeAgent(ctx context.Context, event models.WebhookEvent, systemPrompt, userMessage, provider, model, apiKey string) (agentResult, error) {
	if err := r.sandboxLimiter.Wait(ctx); err != nil {
		return agentResult{}, fmt.Errorf("acquire sandbox slot: %w", err)
	}
	defer r.sandboxLimiter.Release()

	handle, workDir, err := r.checkout(ctx, event)
	if err != nil {
		return agentResult{}, err
	}
	defer os.RemoveAll(workDir)
	defer r.sandbox.Stop(ctx, handle)

	if err := r.sandbox.WriteFile(ctx, handle, "/tmp/system.txt", systemPrompt); err != nil {
		return agentResult{}, fmt.Errorf("write system prompt: %w", err)
	}
	if err := r.sandbox.WriteFile(ctx, handle, "/tmp/message.txt", userMessage); err != nil {
		return agentResult{}, fmt.Errorf("write user message: %w", err)
	}

	authJSON, err := agent.BuildAuthJSON(provider, apiKey)
	if err != nil {
		return agentResult{}, fmt.Errorf("build auth json: %w", err)
	}
	if _, err := r.sandbox.Exec(ctx, handle, []string{"mkdir", "-p", "/root/.local/share/opencode"}); err != nil {
		return agentResult{}, fmt.Errorf("create auth dir: %w", err)
	}
	if err := r.sandbox.WriteFile(ctx, handle, "/root/.local/share/opencode/auth.json", authJSON); err != nil {
		return agentResult{}, fmt.Errorf("write auth json: %w", err)
	}

	runCmd := fmt.Sprintf(
		"cat /tmp/message.txt | %s run --model %s --file /tmp/system.txt --format json --dir /repo > /tmp/result.txt",
		r.agentPath, model)
	runRes, err := r.sandbox.ExecWithTimeout(ctx, handle, []string{"sh", "-c", runCmd}, reviewTimeout)
	if err != nil {
		return agentResult{}, fmt.Errorf("run agent: %w", err)
	}
	if runRes.ExitCode != 0 {
		return agentResult{}, fmt.Errorf("run agent: exit %d: %s", runRes.ExitCode, runRes.Stderr)
	}

	readRes, err := r.sandbox.Exec(ctx, handle, []string{"cat", "/tmp/result.txt"})
	if err != nil {
		return agentResult{}, fmt.Errorf("read result: %w", err)
	}

	text := agent.ExtractText(readRes.Stdout)
	var result agentResult
	if err := agent.ParseJSON(text, &result); err != nil {
		return agentResult{}, fmt.Errorf("parse agent output: %w", err)
	}
	return result, nil
}

// checkout creates the sandbox's host work directory, starts the sandbox
// against it, clones the repo, and checks out the PR/MR's head ref. A
// checkout failure is logged but non-fatal: the agent still runs against
// the base branch's working tree. The returned workDir is the caller's
// responsibility to remove once the sandbox is stopped.
func (r *Reviewer) checkout(ctx context.Context, event models.WebhookEvent) (*sandbox.Handle, string, error) {
	workDir, err := os.MkdirTemp("", "techy-review-*")
	if err != nil {
		return nil, "", fmt.Errorf("create work dir: %w", err)
	}

	handle, err := r.sandbox.Start(ctx, r.containerImage, workDir)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, "", fmt.Errorf("start sandbox: %w", err)
	}

	token, _, err := r.tokens.GetValid(ctx, event.UserID, event.Provider)
	if err != nil {
		r.sandbox.Stop(ctx, handle)
		os.RemoveAll(workDir)
		return nil, "", fmt.Errorf("token lookup for clone: %w", err)
	}
	cloneURL := forge.CloneURL(event.Provider, token, event.RepoName)

	cloneRes, err := r.sandbox.ExecWithTimeout(ctx, handle, []string{"git", "clone", "--depth", "50", cloneURL, "/repo"}, 2*time.Minute)
	if err != nil || cloneRes.ExitCode != 0 {
		r.sandbox.Stop(ctx, handle)
		os.RemoveAll(workDir)
		return nil, "", fmt.Errorf("clone repo: %w", err)
	}

	var fetchArgv []string
	switch event.Provider {
	case models.ProviderGitHub:
		fetchArgv = []string{"sh", "-c", fmt.Sprintf("git fetch origin pull/%d/head:pr-review && git checkout pr-review", event.PRNumber)}
	case models.ProviderGitLab:
		fetchArgv = []string{"sh", "-c", fmt.Sprintf("git fetch origin merge-requests/%d/head:mr-review && git checkout mr-review", event.PRNumber)}
	}
	if fetchArgv != nil {
		if res, err := r.sandbox.Exec(ctx, handle, fetchArgv); err != nil || res.ExitCode != 0 {
			log.Warn().Err(err).Str("repo", event.RepoSlug).Int("pr", event.PRNumber).Msg("pr/mr head checkout failed, reviewing base branch tree instead")
		}
	}

	return handle, workDir, nil
}

// postProcess truncates to the repo's max_comments cap (preserving model
// order), drops every suggestion-severity comment when more than
// suggestionDropAbove remain, then removes anything that duplicates a prior
// comment on the same file within a few lines with a matching message
// prefix. Order matches the spec's step numbering exactly: truncate, then
// drop suggestions, then dedup against history.
func postProcess(comments []models.ReviewComment, prior []models.ReviewComment, maxComments int) []models.ReviewComment {
	truncated := comments
	if maxComments > 0 && len(truncated) > maxComments {
		truncated = truncated[:maxComments]
	}

	if len(truncated) > suggestionDropAbove {
		filtered := make([]models.ReviewComment, 0, len(truncated))
		for _, c := range truncated {
			if c.Severity != models.SeveritySuggestion {
				filtered = append(filtered, c)
			}
		}
		truncated = filtered
	}

	deduped := make([]models.ReviewComment, 0, len(truncated))
	for _, c := range truncated {
		if !isDuplicate(c, prior) {
			deduped = append(deduped, c)
		}
	}

	return deduped
}

func isDuplicate(c models.ReviewComment, prior []models.ReviewComment) bool {
	cPrefix := messagePrefix(c.Message)
	for _, p := range prior {
		if p.File != c.File {
			continue
		}
		if abs(p.Line-c.Line) > dedupLineWindow {
			continue
		}
		if messagePrefix(p.Message) == cPrefix {
			return true
		}
	}
	return false
}

func messagePrefix(s string) string {
	s = strings.ToLower(s)
	if len(s) > dedupMessageChars {
		s = s[:dedupMessageChars]
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
