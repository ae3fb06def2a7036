// Package analyzer implements the Analyzer component: it clones a newly
// connected repo into a Sandbox, asks the agent CLI to summarize it, and
// persists the resulting profile before handing the repo off to the
// interview step. This is a wholly new component, grounded in
// internal/claude/client.go's invocation style (system-prompt-from-file,
// context timeout) generalized onto the Sandbox abstraction, and
// internal/claude/prompts.go's template-construction idiom.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/agent"
	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/internal/oauth"
	"github.com/techy/revo/internal/ratelimit"
	"github.com/techy/revo/internal/sandbox"
	"github.com/techy/revo/pkg/models"
)

const cloneTimeout = 2 * time.Minute
const analysisTimeout = 15 * time.Minute

// analysisRecord is the shape persisted into ConnectedRepo.AnalysisData.
type analysisRecord struct {
	Profile    string    `json:"profile"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Analyzer runs the repo-profiling job.
type Analyzer struct {
	store          *database.Store
	tokens         *oauth.TokenStore
	sandbox        *sandbox.Sandbox
	containerImage string
	agentPath      string

	sandboxLimiter *ratelimit.Limiter
}

// New wires an Analyzer from its dependencies. The sandbox limiter is the
// Analyzer's own, sized from the same config values as the Reviewer's; the
// two limiters do not share tokens.
func New(store *database.Store, tokens *oauth.TokenStore, sb *sandbox.Sandbox, containerImage, agentPath string, cfg *models.Config) *Analyzer {
	return &Analyzer{
		store:          store,
		tokens:         tokens,
		sandbox:        sb,
		containerImage: containerImage,
		agentPath:      agentPath,
		sandboxLimiter: ratelimit.NewLimiter(cfg.RateLimitMaxTokens, time.Duration(cfg.RateLimitRefillSec)*time.Second),
	}
}

// Run executes one analysis job. Any internal failure degrades the repo to
// status=interview with no profile rather than propagating, except for
// errors in the final persistence step which the Scheduler should retry.
func (a *Analyzer) Run(ctx context.Context, payload models.RepoAnalysisPayload) error {
	token, _, err := a.tokens.GetValid(ctx, payload.UserID, payload.Provider)
	if err != nil {
		log.Warn().Err(err).Str("repo", payload.RepoName).Msg("token lookup failed, degrading analysis to empty profile")
		return a.degrade(payload)
	}
	if token == "" {
		log.Info().Str("repo", payload.RepoName).Msg("no valid token, degrading analysis to empty profile")
		return a.degrade(payload)
	}

	settings, err := a.store.GetUserSettings(payload.UserID)
	if err != nil {
		log.Info().Str("repo", payload.RepoName).Msg("no user settings, degrading analysis to empty profile")
		return a.degrade(payload)
	}
	if settings.APIKey == "" {
		log.Info().Str("repo", payload.RepoName).Msg("no api key, degrading analysis to empty profile")
		return a.degrade(payload)
	}

	model := agent.NormalizeModel(settings.LLMModel, settings.LLMProvider)

	profile, err := a.profile(ctx, payload, token, settings.LLMProvider, model, settings.APIKey)
	if err != nil {
		log.Warn().Err(err).Str("repo", payload.RepoName).Msg("analysis failed, degrading to empty profile")
		return a.degrade(payload)
	}

	record := analysisRecord{
		Profile:    profile,
		Provider:   settings.LLMProvider,
		Model:      model,
		AnalyzedAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("analyzer: marshal analysis record: %w", err)
	}

	repo, err := a.store.GetConnectedRepo(payload.UserID, payload.Slug)
	if err != nil {
		return fmt.Errorf("analyzer: load connected repo: %w", err)
	}
	repo.AnalysisData = string(data)
	repo.Status = string(models.StatusInterview)
	if err := a.store.UpsertConnectedRepo(repo); err != nil {
		return fmt.Errorf("analyzer: persist analysis: %w", err)
	}

	return nil
}

func (a *Analyzer) degrade(payload models.RepoAnalysisPayload) error {
	if err := a.store.UpdateConnectedRepoStatus(payload.UserID, payload.Slug, string(models.StatusInterview)); err != nil {
		return fmt.Errorf("analyzer: degrade status: %w", err)
	}
	return nil
}

func (a *Analyzer) profile(ctx context.Context, payload models.RepoAnalysisPayload, token, provider, model, apiKey string) (string, error) {
	if err := a.sandboxLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("acquire sandbox slot: %w", err)
	}
	defer a.sandboxLimiter.Release()

	workDir, err := os.MkdirTemp("", "techy-analyze-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	handle, err := a.sandbox.Start(ctx, a.containerImage, workDir)
	if err != nil {
		return "", fmt.Errorf("start sandbox: %w", err)
	}
	defer a.sandbox.Stop(ctx, handle)

	cloneURL := forge.CloneURL(payload.Provider, token, payload.RepoName)
	if cloneURL == "" {
		return "", fmt.Errorf("unsupported provider %q", payload.Provider)
	}

	cloneRes, err := a.sandbox.ExecWithTimeout(ctx, handle, []string{"git", "clone", "--depth", "1", cloneURL, "/repo"}, cloneTimeout)
	if err != nil {
		return "", fmt.Errorf("clone repo: %w", err)
	}
	if cloneRes.ExitCode != 0 {
		return "", fmt.Errorf("clone repo: exit %d: %s", cloneRes.ExitCode, cloneRes.Stderr)
	}

	if err := a.sandbox.WriteFile(ctx, handle, "/tmp/prompt.txt", systemPrompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	authJSON, err := agent.BuildAuthJSON(provider, apiKey)
	if err != nil {
		return "", fmt.Errorf("build auth json: %w", err)
	}
	if _, err := a.sandbox.Exec(ctx, handle, []string{"mkdir", "-p", "/root/.local/share/opencode"}); err != nil {
		return "", fmt.Errorf("create auth dir: %w", err)
	}
	if err := a.sandbox.WriteFile(ctx, handle, "/root/.local/share/opencode/auth.json", authJSON); err != nil {
		return "", fmt.Errorf("write auth json: %w", err)
	}

	runCmd := fmt.Sprintf("cat /tmp/prompt.txt | %s run --model %s --format json --dir /repo > /tmp/result.txt", a.agentPath, model)
	runRes, err := a.sandbox.ExecWithTimeout(ctx, handle, []string{"sh", "-c", runCmd}, analysisTimeout)
	if err != nil {
		return "", fmt.Errorf("run agent: %w", err)
	}
	if runRes.ExitCode != 0 {
		return "", fmt.Errorf("run agent: exit %d: %s", runRes.ExitCode, runRes.Stderr)
	}

	readRes, err := a.sandbox.Exec(ctx, handle, []string{"cat", "/tmp/result.txt"})
	if err != nil {
		return "", fmt.Errorf("read result: %w", err)
	}

	return agent.ExtractText(readRes.Stdout), nil
}
