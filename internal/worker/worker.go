// Package worker implements the Scheduler: the asynq-backed
// dispatcher that pops jobs off the repo_analysis and webhook_events
// queues and hands them to the Analyzer or Reviewer. It generalizes the
// original single-queue, single-task-type worker into two named queues
// with a shared give-up-after-N-redeliveries policy, keeping the
// graceful-shutdown wiring (os/signal -> asynq.Server.Shutdown) unchanged.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/analyzer"
	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/internal/github"
	"github.com/techy/revo/internal/gitlab"
	"github.com/techy/revo/internal/oauth"
	"github.com/techy/revo/internal/reviewer"
	"github.com/techy/revo/internal/sandbox"
	"github.com/techy/revo/internal/skills"
	"github.com/techy/revo/internal/tasks"
	"github.com/techy/revo/pkg/models"
)

// maxReadCount bounds redelivery for both queues: a message whose read_ct
// exceeds this is dropped rather than retried indefinitely.
const maxReadCount = 3

// Run connects the Scheduler's dependencies and blocks serving both asynq
// queues until the process receives a shutdown signal.
func Run(cfg *models.Config) error {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker: connect database: %w", err)
	}
	store := database.NewStore(db)

	githubClient := github.NewClient(cfg.GitHubAppID, cfg.GitHubPrivateKey)
	gitlabClient := gitlab.NewClient(cfg.GitLabBotToken)
	adapters := map[models.Provider]forge.Adapter{
		models.ProviderGitHub: githubClient,
		models.ProviderGitLab: gitlabClient,
	}

	tokens := oauth.NewTokenStore(store, oauth.NewGitHubProviderClient(cfg.GitHubClientID, cfg.GitHubClientSecret), oauth.NewGitLabProviderClient(cfg.GitLabClientID, cfg.GitLabClientSecret))

	sb, err := sandbox.New(cfg.DockerHost)
	if err != nil {
		return fmt.Errorf("worker: connect sandbox: %w", err)
	}

	catalog, err := skills.Load(cfg.SkillsRoot)
	if err != nil {
		return fmt.Errorf("worker: load skills catalog: %w", err)
	}

	repoAnalyzer := analyzer.New(store, tokens, sb, cfg.ContainerImage, cfg.AgentPath, cfg)
	prReviewer := reviewer.New(store, tokens, adapters, sb, catalog, cfg.ContainerImage, cfg.AgentPath, cfg.GitLabBotToken, cfg)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			tasks.QueueAnalysis: 1,
			tasks.QueueReview:   1,
		},
	})

	mux := asynq.NewServeMux()

	mux.HandleFunc(tasks.TypeAnalysis, func(ctx context.Context, task *asynq.Task) error {
		if retryCount, ok := asynq.GetRetryCount(ctx); ok && retryCount > maxReadCount {
			log.Warn().Int("retry_count", retryCount).Msg("dropping analysis task past retry limit")
			return nil
		}
		payload, err := tasks.ParseAnalysisTask(task)
		if err != nil {
			return fmt.Errorf("invalid analysis task payload: %w", err)
		}
		return repoAnalyzer.Run(ctx, payload)
	})

	mux.HandleFunc(tasks.TypeReview, func(ctx context.Context, task *asynq.Task) error {
		if retryCount, ok := asynq.GetRetryCount(ctx); ok && retryCount > maxReadCount {
			log.Warn().Int("retry_count", retryCount).Msg("dropping review task past retry limit")
			return nil
		}
		event, err := tasks.ParseReviewTask(task)
		if err != nil {
			return fmt.Errorf("invalid review task payload: %w", err)
		}

		switch event.EventType {
		case models.EventPROpened, models.EventPRUpdated:
			return prReviewer.Run(ctx, event)
		case models.EventPRClosed, models.EventPRReopened:
			log.Debug().Str("repo", event.RepoSlug).Int("pr", event.PRNumber).Str("event_type", string(event.EventType)).Msg("no-op event, acking")
			return nil
		default:
			log.Warn().Str("event_type", string(event.EventType)).Msg("unknown event type, acking")
			return nil
		}
	})

	log.Info().
		Int("concurrency", cfg.AsynqConcurrency).
		Str("analysis_queue", tasks.QueueAnalysis).
		Str("review_queue", tasks.QueueReview).
		Dur("poll_interval", time.Duration(cfg.PollIntervalMS)*time.Millisecond).
		Msg("techy scheduler starting")

	return server.Run(mux)
}
