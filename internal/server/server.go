// Package server implements two components behind one HTTP process:
// WebhookIngress, the single POST endpoint that verifies and normalizes
// inbound forge webhooks onto the Queue, and AdminAPI, the thin
// connect/status/persona/interview surface the out-of-scope UI consumes.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/internal/dedup"
	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/internal/github"
	"github.com/techy/revo/internal/gitlab"
	"github.com/techy/revo/internal/interview"
	"github.com/techy/revo/internal/oauth"
	"github.com/techy/revo/internal/queue"
	"github.com/techy/revo/internal/sandbox"
	"github.com/techy/revo/pkg/models"
)

var startTime = time.Now()

// Server hosts the webhook ingress and admin API routes.
type Server struct {
	config     *models.Config
	router     *mux.Router
	httpServer *http.Server

	store        *database.Store
	tokens       *oauth.TokenStore
	adapters     map[models.Provider]forge.Adapter
	gitlab       *gitlab.Client
	enqueuer     *queue.Enqueuer
	asynqClient  *asynq.Client
	interview    *interview.Driver
	deduplicator *dedup.Deduplicator
}

// New wires a Server from configuration, connecting the database, Redis
// enqueuer, forge adapters, and sandbox-backed InterviewDriver.
func New(cfg *models.Config) (*Server, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(db)

	githubClient := github.NewClient(cfg.GitHubAppID, cfg.GitHubPrivateKey)
	gitlabClient := gitlab.NewClient(cfg.GitLabBotToken)

	tokens := oauth.NewTokenStore(store,
		oauth.NewGitHubProviderClient(cfg.GitHubClientID, cfg.GitHubClientSecret),
		oauth.NewGitLabProviderClient(cfg.GitLabClientID, cfg.GitLabClientSecret))

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisOpt)

	sb, err := sandbox.New(cfg.DockerHost)
	if err != nil {
		return nil, err
	}

	var deduplicator *dedup.Deduplicator
	if cfg.DedupEnabled {
		deduplicator = dedup.New(dedup.Config{
			TTL:             time.Duration(cfg.DedupTTLMin) * time.Minute,
			CleanupInterval: time.Minute,
		})
	}

	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		store:  store,
		tokens: tokens,
		adapters: map[models.Provider]forge.Adapter{
			models.ProviderGitHub: githubClient,
			models.ProviderGitLab: gitlabClient,
		},
		gitlab:       gitlabClient,
		enqueuer:     queue.NewEnqueuer(asynqClient),
		asynqClient:  asynqClient,
		interview:    interview.New(sb, cfg.ContainerImage, cfg.AgentPath),
		deduplicator: deduplicator,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start serves HTTP until a SIGINT/SIGTERM triggers graceful shutdown.
func (s *Server) Start() error {
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown server")
		}
		if err := s.asynqClient.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
		close(done)
	}()

	log.Info().Str("port", s.config.Port).Msg("techy webhook ingress + admin api starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
