package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/techy/revo/pkg/models"
)

// Load reads configuration from the environment (and .env, if present) into
// an immutable Config, failing fast on missing required values.
func Load() (*models.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &models.Config{
		Port: getEnvOrDefault("PORT", "8080"),

		WebhookBaseURL: os.Getenv("WEBHOOK_BASE_URL"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvIntOrDefault("REDIS_DB", 0),
		AsynqConcurrency:   getEnvIntOrDefault("ASYNQ_CONCURRENCY", 1),
		AsynqQueueReview:   getEnvOrDefault("ASYNQ_QUEUE_REVIEW", "webhook_events"),
		AsynqQueueAnalysis: getEnvOrDefault("ASYNQ_QUEUE_ANALYSIS", "repo_analysis"),
		AsynqMaxRetry:      getEnvIntOrDefault("ASYNQ_MAX_RETRY", 3),

		ContainerImage:       getEnvOrDefault("CONTAINER_IMAGE", "techy/agent-runner:latest"),
		AgentPath:            getEnvOrDefault("AGENT_PATH", "agent"),
		AgentModel:           getEnvOrDefault("AGENT_MODEL", "anthropic/claude-sonnet-4-20250514"),
		DockerHost:           os.Getenv("DOCKER_HOST"),
		SandboxMaxConcurrent: getEnvIntOrDefault("SANDBOX_MAX_CONCURRENT", 2),

		PollIntervalMS: getEnvIntOrDefault("POLL_INTERVAL_MS", 5000),

		RateLimitMaxTokens:      getEnvIntOrDefault("RATE_LIMIT_MAX_TOKENS", 2),
		RateLimitRefillSec:      getEnvIntOrDefault("RATE_LIMIT_REFILL_SEC", 30),
		CircuitFailureThreshold: getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitTimeoutSec:       getEnvIntOrDefault("CIRCUIT_TIMEOUT_SEC", 30),
		CacheEnabled:            getEnvBoolOrDefault("CACHE_ENABLED", true),
		CacheMaxSize:            getEnvIntOrDefault("CACHE_MAX_SIZE", 1000),
		CacheTTLMin:             getEnvIntOrDefault("CACHE_TTL_MIN", 30),
		DedupEnabled:            getEnvBoolOrDefault("DEDUP_ENABLED", true),
		DedupTTLMin:             getEnvIntOrDefault("DEDUP_TTL_MIN", 5),
		RetryMaxAttempts:        getEnvIntOrDefault("RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:       getEnvIntOrDefault("RETRY_INITIAL_DELAY_MS", 1000),
		RetryMaxDelay:           getEnvIntOrDefault("RETRY_MAX_DELAY_MS", 60000),

		SkillsRoot: getEnvOrDefault("SKILLS_ROOT", "./skills"),

		MaxDiffSize: getEnvIntOrDefault("MAX_DIFF_SIZE", 100000),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitLabClientID:     os.Getenv("GITLAB_CLIENT_ID"),
		GitLabClientSecret: os.Getenv("GITLAB_CLIENT_SECRET"),
		GitLabBotToken:     os.Getenv("GITLAB_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := loadGitHubApp(cfg); err != nil {
		return nil, err
	}

	if id := os.Getenv("GITLAB_BOT_USER_ID"); id != "" {
		botID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITLAB_BOT_USER_ID: %w", err)
		}
		cfg.GitLabBotUserID = botID
	} else if cfg.GitLabBotToken != "" {
		// A bot PAT without an id can't invite itself to new projects; fail
		// fast rather than silently skip invites later.
		return nil, fmt.Errorf("GITLAB_BOT_USER_ID is required when GITLAB_BOT_TOKEN is set")
	}

	return cfg, nil
}

// loadGitHubApp loads the optional GitHub App bot-posting identity. The App
// is optional (user tokens can post on their own), but when GITHUB_APP_ID is
// set the rest of the triple is required.
func loadGitHubApp(cfg *models.Config) error {
	idStr := os.Getenv("GITHUB_APP_ID")
	if idStr == "" {
		return nil
	}

	appID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}
	cfg.GitHubAppID = appID

	privateKeyPath := getEnvOrDefault("GITHUB_PRIVATE_KEY_PATH", "/app/private-key.pem")
	privateKey, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read GitHub private key from %s: %w", privateKeyPath, err)
	}
	cfg.GitHubPrivateKey = privateKey

	cfg.GitHubWebhookSecret = os.Getenv("GITHUB_WEBHOOK_SECRET")
	if cfg.GitHubWebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required when GITHUB_APP_ID is set")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
