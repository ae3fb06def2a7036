package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/internal/skills"
	"github.com/techy/revo/pkg/models"
)

// adminAuthMiddleware gates every /api route behind a single shared admin
// key, handed to the (out-of-scope) UI's backend-for-frontend rather than
// to end users directly.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminAPIKey == "" {
			writeError(w, http.StatusServiceUnavailable, "admin API key not configured")
			return
		}

		key := r.Header.Get("X-Admin-API-Key")
		if key == "" {
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				key = strings.TrimSpace(authHeader[7:])
			}
		}

		if key != s.config.AdminAPIKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// connectRequest is the body of POST /api/connect.
type connectRequest struct {
	UserID   string          `json:"user_id"`
	Slug     string          `json:"slug"`
	Name     string          `json:"name"`
	Provider models.Provider `json:"provider"`
}

// connectHandler creates a ConnectedRepo in status=analyzing and enqueues
// the repo_analysis job that starts the onboarding pipeline.
func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == "" || req.Slug == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id, slug, and name are required")
		return
	}
	if req.Provider != models.ProviderGitHub && req.Provider != models.ProviderGitLab {
		writeError(w, http.StatusBadRequest, "provider must be github or gitlab")
		return
	}

	repo := &database.ConnectedRepo{
		UserID:       req.UserID,
		Slug:         req.Slug,
		Name:         req.Name,
		Provider:     string(req.Provider),
		Status:       string(models.StatusAnalyzing),
		ConnectedAt:  time.Now(),
		CustomSkills: "[]",
	}
	if req.Provider == models.ProviderGitLab {
		secret, err := randomHex(32)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate webhook secret")
			return
		}
		repo.WebhookSecret = secret

		userToken, _, err := s.tokens.GetValid(r.Context(), req.UserID, models.ProviderGitLab)
		if err != nil {
			log.Error().Err(err).Str("repo", req.Slug).Msg("failed to get gitlab token for webhook registration")
			writeError(w, http.StatusPreconditionFailed, "no valid gitlab token for user")
			return
		}

		hookID, err := s.gitlab.CreateWebhook(r.Context(), req.Slug, userToken, s.config.WebhookBaseURL+"/webhooks", secret)
		if err != nil {
			log.Error().Err(err).Str("repo", req.Slug).Msg("failed to create gitlab webhook")
			writeError(w, http.StatusBadGateway, "failed to register gitlab webhook")
			return
		}
		repo.WebhookHookID = &hookID

		if s.config.GitLabBotUserID != 0 {
			if err := s.gitlab.InviteBot(r.Context(), req.Slug, userToken, s.config.GitLabBotUserID, 0); err != nil {
				log.Error().Err(err).Str("repo", req.Slug).Msg("failed to invite bot user to gitlab project")
			}
		}
	}

	if err := s.store.UpsertConnectedRepo(repo); err != nil {
		log.Error().Err(err).Str("repo", req.Slug).Msg("failed to create connected repo")
		writeError(w, http.StatusInternalServerError, "failed to create connected repo")
		return
	}

	if err := s.enqueuer.EnqueueAnalysis(r.Context(), models.RepoAnalysisPayload{
		UserID:   req.UserID,
		Slug:     req.Slug,
		RepoName: req.Name,
		Provider: req.Provider,
	}); err != nil {
		log.Error().Err(err).Str("repo", req.Slug).Msg("failed to enqueue repo analysis")
	}

	writeJSON(w, http.StatusCreated, repo)
}

// repoStatusHandler returns a connected repo's lifecycle status, analysis
// profile, persona, and custom skills.
func (s *Server) repoStatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	repo, err := s.store.GetConnectedRepo(vars["userID"], vars["slug"])
	if err != nil {
		handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// disconnectHandler removes a repo connection and its review history, and
// best-effort removes the forge-side webhook it registered (GitLab only;
// GitHub reviews are driven off the org-wide App webhook, so there is
// nothing repo-specific to tear down there).
func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, slug := vars["userID"], vars["slug"]

	repo, err := s.store.GetConnectedRepo(userID, slug)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	if repo.Provider == string(models.ProviderGitLab) && repo.WebhookHookID != nil {
		userToken, _, err := s.tokens.GetValid(r.Context(), userID, models.ProviderGitLab)
		if err != nil {
			log.Warn().Err(err).Str("repo", slug).Msg("failed to get gitlab token for webhook deletion, leaving hook in place")
		} else if err := s.gitlab.DeleteWebhook(r.Context(), slug, *repo.WebhookHookID, userToken); err != nil {
			log.Warn().Err(err).Str("repo", slug).Int64("hook_id", *repo.WebhookHookID).Msg("failed to delete gitlab webhook")
		}
	}

	if err := s.store.DeleteConnectedRepo(userID, slug); err != nil {
		log.Error().Err(err).Str("repo", slug).Msg("failed to delete connected repo")
		writeError(w, http.StatusInternalServerError, "failed to disconnect repo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// updateStatusRequest is the body of PUT /api/repos/{userID}/{slug}/status.
type updateStatusRequest struct {
	Status models.RepoStatus `json:"status"`
}

// updateStatusHandler toggles a repo between active and paused. The
// analyzing/interview states are only ever left by the pipeline itself, so
// the UI may not set them directly.
func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, slug := vars["userID"], vars["slug"]

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Status != models.StatusActive && req.Status != models.StatusPaused {
		writeError(w, http.StatusBadRequest, "status must be active or paused")
		return
	}

	repo, err := s.store.GetConnectedRepo(userID, slug)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	if repo.Status != string(models.StatusActive) && repo.Status != string(models.StatusPaused) {
		writeError(w, http.StatusConflict, "repo has not completed onboarding yet")
		return
	}

	if err := s.store.UpdateConnectedRepoStatus(userID, slug, string(req.Status)); err != nil {
		log.Error().Err(err).Str("repo", slug).Msg("failed to update repo status")
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	repo.Status = string(req.Status)
	writeJSON(w, http.StatusOK, repo)
}

// updateCustomSkillsRequest is the body of PUT
// /api/repos/{userID}/{slug}/custom-skills.
type updateCustomSkillsRequest struct {
	Skills []string `json:"skills"`
}

// updateCustomSkillsHandler replaces a repo's custom skill list, enforcing
// the same count and length caps the Reviewer's prompt assembly depends on.
func (s *Server) updateCustomSkillsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, slug := vars["userID"], vars["slug"]

	var req updateCustomSkillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := skills.ValidateCustomSkills(req.Skills); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo, err := s.store.GetConnectedRepo(userID, slug)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	encoded, err := json.Marshal(req.Skills)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode custom skills")
		return
	}
	repo.CustomSkills = string(encoded)

	if err := s.store.UpsertConnectedRepo(repo); err != nil {
		log.Error().Err(err).Str("repo", slug).Msg("failed to update custom skills")
		writeError(w, http.StatusInternalServerError, "failed to update custom skills")
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

// interviewStepRequest is the body of POST
// /api/repos/{userID}/{slug}/interview.
type interviewStepRequest struct {
	Answers []models.InterviewAnswer `json:"answers"`
}

// interviewStepHandler drives one turn of the persona interview. A
// "complete" step persists the persona and transitions the repo to active;
// any other step is returned to the caller unchanged so the UI can render
// the next question.
func (s *Server) interviewStepHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, slug := vars["userID"], vars["slug"]

	var req interviewStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	repo, err := s.store.GetConnectedRepo(userID, slug)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	if repo.Status != string(models.StatusInterview) {
		writeError(w, http.StatusConflict, "repo is not awaiting interview")
		return
	}

	settings, err := s.store.GetUserSettings(userID)
	if err != nil || settings.APIKey == "" {
		writeError(w, http.StatusPreconditionFailed, "no llm provider configured for user")
		return
	}

	var profile string
	if repo.AnalysisData != "" {
		var record struct {
			Profile string `json:"profile"`
		}
		_ = json.Unmarshal([]byte(repo.AnalysisData), &record)
		profile = record.Profile
	}

	step, err := s.interview.Step(r.Context(), profile, req.Answers, settings.LLMProvider, settings.LLMModel, settings.APIKey)
	if err != nil {
		log.Error().Err(err).Str("repo", slug).Msg("interview step failed")
		writeError(w, http.StatusInternalServerError, "interview step failed")
		return
	}

	if step.Status == models.InterviewStatusComplete {
		repo.PersonaData = database.EncodeText(step.Persona)
		repo.Status = string(models.StatusActive)
		if err := s.store.UpsertConnectedRepo(repo); err != nil {
			log.Error().Err(err).Str("repo", slug).Msg("failed to persist persona")
			writeError(w, http.StatusInternalServerError, "failed to persist persona")
			return
		}
	}

	writeJSON(w, http.StatusOK, step)
}

func handleStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "database error")
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
