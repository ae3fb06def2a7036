package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/dedup"
	"github.com/techy/revo/pkg/models"
)

// projectPathPayload extracts just enough of a GitLab Merge Request Hook
// body to select which connected repo's secret to verify against, before
// the full event is parsed.
type projectPathPayload struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

// webhookHandler is WebhookIngress's single route: it authenticates
// the inbound payload, normalizes it into a WebhookEvent, and fans it out
// onto the review queue for every connected repo the event matches.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	switch {
	case r.Header.Get("X-GitHub-Event") != "":
		s.handleGitHubWebhook(w, r, rawBody)
	case r.Header.Get("X-Gitlab-Event") != "":
		s.handleGitLabWebhook(w, r, rawBody)
	default:
		writeError(w, http.StatusBadRequest, "missing X-GitHub-Event or X-Gitlab-Event header")
	}
}

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request, rawBody []byte) {
	if r.Header.Get("X-GitHub-Event") != "pull_request" {
		w.WriteHeader(http.StatusOK)
		return
	}

	adapter := s.adapters[models.ProviderGitHub]
	if !adapter.VerifyWebhook(rawBody, r.Header, s.config.GitHubWebhookSecret) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, ok := adapter.ParseEvent(rawBody)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	repos, err := s.store.ListConnectedReposByName(event.RepoName)
	if err != nil {
		log.Error().Err(err).Str("repo", event.RepoName).Msg("failed to look up connected repos")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	ok = true
	for _, repo := range repos {
		if repo.Provider != string(models.ProviderGitHub) {
			continue
		}
		if repo.Status == string(models.StatusPaused) {
			continue
		}
		if !s.enqueueForRepo(r, event, repo.UserID, repo.Slug) {
			ok = false
		}
	}
	if !ok {
		writeError(w, http.StatusInternalServerError, "failed to enqueue review")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGitLabWebhook(w http.ResponseWriter, r *http.Request, rawBody []byte) {
	if r.Header.Get("X-Gitlab-Event") != "Merge Request Hook" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var path projectPathPayload
	if err := json.Unmarshal(rawBody, &path); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	candidates, err := s.store.ListConnectedReposByName(path.Project.PathWithNamespace)
	if err != nil {
		log.Error().Err(err).Str("repo", path.Project.PathWithNamespace).Msg("failed to look up connected repos")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	adapter := s.adapters[models.ProviderGitLab]
	type ownedRepo struct{ userID, slug string }
	var authenticated []ownedRepo
	for _, repo := range candidates {
		if repo.Provider != string(models.ProviderGitLab) {
			continue
		}
		if repo.WebhookSecret == "" {
			continue
		}
		if !adapter.VerifyWebhook(rawBody, r.Header, repo.WebhookSecret) {
			continue
		}
		authenticated = append(authenticated, ownedRepo{userID: repo.UserID, slug: repo.Slug})
	}
	if len(authenticated) == 0 {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	statusByOwner := make(map[ownedRepo]string, len(candidates))
	for _, repo := range candidates {
		statusByOwner[ownedRepo{userID: repo.UserID, slug: repo.Slug}] = repo.Status
	}
	var matched []ownedRepo
	for _, repo := range authenticated {
		if statusByOwner[repo] == string(models.StatusPaused) {
			continue
		}
		matched = append(matched, repo)
	}

	event, ok := adapter.ParseEvent(rawBody)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	allOK := true
	for _, repo := range matched {
		if !s.enqueueForRepo(r, event, repo.userID, repo.slug) {
			allOK = false
		}
	}
	if !allOK {
		writeError(w, http.StatusInternalServerError, "failed to enqueue review")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// enqueueForRepo stamps the event with the owning (user, slug), guards
// against redelivery of the same action within the dedup TTL, and pushes
// it onto the webhook_events queue. It reports false only when the enqueue
// itself failed; a deduplicated skip is not a failure.
func (s *Server) enqueueForRepo(r *http.Request, event models.WebhookEvent, userID, slug string) bool {
	event.UserID = userID
	event.RepoSlug = slug
	event.ReceivedAt = time.Now()

	dedupKey := dedup.RequestKey(userID, slug, event.PRNumber, event.RawAction)
	if s.deduplicator != nil {
		if isDup, _ := s.deduplicator.CheckAndMark(dedupKey); isDup {
			log.Info().Str("key", dedupKey).Msg("duplicate webhook event, skipping enqueue")
			return true
		}
		defer s.deduplicator.Complete(dedupKey, nil)
	}

	if err := s.enqueuer.EnqueueReview(r.Context(), event); err != nil {
		log.Error().Err(err).Str("repo", slug).Int("pr", event.PRNumber).Msg("failed to enqueue review task")
		return false
	}
	return true
}
