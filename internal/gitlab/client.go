// Package gitlab implements forge.Adapter against the GitLab v4 REST API.
// No GitLab SDK exists anywhere in the example pack, so this package talks
// REST directly over net/http, following go-github's own
// request-construction conventions.
package gitlab

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/pkg/models"
)

const apiBase = "https://gitlab.com/api/v4"

// Client implements forge.Adapter for GitLab. botToken, when set, is used
// to post as the bot identity instead of the connecting user's token.
type Client struct {
	httpClient *http.Client
	botToken   string
}

var _ forge.Adapter = (*Client)(nil)

// NewClient builds a GitLab adapter. botToken may be empty.
func NewClient(botToken string) *Client {
	return &Client{httpClient: http.DefaultClient, botToken: botToken}
}

func encodeProjectPath(repoName string) string {
	return url.PathEscape(repoName)
}

func authHeader(req *http.Request, token string) {
	if strings.HasPrefix(token, "glpat-") {
		req.Header.Set("PRIVATE-TOKEN", token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiBase+path, body)
	if err != nil {
		return nil, err
	}
	authHeader(req, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// VerifyWebhook compares X-Gitlab-Token against secret, constant-time.
func (c *Client) VerifyWebhook(rawBody []byte, headers http.Header, secret string) bool {
	token := headers.Get("X-Gitlab-Token")
	if token == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(secret))
}

type mrWebhookPayload struct {
	ObjectKind string `json:"object_kind"`
	Project    struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Title        string `json:"title"`
		URL          string `json:"url"`
		Action       string `json:"action"`
		TargetBranch string `json:"target_branch"`
		SourceBranch string `json:"source_branch"`
	} `json:"object_attributes"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
}

var gitlabActionToEvent = map[string]models.EventType{
	"open":   models.EventPROpened,
	"update": models.EventPRUpdated,
	"reopen": models.EventPRReopened,
	"close":  models.EventPRClosed,
	"merge":  models.EventPRClosed,
}

// ParseEvent extracts a normalized WebhookEvent from a Merge Request Hook
// payload. Callers must have already confirmed the event type header.
func (c *Client) ParseEvent(rawBody []byte) (models.WebhookEvent, bool) {
	var p mrWebhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return models.WebhookEvent{}, false
	}
	if p.ObjectKind != "merge_request" {
		return models.WebhookEvent{}, false
	}

	eventType, ok := gitlabActionToEvent[p.ObjectAttributes.Action]
	if !ok {
		return models.WebhookEvent{}, false
	}

	return models.WebhookEvent{
		Provider:   models.ProviderGitLab,
		EventType:  eventType,
		RepoName:   p.Project.PathWithNamespace,
		PRNumber:   p.ObjectAttributes.IID,
		PRTitle:    p.ObjectAttributes.Title,
		PRURL:      p.ObjectAttributes.URL,
		PRAuthor:   p.User.Username,
		BaseBranch: p.ObjectAttributes.TargetBranch,
		HeadBranch: p.ObjectAttributes.SourceBranch,
		RawAction:  p.ObjectAttributes.Action,
	}, true
}

type mrChangesResponse struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	TargetBranch string `json:"target_branch"`
	SourceBranch string `json:"source_branch"`
	Draft        bool   `json:"draft"`
	WorkInProgress bool `json:"work_in_progress"`
	Author       struct {
		Username string `json:"username"`
	} `json:"author"`
	DiffRefs struct {
		BaseSHA  string `json:"base_sha"`
		HeadSHA  string `json:"head_sha"`
		StartSHA string `json:"start_sha"`
	} `json:"diff_refs"`
	Changes []struct {
		OldPath     string `json:"old_path"`
		NewPath     string `json:"new_path"`
		Diff        string `json:"diff"`
		NewFile     bool   `json:"new_file"`
		RenamedFile bool   `json:"renamed_file"`
		DeletedFile bool   `json:"deleted_file"`
	} `json:"changes"`
}

// FetchDiff retrieves merge request changes with the user's token.
func (c *Client) FetchDiff(ctx context.Context, repoName string, prNumber int, token string) (models.PRMetadata, []models.FileChange, error) {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/changes", encodeProjectPath(repoName), prNumber)

	resp, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return models.PRMetadata{}, nil, fmt.Errorf("fetch MR changes for %s!%d: %w", repoName, prNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.PRMetadata{}, nil, fmt.Errorf("fetch MR changes for %s!%d: status %d", repoName, prNumber, resp.StatusCode)
	}

	var mr mrChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return models.PRMetadata{}, nil, fmt.Errorf("decode MR changes: %w", err)
	}

	metadata := models.PRMetadata{
		Title:      mr.Title,
		Body:       mr.Description,
		BaseBranch: mr.TargetBranch,
		HeadBranch: mr.SourceBranch,
		HeadSHA:    mr.DiffRefs.HeadSHA,
		Author:     mr.Author.Username,
		Draft:      mr.Draft || mr.WorkInProgress,
		Refs: models.DiffRefs{
			BaseSHA:  mr.DiffRefs.BaseSHA,
			StartSHA: mr.DiffRefs.StartSHA,
			HeadSHA:  mr.DiffRefs.HeadSHA,
		},
	}

	changes := make([]models.FileChange, 0, len(mr.Changes))
	for _, ch := range mr.Changes {
		status := "modified"
		switch {
		case ch.NewFile:
			status = "added"
		case ch.DeletedFile:
			status = "removed"
		case ch.RenamedFile:
			status = "renamed"
		}
		changes = append(changes, models.FileChange{
			OldPath: ch.OldPath,
			NewPath: ch.NewPath,
			Status:  status,
			Patch:   ch.Diff,
		})
	}

	return metadata, changes, nil
}

type discussionBody struct {
	Body     string `json:"body"`
	Position struct {
		PositionType string `json:"position_type"`
		BaseSHA      string `json:"base_sha"`
		StartSHA     string `json:"start_sha"`
		HeadSHA      string `json:"head_sha"`
		OldPath      string `json:"old_path"`
		NewPath      string `json:"new_path"`
		NewLine      int    `json:"new_line"`
	} `json:"position"`
}

// PostReview posts each comment as its own discussion; a single comment's
// failure is logged and skipped rather than aborting the whole batch.
func (c *Client) PostReview(ctx context.Context, repoName string, prNumber int, token string, comments []models.ReviewComment, refs models.DiffRefs, headSHA string) (int, error) {
	postToken := token
	if c.botToken != "" {
		postToken = c.botToken
	}

	path := fmt.Sprintf("/projects/%s/merge_requests/%d/discussions", encodeProjectPath(repoName), prNumber)

	posted := 0
	for _, cm := range comments {
		var b discussionBody
		b.Body = forge.FormatComment(cm)
		b.Position.PositionType = "text"
		b.Position.BaseSHA = refs.BaseSHA
		b.Position.StartSHA = refs.StartSHA
		b.Position.HeadSHA = refs.HeadSHA
		b.Position.OldPath = cm.File
		b.Position.NewPath = cm.File
		b.Position.NewLine = cm.Line

		payload, err := json.Marshal(b)
		if err != nil {
			return posted, fmt.Errorf("marshal discussion body: %w", err)
		}

		resp, err := c.do(ctx, http.MethodPost, path, postToken, bytes.NewReader(payload))
		if err != nil {
			log.Warn().Err(err).Str("repo", repoName).Str("file", cm.File).Msg("dropping comment that could not be posted")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			log.Warn().Int("status", resp.StatusCode).Str("repo", repoName).Str("file", cm.File).Msg("dropping comment rejected by gitlab")
			continue
		}
		posted++
	}

	return posted, nil
}
