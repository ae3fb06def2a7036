// Package github implements forge.Adapter against the GitHub REST API.
package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v60/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/techy/revo/internal/forge"
	"github.com/techy/revo/pkg/models"
)

// Client implements forge.Adapter for GitHub. Reads always use the
// caller-supplied user token; an optional App identity (appID/privateKey)
// is used only to mint installation tokens for posting as the bot.
type Client struct {
	appID           int64
	privateKey      []byte
	installationIDs sync.Map // full name -> installation ID cache
}

var _ forge.Adapter = (*Client)(nil)

// NewClient creates a GitHub adapter. privateKey may be nil when no bot
// identity is configured; PostReview then falls back to the user's token.
func NewClient(appID int64, privateKey []byte) *Client {
	return &Client{appID: appID, privateKey: privateKey}
}

func userClient(token string) *github.Client {
	return github.NewClient(&http.Client{Transport: &tokenTransport{token: token}})
}

// VerifyWebhook checks the X-Hub-Signature-256 HMAC-SHA256 header.
func (c *Client) VerifyWebhook(rawBody []byte, headers http.Header, secret string) bool {
	sig := headers.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	sig = strings.TrimPrefix(sig, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(sig), []byte(expected))
}

type prWebhookPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
}

var githubActionToEvent = map[string]models.EventType{
	"opened":      models.EventPROpened,
	"synchronize": models.EventPRUpdated,
	"reopened":    models.EventPRReopened,
	"closed":      models.EventPRClosed,
}

// ParseEvent extracts a normalized WebhookEvent from a pull_request payload.
// Callers must have already confirmed the X-GitHub-Event header is
// "pull_request" before calling this.
func (c *Client) ParseEvent(rawBody []byte) (models.WebhookEvent, bool) {
	var p prWebhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return models.WebhookEvent{}, false
	}

	eventType, ok := githubActionToEvent[p.Action]
	if !ok {
		return models.WebhookEvent{}, false
	}

	return models.WebhookEvent{
		Provider:   models.ProviderGitHub,
		EventType:  eventType,
		RepoName:   p.Repository.FullName,
		PRNumber:   p.PullRequest.Number,
		PRTitle:    p.PullRequest.Title,
		PRURL:      p.PullRequest.HTMLURL,
		PRAuthor:   p.PullRequest.User.Login,
		BaseBranch: p.PullRequest.Base.Ref,
		HeadBranch: p.PullRequest.Head.Ref,
		RawAction:  p.Action,
	}, true
}

// FetchDiff fetches PR metadata and files concurrently with the user's token.
func (c *Client) FetchDiff(ctx context.Context, repoName string, prNumber int, token string) (models.PRMetadata, []models.FileChange, error) {
	owner, repo, err := splitFullName(repoName)
	if err != nil {
		return models.PRMetadata{}, nil, err
	}

	client := userClient(token)

	var pr *github.PullRequest
	var files []*github.CommitFile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pr, _, err = client.PullRequests.Get(gctx, owner, repo, prNumber)
		return err
	})
	g.Go(func() error {
		opt := &github.ListOptions{PerPage: 100}
		for {
			page, resp, err := client.PullRequests.ListFiles(gctx, owner, repo, prNumber, opt)
			if err != nil {
				return err
			}
			files = append(files, page...)
			if resp.NextPage == 0 {
				return nil
			}
			opt.Page = resp.NextPage
		}
	})
	if err := g.Wait(); err != nil {
		return models.PRMetadata{}, nil, fmt.Errorf("fetch diff for %s#%d: %w", repoName, prNumber, err)
	}

	metadata := models.PRMetadata{
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		Author:     pr.GetUser().GetLogin(),
		Draft:      pr.GetDraft(),
	}

	changes := make([]models.FileChange, 0, len(files))
	for _, f := range files {
		changes = append(changes, models.FileChange{
			OldPath:   f.GetPreviousFilename(),
			NewPath:   f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}

	return metadata, changes, nil
}

// PostReview attempts one atomic review, falling back to per-comment posts
// on a 422 (a line not present in the diff makes the whole review fail).
func (c *Client) PostReview(ctx context.Context, repoName string, prNumber int, token string, comments []models.ReviewComment, refs models.DiffRefs, headSHA string) (int, error) {
	owner, repo, err := splitFullName(repoName)
	if err != nil {
		return 0, err
	}

	postToken := token
	if c.privateKey != nil {
		if t, err := c.installationToken(ctx, owner, repo); err == nil {
			postToken = t
		} else {
			log.Warn().Err(err).Str("repo", repoName).Msg("falling back to user token for posting review")
		}
	}

	client := userClient(postToken)

	draft := make([]*github.DraftReviewComment, 0, len(comments))
	for _, cm := range comments {
		body := forge.FormatComment(cm)
		d := &github.DraftReviewComment{
			Path: github.String(cm.File),
			Line: github.Int(cm.Line),
			Side: github.String("RIGHT"),
			Body: github.String(body),
		}
		if cm.EndLine != 0 && cm.EndLine != cm.Line {
			d.StartLine = github.Int(cm.Line)
			d.StartSide = github.String("RIGHT")
			d.Line = github.Int(cm.EndLine)
		}
		draft = append(draft, d)
	}

	review := &github.PullRequestReviewRequest{
		Event:    github.String("COMMENT"),
		Comments: draft,
	}
	if headSHA != "" {
		review.CommitID = github.String(headSHA)
	}

	_, resp, err := client.PullRequests.CreateReview(ctx, owner, repo, prNumber, review)
	if err == nil {
		return len(draft), nil
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return 0, fmt.Errorf("post review for %s#%d: %w", repoName, prNumber, err)
	}

	log.Warn().Str("repo", repoName).Int("pr", prNumber).Msg("atomic review rejected, falling back to per-comment posts")

	posted := 0
	for _, cm := range comments {
		single := &github.PullRequestComment{
			Body: github.String(forge.FormatComment(cm)),
			Path: github.String(cm.File),
			Line: github.Int(cm.Line),
			Side: github.String("RIGHT"),
		}
		if headSHA != "" {
			single.CommitID = github.String(headSHA)
		}
		if _, _, err := client.PullRequests.CreateComment(ctx, owner, repo, prNumber, single); err != nil {
			log.Warn().Err(err).Str("repo", repoName).Str("file", cm.File).Msg("dropping comment that could not be posted")
			continue
		}
		posted++
	}

	return posted, nil
}

func splitFullName(repoName string) (owner, repo string, err error) {
	parts := strings.SplitN(repoName, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid repo full name %q", repoName)
	}
	return parts[0], parts[1], nil
}

// --- App installation tokens, used only when posting as the bot identity ---

func (c *Client) createJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", c.appID),
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("parse app private key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// GetInstallationClient returns a github.Client authenticated as the App
// installation for owner/repo, caching the installation id.
func (c *Client) GetInstallationClient(ctx context.Context, owner, repo string) (*github.Client, error) {
	token, err := c.installationToken(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return userClient(token), nil
}

func (c *Client) installationToken(ctx context.Context, owner, repo string) (string, error) {
	fullName := owner + "/" + repo

	var installationID int64
	if cached, ok := c.installationIDs.Load(fullName); ok {
		installationID = cached.(int64)
	} else {
		jwtToken, err := c.createJWT()
		if err != nil {
			return "", err
		}
		appClient := github.NewClient(&http.Client{Transport: &jwtTransport{token: jwtToken}})

		installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("find installation for %s: %w", fullName, err)
		}
		installationID = installation.GetID()
		c.installationIDs.Store(fullName, installationID)
	}

	jwtToken, err := c.createJWT()
	if err != nil {
		return "", err
	}
	appClient := github.NewClient(&http.Client{Transport: &jwtTransport{token: jwtToken}})

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}
	return token.GetToken(), nil
}

type jwtTransport struct{ token string }

func (t *jwtTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return http.DefaultTransport.RoundTrip(req)
}

type tokenTransport struct{ token string }

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return http.DefaultTransport.RoundTrip(req)
}
