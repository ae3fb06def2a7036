package oauth

import (
	"context"
	"fmt"
	"net/http"
)

const (
	gitlabWhoamiURL = "https://gitlab.com/api/v4/user"
	gitlabTokenEndpoint = "https://gitlab.com/oauth/token"
)

// GitLabProviderClient implements ProviderClient against the GitLab v4 REST
// API and OAuth token endpoint. No GitLab SDK exists anywhere in the
// retrieval pack, so this is a small hand-rolled net/http client (see
// DESIGN.md's stdlib-only justifications).
type GitLabProviderClient struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewGitLabProviderClient builds the GitLab ProviderClient from the
// configured OAuth app credentials.
func NewGitLabProviderClient(clientID, clientSecret string) *GitLabProviderClient {
	return &GitLabProviderClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{},
	}
}

// Whoami probes GET /api/v4/user with the given token.
func (c *GitLabProviderClient) Whoami(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gitlabWhoamiURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gitlab whoami failed with status %d", resp.StatusCode)
	}
	return nil
}

// Refresh exchanges a GitLab refresh token for a new access token.
func (c *GitLabProviderClient) Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	return postRefresh(ctx, gitlabTokenEndpoint, c.clientID, c.clientSecret, refreshToken)
}
