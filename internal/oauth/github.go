package oauth

import (
	"context"

	"github.com/google/go-github/v60/github"
)

const githubTokenEndpoint = "https://github.com/login/oauth/access_token"

// GitHubProviderClient implements ProviderClient against GitHub's REST API
// and OAuth token endpoint.
type GitHubProviderClient struct {
	clientID     string
	clientSecret string
}

// NewGitHubProviderClient builds the GitHub ProviderClient from the
// configured OAuth app credentials.
func NewGitHubProviderClient(clientID, clientSecret string) *GitHubProviderClient {
	return &GitHubProviderClient{clientID: clientID, clientSecret: clientSecret}
}

// Whoami probes GET /user with the given token; go-github returning without
// error is treated as valid.
func (c *GitHubProviderClient) Whoami(ctx context.Context, accessToken string) error {
	client := github.NewClient(nil).WithAuthToken(accessToken)
	_, _, err := client.Users.Get(ctx, "")
	return err
}

// Refresh exchanges a GitHub refresh token for a new access token. GitHub's
// OAuth apps only issue refresh tokens when token expiration is enabled on
// the app; for apps without it, refresh tokens don't expire and this path
// is rarely exercised, but the contract is identical.
func (c *GitHubProviderClient) Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	return postRefresh(ctx, githubTokenEndpoint, c.clientID, c.clientSecret, refreshToken)
}
