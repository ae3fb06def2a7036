// Package oauth implements the TokenStore: per-(user, provider) access and
// refresh token storage with a lightweight validity probe and
// refresh-on-demand, generalized from this codebase's original
// single-provider Claude OAuth manager into a store keyed across both forges.
package oauth

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/pkg/models"
)

// ProviderClient is implemented once per forge: a cheap validity probe and
// a refresh-token exchange.
type ProviderClient interface {
	Whoami(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// TokenStore provides a valid provider access token for (user, provider),
// refreshing via the provider's OAuth token endpoint when the current token
// fails its probe. There is no in-process lock: concurrent refreshes may
// race, the last writer wins, and a refresh token that is single-use on the
// provider side may be burned by the loser — an accepted limitation.
type TokenStore struct {
	store  *database.Store
	github ProviderClient
	gitlab ProviderClient
}

// NewTokenStore wires the GitHub and GitLab provider clients against the
// shared Store.
func NewTokenStore(store *database.Store, github, gitlab ProviderClient) *TokenStore {
	return &TokenStore{store: store, github: github, gitlab: gitlab}
}

func (t *TokenStore) clientFor(provider models.Provider) ProviderClient {
	switch provider {
	case models.ProviderGitHub:
		return t.github
	case models.ProviderGitLab:
		return t.gitlab
	default:
		return nil
	}
}

// SaveInitial upserts the initial access/refresh pair for a newly connected
// provider. refresh may be empty.
func (t *TokenStore) SaveInitial(ctx context.Context, userID string, provider models.Provider, access, refresh string) error {
	return t.store.SaveProviderTokens(userID, provider, access, refresh)
}

// GetValid returns a usable access token for (userID, provider), refreshing
// it first if the stored token fails its probe. wasRefreshed reports
// whether a refresh occurred during this call, so callers can distinguish a
// cache-hit from a fresh exchange without inspecting internal state.
func (t *TokenStore) GetValid(ctx context.Context, userID string, provider models.Provider) (token string, wasRefreshed bool, err error) {
	client := t.clientFor(provider)
	if client == nil {
		return "", false, errUnsupportedProvider(provider)
	}

	settings, err := t.store.GetUserSettings(userID)
	if err != nil {
		return "", false, err
	}

	access, refresh := tokenPair(settings, provider)
	if access != "" {
		if probeErr := client.Whoami(ctx, access); probeErr == nil {
			return access, false, nil
		}
		log.Debug().Str("user_id", userID).Str("provider", string(provider)).Msg("stored access token failed probe, attempting refresh")
	}

	if refresh == "" {
		return "", false, nil
	}

	newAccess, newRefresh, refreshErr := client.Refresh(ctx, refresh)
	if refreshErr != nil || newAccess == "" {
		log.Warn().Err(refreshErr).Str("user_id", userID).Str("provider", string(provider)).Msg("token refresh failed")
		return "", false, nil
	}

	// Reuse the old refresh token if the provider didn't issue a new one.
	if newRefresh == "" {
		newRefresh = refresh
	}
	if err := t.store.SaveProviderTokens(userID, provider, newAccess, newRefresh); err != nil {
		return "", false, err
	}

	return newAccess, true, nil
}

func tokenPair(settings *database.UserSettings, provider models.Provider) (access, refresh string) {
	switch provider {
	case models.ProviderGitHub:
		return settings.GitHubToken, settings.GitHubRefreshToken
	case models.ProviderGitLab:
		return settings.GitLabToken, settings.GitLabRefreshToken
	default:
		return "", ""
	}
}

type unsupportedProviderError struct {
	provider models.Provider
}

func (e *unsupportedProviderError) Error() string {
	return "unsupported provider: " + string(e.provider)
}

func errUnsupportedProvider(p models.Provider) error {
	return &unsupportedProviderError{provider: p}
}
