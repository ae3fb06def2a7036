package oauth

import (
	"context"
	"testing"

	"github.com/techy/revo/internal/database"
	"github.com/techy/revo/pkg/models"
)

func TestGetValidRejectsUnsupportedProviderWithoutTouchingStore(t *testing.T) {
	store := NewTokenStore(nil, nil, nil)
	_, refreshed, err := store.GetValid(context.Background(), "user1", models.Provider("bitbucket"))
	if err == nil {
		t.Fatal("expected an error for an unsupported provider")
	}
	if refreshed {
		t.Fatal("expected wasRefreshed=false on error")
	}
}

func TestTokenPairSelectsFieldsByProvider(t *testing.T) {
	settings := &database.UserSettings{
		GitHubToken:        "gh-access",
		GitHubRefreshToken: "gh-refresh",
		GitLabToken:        "gl-access",
		GitLabRefreshToken: "gl-refresh",
	}

	access, refresh := tokenPair(settings, models.ProviderGitHub)
	if access != "gh-access" || refresh != "gh-refresh" {
		t.Fatalf("got access=%q refresh=%q", access, refresh)
	}

	access, refresh = tokenPair(settings, models.ProviderGitLab)
	if access != "gl-access" || refresh != "gl-refresh" {
		t.Fatalf("got access=%q refresh=%q", access, refresh)
	}

	access, refresh = tokenPair(settings, models.Provider("bitbucket"))
	if access != "" || refresh != "" {
		t.Fatalf("expected empty pair for unknown provider, got access=%q refresh=%q", access, refresh)
	}
}

type fakeProviderClient struct {
	whoamiErr      error
	refreshAccess  string
	refreshRefresh string
	refreshErr     error
	whoamiCalls    int
	refreshCalls   int
}

func (f *fakeProviderClient) Whoami(ctx context.Context, accessToken string) error {
	f.whoamiCalls++
	return f.whoamiErr
}

func (f *fakeProviderClient) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	f.refreshCalls++
	return f.refreshAccess, f.refreshRefresh, f.refreshErr
}

func TestClientForReturnsNilForUnknownProvider(t *testing.T) {
	store := NewTokenStore(nil, &fakeProviderClient{}, &fakeProviderClient{})
	if got := store.clientFor(models.Provider("bitbucket")); got != nil {
		t.Fatal("expected nil client for unknown provider")
	}
	if store.clientFor(models.ProviderGitHub) == nil {
		t.Fatal("expected a non-nil github client")
	}
	if store.clientFor(models.ProviderGitLab) == nil {
		t.Fatal("expected a non-nil gitlab client")
	}
}
