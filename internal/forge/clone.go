package forge

import (
	"fmt"

	"github.com/techy/revo/pkg/models"
)

// CloneURL builds an HTTPS clone URL embedding the caller's token as basic
// auth, using the username convention each forge expects for token auth:
// GitHub wants "x-access-token", GitLab wants "oauth2".
func CloneURL(provider models.Provider, token, repoName string) string {
	switch provider {
	case models.ProviderGitHub:
		return fmt.Sprintf("https://x-access-token:%s@github.com/%s.git", token, repoName)
	case models.ProviderGitLab:
		return fmt.Sprintf("https://oauth2:%s@gitlab.com/%s.git", token, repoName)
	default:
		return ""
	}
}
