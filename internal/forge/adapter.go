// Package forge defines the uniform surface techy drives both hosted
// forges (GitHub, GitLab) through, plus the diff/comment formatting shared
// by both concrete adapters.
package forge

import (
	"context"
	"net/http"

	"github.com/techy/revo/pkg/models"
)

// Adapter is implemented once per forge. It covers everything the
// Scheduler's job pipeline needs: verifying and parsing inbound webhooks,
// fetching a PR/MR's diff, and posting review comments back. GitLab's
// per-repo webhook management and bot-invite have no GitHub equivalent and
// live on *gitlab.Client directly rather than on this interface.
type Adapter interface {
	// VerifyWebhook authenticates an inbound webhook payload against the
	// configured secret using a constant-time comparison.
	VerifyWebhook(rawBody []byte, headers http.Header, secret string) bool

	// ParseEvent extracts a normalized WebhookEvent from a raw payload.
	// The second return is false when the action/event type isn't one of
	// the four lifecycle events techy reviews.
	ParseEvent(rawBody []byte) (models.WebhookEvent, bool)

	// FetchDiff retrieves PR/MR metadata and per-file changes using the
	// caller-supplied token (a user's own forge token, never a bot
	// identity — reads are always performed as the connecting user).
	FetchDiff(ctx context.Context, repoName string, prNumber int, token string) (models.PRMetadata, []models.FileChange, error)

	// PostReview posts comments against a PR/MR, pinned to refs/headSHA
	// when known. It returns the number of comments the forge accepted;
	// GitHub's atomic review falls back to per-comment posts on a 422.
	PostReview(ctx context.Context, repoName string, prNumber int, token string, comments []models.ReviewComment, refs models.DiffRefs, headSHA string) (postedCount int, err error)
}
