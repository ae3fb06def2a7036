package gitlab

import (
	"net/http"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestVerifyWebhookAcceptsMatchingToken(t *testing.T) {
	c := NewClient("")
	headers := http.Header{}
	headers.Set("X-Gitlab-Token", "s3cret")

	if !c.VerifyWebhook(nil, headers, "s3cret") {
		t.Fatal("expected a matching token to verify")
	}
}

func TestVerifyWebhookRejectsMismatchedToken(t *testing.T) {
	c := NewClient("")
	headers := http.Header{}
	headers.Set("X-Gitlab-Token", "wrong")

	if c.VerifyWebhook(nil, headers, "s3cret") {
		t.Fatal("expected a mismatched token to be rejected")
	}
}

func TestVerifyWebhookRejectsMissingHeader(t *testing.T) {
	c := NewClient("")
	if c.VerifyWebhook(nil, http.Header{}, "s3cret") {
		t.Fatal("expected a missing token header to be rejected")
	}
}

func TestVerifyWebhookRejectsEmptySecret(t *testing.T) {
	c := NewClient("")
	headers := http.Header{}
	headers.Set("X-Gitlab-Token", "")
	if c.VerifyWebhook(nil, headers, "") {
		t.Fatal("expected an empty secret to never verify")
	}
}

func TestParseEventExtractsOpenMergeRequest(t *testing.T) {
	c := NewClient("")
	body := []byte(`{
		"object_kind": "merge_request",
		"project": {"path_with_namespace": "group/project"},
		"object_attributes": {
			"iid": 3,
			"title": "add feature",
			"url": "https://gitlab.com/group/project/-/merge_requests/3",
			"action": "open",
			"target_branch": "main",
			"source_branch": "feature"
		},
		"user": {"username": "alice"}
	}`)

	event, ok := c.ParseEvent(body)
	if !ok {
		t.Fatal("expected ParseEvent to succeed")
	}
	if event.Provider != models.ProviderGitLab {
		t.Fatalf("got provider %q", event.Provider)
	}
	if event.EventType != models.EventPROpened {
		t.Fatalf("got event type %q", event.EventType)
	}
	if event.RepoName != "group/project" || event.PRNumber != 3 {
		t.Fatalf("got repo=%q pr=%d", event.RepoName, event.PRNumber)
	}
}

func TestParseEventRejectsNonMergeRequestKind(t *testing.T) {
	c := NewClient("")
	body := []byte(`{"object_kind":"note","project":{"path_with_namespace":"group/project"}}`)
	if _, ok := c.ParseEvent(body); ok {
		t.Fatal("expected a non merge_request object_kind to be rejected")
	}
}

func TestParseEventRejectsUnrecognizedAction(t *testing.T) {
	c := NewClient("")
	body := []byte(`{"object_kind":"merge_request","object_attributes":{"action":"approved"}}`)
	if _, ok := c.ParseEvent(body); ok {
		t.Fatal("expected an unrecognized action to be rejected")
	}
}

func TestParseEventRejectsMalformedJSON(t *testing.T) {
	c := NewClient("")
	if _, ok := c.ParseEvent([]byte("not json")); ok {
		t.Fatal("expected malformed JSON to be rejected")
	}
}

func TestAuthHeaderUsesPrivateTokenForGlpatPrefix(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://gitlab.com/api/v4/projects", nil)
	authHeader(req, "glpat-abc123")
	if req.Header.Get("PRIVATE-TOKEN") != "glpat-abc123" {
		t.Fatalf("expected PRIVATE-TOKEN header, got %q", req.Header.Get("PRIVATE-TOKEN"))
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatal("expected no Authorization header for a bot PAT")
	}
}

func TestAuthHeaderUsesBearerForOAuthToken(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://gitlab.com/api/v4/projects", nil)
	authHeader(req, "oauth-token-xyz")
	if req.Header.Get("Authorization") != "Bearer oauth-token-xyz" {
		t.Fatalf("got %q", req.Header.Get("Authorization"))
	}
}
