package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookAcceptsValidSignature(t *testing.T) {
	c := NewClient(0, nil)
	body := []byte(`{"action":"opened"}`)
	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sign("s3cret", body))

	if !c.VerifyWebhook(body, headers, "s3cret") {
		t.Fatal("expected a valid signature to verify")
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	c := NewClient(0, nil)
	body := []byte(`{"action":"opened"}`)
	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sign("wrong-secret", body))

	if c.VerifyWebhook(body, headers, "s3cret") {
		t.Fatal("expected an invalid signature to be rejected")
	}
}

func TestVerifyWebhookRejectsMissingPrefix(t *testing.T) {
	c := NewClient(0, nil)
	body := []byte(`{"action":"opened"}`)
	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", "deadbeef")

	if c.VerifyWebhook(body, headers, "s3cret") {
		t.Fatal("expected a signature without the sha256= prefix to be rejected")
	}
}

func TestParseEventExtractsOpenedPullRequest(t *testing.T) {
	c := NewClient(0, nil)
	body := []byte(`{
		"action": "opened",
		"repository": {"full_name": "octocat/hello-world"},
		"pull_request": {
			"number": 7,
			"title": "add feature",
			"html_url": "https://github.com/octocat/hello-world/pull/7",
			"user": {"login": "octocat"},
			"head": {"ref": "feature-branch"},
			"base": {"ref": "main"}
		}
	}`)

	event, ok := c.ParseEvent(body)
	if !ok {
		t.Fatal("expected ParseEvent to succeed")
	}
	if event.Provider != models.ProviderGitHub {
		t.Fatalf("got provider %q", event.Provider)
	}
	if event.EventType != models.EventPROpened {
		t.Fatalf("got event type %q", event.EventType)
	}
	if event.RepoName != "octocat/hello-world" || event.PRNumber != 7 {
		t.Fatalf("got repo=%q pr=%d", event.RepoName, event.PRNumber)
	}
	if event.BaseBranch != "main" || event.HeadBranch != "feature-branch" {
		t.Fatalf("got base=%q head=%q", event.BaseBranch, event.HeadBranch)
	}
}

func TestParseEventRejectsUnrecognizedAction(t *testing.T) {
	c := NewClient(0, nil)
	body := []byte(`{"action":"labeled","repository":{"full_name":"a/b"},"pull_request":{"number":1}}`)

	if _, ok := c.ParseEvent(body); ok {
		t.Fatal("expected an unrecognized action to be rejected")
	}
}

func TestParseEventRejectsMalformedJSON(t *testing.T) {
	c := NewClient(0, nil)
	if _, ok := c.ParseEvent([]byte("not json")); ok {
		t.Fatal("expected malformed JSON to be rejected")
	}
}
