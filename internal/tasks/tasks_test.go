package tasks

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/techy/revo/pkg/models"
)

func TestAnalysisTaskRoundTrip(t *testing.T) {
	payload := models.RepoAnalysisPayload{
		UserID:   "u1",
		Slug:     "octo-hello",
		RepoName: "octocat/hello-world",
		Provider: models.ProviderGitHub,
	}

	task, err := NewAnalysisTask(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TypeAnalysis {
		t.Fatalf("got type %q", task.Type())
	}

	got, err := ParseAnalysisTask(task)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if got != payload {
		t.Fatalf("got %+v, want %+v", got, payload)
	}
}

func TestReviewTaskRoundTrip(t *testing.T) {
	event := models.WebhookEvent{
		Provider:   models.ProviderGitLab,
		EventType:  models.EventPROpened,
		RepoSlug:   "group-project",
		RepoName:   "group/project",
		PRNumber:   42,
		PRTitle:    "add feature",
		UserID:     "u2",
		ReceivedAt: time.Unix(1700000000, 0).UTC(),
	}

	task, err := NewReviewTask(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TypeReview {
		t.Fatalf("got type %q", task.Type())
	}

	got, err := ParseReviewTask(task)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !got.ReceivedAt.Equal(event.ReceivedAt) || got.RepoName != event.RepoName || got.PRNumber != event.PRNumber {
		t.Fatalf("got %+v, want %+v", got, event)
	}
}

func TestParseAnalysisTaskRejectsMalformedPayload(t *testing.T) {
	task := asynq.NewTask(TypeAnalysis, []byte("not json"))
	if _, err := ParseAnalysisTask(task); err == nil {
		t.Fatal("expected an error for malformed payload")
	}
}
