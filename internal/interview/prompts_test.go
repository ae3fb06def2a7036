package interview

import (
	"strings"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestBuildUserMessageWithNoAnswersNotesFirstQuestion(t *testing.T) {
	got := buildUserMessage("some profile text", nil)
	if !strings.Contains(got, "some profile text") {
		t.Fatalf("expected the profile to be included, got %q", got)
	}
	if !strings.Contains(got, "(none; this is the first question)") {
		t.Fatalf("expected the first-question marker, got %q", got)
	}
}

func TestBuildUserMessageWithEmptyProfileUsesPlaceholder(t *testing.T) {
	got := buildUserMessage("", nil)
	if !strings.Contains(got, "(none)") {
		t.Fatalf("expected the empty-profile placeholder, got %q", got)
	}
}

func TestBuildUserMessageRendersPriorAnswers(t *testing.T) {
	answers := []models.InterviewAnswer{
		{
			Question: models.InterviewQuestion{Type: models.QuestionShortText, Prompt: "What layering do you use?"},
			Answer:   "hexagonal",
		},
	}
	got := buildUserMessage("profile", answers)
	if !strings.Contains(got, "Q1:") {
		t.Fatalf("expected a numbered question marker, got %q", got)
	}
	if !strings.Contains(got, "What layering do you use?") {
		t.Fatalf("expected the question prompt to be embedded as JSON, got %q", got)
	}
	if !strings.Contains(got, "A: hexagonal") {
		t.Fatalf("expected the answer line, got %q", got)
	}
}
