package reviewer

import (
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestAbs(t *testing.T) {
	if abs(-5) != 5 {
		t.Fatal("abs(-5) should be 5")
	}
	if abs(5) != 5 {
		t.Fatal("abs(5) should be 5")
	}
	if abs(0) != 0 {
		t.Fatal("abs(0) should be 0")
	}
}

func TestMessagePrefixLowercasesAndCaps(t *testing.T) {
	got := messagePrefix("MISSING Error Check")
	if got != "missing error check" {
		t.Fatalf("got %q", got)
	}

	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	got = messagePrefix(long)
	if len(got) != dedupMessageChars {
		t.Fatalf("expected length %d, got %d", dedupMessageChars, len(got))
	}
}

func TestIsDuplicateMatchesSameFileNearbyLineSamePrefix(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 10, Message: "missing error check"},
	}
	c := models.ReviewComment{File: "main.go", Line: 12, Message: "Missing Error Check"}
	if !isDuplicate(c, prior) {
		t.Fatal("expected a duplicate within the line window with matching prefix")
	}
}

func TestIsDuplicateRejectsDifferentFile(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 10, Message: "missing error check"},
	}
	c := models.ReviewComment{File: "other.go", Line: 10, Message: "missing error check"}
	if isDuplicate(c, prior) {
		t.Fatal("expected no duplicate across different files")
	}
}

func TestIsDuplicateRejectsOutsideLineWindow(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 10, Message: "missing error check"},
	}
	c := models.ReviewComment{File: "main.go", Line: 10 + dedupLineWindow + 1, Message: "missing error check"}
	if isDuplicate(c, prior) {
		t.Fatal("expected no duplicate outside the line window")
	}
}

func TestIsDuplicateRejectsDifferentMessage(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 10, Message: "missing error check"},
	}
	c := models.ReviewComment{File: "main.go", Line: 10, Message: "unrelated nit"}
	if isDuplicate(c, prior) {
		t.Fatal("expected no duplicate for a different message")
	}
}

func TestPostProcessTruncatesToMaxComments(t *testing.T) {
	comments := []models.ReviewComment{
		{File: "a.go", Line: 1, Severity: models.SeverityCritical, Message: "one"},
		{File: "b.go", Line: 1, Severity: models.SeverityCritical, Message: "two"},
		{File: "c.go", Line: 1, Severity: models.SeverityCritical, Message: "three"},
	}
	got := postProcess(comments, nil, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 comments after truncation, got %d", len(got))
	}
}

func TestPostProcessDropsSuggestionsWhenOverThreshold(t *testing.T) {
	comments := make([]models.ReviewComment, 0, suggestionDropAbove+1)
	for i := 0; i < suggestionDropAbove+1; i++ {
		comments = append(comments, models.ReviewComment{
			File:     "a.go",
			Line:     i + 1,
			Severity: models.SeveritySuggestion,
			Message:  "nit",
		})
	}
	got := postProcess(comments, nil, 0)
	for _, c := range got {
		if c.Severity == models.SeveritySuggestion {
			t.Fatal("expected suggestions to be dropped once the count exceeds the threshold")
		}
	}
}

func TestPostProcessKeepsSuggestionsWhenAtOrBelowThreshold(t *testing.T) {
	comments := []models.ReviewComment{
		{File: "a.go", Line: 1, Severity: models.SeveritySuggestion, Message: "nit"},
	}
	got := postProcess(comments, nil, 0)
	if len(got) != 1 {
		t.Fatalf("expected the lone suggestion to survive, got %d comments", len(got))
	}
}

func TestPostProcessDedupsAgainstPriorComments(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "a.go", Line: 5, Message: "missing error check"},
	}
	comments := []models.ReviewComment{
		{File: "a.go", Line: 5, Severity: models.SeverityCritical, Message: "missing error check"},
		{File: "a.go", Line: 5, Severity: models.SeverityCritical, Message: "a new finding"},
	}
	got := postProcess(comments, prior, 0)
	if len(got) != 1 {
		t.Fatalf("expected the duplicate to be removed, got %d comments", len(got))
	}
	if got[0].Message != "a new finding" {
		t.Fatalf("expected the surviving comment to be the non-duplicate, got %q", got[0].Message)
	}
}
