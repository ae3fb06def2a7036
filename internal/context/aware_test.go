package context

import (
	"strings"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := Truncate("short", 120); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateLongStringAppendsEllipsis(t *testing.T) {
	s := strings.Repeat("a", 200)
	got := Truncate(s, 120)
	if len(got) != 120 {
		t.Fatalf("expected truncated length 120, got %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got[len(got)-10:])
	}
}

func TestTruncateAtOrBelowEllipsisWidth(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatPriorCommentsEmpty(t *testing.T) {
	if got := FormatPriorComments(nil); got != "" {
		t.Fatalf("expected empty string for no prior comments, got %q", got)
	}
}

func TestFormatPriorCommentsRendersFileAndLine(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 10, Message: "missing error check"},
	}
	got := FormatPriorComments(prior)
	if !strings.Contains(got, "## Previously Flagged Issues") {
		t.Fatalf("missing section header, got %q", got)
	}
	if !strings.Contains(got, "[main.go:10] missing error check") {
		t.Fatalf("missing formatted entry, got %q", got)
	}
}

func TestFormatPriorCommentsTruncatesLongMessages(t *testing.T) {
	prior := []models.ReviewComment{
		{File: "main.go", Line: 1, Message: strings.Repeat("x", 200)},
	}
	got := FormatPriorComments(prior)
	if strings.Contains(got, strings.Repeat("x", 200)) {
		t.Fatal("expected message to be truncated, found full-length message")
	}
	if !strings.Contains(got, "...") {
		t.Fatal("expected truncation ellipsis in output")
	}
}
