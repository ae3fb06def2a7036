package forge

import (
	"strings"
	"testing"

	"github.com/techy/revo/pkg/models"
)

func TestFormatDiffAnnotatesAddedRemovedContextLines(t *testing.T) {
	files := []models.FileChange{
		{
			NewPath:   "main.go",
			Status:    "modified",
			Additions: 2,
			Deletions: 1,
			Patch: "@@ -10,3 +10,4 @@ func main() {\n" +
				" context one\n" +
				"-removed one\n" +
				"+added one\n" +
				"+added two\n",
		},
	}

	out := FormatDiff(files)

	if !strings.Contains(out, "### main.go (modified, +2 -1)") {
		t.Fatalf("missing file header, got: %s", out)
	}
	if !strings.Contains(out, "10:  context one") {
		t.Fatalf("context line not numbered from hunk header, got: %s", out)
	}
	if !strings.Contains(out, "   -removed one") {
		t.Fatalf("removed line should have no line number, got: %s", out)
	}
	if !strings.Contains(out, "11:+added one") {
		t.Fatalf("added line should advance the new-line counter, got: %s", out)
	}
	if !strings.Contains(out, "12:+added two") {
		t.Fatalf("second added line should advance further, got: %s", out)
	}
}

func TestFormatDiffUsesOldPathWhenNewPathEmpty(t *testing.T) {
	files := []models.FileChange{
		{OldPath: "deleted.go", Status: "removed", Deletions: 5, Patch: "-gone\n"},
	}
	out := FormatDiff(files)
	if !strings.Contains(out, "### deleted.go") {
		t.Fatalf("expected removed file to fall back to OldPath, got: %s", out)
	}
}

func TestFormatDiffTruncatesOversizedFile(t *testing.T) {
	var patch strings.Builder
	padding := strings.Repeat("x", 60)
	for i := 0; i < 1000; i++ {
		patch.WriteString("+line " + padding + "\n")
	}
	files := []models.FileChange{{NewPath: "huge.go", Status: "modified", Patch: patch.String()}}

	out := FormatDiff(files)

	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected oversized file section to be truncated, got length %d", len(out))
	}
}

func TestFormatDiffSkipsFilesPastTotalCap(t *testing.T) {
	var bigPatch strings.Builder
	for i := 0; i < 200; i++ {
		bigPatch.WriteString("+line that is reasonably long to pad out the section size\n")
	}

	var files []models.FileChange
	for i := 0; i < 20; i++ {
		files = append(files, models.FileChange{NewPath: "file.go", Status: "modified", Patch: bigPatch.String()})
	}

	out := FormatDiff(files)

	if !strings.Contains(out, "more files truncated") {
		t.Fatalf("expected a skipped-files marker once the total cap is exceeded, got: %s", out)
	}
}

func TestFormatCommentWithoutSuggestion(t *testing.T) {
	c := models.ReviewComment{Message: "this could leak a goroutine"}
	if got := FormatComment(c); got != c.Message {
		t.Fatalf("expected bare message, got %q", got)
	}
}

func TestFormatCommentWithSuggestion(t *testing.T) {
	c := models.ReviewComment{Message: "use defer here", Suggestion: "defer f.Close()"}
	got := FormatComment(c)
	if !strings.Contains(got, "```suggestion\ndefer f.Close()\n```") {
		t.Fatalf("expected fenced suggestion block, got %q", got)
	}
	if !strings.HasPrefix(got, c.Message) {
		t.Fatalf("expected message to precede the suggestion block, got %q", got)
	}
}

func TestAnnotatePatchPreservesDiffMetaLines(t *testing.T) {
	patch := "diff --git a/x.go b/x.go\n" +
		"index abc123..def456 100644\n" +
		"--- a/x.go\n" +
		"+++ b/x.go\n" +
		"@@ -1,2 +1,2 @@\n" +
		"-old\n" +
		"+new\n"

	out := annotatePatch(patch)

	for _, meta := range []string{"diff --git a/x.go b/x.go", "index abc123..def456 100644", "--- a/x.go", "+++ b/x.go"} {
		if !strings.Contains(out, meta) {
			t.Fatalf("expected diff meta line %q preserved verbatim, got: %s", meta, out)
		}
	}
}
