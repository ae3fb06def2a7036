package forge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/techy/revo/pkg/models"
)

// Truncation caps on the formatted diff: per-file and whole-diff limits so
// a single review prompt can't blow past the agent's context window.
const (
	perFileCharCap = 15000
	perFileLineCap = 500
	totalCharCap   = 100000
)

var hunkHeaderPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

var diffMetaPrefixes = []string{
	"diff --git", "index ", "--- ", "+++ ",
	"new file mode", "deleted file mode", "rename from", "rename to",
	"similarity index", "old mode", "new mode", "Binary files",
}

func isDiffMeta(line string) bool {
	for _, p := range diffMetaPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// FormatDiff renders file changes into the annotated text embedded in the
// review prompt: a "### path (status, +adds -dels)" header per file
// followed by a fenced diff block whose lines are prefixed "N:+added",
// "   -removed", or "N: context". Files and the whole diff are truncated
// per the caps above, with "(truncated)" / "(N more files truncated)"
// markers so the LLM knows coverage was cut rather than silently missing it.
func FormatDiff(files []models.FileChange) string {
	var sb strings.Builder
	total := 0
	skipped := 0

	for _, f := range files {
		section := truncateToLineCap(formatFileSection(f), perFileLineCap)
		if len(section) > perFileCharCap {
			section = section[:perFileCharCap] + "\n... (truncated)\n"
		}

		if total+len(section) > totalCharCap {
			skipped++
			continue
		}

		sb.WriteString(section)
		total += len(section)
	}

	if skipped > 0 {
		fmt.Fprintf(&sb, "\n... (%d more files truncated)\n", skipped)
	}

	return sb.String()
}

func formatFileSection(f models.FileChange) string {
	path := f.NewPath
	if path == "" {
		path = f.OldPath
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s (%s, +%d -%d)\n", path, f.Status, f.Additions, f.Deletions)
	sb.WriteString("```diff\n")
	sb.WriteString(annotatePatch(f.Patch))
	sb.WriteString("\n```\n\n")
	return sb.String()
}

// annotatePatch walks a unified diff hunk, tracking the new-file line
// counter from each hunk header, and prefixes every line per the contract
// FormatDiff documents above.
func annotatePatch(patch string) string {
	lines := strings.Split(patch, "\n")
	var out strings.Builder
	newLine := 0

	for _, line := range lines {
		switch {
		case isDiffMeta(line):
			out.WriteString(line)
			out.WriteString("\n")
		case strings.HasPrefix(line, "@@"):
			if m := hunkHeaderPattern.FindStringSubmatch(line); m != nil {
				newLine, _ = strconv.Atoi(m[1])
			}
			out.WriteString(line)
			out.WriteString("\n")
		case strings.HasPrefix(line, "+"):
			fmt.Fprintf(&out, "%d:+%s\n", newLine, strings.TrimPrefix(line, "+"))
			newLine++
		case strings.HasPrefix(line, "-"):
			fmt.Fprintf(&out, "   -%s\n", strings.TrimPrefix(line, "-"))
		default:
			fmt.Fprintf(&out, "%d: %s\n", newLine, line)
			newLine++
		}
	}

	return strings.TrimRight(out.String(), "\n")
}

func truncateToLineCap(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n") + "\n... (truncated)\n"
}

// FormatComment renders one posted comment body: the message, followed by
// a fenced suggestion block when the comment carries one.
func FormatComment(c models.ReviewComment) string {
	if c.Suggestion == "" {
		return c.Message
	}
	return fmt.Sprintf("%s\n\n```suggestion\n%s\n```", c.Message, c.Suggestion)
}
