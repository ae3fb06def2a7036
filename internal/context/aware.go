// Package context (imported under the reviewctx alias to avoid shadowing
// the standard library) provides the Reviewer's text-truncation helpers:
// trimming prior-comment messages for the "Previously Flagged Issues"
// prompt section. Originally this package gathered GitHub-specific PR
// context (existing comments, previous reviews) for a comment-command bot;
// that lookup is superseded by the persisted dedup in internal/reviewer, and
// only its truncation helper survives, repurposed here.
package context

import (
	"fmt"
	"strings"

	"github.com/techy/revo/pkg/models"
)

const priorCommentTruncateLen = 120

// FormatPriorComments renders the "Previously Flagged Issues" prompt
// section from a flattened list of prior review comments, truncating each
// message to priorCommentTruncateLen characters.
func FormatPriorComments(prior []models.ReviewComment) string {
	if len(prior) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Previously Flagged Issues\n\n")
	for _, c := range prior {
		sb.WriteString(fmt.Sprintf("- [%s:%d] %s\n", c.File, c.Line, Truncate(c.Message, priorCommentTruncateLen)))
	}
	return sb.String()
}

// Truncate shortens s to at most maxLen characters, appending "..." when
// truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
