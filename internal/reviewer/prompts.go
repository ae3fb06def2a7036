package reviewer

import (
	"fmt"
	"strings"

	reviewctx "github.com/techy/revo/internal/context"
	"github.com/techy/revo/pkg/models"
)

const noneSentinel = "(none)"

// systemPromptTemplate substitutes the repo's persona, analysis profile,
// and skills catalog into the review system prompt. Grounded in
// internal/claude/prompts.go's review-mode templates (role statement,
// numbered guidance, explicit output-format instruction), generalized to
// carry four named placeholders.
const systemPromptTemplate = `You are techy, an automated code reviewer for this team's pull requests.

## Team Review Persona

%s

## Repository Profile

%s

## Predefined Skills

%s

## Custom Skills

%s

## Output Format

Respond with a single JSON object of the shape {"comments": [{"file": string,
"line": number, "endLine": number (optional), "severity": "critical" |
"warning" | "suggestion", "category": string, "message": string,
"suggestion": string (optional)}]}. Only comment on lines that appear in the
diff. Do not wrap the JSON in prose or markdown fences.`

func buildSystemPrompt(persona, analysisProfile, predefinedSkills, customSkills string) string {
	if persona == "" {
		persona = noneSentinel
	}
	if analysisProfile == "" {
		analysisProfile = noneSentinel
	}
	if predefinedSkills == "" {
		predefinedSkills = noneSentinel
	}
	if customSkills == "" {
		customSkills = noneSentinel
	}
	return fmt.Sprintf(systemPromptTemplate, persona, analysisProfile, predefinedSkills, customSkills)
}

func buildUserMessage(metadata models.PRMetadata, prior []models.ReviewComment, fileCount int, diff string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", metadata.Title)
	fmt.Fprintf(&sb, "Author: %s\n", metadata.Author)
	fmt.Fprintf(&sb, "Target branch: %s\n", metadata.BaseBranch)
	fmt.Fprintf(&sb, "Files changed: %d\n\n", fileCount)
	if metadata.Body != "" {
		sb.WriteString(metadata.Body)
		sb.WriteString("\n\n")
	}

	if section := reviewctx.FormatPriorComments(prior); section != "" {
		sb.WriteString(section)
		sb.WriteString("\n")
	}

	sb.WriteString(diff)

	return sb.String()
}
