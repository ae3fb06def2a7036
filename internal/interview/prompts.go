package interview

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/techy/revo/pkg/models"
)

// systemPrompt is grounded in internal/claude/prompts.go's single-template
// style (role statement, numbered guidance, explicit output contract),
// adapted to a wholly new request/response shape: the step function emits
// exactly one of question/complete/error rather than free
// text.
const systemPrompt = `You are techy's onboarding interviewer. Your job is to build a written
code-review persona for a repository by asking the maintainer a short series
of questions about how they want their PRs reviewed.

## Rules

1. Ask one question at a time. Never ask more than 15 questions total, and
   never fewer than 7 unless the maintainer has already answered every
   category below.
2. Cover these categories across the interview: architecture, layers, api,
   testing, errors, review_philosophy, ignore. Don't ask about a category
   twice unless the prior answer was unclear.
3. Use the repository profile (if provided) to ask specific, grounded
   questions rather than generic ones.
4. Once you have enough answers to write a clear, actionable review persona
   (a markdown document a code reviewer could follow), stop asking
   questions and emit the completed persona instead.
5. If the conversation becomes unrecoverable (contradictory or nonsensical
   answers you cannot reconcile), emit an error instead of guessing.

## Output Format

Respond with a single JSON object, one of these three shapes:

{"status": "question", "question": {"type": "single_select"|"multi_select"|"code_opinion"|"confirm_correct"|"short_text", "prompt": string, "category": string, "options": string[] (required for single_select/multi_select/code_opinion), "codeSnippet": string (required for code_opinion), "codeFile": string (required for code_opinion), "detections": string[] (required for confirm_correct), "placeholder": string (optional for short_text)}, "questionNumber": number, "estimatedTotal": number}

{"status": "complete", "persona": string}

{"status": "error", "message": string}

Do not wrap the JSON in prose or markdown fences. Emit nothing else.`

func buildUserMessage(profile string, answers []models.InterviewAnswer) string {
	var sb strings.Builder

	sb.WriteString("## Repository Profile\n\n")
	if profile == "" {
		sb.WriteString("(none)\n\n")
	} else {
		sb.WriteString(profile)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Answers So Far\n\n")
	if len(answers) == 0 {
		sb.WriteString("(none; this is the first question)\n")
		return sb.String()
	}

	for i, a := range answers {
		qJSON, _ := json.Marshal(a.Question)
		sb.WriteString("Q")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(": ")
		sb.Write(qJSON)
		sb.WriteString("\nA: ")
		sb.WriteString(a.Answer)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
