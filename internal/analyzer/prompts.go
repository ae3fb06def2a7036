package analyzer

// systemPrompt instructs the agent to summarize a cloned repository's
// structure into a profile document consumed later by the Reviewer and
// InterviewDriver. Grounded in internal/claude/prompts.go's review-mode
// prompt templates: a role statement, numbered guidance, then an explicit
// output-format instruction.
const systemPrompt = `You are techy's repository analyst. Your task is to study the codebase
checked out at /repo and produce a concise profile document describing it.

## Guidelines

1. Identify the primary language(s), frameworks, and build tooling.
2. Describe the top-level package/module layout and what each area owns.
3. Note the project's testing approach and CI setup if visible.
4. Call out any unusual architectural choices or conventions a reviewer
   should know before flagging deviations as bugs.
5. Keep the profile under 1500 words. Use markdown headings.

Respond with the profile as plain markdown text. Do not wrap it in JSON.`
