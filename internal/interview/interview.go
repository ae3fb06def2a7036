// Package interview implements the InterviewDriver: a stateless step
// function that turns a repository's analysis profile and the running
// transcript of prior question/answer pairs into the next interview step
// (another question, a completed persona, or an error), by way of one
// sandboxed LLM call. It is a wholly new component, grounded in
// internal/claude/client.go's single-call invocation pattern and
// internal/agent's NDJSON/sanitizing envelope.
package interview

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/techy/revo/internal/agent"
	"github.com/techy/revo/internal/sandbox"
	"github.com/techy/revo/pkg/models"
)

const stepTimeout = 3 * time.Minute

// Driver runs one interview step per call; it holds no per-repo state.
type Driver struct {
	sandbox        *sandbox.Sandbox
	containerImage string
	agentPath      string
}

// New wires a Driver from its dependencies.
func New(sb *sandbox.Sandbox, containerImage, agentPath string) *Driver {
	return &Driver{sandbox: sb, containerImage: containerImage, agentPath: agentPath}
}

// Step runs the interview's next turn against the given profile and answer
// transcript, using the caller's chosen LLM provider/model/key.
func (d *Driver) Step(ctx context.Context, profile string, answers []models.InterviewAnswer, provider, model, apiKey string) (models.InterviewStep, error) {
	workDir, err := os.MkdirTemp("", "techy-interview-*")
	if err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	handle, err := d.sandbox.Start(ctx, d.containerImage, workDir)
	if err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: start sandbox: %w", err)
	}
	defer d.sandbox.Stop(ctx, handle)

	if err := d.sandbox.WriteFile(ctx, handle, "/tmp/system.txt", systemPrompt); err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: write system prompt: %w", err)
	}
	userMessage := buildUserMessage(profile, answers)
	if err := d.sandbox.WriteFile(ctx, handle, "/tmp/message.txt", userMessage); err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: write user message: %w", err)
	}

	authJSON, err := agent.BuildAuthJSON(provider, apiKey)
	if err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: build auth json: %w", err)
	}
	if _, err := d.sandbox.Exec(ctx, handle, []string{"mkdir", "-p", "/root/.local/share/opencode"}); err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: create auth dir: %w", err)
	}
	if err := d.sandbox.WriteFile(ctx, handle, "/root/.local/share/opencode/auth.json", authJSON); err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: write auth json: %w", err)
	}

	runCmd := fmt.Sprintf(
		"cat /tmp/message.txt | %s run --model %s --file /tmp/system.txt --format json > /tmp/result.txt",
		d.agentPath, agent.NormalizeModel(model, provider))
	runRes, err := d.sandbox.ExecWithTimeout(ctx, handle, []string{"sh", "-c", runCmd}, stepTimeout)
	if err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: run agent: %w", err)
	}
	if runRes.ExitCode != 0 {
		return models.InterviewStep{}, fmt.Errorf("interview: run agent: exit %d: %s", runRes.ExitCode, runRes.Stderr)
	}

	readRes, err := d.sandbox.Exec(ctx, handle, []string{"cat", "/tmp/result.txt"})
	if err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: read result: %w", err)
	}

	text := agent.ExtractText(readRes.Stdout)
	var step models.InterviewStep
	if err := agent.ParseJSON(text, &step); err != nil {
		return models.InterviewStep{}, fmt.Errorf("interview: parse agent output: %w", err)
	}

	if step.Status == models.InterviewStatusQuestion {
		if step.Question == nil {
			return models.InterviewStep{}, fmt.Errorf("interview: question step missing question")
		}
		if err := step.Question.Validate(); err != nil {
			return models.InterviewStep{}, fmt.Errorf("interview: invalid question: %w", err)
		}
	}

	return step, nil
}
