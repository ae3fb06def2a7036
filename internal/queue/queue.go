// Package queue wraps asynq.Client's Enqueue behind the small surface
// WebhookIngress and the AdminAPI's connect handler actually need. Task
// construction lives in internal/tasks; the worker dispatches tasks
// directly and does not use this package.
package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/techy/revo/internal/tasks"
	"github.com/techy/revo/pkg/models"
)

// Enqueuer sends analysis and review jobs onto their named queues.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an asynq client configured against the process's Redis.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueAnalysis sends a repo_analysis job.
func (e *Enqueuer) EnqueueAnalysis(ctx context.Context, payload models.RepoAnalysisPayload) error {
	task, err := tasks.NewAnalysisTask(payload)
	if err != nil {
		return fmt.Errorf("queue: build analysis task: %w", err)
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue analysis task: %w", err)
	}
	return nil
}

// EnqueueReview sends a webhook_events job.
func (e *Enqueuer) EnqueueReview(ctx context.Context, event models.WebhookEvent) error {
	task, err := tasks.NewReviewTask(event)
	if err != nil {
		return fmt.Errorf("queue: build review task: %w", err)
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue review task: %w", err)
	}
	return nil
}
