// Package tasks defines the asynq task payloads carried on techy's two
// named queues (repo_analysis, webhook_events).
package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/techy/revo/pkg/models"
)

const (
	TypeAnalysis = "repo:analyze"
	TypeReview   = "webhook:review"
)

// QueueAnalysis and QueueReview are the asynq queue names the two task
// types are dispatched on.
const (
	QueueAnalysis = "repo_analysis"
	QueueReview   = "webhook_events"
)

const (
	visibilityAnalysis = 60 * time.Second
	visibilityReview   = 300 * time.Second
)

// NewAnalysisTask builds the repo_analysis queue entry for one connected repo.
func NewAnalysisTask(payload models.RepoAnalysisPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAnalysis, data, asynq.Queue(QueueAnalysis), asynq.Timeout(visibilityAnalysis)), nil
}

// ParseAnalysisTask decodes a repo_analysis task payload.
func ParseAnalysisTask(task *asynq.Task) (models.RepoAnalysisPayload, error) {
	var payload models.RepoAnalysisPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return models.RepoAnalysisPayload{}, err
	}
	return payload, nil
}

// NewReviewTask builds the webhook_events queue entry for a normalized
// WebhookEvent. No TaskID is set, so asynq itself does not reject repeated
// enqueues of the same PR state.
func NewReviewTask(event models.WebhookEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReview, data, asynq.Queue(QueueReview), asynq.Timeout(visibilityReview)), nil
}

// ParseReviewTask decodes a webhook_events task payload.
func ParseReviewTask(task *asynq.Task) (models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return models.WebhookEvent{}, err
	}
	return event, nil
}
