package lark

import (
	"context"

	"github.com/raphaelgruber/forgebot/internal/models"
)

// Notifier delivers job lifecycle cards to the chat a job came from.
// Threaded jobs get replies in their thread.
type Notifier struct {
	client *Client
}

// NewNotifier wraps a client for job notifications.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) deliver(ctx context.Context, job *models.Job, card Card) error {
	if job.ThreadID != "" {
		return n.client.ReplyThread(ctx, job.ChatID, job.ThreadID, card)
	}
	return n.client.SendCard(ctx, job.ChatID, card)
}

// JobAccepted sends the processing acknowledgment.
func (n *Notifier) JobAccepted(ctx context.Context, job *models.Job) error {
	return n.deliver(ctx, job, ProcessingCard(job))
}

// JobCompleted sends the completion card with the PR link.
func (n *Notifier) JobCompleted(ctx context.Context, job *models.Job) error {
	return n.deliver(ctx, job, CompletedCard(job))
}

// JobFailed sends the error card.
func (n *Notifier) JobFailed(ctx context.Context, job *models.Job, message, details string) error {
	return n.deliver(ctx, job, ErrorCard(job, message, details))
}

// JobConflicted sends the merge-conflict card.
func (n *Notifier) JobConflicted(ctx context.Context, job *models.Job, files []string) error {
	return n.deliver(ctx, job, ConflictCard(job, files))
}

// JobQuestions sends the clarifying-questions card.
func (n *Notifier) JobQuestions(ctx context.Context, job *models.Job) error {
	return n.deliver(ctx, job, QuestionsCard(job))
}
