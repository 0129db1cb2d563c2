package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/forgebot/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// jobSelect aliases the record id back to its plain string form so rows
// decode straight into models.Job.
const jobSelect = `SELECT *, record::id(id) AS id FROM`

// NewJobInput is the caller-provided part of a job record; CreateJob
// assigns the id and created_at.
type NewJobInput struct {
	UserID    string
	ChatID    string
	Message   string
	Context   models.JobContext
	Status    models.JobStatus
	Questions []models.Question
	ThreadID  string
}

// CreateJob persists a new job, assigning its id and creation timestamp.
// The job is added to the pending queue unless its status is questioning.
func (c *Client) CreateJob(ctx context.Context, in NewJobInput) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		ChatID:    in.ChatID,
		Message:   in.Message,
		Context:   in.Context,
		Status:    in.Status,
		Questions: in.Questions,
		ThreadID:  in.ThreadID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if job.Questions == nil {
		job.Questions = []models.Question{}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("job", $id) CONTENT {
			user_id: $user_id,
			chat_id: $chat_id,
			message: $message,
			status: $status,
			context: $context,
			questions: $questions,
			retry_count: 0,
			thread_id: $thread_id,
			created_at: $created_at
		}
	`, map[string]any{
		"id":         job.ID,
		"user_id":    job.UserID,
		"chat_id":    job.ChatID,
		"message":    job.Message,
		"status":     string(job.Status),
		"context":    job.Context,
		"questions":  job.Questions,
		"thread_id":  nilIfEmpty(job.ThreadID),
		"created_at": job.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", wrapQueryError(err))
	}

	if job.Status != models.StatusQuestioning {
		if err := c.Enqueue(ctx, job.ID, job.CreatedAt); err != nil {
			return nil, err
		}
	}

	return job, nil
}

// GetJob retrieves a job by id. Returns ErrNotFound when absent.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db,
		jobSelect+` type::record("job", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

// JobUpdate is a partial update; nil fields are left untouched.
type JobUpdate struct {
	Status      *models.JobStatus
	Context     *models.JobContext
	Questions   *[]models.Question
	Result      *models.JobResult
	Error       *string
	RetryCount  *int
	StartedAt   *int64
	CompletedAt *int64

	// QueueScore overrides the score written when the status change
	// re-enters the pending queue. Nil means "due now". Setting it lets a
	// delayed re-pend land with its final score in one step, so no
	// immediately-due entry is ever visible to a concurrent drain.
	QueueScore *int64
}

// UpdateJob merges the update into the stored job. When the status
// changes, the pending-queue index is kept consistent: the job leaves the
// queue if its prior status was pending/processing, and re-enters with a
// fresh score if the new status is pending. Returns ErrNotFound for
// unknown ids.
func (c *Client) UpdateJob(ctx context.Context, id string, upd JobUpdate) (*models.Job, error) {
	prior, err := c.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	merge := map[string]any{}
	if upd.Status != nil {
		merge["status"] = string(*upd.Status)
	}
	if upd.Context != nil {
		merge["context"] = *upd.Context
	}
	if upd.Questions != nil {
		merge["questions"] = *upd.Questions
	}
	if upd.Result != nil {
		merge["result"] = *upd.Result
	}
	if upd.Error != nil {
		merge["error"] = nilIfEmpty(*upd.Error)
	}
	if upd.RetryCount != nil {
		merge["retry_count"] = *upd.RetryCount
	}
	if upd.StartedAt != nil {
		merge["started_at"] = *upd.StartedAt
	}
	if upd.CompletedAt != nil {
		merge["completed_at"] = *upd.CompletedAt
	}

	if len(merge) > 0 {
		_, err = surrealdb.Query[any](ctx, c.db,
			`UPDATE type::record("job", $id) MERGE $data`,
			map[string]any{"id": id, "data": merge})
		if err != nil {
			return nil, fmt.Errorf("update job: %w", wrapQueryError(err))
		}
	}

	if upd.Status != nil && *upd.Status != prior.Status {
		if prior.Status == models.StatusPending || prior.Status == models.StatusProcessing {
			if err := c.RemoveFromQueue(ctx, id); err != nil {
				return nil, err
			}
		}
		if *upd.Status == models.StatusPending {
			score := time.Now().UnixMilli()
			if upd.QueueScore != nil {
				score = *upd.QueueScore
			}
			if err := c.Enqueue(ctx, id, score); err != nil {
				return nil, err
			}
		}
	}

	return c.GetJob(ctx, id)
}

// ListUserJobs returns a user's jobs newest-first, bounded by limit.
func (c *Client) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := surrealdb.Query[[]models.Job](ctx, c.db,
		jobSelect+` job WHERE user_id = $user ORDER BY created_at DESC LIMIT $limit`,
		map[string]any{"user": userID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list user jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.Job{}, nil
	}
	return (*results)[0].Result, nil
}

// FindQuestioningJob returns the oldest questioning job for the user
// anchored to the given chat thread, or ErrNotFound.
func (c *Client) FindQuestioningJob(ctx context.Context, userID, threadID string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db,
		jobSelect+` job
			WHERE user_id = $user AND thread_id = $thread AND status = "questioning"
			ORDER BY created_at ASC LIMIT 1`,
		map[string]any{"user": userID, "thread": threadID})
	if err != nil {
		return nil, fmt.Errorf("find questioning job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	job := (*results)[0].Result[0]
	return &job, nil
}

// Enqueue adds a job to the pending queue with the given score.
// Re-adding an existing entry updates its score (idempotent).
func (c *Client) Enqueue(ctx context.Context, jobID string, score int64) error {
	_, err := surrealdb.Query[any](ctx, c.db,
		`UPSERT type::record("queue_entry", $id) SET job = $id, score = $score`,
		map[string]any{"id": jobID, "score": score})
	if err != nil {
		return fmt.Errorf("enqueue: %w", wrapQueryError(err))
	}
	return nil
}

// RemoveFromQueue removes a job from the pending queue. Removing an
// absent id is a no-op.
func (c *Client) RemoveFromQueue(ctx context.Context, jobID string) error {
	_, err := surrealdb.Query[any](ctx, c.db,
		`DELETE type::record("queue_entry", $id)`,
		map[string]any{"id": jobID})
	if err != nil {
		return fmt.Errorf("remove from queue: %w", wrapQueryError(err))
	}
	return nil
}

// queueEntry mirrors a pending-queue row.
type queueEntry struct {
	Job   string `json:"job"`
	Score int64  `json:"score"`
}

// popMinSQL removes and returns the minimum-score queue entry in a single
// transaction. The read and the delete commit together, so concurrent
// drain invocations can never claim the same entry. Entries with a
// future score (delayed retries) are not yet due and stay queued.
const popMinSQL = `
	BEGIN TRANSACTION;
	LET $entry = (SELECT job, score FROM queue_entry WHERE score <= $now ORDER BY score ASC LIMIT 1);
	IF array::len($entry) > 0 {
		DELETE type::record("queue_entry", $entry[0].job);
	};
	RETURN $entry;
	COMMIT TRANSACTION;
`

// DequeueOldestPending atomically pops the oldest due pending job, marks
// it processing with started_at set, and returns it. Returns ErrNotFound
// when the queue is empty or the popped entry refers to a missing job.
func (c *Client) DequeueOldestPending(ctx context.Context) (*models.Job, error) {
	results, err := surrealdb.Query[[]queueEntry](ctx, c.db, popMinSQL,
		map[string]any{"now": time.Now().UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("pop pending queue: %w", wrapQueryError(err))
	}

	var popped *queueEntry
	if results != nil {
		// A transaction yields one result per statement; the RETURN is the
		// only one carrying entries.
		for _, r := range *results {
			if len(r.Result) > 0 {
				popped = &r.Result[0]
				break
			}
		}
	}
	if popped == nil {
		return nil, ErrNotFound
	}

	status := models.StatusProcessing
	started := time.Now().UnixMilli()
	job, err := c.UpdateJob(ctx, popped.Job, JobUpdate{
		Status:    &status,
		StartedAt: &started,
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// QueueStats reports the pending-queue depth.
type QueueStats struct {
	Pending int `json:"pending"`
}

// GetQueueStats returns the number of entries waiting in the queue.
func (c *Client) GetQueueStats(ctx context.Context) (QueueStats, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `SELECT count() AS count FROM queue_entry GROUP ALL`, nil)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return QueueStats{}, nil
	}
	return QueueStats{Pending: (*results)[0].Result[0].Count}, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
