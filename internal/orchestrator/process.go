package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/github"
	"github.com/raphaelgruber/forgebot/internal/metrics"
	"github.com/raphaelgruber/forgebot/internal/models"
	"github.com/raphaelgruber/forgebot/internal/planner"
	"github.com/raphaelgruber/forgebot/internal/retry"
)

// ErrNotProcessable is returned when a specific job cannot be run
// because it is questioning or already terminal.
var ErrNotProcessable = errors.New("job is not in a processable state")

// ProcessNext pops the oldest due pending job and runs it to a terminal
// or requeued state. Returns (nil, nil) when the queue is empty.
func (o *Orchestrator) ProcessNext(ctx context.Context) (*models.Job, error) {
	job, err := o.store.DequeueOldestPending(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.publish("job.processing", job)
	return o.process(ctx, job)
}

// ProcessSpecific runs one job by id regardless of queue order. The job
// must be pending or processing.
func (o *Orchestrator) ProcessSpecific(ctx context.Context, id string) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusPending && job.Status != models.StatusProcessing {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotProcessable, id, job.Status)
	}

	processing := models.StatusProcessing
	started := o.now().UnixMilli()
	job, err = o.store.UpdateJob(ctx, id, db.JobUpdate{
		Status:    &processing,
		StartedAt: &started,
	})
	if err != nil {
		return nil, err
	}
	o.publish("job.processing", job)
	return o.process(ctx, job)
}

// process applies a job's change-set. Jobs that reach processing
// without a resolved change-set get a late planning round first.
func (o *Orchestrator) process(ctx context.Context, job *models.Job) (*models.Job, error) {
	jctx := job.Context

	if jctx.CodeChanges == nil {
		if len(jctx.ExistingFiles) == 0 {
			files, err := o.applier.Snapshot(ctx, jctx.RepoURL, o.snapshotBranch(jctx), o.cfg.MaxContextFiles)
			if err == nil {
				jctx.ExistingFiles = files
			}
		}
		outcome, err := o.timedPlan(ctx, metrics.OpPlan, func() (*models.PlanOutcome, error) {
			return o.planner.Analyze(ctx, job.Message, jctx)
		})
		if err != nil {
			return o.failJob(ctx, job, err)
		}
		if outcome.NeedsQuestions {
			questioning := models.StatusQuestioning
			updated, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{
				Status:    &questioning,
				Questions: &outcome.Questions,
			})
			if err != nil {
				return nil, err
			}
			o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobQuestions(ctx, updated) })
			o.publish("job.questioning", updated)
			return updated, nil
		}
		jctx.CodeChanges = outcome.Changes
		if _, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{Context: &jctx}); err != nil {
			return nil, err
		}
	}

	start := o.now()
	outcome, err := o.applier.Apply(ctx, jctx.RepoURL, jctx.CodeChanges, o.cfg.BaseBranch, jctx.Mode, jctx.Branch)
	if err != nil {
		o.stats.RecordFailure(metrics.OpApply)
		return o.failJob(ctx, job, err)
	}
	o.stats.RecordTiming(metrics.OpApply, o.now().Sub(start))

	completedStatus := models.StatusCompleted
	completedAt := o.now().UnixMilli()
	result := models.JobResult{
		PRURL:   outcome.PRURL,
		Branch:  outcome.Branch,
		Summary: outcome.Summary,
		Mode:    jctx.Mode,
	}
	updated, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{
		Status:      &completedStatus,
		Result:      &result,
		CompletedAt: &completedAt,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("job completed", "job", job.ID, "pr", outcome.PRURL, "branch", outcome.Branch)
	o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobCompleted(ctx, updated) })
	o.publish("job.completed", updated)
	return updated, nil
}

func (o *Orchestrator) snapshotBranch(jctx models.JobContext) string {
	if jctx.Branch != "" {
		return jctx.Branch
	}
	return o.cfg.BaseBranch
}

// failJob classifies a processing failure. Conflicts and other
// non-retryable causes are terminal; transient causes go back to the
// queue with exponential backoff until the retry cap is reached.
func (o *Orchestrator) failJob(ctx context.Context, job *models.Job, cause error) (*models.Job, error) {
	var conflict *github.ConflictError
	if errors.As(cause, &conflict) {
		updated, err := o.markFailed(ctx, job, cause, nil)
		if err != nil {
			return nil, err
		}
		o.notify(ctx, metrics.OpNotify, func() error {
			return o.notifier.JobConflicted(ctx, updated, conflict.Files)
		})
		o.publish("job.failed", updated)
		return updated, nil
	}

	// Retryable failures increment the counter first; the gate and the
	// backoff both use the incremented count, so the third consecutive
	// failure ends in failed with retry_count 3.
	var exhausted *int
	if isRetryable(cause) {
		count := job.RetryCount + 1
		if retry.ShouldRetry(count) {
			pending := models.StatusPending
			errStr := cause.Error()
			delay := retry.BackoffDelay(count)
			due := o.now().UnixMilli() + delay.Milliseconds()
			updated, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{
				Status:     &pending,
				RetryCount: &count,
				Error:      &errStr,
				QueueScore: &due,
			})
			if err != nil {
				return nil, err
			}
			o.logger.Warn("job requeued after transient failure",
				"job", job.ID, "retry", count, "due_in", delay, "error", cause)
			o.publish("job.requeued", updated)
			return updated, nil
		}
		exhausted = &count
	}

	updated, err := o.markFailed(ctx, job, cause, exhausted)
	if err != nil {
		return nil, err
	}
	message, details := describeFailure(cause)
	o.notify(ctx, metrics.OpNotify, func() error {
		return o.notifier.JobFailed(ctx, updated, message, details)
	})
	o.publish("job.failed", updated)
	return updated, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, job *models.Job, cause error, retryCount *int) (*models.Job, error) {
	failed := models.StatusFailed
	errStr := cause.Error()
	completedAt := o.now().UnixMilli()
	o.logger.Error("job failed", "job", job.ID, "error", cause)
	return o.store.UpdateJob(ctx, job.ID, db.JobUpdate{
		Status:      &failed,
		Error:       &errStr,
		RetryCount:  retryCount,
		CompletedAt: &completedAt,
	})
}

// Retry re-runs a terminal job on user request. The stored error clears
// but the retry counter keeps its value; the automatic retry cap does
// not apply to manual retries.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotProcessable, id, job.Status)
	}

	pending := models.StatusPending
	empty := ""
	updated, err := o.store.UpdateJob(ctx, id, db.JobUpdate{
		Status: &pending,
		Error:  &empty,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("job manually requeued", "job", id)
	o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobAccepted(ctx, updated) })
	o.publish("job.requeued", updated)
	return updated, nil
}

// isRetryable reports whether a failure is worth another automatic
// attempt. Configuration problems, bad input, and conflicts are not.
func isRetryable(err error) bool {
	if errors.Is(err, planner.ErrTransport) || errors.Is(err, planner.ErrParse) {
		return true
	}
	var plannerRL *planner.RateLimitError
	var githubRL *github.RateLimitError
	if errors.As(err, &plannerRL) || errors.As(err, &githubRL) {
		return true
	}
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return false
}

// describeFailure maps an error to the user-facing message and detail.
func describeFailure(err error) (string, string) {
	var plannerRL *planner.RateLimitError
	var githubRL *github.RateLimitError
	var apiErr *github.APIError
	var badURL *github.InvalidRepoURLError

	switch {
	case errors.Is(err, planner.ErrConfig):
		return "The AI backend is not configured correctly.", err.Error()
	case errors.Is(err, planner.ErrParse):
		return "The AI response could not be understood.", err.Error()
	case errors.Is(err, planner.ErrTransport):
		return "The AI backend is unreachable.", err.Error()
	case errors.As(err, &plannerRL):
		return fmt.Sprintf("The AI backend is rate limited. Try again in %s.", plannerRL.RetryAfter), ""
	case errors.As(err, &githubRL):
		return fmt.Sprintf("GitHub is rate limited. Try again in %s.", githubRL.RetryAfter), ""
	case errors.Is(err, github.ErrBranchNotFound):
		return "The target branch does not exist.", err.Error()
	case errors.As(err, &badURL):
		return "The repository URL is invalid.", badURL.URL
	case errors.As(err, &apiErr):
		return "GitHub rejected the request.", apiErr.Error()
	default:
		return "The task failed.", err.Error()
	}
}
