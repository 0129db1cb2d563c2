// Package orchestrator drives the job lifecycle: intake of chat
// instructions, the questioning dialogue, queue processing, and retries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/github"
	"github.com/raphaelgruber/forgebot/internal/metrics"
	"github.com/raphaelgruber/forgebot/internal/models"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, in db.NewJobInput) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, upd db.JobUpdate) (*models.Job, error)
	ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error)
	FindQuestioningJob(ctx context.Context, userID, threadID string) (*models.Job, error)
	DequeueOldestPending(ctx context.Context) (*models.Job, error)
	Enqueue(ctx context.Context, jobID string, score int64) error
	GetQueueStats(ctx context.Context) (db.QueueStats, error)
}

// Planner produces a change-set or clarifying questions from an
// instruction.
type Planner interface {
	Analyze(ctx context.Context, message string, jctx models.JobContext) (*models.PlanOutcome, error)
	Refine(ctx context.Context, answer string, answered []models.Question, message string, jctx models.JobContext) (*models.PlanOutcome, error)
}

// Applier delivers a change-set to the repository.
type Applier interface {
	Apply(ctx context.Context, repoURL string, changes *models.ChangeSet, baseBranch string, mode models.Mode, targetBranch string) (*github.Outcome, error)
	Snapshot(ctx context.Context, repoURL, branch string, maxFiles int) (map[string]string, error)
}

// Notifier delivers lifecycle updates to the user. Notification
// failures never affect job state; callers log and move on.
type Notifier interface {
	JobAccepted(ctx context.Context, job *models.Job) error
	JobCompleted(ctx context.Context, job *models.Job) error
	JobFailed(ctx context.Context, job *models.Job, message, details string) error
	JobConflicted(ctx context.Context, job *models.Job, files []string) error
	JobQuestions(ctx context.Context, job *models.Job) error
}

// JobEvent is broadcast to live subscribers on every state change.
type JobEvent struct {
	Type string      `json:"type"`
	Job  *models.Job `json:"job"`
	At   int64       `json:"at"`
}

// Events fans job events out to subscribers. May be nil.
type Events interface {
	Publish(event JobEvent)
}

// Config carries the repository defaults for new jobs.
type Config struct {
	DefaultRepoURL  string
	BaseBranch      string
	MaxContextFiles int
}

// Orchestrator coordinates the store, planner, applier, and notifier.
type Orchestrator struct {
	store    Store
	planner  Planner
	applier  Applier
	notifier Notifier
	events   Events
	stats    *metrics.Collector
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New wires an orchestrator. events may be nil; a nil stats collector
// and logger get defaults.
func New(store Store, planner Planner, applier Applier, notifier Notifier, events Events, stats *metrics.Collector, cfg Config, logger *slog.Logger) *Orchestrator {
	if stats == nil {
		stats = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if cfg.MaxContextFiles <= 0 {
		cfg.MaxContextFiles = 20
	}
	return &Orchestrator{
		store:    store,
		planner:  planner,
		applier:  applier,
		notifier: notifier,
		events:   events,
		stats:    stats,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IntakeRequest is one parsed chat instruction.
type IntakeRequest struct {
	UserID   string
	ChatID   string
	Message  string
	Mode     models.Mode
	Branch   string
	ThreadID string
	InThread bool
}

// Intake handles an incoming instruction. A threaded reply that matches
// a questioning job is treated as an answer to its oldest open question;
// everything else starts a new job.
func (o *Orchestrator) Intake(ctx context.Context, req IntakeRequest) (*models.Job, error) {
	if req.InThread && req.ThreadID != "" {
		job, err := o.store.FindQuestioningJob(ctx, req.UserID, req.ThreadID)
		switch {
		case err == nil:
			return o.handleAnswer(ctx, job, req.Message)
		case errors.Is(err, db.ErrNotFound):
			// No dialogue to continue; the reply starts a fresh job.
		default:
			return nil, err
		}
	}
	return o.startJob(ctx, req)
}

func (o *Orchestrator) startJob(ctx context.Context, req IntakeRequest) (*models.Job, error) {
	jctx := models.JobContext{
		RepoURL: o.cfg.DefaultRepoURL,
		Branch:  req.Branch,
		Mode:    req.Mode,
	}
	if jctx.Mode == "" {
		jctx.Mode = models.ModeCreatePR
	}

	snapshotBranch := jctx.Branch
	if snapshotBranch == "" {
		snapshotBranch = o.cfg.BaseBranch
	}
	files, err := o.applier.Snapshot(ctx, jctx.RepoURL, snapshotBranch, o.cfg.MaxContextFiles)
	if err != nil {
		o.logger.Warn("repository snapshot failed", "repo", jctx.RepoURL, "error", err)
	}
	jctx.ExistingFiles = files

	outcome, planErr := o.timedPlan(ctx, metrics.OpPlan, func() (*models.PlanOutcome, error) {
		return o.planner.Analyze(ctx, req.Message, jctx)
	})
	if planErr != nil {
		return o.createFailedJob(ctx, req, jctx, planErr)
	}

	if outcome.NeedsQuestions {
		job, err := o.store.CreateJob(ctx, db.NewJobInput{
			UserID:    req.UserID,
			ChatID:    req.ChatID,
			Message:   req.Message,
			Context:   jctx,
			Status:    models.StatusQuestioning,
			Questions: outcome.Questions,
			ThreadID:  req.ThreadID,
		})
		if err != nil {
			return nil, err
		}
		o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobQuestions(ctx, job) })
		o.publish("job.questioning", job)
		return job, nil
	}

	jctx.CodeChanges = outcome.Changes
	job, err := o.store.CreateJob(ctx, db.NewJobInput{
		UserID:   req.UserID,
		ChatID:   req.ChatID,
		Message:  req.Message,
		Context:  jctx,
		Status:   models.StatusPending,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		return nil, err
	}
	o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobAccepted(ctx, job) })
	o.publish("job.created", job)
	return job, nil
}

// handleAnswer records the user's reply on the oldest unanswered
// question and asks the planner to refine. The dialogue either continues
// with more questions or resolves the job to pending.
func (o *Orchestrator) handleAnswer(ctx context.Context, job *models.Job, answer string) (*models.Job, error) {
	questions := make([]models.Question, len(job.Questions))
	copy(questions, job.Questions)
	if idx := job.OldestUnanswered(); idx >= 0 {
		questions[idx].Answer = answer
	}

	answered := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		if q.Answered() {
			answered = append(answered, q)
		}
	}

	outcome, err := o.timedPlan(ctx, metrics.OpRefine, func() (*models.PlanOutcome, error) {
		return o.planner.Refine(ctx, answer, answered, job.Message, job.Context)
	})
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	if outcome.NeedsQuestions {
		questions = append(questions, outcome.Questions...)
		updated, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{Questions: &questions})
		if err != nil {
			return nil, err
		}
		o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobQuestions(ctx, updated) })
		o.publish("job.questioning", updated)
		return updated, nil
	}

	jctx := job.Context
	jctx.CodeChanges = outcome.Changes
	pending := models.StatusPending
	updated, err := o.store.UpdateJob(ctx, job.ID, db.JobUpdate{
		Status:    &pending,
		Questions: &questions,
		Context:   &jctx,
	})
	if err != nil {
		return nil, err
	}
	o.notify(ctx, metrics.OpNotify, func() error { return o.notifier.JobAccepted(ctx, updated) })
	o.publish("job.resolved", updated)
	return updated, nil
}

// createFailedJob records a job whose planning failed before it ever
// reached the queue, so the user can inspect and retry it.
func (o *Orchestrator) createFailedJob(ctx context.Context, req IntakeRequest, jctx models.JobContext, cause error) (*models.Job, error) {
	job, err := o.store.CreateJob(ctx, db.NewJobInput{
		UserID:   req.UserID,
		ChatID:   req.ChatID,
		Message:  req.Message,
		Context:  jctx,
		Status:   models.StatusQuestioning, // keeps it out of the queue
		ThreadID: req.ThreadID,
	})
	if err != nil {
		return nil, fmt.Errorf("record failed intake: %w (cause: %v)", err, cause)
	}
	return o.failJob(ctx, job, cause)
}

// GetJob returns a job by id.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return o.store.GetJob(ctx, id)
}

// ListUserJobs returns a user's recent jobs, newest first.
func (o *Orchestrator) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	return o.store.ListUserJobs(ctx, userID, limit)
}

// QueueStats reports the pending-queue depth.
func (o *Orchestrator) QueueStats(ctx context.Context) (db.QueueStats, error) {
	return o.store.GetQueueStats(ctx)
}

// Metrics exposes the runtime stats snapshot.
func (o *Orchestrator) Metrics() metrics.Snapshot {
	return o.stats.Snapshot()
}

func (o *Orchestrator) timedPlan(ctx context.Context, op string, fn func() (*models.PlanOutcome, error)) (*models.PlanOutcome, error) {
	start := o.now()
	outcome, err := fn()
	if err != nil {
		o.stats.RecordFailure(op)
		return nil, err
	}
	o.stats.RecordTiming(op, o.now().Sub(start))
	return outcome, nil
}

// notify runs a notification and swallows its error. Chat delivery is
// best effort and never changes job state.
func (o *Orchestrator) notify(ctx context.Context, op string, fn func() error) {
	start := o.now()
	if err := fn(); err != nil {
		o.stats.RecordFailure(op)
		o.logger.Warn("notification failed", "error", err)
		return
	}
	o.stats.RecordTiming(op, o.now().Sub(start))
}

func (o *Orchestrator) publish(eventType string, job *models.Job) {
	if o.events == nil {
		return
	}
	o.events.Publish(JobEvent{Type: eventType, Job: job, At: o.now().UnixMilli()})
}
