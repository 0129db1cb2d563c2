// Package planner is the AI gateway: it turns a user instruction plus
// repository context into either clarifying questions or a structured
// change-set.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/forgebot/internal/models"
)

// transientAttempts is how often a single planning call is retried on
// transient failures before the error surfaces to the job-level retry
// loop. Distinct from the job retry cap on purpose.
const transientAttempts = 3

// Planner drives planning rounds against a completion backend.
type Planner struct {
	gen     Generator
	limiter *RateLimiter
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration)
}

// New creates a planner. A nil limiter gets a fresh one; a nil logger
// falls back to slog.Default.
func New(gen Generator, limiter *RateLimiter, logger *slog.Logger) *Planner {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		gen:     gen,
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Analyze asks the model to plan changes for a fresh instruction. The
// result is either ≤3 clarifying questions or a change-set.
func (p *Planner) Analyze(ctx context.Context, message string, jctx models.JobContext) (*models.PlanOutcome, error) {
	return p.generate(ctx, buildUserPrompt(message, jctx))
}

// Refine continues a questioning dialogue with the user's latest answer.
// It may return further questions or the final change-set.
func (p *Planner) Refine(ctx context.Context, answer string, answered []models.Question, message string, jctx models.JobContext) (*models.PlanOutcome, error) {
	return p.generate(ctx, buildRefinePrompt(answer, answered, jctx, message))
}

// generate runs one planning round with transient-failure retries.
// Config errors abort immediately; everything else is retried with a
// short exponential backoff before surfacing.
func (p *Planner) generate(ctx context.Context, userPrompt string) (*models.PlanOutcome, error) {
	var lastErr error

	for attempt := 1; attempt <= transientAttempts; attempt++ {
		if err := p.limiter.Check(); err != nil {
			return nil, err
		}

		outcome, err := p.tryOnce(ctx, userPrompt)
		if err == nil {
			p.limiter.RecordSuccess()
			return outcome, nil
		}
		lastErr = err

		if errors.Is(err, ErrConfig) {
			return nil, err
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			p.limiter.RecordFailure()
		}

		p.logger.Warn("planner attempt failed",
			"attempt", attempt, "model", p.gen.Model(), "error", err)

		if attempt < transientAttempts {
			p.sleep(ctx, time.Duration(1<<uint(attempt-1))*time.Second)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			}
		}
	}

	return nil, lastErr
}

func (p *Planner) tryOnce(ctx context.Context, userPrompt string) (*models.PlanOutcome, error) {
	content, err := p.gen.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return ParsePlanOutcome(content)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
