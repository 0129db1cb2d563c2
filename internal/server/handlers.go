package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
)

func (s *Server) handleHealth(c echo.Context) error {
	return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	queue, err := s.jobs.QueueStats(c.Request().Context())
	if err != nil {
		return err
	}
	payload := map[string]any{
		"queue":   queue,
		"metrics": s.jobs.Metrics(),
	}
	if s.hub != nil {
		payload["subscribers"] = s.hub.ClientCount()
	}
	return JSON(c, http.StatusOK, payload)
}

// handleWebhook receives Lark message events. Unusable events are
// acknowledged with 200 so Lark stops redelivering them.
func (s *Server) handleWebhook(c echo.Context) error {
	var event lark.WebhookEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed event")
	}

	if event.IsChallenge() {
		return c.JSON(http.StatusOK, map[string]string{"challenge": event.ChallengeValue()})
	}

	if !event.VerifyToken(s.cfg.VerificationToken) {
		return echo.NewHTTPError(http.StatusUnauthorized, "verification token mismatch")
	}

	msg := event.ParseUserMessage()
	if msg == nil {
		return JSON(c, http.StatusOK, map[string]bool{"ignored": true})
	}

	ctx := c.Request().Context()

	if lark.IsHelpRequest(msg.Content) {
		if err := s.chat.SendCard(ctx, msg.ChatID, lark.WelcomeCard()); err != nil {
			s.logger.Warn("welcome card failed", "error", err)
		}
		return JSON(c, http.StatusOK, map[string]bool{"welcomed": true})
	}

	mode, branch, instruction := lark.ParseInstruction(msg.Content)

	// Direct messages anchor future thread replies to their own id.
	threadID := msg.MessageID
	if msg.InThread() {
		threadID = msg.ThreadID()
	}

	job, err := s.jobs.Intake(ctx, orchestrator.IntakeRequest{
		UserID:   msg.UserID,
		ChatID:   msg.ChatID,
		Message:  instruction,
		Mode:     mode,
		Branch:   branch,
		ThreadID: threadID,
		InThread: msg.InThread(),
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

// handleCron drains one due job from the queue.
func (s *Server) handleCron(c echo.Context) error {
	job, err := s.jobs.ProcessNext(c.Request().Context())
	if err != nil {
		return err
	}
	if job == nil {
		return JSON(c, http.StatusOK, map[string]bool{"processed": false})
	}
	return JSON(c, http.StatusOK, job)
}

type processRequest struct {
	JobID string `json:"job_id" validate:"required"`
}

// handleCronSpecific runs one job by id, skipping queue order.
func (s *Server) handleCronSpecific(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	job, err := s.jobs.ProcessSpecific(c.Request().Context(), req.JobID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}

// handleCardAction reacts to card button callbacks: status refreshes
// and manual retries.
func (s *Server) handleCardAction(c echo.Context) error {
	var event lark.ActionEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed action")
	}
	jobID := event.Action.Value.JobID
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing job_id")
	}

	ctx := c.Request().Context()

	switch event.Action.Value.Type {
	case lark.ActionRetry:
		job, err := s.jobs.Retry(ctx, jobID)
		if err != nil {
			return err
		}
		return JSON(c, http.StatusOK, job)
	case lark.ActionCheckStatus, lark.ActionRefreshStatus:
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		receiver := event.OpenID
		if receiver == "" {
			receiver = event.UserID
		}
		if receiver != "" {
			if err := s.chat.SendCard(ctx, receiver, lark.StatusCard(job)); err != nil {
				s.logger.Warn("status card failed", "job", jobID, "error", err)
			}
		}
		return JSON(c, http.StatusOK, job)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action type")
	}
}

// handleUserStatus lists a user's recent jobs.
func (s *Server) handleUserStatus(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := s.jobs.ListUserJobs(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, jobs)
}
