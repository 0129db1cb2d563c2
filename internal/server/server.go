// Package server exposes the HTTP surface: the Lark webhook, the cron
// drain endpoints, job status queries, and a live event stream.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/metrics"
	"github.com/raphaelgruber/forgebot/internal/models"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
)

// Jobs is the orchestrator surface the handlers call.
type Jobs interface {
	Intake(ctx context.Context, req orchestrator.IntakeRequest) (*models.Job, error)
	ProcessNext(ctx context.Context) (*models.Job, error)
	ProcessSpecific(ctx context.Context, id string) (*models.Job, error)
	Retry(ctx context.Context, id string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error)
	QueueStats(ctx context.Context) (db.QueueStats, error)
	Metrics() metrics.Snapshot
}

// Chat delivers cards outside the job lifecycle (welcome, status).
type Chat interface {
	SendCard(ctx context.Context, receiveID string, card lark.Card) error
}

// Config holds the server's secrets and bind address.
type Config struct {
	Port              string
	CronSecret        string
	VerificationToken string
}

// Server wires the echo router to the orchestrator.
type Server struct {
	echo   *echo.Echo
	jobs   Jobs
	chat   Chat
	hub    *Hub
	cfg    Config
	logger *slog.Logger
}

// New builds the server and registers all routes.
func New(jobs Jobs, chat Chat, hub *Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))

	s := &Server{
		echo:   e,
		jobs:   jobs,
		chat:   chat,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)

	s.echo.POST("/webhook", s.handleWebhook)

	cron := s.echo.Group("/cron", CronAuth(s.cfg.CronSecret))
	cron.GET("", s.handleCron)
	cron.POST("", s.handleCron)
	cron.PUT("", s.handleCronSpecific)

	s.echo.POST("/status", s.handleCardAction)
	s.echo.GET("/status", s.handleUserStatus)

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.Handle)
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "port", s.cfg.Port)
	err := s.echo.Start(":" + s.cfg.Port)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
