// Package main provides the webhook and queue server for forgebot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/forgebot/internal/config"
	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/github"
	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/metrics"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
	"github.com/raphaelgruber/forgebot/internal/planner"
	"github.com/raphaelgruber/forgebot/internal/server"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	drainEvery := flag.Duration("drain-every", 0, "process pending jobs on this interval (0 disables; rely on /cron)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting forgebot-server", "port", cfg.Port, "provider", cfg.LLMProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("FORGEBOT_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()

	gen, err := planner.NewGenerator(cfg)
	if err != nil {
		slog.Error("failed to initialize planner backend", "error", err)
		os.Exit(1)
	}

	larkClient := lark.NewClient(cfg.LarkAppID, cfg.LarkAppSecret, logger)
	hub := server.NewHub(logger)
	collector := metrics.NewCollector()

	orch := orchestrator.New(
		dbClient,
		planner.New(gen, nil, logger),
		github.NewClient(cfg.GitHubToken, logger),
		lark.NewNotifier(larkClient),
		hub,
		collector,
		orchestrator.Config{
			DefaultRepoURL:  cfg.DefaultRepoURL,
			BaseBranch:      cfg.BaseBranch,
			MaxContextFiles: cfg.MaxContextFiles,
		},
		logger,
	)

	srv := server.New(orch, larkClient, hub, server.Config{
		Port:              cfg.Port,
		CronSecret:        cfg.CronSecret,
		VerificationToken: cfg.LarkVerificationToken,
	}, logger)

	// Optional in-process drain loop for deployments without an
	// external cron hitting /cron.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	if *drainEvery > 0 {
		go func() {
			ticker := time.NewTicker(*drainEvery)
			defer ticker.Stop()
			for {
				select {
				case <-drainCtx.Done():
					return
				case <-ticker.C:
					if _, err := orch.ProcessNext(drainCtx); err != nil {
						slog.Error("drain tick failed", "error", err)
					}
				}
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	stopDrain()

	if err := srv.Shutdown(context.Background()); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
