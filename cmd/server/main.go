package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/habitbloom/server/internal/auth"
	"github.com/habitbloom/server/internal/config"
	"github.com/habitbloom/server/internal/repository/mongodb"
	"github.com/habitbloom/server/internal/scheduler"
	"github.com/habitbloom/server/internal/server/handlers"
	"github.com/habitbloom/server/internal/server/router"
	"github.com/habitbloom/server/internal/service/aggregate"
	reportsvc "github.com/habitbloom/server/internal/service/report"
	"github.com/habitbloom/server/pkg/clients/anthropic"
	"github.com/habitbloom/server/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	aiClient := anthropic.NewClient(cfg.AI.AnthropicKey)
	aggregateSvc := aggregate.NewService(mongoRepo, baseLogger.Named("svc.aggregate"))
	reportSvc := reportsvc.NewService(aggregateSvc, mongoRepo, aiClient, baseLogger.Named("svc.report"))

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	reportHandler := handlers.NewReportHandler(verifier, reportSvc, baseLogger.Named("handlers.report"))
	engine := router.New(reportHandler, baseLogger.Named("router"))

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(cfg.Scheduler, reportSvc, mongoRepo, baseLogger.Named("scheduler"))
		if err != nil {
			baseLogger.Fatal("failed to init scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // generation waits on the model call
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
