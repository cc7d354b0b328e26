package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yamini-Krishna/employee-management/internal/api"
	"github.com/yamini-Krishna/employee-management/internal/assistant"
	"github.com/yamini-Krishna/employee-management/internal/audit"
	"github.com/yamini-Krishna/employee-management/internal/auth"
	"github.com/yamini-Krishna/employee-management/internal/config"
	"github.com/yamini-Krishna/employee-management/internal/executor"
	"github.com/yamini-Krishna/employee-management/internal/hrschema"
	"github.com/yamini-Krishna/employee-management/internal/migrations"
	"github.com/yamini-Krishna/employee-management/internal/nl2sql"
	"github.com/yamini-Krishna/employee-management/internal/observability"
	"github.com/yamini-Krishna/employee-management/internal/sqlguard"
	"github.com/yamini-Krishna/employee-management/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("hr-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := store.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open hr store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if applied, err := migrations.NewRunner().Up(context.Background(), db, 0); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	} else if applied > 0 {
		logger.Info("applied migrations", slog.Int("count", applied))
	}

	catalog := hrschema.NewCatalog(db)
	auditRepo := audit.NewRepository(db)

	deps := api.Dependencies{
		Logger:            logger,
		Catalog:           catalog,
		SchemaSampleRows:  cfg.Assistant.SchemaSampleRows,
		Readiness:         catalog.HealthCheck,
		DependencyTimeout: time.Second,
	}

	if cfg.AI.Enabled {
		generator, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql generator", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Assistant = assistant.NewService(assistant.Dependencies{
			Logger:    logger,
			Schema:    catalog,
			Generator: generator,
			Validator: sqlguard.NewValidator(cfg.Assistant.RowCap),
			Runner: executor.New(db, executor.Options{
				RowCap:        cfg.Assistant.RowCap,
				Timeout:       cfg.Assistant.QueryTimeout,
				MaxConcurrent: cfg.Assistant.MaxConcurrentQueries,
			}),
			Sink: auditRepo,
		})
	} else {
		logger.Warn("ai generation disabled, assistant endpoint will return 501")
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("api server stopped")
}
