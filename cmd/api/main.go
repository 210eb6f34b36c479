package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/vidingest/internal/api/handler"
	"github.com/hszk-dev/vidingest/internal/api/middleware"
	"github.com/hszk-dev/vidingest/internal/app"
	"github.com/hszk-dev/vidingest/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("failed to close connections", slog.String("error", err.Error()))
		}
	}()

	errCh := make(chan error, 2)

	// With the in-process queue nothing else would consume the tasks.
	pipelineDone := make(chan struct{})
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	if infra.InProcessQueue() {
		orch, err := infra.NewOrchestrator(ctx)
		if err != nil {
			return err
		}
		janitor, err := infra.NewJanitor()
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()

		go func() {
			defer close(pipelineDone)
			if err := infra.RunPipeline(ctx, workCtx, orch); err != nil {
				errCh <- fmt.Errorf("pipeline error: %w", err)
			}
		}()
	} else {
		close(pipelineDone)
	}

	r := setupRouter(infra, cfg, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	cancel()
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, interrupting pipeline tasks")
		cancelWork()
		<-pipelineDone
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(infra *app.Infra, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tenant)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.NewHealthHandler(infra.Checks, logger).Health)
	r.Handle("/metrics", promhttp.Handler())

	uploads := handler.NewUploadHandler(infra.NewUploadService(), cfg.Server.MaxChunkBytes, logger)
	r.Route("/v1", uploads.Routes)

	return r
}
