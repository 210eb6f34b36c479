package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hszk-dev/vidingest/internal/app"
	"github.com/hszk-dev/vidingest/internal/config"
)

// interruptGrace bounds the wait for handlers to return once in-flight work is cancelled.
const interruptGrace = 10 * time.Second

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

	if cfg.Drivers.Queue == config.DriverLocal {
		return fmt.Errorf("QUEUE_DRIVER=local runs the pipeline inside the api binary; the worker needs rabbitmq")
	}

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("failed to close connections", slog.String("error", err.Error()))
		}
	}()

	orch, err := infra.NewOrchestrator(ctx)
	if err != nil {
		return err
	}

	janitor, err := infra.NewJanitor()
	if err != nil {
		return err
	}
	janitor.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("starting worker")
		if err := infra.RunPipeline(ctx, workCtx, orch); err != nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		<-janitor.Stop().Done()
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop consuming new tasks, then wait for in-flight work.
	cancel()
	janitorDone := janitor.Stop()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		// Interrupted tasks are requeued and picked up by the next worker.
		logger.Warn("shutdown timeout exceeded, interrupting in-flight tasks")
		cancelWork()
		select {
		case <-done:
		case <-time.After(interruptGrace):
		}
	}

	select {
	case <-janitorDone.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info("worker stopped")
	return nil
}
