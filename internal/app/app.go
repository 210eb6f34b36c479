// Package app wires configuration to infrastructure for the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/vidingest/internal/api/handler"
	"github.com/hszk-dev/vidingest/internal/config"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/infrastructure/bus"
	"github.com/hszk-dev/vidingest/internal/infrastructure/cache"
	"github.com/hszk-dev/vidingest/internal/infrastructure/failures"
	"github.com/hszk-dev/vidingest/internal/infrastructure/memory"
	"github.com/hszk-dev/vidingest/internal/infrastructure/postgres"
	"github.com/hszk-dev/vidingest/internal/infrastructure/queue"
	"github.com/hszk-dev/vidingest/internal/infrastructure/storage"
	"github.com/hszk-dev/vidingest/internal/transcoder"
	"github.com/hszk-dev/vidingest/internal/upload"
	"github.com/hszk-dev/vidingest/internal/usecase"
)

// localQueueBuffer is the per-kind buffer of the in-process queue.
const localQueueBuffer = 64

// Infra holds the connections shared by both binaries.
type Infra struct {
	Uploads *upload.Manager
	Queue   repository.MessageQueue
	// Checks are the dependency probes served on /health.
	Checks map[string]handler.Check

	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// Open connects the session store, progress tracker and message queue
// selected by cfg.Drivers.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Infra, err error) {
	infra := &Infra{
		Checks: make(map[string]handler.Check),
		cfg:    cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			_ = infra.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Upload.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}

	var sessions repository.SessionRepository
	switch cfg.Drivers.SessionStore {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultClientConfig(cfg.Database.DSN())
		pgCfg.Migrate = cfg.Database.Migrate
		pgClient, err := postgres.NewClient(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		infra.onClose(func() error { pgClient.Close(); return nil })
		infra.Checks["postgres"] = pgClient.Ping
		sessions = pgClient.Sessions()
		logger.Info("connected to PostgreSQL")
	default:
		sessions = memory.NewSessionRepository()
		logger.Warn("using in-memory session store")
	}

	var progress repository.ProgressTracker
	switch cfg.Drivers.ProgressStore {
	case config.DriverRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		infra.onClose(redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		tracker := cache.NewRedisProgressTracker(redisClient, cfg.Upload.ProgressTTL)
		infra.Checks["redis"] = tracker.Ping
		progress = tracker
		logger.Info("connected to Redis")
	default:
		progress = memory.NewProgressTracker(cfg.Upload.ProgressTTL)
		logger.Warn("using in-memory progress tracker")
	}

	switch cfg.Drivers.Queue {
	case config.DriverRabbitMQ:
		qCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
		qCfg.AssembleQueue = cfg.RabbitMQ.AssembleQueue
		qCfg.ConvertQueue = cfg.RabbitMQ.ConvertQueue
		qCfg.Prefetch = cfg.RabbitMQ.Prefetch
		qCfg.RetryDelay = cfg.RabbitMQ.RetryDelay
		client, err := queue.NewClient(ctx, qCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		infra.onClose(client.Close)
		infra.Queue = client
		logger.Info("connected to RabbitMQ")
	default:
		local := queue.NewLocal(localQueueBuffer, cfg.RabbitMQ.RetryDelay)
		infra.onClose(local.Close)
		infra.Queue = local
		logger.Warn("using in-process task queue")
	}

	infra.Uploads = upload.NewManager(cfg.Upload.Root, sessions, progress, logger)
	return infra, nil
}

// InProcessQueue reports whether tasks never leave this process, in which
// case the api binary must run the pipeline itself.
func (i *Infra) InProcessQueue() bool {
	return i.cfg.Drivers.Queue == config.DriverLocal
}

// NewUploadService builds the request-facing upload service.
func (i *Infra) NewUploadService() usecase.UploadService {
	return usecase.NewUploadService(i.Uploads, i.Queue, usecase.UploadServiceConfig{
		SettleDelay: i.cfg.Pipeline.SettleDelay,
	}, i.logger)
}

// NewOrchestrator connects object storage, the result bus and the failure
// store, and builds the conversion orchestrator.
func (i *Infra) NewOrchestrator(ctx context.Context) (*usecase.ConversionOrchestrator, error) {
	cfg := i.cfg

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	assets, err := storage.NewAssetStore(ctx, storage.ClientConfig{
		Endpoint:       cfg.MinIO.Endpoint,
		PublicEndpoint: cfg.MinIO.PublicEndpoint,
		AccessKey:      cfg.MinIO.AccessKey,
		SecretKey:      cfg.MinIO.SecretKey,
		Bucket:         cfg.MinIO.Bucket,
		UseSSL:         cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	i.Checks["minio"] = assets.Ping
	i.logger.Info("connected to MinIO")

	var results repository.ResultPublisher
	if cfg.NATS.URL != "" {
		publisher, err := bus.Connect(bus.ClientConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
		if err != nil {
			return nil, err
		}
		i.onClose(publisher.Close)
		results = publisher
		i.logger.Info("connected to NATS")
	} else {
		results = bus.NewLogPublisher(i.logger)
		i.logger.Warn("NATS_URL not set, conversion results are only logged")
	}

	var recorder repository.FailureRecorder
	if cfg.Failures.Path != "" {
		store, err := failures.Open(cfg.Failures.Path)
		if err != nil {
			return nil, err
		}
		i.onClose(store.Close)
		recorder = store
	}

	engine := transcoder.NewFFmpegEngine(transcoder.FFmpegConfig{
		FFmpegPath:  cfg.Worker.FFmpegPath,
		FFprobePath: cfg.Worker.FFprobePath,
	})

	return usecase.NewConversionOrchestrator(i.Uploads, i.Queue, assets, engine, results, recorder, usecase.OrchestratorConfig{
		ConvertDelay:    cfg.Pipeline.ConvertDelay,
		AssembleTimeout: cfg.Pipeline.AssembleTimeout,
		EncodeTimeout:   cfg.Pipeline.EncodeTimeout,
		MaxAttempts:     cfg.Worker.MaxAttempts,
		WorkDir:         cfg.Worker.TempDir,
		URLExpiry:       cfg.Pipeline.URLExpiry,
		EncoderPreset:   cfg.Worker.EncoderPreset,
		WatermarkDir:    cfg.Pipeline.WatermarkDir,
	}, i.logger), nil
}

// NewJanitor builds the sweeper for expired uploads.
func (i *Infra) NewJanitor() (*upload.Janitor, error) {
	return upload.NewJanitor(i.Uploads, i.cfg.Upload.SessionMaxAge, i.cfg.Upload.JanitorSchedule, i.logger)
}

// RunPipeline consumes assemble and convert tasks until stop is cancelled.
// Handlers run on work, so in-flight tasks keep going after stop until the
// caller cancels work; an interrupted task is redelivered.
func (i *Infra) RunPipeline(stop, work context.Context, orch *usecase.ConversionOrchestrator) error {
	g, stop := errgroup.WithContext(stop)
	g.Go(func() error {
		i.logger.Info("consuming assemble tasks")
		return i.Queue.Consume(stop, repository.TaskAssemble, func(_ context.Context, t repository.PipelineTask) error {
			return orch.HandleAssemble(work, t)
		})
	})
	g.Go(func() error {
		i.logger.Info("consuming convert tasks")
		return i.Queue.Consume(stop, repository.TaskConvert, func(_ context.Context, t repository.PipelineTask) error {
			return orch.HandleConvert(work, t)
		})
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
		return nil
	}
	return err
}

// Close releases every connection in reverse order of opening.
func (i *Infra) Close() error {
	var errs []error
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}

func (i *Infra) onClose(fn func() error) {
	i.closers = append(i.closers, fn)
}
