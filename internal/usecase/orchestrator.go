package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/encoding"
	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidingest/internal/pipeline"
	"github.com/hszk-dev/vidingest/internal/transcoder"
	"github.com/hszk-dev/vidingest/internal/upload"
)

const (
	// DefaultMaxAttempts is the number of assembly attempts before a session is failed.
	DefaultMaxAttempts = 3

	// DefaultWatermarkScale is the watermark width relative to the frame width.
	DefaultWatermarkScale = 0.15
)

// OrchestratorConfig holds configuration for ConversionOrchestrator.
type OrchestratorConfig struct {
	// ConvertDelay separates the assemble and convert stages.
	ConvertDelay time.Duration
	// AssembleTimeout bounds one assembly attempt.
	AssembleTimeout time.Duration
	// EncodeTimeout bounds one encoder run.
	EncodeTimeout time.Duration
	// MaxAttempts is the total number of attempts for retryable failures.
	MaxAttempts int
	// WorkDir is the base directory for per-session scratch files.
	WorkDir string
	// URLExpiry is the lifetime of the presigned asset URL in result events.
	URLExpiry time.Duration
	// EncoderPreset is passed to x264 based formats.
	EncoderPreset string
	// WatermarkDir holds the images a conversion may overlay. Conversions
	// naming a watermark fail when it is empty.
	WatermarkDir string
}

// DefaultOrchestratorConfig returns the default configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ConvertDelay:    5 * time.Second,
		AssembleTimeout: 10 * time.Minute,
		EncodeTimeout:   30 * time.Minute,
		MaxAttempts:     DefaultMaxAttempts,
		WorkDir:         os.TempDir(),
		URLExpiry:       time.Hour,
		EncoderPreset:   "fast",
	}
}

// ConversionOrchestrator runs the two pipeline stages: assembling an upload
// and converting the assembled source into the requested asset.
type ConversionOrchestrator struct {
	uploads  *upload.Manager
	queue    repository.MessageQueue
	storage  repository.AssetStorage
	engine   transcoder.Engine
	results  repository.ResultPublisher
	failures repository.FailureRecorder
	logger   *slog.Logger
	sfGroup  singleflight.Group

	cfg OrchestratorConfig
	now func() time.Time
}

// NewConversionOrchestrator creates a ConversionOrchestrator. failures may be nil.
func NewConversionOrchestrator(
	uploads *upload.Manager,
	queue repository.MessageQueue,
	storage repository.AssetStorage,
	engine transcoder.Engine,
	results repository.ResultPublisher,
	failures repository.FailureRecorder,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *ConversionOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &ConversionOrchestrator{
		uploads:  uploads,
		queue:    queue,
		storage:  storage,
		engine:   engine,
		results:  results,
		failures: failures,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// HandleAssemble processes an assemble task. Concurrent deliveries for the
// same session share one attempt.
// Returns nil on success or terminal failure, and an error for transient
// failures that should be retried. A cancelled ctx interrupts the attempt
// without failing the session; the error wraps context.Canceled so the queue
// redelivers the task.
func (o *ConversionOrchestrator) HandleAssemble(ctx context.Context, task repository.PipelineTask) error {
	_, err, shared := o.sfGroup.Do(task.SessionID, func() (any, error) {
		return nil, o.assemble(ctx, task)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	return err
}

func (o *ConversionOrchestrator) assemble(ctx context.Context, task repository.PipelineTask) error {
	attempt := task.RetryCount + 1
	log := o.taskLogger(task)

	// Redelivered past the limit, e.g. after a worker crash.
	if task.RetryCount >= o.cfg.MaxAttempts {
		o.fail(ctx, task, fmt.Errorf("assembly abandoned after %d attempts", task.RetryCount), task.RetryCount)
		return nil
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.AssembleTimeout)
	sourcePath, err := o.uploads.AssembleFile(actx, task.SessionID, task.FileName, task.TotalChunks)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("assembly interrupted", slog.Int("attempt", attempt))
			return fmt.Errorf("assemble session %s: %w", task.SessionID, err)
		}
		if isTerminal(err) || attempt >= o.cfg.MaxAttempts {
			o.fail(ctx, task, err, attempt)
			return nil
		}
		log.Warn("assembly attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("assemble session %s: %w", task.SessionID, err)
	}

	if err := o.uploads.CleanupSession(ctx, task.SessionID); err != nil {
		log.Warn("failed to remove session chunks", slog.String("error", err.Error()))
	}

	next := task
	next.Kind = repository.TaskConvert
	next.SourcePath = sourcePath
	next.RetryCount = 0
	if err := o.queue.Publish(ctx, next, o.cfg.ConvertDelay); err != nil {
		err = fmt.Errorf("%w: publish convert task: %w", model.ErrStorage, err)
		if attempt >= o.cfg.MaxAttempts && !errors.Is(err, context.Canceled) {
			o.fail(ctx, task, err, attempt)
			return nil
		}
		return err
	}

	log.Info("conversion scheduled",
		slog.String("source_path", sourcePath),
		slog.Duration("delay", o.cfg.ConvertDelay),
	)
	return nil
}

// HandleConvert processes a convert task: it runs the operation pipeline on
// the assembled source, stores the asset and publishes the result.
// Returns nil on success or terminal failure, and an error for transient
// storage failures that should be retried. Cancelling ctx stops the encoder;
// the session is left as is and the returned error wraps context.Canceled so
// the task is redelivered.
func (o *ConversionOrchestrator) HandleConvert(ctx context.Context, task repository.PipelineTask) error {
	attempt := task.RetryCount + 1
	start := o.now()

	event, err := o.convert(ctx, task)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			o.taskLogger(task).Warn("conversion interrupted", slog.Int("attempt", attempt))
			metrics.ConversionsTotal.WithLabelValues(task.Spec.Format, metrics.ResultRetry).Inc()
			return fmt.Errorf("convert session %s: %w", task.SessionID, err)
		}
		if errors.Is(err, model.ErrStorage) && attempt < o.cfg.MaxAttempts {
			o.taskLogger(task).Warn("conversion attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			metrics.ConversionsTotal.WithLabelValues(task.Spec.Format, metrics.ResultRetry).Inc()
			return fmt.Errorf("convert session %s: %w", task.SessionID, err)
		}
		metrics.ConversionsTotal.WithLabelValues(task.Spec.Format, metrics.ResultFailed).Inc()
		o.fail(ctx, task, err, attempt)
		return nil
	}

	metrics.ConversionsTotal.WithLabelValues(task.Spec.Format, metrics.ResultSuccess).Inc()
	metrics.ConversionDuration.WithLabelValues(task.Spec.Format).Observe(o.now().Sub(start).Seconds())

	if err := o.results.Publish(ctx, *event); err != nil {
		o.taskLogger(task).Error("failed to publish conversion result",
			slog.String("asset_key", event.AssetKey),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (o *ConversionOrchestrator) convert(ctx context.Context, task repository.PipelineTask) (*repository.ConversionEvent, error) {
	if task.SourcePath == "" {
		return nil, fmt.Errorf("%w: source path is required", model.ErrConfiguration)
	}
	spec := task.Spec
	name := ConversionName(spec)

	format, err := encoding.LookupFormat(spec.Format)
	if err != nil {
		return nil, err
	}

	o.report(ctx, model.NewProgress(task.SessionID, model.ProgressConverting, model.PhaseCompleted.String(), 0, map[string]any{
		"conversion": name,
	}))

	workDir := filepath.Join(o.cfg.WorkDir, "vidingest", task.SessionID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create work directory: %w", model.ErrStorage, err)
	}
	defer os.RemoveAll(workDir)

	info, err := o.engine.Probe(ctx, task.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}

	watermarkPath := ""
	if w := spec.Watermark; w != nil && w.Image != "" {
		frame, err := pipeline.ResolveDimension(info.Dimension, spec)
		if err != nil {
			return nil, err
		}
		if spec.Crop != nil {
			frame = spec.Crop.Region()
		}
		scale := w.Scale
		if scale == 0 {
			scale = DefaultWatermarkScale
		}
		watermarkPath, _, err = transcoder.PrepareWatermark(o.cfg.WatermarkDir, w.Image, workDir, int(float64(frame.Width)*scale))
		if err != nil {
			return nil, err
		}
	}

	p, err := pipeline.Build(spec, watermarkPath, o.logger)
	if err != nil {
		return nil, err
	}

	assetName := uuid.NewString() + "." + format.Extension
	outputPath := filepath.Join(workDir, assetName)
	cmd, report, err := p.Run(transcoder.NewCommand(task.SourcePath, outputPath, info.Dimension))
	if err != nil {
		return nil, err
	}
	kbps := pipeline.ApplyEncoding(cmd, format, spec, o.cfg.EncoderPreset)

	ectx, cancel := context.WithTimeout(ctx, o.cfg.EncodeTimeout)
	err = o.engine.Run(ectx, cmd)
	cancel()
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: encoder produced no output: %w", model.ErrConversion, err)
	}

	key, err := model.NewAssetKey(task.TenantID, task.DocumentID, assetName)
	if err != nil {
		return nil, err
	}
	if err := o.uploadAsset(ctx, outputPath, key, stat.Size()); err != nil {
		return nil, err
	}

	url, err := o.storage.AssetURL(ctx, key, o.cfg.URLExpiry)
	if err != nil {
		o.taskLogger(task).Warn("failed to presign asset URL", slog.String("error", err.Error()))
		url = ""
	}

	result := model.ResolutionResult{
		Conversion: name,
		OutputPath: key.String(),
		Status:     model.ResultSuccess,
		Size:       stat.Size(),
	}
	o.report(ctx, model.NewProgress(task.SessionID, model.ProgressCompleted, model.PhaseCompleted.String(), 100, map[string]any{
		"conversion":   name,
		"asset_key":    key.String(),
		"size":         stat.Size(),
		"bitrate_kbps": kbps,
		"dimension":    cmd.Size().String(),
		"operations":   report.ExecutedNames(),
	}))

	o.taskLogger(task).Info("conversion completed",
		slog.String("asset_key", key.String()),
		slog.Int64("size", stat.Size()),
		slog.Int("bitrate_kbps", kbps),
	)

	return &repository.ConversionEvent{
		SessionID:  task.SessionID,
		TenantID:   task.TenantID,
		DocumentID: task.DocumentID,
		Result:     result,
		AssetKey:   key.String(),
		URL:        url,
		OccurredAt: o.now(),
	}, nil
}

func (o *ConversionOrchestrator) uploadAsset(ctx context.Context, localPath string, key model.AssetKey, size int64) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open asset: %w", model.ErrStorage, err)
	}
	defer func() { _ = f.Close() }()

	if err := o.storage.PutAsset(ctx, key, f, size); err != nil {
		return fmt.Errorf("%w: upload asset: %w", model.ErrStorage, err)
	}
	return nil
}

// fail marks the session failed, records the failure and publishes a failed
// result. Errors along the way are logged; the task is always acknowledged.
func (o *ConversionOrchestrator) fail(ctx context.Context, task repository.PipelineTask, cause error, attempts int) {
	log := o.taskLogger(task)
	msg := cause.Error()
	log.Error("session failed",
		slog.String("stage", string(task.Kind)),
		slog.Int("attempts", attempts),
		slog.String("error", msg),
	)

	if err := o.uploads.MarkFailed(ctx, task.SessionID, msg); err != nil {
		log.Error("failed to mark session as failed", slog.String("error", err.Error()))
	}

	if o.failures != nil {
		record := repository.FailureRecord{
			SessionID:  task.SessionID,
			TenantID:   task.TenantID,
			DocumentID: task.DocumentID,
			Stage:      task.Kind,
			Error:      msg,
			Attempts:   attempts,
			FailedAt:   o.now(),
		}
		if err := o.failures.Record(ctx, record); err != nil {
			log.Error("failed to record failure", slog.String("error", err.Error()))
		}
	}

	event := repository.ConversionEvent{
		SessionID:  task.SessionID,
		TenantID:   task.TenantID,
		DocumentID: task.DocumentID,
		Result:     model.FailedResult(ConversionName(task.Spec), cause),
		OccurredAt: o.now(),
	}
	if err := o.results.Publish(ctx, event); err != nil {
		log.Error("failed to publish failed result", slog.String("error", err.Error()))
	}
}

func (o *ConversionOrchestrator) report(ctx context.Context, p model.Progress) {
	if err := o.uploads.Report(ctx, p); err != nil {
		o.logger.Warn("failed to record progress",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *ConversionOrchestrator) taskLogger(task repository.PipelineTask) *slog.Logger {
	return o.logger.With(
		slog.String("session_id", task.SessionID),
		slog.String("tenant_id", task.TenantID),
		slog.String("document_id", task.DocumentID),
	)
}

// isTerminal reports whether retrying cannot change the outcome.
func isTerminal(err error) bool {
	return errors.Is(err, model.ErrAssembly) ||
		errors.Is(err, model.ErrConfiguration) ||
		errors.Is(err, model.ErrInvalidArgument) ||
		errors.Is(err, repository.ErrSessionNotFound)
}

// ConversionName describes a spec as format/quality/size, e.g. "mp4/high/1280x720".
func ConversionName(spec model.ConversionSpec) string {
	quality := encoding.ParseQuality(spec.Quality)
	size := "source"
	if spec.Dimension != nil {
		size = spec.Dimension.String()
	}
	return spec.Format + "/" + string(quality) + "/" + size
}
