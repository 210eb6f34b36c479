package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/transcoder"
)

// publishedTask is a task captured by mockMessageQueue.
type publishedTask struct {
	task  repository.PipelineTask
	delay time.Duration
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	mu        sync.Mutex
	published []publishedTask

	publishFn func(ctx context.Context, task repository.PipelineTask, delay time.Duration) error
	consumeFn func(ctx context.Context, kind repository.TaskKind, handler repository.TaskHandler) error
	closeFn   func() error
}

func (m *mockMessageQueue) Publish(ctx context.Context, task repository.PipelineTask, delay time.Duration) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, task, delay); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedTask{task: task, delay: delay})
	return nil
}

func (m *mockMessageQueue) Consume(ctx context.Context, kind repository.TaskKind, handler repository.TaskHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, kind, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

func (m *mockMessageQueue) tasks(kind repository.TaskKind) []publishedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedTask
	for _, p := range m.published {
		if p.task.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// mockAssetStorage provides a configurable mock for AssetStorage.
type mockAssetStorage struct {
	putAssetFn func(ctx context.Context, key model.AssetKey, reader io.Reader, size int64) error
	assetURLFn func(ctx context.Context, key model.AssetKey, expiry time.Duration) (string, error)
}

func (m *mockAssetStorage) PutAsset(ctx context.Context, key model.AssetKey, reader io.Reader, size int64) error {
	if m.putAssetFn != nil {
		return m.putAssetFn(ctx, key, reader, size)
	}
	_, err := io.Copy(io.Discard, reader)
	return err
}

func (m *mockAssetStorage) AssetURL(ctx context.Context, key model.AssetKey, expiry time.Duration) (string, error) {
	if m.assetURLFn != nil {
		return m.assetURLFn(ctx, key, expiry)
	}
	return "http://example.com/" + key.String(), nil
}

// mockResultPublisher records published conversion events.
type mockResultPublisher struct {
	mu        sync.Mutex
	events    []repository.ConversionEvent
	publishFn func(ctx context.Context, event repository.ConversionEvent) error
}

func (m *mockResultPublisher) Publish(ctx context.Context, event repository.ConversionEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, event)
	}
	return nil
}

func (m *mockResultPublisher) last() (repository.ConversionEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return repository.ConversionEvent{}, false
	}
	return m.events[len(m.events)-1], true
}

// mockFailureRecorder keeps failure records in a map.
type mockFailureRecorder struct {
	mu      sync.Mutex
	records map[string]repository.FailureRecord
}

func (m *mockFailureRecorder) Record(_ context.Context, record repository.FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]repository.FailureRecord)
	}
	m.records[record.SessionID] = record
	return nil
}

func (m *mockFailureRecorder) get(sessionID string) (repository.FailureRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID]
	return r, ok
}

// mockEngine provides a configurable mock for transcoder.Engine.
type mockEngine struct {
	probeFn func(ctx context.Context, path string) (*transcoder.MediaInfo, error)
	runFn   func(ctx context.Context, cmd *transcoder.Command) error
}

func (m *mockEngine) Probe(ctx context.Context, path string) (*transcoder.MediaInfo, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return &transcoder.MediaInfo{
		Dimension:  model.MustDimension(1920, 1080),
		Duration:   10,
		FrameRate:  30,
		VideoCodec: "h264",
		AudioCodec: "aac",
	}, nil
}

func (m *mockEngine) Run(ctx context.Context, cmd *transcoder.Command) error {
	if m.runFn != nil {
		return m.runFn(ctx, cmd)
	}
	return nil
}

var (
	_ repository.MessageQueue    = (*mockMessageQueue)(nil)
	_ repository.AssetStorage    = (*mockAssetStorage)(nil)
	_ repository.ResultPublisher = (*mockResultPublisher)(nil)
	_ repository.FailureRecorder = (*mockFailureRecorder)(nil)
	_ transcoder.Engine          = (*mockEngine)(nil)
)
