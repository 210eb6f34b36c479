package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hszk-dev/vidingest/internal/domain/repository"
)

// ClientConfig holds configuration for the NATS publisher.
type ClientConfig struct {
	URL     string
	Subject string // Subject prefix; events go to "<Subject>.<status>"
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:     url,
		Subject: "vidingest.conversions",
	}
}

// natsConn abstracts nats.Conn for testability.
type natsConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher implements repository.ResultPublisher over NATS.
type Publisher struct {
	nc      natsConn
	subject string
}

// Compile-time verification that Publisher implements repository.ResultPublisher.
var _ repository.ResultPublisher = (*Publisher)(nil)

// Connect dials NATS and reconnects forever on connection loss.
func Connect(cfg ClientConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newPublisher(nc, cfg.Subject), nil
}

func newPublisher(nc natsConn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Publish sends event as JSON and waits for the server to acknowledge the flush.
// The session id is set as Nats-Msg-Id so JetStream streams can deduplicate retries.
func (p *Publisher) Publish(ctx context.Context, event repository.ConversionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(p.subjectFor(event))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.SessionID)
	msg.Header.Set("Tenant-Id", event.TenantID)

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

func (p *Publisher) subjectFor(event repository.ConversionEvent) string {
	return p.subject + "." + string(event.Result.Status)
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger *slog.Logger
}

// Compile-time verification that LogPublisher implements repository.ResultPublisher.
var _ repository.ResultPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event repository.ConversionEvent) error {
	p.logger.InfoContext(ctx, "conversion result",
		slog.String("session_id", event.SessionID),
		slog.String("tenant_id", event.TenantID),
		slog.String("document_id", event.DocumentID),
		slog.String("status", string(event.Result.Status)),
		slog.String("asset_key", event.AssetKey),
		slog.String("error", event.Result.Error),
	)
	return nil
}
