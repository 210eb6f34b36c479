package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage and transport drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverMemory   = "memory"
	DriverLocal    = "local"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	Drivers  DriverConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Failures FailuresConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxChunkBytes   int64         `envconfig:"API_MAX_CHUNK_BYTES" default:"67108864"`
}

type WorkerConfig struct {
	TempDir         string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/vidingest"`
	MaxAttempts     int           `envconfig:"WORKER_MAX_ATTEMPTS" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	FFmpegPath      string        `envconfig:"WORKER_FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath     string        `envconfig:"WORKER_FFPROBE_PATH" default:"ffprobe"`
	EncoderPreset   string        `envconfig:"WORKER_ENCODER_PRESET" default:"fast"`
}

type UploadConfig struct {
	// Root is shared by the API (chunks) and the worker (assembly).
	Root            string        `envconfig:"UPLOAD_ROOT" default:"/var/lib/vidingest"`
	SessionMaxAge   time.Duration `envconfig:"UPLOAD_SESSION_MAX_AGE" default:"24h"`
	JanitorSchedule string        `envconfig:"UPLOAD_JANITOR_SCHEDULE" default:"0 */5 * * * *"`
	ProgressTTL     time.Duration `envconfig:"UPLOAD_PROGRESS_TTL" default:"72h"`
}

type PipelineConfig struct {
	SettleDelay     time.Duration `envconfig:"PIPELINE_SETTLE_DELAY" default:"2s"`
	ConvertDelay    time.Duration `envconfig:"PIPELINE_CONVERT_DELAY" default:"5s"`
	AssembleTimeout time.Duration `envconfig:"PIPELINE_ASSEMBLE_TIMEOUT" default:"10m"`
	EncodeTimeout   time.Duration `envconfig:"PIPELINE_ENCODE_TIMEOUT" default:"30m"`
	URLExpiry       time.Duration `envconfig:"PIPELINE_URL_EXPIRY" default:"1h"`
	// WatermarkDir holds the images conversions may overlay by relative name.
	WatermarkDir string `envconfig:"PIPELINE_WATERMARK_DIR"`
}

type DriverConfig struct {
	SessionStore  string `envconfig:"SESSION_STORE" default:"postgres"`
	ProgressStore string `envconfig:"PROGRESS_STORE" default:"redis"`
	Queue         string `envconfig:"QUEUE_DRIVER" default:"rabbitmq"`
}

func (c DriverConfig) validate() error {
	for _, d := range []struct {
		name, value string
		allowed     []string
	}{
		{"SESSION_STORE", c.SessionStore, []string{DriverPostgres, DriverMemory}},
		{"PROGRESS_STORE", c.ProgressStore, []string{DriverRedis, DriverMemory}},
		{"QUEUE_DRIVER", c.Queue, []string{DriverRabbitMQ, DriverLocal}},
	} {
		ok := false
		for _, a := range d.allowed {
			ok = ok || d.value == a
		}
		if !ok {
			return fmt.Errorf("%s=%q: must be one of %v", d.name, d.value, d.allowed)
		}
	}
	return nil
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidingest"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidingest"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidingest"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint       string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT"`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"assets"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host          string        `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port          int           `envconfig:"RABBITMQ_PORT" default:"5672"`
	User          string        `envconfig:"RABBITMQ_USER" default:"vidingest"`
	Password      string        `envconfig:"RABBITMQ_PASSWORD" default:"vidingest"`
	VHost         string        `envconfig:"RABBITMQ_VHOST" default:"/"`
	AssembleQueue string        `envconfig:"RABBITMQ_ASSEMBLE_QUEUE" default:"assemble_tasks"`
	ConvertQueue  string        `envconfig:"RABBITMQ_CONVERT_QUEUE" default:"convert_tasks"`
	Prefetch      int           `envconfig:"RABBITMQ_PREFETCH" default:"1"`
	RetryDelay    time.Duration `envconfig:"RABBITMQ_RETRY_DELAY" default:"30s"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type NATSConfig struct {
	// URL is empty to log results instead of publishing them.
	URL     string `envconfig:"NATS_URL"`
	Subject string `envconfig:"NATS_SUBJECT" default:"vidingest.conversions"`
}

type FailuresConfig struct {
	// Path is the Pebble directory; empty disables failure records.
	Path string `envconfig:"FAILURES_PATH" default:"/var/lib/vidingest/failures"`
}

// Load reads the configuration from the environment. Variables from the
// given .env files (default ".env") are applied first without overriding the
// environment; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Drivers.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
