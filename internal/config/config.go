package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig
	Log       LogConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	History   HistoryConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
}

type APIConfig struct {
	Addr         string
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type QueueConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

func (q QueueConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	// PoolSize is the number of goroutines running image pipelines.
	PoolSize int
	// Concurrency is the number of queued tasks the asynq server pulls at once.
	Concurrency int
	MetricsAddr string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

type DatabaseConfig struct {
	DSN string
}

type HistoryConfig struct {
	Capacity int
}

type RateLimitConfig struct {
	Capacity int
	Window   time.Duration
}

type WebhookConfig struct {
	SigningSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// binding ties a config key to its environment variable and default.
type binding struct {
	key      string
	env      string
	fallback any
}

func bindings() []binding {
	return []binding{
		{"api.addr", "PIXELSHRINK_API_ADDR", "127.0.0.1:8765"},
		{"api.write_timeout", "PIXELSHRINK_API_WRITE_TIMEOUT", "2m"},
		{"log.level", "LOG_LEVEL", "info"},
		{"log.format", "LOG_FORMAT", "console"},
		{"queue.enabled", "QUEUE_ENABLED", false},
		{"queue.redis_addr", "REDIS_ADDR", "localhost:6379"},
		{"queue.redis_password", "REDIS_PASSWORD", ""},
		{"queue.redis_db", "REDIS_DB", 0},
		{"queue.name", "ASYNC_QUEUE", "default"},
		{"worker.pool_size", "WORKER_POOL_SIZE", runtime.NumCPU()},
		{"worker.concurrency", "WORKER_CONCURRENCY", max(2, runtime.NumCPU()/2)},
		{"worker.metrics_addr", "WORKER_METRICS_ADDR", "127.0.0.1:9102"},
		{"storage.endpoint", "MINIO_ENDPOINT", ""},
		{"storage.access_key", "MINIO_ACCESS_KEY", "minioadmin"},
		{"storage.secret_key", "MINIO_SECRET_KEY", "minioadmin"},
		{"storage.bucket", "MINIO_BUCKET", "pixelshrink-exports"},
		{"storage.use_ssl", "MINIO_USE_SSL", false},
		{"database.dsn", "POSTGRES_DSN", ""},
		{"history.capacity", "HISTORY_CAPACITY", 200},
		{"ratelimit.capacity", "RATE_LIMIT_CAPACITY", 0},
		{"ratelimit.window", "RATE_LIMIT_WINDOW", "1m"},
		{"webhook.signing_secret", "WEBHOOK_SIGNING_SECRET", ""},
		{"webhook.timeout", "WEBHOOK_TIMEOUT", "10s"},
		{"webhook.max_attempts", "WEBHOOK_MAX_ATTEMPTS", 3},
		{"tracing.service_name", "OTEL_SERVICE_NAME", "pixelshrink"},
		{"tracing.exporter", "OTEL_TRACES_EXPORTER", "none"},
		{"tracing.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", ""},
		{"tracing.otlp_insecure", "OTEL_EXPORTER_OTLP_INSECURE", true},
	}
}

// Load reads defaults, then an optional pixelshrink.toml (or the file named by
// PIXELSHRINK_CONFIG), then environment variables.
func Load() (Config, error) {
	v := viper.New()
	for _, b := range bindings() {
		v.SetDefault(b.key, b.fallback)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", b.env, err)
		}
	}

	if err := v.BindEnv("config_file", "PIXELSHRINK_CONFIG"); err != nil {
		return Config{}, fmt.Errorf("bind env PIXELSHRINK_CONFIG: %w", err)
	}
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("pixelshrink")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		API: APIConfig{
			Addr:         v.GetString("api.addr"),
			WriteTimeout: v.GetDuration("api.write_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Queue: QueueConfig{
			Enabled:       v.GetBool("queue.enabled"),
			RedisAddr:     v.GetString("queue.redis_addr"),
			RedisPassword: v.GetString("queue.redis_password"),
			RedisDB:       v.GetInt("queue.redis_db"),
			Name:          v.GetString("queue.name"),
		},
		Worker: WorkerConfig{
			PoolSize:    max(1, v.GetInt("worker.pool_size")),
			Concurrency: max(1, v.GetInt("worker.concurrency")),
			MetricsAddr: v.GetString("worker.metrics_addr"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Bucket:    v.GetString("storage.bucket"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		History: HistoryConfig{
			Capacity: v.GetInt("history.capacity"),
		},
		RateLimit: RateLimitConfig{
			Capacity: v.GetInt("ratelimit.capacity"),
			Window:   v.GetDuration("ratelimit.window"),
		},
		Webhook: WebhookConfig{
			SigningSecret: v.GetString("webhook.signing_secret"),
			Timeout:       v.GetDuration("webhook.timeout"),
			MaxAttempts:   v.GetInt("webhook.max_attempts"),
		},
		Tracing: TracingConfig{
			ServiceName:  v.GetString("tracing.service_name"),
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			OTLPInsecure: v.GetBool("tracing.otlp_insecure"),
		},
	}
}
