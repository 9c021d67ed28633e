package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Pipeline PipelineConfig
	Catalog  CatalogConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type WorkerConfig struct {
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	// MetricsPort serves /metrics and /health; 0 disables the listener.
	MetricsPort int `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

type PipelineConfig struct {
	OutputRoot       string        `envconfig:"PIPELINE_OUTPUT_ROOT" default:"data"`
	PoolSize         int           `envconfig:"PIPELINE_POOL_SIZE" default:"2"`
	EncodeTimeout    time.Duration `envconfig:"PIPELINE_ENCODE_TIMEOUT" default:"0s"`
	FFmpegPath       string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath      string        `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	KillGrace        time.Duration `envconfig:"FFMPEG_KILL_GRACE" default:"5s"`
	KeepFailedOutput bool          `envconfig:"PIPELINE_KEEP_FAILED_OUTPUT" default:"false"`
}

// Catalog drivers.
const (
	CatalogDriverJSON     = "json"
	CatalogDriverPostgres = "postgres"
)

type CatalogConfig struct {
	Driver string `envconfig:"CATALOG_DRIVER" default:"json"`
	// Path is the JSON catalog file, used by the json driver.
	Path string `envconfig:"CATALOG_PATH" default:"data/db.json"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"abrpack"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"abrpack"`
	DBName   string `envconfig:"POSTGRES_DB" default:"abrpack"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	MaxConns        int32         `envconfig:"POSTGRES_MAX_CONNS" default:"4"`
	MinConns        int32         `envconfig:"POSTGRES_MIN_CONNS" default:"0"`
	MaxConnIdleTime time.Duration `envconfig:"POSTGRES_MAX_CONN_IDLE" default:"5m"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Enabled   bool   `envconfig:"MINIO_ENABLED" default:"false"`
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"packages"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Enabled  bool   `envconfig:"RABBITMQ_ENABLED" default:"true"`
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"abrpack"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"abrpack"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"5m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// SlogLevel parses Level, falling back to info for unknown values.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Catalog.Driver = strings.ToLower(strings.TrimSpace(c.Catalog.Driver))
	switch c.Catalog.Driver {
	case CatalogDriverJSON, CatalogDriverPostgres:
	default:
		return fmt.Errorf("invalid CATALOG_DRIVER %q: want %s or %s", c.Catalog.Driver, CatalogDriverJSON, CatalogDriverPostgres)
	}
	if c.Pipeline.OutputRoot == "" {
		return errors.New("PIPELINE_OUTPUT_ROOT must not be empty")
	}
	if c.Pipeline.EncodeTimeout < 0 {
		return errors.New("PIPELINE_ENCODE_TIMEOUT must not be negative")
	}
	return nil
}
