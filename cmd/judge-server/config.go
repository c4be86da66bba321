package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	"contestjudge/internal/judge/executor"
	judgerepo "contestjudge/internal/judge/repository"
	judgeservice "contestjudge/internal/judge/service"
	standingsservice "contestjudge/internal/standings/service"
	submitservice "contestjudge/internal/submit/service"
	"contestjudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultStatusTTL       = 24 * time.Hour
	defaultSourcePrefix    = "submissions"
	defaultConsumerWorkers = 4
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string                `yaml:"addr"`
	ReadTimeout  time.Duration         `yaml:"readTimeout"`
	WriteTimeout time.Duration         `yaml:"writeTimeout"`
	IdleTimeout  time.Duration         `yaml:"idleTimeout"`
	CORS         middleware.CORSConfig `yaml:"cors"`
}

// KafkaConfig holds Kafka settings. Without brokers the standings are fed
// in-process and no final status events are published.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	FinalTopic    string        `yaml:"finalTopic"`
	Concurrency   int           `yaml:"concurrency"`
	// ConsumerGroup for the standings consumer. Defaults to one group per host.
	ConsumerGroup string        `yaml:"consumerGroup"`
}

// MinIOSection holds the source archive settings. Without an endpoint sources
// are stored in the database.
type MinIOSection struct {
	storage.MinIOConfig `yaml:",inline"`
	Prefix              string `yaml:"prefix"`
}

// JudgeConfig holds judging settings.
type JudgeConfig struct {
	Dispatcher     judgeservice.DispatcherConfig `yaml:"dispatcher"`
	WatchdogFloor  time.Duration                 `yaml:"watchdogFloor"`
	WatchdogFactor int                           `yaml:"watchdogFactor"`
	MaxActive      int                           `yaml:"maxActive"`
	AcquireTimeout time.Duration                 `yaml:"acquireTimeout"`
	StatusTimeout  time.Duration                 `yaml:"statusTimeout"`
	HandlerTimeout time.Duration                 `yaml:"handlerTimeout"`
	StatusTTL      time.Duration                 `yaml:"statusTTL"`
}

// StandingsConfig holds leaderboard settings.
type StandingsConfig struct {
	PenaltyPerWrongAttempt *int64        `yaml:"penaltyPerWrongAttempt"`
	RankPolicy             string        `yaml:"rankPolicy"`
	SnapshotTimeout        time.Duration `yaml:"snapshotTimeout"`
}

// SubmitConfig holds submission intake settings.
type SubmitConfig struct {
	MaxCodeBytes   int                           `yaml:"maxCodeBytes"`
	IdempotencyTTL time.Duration                 `yaml:"idempotencyTTL"`
	RateLimit      submitservice.RateLimitConfig `yaml:"rateLimit"`
	Timeouts       submitservice.TimeoutConfig   `yaml:"timeouts"`
}

// CatalogConfig points at the YAML contest catalog. With a database the
// catalog seeds the contests tables; without one it is served from memory.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// AppConfig holds judge-server config.
type AppConfig struct {
	Server    ServerConfig          `yaml:"server"`
	Logger    logger.Config         `yaml:"logger"`
	Redis     cache.RedisConfig     `yaml:"redis"`
	Database  db.Config             `yaml:"database"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	MinIO     MinIOSection          `yaml:"minio"`
	Judge0    executor.Judge0Config `yaml:"judge0"`
	Judge     JudgeConfig           `yaml:"judge"`
	Standings StandingsConfig       `yaml:"standings"`
	Submit    SubmitConfig          `yaml:"submit"`
	Auth      middleware.AuthConfig `yaml:"auth"`
	Catalog   CatalogConfig         `yaml:"catalog"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Judge0.BaseURL == "" {
		return fmt.Errorf("judge0 baseURL is required")
	}
	if c.Database.DSN == "" && c.Catalog.Path == "" {
		return fmt.Errorf("either database dsn or catalog path is required")
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "", "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth jwtSecret is required in jwt mode")
		}
	case "header":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	switch standingsservice.RankPolicy(c.Standings.RankPolicy) {
	case "", standingsservice.TieOnScorePenalty, standingsservice.TieOnScorePenaltyTime:
	default:
		return fmt.Errorf("unknown rank policy %q", c.Standings.RankPolicy)
	}
	if p := c.Standings.PenaltyPerWrongAttempt; p != nil && *p < 0 {
		return fmt.Errorf("standings penaltyPerWrongAttempt must not be negative")
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	applyRedisDefaults(&c.Redis)
	if c.Server.Addr == "" {
		c.Server.Addr = defaultHTTPAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}
	if c.Judge.StatusTTL == 0 {
		c.Judge.StatusTTL = defaultStatusTTL
	}
	if c.Kafka.FinalTopic == "" {
		c.Kafka.FinalTopic = judgerepo.DefaultFinalStatusTopic
	}
	if c.Kafka.ConsumerGroup == "" {
		host, _ := os.Hostname()
		c.Kafka.ConsumerGroup = "contestjudge-standings-" + host
	}
	if c.Kafka.Concurrency <= 0 {
		c.Kafka.Concurrency = defaultConsumerWorkers
	}
	if c.MinIO.Prefix == "" {
		c.MinIO.Prefix = defaultSourcePrefix
	}
	if c.Standings.RankPolicy == "" {
		c.Standings.RankPolicy = string(standingsservice.TieOnScorePenalty)
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}

func (k KafkaConfig) enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (j JudgeConfig) toServiceConfig(exec executor.Executor, status judgeservice.StatusStore) judgeservice.Config {
	return judgeservice.Config{
		Executor:       exec,
		StatusStore:    status,
		Dispatcher:     j.Dispatcher,
		WatchdogFloor:  j.WatchdogFloor,
		WatchdogFactor: j.WatchdogFactor,
		MaxActive:      j.MaxActive,
		AcquireTimeout: j.AcquireTimeout,
		StatusTimeout:  j.StatusTimeout,
		HandlerTimeout: j.HandlerTimeout,
	}
}
