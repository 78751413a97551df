// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Auth, Postgres, Kafka, Redis, Indexer, Search, Dictionary, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Search     SearchConfig     `yaml:"search"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// CORSOrigins lists the browser origins allowed to call the API; "*"
	// allows any. Empty disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// AuthConfig controls API key authentication of the HTTP APIs. With auth
// disabled every request runs as the system and sees every node.
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	NodeEvents  string `yaml:"nodeEvents"`
	IndexEvents string `yaml:"indexEvents"`
	// DeadLetter receives node events that could not be applied. Empty
	// leaves such events uncommitted.
	DeadLetter string `yaml:"deadLetter"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// OpTimeout bounds a single cache round trip.
	OpTimeout time.Duration `yaml:"opTimeout"`

	// After BreakerFailures consecutive failures the cache is bypassed
	// for BreakerReset.
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// IndexerConfig controls the index engine, transaction deltas and the
// background full-text worker.
type IndexerConfig struct {
	DataDir string `yaml:"dataDir"`
	// ContentRoot is the directory content URLs resolve against.
	ContentRoot string `yaml:"contentRoot"`
	// DefaultIndexMode applies to node events that name no mode.
	DefaultIndexMode string `yaml:"defaultIndexMode"`
	// ReadOnly opens the stores of another process for searching: nothing
	// under DataDir is written or removed and new stores are discovered on
	// refresh.
	ReadOnly bool `yaml:"readOnly"`
	// DeltaSpillDocs is the number of buffered documents after which an
	// active delta spills to a pending segment.
	DeltaSpillDocs         int           `yaml:"deltaSpillDocs"`
	MaxSegmentsBeforeMerge int           `yaml:"maxSegmentsBeforeMerge"`
	MergeInterval          time.Duration `yaml:"mergeInterval"`
	RefreshInterval        time.Duration `yaml:"refreshInterval"`
	DrainInterval          time.Duration `yaml:"drainInterval"`
	DrainRate              float64       `yaml:"drainRate"`
	DrainBatchSize         int           `yaml:"drainBatchSize"`
	DefaultMLIndexMode     string        `yaml:"defaultMLIndexMode"`
}

// SearchConfig controls query compilation and execution limits.
type SearchConfig struct {
	DefaultOperator         string        `yaml:"defaultOperator"`
	DefaultLimit            int           `yaml:"defaultLimit"`
	MaxPermissionChecks     int           `yaml:"maxPermissionChecks"`
	MaxPermissionCheckTime  time.Duration `yaml:"maxPermissionCheckTime"`
	LowerCaseExpandedTerms  bool          `yaml:"lowerCaseExpandedTerms"`
	CaseInsensitiveRanges   bool          `yaml:"caseInsensitiveRanges"`
	DefaultMLAnalysisMode   string        `yaml:"defaultMLAnalysisMode"`
	DefaultLocale           string        `yaml:"defaultLocale"`
	MaxWildcardExpansions   int           `yaml:"maxWildcardExpansions"`
	TimeoutPerQuery         time.Duration `yaml:"timeoutPerQuery"`
	MaxConcurrentLeafSearch int           `yaml:"maxConcurrentLeafSearch"`
}

// DictionaryConfig points at the content model definition.
type DictionaryConfig struct {
	ModelPath string `yaml:"modelPath"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging. SampleRate is the fraction of
// requests, between 0 and 1, whose span tree is logged.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) validate() error {
	if c.Indexer.DataDir == "" {
		return fmt.Errorf("indexer.dataDir must be set")
	}
	switch strings.ToUpper(c.Search.DefaultOperator) {
	case "AND", "OR":
	default:
		return fmt.Errorf("search.defaultOperator must be AND or OR, got %q", c.Search.DefaultOperator)
	}
	if c.Indexer.DrainBatchSize <= 0 {
		return fmt.Errorf("indexer.drainBatchSize must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  20 * time.Second,
		},
		Auth: AuthConfig{
			RateLimitWindow: time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "repository",
			User:            "repository",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "repository-search",
			Topics: KafkaTopics{
				NodeEvents:  "repository.node-events",
				IndexEvents: "repository.index-events",
				DeadLetter:  "repository.node-events.dlq",
			},
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        10,
			CacheTTL:        60 * time.Second,
			OpTimeout:       200 * time.Millisecond,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:                "data/index",
			ContentRoot:            "data/content",
			DefaultIndexMode:       "SYNCHRONOUS",
			DeltaSpillDocs:         1000,
			MaxSegmentsBeforeMerge: 8,
			MergeInterval:          time.Minute,
			RefreshInterval:        2 * time.Second,
			DrainInterval:          5 * time.Second,
			DrainRate:              20,
			DrainBatchSize:         1,
			DefaultMLIndexMode:     "EXACT_LOCALE",
		},
		Search: SearchConfig{
			DefaultOperator:         "OR",
			DefaultLimit:            1000,
			MaxPermissionChecks:     10000,
			MaxPermissionCheckTime:  10 * time.Second,
			LowerCaseExpandedTerms:  true,
			CaseInsensitiveRanges:   true,
			DefaultMLAnalysisMode:   "LOCALE_AND_CONTAINING",
			DefaultLocale:           "en",
			MaxWildcardExpansions:   1024,
			TimeoutPerQuery:         10 * time.Second,
			MaxConcurrentLeafSearch: 4,
		},
		Dictionary: DictionaryConfig{
			ModelPath: "configs/model.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v, cfg.Auth.Enabled)
	}
	if v := os.Getenv("SP_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_CONTENT_ROOT"); v != "" {
		cfg.Indexer.ContentRoot = v
	}
	if v := os.Getenv("SP_INDEXER_DEFAULT_MODE"); v != "" {
		cfg.Indexer.DefaultIndexMode = v
	}
	if v := os.Getenv("SP_SEARCH_DEFAULT_OPERATOR"); v != "" {
		cfg.Search.DefaultOperator = v
	}
	if v := os.Getenv("SP_SEARCH_MAX_PERMISSION_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxPermissionChecks = n
		}
	}
	if v := os.Getenv("SP_DICTIONARY_MODEL_PATH"); v != "" {
		cfg.Dictionary.ModelPath = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v, cfg.Tracing.Enabled)
	}
	if v := os.Getenv("SP_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRate = f
		}
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
