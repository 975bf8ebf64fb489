package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// BackendConfig controls the connection to the index backend cluster (C1).
type BackendConfig struct {
	Hosts                 []string      `json:"hosts" env:"BACKEND_HOSTS"`
	UseTLS                bool          `json:"use_tls" env:"BACKEND_USE_TLS"`
	VerifyTLS             bool          `json:"verify_tls" env:"BACKEND_VERIFY_TLS"`
	Username              string        `json:"username" env:"BACKEND_USERNAME"`
	Password              string        `json:"password" env:"BACKEND_PASSWORD"`
	RequestTimeout        time.Duration `json:"request_timeout" env:"BACKEND_REQUEST_TIMEOUT"`
	ConnectionTimeout     time.Duration `json:"connection_timeout" env:"BACKEND_CONNECTION_TIMEOUT"`
	MaxConnections        int           `json:"max_connections" env:"BACKEND_MAX_CONNECTIONS"`
	MaxConnectionsPerHost int           `json:"max_connections_per_host" env:"BACKEND_MAX_CONNECTIONS_PER_HOST"`
	BulkBatchSize         int           `json:"bulk_batch_size" env:"BACKEND_BULK_BATCH_SIZE"`
	BulkFlushInterval     time.Duration `json:"bulk_flush_interval" env:"BACKEND_BULK_FLUSH_INTERVAL"`
}

// PipelineConfig controls one indexing pipeline (notes or users, C4).
type PipelineConfig struct {
	BatchSize        int           `json:"batch_size"`
	MaxQueueSize     int           `json:"max_queue_size"`
	MaxRetryAttempts int           `json:"max_retry_attempts"`
	RetryDelay       time.Duration `json:"retry_delay"`
	MemoryLimitMB    int           `json:"memory_limit_mb"`
	MemoryWarningMB  int           `json:"memory_warning_mb"`
	WorkerCount      int           `json:"worker_count"`

	// Notes-only indexability toggles.
	IndexSpam bool `json:"index_spam"`
	IndexNSFW bool `json:"index_nsfw"`

	// Users-only indexability toggle.
	IndexBots bool `json:"index_bots"`
}

// PipelinesConfig groups the two indexing pipelines.
type PipelinesConfig struct {
	Notes PipelineConfig `json:"notes"`
	Users PipelineConfig `json:"users"`
}

// CacheConfig controls the response cache (C7).
type CacheConfig struct {
	Enabled    bool `json:"enabled" env:"CACHE_ENABLED"`
	MaxSize    int  `json:"max_size" env:"CACHE_MAX_SIZE"`
	TTLMinutes int  `json:"ttl_minutes" env:"CACHE_TTL_MINUTES"`
}

// RateLimitConfig controls the rate limiter (C8).
type RateLimitConfig struct {
	Enabled bool `json:"enabled" env:"RATE_LIMIT_ENABLED"`
	RPM     int  `json:"rpm" env:"RATE_LIMIT_RPM"`
	Burst   int  `json:"burst" env:"RATE_LIMIT_BURST"`
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	RealTimeIndexing bool `json:"real_time_indexing" env:"FEATURE_REAL_TIME_INDEXING"`
	Trending         bool `json:"trending" env:"FEATURE_TRENDING"`
	Personalization  bool `json:"personalization" env:"FEATURE_PERSONALIZATION"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Output string `json:"output" env:"LOG_OUTPUT"`
}

// AuthConfig controls the auth gate (C9).
type AuthConfig struct {
	Tokens            []string      `json:"tokens"`
	IdentityServiceURL string       `json:"identity_service_url" env:"AUTH_IDENTITY_SERVICE_URL"`
	CacheTTL          time.Duration `json:"cache_ttl" env:"AUTH_CACHE_TTL"`
}

// BusConfig controls the message-bus subscriber (C11).
type BusConfig struct {
	Addrs       []string `json:"addrs" env:"BUS_ADDRS"`
	NotesTopic  string   `json:"notes_topic" env:"BUS_NOTES_TOPIC"`
	UsersTopic  string   `json:"users_topic" env:"BUS_USERS_TOPIC"`
	ConsumerTag string   `json:"consumer_tag" env:"BUS_CONSUMER_TAG"`
}

// RuntimeConfig controls process-lifecycle behavior.
type RuntimeConfig struct {
	ShutdownTimeout  time.Duration `json:"shutdown_timeout" env:"RUNTIME_SHUTDOWN_TIMEOUT"`
	AutoDepsFromAPIs bool          `json:"auto_deps_from_apis" env:"RUNTIME_AUTO_DEPS_FROM_APIS"`
}

// TracingConfig configures OTLP/tracing exporters.
type TracingConfig struct {
	Endpoint           string            `json:"endpoint" env:"TRACING_OTLP_ENDPOINT"`
	Insecure           bool              `json:"insecure" env:"TRACING_OTLP_INSECURE"`
	ServiceName        string            `json:"service_name" env:"TRACING_SERVICE_NAME"`
	ResourceAttributes map[string]string `json:"resource_attributes" mapstructure:"resource_attributes"`
	AttributesEnv      string            `json:"-" yaml:"-" env:"TRACING_OTLP_ATTRIBUTES"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server            ServerConfig    `json:"server"`
	Backend           BackendConfig   `json:"backend"`
	Pipeline          PipelinesConfig `json:"pipeline"`
	Cache             CacheConfig     `json:"cache"`
	RateLimit         RateLimitConfig `json:"rate_limit"`
	Features          FeaturesConfig  `json:"features"`
	Logging           LoggingConfig   `json:"logging"`
	Runtime           RuntimeConfig   `json:"runtime"`
	Auth              AuthConfig      `json:"auth"`
	Bus               BusConfig       `json:"bus"`
	Tracing           TracingConfig   `json:"tracing"`
	SlowQueryThreshold time.Duration  `json:"slow_query_threshold" env:"SLOW_QUERY_THRESHOLD"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	notes := PipelineConfig{
		BatchSize:        100,
		MaxQueueSize:     10000,
		MaxRetryAttempts: 3,
		RetryDelay:       time.Second,
		MemoryLimitMB:    512,
		MemoryWarningMB:  400,
		WorkerCount:      4,
		IndexSpam:        false,
		IndexNSFW:        false,
	}
	users := PipelineConfig{
		BatchSize:        100,
		MaxQueueSize:     5000,
		MaxRetryAttempts: 3,
		RetryDelay:       time.Second,
		MemoryLimitMB:    256,
		MemoryWarningMB:  200,
		WorkerCount:      2,
		IndexBots:        false,
	}

	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Backend: BackendConfig{
			Hosts:                 []string{"http://localhost:9200"},
			RequestTimeout:        10 * time.Second,
			ConnectionTimeout:     5 * time.Second,
			MaxConnections:        100,
			MaxConnectionsPerHost: 10,
			BulkBatchSize:         500,
			BulkFlushInterval:     2 * time.Second,
		},
		Pipeline: PipelinesConfig{
			Notes: notes,
			Users: users,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    10000,
			TTLMinutes: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPM:     600,
			Burst:   50,
		},
		Features: FeaturesConfig{
			RealTimeIndexing: true,
			Trending:         true,
			Personalization:  false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Runtime: RuntimeConfig{
			ShutdownTimeout:  15 * time.Second,
			AutoDepsFromAPIs: false,
		},
		Auth: AuthConfig{
			CacheTTL: 30 * time.Second,
		},
		Bus: BusConfig{
			NotesTopic:  "notes.events",
			UsersTopic:  "users.events",
			ConsumerTag: "search-indexer",
		},
		Tracing:            TracingConfig{},
		SlowQueryThreshold: 500 * time.Millisecond,
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (t *TracingConfig) normalize() {
	if t == nil {
		return
	}
	t.MergeAttributes(t.AttributesEnv)
}

// MergeAttributes merges comma-separated key=value pairs into ResourceAttributes.
func (t *TracingConfig) MergeAttributes(raw string) {
	if t == nil {
		return
	}
	pairs := parseAttributePairs(raw)
	if len(pairs) == 0 {
		return
	}
	if t.ResourceAttributes == nil {
		t.ResourceAttributes = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		if k == "" {
			continue
		}
		t.ResourceAttributes[k] = v
	}
}

func parseAttributePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		val := ""
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}
		result[key] = val
	}
	return result
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	c.Tracing.normalize()
}
