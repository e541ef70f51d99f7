package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-dictionary.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Engine store (jobs, recipes, dictionary)
	Database DatabaseConfig `yaml:"database"`

	// Optional Redis used for job status and cancellation signals
	Redis RedisConfig `yaml:"redis"`

	// Connection registry: the target databases analyses may read from.
	Datasources []DatasourceConfig `yaml:"datasources"`

	// Pooling of target database connections
	Pool PoolConfig `yaml:"pool"`

	Query     QueryConfig     `yaml:"query"`
	Profiling ProfilingConfig `yaml:"profiling"`
	LLM       LLMConfig       `yaml:"llm"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// DatabaseConfig holds the engine store configuration.
// Type "memory" keeps everything in process and skips PostgreSQL entirely.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"PGTYPE" env-default:"postgres"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_dictionary"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// DatasourceConfig describes one entry in the connection registry.
// The password is read from the environment variable named by PasswordEnv.
type DatasourceConfig struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"` // postgres | sqlserver
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
}

// Password resolves the datasource password from the environment.
func (d *DatasourceConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// PoolConfig holds target connection pool settings.
type PoolConfig struct {
	// ConnectionTTLMinutes is how long idle datasource connections are kept alive.
	ConnectionTTLMinutes int   `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	MaxConns             int32 `yaml:"max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	MinConns             int32 `yaml:"min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// QueryConfig bounds every statement run against a target database.
type QueryConfig struct {
	StatementTimeoutSeconds int `yaml:"statement_timeout_seconds" env:"QUERY_STATEMENT_TIMEOUT_SECONDS" env-default:"30"`
	MaxRows                 int `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"1000"`
	DefaultPageSize         int `yaml:"default_page_size" env:"QUERY_DEFAULT_PAGE_SIZE" env-default:"100"`
}

// StatementTimeout returns the per-statement timeout.
func (q QueryConfig) StatementTimeout() time.Duration {
	return time.Duration(q.StatementTimeoutSeconds) * time.Second
}

// ProfilingConfig controls table sampling.
type ProfilingConfig struct {
	SampleRows          int `yaml:"sample_rows" env:"PROFILING_SAMPLE_ROWS" env-default:"10000"`
	SampleThresholdRows int `yaml:"sample_threshold_rows" env:"PROFILING_SAMPLE_THRESHOLD_ROWS" env-default:"100000"`
	MaxDistinct         int `yaml:"max_distinct" env:"PROFILING_MAX_DISTINCT" env-default:"10"`
	PromptSampleRows    int `yaml:"prompt_sample_rows" env:"PROFILING_PROMPT_SAMPLE_ROWS" env-default:"5"`
	ColumnConcurrency   int `yaml:"column_concurrency" env:"PROFILING_COLUMN_CONCURRENCY" env-default:"4"`
}

// LLMConfig configures the providers reachable through the LLM adapter.
type LLMConfig struct {
	DefaultProvider       string          `yaml:"default_provider" env:"LLM_DEFAULT_PROVIDER" env-default:"openai"`
	DefaultModel          string          `yaml:"default_model" env:"LLM_DEFAULT_MODEL" env-default:"gpt-4o-mini"`
	RequestTimeoutSeconds int             `yaml:"request_timeout_seconds" env:"LLM_REQUEST_TIMEOUT_SECONDS" env-default:"120"`
	OpenAI                OpenAIConfig    `yaml:"openai"`
	Anthropic             AnthropicConfig `yaml:"anthropic"`
}

// RequestTimeout returns the timeout applied to one generate call.
func (l LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutSeconds) * time.Second
}

// OpenAIConfig also serves OpenAI-compatible endpoints through BaseURL.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:""`
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
}

type AnthropicConfig struct {
	APIKey    string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	MaxTokens int    `yaml:"max_tokens" env:"ANTHROPIC_MAX_TOKENS" env-default:"4096"`
}

// JobsConfig controls the job runner. InstanceID defaults to a random id per
// process; set it to keep job ownership stable across restarts.
type JobsConfig struct {
	MaxConcurrent      int    `yaml:"max_concurrent" env:"JOBS_MAX_CONCURRENT" env-default:"4"`
	InstanceID         string `yaml:"instance_id" env:"JOBS_INSTANCE_ID"`
	HeartbeatSeconds   int    `yaml:"heartbeat_seconds" env:"JOBS_HEARTBEAT_SECONDS" env-default:"15"`
	OrphanAfterSeconds int    `yaml:"orphan_after_seconds" env:"JOBS_ORPHAN_AFTER_SECONDS" env-default:"90"`
	RetainFinished     int    `yaml:"retain_finished" env:"JOBS_RETAIN_FINISHED" env-default:"100"`
}

// HeartbeatInterval returns how often running jobs refresh their heartbeat.
func (c JobsConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// OrphanAfter returns how stale a heartbeat must be before the job is failed.
func (c JobsConfig) OrphanAfter() time.Duration {
	return time.Duration(c.OrphanAfterSeconds) * time.Second
}

// TracingConfig selects the OpenTelemetry exporter: none, stdout or otlp.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" env:"OTEL_EXPORTER" env-default:"none"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_ENDPOINT" env-default:"http://localhost:4318"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_INSECURE" env-default:"true"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_SAMPLE_RATIO" env-default:"1"`
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"ekaya-dictionary"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFromFile("config.yaml", version)
}

// LoadFromFile reads configuration from the given YAML file with environment overrides.
func LoadFromFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// normalize applies defaults that cleanenv cannot express (slice elements) and
// clamps query limits into their allowed ranges.
func (c *Config) normalize() error {
	switch c.Database.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.type must be postgres or memory, got %q", c.Database.Type)
	}

	seen := make(map[string]bool, len(c.Datasources))
	for i := range c.Datasources {
		ds := &c.Datasources[i]
		if ds.ID == "" {
			return fmt.Errorf("datasources[%d]: id is required", i)
		}
		if seen[ds.ID] {
			return fmt.Errorf("datasources[%d]: duplicate id %q", i, ds.ID)
		}
		seen[ds.ID] = true

		ds.Type = strings.ToLower(strings.TrimSpace(ds.Type))
		switch ds.Type {
		case "", "postgres":
			ds.Type = "postgres"
			if ds.Port == 0 {
				ds.Port = 5432
			}
			if ds.SSLMode == "" {
				ds.SSLMode = "disable"
			}
		case "sqlserver", "mssql":
			ds.Type = "sqlserver"
			if ds.Port == 0 {
				ds.Port = 1433
			}
		default:
			return fmt.Errorf("datasources[%d]: unsupported type %q", i, ds.Type)
		}
	}

	if c.Query.MaxRows <= 0 || c.Query.MaxRows > 1000 {
		c.Query.MaxRows = 1000
	}
	if c.Query.DefaultPageSize < 50 {
		c.Query.DefaultPageSize = 50
	}
	if c.Query.DefaultPageSize > 100 {
		c.Query.DefaultPageSize = 100
	}
	if c.Query.StatementTimeoutSeconds <= 0 {
		c.Query.StatementTimeoutSeconds = 30
	}
	if c.Jobs.MaxConcurrent <= 0 {
		c.Jobs.MaxConcurrent = 1
	}
	if c.Jobs.HeartbeatSeconds <= 0 {
		c.Jobs.HeartbeatSeconds = 15
	}
	if c.Jobs.OrphanAfterSeconds < 2*c.Jobs.HeartbeatSeconds {
		return fmt.Errorf("jobs.orphan_after_seconds (%d) must be at least twice jobs.heartbeat_seconds (%d)",
			c.Jobs.OrphanAfterSeconds, c.Jobs.HeartbeatSeconds)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the engine store as a postgres:// URL (used by migrations).
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
