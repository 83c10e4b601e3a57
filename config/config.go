// Package config provides configuration management for the application.
//
// Values are resolved in order of increasing precedence: built-in defaults,
// an optional YAML file (with ${VAR} and ${VAR:-default} expansion), then
// environment variables (a .env file in the working directory is loaded first).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultBodySizeLimit bounds incoming request bodies (1MB)
	DefaultBodySizeLimit = "1M"

	// DefaultAPIPrefix is where the agent routes live unless configured
	DefaultAPIPrefix = "/api/v1"
)

// Config holds the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Debug       bool           `mapstructure:"debug"`
	Log         LogConfig      `mapstructure:"log"`
	Server      ServerConfig   `mapstructure:"server"`
	LLM         LLMConfig      `mapstructure:"llm"`
	OpenAI      ProviderConfig `mapstructure:"openai"`
	Anthropic   ProviderConfig `mapstructure:"anthropic"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Storage     StorageConfig  `mapstructure:"storage"`
	CallLog     CallLogConfig  `mapstructure:"calllog"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is auto, json or text. auto picks coloured text on a
	// development terminal and JSON everywhere else.
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	MasterKey       string        `mapstructure:"master_key"`
	BodyLimit       string        `mapstructure:"body_limit"`
	DocsEnabled     bool          `mapstructure:"docs_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig selects the upstream provider
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
}

// ProviderConfig holds upstream provider credentials and request settings
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// HTTPConfig tunes the client used for upstream calls
type HTTPConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// CacheConfig controls the generation cache. Type is none, local or redis.
type CacheConfig struct {
	Type  string        `mapstructure:"type"`
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects the database backing the call log
type StorageConfig struct {
	Type       string           `mapstructure:"type"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// CallLogConfig controls the per-request call log
type CallLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LogBodies     bool          `mapstructure:"log_bodies"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// TracingConfig controls OpenTelemetry tracing. The exporter endpoint comes
// from OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// IsProduction reports whether the gateway runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ActiveProvider returns the settings of the configured upstream provider
func (c *Config) ActiveProvider() ProviderConfig {
	if c.LLM.Provider == "anthropic" {
		return c.Anthropic
	}
	return c.OpenAI
}

var defaults = map[string]any{
	"environment":                  EnvDevelopment,
	"debug":                        false,
	"log.level":                    "info",
	"log.format":                   "auto",
	"server.port":                  "8000",
	"server.api_prefix":            DefaultAPIPrefix,
	"server.master_key":            "",
	"server.body_limit":            DefaultBodySizeLimit,
	"server.docs_enabled":          true,
	"server.shutdown_timeout":      30 * time.Second,
	"llm.provider":                 "openai",
	"openai.api_key":               "",
	"openai.model":                 "gpt-4-turbo",
	"openai.max_tokens":            4000,
	"openai.base_url":              "",
	"anthropic.api_key":            "",
	"anthropic.model":              "claude-sonnet-4-5",
	"anthropic.max_tokens":         4000,
	"anthropic.base_url":           "",
	"http.timeout":                 600 * time.Second,
	"http.response_header_timeout": 600 * time.Second,
	"metrics.enabled":              true,
	"metrics.endpoint":             "/metrics",
	"cache.type":                   "none",
	"cache.ttl":                    time.Hour,
	"cache.redis.url":              "redis://localhost:6379/0",
	"cache.redis.key_prefix":       "agentgate:",
	"storage.type":                 "sqlite",
	"storage.sqlite.path":          "data/agentgate.db",
	"storage.postgresql.url":       "",
	"storage.postgresql.max_conns": 10,
	"storage.mongodb.url":          "",
	"storage.mongodb.database":     "agentgate",
	"calllog.enabled":              false,
	"calllog.log_bodies":           false,
	"calllog.buffer_size":          1000,
	"calllog.flush_interval":       5 * time.Second,
	"calllog.retention_days":       30,
	"tracing.enabled":              false,
	"tracing.service_name":         "agentgate",
}

// envBindings lists the environment variables read for each key. The first
// one set wins.
var envBindings = map[string][]string{
	"environment":                  {"ENVIRONMENT"},
	"debug":                        {"DEBUG"},
	"log.level":                    {"LOG_LEVEL"},
	"log.format":                   {"LOG_FORMAT"},
	"server.port":                  {"PORT", "SERVER_PORT"},
	"server.api_prefix":            {"API_PREFIX"},
	"server.master_key":            {"GATEWAY_MASTER_KEY"},
	"server.body_limit":            {"BODY_SIZE_LIMIT"},
	"server.docs_enabled":          {"DOCS_ENABLED"},
	"server.shutdown_timeout":      {"SHUTDOWN_TIMEOUT"},
	"llm.provider":                 {"LLM_PROVIDER"},
	"openai.api_key":               {"OPENAI_API_KEY"},
	"openai.model":                 {"OPENAI_MODEL"},
	"openai.max_tokens":            {"OPENAI_MAX_TOKENS"},
	"openai.base_url":              {"OPENAI_BASE_URL"},
	"anthropic.api_key":            {"ANTHROPIC_API_KEY"},
	"anthropic.model":              {"ANTHROPIC_MODEL"},
	"anthropic.max_tokens":         {"ANTHROPIC_MAX_TOKENS"},
	"anthropic.base_url":           {"ANTHROPIC_BASE_URL"},
	"http.timeout":                 {"HTTP_TIMEOUT"},
	"http.response_header_timeout": {"HTTP_RESPONSE_HEADER_TIMEOUT"},
	"metrics.enabled":              {"METRICS_ENABLED"},
	"metrics.endpoint":             {"METRICS_ENDPOINT"},
	"cache.type":                   {"CACHE_TYPE"},
	"cache.ttl":                    {"CACHE_TTL"},
	"cache.redis.url":              {"REDIS_URL"},
	"cache.redis.key_prefix":       {"REDIS_KEY_PREFIX"},
	"storage.type":                 {"STORAGE_TYPE"},
	"storage.sqlite.path":          {"SQLITE_PATH"},
	"storage.postgresql.url":       {"POSTGRES_URL"},
	"storage.postgresql.max_conns": {"POSTGRES_MAX_CONNS"},
	"storage.mongodb.url":          {"MONGODB_URL"},
	"storage.mongodb.database":     {"MONGODB_DATABASE"},
	"calllog.enabled":              {"CALLLOG_ENABLED"},
	"calllog.log_bodies":           {"CALLLOG_LOG_BODIES"},
	"calllog.buffer_size":          {"CALLLOG_BUFFER_SIZE"},
	"calllog.flush_interval":       {"CALLLOG_FLUSH_INTERVAL"},
	"calllog.retention_days":       {"CALLLOG_RETENTION_DAYS"},
	"tracing.enabled":              {"TRACING_ENABLED"},
	"tracing.service_name":         {"OTEL_SERVICE_NAME"},
}

// defaultConfigPaths are tried in order when Load is given no explicit path
var defaultConfigPaths = []string{"config.yaml", "config/config.yaml"}

// Load reads configuration from defaults, the YAML file at path (or the first
// default location that exists) and the environment.
func Load(path string) (*Config, error) {
	// .env is optional and never overrides variables already set
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := mergeYAML(v, path); err != nil {
		return nil, err
	}

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsOrDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeYAML(v *viper.Viper, path string) error {
	explicit := path != ""
	candidates := defaultConfigPaths
	if explicit {
		candidates = []string{path}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, os.ErrNotExist) && !explicit {
			continue
		}
		if err != nil {
			return fmt.Errorf("read config file %s: %w", candidate, err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal([]byte(expandString(string(data))), &raw); err != nil {
			return fmt.Errorf("parse config file %s: %w", candidate, err)
		}
		if raw == nil {
			return nil
		}
		if err := v.MergeConfigMap(raw); err != nil {
			return fmt.Errorf("merge config file %s: %w", candidate, err)
		}
		return nil
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// A ${VAR} whose variable is unset or empty is left untouched so the mistake
// stays visible.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// secondsOrDurationHook accepts plain integers as seconds in addition to Go
// duration strings such as "1m30s".
func secondsOrDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		durationType := reflect.TypeOf(time.Duration(0))
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.String:
		default:
			return data, nil
		}
		s := strings.TrimSpace(reflect.ValueOf(data).String())
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(s)
	}
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Cache.Type = strings.ToLower(strings.TrimSpace(c.Cache.Type))
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))

	c.Server.APIPrefix = NormalizeAPIPrefix(c.Server.APIPrefix)

	if c.Debug {
		c.Log.Level = "debug"
	}
}

// NormalizeAPIPrefix returns prefix with one leading slash and no trailing
// slash. The root prefix ("/" or "") normalizes to "".
func NormalizeAPIPrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid environment %q: must be %s or %s", c.Environment, EnvDevelopment, EnvProduction)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.ActiveProvider().MaxTokens <= 0 {
		return fmt.Errorf("%s max_tokens must be positive", c.LLM.Provider)
	}
	switch c.Cache.Type {
	case "", "none", "local", "redis":
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
