package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Mistral   MistralConfig   `yaml:"mistral" mapstructure:"mistral"`
	Service   ServiceConfig   `yaml:"service" mapstructure:"service"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Intake    IntakeConfig    `yaml:"intake" mapstructure:"intake"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AuthConfig holds the shared secret used to verify session tokens issued
// by the account service.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini settings for the vision backend.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// MistralConfig holds Mistral OCR settings for the vision backend.
type MistralConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Model    string `yaml:"model" mapstructure:"model"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// ServiceConfig configures the external scoring microservice.
type ServiceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnalysisConfig selects the analysis backend and its retry policy.
type AnalysisConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs      int    `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs       int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	CallTimeoutSecs  int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	CatalogPath      string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// QueueConfig configures background task dispatch.
type QueueConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	Buffer        int    `yaml:"buffer" mapstructure:"buffer"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisKey      string `yaml:"redis_key" mapstructure:"redis_key"`
	RequeueOnBoot bool   `yaml:"requeue_on_boot" mapstructure:"requeue_on_boot"`
	DrainSecs     int    `yaml:"drain_secs" mapstructure:"drain_secs"`
}

// NotifyConfig configures completion emails.
type NotifyConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Region      string `yaml:"region" mapstructure:"region"`
	FromAddress string `yaml:"from_address" mapstructure:"from_address"`
	ResultsURL  string `yaml:"results_url" mapstructure:"results_url"`
}

// IntakeConfig bounds accepted submissions.
type IntakeConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ASSESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("auth.issuer", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("gemini.model", "gemini-2.5-pro")
	v.SetDefault("mistral.model", "mistral-ocr-latest")
	v.SetDefault("mistral.endpoint", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("service.timeout_secs", 25)
	v.SetDefault("service.rate_limit", 5)
	v.SetDefault("analysis.backend", "assistant")
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.base_delay_ms", 1000)
	v.SetDefault("analysis.max_delay_ms", 30000)
	v.SetDefault("analysis.call_timeout_secs", 120)
	v.SetDefault("analysis.breaker_threshold", 5)
	v.SetDefault("analysis.breaker_reset_secs", 60)
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer", 256)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_key", "assessments:analysis")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.requeue_on_boot", true)
	v.SetDefault("queue.drain_secs", 30)
	v.SetDefault("notify.provider", "log")
	v.SetDefault("notify.region", "us-east-1")
	v.SetDefault("intake.max_file_bytes", 10<<20)

	// Keys without a real default still need registering so that
	// AutomaticEnv values reach Unmarshal.
	for _, key := range []string{
		"store.database_url",
		"auth.jwt_secret",
		"anthropic.key",
		"gemini.key",
		"mistral.key",
		"service.base_url",
		"service.api_key",
		"queue.redis_password",
		"notify.from_address",
		"notify.results_url",
		"analysis.catalog_path",
	} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "serve",
// "worker" or "analyze".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Auth.JWTSecret == "" {
			problems = append(problems, "auth.jwt_secret is required")
		}
	}

	if mode == "worker" && c.Queue.Driver != "redis" {
		problems = append(problems, "worker requires queue.driver=redis")
	}

	switch c.Analysis.Backend {
	case "assistant":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "vision":
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required")
		}
		if c.Mistral.Key == "" {
			problems = append(problems, "mistral.key is required")
		}
	case "service":
		if c.Service.BaseURL == "" {
			problems = append(problems, "service.base_url is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required (legacy fallback)")
		}
	default:
		problems = append(problems, "analysis.backend must be one of assistant, vision, service")
	}

	if c.Analysis.MaxAttempts <= 0 {
		problems = append(problems, "analysis.max_attempts must be positive")
	}

	if c.Notify.Provider == "ses" && c.Notify.FromAddress == "" {
		problems = append(problems, "notify.from_address is required for ses")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
