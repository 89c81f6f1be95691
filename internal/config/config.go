package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	FollowUp   FollowUpConfig   `yaml:"followup" mapstructure:"followup"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Hunter     HunterConfig     `yaml:"hunter" mapstructure:"hunter"`
	Proxycurl  ProxycurlConfig  `yaml:"proxycurl" mapstructure:"proxycurl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Usage      UsageConfig      `yaml:"usage" mapstructure:"usage"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EnrichmentConfig configures the enrichment dispatcher.
type EnrichmentConfig struct {
	BatchSize             int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts           int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitCooldownMins int    `yaml:"rate_limit_cooldown_mins" mapstructure:"rate_limit_cooldown_mins"`
	SkillsCap             int    `yaml:"skills_cap" mapstructure:"skills_cap"`
	DefaultCriteria       string `yaml:"default_criteria" mapstructure:"default_criteria"`
}

// EmailConfig configures the email dispatcher and link tracking.
type EmailConfig struct {
	BatchSize             int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts           int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitCooldownMins int    `yaml:"rate_limit_cooldown_mins" mapstructure:"rate_limit_cooldown_mins"`
	TrackingBaseURL       string `yaml:"tracking_base_url" mapstructure:"tracking_base_url"`
	TrackingSecret        string `yaml:"tracking_secret" mapstructure:"tracking_secret"`
	UnsubscribeBaseURL    string `yaml:"unsubscribe_base_url" mapstructure:"unsubscribe_base_url"`
}

// FollowUpConfig configures the follow-up scheduler.
type FollowUpConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// WorkerConfig configures the background sweep.
type WorkerConfig struct {
	IntervalSecs int      `yaml:"interval_secs" mapstructure:"interval_secs"`
	Concurrency  int      `yaml:"concurrency" mapstructure:"concurrency"`
	Workspaces   []string `yaml:"workspaces" mapstructure:"workspaces"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TemporalConfig configures the Temporal worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	Cron      string `yaml:"cron" mapstructure:"cron"`
}

// HunterConfig holds Hunter API settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ProxycurlConfig holds Proxycurl API settings.
type ProxycurlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// UsageConfig points at the provider limit table overrides.
type UsageConfig struct {
	LimitsFile string `yaml:"limits_file" mapstructure:"limits_file"`
}

// PricingConfig holds per-provider pricing rates. Zero per-call prices keep
// the limit table's values.
type PricingConfig struct {
	HunterPerCall    float64                 `yaml:"hunter_per_call" mapstructure:"hunter_per_call"`
	ProxycurlPerCall float64                 `yaml:"proxycurl_per_call" mapstructure:"proxycurl_per_call"`
	Anthropic        map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// MonitoringConfig configures queue health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StuckAfterMins       int     `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// Load reads configuration from .env, file and environment, in increasing
// order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECRUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("enrichment.batch_size", 10)
	v.SetDefault("enrichment.max_attempts", 3)
	v.SetDefault("enrichment.rate_limit_cooldown_mins", 30)
	v.SetDefault("enrichment.skills_cap", 50)
	v.SetDefault("enrichment.default_criteria", "")
	v.SetDefault("email.batch_size", 25)
	v.SetDefault("email.max_attempts", 3)
	v.SetDefault("email.rate_limit_cooldown_mins", 30)
	v.SetDefault("email.tracking_base_url", "")
	v.SetDefault("email.tracking_secret", "")
	v.SetDefault("email.unsubscribe_base_url", "")
	v.SetDefault("followup.interval_mins", 60)
	v.SetDefault("worker.interval_secs", 60)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.workspaces", []string{})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "recruit-sweep")
	v.SetDefault("temporal.cron", "*/5 * * * *")
	v.SetDefault("hunter.key", "")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("proxycurl.key", "")
	v.SetDefault("proxycurl.base_url", "https://nubela.co/proxycurl")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("usage.limits_file", "")
	v.SetDefault("pricing.hunter_per_call", 0)
	v.SetDefault("pricing.proxycurl_per_call", 0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stuck_after_mins", 30)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)

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

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string
	need := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}

	switch mode {
	case "enrich":
		need(c.Enrichment.BatchSize > 0, "enrichment.batch_size must be > 0")
		need(c.Enrichment.MaxAttempts > 0, "enrichment.max_attempts must be > 0")
		need(c.Hunter.Key != "" || c.Proxycurl.Key != "" || c.Anthropic.Key != "",
			"at least one of hunter.key, proxycurl.key, anthropic.key is required")
	case "email":
		need(c.Email.BatchSize > 0, "email.batch_size must be > 0")
		need(c.Email.MaxAttempts > 0, "email.max_attempts must be > 0")
		need(c.Email.TrackingBaseURL == "" || c.Email.TrackingSecret != "",
			"email.tracking_secret is required when email.tracking_base_url is set")
	case "serve":
		need(c.Server.Port > 0, "server.port must be > 0")
	case "worker":
		need(c.Worker.Concurrency >= 1 && c.Worker.Concurrency <= 32, "worker.concurrency must be between 1 and 32")
		need(c.Worker.IntervalSecs > 0, "worker.interval_secs must be > 0")
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
